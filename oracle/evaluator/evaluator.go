// Package evaluator decides which status an oracle reports for a flight.
//
// Every oracle handling the same request derives the same seed, so they all agree:
//
//	h    = keccak256(flight || bigEndian64(seed))
//	flip = h[0] & 1, roll = h[1] % 9
//	flip*roll < 1  -> OnTime
//	otherwise      -> [LateAirline, LateWeather, LateTechnical, LateOther][h[2] % 4]
//
// A zero flight code yields Unknown.
package evaluator

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

var lateCodes = [4]types.StatusCode{
	types.LateAirline,
	types.LateWeather,
	types.LateTechnical,
	types.LateOther,
}

// Evaluator maps flights to status codes. LateAirline results carry AirlineDelay.
type Evaluator struct {
	AirlineDelay uint64
}

func New(airlineDelay uint64) Evaluator {
	return Evaluator{AirlineDelay: airlineDelay}
}

// Evaluate is a pure function of (flight, seed).
func (e Evaluator) Evaluate(flight common.Hash, seed uint64) types.Result {
	if flight == (common.Hash{}) {
		return types.Result{Status: types.Unknown}
	}

	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], seed)
	h := crypto.Keccak256(flight.Bytes(), seedBytes[:])

	flip := h[0] & 1
	roll := h[1] % 9
	if flip*roll < 1 {
		return types.Result{Status: types.OnTime}
	}

	status := lateCodes[h[2]%4]
	result := types.Result{Status: status}
	if status == types.LateAirline {
		result.Delay = e.AirlineDelay
	}
	return result
}

// SeedFor is the seed every oracle uses for req.
func SeedFor(req types.StatusRequest) uint64 {
	return req.Timestamp
}

// EvaluateRequest evaluates req with its request-derived seed.
func (e Evaluator) EvaluateRequest(req types.StatusRequest) types.Result {
	return e.Evaluate(req.Flight, SeedFor(req))
}
