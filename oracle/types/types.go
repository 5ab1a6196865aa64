package types

import (
	"fmt"
	"slices"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// IndexCount is the number of duty indices the contract assigns to every oracle.
const IndexCount = 3

// Oracle is an off-chain identity registered with the contract together with the
// duty indices it was assigned at registration.
type Oracle struct {
	Address common.Address
	Indexes [IndexCount]uint8
}

// Handles reports whether the oracle was assigned the given duty index.
func (o Oracle) Handles(index uint8) bool {
	return slices.Contains(o.Indexes[:], index)
}

func (o Oracle) String() string {
	return fmt.Sprintf("%s%v", o.Address.Hex(), o.Indexes)
}

// StatusRequest is one OracleRequest raised by the contract.
type StatusRequest struct {
	Index     uint8
	Airline   common.Address
	Flight    common.Hash
	Timestamp uint64
}

func (r StatusRequest) String() string {
	return fmt.Sprintf("index=%d airline=%s flight=%s timestamp=%d", r.Index, r.Airline.Hex(), r.Flight.Hex(), r.Timestamp)
}

// ParseFlight reads a flight identifier given either as 0x-prefixed bytes32 hex or as a
// flight code of at most 32 characters, right padded with zeros.
func ParseFlight(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		bz, err := hexutil.Decode(s)
		if err != nil || len(bz) != common.HashLength {
			return common.Hash{}, errorsmod.Wrapf(ErrInvalidRequest, "flight must be 32 bytes of hex, got %q", s)
		}
		return common.BytesToHash(bz), nil
	}

	if s == "" || len(s) > common.HashLength {
		return common.Hash{}, errorsmod.Wrapf(ErrInvalidRequest, "flight code must be 1 to %d bytes, got %q", common.HashLength, s)
	}
	var h common.Hash
	copy(h[:], s)
	return h, nil
}

type StatusCode uint8

const (
	Unknown       StatusCode = 0
	OnTime        StatusCode = 10
	LateAirline   StatusCode = 20
	LateWeather   StatusCode = 30
	LateTechnical StatusCode = 40
	LateOther     StatusCode = 50
)

// StatusCodes lists every code in ascending order.
var StatusCodes = []StatusCode{Unknown, OnTime, LateAirline, LateWeather, LateTechnical, LateOther}

func (c StatusCode) String() string {
	switch c {
	case Unknown:
		return "UNKNOWN"
	case OnTime:
		return "ON_TIME"
	case LateAirline:
		return "LATE_AIRLINE"
	case LateWeather:
		return "LATE_WEATHER"
	case LateTechnical:
		return "LATE_TECHNICAL"
	case LateOther:
		return "LATE_OTHER"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the codes the contract understands.
func (c StatusCode) Valid() bool {
	return slices.Contains(StatusCodes, c)
}

// Result is what an oracle answers for a flight.
type Result struct {
	Status StatusCode
	Delay  uint64
}

// StatusResponse is the payload of one submitOracleResponse transaction.
type StatusResponse struct {
	Oracle  common.Address
	Request StatusRequest
	Result
}

type Outcome byte

const (
	Accepted Outcome = iota
	Rejected
	TransportFailure
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("outcome(%d)", byte(o))
	}
}
