package server

import (
	"math"
	"net/url"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cast"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// parseConsultRequest builds a synthetic request from the consult query. timestamp defaults to now.
func parseConsultRequest(q url.Values, now time.Time) (types.StatusRequest, error) {
	var req types.StatusRequest

	if q.Get("index") == "" {
		return req, errorsmod.Wrap(types.ErrInvalidRequest, "missing parameter \"index\"")
	}
	index, err := cast.ToIntE(q.Get("index"))
	if err != nil || index < 0 || index > math.MaxUint8 {
		return req, errorsmod.Wrapf(types.ErrInvalidRequest, "parameter \"index\" must be an integer in 0..255, got %q", q.Get("index"))
	}
	req.Index = uint8(index)

	airline := q.Get("airline")
	if !common.IsHexAddress(airline) {
		return req, errorsmod.Wrapf(types.ErrInvalidRequest, "parameter \"airline\" must be a hex address, got %q", airline)
	}
	req.Airline = common.HexToAddress(airline)

	if q.Get("flight") == "" {
		return req, errorsmod.Wrap(types.ErrInvalidRequest, "missing parameter \"flight\"")
	}
	flight, err := types.ParseFlight(q.Get("flight"))
	if err != nil {
		return req, err
	}
	req.Flight = flight

	req.Timestamp = uint64(now.Unix())
	if ts := q.Get("timestamp"); ts != "" {
		v, err := cast.ToUint64E(ts)
		if err != nil {
			return req, errorsmod.Wrapf(types.ErrInvalidRequest, "parameter \"timestamp\" must be a unix time, got %q", ts)
		}
		req.Timestamp = v
	}

	return req, nil
}
