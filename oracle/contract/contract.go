// Package contract binds the parts of the FlightSuretyApp contract the oracle daemon talks to.
package contract

import (
	"fmt"
	"math/big"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// ABIJSON is the subset of the FlightSuretyApp ABI used off-chain.
const ABIJSON = `[
  {"type":"event","name":"OracleRequest","anonymous":false,"inputs":[
    {"name":"index","type":"uint8","indexed":false},
    {"name":"airline","type":"address","indexed":false},
    {"name":"flightCode","type":"bytes32","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"OracleRegistered","anonymous":false,"inputs":[
    {"name":"oracle","type":"address","indexed":false},
    {"name":"index1","type":"uint8","indexed":false},
    {"name":"index2","type":"uint8","indexed":false},
    {"name":"index3","type":"uint8","indexed":false}]},
  {"type":"function","name":"getMyIndexes","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8[3]"}]},
  {"type":"function","name":"submitOracleResponse","stateMutability":"nonpayable","inputs":[
    {"name":"index","type":"uint8"},
    {"name":"airline","type":"address"},
    {"name":"flightCode","type":"bytes32"},
    {"name":"timestamp","type":"uint256"},
    {"name":"statusCode","type":"uint8"},
    {"name":"delay","type":"uint256"}],"outputs":[]}
]`

var parsedABI abi.ABI

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(ABIJSON))
	if err != nil {
		panic(fmt.Errorf("invalid FlightSuretyApp ABI: %w", err))
	}
}

// ABI returns the parsed contract ABI.
func ABI() abi.ABI {
	return parsedABI
}

// RequestTopic is the topic hash of OracleRequest logs.
func RequestTopic() common.Hash {
	return parsedABI.Events[types.EventOracleRequest].ID
}

// RegisteredTopic is the topic hash of OracleRegistered logs.
func RegisteredTopic() common.Hash {
	return parsedABI.Events[types.EventOracleRegistered].ID
}

type oracleRequestEvent struct {
	Index      uint8
	Airline    common.Address
	FlightCode [32]byte
	Timestamp  *big.Int
}

type oracleRegisteredEvent struct {
	Oracle common.Address
	Index1 uint8
	Index2 uint8
	Index3 uint8
}

// IsRequest reports whether the log is an OracleRequest.
func IsRequest(log ethtypes.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == RequestTopic()
}

// IsRegistration reports whether the log is an OracleRegistered.
func IsRegistration(log ethtypes.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == RegisteredTopic()
}

// DecodeRequest turns an OracleRequest log into a StatusRequest.
func DecodeRequest(log ethtypes.Log) (types.StatusRequest, error) {
	if !IsRequest(log) {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrDecode, "log %s/%d is not %s", log.TxHash.Hex(), log.Index, types.EventOracleRequest)
	}

	var ev oracleRequestEvent
	if err := parsedABI.UnpackIntoInterface(&ev, types.EventOracleRequest, log.Data); err != nil {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrDecode, "%s in tx %s: %v", types.EventOracleRequest, log.TxHash.Hex(), err)
	}

	if ev.Timestamp == nil || !ev.Timestamp.IsUint64() {
		return types.StatusRequest{}, errorsmod.Wrapf(types.ErrDecode, "%s in tx %s: timestamp out of range", types.EventOracleRequest, log.TxHash.Hex())
	}

	return types.StatusRequest{
		Index:     ev.Index,
		Airline:   ev.Airline,
		Flight:    common.Hash(ev.FlightCode),
		Timestamp: ev.Timestamp.Uint64(),
	}, nil
}

// DecodeRegistration turns an OracleRegistered log into an Oracle record.
func DecodeRegistration(log ethtypes.Log) (types.Oracle, error) {
	if !IsRegistration(log) {
		return types.Oracle{}, errorsmod.Wrapf(types.ErrDecode, "log %s/%d is not %s", log.TxHash.Hex(), log.Index, types.EventOracleRegistered)
	}

	var ev oracleRegisteredEvent
	if err := parsedABI.UnpackIntoInterface(&ev, types.EventOracleRegistered, log.Data); err != nil {
		return types.Oracle{}, errorsmod.Wrapf(types.ErrDecode, "%s in tx %s: %v", types.EventOracleRegistered, log.TxHash.Hex(), err)
	}

	if ev.Oracle == (common.Address{}) {
		return types.Oracle{}, errorsmod.Wrapf(types.ErrDecode, "%s in tx %s: zero oracle address", types.EventOracleRegistered, log.TxHash.Hex())
	}

	return types.Oracle{
		Address: ev.Oracle,
		Indexes: [types.IndexCount]uint8{ev.Index1, ev.Index2, ev.Index3},
	}, nil
}

// PackSubmitResponse encodes the submitOracleResponse call data.
func PackSubmitResponse(req types.StatusRequest, result types.Result) ([]byte, error) {
	return parsedABI.Pack(types.MethodSubmitOracleResponse,
		req.Index,
		req.Airline,
		[32]byte(req.Flight),
		new(big.Int).SetUint64(req.Timestamp),
		uint8(result.Status),
		new(big.Int).SetUint64(result.Delay),
	)
}

// PackGetMyIndexes encodes the getMyIndexes view call.
func PackGetMyIndexes() ([]byte, error) {
	return parsedABI.Pack(types.MethodGetMyIndexes)
}

// UnpackGetMyIndexes decodes the getMyIndexes return data.
func UnpackGetMyIndexes(data []byte) ([types.IndexCount]uint8, error) {
	var out [types.IndexCount]uint8

	values, err := parsedABI.Unpack(types.MethodGetMyIndexes, data)
	if err != nil {
		return out, errorsmod.Wrapf(types.ErrDecode, "%s: %v", types.MethodGetMyIndexes, err)
	}
	if len(values) != 1 {
		return out, errorsmod.Wrapf(types.ErrDecode, "%s: expected 1 value, got %d", types.MethodGetMyIndexes, len(values))
	}

	indexes, ok := abi.ConvertType(values[0], new([types.IndexCount]uint8)).(*[types.IndexCount]uint8)
	if !ok {
		return out, errorsmod.Wrapf(types.ErrDecode, "%s: unexpected return type %T", types.MethodGetMyIndexes, values[0])
	}
	return *indexes, nil
}
