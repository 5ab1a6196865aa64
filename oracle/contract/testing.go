package contract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// RequestLogForTesting builds the OracleRequest log the contract would emit for req.
func RequestLogForTesting(req types.StatusRequest, block uint64, index uint) ethtypes.Log {
	data, err := parsedABI.Events[types.EventOracleRequest].Inputs.Pack(
		req.Index, req.Airline, [32]byte(req.Flight), new(big.Int).SetUint64(req.Timestamp),
	)
	if err != nil {
		panic(err)
	}

	return ethtypes.Log{
		Topics:      []common.Hash{RequestTopic()},
		Data:        data,
		BlockNumber: block,
		Index:       index,
	}
}

// RegistrationLogForTesting builds the OracleRegistered log the contract would emit for oracle.
func RegistrationLogForTesting(oracle types.Oracle, block uint64, index uint) ethtypes.Log {
	data, err := parsedABI.Events[types.EventOracleRegistered].Inputs.Pack(
		oracle.Address, oracle.Indexes[0], oracle.Indexes[1], oracle.Indexes[2],
	)
	if err != nil {
		panic(err)
	}

	return ethtypes.Log{
		Topics:      []common.Hash{RegisteredTopic()},
		Data:        data,
		BlockNumber: block,
		Index:       index,
	}
}
