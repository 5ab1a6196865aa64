// Package signer sends contract calls on behalf of oracle accounts.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Signer sends a state-changing call to a contract as the from account.
type Signer interface {
	Send(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)
	Accounts(ctx context.Context) ([]common.Address, error)
}

// TxBackend is the part of an Ethereum client a locally signing Signer needs.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// GasSettings bounds the gas of every transaction. A nil Price asks the node.
type GasSettings struct {
	Limit uint64
	Price *big.Int
}

// gasWithMargin adds 30% to an estimate without exceeding limit.
func gasWithMargin(estimate, limit uint64) uint64 {
	gas := estimate * 13 / 10
	if limit > 0 && gas > limit {
		return limit
	}
	return gas
}
