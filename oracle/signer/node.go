package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

type sendTxArgs struct {
	From     common.Address  `json:"from"`
	To       common.Address  `json:"to"`
	Data     hexutil.Bytes   `json:"data"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
}

// NodeSigner relies on accounts unlocked in the connected node (ganache, geth --unlock),
// the node signs and assigns nonces.
type NodeSigner struct {
	client *rpc.Client
	gas    GasSettings
}

func NewNodeSigner(client *rpc.Client, gas GasSettings) *NodeSigner {
	return &NodeSigner{client: client, gas: gas}
}

func (s *NodeSigner) Send(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	args := sendTxArgs{
		From: from,
		To:   to,
		Data: data,
	}
	if s.gas.Limit > 0 {
		gas := hexutil.Uint64(s.gas.Limit)
		args.Gas = &gas
	}
	if s.gas.Price != nil {
		args.GasPrice = (*hexutil.Big)(s.gas.Price)
	}

	var hash common.Hash
	if err := s.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}

	return hash, nil
}

func (s *NodeSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := s.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("failed to list node accounts: %w", err)
	}
	return accounts, nil
}
