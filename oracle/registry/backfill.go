package registry

import (
	"context"
	"math/big"
	"sort"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-hclog"

	"github.com/GPTx-global/flight-oracle/oracle/contract"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// ChainReader is the part of an Ethereum client backfill needs.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// BackfillResult summarizes one replay.
type BackfillResult struct {
	FromBlock uint64
	Head      uint64
	Events    int
	Skipped   int
	Corrected int
}

// Backfiller rebuilds the registry from historical OracleRegistered logs.
type Backfiller struct {
	store       *Store
	chain       ChainReader
	contract    common.Address
	startBlock  uint64
	batchBlocks uint64
	verify      bool
	logger      hclog.Logger
}

// NewBackfiller replays logs of contract from startBlock in spans of batchBlocks
// (0 means one query). With verify set, stored indices are checked against getMyIndexes.
func NewBackfiller(store *Store, chain ChainReader, contractAddr common.Address, startBlock, batchBlocks uint64, verify bool) *Backfiller {
	return &Backfiller{
		store:       store,
		chain:       chain,
		contract:    contractAddr,
		startBlock:  startBlock,
		batchBlocks: batchBlocks,
		verify:      verify,
		logger:      log.With("backfill", "contract", contractAddr.Hex()),
	}
}

// Backfill replays every registration from the start block through the current head,
// writing once per event in log order. The whole replay, head lookup included, holds the
// store as its only writer, so a live registration recorded meanwhile is written after it.
// Storage failures abort the replay.
func (b *Backfiller) Backfill(ctx context.Context) (BackfillResult, error) {
	var res BackfillResult
	err := b.store.Exclusive(func(put PutFunc) error {
		var err error
		res, err = b.replay(ctx, put)
		return err
	})
	if err != nil {
		return res, err
	}

	b.logger.Info("backfill finished", "events", res.Events, "skipped", res.Skipped, "corrected", res.Corrected, "head", res.Head)
	return res, nil
}

func (b *Backfiller) replay(ctx context.Context, put PutFunc) (BackfillResult, error) {
	res := BackfillResult{FromBlock: b.startBlock}

	head, err := b.chain.BlockNumber(ctx)
	if err != nil {
		return res, errorsmod.Wrapf(types.ErrTransport, "chain head: %v", err)
	}
	res.Head = head
	b.logger.Debug("backfill started", "from", b.startBlock, "head", head)

	for from := b.startBlock; from <= head; {
		to := head
		if b.batchBlocks > 0 && from+b.batchBlocks-1 < head {
			to = from + b.batchBlocks - 1
		}

		logs, err := b.chain.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{b.contract},
			Topics:    [][]common.Hash{{contract.RegisteredTopic()}},
		})
		if err != nil {
			return res, errorsmod.Wrapf(types.ErrTransport, "filter logs %d-%d: %v", from, to, err)
		}

		sort.SliceStable(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})

		for _, l := range logs {
			if l.Removed {
				continue
			}
			oracle, err := contract.DecodeRegistration(l)
			if err != nil {
				b.logger.Error("skipping registration log", "block", l.BlockNumber, "index", l.Index, "error", err)
				res.Skipped++
				continue
			}
			if err := put(oracle); err != nil {
				return res, err
			}
			res.Events++
		}

		to++
		if to == 0 {
			break
		}
		from = to
	}

	if b.verify {
		corrected, err := b.verifyWith(ctx, put)
		res.Corrected = corrected
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// Verify compares every stored record with the contract's getMyIndexes view and
// overwrites records that disagree. View call failures are logged and skipped.
func (b *Backfiller) Verify(ctx context.Context) (int, error) {
	var corrected int
	err := b.store.Exclusive(func(put PutFunc) error {
		var err error
		corrected, err = b.verifyWith(ctx, put)
		return err
	})
	return corrected, err
}

func (b *Backfiller) verifyWith(ctx context.Context, put PutFunc) (int, error) {
	oracles, err := b.store.GetAll()
	if err != nil {
		return 0, err
	}

	data, err := contract.PackGetMyIndexes()
	if err != nil {
		return 0, err
	}

	corrected := 0
	for _, oracle := range oracles {
		to := b.contract
		ret, err := b.chain.CallContract(ctx, ethereum.CallMsg{From: oracle.Address, To: &to, Data: data}, nil)
		if err != nil {
			if ctx.Err() != nil {
				return corrected, ctx.Err()
			}
			b.logger.Error("verify call failed", "oracle", oracle.Address.Hex(), "error", err)
			continue
		}

		indexes, err := contract.UnpackGetMyIndexes(ret)
		if err != nil {
			b.logger.Error("verify decode failed", "oracle", oracle.Address.Hex(), "error", err)
			continue
		}

		if indexes == oracle.Indexes {
			continue
		}

		b.logger.Warn("registry out of date", "oracle", oracle.Address.Hex(), "stored", oracle.Indexes, "onchain", indexes)
		oracle.Indexes = indexes
		if err := put(oracle); err != nil {
			return corrected, err
		}
		corrected++
	}

	return corrected, nil
}
