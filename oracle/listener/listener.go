// Package listener follows the contract's log stream and turns every OracleRequest into a
// consultation and every OracleRegistered into a registry update.
package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-hclog"

	"github.com/GPTx-global/flight-oracle/oracle/contract"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/retry"
	"github.com/GPTx-global/flight-oracle/oracle/submitter"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

type State int32

const (
	Disconnected State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "disconnected"
}

// LogSubscriber opens a push subscription for contract logs. ethclient.Client satisfies it
// when dialed over websocket or IPC.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
}

type Consultant interface {
	Consult(ctx context.Context, req types.StatusRequest) (submitter.Report, error)
}

type Registry interface {
	Put(oracle types.Oracle) error
}

type Config struct {
	QueueSize   int
	Workers     int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type Listener struct {
	chain    LogSubscriber
	contract common.Address
	consult  Consultant
	registry Registry
	config   Config

	state  atomic.Int32
	logger hclog.Logger
}

func New(chain LogSubscriber, contractAddr common.Address, consult Consultant, registry Registry, config Config) *Listener {
	return &Listener{
		chain:    chain,
		contract: contractAddr,
		consult:  consult,
		registry: registry,
		config:   config,
		logger:   log.With("listener", "contract", contractAddr.Hex()),
	}
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) setState(s State) {
	if State(l.state.Swap(int32(s))) != s {
		l.logger.Info("state changed", "state", s)
	}
}

func (l *Listener) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{contract.RequestTopic(), contract.RegisteredTopic()}},
	}
}

// Run subscribes from the latest block and processes logs until ctx is done. A dropped
// subscription is re-established with capped exponential backoff. Run returns nil when ctx
// is cancelled, or the storage error that prevented recording a live registration.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	pool := newWorkerPool(l.config.QueueSize, l.config.Workers)
	pool.Start(ctx, l.handleRequest)
	defer func() {
		cancel()
		pool.Stop()
		l.setState(Disconnected)
	}()

	backoff := retry.SubscriptionConfig(l.config.BackoffBase, l.config.BackoffMax)
	drops := 0

	for {
		var (
			sub  ethereum.Subscription
			logs chan ethtypes.Log
		)
		err := retry.Do(ctx, backoff, func() error {
			logs = make(chan ethtypes.Log, l.config.QueueSize)
			s, err := l.chain.SubscribeFilterLogs(ctx, l.query(), logs)
			if err != nil {
				return err
			}
			sub = s
			return nil
		}, retry.Always)
		if err != nil {
			// only a cancelled ctx ends an unlimited retry
			return nil
		}
		l.setState(Subscribed)

		err = l.consume(ctx, sub, logs, pool, &drops)
		sub.Unsubscribe()
		l.setState(Disconnected)

		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		drops++
		metrics.IncrCounter(types.MetricResubscribe, 1)
		delay := retry.Delay(backoff, drops)
		l.logger.Warn("subscription dropped, resubscribing", "drops", drops, "backoff", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// consume returns nil when the subscription fails and a non-nil error only for failures
// that must stop the listener.
func (l *Listener) consume(ctx context.Context, sub ethereum.Subscription, logs <-chan ethtypes.Log, pool *workerPool, drops *int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			l.logger.Warn("subscription error", "error", err)
			return nil
		case lg := <-logs:
			*drops = 0
			if err := l.dispatch(ctx, lg, pool); err != nil {
				return err
			}
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, lg ethtypes.Log, pool *workerPool) error {
	if lg.Removed {
		l.logger.Debug("ignoring removed log", "tx", lg.TxHash.Hex(), "block", lg.BlockNumber)
		return nil
	}

	switch {
	case contract.IsRequest(lg):
		metrics.IncrCounterWithLabels(types.MetricEvent, 1, []metrics.Label{{Name: "event", Value: types.EventOracleRequest}})
		if err := pool.Enqueue(ctx, lg); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case contract.IsRegistration(lg):
		metrics.IncrCounterWithLabels(types.MetricEvent, 1, []metrics.Label{{Name: "event", Value: types.EventOracleRegistered}})
		// registrations are applied in arrival order so the last one wins
		oracle, err := contract.DecodeRegistration(lg)
		if err != nil {
			l.logger.Warn("skipping undecodable registration", "tx", lg.TxHash.Hex(), "error", err)
			return nil
		}
		if err := l.registry.Put(oracle); err != nil {
			l.logger.Error("failed to record registration", "oracle", oracle.Address.Hex(), "error", err)
			return err
		}
		l.logger.Info("oracle registered", "oracle", oracle.String())
	default:
		l.logger.Debug("ignoring unrelated log", "topics", lg.Topics)
	}

	return nil
}

func (l *Listener) handleRequest(ctx context.Context, lg ethtypes.Log) {
	req, err := contract.DecodeRequest(lg)
	if err != nil {
		l.logger.Warn("skipping undecodable request", "tx", lg.TxHash.Hex(), "block", lg.BlockNumber, "error", err)
		return
	}

	if _, err := l.consult.Consult(ctx, req); err != nil {
		l.logger.Error("request failed", "request", req.String(), "error", err)
	}
}
