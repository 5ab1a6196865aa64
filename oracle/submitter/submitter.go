package submitter

import (
	"context"
	"errors"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-hclog"
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/flight-oracle/oracle/contract"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/signer"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// revertErrorCode is the JSON-RPC error code nodes return for a reverted call.
const revertErrorCode = 3

const defaultPollInterval = 500 * time.Millisecond

// ReceiptReader looks up mined transactions. ethclient.Client satisfies it.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Submitter sends submitOracleResponse transactions, one per (request, oracle), and waits
// for them to be mined.
type Submitter struct {
	signer         signer.Signer
	receipts       ReceiptReader
	contract       common.Address
	receiptTimeout time.Duration
	pollInterval   time.Duration
	concurrency    int
	logger         hclog.Logger
}

func New(s signer.Signer, receipts ReceiptReader, contractAddr common.Address, receiptTimeout time.Duration, concurrency int) *Submitter {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Submitter{
		signer:         s,
		receipts:       receipts,
		contract:       contractAddr,
		receiptTimeout: receiptTimeout,
		pollInterval:   defaultPollInterval,
		concurrency:    concurrency,
		logger:         log.With("submitter"),
	}
}

// WithPollInterval changes how often receipts are polled.
func (s *Submitter) WithPollInterval(interval time.Duration) *Submitter {
	s.pollInterval = interval
	return s
}

// Submit attempts a single response from oracle and classifies what happened to it.
func (s *Submitter) Submit(ctx context.Context, oracle types.Oracle, req types.StatusRequest, result types.Result) types.Outcome {
	err := s.submit(ctx, oracle, req, result)
	outcome := Classify(err)

	metrics.IncrCounterWithLabels(types.MetricSubmission, 1, []metrics.Label{{Name: "outcome", Value: outcome.String()}})

	switch outcome {
	case types.Accepted:
		s.logger.Debug("response accepted", "oracle", oracle.Address.Hex(), "index", req.Index, "status", result.Status)
	case types.Rejected:
		s.logger.Info("response rejected", "oracle", oracle.Address.Hex(), "index", req.Index,
			"error", errorsmod.Wrap(types.ErrContractRejection, err.Error()))
	default:
		s.logger.Warn("response not delivered", "oracle", oracle.Address.Hex(), "index", req.Index,
			"error", errorsmod.Wrap(types.ErrTransport, err.Error()))
	}

	return outcome
}

func (s *Submitter) submit(ctx context.Context, oracle types.Oracle, req types.StatusRequest, result types.Result) error {
	data, err := contract.PackSubmitResponse(req, result)
	if err != nil {
		return err
	}

	hash, err := s.signer.Send(ctx, oracle.Address, s.contract, data)
	if err != nil {
		return err
	}

	receipt, err := s.waitMined(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return errorsmod.Wrapf(types.ErrContractRejection, "transaction %s reverted in block %v", hash.Hex(), receipt.BlockNumber)
	}

	return nil
}

// waitMined polls for the receipt of hash until it shows up or the receipt timeout passes.
func (s *Submitter) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if s.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.receiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.receipts.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.logger.Trace("receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, errorsmod.Wrapf(types.ErrTransport, "waiting for receipt of %s: %v", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Classify maps a submission error to its outcome: contract reverts are rejections,
// everything else that kept the response off the ledger is a transport failure.
func Classify(err error) types.Outcome {
	if err == nil {
		return types.Accepted
	}
	if errors.Is(err, types.ErrContractRejection) {
		return types.Rejected
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return types.Rejected
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "vm exception while processing transaction: revert") {
		return types.Rejected
	}

	return types.TransportFailure
}

// Entry is what happened to one oracle's response.
type Entry struct {
	Oracle  types.Oracle
	Result  types.Result
	Outcome types.Outcome
}

// Report collects every attempt made for one request, keyed by oracle address.
type Report struct {
	Request types.StatusRequest
	Entries map[common.Address]Entry
}

// Count returns how many attempts ended with outcome.
func (r Report) Count(outcome types.Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// Attempts is the number of oracles a response was attempted for.
func (r Report) Attempts() int {
	return len(r.Entries)
}

// EvaluateFunc computes the answer oracle gives for req.
type EvaluateFunc func(oracle types.Oracle, req types.StatusRequest) types.Result

// SubmitAll attempts a response from every oracle exactly once, concurrently. A failed
// attempt never cancels the others, and SubmitAll returns only after all of them finished.
func (s *Submitter) SubmitAll(ctx context.Context, oracles []types.Oracle, req types.StatusRequest, evaluate EvaluateFunc) Report {
	entries := cmap.New[Entry]()

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, oracle := range oracles {
		oracle := oracle
		g.Go(func() error {
			result := evaluate(oracle, req)
			entries.Set(oracle.Address.Hex(), Entry{
				Oracle:  oracle,
				Result:  result,
				Outcome: s.Submit(ctx, oracle, req, result),
			})
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Request: req, Entries: make(map[common.Address]Entry, entries.Count())}
	for _, e := range entries.Items() {
		report.Entries[e.Oracle.Address] = e
	}

	return report
}
