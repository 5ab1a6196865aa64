// Package consult answers one status request with every oracle that holds its index.
package consult

import (
	"context"
	"time"

	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"

	"github.com/GPTx-global/flight-oracle/oracle/evaluator"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/matcher"
	"github.com/GPTx-global/flight-oracle/oracle/submitter"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

// Registry is the read side of the oracle registry.
type Registry interface {
	GetAll() ([]types.Oracle, error)
}

// Submitter fans a request out to a set of oracles.
type Submitter interface {
	SubmitAll(ctx context.Context, oracles []types.Oracle, req types.StatusRequest, evaluate submitter.EvaluateFunc) submitter.Report
}

type Consultant struct {
	registry  Registry
	evaluator evaluator.Evaluator
	submitter Submitter
	logger    hclog.Logger
}

func New(registry Registry, eval evaluator.Evaluator, sub Submitter) *Consultant {
	return &Consultant{
		registry:  registry,
		evaluator: eval,
		submitter: sub,
		logger:    log.With("consult"),
	}
}

// Consult reads a registry snapshot, picks the oracles assigned req.Index and submits a response
// from each of them. It returns after every attempt finished. An error means the registry
// could not be read and nothing was submitted.
func (c *Consultant) Consult(ctx context.Context, req types.StatusRequest) (submitter.Report, error) {
	defer metrics.MeasureSince(types.MetricConsultation, time.Now())

	snapshot, err := c.registry.GetAll()
	if err != nil {
		return submitter.Report{Request: req}, err
	}

	eligible := matcher.FindEligible(snapshot, req.Index)
	if len(eligible) == 0 {
		c.logger.Debug("no oracle holds index", "request", req.String())
		return submitter.Report{Request: req, Entries: map[common.Address]submitter.Entry{}}, nil
	}

	report := c.submitter.SubmitAll(ctx, eligible, req, func(_ types.Oracle, req types.StatusRequest) types.Result {
		return c.evaluator.EvaluateRequest(req)
	})

	c.logger.Info("request answered",
		"index", req.Index,
		"flight", req.Flight.Hex(),
		"oracles", report.Attempts(),
		"accepted", report.Count(types.Accepted),
		"rejected", report.Count(types.Rejected),
		"transport_failures", report.Count(types.TransportFailure),
	)

	return report, nil
}
