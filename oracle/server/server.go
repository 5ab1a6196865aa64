// Package server exposes the daemon's admin HTTP interface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/rs/cors"

	"github.com/GPTx-global/flight-oracle/oracle/health"
	"github.com/GPTx-global/flight-oracle/oracle/log"
	"github.com/GPTx-global/flight-oracle/oracle/registry"
	"github.com/GPTx-global/flight-oracle/oracle/submitter"
	"github.com/GPTx-global/flight-oracle/oracle/types"
)

const (
	welcomeText = `Welcome to the flight status oracle API. Go to "/api"`
	apiHelpText = `API available parameters: "register", "consult"
  /api?register=1
      replay every oracle registration into the registry
  /api?consult=1&index=<0-255>&airline=<0x address>&flight=<0x bytes32 | code>[&timestamp=<unix>]
      answer a synthetic request with every oracle holding index
  /api/oracles
      list the registry
`
)

type Backfiller interface {
	Backfill(ctx context.Context) (registry.BackfillResult, error)
}

type Consultant interface {
	Consult(ctx context.Context, req types.StatusRequest) (submitter.Report, error)
}

type Registry interface {
	GetAll() ([]types.Oracle, error)
}

// MetricsSink renders collected metrics, armon/go-metrics' InmemSink satisfies it.
type MetricsSink interface {
	DisplayMetrics(resp http.ResponseWriter, req *http.Request) (interface{}, error)
}

type Server struct {
	backfill Backfiller
	consult  Consultant
	registry Registry
	metrics  MetricsSink
	health   *health.Checker
	origins  []string
	now      func() time.Time
	logger   hclog.Logger
}

func New(backfill Backfiller, consult Consultant, registry Registry, metrics MetricsSink, checker *health.Checker, corsOrigins []string) *Server {
	return &Server{
		backfill: backfill,
		consult:  consult,
		registry: registry,
		metrics:  metrics,
		health:   checker,
		origins:  corsOrigins,
		now:      time.Now,
		logger:   log.With("server"),
	}
}

// Handler returns the routes wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.text(welcomeText)).Methods(http.MethodGet)
	r.HandleFunc("/api", s.handleAPI).Methods(http.MethodGet)
	r.HandleFunc("/api/oracles", s.handleOracles).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.NotFoundHandler = s.text(welcomeText + "\n\n" + apiHelpText)
	r.MethodNotAllowedHandler = s.text(welcomeText + "\n\n" + apiHelpText)

	return cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) text(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, body)
	}
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("register") == "1":
		s.handleRegister(w, r)
	case q.Get("consult") == "1":
		s.handleConsult(w, r)
	default:
		writeText(w, apiHelpText)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	res, err := s.backfill.Backfill(r.Context())
	if err != nil {
		s.logger.Error("backfill failed", "error", err)
		writeText(w, fmt.Sprintf("Oracle registration failed after %d events: %v", res.Events, err))
		return
	}

	writeText(w, fmt.Sprintf("Oracles registered: %d events replayed from block %d to %d, %d skipped, %d corrected",
		res.Events, res.FromBlock, res.Head, res.Skipped, res.Corrected))
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	req, err := parseConsultRequest(r.URL.Query(), s.now())
	if err != nil {
		writeText(w, fmt.Sprintf("%v\n\n%s", err, apiHelpText))
		return
	}

	report, err := s.consult.Consult(r.Context(), req)
	if err != nil {
		s.logger.Error("consultation failed", "request", req.String(), "error", err)
		writeText(w, fmt.Sprintf("Consultation failed: %v", err))
		return
	}

	writeText(w, fmt.Sprintf("Registered oracles consulted: %d attempted, %d accepted, %d rejected, %d transport failures",
		report.Attempts(), report.Count(types.Accepted), report.Count(types.Rejected), report.Count(types.TransportFailure)))
}

type oracleView struct {
	Address string   `json:"address"`
	Indexes [3]uint8 `json:"indexes"`
}

func (s *Server) handleOracles(w http.ResponseWriter, _ *http.Request) {
	oracles, err := s.registry.GetAll()
	if err != nil {
		writeText(w, fmt.Sprintf("Registry unavailable: %v", err))
		return
	}

	views := make([]oracleView, 0, len(oracles))
	for _, o := range oracles {
		views = append(views, oracleView{Address: o.Address.Hex(), Indexes: o.Indexes})
	}
	writeJSON(w, views)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, map[string]interface{}{"healthy": true})
		return
	}
	writeJSON(w, map[string]interface{}{
		"healthy": s.health.IsHealthy(),
		"checks":  s.health.GetStatus(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeText(w, "metrics disabled")
		return
	}

	summary, err := s.metrics.DisplayMetrics(w, r)
	if err != nil {
		writeText(w, fmt.Sprintf("metrics unavailable: %v", err))
		return
	}
	writeJSON(w, summary)
}
