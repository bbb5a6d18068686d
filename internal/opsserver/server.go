// Package opsserver is the operational HTTP surface of the daemon: health
// and readiness probes, Prometheus metrics, process status, and the
// read-only fact-stream endpoints database mirrors consume. It exposes no
// mutating ledger operations; mutation goes through the submission protocol
// only.
package opsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/DataStream-Network/dat_ledger/internal/config"
	"github.com/DataStream-Network/dat_ledger/internal/fact"
	"github.com/DataStream-Network/dat_ledger/internal/ledger"
	"github.com/DataStream-Network/dat_ledger/internal/metrics"
	"github.com/DataStream-Network/dat_ledger/internal/node"
	"github.com/DataStream-Network/dat_ledger/pkg/logger"
)

// Server serves the ops and mirror endpoints.
type Server struct {
	cfg     config.ServerConfig
	led     *ledger.Ledger
	journal *fact.Journal
	node    *node.Node
	log     *logger.Logger

	httpServer *http.Server
	startedAt  time.Time
}

// New builds the server; call Start to begin listening.
func New(cfg config.ServerConfig, led *ledger.Ledger, journal *fact.Journal, n *node.Node, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("opsserver")
	}
	return &Server{cfg: cfg, led: led, journal: journal, node: n, log: log}
}

// Name implements system.Service.
func (s *Server) Name() string { return "ops-server" }

// Router assembles the route table and middleware chain.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/facts", s.handleFacts).Methods(http.MethodGet)
	v1.HandleFunc("/facts/tail", s.handleFactsTail).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id:[0-9]+}", s.handleGetAsset).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/balances/{account}", s.handleBalance).Methods(http.MethodGet)

	limiter := newRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst, s.log)
	return metrics.InstrumentHandler(limiter.handler(r))
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.cfg.ListenAddr).Info("ops server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("ops server exited")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
