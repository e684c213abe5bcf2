package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	governanceengine "governor/contexts/treasury-governance/governance-engine"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "governor/internal/platform/httpserver/docs"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Addr string
	// JWTSecret enables HS256 bearer auth for mutations. When empty the
	// caller is taken from X-User-Id, which is only meant for local runs.
	JWTSecret []byte
	// AdminAccounts may call /v1/admin routes. Empty means nobody may.
	AdminAccounts []string
	Metrics       http.Handler
	Health        map[string]HealthCheck
}

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	governance governanceengine.Module
	auth       authenticator
	admins     map[string]struct{}
	metrics    http.Handler
	health     map[string]HealthCheck
}

func New(governance governanceengine.Module, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		governance: governance,
		auth:       authenticator{secret: opts.JWTSecret},
		admins:     make(map[string]struct{}, len(opts.AdminAccounts)),
		metrics:    opts.Metrics,
		health:     opts.Health,
	}
	for _, account := range opts.AdminAccounts {
		if account = strings.TrimSpace(account); account != "" {
			s.admins[account] = struct{}{}
		}
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
		"jwt_auth", s.auth.enabled(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("POST /v1/proposals", s.handleCreateProposal)
	s.mux.HandleFunc("GET /v1/proposals/next-id", s.handleNextProposalID)
	s.mux.HandleFunc("GET /v1/proposals/{proposal_id}", s.handleGetProposal)
	s.mux.HandleFunc("GET /v1/proposals/{proposal_id}/tally", s.handleGetTally)
	s.mux.HandleFunc("POST /v1/proposals/{proposal_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("POST /v1/proposals/{proposal_id}/execute", s.handleExecuteProposal)
	s.mux.HandleFunc("GET /v1/clock", s.handleClock)
	s.mux.HandleFunc("GET /v1/governance/config", s.handleGovernanceConfig)
	s.mux.HandleFunc("GET /v1/admin/proposals/unpaid", s.handleListUnpaid)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.health))}
	status := http.StatusOK
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
