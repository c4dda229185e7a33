package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftstake/core/events"
	"nftstake/core/state"
	"nftstake/gateway/auth"
	"nftstake/gateway/middleware"
	"nftstake/native/common"
	"nftstake/observability/eventlog"
	"nftstake/services/stakingd/host"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Route groups used for rate limits and request metrics.
const (
	GroupLedger = "ledger"
	GroupAdmin  = "admin"
	GroupQuery  = "query"
	GroupAuth   = "auth"
)

type Config struct {
	Host *host.Host
	// Store, when set, enables the state root endpoint.
	Store       *state.Store
	Broadcaster *events.Broadcaster
	// Archive is optional; without it the event history endpoint answers 404.
	Archive *eventlog.Archive
	Pauses  *common.PauseSet
	Login   *auth.Authenticator
	Tokens  middleware.TokenIssuer
	Auth    middleware.AuthConfig
	// RateLimits are keyed by route group.
	RateLimits     map[string]middleware.RateLimit
	CORS           middleware.CORSConfig
	MetricsEnabled bool
	LogRequests    bool
	ServiceName    string
	Logger         *slog.Logger
	Clock          func() time.Time
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	handler http.Handler
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stakingd"
	}
	logger := cfg.Logger.With("component", "api")
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimits, logger),
		obs:     middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: cfg.ServiceName, LogRequests: cfg.LogRequests}, logger),
	}
	s.handler = otelhttp.NewHandler(s.routes(), cfg.ServiceName)
	return s
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cfg.CORS))

	r.Get("/healthz", s.handleHealth)
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(open chi.Router) {
			open.Use(s.obs.Middleware(GroupAuth), s.limiter.Middleware(GroupAuth))
			open.Post("/auth/login", s.handleLogin)
		})

		v1.Group(func(q chi.Router) {
			q.Use(s.obs.Middleware(GroupQuery), s.limiter.Middleware(GroupQuery))
			q.Get("/positions/{id}", s.handlePosition)
			q.Get("/accounts/{addr}", s.handleAccount)
			q.Get("/accounts/{addr}/pending", s.handlePendingRewards)
			q.Get("/stats", s.handleStats)
			q.Get("/governance", s.handleGovernance)
			q.Get("/state/root", s.handleStateRoot)
			q.Get("/admin/proposals", s.handleListProposals)
			q.Get("/admin/proposals/{tag}", s.handleProposal)
			q.Get("/events", s.handleEventHistory)
			q.Get("/events/ws", s.handleEventStream)
		})

		v1.Group(func(ledger chi.Router) {
			ledger.Use(s.auth.Middleware(), s.obs.Middleware(GroupLedger), s.limiter.Middleware(GroupLedger))
			ledger.Post("/stake", s.handleStake)
			ledger.Post("/unstake", s.handleUnstake)
			ledger.Post("/claim", s.handleClaim)
			ledger.Post("/batch/stake", s.handleBatchStake)
			ledger.Post("/batch/unstake", s.handleBatchUnstake)
			ledger.Post("/rewards/deposit", s.handleDeposit)
		})

		v1.Group(func(admin chi.Router) {
			admin.Use(s.auth.Middleware(), s.obs.Middleware(GroupAdmin), s.limiter.Middleware(GroupAdmin))
			admin.Post("/admin/initialize", s.handleInitialize)
			admin.Post("/admin/ownership", s.handleTransferOwnership)
			admin.Post("/admin/reward-rate", s.handleSetRewardRate)
			admin.Post("/admin/pause", s.handlePause)
			admin.Post("/admin/unpause", s.handleUnpause)
			admin.Post("/admin/emergency-withdraw", s.handleEmergencyWithdraw)
			admin.Post("/admin/proposals", s.handlePropose)
			admin.Post("/admin/proposals/{tag}/execute", s.handleExecute)
		})

		v1.Group(func(ops chi.Router) {
			ops.Use(s.auth.Middleware(middleware.ScopeOperator), s.obs.Middleware(GroupAdmin))
			ops.Get("/debug/invariants", s.handleInvariants)
			ops.Get("/operator/pauses", s.handleOperatorPauses)
			ops.Post("/operator/pauses", s.handleSetOperatorPause)
		})
	})
	return r
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": s.cfg.Host.Now()})
}
