package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nftstake/observability"
	"nftstake/observability/logging"
)

type ObservabilityConfig struct {
	ServiceName string
	LogRequests bool
}

// Observability traces each request and records its outcome in the module
// metrics registry.
type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
	tracer trace.Tracer
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stakingd"
	}
	return &Observability{cfg: cfg, logger: logger, tracer: otel.Tracer(cfg.ServiceName)}
}

// Middleware labels requests with module and the matched chi route pattern.
func (o *Observability) Middleware(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), module+" "+r.Method, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("stakingd.module", module),
			))
			defer span.End()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", recorder.status),
			)
			duration := time.Since(start)
			observability.ModuleMetrics().Observe(module, r.Method+" "+route, recorder.status, duration)
			if o.cfg.LogRequests {
				o.logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", recorder.status,
					"duration_ms", float64(duration.Microseconds())/1000,
					logging.MaskField("authorization", r.Header.Get("Authorization")))
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
