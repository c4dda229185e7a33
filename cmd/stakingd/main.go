package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nftstake/config"
	"nftstake/gateway/middleware"
	"nftstake/observability/logging"
	telemetry "nftstake/observability/otel"
	"nftstake/services/stakingd/node"
	"nftstake/services/stakingd/server"
)

func main() {
	var cfgPath string
	var genesisPath string
	var logRequests bool
	flag.StringVar(&cfgPath, "config", "./stakingd.toml", "path to node configuration")
	flag.StringVar(&genesisPath, "genesis", "", "genesis document applied on first boot (overrides config)")
	flag.BoolVar(&logRequests, "log-requests", false, "log every API request")
	flag.Parse()

	if err := run(cfgPath, genesisPath, logRequests); err != nil {
		fmt.Fprintf(os.Stderr, "stakingd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, genesisPath string, logRequests bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if genesisPath != "" {
		cfg.GenesisFile = genesisPath
	}

	obs := cfg.Observability
	logger := logging.SetupWithOptions(obs.ServiceName, cfg.Environment, logging.Options{
		File:       obs.LogFile,
		MaxSizeMB:  obs.LogMaxSizeMB,
		MaxBackups: obs.LogMaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: obs.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    obs.OTLPEndpoint,
		Insecure:    obs.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(obs.OTLPHeaders),
		Metrics:     true,
		Traces:      true,
		SampleRatio: obs.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	secret, err := cfg.TokenSecret()
	if err != nil {
		return err
	}

	n, err := node.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("node close failed", "error", err)
		}
	}()
	if _, err := n.ApplyGenesis(); err != nil {
		return err
	}
	if err := n.Host.CheckInvariants(); err != nil {
		return fmt.Errorf("stored ledger failed invariant check: %w", err)
	}
	if err := n.SyncMetrics(); err != nil {
		return err
	}

	skew := time.Duration(cfg.Auth.ClockSkewSecs) * time.Second
	limit := middleware.RateLimit{RequestsPerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst}
	srv := server.New(server.Config{
		Host:        n.Host,
		Store:       n.Store,
		Broadcaster: n.Broadcaster,
		Archive:     n.Archive,
		Pauses:      n.Pauses,
		Login:       n.Login,
		Tokens: middleware.TokenIssuer{
			Secret:   secret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			TTL:      time.Duration(cfg.Auth.TokenTTLSecs) * time.Second,
		},
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: secret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  skew,
		},
		RateLimits: map[string]middleware.RateLimit{
			server.GroupLedger: limit,
			server.GroupAdmin:  limit,
			server.GroupQuery:  {RequestsPerSecond: limit.RequestsPerSecond * 5, Burst: limit.Burst * 5},
			server.GroupAuth:   limit,
		},
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		MetricsEnabled: obs.MetricsEnabled,
		LogRequests:    logRequests,
		ServiceName:    obs.ServiceName,
		Logger:         logger,
	})

	logger.Info("stakingd starting",
		"listen", cfg.ListenAddress,
		"backend", cfg.Backend,
		"archive", cfg.Archive.Driver,
		"paused_modules", cfg.PausedModules)
	if err := srv.Run(ctx, cfg.ListenAddress); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("stakingd stopped")
	return nil
}
