package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agegate/internal/authgate"
	newshandler "agegate/internal/news/handler"
	newsprovider "agegate/internal/news/provider"
	newsservice "agegate/internal/news/service"
	"agegate/internal/platform/config"
	"agegate/internal/platform/health"
	"agegate/internal/platform/logger"
	"agegate/internal/platform/middleware"
	"agegate/internal/verification/handler"
	"agegate/internal/verification/metrics"
	"agegate/internal/verification/service"
	"agegate/internal/verification/store"
	"agegate/internal/verification/tracer"
	"agegate/internal/verification/verifier"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing age-gate server",
		"addr", cfg.Addr,
		"network", cfg.Network,
		"required_age", cfg.RequiredAge,
		"session_ttl", cfg.SessionTTL,
	)

	m := metrics.New()

	sessions := store.New(cfg.SessionTTL,
		store.WithLogger(log),
		store.WithEvictionHook(m.IncrementSessionsEvicted),
	)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sessions.RunSweeper(sweepCtx, cfg.SweepInterval)

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.TracingEnabled {
		tr = tracer.NewOTel()
		log.Info("opentelemetry tracing enabled")
	}

	verifierClient := verifier.New(verifier.Config{
		BaseURL:  cfg.VerifierServiceURL,
		Issuers:  cfg.TrustedIssuers(),
		DOBUpper: cfg.DOBUpperBound,
		Tracer:   tr,
	})

	svc := service.NewService(sessions, verifierClient, cfg.ResourceID, cfg.ContextString,
		service.WithLogger(log),
		service.WithMetrics(m),
	)

	gate := authgate.New(cfg.SessionSigningKey,
		authgate.WithTTL(cfg.CredentialTTL),
		authgate.WithLogger(log),
	)

	verificationHandler := handler.New(svc, gate, log, m)

	var providers []newsprovider.Provider
	if cfg.GNewsAPIKey != "" {
		providers = append(providers, newsprovider.NewGNews(cfg.GNewsAPIKey, nil))
	}
	if cfg.GuardianAPIKey != "" {
		providers = append(providers, newsprovider.NewGuardian(cfg.GuardianAPIKey, nil))
	}

	healthHandler := health.New(string(cfg.Network))
	healthHandler.RegisterCheck("session_store", func() error {
		_ = sessions.Len()
		return nil
	})

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(60 * time.Second))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	verificationHandler.Register(r)
	gate.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminTokenHash, log))
		verificationHandler.RegisterAdmin(r)
	})

	if len(providers) > 0 {
		newsSvc := newsservice.NewService(providers,
			newsservice.WithCacheTTL(cfg.NewsCacheTTL),
			newsservice.WithLogger(log),
		)
		newshandler.New(newsSvc, gate, log).Register(r)
	} else {
		log.Warn("no news provider API keys configured, /news disabled")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
