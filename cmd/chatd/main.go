// Package main is the entry point for the chat session daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/chatcore/internal/api"
	"github.com/capitalize-ai/chatcore/internal/config"
	"github.com/capitalize-ai/chatcore/internal/handler"
	"github.com/capitalize-ai/chatcore/internal/middleware"
	natsclient "github.com/capitalize-ai/chatcore/internal/nats"
	"github.com/capitalize-ai/chatcore/internal/session"
	"github.com/capitalize-ai/chatcore/internal/stream"
	"github.com/capitalize-ai/chatcore/pkg/logger"
	"github.com/capitalize-ai/chatcore/pkg/tracing"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("chatd exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting chat session daemon", zap.Int64("self_id", cfg.SelfID))

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatd", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	client, err := api.NewHTTPClient(api.HTTPConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.APITimeout,
	})
	if err != nil {
		return err
	}
	dialer := stream.NewDialer(stream.Config{
		BaseURL:          cfg.StreamURL(),
		Token:            cfg.APIToken,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}, log.Named("stream"))

	ctrl := session.New(client, dialer, session.Identity{ID: cfg.SelfID, Username: cfg.SelfUsername}, session.Options{
		PollInterval:  cfg.PollInterval,
		Grace:         cfg.DeleteGrace,
		ReloadEvery:   cfg.ReloadEvery,
		VerifyDeletes: cfg.VerifyDeletes,
		Logger:        log.Named("session"),
	})

	var (
		natsClient *natsclient.Client
		projector  *natsclient.Projector
	)
	if cfg.NATSEnabled {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		natsClient, err = natsclient.Connect(connectCtx, natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     "chatd-" + strconv.FormatInt(cfg.SelfID, 10),
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err == nil {
			err = natsclient.EnsureStream(connectCtx, natsClient.JetStream())
		}
		cancel()
		if err != nil {
			if natsClient != nil {
				natsClient.Close()
			}
			return err
		}
		defer natsClient.Close()
		projector = natsclient.NewProjector(natsClient.JetStream(), cfg.SelfID, log)
	}

	// Health reports NATS only when it is in use.
	var natsCheck handler.Checker
	if natsClient != nil {
		natsCheck = natsClient
	}
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, log, ctrl, natsCheck),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := ctrl.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if projector != nil {
		restoreCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		threads, err := projector.LastThreads(restoreCtx)
		cancel()
		switch {
		case err != nil:
			log.Warn("failed to restore directory", zap.Error(err))
		case len(threads) > 0:
			if err := ctrl.Restore(ctx, threads); err != nil {
				log.Warn("failed to apply restored directory", zap.Error(err))
			}
		}
		g.Go(func() error { return projector.Run(gctx, ctrl) })
	}

	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

func newRouter(cfg *config.Config, log *logger.Logger, ctrl *session.Controller, natsCheck handler.Checker) http.Handler {
	health := handler.NewHealthHandler(ctrl, natsCheck)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, strconv.FormatInt(cfg.SelfID, 10)))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		handler.Routes(r, ctrl, log.Named("http"), cfg.SSEHeartbeat)
	})

	return r
}
