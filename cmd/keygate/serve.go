// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/auth/postgres"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/httpapi"
	"github.com/keygate/keygate/internal/logging"
	"github.com/keygate/keygate/internal/observability"
	"github.com/keygate/keygate/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP server that handles token grants, identity lookup,
and logout, plus a separate metrics/health endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	logging.SetDefault("keygate", version, cfg.Log.Format)
	logger := slog.Default()

	slog.Info("starting keygate",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
	)

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("database connected")

	signer, err := auth.NewHS256Signer(cfg.JWT.Secret)
	if err != nil {
		return err
	}

	limiter := auth.NewPasswordGrantLimiter(auth.RateLimitOptions{
		MaxAttempts:   cfg.RateLimit.MaxAttempts,
		WindowSeconds: cfg.RateLimit.WindowSeconds,
		BlockSeconds:  cfg.RateLimit.BlockSeconds,
	})

	svc, err := auth.NewService(
		postgres.NewStore(pool),
		auth.NewBcryptHasher(0),
		signer,
		limiter,
		auth.Options{
			AccessTokenTTL:          cfg.AccessTokenTTL(),
			SessionLifetime:         cfg.SessionLifetime(),
			RefreshTokenIdleTimeout: cfg.RefreshIdleTimeout(),
			Audience:                cfg.JWT.Audience,
			Issuer:                  cfg.JWT.Issuer,
			ConfirmationPolicy:      auth.ConfirmationPolicy(cfg.Sessions.ConfirmationPolicy),
		},
		logger,
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer *observability.Server
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(ctx, time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	var metrics *observability.Metrics
	if obsServer != nil {
		metrics = obsServer.Metrics()
	}

	apiServer, err := httpapi.NewServer(cfg.Server.ListenAddr, svc, signer, metrics, httpapi.Options{
		Routes: httpapi.Routes{
			Token:  cfg.Routes.Token,
			Me:     cfg.Routes.Me,
			Logout: cfg.Routes.Logout,
		},
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, logger)
	if err != nil {
		return err
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			stopObsServer(obsServer)
		}
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "auth-api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Keygate started")
	slog.Info("auth API ready", "addr", apiServer.Addr())

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping auth API server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

func stopObsServer(s *observability.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.Stop(shutdownCtx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels the run context when a server reports a fatal
// error. A closed channel means the server stopped gracefully.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
