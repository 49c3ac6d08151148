package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jensholdgaard/auction-house/internal/account"
	"github.com/jensholdgaard/auction-house/internal/auction"
	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/config"
	"github.com/jensholdgaard/auction-house/internal/health"
	"github.com/jensholdgaard/auction-house/internal/leader"
	"github.com/jensholdgaard/auction-house/internal/metrics"
	"github.com/jensholdgaard/auction-house/internal/session"
	"github.com/jensholdgaard/auction-house/internal/store"
	"github.com/jensholdgaard/auction-house/internal/sweeper"
	"github.com/jensholdgaard/auction-house/internal/telemetry"
	"github.com/jensholdgaard/auction-house/internal/web"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/auction-house/internal/store/memory"
	_ "github.com/jensholdgaard/auction-house/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Export over OTLP when an endpoint is configured, otherwise keep
	// telemetry in process and log JSON to stderr.
	tp := telemetry.NewLocalProvider(cfg.Telemetry, os.Stderr)
	if cfg.Telemetry.OTLPEndpoint != "" {
		exported, setupErr := telemetry.Setup(ctx, cfg.Telemetry)
		if setupErr != nil {
			tp.Logger.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", setupErr))
		} else {
			tp = exported
		}
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	accounts := account.NewManager(repos.Users, logger, tp.TracerProvider)
	sessions := session.NewManager(repos.Sessions, cfg.Session, logger, tp.TracerProvider, clk)
	auctions, err := auction.NewManager(repos.Auctions, cfg.Auction, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating auction manager: %w", err)
	}

	m := metrics.New()
	healthHandler := health.NewHandler(clk, health.DefaultTimeout,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	srv := web.NewServer(cfg.Server, cfg.Session, accounts, sessions, auctions, m.Middleware, logger, tp.TracerProvider, clk)
	router := srv.Router()
	router.HandleFunc("/healthz", healthHandler.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.ReadinessHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port), slog.String("version", version))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErr <- listenErr
		}
		close(serveErr)
	}()

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(cfg.Sweeper, repos.Auctions, sessions, m, logger, tp.TracerProvider, clk)
		go func() {
			if leaderErr := leader.RunOrDirect(ctx, cfg.LeaderElection, logger, func(ctx context.Context) {
				if runErr := sw.Run(ctx); runErr != nil {
					logger.ErrorContext(ctx, "sweeper stopped", slog.Any("error", runErr))
				}
			}); leaderErr != nil {
				logger.ErrorContext(ctx, "leader election", slog.Any("error", leaderErr))
			}
		}()
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctiond is running")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
