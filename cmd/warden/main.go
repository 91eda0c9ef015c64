package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/app"
	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/observability"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", "warden").
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = version
	}
	otelCfg.Environment = cfg.Audit.Environment
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		_ = observability.ShutdownOTel(context.Background(), providers, logger)
		return err
	}

	handler, err := a.Server()
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	scheduler, err := a.Scheduler(ctx)
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// stop taking requests, then let running jobs finish, then flush the
	// audit queue and close the stores
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("http server", httpServer.Shutdown)
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("app", a.Close)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("warden listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown.Shutdown(context.WithoutCancel(ctx))
	})

	g.Go(func() error {
		a.ReportDBStats(gctx, 15*time.Second)
		return nil
	})

	a.Postgres.StartHealthCheckRoutine(gctx, 30*time.Second)
	scheduler.Start()

	if a.DeadLetter != nil {
		async.SafeGo(gctx, logger, 5*time.Minute, "audit dead-letter replay", func(ctx context.Context) error {
			n, err := a.DeadLetter.Replay(ctx, a.AuditStore)
			if n > 0 {
				logger.WithField("replayed", n).Info("replayed spooled audit events")
			}
			return err
		})
	}
	if cfg.Sync.Schedule != "" {
		async.SafeGo(gctx, logger, time.Hour, "startup identity sync", a.RunSync)
	}

	return g.Wait()
}
