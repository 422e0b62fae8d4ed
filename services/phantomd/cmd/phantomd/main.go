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

	"go.uber.org/zap"

	"phantomd/pkg/bus"
	"phantomd/pkg/db"
	"phantomd/pkg/identity"
	"phantomd/pkg/telemetry"
	"phantomd/services/factory"
	"phantomd/services/orchestrator"
	"phantomd/services/phantomd/internal/config"
	"phantomd/services/phantomd/internal/health"
	"phantomd/services/sensor"
)

func main() {
	if err := run("phantomd"); err != nil {
		fmt.Fprintf(os.Stderr, "phantomd: %v\n", err)
		os.Exit(1)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug, _ := strconv.ParseBool(os.Getenv("PHANTOMD_DEBUG"))
	logger, err := telemetry.NewLogger(debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	middleware := func(h http.Handler) http.Handler { return h }
	if telemetry.Enabled() {
		shutdown, mw, err := telemetry.Init(ctx, serviceName, logger)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		middleware = mw
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", zap.Error(err))
			}
		}()
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	provider := identity.NewProvider()
	if cfg.Seed != 0 {
		provider = identity.NewSeededProvider(cfg.Seed)
		logger.Debug("using fixed identity seed", zap.Int64("seed", cfg.Seed))
	}

	f, err := factory.New(factory.Config{
		TrapsDir:     cfg.Paths.TrapsDir,
		TemplatesDir: cfg.Paths.TemplatesDir,
		ManifestPath: cfg.Paths.Manifest,
	}, provider, logger.Named("factory"))
	if err != nil {
		return fmt.Errorf("create factory: %w", err)
	}

	summary, err := f.DeployTraps(ctx)
	if err != nil {
		return fmt.Errorf("deploy traps: %w", err)
	}
	if summary.Deployed == 0 {
		return errors.New("no traps deployed, refusing to start")
	}

	artifacts, err := f.Inventory()
	if err != nil {
		return fmt.Errorf("inventory: %w", err)
	}

	var journal *orchestrator.Journal
	if cfg.Journal.DSN != "" {
		pool, err := db.Open(ctx, cfg.Journal.DSN)
		if err != nil {
			logger.Warn("journal database unavailable, alerts will not be recorded", zap.Error(err))
		} else {
			defer pool.Close()
			if err := db.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate journal: %w", err)
			}
			journal, err = orchestrator.NewJournal(pool, logger)
			if err != nil {
				return err
			}
			if err := journal.RecordRun(ctx, summary, artifacts); err != nil {
				logger.Warn("record deployment", zap.Error(err))
			}
		}
	}

	var alertBus *bus.Bus
	if cfg.Alerting.NATSURL != "" {
		alertBus, err = bus.New(cfg.Alerting.NATSURL)
		if err != nil {
			logger.Warn("alert bus unavailable, alerts will only be logged", zap.Error(err))
		} else {
			defer alertBus.Close()
			if err := alertBus.EnsureStream(ctx, cfg.Alerting.Stream, cfg.Alerting.Subject); err != nil {
				logger.Warn("ensure alert stream", zap.Error(err))
			}
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Bus:     alertBus,
		Subject: cfg.Alerting.Subject,
		Journal: journal,
		System:  f.System(),
		Logger:  logger.Named("orchestrator"),
	})
	orch.SetInventory(cfg.Paths.TrapsDir, artifacts)

	hs, err := health.New(health.Config{Factory: f, Logger: logger})
	if err != nil {
		return fmt.Errorf("create health server: %w", err)
	}
	hs.SetSummary(summary)
	routes, err := hs.Routes()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    cfg.Health.Listen,
		Handler: middleware(routes),
	}

	errCh := make(chan error, 3)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	logger.Info("health api listening", zap.String("addr", server.Addr))

	if cfg.Sensor.Enabled {
		watch, err := sensor.New(cfg.Paths.TrapsDir, cfg.Sensor.Debounce, logger.Named("sensor"))
		if err != nil {
			return fmt.Errorf("create sensor: %w", err)
		}
		go func() {
			if err := watch.Run(ctx); err != nil {
				errCh <- fmt.Errorf("sensor: %w", err)
			}
		}()
		go func() {
			if err := orch.Run(ctx, watch.Events()); err != nil {
				errCh <- fmt.Errorf("orchestrator: %w", err)
			}
		}()
		logger.Info("sensor armed",
			zap.String("root", cfg.Paths.TrapsDir),
			zap.Duration("debounce", cfg.Sensor.Debounce))
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
