package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/wamesh-go/internal/core/service"
	"github.com/yndnr/wamesh-go/internal/infra/buildinfo"
	"github.com/yndnr/wamesh-go/internal/infra/confloader"
	"github.com/yndnr/wamesh-go/internal/infra/shutdown"
	"github.com/yndnr/wamesh-go/internal/server/config"
	"github.com/yndnr/wamesh-go/internal/server/httpserver"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
)

func runServer(c *cli.Context) error {
	ctx := c.Context

	cfg, loader, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting wamesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", loader.FilePath())
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	st, err := openStores(ctx, cfg, log, metrics)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}

	factory, err := transportFactory(cfg, log)
	if err != nil {
		_ = st.Close()
		return err
	}

	mgr, err := service.NewManager(service.Config{
		Registry:       st.registry,
		Ledger:         st.ledger,
		Store:          st.blobs,
		NewTransport:   factory,
		SendRate:       cfg.Session.SendRate,
		SendBurst:      cfg.Session.SendBurst,
		WaitTimeout:    cfg.Session.WaitTimeout,
		SyncJitterMax:  cfg.Session.SyncJitterMax,
		AsyncJitterMax: cfg.Session.AsyncJitterMax,
		Logger:         log,
		Metrics:        metrics,
	})
	if err != nil {
		_ = st.Close()
		return err
	}
	metrics.MustRegister(metric.NewCollector(mgr))

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)
	shutdownHandler.OnShutdown("stores", func(context.Context) error {
		return st.Close()
	})
	shutdownHandler.OnShutdown("sessions", mgr.Shutdown)

	restored, err := mgr.RestoreAll(ctx)
	if err != nil {
		log.Error("session restore failed", "error", err)
	}

	if cfg.Server.HTTP.Addr != "" {
		srv := httpserver.New(cfg.Server.HTTP.Addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Sessions: mgr,
			Metrics:  metrics,
			Logger:   log.With("component", "admin_http"),
		}))
		shutdownHandler.OnShutdown("admin http", srv.Shutdown)
		go func() {
			log.Info("admin server listening", "addr", cfg.Server.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil {
				log.Error("admin server error", "error", err)
				shutdownHandler.Trigger()
			}
		}()
	}

	if path := loader.FilePath(); path != "" {
		if err := watchLogLevel(path, loader, log, shutdownHandler); err != nil {
			log.Warn("config hot reload disabled", "error", err)
		}
	}

	log.Info("server started", "sessions", restored)
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// watchLogLevel re-applies log.level whenever the config file changes.
func watchLogLevel(path string, loader *confloader.Loader, log logger.Logger, h *shutdown.Handler) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Slog(log)))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(string) {
		level, err := loader.Reload("log.level")
		if err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if level == "" || level == logger.GetLevel() {
			return
		}
		logger.SetLevel(level)
		log.Info("log level changed", "level", logger.GetLevel())
	})
	w.StartAsync()
	h.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
	return nil
}
