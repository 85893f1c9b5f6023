package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/wamesh-go/internal/core/service"
	"github.com/yndnr/wamesh-go/internal/infra/confloader"
	"github.com/yndnr/wamesh-go/internal/server/config"
	"github.com/yndnr/wamesh-go/internal/storage"
	"github.com/yndnr/wamesh-go/internal/storage/memory"
	"github.com/yndnr/wamesh-go/internal/storage/postgres"
	"github.com/yndnr/wamesh-go/internal/storage/redisstore"
	"github.com/yndnr/wamesh-go/internal/telemetry/logger"
	"github.com/yndnr/wamesh-go/internal/telemetry/metric"
	"github.com/yndnr/wamesh-go/internal/transport"
	"github.com/yndnr/wamesh-go/internal/transport/loopback"
	"github.com/yndnr/wamesh-go/internal/transport/wsbridge"
)

// loadConfig layers defaults, .env files, the config file and the
// environment, then validates the result.
func loadConfig(c *cli.Context) (*config.ServerConfig, *confloader.Loader, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithDotEnv(c.StringSlice("env-file")...)}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// stores bundles the persistence layer selected by configuration.
type stores struct {
	engine   *storage.BadgerEngine
	blobs    *storage.BlobStore
	registry service.Registry
	ledger   service.ContactLedger

	closers []func() error
}

// Close releases backends in reverse order of opening.
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// openStores opens Badger and any external backends the configuration
// selects. metrics may be nil for offline commands.
func openStores(ctx context.Context, cfg *config.ServerConfig, log logger.Logger, metrics *metric.Registry) (_ *stores, err error) {
	slogger := logger.Slog(log)
	clock := clockwork.NewRealClock()
	st := &stores{}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	kvCfg := storage.DefaultKVConfig(cfg.Storage.DataDir)
	kvCfg.Badger.GCInterval = cfg.Storage.GCInterval
	kvCfg.Badger.GCThreshold = cfg.Storage.GCThreshold
	kvCfg.Badger.SyncWrites = cfg.Storage.SyncWrites
	st.engine, err = storage.NewBadgerEngine(kvCfg, slogger)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, st.engine.Close)
	if metrics != nil {
		st.engine.RegisterMetrics(metrics.Prometheus())
	}

	cipherType, err := storage.ParseCipherType(cfg.Storage.Cipher)
	if err != nil {
		return nil, err
	}
	sealer, err := storage.NewSealer(cfg.Storage.EncryptionKey, cipherType)
	if err != nil {
		return nil, err
	}
	st.blobs = storage.NewBlobStore(st.engine,
		storage.WithSealer(sealer),
		storage.WithBlobLogger(slogger),
		storage.WithBlobMetrics(metrics),
		storage.WithMaxBlobSize(cfg.Storage.MaxBlobSize),
	)

	var pool *pgxpool.Pool
	if cfg.Registry.Backend == config.BackendPostgres || cfg.Contacts.Backend == config.BackendPostgres {
		pool, err = postgres.Connect(ctx, cfg.Postgres.URL, slogger)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool, slogger); err != nil {
			return nil, err
		}
	}

	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		st.registry = postgres.NewRegistry(pool)
	case config.BackendMemory:
		st.registry = memory.NewRegistry(clock)
	default:
		st.registry = storage.NewRegistry(st.engine, clock)
	}

	switch cfg.Contacts.Backend {
	case config.BackendPostgres:
		st.ledger = postgres.NewContactLedger(pool)
	case config.BackendRedis:
		hook := redisstore.NewCircuitBreakerHook(redisstore.BreakerSettings(slogger, metrics))
		rdb, err := redisstore.NewClient(ctx, cfg.Redis.URL, hook)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, rdb.Close)
		st.ledger = redisstore.NewContactLedger(rdb, clock)
	case config.BackendMemory:
		st.ledger = memory.NewContactLedger(clock)
	default:
		st.ledger = storage.NewContactLedger(st.engine, clock)
	}

	log.Info("stores opened",
		"data_dir", cfg.Storage.DataDir,
		"registry", cfg.Registry.Backend,
		"contacts", cfg.Contacts.Backend,
		"cipher", sealer.Type().String())
	return st, nil
}

func transportFactory(cfg *config.ServerConfig, log logger.Logger) (transport.Factory, error) {
	switch cfg.Transport.Driver {
	case config.DriverLoopback:
		log.Warn("loopback transport selected; no real messages will be delivered")
		return loopback.Factory(clockwork.NewRealClock(), nil), nil
	case config.DriverWSBridge:
		wcfg := wsbridge.DefaultConfig(cfg.Transport.WSBridge.URL)
		if cfg.Transport.WSBridge.DialTimeout > 0 {
			wcfg.DialTimeout = cfg.Transport.WSBridge.DialTimeout
		}
		wcfg.PingInterval = cfg.Transport.WSBridge.PingInterval
		return wsbridge.Factory(wcfg, log), nil
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Transport.Driver)
	}
}
