package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"time"
)

// MinEncryptionKeyLength is the shortest accepted storage.encryption_key.
const MinEncryptionKeyLength = 16

// Verify validates the configuration and creates the data directory.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyBackends(cfg),
		verifyTransport(&cfg.Transport),
		verifySession(&cfg.Session),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
			return fmt.Errorf("server.http.addr: %w", err)
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) < MinEncryptionKeyLength {
		return fmt.Errorf("storage.encryption_key must be at least %d characters", MinEncryptionKeyLength)
	}
	if !slices.Contains([]string{"", "auto", "aes-gcm", "chacha20-poly1305"}, cfg.Cipher) {
		return fmt.Errorf("storage.cipher %q is not supported", cfg.Cipher)
	}
	if cfg.MaxBlobSize <= 0 {
		return errors.New("storage.max_blob_size must be positive")
	}
	if _, err := time.ParseDuration(cfg.GCInterval); err != nil {
		return fmt.Errorf("storage.gc_interval: %w", err)
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		return errors.New("storage.gc_threshold must be between 0 and 1")
	}
	return nil
}

func verifyBackends(cfg *ServerConfig) error {
	var errs []error
	switch cfg.Registry.Backend {
	case BackendBadger, BackendMemory:
	case BackendPostgres:
		errs = append(errs, requireURL("postgres.url", cfg.Postgres.URL))
	default:
		errs = append(errs, fmt.Errorf("registry.backend %q is not supported", cfg.Registry.Backend))
	}
	switch cfg.Contacts.Backend {
	case BackendBadger, BackendMemory:
	case BackendPostgres:
		errs = append(errs, requireURL("postgres.url", cfg.Postgres.URL))
	case BackendRedis:
		errs = append(errs, requireURL("redis.url", cfg.Redis.URL))
	default:
		errs = append(errs, fmt.Errorf("contacts.backend %q is not supported", cfg.Contacts.Backend))
	}
	return errors.Join(errs...)
}

func requireURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required by the selected backend", key)
	}
	if _, err := url.Parse(raw); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func verifyTransport(cfg *TransportSection) error {
	switch cfg.Driver {
	case DriverLoopback:
		return nil
	case DriverWSBridge:
		u, err := url.Parse(cfg.WSBridge.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("transport.wsbridge.url must be a ws:// or wss:// URL, got %q", cfg.WSBridge.URL)
		}
		return nil
	default:
		return fmt.Errorf("transport.driver %q is not supported", cfg.Driver)
	}
}

func verifySession(cfg *SessionSection) error {
	if cfg.WaitTimeout <= 0 {
		return errors.New("session.wait_timeout must be positive")
	}
	if cfg.SendRate < 0 {
		return errors.New("session.send_rate must not be negative")
	}
	if cfg.SendRate > 0 && cfg.SendBurst < 1 {
		return errors.New("session.send_burst must be at least 1 when send_rate is set")
	}
	if cfg.SyncJitterMax < 0 || cfg.AsyncJitterMax < 0 {
		return errors.New("session jitter must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Level) {
		return fmt.Errorf("log.level %q is not supported", cfg.Level)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.Format) {
		return fmt.Errorf("log.format %q is not supported", cfg.Format)
	}
	return nil
}
