package config

import "time"

// ServerConfig is the root configuration for wamesh-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Storage   StorageSection   `koanf:"storage"`
	Registry  BackendSection   `koanf:"registry"`
	Contacts  BackendSection   `koanf:"contacts"`
	Postgres  PostgresSection  `koanf:"postgres"`
	Redis     RedisSection     `koanf:"redis"`
	Transport TransportSection `koanf:"transport"`
	Session   SessionSection   `koanf:"session"`
	Log       LogSection       `koanf:"log"`
}

// ServerSection configures listeners.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the admin HTTP server (health and metrics).
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// StorageSection configures the embedded Badger database.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`

	// EncryptionKey seals session blobs at rest. Empty stores them in the
	// clear.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher is auto, aes-gcm or chacha20-poly1305.
	Cipher string `koanf:"cipher"`

	// MaxBlobSize caps one session blob in bytes.
	MaxBlobSize int64 `koanf:"max_blob_size"`

	GCInterval  string  `koanf:"gc_interval"`
	GCThreshold float64 `koanf:"gc_threshold"`
	SyncWrites  bool    `koanf:"sync_writes"`
}

// Backend names.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// BackendSection selects where registry rows or contacts live.
type BackendSection struct {
	Backend string `koanf:"backend"`
}

// PostgresSection configures the PostgreSQL backend.
type PostgresSection struct {
	URL string `koanf:"url"`
}

// RedisSection configures the Redis backend.
type RedisSection struct {
	URL string `koanf:"url"`
}

// Transport drivers.
const (
	DriverLoopback = "loopback"
	DriverWSBridge = "wsbridge"
)

// TransportSection selects and configures the transport driver.
type TransportSection struct {
	Driver   string         `koanf:"driver"`
	WSBridge WSBridgeConfig `koanf:"wsbridge"`
}

// WSBridgeConfig configures the sidecar bridge.
type WSBridgeConfig struct {
	URL          string        `koanf:"url"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	PingInterval time.Duration `koanf:"ping_interval"`
}

// SessionSection tunes session behaviour.
type SessionSection struct {
	// WaitTimeout bounds WaitForFirstSignal for status requests.
	WaitTimeout time.Duration `koanf:"wait_timeout"`

	// SendRate is messages per second per tenant; 0 disables limiting.
	SendRate  float64 `koanf:"send_rate"`
	SendBurst int     `koanf:"send_burst"`

	// SyncJitterMax and AsyncJitterMax cap the random pre-send delay for
	// the synchronous and fire-and-forget conventions.
	SyncJitterMax  time.Duration `koanf:"sync_jitter_max"`
	AsyncJitterMax time.Duration `koanf:"async_jitter_max"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
