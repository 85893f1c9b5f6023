package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5090"
	DefaultShutdownTimeout = 30 * time.Second

	DefaultDataDir     = "/var/lib/wamesh/data"
	DefaultCipher      = "auto"
	DefaultMaxBlobSize = 64 << 20
	DefaultGCInterval  = "10m"
	DefaultGCThreshold = 0.5

	DefaultDialTimeout  = 10 * time.Second
	DefaultPingInterval = 30 * time.Second

	DefaultWaitTimeout    = 20 * time.Second
	DefaultSendRate       = 1.0
	DefaultSendBurst      = 5
	DefaultSyncJitterMax  = 5 * time.Second
	DefaultAsyncJitterMax = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP:            HTTPConfig{Addr: DefaultHTTPAddr},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			DataDir:     DefaultDataDir,
			Cipher:      DefaultCipher,
			MaxBlobSize: DefaultMaxBlobSize,
			GCInterval:  DefaultGCInterval,
			GCThreshold: DefaultGCThreshold,
			SyncWrites:  true,
		},
		Registry: BackendSection{Backend: BackendBadger},
		Contacts: BackendSection{Backend: BackendBadger},
		Transport: TransportSection{
			Driver: DriverLoopback,
			WSBridge: WSBridgeConfig{
				DialTimeout:  DefaultDialTimeout,
				PingInterval: DefaultPingInterval,
			},
		},
		Session: SessionSection{
			WaitTimeout:    DefaultWaitTimeout,
			SendRate:       DefaultSendRate,
			SendBurst:      DefaultSendBurst,
			SyncJitterMax:  DefaultSyncJitterMax,
			AsyncJitterMax: DefaultAsyncJitterMax,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
