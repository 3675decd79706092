// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultListen = "127.0.0.1:8087"

	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultDataDir     = "/var/lib/keymesh-server/data"
	DefaultGCInterval  = "10m"
	DefaultGCThreshold = 0.5

	DefaultActivateRPS   = 5.0
	DefaultActivateBurst = 10

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Listen:          DefaultListen,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			DataDir:     DefaultDataDir,
			SyncWrites:  true,
			GCInterval:  DefaultGCInterval,
			GCThreshold: DefaultGCThreshold,
		},
		Security: SecuritySection{
			ActivateRPS:   DefaultActivateRPS,
			ActivateBurst: DefaultActivateBurst,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
