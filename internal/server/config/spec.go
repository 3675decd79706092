// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for keymesh-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures the HTTP endpoint.
type ServerSection struct {
	// Listen is the HTTP bind address.
	Listen string `koanf:"listen"`

	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful drain on shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageSection configures storage behavior.
type StorageSection struct {
	// DataDir is the Badger data directory. Ignored when InMemory.
	DataDir string `koanf:"data_dir"`

	// InMemory selects the ephemeral store. Activation state does not
	// survive a restart; development and test use only.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites enables fsync after each write.
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is the interval between value log GC runs.
	GCInterval string `koanf:"gc_interval"`

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	GCThreshold float64 `koanf:"gc_threshold"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// BackupKey is the hex-encoded 32-byte key that encrypts backup
	// archives. Backups are refused when unset.
	BackupKey string `koanf:"backup_key"`

	// AdminNetworks is the IP/CIDR allowlist for /admin routes.
	// Empty means loopback only.
	AdminNetworks []string `koanf:"admin_networks"`

	// ActivateRPS is the per-IP sustained rate for activation requests.
	ActivateRPS float64 `koanf:"activate_rps"`

	// ActivateBurst is the per-IP burst for activation requests.
	ActivateBurst int `koanf:"activate_burst"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
