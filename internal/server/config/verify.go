// Package config defines the server configuration structure.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Listen == "" {
		return errors.New("server.listen is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("server.listen %q: %w", cfg.Listen, err)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.InMemory {
		return nil
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	if cfg.GCInterval != "" {
		if _, err := time.ParseDuration(cfg.GCInterval); err != nil {
			return fmt.Errorf("storage.gc_interval %q: %w", cfg.GCInterval, err)
		}
	}
	if cfg.GCThreshold < 0 || cfg.GCThreshold > 1 {
		return errors.New("storage.gc_threshold must be within [0, 1]")
	}

	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.BackupKey != "" {
		key, err := hex.DecodeString(cfg.BackupKey)
		if err != nil {
			return errors.New("security.backup_key must be hex encoded")
		}
		if len(key) != 32 {
			return errors.New("security.backup_key must decode to 32 bytes")
		}
	}

	for _, network := range cfg.AdminNetworks {
		if strings.Contains(network, "/") {
			if _, _, err := net.ParseCIDR(network); err != nil {
				return fmt.Errorf("security.admin_networks %q: %w", network, err)
			}
			continue
		}
		if net.ParseIP(network) == nil {
			return fmt.Errorf("security.admin_networks %q: not an IP or CIDR", network)
		}
	}

	if cfg.ActivateRPS < 0 {
		return errors.New("security.activate_rps must not be negative")
	}
	if cfg.ActivateBurst < 0 {
		return errors.New("security.activate_burst must not be negative")
	}

	return nil
}
