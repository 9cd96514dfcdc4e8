package config

import (
	"fmt"
	"sync/atomic"
)

// global is the configuration of the running command.
var global atomic.Pointer[Config]

// ReloadConfig loads path with DFAS_* overrides and installs the result as
// the global configuration. A config that fails to load or validate leaves
// the previous one in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	global.Store(cfg)
	return nil
}

// GetConfig returns the configuration installed by ReloadConfig, or nil.
func GetConfig() *Config {
	return global.Load()
}
