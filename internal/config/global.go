// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "sync"

// =============================================================================
// GLOBAL CONFIG ACCESS
// =============================================================================

var (
	globalMu  sync.RWMutex
	globalCfg *Config
)

// Global returns the process-wide config, loading it on first use. If
// loading fails, defaults are used.
func Global() *Config {
	globalMu.RLock()
	cfg := globalCfg
	globalMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCfg == nil {
		loaded, err := Load()
		if err != nil || loaded == nil {
			loaded = Default()
		}
		globalCfg = loaded
	}
	return globalCfg
}

// SetGlobal replaces the process-wide config. Used by the config watcher
// on live reload.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	globalCfg = cfg
	globalMu.Unlock()
}

// ReloadGlobal re-reads the config from disk and installs it.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// ResetGlobalForTesting clears the global config so tests start fresh.
func ResetGlobalForTesting() {
	globalMu.Lock()
	globalCfg = nil
	globalMu.Unlock()
}
