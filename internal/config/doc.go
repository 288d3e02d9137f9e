// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management
// for advisor.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Backend connection settings
//   - SessionConfig: Session persistence settings
//   - CacheConfig: Local cache behavior
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ADVISOR_*)
//   - ~/.advisor/config.toml
//   - ~/.advisor/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	base := cfg.API.BaseURL
//	timeout := cfg.API.TimeoutSecs
package config
