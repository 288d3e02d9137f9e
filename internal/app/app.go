// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles the engine: configuration, logging, session,
// backend client, chat controller, history, and notifications, wired
// once and shared by every frontend.
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/advisor-tui/internal/api"
	"github.com/campuskit/advisor-tui/internal/chat"
	"github.com/campuskit/advisor-tui/internal/config"
	"github.com/campuskit/advisor-tui/internal/history"
	"github.com/campuskit/advisor-tui/internal/logging"
	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/secret"
	"github.com/campuskit/advisor-tui/internal/session"
)

// Context holds every long-lived component. Frontends receive one and
// never construct engine pieces themselves.
type Context struct {
	Config     *config.Config
	Logger     *zap.Logger
	Sessions   *session.Store
	API        *api.Client
	Controller *chat.Controller
	History    *history.Store // nil when the local cache is disabled
	Notifier   *notify.Notifier
}

// New builds the full engine from a validated configuration.
func New(cfg *config.Config) (*Context, error) {
	logger, err := logging.New(logging.Options{
		Path:       cfg.Logging.Path,
		Debug:      cfg.Logging.Debug,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	var vault *secret.Vault
	if cfg.Session.SealToken {
		vault = secret.NewVault(filepath.Join(filepath.Dir(cfg.Session.FilePath), "vault.key"))
	}

	sessions, err := session.NewStore(cfg.Session.FilePath, vault, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	notifier := notify.New(nil)

	client := api.NewClient(cfg.API.BaseURL, sessions, logger).
		WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second)
	client.WithAuthInvalidHandler(func() {
		if err := sessions.ClearAuth(); err != nil {
			logger.Warn("failed to clear auth state", zap.Error(err))
		}
		notifier.Notify("auth-invalid", notify.KindWarning,
			"Your sign-in has expired. You can keep chatting as a guest.")
	})

	if cfg.Session.SyncEnabled {
		sessions.WithSyncer(client)
	}

	controller := chat.NewController(client, sessions, logger)

	var hist *history.Store
	if cfg.Cache.HistoryEnabled {
		hist, err = history.Open(cfg.Cache.HistoryPath, logger)
		if err != nil {
			// A broken local cache degrades to online-only operation.
			logger.Warn("failed to open history cache", zap.Error(err))
		} else {
			controller.WithArchiver(hist)
		}
	}

	return &Context{
		Config:     cfg,
		Logger:     logger,
		Sessions:   sessions,
		API:        client,
		Controller: controller,
		History:    hist,
		Notifier:   notifier,
	}, nil
}

// Close releases resources. Safe to call once at shutdown.
func (c *Context) Close() {
	if c.History != nil {
		if err := c.History.Close(); err != nil {
			c.Logger.Warn("failed to close history cache", zap.Error(err))
		}
	}
	_ = c.Logger.Sync()
}
