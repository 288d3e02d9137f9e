// advisor - terminal chat client for the CampusKit student support platform.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/campuskit/advisor-tui/internal/app"
	"github.com/campuskit/advisor-tui/internal/cli"
	"github.com/campuskit/advisor-tui/internal/config"
	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/stream"
	chatui "github.com/campuskit/advisor-tui/internal/ui/chat"
	"github.com/campuskit/advisor-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// resumeTimeout bounds the startup attempt to restore the previous
// conversation.
const resumeTimeout = 10 * time.Second

func main() {
	// A .env file can carry ADVISOR_* overrides during development.
	_ = godotenv.Load()

	var (
		plain       = flag.Bool("plain", false, "use the plain readline interface instead of the TUI")
		configPath  = flag.String("config", "", "path to a config file (TOML or JSON)")
		debug       = flag.Bool("debug", false, "enable debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("advisor %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Logging.Debug = true
	}

	appCtx, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer appCtx.Close()

	// Surface on-disk config edits; a restart applies them.
	if path := *configPath; path != "" {
		if w, werr := config.NewWatcher(path, func(*config.Config) {
			appCtx.Notifier.Notify("config-reload", notify.KindStatus,
				"Configuration changed on disk. Restart to apply.")
		}); werr == nil {
			if werr = w.Watch(); werr == nil {
				defer w.Close()
			}
		}
	}

	// Piped output gets the plain interface regardless of flags.
	if *plain || !cli.IsStdoutTTY() || !cli.IsStdinTTY() {
		runPlain(appCtx)
		return
	}
	runTUI(appCtx)
}

// loadConfig resolves configuration from an explicit path or the
// standard locations.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// runTUI starts the Bubble Tea interface.
func runTUI(appCtx *app.Context) {
	theme := styles.NewTheme()
	m := chatui.New(theme, appCtx.Controller)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Engine goroutines push updates into the program loop.
	appCtx.Controller.Reconciler().OnChange(func() {
		p.Send(chatui.TranscriptChangedMsg{})
	})
	appCtx.Notifier.SetSink(func(n notify.Notice) {
		p.Send(chatui.NoticeMsg{Notice: n})
	})
	appCtx.Controller.OnIntent(func(payload stream.IntentPayload) {
		p.Send(chatui.IntentMsg{Payload: payload})
	})

	ctx, cancel := context.WithTimeout(context.Background(), resumeTimeout)
	_ = appCtx.Controller.Resume(ctx) // starting fresh is fine
	cancel()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running advisor: %v\n", err)
		os.Exit(1)
	}
}

// runPlain starts the readline interface.
func runPlain(appCtx *app.Context) {
	if err := cli.NewREPL(appCtx).Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
