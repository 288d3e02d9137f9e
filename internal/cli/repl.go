// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/campuskit/advisor-tui/internal/app"
	"github.com/campuskit/advisor-tui/internal/notify"
	"github.com/campuskit/advisor-tui/internal/stream"
)

// historyFileName stores readline history under the state directory.
const historyFileName = "cli_history"

// streamPollInterval is how often the loop checks for stream completion
// while a reply is in flight.
const streamPollInterval = 50 * time.Millisecond

// REPL is the plain-terminal chat loop.
type REPL struct {
	app      *app.Context
	line     *liner.State
	renderer *glamour.TermRenderer

	historyPath string

	// echoed tracks how much of the live draft has been written to
	// stdout, so change callbacks print only the new suffix.
	mu     sync.Mutex
	echoed int
}

// NewREPL creates the plain chat interface over an assembled engine.
func NewREPL(appCtx *app.Context) *REPL {
	return &REPL{
		app:      appCtx,
		renderer: markdownRenderer(),
	}
}

// Run starts the read-eval-print loop and blocks until the visitor
// exits or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	r.line = liner.NewLiner()
	defer r.line.Close()
	r.line.SetCtrlCAborts(true)

	r.loadHistory()
	defer r.saveHistory()

	rec := r.app.Controller.Reconciler()
	rec.OnChange(r.echoDelta)
	r.app.Notifier.SetSink(printNotice)
	r.app.Controller.OnIntent(func(p stream.IntentPayload) {
		fmt.Println()
		if p.Program != "" {
			fmt.Println(infoStyle.Render("[i] Interested in " + p.Program + "? An advisor can help you enroll."))
		} else {
			fmt.Println(infoStyle.Render("[i] It sounds like you may be ready to enroll."))
		}
	})

	// Pick up the previous conversation when the session carries one.
	if err := r.app.Controller.Resume(ctx); err == nil && rec.Transcript().Len() > 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("[resumed conversation, %d messages]", rec.Transcript().Len())))
	}

	r.printWelcome()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		input, err := r.line.Prompt("you> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Println()
			return nil
		case err != nil:
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if !r.handleSlash(ctx, input) {
				return nil
			}
			continue
		}

		r.send(ctx, input)
	}
}

// send submits a message and blocks until the reply finishes streaming.
func (r *REPL) send(ctx context.Context, content string) {
	r.mu.Lock()
	r.echoed = 0
	r.mu.Unlock()

	if err := r.app.Controller.Send(ctx, content); err != nil {
		fmt.Println(errorStyle.Render("[X] " + err.Error()))
		return
	}
	r.waitForReply(ctx)
}

// waitForReply blocks until the in-flight stream ends. Ctrl+C cancels
// the reply without leaving the loop.
func (r *REPL) waitForReply(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	cancelled := false
	for r.app.Controller.Streaming() {
		select {
		case <-sigCh:
			r.app.Controller.CancelActive()
			cancelled = true
		case <-ctx.Done():
			r.app.Controller.CancelActive()
			cancelled = true
		case <-ticker.C:
		}
		if cancelled {
			break
		}
	}

	if cancelled {
		fmt.Println()
		fmt.Println(warningStyle.Render("[cancelled]"))
		return
	}

	last := r.app.Controller.Reconciler().Transcript().Last()
	if last == nil || !last.Sender.IsAssistant() {
		return
	}
	fmt.Println()
	if last.IsError {
		fmt.Println(errorStyle.Render("[X] " + last.Content))
		return
	}
	// On capable terminals the raw stream is followed by a markdown
	// rendering of the complete reply.
	if r.renderer != nil {
		fmt.Println()
		fmt.Print(renderMarkdown(r.renderer, last.Content))
	}
	fmt.Println()
}

// echoDelta writes the unseen suffix of the live draft to stdout. It
// runs on the stream consumer's goroutine via the reconciler callback.
func (r *REPL) echoDelta() {
	draft := r.app.Controller.Reconciler().Transcript().Draft()
	if draft == nil {
		return
	}
	content := draft.Content

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(content) <= r.echoed {
		// A full-content replacement may shrink the draft; the final
		// rendering after completion shows the authoritative text.
		return
	}
	fmt.Print(content[r.echoed:])
	r.echoed = len(content)
}

// printNotice renders an engine notice to the terminal.
func printNotice(n notify.Notice) {
	switch n.Kind {
	case notify.KindError:
		fmt.Println(errorStyle.Render("[X] " + n.Message))
	case notify.KindWarning:
		fmt.Println(warningStyle.Render("[!] " + n.Message))
	case notify.KindSuccess:
		fmt.Println(commandStyle.Render("[OK] " + n.Message))
	default:
		fmt.Println(infoStyle.Render("[i] " + n.Message))
	}
}

// printWelcome prints the startup banner.
func (r *REPL) printWelcome() {
	sess := r.app.Sessions.Get()
	fmt.Println()
	fmt.Println(headerStyle.Render("CampusKit advisor chat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n", infoStyle.Render("Session:"), commandStyle.Render(string(sess.SessionType)))
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// loadHistory reads readline history from the state directory.
func (r *REPL) loadHistory() {
	path, err := r.historyFile()
	if err != nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = r.line.ReadHistory(f)
}

// saveHistory persists readline history with user-only permissions.
func (r *REPL) saveHistory() {
	path, err := r.historyFile()
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = r.line.WriteHistory(f)
}

// historyFile resolves the readline history path next to the session
// file, keeping all visitor state in one directory.
func (r *REPL) historyFile() (string, error) {
	if r.historyPath != "" {
		return r.historyPath, nil
	}
	dir := filepath.Dir(r.app.Config.Session.FilePath)
	if dir == "" || dir == "." {
		return "", errors.New("no state directory")
	}
	return filepath.Join(dir, historyFileName), nil
}
