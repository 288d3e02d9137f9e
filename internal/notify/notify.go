// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify routes user-facing notices with per-key deduplication,
// so a flapping failure produces one notice instead of a storm.
package notify

import (
	"sync"
	"time"
)

// Kind represents the type of notice.
// Inspired by lazygit's types.ToastKind.
type Kind int

const (
	// KindStatus is an informational notice (cyan color)
	KindStatus Kind = iota
	// KindError is an error notice (rose/red color)
	KindError
	// KindWarning is a warning notice (amber color)
	KindWarning
	// KindSuccess is a success notice (emerald color)
	KindSuccess
)

// DefaultDuration is the auto-dismiss duration for status notices.
const DefaultDuration = 4 * time.Second

// ErrorDuration is the auto-dismiss duration for error notices (longer to read).
const ErrorDuration = 8 * time.Second

// WarningDuration is the auto-dismiss duration for warning notices.
const WarningDuration = 6 * time.Second

// DedupWindow is how long a key suppresses repeats.
const DedupWindow = 30 * time.Second

// DurationFor returns the auto-dismiss duration for a kind.
func DurationFor(k Kind) time.Duration {
	switch k {
	case KindError:
		return ErrorDuration
	case KindWarning:
		return WarningDuration
	default:
		return DefaultDuration
	}
}

// Notice is one user-facing notification.
type Notice struct {
	Key       string
	Kind      Kind
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
}

// Expired reports whether the notice should auto-dismiss.
func (n Notice) Expired() bool {
	return time.Since(n.CreatedAt) >= n.Duration
}

// Sink receives notices that pass deduplication. The UI registers one.
type Sink func(Notice)

// Notifier deduplicates notices by key within a time window.
type Notifier struct {
	mu   sync.Mutex
	seen map[string]time.Time
	sink Sink

	window time.Duration
	now    func() time.Time
}

// New creates a notifier delivering to sink. A nil sink drops notices,
// which keeps callers unconditional.
func New(sink Sink) *Notifier {
	return &Notifier{
		seen:   make(map[string]time.Time),
		sink:   sink,
		window: DedupWindow,
		now:    time.Now,
	}
}

// SetSink replaces the delivery target.
func (n *Notifier) SetSink(sink Sink) {
	n.mu.Lock()
	n.sink = sink
	n.mu.Unlock()
}

// Notify delivers a notice unless the same key fired within the dedup
// window. An empty key is never deduplicated. Returns whether the
// notice was delivered.
func (n *Notifier) Notify(key string, kind Kind, message string) bool {
	n.mu.Lock()
	now := n.now()

	if key != "" {
		if last, ok := n.seen[key]; ok && now.Sub(last) < n.window {
			n.mu.Unlock()
			return false
		}
		n.seen[key] = now
		// Drop stale entries opportunistically.
		for k, at := range n.seen {
			if now.Sub(at) >= n.window {
				delete(n.seen, k)
			}
		}
	}
	sink := n.sink
	n.mu.Unlock()

	if sink == nil {
		return false
	}
	sink(Notice{
		Key:       key,
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
		Duration:  DurationFor(kind),
	})
	return true
}

// Reset clears deduplication state, letting every key fire again.
func (n *Notifier) Reset() {
	n.mu.Lock()
	n.seen = make(map[string]time.Time)
	n.mu.Unlock()
}
