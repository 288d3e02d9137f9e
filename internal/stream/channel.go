// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "sync"

// =============================================================================
// CHANNEL GUARD
// =============================================================================

// ChannelGuard enforces at most one active consumer per logical channel
// (one in-flight reply per conversation).
//
// Begin cancels the prior consumer synchronously, before the caller
// issues the new request, so a stale stream's late-arriving events can
// never land after a newer stream has started.
type ChannelGuard struct {
	mu     sync.Mutex
	active map[string]*Consumer
}

// NewChannelGuard creates an empty guard.
func NewChannelGuard() *ChannelGuard {
	return &ChannelGuard{
		active: make(map[string]*Consumer),
	}
}

// Begin registers c as the sole active consumer for the channel,
// cancelling any prior one first.
func (g *ChannelGuard) Begin(channel string, c *Consumer) {
	g.mu.Lock()
	prior := g.active[channel]
	g.active[channel] = c
	g.mu.Unlock()

	if prior != nil {
		prior.Cancel()
	}
}

// Finish clears the registration if c is still the channel's active
// consumer. A consumer superseded by a newer Begin leaves the newer
// registration untouched.
func (g *ChannelGuard) Finish(channel string, c *Consumer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[channel] == c {
		delete(g.active, channel)
	}
}

// Cancel cancels and clears the channel's active consumer, if any.
func (g *ChannelGuard) Cancel(channel string) {
	g.mu.Lock()
	c := g.active[channel]
	delete(g.active, channel)
	g.mu.Unlock()

	if c != nil {
		c.Cancel()
	}
}

// Active returns the channel's active consumer, or nil.
func (g *ChannelGuard) Active(channel string) *Consumer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[channel]
}
