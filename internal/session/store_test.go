// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/advisor-tui/internal/api"
	"github.com/campuskit/advisor-tui/internal/secret"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := NewStore(path, nil, nil)
	require.NoError(t, err)
	return s, path
}

func TestStore_FreshAnonymousSession(t *testing.T) {
	s, path := newTestStore(t)

	rec := s.Get()
	assert.NotEmpty(t, rec.SessionID)
	assert.Equal(t, TypeAnonymous, rec.SessionType)
	assert.NotNil(t, rec.ExtraData)
	assert.True(t, rec.ExpiresAt.After(time.Now().Add(29*24*time.Hour)))

	// The fresh record is persisted immediately.
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestStore_PersistsAcrossLoads(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.SetConversationID("conv_1"))
	require.NoError(t, s.SetValue("program_interest", "nursing"))

	reloaded, err := NewStore(path, nil, nil)
	require.NoError(t, err)

	rec := reloaded.Get()
	assert.Equal(t, s.Get().SessionID, rec.SessionID)
	assert.Equal(t, "conv_1", rec.ConversationID)
	v, ok := reloaded.Value("program_interest")
	require.True(t, ok)
	assert.Equal(t, "nursing", v)
}

func TestStore_MergeExtraPreservesOtherFields(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.MergeExtra(map[string]any{
		"program_interest": "nursing",
		"campus":           "north",
	}))
	require.NoError(t, s.MergeExtra(map[string]any{
		"campus": "downtown",
	}))

	rec := s.Get()
	assert.Equal(t, "nursing", rec.ExtraData["program_interest"],
		"unnamed fields survive a merge")
	assert.Equal(t, "downtown", rec.ExtraData["campus"])
}

func TestStore_InvalidRecordDiscarded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	// Structurally valid JSON, but missing session_id.
	require.NoError(t, os.WriteFile(path, []byte(`{
		"session_type": "anonymous",
		"extra_data": {},
		"created_at": "2026-01-01T00:00:00Z",
		"last_activity_at": "2026-01-01T00:00:00Z",
		"expires_at": "2099-01-01T00:00:00Z"
	}`), 0600))

	s, err := NewStore(path, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Get().SessionID, "replaced with a fresh record")
}

func TestStore_CorruptFileDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0600))

	s, err := NewStore(path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeAnonymous, s.Get().SessionType)
}

func TestStore_ExpiredSessionReplaced(t *testing.T) {
	s, path := newTestStore(t)
	oldID := s.Get().SessionID
	require.NoError(t, s.SetValue("program_interest", "nursing"))

	// Age the persisted record past its expiry.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	rec.ExpiresAt = time.Now().Add(-time.Hour)
	aged, err := json.Marshal(&rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, aged, 0600))

	reloaded, err := NewStore(path, nil, nil)
	require.NoError(t, err)

	fresh := reloaded.Get()
	assert.NotEqual(t, oldID, fresh.SessionID)
	assert.Equal(t, TypeAnonymous, fresh.SessionType)
	assert.Empty(t, fresh.ExtraData, "no state carries over")
}

func TestStore_ExtendMovesExpiryOnly(t *testing.T) {
	s, _ := newTestStore(t)
	before := s.Get()

	clock := before.LastActivityAt
	s.now = func() time.Time { return clock }
	require.NoError(t, s.Extend(60))

	rec := s.Get()
	assert.True(t, rec.ExpiresAt.Equal(clock.Add(60*24*time.Hour)))
	assert.True(t, rec.LastActivityAt.Equal(before.LastActivityAt),
		"extending the expiry is not activity")
	assert.Equal(t, before.SessionID, rec.SessionID)
	assert.Equal(t, before.SessionType, rec.SessionType)
}

func TestStore_TypeUpgradeIsMonotonic(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.RegisterLead("lead_1"))
	assert.Equal(t, TypeLead, s.Get().SessionType)

	require.NoError(t, s.Authenticate("user_1", "tok_x"))
	assert.Equal(t, TypeAuthenticated, s.Get().SessionType)

	// A later lead capture must not demote an authenticated session.
	require.NoError(t, s.RegisterLead("lead_2"))
	assert.Equal(t, TypeAuthenticated, s.Get().SessionType)
	assert.Equal(t, "lead_2", s.Get().LeadID)
}

func TestStore_ClearAuthStepsDown(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.RegisterLead("lead_1"))
	require.NoError(t, s.Authenticate("user_1", "tok_x"))

	require.NoError(t, s.ClearAuth())

	rec := s.Get()
	assert.Equal(t, TypeLead, rec.SessionType)
	assert.Empty(t, rec.UserID)
	assert.Empty(t, s.Credentials().AuthToken)
}

func TestStore_TokenSealedAtRest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	vault := secret.NewVault(filepath.Join(dir, "vault.key"))

	s, err := NewStore(path, vault, nil)
	require.NoError(t, err)
	require.NoError(t, s.Authenticate("user_1", "tok_supersecret"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "tok_supersecret")
	assert.Contains(t, string(data), secret.EncryptedPrefix)

	// A reload recovers the plaintext token.
	reloaded, err := NewStore(path, vault, nil)
	require.NoError(t, err)
	assert.Equal(t, "tok_supersecret", reloaded.Credentials().AuthToken)
}

type recordingSyncer struct {
	mu   sync.Mutex
	reqs []api.SessionSyncRequest
	done chan struct{}
}

func (r *recordingSyncer) SyncSession(ctx context.Context, req api.SessionSyncRequest) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
	return nil
}

func (r *recordingSyncer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func TestStore_SyncIsRateLimited(t *testing.T) {
	s, _ := newTestStore(t)
	syncer := &recordingSyncer{done: make(chan struct{}, 1)}
	s.WithSyncer(syncer)

	// A burst of mutations collapses into a single sync.
	require.NoError(t, s.Touch())
	require.NoError(t, s.SetValue("a", 1))
	require.NoError(t, s.SetValue("b", 2))

	select {
	case <-syncer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sync never fired")
	}
	assert.Equal(t, 1, syncer.count())
}

func TestStore_CredentialsCarrySessionID(t *testing.T) {
	s, _ := newTestStore(t)
	creds := s.Credentials()
	assert.Equal(t, s.Get().SessionID, creds.SessionID)
	assert.Empty(t, creds.AuthToken)
}
