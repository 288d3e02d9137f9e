// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the visitor's durable identity.
//
// One session record lives in the state directory as JSON. Every load
// validates the record's shape and freshness; anything malformed or
// expired is discarded and replaced with a fresh anonymous record, so
// the rest of the engine never sees a broken session. Writes go through
// an atomic rename and are mirrored to the backend on a rate-limited,
// fire-and-forget basis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/campuskit/advisor-tui/internal/api"
	"github.com/campuskit/advisor-tui/internal/secret"
	"github.com/campuskit/advisor-tui/internal/util"
)

// TTL is how long a session stays valid past its last activity.
const TTL = 30 * 24 * time.Hour

// syncInterval throttles backend mirroring; bursts of mutations collapse
// into one sync per window.
const syncInterval = 30 * time.Second

// syncTimeout bounds a single background sync attempt.
const syncTimeout = 10 * time.Second

// =============================================================================
// SESSION TYPE
// =============================================================================

// Type is the visitor's identity tier. It only ever moves up within a
// record's lifetime; losing authentication resets the record instead.
type Type string

const (
	TypeAnonymous     Type = "anonymous"
	TypeLead          Type = "lead"
	TypeAuthenticated Type = "authenticated"
)

// rank orders types for the monotonic upgrade rule.
func (t Type) rank() int {
	switch t {
	case TypeAnonymous:
		return 0
	case TypeLead:
		return 1
	case TypeAuthenticated:
		return 2
	default:
		return -1
	}
}

// Valid reports whether t is a recognized tier.
func (t Type) Valid() bool {
	return t.rank() >= 0
}

// =============================================================================
// RECORD
// =============================================================================

// Record is the persisted session state. AuthToken is stored sealed; the
// plaintext lives only in the Store's memory.
type Record struct {
	SessionID      string         `json:"session_id"`
	SessionType    Type           `json:"session_type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	LeadID         string         `json:"lead_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	AuthToken      string         `json:"auth_token,omitempty"`
	ExtraData      map[string]any `json:"extra_data"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// validate checks the structural invariants a usable record must hold.
func (r *Record) validate() error {
	switch {
	case r.SessionID == "":
		return errors.New("missing session_id")
	case !r.SessionType.Valid():
		return fmt.Errorf("unknown session_type %q", r.SessionType)
	case r.ExtraData == nil:
		return errors.New("missing extra_data")
	case r.CreatedAt.IsZero() || r.LastActivityAt.IsZero() || r.ExpiresAt.IsZero():
		return errors.New("missing timestamps")
	case !r.ExpiresAt.After(r.CreatedAt):
		return errors.New("expiry not after creation")
	}
	return nil
}

// expired reports whether the record's lifetime has lapsed.
func (r *Record) expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// newRecord creates a fresh anonymous session.
func newRecord(now time.Time) Record {
	return Record{
		SessionID:      "sess_" + uuid.NewString(),
		SessionType:    TypeAnonymous,
		ExtraData:      make(map[string]any),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(TTL),
	}
}

// =============================================================================
// STORE
// =============================================================================

// Syncer mirrors session state to the backend. *api.Client satisfies it.
type Syncer interface {
	SyncSession(ctx context.Context, req api.SessionSyncRequest) error
}

// Store manages the session record: loading, validation, mutation,
// persistence, and backend mirroring.
type Store struct {
	mu        sync.Mutex
	path      string
	rec       Record
	authToken string // plaintext, in memory only

	vault   *secret.Vault
	syncer  Syncer
	limiter *rate.Limiter
	logger  *zap.Logger

	now func() time.Time
}

// NewStore loads the session record at path, healing or replacing it as
// needed. vault may be nil; the auth token is then not persisted.
func NewStore(path string, vault *secret.Vault, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:    path,
		vault:   vault,
		limiter: rate.NewLimiter(rate.Every(syncInterval), 1),
		logger:  logger,
		now:     time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithSyncer enables backend mirroring.
func (s *Store) WithSyncer(syncer Syncer) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncer = syncer
	return s
}

// load reads and validates the record, falling back to a fresh anonymous
// one when the file is absent, malformed, invalid, or expired.
func (s *Store) load() error {
	now := s.now()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read session file: %w", err)
		}
		s.rec = newRecord(now)
		return s.save()
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("discarding unreadable session file", zap.Error(err))
		s.rec = newRecord(now)
		return s.save()
	}
	if err := rec.validate(); err != nil {
		s.logger.Warn("discarding invalid session record", zap.Error(err))
		s.rec = newRecord(now)
		return s.save()
	}
	if rec.expired(now) {
		s.logger.Info("session expired, starting fresh",
			zap.String("session_id", rec.SessionID))
		s.rec = newRecord(now)
		return s.save()
	}

	s.rec = rec
	if s.vault != nil && rec.AuthToken != "" {
		token, err := s.vault.Open(rec.AuthToken)
		if err != nil {
			// Unusable token: drop auth state but keep the session.
			s.logger.Warn("failed to unseal auth token, clearing auth", zap.Error(err))
			s.clearAuthLocked()
			return s.save()
		}
		s.authToken = token
	}
	return nil
}

// save persists the record atomically. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(&s.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, 0600)
}

// commit saves and requests a backend sync. Callers hold s.mu.
func (s *Store) commit() error {
	if err := s.save(); err != nil {
		return err
	}
	s.requestSync()
	return nil
}

// requestSync mirrors the record to the backend, at most once per
// interval, without blocking the caller. Callers hold s.mu.
func (s *Store) requestSync() {
	if s.syncer == nil || !s.limiter.Allow() {
		return
	}
	req := api.SessionSyncRequest{
		SessionID:      s.rec.SessionID,
		SessionType:    string(s.rec.SessionType),
		ConversationID: s.rec.ConversationID,
		LeadID:         s.rec.LeadID,
		UserID:         s.rec.UserID,
		ExtraData:      copyExtra(s.rec.ExtraData),
		LastActivityAt: s.rec.LastActivityAt,
	}
	syncer := s.syncer
	logger := s.logger

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if err := syncer.SyncSession(ctx, req); err != nil {
			logger.Debug("session sync failed", zap.Error(err))
		}
	}()
}

// copyExtra deep-copies the top level of the extra data map.
func copyExtra(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// rotateIfExpiredLocked replaces a lapsed record before any access.
func (s *Store) rotateIfExpiredLocked() {
	if !s.rec.expired(s.now()) {
		return
	}
	s.logger.Info("session expired, starting fresh",
		zap.String("session_id", s.rec.SessionID))
	s.rec = newRecord(s.now())
	s.authToken = ""
	if err := s.save(); err != nil {
		s.logger.Error("failed to persist fresh session", zap.Error(err))
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Get returns a copy of the current record with the sealed token
// stripped.
func (s *Store) Get() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	rec := s.rec
	rec.AuthToken = ""
	rec.ExtraData = copyExtra(s.rec.ExtraData)
	return rec
}

// Credentials implements api.CredentialSource.
func (s *Store) Credentials() api.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()
	return api.Credentials{
		SessionID: s.rec.SessionID,
		AuthToken: s.authToken,
	}
}

// Value returns one extra-data field.
func (s *Store) Value(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rec.ExtraData[key]
	return v, ok
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Touch records activity and extends the session's lifetime.
func (s *Store) Touch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	now := s.now()
	s.rec.LastActivityAt = now
	s.rec.ExpiresAt = now.Add(TTL)
	return s.commit()
}

// Extend pushes the expiry forward by the given number of days from
// now. No other field changes; in particular last activity stays put.
func (s *Store) Extend(days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	s.rec.ExpiresAt = s.now().Add(time.Duration(days) * 24 * time.Hour)
	return s.commit()
}

// SetConversationID binds the session to its active conversation.
func (s *Store) SetConversationID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	s.rec.ConversationID = id
	return s.commit()
}

// SetValue sets one extra-data field, leaving the rest untouched.
func (s *Store) SetValue(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	s.rec.ExtraData[key] = value
	return s.commit()
}

// MergeExtra merges fields into extra data. Existing keys not named in
// the update survive.
func (s *Store) MergeExtra(fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	for k, v := range fields {
		s.rec.ExtraData[k] = v
	}
	return s.commit()
}

// RegisterLead records a captured lead and upgrades the session tier.
// The upgrade is monotonic: an authenticated session keeps its tier.
func (s *Store) RegisterLead(leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	s.rec.LeadID = leadID
	s.upgradeLocked(TypeLead)
	return s.commit()
}

// Authenticate upgrades the session to authenticated and seals the
// token for persistence.
func (s *Store) Authenticate(userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateIfExpiredLocked()

	s.rec.UserID = userID
	s.authToken = token
	s.upgradeLocked(TypeAuthenticated)

	if s.vault != nil && token != "" {
		sealed, err := s.vault.Seal(token)
		if err != nil {
			return fmt.Errorf("failed to seal auth token: %w", err)
		}
		s.rec.AuthToken = sealed
	}
	return s.commit()
}

// upgradeLocked applies the monotonic tier rule.
func (s *Store) upgradeLocked(t Type) {
	if t.rank() > s.rec.SessionType.rank() {
		s.rec.SessionType = t
	}
}

// ClearAuth drops authentication state after the backend rejects the
// token. The session survives, stepping down to its highest remaining
// tier.
func (s *Store) ClearAuth() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearAuthLocked()
	return s.commit()
}

// clearAuthLocked resets auth fields. Callers hold s.mu.
func (s *Store) clearAuthLocked() {
	s.rec.UserID = ""
	s.rec.AuthToken = ""
	s.authToken = ""
	if s.rec.LeadID != "" {
		s.rec.SessionType = TypeLead
	} else {
		s.rec.SessionType = TypeAnonymous
	}
}

// Clear discards the session entirely and starts a fresh anonymous one.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec = newRecord(s.now())
	s.authToken = ""
	return s.commit()
}
