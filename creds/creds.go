// Package creds owns the client's authentication material: the user/pass
// pair, a validity flag, and the derived Basic auth header attached to every
// request. Material is persisted to the durable store only after the engine
// has actually accepted it (the first successful authenticated fetch), and
// the stored record is cleared the moment the engine rejects it or the user
// logs out.
package creds

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/capsight/capsight/state"
)

// record is the durable form: the derived header is never persisted.
type record struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// Store holds current authentication material. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	user   string
	pass   string
	valid  bool
	st     *state.Store
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New creates a credential store backed by st.
func New(st *state.Store, opts ...Option) *Store {
	s := &Store{st: st, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load restores persisted material. Restored credentials start invalid:
// validity is only earned by a successful authenticated fetch.
func (s *Store) Load(ctx context.Context) error {
	data, ok, err := s.st.Load(ctx, state.RecordAuth)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("creds: decode auth record: %w", err)
	}
	s.mu.Lock()
	s.user, s.pass, s.valid = r.User, r.Pass, false
	s.mu.Unlock()
	s.logger.Debug("credentials restored", "user", r.User)
	return nil
}

// SetLogin installs new material from a login attempt. The material is not
// valid (and not persisted) until MarkValid confirms the engine accepted it.
func (s *Store) SetLogin(user, pass string) {
	s.mu.Lock()
	s.user, s.pass, s.valid = user, pass, false
	s.mu.Unlock()
}

// HasMaterial reports whether any user/pass pair is installed.
func (s *Store) HasMaterial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != "" || s.pass != ""
}

// Valid reports whether the current material has been accepted by the engine.
func (s *Store) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// User returns the current user name.
func (s *Store) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Header derives the Basic auth header from the current material.
// ok is false when no material is installed.
func (s *Store) Header() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == "" && s.pass == "" {
		return "", false
	}
	tok := base64.StdEncoding.EncodeToString([]byte(s.user + ":" + s.pass))
	return "Basic " + tok, true
}

// MarkValid flags the material as accepted and persists it.
func (s *Store) MarkValid(ctx context.Context) error {
	s.mu.Lock()
	s.valid = true
	r := record{User: s.user, Pass: s.pass}
	s.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("creds: encode auth record: %w", err)
	}
	if err := s.st.Save(ctx, state.RecordAuth, data); err != nil {
		return err
	}
	s.logger.Info("credentials persisted", "user", r.User)
	return nil
}

// Invalidate clears the material and the durable record. In-flight requests
// lose their auth source, so their eventual failures classify as
// already-logged-out rather than fresh auth errors.
func (s *Store) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.user, s.pass, s.valid = "", "", false
	s.mu.Unlock()

	if err := s.st.Delete(ctx, state.RecordAuth); err != nil {
		return err
	}
	s.logger.Info("credentials invalidated")
	return nil
}
