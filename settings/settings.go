// Package settings holds the connection target, polling cadence, display
// limits and persisted UI preferences (pinned items, muted event tags).
// Every mutation is written through to the durable store immediately; other
// components observe changes through Updates rather than re-reading the
// store.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/capsight/capsight/signal"
	"github.com/capsight/capsight/state"
)

// Settings is one consistent view of the client configuration.
type Settings struct {
	Scheme  string // http or https
	Host    string
	Port    int
	APIPath string // e.g. "/api"

	PollInterval time.Duration
	EventWindow  int // most-recent-N bound on event fetches

	MutedTags   []string
	PinnedItems []string
}

// BaseURL builds the engine API base from the connection target.
func (s Settings) BaseURL() string {
	return s.Scheme + "://" + s.Host + ":" + strconv.Itoa(s.Port) + s.APIPath
}

// Muted reports whether tag is in the muted set.
func (s Settings) Muted(tag string) bool { return slices.Contains(s.MutedTags, tag) }

// Pinned reports whether item is in the pinned set.
func (s Settings) Pinned(item string) bool { return slices.Contains(s.PinnedItems, item) }

func (s *Settings) defaults() {
	if s.Scheme == "" {
		s.Scheme = "http"
	}
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port <= 0 {
		s.Port = 8081
	}
	if s.APIPath == "" {
		s.APIPath = "/api"
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	if s.EventWindow <= 0 {
		s.EventWindow = 50
	}
}

func (s Settings) clone() Settings {
	s.MutedTags = slices.Clone(s.MutedTags)
	s.PinnedItems = slices.Clone(s.PinnedItems)
	return s
}

// record is the durable JSON form; the interval is stored in milliseconds.
type record struct {
	Scheme      string   `json:"scheme"`
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	APIPath     string   `json:"api_path"`
	PollMs      int64    `json:"poll_ms"`
	EventWindow int      `json:"event_window"`
	MutedTags   []string `json:"muted_tags"`
	PinnedItems []string `json:"pinned_items"`
}

func toRecord(s Settings) record {
	return record{
		Scheme:      s.Scheme,
		Host:        s.Host,
		Port:        s.Port,
		APIPath:     s.APIPath,
		PollMs:      s.PollInterval.Milliseconds(),
		EventWindow: s.EventWindow,
		MutedTags:   s.MutedTags,
		PinnedItems: s.PinnedItems,
	}
}

func fromRecord(r record) Settings {
	s := Settings{
		Scheme:       r.Scheme,
		Host:         r.Host,
		Port:         r.Port,
		APIPath:      r.APIPath,
		PollInterval: time.Duration(r.PollMs) * time.Millisecond,
		EventWindow:  r.EventWindow,
		MutedTags:    r.MutedTags,
		PinnedItems:  r.PinnedItems,
	}
	s.defaults()
	return s
}

// Store is the settings store. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	cur     Settings
	st      *state.Store
	logger  *slog.Logger
	changes signal.Bus[Settings]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New creates a settings store backed by st, seeded with defaults until Load.
func New(st *state.Store, opts ...Option) *Store {
	s := &Store{st: st, logger: slog.Default()}
	s.cur.defaults()
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load restores the persisted settings record, keeping defaults for anything
// missing. A store with no record yet is not an error.
func (s *Store) Load(ctx context.Context) error {
	data, ok, err := s.st.Load(ctx, state.RecordSettings)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("settings: decode record: %w", err)
	}
	s.mu.Lock()
	s.cur = fromRecord(r)
	s.mu.Unlock()
	s.logger.Debug("settings restored", "target", s.Current().BaseURL())
	return nil
}

// Current returns a copy of the current settings.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.clone()
}

// Updates returns a channel receiving the new settings after every change.
func (s *Store) Updates() <-chan Settings { return s.changes.Listen() }

// mutate applies fn under the lock, persists the result and broadcasts it.
func (s *Store) mutate(ctx context.Context, fn func(*Settings)) error {
	s.mu.Lock()
	fn(&s.cur)
	s.cur.defaults()
	out := s.cur.clone()
	s.mu.Unlock()

	data, err := json.Marshal(toRecord(out))
	if err != nil {
		return fmt.Errorf("settings: encode record: %w", err)
	}
	if err := s.st.Save(ctx, state.RecordSettings, data); err != nil {
		return err
	}
	s.changes.Emit(out)
	return nil
}

// SetTarget changes the connection target.
func (s *Store) SetTarget(ctx context.Context, scheme, host string, port int, apiPath string) error {
	return s.mutate(ctx, func(c *Settings) {
		c.Scheme, c.Host, c.Port, c.APIPath = scheme, host, port, apiPath
	})
}

// SetPollInterval changes the polling cadence.
func (s *Store) SetPollInterval(ctx context.Context, d time.Duration) error {
	return s.mutate(ctx, func(c *Settings) { c.PollInterval = d })
}

// SetEventWindow changes the most-recent-N bound on event fetches.
func (s *Store) SetEventWindow(ctx context.Context, n int) error {
	return s.mutate(ctx, func(c *Settings) { c.EventWindow = n })
}

// Mute adds tag to the muted set. Muting an already-muted tag is a no-op
// that still reports success.
func (s *Store) Mute(ctx context.Context, tag string) error {
	return s.mutate(ctx, func(c *Settings) {
		if !slices.Contains(c.MutedTags, tag) {
			c.MutedTags = append(c.MutedTags, tag)
			slices.Sort(c.MutedTags)
		}
	})
}

// AbsorbMuted adds every tag not already in the muted set, in one persisted
// change. Used to fold the server's ignore list into the local set, so a tag
// muted by another client is honored here too. A call that adds nothing is a
// no-op: nothing is persisted or broadcast.
func (s *Store) AbsorbMuted(ctx context.Context, tags []string) error {
	s.mu.Lock()
	missing := false
	for _, tag := range tags {
		if !slices.Contains(s.cur.MutedTags, tag) {
			missing = true
			break
		}
	}
	s.mu.Unlock()
	if !missing {
		return nil
	}
	return s.mutate(ctx, func(c *Settings) {
		for _, tag := range tags {
			if !slices.Contains(c.MutedTags, tag) {
				c.MutedTags = append(c.MutedTags, tag)
			}
		}
		slices.Sort(c.MutedTags)
	})
}

// Unmute removes tag from the muted set.
func (s *Store) Unmute(ctx context.Context, tag string) error {
	return s.mutate(ctx, func(c *Settings) {
		c.MutedTags = slices.DeleteFunc(c.MutedTags, func(t string) bool { return t == tag })
	})
}

// Pin adds item to the pinned set.
func (s *Store) Pin(ctx context.Context, item string) error {
	return s.mutate(ctx, func(c *Settings) {
		if !slices.Contains(c.PinnedItems, item) {
			c.PinnedItems = append(c.PinnedItems, item)
			slices.Sort(c.PinnedItems)
		}
	})
}

// Unpin removes item from the pinned set.
func (s *Store) Unpin(ctx context.Context, item string) error {
	return s.mutate(ctx, func(c *Settings) {
		c.PinnedItems = slices.DeleteFunc(c.PinnedItems, func(i string) bool { return i == item })
	})
}
