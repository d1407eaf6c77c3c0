// Package engine is the synchronization core: it keeps the local view of the
// remote session snapshot and event log current by polling on a timer,
// degrades to the last known-good value when a fetch fails or the pause gate
// is raised, classifies authentication failures apart from transient ones,
// and feeds the notification deduplicator. Consumers subscribe to the typed
// signal buses; none of the shared state is read directly.
package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capsight/capsight/creds"
	"github.com/capsight/capsight/notify"
	"github.com/capsight/capsight/remote"
	"github.com/capsight/capsight/settings"
	"github.com/capsight/capsight/signal"
	"github.com/capsight/capsight/state"
)

// Config tunes the engine.
type Config struct {
	// Production enables the version-compatibility gate. Outside production
	// the check is skipped to ease development against local engine builds.
	Production bool
	// MinVersion is the oldest engine version the client supports.
	MinVersion string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine owns both synchronizers, the command dispatcher and the
// notification pipeline.
type Engine struct {
	remote   *remote.Client
	creds    *creds.Store
	settings *settings.Store
	gate     *Gate
	dedup    *notify.Deduper
	cfg      Config
	logger   *slog.Logger

	snapCache   state.Cache[*remote.Snapshot]
	eventsCache state.Cache[[]remote.Event]

	mu          sync.Mutex
	sessionFrom int // one-shot, -1 when unset
	eventsFrom  int

	firstEvents atomic.Bool // true until the first successful events fetch
	replaying   atomic.Bool
	lastLatency atomic.Int64 // nanoseconds

	sessionTicks  atomic.Int64
	eventTicks    atomic.Int64
	pausedTicks   atomic.Int64
	fetchFailures atomic.Int64

	// Emitted signals, consumed by the view layer.
	SessionData   signal.Bus[*remote.Snapshot]
	EventsData    signal.Bus[[]remote.Event]
	Notifications signal.Bus[notify.Notification]
	LoggedIn      signal.Bus[struct{}]
	LoggedOut     signal.Bus[error]
	SessionErrors signal.Bus[error]
	CommandErrors signal.Bus[error]
}

// New creates an Engine. Call RunSession and RunEvents in goroutines to
// start polling.
func New(rc *remote.Client, cs *creds.Store, st *settings.Store, cfg Config) *Engine {
	cfg.defaults()
	e := &Engine{
		remote:      rc,
		creds:       cs,
		settings:    st,
		gate:        NewGate(),
		dedup:       notify.NewDeduper(),
		cfg:         cfg,
		logger:      cfg.Logger,
		sessionFrom: -1,
		eventsFrom:  -1,
	}
	e.firstEvents.Store(true)
	return e
}

// Gate returns the shared pause gate.
func (e *Engine) Gate() *Gate { return e.gate }

// Snapshot returns the last known-good session snapshot.
func (e *Engine) Snapshot() (*remote.Snapshot, bool) { return e.snapCache.Get() }

// Events returns the last known-good event list.
func (e *Engine) Events() ([]remote.Event, bool) { return e.eventsCache.Get() }

// Replaying reports whether the remote engine is replaying a recording.
func (e *Engine) Replaying() bool { return e.replaying.Load() }

// SetSessionFrom arms a one-shot frame offset for the next session fetch.
func (e *Engine) SetSessionFrom(n int) {
	e.mu.Lock()
	e.sessionFrom = n
	e.mu.Unlock()
}

// SetEventsFrom arms a one-shot frame offset for the next events fetch.
func (e *Engine) SetEventsFrom(n int) {
	e.mu.Lock()
	e.eventsFrom = n
	e.mu.Unlock()
}

func (e *Engine) takeSessionFrom() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.sessionFrom
	e.sessionFrom = -1
	return n
}

func (e *Engine) takeEventsFrom() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.eventsFrom
	e.eventsFrom = -1
	return n
}

// Stats is a point-in-time view of the sync counters.
type Stats struct {
	SessionTicks  int64         `json:"session_ticks"`
	EventTicks    int64         `json:"event_ticks"`
	PausedTicks   int64         `json:"paused_ticks"`
	FetchFailures int64         `json:"fetch_failures"`
	LastLatency   time.Duration `json:"last_latency"`
	SeenKeys      int           `json:"seen_keys"`
	Replaying     bool          `json:"replaying"`
	Paused        bool          `json:"paused"`
	LoggedIn      bool          `json:"logged_in"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		SessionTicks:  e.sessionTicks.Load(),
		EventTicks:    e.eventTicks.Load(),
		PausedTicks:   e.pausedTicks.Load(),
		FetchFailures: e.fetchFailures.Load(),
		LastLatency:   time.Duration(e.lastLatency.Load()),
		SeenKeys:      e.dedup.SeenCount(),
		Replaying:     e.replaying.Load(),
		Paused:        e.gate.Paused(),
		LoggedIn:      e.creds.Valid(),
	}
}
