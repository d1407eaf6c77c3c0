package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/capsight/capsight/state"
)

// Watch polls the durable store for out-of-band writes to the settings
// record and applies them, so an edit made by another process (or a second
// capsight instance sharing the state file) is picked up without a restart.
//
// Change detection uses PRAGMA data_version, which SQLite increments on any
// write from another connection. Our own mutations also bump it; those
// reloads are no-ops because the record already matches the current value.
//
// Watch blocks until ctx is cancelled. Run it in a goroutine:
//
//	go store.Watch(ctx, 2*time.Second)
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	db := s.st.DB()

	var lastVersion int64
	db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&lastVersion)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("settings watcher started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settings watcher stopped")
			return
		case <-ticker.C:
			var ver int64
			if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
				s.logger.Warn("settings: data_version poll failed", "error", err)
				continue
			}
			if ver == lastVersion {
				continue
			}
			lastVersion = ver
			if err := s.reloadIfChanged(ctx); err != nil {
				s.logger.Warn("settings: reload failed", "error", err)
			}
		}
	}
}

// reloadIfChanged re-reads the settings record and applies + broadcasts it
// when it differs from the current value.
func (s *Store) reloadIfChanged(ctx context.Context) error {
	data, ok, err := s.st.Load(ctx, state.RecordSettings)
	if err != nil || !ok {
		return err
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	next := fromRecord(r)

	s.mu.Lock()
	curData, err := json.Marshal(toRecord(s.cur))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	nextData, err := json.Marshal(toRecord(next))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if string(curData) == string(nextData) {
		s.mu.Unlock()
		return nil
	}
	s.cur = next
	out := s.cur.clone()
	s.mu.Unlock()

	s.logger.Info("settings reloaded from store", "target", out.BaseURL())
	s.changes.Emit(out)
	return nil
}
