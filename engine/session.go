package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/capsight/capsight/remote"
)

// RunSession is the session synchronizer loop: an immediate fetch, then one
// per tick of the configured interval. Interval changes from the settings
// store reset the ticker in place. Blocks until ctx is cancelled.
func (e *Engine) RunSession(ctx context.Context) {
	interval := e.settings.Current().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	updates := e.settings.Updates()

	e.logger.Info("session synchronizer started", "interval", interval)
	e.PollSession(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("session synchronizer stopped")
			return
		case s := <-updates:
			if s.PollInterval != interval {
				interval = s.PollInterval
				ticker.Reset(interval)
				e.logger.Info("poll interval changed", "interval", interval)
			}
		case <-ticker.C:
			e.PollSession(ctx)
		}
	}
}

// PollSession performs one session tick. A paused tick re-emits the cached
// snapshot without touching the network; a live tick fetches, classifies
// failure as auth vs transient, and applies the result. There is no backoff:
// the next scheduled tick is the sole retry mechanism.
func (e *Engine) PollSession(ctx context.Context) {
	e.sessionTicks.Add(1)

	if e.gate.Paused() {
		e.pausedTicks.Add(1)
		if snap, ok := e.snapCache.Get(); ok {
			e.SessionData.Emit(snap)
		}
		return
	}

	snap, latency, err := e.remote.Session(ctx, e.takeSessionFrom())
	if err != nil {
		e.sessionFailed(ctx, err)
		return
	}
	e.lastLatency.Store(int64(latency))

	if err := e.applySnapshot(ctx, snap); err != nil {
		// applySnapshot already forced the logout; nothing more to do here.
		e.logger.Warn("snapshot rejected", "error", err)
	}
}

// applySnapshot runs the success path for a fetched snapshot: version gate,
// the exactly-once logged-in transition, muted-set reconciliation, and the
// atomic replacement + new-data signal.
func (e *Engine) applySnapshot(ctx context.Context, snap *remote.Snapshot) error {
	if e.cfg.Production && e.cfg.MinVersion != "" && versionLess(snap.Version, e.cfg.MinVersion) {
		err := &IncompatibleVersionError{Have: snap.Version, Need: e.cfg.MinVersion}
		e.forceLogout(ctx, err)
		return err
	}

	if !e.creds.Valid() {
		if err := e.creds.MarkValid(ctx); err != nil {
			e.logger.Warn("credential persistence failed", "error", err)
		}
		e.LoggedIn.Emit(struct{}{})
		e.logger.Info("logged in", "engine_version", snap.Version)
	}

	e.reconcileMuted(ctx, snap)
	e.replaying.Store(snap.Replaying())

	e.snapCache.Set(snap)
	e.SessionData.Emit(snap)
	return nil
}

// sessionFailed classifies a fetch failure. Auth failures force a logout;
// anything else keeps the previous snapshot on display and surfaces the
// error on the session-error channel. A failure arriving after the
// credentials were already cleared is a late echo of the logout, not news.
func (e *Engine) sessionFailed(ctx context.Context, err error) {
	e.fetchFailures.Add(1)

	if !e.creds.HasMaterial() {
		e.logger.Debug("session fetch failed after logout", "error", err)
		return
	}
	if remote.IsUnauthorized(err) {
		e.forceLogout(ctx, err)
		return
	}

	if snap, ok := e.snapCache.Get(); ok {
		e.SessionData.Emit(snap)
	}
	e.SessionErrors.Emit(err)
	e.logger.Warn("session fetch failed", "error", err)
}

// forceLogout invalidates the credentials (memory and durable record) and
// emits logged-out with the cause. The stale snapshot stays cached so the
// view can keep displaying it behind the login prompt.
func (e *Engine) forceLogout(ctx context.Context, cause error) {
	if err := e.creds.Invalidate(ctx); err != nil {
		e.logger.Warn("credential invalidation failed", "error", err)
	}
	e.LoggedOut.Emit(cause)
	e.logger.Warn("forced logout", "reason", cause)
}

// Login installs the material and verifies it with an immediate fetch.
// On success the snapshot is applied exactly as a polled one would be.
func (e *Engine) Login(ctx context.Context, user, pass string) error {
	e.creds.SetLogin(user, pass)
	snap, latency, err := e.remote.Session(ctx, -1)
	if err != nil {
		return err
	}
	e.lastLatency.Store(int64(latency))
	return e.applySnapshot(ctx, snap)
}

// Logout discards the session: credentials, durable record and both caches.
func (e *Engine) Logout(ctx context.Context) {
	if err := e.creds.Invalidate(ctx); err != nil {
		e.logger.Warn("credential invalidation failed", "error", err)
	}
	e.snapCache.Clear()
	e.eventsCache.Clear()
	e.LoggedOut.Emit(nil)
	e.logger.Info("logged out")
}

// reconcileMuted heals divergence between the local muted set and the
// engine's ignore list in both directions: locally-muted tags missing from
// the server list are re-issued as events.ignore commands (reconnection or
// engine restart lost them), and server-ignored tags missing locally are
// absorbed into the muted-set cache (another client muted them).
func (e *Engine) reconcileMuted(ctx context.Context, snap *remote.Snapshot) {
	local := e.settings.Current().MutedTags
	localSet := make(map[string]bool, len(local))
	for _, tag := range local {
		localSet[tag] = true
	}
	server := make(map[string]bool, len(snap.IgnoredTags))
	for _, tag := range snap.IgnoredTags {
		server[tag] = true
	}

	for _, tag := range local {
		if server[tag] {
			continue
		}
		if err := e.remote.Command(ctx, "events.ignore "+tag); err != nil {
			e.logger.Warn("mute reconciliation failed", "tag", tag, "error", err)
			continue
		}
		e.logger.Debug("mute reconciled", "tag", tag)
	}

	var absorb []string
	for _, tag := range snap.IgnoredTags {
		if !localSet[tag] {
			absorb = append(absorb, tag)
		}
	}
	if len(absorb) > 0 {
		if err := e.settings.AbsorbMuted(ctx, absorb); err != nil {
			e.logger.Warn("muted-set absorb failed", "tags", absorb, "error", err)
		} else {
			e.logger.Debug("server mutes absorbed", "tags", absorb)
		}
	}
}

// versionLess compares dotted numeric versions, ignoring any pre-release
// suffix on a component. Missing components count as zero.
func versionLess(have, need string) bool {
	hp := strings.Split(have, ".")
	np := strings.Split(need, ".")
	for i := 0; i < len(hp) || i < len(np); i++ {
		h, n := 0, 0
		if i < len(hp) {
			h = leadingInt(hp[i])
		}
		if i < len(np) {
			n = leadingInt(np[i])
		}
		if h != n {
			return h < n
		}
	}
	return false
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
