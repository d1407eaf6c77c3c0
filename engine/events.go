package engine

import (
	"context"
	"time"
)

// RunEvents is the event synchronizer loop. It shares the pause gate and the
// settings cadence with the session loop but fails softly: the session
// synchronizer's own failure path is expected to surface whatever is wrong
// with the connection.
func (e *Engine) RunEvents(ctx context.Context) {
	interval := e.settings.Current().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	updates := e.settings.Updates()

	e.logger.Info("event synchronizer started", "interval", interval)
	e.PollEvents(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("event synchronizer stopped")
			return
		case s := <-updates:
			if s.PollInterval != interval {
				interval = s.PollInterval
				ticker.Reset(interval)
			}
		case <-ticker.C:
			e.PollEvents(ctx)
		}
	}
}

// PollEvents performs one events tick: paused or failed ticks re-emit the
// cached list unchanged, successful ticks replace it, emit new-events and
// feed the notification deduplicator.
func (e *Engine) PollEvents(ctx context.Context) {
	e.eventTicks.Add(1)

	if e.gate.Paused() {
		if list, ok := e.eventsCache.Get(); ok {
			e.EventsData.Emit(list)
		}
		return
	}

	list, err := e.remote.Events(ctx, e.settings.Current().EventWindow, e.takeEventsFrom())
	if err != nil {
		if cached, ok := e.eventsCache.Get(); ok {
			e.EventsData.Emit(cached)
		}
		e.logger.Debug("events fetch failed", "error", err)
		return
	}

	e.eventsCache.Set(list)
	e.EventsData.Emit(list)

	first := e.firstEvents.Swap(false)
	for _, n := range e.dedup.Observe(list, first, e.replaying.Load()) {
		e.Notifications.Emit(n)
		e.logger.Info("notification",
			"severity", n.Severity.String(), "tag", n.Tag, "message", n.Message)
	}
}

// ClearEvents empties the local list immediately and asks the engine to
// clear its log. The local clear is unconditional; the returned error only
// reflects the server-side request.
func (e *Engine) ClearEvents(ctx context.Context) error {
	e.eventsCache.Set(nil)
	e.EventsData.Emit(nil)
	return e.remote.ClearEvents(ctx)
}
