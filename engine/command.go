package engine

import "context"

// Run executes a command synchronously: the caller sees the engine's
// acceptance or the error. The explicit user pause is dropped first, since
// issuing a command means the user wants live feedback; view-owned holds
// (hover, menu) are left alone.
func (e *Engine) Run(ctx context.Context, cmd string) error {
	e.gate.Set(HoldUser, false)
	return e.remote.Command(ctx, cmd)
}

// Dispatch fires the same request without waiting. Failures go to the
// shared command-error signal; callers that need to chain behavior on the
// outcome must use Run instead.
func (e *Engine) Dispatch(ctx context.Context, cmd string) {
	e.gate.Set(HoldUser, false)
	go func() {
		if err := e.remote.Command(ctx, cmd); err != nil {
			e.CommandErrors.Emit(err)
			e.logger.Warn("dispatched command failed", "cmd", cmd, "error", err)
		}
	}()
}

// ReadFile fetches a file from the engine host.
func (e *Engine) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return e.remote.ReadFile(ctx, name)
}

// WriteFile replaces a file on the engine host. Like a command, a write is
// an explicit user action and drops the user pause.
func (e *Engine) WriteFile(ctx context.Context, name string, data []byte) error {
	e.gate.Set(HoldUser, false)
	return e.remote.WriteFile(ctx, name, data)
}

// MuteTag mutes an event tag locally and on the engine.
func (e *Engine) MuteTag(ctx context.Context, tag string) error {
	if err := e.settings.Mute(ctx, tag); err != nil {
		return err
	}
	return e.remote.Command(ctx, "events.ignore "+tag)
}

// UnmuteTag reverses MuteTag.
func (e *Engine) UnmuteTag(ctx context.Context, tag string) error {
	if err := e.settings.Unmute(ctx, tag); err != nil {
		return err
	}
	return e.remote.Command(ctx, "events.include "+tag)
}
