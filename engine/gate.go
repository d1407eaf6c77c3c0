package engine

import "sync"

// Hold reasons for the pause gate. The view layer raises hover/menu holds
// while the pointer is over an action control or a contextual menu is open;
// the user hold is an explicit pause request.
const (
	HoldUser  = "user"
	HoldHover = "hover"
	HoldMenu  = "menu"
)

// Gate is the composite pause condition shared by both synchronizers.
// While any hold is raised, ticks keep firing on schedule but skip the
// network and re-serve the cached value, freezing perceived state during
// interactive edits without stopping the timers.
type Gate struct {
	mu    sync.Mutex
	holds map[string]struct{}
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{holds: make(map[string]struct{})}
}

// Set raises or drops the named hold.
func (g *Gate) Set(reason string, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on {
		g.holds[reason] = struct{}{}
	} else {
		delete(g.holds, reason)
	}
}

// Paused reports whether any hold is raised.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.holds) > 0
}

// Clear drops every hold, reopening the gate unconditionally.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.holds)
}
