package remote

import (
	"encoding/json"
	"time"
)

// Snapshot is the decoded session resource. The engine serializes far more
// than the client interprets; Raw retains the full body for pass-through
// consumers (diagnostics, MCP) while the typed fields cover everything the
// synchronizer itself acts on.
type Snapshot struct {
	Version     string    `json:"version"`
	Modules     []Module  `json:"modules"`
	IgnoredTags []string  `json:"events_ignore_list"`
	StartedAt   time.Time `json:"started_at"`

	Raw json.RawMessage `json:"-"`
}

// Module is one named engine module with its running flag and state blob.
type Module struct {
	Name    string         `json:"name"`
	Running bool           `json:"running"`
	State   map[string]any `json:"state"`
}

// Module returns the named module, or nil.
func (s *Snapshot) Module(name string) *Module {
	for i := range s.Modules {
		if s.Modules[i].Name == name {
			return &s.Modules[i]
		}
	}
	return nil
}

// Replaying reports whether the engine is replaying a recorded session.
// The api.rest module publishes a replaying flag in its state; rec_frames
// stays populated after a replay ends, so the frame count is not a signal.
func (s *Snapshot) Replaying() bool {
	m := s.Module("api.rest")
	if m == nil {
		return false
	}
	rep, ok := m.State["replaying"].(bool)
	return ok && rep
}

// Event is one record from the engine's event log. Data stays raw: most tags
// carry tag-specific structures the client treats as opaque.
type Event struct {
	Tag  string          `json:"tag"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// LogMessage is the payload of sys.log events.
type LogMessage struct {
	Level   int    `json:"Level"`
	Message string `json:"Message"`
}

// sys.log levels, matching the engine's numeric log levels.
const (
	LogDebug = iota
	LogInfo
	LogImportant
	LogWarning
	LogError
	LogFatal
)

// Log decodes the event's data as a LogMessage. ok is false when the event
// is not a sys.log record or the payload does not decode.
func (e Event) Log() (LogMessage, bool) {
	if e.Tag != "sys.log" {
		return LogMessage{}, false
	}
	var m LogMessage
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return LogMessage{}, false
	}
	return m, true
}

// CommandResult is the engine's response to POST /session.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"msg"`
}
