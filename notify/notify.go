// Package notify decides which observed events are surfaced to the user and
// guarantees each distinct event produces at most one notification for the
// lifetime of the process. The first observation after a cold start is
// recorded but never surfaced, so a page-load catch-up fetch cannot flood
// the user with historical notifications; the same applies while the engine
// is replaying a recording.
package notify

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/capsight/capsight/remote"
)

// Severity classifies a notification for presentation.
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notification is the short-lived representation rendered for one untracked
// occurrence of a trackable event.
type Notification struct {
	Severity Severity
	Tag      string
	Message  string
	Time     time.Time
}

// credentialTags are high-value captured-material events that are always
// trackable regardless of shape.
var credentialTags = map[string]bool{
	"wifi.client.handshake": true,
	"net.sniff.leak.http":   true,
	"net.sniff.password":    true,
}

// logExclusions filter out progress-style and payload-dump sys.log entries
// that would otherwise fire a notification every few seconds.
var logExclusions = []string{
	"syn.scan",
	"payload for",
}

// Trackable reports whether e is the kind of event surfaced to the user:
// a module lifecycle transition, a non-noise log entry, or captured
// credential material.
func Trackable(e remote.Event) bool {
	switch e.Tag {
	case "mod.started", "mod.stopped":
		return true
	case "sys.log":
		m, ok := e.Log()
		if !ok {
			return false
		}
		msg := strings.ToLower(m.Message)
		for _, excl := range logExclusions {
			if strings.Contains(msg, excl) {
				return false
			}
		}
		return true
	}
	return credentialTags[e.Tag]
}

// Classify maps an event to a notification severity: success for new/started
// things, warning for stopped/handshake/log-warnings, error for log errors
// and fatals, info for everything else.
func Classify(e remote.Event) Severity {
	if m, ok := e.Log(); ok {
		switch {
		case m.Level >= remote.LogError:
			return Error
		case m.Level == remote.LogWarning:
			return Warning
		default:
			return Info
		}
	}
	switch {
	case e.Tag == "mod.started" || strings.HasSuffix(e.Tag, ".new"):
		return Success
	case e.Tag == "mod.stopped" || strings.HasSuffix(e.Tag, ".lost") ||
		strings.Contains(e.Tag, "handshake"):
		return Warning
	}
	return Info
}

// Key computes the identity under which an event is remembered: the tag, a
// short serialization of primitive data (a constant placeholder otherwise)
// and the timestamp.
func Key(e remote.Event) string {
	return e.Tag + "/" + shortData(e) + "/" + strconv.FormatInt(e.Time.UnixNano(), 10)
}

// shortData returns a bounded textual form of primitive JSON data.
// Objects and arrays collapse to a placeholder: their serialization is
// neither short nor stable enough to key on.
func shortData(e remote.Event) string {
	const max = 32
	data := strings.TrimSpace(string(e.Data))
	if data == "" || data[0] == '{' || data[0] == '[' {
		return "<data>"
	}
	data = strings.Trim(data, `"`)
	if len(data) > max {
		data = data[:max]
	}
	return data
}

// message renders the user-visible text for an event.
func message(e remote.Event) string {
	if m, ok := e.Log(); ok {
		return m.Message
	}
	if d := shortData(e); d != "<data>" {
		return d + " " + e.Tag
	}
	return e.Tag
}

// Deduper remembers every event key it has observed. The seen set grows for
// the lifetime of the process and is never persisted.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// SeenCount returns the size of the seen set.
func (d *Deduper) SeenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Observe inspects the current event list and returns the notifications to
// surface. Every unseen trackable key is recorded; nothing is surfaced when
// first (the initial observation since process start) or replaying is set;
// the keys are still recorded so the same events stay silent later.
func (d *Deduper) Observe(list []remote.Event, first, replaying bool) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Notification
	for _, e := range list {
		if !Trackable(e) {
			continue
		}
		key := Key(e)
		if _, ok := d.seen[key]; ok {
			continue
		}
		d.seen[key] = struct{}{}

		if first || replaying {
			continue
		}
		out = append(out, Notification{
			Severity: Classify(e),
			Tag:      e.Tag,
			Message:  message(e),
			Time:     e.Time,
		})
	}
	return out
}
