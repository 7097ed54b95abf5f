// Package missions implements the mission lifecycle: activity-gated
// spawning, reaction acceptance, card commitment with a frozen outcome, and
// the resolution sweeps.
package missions

import (
	"sync"
	"time"
)

// ActivityWindow is how long recorded chatter counts toward spawning.
const ActivityWindow = time.Hour

// ActivitySnapshot is one guild's chatter inside the current window.
type ActivitySnapshot struct {
	Messages    int
	Authors     int
	WindowStart time.Time
}

// ActivityTracker records guild chatter for the spawn sweep. Implementations
// must be safe for concurrent use; the gateway handler records from event
// goroutines while the sweep reads.
type ActivityTracker interface {
	Record(guildID, userID string)
	Snapshot(guildID string) ActivitySnapshot
	Reset(guildID string)
	Guilds() []string
}

type guildWindow struct {
	start    time.Time
	messages int
	authors  map[string]struct{}
}

// memoryTracker keeps per-guild sliding windows in memory. Counters restart
// from zero when the window rolls over; nothing survives a restart, which
// only delays the next spawn by at most one window.
type memoryTracker struct {
	mu      sync.Mutex
	windows map[string]*guildWindow
	now     func() time.Time
}

// NewActivityTracker returns the in-memory tracker.
func NewActivityTracker() ActivityTracker {
	return &memoryTracker{
		windows: make(map[string]*guildWindow),
		now:     time.Now,
	}
}

func (t *memoryTracker) Record(guildID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	window := t.windows[guildID]
	if window == nil || now.Sub(window.start) > ActivityWindow {
		window = &guildWindow{start: now, authors: make(map[string]struct{})}
		t.windows[guildID] = window
	}
	window.messages++
	window.authors[userID] = struct{}{}
}

func (t *memoryTracker) Snapshot(guildID string) ActivitySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.windows[guildID]
	if window == nil || t.now().Sub(window.start) > ActivityWindow {
		return ActivitySnapshot{}
	}
	return ActivitySnapshot{
		Messages:    window.messages,
		Authors:     len(window.authors),
		WindowStart: window.start,
	}
}

func (t *memoryTracker) Reset(guildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows[guildID] = &guildWindow{start: t.now(), authors: make(map[string]struct{})}
}

func (t *memoryTracker) Guilds() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.windows))
	for guildID := range t.windows {
		out = append(out, guildID)
	}
	return out
}
