// Package logbuf keeps the most recent log records in memory so the API can
// show what the assistant has been doing.
package logbuf

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is a captured log record.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     slog.Level     `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Query selects entries. Zero values match everything.
type Query struct {
	Since time.Time
	// MinLevel drops entries below it when set.
	MinLevel  slog.Leveler
	Component string
	// Contains matches the message case-insensitively.
	Contains string
	// Limit keeps the newest matches. 0 keeps all.
	Limit int
}

func (q Query) match(e Entry) bool {
	if !q.Since.IsZero() && e.Time.Before(q.Since) {
		return false
	}
	if q.MinLevel != nil && e.Level < q.MinLevel.Level() {
		return false
	}
	if q.Component != "" && e.Component != q.Component {
		return false
	}
	if q.Contains != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(q.Contains)) {
		return false
	}
	return true
}

// Buffer is a fixed-size ring of entries, safe for concurrent use.
type Buffer struct {
	mu   sync.Mutex
	ring []Entry
	next int
	full bool
}

// New creates a buffer holding up to size entries.
func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{ring: make([]Entry, size)}
}

// Add stores e, evicting the oldest entry when full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.next] = e
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.ring)
	}
	return b.next
}

// Find returns matching entries, oldest first. The result is never nil.
func (b *Buffer) Find(q Query) []Entry {
	b.mu.Lock()
	ordered := make([]Entry, 0, len(b.ring))
	if b.full {
		ordered = append(ordered, b.ring[b.next:]...)
	}
	ordered = append(ordered, b.ring[:b.next]...)
	b.mu.Unlock()

	out := []Entry{}
	for _, e := range ordered {
		if q.match(e) {
			out = append(out, e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}
