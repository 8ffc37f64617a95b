package logging

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one retained log record, shaped for the admin JSON endpoints.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// Ring retains the most recent log entries in memory. It backs the admin
// /api/admin/logs surface: bounded capacity, entries older than the
// retention window dropped lazily on read.
type Ring struct {
	mu        sync.Mutex
	entries   []Entry
	capacity  int
	retention time.Duration
}

// NewRing returns a ring holding at most capacity entries for at most
// retention (0 disables age-based expiry).
func NewRing(capacity int, retention time.Duration) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{capacity: capacity, retention: retention}
}

// Append records one entry, evicting the oldest when full.
func (r *Ring) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// Entries returns a copy of the retained entries, newest last, with expired
// records pruned.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the retained entry count after pruning.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.entries)
}

// Clear drops every retained entry.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

func (r *Ring) pruneLocked() {
	if r.retention <= 0 || len(r.entries) == 0 {
		return
	}
	cutoff := time.Now().Add(-r.retention)
	firstLive := len(r.entries)
	for i, e := range r.entries {
		if e.Timestamp.After(cutoff) {
			firstLive = i
			break
		}
	}
	r.entries = r.entries[firstLive:]
}

// ringCore tees zap output into a Ring so operators can read recent warnings
// without log aggregation infrastructure.
type ringCore struct {
	zapcore.LevelEnabler
	ring   *Ring
	fields []zapcore.Field
}

func newRingCore(ring *Ring, min zapcore.Level) zapcore.Core {
	return &ringCore{LevelEnabler: min, ring: ring}
}

func (c *ringCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &ringCore{LevelEnabler: c.LevelEnabler, ring: c.ring}
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return clone
}

func (c *ringCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *ringCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	var ctxFields map[string]any
	if len(enc.Fields) > 0 {
		ctxFields = enc.Fields
	}
	c.ring.Append(Entry{
		Timestamp: ent.Time,
		Level:     ent.Level.String(),
		Message:   ent.Message,
		Context:   ctxFields,
	})
	return nil
}

func (c *ringCore) Sync() error { return nil }
