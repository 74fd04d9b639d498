// Package trace records per-message decision trails. Every webhook message
// gets a trace id; each pipeline stage appends one entry, mirrored to the
// structured log and kept in a bounded in-memory ring for the debug
// endpoint.
package trace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const ringSize = 200

// Entry is one recorded pipeline decision.
type Entry struct {
	TraceID   string         `json:"traceId"`
	Stage     string         `json:"stage"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Recorder keeps the most recent decision entries in a fixed-size ring.
type Recorder struct {
	mu      sync.Mutex
	entries [ringSize]Entry
	next    int
	filled  bool
	now     func() time.Time
}

// NewRecorder creates a new instance of Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// SetClock overrides the time source, for tests.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// NewTraceID mints an id for one inbound message.
func NewTraceID() string {
	return uuid.NewString()
}

// Log appends a stage decision and mirrors it to the structured log.
func (r *Recorder) Log(traceID, stage string, fields map[string]any) {
	entry := Entry{
		TraceID:   traceID,
		Stage:     stage,
		Fields:    fields,
		Timestamp: r.now(),
	}

	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % ringSize
	if r.next == 0 {
		r.filled = true
	}
	r.mu.Unlock()

	args := []any{"traceId", traceID, "stage", stage}
	for k, v := range fields {
		args = append(args, k, v)
	}
	slog.Debug("decision", args...)
}

// ByTraceID returns the recorded entries of one trace, oldest first.
func (r *Recorder) ByTraceID(traceID string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, entry := range r.ordered() {
		if entry.TraceID == traceID {
			out = append(out, entry)
		}
	}
	return out
}

// Recent returns up to limit newest entries, newest first.
func (r *Recorder) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := r.ordered()
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}
	out := make([]Entry, 0, limit)
	for i := len(ordered) - 1; i >= len(ordered)-limit; i-- {
		out = append(out, ordered[i])
	}
	return out
}

// ordered lists the ring contents oldest first. Caller holds the lock.
func (r *Recorder) ordered() []Entry {
	if !r.filled {
		return r.entries[:r.next]
	}
	out := make([]Entry, 0, ringSize)
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
