// Package contextstore persists per-user conversation contexts with a TTL.
// The production backend is Redis; a memory backend serves development and
// tests. The store degrades gracefully: when the backend is unreachable,
// reads yield a fresh context and writes become no-ops, so a conversation
// continues statelessly instead of failing.
package contextstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/coursesense/nlu"
)

// DefaultTTL is the idle lifetime of one conversation document.
const DefaultTTL = 30 * time.Minute

// availabilityWindow is how long one backend availability probe is trusted.
const availabilityWindow = 5 * time.Minute

// Backend is the minimal KV surface the store needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ErrNotFound is returned by backends for absent keys.
var ErrNotFound = errors.New("contextstore: not found")

// Store owns conversation context lifetimes.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time

	mu          sync.Mutex
	available   bool
	lastProbeAt time.Time
}

// New builds a store over the backend with the default TTL.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// SetTTL overrides the conversation TTL.
func (s *Store) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// SetClock overrides the time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func contextKey(userID string) string {
	return "conversation:" + userID
}

// Available reports backend availability, probing at most once per window.
func (s *Store) Available(ctx context.Context) bool {
	s.mu.Lock()
	if !s.lastProbeAt.IsZero() && s.now().Sub(s.lastProbeAt) < availabilityWindow {
		available := s.available
		s.mu.Unlock()
		return available
	}
	s.mu.Unlock()

	err := s.backend.Ping(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProbeAt = s.now()
	s.available = err == nil
	if err != nil {
		slog.Warn("context backend unavailable, conversations degrade to stateless", "error", err)
	}
	return s.available
}

// markUnavailable flips the cached probe after an operational failure.
func (s *Store) markUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = false
	s.lastProbeAt = s.now()
}

// Get loads the user's conversation context. A missing, expired, or
// unreadable document and an unavailable backend all yield a fresh context.
func (s *Store) Get(ctx context.Context, userID string) *nlu.ConversationContext {
	if !s.Available(ctx) {
		return nlu.NewContext(userID)
	}

	raw, err := s.backend.Get(ctx, contextKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nlu.NewContext(userID)
	}
	if err != nil {
		slog.Warn("context read failed, starting fresh", "user_id", userID, "error", err)
		s.markUnavailable()
		return nlu.NewContext(userID)
	}

	var conv nlu.ConversationContext
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		slog.Warn("context document corrupt, starting fresh", "user_id", userID, "error", err)
		return nlu.NewContext(userID)
	}
	if conv.Expired(s.ttl, s.now()) {
		return nlu.NewContext(userID)
	}
	conv.UserID = userID
	return &conv
}

// Save persists the context with the TTL. Bounded-size invariants are
// enforced before writing. Returns false when the write was skipped.
func (s *Store) Save(ctx context.Context, conv *nlu.ConversationContext) bool {
	if conv == nil || conv.UserID == "" {
		return false
	}
	if !s.Available(ctx) {
		return false
	}

	conv.Truncate()
	conv.Touch(s.now())

	raw, err := json.Marshal(conv)
	if err != nil {
		slog.Error("context marshal failed", "user_id", conv.UserID, "error", err)
		return false
	}
	if err := s.backend.Set(ctx, contextKey(conv.UserID), string(raw), s.ttl); err != nil {
		slog.Warn("context write failed", "user_id", conv.UserID, "error", err)
		s.markUnavailable()
		return false
	}
	return true
}

// Clear removes the user's conversation document.
func (s *Store) Clear(ctx context.Context, userID string) bool {
	if !s.Available(ctx) {
		return false
	}
	if err := s.backend.Del(ctx, contextKey(userID)); err != nil {
		slog.Warn("context clear failed", "user_id", userID, "error", err)
		s.markUnavailable()
		return false
	}
	return true
}

// SetExpectedInput records a pending flow awaiting the listed inputs.
func (s *Store) SetExpectedInput(ctx context.Context, userID string, pending *nlu.PendingSlots, inputs ...string) {
	conv := s.Get(ctx, userID)
	conv.ExpectingInput = inputs
	conv.Pending = pending
	if pending != nil && pending.CreatedAtMs == 0 {
		pending.CreatedAtMs = s.now().UnixMilli()
	}
	s.Save(ctx, conv)
}

// ClearExpectedInput drops the pending flow and its expectations.
func (s *Store) ClearExpectedInput(ctx context.Context, userID string) {
	conv := s.Get(ctx, userID)
	if len(conv.ExpectingInput) == 0 && conv.Pending == nil {
		return
	}
	conv.ExpectingInput = nil
	conv.Pending = nil
	conv.CurrentFlow = nlu.FlowNone
	s.Save(ctx, conv)
}

// RecordUserMessage appends a user turn and its mentioned entities.
func (s *Store) RecordUserMessage(ctx context.Context, userID, text string, intent nlu.Intent, slots *nlu.Slots) {
	conv := s.Get(ctx, userID)
	conv.AddHistory(nlu.HistoryEntry{
		Role:        "user",
		Text:        text,
		Intent:      intent,
		Slots:       slots,
		TimestampMs: s.now().UnixMilli(),
	})
	if slots != nil {
		conv.MentionStudent(slots.StudentName)
		conv.MentionCourse(slots.CourseName)
		conv.MentionDate(slots.CourseDate)
		conv.MentionTime(slots.ScheduleTime)
	}
	s.Save(ctx, conv)
}

// RecordBotResponse appends a bot turn.
func (s *Store) RecordBotResponse(ctx context.Context, userID, text string, quickReply bool) {
	conv := s.Get(ctx, userID)
	conv.AddHistory(nlu.HistoryEntry{
		Role:        "bot",
		Text:        text,
		QuickReply:  quickReply,
		TimestampMs: s.now().UnixMilli(),
	})
	s.Save(ctx, conv)
}

// RecordTaskResult stores an executed action for follow-up turns. A
// success opens the confirmation window: the next turn may confirm or
// modify what was just done.
func (s *Store) RecordTaskResult(ctx context.Context, userID string, rec nlu.ActionRecord) {
	conv := s.Get(ctx, userID)
	if rec.TimestampMs == 0 {
		rec.TimestampMs = s.now().UnixMilli()
	}
	conv.RecordAction(rec)
	if rec.Success {
		conv.CurrentFlow = nlu.FlowForIntent(rec.Intent)
		conv.ExpectingInput = []string{nlu.InputConfirmation, nlu.InputModification}
	}
	s.Save(ctx, conv)
}

// SetActiveQuerySession pins the query subject for follow-up questions.
func (s *Store) SetActiveQuerySession(ctx context.Context, userID string, session *nlu.QuerySession) {
	conv := s.Get(ctx, userID)
	conv.ActiveQuery = session
	s.Save(ctx, conv)
}

// GetLastAction returns the newest recorded action for the user.
func (s *Store) GetLastAction(ctx context.Context, userID string) (nlu.ActionRecord, bool) {
	return s.Get(ctx, userID).MostRecentAction()
}

// HealthCheck probes the backend directly, bypassing the availability cache.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return errors.Wrap(err, "context backend ping")
	}
	return nil
}
