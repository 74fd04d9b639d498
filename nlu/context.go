package nlu

import (
	"time"
)

// Conversation flows.
const (
	FlowNone             = "none"
	FlowCourseCreation   = "course_creation"
	FlowCourseModify     = "course_modification"
	FlowContentRecording = "content_recording"
)

// Expected-input tags.
const (
	InputStudentName  = "student_name_input"
	InputCourseName   = "course_name_input"
	InputScheduleTime = "schedule_time_input"
	InputCourseDate   = "course_date_input"
	InputConfirmation = "confirmation"
	InputModification = "modification"
	InputCancellation = "cancellation"
)

const (
	maxHistoryEntries    = 5
	maxMentionedEntities = 10
)

// FlowForIntent maps an executed intent to the conversation flow it opens.
func FlowForIntent(intent Intent) string {
	switch intent {
	case IntentAddCourse, IntentCreateRecurringCourse:
		return FlowCourseCreation
	case IntentModifyCourse:
		return FlowCourseModify
	case IntentRecordContent, IntentAddCourseContent:
		return FlowContentRecording
	}
	return FlowNone
}

// PendingSlots is a partially filled slot record awaiting supplement input.
type PendingSlots struct {
	Intent        Intent   `json:"intent"`
	Slots         Slots    `json:"existingSlots"`
	MissingFields []string `json:"missingFields"`
	CreatedAtMs   int64    `json:"createdAtUnixMs"`
}

// Age returns how long the pending record has existed.
func (p *PendingSlots) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.CreatedAtMs))
}

// ActionRecord captures the outcome of one executed task for follow-ups.
type ActionRecord struct {
	Intent      Intent `json:"intent"`
	Slots       Slots  `json:"slots"`
	Success     bool   `json:"success"`
	Code        string `json:"code"`
	TimestampMs int64  `json:"timestampUnixMs"`
}

// HistoryEntry is one turn of the bounded conversation history.
type HistoryEntry struct {
	Role        string `json:"role"` // user | bot
	Text        string `json:"text"`
	Intent      Intent `json:"intent,omitempty"`
	Slots       *Slots `json:"slots,omitempty"`
	TimestampMs int64  `json:"timestampUnixMs"`
	QuickReply  bool   `json:"quickReply,omitempty"`
}

// MentionedEntities keeps bounded, deduplicated sequences of recently
// mentioned entities, most recent first.
type MentionedEntities struct {
	Students []string `json:"students,omitempty"`
	Courses  []string `json:"courses,omitempty"`
	Dates    []string `json:"dates,omitempty"`
	Times    []string `json:"times,omitempty"`
}

// QuerySession pins the subject of a query for follow-up questions.
type QuerySession struct {
	StudentName   string `json:"studentName,omitempty"`
	TimeReference string `json:"timeReference,omitempty"`
}

// ConversationContext is the per-user multi-turn dialogue state. The
// context store owns its lifetime; this package owns its shape.
type ConversationContext struct {
	UserID         string                  `json:"userId"`
	LastActivityMs int64                   `json:"lastActivityUnixMs"`
	CurrentFlow    string                  `json:"currentFlow"`
	ExpectingInput []string                `json:"expectingInput,omitempty"`
	Pending        *PendingSlots           `json:"pendingData,omitempty"`
	LastActions    map[Intent]ActionRecord `json:"lastActions,omitempty"`
	Mentioned      MentionedEntities       `json:"mentionedEntities"`
	History        []HistoryEntry          `json:"history,omitempty"`
	ActiveQuery    *QuerySession           `json:"activeQuerySession,omitempty"`
}

// NewContext returns a fresh empty context for the user.
func NewContext(userID string) *ConversationContext {
	return &ConversationContext{
		UserID:      userID,
		CurrentFlow: FlowNone,
		LastActions: make(map[Intent]ActionRecord),
	}
}

// Touch updates the activity timestamp.
func (c *ConversationContext) Touch(now time.Time) {
	c.LastActivityMs = now.UnixMilli()
}

// Expired reports whether the document is past its TTL at now.
func (c *ConversationContext) Expired(ttl time.Duration, now time.Time) bool {
	if c.LastActivityMs == 0 {
		return false
	}
	return now.Sub(time.UnixMilli(c.LastActivityMs)) > ttl
}

// AddHistory appends a turn and truncates to the bounded window.
func (c *ConversationContext) AddHistory(entry HistoryEntry) {
	c.History = append(c.History, entry)
	if len(c.History) > maxHistoryEntries {
		c.History = c.History[len(c.History)-maxHistoryEntries:]
	}
}

// ExpectsAny reports whether any of the tags is currently expected.
func (c *ConversationContext) ExpectsAny(tags ...string) bool {
	for _, expected := range c.ExpectingInput {
		for _, tag := range tags {
			if expected == tag {
				return true
			}
		}
	}
	return false
}

// RecordAction stores the outcome of an executed task, keyed by intent.
func (c *ConversationContext) RecordAction(rec ActionRecord) {
	if c.LastActions == nil {
		c.LastActions = make(map[Intent]ActionRecord)
	}
	c.LastActions[rec.Intent] = rec
}

// MostRecentAction returns the newest recorded action, if any.
func (c *ConversationContext) MostRecentAction() (ActionRecord, bool) {
	var newest ActionRecord
	found := false
	for _, rec := range c.LastActions {
		if !found || rec.TimestampMs > newest.TimestampMs {
			newest = rec
			found = true
		}
	}
	return newest, found
}

// MentionStudent records a student mention, deduplicated, newest first.
func (c *ConversationContext) MentionStudent(name string) {
	c.Mentioned.Students = pushBounded(c.Mentioned.Students, name)
}

// MentionCourse records a course mention.
func (c *ConversationContext) MentionCourse(name string) {
	c.Mentioned.Courses = pushBounded(c.Mentioned.Courses, name)
}

// MentionDate records a date mention.
func (c *ConversationContext) MentionDate(date string) {
	c.Mentioned.Dates = pushBounded(c.Mentioned.Dates, date)
}

// MentionTime records a clock-time mention.
func (c *ConversationContext) MentionTime(clock string) {
	c.Mentioned.Times = pushBounded(c.Mentioned.Times, clock)
}

// Truncate enforces the bounded-size invariants before persisting.
func (c *ConversationContext) Truncate() {
	if len(c.History) > maxHistoryEntries {
		c.History = c.History[len(c.History)-maxHistoryEntries:]
	}
	c.Mentioned.Students = capList(c.Mentioned.Students)
	c.Mentioned.Courses = capList(c.Mentioned.Courses)
	c.Mentioned.Dates = capList(c.Mentioned.Dates)
	c.Mentioned.Times = capList(c.Mentioned.Times)
}

func pushBounded(list []string, value string) []string {
	if value == "" {
		return list
	}
	out := []string{value}
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return capList(out)
}

func capList(list []string) []string {
	if len(list) > maxMentionedEntities {
		return list[:maxMentionedEntities]
	}
	return list
}
