package nlu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/timeparse"
)

// fixedClock pins tests to Sunday 2025-08-10 10:00 Taipei.
func fixedClock() time.Time {
	return time.Date(2025, 8, 10, 10, 0, 0, 0, timeparse.Location("Asia/Taipei"))
}

func newTestExtractor(enhancer SlotEnhancer) *Extractor {
	e := NewExtractor(config.MustNew(), enhancer, "Asia/Taipei")
	e.SetClock(fixedClock)
	return e
}

func TestExtractAddCourse(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "小明明天下午2點要上數學課", IntentAddCourse, nil)

	assert.Equal(t, "小明", slots.StudentName)
	assert.Equal(t, "數學課", slots.CourseName)
	assert.Equal(t, "14:00", slots.ScheduleTime)
	assert.Equal(t, "2025-08-11", slots.CourseDate)
	assert.Equal(t, "tomorrow", slots.TimeReference)
	require.NotNil(t, slots.TimeInfo)
	assert.Equal(t, "2025-08-11", slots.TimeInfo.Date)
	assert.True(t, IsCompleteForIntent(slots, IntentAddCourse))
}

func TestExtractMissingStudent(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "明天下午3點要上數學課", IntentAddCourse, nil)

	assert.Empty(t, slots.StudentName)
	assert.Equal(t, "數學課", slots.CourseName)
	assert.Equal(t, "15:00", slots.ScheduleTime)
	assert.Equal(t, []string{"studentName"}, MissingFieldsForIntent(slots, IntentAddCourse))
}

func TestExtractPossessive(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "取消小明的晨練課", IntentCancelCourse, nil)
	assert.Equal(t, "小明", slots.StudentName)
	assert.Equal(t, "晨練課", slots.CourseName)

	slots = e.Extract(context.Background(), "提醒我小明的物理課", IntentSetReminder, nil)
	assert.Equal(t, "小明", slots.StudentName)
	assert.Equal(t, "物理課", slots.CourseName)
}

func TestExtractQuery(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "小王今天有什麼課？", IntentQuerySchedule, nil)

	assert.Equal(t, "小王", slots.StudentName)
	assert.Empty(t, slots.CourseName, "interrogative must not become a course name")
	assert.Equal(t, "today", slots.TimeReference)
	assert.Equal(t, "2025-08-10", slots.CourseDate)
}

func TestExtractInvalidTime(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "小明明天25點上數學課", IntentAddCourse, nil)

	assert.True(t, slots.InvalidTime)
	assert.Empty(t, slots.ScheduleTime)
}

func TestExtractRecurrence(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "小明每週三晚上7點要上英文課", IntentCreateRecurringCourse, nil)
	assert.True(t, slots.Recurring)
	assert.Equal(t, RecurrenceWeekly, slots.RecurrenceType)
	assert.Equal(t, []int{3}, slots.DayOfWeek)
	assert.Equal(t, "19:00", slots.ScheduleTime)

	slots = e.Extract(context.Background(), "小明每天早上六點晨練課", IntentCreateRecurringCourse, nil)
	assert.Equal(t, RecurrenceDaily, slots.RecurrenceType)

	slots = e.Extract(context.Background(), "每月一次的鋼琴課", IntentCreateRecurringCourse, nil)
	assert.Equal(t, RecurrenceMonthly, slots.RecurrenceType)
}

func TestExtractRecurrenceGatedByFlag(t *testing.T) {
	t.Setenv("ENABLE_RECURRING_COURSES", "false")
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "小明每天早上六點晨練課", IntentCreateRecurringCourse, nil)
	assert.False(t, slots.Recurring)
	assert.Empty(t, slots.RecurrenceType)
}

func TestExtractLocationTeacherReminder(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), "小明明天下午2點在教室A上數學課，王老師，提前15分鐘提醒", IntentAddCourse, nil)

	assert.Equal(t, "教室A", slots.Location)
	assert.Equal(t, "王老師", slots.Teacher)
	assert.Equal(t, 15, slots.ReminderTime)
}

func TestExtractSupplementInput(t *testing.T) {
	e := newTestExtractor(nil)

	conv := NewContext("U1")
	conv.ExpectingInput = []string{InputStudentName}

	slots := e.Extract(context.Background(), "小明", IntentAddCourse, conv)
	assert.Equal(t, "小明", slots.StudentName)

	// Time words never become names.
	slots = e.Extract(context.Background(), "明天", IntentAddCourse, conv)
	assert.Empty(t, slots.StudentName)
}

func TestExtractStudentCandidates(t *testing.T) {
	e := newTestExtractor(nil)

	conv := NewContext("U1")
	conv.MentionStudent("小明")
	conv.MentionStudent("小王")

	slots := e.Extract(context.Background(), "今天有什麼課", IntentQuerySchedule, conv)
	assert.Empty(t, slots.StudentName)
	assert.Len(t, slots.StudentCandidates, 2)
}

func TestExtractQuerySessionAutoFill(t *testing.T) {
	e := newTestExtractor(nil)

	conv := NewContext("U1")
	conv.ActiveQuery = &QuerySession{StudentName: "小明", TimeReference: "today"}

	slots := e.Extract(context.Background(), "那明天呢", IntentQuerySchedule, conv)
	assert.Equal(t, "小明", slots.StudentName)
	assert.Equal(t, "tomorrow", slots.TimeReference, "explicit reference wins over the pin")

	slots = e.Extract(context.Background(), "有什麼課", IntentQuerySchedule, conv)
	assert.Equal(t, "小明", slots.StudentName)
	assert.Equal(t, "today", slots.TimeReference)
}

func TestExtractQuerySessionDisabled(t *testing.T) {
	t.Setenv("DISABLE_CONTEXT_AUTO_FILL", "true")
	e := newTestExtractor(nil)

	conv := NewContext("U1")
	conv.ActiveQuery = &QuerySession{StudentName: "小明"}

	slots := e.Extract(context.Background(), "有什麼課", IntentQuerySchedule, conv)
	assert.Empty(t, slots.StudentName)
}

// stubEnhancer returns canned slots or an error.
type stubEnhancer struct {
	slots Slots
	err   error
	calls int
}

func (s *stubEnhancer) ExtractSlots(_ context.Context, _ string, _ Intent, _ Slots) (Slots, error) {
	s.calls++
	return s.slots, s.err
}

func TestExtractLLMEnhancementMergesNotReplaces(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	enhancer := &stubEnhancer{slots: Slots{StudentName: "小華", CourseName: "英文課", ScheduleTime: "16:00"}}
	e := newTestExtractor(enhancer)

	// Rule pass finds the student but not the rest: low coverage triggers the LLM.
	slots := e.Extract(context.Background(), "小明明天要練習", IntentAddCourse, nil)

	assert.Equal(t, 1, enhancer.calls)
	assert.Equal(t, "小明", slots.StudentName, "rule slot preserved")
	assert.Equal(t, "英文課", slots.CourseName, "gap filled by enhancer")
	assert.Equal(t, "16:00", slots.ScheduleTime)
}

func TestExtractLLMSkippedWhenConfident(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	enhancer := &stubEnhancer{}
	e := newTestExtractor(enhancer)

	e.Extract(context.Background(), "小明明天下午2點要上數學課", IntentAddCourse, nil)
	assert.Zero(t, enhancer.calls, "high-coverage rule pass needs no enhancement")
}

func TestExtractLLMFailureKeepsRuleSlots(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	enhancer := &stubEnhancer{err: errors.New("timeout")}
	e := newTestExtractor(enhancer)

	slots := e.Extract(context.Background(), "小明明天要練習", IntentAddCourse, nil)
	assert.Equal(t, "小明", slots.StudentName)
}
