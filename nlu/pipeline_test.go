package nlu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/config"
)

// stubClassifier returns a canned guess, an error, or panics.
type stubClassifier struct {
	guess  IntentGuess
	err    error
	panics bool
	calls  int
}

func (s *stubClassifier) ClassifyIntent(_ context.Context, _ string) (IntentGuess, error) {
	s.calls++
	if s.panics {
		panic("classifier blew up")
	}
	return s.guess, s.err
}

func newTestPipeline(classifier IntentClassifier) *Pipeline {
	cfg := config.MustNew()
	extractor := NewExtractor(cfg, nil, "Asia/Taipei")
	extractor.SetClock(fixedClock)
	p := NewPipeline(cfg, NewRuleMatcher(cfg.IntentRules()), extractor, classifier)
	p.SetClock(fixedClock)
	return p
}

func TestDecideSafetyDominates(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	// A confident classifier must never override the safety layer.
	classifier := &stubClassifier{guess: IntentGuess{Intent: IntentQuerySchedule, Confidence: 0.99}}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "提醒我小明的物理課", nil)
	assert.Equal(t, IntentSetReminder, d.Intent)
	assert.Equal(t, "safety", d.Source)

	d = p.Decide(context.Background(), "取消小明的數學課", nil)
	assert.Equal(t, IntentCancelCourse, d.Intent)
	assert.Equal(t, "safety", d.Source)

	assert.Zero(t, classifier.calls)
}

func TestDecideSupplementCompletesPendingFlow(t *testing.T) {
	p := newTestPipeline(nil)

	conv := NewContext("U1")
	conv.ExpectingInput = []string{InputStudentName}
	conv.Pending = &PendingSlots{
		Intent: IntentAddCourse,
		Slots: Slots{
			CourseName:   "數學課",
			ScheduleTime: "14:00",
			CourseDate:   "2025-08-11",
		},
		MissingFields: []string{"studentName"},
		CreatedAtMs:   fixedClock().Add(-30 * time.Second).UnixMilli(),
	}

	d := p.Decide(context.Background(), "小明", conv)

	assert.Equal(t, IntentAddCourse, d.Intent)
	assert.Equal(t, "supplement", d.Source)
	require.NotNil(t, d.Slots)
	assert.Equal(t, "小明", d.Slots.StudentName)
	assert.Equal(t, "數學課", d.Slots.CourseName)
	assert.Equal(t, "14:00", d.Slots.ScheduleTime)
}

func TestDecideSupplementExpiredWindow(t *testing.T) {
	p := newTestPipeline(nil)

	conv := NewContext("U1")
	conv.ExpectingInput = []string{InputStudentName}
	conv.Pending = &PendingSlots{
		Intent:      IntentAddCourse,
		Slots:       Slots{CourseName: "數學課", ScheduleTime: "14:00"},
		CreatedAtMs: fixedClock().Add(-3 * time.Minute).UnixMilli(),
	}

	d := p.Decide(context.Background(), "小明", conv)
	assert.NotEqual(t, "supplement", d.Source)
}

func TestDecideSupplementDomainSwitch(t *testing.T) {
	p := newTestPipeline(nil)

	conv := NewContext("U1")
	conv.ExpectingInput = []string{InputStudentName}
	conv.Pending = &PendingSlots{
		Intent:      IntentAddCourse,
		Slots:       Slots{CourseName: "數學課", ScheduleTime: "14:00"},
		CreatedAtMs: fixedClock().Add(-10 * time.Second).UnixMilli(),
	}

	// The user changed their mind: a schedule query abandons the flow.
	d := p.Decide(context.Background(), "看一下這週課表", conv)
	assert.Equal(t, IntentQuerySchedule, d.Intent)
	assert.NotEqual(t, "supplement", d.Source)
}

func TestDecideSupplementIncompleteStaysPending(t *testing.T) {
	p := newTestPipeline(nil)

	conv := NewContext("U1")
	conv.ExpectingInput = []string{InputStudentName, InputScheduleTime}
	conv.Pending = &PendingSlots{
		Intent:      IntentAddCourse,
		Slots:       Slots{CourseName: "數學課"},
		CreatedAtMs: fixedClock().Add(-10 * time.Second).UnixMilli(),
	}

	// The answer fills one gap but the flow is still incomplete.
	d := p.Decide(context.Background(), "小明", conv)
	assert.NotEqual(t, "supplement", d.Source)
}

func TestDecideLLMAcceptedAboveGate(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{guess: IntentGuess{Intent: IntentQuerySchedule, Confidence: 0.85}}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "小朋友的行程幫我看看", nil)
	assert.Equal(t, IntentQuerySchedule, d.Intent)
	assert.Equal(t, "llm", d.Source)
}

func TestDecideLLMRejectedBelowGate(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{guess: IntentGuess{Intent: IntentAddCourse, Confidence: 0.5}}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "小朋友的行程幫我看看", nil)
	assert.Equal(t, 1, classifier.calls)
	assert.NotEqual(t, "llm", d.Source)
}

func TestDecideLLMErrorFallsThrough(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{err: errors.New("upstream timeout")}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "把數學課改到星期四", nil)
	assert.Equal(t, IntentModifyCourse, d.Intent)
	assert.Equal(t, "simple_rule", d.Source)
}

func TestDecideLLMInvalidIntentFallsThrough(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{guess: IntentGuess{Intent: Intent("order_pizza"), Confidence: 0.99}}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "把數學課改到星期四", nil)
	assert.Equal(t, IntentModifyCourse, d.Intent)
	assert.Equal(t, "simple_rule", d.Source)
}

func TestDecideLLMDisabledByDefault(t *testing.T) {
	classifier := &stubClassifier{guess: IntentGuess{Intent: IntentQuerySchedule, Confidence: 0.99}}
	p := newTestPipeline(classifier)

	p.Decide(context.Background(), "小朋友的行程幫我看看", nil)
	assert.Zero(t, classifier.calls)
}

func TestDecideLLMPanicDegradesToRules(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{panics: true}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "把數學課改到星期四", nil)
	assert.Equal(t, IntentModifyCourse, d.Intent)
	assert.Equal(t, "simple_rule", d.Source)
}

func TestDecideMalformedClockRoutesToAddCourse(t *testing.T) {
	p := newTestPipeline(nil)

	// "明天" alone would read as a query, but the broken clock marks an
	// attempted course creation.
	d := p.Decide(context.Background(), "小明明天25點上數學課", nil)
	assert.Equal(t, IntentAddCourse, d.Intent)
	assert.Equal(t, "simple_rule", d.Source)
}

func TestDecideMalformedClockWithClassifier(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{guess: IntentGuess{Intent: IntentAddCourse, Confidence: 0.9}}
	p := newTestPipeline(classifier)

	d := p.Decide(context.Background(), "小明明天25點上數學課", nil)
	assert.Equal(t, IntentAddCourse, d.Intent)
	assert.Equal(t, "llm", d.Source)
}

func TestDecideRuleTableReached(t *testing.T) {
	p := newTestPipeline(nil)

	// No safety token, no simple-rule token combination: full table scoring.
	d := p.Decide(context.Background(), "每週三晚上7點英文課", nil)
	assert.Equal(t, IntentCreateRecurringCourse, d.Intent)
	assert.Equal(t, "rule_table", d.Source)
}

func TestDecideUnknown(t *testing.T) {
	p := newTestPipeline(nil)

	d := p.Decide(context.Background(), "哈囉", nil)
	assert.Equal(t, IntentUnknown, d.Intent)
	assert.Equal(t, "none", d.Source)
}

func TestDecideContextGate(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")

	classifier := &stubClassifier{guess: IntentGuess{Intent: IntentConfirmAction, Confidence: 0.95}}
	p := newTestPipeline(classifier)

	// No prior action or expectation: downgraded.
	d := p.Decide(context.Background(), "好的沒問題", nil)
	assert.Equal(t, IntentUnknown, d.Intent)

	// With a recorded action the confirmation stands.
	conv := NewContext("U1")
	conv.RecordAction(ActionRecord{Intent: IntentAddCourse, Success: true, TimestampMs: fixedClock().UnixMilli()})
	d = p.Decide(context.Background(), "好的沒問題", conv)
	assert.Equal(t, IntentConfirmAction, d.Intent)

	// An expectation tag also satisfies the gate.
	conv = NewContext("U2")
	conv.ExpectingInput = []string{InputConfirmation}
	d = p.Decide(context.Background(), "好的沒問題", conv)
	assert.Equal(t, IntentConfirmAction, d.Intent)
}

func TestDecideDeterministic(t *testing.T) {
	p := newTestPipeline(nil)

	first := p.Decide(context.Background(), "小明明天下午2點要上數學課", nil)
	for i := 0; i < 5; i++ {
		again := p.Decide(context.Background(), "小明明天下午2點要上數學課", nil)
		assert.Equal(t, first.Intent, again.Intent)
		assert.Equal(t, first.Source, again.Source)
	}
}
