package contextstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/nlu"
)

func newTestStore() (*Store, *MemoryBackend) {
	backend := NewMemoryBackend()
	store := New(backend)
	return store, backend
}

func TestGetFreshContext(t *testing.T) {
	store, _ := newTestStore()

	conv := store.Get(context.Background(), "U1")
	require.NotNil(t, conv)
	assert.Equal(t, "U1", conv.UserID)
	assert.Equal(t, nlu.FlowNone, conv.CurrentFlow)
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	conv := nlu.NewContext("U1")
	conv.MentionStudent("小明")
	conv.AddHistory(nlu.HistoryEntry{Role: "user", Text: "小明明天有課嗎"})
	require.True(t, store.Save(ctx, conv))

	loaded := store.Get(ctx, "U1")
	assert.Equal(t, []string{"小明"}, loaded.Mentioned.Students)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "小明明天有課嗎", loaded.History[0].Text)
}

func TestGetExpiredContextYieldsFresh(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })
	backend.SetClock(func() time.Time { return base })

	conv := nlu.NewContext("U1")
	conv.MentionStudent("小明")
	require.True(t, store.Save(ctx, conv))

	// Past the TTL the document is treated as gone.
	later := base.Add(DefaultTTL + time.Minute)
	store.SetClock(func() time.Time { return later })
	backend.SetClock(func() time.Time { return later })

	loaded := store.Get(ctx, "U1")
	assert.Empty(t, loaded.Mentioned.Students)
}

func TestClear(t *testing.T) {
	store, backend := newTestStore()
	ctx := context.Background()

	require.True(t, store.Save(ctx, nlu.NewContext("U1")))
	require.Equal(t, 1, backend.Len())

	assert.True(t, store.Clear(ctx, "U1"))
	assert.Equal(t, 0, backend.Len())
}

func TestExpectedInputLifecycle(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	pending := &nlu.PendingSlots{
		Intent:        nlu.IntentAddCourse,
		Slots:         nlu.Slots{CourseName: "數學課"},
		MissingFields: []string{"studentName"},
	}
	store.SetExpectedInput(ctx, "U1", pending, nlu.InputStudentName)

	conv := store.Get(ctx, "U1")
	assert.Equal(t, []string{nlu.InputStudentName}, conv.ExpectingInput)
	require.NotNil(t, conv.Pending)
	assert.Equal(t, nlu.IntentAddCourse, conv.Pending.Intent)
	assert.NotZero(t, conv.Pending.CreatedAtMs)

	store.ClearExpectedInput(ctx, "U1")
	conv = store.Get(ctx, "U1")
	assert.Empty(t, conv.ExpectingInput)
	assert.Nil(t, conv.Pending)
}

func TestRecordUserMessageTracksMentions(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	slots := &nlu.Slots{StudentName: "小明", CourseName: "數學課", CourseDate: "2025-08-11", ScheduleTime: "14:00"}
	store.RecordUserMessage(ctx, "U1", "小明明天下午2點要上數學課", nlu.IntentAddCourse, slots)

	conv := store.Get(ctx, "U1")
	assert.Equal(t, []string{"小明"}, conv.Mentioned.Students)
	assert.Equal(t, []string{"數學課"}, conv.Mentioned.Courses)
	assert.Equal(t, []string{"2025-08-11"}, conv.Mentioned.Dates)
	assert.Equal(t, []string{"14:00"}, conv.Mentioned.Times)
	require.Len(t, conv.History, 1)
	assert.Equal(t, "user", conv.History[0].Role)
}

func TestRecordTaskResultAndGetLastAction(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.RecordTaskResult(ctx, "U1", nlu.ActionRecord{
		Intent:  nlu.IntentAddCourse,
		Success: true,
		Code:    "ADD_COURSE_OK",
	})

	rec, ok := store.GetLastAction(ctx, "U1")
	require.True(t, ok)
	assert.Equal(t, nlu.IntentAddCourse, rec.Intent)
	assert.True(t, rec.Success)
	assert.NotZero(t, rec.TimestampMs)
}

func TestRecordTaskResultOpensConfirmationWindow(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.RecordTaskResult(ctx, "U1", nlu.ActionRecord{
		Intent:  nlu.IntentAddCourse,
		Success: true,
		Code:    "ADD_COURSE_OK",
	})

	conv := store.Get(ctx, "U1")
	assert.Equal(t, nlu.FlowCourseCreation, conv.CurrentFlow)
	assert.Equal(t, []string{nlu.InputConfirmation, nlu.InputModification}, conv.ExpectingInput)

	// Failures leave the conversation state untouched.
	store.RecordTaskResult(ctx, "U2", nlu.ActionRecord{
		Intent:  nlu.IntentAddCourse,
		Success: false,
		Code:    "MISSING_FIELDS",
	})

	conv = store.Get(ctx, "U2")
	assert.Equal(t, nlu.FlowNone, conv.CurrentFlow)
	assert.Empty(t, conv.ExpectingInput)
}

func TestSetActiveQuerySession(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	store.SetActiveQuerySession(ctx, "U1", &nlu.QuerySession{StudentName: "小明", TimeReference: "today"})

	conv := store.Get(ctx, "U1")
	require.NotNil(t, conv.ActiveQuery)
	assert.Equal(t, "小明", conv.ActiveQuery.StudentName)
}

// failingBackend errors on every operation.
type failingBackend struct{ err error }

func (f *failingBackend) Get(context.Context, string) (string, error)             { return "", f.err }
func (f *failingBackend) Set(context.Context, string, string, time.Duration) error { return f.err }
func (f *failingBackend) Del(context.Context, string) error                        { return f.err }
func (f *failingBackend) Ping(context.Context) error                               { return f.err }

func TestDegradedModeStateless(t *testing.T) {
	store := New(&failingBackend{err: assert.AnError})
	ctx := context.Background()

	// Reads yield a fresh context instead of an error.
	conv := store.Get(ctx, "U1")
	require.NotNil(t, conv)
	assert.Equal(t, "U1", conv.UserID)

	// Writes are skipped, not failed.
	assert.False(t, store.Save(ctx, conv))
	assert.False(t, store.Clear(ctx, "U1"))
	assert.Error(t, store.HealthCheck(ctx))
}

func TestAvailabilityProbeCached(t *testing.T) {
	backend := &countingBackend{inner: NewMemoryBackend()}
	store := New(backend)

	base := time.Now()
	store.SetClock(func() time.Time { return base })

	ctx := context.Background()
	store.Available(ctx)
	store.Available(ctx)
	store.Available(ctx)
	assert.Equal(t, 1, backend.pings, "probe result cached within the window")

	store.SetClock(func() time.Time { return base.Add(availabilityWindow + time.Second) })
	store.Available(ctx)
	assert.Equal(t, 2, backend.pings)
}

type countingBackend struct {
	inner *MemoryBackend
	mu    sync.Mutex
	pings int
}

func (c *countingBackend) Get(ctx context.Context, key string) (string, error) {
	return c.inner.Get(ctx, key)
}

func (c *countingBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.inner.Set(ctx, key, value, ttl)
}

func (c *countingBackend) Del(ctx context.Context, key string) error {
	return c.inner.Del(ctx, key)
}

func (c *countingBackend) Ping(ctx context.Context) error {
	c.mu.Lock()
	c.pings++
	c.mu.Unlock()
	return c.inner.Ping(ctx)
}
