package trace_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/trace"
)

func TestByTraceIDKeepsStageOrder(t *testing.T) {
	r := trace.NewRecorder()
	id := trace.NewTraceID()
	other := trace.NewTraceID()

	r.Log(id, "inbound", map[string]any{"type": "text"})
	r.Log(other, "inbound", nil)
	r.Log(id, "nlp", map[string]any{"intent": "add_course"})
	r.Log(id, "task", map[string]any{"code": "ADD_COURSE_OK"})

	entries := r.ByTraceID(id)
	require.Len(t, entries, 3)
	assert.Equal(t, "inbound", entries[0].Stage)
	assert.Equal(t, "nlp", entries[1].Stage)
	assert.Equal(t, "task", entries[2].Stage)
	assert.Equal(t, "add_course", entries[1].Fields["intent"])
}

func TestRingEvictsOldest(t *testing.T) {
	r := trace.NewRecorder()
	first := "trace-first"
	r.Log(first, "inbound", nil)
	for i := 0; i < 200; i++ {
		r.Log(fmt.Sprintf("trace-%d", i), "inbound", nil)
	}

	assert.Empty(t, r.ByTraceID(first))
	assert.Len(t, r.ByTraceID("trace-199"), 1)
}

func TestRecentNewestFirst(t *testing.T) {
	r := trace.NewRecorder()
	r.Log("a", "inbound", nil)
	r.Log("b", "nlp", nil)
	r.Log("c", "task", nil)

	recent := r.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].TraceID)
	assert.Equal(t, "b", recent[1].TraceID)
}
