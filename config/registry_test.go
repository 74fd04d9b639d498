package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := MustNew()

	assert.False(t, r.EnableAIFallback())
	assert.InDelta(t, 0.7, r.AIFallbackMinConfidence(), 1e-9)
	assert.Equal(t, 5*time.Second, r.AIFallbackTimeout())
	assert.True(t, r.EnableRecurringCourses())
	assert.False(t, r.StrictRecordRequiresCourse())

	rules := r.IntentRules()
	require.NotEmpty(t, rules)
	intents := make(map[string]bool)
	for _, rule := range rules {
		intents[rule.Intent] = true
	}
	for _, want := range []string{
		"add_course", "create_recurring_course", "modify_course",
		"cancel_course", "query_schedule", "record_content",
		"set_reminder", "confirm_action",
	} {
		assert.True(t, intents[want], "missing rule for %s", want)
	}
}

func TestRegistryEnvOverride(t *testing.T) {
	t.Setenv("ENABLE_AI_FALLBACK", "true")
	t.Setenv("AI_FALLBACK_MIN_CONFIDENCE", "0.9")
	t.Setenv("AI_FALLBACK_TIMEOUT_MS", "1200")

	r := MustNew()
	assert.True(t, r.EnableAIFallback())
	assert.InDelta(t, 0.9, r.AIFallbackMinConfidence(), 1e-9)
	assert.Equal(t, 1200*time.Millisecond, r.AIFallbackTimeout())
}

func TestRegistryGetPrecedence(t *testing.T) {
	r := MustNew()

	// Document value.
	r.Set("features", "ENABLE_RECURRING_COURSES", "false")
	assert.Equal(t, "false", r.Get("features", "ENABLE_RECURRING_COURSES", "x"))
	assert.False(t, r.EnableRecurringCourses())

	// Env beats document.
	t.Setenv("FEATURES_ENABLE_RECURRING_COURSES", "true")
	assert.Equal(t, "true", r.Get("features", "ENABLE_RECURRING_COURSES", "x"))

	// Default when absent everywhere.
	assert.Equal(t, "fallback", r.Get("features", "NO_SUCH_FLAG", "fallback"))
}

func TestRegistrySubscribe(t *testing.T) {
	r := MustNew()

	var gotNS, gotKey string
	r.Subscribe(func(ns, key string) {
		gotNS, gotKey = ns, key
	})

	r.Set("features", "QA_FORCE_REAL", "true")
	assert.Equal(t, "features", gotNS)
	assert.Equal(t, "QA_FORCE_REAL", gotKey)

	// Immutable namespaces reject writes.
	r.Set("templates", "WELCOME", "nope")
	assert.NotEqual(t, "nope", r.Template("WELCOME"))
}

func TestTemplates(t *testing.T) {
	r := MustNew()
	assert.Contains(t, r.Template("QUERY_OK_EMPTY"), "沒有安排課程")
	assert.Contains(t, r.Template("UNKNOWN_HELP"), "數學課")
	assert.Empty(t, r.Template("NO_SUCH_TEMPLATE"))
}
