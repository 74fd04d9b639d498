package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/metrics"
)

func TestExporterServesRecordedMetrics(t *testing.T) {
	e := metrics.NewExporter(nil)
	e.RecordWebhookEvent("message", true)
	e.RecordWebhookEvent("message", false)
	e.RecordIntent("add_course", "rule", 2*time.Millisecond)
	e.RecordLLMFallback("accepted")
	e.RecordTaskResult("ADD_COURSE_OK")
	e.RecordContextDegraded()

	recorder := httptest.NewRecorder()
	e.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, recorder.Code)
	body := recorder.Body.String()
	assert.Contains(t, body, `coursesense_webhook_events_total{event_type="message",status="success"} 1`)
	assert.Contains(t, body, `coursesense_webhook_events_total{event_type="message",status="error"} 1`)
	assert.Contains(t, body, `coursesense_nlu_intents_total{intent="add_course",source="rule"} 1`)
	assert.Contains(t, body, `coursesense_nlu_llm_fallback_total{outcome="accepted"} 1`)
	assert.Contains(t, body, `coursesense_task_results_total{code="ADD_COURSE_OK"} 1`)
	assert.Contains(t, body, `coursesense_context_degraded_total 1`)
}
