package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSyncRecordsCalls(t *testing.T) {
	mock := NewMockSync()
	ctx := context.Background()

	event := &Event{
		Summary: "小明 數學課",
		Start:   time.Date(2025, 8, 11, 14, 0, 0, 0, time.UTC),
	}
	id, err := mock.CreateEvent(ctx, event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	event.ID = id
	require.NoError(t, mock.UpdateEvent(ctx, event))
	require.NoError(t, mock.DeleteEvent(ctx, id))

	assert.Len(t, mock.Created, 1)
	assert.Len(t, mock.Updated, 1)
	assert.Equal(t, []string{id}, mock.Deleted)
	assert.Equal(t, ModeMock, mock.Mode())
}

func TestMockSyncPropagatesError(t *testing.T) {
	mock := NewMockSync()
	mock.Err = assert.AnError

	_, err := mock.CreateEvent(context.Background(), &Event{Summary: "x"})
	assert.Error(t, err)
	assert.Error(t, mock.HealthCheck(context.Background()))
}

func newStubGoogleSync(t *testing.T, handler http.HandlerFunc) *googleSync {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &googleSync{
		client:     server.Client(),
		baseURL:    server.URL,
		calendarID: "primary",
		mode:       ModeService,
	}
}

func TestGoogleSyncCreateEvent(t *testing.T) {
	var gotPath string
	var gotBody eventBody
	sync := newStubGoogleSync(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "evt123"}`))
	})

	start := time.Date(2025, 8, 11, 14, 0, 0, 0, time.UTC)
	id, err := sync.CreateEvent(context.Background(), &Event{
		Summary:  "小明 數學課",
		Location: "教室A",
		Start:    start,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt123", id)
	assert.Equal(t, "POST /calendars/primary/events", gotPath)
	assert.Equal(t, "小明 數學課", gotBody.Summary)
	// Open-ended events default to one hour.
	assert.Equal(t, start.Add(time.Hour).Format(time.RFC3339), gotBody.End.DateTime)
}

func TestGoogleSyncUpdateAndDelete(t *testing.T) {
	var paths []string
	sync := newStubGoogleSync(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	event := &Event{ID: "evt123", Summary: "x", Start: time.Now()}
	require.NoError(t, sync.UpdateEvent(context.Background(), event))
	require.NoError(t, sync.DeleteEvent(context.Background(), "evt123"))

	assert.Equal(t, []string{
		"PUT /calendars/primary/events/evt123",
		"DELETE /calendars/primary/events/evt123",
	}, paths)
}

func TestGoogleSyncUpdateRequiresID(t *testing.T) {
	sync := newStubGoogleSync(t, func(http.ResponseWriter, *http.Request) {})
	assert.Error(t, sync.UpdateEvent(context.Background(), &Event{Summary: "x"}))
}

func TestGoogleSyncErrorStatus(t *testing.T) {
	sync := newStubGoogleSync(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "forbidden"}`, http.StatusForbidden)
	})

	_, err := sync.CreateEvent(context.Background(), &Event{Summary: "x", Start: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
