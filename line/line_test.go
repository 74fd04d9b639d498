package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/coursesense/config"
)

func signBody(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	secret := "test-channel-secret"
	body := []byte(`{"events":[]}`)

	assert.True(t, ValidateSignature(secret, body, signBody(secret, body)))
	assert.False(t, ValidateSignature(secret, body, signBody("other-secret", body)))
	assert.False(t, ValidateSignature(secret, []byte(`{"events":[{}]}`), signBody(secret, body)))
	assert.False(t, ValidateSignature(secret, body, ""))
	assert.False(t, ValidateSignature("", body, signBody(secret, body)))
}

func TestWebhookEnvelopeDecoding(t *testing.T) {
	raw := `{
		"destination": "Uxxxx",
		"events": [
			{
				"type": "message",
				"timestamp": 1723190400000,
				"replyToken": "rt1",
				"source": {"type": "user", "userId": "U1"},
				"message": {"id": "m1", "type": "text", "text": "小明明天下午2點要上數學課"}
			},
			{
				"type": "postback",
				"source": {"type": "user", "userId": "U1"},
				"postback": {"data": "action=confirm_course&courseId=abc"}
			}
		]
	}`

	var req WebhookRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.Len(t, req.Events, 2)

	assert.Equal(t, EventTypeMessage, req.Events[0].Type)
	assert.Equal(t, "U1", req.Events[0].Source.UserID)
	require.NotNil(t, req.Events[0].Message)
	assert.Equal(t, MessageTypeText, req.Events[0].Message.Type)

	assert.Equal(t, EventTypePostback, req.Events[1].Type)
	require.NotNil(t, req.Events[1].Postback)
	assert.Contains(t, req.Events[1].Postback.Data, "confirm_course")
}

func TestQuickReplyCaps(t *testing.T) {
	var actions []Action
	for i := 0; i < 20; i++ {
		actions = append(actions, MessageAction("選項", "text"))
	}
	qr := NewQuickReply(actions)
	require.NotNil(t, qr)
	assert.Len(t, qr.Items, MaxQuickReplyItems)

	long := strings.Repeat("長", 30)
	qr = NewQuickReply([]Action{MessageAction(long, "text")})
	assert.Equal(t, 20, len([]rune(qr.Items[0].Action.Label)))

	assert.Nil(t, NewQuickReply(nil))
}

func TestMockClientRecords(t *testing.T) {
	mock := NewMockClient()
	ctx := context.Background()

	require.NoError(t, mock.Reply(ctx, "rt1", []Message{NewTextMessage("你好")}))
	require.NoError(t, mock.Push(ctx, "U1", []Message{NewTextMessage("提醒")}))

	last, ok := mock.LastReply()
	require.True(t, ok)
	assert.Equal(t, "rt1", last.ReplyToken)
	assert.Equal(t, "你好", last.Messages[0].Text)
	assert.Len(t, mock.Pushes, 1)

	mock.Reset()
	_, ok = mock.LastReply()
	assert.False(t, ok)
}

func TestSelector(t *testing.T) {
	real := NewMockClient()
	mock := NewMockClient()
	cfg := config.MustNew()
	selector := NewSelector(real, mock, cfg)

	// Real users get the real client.
	assert.Same(t, MessagingClient(real), selector.ClientFor("U_regular", ""))

	// Test users get the mock by default.
	assert.Same(t, MessagingClient(mock), selector.ClientFor("U_test_qa1", ""))

	// qaMode=real forces the real client even for a test user.
	assert.Same(t, MessagingClient(real), selector.ClientFor("U_test_qa1", "real"))
}

func TestSelectorGlobalMock(t *testing.T) {
	t.Setenv("USE_MOCK_LINE_SERVICE", "true")

	real := NewMockClient()
	mock := NewMockClient()
	selector := NewSelector(real, mock, config.MustNew())

	assert.Same(t, MessagingClient(mock), selector.ClientFor("U_regular", ""))
}

func TestSelectorQAForceReal(t *testing.T) {
	t.Setenv("QA_FORCE_REAL", "true")

	real := NewMockClient()
	mock := NewMockClient()
	selector := NewSelector(real, mock, config.MustNew())

	assert.Same(t, MessagingClient(real), selector.ClientFor("U_test_qa1", ""))
}

func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient("test-token")
	client.apiBase = server.URL
	client.dataBase = server.URL
	return client
}

func TestClientReply(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	})

	err := client.Reply(context.Background(), "rt1", []Message{NewTextMessage("已新增課程")})
	require.NoError(t, err)
	assert.Equal(t, "/v2/bot/message/reply", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "rt1", gotPayload["replyToken"])
}

func TestClientReplyRequiresToken(t *testing.T) {
	client := NewClient("test-token")
	assert.Error(t, client.Reply(context.Background(), "", []Message{NewTextMessage("x")}))
}

func TestClientReplyErrorStatus(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "Invalid reply token"}`, http.StatusBadRequest)
	})

	err := client.Reply(context.Background(), "rt1", []Message{NewTextMessage("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestClientGetUserProfile(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/profile/U1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId": "U1", "displayName": "王小姐"}`))
	})

	profile, err := client.GetUserProfile(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "王小姐", profile.DisplayName)
}
