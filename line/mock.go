package line

import (
	"context"
	"sync"
)

// RecordedReply is one captured Reply call.
type RecordedReply struct {
	ReplyToken string
	Messages   []Message
}

// RecordedPush is one captured Push call.
type RecordedPush struct {
	UserID   string
	Messages []Message
}

// MockClient records outbound calls instead of hitting the Messaging API.
// Test users and QA flows are served by this client.
type MockClient struct {
	mu              sync.Mutex
	Replies         []RecordedReply
	Pushes          []RecordedPush
	Content         map[string][]byte
	ContentRequests []string // message ids passed to GetMessageContent
	Err             error    // when set, every call fails with it
}

// NewMockClient returns an empty recorder.
func NewMockClient() *MockClient {
	return &MockClient{Content: make(map[string][]byte)}
}

func (m *MockClient) Reply(_ context.Context, replyToken string, messages []Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Replies = append(m.Replies, RecordedReply{ReplyToken: replyToken, Messages: messages})
	return nil
}

func (m *MockClient) Push(_ context.Context, userID string, messages []Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Pushes = append(m.Pushes, RecordedPush{UserID: userID, Messages: messages})
	return nil
}

func (m *MockClient) GetMessageContent(_ context.Context, messageID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.ContentRequests = append(m.ContentRequests, messageID)
	return m.Content[messageID], nil
}

func (m *MockClient) GetUserProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return &Profile{UserID: userID, DisplayName: "Mock User"}, nil
}

// LastReply returns the newest recorded reply, if any.
func (m *MockClient) LastReply() (RecordedReply, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Replies) == 0 {
		return RecordedReply{}, false
	}
	return m.Replies[len(m.Replies)-1], true
}

// Reset clears everything recorded so far.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies = nil
	m.Pushes = nil
	m.Content = make(map[string][]byte)
	m.ContentRequests = nil
}
