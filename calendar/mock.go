package calendar

import (
	"context"
	"fmt"
	"sync"
)

// MockSync records calls in memory for development and QA.
type MockSync struct {
	mu      sync.Mutex
	nextID  int
	Created []*Event
	Updated []*Event
	Deleted []string
	Err     error // when set, every call fails with it
}

// NewMockSync returns an empty recorder.
func NewMockSync() *MockSync {
	return &MockSync{}
}

func (m *MockSync) Mode() Mode {
	return ModeMock
}

func (m *MockSync) CreateEvent(_ context.Context, event *Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.nextID++
	id := fmt.Sprintf("mock-event-%d", m.nextID)
	copied := *event
	copied.ID = id
	m.Created = append(m.Created, &copied)
	return id, nil
}

func (m *MockSync) UpdateEvent(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	copied := *event
	m.Updated = append(m.Updated, &copied)
	return nil
}

func (m *MockSync) DeleteEvent(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Deleted = append(m.Deleted, eventID)
	return nil
}

func (m *MockSync) HealthCheck(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Err
}
