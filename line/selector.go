package line

import (
	"log/slog"
	"strings"

	"github.com/hrygo/coursesense/config"
)

// TestUserPrefix marks synthetic users whose replies are mocked by default.
const TestUserPrefix = "U_test_"

// Selector chooses between the real and the mock messaging client per
// request, so QA traffic never reaches real users.
type Selector struct {
	real MessagingClient
	mock MessagingClient
	cfg  *config.Registry
}

// NewSelector wires the client pair. Either client may be nil; selection
// falls back to the other.
func NewSelector(real, mock MessagingClient, cfg *config.Registry) *Selector {
	return &Selector{real: real, mock: mock, cfg: cfg}
}

// Mock exposes the mock client for inspection.
func (s *Selector) Mock() MessagingClient {
	return s.mock
}

// ClientFor picks the messaging client for a user. qaMode comes from the
// x-qa-mode header or a postback qaMode parameter; "real" forces the real
// client for a test user.
func (s *Selector) ClientFor(userID, qaMode string) MessagingClient {
	client := s.real
	reason := "default"

	switch {
	case s.cfg != nil && s.cfg.UseMockLineService():
		client, reason = s.mock, "USE_MOCK_LINE_SERVICE"
	case strings.HasPrefix(userID, TestUserPrefix):
		if qaMode == "real" || (s.cfg != nil && s.cfg.QAForceReal()) {
			reason = "test user forced real"
		} else {
			client, reason = s.mock, "test user"
		}
	}

	if client == nil {
		if s.mock != nil {
			client, reason = s.mock, reason+" (real client absent)"
		} else {
			client, reason = s.real, reason+" (mock client absent)"
		}
	}

	slog.Debug("messaging client selected", "user_id", userID, "reason", reason)
	return client
}
