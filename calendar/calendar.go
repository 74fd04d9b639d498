// Package calendar mirrors course changes into an external calendar.
// Synchronization is best-effort: the course store is the source of truth
// and callers treat sync failures as warnings.
package calendar

import (
	"context"
	"time"
)

// Mode identifies how the sync authenticates.
type Mode string

const (
	ModeService Mode = "service" // service-account JWT
	ModeOAuth2  Mode = "oauth2"  // user consent refresh token
	ModeMock    Mode = "mock"    // in-process recorder
)

// Event is one calendar entry derived from a course occurrence.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Sync is the calendar synchronization surface.
type Sync interface {
	Mode() Mode
	CreateEvent(ctx context.Context, event *Event) (string, error)
	UpdateEvent(ctx context.Context, event *Event) error
	DeleteEvent(ctx context.Context, eventID string) error
	HealthCheck(ctx context.Context) error
}
