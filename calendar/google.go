package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultCalendar = "primary"
	requestTimeout  = 10 * time.Second
)

// googleSync talks to the Calendar v3 events endpoint.
type googleSync struct {
	client     *http.Client
	baseURL    string
	calendarID string
	mode       Mode
}

// NewServiceSync authenticates with a service-account JSON key.
func NewServiceSync(ctx context.Context, credentialsJSON []byte, calendarID string) (Sync, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, "https://www.googleapis.com/auth/calendar.events")
	if err != nil {
		return nil, fmt.Errorf("calendar: parse service credentials: %w", err)
	}
	return newGoogleSync(cfg.Client(ctx), calendarID, ModeService), nil
}

// NewOAuth2Sync authenticates with a user refresh token.
func NewOAuth2Sync(ctx context.Context, clientID, clientSecret, refreshToken, calendarID string) Sync {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.events"},
	}
	token := &oauth2.Token{RefreshToken: refreshToken}
	return newGoogleSync(cfg.Client(ctx, token), calendarID, ModeOAuth2)
}

func newGoogleSync(client *http.Client, calendarID string, mode Mode) *googleSync {
	if calendarID == "" {
		calendarID = defaultCalendar
	}
	client.Timeout = requestTimeout
	return &googleSync{
		client:     client,
		baseURL:    defaultBaseURL,
		calendarID: calendarID,
		mode:       mode,
	}
}

func (g *googleSync) Mode() Mode {
	return g.mode
}

// eventBody is the Calendar v3 wire shape.
type eventBody struct {
	ID          string        `json:"id,omitempty"`
	Summary     string        `json:"summary"`
	Description string        `json:"description,omitempty"`
	Location    string        `json:"location,omitempty"`
	Start       eventDateTime `json:"start"`
	End         eventDateTime `json:"end"`
}

type eventDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

func toBody(event *Event) eventBody {
	end := event.End
	if end.IsZero() || !end.After(event.Start) {
		end = event.Start.Add(time.Hour)
	}
	return eventBody{
		Summary:     event.Summary,
		Description: event.Description,
		Location:    event.Location,
		Start:       eventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         eventDateTime{DateTime: end.Format(time.RFC3339)},
	}
}

func (g *googleSync) eventsURL(eventID string) string {
	u := g.baseURL + "/calendars/" + url.PathEscape(g.calendarID) + "/events"
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

func (g *googleSync) CreateEvent(ctx context.Context, event *Event) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, g.eventsURL(""), toBody(event), &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (g *googleSync) UpdateEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		return fmt.Errorf("calendar: update requires an event id")
	}
	return g.do(ctx, http.MethodPut, g.eventsURL(event.ID), toBody(event), nil)
}

func (g *googleSync) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("calendar: delete requires an event id")
	}
	return g.do(ctx, http.MethodDelete, g.eventsURL(eventID), nil, nil)
}

// HealthCheck verifies calendar access by fetching calendar metadata.
func (g *googleSync) HealthCheck(ctx context.Context) error {
	u := g.baseURL + "/calendars/" + url.PathEscape(g.calendarID)
	return g.do(ctx, http.MethodGet, u, nil, nil)
}

func (g *googleSync) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("calendar: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("calendar: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar: %s returned %d: %s", method, resp.StatusCode, payload)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("calendar: decode response: %w", err)
		}
	}
	return nil
}
