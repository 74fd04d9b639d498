package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	apiBaseURL     = "https://api.line.me"
	dataBaseURL    = "https://api-data.line.me"
	requestTimeout = 15 * time.Second
)

// Profile is a LINE user profile.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// MessagingClient is the outbound messaging surface.
type MessagingClient interface {
	Reply(ctx context.Context, replyToken string, messages []Message) error
	Push(ctx context.Context, userID string, messages []Message) error
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
	GetUserProfile(ctx context.Context, userID string) (*Profile, error)
}

// Client talks to the real Messaging API.
type Client struct {
	accessToken string
	apiBase     string
	dataBase    string
	httpClient  *http.Client
}

// NewClient builds a real client authenticated by the channel access token.
func NewClient(channelAccessToken string) *Client {
	return &Client{
		accessToken: channelAccessToken,
		apiBase:     apiBaseURL,
		dataBase:    dataBaseURL,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
}

// Reply answers a webhook event within its reply-token window. At most 5
// messages are accepted per reply.
func (c *Client) Reply(ctx context.Context, replyToken string, messages []Message) error {
	if replyToken == "" {
		return fmt.Errorf("line: reply token is required")
	}
	if len(messages) == 0 {
		return nil
	}
	if len(messages) > 5 {
		messages = messages[:5]
	}
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   messages,
	}
	return c.post(ctx, c.apiBase+"/v2/bot/message/reply", payload)
}

// Push sends messages outside a reply window.
func (c *Client) Push(ctx context.Context, userID string, messages []Message) error {
	if userID == "" {
		return fmt.Errorf("line: push target is required")
	}
	if len(messages) == 0 {
		return nil
	}
	payload := map[string]any{
		"to":       userID,
		"messages": messages,
	}
	return c.post(ctx, c.apiBase+"/v2/bot/message/push", payload)
}

// GetMessageContent downloads binary message content (images).
func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	url := c.dataBase + "/v2/bot/message/" + messageID + "/content"
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line: content fetch returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// GetUserProfile fetches the sender's display profile.
func (c *Client) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	resp, err := c.get(ctx, c.apiBase+"/v2/bot/profile/"+userID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line: profile fetch returned %d", resp.StatusCode)
	}
	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("line: decode profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("line: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("line: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("line api rejected request", "url", url, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("line: %s returned %d", url, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("line: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line: %s: %w", url, err)
	}
	return resp, nil
}
