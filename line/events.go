package line

// Webhook event types.
const (
	EventTypeMessage  = "message"
	EventTypePostback = "postback"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
)

// Message types inside a message event.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// WebhookRequest is the envelope of one webhook delivery. A delivery can
// carry several events; they are processed in order.
type WebhookRequest struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one webhook event.
type Event struct {
	Type       string        `json:"type"`
	Timestamp  int64         `json:"timestamp"`
	ReplyToken string        `json:"replyToken,omitempty"`
	Source     EventSource   `json:"source"`
	Message    *EventMessage `json:"message,omitempty"`
	Postback   *Postback     `json:"postback,omitempty"`
}

// EventSource identifies the sender.
type EventSource struct {
	Type    string `json:"type"` // user | group | room
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

// EventMessage is the message payload of a message event.
type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Postback is the payload of a postback event. Data carries URL-encoded
// key=value pairs ("action=confirm_course&courseId=...").
type Postback struct {
	Data string `json:"data"`
}
