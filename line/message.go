package line

// Quick-reply caps imposed by the Messaging API.
const (
	MaxQuickReplyItems = 13
	MaxLabelRunes      = 20
)

// Message is one outgoing reply message.
type Message struct {
	Type       string      `json:"type"` // text
	Text       string      `json:"text,omitempty"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

// QuickReply attaches tappable suggestions to a message.
type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

// QuickReplyItem is one suggestion button.
type QuickReplyItem struct {
	Type   string `json:"type"` // action
	Action Action `json:"action"`
}

// Action is the tap behavior of a quick-reply button.
type Action struct {
	Type  string `json:"type"` // message | postback
	Label string `json:"label"`
	Text  string `json:"text,omitempty"`
	Data  string `json:"data,omitempty"`
}

// NewTextMessage builds a plain text reply.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// MessageAction builds a quick-reply button that sends its text back.
func MessageAction(label, text string) Action {
	return Action{Type: "message", Label: label, Text: text}
}

// PostbackAction builds a quick-reply button that posts back data.
func PostbackAction(label, data string) Action {
	return Action{Type: "postback", Label: label, Data: data}
}

// NewQuickReply builds a quick reply enforcing the API caps: at most 13
// items, labels truncated to 20 runes. Empty input yields nil.
func NewQuickReply(actions []Action) *QuickReply {
	if len(actions) == 0 {
		return nil
	}
	if len(actions) > MaxQuickReplyItems {
		actions = actions[:MaxQuickReplyItems]
	}
	items := make([]QuickReplyItem, len(actions))
	for i, action := range actions {
		action.Label = truncateLabel(action.Label)
		items[i] = QuickReplyItem{Type: "action", Action: action}
	}
	return &QuickReply{Items: items}
}

func truncateLabel(label string) string {
	runes := []rune(label)
	if len(runes) <= MaxLabelRunes {
		return label
	}
	return string(runes[:MaxLabelRunes])
}
