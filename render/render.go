// Package render turns task results into outgoing LINE messages. Message
// text lives in the template table of the config registry so wording can
// change without touching handler code.
package render

import (
	"regexp"
	"strings"

	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/line"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/task"
)

var placeholderRegex = regexp.MustCompile(`\{([a-zA-Z]+)\}`)

// Renderer maps result codes to reply messages.
type Renderer struct {
	cfg *config.Registry
}

// New creates a new instance of Renderer.
func New(cfg *config.Registry) *Renderer {
	return &Renderer{cfg: cfg}
}

// Render produces the reply messages for one task result. The last message
// carries the quick replies, when any; a successful mutation carries the
// intent-keyed confirmation buttons.
func (r *Renderer) Render(intent nlu.Intent, result task.Result) []line.Message {
	text := result.Message
	if text == "" {
		text = r.expand(r.template(result.Code), result.Data)
	}

	messages := []line.Message{line.NewTextMessage(text)}
	if result.Code == task.CodeQueryOKEmpty {
		if guide := r.cfg.Template("QUERY_GUIDE"); guide != "" {
			messages = append(messages, line.NewTextMessage(guide))
		}
	}

	if quickReply := r.quickReplies(intent, result); quickReply != nil {
		messages[len(messages)-1].QuickReply = quickReply
	}
	return messages
}

// template resolves the code's message template, falling back to the
// generic unavailable wording for unmapped codes.
func (r *Renderer) template(code string) string {
	if tpl := r.cfg.Template(code); tpl != "" {
		return tpl
	}
	return r.cfg.Template(task.CodeTempUnavailable)
}

// expand substitutes {field} placeholders from the data map. Unresolved
// placeholders collapse to nothing rather than leaking braces to the user.
func (r *Renderer) expand(template string, data map[string]string) string {
	out := placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.Trim(match, "{}")
		return data[key]
	})
	return strings.TrimSpace(out)
}

func (r *Renderer) quickReplies(intent nlu.Intent, result task.Result) *line.QuickReply {
	var actions []line.Action
	for _, opt := range result.Options {
		switch {
		case opt.PostbackData != "":
			actions = append(actions, line.PostbackAction(opt.Label, opt.PostbackData))
		case opt.Text != "":
			actions = append(actions, line.MessageAction(opt.Label, opt.Text))
		default:
			actions = append(actions, line.MessageAction(opt.Label, opt.Label))
		}
	}
	switch {
	// An incomplete flow always offers a way out.
	case result.Code == task.CodeMissingFields || result.Code == task.CodeRecurringCancelOptions:
		actions = append(actions, line.MessageAction("取消", "取消"))
	case len(actions) == 0 && result.Success:
		actions = confirmationActions(intent)
	}
	return line.NewQuickReply(actions)
}

// confirmationActions are the follow-up buttons a completed mutation
// carries; the postbacks resolve through the confirm and cancel handlers.
func confirmationActions(intent nlu.Intent) []line.Action {
	switch intent {
	case nlu.IntentAddCourse, nlu.IntentCreateRecurringCourse, nlu.IntentSetReminder,
		nlu.IntentRecordContent, nlu.IntentAddCourseContent:
		return []line.Action{
			line.PostbackAction("確認", "action=confirm_course"),
			line.PostbackAction("取消操作", "action=cancel_operation"),
		}
	case nlu.IntentCancelCourse, nlu.IntentStopRecurringCourse:
		return []line.Action{
			line.PostbackAction("確認刪除", "action=confirm_course"),
			line.PostbackAction("取消操作", "action=cancel_operation"),
		}
	}
	return nil
}
