package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/coursesense/line"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/task"
	"github.com/hrygo/coursesense/trace"
)

const maxWebhookBody = 1 << 20

// handleCallback is the webhook entry point. LINE retries failed
// deliveries, so every event path answers 200 once the envelope is
// accepted; per-event failures are logged and replied to, never surfaced
// as HTTP errors.
func (s *Server) handleCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	qaMode := c.Request().Header.Get("x-qa-mode")
	if !s.verifySignature(c, body, qaMode) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signature"})
	}

	var req line.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed envelope"})
	}

	ctx := c.Request().Context()
	for _, event := range req.Events {
		s.handleEvent(ctx, &event, qaMode, c.Request().Header.Get("x-qa-reset-context") != "")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature enforces the channel-secret HMAC. Outside production the
// QA escape hatches may bypass it; every bypass is logged.
func (s *Server) verifySignature(c echo.Context, body []byte, qaMode string) bool {
	signature := c.Request().Header.Get("x-line-signature")
	if line.ValidateSignature(s.profile.ChannelSecret, body, signature) {
		return true
	}
	if s.profile.IsProduction() {
		return false
	}
	bypass := s.cfg.AllowTestWebhook() || s.cfg.UseMockLineService() || qaMode == "test"
	if bypass {
		slog.Warn("webhook signature bypassed",
			"mode", s.profile.Mode,
			"qaMode", qaMode)
	}
	return bypass
}

func (s *Server) handleEvent(ctx context.Context, event *line.Event, qaMode string, resetContext bool) {
	userID := event.Source.UserID
	if userID == "" {
		return
	}
	if resetContext && s.contexts != nil {
		s.contexts.Clear(ctx, userID)
	}

	success := true
	switch event.Type {
	case line.EventTypeMessage:
		success = s.handleMessageEvent(ctx, event, qaMode)
	case line.EventTypePostback:
		success = s.handlePostbackEvent(ctx, event, qaMode)
	case line.EventTypeFollow:
		success = s.handleFollowEvent(ctx, event, qaMode)
	case line.EventTypeUnfollow:
		if s.contexts != nil {
			s.contexts.Clear(ctx, userID)
		}
	default:
		slog.Debug("ignoring webhook event", "type", event.Type)
	}
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(event.Type, success)
	}
}

func (s *Server) handleMessageEvent(ctx context.Context, event *line.Event, qaMode string) bool {
	if event.Message == nil {
		return false
	}
	switch event.Message.Type {
	case line.MessageTypeText:
		return s.handleTextMessage(ctx, event, qaMode)
	case line.MessageTypeImage:
		return s.handleImageMessage(ctx, event, qaMode)
	}
	slog.Debug("ignoring message type", "type", event.Message.Type)
	return true
}

// handleTextMessage runs the full pipeline: classify, extract, execute,
// render, reply.
func (s *Server) handleTextMessage(ctx context.Context, event *line.Event, qaMode string) bool {
	userID := event.Source.UserID
	text := event.Message.Text
	traceID := trace.NewTraceID()

	s.traceLog(traceID, "inbound", map[string]any{
		"userId": userID,
		"type":   "text",
		"length": len(text),
	})

	var conv *nlu.ConversationContext
	if s.contexts != nil {
		conv = s.contexts.Get(ctx, userID)
	}

	started := time.Now()
	decision := s.pipeline.Decide(ctx, text, conv)
	if s.metrics != nil {
		s.metrics.RecordIntent(string(decision.Intent), decision.Source, time.Since(started))
	}
	s.traceLog(traceID, "nlp", map[string]any{
		"intent": decision.Intent,
		"source": decision.Source,
	})

	var slots nlu.Slots
	if decision.Slots != nil {
		slots = *decision.Slots
	} else {
		slots = s.extractor.Extract(ctx, text, decision.Intent, conv)
	}
	s.traceLog(traceID, "slots", map[string]any{
		"student": slots.StudentName,
		"course":  slots.CourseName,
		"time":    slots.ScheduleTime,
		"date":    slots.CourseDate,
	})

	if s.contexts != nil {
		s.contexts.RecordUserMessage(ctx, userID, text, decision.Intent, &slots)
	}

	result := s.dispatcher.Dispatch(ctx, &task.Request{
		UserID: userID,
		Text:   text,
		Intent: decision.Intent,
		Slots:  slots,
		Conv:   conv,
	})
	if s.metrics != nil {
		s.metrics.RecordTaskResult(result.Code)
	}
	s.traceLog(traceID, "task", map[string]any{
		"code":    result.Code,
		"success": result.Success,
	})

	return s.reply(ctx, event, qaMode, decision.Intent, result, traceID)
}

// handleImageMessage downloads the photo and records it against the most
// recently discussed course. The download is what validates the reference;
// LINE expires message content, so a stale id fails here and not later.
func (s *Server) handleImageMessage(ctx context.Context, event *line.Event, qaMode string) bool {
	userID := event.Source.UserID
	traceID := trace.NewTraceID()

	var contentSize int
	if client := s.messaging.ClientFor(userID, qaMode); client != nil {
		content, err := client.GetMessageContent(ctx, event.Message.ID)
		if err != nil {
			slog.Warn("image content fetch failed",
				"messageId", event.Message.ID,
				"error", err)
		} else {
			contentSize = len(content)
		}
	}
	s.traceLog(traceID, "inbound", map[string]any{
		"userId": userID,
		"type":   "image",
		"bytes":  contentSize,
	})

	slots := nlu.Slots{ImageRef: event.Message.ID}
	var conv *nlu.ConversationContext
	if s.contexts != nil {
		conv = s.contexts.Get(ctx, userID)
		if len(conv.Mentioned.Students) > 0 {
			slots.StudentName = conv.Mentioned.Students[0]
		}
		if len(conv.Mentioned.Courses) > 0 {
			slots.CourseName = conv.Mentioned.Courses[0]
		}
	}

	result := s.dispatcher.Dispatch(ctx, &task.Request{
		UserID: userID,
		Intent: nlu.IntentRecordContent,
		Slots:  slots,
		Conv:   conv,
	})
	if s.metrics != nil {
		s.metrics.RecordTaskResult(result.Code)
	}
	s.traceLog(traceID, "task", map[string]any{"code": result.Code})

	return s.reply(ctx, event, qaMode, nlu.IntentRecordContent, result, traceID)
}

// handlePostbackEvent resolves quick-reply button taps.
func (s *Server) handlePostbackEvent(ctx context.Context, event *line.Event, qaMode string) bool {
	if event.Postback == nil {
		return false
	}
	userID := event.Source.UserID
	traceID := trace.NewTraceID()

	values, err := url.ParseQuery(event.Postback.Data)
	if err != nil {
		slog.Warn("malformed postback data", "error", err)
		return false
	}
	action := values.Get("action")
	s.traceLog(traceID, "inbound", map[string]any{
		"userId": userID,
		"type":   "postback",
		"action": action,
	})
	if mode := values.Get("qaMode"); mode != "" {
		qaMode = mode
	}

	var result task.Result
	intent := nlu.IntentUnknown
	switch action {
	case "cancel_recurring":
		intent = nlu.IntentCancelCourse
		result = s.dispatcher.CancelRecurring(ctx, userID, values.Get("courseId"), values.Get("scope"))
	case "confirm_course":
		intent = nlu.IntentConfirmAction
		result = task.Result{Success: true, Code: task.CodeConfirmOK}
	case "modify_course":
		intent = nlu.IntentModifyAction
		result = task.Result{Code: task.CodeModifyPrompt}
	case "cancel_operation":
		intent = nlu.IntentCancelAction
		if s.contexts != nil {
			s.contexts.ClearExpectedInput(ctx, userID)
		}
		result = task.Result{Code: task.CodeCancelOperation}
	default:
		result = task.Result{Code: task.CodeUnknownHelp}
	}
	if s.metrics != nil {
		s.metrics.RecordTaskResult(result.Code)
	}
	s.traceLog(traceID, "task", map[string]any{"code": result.Code})

	return s.reply(ctx, event, qaMode, intent, result, traceID)
}

// handleFollowEvent greets a new follower and creates their parent record.
func (s *Server) handleFollowEvent(ctx context.Context, event *line.Event, qaMode string) bool {
	userID := event.Source.UserID
	if _, err := s.courses.GetOrCreateParent(ctx, userID); err != nil {
		slog.Error("failed to register follower", "error", err)
	}
	return s.reply(ctx, event, qaMode, nlu.IntentUnknown, task.Result{Success: true, Code: task.CodeWelcome}, trace.NewTraceID())
}

func (s *Server) reply(ctx context.Context, event *line.Event, qaMode string, intent nlu.Intent, result task.Result, traceID string) bool {
	messages := s.renderer.Render(intent, result)
	s.traceLog(traceID, "render", map[string]any{
		"messages":   len(messages),
		"quickReply": messages[len(messages)-1].QuickReply != nil,
	})
	client := s.messaging.ClientFor(event.Source.UserID, qaMode)
	if client == nil {
		slog.Error("no messaging client available")
		return false
	}
	if err := client.Reply(ctx, event.ReplyToken, messages); err != nil {
		slog.Error("reply failed", "error", err)
		return false
	}
	if s.contexts != nil && len(messages) > 0 {
		quickReply := messages[len(messages)-1].QuickReply != nil
		s.contexts.RecordBotResponse(ctx, event.Source.UserID, messages[0].Text, quickReply)
	}
	s.traceLog(traceID, "outbound", map[string]any{
		"messages": len(messages),
		"code":     result.Code,
	})
	return true
}

func (s *Server) traceLog(traceID, stage string, fields map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.Log(traceID, stage, fields)
}
