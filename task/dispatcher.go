package task

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/coursesense/calendar"
	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/contextstore"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/store"
	"github.com/hrygo/coursesense/timeparse"
)

// Request is one classified utterance to execute.
type Request struct {
	UserID string
	Text   string
	Intent nlu.Intent
	Slots  nlu.Slots
	Conv   *nlu.ConversationContext
}

// Handler executes one intent.
type Handler func(ctx context.Context, req *Request) Result

// Dispatcher routes intents to handlers and applies the conversation
// side effects of each outcome.
type Dispatcher struct {
	courses  *store.Store
	contexts *contextstore.Store
	cfg      *config.Registry
	calendar calendar.Sync
	timezone string
	now      func() time.Time

	handlers map[nlu.Intent]Handler
}

// NewDispatcher wires the handler table.
func NewDispatcher(courses *store.Store, contexts *contextstore.Store, cfg *config.Registry, cal calendar.Sync, timezone string) *Dispatcher {
	d := &Dispatcher{
		courses:  courses,
		contexts: contexts,
		cfg:      cfg,
		calendar: cal,
		timezone: timezone,
		now:      time.Now,
	}
	d.handlers = map[nlu.Intent]Handler{
		nlu.IntentAddCourse:             d.handleAddCourse,
		nlu.IntentCreateRecurringCourse: d.handleCreateRecurring,
		nlu.IntentModifyCourse:          d.handleModifyCourse,
		nlu.IntentCancelCourse:          d.handleCancelCourse,
		nlu.IntentStopRecurringCourse:   d.handleStopRecurring,
		nlu.IntentQuerySchedule:         d.handleQuerySchedule,
		nlu.IntentQueryCourseContent:    d.handleQueryContent,
		nlu.IntentRecordContent:         d.handleRecordContent,
		nlu.IntentAddCourseContent:      d.handleRecordContent,
		nlu.IntentSetReminder:           d.handleSetReminder,
		nlu.IntentConfirmAction:         d.handleConfirmAction,
		nlu.IntentModifyAction:          d.handleModifyPrompt,
		nlu.IntentCorrection:            d.handleModifyPrompt,
		nlu.IntentCancelAction:          d.handleCancelOperation,
		nlu.IntentRestartInput:          d.handleCancelOperation,
		nlu.IntentUnknown:               d.handleUnknown,
	}
	return d
}

// SetClock overrides the time source, for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch executes the request. A handler panic degrades to
// TEMP_UNAVAILABLE instead of failing the webhook delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task handler panicked", "intent", req.Intent, "panic", r)
			result = fail(CodeTempUnavailable, nil)
		}
	}()

	handler, found := d.handlers[req.Intent]
	if !found {
		handler = d.handleUnknown
	}
	result = handler(ctx, req)
	d.applySideEffects(ctx, req, result)

	slog.Debug("task executed",
		"intent", req.Intent,
		"code", result.Code,
		"success", result.Success)
	return result
}

// applySideEffects keeps the conversation context consistent with the
// outcome: incomplete flows wait for supplements, completed ones clear
// them and become referable actions.
func (d *Dispatcher) applySideEffects(ctx context.Context, req *Request, result Result) {
	if d.contexts == nil {
		return
	}
	switch {
	case result.Code == CodeMissingFields:
		tags := make([]string, 0, len(result.MissingFields))
		for _, field := range result.MissingFields {
			if tag := nlu.ExpectedInputForField(field); tag != "" {
				tags = append(tags, tag)
			}
		}
		d.contexts.SetExpectedInput(ctx, req.UserID, &nlu.PendingSlots{
			Intent:        req.Intent,
			Slots:         req.Slots,
			MissingFields: result.MissingFields,
		}, tags...)
	case result.Success:
		d.contexts.ClearExpectedInput(ctx, req.UserID)
		d.contexts.RecordTaskResult(ctx, req.UserID, nlu.ActionRecord{
			Intent:  req.Intent,
			Slots:   req.Slots,
			Success: true,
			Code:    result.Code,
		})
	}
}

// localNow is the current time in the user-facing timezone.
func (d *Dispatcher) localNow() time.Time {
	return d.now().In(timeparse.Location(d.timezone))
}

// today is the current date in storage format.
func (d *Dispatcher) today() string {
	return timeparse.FormatForStorage(d.localNow())
}

// fieldDisplayNames maps slot fields to user-facing Chinese labels.
var fieldDisplayNames = map[string]string{
	"studentName":  "學生姓名",
	"courseName":   "課程名稱",
	"scheduleTime": "上課時間",
	"courseDate":   "上課日期",
	"dayOfWeek":    "星期幾",
}

func displayFields(fields []string) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if name, ok := fieldDisplayNames[f]; ok {
			names = append(names, name)
		} else {
			names = append(names, f)
		}
	}
	return strings.Join(names, "、")
}

// missingFields builds the standard incomplete-slots result.
func missingFields(fields []string) Result {
	return Result{
		Success:       false,
		Code:          CodeMissingFields,
		Data:          map[string]string{"missingFields": displayFields(fields)},
		MissingFields: fields,
	}
}
