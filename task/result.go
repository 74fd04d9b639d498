// Package task executes classified intents against the course store and
// produces renderable results. Handlers are looked up in a dispatcher
// table; adding a conversational capability means adding a handler.
package task

// Result codes. The renderer maps each code to a message template.
const (
	CodeAddCourseOK       = "ADD_COURSE_OK"
	CodeModifyOK          = "MODIFY_OK"
	CodeCancelOK          = "CANCEL_OK"
	CodeQueryOK           = "QUERY_OK"
	CodeQueryOKEmpty      = "QUERY_OK_EMPTY"
	CodeQueryContentOK    = "QUERY_CONTENT_OK"
	CodeQueryContentEmpty = "QUERY_CONTENT_EMPTY"
	CodeReminderOK        = "REMINDER_OK"
	CodeRecordOK          = "RECORD_OK"

	CodeMissingFields          = "MISSING_FIELDS"
	CodeNotFound               = "NOT_FOUND"
	CodeTimeConflict           = "TIME_CONFLICT"
	CodeInvalidTime            = "INVALID_TIME"
	CodeInvalidPastTime        = "INVALID_PAST_TIME"
	CodePastReminderTime       = "PAST_REMINDER_TIME"
	CodeRecurringCancelOptions = "RECURRING_CANCEL_OPTIONS"
	CodeFeatureUnderDev        = "FEATURE_UNDER_DEVELOPMENT"
	CodeNotImplementedMonthly  = "NOT_IMPLEMENTED_MONTHLY"
	CodeUnknownHelp            = "UNKNOWN_HELP"
	CodeTempUnavailable        = "TEMP_UNAVAILABLE"
	CodeStorageError           = "FIREBASE_ERROR"

	CodeConfirmOK       = "CONFIRM_COURSE"
	CodeCancelOperation = "CANCEL_OPERATION"
	CodeModifyPrompt    = "MODIFY_PROMPT"
	CodeWelcome         = "WELCOME"
)

// Option is one quick-reply suggestion attached to a result. Either Text
// (echoed back as a message) or PostbackData is set.
type Option struct {
	Label        string
	Text         string
	PostbackData string
}

// Result is the outcome of one executed task.
type Result struct {
	Success       bool
	Code          string
	Message       string // overrides the template when set
	Data          map[string]string
	MissingFields []string
	Options       []Option
}

func ok(code string, data map[string]string) Result {
	return Result{Success: true, Code: code, Data: data}
}

func fail(code string, data map[string]string) Result {
	return Result{Success: false, Code: code, Data: data}
}
