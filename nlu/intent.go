// Package nlu decides intents and extracts slots for course-management
// utterances. Classification is layered: deterministic safety rules first,
// an optional LLM classifier behind a confidence gate, then rule fallback.
package nlu

// Intent is a label from the closed intent set.
type Intent string

const (
	IntentAddCourse             Intent = "add_course"
	IntentCreateRecurringCourse Intent = "create_recurring_course"
	IntentModifyCourse          Intent = "modify_course"
	IntentCancelCourse          Intent = "cancel_course"
	IntentStopRecurringCourse   Intent = "stop_recurring_course"
	IntentQuerySchedule         Intent = "query_schedule"
	IntentQueryCourseContent    Intent = "query_course_content"
	IntentRecordContent         Intent = "record_content"
	IntentAddCourseContent      Intent = "add_course_content"
	IntentSetReminder           Intent = "set_reminder"
	IntentConfirmAction         Intent = "confirm_action"
	IntentModifyAction          Intent = "modify_action"
	IntentCancelAction          Intent = "cancel_action"
	IntentRestartInput          Intent = "restart_input"
	IntentCorrection            Intent = "correction_intent"
	IntentUnknown               Intent = "unknown"
)

// allIntents is the closed set accepted from any classifier layer.
var allIntents = map[Intent]bool{
	IntentAddCourse:             true,
	IntentCreateRecurringCourse: true,
	IntentModifyCourse:          true,
	IntentCancelCourse:          true,
	IntentStopRecurringCourse:   true,
	IntentQuerySchedule:         true,
	IntentQueryCourseContent:    true,
	IntentRecordContent:         true,
	IntentAddCourseContent:      true,
	IntentSetReminder:           true,
	IntentConfirmAction:         true,
	IntentModifyAction:          true,
	IntentCancelAction:          true,
	IntentRestartInput:          true,
	IntentCorrection:            true,
	IntentUnknown:               true,
}

// Valid reports whether i belongs to the closed intent set.
func (i Intent) Valid() bool {
	return allIntents[i]
}

// contextRequired lists intents that only make sense with prior context.
var contextRequired = map[Intent]bool{
	IntentConfirmAction: true,
	IntentModifyAction:  true,
	IntentCancelAction:  true,
	IntentCorrection:    true,
}

// RequiresContext reports whether i is only valid with prior context.
func (i Intent) RequiresContext() bool {
	return contextRequired[i]
}
