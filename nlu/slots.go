package nlu

import (
	"github.com/hrygo/coursesense/timeparse"
)

// Recurrence types extracted from utterances.
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// Slots is the typed record of fields extracted from one utterance.
// Absent fields stay at their zero value.
type Slots struct {
	StudentName       string   `json:"studentName,omitempty"`
	StudentCandidates []string `json:"studentCandidates,omitempty"`
	CourseName        string   `json:"courseName,omitempty"`
	ScheduleTime      string   `json:"scheduleTime,omitempty"` // HH:MM 24h
	CourseDate        string   `json:"courseDate,omitempty"`   // YYYY-MM-DD
	TimeReference     string   `json:"timeReference,omitempty"`
	DayOfWeek         []int    `json:"dayOfWeek,omitempty"` // 0=Sunday .. 6=Saturday
	Recurring         bool     `json:"recurring,omitempty"`
	RecurrenceType    string   `json:"recurrenceType,omitempty"`
	Location          string   `json:"location,omitempty"`
	Teacher           string   `json:"teacher,omitempty"`
	Content           string   `json:"content,omitempty"`
	ReminderTime      int      `json:"reminderTime,omitempty"` // minutes before class
	ImageRef          string   `json:"imageRef,omitempty"`

	TimeInfo *timeparse.TimeInfo `json:"timeInfo,omitempty"`

	// InvalidTime marks a clock expression that was present but unparsable
	// ("25點"). Distinguishes bad input from missing input.
	InvalidTime bool `json:"invalidTime,omitempty"`
}

// IsEmpty reports whether no field carries a value.
func (s Slots) IsEmpty() bool {
	return s.StudentName == "" && len(s.StudentCandidates) == 0 &&
		s.CourseName == "" && s.ScheduleTime == "" && s.CourseDate == "" &&
		s.TimeReference == "" && len(s.DayOfWeek) == 0 && !s.Recurring &&
		s.RecurrenceType == "" && s.Location == "" && s.Teacher == "" &&
		s.Content == "" && s.ReminderTime == 0 && s.ImageRef == "" && !s.InvalidTime
}

// Merge overlays other onto s, preserving every non-zero field of s.
// The LLM enhancement path relies on this never replacing rule output.
func (s Slots) Merge(other Slots) Slots {
	out := s
	if out.StudentName == "" {
		out.StudentName = other.StudentName
	}
	if len(out.StudentCandidates) == 0 {
		out.StudentCandidates = other.StudentCandidates
	}
	if out.CourseName == "" {
		out.CourseName = other.CourseName
	}
	if out.ScheduleTime == "" {
		out.ScheduleTime = other.ScheduleTime
	}
	if out.CourseDate == "" {
		out.CourseDate = other.CourseDate
	}
	if out.TimeReference == "" {
		out.TimeReference = other.TimeReference
	}
	if len(out.DayOfWeek) == 0 {
		out.DayOfWeek = other.DayOfWeek
	}
	if !out.Recurring {
		out.Recurring = other.Recurring
	}
	if out.RecurrenceType == "" {
		out.RecurrenceType = other.RecurrenceType
	}
	if out.Location == "" {
		out.Location = other.Location
	}
	if out.Teacher == "" {
		out.Teacher = other.Teacher
	}
	if out.Content == "" {
		out.Content = other.Content
	}
	if out.ReminderTime == 0 {
		out.ReminderTime = other.ReminderTime
	}
	if out.ImageRef == "" {
		out.ImageRef = other.ImageRef
	}
	if out.TimeInfo == nil {
		out.TimeInfo = other.TimeInfo
	}
	out.InvalidTime = out.InvalidTime || other.InvalidTime
	return out
}

// IsCompleteForIntent reports whether the slots satisfy the minimum field
// set required to execute the intent.
func IsCompleteForIntent(s Slots, intent Intent) bool {
	switch intent {
	case IntentAddCourse, IntentCreateRecurringCourse:
		hasTime := s.ScheduleTime != "" || (s.CourseDate != "" && len(s.DayOfWeek) > 0)
		return s.StudentName != "" && s.CourseName != "" && hasTime
	case IntentQuerySchedule:
		return s.StudentName != "" || s.CourseName != "" || s.CourseDate != ""
	case IntentRecordContent, IntentAddCourseContent:
		return s.StudentName != "" && s.CourseName != ""
	default:
		return !s.IsEmpty()
	}
}

// MissingFieldsForIntent lists the required fields still absent for intent.
// Field names match the expected-input tags used by the context store.
func MissingFieldsForIntent(s Slots, intent Intent) []string {
	var missing []string
	switch intent {
	case IntentAddCourse, IntentCreateRecurringCourse:
		if s.StudentName == "" {
			missing = append(missing, "studentName")
		}
		if s.CourseName == "" {
			missing = append(missing, "courseName")
		}
		if s.ScheduleTime == "" && !(s.CourseDate != "" && len(s.DayOfWeek) > 0) {
			missing = append(missing, "scheduleTime")
		}
	case IntentRecordContent, IntentAddCourseContent:
		if s.StudentName == "" {
			missing = append(missing, "studentName")
		}
		if s.CourseName == "" {
			missing = append(missing, "courseName")
		}
	case IntentQuerySchedule:
		if !IsCompleteForIntent(s, intent) {
			missing = append(missing, "studentName")
		}
	}
	return missing
}

// ExpectedInputForField maps a missing slot field to the expected-input tag
// the conversation context tracks.
func ExpectedInputForField(field string) string {
	switch field {
	case "studentName":
		return "student_name_input"
	case "courseName":
		return "course_name_input"
	case "scheduleTime":
		return "schedule_time_input"
	case "courseDate":
		return "course_date_input"
	}
	return field
}
