package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/coursesense/timeparse"
)

func TestSlotsMergePreservesExisting(t *testing.T) {
	rule := Slots{
		StudentName:  "小明",
		ScheduleTime: "14:00",
		DayOfWeek:    []int{3},
	}
	llm := Slots{
		StudentName:  "小王", // must not replace rule output
		CourseName:   "數學課",
		ScheduleTime: "15:00",
		CourseDate:   "2025-08-11",
		Location:     "教室A",
	}

	merged := rule.Merge(llm)

	assert.Equal(t, "小明", merged.StudentName)
	assert.Equal(t, "14:00", merged.ScheduleTime)
	assert.Equal(t, []int{3}, merged.DayOfWeek)
	// Gaps are filled.
	assert.Equal(t, "數學課", merged.CourseName)
	assert.Equal(t, "2025-08-11", merged.CourseDate)
	assert.Equal(t, "教室A", merged.Location)
}

func TestSlotsMergeTimeInfo(t *testing.T) {
	info := timeparse.TimeInfo{Date: "2025-08-11"}
	a := Slots{TimeInfo: &info}
	b := Slots{TimeInfo: &timeparse.TimeInfo{Date: "2025-09-01"}}

	assert.Equal(t, "2025-08-11", a.Merge(b).TimeInfo.Date)
	assert.Equal(t, "2025-09-01", Slots{}.Merge(b).TimeInfo.Date)
}

func TestIsCompleteForIntent(t *testing.T) {
	cases := []struct {
		name     string
		slots    Slots
		intent   Intent
		complete bool
	}{
		{
			name:     "add course with schedule time",
			slots:    Slots{StudentName: "小明", CourseName: "數學課", ScheduleTime: "14:00"},
			intent:   IntentAddCourse,
			complete: true,
		},
		{
			name:     "add course with date and weekday",
			slots:    Slots{StudentName: "小明", CourseName: "數學課", CourseDate: "2025-08-11", DayOfWeek: []int{1}},
			intent:   IntentAddCourse,
			complete: true,
		},
		{
			name:     "add course missing student",
			slots:    Slots{CourseName: "數學課", ScheduleTime: "14:00"},
			intent:   IntentAddCourse,
			complete: false,
		},
		{
			name:     "query by student only",
			slots:    Slots{StudentName: "小王"},
			intent:   IntentQuerySchedule,
			complete: true,
		},
		{
			name:     "query by time reference only",
			slots:    Slots{TimeReference: "today"},
			intent:   IntentQuerySchedule,
			complete: false,
		},
		{
			name:     "query with nothing",
			slots:    Slots{},
			intent:   IntentQuerySchedule,
			complete: false,
		},
		{
			name:     "record content needs student and course",
			slots:    Slots{StudentName: "小明", CourseName: "數學課"},
			intent:   IntentRecordContent,
			complete: true,
		},
		{
			name:     "other intent with any slot",
			slots:    Slots{Content: "x"},
			intent:   IntentSetReminder,
			complete: true,
		},
		{
			name:     "other intent with empty slots",
			slots:    Slots{},
			intent:   IntentSetReminder,
			complete: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.complete, IsCompleteForIntent(tc.slots, tc.intent))
		})
	}
}

func TestMissingFieldsForIntent(t *testing.T) {
	missing := MissingFieldsForIntent(Slots{CourseName: "數學課", ScheduleTime: "15:00"}, IntentAddCourse)
	assert.Equal(t, []string{"studentName"}, missing)

	missing = MissingFieldsForIntent(Slots{}, IntentAddCourse)
	assert.Equal(t, []string{"studentName", "courseName", "scheduleTime"}, missing)

	assert.Equal(t, "student_name_input", ExpectedInputForField("studentName"))
	assert.Equal(t, "schedule_time_input", ExpectedInputForField("scheduleTime"))
}

func TestContextBounds(t *testing.T) {
	c := NewContext("U1")

	for i := 0; i < 12; i++ {
		c.AddHistory(HistoryEntry{Role: "user", Text: "msg"})
		c.MentionStudent("學生" + string(rune('A'+i)))
	}
	c.Truncate()

	assert.LessOrEqual(t, len(c.History), 5)
	assert.LessOrEqual(t, len(c.Mentioned.Students), 10)
}

func TestMentionDedup(t *testing.T) {
	c := NewContext("U1")
	c.MentionStudent("小明")
	c.MentionStudent("小王")
	c.MentionStudent("小明")

	assert.Equal(t, []string{"小明", "小王"}, c.Mentioned.Students)
}
