package task

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/coursesense/calendar"
	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/store"
	"github.com/hrygo/coursesense/timeparse"
)

var weekdayNames = []string{"日", "一", "二", "三", "四", "五", "六"}

func describeDays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(weekdayNames) {
			parts = append(parts, weekdayNames[d])
		}
	}
	return strings.Join(parts, "、")
}

func (d *Dispatcher) handleAddCourse(ctx context.Context, req *Request) Result {
	slots := req.Slots
	if slots.Recurring {
		return d.handleCreateRecurring(ctx, req)
	}
	if slots.InvalidTime {
		return fail(CodeInvalidTime, nil)
	}
	if missing := nlu.MissingFieldsForIntent(slots, nlu.IntentAddCourse); len(missing) > 0 {
		return missingFields(missing)
	}
	if slots.ScheduleTime == "" {
		return missingFields([]string{"scheduleTime"})
	}

	date := slots.CourseDate
	if date == "" {
		date = d.today()
	}
	loc := timeparse.Location(d.timezone)
	at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+slots.ScheduleTime, loc)
	if err != nil {
		return fail(CodeInvalidTime, nil)
	}
	if !at.After(d.localNow()) {
		return fail(CodeInvalidPastTime, nil)
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	conflicts, err := d.courses.CheckTimeConflicts(ctx, parent.ID, slots.StudentName, date, slots.ScheduleTime)
	if err != nil {
		slog.Error("conflict check failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	if len(conflicts) > 0 {
		return fail(CodeTimeConflict, map[string]string{
			"conflict": fmt.Sprintf("%s %s %s", conflicts[0].CourseName, date, slots.ScheduleTime),
		})
	}

	course, err := d.courses.AddCourse(ctx, &store.Course{
		ParentID:        parent.ID,
		StudentName:     slots.StudentName,
		CourseName:      slots.CourseName,
		CourseDate:      date,
		ScheduleTime:    slots.ScheduleTime,
		Location:        slots.Location,
		Teacher:         slots.Teacher,
		ReminderMinutes: slots.ReminderTime,
	})
	if err != nil {
		slog.Error("course create failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	d.syncCalendarCreate(ctx, course, at)

	return ok(CodeAddCourseOK, map[string]string{
		"studentName":  course.StudentName,
		"courseName":   course.CourseName,
		"courseDate":   date,
		"scheduleTime": course.ScheduleTime,
	})
}

func (d *Dispatcher) handleCreateRecurring(ctx context.Context, req *Request) Result {
	if !d.cfg.EnableRecurringCourses() {
		return fail(CodeFeatureUnderDev, nil)
	}
	slots := req.Slots
	if slots.InvalidTime {
		return fail(CodeInvalidTime, nil)
	}

	recurrence := slots.RecurrenceType
	if recurrence == "" && len(slots.DayOfWeek) > 0 {
		recurrence = store.RecurrenceWeekly
	}
	if recurrence == store.RecurrenceMonthly {
		return fail(CodeNotImplementedMonthly, nil)
	}

	var missing []string
	if slots.StudentName == "" {
		missing = append(missing, "studentName")
	}
	if slots.CourseName == "" {
		missing = append(missing, "courseName")
	}
	if slots.ScheduleTime == "" {
		missing = append(missing, "scheduleTime")
	}
	if recurrence == store.RecurrenceWeekly && len(slots.DayOfWeek) == 0 {
		missing = append(missing, "dayOfWeek")
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	course, err := d.courses.AddCourse(ctx, &store.Course{
		ParentID:        parent.ID,
		StudentName:     slots.StudentName,
		CourseName:      slots.CourseName,
		ScheduleTime:    slots.ScheduleTime,
		Location:        slots.Location,
		Teacher:         slots.Teacher,
		Recurring:       true,
		RecurrenceType:  recurrence,
		DaysOfWeek:      slots.DayOfWeek,
		StartDate:       d.today(),
		ReminderMinutes: slots.ReminderTime,
	})
	if err != nil {
		slog.Error("recurring course create failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	schedule := "每天"
	if recurrence == store.RecurrenceWeekly {
		schedule = "每週" + describeDays(course.DaysOfWeek)
	}
	return ok(CodeAddCourseOK, map[string]string{
		"studentName":  course.StudentName,
		"courseName":   course.CourseName,
		"courseDate":   schedule,
		"scheduleTime": course.ScheduleTime,
	})
}

func (d *Dispatcher) handleModifyCourse(ctx context.Context, req *Request) Result {
	slots := req.Slots
	if slots.InvalidTime {
		return fail(CodeInvalidTime, nil)
	}
	if slots.StudentName == "" && slots.CourseName == "" {
		return missingFields([]string{"courseName"})
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	course, err := d.courses.FindCourse(ctx, parent.ID, slots.StudentName, slots.CourseName, "")
	if err != nil {
		if err == store.ErrNotFound {
			return fail(CodeNotFound, map[string]string{"courseName": slots.CourseName})
		}
		slog.Error("course lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	newTime, newDate := slots.ScheduleTime, slots.CourseDate
	if newTime == "" && newDate == "" {
		return missingFields([]string{"scheduleTime"})
	}

	effTime, effDate := course.ScheduleTime, course.CourseDate
	if newTime != "" {
		effTime = newTime
	}
	if newDate != "" {
		effDate = newDate
	}
	if !course.Recurring && effDate != "" && effTime != "" {
		loc := timeparse.Location(d.timezone)
		at, err := time.ParseInLocation("2006-01-02 15:04", effDate+" "+effTime, loc)
		if err != nil {
			return fail(CodeInvalidTime, nil)
		}
		if !at.After(d.localNow()) {
			return fail(CodeInvalidPastTime, nil)
		}
	}

	conflicts, err := d.courses.CheckTimeConflicts(ctx, parent.ID, course.StudentName, effDate, effTime)
	if err != nil {
		slog.Error("conflict check failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	for _, conflict := range conflicts {
		if conflict.ID == course.ID {
			continue
		}
		return fail(CodeTimeConflict, map[string]string{
			"conflict": fmt.Sprintf("%s %s %s", conflict.CourseName, effDate, effTime),
		})
	}

	update := &store.UpdateCourse{ID: course.ID}
	var changes []string
	if newTime != "" && newTime != course.ScheduleTime {
		update.ScheduleTime = &newTime
		changes = append(changes, fmt.Sprintf("時間 %s → %s", course.ScheduleTime, newTime))
	}
	if newDate != "" && !course.Recurring && newDate != course.CourseDate {
		update.CourseDate = &newDate
		changes = append(changes, fmt.Sprintf("日期 %s → %s", course.CourseDate, newDate))
	}
	if slots.Location != "" && slots.Location != course.Location {
		location := slots.Location
		update.Location = &location
		changes = append(changes, "地點改為"+location)
	}
	if len(changes) == 0 {
		return ok(CodeModifyOK, map[string]string{
			"studentName": course.StudentName,
			"courseName":  course.CourseName,
			"changes":     "內容未變更",
		})
	}

	updated, err := d.courses.UpdateCourse(ctx, update)
	if err != nil {
		slog.Error("course update failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	return ok(CodeModifyOK, map[string]string{
		"studentName": updated.StudentName,
		"courseName":  updated.CourseName,
		"changes":     strings.Join(changes, "，"),
	})
}

func (d *Dispatcher) handleCancelCourse(ctx context.Context, req *Request) Result {
	slots := req.Slots
	if slots.StudentName == "" && slots.CourseName == "" {
		return missingFields([]string{"courseName"})
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	course, err := d.courses.FindCourse(ctx, parent.ID, slots.StudentName, slots.CourseName, slots.CourseDate)
	if err != nil {
		if err == store.ErrNotFound {
			return fail(CodeNotFound, map[string]string{"courseName": slots.CourseName})
		}
		slog.Error("course lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	if course.Recurring {
		// The user must pick a scope; the postback round-trips through
		// CancelRecurring.
		return Result{
			Success: false,
			Code:    CodeRecurringCancelOptions,
			Data:    map[string]string{"courseName": course.CourseName},
			Options: []Option{
				{Label: "只取消這一次", PostbackData: "action=cancel_recurring&courseId=" + course.ID + "&scope=today"},
				{Label: "從明天起取消", PostbackData: "action=cancel_recurring&courseId=" + course.ID + "&scope=from_tomorrow"},
				{Label: "取消整個系列", PostbackData: "action=cancel_recurring&courseId=" + course.ID + "&scope=series"},
			},
		}
	}

	if err := d.courses.CancelCourse(ctx, course.ID); err != nil {
		slog.Error("course cancel failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	d.syncCalendarDelete(ctx, course)
	return ok(CodeCancelOK, map[string]string{
		"studentName": course.StudentName,
		"courseName":  course.CourseName,
	})
}

// CancelRecurring resolves a recurring-cancel postback: skip one occurrence,
// close the series from tomorrow, or cancel the whole series.
func (d *Dispatcher) CancelRecurring(ctx context.Context, userID, courseID, scope string) Result {
	course, err := d.courses.GetCourse(ctx, courseID)
	if err != nil {
		if err == store.ErrNotFound {
			return fail(CodeNotFound, nil)
		}
		slog.Error("course lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	switch scope {
	case "today":
		err = d.courses.SkipOccurrence(ctx, course, d.today())
	case "from_tomorrow":
		err = d.courses.EndSeries(ctx, course.ID, d.today())
	case "series":
		err = d.courses.CancelSeries(ctx, course.ID)
	default:
		return fail(CodeUnknownHelp, nil)
	}
	if err != nil {
		slog.Error("recurring cancel failed", "scope", scope, "error", err)
		return fail(CodeStorageError, nil)
	}

	result := ok(CodeCancelOK, map[string]string{
		"studentName": course.StudentName,
		"courseName":  course.CourseName,
	})
	if d.contexts != nil {
		d.contexts.RecordTaskResult(ctx, userID, nlu.ActionRecord{
			Intent:  nlu.IntentCancelCourse,
			Success: true,
			Code:    result.Code,
		})
	}
	return result
}

func (d *Dispatcher) handleStopRecurring(ctx context.Context, req *Request) Result {
	slots := req.Slots
	if slots.StudentName == "" && slots.CourseName == "" {
		return missingFields([]string{"courseName"})
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	course, err := d.courses.FindCourse(ctx, parent.ID, slots.StudentName, slots.CourseName, "")
	if err != nil {
		if err == store.ErrNotFound {
			return fail(CodeNotFound, map[string]string{"courseName": slots.CourseName})
		}
		slog.Error("course lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	if !course.Recurring {
		return fail(CodeNotFound, map[string]string{"courseName": slots.CourseName})
	}

	if err := d.courses.EndSeries(ctx, course.ID, d.today()); err != nil {
		slog.Error("series stop failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	return ok(CodeCancelOK, map[string]string{
		"studentName": course.StudentName,
		"courseName":  course.CourseName,
	})
}

func (d *Dispatcher) handleSetReminder(ctx context.Context, req *Request) Result {
	slots := req.Slots
	if slots.StudentName == "" && slots.CourseName == "" {
		return missingFields([]string{"courseName"})
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	course, err := d.courses.FindCourse(ctx, parent.ID, slots.StudentName, slots.CourseName, slots.CourseDate)
	if err != nil {
		if err == store.ErrNotFound {
			return fail(CodeNotFound, map[string]string{"courseName": slots.CourseName})
		}
		slog.Error("course lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	minutes := slots.ReminderTime
	if minutes <= 0 {
		minutes = 30
	}

	occurrence, found := d.nextOccurrence(ctx, parent.ID, course)
	if !found {
		return fail(CodePastReminderTime, map[string]string{"courseName": course.CourseName})
	}
	loc := timeparse.Location(d.timezone)
	at, err := time.ParseInLocation("2006-01-02 15:04", occurrence.Date+" "+occurrence.ScheduleTime, loc)
	if err != nil {
		return fail(CodeInvalidTime, nil)
	}
	if !at.Add(-time.Duration(minutes) * time.Minute).After(d.localNow()) {
		return fail(CodePastReminderTime, map[string]string{"courseName": course.CourseName})
	}

	if _, err := d.courses.UpdateCourse(ctx, &store.UpdateCourse{ID: course.ID, ReminderMinutes: &minutes}); err != nil {
		slog.Error("reminder update failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	return ok(CodeReminderOK, map[string]string{
		"courseName":      course.CourseName,
		"reminderMinutes": strconv.Itoa(minutes),
	})
}

// nextOccurrence finds the course's next scheduled instance inside a
// two-week lookahead window.
func (d *Dispatcher) nextOccurrence(ctx context.Context, parentID string, course *store.Course) (store.Occurrence, bool) {
	if course.ScheduleTime == "" {
		return store.Occurrence{}, false
	}
	start := d.localNow()
	occurrences, err := d.courses.Occurrences(ctx, parentID, course.StudentName, start, start.AddDate(0, 0, 13))
	if err != nil {
		return store.Occurrence{}, false
	}
	for _, occ := range occurrences {
		if occ.Course.ID == course.ID {
			return occ, true
		}
	}
	return store.Occurrence{}, false
}

// syncCalendarCreate mirrors a new course to the external calendar when one
// is configured, persisting the returned event id so a later cancellation
// can remove the entry. Sync failures never fail the user-facing operation.
func (d *Dispatcher) syncCalendarCreate(ctx context.Context, course *store.Course, at time.Time) {
	if d.calendar == nil {
		return
	}
	event := &calendar.Event{
		Summary:     course.StudentName + " " + course.CourseName,
		Location:    course.Location,
		Description: course.Teacher,
		Start:       at,
		End:         at.Add(time.Hour),
	}
	eventID, err := d.calendar.CreateEvent(ctx, event)
	if err != nil {
		slog.Warn("calendar sync failed", "courseId", course.ID, "error", err)
		return
	}
	if eventID == "" {
		return
	}
	course.CalendarEventID = eventID
	if _, err := d.courses.UpdateCourse(ctx, &store.UpdateCourse{ID: course.ID, CalendarEventID: &eventID}); err != nil {
		slog.Warn("calendar event id not persisted", "courseId", course.ID, "error", err)
	}
}

func (d *Dispatcher) syncCalendarDelete(ctx context.Context, course *store.Course) {
	if d.calendar == nil || course.CalendarEventID == "" {
		return
	}
	if err := d.calendar.DeleteEvent(ctx, course.CalendarEventID); err != nil {
		slog.Debug("calendar delete failed", "courseId", course.ID, "error", err)
	}
}
