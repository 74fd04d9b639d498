package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/coursesense/nlu"
	"github.com/hrygo/coursesense/store"
	"github.com/hrygo/coursesense/timeparse"
)

var referenceDescriptions = map[string]string{
	"today":              "今天",
	"tomorrow":           "明天",
	"day_after_tomorrow": "後天",
	"yesterday":          "昨天",
	"this_week":          "這週",
	"next_week":          "下週",
	"last_week":          "上週",
}

func (d *Dispatcher) handleQuerySchedule(ctx context.Context, req *Request) Result {
	slots := req.Slots

	// Several known students and no explicit subject: ask instead of
	// guessing.
	if slots.StudentName == "" && len(slots.StudentCandidates) > 1 {
		options := make([]Option, 0, len(slots.StudentCandidates))
		for _, name := range slots.StudentCandidates {
			options = append(options, Option{Label: name, Text: "查詢" + name + "的課表"})
		}
		result := missingFields([]string{"studentName"})
		result.Options = options
		return result
	}

	reference := slots.TimeReference
	start, end, description := d.queryRange(slots)

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	occurrences, err := d.courses.Occurrences(ctx, parent.ID, slots.StudentName, start, end)
	if err != nil {
		slog.Error("occurrence expansion failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	scope := slots.StudentName
	if scope == "" {
		scope = "全部學生"
	}
	if d.contexts != nil {
		if reference == "" {
			reference = "today"
		}
		d.contexts.SetActiveQuerySession(ctx, req.UserID, &nlu.QuerySession{
			StudentName:   slots.StudentName,
			TimeReference: reference,
		})
	}

	if len(occurrences) == 0 {
		return ok(CodeQueryOKEmpty, map[string]string{
			"scope":           scope,
			"dateDescription": description,
		})
	}

	lines := make([]string, 0, len(occurrences))
	multiDay := start.Format("2006-01-02") != end.Format("2006-01-02")
	for _, occ := range occurrences {
		var b strings.Builder
		b.WriteString("・")
		if multiDay {
			day, _ := time.Parse("2006-01-02", occ.Date)
			fmt.Fprintf(&b, "%s(%s) ", day.Format("01/02"), weekdayNames[int(day.Weekday())])
		}
		if occ.ScheduleTime != "" {
			b.WriteString(occ.ScheduleTime + " ")
		}
		if slots.StudentName == "" {
			b.WriteString(occ.Course.StudentName + " ")
		}
		b.WriteString(occ.Course.CourseName)
		if occ.Course.Location != "" {
			b.WriteString(" @" + occ.Course.Location)
		}
		lines = append(lines, b.String())
	}
	return ok(CodeQueryOK, map[string]string{
		"scope":           scope,
		"dateDescription": description,
		"courses":         strings.Join(lines, "\n"),
	})
}

// queryRange resolves the date window of a schedule query. An explicit
// date wins over a relative reference; default is today.
func (d *Dispatcher) queryRange(slots nlu.Slots) (start, end time.Time, description string) {
	loc := timeparse.Location(d.timezone)
	if slots.CourseDate != "" {
		if day, err := time.ParseInLocation("2006-01-02", slots.CourseDate, loc); err == nil {
			return day, day, day.Format("01/02")
		}
	}
	if slots.TimeReference != "" {
		if s, e, ok := timeparse.RangeForReference(slots.TimeReference, d.localNow(), d.timezone); ok {
			return s, e, referenceDescriptions[slots.TimeReference]
		}
	}
	today, _, _ := timeparse.RangeForReference("today", d.localNow(), d.timezone)
	return today, today, "今天"
}

func (d *Dispatcher) handleQueryContent(ctx context.Context, req *Request) Result {
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

	contents, err := d.courses.Contents(ctx, course.ID)
	if err != nil {
		slog.Error("content list failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	if slots.CourseDate != "" {
		filtered := contents[:0]
		for _, c := range contents {
			if c.Date == slots.CourseDate {
				filtered = append(filtered, c)
			}
		}
		contents = filtered
	}
	if len(contents) == 0 {
		return ok(CodeQueryContentEmpty, map[string]string{"courseName": course.CourseName})
	}

	lines := make([]string, 0, len(contents))
	for _, c := range contents {
		line := "・" + c.Content
		if day, err := time.Parse("2006-01-02", c.Date); err == nil {
			line = "・" + day.Format("01/02") + " " + c.Content
		}
		if c.ImageRef != "" && c.Content == "" {
			line = "・(照片記錄)"
			if day, err := time.Parse("2006-01-02", c.Date); err == nil {
				line = "・" + day.Format("01/02") + " (照片記錄)"
			}
		}
		lines = append(lines, line)
	}
	return ok(CodeQueryContentOK, map[string]string{
		"courseName": course.CourseName,
		"contents":   strings.Join(lines, "\n"),
	})
}

func (d *Dispatcher) handleRecordContent(ctx context.Context, req *Request) Result {
	slots := req.Slots
	if missing := nlu.MissingFieldsForIntent(slots, nlu.IntentRecordContent); len(missing) > 0 {
		return missingFields(missing)
	}

	parent, err := d.courses.GetOrCreateParent(ctx, req.UserID)
	if err != nil {
		slog.Error("parent lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}

	course, err := d.courses.FindCourse(ctx, parent.ID, slots.StudentName, slots.CourseName, "")
	if err != nil && err != store.ErrNotFound {
		slog.Error("course lookup failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	if err == store.ErrNotFound {
		if d.cfg.StrictRecordRequiresCourse() {
			return fail(CodeNotFound, map[string]string{"courseName": slots.CourseName})
		}
		// Record-first flow: create the course on the fly so the note has
		// a home.
		course, err = d.courses.AddCourse(ctx, &store.Course{
			ParentID:    parent.ID,
			StudentName: slots.StudentName,
			CourseName:  slots.CourseName,
			CourseDate:  d.today(),
		})
		if err != nil {
			slog.Error("implicit course create failed", "error", err)
			return fail(CodeStorageError, nil)
		}
	}

	content := slots.Content
	if content == "" && slots.ImageRef == "" {
		content = req.Text
	}
	date := slots.CourseDate
	if date == "" {
		date = d.today()
	}
	if _, err := d.courses.AddContent(ctx, &store.CourseContent{
		CourseID: course.ID,
		Date:     date,
		Content:  content,
		ImageRef: slots.ImageRef,
	}); err != nil {
		slog.Error("content create failed", "error", err)
		return fail(CodeStorageError, nil)
	}
	return ok(CodeRecordOK, map[string]string{
		"studentName": course.StudentName,
		"courseName":  course.CourseName,
	})
}
