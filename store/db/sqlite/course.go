package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/coursesense/store"
)

func (d *DB) CreateCourse(ctx context.Context, create *store.Course) (*store.Course, error) {
	stmt := `
		INSERT INTO course (
			id, parent_id, student_name, course_name, course_date,
			schedule_time, location, teacher, recurring, recurrence_type,
			days_of_week, start_date, end_date, skipped_dates,
			reminder_minutes, status, calendar_event_id, created_ts, updated_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	recurring := 0
	if create.Recurring {
		recurring = 1
	}
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.ParentID, create.StudentName, create.CourseName, create.CourseDate,
		create.ScheduleTime, create.Location, create.Teacher, recurring, create.RecurrenceType,
		store.EncodeDays(create.DaysOfWeek), create.StartDate, create.EndDate, store.EncodeDates(create.SkippedDates),
		create.ReminderMinutes, create.Status, create.CalendarEventID, create.CreatedTs, create.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create course")
	}
	return create, nil
}

const courseColumns = `
	id, parent_id, student_name, course_name, course_date,
	schedule_time, location, teacher, recurring, recurrence_type,
	days_of_week, start_date, end_date, skipped_dates,
	reminder_minutes, status, calendar_event_id, created_ts, updated_ts
`

func scanCourse(scanner interface{ Scan(...any) error }) (*store.Course, error) {
	c := &store.Course{}
	var recurring int
	var days, skipped string
	err := scanner.Scan(
		&c.ID, &c.ParentID, &c.StudentName, &c.CourseName, &c.CourseDate,
		&c.ScheduleTime, &c.Location, &c.Teacher, &recurring, &c.RecurrenceType,
		&days, &c.StartDate, &c.EndDate, &skipped,
		&c.ReminderMinutes, &c.Status, &c.CalendarEventID, &c.CreatedTs, &c.UpdatedTs,
	)
	if err != nil {
		return nil, err
	}
	c.Recurring = recurring != 0
	c.DaysOfWeek = store.DecodeDays(days)
	c.SkippedDates = store.DecodeDates(skipped)
	return c, nil
}

func (d *DB) ListCourses(ctx context.Context, find *store.FindCourse) ([]*store.Course, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ParentID != "" {
		where, args = append(where, "parent_id = ?"), append(args, find.ParentID)
	}
	if find.StudentName != "" {
		where, args = append(where, "student_name = ?"), append(args, find.StudentName)
	}
	if find.CourseName != "" {
		where, args = append(where, "course_name = ?"), append(args, find.CourseName)
	}
	if find.CourseDate != "" {
		where, args = append(where, "course_date = ?"), append(args, find.CourseDate)
	}
	if find.Status != "" {
		where, args = append(where, "status = ?"), append(args, find.Status)
	}
	if find.Recurring != nil {
		recurring := 0
		if *find.Recurring {
			recurring = 1
		}
		where, args = append(where, "recurring = ?"), append(args, recurring)
	}

	query := "SELECT " + courseColumns + " FROM course WHERE " + strings.Join(where, " AND ") +
		" ORDER BY course_date, schedule_time, created_ts"
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list courses")
	}
	defer rows.Close()

	var courses []*store.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan course")
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate courses")
	}
	return courses, nil
}

func (d *DB) GetCourse(ctx context.Context, id string) (*store.Course, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM course WHERE id = ?", id)
	course, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get course")
	}
	return course, nil
}

func (d *DB) UpdateCourse(ctx context.Context, update *store.UpdateCourse) (*store.Course, error) {
	set, args := []string{"updated_ts = ?"}, []any{time.Now().Unix()}
	if update.CourseDate != nil {
		set, args = append(set, "course_date = ?"), append(args, *update.CourseDate)
	}
	if update.ScheduleTime != nil {
		set, args = append(set, "schedule_time = ?"), append(args, *update.ScheduleTime)
	}
	if update.Location != nil {
		set, args = append(set, "location = ?"), append(args, *update.Location)
	}
	if update.Teacher != nil {
		set, args = append(set, "teacher = ?"), append(args, *update.Teacher)
	}
	if update.ReminderMinutes != nil {
		set, args = append(set, "reminder_minutes = ?"), append(args, *update.ReminderMinutes)
	}
	if update.Status != nil {
		set, args = append(set, "status = ?"), append(args, *update.Status)
	}
	if update.EndDate != nil {
		set, args = append(set, "end_date = ?"), append(args, *update.EndDate)
	}
	if update.SkippedDates != nil {
		set, args = append(set, "skipped_dates = ?"), append(args, store.EncodeDates(*update.SkippedDates))
	}
	if update.CalendarEventID != nil {
		set, args = append(set, "calendar_event_id = ?"), append(args, *update.CalendarEventID)
	}
	args = append(args, update.ID)

	result, err := d.db.ExecContext(ctx,
		"UPDATE course SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update course")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, store.ErrNotFound
	}
	return d.GetCourse(ctx, update.ID)
}

func (d *DB) DeleteCourse(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM course WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete course")
	}
	return nil
}

func (d *DB) CreateCourseContent(ctx context.Context, create *store.CourseContent) (*store.CourseContent, error) {
	stmt := `
		INSERT INTO course_content (id, course_id, content_date, content, image_ref, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.CourseID, create.Date, create.Content, create.ImageRef, create.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create course content")
	}
	return create, nil
}

func (d *DB) ListCourseContents(ctx context.Context, courseID string) ([]*store.CourseContent, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, course_id, content_date, content, image_ref, created_ts
		FROM course_content
		WHERE course_id = ?
		ORDER BY created_ts DESC
	`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list course contents")
	}
	defer rows.Close()

	var contents []*store.CourseContent
	for rows.Next() {
		content := &store.CourseContent{}
		if err := rows.Scan(&content.ID, &content.CourseID, &content.Date,
			&content.Content, &content.ImageRef, &content.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan course content")
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate course contents")
	}
	return contents, nil
}
