// Package store provides database access to parents, courses, and course
// contents. The facade layers course matching and recurrence expansion over
// a raw Driver.
package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Course statuses.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Recurrence types.
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// Course is one scheduled course: either a single occurrence with a concrete
// CourseDate, or a recurring series with a recurrence rule.
type Course struct {
	ID       string
	ParentID string

	StudentName  string
	CourseName   string
	CourseDate   string // YYYY-MM-DD; empty for a recurring series
	ScheduleTime string // HH:MM
	Location     string
	Teacher      string

	Recurring      bool
	RecurrenceType string
	DaysOfWeek     []int  // 0=Sunday .. 6=Saturday, weekly series only
	StartDate      string // first valid date of a recurring series
	EndDate        string // last valid date, empty for open-ended
	SkippedDates   []string

	ReminderMinutes int
	Status          string

	// CalendarEventID is the external calendar entry mirroring this course,
	// empty when no sync happened.
	CalendarEventID string

	CreatedTs int64
	UpdatedTs int64
}

// OccursOnWeekday reports whether a weekly series includes the weekday.
func (c *Course) OccursOnWeekday(weekday int) bool {
	for _, d := range c.DaysOfWeek {
		if d == weekday {
			return true
		}
	}
	return false
}

// IsSkipped reports whether the series has an exception on the date.
func (c *Course) IsSkipped(date string) bool {
	for _, d := range c.SkippedDates {
		if d == date {
			return true
		}
	}
	return false
}

// CourseContent is one recorded lesson note attached to a course.
type CourseContent struct {
	ID        string
	CourseID  string
	Date      string // YYYY-MM-DD the content belongs to
	Content   string
	ImageRef  string
	CreatedTs int64
}

// Parent is one LINE account owning students and courses.
type Parent struct {
	ID        string // LINE user ID
	CreatedTs int64
}

// FindCourse filters course listings. Zero fields are ignored.
type FindCourse struct {
	ParentID    string
	StudentName string
	CourseName  string
	CourseDate  string
	Status      string
	Recurring   *bool
}

// UpdateCourse applies a partial update to one course. Nil fields are
// left untouched.
type UpdateCourse struct {
	ID string

	CourseDate      *string
	ScheduleTime    *string
	Location        *string
	Teacher         *string
	ReminderMinutes *int
	Status          *string
	EndDate         *string
	SkippedDates    *[]string
	CalendarEventID *string
}

// Driver is the raw persistence surface implemented per database.
type Driver interface {
	GetDB() *sql.DB
	Migrate(ctx context.Context) error
	Close() error

	UpsertParent(ctx context.Context, parent *Parent) (*Parent, error)
	GetParent(ctx context.Context, id string) (*Parent, error)

	CreateCourse(ctx context.Context, create *Course) (*Course, error)
	GetCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context, find *FindCourse) ([]*Course, error)
	UpdateCourse(ctx context.Context, update *UpdateCourse) (*Course, error)
	DeleteCourse(ctx context.Context, id string) error

	CreateCourseContent(ctx context.Context, create *CourseContent) (*CourseContent, error)
	ListCourseContents(ctx context.Context, courseID string) ([]*CourseContent, error)
}

// EncodeDays renders a weekday set for storage ("1,3,5").
func EncodeDays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// DecodeDays parses a stored weekday set.
func DecodeDays(encoded string) []int {
	if encoded == "" {
		return nil
	}
	var days []int
	for _, part := range strings.Split(encoded, ",") {
		if d, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			days = append(days, d)
		}
	}
	return days
}

// EncodeDates renders a date list for storage.
func EncodeDates(dates []string) string {
	return strings.Join(dates, ",")
}

// DecodeDates parses a stored date list.
func DecodeDates(encoded string) []string {
	if encoded == "" {
		return nil
	}
	return strings.Split(encoded, ",")
}
