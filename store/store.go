package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no course matches a lookup.
var ErrNotFound = errors.New("store: not found")

// Store provides course access with matching and recurrence expansion
// layered over the raw driver.
type Store struct {
	driver Driver
	now    func() time.Time
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{
		driver: driver,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetDriver exposes the raw driver.
func (s *Store) GetDriver() Driver {
	return s.driver
}

// GetOrCreateParent returns the parent record for the LINE user, creating
// it on first contact.
func (s *Store) GetOrCreateParent(ctx context.Context, userID string) (*Parent, error) {
	parent, err := s.driver.GetParent(ctx, userID)
	if err == nil {
		return parent, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.driver.UpsertParent(ctx, &Parent{
		ID:        userID,
		CreatedTs: s.now().Unix(),
	})
}

// AddCourse persists a new course owned by the parent.
func (s *Store) AddCourse(ctx context.Context, course *Course) (*Course, error) {
	if course.ParentID == "" {
		return nil, errors.New("store: course requires a parent")
	}
	if course.ID == "" {
		course.ID = shortuuid.New()
	}
	if course.Status == "" {
		course.Status = StatusActive
	}
	now := s.now().Unix()
	course.CreatedTs = now
	course.UpdatedTs = now
	return s.driver.CreateCourse(ctx, course)
}

// NormalizeCourseName strips whitespace and the trailing 課 marker so that
// 數學 and 數學課 refer to the same course.
func NormalizeCourseName(name string) string {
	return strings.TrimSuffix(strings.TrimSpace(name), "課")
}

// CourseNameMatches applies bidirectional containment on normalized names.
func CourseNameMatches(a, b string) bool {
	na, nb := NormalizeCourseName(a), NormalizeCourseName(b)
	if na == "" || nb == "" {
		return na == nb
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// FindCourse locates the active course best matching the description.
// courseName matching is normalized; date narrows the candidates when given.
// Exact name matches win over containment matches.
func (s *Store) FindCourse(ctx context.Context, parentID, studentName, courseName, date string) (*Course, error) {
	courses, err := s.driver.ListCourses(ctx, &FindCourse{
		ParentID:    parentID,
		StudentName: studentName,
		Status:      StatusActive,
	})
	if err != nil {
		return nil, err
	}

	var exact, partial []*Course
	for _, c := range courses {
		if courseName != "" && !CourseNameMatches(c.CourseName, courseName) {
			continue
		}
		if date != "" && !s.occursOn(c, date) {
			continue
		}
		if NormalizeCourseName(c.CourseName) == NormalizeCourseName(courseName) {
			exact = append(exact, c)
		} else {
			partial = append(partial, c)
		}
	}

	candidates := exact
	if len(candidates) == 0 {
		candidates = partial
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	// Newest first keeps behavior stable when several match.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedTs > candidates[j].UpdatedTs
	})
	return candidates[0], nil
}

// occursOn reports whether the course has an occurrence on the date.
func (s *Store) occursOn(c *Course, date string) bool {
	if !c.Recurring {
		return c.CourseDate == date
	}
	if c.IsSkipped(date) {
		return false
	}
	if c.StartDate != "" && date < c.StartDate {
		return false
	}
	if c.EndDate != "" && date > c.EndDate {
		return false
	}
	switch c.RecurrenceType {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return false
		}
		return c.OccursOnWeekday(int(day.Weekday()))
	}
	return false
}

// Occurrence is one concrete course instance inside a queried range.
type Occurrence struct {
	Course       *Course
	Date         string // YYYY-MM-DD
	ScheduleTime string // HH:MM
}

// Occurrences expands every active course of the parent into concrete
// occurrences within [start, end] (inclusive, date granularity), sorted by
// date then clock time, deduplicated per student/course/date/time.
func (s *Store) Occurrences(ctx context.Context, parentID, studentName string, start, end time.Time) ([]Occurrence, error) {
	courses, err := s.driver.ListCourses(ctx, &FindCourse{
		ParentID:    parentID,
		StudentName: studentName,
		Status:      StatusActive,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Occurrence
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		for _, c := range courses {
			if !s.occursOn(c, date) {
				continue
			}
			key := c.StudentName + "|" + NormalizeCourseName(c.CourseName) + "|" + date + "|" + c.ScheduleTime
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Occurrence{Course: c, Date: date, ScheduleTime: c.ScheduleTime})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].ScheduleTime != out[j].ScheduleTime {
			return out[i].ScheduleTime < out[j].ScheduleTime
		}
		return out[i].Course.CourseName < out[j].Course.CourseName
	})
	return out, nil
}

// CheckTimeConflicts lists active occurrences of the student at exactly
// the given date and clock time.
func (s *Store) CheckTimeConflicts(ctx context.Context, parentID, studentName, date, scheduleTime string) ([]*Course, error) {
	if date == "" || scheduleTime == "" {
		return nil, nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, errors.Wrapf(err, "bad date %q", date)
	}
	occurrences, err := s.Occurrences(ctx, parentID, studentName, day, day)
	if err != nil {
		return nil, err
	}
	var conflicts []*Course
	for _, occ := range occurrences {
		if occ.ScheduleTime == scheduleTime {
			conflicts = append(conflicts, occ.Course)
		}
	}
	return conflicts, nil
}

// GetCourse loads one course by id.
func (s *Store) GetCourse(ctx context.Context, id string) (*Course, error) {
	return s.driver.GetCourse(ctx, id)
}

// UpdateCourse applies a partial update.
func (s *Store) UpdateCourse(ctx context.Context, update *UpdateCourse) (*Course, error) {
	return s.driver.UpdateCourse(ctx, update)
}

// CancelCourse cancels a single (non-recurring) course outright.
func (s *Store) CancelCourse(ctx context.Context, id string) error {
	status := StatusCancelled
	_, err := s.driver.UpdateCourse(ctx, &UpdateCourse{ID: id, Status: &status})
	return err
}

// SkipOccurrence adds one exception date to a recurring series.
func (s *Store) SkipOccurrence(ctx context.Context, course *Course, date string) error {
	if course.IsSkipped(date) {
		return nil
	}
	skipped := append(append([]string(nil), course.SkippedDates...), date)
	_, err := s.driver.UpdateCourse(ctx, &UpdateCourse{ID: course.ID, SkippedDates: &skipped})
	return err
}

// EndSeries closes a recurring series so that no occurrence after endDate
// remains.
func (s *Store) EndSeries(ctx context.Context, id, endDate string) error {
	_, err := s.driver.UpdateCourse(ctx, &UpdateCourse{ID: id, EndDate: &endDate})
	return err
}

// CancelSeries cancels an entire recurring series.
func (s *Store) CancelSeries(ctx context.Context, id string) error {
	return s.CancelCourse(ctx, id)
}

// AddContent records a lesson note on a course.
func (s *Store) AddContent(ctx context.Context, content *CourseContent) (*CourseContent, error) {
	if content.CourseID == "" {
		return nil, errors.New("store: content requires a course")
	}
	if content.ID == "" {
		content.ID = shortuuid.New()
	}
	content.CreatedTs = s.now().Unix()
	return s.driver.CreateCourseContent(ctx, content)
}

// Contents lists the lesson notes of a course, newest first.
func (s *Store) Contents(ctx context.Context, courseID string) ([]*CourseContent, error) {
	return s.driver.ListCourseContents(ctx, courseID)
}
