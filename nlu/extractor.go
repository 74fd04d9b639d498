package nlu

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/coursesense/config"
	"github.com/hrygo/coursesense/timeparse"
)

// SlotEnhancer is the LLM-assisted extraction capability. It enhances rule
// output; it never replaces it.
type SlotEnhancer interface {
	ExtractSlots(ctx context.Context, text string, intent Intent, existing Slots) (Slots, error)
}

// Entity patterns for the unified extraction pass.
var (
	// 小明的數學課
	studentPossessiveRegex = regexp.MustCompile(`([\p{Han}]{2,3})的[\p{Han}A-Za-z]{0,8}課`)
	// 小明明天 / 小王今天 / 小美下午 / 小明每週三
	studentLeadingRegex = regexp.MustCompile(`^([\p{Han}]{2,3})(今天|今日|明天|明日|後天|后天|昨天|前天|這週|这周|本週|本周|下週|下周|每週|每周|每天|每日|每月|星期|週|周|上午|中午|下午|晚上|早上|\d)`)
	courseRegex         = regexp.MustCompile(`[\p{Han}A-Za-z]{1,8}課`)
	locationRegex       = regexp.MustCompile(`在([\p{Han}A-Za-z0-9]{1,8}?)(?:上課|上|的|，|,|。|$)`)
	teacherRegex        = regexp.MustCompile(`[\p{Han}]{1,3}老師`)
	reminderRegex       = regexp.MustCompile(`提前\s*(\d+)\s*分鐘|(\d+)\s*分鐘前`)
	contentRegex        = regexp.MustCompile(`(?:學了|教了|內容是|內容[:：])\s*(.+)$`)
	bareNameRegex       = regexp.MustCompile(`^[\p{Han}]{2,4}$`)
)

// actionVerbs are stripped before name extraction so "取消小明的晨練課"
// does not capture the verb as part of the student name.
var actionVerbs = []string{
	"提醒我", "提醒", "取消", "刪除", "刪掉", "新增", "查詢", "修改", "更改",
	"安排", "記錄", "紀錄", "停止", "停課", "幫我", "請幫我", "我要",
}

// courseNoisePrefixes are trimmed from a greedy course-name match.
var courseNoisePrefixes = []string{
	"要上", "去上", "想上", "安排", "新增", "取消", "刪除", "修改", "查詢",
	"今天", "明天", "後天", "昨天", "前天", "這週", "下週", "本週",
	"每週", "每周", "每天", "每月", "星期", "上午", "中午", "下午", "晚上", "早上",
	"提醒", "點", "半", "的", "上", "有", "週", "周",
}

// courseRejects disqualify an extracted course name outright.
var courseRejects = []string{"什麼", "哪些", "沒有", "幾點", "課表"}

// nameBlacklist rejects time words and verbs captured as student names.
var nameBlacklist = map[string]bool{
	"今天": true, "明天": true, "後天": true, "昨天": true, "前天": true,
	"這週": true, "下週": true, "本週": true, "每週": true, "每天": true,
	"每月": true, "提醒": true, "取消": true, "查詢": true, "課表": true,
	"老師": true, "確認": true, "內容": true, "記錄": true, "什麼": true,
}

// Extractor produces typed slots from utterances. Rule passes run first;
// the enhancer only fills gaps when rule confidence is low.
type Extractor struct {
	cfg      *config.Registry
	enhancer SlotEnhancer
	timezone string
	now      func() time.Time
}

// NewExtractor builds an extractor. enhancer may be nil.
func NewExtractor(cfg *config.Registry, enhancer SlotEnhancer, timezone string) *Extractor {
	return &Extractor{
		cfg:      cfg,
		enhancer: enhancer,
		timezone: timezone,
		now:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (e *Extractor) SetClock(now func() time.Time) {
	e.now = now
}

// Extract runs the unified entity pass for (text, intent) and optionally
// the LLM enhancement. Failures surface as partial slots, never as errors.
func (e *Extractor) Extract(ctx context.Context, text string, intent Intent, conv *ConversationContext) Slots {
	slots := e.rulePass(text, intent, conv)

	confidence := contextConfidence(slots, intent)
	if confidence < 0.5 && e.cfg.EnableAIFallback() && e.enhancer != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.AIFallbackTimeout())
		defer cancel()
		enhanced, err := e.enhancer.ExtractSlots(callCtx, text, intent, slots)
		if err != nil {
			slog.Debug("slot enhancement failed, keeping rule slots", "error", err)
		} else {
			slots = slots.Merge(enhanced)
		}
	}

	e.applyQuerySession(&slots, intent, conv)
	return slots
}

// rulePass is the deterministic extraction stage.
func (e *Extractor) rulePass(text string, intent Intent, conv *ConversationContext) Slots {
	var slots Slots

	stripped := stripVerbs(text)
	// Location and teacher come out first so the course pass never
	// swallows the venue ("在教室A上數學課").
	if m := locationRegex.FindStringSubmatch(text); m != nil {
		slots.Location = m[1]
		stripped = strings.Replace(stripped, "在"+m[1], "", 1)
	}
	slots.Teacher = teacherRegex.FindString(text)

	slots.StudentName = extractStudent(stripped, conv)
	slots.CourseName = extractCourse(stripped, slots.StudentName)

	// Time pass runs once per request.
	loc := timeparse.Location(e.timezone)
	ref := e.now().In(loc)

	hour, minute, clockOK := timeparse.ParseTimeComponent(text)
	if clockOK {
		slots.ScheduleTime = twoDigitClock(hour, minute)
	} else if timeparse.HasClockAttempt(text) {
		slots.InvalidTime = true
	}

	date, dateOK := timeparse.ParseDate(text, ref, loc)
	if dateOK {
		slots.CourseDate = timeparse.FormatForStorage(date)
	}
	slots.TimeReference = timeparse.ReferenceInText(text)

	if dateOK || clockOK {
		at := date
		if !dateOK {
			at = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
		}
		if clockOK {
			at = time.Date(at.Year(), at.Month(), at.Day(), hour, minute, 0, 0, loc)
		}
		info := timeparse.NewTimeInfo(at)
		slots.TimeInfo = &info
	}

	e.detectRecurrence(text, &slots)

	if m := reminderRegex.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if minutes, err := strconv.Atoi(raw); err == nil {
			slots.ReminderTime = minutes
		}
	}
	if intent == IntentRecordContent || intent == IntentAddCourseContent || intent == IntentQueryCourseContent {
		if m := contentRegex.FindStringSubmatch(text); m != nil {
			slots.Content = strings.TrimSpace(m[1])
		}
	}

	e.applySupplementInput(text, &slots, conv)
	e.fillCandidates(&slots, intent, conv)

	return slots
}

// applySupplementInput interprets bare answers against the expected inputs
// of the pending flow ("小明" answering a student-name prompt).
func (e *Extractor) applySupplementInput(text string, slots *Slots, conv *ConversationContext) {
	if conv == nil || len(conv.ExpectingInput) == 0 {
		return
	}
	trimmed := strings.TrimSpace(text)
	switch {
	case conv.ExpectsAny(InputStudentName) && slots.StudentName == "" && bareNameRegex.MatchString(trimmed) && !nameBlacklist[trimmed]:
		slots.StudentName = trimmed
	case conv.ExpectsAny(InputCourseName) && slots.CourseName == "" && bareNameRegex.MatchString(trimmed):
		slots.CourseName = trimmed
	}
}

// fillCandidates populates studentCandidates for ambiguous schedule queries
// instead of guessing a student.
func (e *Extractor) fillCandidates(slots *Slots, intent Intent, conv *ConversationContext) {
	if intent != IntentQuerySchedule || slots.StudentName != "" || conv == nil {
		return
	}
	if len(conv.Mentioned.Students) > 1 {
		slots.StudentCandidates = append([]string(nil), conv.Mentioned.Students...)
	}
}

// applyQuerySession auto-fills the pinned query subject for follow-ups.
func (e *Extractor) applyQuerySession(slots *Slots, intent Intent, conv *ConversationContext) {
	if conv == nil || conv.ActiveQuery == nil || e.cfg.DisableContextAutoFill() {
		return
	}
	if intent != IntentQuerySchedule && intent != IntentQueryCourseContent {
		return
	}
	if slots.StudentName == "" && len(slots.StudentCandidates) == 0 {
		slots.StudentName = conv.ActiveQuery.StudentName
	}
	if slots.TimeReference == "" && slots.CourseDate == "" {
		slots.TimeReference = conv.ActiveQuery.TimeReference
	}
}

func (e *Extractor) detectRecurrence(text string, slots *Slots) {
	if !e.cfg.EnableRecurringCourses() {
		return
	}
	switch {
	case strings.Contains(text, "每天") || strings.Contains(text, "每日"):
		slots.Recurring = true
		slots.RecurrenceType = RecurrenceDaily
	case strings.Contains(text, "每週") || strings.Contains(text, "每周") ||
		strings.Contains(text, "每星期") || strings.Contains(text, "每個星期") || strings.Contains(text, "每个星期"):
		slots.Recurring = true
		slots.RecurrenceType = RecurrenceWeekly
		slots.DayOfWeek = timeparse.ParseWeekdays(text)
	case strings.Contains(text, "每月"):
		slots.Recurring = true
		slots.RecurrenceType = RecurrenceMonthly
	}
}

func stripVerbs(text string) string {
	out := text
	for _, verb := range actionVerbs {
		out = strings.ReplaceAll(out, verb, "")
	}
	return out
}

func extractStudent(text string, conv *ConversationContext) string {
	if m := studentPossessiveRegex.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1]); name != "" {
			return name
		}
	}
	if m := studentLeadingRegex.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1]); name != "" {
			return name
		}
	}
	// Fall back to recently mentioned students appearing verbatim.
	if conv != nil {
		for _, known := range conv.Mentioned.Students {
			if known != "" && strings.Contains(text, known) {
				return known
			}
		}
	}
	return ""
}

func cleanName(candidate string) string {
	if candidate == "" || nameBlacklist[candidate] {
		return ""
	}
	return candidate
}

func extractCourse(text, student string) string {
	match := courseRegex.FindString(text)
	if match == "" {
		return ""
	}
	if student != "" {
		match = strings.TrimPrefix(match, student)
	}
	for {
		trimmed := match
		for _, prefix := range courseNoisePrefixes {
			trimmed = strings.TrimPrefix(trimmed, prefix)
		}
		if trimmed == match {
			break
		}
		match = trimmed
	}
	// A possessive before the course keeps only the course part.
	if idx := strings.LastIndex(match, "的"); idx >= 0 {
		match = match[idx+len("的"):]
	}
	if match == "課" || match == "" {
		return ""
	}
	for _, reject := range courseRejects {
		if strings.Contains(match, reject) {
			return ""
		}
	}
	return match
}

func twoDigitClock(hour, minute int) string {
	return strconv.Itoa(hour/10) + strconv.Itoa(hour%10) + ":" + strconv.Itoa(minute/10) + strconv.Itoa(minute%10)
}

// contextConfidence estimates how usable the rule-pass slots are for the
// intent, as required-field coverage.
func contextConfidence(slots Slots, intent Intent) float64 {
	switch intent {
	case IntentAddCourse, IntentCreateRecurringCourse:
		covered := 0
		if slots.StudentName != "" {
			covered++
		}
		if slots.CourseName != "" {
			covered++
		}
		if slots.ScheduleTime != "" || (slots.CourseDate != "" && len(slots.DayOfWeek) > 0) {
			covered++
		}
		return float64(covered) / 3
	case IntentQuerySchedule:
		if IsCompleteForIntent(slots, intent) || len(slots.StudentCandidates) > 0 {
			return 1
		}
		return 0
	case IntentRecordContent, IntentAddCourseContent:
		covered := 0
		if slots.StudentName != "" {
			covered++
		}
		if slots.CourseName != "" {
			covered++
		}
		return float64(covered) / 2
	default:
		if slots.IsEmpty() {
			return 0
		}
		return 1
	}
}
