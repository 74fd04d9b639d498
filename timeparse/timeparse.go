// Package timeparse parses mixed Chinese/English date and time expressions
// into concrete times in the user's timezone.
package timeparse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is the user-facing timezone when none is configured.
const DefaultTimezone = "Asia/Taipei"

// timezoneCache caches parsed timezone locations for performance.
var timezoneCache = struct {
	locations map[string]*time.Location
	mu        sync.RWMutex
}{
	locations: make(map[string]*time.Location),
}

// Location gets a timezone location from cache or loads it.
func Location(timezone string) *time.Location {
	if timezone == "" {
		timezone = DefaultTimezone
	}

	timezoneCache.mu.RLock()
	loc, ok := timezoneCache.locations[timezone]
	timezoneCache.mu.RUnlock()

	if ok {
		return loc
	}

	timezoneCache.mu.Lock()
	defer timezoneCache.mu.Unlock()

	// Double-check after acquiring write lock
	if loc, ok := timezoneCache.locations[timezone]; ok {
		return loc
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Warn("failed to load timezone, using UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}

	timezoneCache.locations[timezone] = loc
	return loc
}

// relativeDateOffsets is the closed token table for relative dates.
var relativeDateOffsets = map[string]int{
	"今天": 0, "今日": 0,
	"明天": 1, "明日": 1,
	"後天": 2, "后天": 2,
	"昨天": -1, "昨日": -1,
	"前天": -2,
}

// MapRelativeDate maps a relative date token to an offset in days.
// Unknown tokens map to 0 (today).
func MapRelativeDate(token string) int {
	if offset, ok := relativeDateOffsets[token]; ok {
		return offset
	}
	return 0
}

// chineseDigits maps single Chinese numerals used in clock times.
var chineseDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '兩': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
}

// parseChineseNumber parses Chinese numerals in the 0-19 range, which covers
// clock hours (一 .. 十二) and weekday suffixes.
func parseChineseNumber(s string) (int, bool) {
	runes := []rune(s)
	switch len(runes) {
	case 0:
		return 0, false
	case 1:
		v, ok := chineseDigits[runes[0]]
		return v, ok
	case 2:
		// 十一 .. 十九
		if runes[0] == '十' {
			units, ok := chineseDigits[runes[1]]
			if !ok || units >= 10 {
				return 0, false
			}
			return 10 + units, true
		}
		return 0, false
	}
	return 0, false
}

var (
	clockRegex = regexp.MustCompile(`(\d{1,2}):(\d{1,2})`)
	// 下午2點, 晚上八點半, 14點, 三點
	chineseClockRegex = regexp.MustCompile(`(上午|中午|下午|晚上|早上|凌晨)?\s*(\d{1,2}|[零一二兩两三四五六七八九十]{1,2})\s*[點点时時]\s*(半|\d{1,2}分?)?`)
	// English: 2 PM, 2:30pm, 12 AM
	englishClockRegex = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	// Absolute dates: 2025-08-11, 2025/08/11, 8月11日
	isoDateRegex = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	cnDateRegex  = regexp.MustCompile(`(?:(\d{4})年)?(\d{1,2})月(\d{1,2})[日號号]`)
	// Weekday: 星期三, 週日, 周天, 禮拜五
	weekdayRegex = regexp.MustCompile(`(?:星期|週|周|禮拜|礼拜)([一二三四五六日天])`)
)

// weekdayValues maps the Chinese weekday suffix to time.Weekday numbering (Sunday=0).
var weekdayValues = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6, "日": 0, "天": 0,
}

// ParseWeekday extracts a weekday (0=Sunday .. 6=Saturday) from text.
func ParseWeekday(text string) (int, bool) {
	m := weekdayRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, ok := weekdayValues[m[1]]
	return v, ok
}

// ParseWeekdays extracts every weekday mentioned in text, deduplicated in order.
func ParseWeekdays(text string) []int {
	matches := weekdayRegex.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	seen := make(map[int]bool)
	var days []int
	for _, m := range matches {
		if v, ok := weekdayValues[m[1]]; ok && !seen[v] {
			seen[v] = true
			days = append(days, v)
		}
	}
	return days
}

// ParseTimeComponent extracts an hour/minute clock component from text.
// Supported forms: "14:30", "2:5", "2 PM", "下午2點", "晚上八點半", "中午12點".
// Returns ok=false when the text carries no recognizable clock time.
func ParseTimeComponent(text string) (hour, minute int, ok bool) {
	// English AM/PM has the highest precision when present.
	if m := englishClockRegex.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		meridian := strings.ToLower(m[3])
		if meridian == "pm" && hour < 12 {
			hour += 12
		}
		if meridian == "am" && hour == 12 {
			hour = 0
		}
		return validClock(hour, minute)
	}

	// Chinese clock with optional meridian modifier.
	if m := chineseClockRegex.FindStringSubmatch(text); m != nil {
		meridian := m[1]
		if h, err := strconv.Atoi(m[2]); err == nil {
			hour = h
		} else if h, parsed := parseChineseNumber(m[2]); parsed {
			hour = h
		} else {
			return 0, 0, false
		}

		switch m[3] {
		case "", "分":
		case "半":
			minute = 30
		default:
			minute, _ = strconv.Atoi(strings.TrimSuffix(m[3], "分"))
		}

		switch meridian {
		case "下午", "晚上":
			if hour < 12 {
				hour += 12
			}
		case "中午":
			// 中午12點 stays 12; 中午1點 means 13:00.
			if hour < 11 {
				hour += 12
			}
		case "凌晨":
			if hour == 12 {
				hour = 0
			}
		}
		return validClock(hour, minute)
	}

	// Bare HH:MM.
	if m := clockRegex.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return validClock(hour, minute)
	}

	return 0, 0, false
}

func validClock(hour, minute int) (int, int, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// HasClockTime reports whether the text carries a parsable clock component.
func HasClockTime(text string) bool {
	_, _, ok := ParseTimeComponent(text)
	return ok
}

var clockAttemptRegex = regexp.MustCompile(`\d{1,2}\s*[點点时時]|\d{1,2}:\d{1,2}`)

// HasClockAttempt reports whether the text looks like it carries a clock
// time, parsable or not. Distinguishes "no time given" from "25點".
func HasClockAttempt(text string) bool {
	return clockAttemptRegex.MatchString(text)
}

// relativeTokenRegex matches the relative-date tokens anywhere in text.
var relativeTokenRegex = regexp.MustCompile(`今天|今日|明天|明日|後天|后天|昨天|昨日|前天`)

// FindRelativeDateToken returns the first relative date token in text.
func FindRelativeDateToken(text string) (string, bool) {
	token := relativeTokenRegex.FindString(text)
	return token, token != ""
}

// ParseDate extracts a concrete calendar date from text relative to ref.
// Resolution order: absolute date, relative token, weekday (next occurrence).
func ParseDate(text string, ref time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = Location("")
	}
	ref = ref.In(loc)

	if m := isoDateRegex.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if d, ok := calendarDate(year, month, day, loc); ok {
			return d, true
		}
		return time.Time{}, false
	}

	if m := cnDateRegex.FindStringSubmatch(text); m != nil {
		year := ref.Year()
		if m[1] != "" {
			year, _ = strconv.Atoi(m[1])
		}
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if d, ok := calendarDate(year, month, day, loc); ok {
			return d, true
		}
		return time.Time{}, false
	}

	if token, ok := FindRelativeDateToken(text); ok {
		d := ref.AddDate(0, 0, MapRelativeDate(token))
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), true
	}

	if wd, ok := ParseWeekday(text); ok {
		target := nextWeekday(ref, time.Weekday(wd), strings.Contains(text, "下週") || strings.Contains(text, "下周"))
		return time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, loc), true
	}

	return time.Time{}, false
}

// calendarDate validates a year/month/day triple by round-tripping through time.Date.
func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// nextWeekday returns the next occurrence of wd strictly within the coming
// week, or within the following week when nextWeek is set.
func nextWeekday(ref time.Time, wd time.Weekday, nextWeek bool) time.Time {
	if nextWeek {
		// Anchor to the next Monday-based week.
		startOfNextWeek := StartOfWeek(ref).AddDate(0, 0, 7)
		offset := (int(wd) - int(time.Monday) + 7) % 7
		return startOfNextWeek.AddDate(0, 0, offset)
	}
	delta := (int(wd) - int(ref.Weekday()) + 7) % 7
	// Same weekday mentioned without qualifier refers to today.
	return ref.AddDate(0, 0, delta)
}

// Parse resolves a mixed Chinese/English time expression into a concrete
// timestamp in the given timezone. An empty text is an error; text that
// carries no usable date or clock information yields (zero, nil).
func Parse(text string, ref time.Time, timezone string) (time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	loc := Location(timezone)
	ref = ref.In(loc)

	date, hasDate := ParseDate(text, ref, loc)
	hour, minute, hasClock := ParseTimeComponent(text)

	if !hasDate && !hasClock {
		return time.Time{}, nil
	}
	if !hasDate {
		date = time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	}
	if hasClock {
		date = time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
	}
	return date, nil
}

// FormatForDisplay renders a time as "MM/DD h:MM AM/PM" in its location.
func FormatForDisplay(t time.Time) string {
	return t.Format("01/02 3:04 PM")
}

// FormatForStorage renders the date component as "YYYY-MM-DD".
func FormatForStorage(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatClock renders the clock component as "HH:MM".
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// TimeInfo carries all rendered forms of one parsed time.
type TimeInfo struct {
	Display   string `json:"display"`
	Date      string `json:"date"`
	Raw       string `json:"raw"`
	Timestamp int64  `json:"timestamp"`
}

// NewTimeInfo builds a TimeInfo for t. Round-trip property:
// Display == FormatForDisplay(t) and Date == FormatForStorage(t).
func NewTimeInfo(t time.Time) TimeInfo {
	return TimeInfo{
		Display:   FormatForDisplay(t),
		Date:      FormatForStorage(t),
		Raw:       t.Format(time.RFC3339),
		Timestamp: t.Unix(),
	}
}

// StartOfWeek returns midnight Monday of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) - int(time.Monday) + 7) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// RangeForReference maps a relative time reference to a [start, end] date
// range (inclusive) around ref. Supported references mirror the closed
// relative-date table plus Monday-based week windows.
func RangeForReference(reference string, ref time.Time, timezone string) (start, end time.Time, ok bool) {
	loc := Location(timezone)
	ref = ref.In(loc)
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)

	switch reference {
	case "today":
		return today, today, true
	case "tomorrow":
		d := today.AddDate(0, 0, 1)
		return d, d, true
	case "day_after_tomorrow":
		d := today.AddDate(0, 0, 2)
		return d, d, true
	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return d, d, true
	case "this_week":
		start = StartOfWeek(today)
		return start, start.AddDate(0, 0, 6), true
	case "next_week":
		start = StartOfWeek(today).AddDate(0, 0, 7)
		return start, start.AddDate(0, 0, 6), true
	case "last_week":
		start = StartOfWeek(today).AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 6), true
	}
	return time.Time{}, time.Time{}, false
}

// ReferenceForToken maps a relative token found in text to its canonical
// time reference name.
func ReferenceForToken(token string) string {
	switch token {
	case "今天", "今日":
		return "today"
	case "明天", "明日":
		return "tomorrow"
	case "後天", "后天":
		return "day_after_tomorrow"
	case "昨天", "昨日":
		return "yesterday"
	}
	return ""
}

// ReferenceInText scans text for any supported time reference, including
// week windows.
func ReferenceInText(text string) string {
	switch {
	case strings.Contains(text, "這週") || strings.Contains(text, "这周") || strings.Contains(text, "本週") || strings.Contains(text, "本周"):
		return "this_week"
	case strings.Contains(text, "下週") || strings.Contains(text, "下周"):
		return "next_week"
	case strings.Contains(text, "上週") || strings.Contains(text, "上周"):
		return "last_week"
	}
	if token, ok := FindRelativeDateToken(text); ok {
		return ReferenceForToken(token)
	}
	return ""
}
