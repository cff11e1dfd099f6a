package slots

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	weekdayRe   = regexp.MustCompile(`\b(next|this)?\s*(monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thu|friday|fri|saturday|sat|sunday|sun)\b`)
	monthDayRe  = regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRe  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b`)
	ordinalRe   = regexp.MustCompile(`\bthe\s+(\d{1,2})(?:st|nd|rd|th)\b`)
	rangeRe     = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)?\s*(?:-|\x{2013}|\bto\b|\buntil\b)\s*(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)?`)
	meridiemRe  = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)
	clockRe     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	atHourRe    = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	noonRe      = regexp.MustCompile(`\b(noon|midday)\b`)
	dayAfterRe  = regexp.MustCompile(`\bday after tomorrow\b`)
	tomorrowRe  = regexp.MustCompile(`\btomorrow\b`)
	todayRe     = regexp.MustCompile(`\btoday\b`)
	weekdayName = map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	monthName = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// RuleParser understands common date and time phrases without a model.
// A time with no date is not understood.
type RuleParser struct {
	now func() time.Time
}

func NewRuleParser(now func() time.Time) *RuleParser {
	if now == nil {
		now = time.Now
	}
	return &RuleParser{now: now}
}

func (p *RuleParser) Parse(_ context.Context, in Input) (models.TimeSlot, error) {
	return p.parse(in.Text), nil
}

// TimeOfDay finds a clock time in text that carries no date, such as "10am"
// in reply to a list of open times. It returns minutes after midnight.
func TimeOfDay(text string) (int, bool) {
	start, _, ok := findTime(strings.ToLower(text))
	return start, ok
}

func (p *RuleParser) parse(text string) models.TimeSlot {
	now := p.now().In(models.PT())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, models.PT())
	lower := strings.ToLower(text)

	date, rest, ok := findDate(lower, today)
	if !ok {
		return models.Unknown("no date found")
	}

	start, end, hasTime := findTime(rest)
	if !hasTime {
		return models.TimeSlot{Understood: true, DateOnly: date.Format(time.DateOnly)}
	}

	slot := models.TimeSlot{
		Understood: true,
		Start:      at(date, start).Format(time.RFC3339),
	}
	if end > start {
		slot.End = at(date, end).Format(time.RFC3339)
	}
	return slot
}

// findDate returns the date mentioned in text and the text with the date removed.
func findDate(text string, today time.Time) (time.Time, string, bool) {
	if m := isoDateRe.FindStringSubmatchIndex(text); m != nil {
		if d, err := time.ParseInLocation(time.DateOnly, text[m[0]:m[1]], models.PT()); err == nil {
			return d, text[:m[0]] + " " + text[m[1]:], true
		}
	}

	if m := dayAfterRe.FindStringIndex(text); m != nil {
		return today.AddDate(0, 0, 2), cut(text, m), true
	}
	if m := tomorrowRe.FindStringIndex(text); m != nil {
		return today.AddDate(0, 0, 1), cut(text, m), true
	}
	if m := todayRe.FindStringIndex(text); m != nil {
		return today, cut(text, m), true
	}

	if m := monthDayRe.FindStringSubmatchIndex(text); m != nil {
		month := monthName[text[m[2]:m[2]+3]]
		day, _ := strconv.Atoi(text[m[4]:m[5]])
		year := -1
		if m[6] >= 0 {
			year, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		if d, ok := calendarDate(today, year, month, day); ok {
			return d, cut(text, m[:2]), true
		}
	}
	if m := dayMonthRe.FindStringSubmatchIndex(text); m != nil {
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		month := monthName[text[m[4]:m[4]+3]]
		if d, ok := calendarDate(today, -1, month, day); ok {
			return d, cut(text, m[:2]), true
		}
	}

	if m := weekdayRe.FindStringSubmatchIndex(text); m != nil {
		modifier := ""
		if m[2] >= 0 {
			modifier = text[m[2]:m[3]]
		}
		wd := weekdayName[text[m[4]:m[4]+3]]
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if modifier == "next" && ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), cut(text, m[:2]), true
	}

	if m := ordinalRe.FindStringSubmatchIndex(text); m != nil {
		day, _ := strconv.Atoi(text[m[2]:m[3]])
		d := time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, models.PT())
		if d.Day() != day {
			return time.Time{}, text, false
		}
		if d.Before(today) {
			d = time.Date(today.Year(), today.Month()+1, day, 0, 0, 0, 0, models.PT())
			if d.Day() != day {
				return time.Time{}, text, false
			}
		}
		return d, cut(text, m[:2]), true
	}

	return time.Time{}, text, false
}

// calendarDate builds month/day, picking the nearest future year when none is given.
func calendarDate(today time.Time, year int, month time.Month, day int) (time.Time, bool) {
	y := year
	if y < 0 {
		y = today.Year()
	}
	d := time.Date(y, month, day, 0, 0, 0, 0, models.PT())
	if d.Day() != day {
		return time.Time{}, false
	}
	if year < 0 && d.Before(today) {
		d = time.Date(y+1, month, day, 0, 0, 0, 0, models.PT())
	}
	return d, true
}

// findTime returns start and end as minutes after midnight. end is zero when absent.
func findTime(text string) (int, int, bool) {
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		endMer := m[6]
		startMer := m[3]
		if startMer == "" {
			startMer = endMer
		}
		start, ok1 := minutes(m[1], m[2], startMer)
		end, ok2 := minutes(m[4], m[5], endMer)
		if ok1 && ok2 {
			if end <= start && endMer == "" && end+12*60 > start {
				end += 12 * 60
			}
			return start, end, true
		}
	}
	if m := meridiemRe.FindStringSubmatch(text); m != nil {
		if v, ok := minutes(m[1], m[2], m[3]); ok {
			return v, 0, true
		}
	}
	if m := clockRe.FindStringSubmatch(text); m != nil {
		if v, ok := minutes(m[1], m[2], ""); ok {
			return v, 0, true
		}
	}
	if m := atHourRe.FindStringSubmatch(text); m != nil {
		if v, ok := minutes(m[1], "", ""); ok {
			return v, 0, true
		}
	}
	if noonRe.MatchString(text) {
		return 12 * 60, 0, true
	}
	return 0, 0, false
}

// minutes converts a clock reading. Without a meridiem, hours 1 to 7 are read
// as afternoon since nobody books a 3am meeting.
func minutes(hour, minute, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h > 23 {
		return 0, false
	}
	mm := 0
	if minute != "" {
		mm, err = strconv.Atoi(minute)
		if err != nil || mm > 59 {
			return 0, false
		}
	}

	switch strings.ReplaceAll(meridiem, ".", "") {
	case "am":
		if h == 0 || h > 12 {
			return 0, false
		}
		if h == 12 {
			h = 0
		}
	case "pm":
		if h == 0 || h > 12 {
			return 0, false
		}
		if h != 12 {
			h += 12
		}
	default:
		if h >= 1 && h <= 7 {
			h += 12
		}
	}
	return h*60 + mm, true
}

func at(date time.Time, mins int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), mins/60, mins%60, 0, 0, models.PT())
}

func cut(text string, loc []int) string {
	return text[:loc[0]] + " " + text[loc[1]:]
}
