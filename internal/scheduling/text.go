package scheduling

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/tools"
)

var (
	affirmatives = map[string]struct{}{
		"yes": {}, "y": {}, "yep": {}, "yeah": {}, "confirm": {}, "confirmed": {}, "sure": {},
		"ok": {}, "okay": {}, "please do": {}, "go ahead": {}, "sounds good": {}, "do it": {},
		"yes please": {},
	}
	negatives = map[string]struct{}{
		"no": {}, "nope": {}, "cancel that": {}, "never mind": {}, "nevermind": {}, "don't": {},
		"dont": {}, "no thanks": {},
	}

	subIntentPatterns = []struct {
		sub models.SubIntent
		re  *regexp.Regexp
	}{
		{models.SubIntentCancel, regexp.MustCompile(`\b(cancel|call off|delete|remove)\b`)},
		{models.SubIntentReschedule, regexp.MustCompile(`\b(reschedule|move|push|postpone|change the time|different time)\b`)},
		{models.SubIntentAvailability, regexp.MustCompile(`\b(available|availability|free|openings?|open slots?|what times)\b`)},
		{models.SubIntentSchedule, regexp.MustCompile(`\b(book|schedule|meet|meeting|appointment|set up|sign me up)\b`)},
	}

	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	reasonRe = regexp.MustCompile(`(?i)\b(?:because|since|due to)\s+(.+)$`)
)

// normalizeReply lowercases text and strips surrounding punctuation.
func normalizeReply(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimFunc(s, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "’", "'")
	return strings.Join(strings.Fields(s), " ")
}

// IsAffirmative reports whether the whole message is an explicit yes.
func IsAffirmative(text string) bool {
	_, ok := affirmatives[normalizeReply(text)]
	return ok
}

// IsNegative reports whether the whole message declines.
func IsNegative(text string) bool {
	_, ok := negatives[normalizeReply(text)]
	return ok
}

// DetectSubIntent picks the scheduling action named in text, checking the
// destructive actions first.
func DetectSubIntent(text string) (models.SubIntent, bool) {
	lower := strings.ToLower(text)
	for _, p := range subIntentPatterns {
		if p.re.MatchString(lower) {
			return p.sub, true
		}
	}
	return "", false
}

// ExtractEmail returns the first valid address in text.
func ExtractEmail(text string) string {
	for _, m := range emailRe.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".")
		if tools.ValidEmail(m) {
			return strings.ToLower(m)
		}
	}
	return ""
}

func extractReason(text string) string {
	if m := reasonRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return strings.TrimRight(m[1], ".!")
	}
	return ""
}

// nameFromEmail turns "ana.lopez@x.com" into "Ana".
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local, _, _ = strings.Cut(local, ".")
	local, _, _ = strings.Cut(local, "+")
	if local == "" {
		return ""
	}
	r := []rune(local)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// FormatTime renders t as "Tuesday, Oct 20 at 9:00 AM PT".
func FormatTime(t time.Time) string {
	return t.In(models.PT()).Format("Monday, Jan 2 at 3:04 PM") + " PT"
}

// FormatDay renders t as "Tuesday, Oct 20".
func FormatDay(t time.Time) string {
	return t.In(models.PT()).Format("Monday, Jan 2")
}

// formatWindows renders windows as "10:00 AM, 12:00 PM or 1:00 PM".
func formatWindows(windows []tools.Window) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, w.Start.In(models.PT()).Format("3:04 PM"))
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}

func eventLabel(ev *models.EventRef) string {
	if ev.Summary != "" {
		return `"` + ev.Summary + `"`
	}
	return "your meeting"
}
