package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/loopgateway/core/pkg/models"
)

// defaultHolidayKeywords mirrors config.Defaults().Calendar.HolidayKeywords;
// callers running without a config-supplied list fall back to this set.
var defaultHolidayKeywords = []string{"holiday", "feiertag", "christmas", "ostern", "weihnachten"}

// timeOfDayBucket buckets a local hour into the fixed five-value scale
// spec §4.6 names.
func timeOfDayBucket(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 14:
		return "midday"
	case hour >= 14 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

func isHoliday(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// behavioralHint derives a short tone hint from weekday, time-of-day bucket
// and whether today has a holiday event — the "(weekday × time-of-day ×
// holiday)" derivation named in spec §4.6.
func behavioralHint(weekday time.Weekday, bucket string, hasHoliday bool) string {
	switch {
	case hasHoliday:
		return "Today is a holiday; keep tone relaxed and avoid assuming normal business availability."
	case weekday == time.Saturday || weekday == time.Sunday:
		return "It's the weekend; avoid assuming normal business-hours availability."
	case bucket == "night":
		return "It's late; keep responses concise and avoid suggesting same-night follow-up."
	case bucket == "morning":
		return "It's the start of the day; a brief status or plan is often useful."
	default:
		return "It's a normal business period; respond as usual."
	}
}

// buildTimeAwarenessBlock renders the temporal context block composed into
// the effective system prompt (spec §4.6 step 2, §4.10 holiday keywords).
func buildTimeAwarenessBlock(now time.Time, tz string, todaysEvents []models.CalendarEvent, holidayKeywords []string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	if len(holidayKeywords) == 0 {
		holidayKeywords = defaultHolidayKeywords
	}

	bucket := timeOfDayBucket(local.Hour())
	weekend := local.Weekday() == time.Saturday || local.Weekday() == time.Sunday

	var holidays, regular []string
	for _, ev := range todaysEvents {
		if isHoliday(ev.Title, holidayKeywords) {
			holidays = append(holidays, ev.Title)
		} else {
			regular = append(regular, ev.Title)
		}
	}

	hint := behavioralHint(local.Weekday(), bucket, len(holidays) > 0)

	var b strings.Builder
	fmt.Fprintf(&b, "Current date/time: %s (%s), %s.\n", local.Format("2006-01-02 15:04"), tz, bucket)
	if weekend {
		b.WriteString("It is the weekend.\n")
	}
	if len(holidays) > 0 {
		fmt.Fprintf(&b, "Today's holidays: %s.\n", strings.Join(holidays, ", "))
	}
	if len(regular) > 0 {
		fmt.Fprintf(&b, "Today's scheduled events: %s.\n", strings.Join(regular, ", "))
	}
	b.WriteString(hint)
	return b.String()
}
