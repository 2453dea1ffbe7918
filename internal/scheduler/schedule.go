package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loopgateway/core/pkg/models"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NextRunAt computes a Trigger's next fire instant strictly after now, per
// spec §4.9. calendarEvent triggers have no self-computed next run: Calendar
// Sync schedules their one-shot fires directly, so this returns ok=false for
// that kind.
func NextRunAt(trigger models.Trigger, now time.Time) (time.Time, bool, error) {
	switch trigger.Kind {
	case models.TriggerDaily, models.TriggerWeekly, models.TriggerMonthly:
		return nextCronLike(trigger, now)
	case models.TriggerInterval:
		if trigger.Minutes <= 0 {
			return time.Time{}, false, fmt.Errorf("interval trigger missing minutes")
		}
		return now.Add(time.Duration(trigger.Minutes) * time.Minute), true, nil
	case models.TriggerOnce:
		if trigger.RunAt.IsZero() {
			return time.Time{}, false, fmt.Errorf("once trigger missing runAt")
		}
		if trigger.RunAt.After(now) {
			return trigger.RunAt, true, nil
		}
		// In the past: fire immediately, then the caller disables the job.
		return now, true, nil
	case models.TriggerCalendarEvent:
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown trigger kind %q", trigger.Kind)
	}
}

// nextCronLike translates daily/weekly/monthly triggers into a standard
// 5-field cron expression and delegates next-fire computation to
// robfig/cron, matching the teacher's cron-style scheduling approach.
func nextCronLike(trigger models.Trigger, now time.Time) (time.Time, bool, error) {
	hour, minute, err := parseHHMM(trigger.Time)
	if err != nil {
		return time.Time{}, false, err
	}

	dom := "*"
	dow := "*"
	switch trigger.Kind {
	case models.TriggerWeekly:
		if len(trigger.Days) > 0 {
			dow = joinInts(trigger.Days)
		}
	case models.TriggerDaily:
		if len(trigger.Days) > 0 {
			dow = joinInts(trigger.Days)
		}
	case models.TriggerMonthly:
		if trigger.DayOfMonth <= 0 {
			return time.Time{}, false, fmt.Errorf("monthly trigger missing dayOfMonth")
		}
		dom = strconv.Itoa(trigger.DayOfMonth)
	}

	expr := fmt.Sprintf("%d %d %s * %s", minute, hour, dom, dow)
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse trigger schedule: %w", err)
	}

	loc := now.Location()
	if trigger.Timezone != "" {
		tz, err := time.LoadLocation(trigger.Timezone)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid trigger timezone %q: %w", trigger.Timezone, err)
		}
		loc = tz
	}

	next := schedule.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next.UTC(), true, nil
}

func parseHHMM(value string) (hour, minute int, err error) {
	value = strings.TrimSpace(value)
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid trigger time %q, want HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid trigger hour in %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid trigger minute in %q", value)
	}
	return hour, minute, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
