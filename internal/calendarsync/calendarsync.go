// Package calendarsync implements Calendar Sync (spec §4.10): it polls iCal
// feeds, upserts VEVENT rows, and schedules one-shot Scheduler fires for any
// calendarEvent-triggered job whose calendarId and titleFilter match.
package calendarsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/loopgateway/core/pkg/models"
)

// DefaultHolidayKeywords mirrors the gateway's configured default, used when
// a caller does not supply its own list.
var DefaultHolidayKeywords = []string{"holiday", "feiertag", "christmas", "ostern", "weihnachten"}

// lookAhead bounds how far into the future a recurring VEVENT is expanded
// when scanning for upcoming occurrences.
const lookAhead = 30 * 24 * time.Hour

// EventStore persists CalendarEvent rows, keyed by (CalendarID, UID).
type EventStore interface {
	// UpsertEvent stores event, returning changed=true if the row is new or
	// its fields differ from the previously stored version.
	UpsertEvent(ctx context.Context, event models.CalendarEvent) (changed bool, err error)
	ListEvents(ctx context.Context, calendarID string) ([]models.CalendarEvent, error)
}

// FireTracker records which (jobId, eventUid) pairs have already been
// scheduled, so a repeated sync never double-fires the same occurrence.
type FireTracker interface {
	// MarkFired returns true if this is the first time (jobID, eventUID,
	// occurrence) has been seen.
	MarkFired(jobID, eventUID string, occurrence time.Time) bool
}

// JobSource exposes the subset of the Scheduler that Calendar Sync needs to
// discover calendarEvent triggers.
type JobSource interface {
	Jobs(ctx context.Context) ([]*models.ScheduledJob, error)
}

// FireScheduler exposes the subset of the Scheduler that Calendar Sync needs
// to schedule a one-shot fire.
type FireScheduler interface {
	ScheduleCalendarFire(ctx context.Context, jobID string, runAt time.Time, eventTitle string) error
}

// Syncer polls CalendarSources and drives calendarEvent-triggered jobs.
type Syncer struct {
	Events     EventStore
	Fired      FireTracker
	Jobs       JobSource
	Scheduler  FireScheduler
	HTTPClient *http.Client
	Logger     *slog.Logger

	HolidayKeywords []string

	// Now returns the current time; overridable in tests.
	Now func() time.Time

	wg sync.WaitGroup
}

// New constructs a Syncer.
func New(events EventStore, fired FireTracker, jobs JobSource, sched FireScheduler) *Syncer {
	return &Syncer{
		Events:          events,
		Fired:           fired,
		Jobs:            jobs,
		Scheduler:       sched,
		HTTPClient:      http.DefaultClient,
		Logger:          slog.Default().With("component", "calendarsync"),
		HolidayKeywords: DefaultHolidayKeywords,
		Now:             time.Now,
	}
}

// StartPolling runs Sync for source on a ticker at its PollIntervalMinutes
// until ctx is cancelled.
func (s *Syncer) StartPolling(ctx context.Context, source models.CalendarSource) {
	interval := time.Duration(source.PollIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		if err := s.Sync(ctx, source); err != nil {
			s.Logger.Warn("calendar sync failed", "calendar_id", source.ID, "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sync(ctx, source); err != nil {
					s.Logger.Warn("calendar sync failed", "calendar_id", source.ID, "error", err)
				}
			}
		}
	}()
}

// Wait blocks until every StartPolling goroutine has returned.
func (s *Syncer) Wait() { s.wg.Wait() }

// Sync fetches and parses source's iCal feed, upserts its events, then
// schedules fires for any matching calendarEvent triggers.
func (s *Syncer) Sync(ctx context.Context, source models.CalendarSource) error {
	body, err := s.fetch(ctx, source.URL)
	if err != nil {
		return fmt.Errorf("fetch calendar %s: %w", source.ID, err)
	}
	defer body.Close()

	events, err := parseICal(source.ID, body)
	if err != nil {
		return fmt.Errorf("parse calendar %s: %w", source.ID, err)
	}

	for _, event := range events {
		if _, err := s.Events.UpsertEvent(ctx, event); err != nil {
			s.Logger.Warn("upsert calendar event failed", "calendar_id", source.ID, "uid", event.UID, "error", err)
		}
	}

	return s.scheduleMatchingTriggers(ctx, source.ID)
}

func (s *Syncer) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// scheduleMatchingTriggers scans every calendarEvent-triggered job bound to
// calendarID and, for each upcoming occurrence whose title matches the
// trigger's titleFilter, schedules a one-shot fire at startAt ±
// minutesBefore/minutesAfter. A (jobId, eventUid, occurrence) triple fires
// at most once, enforced by FireTracker.
func (s *Syncer) scheduleMatchingTriggers(ctx context.Context, calendarID string) error {
	jobs, err := s.Jobs.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	events, err := s.Events.ListEvents(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	nowFn := s.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()
	for _, job := range jobs {
		if job == nil || !job.Enabled || job.Trigger.Kind != models.TriggerCalendarEvent {
			continue
		}
		if job.Trigger.CalendarID != calendarID {
			continue
		}
		filter := strings.ToLower(strings.TrimSpace(job.Trigger.TitleFilter))

		for _, event := range events {
			for _, occurrence := range occurrences(event, now, now.Add(lookAhead)) {
				if filter != "" && !strings.Contains(strings.ToLower(event.Title), filter) {
					continue
				}
				fireAt := occurrence.
					Add(time.Duration(job.Trigger.MinutesAfter) * time.Minute).
					Add(-time.Duration(job.Trigger.MinutesBefore) * time.Minute)
				if fireAt.Before(now) {
					continue
				}
				if !s.Fired.MarkFired(job.ID, event.UID, occurrence) {
					continue
				}
				if err := s.Scheduler.ScheduleCalendarFire(ctx, job.ID, fireAt, event.Title); err != nil {
					s.Logger.Warn("schedule calendar fire failed", "job_id", job.ID, "event_uid", event.UID, "error", err)
				}
			}
		}
	}
	return nil
}

// occurrences returns event's start times that fall within [from, to),
// expanding its RRULE (if any) via rrule-go; a non-recurring event yields
// at most its single StartAt.
func occurrences(event models.CalendarEvent, from, to time.Time) []time.Time {
	if strings.TrimSpace(event.Recurrence) == "" {
		if event.StartAt.Before(from) || !event.StartAt.Before(to) {
			return nil
		}
		return []time.Time{event.StartAt}
	}

	option, err := rrule.StrToROption(strings.TrimPrefix(event.Recurrence, "RRULE:"))
	if err != nil {
		return []time.Time{event.StartAt}
	}
	option.Dtstart = event.StartAt
	rule, err := rrule.NewRRule(*option)
	if err != nil {
		return []time.Time{event.StartAt}
	}
	return rule.Between(from, to, true)
}

// IsHoliday reports whether title contains one of the configured holiday
// keywords, case-insensitively (spec §4.10).
func IsHoliday(title string, keywords []string) bool {
	if len(keywords) == 0 {
		keywords = DefaultHolidayKeywords
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// parseICal decodes an iCal feed into CalendarEvent rows scoped to
// calendarID.
func parseICal(calendarID string, r io.Reader) ([]models.CalendarEvent, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("read calendar body: %w", err)
	}

	dec := ical.NewDecoder(bytes.NewReader(buf.Bytes()))
	cal, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode ical: %w", err)
	}

	var out []models.CalendarEvent
	for _, comp := range cal.Events() {
		uid, err := comp.Props.Text(ical.PropUID)
		if err != nil || uid == "" {
			continue
		}
		summary, _ := comp.Props.Text(ical.PropSummary)
		start, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
		if err != nil {
			continue
		}
		end, _ := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC)

		var recurrence string
		if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
			recurrence = prop.Value
		}

		out = append(out, models.CalendarEvent{
			CalendarID: calendarID,
			UID:        uid,
			Title:      summary,
			StartAt:    start,
			EndAt:      end,
			Recurrence: recurrence,
		})
	}
	return out, nil
}

// memUID is an internal helper key for the in-memory implementations below.
func memUID(calendarID, uid string) string { return calendarID + "\x00" + uid }

// MemoryEventStore keeps CalendarEvent rows in memory.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]models.CalendarEvent
}

// NewMemoryEventStore creates an in-memory EventStore.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]models.CalendarEvent)}
}

func (s *MemoryEventStore) UpsertEvent(ctx context.Context, event models.CalendarEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memUID(event.CalendarID, event.UID)
	existing, ok := s.events[key]
	if ok && existing == event {
		return false, nil
	}
	s.events[key] = event
	return true, nil
}

func (s *MemoryEventStore) ListEvents(ctx context.Context, calendarID string) ([]models.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CalendarEvent
	for _, event := range s.events {
		if event.CalendarID == calendarID {
			out = append(out, event)
		}
	}
	return out, nil
}

// MemoryFireTracker tracks fired (jobId, eventUid, occurrence) triples in
// memory.
type MemoryFireTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryFireTracker creates an in-memory FireTracker.
func NewMemoryFireTracker() *MemoryFireTracker {
	return &MemoryFireTracker{seen: make(map[string]struct{})}
}

func (t *MemoryFireTracker) MarkFired(jobID, eventUID string, occurrence time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := jobID + "\x00" + eventUID + "\x00" + strconv.FormatInt(occurrence.Unix(), 10)
	if _, seen := t.seen[key]; seen {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}
