package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loopgateway/core/pkg/models"
)

// EventDispatcher emits a Webhook Fabric known event (spec §4.11); the
// scheduler only ever emits "scheduler:job:complete".
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventName string, payload any, tenantID *string) error
}

// Scheduler maintains ScheduledJob records, fires them at their computed
// nextRunAt, and routes results through an OutputRouter (spec §4.9).
type Scheduler struct {
	store   Store
	runner  AgentRunner
	router  *OutputRouter
	events  EventDispatcher
	logger  *slog.Logger
	now     func() time.Time

	tickInterval   time.Duration
	maxConcurrency int

	mu                sync.Mutex
	jobLocks          map[string]*sync.Mutex
	pendingEventTitle map[string]string
	started           bool
	wg                sync.WaitGroup
	sem               chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler polls for due jobs.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithMaxConcurrency bounds how many distinct jobs may run at once.
func WithMaxConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithEventDispatcher wires the Webhook Fabric's outbound dispatcher so
// every completed run emits "scheduler:job:complete" (spec §4.11).
func WithEventDispatcher(dispatcher EventDispatcher) Option {
	return func(s *Scheduler) {
		s.events = dispatcher
	}
}

// New constructs a Scheduler.
func New(store Store, runner AgentRunner, router *OutputRouter, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:             store,
		runner:            runner,
		router:            router,
		logger:            slog.Default().With("component", "scheduler"),
		now:               time.Now,
		tickInterval:      time.Second,
		maxConcurrency:    16,
		jobLocks:          make(map[string]*sync.Mutex),
		pendingEventTitle: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = make(chan struct{}, s.maxConcurrency)
	return s
}

// Start begins the polling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for in-flight job runs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterJob creates a new ScheduledJob and computes its first nextRunAt.
func (s *Scheduler) RegisterJob(ctx context.Context, job *models.ScheduledJob) (*models.ScheduledJob, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	next, ok, err := NextRunAt(job.Trigger, s.now())
	if err != nil {
		job.Enabled = false
		job.LastStatus = models.JobStatusError
		if createErr := s.store.CreateJob(ctx, job); createErr != nil {
			return nil, createErr
		}
		return job, fmt.Errorf("schedule config error: %w", err)
	}
	if ok {
		job.NextRunAt = next
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// UnregisterJob removes a job.
func (s *Scheduler) UnregisterJob(ctx context.Context, id string) error {
	return s.store.DeleteJob(ctx, id)
}

// Jobs lists configured jobs.
func (s *Scheduler) Jobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	return s.store.ListJobs(ctx)
}

// Runs lists job run history.
func (s *Scheduler) Runs(ctx context.Context, jobID string, limit, offset int) ([]*models.JobRun, error) {
	return s.store.ListRuns(ctx, jobID, limit, offset)
}

// RunJob fires a job immediately, regardless of its nextRunAt.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	return s.fire(ctx, job)
}

// ScheduleCalendarFire schedules a one-shot fire of a calendarEvent-triggered
// job at runAt, carrying eventTitle through for {{event_title}} prompt
// substitution (spec §4.9, §4.10).
func (s *Scheduler) ScheduleCalendarFire(ctx context.Context, jobID string, runAt time.Time, eventTitle string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	job.NextRunAt = runAt
	s.mu.Lock()
	s.pendingEventTitle[jobID] = eventTitle
	s.mu.Unlock()
	return s.store.UpdateJob(ctx, job)
}

// runDue scans all jobs and fires those whose nextRunAt has elapsed.
func (s *Scheduler) runDue(ctx context.Context) {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		s.logger.Warn("list jobs failed", "error", err)
		return
	}
	now := s.now()
	for _, job := range jobs {
		if job == nil || !job.Enabled {
			continue
		}
		if job.NextRunAt.IsZero() || now.Before(job.NextRunAt) {
			continue
		}
		job := job
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			if err := s.fire(ctx, job); err != nil {
				s.logger.Warn("scheduled job failed", "job_id", job.ID, "error", err)
			}
		}()
	}
}

// fire serializes execution per jobId, executes the job, routes its
// output, and records the JobRun plus updated job bookkeeping.
func (s *Scheduler) fire(ctx context.Context, job *models.ScheduledJob) error {
	lock := s.lockFor(job.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check enabled state: it may have been disabled between scan and lock.
	current, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if current == nil || !current.Enabled {
		return nil
	}
	job = current

	now := s.now()
	run := &models.JobRun{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		Status:    models.JobRunRunning,
		StartedAt: now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.logger.Warn("create job run failed", "job_id", job.ID, "error", err)
	}

	s.mu.Lock()
	eventTitle := s.pendingEventTitle[job.ID]
	delete(s.pendingEventTitle, job.ID)
	s.mu.Unlock()

	prompt := renderPrompt(job.Prompt, now, eventTitle)
	conversationKey := "job-" + job.ID

	result, inTok, outTok, runErr := s.runner.Run(ctx, job.TenantID, conversationKey, prompt)

	completed := s.now()
	run.CompletedAt = &completed
	run.InputTokens = inTok
	run.OutputTokens = outTok
	if runErr != nil {
		run.Status = models.JobRunError
		run.Error = runErr.Error()
	} else {
		run.Status = models.JobRunSuccess
		run.Output = result
		if s.router != nil {
			if routeErr := s.router.Route(ctx, job, result); routeErr != nil {
				s.logger.Warn("output route failed", "job_id", job.ID, "error", routeErr)
			}
		}
	}
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.logger.Warn("update job run failed", "job_id", job.ID, "error", err)
	}

	job.LastRunAt = now
	job.RunCount++
	if runErr != nil {
		job.LastStatus = models.JobStatusError
	} else {
		job.LastStatus = models.JobStatusSuccess
	}

	next, ok, nextErr := NextRunAt(job.Trigger, now)
	switch {
	case nextErr != nil:
		job.Enabled = false
		job.NextRunAt = time.Time{}
	case job.Trigger.Kind == models.TriggerOnce:
		// Once fires exactly one time, then disables.
		job.Enabled = false
		job.NextRunAt = time.Time{}
	case job.Trigger.Kind == models.TriggerCalendarEvent:
		// Next fire is scheduled externally by Calendar Sync.
		job.NextRunAt = time.Time{}
	case ok:
		job.NextRunAt = next
	default:
		job.NextRunAt = time.Time{}
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		s.logger.Warn("update job failed", "job_id", job.ID, "error", err)
	}

	if s.events != nil {
		var tenantID *string
		if job.TenantID != "" {
			tenantID = &job.TenantID
		}
		payload := map[string]any{"jobId": job.ID, "name": job.Name, "status": job.LastStatus}
		if dispatchErr := s.events.Dispatch(ctx, "scheduler:job:complete", payload, tenantID); dispatchErr != nil {
			s.logger.Warn("scheduler event dispatch failed", "job_id", job.ID, "error", dispatchErr)
		}
	}

	return runErr
}

func (s *Scheduler) lockFor(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.jobLocks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		s.jobLocks[jobID] = lock
	}
	return lock
}

// renderPrompt substitutes the fixed {{date}}/{{time}}/{{datetime}}/
// {{event_title}} tokens (spec §4.9).
func renderPrompt(prompt string, now time.Time, eventTitle string) string {
	replacer := strings.NewReplacer(
		"{{date}}", now.Format("2006-01-02"),
		"{{time}}", now.Format("15:04"),
		"{{datetime}}", now.Format(time.RFC3339),
		"{{event_title}}", eventTitle,
	)
	return replacer.Replace(prompt)
}
