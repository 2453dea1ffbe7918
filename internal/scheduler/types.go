// Package scheduler implements the gateway's Scheduler: it maintains
// ScheduledJob records, computes nextRunAt per trigger kind, fires jobs on
// time, routes their output, and records JobRun rows (spec §4.9).
package scheduler

import (
	"context"

	"github.com/loopgateway/core/pkg/models"
)

// Store persists ScheduledJob and JobRun rows.
type Store interface {
	CreateJob(ctx context.Context, job *models.ScheduledJob) error
	UpdateJob(ctx context.Context, job *models.ScheduledJob) error
	GetJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	ListJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	DeleteJob(ctx context.Context, id string) error

	CreateRun(ctx context.Context, run *models.JobRun) error
	UpdateRun(ctx context.Context, run *models.JobRun) error
	ListRuns(ctx context.Context, jobID string, limit, offset int) ([]*models.JobRun, error)
}

// AgentRunner invokes the Agent Loop Engine on behalf of a fired job and
// reports the token usage the run consumed.
type AgentRunner interface {
	Run(ctx context.Context, tenantID, conversationKey, prompt string) (result string, inputTokens, outputTokens int64, err error)
}

// AgentRunnerFunc adapts a function to an AgentRunner.
type AgentRunnerFunc func(ctx context.Context, tenantID, conversationKey, prompt string) (string, int64, int64, error)

// Run invokes the underlying function.
func (f AgentRunnerFunc) Run(ctx context.Context, tenantID, conversationKey, prompt string) (string, int64, int64, error) {
	return f(ctx, tenantID, conversationKey, prompt)
}

// ChannelSender delivers a scheduled job's result to a channel output route.
type ChannelSender interface {
	Send(ctx context.Context, channelID, text string) error
}

// ChannelSenderFunc adapts a function to a ChannelSender.
type ChannelSenderFunc func(ctx context.Context, channelID, text string) error

// Send invokes the underlying function.
func (f ChannelSenderFunc) Send(ctx context.Context, channelID, text string) error {
	return f(ctx, channelID, text)
}

// EmailSender delivers a scheduled job's result to an email output route.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailSenderFunc adapts a function to an EmailSender.
type EmailSenderFunc func(ctx context.Context, to, subject, body string) error

// Send invokes the underlying function.
func (f EmailSenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}
