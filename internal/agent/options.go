package agent

import (
	"log/slog"
	"time"

	"github.com/loopgateway/core/internal/approval"
	"github.com/loopgateway/core/internal/jobs"
	"github.com/loopgateway/core/pkg/models"
)

// RuntimeOptions configures tool execution and loop behavior.
type RuntimeOptions struct {
	// MaxIterations limits tool-use iterations per request.
	MaxIterations int

	// ToolParallelism caps concurrent tool execution.
	ToolParallelism int

	// ToolTimeout applies a default timeout to each tool call.
	ToolTimeout time.Duration

	// ToolMaxAttempts controls retry attempts for tool execution.
	ToolMaxAttempts int

	// ToolRetryBackoff waits between retry attempts.
	ToolRetryBackoff time.Duration

	// DisableToolEvents disables ToolEvent emission while processing.
	DisableToolEvents bool

	// MaxToolCalls limits total tool calls per request (0 = unlimited).
	MaxToolCalls int

	// RequireApproval lists tool names/patterns that require approval.
	RequireApproval []string

	// ApprovalChecker evaluates approval policy for tool calls when set.
	ApprovalChecker *ApprovalChecker

	// ApprovalBroker, when set, gates tools flagged by an ApprovalRule with
	// RequireApproval=true behind the spec's pending→approved|rejected|timeout
	// state machine, blocking the calling iteration until resolution
	// (spec §4.4). Takes precedence over ApprovalChecker's pending branch
	// for tools the broker has a rule for.
	ApprovalBroker *approval.Broker

	// ElevatedTools lists tool patterns eligible for elevated full bypass.
	ElevatedTools []string

	// AsyncTools lists tool names to execute asynchronously as jobs.
	AsyncTools []string

	// JobStore receives async tool job updates.
	JobStore jobs.Store

	// ToolResultGuard redacts tool results before persistence.
	ToolResultGuard ToolResultGuard

	// Logger receives runtime diagnostics.
	Logger *slog.Logger

	// Tenant is the effective tenant config for this run, as resolved by
	// the Tenant Resolver. Nil disables budget preflight, persona
	// composition and time-awareness (spec §4.6 steps 1-2).
	Tenant *models.Tenant

	// BudgetChecker is consulted before every LLM call when Tenant is set.
	BudgetChecker BudgetChecker

	// Timezone is the IANA zone the time-awareness block is rendered in.
	// Falls back to Tenant.Timezone, then UTC.
	Timezone string

	// TodaysEvents feeds the time-awareness block's holiday/event split
	// (spec §4.6, §4.10). Typically supplied by Calendar Sync.
	TodaysEvents []models.CalendarEvent

	// HolidayKeywords overrides the default holiday keyword list used by
	// the time-awareness block.
	HolidayKeywords []string
}

// DefaultRuntimeOptions returns the baseline runtime options.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		MaxIterations:     5,
		ToolParallelism:   4,
		ToolTimeout:       30 * time.Second,
		ToolMaxAttempts:   1,
		ToolRetryBackoff:  0,
		DisableToolEvents: false,
		MaxToolCalls:      0,
		Logger:            slog.Default(),
	}
}

func mergeRuntimeOptions(base RuntimeOptions, override RuntimeOptions) RuntimeOptions {
	merged := base
	if override.MaxIterations > 0 {
		merged.MaxIterations = override.MaxIterations
	}
	if override.ToolParallelism > 0 {
		merged.ToolParallelism = override.ToolParallelism
	}
	if override.ToolTimeout > 0 {
		merged.ToolTimeout = override.ToolTimeout
	}
	if override.ToolMaxAttempts > 0 {
		merged.ToolMaxAttempts = override.ToolMaxAttempts
	}
	if override.ToolRetryBackoff > 0 {
		merged.ToolRetryBackoff = override.ToolRetryBackoff
	}
	if override.DisableToolEvents {
		merged.DisableToolEvents = true
	}
	if override.MaxToolCalls > 0 {
		merged.MaxToolCalls = override.MaxToolCalls
	}
	if len(override.RequireApproval) > 0 {
		merged.RequireApproval = override.RequireApproval
	}
	if override.ApprovalChecker != nil {
		merged.ApprovalChecker = override.ApprovalChecker
	}
	if override.ApprovalBroker != nil {
		merged.ApprovalBroker = override.ApprovalBroker
	}
	if len(override.ElevatedTools) > 0 {
		merged.ElevatedTools = override.ElevatedTools
	}
	if len(override.AsyncTools) > 0 {
		merged.AsyncTools = override.AsyncTools
	}
	if override.JobStore != nil {
		merged.JobStore = override.JobStore
	}
	if override.ToolResultGuard.active() {
		merged.ToolResultGuard = override.ToolResultGuard
	}
	if override.Logger != nil {
		merged.Logger = override.Logger
	}
	if override.Tenant != nil {
		merged.Tenant = override.Tenant
	}
	if override.BudgetChecker != nil {
		merged.BudgetChecker = override.BudgetChecker
	}
	if override.Timezone != "" {
		merged.Timezone = override.Timezone
	}
	if len(override.TodaysEvents) > 0 {
		merged.TodaysEvents = override.TodaysEvents
	}
	if len(override.HolidayKeywords) > 0 {
		merged.HolidayKeywords = override.HolidayKeywords
	}
	return merged
}
