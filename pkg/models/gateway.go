package models

import "time"

// EmojiPolicy controls how strongly a tenant's persona is instructed to use
// emoji in generated text.
type EmojiPolicy string

const (
	EmojiNone     EmojiPolicy = "none"
	EmojiMinimal  EmojiPolicy = "minimal"
	EmojiModerate EmojiPolicy = "moderate"
	EmojiHeavy    EmojiPolicy = "heavy"
)

// Persona composes the language and tone instructions folded into a
// tenant's effective system prompt.
type Persona struct {
	// Language is "auto" (detect from the user's message) or a fixed
	// language code such as "en"/"de".
	Language string `json:"language"`
	Emoji    EmojiPolicy `json:"emoji"`
}

// HotSwapConfig is an opaque-to-the-resolver bundle of provider override
// fields threaded unmodified into the Provider Adapter construction step.
type HotSwapConfig struct {
	Provider       string `json:"provider,omitempty"`
	BaseURL        string `json:"base_url,omitempty"`
	Model          string `json:"model,omitempty"`
	APIKeyOverride string `json:"-"`
}

// FallbackChainConfig names the ordered fallback providers a tenant's
// Agent Loop calls should try after its primary provider.
type FallbackChainConfig struct {
	Providers  []string `json:"providers,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

// Tenant ("agent group") is an isolated configuration bundle: prompt,
// credentials, budgets, allow-listed tools.
type Tenant struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	SystemPrompt           string    `json:"system_prompt"`
	EncryptedAPIKey        []byte    `json:"encrypted_api_key,omitempty"`
	Model                  string    `json:"model"`
	MaxTokens              int       `json:"max_tokens"`
	SkillAllowList         []string  `json:"skill_allow_list,omitempty"`
	Roles                  []string  `json:"roles,omitempty"`
	Persona                *Persona  `json:"persona,omitempty"`
	ContainerIsolationFlag bool      `json:"container_isolation_flag"`
	MaxConcurrentSubAgents int       `json:"max_concurrent_sub_agents"`
	BudgetDailyTokens      int64     `json:"budget_daily_tokens"`
	BudgetMonthlyTokens    int64     `json:"budget_monthly_tokens"`
	BudgetAlertPct         int       `json:"budget_alert_pct"`
	Timezone               string    `json:"timezone"`
	HotSwapCfg             *HotSwapConfig       `json:"hot_swap_cfg,omitempty"`
	FallbackChainCfg       *FallbackChainConfig `json:"fallback_chain_cfg,omitempty"`
	RepoBinding            string               `json:"repo_binding,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// ChannelBinding maps an external channel id to a tenant. Absence of a row
// for a channelId implies the global default tenant.
type ChannelBinding struct {
	ChannelID string `json:"channel_id"`
	TenantID  string `json:"tenant_id"`
}

// Conversation is uniquely identified by (ChannelID, ExternalID) and holds
// an append-only ordered sequence of Messages.
type Conversation struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channel_id"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GatewayMessageRole constrains Message.Role to the three roles the gateway
// core persists (distinct from the broader Role used by pkg/models.Message
// for multi-channel formatting).
type GatewayMessageRole string

const (
	GatewayRoleUser       GatewayMessageRole = "user"
	GatewayRoleAssistant  GatewayMessageRole = "assistant"
	GatewayRoleToolResult GatewayMessageRole = "tool_result"
)

// GatewayMessage is one entry in a Conversation's history. Order is the
// natural key; mutation is forbidden once persisted.
type GatewayMessage struct {
	ConversationID string             `json:"conversation_id"`
	Role           GatewayMessageRole `json:"role"`
	Content        string             `json:"content"`
	ToolCalls      []ToolCall         `json:"tool_calls,omitempty"`
	ToolUseID      string             `json:"tool_use_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// AgentRole is the fixed catalog of sub-agent archetypes.
type AgentRole string

const (
	RolePlanner    AgentRole = "planner"
	RoleBuilder    AgentRole = "builder"
	RoleReviewer   AgentRole = "reviewer"
	RoleResearcher AgentRole = "researcher"
	RolePrimary    AgentRole = "primary"
)

// AgentIdentity is a runtime-only identity, bounded by a single sub-agent
// invocation's lifetime.
type AgentIdentity struct {
	ID           string    `json:"id"`
	Role         AgentRole `json:"role"`
	TenantID     string    `json:"tenant_id"`
	Capabilities []string  `json:"capabilities,omitempty"`
}

// A2AMessageKind classifies an A2AMessage.
type A2AMessageKind string

const (
	A2AKindRequest  A2AMessageKind = "request"
	A2AKindResponse A2AMessageKind = "response"
	A2AKindEvent    A2AMessageKind = "event"
)

// A2AMessageStatus tracks an A2AMessage's delivery lifecycle.
type A2AMessageStatus string

const (
	A2AStatusPending   A2AMessageStatus = "pending"
	A2AStatusDelivered A2AMessageStatus = "delivered"
	A2AStatusProcessed A2AMessageStatus = "processed"
	A2AStatusFailed    A2AMessageStatus = "failed"
	A2AStatusExpired   A2AMessageStatus = "expired"
)

// BroadcastRecipient is the sentinel "to" value meaning "every registered
// agent except the sender".
const BroadcastRecipient = "*"

// A2AMessage is persisted for audit on every send.
type A2AMessage struct {
	ID             string           `json:"id"`
	Kind           A2AMessageKind   `json:"kind"`
	From           AgentIdentity    `json:"from"`
	To             string           `json:"to"` // AgentId or BroadcastRecipient
	ConversationID string           `json:"conversation_id,omitempty"`
	Action         string           `json:"action,omitempty"`
	Content        string           `json:"content"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	ReplyTo        string           `json:"reply_to,omitempty"`
	TTLMs          int64            `json:"ttl_ms,omitempty"`
	Status         A2AMessageStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
}

// RoleSpec is one entry in the fixed RoleSpec catalog.
type RoleSpec struct {
	ID            AgentRole `json:"id"`
	SystemPrompt  string    `json:"system_prompt"`
	AllowedTools  []string  `json:"allowed_tools,omitempty"`
	MaxConcurrent int       `json:"max_concurrent"`
}

// ToolRiskClass classifies a Tool's blast radius for approval routing.
type ToolRiskClass string

const (
	RiskLow      ToolRiskClass = "low"
	RiskMedium   ToolRiskClass = "medium"
	RiskHigh     ToolRiskClass = "high"
	RiskCritical ToolRiskClass = "critical"
)

// ToolDescriptor is the data-model shape of a Tool Registry entry (the
// executable behavior lives on the agent.Tool interface; this struct is the
// persisted/administrable metadata about one).
type ToolDescriptor struct {
	Name               string          `json:"name"`
	JSONInputSchema    []byte          `json:"json_input_schema"`
	RiskClass          ToolRiskClass   `json:"risk_class"`
	ContainerCompatible bool           `json:"container_compatible"`
}

// ApprovalOnTimeout governs what the Approval Broker does when a
// PendingApproval's timer expires without an operator decision.
type ApprovalOnTimeout string

const (
	OnTimeoutApprove ApprovalOnTimeout = "approve"
	OnTimeoutReject  ApprovalOnTimeout = "reject"
)

// ApprovalRule configures automatic/human approval routing for one tool,
// optionally scoped to a single tenant.
type ApprovalRule struct {
	TenantID        string            `json:"tenant_id,omitempty"`
	ToolName        string            `json:"tool_name"`
	AutoApprove     bool              `json:"auto_approve"`
	RequireApproval bool              `json:"require_approval"`
	TimeoutSec      int               `json:"timeout_sec"`
	OnTimeout       ApprovalOnTimeout `json:"on_timeout"`
	Enabled         bool              `json:"enabled"`
}

// ApprovalStatus tracks a PendingApproval's state machine.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimeout  ApprovalStatus = "timeout"
)

// PendingApproval is a single human-in-the-loop gate instance.
type PendingApproval struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	AgentID   string         `json:"agent_id"`
	Tool      string         `json:"tool"`
	Input     []byte         `json:"input"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Status    ApprovalStatus `json:"status"`
}

// TriggerKind is the fixed catalog of ScheduledJob firing conditions.
type TriggerKind string

const (
	TriggerDaily         TriggerKind = "daily"
	TriggerWeekly        TriggerKind = "weekly"
	TriggerMonthly       TriggerKind = "monthly"
	TriggerInterval      TriggerKind = "interval"
	TriggerOnce          TriggerKind = "once"
	TriggerCalendarEvent TriggerKind = "calendarEvent"
)

// Trigger is the tagged-union firing condition of a ScheduledJob (spec §3).
// Only the fields relevant to Kind are populated; the rest are zero.
type Trigger struct {
	Kind TriggerKind `json:"kind"`

	// daily/weekly/monthly
	Time       string `json:"time,omitempty"` // "HH:MM"
	Days       []int  `json:"days,omitempty"` // 0=Sunday..6=Saturday, weekly
	DayOfMonth int    `json:"day_of_month,omitempty"`
	Timezone   string `json:"timezone,omitempty"`

	// interval
	Minutes int `json:"minutes,omitempty"`

	// once
	RunAt time.Time `json:"run_at,omitempty"`

	// calendarEvent
	CalendarID    string `json:"calendar_id,omitempty"`
	MinutesBefore int    `json:"minutes_before,omitempty"`
	MinutesAfter  int    `json:"minutes_after,omitempty"`
	TitleFilter   string `json:"title_filter,omitempty"`
}

// OutputKind is the fixed catalog of ScheduledJob result destinations.
type OutputKind string

const (
	OutputChannel OutputKind = "channel"
	OutputWebhook OutputKind = "webhook"
	OutputFile    OutputKind = "file"
	OutputEmail   OutputKind = "email"
)

// Output is the tagged-union destination for a ScheduledJob's result.
type Output struct {
	Kind       OutputKind `json:"kind"`
	ChannelID  string     `json:"channel_id,omitempty"`
	WebhookURL string     `json:"webhook_url,omitempty"`
	FilePath   string     `json:"file_path,omitempty"`
	EmailTo    string     `json:"email_to,omitempty"`
}

// JobStatus tracks a ScheduledJob's last run outcome.
type JobStatus string

const (
	JobStatusNone    JobStatus = ""
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// ScheduledJob is a durable, recurring or one-shot unit of Agent Loop work
// (spec §3, §4.9).
type ScheduledJob struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TenantID   string    `json:"tenant_id"`
	Prompt     string    `json:"prompt"`
	Trigger    Trigger   `json:"trigger"`
	Action     string    `json:"action,omitempty"`
	Output     Output    `json:"output"`
	Enabled    bool      `json:"enabled"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	LastStatus JobStatus `json:"last_status,omitempty"`
	NextRunAt  time.Time `json:"next_run_at,omitempty"`
	RunCount   int64     `json:"run_count"`
}

// JobRunStatus tracks a single JobRun's lifecycle. success/error are
// terminal and immutable once reached.
type JobRunStatus string

const (
	JobRunRunning JobRunStatus = "running"
	JobRunSuccess JobRunStatus = "success"
	JobRunError   JobRunStatus = "error"
)

// JobRun is one execution record of a ScheduledJob.
type JobRun struct {
	ID           string       `json:"id"`
	JobID        string       `json:"job_id"`
	Status       JobRunStatus `json:"status"`
	Output       string       `json:"output,omitempty"`
	Error        string       `json:"error,omitempty"`
	InputTokens  int64        `json:"input_tokens"`
	OutputTokens int64        `json:"output_tokens"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// CalendarSource is a polled iCal feed.
type CalendarSource struct {
	ID                 string    `json:"id"`
	URL                string    `json:"url"`
	PollIntervalMinutes int      `json:"poll_interval_minutes"`
	LastSyncedAt        time.Time `json:"last_synced_at,omitempty"`
}

// CalendarEvent is one VEVENT, unique on (CalendarID, UID).
type CalendarEvent struct {
	CalendarID string    `json:"calendar_id"`
	UID        string    `json:"uid"`
	Title      string    `json:"title"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at,omitempty"`
	Recurrence string    `json:"recurrence,omitempty"`
}

// WebhookRegistration is an inbound/outbound webhook binding (spec §3,
// §4.11). Token must carry ≥128 bits of entropy.
type WebhookRegistration struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Token             string    `json:"token"`
	SubscribedEvents  []string  `json:"subscribed_events"` // set; "*" allowed
	TargetURL         string    `json:"target_url,omitempty"`
	TenantID          string    `json:"tenant_id,omitempty"`
	Enabled           bool      `json:"enabled"`
	TriggerCount      int64     `json:"trigger_count"`
	LastTriggeredAt   time.Time `json:"last_triggered_at,omitempty"`
}
