// Package telemetry carries request-scoped correlation IDs (run, session,
// message, agent, tool call) through context.Context so that structured log
// lines and trace spans emitted across package boundaries share a common key.
package telemetry

import "context"

// ContextKey namespaces values stored on a context.Context by this package.
type ContextKey string

const (
	RunIDKey      ContextKey = "run_id"
	SessionIDKey  ContextKey = "session_id"
	MessageIDKey  ContextKey = "message_id"
	AgentIDKey    ContextKey = "agent_id"
	ToolCallIDKey ContextKey = "tool_call_id"
	TenantIDKey   ContextKey = "tenant_id"
)

func AddRunID(ctx context.Context, v string) context.Context     { return context.WithValue(ctx, RunIDKey, v) }
func GetRunID(ctx context.Context) string                        { return getString(ctx, RunIDKey) }
func AddSessionID(ctx context.Context, v string) context.Context { return context.WithValue(ctx, SessionIDKey, v) }
func GetSessionID(ctx context.Context) string                    { return getString(ctx, SessionIDKey) }
func AddMessageID(ctx context.Context, v string) context.Context { return context.WithValue(ctx, MessageIDKey, v) }
func GetMessageID(ctx context.Context) string                    { return getString(ctx, MessageIDKey) }
func AddAgentID(ctx context.Context, v string) context.Context   { return context.WithValue(ctx, AgentIDKey, v) }
func GetAgentID(ctx context.Context) string                      { return getString(ctx, AgentIDKey) }
func AddToolCallID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, v)
}
func GetToolCallID(ctx context.Context) string { return getString(ctx, ToolCallIDKey) }
func AddTenantID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, TenantIDKey, v)
}
func GetTenantID(ctx context.Context) string { return getString(ctx, TenantIDKey) }

func getString(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
