// Command gatewayd is the gateway's process entrypoint: it loads
// configuration, wires every gateway subsystem together, and serves the
// spec §6 HTTP surface (webhook invoke/task/health, metrics) until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loopgateway/core/internal/a2a"
	"github.com/loopgateway/core/internal/agent"
	"github.com/loopgateway/core/internal/approval"
	"github.com/loopgateway/core/internal/calendarsync"
	"github.com/loopgateway/core/internal/config"
	"github.com/loopgateway/core/internal/identity"
	"github.com/loopgateway/core/internal/providers"
	"github.com/loopgateway/core/internal/scheduler"
	"github.com/loopgateway/core/internal/secretstore"
	"github.com/loopgateway/core/internal/sessions"
	"github.com/loopgateway/core/internal/tenant"
	"github.com/loopgateway/core/internal/tools/cron"
	"github.com/loopgateway/core/internal/tools/subagent"
	"github.com/loopgateway/core/internal/usage"
	"github.com/loopgateway/core/internal/webhook"
	"github.com/loopgateway/core/pkg/models"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("gatewayd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "http_port", cfg.Server.HTTPPort, "data_dir", cfg.DataDir)

	secrets, err := secretstore.New(cfg.Secrets.OperatorKey, cfg.Secrets.DevFallbackSeed)
	if err != nil {
		return fmt.Errorf("init secret store: %w", err)
	}

	ledger := usage.NewLedger()
	identityStore := identity.NewMemoryStore()
	tenantStore := tenant.NewMemoryStore()
	resolver := tenant.New(tenantStore, secrets, ledger, identityStore)
	loadTenant := agent.TenantByID(func(ctx context.Context, tenantID string) (*models.Tenant, error) {
		return tenantStore.GetTenant(ctx, tenantID)
	})

	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
		APIKey: cfg.LLM.Providers["anthropic"].APIKey,
	})
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	// webhookServer is assigned below, after the Runtime it bridges to
	// exists; the Approval Broker's event sink closure only needs the
	// pointer to be valid by the time an approval actually fires.
	var webhookServer *webhook.Server

	approvalBroker := approval.New(approval.NewMemoryStore(), nil, approval.WithEventSink(func(event string, pending models.PendingApproval) {
		if webhookServer == nil {
			return
		}
		if err := webhookServer.Dispatch(context.Background(), event, pending, nil); err != nil {
			logger.Warn("approval event dispatch failed", "event", event, "approval_id", pending.ID, "error", err)
		}
	}))

	sessionStore := sessions.NewMemoryStore()
	runtime := agent.NewRuntimeWithOptions(provider, sessionStore, agent.RuntimeOptions{
		Logger:          logger,
		BudgetChecker:   resolver,
		Timezone:        cfg.Timezone,
		HolidayKeywords: cfg.Calendar.HolidayKeywords,
		MaxIterations:   25,
		ApprovalBroker:  approvalBroker,
	})

	webhookServer = webhook.NewServer(webhook.NewMemoryStore(), agent.NewWebhookInvokeRunner(runtime, loadTenant))

	rolePrompts := map[models.AgentRole]string{
		models.RolePlanner:    "You are the planning sub-agent. Decompose the task and propose next steps.",
		models.RoleBuilder:    "You are the building sub-agent. Implement the requested change.",
		models.RoleReviewer:   "You are the reviewing sub-agent. Critique the proposed work for correctness.",
		models.RoleResearcher: "You are the research sub-agent. Gather and summarize relevant information.",
	}
	a2aFabric := a2a.NewFabric(a2a.NewMemoryStore())
	subAgentRunner := agent.NewSubAgentRunner(runtime, rolePrompts)
	spawner := a2a.NewSpawner(a2aFabric, []models.RoleSpec{
		{ID: models.RolePlanner, SystemPrompt: rolePrompts[models.RolePlanner], MaxConcurrent: 4},
		{ID: models.RoleBuilder, SystemPrompt: rolePrompts[models.RoleBuilder], MaxConcurrent: 4},
		{ID: models.RoleReviewer, SystemPrompt: rolePrompts[models.RoleReviewer], MaxConcurrent: 4},
		{ID: models.RoleResearcher, SystemPrompt: rolePrompts[models.RoleResearcher], MaxConcurrent: 4},
	}, subAgentRunner)
	tenantIDFromContext := func(ctx context.Context) string {
		session := agent.SessionFromContext(ctx)
		if session == nil {
			return ""
		}
		tenantID, _ := session.Metadata["tenant_id"].(string)
		return tenantID
	}
	runtime.RegisterTool(subagent.NewDelegateTool(spawner, tenantIDFromContext))

	schedulerStore := scheduler.NewMemoryStore()
	channelSender := scheduler.ChannelSenderFunc(func(ctx context.Context, channelID, text string) error {
		return fmt.Errorf("channel delivery for %q not configured in this deployment", channelID)
	})
	emailSender := scheduler.EmailSenderFunc(func(ctx context.Context, to, subject, body string) error {
		if cfg.SMTP.Host == "" {
			return fmt.Errorf("smtp is not configured")
		}
		logger.Info("email output route delivered (smtp send not wired in this build)", "to", to, "subject", subject)
		return nil
	})
	outputRouter := scheduler.NewOutputRouter(channelSender, http.DefaultClient, emailSender, cfg.DataDir)
	jobRunner := agent.NewScheduledJobRunner(runtime, loadTenant)
	sched := scheduler.New(schedulerStore, jobRunner, outputRouter,
		scheduler.WithLogger(logger),
		scheduler.WithTickInterval(cfg.Scheduler.PollInterval),
		scheduler.WithMaxConcurrency(cfg.Scheduler.MaxConcurrency),
		scheduler.WithEventDispatcher(webhookServer),
	)

	calendarSyncer := calendarsync.New(
		calendarsync.NewMemoryEventStore(),
		calendarsync.NewMemoryFireTracker(),
		schedulerJobSource{sched},
		sched,
	)
	calendarSyncer.Logger = logger.With("component", "calendarsync")
	if len(cfg.Calendar.HolidayKeywords) > 0 {
		calendarSyncer.HolidayKeywords = cfg.Calendar.HolidayKeywords
	}

	runtime.RegisterTool(cron.NewTool(sched))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info("scheduler started", "tick_interval", cfg.Scheduler.PollInterval)

	mux := http.NewServeMux()
	mux.Handle("/webhook/", webhookServer.Routes())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gatewayd listening", "addr", httpServer.Addr, "version", version, "commit", commit)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown error", "error", err)
	}
	calendarSyncer.Wait()

	logger.Info("gatewayd stopped gracefully")
	return nil
}

// schedulerJobSource adapts Scheduler.Jobs to calendarsync.JobSource.
type schedulerJobSource struct {
	sched *scheduler.Scheduler
}

func (s schedulerJobSource) Jobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	return s.sched.Jobs(ctx)
}
