package usage

import (
	"sync"
	"time"
)

// Window identifies the accounting window a budget check is evaluated over.
type Window string

const (
	WindowToday       Window = "today"
	WindowMonthToDate Window = "month_to_date"
)

// BudgetExceededKind distinguishes which configured budget was exceeded.
type BudgetExceededKind string

const (
	BudgetExceededDaily   BudgetExceededKind = "daily"
	BudgetExceededMonthly BudgetExceededKind = "monthly"
)

// UsageRecord is the append-only basis for budget enforcement (data model §3).
type UsageRecord struct {
	TenantID     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	DurationMs   int64
	Isolated     bool
	CreatedAt    time.Time
}

// TenantBudget carries the limits a Ledger enforces for one tenant. Zero
// means unlimited, matching the data model's "budget values >= 0 (0 =
// unlimited)" invariant.
type TenantBudget struct {
	TenantID          string
	DailyTokens       int64
	MonthlyTokens     int64
	AlertThresholdPct int
	Timezone          string
}

// BudgetResult is returned by CheckBudget.
type BudgetResult struct {
	OK       bool
	Exceeded BudgetExceededKind
}

// Ledger is the Budget & Usage Ledger: it records token usage and answers
// budget-gate questions the Agent Loop Engine consults before every LLM call.
type Ledger struct {
	mu      sync.RWMutex
	records []UsageRecord

	// alerted tracks which (tenantId, window-key) pairs have already fired
	// their one-shot alert-threshold notification, so crossing the
	// threshold again within the same window does not re-notify.
	alerted map[string]bool

	onAlert func(tenantID string, window Window, pct int)
	now     func() time.Time
}

// LedgerOption configures a Ledger at construction time.
type LedgerOption func(*Ledger)

func WithAlertHandler(fn func(tenantID string, window Window, pct int)) LedgerOption {
	return func(l *Ledger) { l.onAlert = fn }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		alerted: make(map[string]bool),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordUsage appends a UsageRecord. Per the resource model, ledger writes
// are best-effort: callers must not abort a run on an error from this call
// in isolation, but RecordUsage itself cannot fail (in-memory append).
func (l *Ledger) RecordUsage(rec UsageRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// SumTokensInWindow sums inputTokens+outputTokens for a tenant over the
// given window, evaluated in the supplied IANA timezone.
func (l *Ledger) SumTokensInWindow(tenantID string, window Window, tz string) (int64, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	start := windowStart(l.now().In(loc), window)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, r := range l.records {
		if r.TenantID != tenantID {
			continue
		}
		if r.CreatedAt.In(loc).Before(start) {
			continue
		}
		total += r.InputTokens + r.OutputTokens
	}
	return total, nil
}

func windowStart(now time.Time, window Window) time.Time {
	switch window {
	case WindowMonthToDate:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default: // WindowToday
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
}

// CheckBudget evaluates both the daily and monthly limits for a tenant.
// Budget preflight happens before every LLM call (spec §4.2); exceeding
// either window reports the exceeded kind.
func (l *Ledger) CheckBudget(budget TenantBudget) BudgetResult {
	tz := budget.Timezone
	if tz == "" {
		tz = "UTC"
	}

	if budget.DailyTokens > 0 {
		used, _ := l.SumTokensInWindow(budget.TenantID, WindowToday, tz)
		l.maybeAlert(budget, WindowToday, used, budget.DailyTokens)
		if used >= budget.DailyTokens {
			return BudgetResult{OK: false, Exceeded: BudgetExceededDaily}
		}
	}
	if budget.MonthlyTokens > 0 {
		used, _ := l.SumTokensInWindow(budget.TenantID, WindowMonthToDate, tz)
		l.maybeAlert(budget, WindowMonthToDate, used, budget.MonthlyTokens)
		if used >= budget.MonthlyTokens {
			return BudgetResult{OK: false, Exceeded: BudgetExceededMonthly}
		}
	}
	return BudgetResult{OK: true}
}

func (l *Ledger) maybeAlert(budget TenantBudget, window Window, used, limit int64) {
	if l.onAlert == nil || budget.AlertThresholdPct <= 0 || limit <= 0 {
		return
	}
	pct := int(float64(used) / float64(limit) * 100)
	if pct < budget.AlertThresholdPct {
		return
	}
	key := budget.TenantID + ":" + string(window) + ":" + windowKey(l.now(), window)
	l.mu.Lock()
	already := l.alerted[key]
	if !already {
		l.alerted[key] = true
	}
	l.mu.Unlock()
	if !already {
		l.onAlert(budget.TenantID, window, pct)
	}
}

func windowKey(now time.Time, window Window) string {
	if window == WindowMonthToDate {
		return now.Format("2006-01")
	}
	return now.Format("2006-01-02")
}
