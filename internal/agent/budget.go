package agent

import (
	"fmt"

	"github.com/loopgateway/core/internal/usage"
	"github.com/loopgateway/core/pkg/models"
)

// BudgetChecker is the Budget & Usage Ledger surface the Agent Loop Engine
// consults before every LLM call (spec §4.2, §4.6 step 1).
type BudgetChecker interface {
	CheckBudget(t *models.Tenant) usage.BudgetResult
}

// KindBudgetExceeded is the error-kind surface value a preflight failure
// reports (spec §7).
const KindBudgetExceeded = "BudgetExceeded"

// BudgetExceededError is returned by budgetPreflight when a tenant's
// daily or monthly token budget is already exhausted. Its Error() text is
// deliberately user-facing: the loop returns it as the run's response
// instead of calling the provider.
type BudgetExceededError struct {
	TenantID string
	Exceeded usage.BudgetExceededKind
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: %s token budget for tenant %s is exhausted", e.Exceeded, e.TenantID)
}

// budgetPreflight checks the tenant's budget before any LLM call is made.
// A nil checker or tenant disables the check (budget enforcement is opt-in
// per deployment, matching the teacher's pattern of nil-means-disabled
// collaborators elsewhere in Runtime).
func budgetPreflight(checker BudgetChecker, tenant *models.Tenant) error {
	if checker == nil || tenant == nil {
		return nil
	}
	result := checker.CheckBudget(tenant)
	if result.OK {
		return nil
	}
	return &BudgetExceededError{TenantID: tenant.ID, Exceeded: result.Exceeded}
}
