package llm

import (
	"sync/atomic"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

// Budget meters LLM calls for a single analysis run. All call sites
// share one Budget so the run's total spend is bounded regardless of
// which stage consumes it.
//
// A Budget is safe for concurrent use. A nil or zero-limit Budget
// allows nothing; use Unlimited for no cap.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget creates a Budget allowing up to limit calls.
func NewBudget(limit int) *Budget {
	return &Budget{limit: int64(limit)}
}

// Unlimited returns a Budget with no cap.
func Unlimited() *Budget {
	return &Budget{limit: -1}
}

// Spend consumes one call from the budget. It returns a
// BudgetExhaustedError naming the stage when the budget is spent.
// Callers treat that error as a signal to fall back to deterministic
// behavior, not as a run failure.
func (b *Budget) Spend(stage string) error {
	if b == nil || b.limit == 0 {
		return domain.NewBudgetExhaustedError(stage, 0)
	}
	if b.limit < 0 {
		b.used.Add(1)
		return nil
	}
	if b.used.Add(1) > b.limit {
		b.used.Add(-1)
		return domain.NewBudgetExhaustedError(stage, int(b.limit))
	}
	return nil
}

// Spent returns the number of calls consumed so far.
func (b *Budget) Spent() int {
	if b == nil {
		return 0
	}
	return int(b.used.Load())
}

// Exhausted reports whether no further calls are allowed.
func (b *Budget) Exhausted() bool {
	if b == nil || b.limit == 0 {
		return true
	}
	if b.limit < 0 {
		return false
	}
	return b.used.Load() >= b.limit
}
