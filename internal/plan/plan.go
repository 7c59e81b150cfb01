// Package plan defines the Execution Plan snapshot produced by the budget
// planner (internal/planner) and consumed by the execution engine.
package plan

import "github.com/open330/oac/internal/workitem"

// DeferReason explains why an item was left out of the selected set.
type DeferReason string

const (
	ReasonBudgetExceeded DeferReason = "budget-exceeded"
	ReasonLowConfidence  DeferReason = "low-confidence"
	ReasonTooComplex     DeferReason = "too-complex"
)

// Unlimited is the sentinel representing an unbounded token budget.
const Unlimited int64 = 1<<62 - 1

// Selected is one item chosen to run, with its running cumulative budget
// usage at the point it was selected.
type Selected struct {
	Item            workitem.Item
	Estimate        workitem.Estimate
	CumulativeUsed  int64
}

// Deferred is one item left out of the plan, with the reason why.
type Deferred struct {
	Item     workitem.Item
	Estimate workitem.Estimate
	Reason   DeferReason
}

// ExecutionPlan is the immutable output of the budget planner.
type ExecutionPlan struct {
	TotalBudget int64
	Reserve     int64
	Selected    []Selected
	Deferred    []Deferred
	Remaining   int64
}
