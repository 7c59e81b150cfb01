// Package planner implements budget-aware selection: a single greedy pass
// over a priority-sorted list of (item, estimate) pairs that fills a token
// budget while holding back a fixed reserve.
package planner

import (
	"math"
	"sort"

	"github.com/open330/oac/internal/plan"
	"github.com/open330/oac/internal/workitem"
)

// reserveFraction is the fraction of the total budget held back from selection.
const reserveFraction = 0.10

// minConfidence is the floor below which an item is deferred regardless of budget.
const minConfidence = 0.3

// Plan selects a subset of candidates that fits within totalBudget, holding
// back a 10% reserve, in priority order (descending priority, ascending
// title as a tie-break). totalBudget may be plan.Unlimited.
func Plan(candidates []workitem.ItemEstimate, totalBudget int64) *plan.ExecutionPlan {
	sorted := make([]workitem.ItemEstimate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Item.Priority != sorted[j].Item.Priority {
			return sorted[i].Item.Priority > sorted[j].Item.Priority
		}
		return sorted[i].Item.Title < sorted[j].Item.Title
	})

	reserve := reserveTokens(totalBudget)
	effective := saturatingSub(totalBudget, reserve)

	p := &plan.ExecutionPlan{
		TotalBudget: totalBudget,
		Reserve:     reserve,
	}

	var running int64
	for _, c := range sorted {
		switch {
		case !c.Estimate.Feasible:
			p.Deferred = append(p.Deferred, plan.Deferred{
				Item: c.Item, Estimate: c.Estimate, Reason: plan.ReasonTooComplex,
			})
		case c.Estimate.Confidence < minConfidence:
			p.Deferred = append(p.Deferred, plan.Deferred{
				Item: c.Item, Estimate: c.Estimate, Reason: plan.ReasonLowConfidence,
			})
		case running+int64(c.Estimate.Total) > effective:
			p.Deferred = append(p.Deferred, plan.Deferred{
				Item: c.Item, Estimate: c.Estimate, Reason: plan.ReasonBudgetExceeded,
			})
		default:
			running += int64(c.Estimate.Total)
			p.Selected = append(p.Selected, plan.Selected{
				Item: c.Item, Estimate: c.Estimate, CumulativeUsed: running,
			})
		}
	}

	p.Remaining = effective - running
	return p
}

// reserveTokens computes ⌈0.10 × total⌉, saturating at plan.Unlimited so an
// unlimited budget never overflows.
func reserveTokens(total int64) int64 {
	if total >= plan.Unlimited {
		return 0
	}
	return int64(math.Ceil(float64(total) * reserveFraction))
}

func saturatingSub(total, reserve int64) int64 {
	if total >= plan.Unlimited {
		return plan.Unlimited
	}
	if reserve > total {
		return 0
	}
	return total - reserve
}
