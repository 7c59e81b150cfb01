package cli

import (
	"fmt"
	"io"

	"github.com/open330/oac/internal/plan"
)

// printPlan renders an execution plan's selected/deferred entries, shared by
// the plan and run commands.
func printPlan(w io.Writer, p *plan.ExecutionPlan) {
	fmt.Fprintf(w, "budget: total=%s reserve=%d remaining=%d\n", budgetString(p.TotalBudget), p.Reserve, p.Remaining)
	fmt.Fprintf(w, "selected (%d):\n", len(p.Selected))
	for _, s := range p.Selected {
		fmt.Fprintf(w, "  [%3d] %-40s tokens=%-8d cumulative=%d\n", s.Item.Priority, s.Item.Title, s.Estimate.Total, s.CumulativeUsed)
	}
	fmt.Fprintf(w, "deferred (%d):\n", len(p.Deferred))
	for _, d := range p.Deferred {
		fmt.Fprintf(w, "  [%3d] %-40s tokens=%-8d reason=%s\n", d.Item.Priority, d.Item.Title, d.Estimate.Total, d.Reason)
	}
}

func budgetString(total int64) string {
	if total >= plan.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", total)
}
