package plan

import (
	"fmt"
	"strings"

	"github.com/aristath/helmsman/internal/domain"
)

// MarkdownReport renders a plan as a human-readable markdown document:
// summary, step table, financial impact, and execution guidance.
func MarkdownReport(p domain.Plan) string {
	var b strings.Builder

	b.WriteString("# Trading Plan\n\n")
	if !p.Feasible {
		b.WriteString("**Status: infeasible.**")
		if p.Error != "" {
			fmt.Fprintf(&b, " %s", p.Error)
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(p.NarrativeSummary)
	b.WriteString("\n")

	if len(p.Steps) == 0 {
		return b.String()
	}

	b.WriteString("\n## Steps\n\n")
	b.WriteString("| # | Side | Symbol | Qty | Est. Value | Cash After |\n")
	b.WriteString("|---|------|--------|-----|-----------|------------|\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "| %d | %s | %s | %d | €%.2f | €%+.2f |\n",
			s.StepNumber, s.Side, s.Symbol, s.Quantity, s.EstimatedValue, s.RunningCashFlow)
	}

	b.WriteString("\n## Details\n\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "%d. %s", s.StepNumber, s.Narrative)
		if len(s.ContributesTo) > 0 {
			fmt.Fprintf(&b, " _(advances: %s)_", strings.Join(s.ContributesTo, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Financial impact\n\n")
	fmt.Fprintf(&b, "- Score: %.3f → %.3f (%+.3f)\n", p.CurrentScore, p.EndStateScore, p.Improvement)
	fmt.Fprintf(&b, "- Transaction costs: €%.2f\n", p.TotalCost)
	if p.CashRequired > 0 {
		fmt.Fprintf(&b, "- Peak cash required: €%.2f\n", p.CashRequired)
	}
	if p.CashGenerated > 0 {
		fmt.Fprintf(&b, "- Cash generated by sales: €%.2f\n", p.CashGenerated)
	}

	return b.String()
}
