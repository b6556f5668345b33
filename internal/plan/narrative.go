package plan

import (
	"fmt"
	"strings"

	"github.com/aristath/helmsman/internal/domain"
)

// stepNarrative picks a template from the action's tag set. Tag precedence:
// windfall, profit_taking, rebalance (with group hint), averaging_down,
// quality, opportunity; a generic line covers everything else.
func stepNarrative(action domain.ActionCandidate, ctx *domain.PortfolioContext) string {
	verb := "Buy"
	if action.Side == "SELL" {
		verb = "Sell"
	}
	subject := fmt.Sprintf("%s %d × %s", verb, action.Quantity, action.Symbol)

	switch {
	case action.HasTag("windfall"):
		return fmt.Sprintf("%s to bank a windfall: the position has run far ahead of its usual growth.", subject)
	case action.HasTag("profit_taking"):
		return fmt.Sprintf("%s to lock in part of the gain while the thesis stays intact.", subject)
	case action.HasTag("rebalance"):
		if hint := groupHint(action, ctx); hint != "" {
			return fmt.Sprintf("%s to move the %s allocation back toward its target.", subject, hint)
		}
		return fmt.Sprintf("%s to bring the portfolio back toward its target weights.", subject)
	case action.HasTag("averaging_down"):
		return fmt.Sprintf("%s to lower the average cost of a quality holding trading below it.", subject)
	case action.HasTag("quality"):
		return fmt.Sprintf("%s to add a high-quality name at a reasonable size.", subject)
	case action.HasTag("opportunity"):
		return fmt.Sprintf("%s to pick up an attractive opportunity outside the current targets.", subject)
	default:
		if action.Reason != "" {
			return fmt.Sprintf("%s: %s.", subject, strings.TrimSuffix(action.Reason, "."))
		}
		return subject + "."
	}
}

// groupHint names the country or industry group a rebalance step works on.
func groupHint(action domain.ActionCandidate, ctx *domain.PortfolioContext) string {
	if ctx == nil {
		return ""
	}
	if group := ctx.CountryGroupOf(action.Symbol); group != domain.OtherGroup {
		return group
	}
	if group := ctx.IndustryGroupOf(action.Symbol); group != domain.OtherGroup {
		return group
	}
	return ""
}

// contributions lists which portfolio goals a step advances.
func contributions(action domain.ActionCandidate, ctx *domain.PortfolioContext) []string {
	var goals []string
	if action.HasTag("rebalance") {
		goals = append(goals, "diversification")
		if hint := groupHint(action, ctx); hint != "" {
			goals = append(goals, "target: "+hint)
		}
	}
	if action.HasTag("windfall") || action.HasTag("profit_taking") {
		goals = append(goals, "realised gains")
	}
	if action.HasTag("averaging_down") {
		goals = append(goals, "cost basis")
	}
	if action.HasTag("quality") {
		goals = append(goals, "portfolio quality")
	}
	if action.HasTag("dividend") {
		goals = append(goals, "income")
	}
	return goals
}

// planNarrative composes the top-level summary: overview, strategy,
// financials, and execution order.
func planNarrative(p domain.Plan, result domain.EvaluationResult) string {
	if len(p.Steps) == 0 {
		return "No actions recommended: the portfolio is already well positioned."
	}

	sells, buys := 0, 0
	for _, s := range p.Steps {
		if s.Side == "SELL" {
			sells++
		} else {
			buys++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This plan has %d step%s (%d sell%s, %d buy%s) and improves the portfolio score from %.3f to %.3f.",
		len(p.Steps), plural(len(p.Steps)), sells, plural(sells), buys, plural(buys), p.CurrentScore, p.EndStateScore)

	if strategy := strategyLine(result.Sequence.PatternType); strategy != "" {
		b.WriteString(" " + strategy)
	}

	fmt.Fprintf(&b, " Estimated transaction costs are €%.2f.", p.TotalCost)
	if p.CashRequired > 0 {
		fmt.Fprintf(&b, " Up to €%.2f of cash is needed at the deepest point.", p.CashRequired)
	}
	if p.CashGenerated > 0 {
		fmt.Fprintf(&b, " Sales generate €%.2f of cash.", p.CashGenerated)
	}
	if sells > 0 && buys > 0 {
		b.WriteString(" Execute the sells first: they fund the buys.")
	}
	return b.String()
}

func strategyLine(pattern string) string {
	switch pattern {
	case "rebalance", "deep_rebalance":
		return "The strategy is a rebalance: trim overweight positions and top up underweight ones."
	case "profit_taking":
		return "The strategy is profit-taking on positions that have run ahead of expectations."
	case "averaging_down":
		return "The strategy averages down on quality holdings trading below cost."
	case "cash_generation":
		return "The strategy raises cash ahead of upcoming opportunities."
	case "market_regime":
		return "The strategy follows the current market regime."
	case "cost_optimized":
		return "The strategy concentrates value into few trades to minimise fees."
	case "":
		return ""
	default:
		return ""
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
