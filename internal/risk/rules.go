package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/r14dd/matchsentinel/internal/model"
)

// Fixed policy scores; not derived from per-reason weights.
var (
	scoreMultiReason  = decimal.RequireFromString("0.90")
	scoreSingleReason = decimal.RequireFromString("0.70")
)

// Evaluator is the rule-based path: threshold and country-list checks
// with fixed scores.
type Evaluator struct {
	amountThreshold decimal.Decimal
	highRisk        map[string]struct{}
}

func NewEvaluator(amountThreshold decimal.Decimal, highRiskCountries string) *Evaluator {
	return &Evaluator{
		amountThreshold: amountThreshold,
		highRisk:        parseCountrySet(highRiskCountries),
	}
}

// Evaluate returns nil when no rule matches; the transaction is then not
// flagged by this path.
func (e *Evaluator) Evaluate(tx Transaction) *Decision {
	var reasons []string

	if tx.Amount.GreaterThanOrEqual(e.amountThreshold) {
		reasons = append(reasons, ReasonAmountThreshold)
	}
	if _, ok := e.highRisk[strings.ToUpper(tx.Country)]; ok {
		reasons = append(reasons, ReasonHighRiskCountry)
	}
	if len(reasons) == 0 {
		return nil
	}

	score := scoreSingleReason
	if len(reasons) >= 2 {
		score = scoreMultiReason
	}

	return &Decision{
		Score:   score,
		Reasons: reasons,
		Source:  model.SourceRule,
	}
}
