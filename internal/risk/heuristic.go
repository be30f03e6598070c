package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/r14dd/matchsentinel/internal/model"
)

// ModelVersion tags every heuristic decision for auditability.
const ModelVersion = "heuristic-v1"

var (
	weightHighAmount     = decimal.RequireFromString("0.50")
	weightHighRisk       = decimal.RequireFromString("0.40")
	weightCryptoMerchant = decimal.RequireFromString("0.20")
	weightNonUSD         = decimal.RequireFromString("0.10")

	highAmountFloor = decimal.NewFromInt(10000)
	maxScore        = decimal.NewFromInt(1)
)

// Scorer is the heuristic path: an independent weighted sum over the same
// transaction fields, clipped to 1.00 and rounded half-up to two decimals.
type Scorer struct {
	highRisk map[string]struct{}
}

func NewScorer(highRiskCountries string) *Scorer {
	return &Scorer{highRisk: parseCountrySet(highRiskCountries)}
}

func (s *Scorer) Score(tx Transaction) Decision {
	score := decimal.Zero
	var reasons []string

	if tx.Amount.GreaterThanOrEqual(highAmountFloor) {
		score = score.Add(weightHighAmount)
		reasons = append(reasons, ReasonHighAmount)
	}
	if _, ok := s.highRisk[strings.ToUpper(tx.Country)]; ok {
		score = score.Add(weightHighRisk)
		reasons = append(reasons, ReasonHighRiskCountry)
	}
	merchant := strings.ToLower(tx.Merchant)
	if strings.Contains(merchant, "crypto") || strings.Contains(merchant, "exchange") {
		score = score.Add(weightCryptoMerchant)
		reasons = append(reasons, ReasonCryptoMerchant)
	}
	if !strings.EqualFold(tx.Currency, "USD") {
		score = score.Add(weightNonUSD)
		reasons = append(reasons, ReasonNonUSDCurrency)
	}

	if score.GreaterThan(maxScore) {
		score = maxScore
	}

	return Decision{
		Score:        score.Round(2),
		Reasons:      reasons,
		Source:       model.SourceHeuristic,
		ModelVersion: ModelVersion,
	}
}
