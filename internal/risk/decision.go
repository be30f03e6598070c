// Package risk holds the deterministic evaluators that turn a transaction
// into a risk decision. Both are pure: no I/O, no side effects.
package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/r14dd/matchsentinel/internal/model"
)

// Reason codes emitted by the evaluators.
const (
	ReasonAmountThreshold = "AMOUNT_THRESHOLD"
	ReasonHighRiskCountry = "HIGH_RISK_COUNTRY"
	ReasonHighAmount      = "HIGH_AMOUNT"
	ReasonCryptoMerchant  = "CRYPTO_MERCHANT"
	ReasonNonUSDCurrency  = "NON_USD_CURRENCY"
)

// Transaction is the snapshot of the fields both evaluators read.
type Transaction struct {
	Amount   decimal.Decimal
	Currency string
	Country  string
	Merchant string
}

type Decision struct {
	Score        decimal.Decimal
	Reasons      []string
	Source       model.DecisionSource
	ModelVersion string
}

func parseCountrySet(value string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range strings.Split(value, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
