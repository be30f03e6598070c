// Package event defines the wire payloads exchanged over the broker.
// Field names are a compatibility surface; do not rename.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange and routing key layout. Each consumer declares its own durable
// queue bound to the producing exchange.
const (
	TransactionExchange  = "tx.events"
	ScoringExchange      = "ai.events"
	RuleEngineExchange   = "ruleengine.events"
	CaseExchange         = "case.events"
	NotificationExchange = "notification.events"

	TransactionCreatedKey = "transaction.created"
	TransactionScoredKey  = "transaction.scored"
	TransactionFlaggedKey = "transaction.flagged"
	CaseCreatedKey        = "case.created"
	NotificationSentKey   = "notification.sent"
)

type TransactionCreated struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"accountId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Country    string          `json:"country"`
	Merchant   string          `json:"merchant"`
	OccurredAt time.Time       `json:"occurredAt"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// TransactionScored carries a heuristic decision from the scorer to the
// rule engine; the acceptance threshold is applied on the consuming side.
type TransactionScored struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	AccountID     uuid.UUID       `json:"accountId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Country       string          `json:"country"`
	Merchant      string          `json:"merchant"`
	OccurredAt    time.Time       `json:"occurredAt"`
	RiskScore     decimal.Decimal `json:"riskScore"`
	Reasons       []string        `json:"reasons"`
	ModelVersion  string          `json:"modelVersion"`
	ScoredAt      time.Time       `json:"scoredAt"`
}

type TransactionFlagged struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	AccountID     uuid.UUID       `json:"accountId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Country       string          `json:"country"`
	Merchant      string          `json:"merchant"`
	OccurredAt    time.Time       `json:"occurredAt"`
	FlaggedAt     time.Time       `json:"flaggedAt"`
	RiskScore     decimal.Decimal `json:"riskScore"`
	Reasons       []string        `json:"reasons"`
}

type CaseCreated struct {
	CaseID            uuid.UUID       `json:"caseId"`
	TransactionID     uuid.UUID       `json:"transactionId"`
	AccountID         uuid.UUID       `json:"accountId"`
	Status            string          `json:"status"`
	AssignedAnalystID *uuid.UUID      `json:"assignedAnalystId,omitempty"`
	RiskScore         decimal.Decimal `json:"riskScore"`
	Reasons           []string        `json:"reasons"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type NotificationSent struct {
	NotificationID uuid.UUID `json:"notificationId"`
	CaseID         uuid.UUID `json:"caseId"`
	Channel        string    `json:"channel"`
	SentAt         time.Time `json:"sentAt"`
}
