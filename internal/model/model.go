package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "OPEN"
	CaseStatusInProgress CaseStatus = "IN_PROGRESS"
	CaseStatusEscalated  CaseStatus = "ESCALATED"
	CaseStatusResolved   CaseStatus = "RESOLVED"
	CaseStatusDismissed  CaseStatus = "DISMISSED"
)

// ValidCaseStatus reports whether s is a declared status value.
// Transitions between declared values are unconstrained.
func ValidCaseStatus(s CaseStatus) bool {
	switch s {
	case CaseStatusOpen, CaseStatusInProgress, CaseStatusEscalated,
		CaseStatusResolved, CaseStatusDismissed:
		return true
	}
	return false
}

type DecisionSource string

const (
	SourceRule      DecisionSource = "RULE"
	SourceHeuristic DecisionSource = "HEURISTIC"
)

// FlaggedTransaction is the single flagged record per transaction; the
// unique index on transaction_id is the merge point for competing decisions.
type FlaggedTransaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(19,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	Country       string          `gorm:"size:2;not null"`
	Merchant      string          `gorm:"size:256"`
	OccurredAt    time.Time       `gorm:"not null"`
	RiskScore     decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	Reasons       string          `gorm:"type:text"`
	Source        DecisionSource  `gorm:"size:16;not null"`
	CreatedAt     time.Time       `gorm:"not null"`
}

type Case struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID     uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	AccountID         uuid.UUID       `gorm:"type:uuid;not null"`
	Status            CaseStatus      `gorm:"size:32;not null"`
	AssignedAnalystID *uuid.UUID      `gorm:"type:uuid"`
	RiskScore         decimal.Decimal `gorm:"type:numeric(5,2)"`
	Reasons           string          `gorm:"type:text"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
)

// Notification records the "notification sent" fact; actual channel
// delivery happens outside this system.
type Notification struct {
	ID        uuid.UUID           `gorm:"type:uuid;primaryKey"`
	CaseID    uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_notifications_case_event"`
	EventType string              `gorm:"size:64;not null;uniqueIndex:idx_notifications_case_event"`
	Channel   NotificationChannel `gorm:"size:16;not null"`
	Status    NotificationStatus  `gorm:"size:16;not null"`
	Recipient string              `gorm:"size:256;not null"`
	Payload   string              `gorm:"type:text"`
	CreatedAt time.Time           `gorm:"not null"`
	UpdatedAt time.Time           `gorm:"not null"`
}

// ProcessedEvent is the dedup ledger: one row per applied logical event,
// serialized by the unique constraint on event_key.
type ProcessedEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventKey    string    `gorm:"size:128;uniqueIndex;not null"`
	ProcessedAt time.Time `gorm:"not null"`
}

// ScoreAudit keeps the heuristic decision for auditability, including
// ones below the acceptance threshold. One decision per transaction; the
// unique index absorbs redeliveries.
type ScoreAudit struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	RiskScore     decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	Reasons       string          `gorm:"type:text"`
	ModelVersion  string          `gorm:"size:32;not null"`
	ScoredAt      time.Time       `gorm:"not null"`
}

// DailyStat holds the four per-day counters, keyed by UTC calendar date
// in ISO form. Rows are created lazily on first increment.
type DailyStat struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	StatDate            string    `gorm:"size:10;uniqueIndex;not null"`
	TotalTransactions   int64     `gorm:"not null;default:0"`
	FlaggedTransactions int64     `gorm:"not null;default:0"`
	CasesCreated        int64     `gorm:"not null;default:0"`
	NotificationsSent   int64     `gorm:"not null;default:0"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

const reasonsDelimiter = "|"

func EncodeReasons(reasons []string) string {
	return strings.Join(reasons, reasonsDelimiter)
}

func DecodeReasons(encoded string) []string {
	if encoded == "" {
		return nil
	}
	return strings.Split(encoded, reasonsDelimiter)
}

// StatDateOf derives the UTC calendar date key for a timestamp.
func StatDateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
