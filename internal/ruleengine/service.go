// Package ruleengine merges rule and heuristic decisions into a single
// flagged record per transaction and emits transaction.flagged.
package ruleengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/r14dd/matchsentinel/internal/config"
	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/metrics"
	"github.com/r14dd/matchsentinel/internal/model"
	"github.com/r14dd/matchsentinel/internal/repository"
	"github.com/r14dd/matchsentinel/internal/risk"
)

// ReasonHeuristicScore backfills a heuristic decision that arrived with an
// empty reason list.
const ReasonHeuristicScore = "AI_SCORE"

type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

type Service struct {
	repo           *repository.FlaggedRepository
	publisher      EventPublisher
	evaluator      *risk.Evaluator
	scoreThreshold decimal.Decimal
	log            *logrus.Logger
}

func New(repo *repository.FlaggedRepository, pub EventPublisher, cfg config.RulesConfig, log *logrus.Logger) *Service {
	return &Service{
		repo:           repo,
		publisher:      pub,
		evaluator:      risk.NewEvaluator(cfg.AmountThreshold, cfg.HighRiskCountries),
		scoreThreshold: cfg.ScoreThreshold,
		log:            log,
	}
}

// snapshot carries the transaction fields copied onto a flagged record.
type snapshot struct {
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Country       string
	Merchant      string
	OccurredAt    time.Time
}

// HandleTransactionCreated runs the rule evaluator over an incoming
// transaction and flags it when any rule fires.
func (s *Service) HandleTransactionCreated(ctx context.Context, body []byte) error {
	var evt event.TransactionCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.ID == uuid.Nil || evt.AccountID == uuid.Nil {
		return fmt.Errorf("%w: missing transaction or account id", consumer.ErrDropMessage)
	}
	if !evt.Amount.IsPositive() {
		return fmt.Errorf("%w: non-positive amount %s", consumer.ErrDropMessage, evt.Amount)
	}

	decision := s.evaluator.Evaluate(risk.Transaction{
		Amount:   evt.Amount,
		Currency: evt.Currency,
		Country:  evt.Country,
		Merchant: evt.Merchant,
	})
	if decision == nil {
		return nil
	}

	return s.materialize(ctx, snapshot{
		TransactionID: evt.ID,
		AccountID:     evt.AccountID,
		Amount:        evt.Amount,
		Currency:      evt.Currency,
		Country:       evt.Country,
		Merchant:      evt.Merchant,
		OccurredAt:    evt.OccurredAt,
	}, *decision, time.Now().UTC())
}

// HandleTransactionScored accepts heuristic decisions at or above the
// configured threshold; anything below is discarded entirely.
func (s *Service) HandleTransactionScored(ctx context.Context, body []byte) error {
	var evt event.TransactionScored
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.TransactionID == uuid.Nil || evt.AccountID == uuid.Nil {
		return fmt.Errorf("%w: missing transaction or account id", consumer.ErrDropMessage)
	}
	if evt.RiskScore.IsNegative() || evt.RiskScore.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: score %s out of range", consumer.ErrDropMessage, evt.RiskScore)
	}

	if evt.RiskScore.LessThan(s.scoreThreshold) {
		return nil
	}

	reasons := evt.Reasons
	if len(reasons) == 0 {
		reasons = []string{ReasonHeuristicScore}
	}

	flaggedAt := evt.ScoredAt
	if flaggedAt.IsZero() {
		flaggedAt = time.Now().UTC()
	}

	return s.materialize(ctx, snapshot{
		TransactionID: evt.TransactionID,
		AccountID:     evt.AccountID,
		Amount:        evt.Amount,
		Currency:      evt.Currency,
		Country:       evt.Country,
		Merchant:      evt.Merchant,
		OccurredAt:    evt.OccurredAt,
	}, risk.Decision{
		Score:        evt.RiskScore,
		Reasons:      reasons,
		Source:       model.SourceHeuristic,
		ModelVersion: evt.ModelVersion,
	}, flaggedAt)
}

// materialize applies first-decision-wins semantics. The unique constraint
// on transaction_id is the only concurrency primitive; the losing decision
// is silently dropped and nothing is republished.
func (s *Service) materialize(ctx context.Context, snap snapshot, decision risk.Decision, flaggedAt time.Time) error {
	record := &model.FlaggedTransaction{
		ID:            uuid.New(),
		TransactionID: snap.TransactionID,
		AccountID:     snap.AccountID,
		Amount:        snap.Amount,
		Currency:      snap.Currency,
		Country:       snap.Country,
		Merchant:      snap.Merchant,
		OccurredAt:    snap.OccurredAt,
		RiskScore:     decision.Score,
		Reasons:       model.EncodeReasons(decision.Reasons),
		Source:        decision.Source,
		CreatedAt:     flaggedAt,
	}

	saved, created, err := s.repo.CreateIfAbsent(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to persist flagged transaction: %w", err)
	}
	if !created {
		s.log.WithFields(logrus.Fields{
			"transaction_id": snap.TransactionID,
			"source":         decision.Source,
		}).Debug("transaction already flagged, dropping decision")
		return nil
	}

	metrics.TransactionsFlagged.WithLabelValues(string(decision.Source)).Inc()
	s.log.WithFields(logrus.Fields{
		"transaction_id": saved.TransactionID,
		"risk_score":     saved.RiskScore.String(),
		"source":         saved.Source,
	}).Info("transaction flagged")

	flagged := event.TransactionFlagged{
		TransactionID: saved.TransactionID,
		AccountID:     saved.AccountID,
		Amount:        saved.Amount,
		Currency:      saved.Currency,
		Country:       saved.Country,
		Merchant:      saved.Merchant,
		OccurredAt:    saved.OccurredAt,
		FlaggedAt:     saved.CreatedAt,
		RiskScore:     saved.RiskScore,
		Reasons:       model.DecodeReasons(saved.Reasons),
	}
	if err := s.publisher.Publish(ctx, event.RuleEngineExchange, event.TransactionFlaggedKey, flagged); err != nil {
		// The record is already persisted; a redelivery would hit the
		// conflict path and never publish. Known dual-write gap.
		s.log.WithError(err).WithField("transaction_id", saved.TransactionID).
			Error("flagged record persisted but transaction.flagged publish failed")
	}

	return nil
}

func (s *Service) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.FlaggedTransaction, error) {
	return s.repo.GetByTransactionID(ctx, transactionID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]model.FlaggedTransaction, error) {
	return s.repo.List(ctx, limit, offset)
}
