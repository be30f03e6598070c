// Package scorer runs the heuristic risk model over incoming transactions
// and publishes transaction.scored for the rule engine to merge.
package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/r14dd/matchsentinel/internal/config"
	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/model"
	"github.com/r14dd/matchsentinel/internal/repository"
	"github.com/r14dd/matchsentinel/internal/risk"
)

type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

type Service struct {
	audits    *repository.ScoreAuditRepository
	publisher EventPublisher
	scorer    *risk.Scorer
	log       *logrus.Logger
}

func New(audits *repository.ScoreAuditRepository, pub EventPublisher, cfg config.HeuristicConfig, log *logrus.Logger) *Service {
	return &Service{
		audits:    audits,
		publisher: pub,
		scorer:    risk.NewScorer(cfg.HighRiskCountries),
		log:       log,
	}
}

// HandleTransactionCreated scores the transaction and forwards the
// decision, effectively once per transaction: the unique audit row decides
// who publishes, so a redelivery resolves to the stored decision and emits
// nothing. Every score is audited and published, including sub-threshold
// ones; the acceptance cut happens in the rule engine.
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

	decision := s.scorer.Score(risk.Transaction{
		Amount:   evt.Amount,
		Currency: evt.Currency,
		Country:  evt.Country,
		Merchant: evt.Merchant,
	})
	scoredAt := time.Now().UTC()

	audit := &model.ScoreAudit{
		ID:            uuid.New(),
		TransactionID: evt.ID,
		RiskScore:     decision.Score,
		Reasons:       model.EncodeReasons(decision.Reasons),
		ModelVersion:  decision.ModelVersion,
		ScoredAt:      scoredAt,
	}
	saved, created, err := s.audits.CreateIfAbsent(ctx, audit)
	if err != nil {
		return fmt.Errorf("failed to persist score audit: %w", err)
	}
	if !created {
		s.log.WithField("transaction_id", evt.ID).
			Debug("transaction already scored, dropping delivery")
		return nil
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": evt.ID,
		"risk_score":     saved.RiskScore.String(),
		"model_version":  saved.ModelVersion,
	}).Info("transaction scored")

	scored := event.TransactionScored{
		TransactionID: evt.ID,
		AccountID:     evt.AccountID,
		Amount:        evt.Amount,
		Currency:      evt.Currency,
		Country:       evt.Country,
		Merchant:      evt.Merchant,
		OccurredAt:    evt.OccurredAt,
		RiskScore:     saved.RiskScore,
		Reasons:       decision.Reasons,
		ModelVersion:  saved.ModelVersion,
		ScoredAt:      saved.ScoredAt,
	}
	if err := s.publisher.Publish(ctx, event.ScoringExchange, event.TransactionScoredKey, scored); err != nil {
		// The audit row is already persisted; a requeue would take the
		// conflict path and never publish. Known dual-write gap, same as
		// the flag and case paths.
		s.log.WithError(err).WithField("transaction_id", evt.ID).
			Error("score persisted but transaction.scored publish failed")
	}

	return nil
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.ScoreAudit, error) {
	return s.audits.ListByTransaction(ctx, transactionID)
}
