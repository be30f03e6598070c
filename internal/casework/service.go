// Package casework materializes investigation cases from flagged
// transactions and owns case status and assignment.
package casework

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/metrics"
	"github.com/r14dd/matchsentinel/internal/model"
	"github.com/r14dd/matchsentinel/internal/repository"
)

var (
	ErrCaseNotFound  = errors.New("case not found")
	ErrDuplicateCase = errors.New("case already exists for transaction")
	ErrInvalidStatus = errors.New("invalid case status")
)

type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

type Service struct {
	repo      *repository.CaseRepository
	publisher EventPublisher
	log       *logrus.Logger
}

func New(repo *repository.CaseRepository, pub EventPublisher, log *logrus.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: pub,
		log:       log,
	}
}

// HandleTransactionFlagged opens a case for a flagged transaction,
// effectively once per transaction id. Redeliveries and the second
// evaluator's decision resolve to the existing case without republishing.
func (s *Service) HandleTransactionFlagged(ctx context.Context, body []byte) error {
	var evt event.TransactionFlagged
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.TransactionID == uuid.Nil || evt.AccountID == uuid.Nil {
		return fmt.Errorf("%w: missing transaction or account id", consumer.ErrDropMessage)
	}

	_, err := s.CreateFromFlagged(ctx, evt)
	return err
}

func (s *Service) CreateFromFlagged(ctx context.Context, evt event.TransactionFlagged) (*model.Case, error) {
	now := time.Now().UTC()
	c := &model.Case{
		ID:            uuid.New(),
		TransactionID: evt.TransactionID,
		AccountID:     evt.AccountID,
		Status:        model.CaseStatusOpen,
		RiskScore:     evt.RiskScore,
		Reasons:       model.EncodeReasons(evt.Reasons),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	saved, created, err := s.repo.CreateIfAbsent(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to persist case: %w", err)
	}
	if !created {
		s.log.WithField("transaction_id", evt.TransactionID).
			Debug("case already exists, skipping")
		return saved, nil
	}

	metrics.CasesCreated.Inc()
	s.log.WithFields(logrus.Fields{
		"case_id":        saved.ID,
		"transaction_id": saved.TransactionID,
	}).Info("case created")

	createdEvt := event.CaseCreated{
		CaseID:            saved.ID,
		TransactionID:     saved.TransactionID,
		AccountID:         saved.AccountID,
		Status:            string(saved.Status),
		AssignedAnalystID: saved.AssignedAnalystID,
		RiskScore:         saved.RiskScore,
		Reasons:           model.DecodeReasons(saved.Reasons),
		CreatedAt:         saved.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event.CaseExchange, event.CaseCreatedKey, createdEvt); err != nil {
		// Known dual-write gap: the case exists but downstream never
		// hears about it.
		s.log.WithError(err).WithField("case_id", saved.ID).
			Error("case persisted but case.created publish failed")
	}

	return saved, nil
}

// CreateParams describes a directly created case, outside the flagged
// pipeline.
type CreateParams struct {
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	RiskScore     decimal.Decimal
	Reasons       []string
}

// Create opens a case directly. Unlike the flagged path, an existing case
// for the transaction is an error here.
func (s *Service) Create(ctx context.Context, params CreateParams) (*model.Case, error) {
	now := time.Now().UTC()
	c := &model.Case{
		ID:            uuid.New(),
		TransactionID: params.TransactionID,
		AccountID:     params.AccountID,
		Status:        model.CaseStatusOpen,
		RiskScore:     params.RiskScore,
		Reasons:       model.EncodeReasons(params.Reasons),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	saved, created, err := s.repo.CreateIfAbsent(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to persist case: %w", err)
	}
	if !created {
		return saved, ErrDuplicateCase
	}
	return saved, nil
}

// UpdateStatus sets the case to any declared status; transitions are
// deliberately unconstrained.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.CaseStatus) (*model.Case, error) {
	if !model.ValidCaseStatus(status) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update case status: %w", err)
	}
	return c, nil
}

func (s *Service) Assign(ctx context.Context, id, analystID uuid.UUID) (*model.Case, error) {
	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.AssignedAnalystID = &analystID
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to assign case: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	return s.get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter repository.CaseFilter, limit, offset int) ([]model.Case, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return c, nil
}
