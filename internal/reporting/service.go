// Package reporting consumes all four event streams and maintains the
// per-day counters, with weekly and monthly rollups computed on demand.
package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/metrics"
	"github.com/r14dd/matchsentinel/internal/model"
	"github.com/r14dd/matchsentinel/internal/repository"
)

var (
	ErrStatNotFound = errors.New("daily stats not found")
	ErrStatExists   = errors.New("stats already exist for date")
)

type Service struct {
	db     *gorm.DB
	stats  *repository.DailyStatRepository
	ledger *repository.ProcessedEventRepository
	log    *logrus.Logger
}

func New(db *gorm.DB, stats *repository.DailyStatRepository, ledger *repository.ProcessedEventRepository, log *logrus.Logger) *Service {
	return &Service{
		db:     db,
		stats:  stats,
		ledger: ledger,
		log:    log,
	}
}

// apply claims the event key in the dedup ledger and, only when this
// delivery won the claim, bumps the counter for the derived date. Claim
// and increment commit together: a failed increment rolls the claim back
// so the redelivery can retry instead of dedup-skipping a lost count.
// Every stream is deduplicated; redelivery is the steady-state no-op path.
func (s *Service) apply(ctx context.Context, stream, eventKey, statDate string, counter repository.Counter) error {
	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.ledger.WithTx(tx).Mark(ctx, eventKey)
		if err != nil {
			return fmt.Errorf("failed to record event key: %w", err)
		}
		if !inserted {
			return nil
		}
		if err := s.stats.WithTx(tx).Increment(ctx, statDate, counter); err != nil {
			return fmt.Errorf("failed to increment %s for %s: %w", counter, statDate, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !inserted {
		metrics.DuplicatesSkipped.WithLabelValues(stream).Inc()
		s.log.WithFields(logrus.Fields{
			"stream":    stream,
			"event_key": eventKey,
		}).Debug("event already applied, skipping")
	}
	return nil
}

func (s *Service) HandleTransactionCreated(ctx context.Context, body []byte) error {
	var evt event.TransactionCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.ID == uuid.Nil || evt.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing id or occurredAt", consumer.ErrDropMessage)
	}

	return s.apply(ctx, "transaction.created", "txn:"+evt.ID.String(),
		model.StatDateOf(evt.OccurredAt), repository.CounterTransactions)
}

func (s *Service) HandleTransactionFlagged(ctx context.Context, body []byte) error {
	var evt event.TransactionFlagged
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.TransactionID == uuid.Nil || evt.FlaggedAt.IsZero() {
		return fmt.Errorf("%w: missing transactionId or flaggedAt", consumer.ErrDropMessage)
	}

	return s.apply(ctx, "transaction.flagged", "flag:"+evt.TransactionID.String(),
		model.StatDateOf(evt.FlaggedAt), repository.CounterFlagged)
}

func (s *Service) HandleCaseCreated(ctx context.Context, body []byte) error {
	var evt event.CaseCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.CaseID == uuid.Nil || evt.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing caseId or createdAt", consumer.ErrDropMessage)
	}

	return s.apply(ctx, "case.created", "case:"+evt.CaseID.String(),
		model.StatDateOf(evt.CreatedAt), repository.CounterCases)
}

func (s *Service) HandleNotificationSent(ctx context.Context, body []byte) error {
	var evt event.NotificationSent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.NotificationID == uuid.Nil || evt.SentAt.IsZero() {
		return fmt.Errorf("%w: missing notificationId or sentAt", consumer.ErrDropMessage)
	}

	return s.apply(ctx, "notification.sent", "notif:"+evt.NotificationID.String(),
		model.StatDateOf(evt.SentAt), repository.CounterNotifications)
}

// Rollup is a read-only aggregate over stored per-day rows; days with no
// row contribute zero.
type Rollup struct {
	Start               string `json:"startDate"`
	End                 string `json:"endDate"`
	TotalTransactions   int64  `json:"totalTransactions"`
	FlaggedTransactions int64  `json:"flaggedTransactions"`
	CasesCreated        int64  `json:"casesCreated"`
	NotificationsSent   int64  `json:"notificationsSent"`
}

// WeeklyRollup sums the Monday-to-Sunday span containing ref; a zero ref
// means the current week.
func (s *Service) WeeklyRollup(ctx context.Context, ref time.Time) (*Rollup, error) {
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = ref.UTC()
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)

	// time.Weekday has Sunday = 0; shift so Monday starts the week.
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)

	return s.rollup(ctx, model.StatDateOf(start), model.StatDateOf(end))
}

// MonthlyRollup sums the calendar month containing ref; a zero ref means
// the current month.
func (s *Service) MonthlyRollup(ctx context.Context, ref time.Time) (*Rollup, error) {
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = ref.UTC()
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	return s.rollup(ctx, model.StatDateOf(start), model.StatDateOf(end))
}

func (s *Service) rollup(ctx context.Context, start, end string) (*Rollup, error) {
	stats, err := s.stats.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for rollup: %w", err)
	}

	result := &Rollup{Start: start, End: end}
	for _, stat := range stats {
		result.TotalTransactions += stat.TotalTransactions
		result.FlaggedTransactions += stat.FlaggedTransactions
		result.CasesCreated += stat.CasesCreated
		result.NotificationsSent += stat.NotificationsSent
	}
	return result, nil
}

// CreateParams describes a manually supplied daily stat row.
type CreateParams struct {
	StatDate            string
	TotalTransactions   int64
	FlaggedTransactions int64
	CasesCreated        int64
	NotificationsSent   int64
}

func (s *Service) CreateDailyStat(ctx context.Context, params CreateParams) (*model.DailyStat, error) {
	now := time.Now().UTC()
	stat := &model.DailyStat{
		ID:                  uuid.New(),
		StatDate:            params.StatDate,
		TotalTransactions:   params.TotalTransactions,
		FlaggedTransactions: params.FlaggedTransactions,
		CasesCreated:        params.CasesCreated,
		NotificationsSent:   params.NotificationsSent,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	created, err := s.stats.Create(ctx, stat)
	if err != nil {
		return nil, fmt.Errorf("failed to create daily stat: %w", err)
	}
	if !created {
		return nil, ErrStatExists
	}
	return stat, nil
}

func (s *Service) GetDailyStat(ctx context.Context, id uuid.UUID) (*model.DailyStat, error) {
	stat, err := s.stats.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStatNotFound
		}
		return nil, err
	}
	return stat, nil
}

func (s *Service) GetDailyStatByDate(ctx context.Context, statDate string) (*model.DailyStat, error) {
	stat, err := s.stats.GetByDate(ctx, statDate)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStatNotFound
		}
		return nil, err
	}
	return stat, nil
}

func (s *Service) ListDailyStats(ctx context.Context, limit, offset int) ([]model.DailyStat, error) {
	return s.stats.List(ctx, limit, offset)
}
