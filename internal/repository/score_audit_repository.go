package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/r14dd/matchsentinel/internal/model"
)

type ScoreAuditRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewScoreAuditRepository(db *gorm.DB, log *logrus.Logger) *ScoreAuditRepository {
	return &ScoreAuditRepository{
		db:  db,
		log: log,
	}
}

// CreateIfAbsent inserts the audit unless one already exists for its
// transaction id; on conflict the existing audit is fetched and returned
// with created=false.
func (r *ScoreAuditRepository) CreateIfAbsent(ctx context.Context, audit *model.ScoreAudit) (*model.ScoreAudit, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(audit)
	if result.Error != nil {
		return nil, false, result.Error
	}

	if result.RowsAffected == 1 {
		return audit, true, nil
	}

	existing, err := r.GetByTransactionID(ctx, audit.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *ScoreAuditRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.ScoreAudit, error) {
	var audit model.ScoreAudit
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&audit).Error
	if err != nil {
		return nil, err
	}
	return &audit, nil
}

func (r *ScoreAuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.ScoreAudit, error) {
	var audits []model.ScoreAudit
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("scored_at ASC").
		Find(&audits).Error

	return audits, err
}
