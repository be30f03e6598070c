package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/r14dd/matchsentinel/internal/model"
)

type FlaggedRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewFlaggedRepository(db *gorm.DB, log *logrus.Logger) *FlaggedRepository {
	return &FlaggedRepository{
		db:  db,
		log: log,
	}
}

// CreateIfAbsent inserts the record unless one already exists for its
// transaction id. The unique index serializes competing decisions; on
// conflict the existing record is fetched and returned with created=false.
func (r *FlaggedRepository) CreateIfAbsent(ctx context.Context, record *model.FlaggedTransaction) (*model.FlaggedTransaction, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return nil, false, result.Error
	}

	if result.RowsAffected == 1 {
		return record, true, nil
	}

	existing, err := r.GetByTransactionID(ctx, record.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *FlaggedRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.FlaggedTransaction, error) {
	var record model.FlaggedTransaction
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *FlaggedRepository) List(ctx context.Context, limit, offset int) ([]model.FlaggedTransaction, error) {
	var records []model.FlaggedTransaction
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	return records, err
}
