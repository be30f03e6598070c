package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/r14dd/matchsentinel/internal/model"
)

// CaseFilter narrows List results; nil fields are ignored.
type CaseFilter struct {
	Status        *model.CaseStatus
	AnalystID     *uuid.UUID
	TransactionID *uuid.UUID
	AccountID     *uuid.UUID
}

type CaseRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewCaseRepository(db *gorm.DB, log *logrus.Logger) *CaseRepository {
	return &CaseRepository{
		db:  db,
		log: log,
	}
}

// CreateIfAbsent inserts the case unless one already exists for its
// transaction id, returning the surviving row either way.
func (r *CaseRepository) CreateIfAbsent(ctx context.Context, c *model.Case) (*model.Case, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(c)
	if result.Error != nil {
		return nil, false, result.Error
	}

	if result.RowsAffected == 1 {
		return c, true, nil
	}

	existing, err := r.GetByTransactionID(ctx, c.TransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	var c model.Case
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*model.Case, error) {
	var c model.Case
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepository) Save(ctx context.Context, c *model.Case) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *CaseRepository) List(ctx context.Context, filter CaseFilter, limit, offset int) ([]model.Case, error) {
	query := r.db.WithContext(ctx).Model(&model.Case{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.AnalystID != nil {
		query = query.Where("assigned_analyst_id = ?", *filter.AnalystID)
	}
	if filter.TransactionID != nil {
		query = query.Where("transaction_id = ?", *filter.TransactionID)
	}
	if filter.AccountID != nil {
		query = query.Where("account_id = ?", *filter.AccountID)
	}

	var cases []model.Case
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&cases).Error

	return cases, err
}
