package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/r14dd/matchsentinel/internal/model"
)

// Counter names one of the four daily counters, by column.
type Counter string

const (
	CounterTransactions  Counter = "total_transactions"
	CounterFlagged       Counter = "flagged_transactions"
	CounterCases         Counter = "cases_created"
	CounterNotifications Counter = "notifications_sent"
)

type DailyStatRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewDailyStatRepository(db *gorm.DB, log *logrus.Logger) *DailyStatRepository {
	return &DailyStatRepository{
		db:  db,
		log: log,
	}
}

// WithTx returns a copy bound to the given transaction.
func (r *DailyStatRepository) WithTx(tx *gorm.DB) *DailyStatRepository {
	return &DailyStatRepository{db: tx, log: r.log}
}

// Increment adds 1 to one counter for the given date in a single upsert:
// a missing row is inserted with the counter at 1, an existing row has the
// counter bumped in the same statement. No read-modify-write, so concurrent
// consumers cannot lose updates.
func (r *DailyStatRepository) Increment(ctx context.Context, statDate string, counter Counter) error {
	now := time.Now().UTC()
	stat := model.DailyStat{
		ID:        uuid.New(),
		StatDate:  statDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch counter {
	case CounterTransactions:
		stat.TotalTransactions = 1
	case CounterFlagged:
		stat.FlaggedTransactions = 1
	case CounterCases:
		stat.CasesCreated = 1
	case CounterNotifications:
		stat.NotificationsSent = 1
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stat_date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				string(counter): gorm.Expr("daily_stats." + string(counter) + " + 1"),
				"updated_at":    now,
			}),
		}).
		Create(&stat).Error
}

// Create inserts a manually supplied stat row; created=false means a row
// for that date already exists.
func (r *DailyStatRepository) Create(ctx context.Context, stat *model.DailyStat) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stat_date"}},
			DoNothing: true,
		}).
		Create(stat)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *DailyStatRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.DailyStat, error) {
	var stat model.DailyStat
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&stat).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

func (r *DailyStatRepository) GetByDate(ctx context.Context, statDate string) (*model.DailyStat, error) {
	var stat model.DailyStat
	err := r.db.WithContext(ctx).
		Where("stat_date = ?", statDate).
		First(&stat).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// Range returns all rows with start <= stat_date <= end. Missing days have
// no row and simply contribute nothing to rollups.
func (r *DailyStatRepository) Range(ctx context.Context, start, end string) ([]model.DailyStat, error) {
	var stats []model.DailyStat
	err := r.db.WithContext(ctx).
		Where("stat_date BETWEEN ? AND ?", start, end).
		Order("stat_date ASC").
		Find(&stats).Error

	return stats, err
}

func (r *DailyStatRepository) List(ctx context.Context, limit, offset int) ([]model.DailyStat, error) {
	var stats []model.DailyStat
	err := r.db.WithContext(ctx).
		Order("stat_date DESC").
		Limit(limit).
		Offset(offset).
		Find(&stats).Error

	return stats, err
}
