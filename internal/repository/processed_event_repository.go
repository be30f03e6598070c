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

// ProcessedEventRepository is the dedup ledger. The unique constraint on
// event_key is the race-serialization point: exactly one of any number of
// concurrent Mark calls for the same key wins.
type ProcessedEventRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewProcessedEventRepository(db *gorm.DB, log *logrus.Logger) *ProcessedEventRepository {
	return &ProcessedEventRepository{
		db:  db,
		log: log,
	}
}

// WithTx returns a copy bound to the given transaction.
func (r *ProcessedEventRepository) WithTx(tx *gorm.DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: tx, log: r.log}
}

// Mark records the event key and reports whether this call inserted it.
// A false result means the key was already applied and the caller must
// skip its side effect.
func (r *ProcessedEventRepository) Mark(ctx context.Context, eventKey string) (bool, error) {
	record := model.ProcessedEvent{
		ID:          uuid.New(),
		EventKey:    eventKey,
		ProcessedAt: time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
