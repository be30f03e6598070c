package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/r14dd/matchsentinel/internal/model"
)

type NotificationRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewNotificationRepository(db *gorm.DB, log *logrus.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:  db,
		log: log,
	}
}

// CreateIfAbsent inserts the notification unless one already exists for
// the same case and event type.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, n *model.Notification) (*model.Notification, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "case_id"}, {Name: "event_type"}},
			DoNothing: true,
		}).
		Create(n)
	if result.Error != nil {
		return nil, false, result.Error
	}

	if result.RowsAffected == 1 {
		return n, true, nil
	}

	var existing model.Notification
	err := r.db.WithContext(ctx).
		Where("case_id = ? AND event_type = ?", n.CaseID, n.EventType).
		First(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) List(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).Error

	return notifications, err
}
