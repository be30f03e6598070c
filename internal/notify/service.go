// Package notify records the notification-sent fact for new cases and
// emits notification.sent. Channel delivery happens outside this system.
package notify

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

const (
	eventTypeCaseCreated = "CASE_CREATED"
	defaultRecipient     = "analyst@matchsentinel.local"
)

var ErrNotificationNotFound = errors.New("notification not found")

type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

type Service struct {
	repo      *repository.NotificationRepository
	publisher EventPublisher
	log       *logrus.Logger
}

func New(repo *repository.NotificationRepository, pub EventPublisher, log *logrus.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: pub,
		log:       log,
	}
}

// HandleCaseCreated records one notification per (case, event type); a
// redelivered case.created resolves to the existing row and publishes
// nothing.
func (s *Service) HandleCaseCreated(ctx context.Context, body []byte) error {
	var evt event.CaseCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("%w: %v", consumer.ErrDropMessage, err)
	}
	if evt.CaseID == uuid.Nil {
		return fmt.Errorf("%w: missing case id", consumer.ErrDropMessage)
	}

	now := time.Now().UTC()
	n := &model.Notification{
		ID:        uuid.New(),
		CaseID:    evt.CaseID,
		EventType: eventTypeCaseCreated,
		Channel:   model.ChannelEmail,
		Status:    model.NotificationSent,
		Recipient: defaultRecipient,
		Payload:   "Case created: " + evt.CaseID.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	saved, created, err := s.repo.CreateIfAbsent(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	if !created {
		s.log.WithField("case_id", evt.CaseID).
			Debug("notification already recorded, skipping")
		return nil
	}

	metrics.NotificationsRecorded.Inc()
	s.log.WithFields(logrus.Fields{
		"notification_id": saved.ID,
		"case_id":         saved.CaseID,
		"channel":         saved.Channel,
	}).Info("notification sent")

	sent := event.NotificationSent{
		NotificationID: saved.ID,
		CaseID:         saved.CaseID,
		Channel:        string(saved.Channel),
		SentAt:         saved.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, event.NotificationExchange, event.NotificationSentKey, sent); err != nil {
		// Known dual-write gap, same as the flag and case paths.
		s.log.WithError(err).WithField("notification_id", saved.ID).
			Error("notification persisted but notification.sent publish failed")
	}

	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	return s.repo.List(ctx, limit, offset)
}
