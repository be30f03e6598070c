package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/r14dd/matchsentinel/internal/consumer"
	"github.com/r14dd/matchsentinel/internal/database"
	"github.com/r14dd/matchsentinel/internal/event"
	"github.com/r14dd/matchsentinel/internal/model"
	"github.com/r14dd/matchsentinel/internal/repository"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []event.NotificationSent
}

func (f *fakePublisher) Publish(_ context.Context, _, _ string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload.(event.NotificationSent))
	return nil
}

func newService(t *testing.T) (*Service, *fakePublisher) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	pub := &fakePublisher{}
	return New(repository.NewNotificationRepository(db, log), pub, log), pub
}

func caseCreatedBody(t *testing.T, caseID uuid.UUID) []byte {
	t.Helper()
	body, err := json.Marshal(event.CaseCreated{
		CaseID:        caseID,
		TransactionID: uuid.New(),
		AccountID:     uuid.New(),
		Status:        "OPEN",
		RiskScore:     decimal.RequireFromString("0.90"),
		Reasons:       []string{"AMOUNT_THRESHOLD"},
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return body
}

func TestHandleCaseCreated(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	caseID := uuid.New()
	require.NoError(t, svc.HandleCaseCreated(ctx, caseCreatedBody(t, caseID)))

	require.Len(t, pub.events, 1)
	sent := pub.events[0]
	assert.Equal(t, caseID, sent.CaseID)
	assert.Equal(t, string(model.ChannelEmail), sent.Channel)
	assert.False(t, sent.SentAt.IsZero())

	n, err := svc.Get(ctx, sent.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationSent, n.Status)
	assert.Equal(t, "CASE_CREATED", n.EventType)
}

func TestHandleCaseCreatedReplayIdempotent(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	body := caseCreatedBody(t, uuid.New())
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.HandleCaseCreated(ctx, body))
	}

	notifications, err := svc.List(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
	assert.Len(t, pub.events, 1, "notification.sent must be published exactly once per case")
}

func TestHandleCaseCreatedMalformed(t *testing.T) {
	svc, _ := newService(t)

	assert.ErrorIs(t, svc.HandleCaseCreated(context.Background(), []byte("not json")), consumer.ErrDropMessage)
	assert.ErrorIs(t, svc.HandleCaseCreated(context.Background(), []byte("{}")), consumer.ErrDropMessage)
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}
