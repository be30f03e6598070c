package reporting

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
	"github.com/r14dd/matchsentinel/internal/repository"
)

func newServiceDB(t *testing.T) (*Service, *repository.DailyStatRepository, *gorm.DB) {
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

	stats := repository.NewDailyStatRepository(db, log)
	ledger := repository.NewProcessedEventRepository(db, log)
	return New(db, stats, ledger, log), stats, db
}

func newService(t *testing.T) (*Service, *repository.DailyStatRepository) {
	t.Helper()
	svc, stats, _ := newServiceDB(t)
	return svc, stats
}

func txnBody(t *testing.T, id uuid.UUID, occurredAt time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(event.TransactionCreated{
		ID:         id,
		AccountID:  uuid.New(),
		Amount:     decimal.RequireFromString("100.00"),
		Currency:   "USD",
		Country:    "US",
		Merchant:   "Grocery",
		OccurredAt: occurredAt,
		CreatedAt:  occurredAt,
	})
	require.NoError(t, err)
	return body
}

func TestHandleTransactionCreatedIdempotent(t *testing.T) {
	svc, stats := newService(t)
	ctx := context.Background()

	occurredAt := time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC)
	body := txnBody(t, uuid.New(), occurredAt)

	// Redelivering the identical event N times counts once.
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.HandleTransactionCreated(ctx, body))
	}

	stat, err := stats.GetByDate(ctx, "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.TotalTransactions)

	// A distinct transaction on the same day counts separately.
	require.NoError(t, svc.HandleTransactionCreated(ctx, txnBody(t, uuid.New(), occurredAt)))
	stat, err = stats.GetByDate(ctx, "2025-03-05")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stat.TotalTransactions)
}

func TestFailedIncrementReleasesLedgerClaim(t *testing.T) {
	svc, stats, db := newServiceDB(t)
	ctx := context.Background()

	occurredAt := time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)
	body := txnBody(t, uuid.New(), occurredAt)

	// Break the counter table so the increment fails after the ledger
	// claim. The claim must roll back with it.
	require.NoError(t, db.Migrator().DropTable("daily_stats"))
	err := svc.HandleTransactionCreated(ctx, body)
	require.Error(t, err)
	assert.NotErrorIs(t, err, consumer.ErrDropMessage)

	// Once the table is back, the redelivery still counts.
	require.NoError(t, database.Migrate(db))
	require.NoError(t, svc.HandleTransactionCreated(ctx, body))

	stat, err := stats.GetByDate(ctx, "2025-04-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.TotalTransactions)
}

func TestDateDerivedInUTC(t *testing.T) {
	svc, stats := newService(t)
	ctx := context.Background()

	// 23:30 UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	occurredAt := time.Date(2025, 3, 5, 23, 30, 0, 0, loc)
	require.NoError(t, svc.HandleTransactionCreated(ctx, txnBody(t, uuid.New(), occurredAt)))

	stat, err := stats.GetByDate(ctx, "2025-03-06")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.TotalTransactions)
}

func TestAllFourStreamsDeduplicated(t *testing.T) {
	svc, stats := newService(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	flagged, err := json.Marshal(event.TransactionFlagged{
		TransactionID: uuid.New(),
		AccountID:     uuid.New(),
		Amount:        decimal.RequireFromString("15000.00"),
		Currency:      "USD",
		Country:       "IR",
		OccurredAt:    at,
		FlaggedAt:     at,
		RiskScore:     decimal.RequireFromString("0.90"),
	})
	require.NoError(t, err)

	caseCreated, err := json.Marshal(event.CaseCreated{
		CaseID:        uuid.New(),
		TransactionID: uuid.New(),
		AccountID:     uuid.New(),
		Status:        "OPEN",
		RiskScore:     decimal.RequireFromString("0.90"),
		CreatedAt:     at,
	})
	require.NoError(t, err)

	sent, err := json.Marshal(event.NotificationSent{
		NotificationID: uuid.New(),
		CaseID:         uuid.New(),
		Channel:        "EMAIL",
		SentAt:         at,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.HandleTransactionFlagged(ctx, flagged))
		require.NoError(t, svc.HandleCaseCreated(ctx, caseCreated))
		require.NoError(t, svc.HandleNotificationSent(ctx, sent))
	}

	stat, err := stats.GetByDate(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.FlaggedTransactions)
	assert.Equal(t, int64(1), stat.CasesCreated)
	assert.Equal(t, int64(1), stat.NotificationsSent)
}

func TestConcurrentDistinctEvents(t *testing.T) {
	svc, stats := newService(t)
	ctx := context.Background()

	const n = 20
	occurredAt := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.HandleTransactionCreated(ctx, txnBody(t, uuid.New(), occurredAt)))
		}()
	}
	wg.Wait()

	stat, err := stats.GetByDate(ctx, "2025-07-01")
	require.NoError(t, err)
	assert.Equal(t, int64(n), stat.TotalTransactions)
}

func TestWeeklyRollup(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// Monday 2025-03-03 through Sunday 2025-03-09.
	casesPerDay := []int64{1, 0, 2, 0, 0, 3, 1}
	for i, count := range casesPerDay {
		if count == 0 {
			continue
		}
		date := time.Date(2025, 3, 3+i, 0, 0, 0, 0, time.UTC)
		_, err := svc.CreateDailyStat(ctx, CreateParams{
			StatDate:     date.Format("2006-01-02"),
			CasesCreated: count,
		})
		require.NoError(t, err)
	}

	// Any reference date inside the week yields the same span and sums.
	for _, ref := range []time.Time{
		time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),  // Monday
		time.Date(2025, 3, 6, 12, 0, 0, 0, time.UTC), // Thursday
		time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC), // Sunday
	} {
		rollup, err := svc.WeeklyRollup(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "2025-03-03", rollup.Start)
		assert.Equal(t, "2025-03-09", rollup.End)
		assert.Equal(t, int64(7), rollup.CasesCreated)
	}

	// A week with no rows at all sums to zero.
	rollup, err := svc.WeeklyRollup(ctx, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rollup.CasesCreated)
}

func TestMonthlyRollup(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, d := range []struct {
		date string
		txns int64
	}{
		{"2025-02-01", 5},
		{"2025-02-28", 7},
		{"2025-03-01", 100}, // outside the month
	} {
		_, err := svc.CreateDailyStat(ctx, CreateParams{StatDate: d.date, TotalTransactions: d.txns})
		require.NoError(t, err)
	}

	rollup, err := svc.MonthlyRollup(ctx, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", rollup.Start)
	assert.Equal(t, "2025-02-28", rollup.End)
	assert.Equal(t, int64(12), rollup.TotalTransactions)
}

func TestCreateDailyStatConflict(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateDailyStat(ctx, CreateParams{StatDate: "2025-08-01", CasesCreated: 1})
	require.NoError(t, err)

	_, err = svc.CreateDailyStat(ctx, CreateParams{StatDate: "2025-08-01"})
	assert.ErrorIs(t, err, ErrStatExists)
}

func TestGetDailyStatNotFound(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.GetDailyStat(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrStatNotFound)

	_, err = svc.GetDailyStatByDate(ctx, "1999-01-01")
	assert.ErrorIs(t, err, ErrStatNotFound)
}

func TestHandlersDropMalformedPayloads(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	handlers := []func(context.Context, []byte) error{
		svc.HandleTransactionCreated,
		svc.HandleTransactionFlagged,
		svc.HandleCaseCreated,
		svc.HandleNotificationSent,
	}
	for _, h := range handlers {
		assert.ErrorIs(t, h(ctx, []byte("{")), consumer.ErrDropMessage)
		assert.ErrorIs(t, h(ctx, []byte("{}")), consumer.ErrDropMessage)
	}
}
