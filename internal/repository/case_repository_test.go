package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r14dd/matchsentinel/internal/model"
)

func newCase(txID uuid.UUID) *model.Case {
	now := time.Now().UTC()
	return &model.Case{
		ID:            uuid.New(),
		TransactionID: txID,
		AccountID:     uuid.New(),
		Status:        model.CaseStatusOpen,
		RiskScore:     decimal.RequireFromString("0.90"),
		Reasons:       model.EncodeReasons([]string{"AMOUNT_THRESHOLD"}),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCaseCreateIfAbsent(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewCaseRepository(db, log)
	ctx := context.Background()

	txID := uuid.New()
	first := newCase(txID)

	got, created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, got.ID)

	got, created, err = repo.CreateIfAbsent(ctx, newCase(txID))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, got.ID)
}

func TestCaseSaveAndGet(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewCaseRepository(db, log)
	ctx := context.Background()

	c := newCase(uuid.New())
	_, created, err := repo.CreateIfAbsent(ctx, c)
	require.NoError(t, err)
	require.True(t, created)

	analyst := uuid.New()
	c.Status = model.CaseStatusEscalated
	c.AssignedAnalystID = &analyst
	c.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Save(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusEscalated, got.Status)
	require.NotNil(t, got.AssignedAnalystID)
	assert.Equal(t, analyst, *got.AssignedAnalystID)

	byTx, err := repo.GetByTransactionID(ctx, c.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byTx.ID)
}

func TestCaseListFilters(t *testing.T) {
	db, log := newTestDB(t)
	repo := NewCaseRepository(db, log)
	ctx := context.Background()

	open := newCase(uuid.New())
	_, _, err := repo.CreateIfAbsent(ctx, open)
	require.NoError(t, err)

	resolved := newCase(uuid.New())
	resolved.Status = model.CaseStatusResolved
	analyst := uuid.New()
	resolved.AssignedAnalystID = &analyst
	_, _, err = repo.CreateIfAbsent(ctx, resolved)
	require.NoError(t, err)

	status := model.CaseStatusResolved
	cases, err := repo.List(ctx, CaseFilter{Status: &status}, 10, 0)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, resolved.ID, cases[0].ID)

	cases, err = repo.List(ctx, CaseFilter{AnalystID: &analyst}, 10, 0)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, resolved.ID, cases[0].ID)

	cases, err = repo.List(ctx, CaseFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}
