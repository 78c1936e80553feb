package repository

import (
	"context"
	"testing"
	"time"

	"grantsbackend/internal/model"
	"grantsbackend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestIdempotencyReserveOnce(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	ledger := NewIdempotencyRepository(db)
	ctx := context.Background()
	at := time.Now().UTC()

	rec := func() *model.IdempotencyRecord {
		return &model.IdempotencyRecord{IdempotencyKey: "k-1", ActionKey: "A", RequestHash: "h", CreatedAt: at}
	}

	var first, second *model.IdempotencyRecord
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		first, err = ledger.Reserve(txCtx, rec())
		return err
	}))
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		second, err = ledger.Reserve(txCtx, rec())
		return err
	}))
	require.NotNil(t, first)
	assert.Nil(t, second)

	got, err := ledger.FindByKey(ctx, "k-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Completed())

	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		return ledger.MarkCompleted(txCtx, "k-1", []byte(`{"ok":true}`), at)
	}))
	got, err = ledger.FindByKey(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, got.Completed())
	assert.JSONEq(t, `{"ok":true}`, string(*got.ResponseJSON))
	require.NotNil(t, got.CompletedAt)
}

func TestIdempotencyUnknownKey(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	ledger := NewIdempotencyRepository(db)
	ctx := context.Background()

	got, err := ledger.FindByKey(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = tm.RunInTx(ctx, func(txCtx context.Context) error {
		return ledger.MarkCompleted(txCtx, "missing", []byte(`{}`), time.Now().UTC())
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestIdempotencyRecordsAreNeverDeleted(t *testing.T) {
	db := testutil.NewDB(t)
	rec := &model.IdempotencyRecord{IdempotencyKey: "k", ActionKey: "A", RequestHash: "h", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(rec).Error)

	err := db.Delete(rec).Error
	assert.ErrorIs(t, err, model.ErrIdempotencyRecordPermanent)
}

func TestAuditListFiltersAndPages(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	audit := NewAuditRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	entries := []*model.AuditLog{
		{Action: model.ActionBudgetCreated, EntityType: model.EntityBudget, EntityID: "b1", CreatedAt: base},
		{Action: model.ActionBudgetStatusChanged, EntityType: model.EntityBudget, EntityID: "b1", CreatedAt: base.Add(time.Second)},
		{Action: model.ActionBudgetStatusChanged, EntityType: model.EntityBudget, EntityID: "b1", CreatedAt: base.Add(2 * time.Second)},
		{Action: model.ActionContractCreated, EntityType: model.EntityContract, EntityID: "c1", CreatedAt: base.Add(3 * time.Second)},
	}
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		for _, e := range entries {
			if err := audit.Log(txCtx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	logs, total, err := audit.List(ctx, AuditFilter{EntityType: model.EntityBudget}, 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 2)
	assert.Equal(t, entries[2].ID, logs[0].ID, "newest first")

	logs, total, err = audit.List(ctx, AuditFilter{Action: model.ActionBudgetStatusChanged}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, logs, 2)

	trail, err := audit.ListByEntity(ctx, model.EntityBudget, "b1")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, model.ActionBudgetCreated, trail[0].Action, "oldest first")
}

func TestAuditRowsAreImmutable(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	audit := NewAuditRepository(db)
	ctx := context.Background()

	details := datatypes.JSON(`{"from":"DRAFT"}`)
	entry := &model.AuditLog{Action: model.ActionBudgetStatusChanged, EntityType: model.EntityBudget, EntityID: "b1", Details: &details, CreatedAt: time.Now().UTC()}
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		return audit.Log(txCtx, entry)
	}))

	err := db.Model(entry).Update("action", "TAMPERED").Error
	assert.ErrorIs(t, err, model.ErrAuditImmutable)

	err = db.Delete(entry).Error
	assert.ErrorIs(t, err, model.ErrAuditImmutable)

	trail, err := audit.ListByEntity(ctx, model.EntityBudget, "b1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, model.ActionBudgetStatusChanged, trail[0].Action)
}
