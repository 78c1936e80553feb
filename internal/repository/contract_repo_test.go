package repository

import (
	"context"
	"testing"
	"time"

	"grantsbackend/internal/model"
	"grantsbackend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newContract(number string, at time.Time) *model.Contract {
	return &model.Contract{
		ProjectID:  uuid.New(),
		PartnerID:  uuid.New(),
		BudgetID:   uuid.New(),
		TemplateID: uuid.New(),
		Number:     number,
		Title:      "Field services",
		State:      model.ContractStateDraft,
		Substatus:  datatypes.JSONMap{},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestContractNextNumber(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	contracts := NewContractRepository(db)
	ctx := context.Background()
	day := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	var first, second string
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if first, err = contracts.NextNumber(txCtx, day); err != nil {
			return err
		}
		if err := contracts.Create(txCtx, newContract(first, day)); err != nil {
			return err
		}
		second, err = contracts.NextNumber(txCtx, day)
		return err
	}))

	assert.Equal(t, "CTR-20260307-00001", first)
	assert.Equal(t, "CTR-20260307-00002", second)

	var otherDay string
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		otherDay, err = contracts.NextNumber(txCtx, day.AddDate(0, 0, 1))
		return err
	}))
	assert.Equal(t, "CTR-20260308-00001", otherDay)
}

func TestContractNextNumberSkipsCallerNumbers(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	contracts := NewContractRepository(db)
	ctx := context.Background()
	day := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		for _, n := range []string{"CTR-20260115-00002", "CTR-20260115-draft", "CTR-20260116-00040"} {
			if err := contracts.Create(txCtx, newContract(n, day)); err != nil {
				return err
			}
		}
		return nil
	}))

	var next string
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		next, err = contracts.NextNumber(txCtx, day)
		return err
	}))
	assert.Equal(t, "CTR-20260115-00003", next)
}

func TestContractNumberIsUnique(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	contracts := NewContractRepository(db)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		return contracts.Create(txCtx, newContract("CTR-X", at))
	}))
	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		return contracts.Create(txCtx, newContract("CTR-X", at))
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestContractTransitionStateIsGuarded(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db, time.Second)
	contracts := NewContractRepository(db)
	ctx := context.Background()
	at := time.Now().UTC()

	c := newContract("CTR-1", at)
	key := "docs/ctr-1.docx"
	require.NoError(t, tm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := contracts.Create(txCtx, c); err != nil {
			return err
		}
		return contracts.TransitionState(txCtx, c.ID, model.ContractStateDraft, model.ContractStateGenerated,
			model.ContractUpdate{GeneratedDocxKey: &key}, at)
	}))

	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		return contracts.TransitionState(txCtx, c.ID, model.ContractStateDraft, model.ContractStateCancelled, model.ContractUpdate{}, at)
	})
	require.ErrorIs(t, err, ErrStaleState)

	got, err := contracts.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStateGenerated, got.State)
	require.NotNil(t, got.GeneratedDocxKey)
	assert.Equal(t, key, *got.GeneratedDocxKey)

}
