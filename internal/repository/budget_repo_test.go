package repository

import (
	"context"
	"testing"
	"time"

	"grantsbackend/internal/model"
	"grantsbackend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type budgetFixture struct {
	tm      TransactionManager
	budgets BudgetRepository
	budget  *model.Budget
}

func setupBudget(t *testing.T) budgetFixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := budgetFixture{
		tm:      NewTransactionManager(db, time.Second),
		budgets: NewBudgetRepository(db),
	}
	at := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	f.budget = &model.Budget{
		ProjectID:    uuid.New(),
		PartnerID:    uuid.New(),
		Currency:     "USD",
		CeilingTotal: decimal.Zero,
		Status:       model.BudgetStatusDraft,
		Rules:        datatypes.JSON("{}"),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	require.NoError(t, f.tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return f.budgets.Create(txCtx, f.budget)
	}))
	return f
}

func (f budgetFixture) line(qty, cost int64, at time.Time) model.BudgetLine {
	return model.BudgetLine{
		BudgetID:  f.budget.ID,
		Quantity:  decimal.NewFromInt(qty),
		UnitCost:  decimal.NewFromInt(cost),
		Currency:  "USD",
		Status:    model.BudgetLineStatusActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestBudgetUpdateStatusIsGuarded(t *testing.T) {
	f := setupBudget(t)
	ctx := context.Background()
	at := time.Now().UTC()

	err := f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.UpdateStatus(txCtx, f.budget.ID, model.BudgetStatusDraft, model.BudgetStatusSubmitted, at)
	})
	require.NoError(t, err)

	// Second writer still believes the budget is DRAFT.
	err = f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.UpdateStatus(txCtx, f.budget.ID, model.BudgetStatusDraft, model.BudgetStatusLocked, at)
	})
	require.ErrorIs(t, err, ErrStaleState)

	got, err := f.budgets.FindByID(ctx, f.budget.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BudgetStatusSubmitted, got.Status)
}

func TestBudgetLinesLifecycle(t *testing.T) {
	f := setupBudget(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	lines := []model.BudgetLine{f.line(2, 50, at), f.line(3, 10, at.Add(time.Microsecond))}
	require.NoError(t, f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.CreateLines(txCtx, lines)
	}))

	got, err := f.budgets.ListLines(ctx, f.budget.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, lines[0].ID, got[0].ID)
	assert.True(t, decimal.NewFromInt(130).Equal(model.SumLineCosts(got)))

	got[0].Quantity = decimal.NewFromInt(4)
	require.NoError(t, f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := f.budgets.UpdateLine(txCtx, &got[0]); err != nil {
			return err
		}
		return f.budgets.DeleteLine(txCtx, f.budget.ID, got[1].ID)
	}))

	budget, err := f.budgets.FindByID(ctx, f.budget.ID)
	require.NoError(t, err)
	require.Len(t, budget.Lines, 1)
	assert.True(t, decimal.NewFromInt(200).Equal(budget.Lines[0].Cost()))
}

func TestBudgetDeleteLineOfOtherBudget(t *testing.T) {
	f := setupBudget(t)
	ctx := context.Background()
	l := f.line(1, 1, time.Now().UTC())
	require.NoError(t, f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.CreateLines(txCtx, []model.BudgetLine{l})
	}))

	err := f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.DeleteLine(txCtx, uuid.New(), l.ID)
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestBudgetUpdateColumns(t *testing.T) {
	f := setupBudget(t)
	ctx := context.Background()
	eur := "EUR"
	rules := datatypes.JSON(`{"max_line":1000}`)

	require.NoError(t, f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.Update(txCtx, f.budget.ID, model.BudgetUpdate{Currency: &eur, Rules: &rules}, time.Now().UTC())
	}))

	got, err := f.budgets.FindByID(ctx, f.budget.ID)
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Currency)
	assert.JSONEq(t, `{"max_line":1000}`, string(got.Rules))

	err = f.tm.RunInTx(ctx, func(txCtx context.Context) error {
		return f.budgets.Update(txCtx, uuid.New(), model.BudgetUpdate{Currency: &eur}, time.Now().UTC())
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
