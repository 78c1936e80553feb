package service_test

import (
	"context"
	"testing"

	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"
	"grantsbackend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogsPageNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	partnerID := e.partner(t, true)
	b := e.draftBudget(t, partnerID, line("x", 1, 1))
	e.transition(t, b.ID, model.BudgetStatusSubmitted, model.BudgetStatusRejected, model.BudgetStatusDraft)
	e.draftBudget(t, partnerID)

	logs, total, err := e.audit.GetAuditLogs(ctx, service.AuditFilter{EntityType: model.EntityBudget, Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, logs, 2)
	assert.Equal(t, model.ActionBudgetCreated, logs[0].Action, "the second budget is newest")
	assert.True(t, logs[0].CreatedAt.After(logs[1].CreatedAt))

	logs, total, err = e.audit.GetAuditLogs(ctx, service.AuditFilter{Action: model.ActionBudgetStatusChanged, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"from":"DRAFT","to":"SUBMITTED"}`, string(logs[0].Details))

	logs, _, err = e.audit.GetAuditLogs(ctx, service.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, logs, 5, "defaults apply to a zero filter")
}

func TestAuditRecordRejectsUnencodableState(t *testing.T) {
	db := newEnv(t).db
	audit := service.NewAuditService(repository.NewAuditRepository(db))
	tm := repository.NewTransactionManager(db, 0)

	err := tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return audit.Record(txCtx, service.AuditEntry{
			Action:     model.ActionBudgetUpdated,
			EntityType: model.EntityBudget,
			EntityID:   "b-1",
			After:      map[string]any{"bad": make(chan int)},
		})
	})
	require.Error(t, err)

	logs, total, err := audit.GetAuditLogs(context.Background(), service.AuditFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, logs)
}

func TestAuditRecordNeedsTransaction(t *testing.T) {
	e := newEnv(t)
	err := e.audit.Record(context.Background(), service.AuditEntry{
		Action: model.ActionBudgetUpdated, EntityType: model.EntityBudget, EntityID: "b-1",
	})
	assert.ErrorIs(t, err, repository.ErrNoTransaction)
}
