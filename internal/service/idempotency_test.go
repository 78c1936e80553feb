package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// memLedger is an in-memory IdempotencyRepository. When stealNext is set the
// next Reserve behaves as if another transaction had just taken the key.
type memLedger struct {
	mu        sync.Mutex
	records   map[string]*model.IdempotencyRecord
	stealNext bool
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]*model.IdempotencyRecord{}}
}

func (m *memLedger) Reserve(_ context.Context, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stealNext {
		m.stealNext = false
		return nil, nil
	}
	if _, ok := m.records[rec.IdempotencyKey]; ok {
		return nil, nil
	}
	cp := *rec
	m.records[rec.IdempotencyKey] = &cp
	return rec, nil
}

func (m *memLedger) MarkCompleted(_ context.Context, key string, response []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return errors.New("not reserved")
	}
	j := datatypes.JSON(response)
	rec.ResponseJSON = &j
	rec.CompletedAt = &at
	return nil
}

func (m *memLedger) FindByKey(_ context.Context, key string) (*model.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

type echo struct {
	N     int       `json:"n"`
	Stamp time.Time `json:"stamp"`
}

func counter(calls *int) func(context.Context) (echo, error) {
	return func(context.Context) (echo, error) {
		*calls++
		return echo{N: *calls, Stamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
	}
}

func TestRunIdempotentWithoutKeyAlwaysRuns(t *testing.T) {
	ledger := newMemLedger()
	calls := 0
	call := idempotentCall{ActionKey: "A", Request: map[string]int{"x": 1}}

	for i := 1; i <= 2; i++ {
		out, replayed, err := runIdempotent(context.Background(), ledger, call, counter(&calls))
		require.NoError(t, err)
		assert.False(t, replayed)
		assert.Equal(t, i, out.N)
	}
	assert.Empty(t, ledger.records)
}

func TestRunIdempotentReplaysFirstResult(t *testing.T) {
	ledger := newMemLedger()
	actor := uuid.New()
	calls := 0
	call := idempotentCall{Key: "k", ActionKey: "A", ActorID: actor, Request: map[string]int{"x": 1}}

	first, replayed, err := runIdempotent(context.Background(), ledger, call, counter(&calls))
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := runIdempotent(context.Background(), ledger, call, counter(&calls))
	require.NoError(t, err)
	assert.True(t, replayed)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	rec := ledger.records["k"]
	require.NotNil(t, rec.ActorUserID)
	assert.Equal(t, actor, *rec.ActorUserID)
	assert.Contains(t, rec.RequestHash, "sha256:")
}

func TestRunIdempotentConflicts(t *testing.T) {
	base := idempotentCall{Key: "k", ActionKey: "A", ActorID: uuid.New(), Request: map[string]int{"x": 1}}

	tests := []struct {
		name   string
		mutate func(c idempotentCall) idempotentCall
	}{
		{"different payload", func(c idempotentCall) idempotentCall { c.Request = map[string]int{"x": 2}; return c }},
		{"different action", func(c idempotentCall) idempotentCall { c.ActionKey = "B"; return c }},
		{"different actor", func(c idempotentCall) idempotentCall { c.ActorID = uuid.New(); return c }},
		{"explicit hash differs", func(c idempotentCall) idempotentCall { c.RequestHash = "client-hash"; return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemLedger()
			calls := 0
			_, _, err := runIdempotent(context.Background(), ledger, base, counter(&calls))
			require.NoError(t, err)

			_, _, err = runIdempotent(context.Background(), ledger, tt.mutate(base), counter(&calls))
			require.Error(t, err)
			assert.Equal(t, apperr.KindIdempotencyKeyConflict, apperr.KindOf(err))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRunIdempotentFailureLeavesKeyUncompleted(t *testing.T) {
	ledger := newMemLedger()
	call := idempotentCall{Key: "k", ActionKey: "A", Request: 1}
	boom := apperr.PreconditionFailed("nope")

	_, _, err := runIdempotent(context.Background(), ledger, call, func(context.Context) (echo, error) {
		return echo{}, boom
	})
	require.ErrorIs(t, err, boom)

	// In production the reservation rolls back with the transaction; here it
	// stays reserved but uncompleted, so a retry runs the action again.
	calls := 0
	out, replayed, err := runIdempotent(context.Background(), ledger, call, counter(&calls))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 1, out.N)
}

func TestRunIdempotentLostReservationIsUnavailable(t *testing.T) {
	ledger := newMemLedger()
	ledger.stealNext = true
	calls := 0

	_, _, err := runIdempotent(context.Background(), ledger, idempotentCall{Key: "k", ActionKey: "A"}, counter(&calls))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Zero(t, calls)
}

func TestRunIdempotentRejectsOversizedFields(t *testing.T) {
	tests := []struct {
		name string
		call idempotentCall
	}{
		{"key", idempotentCall{Key: strings.Repeat("k", model.MaxIdempotencyKeyLen+1), ActionKey: "A"}},
		{"hash", idempotentCall{Key: "k", ActionKey: "A", RequestHash: strings.Repeat("h", model.MaxRequestHashLen+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMemLedger()
			calls := 0
			_, _, err := runIdempotent(context.Background(), ledger, tt.call, counter(&calls))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Zero(t, calls)
			assert.Empty(t, ledger.records)
		})
	}

	ledger := newMemLedger()
	calls := 0
	call := idempotentCall{
		Key:         strings.Repeat("k", model.MaxIdempotencyKeyLen),
		ActionKey:   "A",
		RequestHash: strings.Repeat("h", model.MaxRequestHashLen),
	}
	_, _, err := runIdempotent(context.Background(), ledger, call, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRequestHashIsStable(t *testing.T) {
	in := TransitionBudgetInput{BudgetID: uuid.New(), NextStatus: model.BudgetStatusSubmitted, ActorID: uuid.New()}
	a, err := requestHash(model.ActionBudgetStatusChanged, in)
	require.NoError(t, err)

	in.ActorID = uuid.New()
	b, err := requestHash(model.ActionBudgetStatusChanged, in)
	require.NoError(t, err)
	assert.Equal(t, a, b, "actor is not part of the payload")

	c, err := requestHash(model.ActionBudgetUpdated, in)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
