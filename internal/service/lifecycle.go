package service

import (
	"context"
	"errors"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/events"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Option configures the lifecycle services.
type Option func(*lifecycle)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *lifecycle) { l.now = now }
}

// WithPublisher sets where committed lifecycle events are sent.
func WithPublisher(p events.Publisher) Option {
	return func(l *lifecycle) { l.publisher = p }
}

// lifecycle is the machinery shared by the budget and contract services:
// unit of work, idempotency ledger, audit recorder and the event feed.
type lifecycle struct {
	txManager repository.TransactionManager
	ledger    repository.IdempotencyRepository
	audit     AuditRecorder
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func newLifecycle(txManager repository.TransactionManager, ledger repository.IdempotencyRepository, audit AuditRecorder, logger *zap.Logger, opts []Option) lifecycle {
	l := lifecycle{
		txManager: txManager,
		ledger:    ledger,
		audit:     audit,
		publisher: events.Nop{},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// execute runs fn as one idempotent unit of work and reports whether the
// result was replayed from the ledger.
func execute[T any](ctx context.Context, l *lifecycle, call idempotentCall, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var (
		out      T
		replayed bool
	)
	err := l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		out, replayed, err = runIdempotent(txCtx, l.ledger, call, fn)
		return err
	})
	if err != nil {
		l.logFailure(call.ActionKey, err)
		var zero T
		return zero, false, err
	}
	if replayed {
		l.logger.Debug("replayed idempotent action", zap.String("action", call.ActionKey), zap.String("idempotency_key", call.Key))
	}
	return out, replayed, nil
}

func (l *lifecycle) logFailure(action string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindUnavailable:
		l.logger.Warn("lifecycle action rolled back", zap.String("action", action), zap.Error(err))
	default:
		l.logger.Info("lifecycle action rejected", zap.String("action", action), zap.Error(err))
	}
}

// publish sends ev after commit. A failed publish never fails the action.
func (l *lifecycle) publish(ctx context.Context, ev events.LifecycleEvent) {
	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.logger.Warn("failed to publish lifecycle event",
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID.String()),
			zap.Error(err))
	}
}

// changeBudgetStatus moves budget to status to under the transition table,
// guarded on its current status, and audits the change. budget must have been
// loaded under a row lock in the current transaction.
func (l *lifecycle) changeBudgetStatus(ctx context.Context, budgets repository.BudgetRepository, budget *model.Budget, to string, actorID uuid.UUID, at time.Time, reason string) error {
	from := budget.Status
	if !CanTransitionBudget(from, to) {
		return apperr.InvalidTransition(from, to)
	}
	if err := budgets.UpdateStatus(ctx, budget.ID, from, to, at); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return apperr.InvalidTransition(from, to)
		}
		return err
	}
	budget.Status = to
	budget.UpdatedAt = at

	details := map[string]string{"from": from, "to": to}
	if reason != "" {
		details["reason"] = reason
	}
	return l.audit.Record(ctx, AuditEntry{
		ActorID:    actorID,
		Action:     model.ActionBudgetStatusChanged,
		EntityType: model.EntityBudget,
		EntityID:   budget.ID.String(),
		Before:     map[string]string{"status": from},
		After:      map[string]string{"status": to},
		Details:    details,
		At:         at,
	})
}

// notFound turns a missing row into a NotFound error naming what was looked up.
func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %s not found", what, id)
	}
	return err
}
