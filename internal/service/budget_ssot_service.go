package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/events"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

// BudgetLineInput is one line to add. A line whose ID names an existing line
// of the budget replaces that line instead of adding a new one.
type BudgetLineInput struct {
	ID             *uuid.UUID      `json:"id,omitempty"`
	TemplateLineID *uuid.UUID      `json:"template_line_id,omitempty"`
	CategoryID     *uuid.UUID      `json:"category_id,omitempty"`
	Description    string          `json:"description"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Currency       string          `json:"currency,omitempty"`
	Period         string          `json:"period"`
}

type CreateBudgetInput struct {
	ProjectID      uuid.UUID         `json:"project_id" binding:"required"`
	PartnerID      uuid.UUID         `json:"partner_id" binding:"required"`
	TemplateID     *uuid.UUID        `json:"template_id,omitempty"`
	Currency       string            `json:"currency" binding:"required"`
	Rules          json.RawMessage   `json:"rules,omitempty"`
	Lines          []BudgetLineInput `json:"lines"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	RequestHash    string            `json:"request_hash,omitempty"`
	ActorID        uuid.UUID         `json:"-"`
}

// UpdateBudgetInput changes budget-level fields. Nil fields are left as is.
type UpdateBudgetInput struct {
	BudgetID       uuid.UUID       `json:"budget_id"`
	Currency       *string         `json:"currency,omitempty"`
	Rules          json.RawMessage `json:"rules,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	RequestHash    string          `json:"request_hash,omitempty"`
	ActorID        uuid.UUID       `json:"-"`
}

type AddBudgetLinesInput struct {
	BudgetID       uuid.UUID         `json:"budget_id"`
	Lines          []BudgetLineInput `json:"lines"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	RequestHash    string            `json:"request_hash,omitempty"`
	ActorID        uuid.UUID         `json:"-"`
}

type RemoveBudgetLineInput struct {
	BudgetID       uuid.UUID `json:"budget_id"`
	LineID         uuid.UUID `json:"line_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	RequestHash    string    `json:"request_hash,omitempty"`
	ActorID        uuid.UUID `json:"-"`
}

type TransitionBudgetInput struct {
	BudgetID       uuid.UUID `json:"budget_id"`
	NextStatus     string    `json:"next_status" binding:"required"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	RequestHash    string    `json:"request_hash,omitempty"`
	ActorID        uuid.UUID `json:"-"`
}

type BudgetLineResponse struct {
	ID             uuid.UUID       `json:"id"`
	BudgetID       uuid.UUID       `json:"budget_id"`
	TemplateLineID *uuid.UUID      `json:"template_line_id"`
	CategoryID     *uuid.UUID      `json:"category_id"`
	Description    string          `json:"description"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Cost           decimal.Decimal `json:"cost"`
	Currency       string          `json:"currency"`
	Period         string          `json:"period"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type BudgetResponse struct {
	ID           uuid.UUID            `json:"id"`
	ProjectID    uuid.UUID            `json:"project_id"`
	PartnerID    uuid.UUID            `json:"partner_id"`
	TemplateID   *uuid.UUID           `json:"template_id"`
	Currency     string               `json:"currency"`
	CeilingTotal decimal.Decimal      `json:"ceiling_total"`
	Status       string               `json:"status"`
	Rules        json.RawMessage      `json:"rules"`
	CreatedBy    *uuid.UUID           `json:"created_by"`
	Lines        []BudgetLineResponse `json:"lines"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// --- Interface ---

// BudgetSSOTService owns every write to budgets and their lines. Each
// mutation runs in one transaction together with its audit row and, when a
// key is given, its idempotency record.
type BudgetSSOTService interface {
	CreateBudget(ctx context.Context, in CreateBudgetInput) (BudgetResponse, error)
	GetBudget(ctx context.Context, id uuid.UUID) (BudgetResponse, error)
	UpdateBudget(ctx context.Context, in UpdateBudgetInput) (BudgetResponse, error)
	AddBudgetLines(ctx context.Context, in AddBudgetLinesInput) (BudgetResponse, error)
	RemoveBudgetLine(ctx context.Context, in RemoveBudgetLineInput) (BudgetResponse, error)
	TransitionStatus(ctx context.Context, in TransitionBudgetInput) (BudgetResponse, error)
}

type budgetSSOTService struct {
	lifecycle
	budgets   repository.BudgetRepository
	partners  repository.PartnerRepository
	templates repository.TemplateRepository
}

func NewBudgetSSOTService(
	txManager repository.TransactionManager,
	budgets repository.BudgetRepository,
	partners repository.PartnerRepository,
	templates repository.TemplateRepository,
	ledger repository.IdempotencyRepository,
	audit AuditRecorder,
	logger *zap.Logger,
	opts ...Option,
) BudgetSSOTService {
	return &budgetSSOTService{
		lifecycle: newLifecycle(txManager, ledger, audit, logger.Named("budget_ssot"), opts),
		budgets:   budgets,
		partners:  partners,
		templates: templates,
	}
}

// --- Validation helpers ---

func validateLineInputs(lines []BudgetLineInput) error {
	for i, l := range lines {
		if l.Quantity.IsNegative() {
			return apperr.Validation("lines[%d]: quantity must not be negative", i)
		}
		if l.UnitCost.IsNegative() {
			return apperr.Validation("lines[%d]: unit_cost must not be negative", i)
		}
	}
	return nil
}

func validateRules(rules json.RawMessage) error {
	if len(rules) > 0 && !json.Valid(rules) {
		return apperr.Validation("rules must be valid JSON")
	}
	return nil
}

// lineCurrency resolves the currency of an incoming line. Lines are summed
// into the ceiling, so they must use the budget currency.
func lineCurrency(i int, l BudgetLineInput, budgetCurrency string) (string, error) {
	if l.Currency == "" {
		return budgetCurrency, nil
	}
	if l.Currency != budgetCurrency {
		return "", apperr.Validation("lines[%d]: currency %s does not match budget currency %s", i, l.Currency, budgetCurrency)
	}
	return l.Currency, nil
}

func newBudgetLine(budgetID uuid.UUID, l BudgetLineInput, currency string, at time.Time) model.BudgetLine {
	return model.BudgetLine{
		BudgetID:       budgetID,
		TemplateLineID: l.TemplateLineID,
		CategoryID:     l.CategoryID,
		Description:    l.Description,
		Unit:           l.Unit,
		Quantity:       l.Quantity,
		UnitCost:       l.UnitCost,
		Currency:       currency,
		Period:         l.Period,
		Status:         model.BudgetLineStatusActive,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// lineTime spaces the timestamps of lines inserted together so that
// ORDER BY created_at keeps their input order.
func lineTime(at time.Time, i int) time.Time {
	return at.Add(time.Duration(i) * time.Microsecond)
}

// --- Operations ---

func (s *budgetSSOTService) CreateBudget(ctx context.Context, in CreateBudgetInput) (BudgetResponse, error) {
	if in.ProjectID == uuid.Nil {
		return BudgetResponse{}, apperr.Validation("project_id is required")
	}
	if in.PartnerID == uuid.Nil {
		return BudgetResponse{}, apperr.Validation("partner_id is required")
	}
	if err := validateRules(in.Rules); err != nil {
		return BudgetResponse{}, err
	}
	if err := validateLineInputs(in.Lines); err != nil {
		return BudgetResponse{}, err
	}
	for i, l := range in.Lines {
		if l.ID != nil {
			return BudgetResponse{}, apperr.Validation("lines[%d]: id must be empty when creating a budget", i)
		}
	}

	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionBudgetCreated,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (BudgetResponse, error) {
		partner, err := s.partners.FindByID(txCtx, in.PartnerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BudgetResponse{}, apperr.PreconditionFailed("partner %s does not exist", in.PartnerID)
		}
		if err != nil {
			return BudgetResponse{}, err
		}
		if !partner.IsActive {
			return BudgetResponse{}, apperr.PreconditionFailed("partner %s is not active", in.PartnerID)
		}

		currency := in.Currency
		rules := in.Rules
		var tpl *model.Template
		if in.TemplateID != nil {
			tpl, err = s.templates.FindByID(txCtx, *in.TemplateID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return BudgetResponse{}, apperr.PreconditionFailed("template %s does not exist", *in.TemplateID)
			}
			if err != nil {
				return BudgetResponse{}, err
			}
			if tpl.Kind != model.TemplateKindBudget {
				return BudgetResponse{}, apperr.PreconditionFailed("template %s is a %s template, not %s", tpl.ID, tpl.Kind, model.TemplateKindBudget)
			}
			if currency == "" {
				currency = tpl.Currency
			}
			if len(rules) == 0 {
				rules = json.RawMessage(tpl.Rules)
			}
		}
		if currency == "" {
			return BudgetResponse{}, apperr.Validation("currency is required")
		}
		if len(rules) == 0 {
			rules = json.RawMessage("{}")
		}

		var lines []model.BudgetLine
		if tpl != nil {
			for _, tl := range tpl.Lines {
				tl := tl // per-iteration copy; &tl.ID is retained below
				lines = append(lines, model.BudgetLine{
					TemplateLineID: &tl.ID,
					CategoryID:     tl.CategoryID,
					Description:    tl.Description,
					Unit:           tl.Unit,
					Quantity:       tl.DefaultQuantity,
					UnitCost:       tl.DefaultUnitCost,
					Currency:       currency,
					Period:         tl.Period,
					Status:         model.BudgetLineStatusActive,
				})
			}
		}
		for i, l := range in.Lines {
			lc, err := lineCurrency(i, l, currency)
			if err != nil {
				return BudgetResponse{}, err
			}
			lines = append(lines, newBudgetLine(uuid.Nil, l, lc, at))
		}

		budget := &model.Budget{
			ProjectID:    in.ProjectID,
			PartnerID:    in.PartnerID,
			TemplateID:   in.TemplateID,
			Currency:     currency,
			CeilingTotal: model.SumLineCosts(lines),
			Status:       model.BudgetStatusDraft,
			Rules:        datatypes.JSON(rules),
			CreatedBy:    actorPtr(in.ActorID),
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		if err := s.budgets.Create(txCtx, budget); err != nil {
			return BudgetResponse{}, err
		}
		for i := range lines {
			lines[i].BudgetID = budget.ID
			lines[i].CreatedAt = lineTime(at, i)
			lines[i].UpdatedAt = at
		}
		if err := s.budgets.CreateLines(txCtx, lines); err != nil {
			return BudgetResponse{}, err
		}

		after, err := s.budgets.FindByID(txCtx, budget.ID)
		if err != nil {
			return BudgetResponse{}, err
		}
		resp := toBudgetResponse(*after)
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    in.ActorID,
			Action:     model.ActionBudgetCreated,
			EntityType: model.EntityBudget,
			EntityID:   budget.ID.String(),
			After:      resp,
			Details:    map[string]any{"line_count": len(lines), "template_id": in.TemplateID},
			At:         at,
		})
		return resp, err
	})
	if err != nil {
		return BudgetResponse{}, err
	}
	if !replayed {
		s.publishBudget(ctx, resp, model.ActionBudgetCreated, in.ActorID, at)
	}
	return resp, nil
}

func (s *budgetSSOTService) GetBudget(ctx context.Context, id uuid.UUID) (BudgetResponse, error) {
	budget, err := s.budgets.FindByID(ctx, id)
	if err != nil {
		return BudgetResponse{}, notFound(err, "budget", id)
	}
	return toBudgetResponse(*budget), nil
}

// UpdateBudget edits budget-level fields while the budget is still a draft
// or has been sent back.
func (s *budgetSSOTService) UpdateBudget(ctx context.Context, in UpdateBudgetInput) (BudgetResponse, error) {
	if in.Currency == nil && len(in.Rules) == 0 {
		return BudgetResponse{}, apperr.Validation("nothing to update")
	}
	if in.Currency != nil && *in.Currency == "" {
		return BudgetResponse{}, apperr.Validation("currency cannot be empty")
	}
	if err := validateRules(in.Rules); err != nil {
		return BudgetResponse{}, err
	}

	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionBudgetUpdated,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (BudgetResponse, error) {
		budget, err := s.loadLocked(txCtx, in.BudgetID)
		if err != nil {
			return BudgetResponse{}, err
		}
		switch budget.Status {
		case model.BudgetStatusDraft, model.BudgetStatusRejected:
		case model.BudgetStatusLocked:
			return BudgetResponse{}, apperr.Locked("budget %s is locked", budget.ID)
		default:
			return BudgetResponse{}, apperr.New(apperr.KindInvalidTransition, "budget in status %s cannot be edited", budget.Status)
		}
		before := toBudgetResponse(*budget)

		upd := model.BudgetUpdate{Currency: in.Currency}
		changed := []string{}
		if in.Currency != nil {
			for _, l := range budget.Lines {
				if l.Currency != *in.Currency {
					return BudgetResponse{}, apperr.Validation("budget lines are priced in %s", l.Currency)
				}
			}
			changed = append(changed, "currency")
		}
		if len(in.Rules) > 0 {
			rules := datatypes.JSON(in.Rules)
			upd.Rules = &rules
			changed = append(changed, "rules")
		}
		if err := s.budgets.Update(txCtx, budget.ID, upd, at); err != nil {
			return BudgetResponse{}, notFound(err, "budget", budget.ID)
		}

		after, err := s.budgets.FindByID(txCtx, budget.ID)
		if err != nil {
			return BudgetResponse{}, err
		}
		resp := toBudgetResponse(*after)
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    in.ActorID,
			Action:     model.ActionBudgetUpdated,
			EntityType: model.EntityBudget,
			EntityID:   budget.ID.String(),
			Before:     before,
			After:      resp,
			Details:    map[string]any{"fields": changed},
			At:         at,
		})
		return resp, err
	})
	if err != nil {
		return BudgetResponse{}, err
	}
	if !replayed {
		s.publishBudget(ctx, resp, model.ActionBudgetUpdated, in.ActorID, at)
	}
	return resp, nil
}

// AddBudgetLines inserts new lines, replaces resent ones and recomputes the
// ceiling over the complete line set.
func (s *budgetSSOTService) AddBudgetLines(ctx context.Context, in AddBudgetLinesInput) (BudgetResponse, error) {
	if len(in.Lines) == 0 {
		return BudgetResponse{}, apperr.Validation("at least one line is required")
	}
	if err := validateLineInputs(in.Lines); err != nil {
		return BudgetResponse{}, err
	}

	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionBudgetLinesAdded,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (BudgetResponse, error) {
		budget, err := s.loadLocked(txCtx, in.BudgetID)
		if err != nil {
			return BudgetResponse{}, err
		}
		if budget.Status == model.BudgetStatusLocked {
			return BudgetResponse{}, apperr.Locked("budget %s is locked, its lines cannot change", budget.ID)
		}
		before := toBudgetResponse(*budget)

		existing := make(map[uuid.UUID]model.BudgetLine, len(budget.Lines))
		for _, l := range budget.Lines {
			existing[l.ID] = l
		}

		var inserts []model.BudgetLine
		updated := 0
		for i, l := range in.Lines {
			currency, err := lineCurrency(i, l, budget.Currency)
			if err != nil {
				return BudgetResponse{}, err
			}
			if l.ID == nil {
				inserts = append(inserts, newBudgetLine(budget.ID, l, currency, lineTime(at, len(inserts))))
				continue
			}
			cur, ok := existing[*l.ID]
			if !ok {
				return BudgetResponse{}, apperr.NotFound("budget line %s not found on budget %s", *l.ID, budget.ID)
			}
			cur.TemplateLineID = l.TemplateLineID
			cur.CategoryID = l.CategoryID
			cur.Description = l.Description
			cur.Unit = l.Unit
			cur.Quantity = l.Quantity
			cur.UnitCost = l.UnitCost
			cur.Currency = currency
			cur.Period = l.Period
			cur.UpdatedAt = at
			if err := s.budgets.UpdateLine(txCtx, &cur); err != nil {
				return BudgetResponse{}, err
			}
			updated++
		}
		if err := s.budgets.CreateLines(txCtx, inserts); err != nil {
			return BudgetResponse{}, err
		}

		total, err := s.recomputeCeiling(txCtx, budget.ID, at)
		if err != nil {
			return BudgetResponse{}, err
		}

		after, err := s.budgets.FindByID(txCtx, budget.ID)
		if err != nil {
			return BudgetResponse{}, err
		}
		resp := toBudgetResponse(*after)
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    in.ActorID,
			Action:     model.ActionBudgetLinesAdded,
			EntityType: model.EntityBudget,
			EntityID:   budget.ID.String(),
			Before:     before,
			After:      resp,
			Details: map[string]any{
				"inserted":      len(inserts),
				"updated":       updated,
				"ceiling_total": total.String(),
			},
			At: at,
		})
		return resp, err
	})
	if err != nil {
		return BudgetResponse{}, err
	}
	if !replayed {
		s.publishBudget(ctx, resp, model.ActionBudgetLinesAdded, in.ActorID, at)
	}
	return resp, nil
}

func (s *budgetSSOTService) RemoveBudgetLine(ctx context.Context, in RemoveBudgetLineInput) (BudgetResponse, error) {
	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionBudgetLineRemoved,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (BudgetResponse, error) {
		budget, err := s.loadLocked(txCtx, in.BudgetID)
		if err != nil {
			return BudgetResponse{}, err
		}
		if budget.Status == model.BudgetStatusLocked {
			return BudgetResponse{}, apperr.Locked("budget %s is locked, its lines cannot change", budget.ID)
		}
		before := toBudgetResponse(*budget)

		if err := s.budgets.DeleteLine(txCtx, budget.ID, in.LineID); err != nil {
			return BudgetResponse{}, notFound(err, "budget line", in.LineID)
		}
		total, err := s.recomputeCeiling(txCtx, budget.ID, at)
		if err != nil {
			return BudgetResponse{}, err
		}

		after, err := s.budgets.FindByID(txCtx, budget.ID)
		if err != nil {
			return BudgetResponse{}, err
		}
		resp := toBudgetResponse(*after)
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    in.ActorID,
			Action:     model.ActionBudgetLineRemoved,
			EntityType: model.EntityBudget,
			EntityID:   budget.ID.String(),
			Before:     before,
			After:      resp,
			Details:    map[string]any{"line_id": in.LineID, "ceiling_total": total.String()},
			At:         at,
		})
		return resp, err
	})
	if err != nil {
		return BudgetResponse{}, err
	}
	if !replayed {
		s.publishBudget(ctx, resp, model.ActionBudgetLineRemoved, in.ActorID, at)
	}
	return resp, nil
}

// TransitionStatus moves a budget along its state machine.
func (s *budgetSSOTService) TransitionStatus(ctx context.Context, in TransitionBudgetInput) (BudgetResponse, error) {
	if in.NextStatus == "" {
		return BudgetResponse{}, apperr.Validation("next_status is required")
	}

	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionBudgetStatusChanged,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (BudgetResponse, error) {
		budget, err := s.budgets.FindByIDForUpdate(txCtx, in.BudgetID)
		if err != nil {
			return BudgetResponse{}, notFound(err, "budget", in.BudgetID)
		}
		if err := s.changeBudgetStatus(txCtx, s.budgets, budget, in.NextStatus, in.ActorID, at, ""); err != nil {
			return BudgetResponse{}, err
		}
		after, err := s.budgets.FindByID(txCtx, budget.ID)
		if err != nil {
			return BudgetResponse{}, err
		}
		return toBudgetResponse(*after), nil
	})
	if err != nil {
		return BudgetResponse{}, err
	}
	if !replayed {
		s.publishBudget(ctx, resp, model.ActionBudgetStatusChanged, in.ActorID, at)
	}
	return resp, nil
}

// --- Helpers ---

// loadLocked locks the budget row and returns it with its lines.
func (s *budgetSSOTService) loadLocked(ctx context.Context, id uuid.UUID) (*model.Budget, error) {
	if _, err := s.budgets.FindByIDForUpdate(ctx, id); err != nil {
		return nil, notFound(err, "budget", id)
	}
	budget, err := s.budgets.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "budget", id)
	}
	return budget, nil
}

// recomputeCeiling sums the budget's current lines and stores the result.
func (s *budgetSSOTService) recomputeCeiling(ctx context.Context, budgetID uuid.UUID, at time.Time) (decimal.Decimal, error) {
	lines, err := s.budgets.ListLines(ctx, budgetID)
	if err != nil {
		return decimal.Zero, err
	}
	total := model.SumLineCosts(lines)
	if err := s.budgets.SetCeilingTotal(ctx, budgetID, total, at); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *budgetSSOTService) publishBudget(ctx context.Context, b BudgetResponse, action string, actorID uuid.UUID, at time.Time) {
	s.publish(ctx, events.LifecycleEvent{
		EntityType: model.EntityBudget,
		EntityID:   b.ID,
		Action:     action,
		Status:     b.Status,
		ActorID:    actorPtr(actorID),
		At:         at,
	})
}

func toBudgetResponse(b model.Budget) BudgetResponse {
	lines := make([]BudgetLineResponse, 0, len(b.Lines))
	for _, l := range b.Lines {
		lines = append(lines, BudgetLineResponse{
			ID:             l.ID,
			BudgetID:       l.BudgetID,
			TemplateLineID: l.TemplateLineID,
			CategoryID:     l.CategoryID,
			Description:    l.Description,
			Unit:           l.Unit,
			Quantity:       l.Quantity,
			UnitCost:       l.UnitCost,
			Cost:           l.Cost(),
			Currency:       l.Currency,
			Period:         l.Period,
			Status:         l.Status,
			CreatedAt:      l.CreatedAt,
			UpdatedAt:      l.UpdatedAt,
		})
	}
	rules := json.RawMessage(b.Rules)
	if len(rules) == 0 {
		rules = json.RawMessage("{}")
	}
	return BudgetResponse{
		ID:           b.ID,
		ProjectID:    b.ProjectID,
		PartnerID:    b.PartnerID,
		TemplateID:   b.TemplateID,
		Currency:     b.Currency,
		CeilingTotal: b.CeilingTotal,
		Status:       b.Status,
		Rules:        rules,
		CreatedBy:    b.CreatedBy,
		Lines:        lines,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}
