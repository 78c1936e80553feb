package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/events"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BudgetLockReasonContractActivated is recorded when activating a contract
// locks its budget.
const BudgetLockReasonContractActivated = "CONTRACT_ACTIVATED"

// --- DTOs ---

type CreateContractInput struct {
	ProjectID      uuid.UUID `json:"project_id" binding:"required"`
	PartnerID      uuid.UUID `json:"partner_id" binding:"required"`
	BudgetID       uuid.UUID `json:"budget_id" binding:"required"`
	TemplateID     uuid.UUID `json:"template_id" binding:"required"`
	Number         string    `json:"number,omitempty"` // generated when empty
	Title          string    `json:"title" binding:"required"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	RequestHash    string    `json:"request_hash,omitempty"`
	ActorID        uuid.UUID `json:"-"`
}

type UpdateContractInput struct {
	ContractID     uuid.UUID `json:"contract_id"`
	Title          *string   `json:"title,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	RequestHash    string    `json:"request_hash,omitempty"`
	ActorID        uuid.UUID `json:"-"`
}

// ContractActionInput identifies the contract and caller of a lifecycle step.
type ContractActionInput struct {
	ContractID     uuid.UUID `json:"contract_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	RequestHash    string    `json:"request_hash,omitempty"`
	ActorID        uuid.UUID `json:"-"`
}

type GenerateContractInput struct {
	ContractActionInput
	GeneratedDocxKey string `json:"generated_docx_key"`
}

type SubmitContractInput struct {
	ContractActionInput
	Provider string `json:"provider"`
	Ref      string `json:"ref"`
}

type ApproveContractInput struct {
	ContractActionInput
	ApprovedDocxKey string `json:"approved_docx_key,omitempty"`
}

type SendForSignInput struct {
	ContractActionInput
	EnvelopeID string `json:"envelope_id"`
}

type MarkSignedInput struct {
	ContractActionInput
	SignedPdfKey string `json:"signed_pdf_key"`
}

type CancelContractInput struct {
	ContractActionInput
	Reason string `json:"reason"`
}

type ContractResponse struct {
	ID               uuid.UUID      `json:"id"`
	ProjectID        uuid.UUID      `json:"project_id"`
	PartnerID        uuid.UUID      `json:"partner_id"`
	BudgetID         uuid.UUID      `json:"budget_id"`
	TemplateID       uuid.UUID      `json:"template_id"`
	Number           string         `json:"number"`
	Title            string         `json:"title"`
	State            string         `json:"state"`
	GeneratedDocxKey *string        `json:"generated_docx_key"`
	ApprovedDocxKey  *string        `json:"approved_docx_key"`
	SignedPdfKey     *string        `json:"signed_pdf_key"`
	Substatus        map[string]any `json:"substatus"`
	CreatedBy        *uuid.UUID     `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// --- Interface ---

// ContractSSOTService owns every write to contracts. Each lifecycle step is
// its own operation because each carries different side effects.
type ContractSSOTService interface {
	CreateContract(ctx context.Context, in CreateContractInput) (ContractResponse, error)
	GetContract(ctx context.Context, id uuid.UUID) (ContractResponse, error)
	UpdateContract(ctx context.Context, in UpdateContractInput) (ContractResponse, error)

	Generate(ctx context.Context, in GenerateContractInput) (ContractResponse, error)
	SubmitForApproval(ctx context.Context, in SubmitContractInput) (ContractResponse, error)
	MarkApproved(ctx context.Context, in ApproveContractInput) (ContractResponse, error)
	SendForSign(ctx context.Context, in SendForSignInput) (ContractResponse, error)
	MarkSigned(ctx context.Context, in MarkSignedInput) (ContractResponse, error)
	Activate(ctx context.Context, in ContractActionInput) (ContractResponse, error)
	Cancel(ctx context.Context, in CancelContractInput) (ContractResponse, error)
}

type contractSSOTService struct {
	lifecycle
	contracts repository.ContractRepository
	budgets   repository.BudgetRepository
	templates repository.TemplateRepository
}

func NewContractSSOTService(
	txManager repository.TransactionManager,
	contracts repository.ContractRepository,
	budgets repository.BudgetRepository,
	templates repository.TemplateRepository,
	ledger repository.IdempotencyRepository,
	audit AuditRecorder,
	logger *zap.Logger,
	opts ...Option,
) ContractSSOTService {
	return &contractSSOTService{
		lifecycle: newLifecycle(txManager, ledger, audit, logger.Named("contract_ssot"), opts),
		contracts: contracts,
		budgets:   budgets,
		templates: templates,
	}
}

// --- Create / read / edit ---

func (s *contractSSOTService) CreateContract(ctx context.Context, in CreateContractInput) (ContractResponse, error) {
	switch {
	case in.ProjectID == uuid.Nil:
		return ContractResponse{}, apperr.Validation("project_id is required")
	case in.PartnerID == uuid.Nil:
		return ContractResponse{}, apperr.Validation("partner_id is required")
	case in.BudgetID == uuid.Nil:
		return ContractResponse{}, apperr.Validation("budget_id is required")
	case in.TemplateID == uuid.Nil:
		return ContractResponse{}, apperr.Validation("template_id is required")
	case strings.TrimSpace(in.Title) == "":
		return ContractResponse{}, apperr.Validation("title is required")
	}

	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionContractCreated,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (ContractResponse, error) {
		// Cross-entity preconditions are all checked before the first write.
		budget, err := s.budgets.FindByID(txCtx, in.BudgetID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ContractResponse{}, apperr.PreconditionFailed("budget %s does not exist", in.BudgetID)
		}
		if err != nil {
			return ContractResponse{}, err
		}
		if budget.PartnerID != in.PartnerID {
			return ContractResponse{}, apperr.PreconditionFailed("budget %s belongs to another partner", budget.ID)
		}
		if budget.ProjectID != in.ProjectID {
			return ContractResponse{}, apperr.PreconditionFailed("budget %s belongs to another project", budget.ID)
		}
		if budget.Status != model.BudgetStatusApproved && budget.Status != model.BudgetStatusLocked {
			return ContractResponse{}, apperr.PreconditionFailed("budget %s is %s, it must be %s or %s",
				budget.ID, budget.Status, model.BudgetStatusApproved, model.BudgetStatusLocked)
		}
		tpl, err := s.templates.FindByID(txCtx, in.TemplateID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ContractResponse{}, apperr.PreconditionFailed("template %s does not exist", in.TemplateID)
		}
		if err != nil {
			return ContractResponse{}, err
		}
		if tpl.Kind != model.TemplateKindContract {
			return ContractResponse{}, apperr.PreconditionFailed("template %s is a %s template, not %s", tpl.ID, tpl.Kind, model.TemplateKindContract)
		}

		number := strings.TrimSpace(in.Number)
		if number == "" {
			if number, err = s.contracts.NextNumber(txCtx, at); err != nil {
				return ContractResponse{}, err
			}
		}

		contract := &model.Contract{
			ProjectID:  in.ProjectID,
			PartnerID:  in.PartnerID,
			BudgetID:   in.BudgetID,
			TemplateID: in.TemplateID,
			Number:     number,
			Title:      strings.TrimSpace(in.Title),
			State:      model.ContractStateDraft,
			Substatus:  datatypes.JSONMap{},
			CreatedBy:  actorPtr(in.ActorID),
			CreatedAt:  at,
			UpdatedAt:  at,
		}
		if err := s.contracts.Create(txCtx, contract); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ContractResponse{}, apperr.PreconditionFailed("contract number %s is already taken", number)
			}
			return ContractResponse{}, err
		}

		after, err := s.contracts.FindByID(txCtx, contract.ID)
		if err != nil {
			return ContractResponse{}, err
		}
		resp := toContractResponse(*after)
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    in.ActorID,
			Action:     model.ActionContractCreated,
			EntityType: model.EntityContract,
			EntityID:   contract.ID.String(),
			After:      resp,
			Details:    map[string]any{"budget_id": in.BudgetID, "number": number},
			At:         at,
		})
		return resp, err
	})
	if err != nil {
		return ContractResponse{}, err
	}
	if !replayed {
		s.publishContract(ctx, resp, model.ActionContractCreated, in.ActorID, at)
	}
	return resp, nil
}

func (s *contractSSOTService) GetContract(ctx context.Context, id uuid.UUID) (ContractResponse, error) {
	contract, err := s.contracts.FindByID(ctx, id)
	if err != nil {
		return ContractResponse{}, notFound(err, "contract", id)
	}
	return toContractResponse(*contract), nil
}

// UpdateContract edits the title until the contract is signed.
func (s *contractSSOTService) UpdateContract(ctx context.Context, in UpdateContractInput) (ContractResponse, error) {
	if in.Title == nil {
		return ContractResponse{}, apperr.Validation("nothing to update")
	}
	title := strings.TrimSpace(*in.Title)
	if title == "" {
		return ContractResponse{}, apperr.Validation("title cannot be empty")
	}

	at := s.now()
	call := idempotentCall{
		Key:         in.IdempotencyKey,
		ActionKey:   model.ActionContractUpdated,
		ActorID:     in.ActorID,
		RequestHash: in.RequestHash,
		Request:     in,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (ContractResponse, error) {
		contract, err := s.contracts.FindByIDForUpdate(txCtx, in.ContractID)
		if err != nil {
			return ContractResponse{}, notFound(err, "contract", in.ContractID)
		}
		if contractSigned(contract.State) {
			return ContractResponse{}, apperr.Locked("contract %s is %s and can no longer be edited", contract.ID, contract.State)
		}
		if contract.State == model.ContractStateCancelled {
			return ContractResponse{}, apperr.New(apperr.KindInvalidTransition, "contract %s is cancelled", contract.ID)
		}
		before := toContractResponse(*contract)

		if err := s.contracts.Update(txCtx, contract.ID, model.ContractUpdate{Title: &title}, at); err != nil {
			return ContractResponse{}, notFound(err, "contract", contract.ID)
		}
		after, err := s.contracts.FindByID(txCtx, contract.ID)
		if err != nil {
			return ContractResponse{}, err
		}
		resp := toContractResponse(*after)
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    in.ActorID,
			Action:     model.ActionContractUpdated,
			EntityType: model.EntityContract,
			EntityID:   contract.ID.String(),
			Before:     before,
			After:      resp,
			Details:    map[string]any{"fields": []string{"title"}},
			At:         at,
		})
		return resp, err
	})
	if err != nil {
		return ContractResponse{}, err
	}
	if !replayed {
		s.publishContract(ctx, resp, model.ActionContractUpdated, in.ActorID, at)
	}
	return resp, nil
}

// --- Lifecycle steps ---

func (s *contractSSOTService) Generate(ctx context.Context, in GenerateContractInput) (ContractResponse, error) {
	key := strings.TrimSpace(in.GeneratedDocxKey)
	if key == "" {
		return ContractResponse{}, apperr.Validation("generated_docx_key is required to generate a contract")
	}
	return s.runStep(ctx, stepGenerate, in.ContractActionInput, in, func(_ context.Context, c *model.Contract, _ time.Time) (model.ContractUpdate, map[string]any, error) {
		return model.ContractUpdate{GeneratedDocxKey: &key}, map[string]any{"generated_docx_key": key}, nil
	})
}

func (s *contractSSOTService) SubmitForApproval(ctx context.Context, in SubmitContractInput) (ContractResponse, error) {
	if strings.TrimSpace(in.Provider) == "" {
		return ContractResponse{}, apperr.Validation("provider is required")
	}
	return s.runStep(ctx, stepSubmitForApproval, in.ContractActionInput, in, func(_ context.Context, c *model.Contract, at time.Time) (model.ContractUpdate, map[string]any, error) {
		approval := map[string]any{"provider": in.Provider, "ref": in.Ref, "submitted_at": at}
		return model.ContractUpdate{Substatus: withSubstatus(c.Substatus, "approval", approval)}, approval, nil
	})
}

func (s *contractSSOTService) MarkApproved(ctx context.Context, in ApproveContractInput) (ContractResponse, error) {
	return s.runStep(ctx, stepMarkApproved, in.ContractActionInput, in, func(_ context.Context, c *model.Contract, _ time.Time) (model.ContractUpdate, map[string]any, error) {
		upd := model.ContractUpdate{}
		details := map[string]any{}
		if key := strings.TrimSpace(in.ApprovedDocxKey); key != "" {
			upd.ApprovedDocxKey = &key
			details["approved_docx_key"] = key
		}
		return upd, details, nil
	})
}

func (s *contractSSOTService) SendForSign(ctx context.Context, in SendForSignInput) (ContractResponse, error) {
	envelope := strings.TrimSpace(in.EnvelopeID)
	if envelope == "" {
		return ContractResponse{}, apperr.Validation("envelope_id is required")
	}
	return s.runStep(ctx, stepSendForSign, in.ContractActionInput, in, func(_ context.Context, c *model.Contract, at time.Time) (model.ContractUpdate, map[string]any, error) {
		signing := map[string]any{"envelope_id": envelope, "sent_at": at}
		return model.ContractUpdate{Substatus: withSubstatus(c.Substatus, "signing", signing)}, signing, nil
	})
}

func (s *contractSSOTService) MarkSigned(ctx context.Context, in MarkSignedInput) (ContractResponse, error) {
	key := strings.TrimSpace(in.SignedPdfKey)
	if key == "" {
		return ContractResponse{}, apperr.Validation("signed_pdf_key is required")
	}
	return s.runStep(ctx, stepMarkSigned, in.ContractActionInput, in, func(_ context.Context, c *model.Contract, _ time.Time) (model.ContractUpdate, map[string]any, error) {
		return model.ContractUpdate{SignedPdfKey: &key}, map[string]any{"signed_pdf_key": key}, nil
	})
}

// Activate makes a signed contract active and locks its budget in the same
// transaction. An already locked budget is left as is.
func (s *contractSSOTService) Activate(ctx context.Context, in ContractActionInput) (ContractResponse, error) {
	return s.runStep(ctx, stepActivate, in, in, func(txCtx context.Context, c *model.Contract, at time.Time) (model.ContractUpdate, map[string]any, error) {
		budget, err := s.budgets.FindByIDForUpdate(txCtx, c.BudgetID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ContractUpdate{}, nil, apperr.PreconditionFailed("budget %s of contract %s does not exist", c.BudgetID, c.ID)
		}
		if err != nil {
			return model.ContractUpdate{}, nil, err
		}

		locked := false
		switch budget.Status {
		case model.BudgetStatusLocked:
		case model.BudgetStatusApproved:
			if err := s.changeBudgetStatus(txCtx, s.budgets, budget, model.BudgetStatusLocked, in.ActorID, at, BudgetLockReasonContractActivated); err != nil {
				return model.ContractUpdate{}, nil, err
			}
			locked = true
		default:
			return model.ContractUpdate{}, nil, apperr.PreconditionFailed("budget %s is %s and cannot be locked", budget.ID, budget.Status)
		}
		return model.ContractUpdate{}, map[string]any{"budget_id": budget.ID, "budget_locked": locked}, nil
	})
}

func (s *contractSSOTService) Cancel(ctx context.Context, in CancelContractInput) (ContractResponse, error) {
	return s.runStep(ctx, stepCancel, in.ContractActionInput, in, func(_ context.Context, c *model.Contract, at time.Time) (model.ContractUpdate, map[string]any, error) {
		cancellation := map[string]any{"reason": in.Reason, "previous_state": c.State, "cancelled_at": at}
		return model.ContractUpdate{Substatus: withSubstatus(c.Substatus, "cancellation", cancellation)}, cancellation, nil
	})
}

// stepFunc validates step-specific preconditions and returns the columns to
// write with the new state plus the audit details.
type stepFunc func(txCtx context.Context, c *model.Contract, at time.Time) (model.ContractUpdate, map[string]any, error)

// runStep is the shape shared by every lifecycle step: lock the row, require
// an exact state match, write the new state guarded on the old one, audit
// whole-entity snapshots.
func (s *contractSSOTService) runStep(ctx context.Context, step contractStep, act ContractActionInput, request any, apply stepFunc) (ContractResponse, error) {
	at := s.now()
	call := idempotentCall{
		Key:         act.IdempotencyKey,
		ActionKey:   step.action,
		ActorID:     act.ActorID,
		RequestHash: act.RequestHash,
		Request:     request,
		At:          at,
	}
	resp, replayed, err := execute(ctx, &s.lifecycle, call, func(txCtx context.Context) (ContractResponse, error) {
		contract, err := s.contracts.FindByIDForUpdate(txCtx, act.ContractID)
		if err != nil {
			return ContractResponse{}, notFound(err, "contract", act.ContractID)
		}
		if !step.allows(contract.State) {
			if step.to == model.ContractStateCancelled && contractSigned(contract.State) {
				return ContractResponse{}, apperr.Locked("contract %s is %s and can no longer be cancelled", contract.ID, contract.State)
			}
			return ContractResponse{}, apperr.InvalidTransition(contract.State, step.to)
		}
		before := toContractResponse(*contract)

		upd, details, err := apply(txCtx, contract, at)
		if err != nil {
			return ContractResponse{}, err
		}
		if err := s.contracts.TransitionState(txCtx, contract.ID, contract.State, step.to, upd, at); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return ContractResponse{}, apperr.InvalidTransition(contract.State, step.to)
			}
			return ContractResponse{}, err
		}

		after, err := s.contracts.FindByID(txCtx, contract.ID)
		if err != nil {
			return ContractResponse{}, err
		}
		resp := toContractResponse(*after)
		if details == nil {
			details = map[string]any{}
		}
		details["from"] = contract.State
		details["to"] = step.to
		err = s.audit.Record(txCtx, AuditEntry{
			ActorID:    act.ActorID,
			Action:     step.action,
			EntityType: model.EntityContract,
			EntityID:   contract.ID.String(),
			Before:     before,
			After:      resp,
			Details:    details,
			At:         at,
		})
		return resp, err
	})
	if err != nil {
		return ContractResponse{}, err
	}
	if !replayed {
		s.publishContract(ctx, resp, step.action, act.ActorID, at)
	}
	return resp, nil
}

// --- Helpers ---

// withSubstatus returns a copy of sub with key set to value.
func withSubstatus(sub datatypes.JSONMap, key string, value any) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(sub)+1)
	for k, v := range sub {
		out[k] = v
	}
	out[key] = value
	return out
}

func (s *contractSSOTService) publishContract(ctx context.Context, c ContractResponse, action string, actorID uuid.UUID, at time.Time) {
	s.publish(ctx, events.LifecycleEvent{
		EntityType: model.EntityContract,
		EntityID:   c.ID,
		Action:     action,
		Status:     c.State,
		ActorID:    actorPtr(actorID),
		At:         at,
	})
}

func toContractResponse(c model.Contract) ContractResponse {
	sub := map[string]any{}
	for k, v := range c.Substatus {
		sub[k] = v
	}
	return ContractResponse{
		ID:               c.ID,
		ProjectID:        c.ProjectID,
		PartnerID:        c.PartnerID,
		BudgetID:         c.BudgetID,
		TemplateID:       c.TemplateID,
		Number:           c.Number,
		Title:            c.Title,
		State:            c.State,
		GeneratedDocxKey: c.GeneratedDocxKey,
		ApprovedDocxKey:  c.ApprovedDocxKey,
		SignedPdfKey:     c.SignedPdfKey,
		Substatus:        sub,
		CreatedBy:        c.CreatedBy,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
