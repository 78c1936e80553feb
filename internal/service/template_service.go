package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// --- DTOs ---

type TemplateLinePayload struct {
	CategoryID      *uuid.UUID      `json:"category_id"`
	Description     string          `json:"description"`
	Unit            string          `json:"unit"`
	DefaultQuantity decimal.Decimal `json:"default_quantity"`
	DefaultUnitCost decimal.Decimal `json:"default_unit_cost"`
	Period          string          `json:"period"`
}

type CreateTemplateRequest struct {
	Kind     string                `json:"kind" binding:"required"`
	Name     string                `json:"name" binding:"required"`
	Version  int                   `json:"version"`
	Currency string                `json:"currency"`
	Rules    json.RawMessage       `json:"rules"`
	Body     json.RawMessage       `json:"body"`
	Lines    []TemplateLinePayload `json:"lines"`
}

type TemplateLineResponse struct {
	ID              uuid.UUID       `json:"id"`
	CategoryID      *uuid.UUID      `json:"category_id"`
	Description     string          `json:"description"`
	Unit            string          `json:"unit"`
	DefaultQuantity decimal.Decimal `json:"default_quantity"`
	DefaultUnitCost decimal.Decimal `json:"default_unit_cost"`
	Period          string          `json:"period"`
	SortOrder       int             `json:"sort_order"`
}

type TemplateResponse struct {
	ID        uuid.UUID              `json:"id"`
	Kind      string                 `json:"kind"`
	Name      string                 `json:"name"`
	Version   int                    `json:"version"`
	Currency  string                 `json:"currency"`
	Rules     json.RawMessage        `json:"rules"`
	Body      json.RawMessage        `json:"body"`
	Lines     []TemplateLineResponse `json:"lines"`
	CreatedAt time.Time              `json:"created_at"`
}

// --- Interface ---

type TemplateService interface {
	CreateTemplate(ctx context.Context, req CreateTemplateRequest) (TemplateResponse, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (TemplateResponse, error)
}

type templateService struct {
	templateRepo repository.TemplateRepository
	txManager    repository.TransactionManager
}

func NewTemplateService(templateRepo repository.TemplateRepository, txManager repository.TransactionManager) TemplateService {
	return &templateService{templateRepo: templateRepo, txManager: txManager}
}

// --- Implementation ---

func (s *templateService) CreateTemplate(ctx context.Context, req CreateTemplateRequest) (TemplateResponse, error) {
	if req.Kind != model.TemplateKindBudget && req.Kind != model.TemplateKindContract {
		return TemplateResponse{}, apperr.Validation("kind must be one of: BUDGET, CONTRACT")
	}
	if strings.TrimSpace(req.Name) == "" {
		return TemplateResponse{}, apperr.Validation("name is required")
	}
	if len(req.Rules) > 0 && !json.Valid(req.Rules) {
		return TemplateResponse{}, apperr.Validation("rules must be valid JSON")
	}
	if len(req.Body) > 0 && !json.Valid(req.Body) {
		return TemplateResponse{}, apperr.Validation("body must be valid JSON")
	}
	if req.Kind == model.TemplateKindContract && len(req.Lines) > 0 {
		return TemplateResponse{}, apperr.Validation("contract templates have no lines")
	}

	version := req.Version
	if version < 1 {
		version = 1
	}
	tpl := &model.Template{
		Kind:     req.Kind,
		Name:     strings.TrimSpace(req.Name),
		Version:  version,
		Currency: req.Currency,
		Rules:    datatypes.JSON(req.Rules),
		Body:     datatypes.JSON(req.Body),
	}
	for i, l := range req.Lines {
		if l.DefaultQuantity.IsNegative() || l.DefaultUnitCost.IsNegative() {
			return TemplateResponse{}, apperr.Validation("lines[%d]: defaults must not be negative", i)
		}
		tpl.Lines = append(tpl.Lines, model.TemplateLine{
			CategoryID:      l.CategoryID,
			Description:     l.Description,
			Unit:            l.Unit,
			DefaultQuantity: l.DefaultQuantity,
			DefaultUnitCost: l.DefaultUnitCost,
			Period:          l.Period,
			SortOrder:       i,
		})
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return s.templateRepo.Create(txCtx, tpl)
	})
	if err != nil {
		return TemplateResponse{}, fmt.Errorf("failed to create template: %w", err)
	}
	return toTemplateResponse(*tpl), nil
}

func (s *templateService) GetTemplate(ctx context.Context, id uuid.UUID) (TemplateResponse, error) {
	tpl, err := s.templateRepo.FindByID(ctx, id)
	if err != nil {
		return TemplateResponse{}, notFound(err, "template", id)
	}
	return toTemplateResponse(*tpl), nil
}

func toTemplateResponse(t model.Template) TemplateResponse {
	lines := make([]TemplateLineResponse, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, TemplateLineResponse{
			ID:              l.ID,
			CategoryID:      l.CategoryID,
			Description:     l.Description,
			Unit:            l.Unit,
			DefaultQuantity: l.DefaultQuantity,
			DefaultUnitCost: l.DefaultUnitCost,
			Period:          l.Period,
			SortOrder:       l.SortOrder,
		})
	}
	return TemplateResponse{
		ID:        t.ID,
		Kind:      t.Kind,
		Name:      t.Name,
		Version:   t.Version,
		Currency:  t.Currency,
		Rules:     json.RawMessage(t.Rules),
		Body:      json.RawMessage(t.Body),
		Lines:     lines,
		CreatedAt: t.CreatedAt,
	}
}
