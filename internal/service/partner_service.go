package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
)

// --- Partner DTOs ---

type CreatePartnerRequest struct {
	Name          string `json:"name" binding:"required"`
	Type          string `json:"type" binding:"required"`
	TaxCode       string `json:"tax_code"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email"`
	IsActive      *bool  `json:"is_active"` // defaults to true
}

type PartnerResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	TaxCode       string    `json:"tax_code"`
	ContactPerson string    `json:"contact_person"`
	Email         string    `json:"email"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// --- Interface ---

type PartnerService interface {
	CreatePartner(ctx context.Context, req CreatePartnerRequest) (PartnerResponse, error)
	GetPartner(ctx context.Context, id uuid.UUID) (PartnerResponse, error)
}

// --- Implementation ---

type partnerService struct {
	partnerRepo repository.PartnerRepository
	txManager   repository.TransactionManager
}

func NewPartnerService(partnerRepo repository.PartnerRepository, txManager repository.TransactionManager) PartnerService {
	return &partnerService{partnerRepo: partnerRepo, txManager: txManager}
}

var validPartnerTypes = map[string]bool{
	model.PartnerTypeGrantee: true,
	model.PartnerTypeDonor:   true,
	model.PartnerTypeVendor:  true,
}

func (s *partnerService) CreatePartner(ctx context.Context, req CreatePartnerRequest) (PartnerResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return PartnerResponse{}, apperr.Validation("name is required")
	}
	if !validPartnerTypes[req.Type] {
		return PartnerResponse{}, apperr.Validation("type must be one of: GRANTEE, DONOR, VENDOR")
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return PartnerResponse{}, apperr.Validation("invalid email format")
		}
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	partner := &model.Partner{
		Name:          strings.TrimSpace(req.Name),
		Type:          req.Type,
		TaxCode:       req.TaxCode,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		IsActive:      active,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return s.partnerRepo.Create(txCtx, partner)
	})
	if err != nil {
		return PartnerResponse{}, fmt.Errorf("failed to create partner: %w", err)
	}

	return toPartnerResponse(*partner), nil
}

func (s *partnerService) GetPartner(ctx context.Context, id uuid.UUID) (PartnerResponse, error) {
	partner, err := s.partnerRepo.FindByID(ctx, id)
	if err != nil {
		return PartnerResponse{}, notFound(err, "partner", id)
	}
	return toPartnerResponse(*partner), nil
}

func toPartnerResponse(p model.Partner) PartnerResponse {
	return PartnerResponse{
		ID:            p.ID,
		Name:          p.Name,
		Type:          p.Type,
		TaxCode:       p.TaxCode,
		ContactPerson: p.ContactPerson,
		Email:         p.Email,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
