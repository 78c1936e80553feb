package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"
	"grantsbackend/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// --- DTOs ---

// AuditEntry is one state change to record. Before, After and Details are
// marshalled to JSON; nil values are stored as NULL.
type AuditEntry struct {
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
	Details    any
	At         time.Time
}

type AuditFilter struct {
	EntityType string
	Action     string
	Page       int
	Limit      int
}

type AuditLogResponse struct {
	ID          uuid.UUID       `json:"id"`
	ActorID     *uuid.UUID      `json:"actor_id"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	BeforeState json.RawMessage `json:"before_state,omitempty"`
	AfterState  json.RawMessage `json:"after_state,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	IPAddress   *string         `json:"ip_address"`
	UserAgent   *string         `json:"user_agent"`
	CreatedAt   time.Time       `json:"created_at"`
}

// --- Interface ---

// AuditRecorder writes audit rows on the transaction carried by ctx. An error
// must abort the surrounding unit of work.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type AuditService interface {
	AuditRecorder
	GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLogResponse, int64, error)
	GetEntityTrail(ctx context.Context, entityType, entityID string) ([]AuditLogResponse, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// --- Implementation ---

func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	before, err := jsonPtr(entry.Before)
	if err != nil {
		return fmt.Errorf("encode audit before state: %w", err)
	}
	after, err := jsonPtr(entry.After)
	if err != nil {
		return fmt.Errorf("encode audit after state: %w", err)
	}
	details, err := jsonPtr(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	log := &model.AuditLog{
		ActorID:     actorPtr(entry.ActorID),
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		BeforeState: before,
		AfterState:  after,
		Details:     details,
		CreatedAt:   at,
	}
	if meta, ok := RequestMetaFrom(ctx); ok {
		if meta.IPAddress != "" {
			ip := meta.IPAddress
			log.IPAddress = &ip
		}
		if meta.UserAgent != "" {
			ua := meta.UserAgent
			log.UserAgent = &ua
		}
	}

	if err := s.repo.Log(ctx, log); err != nil {
		return fmt.Errorf("failed to record audit %s: %w", entry.Action, err)
	}
	return nil
}

// GetAuditLogs returns one page of audit rows, newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLogResponse, int64, error) {
	params := pagination.New(filter.Page, filter.Limit)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		EntityType: filter.EntityType,
		Action:     filter.Action,
	}, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, err
	}

	return toAuditResponses(logs), total, nil
}

// GetEntityTrail returns every audit row of one entity, oldest first.
func (s *auditService) GetEntityTrail(ctx context.Context, entityType, entityID string) ([]AuditLogResponse, error) {
	logs, err := s.repo.ListByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return toAuditResponses(logs), nil
}

func toAuditResponses(logs []model.AuditLog) []AuditLogResponse {
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, AuditLogResponse{
			ID:          l.ID,
			ActorID:     l.ActorID,
			Action:      l.Action,
			EntityType:  l.EntityType,
			EntityID:    l.EntityID,
			BeforeState: rawJSON(l.BeforeState),
			AfterState:  rawJSON(l.AfterState),
			Details:     rawJSON(l.Details),
			IPAddress:   l.IPAddress,
			UserAgent:   l.UserAgent,
			CreatedAt:   l.CreatedAt,
		})
	}
	return res
}

func rawJSON(j *datatypes.JSON) json.RawMessage {
	if j == nil {
		return nil
	}
	return json.RawMessage(*j)
}
