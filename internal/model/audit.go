package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entity types recorded on audit rows.
const (
	EntityBudget   = "BUDGET"
	EntityContract = "CONTRACT"
)

const (
	ActionBudgetCreated       = "BUDGET_SSOT_CREATED"
	ActionBudgetUpdated       = "BUDGET_SSOT_UPDATED"
	ActionBudgetLinesAdded    = "BUDGET_SSOT_LINES_ADDED"
	ActionBudgetLineRemoved   = "BUDGET_SSOT_LINE_REMOVED"
	ActionBudgetStatusChanged = "BUDGET_SSOT_STATUS_CHANGED"

	ActionContractCreated              = "CONTRACT_SSOT_CREATED"
	ActionContractUpdated              = "CONTRACT_SSOT_UPDATED"
	ActionContractGenerated            = "CONTRACT_SSOT_GENERATED"
	ActionContractSubmittedForApproval = "CONTRACT_SSOT_SUBMITTED_FOR_APPROVAL"
	ActionContractApproved             = "CONTRACT_SSOT_APPROVED"
	ActionContractSentForSign          = "CONTRACT_SSOT_SENT_FOR_SIGN"
	ActionContractSigned               = "CONTRACT_SSOT_SIGNED"
	ActionContractActivated            = "CONTRACT_SSOT_ACTIVATED"
	ActionContractCancelled            = "CONTRACT_SSOT_CANCELLED"
)

// ErrAuditImmutable is returned by the hooks that keep audit rows append-only.
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// AuditLog is the immutable record of one state-changing action.
type AuditLog struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID     *uuid.UUID      `gorm:"type:uuid;index" json:"actor_id"` // nil for system actions
	Action      string          `gorm:"type:varchar(64);not null;index" json:"action"`
	EntityType  string          `gorm:"type:varchar(32);not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID    string          `gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	BeforeState *datatypes.JSON `json:"before_state"`
	AfterState  *datatypes.JSON `json:"after_state"`
	Details     *datatypes.JSON `json:"details"` // operation payload
	IPAddress   *string         `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent   *string         `gorm:"type:text" json:"user_agent"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error { return ErrAuditImmutable }

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error { return ErrAuditImmutable }
