package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContractState enum constants
const (
	ContractStateDraft                = "DRAFT"
	ContractStateGenerated            = "GENERATED"
	ContractStateSubmittedForApproval = "SUBMITTED_FOR_APPROVAL"
	ContractStateApproved             = "APPROVED"
	ContractStateSentForSign          = "SENT_FOR_SIGN"
	ContractStateSigned               = "SIGNED"
	ContractStateActive               = "ACTIVE"
	ContractStateCancelled            = "CANCELLED"
)

// Contract is the authoritative record of an agreement funded by a budget.
// BudgetID is a reference; the budget must be APPROVED or LOCKED when the
// contract is created.
type Contract struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"project_id"`
	PartnerID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"partner_id"`
	BudgetID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"budget_id"`
	TemplateID       uuid.UUID         `gorm:"type:uuid;not null" json:"template_id"`
	Number           string            `gorm:"type:varchar(50);uniqueIndex;not null" json:"number"`
	Title            string            `gorm:"type:varchar(255);not null" json:"title"`
	State            string            `gorm:"type:varchar(30);not null;index" json:"state"`
	GeneratedDocxKey *string           `gorm:"type:text" json:"generated_docx_key"`
	ApprovedDocxKey  *string           `gorm:"type:text" json:"approved_docx_key"`
	SignedPdfKey     *string           `gorm:"type:text" json:"signed_pdf_key"`
	Substatus        datatypes.JSONMap `gorm:"not null" json:"substatus"`
	CreatedBy        *uuid.UUID        `gorm:"type:uuid" json:"created_by"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (c *Contract) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// ContractUpdate lists the contract columns a lifecycle step may write next to
// the state column. Nil fields are left untouched.
type ContractUpdate struct {
	Title            *string
	GeneratedDocxKey *string
	ApprovedDocxKey  *string
	SignedPdfKey     *string
	Substatus        datatypes.JSONMap
}

func (u ContractUpdate) Columns() map[string]any {
	cols := map[string]any{}
	if u.Title != nil {
		cols["title"] = *u.Title
	}
	if u.GeneratedDocxKey != nil {
		cols["generated_docx_key"] = *u.GeneratedDocxKey
	}
	if u.ApprovedDocxKey != nil {
		cols["approved_docx_key"] = *u.ApprovedDocxKey
	}
	if u.SignedPdfKey != nil {
		cols["signed_pdf_key"] = *u.SignedPdfKey
	}
	if u.Substatus != nil {
		cols["substatus"] = u.Substatus
	}
	return cols
}
