package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BudgetStatus enum constants
const (
	BudgetStatusDraft     = "DRAFT"
	BudgetStatusSubmitted = "SUBMITTED"
	BudgetStatusApproved  = "APPROVED"
	BudgetStatusRejected  = "REJECTED"
	BudgetStatusLocked    = "LOCKED"
)

const BudgetLineStatusActive = "ACTIVE"

// Budget is the authoritative record of a partner's budget for a project.
// CeilingTotal is derived from the line set and is only written by the
// lifecycle engine after a recompute.
type Budget struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"project_id"`
	PartnerID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"partner_id"`
	TemplateID   *uuid.UUID      `gorm:"type:uuid;index" json:"template_id"`
	Currency     string          `gorm:"type:varchar(10);not null" json:"currency"`
	CeilingTotal decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"ceiling_total"`
	Status       string          `gorm:"type:varchar(20);not null;index" json:"status"` // DRAFT, SUBMITTED, APPROVED, REJECTED, LOCKED
	Rules        datatypes.JSON  `gorm:"not null" json:"rules"`
	CreatedBy    *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	Lines        []BudgetLine    `gorm:"foreignKey:BudgetID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (b *Budget) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// BudgetLine is one costed row of a budget. It cannot outlive its budget.
type BudgetLine struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BudgetID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"budget_id"`
	TemplateLineID *uuid.UUID      `gorm:"type:uuid" json:"template_line_id"`
	CategoryID     *uuid.UUID      `gorm:"type:uuid;index" json:"category_id"`
	Description    string          `gorm:"type:text" json:"description"`
	Unit           string          `gorm:"type:varchar(30)" json:"unit"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_cost"`
	Currency       string          `gorm:"type:varchar(10);not null" json:"currency"`
	Period         string          `gorm:"type:varchar(30)" json:"period"`
	Status         string          `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (l *BudgetLine) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// Cost returns quantity × unit cost.
func (l BudgetLine) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// SumLineCosts is the ceiling of a budget whose complete line set is lines.
func SumLineCosts(lines []BudgetLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Cost())
	}
	return total
}

// BudgetUpdate lists the budget columns callers may change directly.
// Nil fields are left untouched.
type BudgetUpdate struct {
	Currency *string
	Rules    *datatypes.JSON
}

func (u BudgetUpdate) Columns() map[string]any {
	cols := map[string]any{}
	if u.Currency != nil {
		cols["currency"] = *u.Currency
	}
	if u.Rules != nil {
		cols["rules"] = *u.Rules
	}
	return cols
}
