package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplateKind enum constants
const (
	TemplateKindBudget   = "BUDGET"
	TemplateKindContract = "CONTRACT"
)

// Template seeds budgets (Lines, Rules) or describes a contract document (Body).
type Template struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      string         `gorm:"type:varchar(20);not null;index" json:"kind"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Version   int            `gorm:"not null" json:"version"`
	Currency  string         `gorm:"type:varchar(10)" json:"currency"`
	Rules     datatypes.JSON `gorm:"not null" json:"rules"`
	Body      datatypes.JSON `gorm:"not null" json:"body"`
	Lines     []TemplateLine `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	if len(t.Rules) == 0 {
		t.Rules = datatypes.JSON("{}")
	}
	if len(t.Body) == 0 {
		t.Body = datatypes.JSON("{}")
	}
	return nil
}

type TemplateLine struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"template_id"`
	CategoryID      *uuid.UUID      `gorm:"type:uuid" json:"category_id"`
	Description     string          `gorm:"type:text" json:"description"`
	Unit            string          `gorm:"type:varchar(30)" json:"unit"`
	DefaultQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"default_quantity"`
	DefaultUnitCost decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"default_unit_cost"`
	Period          string          `gorm:"type:varchar(30)" json:"period"`
	SortOrder       int             `gorm:"not null" json:"sort_order"`
}

func (l *TemplateLine) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
