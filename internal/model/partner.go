package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartnerType enum constants
const (
	PartnerTypeGrantee = "GRANTEE"
	PartnerTypeDonor   = "DONOR"
	PartnerTypeVendor  = "VENDOR"
)

// Partner is the organisation a budget and its contracts belong to.
type Partner struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Type          string         `gorm:"type:varchar(20);not null;index" json:"type"` // GRANTEE, DONOR, VENDOR
	TaxCode       string         `gorm:"type:varchar(50)" json:"tax_code"`
	ContactPerson string         `gorm:"type:varchar(255)" json:"contact_person"`
	Email         string         `gorm:"type:varchar(255)" json:"email"`
	IsActive      bool           `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Partner) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
