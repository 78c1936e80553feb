package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role represents a user role with associated permissions
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"not null" json:"is_system"` // Prevent deletion of built-in roles
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// Permission represents a single permission that can be assigned to roles
type Permission struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"` // e.g. "budgets.transition"
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	Group string    `gorm:"type:varchar(50);not null;index" json:"group"` // "budgets", "contracts", "audit"
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// RoleAdmin is the seeded system role that bypasses permission checks.
const RoleAdmin = "admin"

// Permission codes checked by the HTTP layer.
const (
	PermBudgetsRead         = "budgets.read"
	PermBudgetsWrite        = "budgets.write"
	PermBudgetsTransition   = "budgets.transition"
	PermContractsRead       = "contracts.read"
	PermContractsWrite      = "contracts.write"
	PermContractsTransition = "contracts.transition"
	PermAuditRead           = "audit.read"
	PermCatalogRead         = "catalog.read"
	PermCatalogWrite        = "catalog.write"
	PermRolesManage         = "roles.manage"
)

// DefaultPermissions is seeded by the migrate command.
var DefaultPermissions = []Permission{
	{Code: PermBudgetsRead, Name: "Read budgets", Group: "budgets"},
	{Code: PermBudgetsWrite, Name: "Create and edit budgets", Group: "budgets"},
	{Code: PermBudgetsTransition, Name: "Move budgets through their lifecycle", Group: "budgets"},
	{Code: PermContractsRead, Name: "Read contracts", Group: "contracts"},
	{Code: PermContractsWrite, Name: "Create and edit contracts", Group: "contracts"},
	{Code: PermContractsTransition, Name: "Move contracts through their lifecycle", Group: "contracts"},
	{Code: PermAuditRead, Name: "Read the audit trail", Group: "audit"},
	{Code: PermCatalogRead, Name: "Read partners and templates", Group: "catalog"},
	{Code: PermCatalogWrite, Name: "Register partners and templates", Group: "catalog"},
	{Code: PermRolesManage, Name: "Manage roles and their permissions", Group: "roles"},
}
