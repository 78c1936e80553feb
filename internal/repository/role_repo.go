package repository

import (
	"context"

	"grantsbackend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, role *model.Role) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	ListAll(ctx context.Context) ([]model.Role, error)
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	FindPermissionsByCode(ctx context.Context, codes []string) ([]model.Permission, error)
	ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Omit("Permissions").Create(role).Error
}

// Delete drops the role and its permission links.
func (r *roleRepository) Delete(ctx context.Context, role *model.Role) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.Model(role).Association("Permissions").Clear(); err != nil {
		return err
	}
	return tx.Delete(role).Error
}

// FindByID loads the role with its permissions.
func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) ListAll(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").Order("name asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Order("\"group\" asc, code asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *roleRepository) FindPermissionsByCode(ctx context.Context, codes []string) ([]model.Permission, error) {
	perms := []model.Permission{}
	if len(codes) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("code IN ?", codes).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Model(role).Association("Permissions").Replace(perms)
}
