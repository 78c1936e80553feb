package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // permission codes, e.g. "budgets.read"
}

type UpdateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type RoleResponse struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   time.Time            `json:"created_at"`
}

type PermissionResponse struct {
	ID    uuid.UUID `json:"id"`
	Code  string    `json:"code"`
	Name  string    `json:"name"`
	Group string    `json:"group"`
}

// --- Interface ---

// RoleService manages the roles the permission middleware checks against.
// The admin role is seeded by the migrate command and cannot be removed.
type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id uuid.UUID) (RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (RoleResponse, error)
	UpdateRolePermissions(ctx context.Context, id uuid.UUID, req UpdateRolePermissionsRequest) (RoleResponse, error)
	DeleteRole(ctx context.Context, id uuid.UUID) (RoleResponse, error)
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
}

type roleService struct {
	roleRepo  repository.RoleRepository
	txManager repository.TransactionManager
}

func NewRoleService(roleRepo repository.RoleRepository, txManager repository.TransactionManager) RoleService {
	return &roleService{roleRepo: roleRepo, txManager: txManager}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id uuid.UUID) (RoleResponse, error) {
	role, err := s.roleRepo.FindByID(ctx, id)
	if err != nil {
		return RoleResponse{}, notFound(err, "role", id)
	}
	return toRoleResponse(*role), nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (RoleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return RoleResponse{}, apperr.Validation("name is required")
	}
	role := &model.Role{Name: name, Description: req.Description}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		perms, err := s.resolvePermissions(txCtx, req.Permissions)
		if err != nil {
			return err
		}
		if err := s.roleRepo.Create(txCtx, role); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.PreconditionFailed("role %s already exists", name)
			}
			return err
		}
		return s.roleRepo.ReplacePermissions(txCtx, role, perms)
	})
	if err != nil {
		return RoleResponse{}, err
	}
	return s.GetRole(ctx, role.ID)
}

// UpdateRolePermissions replaces the permission set of a role.
func (s *roleService) UpdateRolePermissions(ctx context.Context, id uuid.UUID, req UpdateRolePermissionsRequest) (RoleResponse, error) {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByID(txCtx, id)
		if err != nil {
			return notFound(err, "role", id)
		}
		if role.Name == model.RoleAdmin {
			return apperr.PreconditionFailed("the %s role always holds every permission", model.RoleAdmin)
		}
		perms, err := s.resolvePermissions(txCtx, req.Permissions)
		if err != nil {
			return err
		}
		return s.roleRepo.ReplacePermissions(txCtx, role, perms)
	})
	if err != nil {
		return RoleResponse{}, err
	}
	return s.GetRole(ctx, id)
}

// DeleteRole removes a custom role and returns what was deleted.
func (s *roleService) DeleteRole(ctx context.Context, id uuid.UUID) (RoleResponse, error) {
	var deleted RoleResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByID(txCtx, id)
		if err != nil {
			return notFound(err, "role", id)
		}
		if role.IsSystem {
			return apperr.PreconditionFailed("cannot delete system role %s", role.Name)
		}
		deleted = toRoleResponse(*role)
		return s.roleRepo.Delete(txCtx, role)
	})
	if err != nil {
		return RoleResponse{}, err
	}
	return deleted, nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roleRepo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

// resolvePermissions maps codes to permission rows. Unknown codes are a
// validation error rather than being silently dropped.
func (s *roleService) resolvePermissions(ctx context.Context, codes []string) ([]model.Permission, error) {
	perms, err := s.roleRepo.FindPermissionsByCode(ctx, codes)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(perms))
	for _, p := range perms {
		found[p.Code] = true
	}
	var unknown []string
	for _, c := range codes {
		if !found[c] {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("unknown permissions: %s", strings.Join(unknown, ", "))
	}
	return perms, nil
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Code < perms[j].Code })

	return RoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:    p.ID,
		Code:  p.Code,
		Name:  p.Name,
		Group: p.Group,
	}
}
