package repository

import (
	"context"

	"grantsbackend/internal/model"

	"gorm.io/gorm"
)

// AuditFilter narrows List. Empty fields match everything.
type AuditFilter struct {
	EntityType string
	Action     string
}

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter AuditFilter, offset, limit int) ([]model.AuditLog, int64, error)
	ListByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Log appends entry inside the caller's transaction so the audit row commits
// or rolls back with the change it describes.
func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter, offset, limit int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.EntityType != "" {
			db = db.Where("entity_type = ?", filter.EntityType)
		}
		if filter.Action != "" {
			db = db.Where("action = ?", filter.Action)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditLog{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Scopes(scope).Order("created_at desc, id").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// ListByEntity returns the trail of one entity, oldest first.
func (r *auditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := GetDB(ctx, r.db).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at, id").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
