package repository

import (
	"context"

	"grantsbackend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *model.Template) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Template, error)
}

type templateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create inserts the template together with its lines.
func (r *templateRepository) Create(ctx context.Context, tpl *model.Template) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Create(tpl).Error
}

func (r *templateRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	var tpl model.Template
	err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order, id") }).
		First(&tpl, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}
