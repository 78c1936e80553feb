package repository

import (
	"context"
	"time"

	"grantsbackend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BudgetRepository interface {
	Create(ctx context.Context, budget *model.Budget) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Budget, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Budget, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error
	Update(ctx context.Context, id uuid.UUID, upd model.BudgetUpdate, at time.Time) error
	SetCeilingTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal, at time.Time) error

	ListLines(ctx context.Context, budgetID uuid.UUID) ([]model.BudgetLine, error)
	CreateLines(ctx context.Context, lines []model.BudgetLine) error
	UpdateLine(ctx context.Context, line *model.BudgetLine) error
	DeleteLine(ctx context.Context, budgetID, lineID uuid.UUID) error
}

type budgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) BudgetRepository {
	return &budgetRepository{db: db}
}

// Create inserts the budget row only; lines go through CreateLines.
func (r *budgetRepository) Create(ctx context.Context, budget *model.Budget) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Omit("Lines").Create(budget).Error
}

// FindByID loads the budget with its lines ordered by creation.
func (r *budgetRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Budget, error) {
	var budget model.Budget
	err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		First(&budget, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

// FindByIDForUpdate loads the budget row under a row lock held until the
// surrounding transaction ends.
func (r *budgetRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Budget, error) {
	tx, err := MustTx(ctx)
	if err != nil {
		return nil, err
	}
	var budget model.Budget
	if err := lockForUpdate(tx).First(&budget, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &budget, nil
}

// UpdateStatus is a compare-and-swap on status. ErrStaleState means the row
// no longer had status from.
func (r *budgetRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, at time.Time) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	res := tx.Model(&model.Budget{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *budgetRepository) Update(ctx context.Context, id uuid.UUID, upd model.BudgetUpdate, at time.Time) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	cols := upd.Columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = at
	res := tx.Model(&model.Budget{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *budgetRepository) SetCeilingTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal, at time.Time) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Model(&model.Budget{}).
		Where("id = ?", id).
		Updates(map[string]any{"ceiling_total": total, "updated_at": at}).Error
}

func (r *budgetRepository) ListLines(ctx context.Context, budgetID uuid.UUID) ([]model.BudgetLine, error) {
	var lines []model.BudgetLine
	if err := GetDB(ctx, r.db).Where("budget_id = ?", budgetID).Order("created_at, id").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *budgetRepository) CreateLines(ctx context.Context, lines []model.BudgetLine) error {
	if len(lines) == 0 {
		return nil
	}
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Create(&lines).Error
}

func (r *budgetRepository) UpdateLine(ctx context.Context, line *model.BudgetLine) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	res := tx.Model(&model.BudgetLine{}).
		Where("id = ? AND budget_id = ?", line.ID, line.BudgetID).
		Updates(map[string]any{
			"template_line_id": line.TemplateLineID,
			"category_id":      line.CategoryID,
			"description":      line.Description,
			"unit":             line.Unit,
			"quantity":         line.Quantity,
			"unit_cost":        line.UnitCost,
			"currency":         line.Currency,
			"period":           line.Period,
			"status":           line.Status,
			"updated_at":       line.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *budgetRepository) DeleteLine(ctx context.Context, budgetID, lineID uuid.UUID) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	res := tx.Where("id = ? AND budget_id = ?", lineID, budgetID).Delete(&model.BudgetLine{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
