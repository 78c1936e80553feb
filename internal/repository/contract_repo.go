package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"grantsbackend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContractRepository interface {
	Create(ctx context.Context, contract *model.Contract) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Contract, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Contract, error)
	TransitionState(ctx context.Context, id uuid.UUID, from, to string, upd model.ContractUpdate, at time.Time) error
	Update(ctx context.Context, id uuid.UUID, upd model.ContractUpdate, at time.Time) error
	NextNumber(ctx context.Context, day time.Time) (string, error)
}

type contractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) ContractRepository {
	return &contractRepository{db: db}
}

func (r *contractRepository) Create(ctx context.Context, contract *model.Contract) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	return tx.Create(contract).Error
}

func (r *contractRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	var contract model.Contract
	if err := GetDB(ctx, r.db).First(&contract, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *contractRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	tx, err := MustTx(ctx)
	if err != nil {
		return nil, err
	}
	var contract model.Contract
	if err := lockForUpdate(tx).First(&contract, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// TransitionState writes the new state plus the step's columns, guarded on the
// current state. ErrStaleState means another transaction moved the row first.
func (r *contractRepository) TransitionState(ctx context.Context, id uuid.UUID, from, to string, upd model.ContractUpdate, at time.Time) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	cols := upd.Columns()
	cols["state"] = to
	cols["updated_at"] = at
	res := tx.Model(&model.Contract{}).Where("id = ? AND state = ?", id, from).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *contractRepository) Update(ctx context.Context, id uuid.UUID, upd model.ContractUpdate, at time.Time) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	cols := upd.Columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = at
	res := tx.Model(&model.Contract{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NextNumber returns the next CTR-YYYYMMDD-NNNNN number for day: one past the
// highest numeric suffix already used that day, caller-supplied numbers
// included.
func (r *contractRepository) NextNumber(ctx context.Context, day time.Time) (string, error) {
	tx, err := MustTx(ctx)
	if err != nil {
		return "", err
	}
	prefix := "CTR-" + day.Format("20060102") + "-"

	// Use advisory lock to prevent concurrent duplicate contract numbers
	if tx.Dialector.Name() == "postgres" {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return "", fmt.Errorf("lock contract numbering: %w", err)
		}
	}

	var taken []string
	if err := tx.Model(&model.Contract{}).
		Where("number LIKE ?", prefix+"%").
		Pluck("number", &taken).Error; err != nil {
		return "", err
	}

	var highest int64
	for _, number := range taken {
		seq, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
		if err != nil || seq < 0 {
			continue
		}
		highest = max(highest, seq)
	}
	return fmt.Sprintf("%s%05d", prefix, highest+1), nil
}
