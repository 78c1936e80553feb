package repository

import (
	"context"
	"errors"
	"time"

	"grantsbackend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IdempotencyRepository is the ledger of reserved client idempotency keys.
type IdempotencyRepository interface {
	// Reserve inserts rec unless the key is already taken. It returns nil, nil
	// on a key collision so the caller can re-read the winner.
	Reserve(ctx context.Context, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error)
	MarkCompleted(ctx context.Context, key string, response []byte, at time.Time) error
	// FindByKey returns nil, nil when the key was never reserved.
	FindByKey(ctx context.Context, key string) (*model.IdempotencyRecord, error)
}

type idempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Reserve(ctx context.Context, rec *model.IdempotencyRecord) (*model.IdempotencyRecord, error) {
	tx, err := MustTx(ctx)
	if err != nil {
		return nil, err
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return rec, nil
}

func (r *idempotencyRepository) MarkCompleted(ctx context.Context, key string, response []byte, at time.Time) error {
	tx, err := MustTx(ctx)
	if err != nil {
		return err
	}
	res := tx.Model(&model.IdempotencyRecord{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"response_json": datatypes.JSON(response),
			"completed_at":  at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *idempotencyRepository) FindByKey(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	err := GetDB(ctx, r.db).Where("idempotency_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
