package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrIdempotencyRecordPermanent = errors.New("idempotency records are never deleted")

// Column widths of the client-supplied ledger fields.
const (
	MaxIdempotencyKeyLen = 255
	MaxRequestHashLen    = 100
)

// IdempotencyRecord reserves a client idempotency key for one logical action.
// ResponseJSON stays NULL until the action commits; from then on replays are
// answered from it.
type IdempotencyRecord struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"idempotency_key"` // MaxIdempotencyKeyLen
	ActionKey      string          `gorm:"type:varchar(100);not null" json:"action_key"`
	ActorUserID    *uuid.UUID      `gorm:"type:uuid;index" json:"actor_user_id"`
	RequestHash    string          `gorm:"type:varchar(100);not null" json:"request_hash"` // MaxRequestHashLen
	ResponseJSON   *datatypes.JSON `json:"response_json"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at"`
}

func (r *IdempotencyRecord) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (r *IdempotencyRecord) BeforeDelete(tx *gorm.DB) error { return ErrIdempotencyRecordPermanent }

// Completed reports whether the reserved action finished and cached its response.
func (r *IdempotencyRecord) Completed() bool {
	return r.ResponseJSON != nil && len(*r.ResponseJSON) > 0
}
