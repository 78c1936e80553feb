package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"grantsbackend/internal/apperr"
	"grantsbackend/internal/model"
	"grantsbackend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// idempotentCall describes one lifecycle mutation that may carry a client
// idempotency key.
type idempotentCall struct {
	Key         string
	ActionKey   string
	ActorID     uuid.UUID
	RequestHash string
	Request     any
	At          time.Time
}

// requestHash is the hash used when the caller did not send one: sha256 over
// the JSON of the action name and its input.
func requestHash(actionKey string, request any) (string, error) {
	payload, err := json.Marshal(struct {
		Action  string `json:"action"`
		Request any    `json:"request"`
	}{actionKey, request})
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// runIdempotent executes fn at most once per idempotency key. It must be
// called inside RunInTx: the reservation, fn's writes and the cached response
// commit together. replayed is true when the result came from the ledger.
//
// The value returned on first execution is decoded from the cached JSON, so
// it is identical to every later replay.
func runIdempotent[T any](ctx context.Context, ledger repository.IdempotencyRepository, call idempotentCall, fn func(ctx context.Context) (T, error)) (result T, replayed bool, err error) {
	var zero T
	if call.Key == "" {
		result, err = fn(ctx)
		return result, false, err
	}

	if len(call.Key) > model.MaxIdempotencyKeyLen {
		return zero, false, apperr.Validation("idempotency key must be at most %d bytes", model.MaxIdempotencyKeyLen)
	}
	if len(call.RequestHash) > model.MaxRequestHashLen {
		return zero, false, apperr.Validation("request hash must be at most %d bytes", model.MaxRequestHashLen)
	}

	hash := call.RequestHash
	if hash == "" {
		if hash, err = requestHash(call.ActionKey, call.Request); err != nil {
			return zero, false, err
		}
	}

	rec, err := ledger.FindByKey(ctx, call.Key)
	if err != nil {
		return zero, false, err
	}
	if rec == nil {
		reserved, err := ledger.Reserve(ctx, &model.IdempotencyRecord{
			IdempotencyKey: call.Key,
			ActionKey:      call.ActionKey,
			ActorUserID:    actorPtr(call.ActorID),
			RequestHash:    hash,
			CreatedAt:      call.At,
		})
		if err != nil {
			return zero, false, err
		}
		if reserved == nil {
			// Lost the insert race; whoever won has committed by now.
			if rec, err = ledger.FindByKey(ctx, call.Key); err != nil {
				return zero, false, err
			}
			if rec == nil {
				return zero, false, apperr.Unavailable(errors.New("idempotency key reservation in flight"))
			}
		}
	}

	if rec != nil {
		if !sameRequest(rec, call, hash) {
			return zero, false, apperr.IdempotencyKeyConflict(call.Key)
		}
		if rec.Completed() {
			var cached T
			if err := json.Unmarshal(*rec.ResponseJSON, &cached); err != nil {
				return zero, false, fmt.Errorf("decode cached response for %q: %w", call.Key, err)
			}
			return cached, true, nil
		}
	}

	out, err := fn(ctx)
	if err != nil {
		return zero, false, err
	}
	body, err := json.Marshal(out)
	if err != nil {
		return zero, false, fmt.Errorf("encode response for %q: %w", call.Key, err)
	}
	if err := ledger.MarkCompleted(ctx, call.Key, body, call.At); err != nil {
		return zero, false, fmt.Errorf("complete idempotency key %q: %w", call.Key, err)
	}

	var decoded T
	if err := json.Unmarshal(body, &decoded); err != nil {
		return zero, false, fmt.Errorf("decode response for %q: %w", call.Key, err)
	}
	return decoded, false, nil
}

// sameRequest reports whether rec was reserved for the same logical request.
// A key is bound to its action, its payload hash and the actor that used it.
func sameRequest(rec *model.IdempotencyRecord, call idempotentCall, hash string) bool {
	if rec.ActionKey != call.ActionKey || rec.RequestHash != hash {
		return false
	}
	var recActor uuid.UUID
	if rec.ActorUserID != nil {
		recActor = *rec.ActorUserID
	}
	return recActor == call.ActorID
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// jsonPtr marshals v into a nullable JSON column value. nil stays NULL.
func jsonPtr(v any) (*datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	j := datatypes.JSON(b)
	return &j, nil
}
