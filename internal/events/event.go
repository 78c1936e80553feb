// Package events fans committed lifecycle changes out to websocket clients,
// optionally across instances through redis pub/sub.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LifecycleEvent is published after a budget or contract change commits.
type LifecycleEvent struct {
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Action     string     `json:"action"`
	Status     string     `json:"status"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	At         time.Time  `json:"at"`
}

// Publisher delivers events to subscribers. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, LifecycleEvent) error { return nil }
