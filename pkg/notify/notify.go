// Package notify delivers player notifications raised by the simulation.
// Delivery is best effort: callers log failures and carry on.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	// EventQueenDied is raised when a housed queen reaches the end of her lifetime.
	EventQueenDied EventType = "queen_died"
)

// Event is one notification for one player.
type Event struct {
	Type       EventType `json:"type"`
	GuildID    int64     `json:"guild_id"`
	UserID     int64     `json:"user_id"`
	HiveID     uuid.UUID `json:"hive_id"`
	HiveName   string    `json:"hive_name"`
	BeeID      uuid.UUID `json:"bee_id"`
	BeeName    string    `json:"bee_name"`
	BroodCount int       `json:"brood_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier sends events to players.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
