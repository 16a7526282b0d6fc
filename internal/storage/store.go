// Package storage implements the persistence port (C4): conversations,
// events, memories, the cost ledger, and preferences. Consumers must
// not rely on synchronous durability — writes may be batched by the
// backend.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jarvis-homelab/jarvis/internal/models"
)

var ErrNotFound = errors.New("storage: not found")

// EventFilter narrows GetEvents results.
type EventFilter struct {
	Limit int
	Type  string
	Node  string
	Since time.Time
}

// Event is a persisted occurrence: tool invocations, safety denials,
// cluster alerts.
type Event struct {
	ID        string
	Type      string
	Node      string
	Detail    string
	Resolved  bool
	CreatedAt time.Time
}

// CostSummary is a day/week/month roll-up of the cost ledger.
type CostSummary struct {
	Range     string
	TotalUSD  float64
	TokensIn  int
	TokensOut int
}

// Store is the persistence port consumed by every other component.
type Store interface {
	SaveMessage(ctx context.Context, msg models.ChatMessage) error
	GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)

	SaveEvent(ctx context.Context, ev Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]Event, error)

	UpsertMemory(ctx context.Context, mem models.Memory) error
	SearchMemories(ctx context.Context, query string, limit int) ([]models.Memory, error)

	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error

	AppendCost(ctx context.Context, entry models.CostEntry) error
	SummarizeCost(ctx context.Context, rangeName string) (CostSummary, error)

	// ExpireEpisodicMemories removes episodic memories last accessed
	// before cutoff; called by the background retention sweep.
	ExpireEpisodicMemories(ctx context.Context, cutoff time.Time) (int, error)
}
