package messaging

import (
	"context"
	"time"

	"github.com/muzeer/rewards/internal/domain"
)

// LedgerEvent is the external notification emitted after a ledger entry
// commits. It mirrors the persisted row; the ledger stays authoritative.
type LedgerEvent struct {
	UserID    string                 `json:"user_id"`
	Symbol    string                 `json:"symbol"`
	Type      domain.LedgerEntryType `json:"type"`
	Delta     int64                  `json:"delta"`
	Reason    string                 `json:"reason"`
	SeasonKey string                 `json:"season_key"`
	CreatedAt time.Time              `json:"created_at"`
}

// Publisher fans committed ledger entries out to external consumers.
// Publishing is best-effort: failures are logged, never surfaced to the
// user request that produced the entry.
type Publisher interface {
	// PublishLedgerEvent hands an event to the publisher; implementations
	// must not block on broker round-trips
	PublishLedgerEvent(ctx context.Context, event LedgerEvent)
	// Close flushes in-flight events and releases the connection
	Close()
}

// NoopPublisher drops all events; used when no broker is configured
type NoopPublisher struct{}

func (NoopPublisher) PublishLedgerEvent(ctx context.Context, event LedgerEvent) {}

func (NoopPublisher) Close() {}
