// Package repository provides persistence for subscription snapshots, quota
// counters, webhook event logs, and comparison history.
//
// Two implementations exist:
//   - Postgres: pgx-backed, used in production
//   - Memory: mutex-guarded maps, used in development and tests
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/pixelproof/pixelproof/internal/domain"
)

// SubscriptionStore reads and writes per-identity subscription snapshots.
//
// Get and GetByCustomerID return (nil, nil) when no record exists; absence is
// an expected state (the identity never checked out), not an error.
type SubscriptionStore interface {
	Get(ctx context.Context, identity string) (*domain.SubscriptionRecord, error)
	GetByCustomerID(ctx context.Context, customerID string) (*domain.SubscriptionRecord, error)

	// LinkCustomer records the identity <-> Stripe customer mapping, creating
	// the record if needed. Called when a checkout session completes.
	LinkCustomer(ctx context.Context, identity, customerID string) error

	// Upsert overwrites the snapshot fields for rec.Identity. Last write wins
	// per field set, which keeps webhook replays and out-of-order delivery safe.
	Upsert(ctx context.Context, rec *domain.SubscriptionRecord) error
}

// QuotaStore is the quota ledger: an atomic per-identity daily counter.
type QuotaStore interface {
	// ConsumeIfUnder atomically tests today's counter against max and
	// increments it when under. For N concurrent calls on the same identity
	// and day, exactly max succeed. A counter row for a prior day reads as
	// zero used. Counters are never decremented.
	ConsumeIfUnder(ctx context.Context, identity, day string, max int) (usedAfter int, allowed bool, err error)

	// Peek returns the counter without consuming, or nil if none exists.
	Peek(ctx context.Context, identity string) (*domain.QuotaCounter, error)
}

// EventStore persists the webhook event log and the orphan side-store.
type EventStore interface {
	// LogEvent upserts the log entry keyed by the Stripe event id, making
	// at-least-once delivery idempotent at the logging layer.
	LogEvent(ctx context.Context, e *domain.EventLogEntry) error

	// HasEvent reports whether an event id was already logged.
	HasEvent(ctx context.Context, eventID string) (bool, error)

	// ParkOrphan upserts a lifecycle event that cannot be attributed to a
	// known identity yet, keyed by subscription id.
	ParkOrphan(ctx context.Context, o *domain.OrphanEvent) error
}

// ComparisonStore persists comparison history for the account page.
type ComparisonStore interface {
	Create(ctx context.Context, c *domain.Comparison) error
	ListRecent(ctx context.Context, identity string, limit int) ([]domain.Comparison, error)

	// GetComparison returns one comparison by id, or (nil, nil) when absent.
	GetComparison(ctx context.Context, id uuid.UUID) (*domain.Comparison, error)

	// DeleteComparison removes the history row. Idempotent.
	DeleteComparison(ctx context.Context, id uuid.UUID) error
}

// Store bundles all persistence interfaces behind one handle, mirroring how
// the rest of the application consumes them.
type Store interface {
	SubscriptionStore
	QuotaStore
	EventStore
	ComparisonStore
}
