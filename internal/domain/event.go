// Package domain contains core business types and interfaces.
//
// This file defines the webhook event log and orphan records used by the
// event reconciler for idempotent, lossless processing.
package domain

import "time"

// EventLogEntry is a compact append-only record of a processed Stripe event,
// keyed by the Stripe event id. At-least-once delivery means the same event
// can arrive repeatedly; the log upsert makes replays visible and harmless.
type EventLogEntry struct {
	EventID        string
	Type           string
	Created        time.Time
	Livemode       bool
	ObjectType     string
	CustomerID     string
	SubscriptionID string
	Identity       string // resolved identity, "" if the event was unattributable
	RawSizeBytes   int
	ReceivedAt     time.Time
}

// OrphanEvent parks a subscription lifecycle event whose customer id has no
// known identity mapping yet. Orphans are never silently dropped; they stay
// queryable for manual or later reconciliation.
type OrphanEvent struct {
	SubscriptionID string // key: the Stripe subscription the event describes
	CustomerID     string
	Status         string
	Reason         string
	CreatedAt      time.Time
}
