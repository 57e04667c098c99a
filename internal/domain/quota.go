// Package domain contains core business types and interfaces.
//
// This file defines the daily quota counter consumed by the quota gate.
package domain

import "time"

// QuotaCounter is the per-identity daily usage record.
//
// The record is a singleton per identity: a stale row from a prior day is
// treated as zero-used for the current day and overwritten in place, so no
// cleanup job is needed. Counters are never decremented; a failed downstream
// step does not refund a consumed unit. Consumption happens strictly before
// the expensive vision-model call.
type QuotaCounter struct {
	Identity  string
	Day       string // UTC calendar date key, YYYY-MM-DD
	Count     int    // comparisons consumed so far today
	Max       int    // ceiling recorded at last write; informational only
	UpdatedAt time.Time
}

// UsedToday returns the consumed count if the counter is for the given day,
// otherwise 0 (the record is logically reset on day-key mismatch).
func (q *QuotaCounter) UsedToday(day string) int {
	if q == nil || q.Day != day {
		return 0
	}
	return q.Count
}

// GateResult is the successful outcome of a quota gate check: the resolved
// plan and its ceiling. Callers may proceed to the vision-model call.
type GateResult struct {
	Identity string
	Plan     PlanID
	Max      int
	Used     int // usage after this consumption
}

// QuotaUsage is a read-only view of today's consumption for the account page.
type QuotaUsage struct {
	Plan PlanID `json:"plan"`
	Used int    `json:"used"`
	Max  int    `json:"max"`
	Day  string `json:"day"`
}
