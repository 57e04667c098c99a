// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the closed set of subscription plans
// and their daily comparison ceilings.
package domain

import (
	"strings"
	"time"
)

// PlanID identifies a subscription plan.
type PlanID string

const (
	PlanBasic PlanID = "basic"
	PlanPro   PlanID = "pro"
	PlanElite PlanID = "elite"
)

// DailyLimits maps each plan to the number of comparisons allowed per UTC day.
// These numbers must match the pricing page copy.
var DailyLimits = map[PlanID]int{
	PlanBasic: 1,
	PlanPro:   2,
	PlanElite: 3,
}

// Amount thresholds (in cents) used as a last-resort plan inference when a
// subscription record carries only a unit price. 9.99 / 49.99 / 99.99 pricing.
const (
	AmountCentsBasic = 999
	AmountCentsPro   = 4999
	AmountCentsElite = 9999
)

// LimitForPlan returns the daily ceiling for a plan, case-insensitively.
// Unknown or empty plans return 0, which means no access.
func LimitForPlan(plan PlanID) int {
	return DailyLimits[PlanID(strings.ToLower(string(plan)))]
}

// TodayKey returns the current UTC calendar date as YYYY-MM-DD.
// The quota day boundary is UTC so reset instants are identical across all
// serving nodes, regardless of local timezone.
func TodayKey() string {
	return time.Now().UTC().Format("2006-01-02")
}

// DayKeyFor returns the quota day key for an arbitrary instant.
func DayKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// PlanFromString matches a free-form value against the known plans.
// Substring matching tolerates values like "PixelProof Elite (monthly)".
// Checked longest-tier-first so "pro" inside "elite-pro-bundle" style values
// cannot shadow a more specific match.
func PlanFromString(v string) PlanID {
	s := strings.ToLower(v)
	switch {
	case strings.Contains(s, string(PlanElite)):
		return PlanElite
	case strings.Contains(s, string(PlanPro)):
		return PlanPro
	case strings.Contains(s, string(PlanBasic)):
		return PlanBasic
	default:
		return ""
	}
}

// PlanFromAmount infers a plan tier from a unit price in cents.
// Returns "" when the amount is below the cheapest tier.
func PlanFromAmount(cents int64) PlanID {
	switch {
	case cents >= AmountCentsElite:
		return PlanElite
	case cents >= AmountCentsPro:
		return PlanPro
	case cents >= AmountCentsBasic:
		return PlanBasic
	default:
		return ""
	}
}
