// Package domain contains core business types and interfaces.
//
// This file defines the per-identity subscription snapshot kept eventually
// consistent with Stripe by the event reconciler.
package domain

import "time"

// SubscriptionStatus represents the possible states of a subscription.
// The values mirror Stripe's subscription statuses plus "none" for identities
// that never subscribed.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusNone       SubscriptionStatus = "none"
)

// SubscriptionRecord is the denormalized per-identity subscription snapshot.
// Written by the event reconciler, read by the subscription resolver.
//
// Several plan-ish fields coexist because the record's shape drifted as the
// Stripe integration evolved; the resolver tries them in a fixed order rather
// than trusting any single one. See InferPlan.
type SubscriptionRecord struct {
	Identity          string
	PlanID            PlanID // normalized plan slug, "" if never resolved
	Status            SubscriptionStatus
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	CustomerID        string // Stripe customer id, "" if no checkout yet
	SubscriptionID    string // Stripe subscription id
	PriceID           string
	PriceLookupKey    string
	PriceNickname     string
	ProductName       string
	AmountCents       int64 // unit price, 0 if unknown
	Currency          string
	UpdatedAt         time.Time
}

// HasAccess reports whether the identity currently has paid access.
//
// Access holds while the status is active, trialing, or past_due (dunning
// grace), and also during the cancellation grace window: the user asked to
// cancel at period end but the paid period has not ended yet.
func (r *SubscriptionRecord) HasAccess(now time.Time) bool {
	switch r.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	}
	return r.inGraceWindow(now)
}

func (r *SubscriptionRecord) inGraceWindow(now time.Time) bool {
	return r.CancelAtPeriodEnd && r.CurrentPeriodEnd != nil && r.CurrentPeriodEnd.After(now)
}

// InferPlan resolves the record's plan through the ordered fallback chain:
//
//  1. the normalized PlanID field
//  2. price lookup key, nickname, then product name (substring match)
//  3. unit amount against the fixed tier thresholds
//
// First match wins. Returns "" when nothing resolves.
func (r *SubscriptionRecord) InferPlan() PlanID {
	if p := PlanFromString(string(r.PlanID)); p != "" {
		return p
	}
	for _, v := range []string{r.PriceLookupKey, r.PriceNickname, r.ProductName} {
		if v == "" {
			continue
		}
		if p := PlanFromString(v); p != "" {
			return p
		}
	}
	return PlanFromAmount(r.AmountCents)
}

// Entitlement is the subscription resolver's answer for one identity.
type Entitlement struct {
	HasAccess bool
	Plan      PlanID // "" when no plan resolves
}
