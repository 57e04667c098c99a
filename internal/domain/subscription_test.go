package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRecord_HasAccess(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(1 * time.Hour)
	past := now.Add(-1 * time.Hour)

	tests := []struct {
		name string
		rec  SubscriptionRecord
		want bool
	}{
		{"active", SubscriptionRecord{Status: SubscriptionStatusActive}, true},
		{"trialing", SubscriptionRecord{Status: SubscriptionStatusTrialing}, true},
		{"past_due keeps access", SubscriptionRecord{Status: SubscriptionStatusPastDue}, true},
		{"incomplete", SubscriptionRecord{Status: SubscriptionStatusIncomplete}, false},
		{"none", SubscriptionRecord{Status: SubscriptionStatusNone}, false},
		{
			name: "canceled but in grace window",
			rec: SubscriptionRecord{
				Status:            SubscriptionStatusCanceled,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  &future,
			},
			want: true,
		},
		{
			name: "canceled and grace window elapsed",
			rec: SubscriptionRecord{
				Status:            SubscriptionStatusCanceled,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  &past,
			},
			want: false,
		},
		{
			name: "canceled without cancel flag",
			rec: SubscriptionRecord{
				Status:           SubscriptionStatusCanceled,
				CurrentPeriodEnd: &future,
			},
			want: false,
		},
		{
			name: "cancel flag but no period end on record",
			rec: SubscriptionRecord{
				Status:            SubscriptionStatusNone,
				CancelAtPeriodEnd: true,
			},
			want: false,
		},
		{
			// active wins regardless of the cancel flag; the user keeps
			// access until the period actually ends
			name: "active with pending cancellation",
			rec: SubscriptionRecord{
				Status:            SubscriptionStatusActive,
				CancelAtPeriodEnd: true,
				CurrentPeriodEnd:  &past,
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.HasAccess(now))
		})
	}
}

func TestSubscriptionRecord_InferPlan(t *testing.T) {
	tests := []struct {
		name string
		rec  SubscriptionRecord
		want PlanID
	}{
		{"direct plan id", SubscriptionRecord{PlanID: PlanPro}, PlanPro},
		{"plan id wins over price fields", SubscriptionRecord{PlanID: PlanBasic, PriceLookupKey: "elite"}, PlanBasic},
		{"lookup key fallback", SubscriptionRecord{PriceLookupKey: "pixelproof_elite_yearly"}, PlanElite},
		{"nickname fallback", SubscriptionRecord{PriceNickname: "Pro Monthly"}, PlanPro},
		{"product name fallback", SubscriptionRecord{ProductName: "PixelProof Basic"}, PlanBasic},
		{"amount fallback elite", SubscriptionRecord{AmountCents: 9999}, PlanElite},
		{"amount fallback pro", SubscriptionRecord{AmountCents: 4999}, PlanPro},
		{"amount too low", SubscriptionRecord{AmountCents: 100}, ""},
		{"unknown plan id falls through to lookup key", SubscriptionRecord{PlanID: PlanID("unknown"), PriceLookupKey: "elite"}, PlanElite},
		{"nothing resolves", SubscriptionRecord{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.InferPlan())
		})
	}
}

func TestQuotaCounter_UsedToday(t *testing.T) {
	counter := &QuotaCounter{Identity: "uid-1", Day: "2026-06-01", Count: 2, Max: 3}

	assert.Equal(t, 2, counter.UsedToday("2026-06-01"))
	// A prior-day record reads as zero for today
	assert.Equal(t, 0, counter.UsedToday("2026-06-02"))

	var missing *QuotaCounter
	assert.Equal(t, 0, missing.UsedToday("2026-06-01"))
}
