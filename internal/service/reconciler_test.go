package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/repository"
)

func subscriptionEvent(t *testing.T, eventID, eventType string, payload string) stripe.Event {
	t.Helper()
	return stripe.Event{
		ID:       eventID,
		Type:     stripe.EventType(eventType),
		Created:  time.Now().Unix(),
		Livemode: false,
		Data:     &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

const subUpdatedPayload = `{
	"id": "sub_1",
	"object": "subscription",
	"status": "active",
	"customer": "cus_1",
	"cancel_at_period_end": false,
	"current_period_end": 1780000000,
	"items": {
		"object": "list",
		"data": [{
			"object": "subscription_item",
			"price": {
				"id": "price_pro",
				"object": "price",
				"lookup_key": "pixelproof_pro_monthly",
				"unit_amount": 4999,
				"currency": "usd"
			}
		}]
	}
}`

func TestReconciler_SubscriptionEventWritesSnapshot(t *testing.T) {
	store := repository.NewMemory()
	require.NoError(t, store.LinkCustomer(context.Background(), "user_1", "cus_1"))

	rec := NewReconciler(store, &fakeBilling{}, testLogger())
	event := subscriptionEvent(t, "evt_1", "customer.subscription.updated", subUpdatedPayload)

	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(subUpdatedPayload)))

	snap, err := store.Get(context.Background(), "user_1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, domain.SubscriptionStatusActive, snap.Status)
	assert.Equal(t, domain.PlanPro, snap.PlanID)
	assert.Equal(t, "sub_1", snap.SubscriptionID)
	assert.Equal(t, "cus_1", snap.CustomerID)
	assert.Equal(t, "price_pro", snap.PriceID)
	assert.Equal(t, int64(4999), snap.AmountCents)
	require.NotNil(t, snap.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1780000000, 0).UTC(), *snap.CurrentPeriodEnd)
	assert.True(t, snap.HasAccess(time.Now()))
}

func TestReconciler_ReplayIsIdempotent(t *testing.T) {
	store := repository.NewMemory()
	require.NoError(t, store.LinkCustomer(context.Background(), "user_1", "cus_1"))

	rec := NewReconciler(store, &fakeBilling{}, testLogger())
	event := subscriptionEvent(t, "evt_1", "customer.subscription.updated", subUpdatedPayload)

	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(subUpdatedPayload)))
	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(subUpdatedPayload)))

	assert.Equal(t, 1, store.EventCount())

	snap, err := store.Get(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, snap.Status)
}

func TestReconciler_SeenEventShortCircuits(t *testing.T) {
	store := repository.NewMemory()
	require.NoError(t, store.LinkCustomer(context.Background(), "user_1", "cus_1"))

	rec := NewReconciler(store, &fakeBilling{}, testLogger())
	require.NoError(t, rec.ProcessEvent(context.Background(),
		subscriptionEvent(t, "evt_1", "customer.subscription.updated", subUpdatedPayload),
		len(subUpdatedPayload)))

	// Same event id arriving again — even with a mutated payload — must not
	// be reprocessed; the event log decides, not the payload.
	canceledPayload := `{
		"id": "sub_1",
		"object": "subscription",
		"status": "canceled",
		"customer": "cus_1"
	}`
	require.NoError(t, rec.ProcessEvent(context.Background(),
		subscriptionEvent(t, "evt_1", "customer.subscription.updated", canceledPayload),
		len(canceledPayload)))

	snap, err := store.Get(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, snap.Status)
	assert.Equal(t, 1, store.EventCount())
}

func TestReconciler_UnknownCustomerParksOrphan(t *testing.T) {
	store := repository.NewMemory()
	rec := NewReconciler(store, &fakeBilling{}, testLogger())
	event := subscriptionEvent(t, "evt_2", "customer.subscription.created", subUpdatedPayload)

	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(subUpdatedPayload)))

	// Logged, parked, never silently dropped.
	assert.Equal(t, 1, store.EventCount())
	orphan := store.Orphan("sub_1")
	require.NotNil(t, orphan)
	assert.Equal(t, "cus_1", orphan.CustomerID)
	assert.Equal(t, "active", orphan.Status)

	snap, err := store.GetByCustomerID(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestReconciler_DeletedRevokesAccess(t *testing.T) {
	store := repository.NewMemory()
	require.NoError(t, store.LinkCustomer(context.Background(), "user_1", "cus_1"))

	rec := NewReconciler(store, &fakeBilling{}, testLogger())

	updated := subscriptionEvent(t, "evt_1", "customer.subscription.updated", subUpdatedPayload)
	require.NoError(t, rec.ProcessEvent(context.Background(), updated, len(subUpdatedPayload)))

	deletedPayload := `{
		"id": "sub_1",
		"object": "subscription",
		"status": "canceled",
		"customer": "cus_1",
		"cancel_at_period_end": false
	}`
	deleted := subscriptionEvent(t, "evt_3", "customer.subscription.deleted", deletedPayload)
	require.NoError(t, rec.ProcessEvent(context.Background(), deleted, len(deletedPayload)))

	snap, err := store.Get(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCanceled, snap.Status)
	assert.False(t, snap.HasAccess(time.Now()))
	assert.Equal(t, 2, store.EventCount())
}

func TestReconciler_CheckoutCompletedLinksAndHydrates(t *testing.T) {
	store := repository.NewMemory()
	billing := &fakeBilling{
		subByID: map[string]*stripe.Subscription{
			"sub_9": {
				ID:       "sub_9",
				Status:   stripe.SubscriptionStatusActive,
				Customer: &stripe.Customer{ID: "cus_9"},
				Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
					{Price: &stripe.Price{ID: "price_elite", LookupKey: "elite", UnitAmount: 9999}},
				}},
			},
		},
	}
	rec := NewReconciler(store, billing, testLogger())

	payload := `{
		"id": "cs_1",
		"object": "checkout.session",
		"mode": "subscription",
		"customer": "cus_9",
		"subscription": "sub_9",
		"metadata": {"uid": "user_9"}
	}`
	event := subscriptionEvent(t, "evt_4", "checkout.session.completed", payload)
	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(payload)))

	snap, err := store.Get(context.Background(), "user_9")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "cus_9", snap.CustomerID)
	assert.Equal(t, domain.SubscriptionStatusActive, snap.Status)
	assert.Equal(t, domain.PlanElite, snap.PlanID)
}

func TestReconciler_CheckoutWithoutIdentityMetadata(t *testing.T) {
	store := repository.NewMemory()
	rec := NewReconciler(store, &fakeBilling{}, testLogger())

	payload := `{
		"id": "cs_2",
		"object": "checkout.session",
		"mode": "subscription",
		"customer": "cus_10",
		"subscription": "sub_10"
	}`
	event := subscriptionEvent(t, "evt_5", "checkout.session.completed", payload)
	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(payload)))

	// Logged for later reconciliation, but no mapping invented.
	assert.Equal(t, 1, store.EventCount())
	snap, err := store.GetByCustomerID(context.Background(), "cus_10")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestReconciler_UnhandledTypeIsLoggedOnly(t *testing.T) {
	store := repository.NewMemory()
	rec := NewReconciler(store, &fakeBilling{}, testLogger())

	payload := `{"id": "in_1", "object": "invoice"}`
	event := subscriptionEvent(t, "evt_6", "invoice.payment_succeeded", payload)
	require.NoError(t, rec.ProcessEvent(context.Background(), event, len(payload)))

	assert.Equal(t, 1, store.EventCount())
	assert.Equal(t, 0, store.OrphanCount())
}
