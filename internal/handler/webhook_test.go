package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/pixelproof/pixelproof/internal/repository"
	"github.com/pixelproof/pixelproof/internal/service"
)

func webhookRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func TestWebhookHandler_RejectsBadSignature(t *testing.T) {
	store := repository.NewMemory()
	bill := &fakeBilling{verifySig: "t=1,v1=good"}
	h := NewWebhookHandler(bill, service.NewReconciler(store, bill, testLogger()), testLogger())

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, webhookRequest([]byte(`{"id":"evt_1"}`), "t=1,v1=forged"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, store.EventCount())
}

func TestWebhookHandler_VerifiedEventIsLogged(t *testing.T) {
	store := repository.NewMemory()
	bill := &fakeBilling{
		verifySig: "t=1,v1=good",
		verifyEvent: stripe.Event{
			ID:   "evt_1",
			Type: "invoice.paid",
			Data: &stripe.EventData{Raw: json.RawMessage(`{"object":"invoice"}`)},
		},
	}
	h := NewWebhookHandler(bill, service.NewReconciler(store, bill, testLogger()), testLogger())

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, webhookRequest([]byte(`{"id":"evt_1"}`), "t=1,v1=good"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.EventCount())
}

func TestWebhookHandler_SubscriptionEventUpdatesSnapshot(t *testing.T) {
	store := repository.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.LinkCustomer(ctx, "user_1", "cus_1"))

	subPayload := `{
		"id": "sub_1",
		"object": "subscription",
		"customer": "cus_1",
		"status": "active",
		"items": {
			"data": [{
				"price": {
					"id": "price_pro",
					"lookup_key": "pro",
					"unit_amount": 4999,
					"currency": "usd"
				}
			}]
		}
	}`
	bill := &fakeBilling{
		verifySig: "t=1,v1=good",
		verifyEvent: stripe.Event{
			ID:   "evt_2",
			Type: "customer.subscription.updated",
			Data: &stripe.EventData{Raw: json.RawMessage(subPayload)},
		},
	}
	h := NewWebhookHandler(bill, service.NewReconciler(store, bill, testLogger()), testLogger())

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, webhookRequest([]byte(subPayload), "t=1,v1=good"))

	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := store.Get(ctx, "user_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "sub_1", stored.SubscriptionID)
	assert.Equal(t, "active", string(stored.Status))
}

func TestWebhookHandler_WithoutBillingAcknowledges(t *testing.T) {
	h := NewWebhookHandler(nil, nil, testLogger())

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, webhookRequest([]byte(`{"id":"evt_1"}`), ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}
