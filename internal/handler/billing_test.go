package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelproof/pixelproof/internal/auth"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/repository"
)

func checkoutRequestBody(t *testing.T, plan string) *http.Request {
	t.Helper()
	body := strings.NewReader(`{"plan":"` + plan + `"}`)
	req := httptest.NewRequest("POST", "/api/billing/checkout", body)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(auth.SetIdentity(req.Context(), "user_1"))
}

func TestBillingHandler_CreateCheckout(t *testing.T) {
	bill := &fakeBilling{
		checkoutURL: "https://checkout.stripe.com/c/pay/cs_test_1",
		priceByPlan: map[domain.PlanID]string{domain.PlanPro: "price_pro"},
	}
	h := NewBillingHandler(bill, repository.NewMemory(), "https://pixelproof.app", testLogger())

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, checkoutRequestBody(t, "pro"))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", body["url"])
	assert.Equal(t, "user_1", bill.lastIdentity)
}

func TestBillingHandler_CreateCheckoutUnknownPlan(t *testing.T) {
	bill := &fakeBilling{priceByPlan: map[domain.PlanID]string{domain.PlanPro: "price_pro"}}
	h := NewBillingHandler(bill, repository.NewMemory(), "https://pixelproof.app", testLogger())

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, checkoutRequestBody(t, "platinum"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INVALID", body["error_code"])
}

func TestBillingHandler_CreateCheckoutWithoutBilling(t *testing.T) {
	h := NewBillingHandler(nil, repository.NewMemory(), "https://pixelproof.app", testLogger())

	rec := httptest.NewRecorder()
	h.CreateCheckout(rec, checkoutRequestBody(t, "pro"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBillingHandler_OpenPortal(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	require.NoError(t, store.LinkCustomer(ctx, "user_1", "cus_1"))

	bill := &fakeBilling{portalURL: "https://billing.stripe.com/p/session/test_1"}
	h := NewBillingHandler(bill, store, "https://pixelproof.app", testLogger())

	req := httptest.NewRequest("POST", "/api/billing/portal", nil)
	req = req.WithContext(auth.SetIdentity(req.Context(), "user_1"))
	rec := httptest.NewRecorder()
	h.OpenPortal(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "https://billing.stripe.com/p/session/test_1", body["url"])
}

func TestBillingHandler_OpenPortalWithoutCustomer(t *testing.T) {
	bill := &fakeBilling{portalURL: "https://billing.stripe.com/p/session/test_1"}
	h := NewBillingHandler(bill, repository.NewMemory(), "https://pixelproof.app", testLogger())

	req := httptest.NewRequest("POST", "/api/billing/portal", nil)
	req = req.WithContext(auth.SetIdentity(req.Context(), "user_1"))
	rec := httptest.NewRecorder()
	h.OpenPortal(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NO_CUSTOMER", body["error_code"])
}
