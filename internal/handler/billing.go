// Package handler contains the HTTP handlers for the PixelProof API.
//
// This file implements billing/subscription management backed by Stripe.
//
// Routes:
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pixelproof/pixelproof/internal/auth"
	"github.com/pixelproof/pixelproof/internal/billing"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/repository"
)

// BillingHandler handles checkout and portal session creation.
type BillingHandler struct {
	billing billing.Service
	subs    repository.SubscriptionStore
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, subs repository.SubscriptionStore, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		subs:    subs,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireIdentity(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireIdentity(http.HandlerFunc(h.OpenPortal)))
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckout creates a Stripe Checkout session for the requested plan and
// returns its URL. The identity is attached as session metadata so the
// webhook reconciler can link the resulting customer back to it.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_checkout"
	identity := auth.GetIdentityFromRequest(r)

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EUNAVAILABLE, op, "Billing is not configured"))
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Invalid request body"))
		return
	}

	plan := domain.PlanFromString(req.Plan)
	priceID := h.billing.PriceIDForPlan(plan)
	if priceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown plan"))
		return
	}

	// Reuse the existing Stripe customer when the identity already has one so
	// upgrades stay on the same customer record.
	customerID := ""
	if rec, err := h.subs.Get(r.Context(), string(identity)); err == nil && rec != nil {
		customerID = rec.CustomerID
	}

	url, err := h.billing.CreateCheckoutSession(
		customerID,
		string(identity),
		priceID,
		h.baseURL+"/account?checkout=success",
		h.baseURL+"/pricing?checkout=canceled",
	)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create checkout session"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// OpenPortal creates a Stripe Customer Portal session for the identity's
// billing account.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_portal"
	identity := auth.GetIdentityFromRequest(r)

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EUNAVAILABLE, op, "Billing is not configured"))
		return
	}

	rec, err := h.subs.Get(r.Context(), string(identity))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to read billing account"))
		return
	}
	if rec == nil || rec.CustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.NoCustomer(op))
		return
	}

	url, err := h.billing.CreatePortalSession(rec.CustomerID, h.baseURL+"/account")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create portal session"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
