// Package handler contains the HTTP handlers for the PixelProof API.
//
// This file implements the read-only account endpoints.
//
// Routes:
//   - GET /api/quota                -> Quota
//   - GET /api/subscription/status  -> SubscriptionStatus
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pixelproof/pixelproof/internal/auth"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/repository"
	"github.com/pixelproof/pixelproof/internal/service"
)

// AccountHandler serves quota usage and subscription status.
type AccountHandler struct {
	gate     service.QuotaGate
	resolver service.Resolver
	subs     repository.SubscriptionStore
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(gate service.QuotaGate, resolver service.Resolver, subs repository.SubscriptionStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		gate:     gate,
		resolver: resolver,
		subs:     subs,
		logger:   logger,
	}
}

// RegisterRoutes registers account routes on the provided mux.
func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux, requireIdentity func(http.Handler) http.Handler) {
	mux.Handle("GET /api/quota", requireIdentity(http.HandlerFunc(h.Quota)))
	mux.Handle("GET /api/subscription/status", requireIdentity(http.HandlerFunc(h.SubscriptionStatus)))
}

// Quota reports today's usage without consuming a unit.
func (h *AccountHandler) Quota(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromRequest(r)

	usage, err := h.gate.Usage(r.Context(), string(identity))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usage)
}

// subscriptionStatusResponse is the account page's subscription view.
type subscriptionStatusResponse struct {
	HasAccess         bool          `json:"has_access"`
	Plan              domain.PlanID `json:"plan,omitempty"`
	Status            string        `json:"status"`
	CancelAtPeriodEnd bool          `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time    `json:"current_period_end,omitempty"`
}

// SubscriptionStatus reports the resolved entitlement plus snapshot details.
func (h *AccountHandler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromRequest(r)

	resp := subscriptionStatusResponse{Status: string(domain.SubscriptionStatusNone)}

	ent, err := h.resolver.Resolve(r.Context(), string(identity))
	switch domain.ErrorCode(err) {
	case "":
		resp.HasAccess = ent.HasAccess
		resp.Plan = ent.Plan
	case domain.ENOCUSTOMER:
		// Read-only view; never checked out reads as no access.
	default:
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Snapshot details are best-effort decoration.
	if rec, recErr := h.subs.Get(r.Context(), string(identity)); recErr == nil && rec != nil {
		resp.Status = string(rec.Status)
		resp.CancelAtPeriodEnd = rec.CancelAtPeriodEnd
		resp.CurrentPeriodEnd = rec.CurrentPeriodEnd
	}

	writeJSON(w, http.StatusOK, resp)
}
