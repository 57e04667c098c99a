// Package handler contains the HTTP handlers for the PixelProof API.
//
// This file implements the Stripe webhook endpoint.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature.
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/pixelproof/pixelproof/internal/billing"
	"github.com/pixelproof/pixelproof/internal/metrics"
	"github.com/pixelproof/pixelproof/internal/service"
)

// maxWebhookBytes bounds the webhook payload (64KB).
const maxWebhookBytes = 65536

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing    billing.Service
	reconciler *service.Reconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, reconciler *service.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:    billingService,
		reconciler: reconciler,
		logger:     logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and processes one Stripe event.
//
// Response contract: 400 only for unreadable bodies or failed signature
// verification (Stripe retries those). Once an event is verified the handler
// acknowledges with 200 even if internal processing failed — the event log
// plus Stripe's retries are the recovery path, and a 5xx would make Stripe
// hammer an endpoint that already recorded the event.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.resolveEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	if err := h.reconciler.ProcessEvent(r.Context(), event, len(body)); err != nil {
		h.logger.Error("webhook processing failed", "type", event.Type, "id", event.ID, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
	} else {
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	}

	w.WriteHeader(http.StatusOK)
}
