// Package service contains the business logic layer.
//
// This file implements the event reconciler: the webhook-driven process that
// keeps local subscription snapshots eventually consistent with Stripe.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/pixelproof/pixelproof/internal/billing"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/repository"
)

// Reconciler consumes verified Stripe events and folds them into local state.
//
// Processing is idempotent: every event is logged keyed by its event id, and
// snapshot writes are last-write-wins upserts, so at-least-once delivery and
// replays are harmless. Lifecycle events for customers with no known identity
// mapping are parked as orphans rather than dropped.
type Reconciler struct {
	store   repository.Store
	billing billing.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(store repository.Store, billingSvc billing.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		billing: billingSvc,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessEvent handles one verified event. rawSize is the payload size in
// bytes, recorded in the event log for observability.
//
// The event is logged before any state change so even events of unhandled
// types leave an audit trail. Errors from individual steps are returned for
// logging but the caller (the webhook handler) still acknowledges receipt;
// Stripe retries are the recovery mechanism for transient failures.
func (r *Reconciler) ProcessEvent(ctx context.Context, event stripe.Event, rawSize int) error {
	const op = "reconciler.process_event"

	// Replay short-circuit. The snapshot upserts are last-write-wins, so
	// reprocessing would be harmless but wasteful; a lookup failure here is
	// non-fatal for the same reason.
	seen, err := r.store.HasEvent(ctx, event.ID)
	if err != nil {
		r.logger.Warn("event log lookup failed; processing anyway", "event_id", event.ID, "error", err)
	} else if seen {
		r.logger.Debug("skipping replayed webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}

	entry := &domain.EventLogEntry{
		EventID:      event.ID,
		Type:         string(event.Type),
		Created:      time.Unix(event.Created, 0).UTC(),
		Livemode:     event.Livemode,
		RawSizeBytes: rawSize,
		ReceivedAt:   r.now(),
	}
	if event.Data != nil {
		entry.ObjectType = objectType(event.Data.Raw)
	}

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return r.handleSubscriptionEvent(ctx, op, event, entry)

	case "checkout.session.completed":
		return r.handleCheckoutCompleted(ctx, op, event, entry)

	default:
		// Unhandled type: log and move on.
		if err := r.store.LogEvent(ctx, entry); err != nil {
			return domain.Internal(err, op, "failed to log event")
		}
		r.logger.Debug("ignoring webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (r *Reconciler) handleSubscriptionEvent(ctx context.Context, op string, event stripe.Event, entry *domain.EventLogEntry) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		_ = r.store.LogEvent(ctx, entry)
		return domain.Internal(err, op, "failed to decode subscription payload")
	}

	entry.SubscriptionID = sub.ID
	if sub.Customer != nil {
		entry.CustomerID = sub.Customer.ID
	}

	rec, err := r.store.GetByCustomerID(ctx, entry.CustomerID)
	if err != nil {
		_ = r.store.LogEvent(ctx, entry)
		return domain.Internal(err, op, "failed to look up customer mapping")
	}
	if rec == nil {
		// No identity mapping yet. Webhooks can outrun checkout.session.completed,
		// so park the event instead of dropping it.
		if logErr := r.store.LogEvent(ctx, entry); logErr != nil {
			return domain.Internal(logErr, op, "failed to log event")
		}
		orphan := &domain.OrphanEvent{
			SubscriptionID: sub.ID,
			CustomerID:     entry.CustomerID,
			Status:         string(sub.Status),
			Reason:         fmt.Sprintf("no identity mapping for customer at %s", event.Type),
			CreatedAt:      r.now(),
		}
		if err := r.store.ParkOrphan(ctx, orphan); err != nil {
			return domain.Internal(err, op, "failed to park orphan event")
		}
		r.logger.Warn("parked orphan subscription event",
			"event_id", event.ID,
			"subscription_id", sub.ID,
			"customer_id", entry.CustomerID,
		)
		return nil
	}

	entry.Identity = rec.Identity
	if err := r.store.LogEvent(ctx, entry); err != nil {
		return domain.Internal(err, op, "failed to log event")
	}

	if err := r.writeSnapshot(ctx, rec.Identity, &sub); err != nil {
		return domain.Internal(err, op, "failed to write subscription snapshot")
	}
	r.logger.Info("reconciled subscription event",
		"event_id", event.ID,
		"type", event.Type,
		"identity", rec.Identity,
		"status", sub.Status,
	)
	return nil
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, op string, event stripe.Event, entry *domain.EventLogEntry) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		_ = r.store.LogEvent(ctx, entry)
		return domain.Internal(err, op, "failed to decode checkout session payload")
	}
	if sess.Mode != stripe.CheckoutSessionModeSubscription {
		return r.store.LogEvent(ctx, entry)
	}

	if sess.Customer != nil {
		entry.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		entry.SubscriptionID = sess.Subscription.ID
	}

	identity := sess.Metadata["uid"]
	entry.Identity = identity
	if err := r.store.LogEvent(ctx, entry); err != nil {
		return domain.Internal(err, op, "failed to log event")
	}

	if identity == "" || entry.CustomerID == "" {
		r.logger.Warn("checkout session missing identity metadata or customer",
			"event_id", event.ID,
			"customer_id", entry.CustomerID,
		)
		return nil
	}

	if err := r.store.LinkCustomer(ctx, identity, entry.CustomerID); err != nil {
		return domain.Internal(err, op, "failed to link customer")
	}

	// Eagerly hydrate the snapshot so access works before the first
	// customer.subscription.* event lands.
	if entry.SubscriptionID != "" && r.billing != nil {
		sub, err := r.billing.GetSubscription(entry.SubscriptionID)
		if err != nil {
			r.logger.Warn("failed to hydrate subscription after checkout; relying on lifecycle events",
				"event_id", event.ID,
				"subscription_id", entry.SubscriptionID,
				"error", err,
			)
			return nil
		}
		if err := r.writeSnapshot(ctx, identity, sub); err != nil {
			return domain.Internal(err, op, "failed to write subscription snapshot")
		}
	}

	r.logger.Info("linked checkout to identity",
		"event_id", event.ID,
		"identity", identity,
		"customer_id", entry.CustomerID,
	)
	return nil
}

// writeSnapshot flattens a Stripe subscription into the local record.
func (r *Reconciler) writeSnapshot(ctx context.Context, identity string, sub *stripe.Subscription) error {
	rec := &domain.SubscriptionRecord{
		Identity:          identity,
		Status:            domain.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		SubscriptionID:    sub.ID,
		UpdatedAt:         r.now(),
	}
	if sub.Customer != nil {
		rec.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		rec.CurrentPeriodEnd = &t
	}

	var price *stripe.Price
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		price = sub.Items.Data[0].Price
	}
	if price != nil {
		rec.PriceID = price.ID
		rec.PriceLookupKey = price.LookupKey
		rec.PriceNickname = price.Nickname
		rec.AmountCents = price.UnitAmount
		rec.Currency = string(price.Currency)
		if price.Product != nil {
			rec.ProductName = price.Product.Name
		}
	}
	if r.billing != nil {
		rec.PlanID = r.billing.PlanForPrice(price)
	}
	if rec.PlanID == "" {
		rec.PlanID = rec.InferPlan()
	}

	return r.store.Upsert(ctx, rec)
}

// objectType pulls the "object" discriminator out of the event payload.
func objectType(raw json.RawMessage) string {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Object
}
