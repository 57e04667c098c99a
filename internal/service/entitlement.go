// Package service contains the business logic layer.
//
// This file implements the subscription resolver: given an identity, decide
// whether it has paid access right now and under which plan.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v79"

	"github.com/pixelproof/pixelproof/internal/billing"
	"github.com/pixelproof/pixelproof/internal/cache"
	"github.com/pixelproof/pixelproof/internal/domain"
	"github.com/pixelproof/pixelproof/internal/repository"
)

// Resolver strategy names, selected by ENTITLEMENT_STRATEGY.
const (
	StrategyRecord = "record" // trust the local webhook-maintained snapshot
	StrategyStripe = "stripe" // ask Stripe directly on every check
)

// Resolver answers "does this identity have access right now, and under
// which plan?".
//
// Expected failure modes are typed domain errors: ENOCUSTOMER when the
// identity has no billing account (live strategy only), EUNAVAILABLE when
// the upstream lookup timed out or the breaker is open. An entitlement with
// HasAccess=false is not an error.
type Resolver interface {
	Resolve(ctx context.Context, identity string) (domain.Entitlement, error)
}

// =============================================================================
// Strategy A: local snapshot record
// =============================================================================

// RecordResolver resolves entitlement from the local SubscriptionRecord that
// the event reconciler keeps up to date.
type RecordResolver struct {
	subs   repository.SubscriptionStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRecordResolver creates a snapshot-backed resolver.
func NewRecordResolver(subs repository.SubscriptionStore, logger *slog.Logger) *RecordResolver {
	return &RecordResolver{
		subs:   subs,
		logger: logger,
		now:    time.Now,
	}
}

func (r *RecordResolver) Resolve(ctx context.Context, identity string) (domain.Entitlement, error) {
	const op = "entitlement.resolve_record"

	rec, err := r.subs.Get(ctx, identity)
	if err != nil {
		return domain.Entitlement{}, domain.Internal(err, op, "failed to read subscription record")
	}
	if rec == nil {
		// Never checked out; the gate turns this into a no-plan denial.
		return domain.Entitlement{}, nil
	}

	ent := domain.Entitlement{
		HasAccess: rec.HasAccess(r.now()),
		Plan:      rec.InferPlan(),
	}
	if ent.HasAccess && ent.Plan == "" {
		r.logger.Warn("subscription record has access but no resolvable plan",
			"identity", identity,
			"status", rec.Status,
			"price_id", rec.PriceID,
		)
	}
	return ent, nil
}

// =============================================================================
// Strategy B: authoritative live lookup
// =============================================================================

// StripeResolver resolves entitlement by querying Stripe directly. The live
// call is wrapped in a circuit breaker so a billing outage degrades to a
// retryable "unavailable" answer instead of cascading latency, and results
// are cached briefly when a cache is configured.
type StripeResolver struct {
	subs    repository.SubscriptionStore
	billing billing.Service
	cache   cache.EntitlementCache // may be nil
	breaker *gobreaker.CircuitBreaker[[]*stripe.Subscription]
	logger  *slog.Logger
	now     func() time.Time
}

// NewStripeResolver creates a live-lookup resolver. entCache may be nil.
func NewStripeResolver(subs repository.SubscriptionStore, billingSvc billing.Service, entCache cache.EntitlementCache, logger *slog.Logger) *StripeResolver {
	breaker := gobreaker.NewCircuitBreaker[[]*stripe.Subscription](gobreaker.Settings{
		Name:    "stripe-subscriptions",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &StripeResolver{
		subs:    subs,
		billing: billingSvc,
		cache:   entCache,
		breaker: breaker,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *StripeResolver) Resolve(ctx context.Context, identity string) (domain.Entitlement, error) {
	const op = "entitlement.resolve_stripe"

	if r.cache != nil {
		if ent, err := r.cache.Get(ctx, identity); err == nil && ent != nil {
			return *ent, nil
		}
	}

	rec, err := r.subs.Get(ctx, identity)
	if err != nil {
		return domain.Entitlement{}, domain.Internal(err, op, "failed to read customer mapping")
	}
	if rec == nil || rec.CustomerID == "" {
		// Distinct from no-plan: there is no billing account to even ask about.
		return domain.Entitlement{}, domain.NoCustomer(op)
	}

	subs, err := r.breaker.Execute(func() ([]*stripe.Subscription, error) {
		return r.billing.ListSubscriptions(rec.CustomerID, 5)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Warn("stripe circuit breaker open", "identity", identity)
		}
		// A timeout or outage must surface as retryable, never as no-plan:
		// telling the user to buy a plan they already pay for is worse than
		// asking them to retry.
		return domain.Entitlement{}, domain.Unavailable(err, op)
	}

	sub := pickSubscription(subs, r.now())
	if sub == nil {
		ent := domain.Entitlement{}
		r.cacheSet(ctx, identity, ent)
		return ent, nil
	}

	ent := domain.Entitlement{HasAccess: true, Plan: r.planFor(sub)}
	r.cacheSet(ctx, identity, ent)
	return ent, nil
}

// pickSubscription chooses which of a customer's subscriptions counts.
// Active/trialing wins over a grace-period match; among equals the first
// returned by the platform is taken.
func pickSubscription(subs []*stripe.Subscription, now time.Time) *stripe.Subscription {
	for _, s := range subs {
		if s.Status == stripe.SubscriptionStatusActive || s.Status == stripe.SubscriptionStatusTrialing {
			return s
		}
	}
	for _, s := range subs {
		if s.CancelAtPeriodEnd && s.CurrentPeriodEnd > now.Unix() {
			return s
		}
	}
	return nil
}

func (r *StripeResolver) planFor(sub *stripe.Subscription) domain.PlanID {
	var price *stripe.Price
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		price = sub.Items.Data[0].Price
	}

	if plan := r.billing.PlanForPrice(price); plan != "" {
		return plan
	}

	// Last resort: fetch the product and match its name.
	if price != nil && price.Product != nil && price.Product.ID != "" {
		prod, err := r.billing.GetProduct(price.Product.ID)
		if err != nil {
			r.logger.Warn("failed to fetch product for plan inference",
				"product_id", price.Product.ID, "error", err)
			return ""
		}
		return domain.PlanFromString(prod.Name)
	}
	return ""
}

func (r *StripeResolver) cacheSet(ctx context.Context, identity string, ent domain.Entitlement) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, identity, ent); err != nil {
		r.logger.Debug("entitlement cache set failed", "identity", identity, "error", err)
	}
}
