// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/product"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/pixelproof/pixelproof/internal/domain"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	// The identity is carried in session metadata so the webhook reconciler
	// can map it back to the Stripe customer.
	// Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID, identity, priceID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// GetSubscription retrieves a Stripe subscription by ID with its price expanded.
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)

	// ListSubscriptions lists a customer's subscriptions in any status,
	// most recent first, with prices expanded.
	ListSubscriptions(customerID string, limit int64) ([]*stripe.Subscription, error)

	// GetProduct retrieves a Stripe product (used for product-name plan inference).
	GetProduct(productID string) (*stripe.Product, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns
	// the event. Every configured signing secret is tried in turn so secrets
	// can be rotated without dropping events.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPrice resolves a plan from price metadata: lookup key, nickname,
	// then the configured price-id map. Returns "" when nothing matches.
	PlanForPrice(price *stripe.Price) domain.PlanID

	// PriceIDForPlan returns the configured Stripe price ID for a plan slug.
	PriceIDForPlan(plan domain.PlanID) string
}

// PriceConfig holds the Stripe price IDs for each plan.
type PriceConfig struct {
	BasicPriceID string
	ProPriceID   string
	ElitePriceID string

	// PlanByPriceID is an optional deployment-configured price->plan map
	// (STRIPE_PRICE_PLAN_MAP) consulted after lookup key and nickname.
	PlanByPriceID map[string]domain.PlanID
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecrets []string
	prices         PriceConfig
	planByPrice    map[string]domain.PlanID // price ID -> plan
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey authenticates Stripe API calls. webhookSecrets verify
// incoming webhook signatures; more than one may be configured during
// secret rotation. The prices configure which price IDs map to which plans.
func NewStripeService(secretKey string, webhookSecrets []string, prices PriceConfig) Service {
	stripe.Key = secretKey

	planByPrice := make(map[string]domain.PlanID)
	if prices.BasicPriceID != "" {
		planByPrice[prices.BasicPriceID] = domain.PlanBasic
	}
	if prices.ProPriceID != "" {
		planByPrice[prices.ProPriceID] = domain.PlanPro
	}
	if prices.ElitePriceID != "" {
		planByPrice[prices.ElitePriceID] = domain.PlanElite
	}
	for id, plan := range prices.PlanByPriceID {
		planByPrice[id] = plan
	}

	return &stripeService{
		webhookSecrets: webhookSecrets,
		prices:         prices,
		planByPrice:    planByPrice,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(customerID, identity, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	// The reconciler reads this back from checkout.session.completed to map
	// identity <-> customer.
	params.AddMetadata("uid", identity)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("items.data.price")
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeService) ListSubscriptions(customerID string, limit int64) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Limit = stripe.Int64(limit)
	// Shallow expand only; the product is fetched separately when needed.
	params.AddExpand("data.items.data.price")

	var subs []*stripe.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *stripeService) GetProduct(productID string) (*stripe.Product, error) {
	p, err := product.Get(productID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get product: %w", err)
	}
	return p, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	var lastErr error
	for _, secret := range s.webhookSecrets {
		event, err := webhook.ConstructEvent(payload, signature, secret)
		if err == nil {
			return event, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no webhook signing secret configured")
	}
	return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", lastErr)
}

func (s *stripeService) PlanForPrice(price *stripe.Price) domain.PlanID {
	return PlanForPrice(price, s.planByPrice)
}

func (s *stripeService) PriceIDForPlan(plan domain.PlanID) string {
	switch plan {
	case domain.PlanBasic:
		return s.prices.BasicPriceID
	case domain.PlanPro:
		return s.prices.ProPriceID
	case domain.PlanElite:
		return s.prices.ElitePriceID
	default:
		return ""
	}
}

// PlanForPrice resolves a plan from price metadata in a fixed order:
// lookup key, nickname, then the configured price-id map. The caller falls
// back to product-name matching when this returns "".
func PlanForPrice(price *stripe.Price, planByPriceID map[string]domain.PlanID) domain.PlanID {
	if price == nil {
		return ""
	}
	if p := domain.PlanFromString(price.LookupKey); p != "" {
		return p
	}
	if p := domain.PlanFromString(price.Nickname); p != "" {
		return p
	}
	if p, ok := planByPriceID[price.ID]; ok {
		return p
	}
	return ""
}
