package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/stripe/stripe-go/v79"

	"github.com/pixelproof/pixelproof/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBilling is a canned-response billing service for tests.
type fakeBilling struct {
	subs        []*stripe.Subscription
	listErr     error
	subByID     map[string]*stripe.Subscription
	products    map[string]*stripe.Product
	planByPrice map[string]domain.PlanID

	listCalls       int
	getProductCalls int
}

func (f *fakeBilling) CreateCustomer(email, name string) (string, error) {
	return "cus_fake", nil
}

func (f *fakeBilling) CreateCheckoutSession(customerID, identity, priceID, successURL, cancelURL string) (string, error) {
	return "https://checkout.example/session", nil
}

func (f *fakeBilling) CreatePortalSession(customerID, returnURL string) (string, error) {
	return "https://billing.example/portal", nil
}

func (f *fakeBilling) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, ok := f.subByID[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
	}
	return sub, nil
}

func (f *fakeBilling) ListSubscriptions(customerID string, limit int64) ([]*stripe.Subscription, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs, nil
}

func (f *fakeBilling) GetProduct(productID string) (*stripe.Product, error) {
	f.getProductCalls++
	p, ok := f.products[productID]
	if !ok {
		return nil, fmt.Errorf("no such product: %s", productID)
	}
	return p, nil
}

func (f *fakeBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	return stripe.Event{}, fmt.Errorf("not implemented")
}

func (f *fakeBilling) PlanForPrice(price *stripe.Price) domain.PlanID {
	if price == nil {
		return ""
	}
	if p := domain.PlanFromString(price.LookupKey); p != "" {
		return p
	}
	if p := domain.PlanFromString(price.Nickname); p != "" {
		return p
	}
	return f.planByPrice[price.ID]
}

func (f *fakeBilling) PriceIDForPlan(plan domain.PlanID) string {
	return "price_" + string(plan)
}

// fakeResolver returns a fixed entitlement or error.
type fakeResolver struct {
	ent   domain.Entitlement
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, identity string) (domain.Entitlement, error) {
	f.calls++
	if f.err != nil {
		return domain.Entitlement{}, f.err
	}
	return f.ent, nil
}
