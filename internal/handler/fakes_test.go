package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/pixelproof/pixelproof/internal/ai"
	"github.com/pixelproof/pixelproof/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGate returns fixed answers.
type fakeGate struct {
	result *domain.GateResult
	usage  *domain.QuotaUsage
	err    error
}

func (f *fakeGate) CheckAndConsume(ctx context.Context, identity string) (*domain.GateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeGate) Usage(ctx context.Context, identity string) (*domain.QuotaUsage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.usage, nil
}

// fakeResolver returns a fixed entitlement or error.
type fakeResolver struct {
	ent domain.Entitlement
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, identity string) (domain.Entitlement, error) {
	if f.err != nil {
		return domain.Entitlement{}, f.err
	}
	return f.ent, nil
}

// fakeComparisons records calls and returns canned results.
type fakeComparisons struct {
	report        *domain.ComparisonReport
	history       []domain.Comparison
	reportBody    string
	screenshotURL string
	err           error
	calls         int
	deleted       []uuid.UUID
}

func (f *fakeComparisons) Compare(ctx context.Context, identity string, image1, image2 ai.Image) (*domain.ComparisonReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func (f *fakeComparisons) History(ctx context.Context, identity string, limit int) ([]domain.Comparison, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

func (f *fakeComparisons) Report(ctx context.Context, identity string, id uuid.UUID) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.reportBody)), nil
}

func (f *fakeComparisons) ScreenshotURL(ctx context.Context, identity string, id uuid.UUID, slot string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.screenshotURL, nil
}

func (f *fakeComparisons) Delete(ctx context.Context, identity string, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeBilling is a canned-response billing service.
type fakeBilling struct {
	checkoutURL  string
	portalURL    string
	verifyEvent  stripe.Event
	verifySig    string // signature that verifies successfully
	priceByPlan  map[domain.PlanID]string
	checkoutErr  error
	lastIdentity string
}

func (f *fakeBilling) CreateCustomer(email, name string) (string, error) {
	return "cus_fake", nil
}

func (f *fakeBilling) CreateCheckoutSession(customerID, identity, priceID, successURL, cancelURL string) (string, error) {
	f.lastIdentity = identity
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.checkoutURL, nil
}

func (f *fakeBilling) CreatePortalSession(customerID, returnURL string) (string, error) {
	return f.portalURL, nil
}

func (f *fakeBilling) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
}

func (f *fakeBilling) ListSubscriptions(customerID string, limit int64) ([]*stripe.Subscription, error) {
	return nil, nil
}

func (f *fakeBilling) GetProduct(productID string) (*stripe.Product, error) {
	return nil, fmt.Errorf("no such product: %s", productID)
}

func (f *fakeBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if signature != f.verifySig || f.verifySig == "" {
		return stripe.Event{}, fmt.Errorf("signature verification failed")
	}
	return f.verifyEvent, nil
}

func (f *fakeBilling) PlanForPrice(price *stripe.Price) domain.PlanID {
	return ""
}

func (f *fakeBilling) PriceIDForPlan(plan domain.PlanID) string {
	return f.priceByPlan[plan]
}
