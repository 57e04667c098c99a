//go:build !devwebhook

package handler

import (
	"github.com/stripe/stripe-go/v79"
)

// resolveEvent verifies the signature and returns the event. In normal builds
// there is no way around verification; the unverified fallback only exists
// behind the devwebhook build tag.
func (h *WebhookHandler) resolveEvent(body []byte, signature string) (stripe.Event, error) {
	return h.billing.VerifyWebhookSignature(body, signature)
}
