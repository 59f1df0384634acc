package payment

import (
	"context"
	"errors"
	"fmt"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeVerifier treats the reference as a PaymentIntent id and accepts it
// once the intent has succeeded.
type StripeVerifier struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeVerifier builds a verifier. backends may be nil to use Stripe's
// public API.
func NewStripeVerifier(secretKey string, backends *stripe.Backends, log *logger.Logger) (*StripeVerifier, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(secretKey, backends)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized")
	return &StripeVerifier{client: sc, log: log}, nil
}

func (s *StripeVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, domain.Validation("reference", "required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(reference, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 {
			s.log.Warn("STRIPE", fmt.Sprintf("payment intent %s rejected: %s", reference, stripeErr.Msg))
			return false, nil
		}
		s.log.Error("STRIPE", fmt.Sprintf("payment intent %s lookup failed: %v", reference, err))
		return false, domain.Unavailable("stripe", err)
	}

	ok := pi.Status == stripe.PaymentIntentStatusSucceeded
	s.log.Info("STRIPE", fmt.Sprintf("payment intent %s status=%s settled=%t", reference, pi.Status, ok))
	return ok, nil
}
