package payment

import (
	"context"
	"fmt"
	"net/http"

	"dgc-transports/internal/config"
	"dgc-transports/internal/logger"
)

// Verifier answers whether a payment reference was settled. It is called
// once per confirmation, without retries. A non-nil error means the answer
// is unknown, not that the payment failed.
type Verifier interface {
	Verify(ctx context.Context, reference string) (bool, error)
}

// New builds the verifier selected by cfg.Provider.
func New(cfg config.PaymentConfig, log *logger.Logger) (Verifier, error) {
	switch cfg.Provider {
	case "gateway", "":
		return NewGatewayVerifier(cfg.GatewayBaseURL, cfg.GatewaySecret, &http.Client{Timeout: cfg.Timeout}, log), nil
	case "stripe":
		return NewStripeVerifier(cfg.StripeSecretKey, nil, log)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
