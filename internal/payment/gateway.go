package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"
)

// GatewayVerifier calls GET {base}/transaction/verify/{reference} on a
// Paystack-style gateway.
type GatewayVerifier struct {
	baseURL string
	secret  string
	client  *http.Client
	log     *logger.Logger
}

func NewGatewayVerifier(baseURL, secret string, client *http.Client, log *logger.Logger) *GatewayVerifier {
	return &GatewayVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  client,
		log:     log,
	}
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	} `json:"data"`
}

func (g *GatewayVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	if strings.TrimSpace(reference) == "" {
		return false, domain.Validation("reference", "required")
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", g.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, domain.Internal("build verify request", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Error("PAYMENT", fmt.Sprintf("verify %s: gateway unreachable: %v", reference, err))
		return false, domain.Unavailable("payment gateway", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, domain.Unavailable("payment gateway", err)
	}

	switch {
	case resp.StatusCode >= 500:
		g.log.Error("PAYMENT", fmt.Sprintf("verify %s: gateway returned %d", reference, resp.StatusCode))
		return false, domain.Unavailable("payment gateway", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		g.log.Warn("PAYMENT", fmt.Sprintf("verify %s: gateway rejected reference (%d)", reference, resp.StatusCode))
		return false, nil
	}

	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, domain.Unavailable("payment gateway", fmt.Errorf("decode verify response: %w", err))
	}

	ok := parsed.Status && strings.EqualFold(parsed.Data.Status, "success")
	g.log.Info("PAYMENT", fmt.Sprintf("verify %s: gateway status=%q settled=%t", reference, parsed.Data.Status, ok))
	return ok, nil
}
