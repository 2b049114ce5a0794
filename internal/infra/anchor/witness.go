package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"trustpack/internal/domain"
)

// WitnessClient anchors tree-head payloads against an HTTP witness that
// accepts the canonical commitment and returns an opaque reference.
type WitnessClient struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

const maxWitnessBodyBytes = 64 * 1024

func NewWitnessClient(baseURL string, httpClient *http.Client) (*WitnessClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("witness base url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &WitnessClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
	}, nil
}

func (c *WitnessClient) ProviderName() string {
	return "http-witness"
}

func (c *WitnessClient) Anchor(ctx context.Context, payload Payload) domain.AnchorAttempt {
	if c == nil {
		return failedAttempt("http-witness", domain.AnchorErrorBadConfig)
	}

	url := c.baseURL + "/v1/anchors"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload.CanonicalJSON))
	if err != nil {
		return failedAttempt(c.ProviderName(), domain.AnchorErrorBadConfig)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpDo(req)
	if err != nil {
		return failedAttempt(c.ProviderName(), errorToCode(ctx, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWitnessBodyBytes))
	if err != nil {
		return failedAttempt(c.ProviderName(), errorToCode(ctx, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failedAttempt(c.ProviderName(), statusToErrorCode(resp.StatusCode))
	}

	var witnessResp struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &witnessResp); err != nil || witnessResp.Ref == "" {
		return failedAttempt(c.ProviderName(), domain.AnchorErrorProviderError)
	}
	return domain.AnchorAttempt{
		Provider:   c.ProviderName(),
		Status:     domain.AnchorStatusAnchored,
		WitnessRef: witnessResp.Ref,
	}
}

func failedAttempt(provider, code string) domain.AnchorAttempt {
	return domain.AnchorAttempt{
		Provider:  provider,
		Status:    domain.AnchorStatusFailed,
		ErrorCode: code,
	}
}

func statusToErrorCode(code int) string {
	if code == http.StatusTooManyRequests {
		return domain.AnchorErrorRateLimit
	}
	if code >= 500 {
		return domain.AnchorErrorProvider5xx
	}
	return domain.AnchorErrorProviderError
}

func errorToCode(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.AnchorErrorTimeout
	}
	return domain.AnchorErrorNetwork
}
