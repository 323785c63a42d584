// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

// Package captcha verifies reCAPTCHA and hCaptcha responses against the
// provider's siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
)

// Siteverify endpoints.
const (
	RecaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"
	HCaptchaEndpoint  = "https://hcaptcha.com/siteverify"
)

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 64 << 10

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier implements auth.CaptchaVerifier for one provider.
type Verifier struct {
	client   *http.Client
	endpoint string
	secret   string
}

// New creates a Verifier for provider ("recaptcha" or "hcaptcha").
func New(provider, secret string, timeout time.Duration) (*Verifier, error) {
	var endpoint string
	switch provider {
	case "recaptcha":
		endpoint = RecaptchaEndpoint
	case "hcaptcha":
		endpoint = HCaptchaEndpoint
	default:
		return nil, oops.Code("CAPTCHA_UNKNOWN_PROVIDER").With("provider", provider).Errorf("unknown captcha provider %q", provider)
	}
	if secret == "" {
		return nil, oops.Code("CAPTCHA_MISSING_SECRET").With("provider", provider).Errorf("captcha secret is required")
	}
	return NewWithEndpoint(endpoint, secret, &http.Client{Timeout: timeout}), nil
}

// NewWithEndpoint creates a Verifier posting to endpoint with client.
func NewWithEndpoint(endpoint, secret string, client *http.Client) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Verifier{client: client, endpoint: endpoint, secret: secret}
}

// Verify reports whether the provider accepts token. An empty token is
// rejected without a request. Transport failures and non-200 replies are
// errors, not rejections.
func (v *Verifier) Verify(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, oops.Code("CAPTCHA_REQUEST_FAILED").With("endpoint", v.endpoint).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, oops.Code("CAPTCHA_REQUEST_FAILED").With("endpoint", v.endpoint).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, oops.Code("CAPTCHA_UNEXPECTED_STATUS").
			With("endpoint", v.endpoint).
			With("status", resp.StatusCode).
			Errorf("siteverify returned %s", resp.Status)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return false, oops.Code("CAPTCHA_DECODE_FAILED").With("endpoint", v.endpoint).Wrap(err)
	}
	return body.Success, nil
}

// Compile-time interface check.
var _ auth.CaptchaVerifier = (*Verifier)(nil)
