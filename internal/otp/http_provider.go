package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	statusSuccess      = "SUCCESS"
)

// HTTPConfig points the provider at a hosted verification API.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPProvider talks to a hosted verification API that keeps code state on
// its side: POST /verifications/start and POST /verifications/check.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	now     func() time.Time
}

type startRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Method      string `json:"method"`
}

type startResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type checkRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

type checkResponse struct {
	Status string `json:"status"`
}

// NewHTTPProvider builds a client for the hosted API.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("otp: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("otp: api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		now:     time.Now,
	}, nil
}

// Send starts a verification for channel.
func (p *HTTPProvider) Send(ctx context.Context, channel string, method Method) (Receipt, error) {
	status, body, err := p.post(ctx, "/verifications/start", startRequest{PhoneNumber: channel, Method: string(method)})
	if err != nil {
		return Receipt{}, err
	}
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return Receipt{}, ErrInvalidChannel
	case status == http.StatusTooManyRequests:
		return Receipt{}, ErrQuotaExceeded
	case status < 200 || status > 299:
		return Receipt{}, fmt.Errorf("%w: start returned status %d", ErrProviderUnavailable, status)
	}

	var resp startResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return Receipt{}, fmt.Errorf("%w: decode start response: %v", ErrProviderUnavailable, err)
		}
	}
	id := resp.ID
	if id == "" {
		id = uuid.NewString()
	}
	return Receipt{ID: id, Channel: channel, Method: method, SentAt: p.now().UTC()}, nil
}

// Check asks the API whether code is the pending code for channel.
func (p *HTTPProvider) Check(ctx context.Context, channel, code string) (CheckResult, error) {
	status, body, err := p.post(ctx, "/verifications/check", checkRequest{PhoneNumber: channel, Code: code})
	if err != nil {
		return CheckResult{}, err
	}
	switch {
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusGone, status == http.StatusUnprocessableEntity:
		return CheckResult{}, nil
	case status < 200 || status > 299:
		return CheckResult{}, fmt.Errorf("%w: check returned status %d", ErrProviderUnavailable, status)
	}

	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CheckResult{}, fmt.Errorf("%w: decode check response: %v", ErrProviderUnavailable, err)
	}
	return CheckResult{Matched: strings.EqualFold(resp.Status, statusSuccess)}, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil || timeout <= 0 {
		return 0, nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, context.DeadlineExceeded)
	}

	agent := fiber.Post(p.baseURL + path)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+p.apiKey)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	agent.JSON(payload)
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, errors.Join(errs...))
	}
	return status, body, nil
}
