package otp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type hostedAPI struct {
	code        string
	startStatus int
}

func (h *hostedAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/verifications/start":
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "SMS" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if h.startStatus != 0 {
			w.WriteHeader(h.startStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(startResponse{ID: "ver_123", Status: "PENDING"})
	case "/v1/verifications/check":
		var req checkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		status := "FAILED"
		if req.Code == h.code {
			status = statusSuccess
		}
		_ = json.NewEncoder(w).Encode(checkResponse{Status: status})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newHostedProvider(t *testing.T, api *hostedAPI) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: srv.URL + "/v1/", APIKey: "test-key", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return p
}

func TestHTTPProviderStartAndCheck(t *testing.T) {
	api := &hostedAPI{code: "482913"}
	p := newHostedProvider(t, api)
	ctx := context.Background()

	receipt, err := p.Send(ctx, phone, MethodSMS)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.ID != "ver_123" {
		t.Fatalf("expected provider receipt id, got %s", receipt.ID)
	}

	res, err := p.Check(ctx, phone, "482913")
	if err != nil || !res.Matched {
		t.Fatalf("expected match, got %+v err=%v", res, err)
	}
	res, err = p.Check(ctx, phone, "000000")
	if err != nil || res.Matched {
		t.Fatalf("expected mismatch, got %+v err=%v", res, err)
	}
}

func TestHTTPProviderStatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnprocessableEntity: ErrInvalidChannel,
		http.StatusTooManyRequests:     ErrQuotaExceeded,
		http.StatusBadGateway:          ErrProviderUnavailable,
	}
	for status, want := range cases {
		p := newHostedProvider(t, &hostedAPI{startStatus: status})
		if _, err := p.Send(context.Background(), phone, MethodSMS); !errors.Is(err, want) {
			t.Fatalf("status %d: expected %v, got %v", status, want, err)
		}
	}
}

func TestHTTPProviderUnreachable(t *testing.T) {
	srv := httptest.NewServer(&hostedAPI{})
	url := srv.URL
	srv.Close()

	p, err := NewHTTPProvider(HTTPConfig{BaseURL: url, APIKey: "test-key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Check(context.Background(), phone, "482913"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestNewHTTPProviderRequiresSettings(t *testing.T) {
	if _, err := NewHTTPProvider(HTTPConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing url error")
	}
	if _, err := NewHTTPProvider(HTTPConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
