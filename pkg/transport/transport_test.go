package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"forgecore/pkg/apierr"
)

type staticCreds struct {
	token       string
	refreshable bool
	refreshed   atomic.Bool
}

func (s *staticCreds) Token(ctx context.Context) (string, error) { return s.token, nil }
func (s *staticCreds) ExtraHeaders(ctx context.Context) map[string]string {
	return map[string]string{"session_id": "abc"}
}
func (s *staticCreds) Refresh(ctx context.Context) bool {
	if !s.refreshable {
		return false
	}
	s.refreshed.Store(true)
	s.token = "refreshed-token"
	return true
}

func TestPostSucceedsOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("session_id") != "abc" {
			t.Errorf("expected session_id header, got %q", r.Header.Get("session_id"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, &staticCreds{token: "tok"})
	resp, err := c.Post(context.Background(), "/v1/chat", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRetriesOn500ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, &staticCreds{token: "tok"})
	c.Retry.InitialBackoff = 1
	c.Retry.MinDelay = 1
	resp, err := c.Get(context.Background(), "/ping", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if calls != 2 {
		t.Fatalf("expected 2 calls (1 failure + 1 retry), got %d", calls)
	}
}

func TestRefreshesOn401Once(t *testing.T) {
	var sawTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTokens = append(sawTokens, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer stale" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	creds := &staticCreds{token: "stale", refreshable: true}
	c := New(srv.URL, creds)
	resp, err := c.Get(context.Background(), "/ping", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if !creds.refreshed.Load() {
		t.Fatalf("expected credentials to be refreshed")
	}
	if len(sawTokens) != 2 || sawTokens[0] != "Bearer stale" || sawTokens[1] != "Bearer refreshed-token" {
		t.Fatalf("unexpected token sequence: %v", sawTokens)
	}
}

func TestNonRetryableStatusReturnsProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, &staticCreds{token: "tok"})
	_, err := c.Get(context.Background(), "/ping", nil)
	if err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if !apierr.Is(err, apierr.ProviderHTTP) {
		t.Fatalf("expected ProviderHTTP kind, got %v", err)
	}
}

func TestSanitizeHeadersRedactsSensitiveValues(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Api-Key", "secret-key")
	h.Set("Content-Type", "application/json")

	sanitized := SanitizeHeaders(h)
	if sanitized.Get("Authorization") != "[redacted]" {
		t.Fatalf("expected Authorization redacted, got %q", sanitized.Get("Authorization"))
	}
	if sanitized.Get("X-Api-Key") != "[redacted]" {
		t.Fatalf("expected X-Api-Key redacted, got %q", sanitized.Get("X-Api-Key"))
	}
	if sanitized.Get("Content-Type") != "application/json" {
		t.Fatalf("expected Content-Type untouched, got %q", sanitized.Get("Content-Type"))
	}
}
