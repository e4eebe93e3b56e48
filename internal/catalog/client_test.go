package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"clipwise/internal/catalog"
	"clipwise/internal/services"
)

func TestClientRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	client := catalog.NewClient(catalog.ClientOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}, nil)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got ok=%v calls=%d", out.OK, calls.Load())
	}
}

func TestClientClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		marker    error
	}{
		{name: "client error is permanent", status: http.StatusForbidden, wantCalls: 1, marker: services.ErrPermanentInput},
		{name: "server error exhausts retries", status: http.StatusBadGateway, wantCalls: 2, marker: services.ErrTransientIO},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := catalog.NewClient(catalog.ClientOptions{MaxAttempts: 2, InitialBackoff: time.Millisecond}, nil)
			var out map[string]any
			err := client.GetJSON(context.Background(), srv.URL, &out)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
			if calls.Load() != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, calls.Load())
			}
		})
	}
}

func TestClientRespectsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := catalog.NewClient(catalog.ClientOptions{RequestsPerSecond: 20}, nil)
	start := time.Now()
	for range 3 {
		var out map[string]any
		if err := client.GetJSON(context.Background(), srv.URL, &out); err != nil {
			t.Fatalf("GetJSON: %v", err)
		}
	}
	// Burst of one: the second and third requests each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected rate limiting, finished in %v", elapsed)
	}
}
