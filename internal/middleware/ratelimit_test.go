package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllowWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, nil, testLogger())
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("third request allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other IP rejected")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("request rejected after the window reset")
	}
}

func TestEvict(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, nil, testLogger())
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("1.2.3.4")
	now = now.Add(90 * time.Second)
	rl.Allow("5.6.7.8")
	now = now.Add(60 * time.Second)

	if n := rl.evict(); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if rl.TrackedClients() != 1 {
		t.Errorf("tracked = %d", rl.TrackedClients())
	}
}

func TestMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, []string{"10.0.0.1"}, testLogger())
	limited := 0
	rl.OnLimited(func() { limited++ })

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/stands", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := do("192.0.2.1:1234", ""); rr.Code != http.StatusOK {
		t.Fatalf("first request = %d", rr.Code)
	}
	rr := do("192.0.2.1:1234", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if limited != 1 {
		t.Errorf("OnLimited called %d times", limited)
	}

	for i := 0; i < 3; i++ {
		if rr := do("10.0.0.1:999", ""); rr.Code != http.StatusOK {
			t.Errorf("whitelisted request %d = %d", i, rr.Code)
		}
	}

	if rr := do("10.0.0.2:1", "198.51.100.7, 10.0.0.2"); rr.Code != http.StatusOK {
		t.Errorf("forwarded client first request = %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, xff, xri, want string
	}{
		{"192.0.2.1:1234", "", "", "192.0.2.1"},
		{"192.0.2.1:1234", "198.51.100.7, 10.0.0.1", "", "198.51.100.7"},
		{"192.0.2.1:1234", "198.51.100.7:5555", "", "198.51.100.7"},
		{"192.0.2.1:1234", "", "203.0.113.9", "203.0.113.9"},
		{"pipe", "", "", "pipe"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if tt.xri != "" {
			req.Header.Set("X-Real-IP", tt.xri)
		}
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q, %q, %q) = %q, want %q", tt.remote, tt.xff, tt.xri, got, tt.want)
		}
	}
}
