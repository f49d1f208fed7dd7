package dispatcher

import (
	"net/http"
	"testing"
	"time"
)

// ── pathSuffix ──────────────────────────────────────────────────────────

func TestPathSuffix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         string
		wantOK       bool
	}{
		{"/applications/abc-123", "/applications/", "abc-123", true},
		{"/applications/abc-123/", "/applications/", "abc-123", true},
		{"/applications", "/applications/", "", false},
		{"/applications/", "/applications/", "", false},
		{"/other/thing", "/applications/", "", false},
	}
	for _, c := range cases {
		got, ok := pathSuffix(c.path, c.prefix)
		if got != c.want || ok != c.wantOK {
			t.Errorf("pathSuffix(%q, %q) = (%q, %v), want (%q, %v)", c.path, c.prefix, got, ok, c.want, c.wantOK)
		}
	}
}

// ── clientIP ────────────────────────────────────────────────────────────

func TestClientIP(t *testing.T) {
	cases := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.7:54321", "203.0.113.7"},
		{"[2001:db8::1]:443", "[2001:db8::1]"},
		{"no-port-here", "no-port-here"},
	}
	for _, c := range cases {
		r := &http.Request{RemoteAddr: c.remoteAddr}
		if got := clientIP(r); got != c.want {
			t.Errorf("clientIP(%q) = %q, want %q", c.remoteAddr, got, c.want)
		}
	}
}

// ── ipRateLimiter ───────────────────────────────────────────────────────

func TestIPRateLimiter_AllowsUpToLimit(t *testing.T) {
	l := newIPRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed within limit", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Error("request beyond limit should be rejected")
	}
}

func TestIPRateLimiter_TracksIPsIndependently(t *testing.T) {
	l := newIPRateLimiter(1, time.Minute)
	if !l.Allow("1.1.1.1") {
		t.Error("first request from 1.1.1.1 should be allowed")
	}
	if !l.Allow("2.2.2.2") {
		t.Error("first request from 2.2.2.2 should be allowed, independent window")
	}
	if l.Allow("1.1.1.1") {
		t.Error("second request from 1.1.1.1 should be rejected")
	}
}

func TestIPRateLimiter_ResetsAfterWindow(t *testing.T) {
	l := newIPRateLimiter(1, time.Millisecond)
	if !l.Allow("9.9.9.9") {
		t.Fatal("first request should be allowed")
	}
	time.Sleep(5 * time.Millisecond)
	if !l.Allow("9.9.9.9") {
		t.Error("request after window elapses should be allowed again")
	}
}
