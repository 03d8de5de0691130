package http

import (
	"net/http/httptest"
	"testing"
)

func TestGuardClientIPHonorsTrustedProxiesOnly(t *testing.T) {
	g := newRequestGuard(60, []string{"10.0.0.0/8"})
	defer g.stop()

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "direct client", remoteAddr: "203.0.113.7:4711", want: "203.0.113.7"},
		{name: "trusted proxy forwards", remoteAddr: "10.1.2.3:4711", forwarded: "198.51.100.9", want: "198.51.100.9"},
		{name: "untrusted peer cannot forward", remoteAddr: "203.0.113.7:4711", forwarded: "198.51.100.9", want: "203.0.113.7"},
		{name: "garbage forwarded header ignored", remoteAddr: "10.1.2.3:4711", forwarded: "not-an-ip", want: "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := g.clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGuardDetectsScans(t *testing.T) {
	g := newRequestGuard(60, nil)
	defer g.stop()

	tests := []struct {
		name   string
		target string
		agent  string
		want   bool
	}{
		{name: "ledger page", target: "/ui/transactions?book=b1", want: false},
		{name: "env sweep", target: "/.env", want: true},
		{name: "path traversal", target: "/static/../../../etc/passwd", want: true},
		{name: "wordpress sweep", target: "/wp-admin/setup.php", want: true},
		{name: "injection in query", target: "/ui/transactions?q=union%20select", want: true},
		{name: "scanner agent", target: "/", agent: "sqlmap/1.7", want: true},
		{name: "browser agent", target: "/", agent: "Mozilla/5.0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.agent != "" {
				r.Header.Set("User-Agent", tt.agent)
			}
			if got := g.looksLikeScan(r); got != tt.want {
				t.Errorf("looksLikeScan(%s) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}

	if g.scansBlocked.Load() == 0 {
		t.Error("blocked scan counter should increment")
	}
}

func TestGuardRateLimitWindow(t *testing.T) {
	g := newRequestGuard(3, nil)
	defer g.stop()

	for i := 0; i < 3; i++ {
		if !g.allow("203.0.113.7") {
			t.Fatalf("request %d should be within the limit", i+1)
		}
	}
	if g.allow("203.0.113.7") {
		t.Fatal("request over the limit should be rejected")
	}
	if g.throttled.Load() != 1 {
		t.Errorf("throttled counter = %d, want 1", g.throttled.Load())
	}

	// Other clients keep their own window.
	if !g.allow("198.51.100.9") {
		t.Fatal("a different client should not be throttled")
	}
}
