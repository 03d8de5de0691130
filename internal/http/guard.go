package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// requestGuard screens traffic before it reaches the mux. A personal
// ledger exposed to the internet mostly attracts two kinds of unwanted
// requests, vulnerability scans and bursts from a single client, so the
// guard rejects known scan signatures and applies a per-client rate
// limit. The client IP is resolved through the configured proxy ranges;
// forwarding headers from any other peer are ignored.
type requestGuard struct {
	proxies []*net.IPNet
	limit   int

	mu       sync.Mutex
	visitors map[string]*visitor

	done     chan struct{}
	stopOnce sync.Once

	scansBlocked atomic.Int64
	throttled    atomic.Int64
}

// visitor tracks one client's fixed rate window, anchored at its first
// request.
type visitor struct {
	windowStart time.Time
	count       int
}

func newRequestGuard(limitPerMinute int, trustedProxies []string) *requestGuard {
	g := &requestGuard{
		limit:    limitPerMinute,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	// Config validation already rejected malformed CIDRs.
	for _, cidr := range trustedProxies {
		if _, network, err := net.ParseCIDR(strings.TrimSpace(cidr)); err == nil {
			g.proxies = append(g.proxies, network)
		}
	}
	go g.janitor()
	return g
}

// janitor prunes visitors that went quiet, keeping the map bounded on
// long-running servers.
func (g *requestGuard) janitor() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			g.mu.Lock()
			for ip, v := range g.visitors {
				if v.windowStart.Before(cutoff) {
					delete(g.visitors, ip)
				}
			}
			g.mu.Unlock()
		}
	}
}

func (g *requestGuard) stop() {
	g.stopOnce.Do(func() { close(g.done) })
}

// clientIP resolves the address a request really came from. Forwarding
// headers count only when the direct peer is a trusted proxy.
func (g *requestGuard) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil || !g.trusted(peer) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return host
}

func (g *requestGuard) trusted(ip net.IP) bool {
	for _, network := range g.proxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// scanSignatures are path or query fragments no ledger URL ever
// contains: dotfile and admin-panel sweeps plus crude injection
// payloads.
var scanSignatures = []string{
	"../", "..\\", ".env", ".git", ".ssh",
	"wp-admin", "phpmyadmin", ".php",
	"<script", "union select", "etc/passwd",
}

var scannerAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "zgrab", "gobuster",
}

// looksLikeScan flags requests matching a known scanner pattern.
func (g *requestGuard) looksLikeScan(r *http.Request) bool {
	if len(r.URL.String()) > 2048 {
		g.scansBlocked.Add(1)
		return true
	}

	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, sig := range scanSignatures {
		if strings.Contains(target, sig) {
			g.scansBlocked.Add(1)
			return true
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, s := range scannerAgents {
		if strings.Contains(agent, s) {
			g.scansBlocked.Add(1)
			return true
		}
	}

	return false
}

// allow counts a request against the client's current minute window.
func (g *requestGuard) allow(ip string) bool {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.visitors[ip]
	if !ok || now.Sub(v.windowStart) > time.Minute {
		g.visitors[ip] = &visitor{windowStart: now, count: 1}
		return true
	}

	v.count++
	if v.count > g.limit {
		g.throttled.Add(1)
		return false
	}
	return true
}
