package mcpserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// IPAuthMiddleware restricts the MCP endpoint to configured addresses and networks
type IPAuthMiddleware struct {
	allowedNets []*net.IPNet
	trustedNets []*net.IPNet
	logger      *log.Logger
}

// NewIPAuthMiddleware parses allowed IPs and CIDR blocks. Forwarding headers are
// read only from peers in trustedProxies. A nil logger disables access logs.
func NewIPAuthMiddleware(allowedIPs, trustedProxies []string, logger *log.Logger) (*IPAuthMiddleware, error) {
	allowed, err := parseNetworks(allowedIPs)
	if err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("no allowed IPs specified")
	}

	trusted, err := parseNetworks(trustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	middleware := &IPAuthMiddleware{allowedNets: allowed, trustedNets: trusted, logger: logger}
	middleware.logf("IP auth initialized with %d allowed ranges, %d trusted proxy ranges", len(allowed), len(trusted))
	return middleware, nil
}

func parseNetworks(entries []string) ([]*net.IPNet, error) {
	var networks []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		network, err := parseCIDROrIP(entry)
		if err != nil {
			return nil, err
		}
		networks = append(networks, network)
	}
	return networks, nil
}

// parseCIDROrIP turns a single address into a host-sized network
func parseCIDROrIP(s string) (*net.IPNet, error) {
	if strings.Contains(s, "/") {
		_, network, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR block %s: %w", s, err)
		}
		return network, nil
	}

	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", s)
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Middleware rejects requests from addresses outside the allow list. /health is always reachable.
func (m *IPAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := extractClientIP(r, m.trustedNets)
		if !m.IsIPAllowed(clientIP) {
			m.logf("Access denied for IP: %s (Path: %s, Method: %s, User-Agent: %s)",
				clientIP, r.URL.Path, r.Method, r.Header.Get("User-Agent"))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			if _, err := w.Write([]byte(`{"error": {"code": -32603, "message": "Access denied: IP not authorized"}}`)); err != nil {
				m.logf("Failed to write error response: %v", err)
			}
			return
		}

		ctx := context.WithValue(r.Context(), clientIPContextKey, clientIP)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsIPAllowed reports whether ipStr falls in an allowed range
func (m *IPAuthMiddleware) IsIPAllowed(ipStr string) bool {
	return containsIP(m.allowedNets, ipStr)
}

func containsIP(networks []*net.IPNet, ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (m *IPAuthMiddleware) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// extractClientIP returns the peer address unless the peer is a trusted proxy.
// For a trusted peer it walks X-Forwarded-For right to left and returns the
// first hop outside the trusted set, falling back to X-Real-IP.
func extractClientIP(r *http.Request, trusted []*net.IPNet) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !containsIP(trusted, peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !containsIP(trusted, hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func clientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}
