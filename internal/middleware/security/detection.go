package security

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// Reasons reported by Inspect.
const (
	ReasonProbePath      = "probe_path"
	ReasonProbeQuery     = "probe_query"
	ReasonScannerAgent   = "scanner_agent"
	ReasonUnusualMethod  = "unusual_method"
	ReasonOversizedURL   = "oversized_url"
	ReasonForwardedChain = "forwarded_chain"
)

const (
	maxURLLength    = 2048
	maxForwardedHop = 5
)

// probePatterns never occur in a ledger API path or query.
var probePatterns = []string{
	"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "wp-login",
	"phpmyadmin", ".php", "cgi-bin", "etc/passwd", "cmd.exe",
	"<script", "javascript:", "union select", "eval(",
}

// scannerAgents are flagged by User-Agent. Plain HTTP clients (curl,
// scripts, the mirror worker) are expected.
var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "nuclei",
}

// DetectionMetrics counts what the detector has seen.
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags scanner traffic and resolves client IPs behind proxies.
type Detector struct {
	metrics        DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector trusts loopback and RFC 1918 networks as proxies.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// AddTrustedProxy trusts forwarded headers from connections inside cidr.
// It must be called before the detector serves requests.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Inspect returns the first reason r looks like scanner traffic.
func (d *Detector) Inspect(r *http.Request) (reason string, suspicious bool) {
	switch {
	case containsAny(strings.ToLower(r.URL.Path), probePatterns):
		reason = ReasonProbePath
	case containsAny(strings.ToLower(r.URL.RawQuery), probePatterns):
		reason = ReasonProbeQuery
	case containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents):
		reason = ReasonScannerAgent
	case isUnusualMethod(r.Method):
		reason = ReasonUnusualMethod
	case len(r.URL.String()) > maxURLLength:
		reason = ReasonOversizedURL
	case strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxForwardedHop:
		reason = ReasonForwardedChain
	default:
		return "", false
	}
	atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
	return reason, true
}

func containsAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isUnusualMethod(method string) bool {
	switch method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return true
	}
	return false
}

// ExtractClientIP returns the connection's IP, or the forwarded client IP
// when the connection comes from a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	ip := net.ParseIP(directIP)
	if ip == nil || !d.isTrustedProxy(ip) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware logs suspicious requests and rejects unusual methods with 405.
// Everything else is served; onSuspicious observes the reason.
func (d *Detector) Middleware(onSuspicious func(r *http.Request, reason string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason, suspicious := d.Inspect(r)
			if !suspicious {
				next.ServeHTTP(w, r)
				return
			}
			slog.WarnContext(r.Context(), "Suspicious request",
				"reason", reason,
				"client_ip", d.ExtractClientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.Header.Get("User-Agent"))
			if onSuspicious != nil {
				onSuspicious(r, reason)
			}
			if reason == ReasonUnusualMethod {
				w.Header().Set("Allow", "GET, POST, PUT, DELETE")
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetMetrics returns a snapshot of the counters.
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		InvalidIPAttempts:  atomic.LoadInt64(&d.metrics.InvalidIPAttempts),
	}
}
