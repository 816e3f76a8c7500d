// Package trace tags every request with an ID and logs its outcome.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// RequestIDHeader is echoed on responses and honored on requests.
const RequestIDHeader = "X-Request-ID"

const maxIncomingIDLength = 64

// Observer receives the outcome of every request.
type Observer func(method string, status int, d time.Duration)

// Middleware assigns request IDs and logs completed requests at a level
// matching their status.
type Middleware struct {
	extractIP func(*http.Request) string
	observe   Observer
	now       func() time.Time
}

// NewMiddleware creates the middleware. Both arguments may be nil.
func NewMiddleware(extractIP func(*http.Request) string, observe Observer) *Middleware {
	return &Middleware{extractIP: extractIP, observe: observe, now: time.Now}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()

		id := r.Header.Get(RequestIDHeader)
		if !validIncomingID(id) {
			id = GenerateRequestID()
		}
		ctx := context.WithValue(r.Context(), contextKey{}, id)
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		elapsed := m.now().Sub(start)
		if m.observe != nil {
			m.observe(r.Method, rec.status, elapsed)
		}

		attrs := []any{
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, "query", r.URL.RawQuery)
		}
		if m.extractIP != nil {
			attrs = append(attrs, "client_ip", m.extractIP(r))
		}
		slog.Log(ctx, levelFor(rec.status), "HTTP request completed", attrs...)
	})
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// validIncomingID accepts short printable IDs from upstream proxies.
func validIncomingID(id string) bool {
	if id == "" || len(id) > maxIncomingIDLength {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// GenerateRequestID returns a fresh "req_" prefixed random ID.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID returns the ID stored by the middleware, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// RequestID reads the request ID of r, for log.Middleware.
func RequestID(r *http.Request) string {
	return GetRequestID(r.Context())
}
