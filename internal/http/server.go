package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
	"conti/internal/services"
)

// Options tunes a Server. Zero values take defaults.
type Options struct {
	RateLimitPerMinute int
	CurrencySymbol     string
	Metrics            *metrics.Metrics
	Logger             *log.Logger

	// TrustedProxies are CIDRs whose X-Forwarded-For headers are believed.
	TrustedProxies []string
	// ReportTTL bounds how stale a cached balance report may be when the
	// recurring worker writes behind the API's back.
	ReportTTL time.Duration
	// Now overrides the clock used for default periods.
	Now func() time.Time
}

// Server is the JSON API over a services.Ledger.
type Server struct {
	http.Server
	ledger   *services.Ledger
	metrics  *metrics.Metrics
	currency string
	now      func() time.Time
	started  time.Time

	detector *security.Detector
	limiter  *ratelimit.Limiter

	// Balance reports keyed by period label.
	reports      *cache.LRUCache[*services.BalanceReport]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger *services.Ledger, opts Options) *Server {
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = core.DefaultCurrencySymbol
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentHTTP})
	}

	s := &Server{
		ledger:       ledger,
		metrics:      opts.Metrics,
		currency:     opts.CurrencySymbol,
		now:          opts.Now,
		started:      time.Now(),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		reports:      cache.NewLRUCache[*services.BalanceReport](100, opts.ReportTTL),
		cacheManager: cache.NewManager(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			opts.Logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}
	s.cacheManager.Register(s.reports)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/recurring", s.handleListDefinitions)
	mux.HandleFunc("POST /api/recurring", s.handleCreateDefinition)
	mux.HandleFunc("GET /api/recurring/{id}", s.handleGetDefinition)
	mux.HandleFunc("PUT /api/recurring/{id}", s.handleUpdateDefinition)
	mux.HandleFunc("DELETE /api/recurring/{id}", s.handleDeleteDefinition)
	mux.HandleFunc("POST /api/recurring/{id}/materialize", s.handleMaterialize)
	mux.HandleFunc("GET /api/recurring/{id}/upcoming", s.handleUpcoming)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)

	mux.HandleFunc("GET /api/settlements", s.handleListSettlements)
	mux.HandleFunc("POST /api/settlements", s.handleCreateSettlement)

	mux.HandleFunc("GET /api/balances", s.handleBalances)
	mux.HandleFunc("GET /api/schedule/advance", s.handleAdvanceSchedule)

	var handler http.Handler = mux
	handler = log.Middleware(opts.Logger, trace.RequestID)(handler)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = s.detector.Middleware(func(_ *http.Request, reason string) { s.metrics.Rejected(reason) })(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(s.detector.ExtractClientIP, s.metrics.HTTPRequest).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.Rejected("rate_limit")
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidatePeriod drops the cached balance report for the period label.
func (s *Server) invalidatePeriod(label string) {
	if label != "" {
		s.reports.Delete(label)
	}
}
