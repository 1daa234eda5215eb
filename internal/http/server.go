package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"budgettracker/internal/core"
	applog "budgettracker/internal/log"
	"budgettracker/internal/middleware/ratelimit"
	"budgettracker/internal/middleware/security"
	"budgettracker/internal/middleware/trace"
	"budgettracker/internal/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger is the write and read surface the handlers call.
// *services.LedgerService implements it.
type Ledger interface {
	SetBudget(ctx context.Context, userID int64, amount core.Money, month core.MonthKey) (core.Budget, error)
	GetBudget(ctx context.Context, userID int64, month core.MonthKey) (core.Budget, error)
	AddExpense(ctx context.Context, userID int64, item string, cost core.Money, quantity int) (core.Expense, error)
	ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error)
	Reset(ctx context.Context, userID int64) (storage.ResetResult, error)
	Ping(ctx context.Context) error
}

// BalanceReader derives balances. *services.BalanceCalculator implements it.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID int64) (core.Balance, error)
	BalanceFor(ctx context.Context, userID int64, month core.MonthKey) (core.Balance, error)
}

// Config holds the server settings taken from the process configuration.
type Config struct {
	Addr               string
	JWTSecret          string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs, beyond loopback and private ranges, whose
	// X-Forwarded-For header names the client.
	TrustedProxies []string
	// Registry receives the HTTP metrics and backs /metrics. nil creates
	// a private registry with the Go and process collectors.
	Registry *prometheus.Registry
}

type Server struct {
	http.Server
	ledger   Ledger
	balances BalanceReader
	auth     *Authenticator
	limiter  *ratelimit.Limiter
	detector *security.Detector
	metrics  *Metrics
	registry *prometheus.Registry
	logger   *applog.Logger
}

// NewServer wires routes and middleware. Call Shutdown to release the rate
// limiter as well as the listener.
func NewServer(cfg Config, ledger Ledger, balances BalanceReader, logger *applog.Logger) (*Server, error) {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})

	s := &Server{
		ledger:   ledger,
		balances: balances,
		auth:     NewAuthenticator(cfg.JWTSecret),
		limiter:  limiter,
		detector: detector,
		metrics:  NewMetrics(registry, limiter, detector),
		registry: registry,
		logger:   logger,
	}

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	tracer := trace.NewMiddleware(s.logger, s.detector.ExtractClientIP, routeTemplate, s.metrics.ObserveRequest)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	// mux runs Use middleware on matched routes only
	unmatched := func(status int, msg string) http.Handler {
		return tracer.Middleware(headers.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeErrorMessage(w, status, msg)
		})))
	}

	router := mux.NewRouter()
	router.NotFoundHandler = unmatched(http.StatusNotFound, "not found")
	router.MethodNotAllowedHandler = unmatched(http.StatusMethodNotAllowed, "method not allowed")
	router.Use(tracer.Middleware, headers.Middleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Middleware)
	limited := s.limiter.Middleware(s.rateLimitKey, s.handleRateLimited)

	api.HandleFunc("/budget", s.handleGetBudget).Methods(http.MethodGet)
	api.Handle("/budget", limited(http.HandlerFunc(s.handleSetBudget))).Methods(http.MethodPost)
	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.Handle("/expenses", limited(http.HandlerFunc(s.handleAddExpense))).Methods(http.MethodPost)
	api.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	api.Handle("/reset", limited(http.HandlerFunc(s.handleReset))).Methods(http.MethodDelete)

	return applog.Middleware(s.logger)(s.detector.Middleware(router))
}

// routeTemplate names the matched mux route for logs and metrics.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// rateLimitKey limits authenticated callers per user and anyone else per
// client address.
func (s *Server) rateLimitKey(r *http.Request) string {
	if id := userIDFromContext(r.Context()); id > 0 {
		return fmt.Sprintf("user:%d", id)
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldOperation, "rate_limit",
		applog.FieldPath, r.URL.Path)
	writeErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	s.logger.InfoContext(ctx, "Shutting down HTTP server", applog.FieldOperation, applog.OpShutdown)
	return s.Server.Shutdown(ctx)
}
