// Package http serves the JSON API and the HTMX dashboard.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/store"
	"fintrack/web"
)

// Server wraps http.Server with the application handlers.
type Server struct {
	*http.Server

	txs      *services.TransactionService
	reports  *services.ReportService
	verifier *auth.Verifier
	pinger   store.Pinger

	templates  *template.Template
	static     fs.FS
	logger     *flog.Logger
	structured *flog.StructuredLogger
	limiter    *rateLimiter
	now        func() time.Time

	secMetrics securityMetrics
	appMetrics appMetrics
	startTime  time.Time
}

// appMetrics tracks application-level counters.
type appMetrics struct {
	totalRequests int64
	mutations     int64
	exports       int64
}

type Option func(*Server)

// WithVerifier sets the bearer token verifier. Without it the server runs in
// single-user mode for the given fallback owner.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

func WithLogger(l *flog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.WithComponent(flog.ComponentHTTP)
		}
	}
}

func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(perMinute) }
}

// WithPinger makes /readyz check a remote dependency.
func WithPinger(p store.Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithTemplates overrides the embedded templates and static assets.
func WithTemplates(templates, static fs.FS) Option {
	return func(s *Server) {
		s.templates = parseTemplates(s.logger, templates)
		s.static = static
	}
}

// NewServer builds the router and wraps it with tracing, security headers and
// rate limiting.
func NewServer(addr string, txs *services.TransactionService, reports *services.ReportService, opts ...Option) *Server {
	s := &Server{
		txs:       txs,
		reports:   reports,
		verifier:  auth.NewVerifier("", "", "", "me@example.com"),
		logger:    flog.New(flog.DefaultConfig()).WithComponent(flog.ComponentHTTP),
		now:       time.Now,
		startTime: time.Now(),
	}
	s.static, _ = fs.Sub(web.StaticFS, "static")
	embedded, _ := fs.Sub(web.TemplatesFS, "templates")
	s.templates = parseTemplates(nil, embedded)

	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = newRateLimiter(60)
	}
	if s.templates == nil {
		s.logger.Error("Templates not loaded")
	}
	s.structured = flog.NewStructuredLogger(s.logger)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(s.static)))).Methods(http.MethodGet)

	r.Handle("/api/categories", s.authed(s.handleCategories)).Methods(http.MethodGet)
	r.Handle("/api/transactions", s.authed(s.handleListTransactions)).Methods(http.MethodGet)
	r.Handle("/api/transactions", s.authed(s.handleCreateTransaction)).Methods(http.MethodPost)
	r.Handle("/api/transactions/{id}", s.authed(s.handleGetTransaction)).Methods(http.MethodGet)
	r.Handle("/api/transactions/{id}", s.authed(s.handleUpdateTransaction)).Methods(http.MethodPut)
	r.Handle("/api/transactions/{id}", s.authed(s.handleDeleteTransaction)).Methods(http.MethodDelete)
	r.Handle("/api/transactions/{id}/paid", s.authed(s.handleTogglePaid)).Methods(http.MethodPost)

	r.Handle("/api/reports/summary", s.authed(s.handleSummary)).Methods(http.MethodGet)
	r.Handle("/api/reports/categories", s.authed(s.handleCategoryBreakdown)).Methods(http.MethodGet)
	r.Handle("/api/reports/series", s.authed(s.handleSeries)).Methods(http.MethodGet)
	r.Handle("/api/reports/statement.pdf", s.authed(s.handleStatementPDF)).Methods(http.MethodGet)
	r.Handle("/api/reports/export.xlsx", s.authed(s.handleExportXLSX)).Methods(http.MethodGet)

	r.Handle("/", s.authed(s.handleIndex)).Methods(http.MethodGet)
	r.Handle("/ui/dashboard", s.authed(s.handleDashboard)).Methods(http.MethodGet)
	r.Handle("/ui/transactions", s.authed(s.handleCreateFromForm)).Methods(http.MethodPost)

	handler := s.withTrace(s.withSecurityHeaders(s.withRateLimit(r)))

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func parseTemplates(logger *flog.Logger, fsys fs.FS) *template.Template {
	if fsys == nil {
		return nil
	}
	t, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "*.html")
	if err != nil {
		if logger != nil {
			logger.Error("Template parse failed", flog.FieldError, err)
		}
		return nil
	}
	return t
}

var templateFuncs = template.FuncMap{
	"euros": func(m core.Money) string { return formatEuros(m.Cents) },
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.verifier.Middleware(h)
}

// owner returns the authenticated owner. Missing owners only happen when a
// route was registered without authed.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := auth.OwnerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return owner, true
}

// Shutdown stops the listener and the rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	return s.Server.Shutdown(ctx)
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

// withTrace assigns a request ID, stores a request-scoped logger in the
// context and logs the start and end of each request.
func (s *Server) withTrace(next http.Handler) http.Handler {
	traced := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		atomic.AddInt64(&s.appMetrics.totalRequests, 1)
		s.structured.LogHTTPStart(r.Context(), r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.statusCode == http.StatusUnauthorized {
			atomic.AddInt64(&s.secMetrics.unauthorized, 1)
		}
		s.structured.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
	withLogger := flog.Middleware(s.logger)(flog.RequestIDMiddleware(func(r *http.Request) string {
		return requestIDFrom(r.Context())
	})(traced))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		withLogger.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID)))
	})
}

// requestLogger returns the logger stored by withTrace.
func requestLogger(r *http.Request) *flog.Logger {
	return flog.FromContext(r.Context())
}
