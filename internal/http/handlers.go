package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReady checks templates, the category source and the remote backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name string, err error) {
		checks[name] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", fmt.Errorf("templates not loaded"))
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.txs.Categories(ctx, ""); err != nil {
		fail("categories", err)
	} else {
		checks["categories"] = "ok"
	}

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			fail("backend", err)
		} else {
			checks["backend"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.activeClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help, typ string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, typ, name, v)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", atomic.LoadInt64(&s.appMetrics.totalRequests))
	metric("transaction_mutations_total", "Successful creates, updates, deletes and paid toggles", "counter", atomic.LoadInt64(&s.appMetrics.mutations))
	metric("statement_exports_total", "Generated PDF and XLSX statements", "counter", atomic.LoadInt64(&s.appMetrics.exports))
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", atomic.LoadInt64(&s.secMetrics.rateLimitHits))
	metric("suspicious_requests_total", "Requests matching probe patterns", "counter", atomic.LoadInt64(&s.secMetrics.suspiciousRequests))
	metric("unauthorized_requests_total", "Requests answered with 401", "counter", atomic.LoadInt64(&s.secMetrics.unauthorized))
	metric("rate_limiter_active_clients", "Clients tracked by the rate limiter", "gauge", int64(s.limiter.activeClients()))
	metric("uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.startTime).Seconds()))
}
