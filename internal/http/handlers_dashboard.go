package http

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
)

// categoryGroup is one <optgroup> of the entry form.
type categoryGroup struct {
	Type  core.TransactionType
	Names []string
}

type indexData struct {
	Owner      string
	Today      string
	Types      []core.TransactionType
	Categories []categoryGroup
	Month      MonthParams
}

type dashboardData struct {
	Month      MonthParams
	Prev       MonthParams
	Next       MonthParams
	Summary    core.Summary
	ByCategory []core.CategoryAmount
	Empty      bool
}

// handleIndex renders the dashboard page with the entry form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		requestLogger(r).ErrorContext(r.Context(), "Templates not loaded")
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	data := indexData{
		Owner: owner,
		Today: core.DateOf(s.now()).String(),
		Types: core.Types,
		Month: ParseMonthParams(r.URL.Query(), s.now()),
	}

	// The page still renders without categories; the form shows empty selects.
	cats, err := s.txs.Categories(ctx, "")
	if err != nil {
		requestLogger(r).WarnContext(ctx, "Categories unavailable for form", "error", err)
	}
	set := core.NewCategorySet(cats)
	for _, t := range core.Types {
		data.Categories = append(data.Categories, categoryGroup{Type: t, Names: set.Names(t)})
	}

	s.render(w, r, http.StatusOK, "index.html", data)
}

// handleDashboard renders the month cards and category bars partial.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 7*time.Second)
	defer cancel()

	month := ParseMonthParams(r.URL.Query(), s.now())
	ov, err := s.reports.Overview(ctx, owner, month.Year, month.Month)
	if err != nil {
		requestLogger(r).ErrorContext(ctx, "Month overview error", "error", err, "year", month.Year, "month", month.Month)
		ErrorNotification(http.StatusInternalServerError, "Could not load the dashboard").Write(w)
		return
	}

	s.render(w, r, http.StatusOK, "dashboard", dashboardData{
		Month:      month,
		Prev:       month.Prev(),
		Next:       month.Next(),
		Summary:    ov.Summary,
		ByCategory: ov.ByCategory,
		Empty:      ov.Summary.Count == 0,
	})
}

// handleCreateFromForm stores a transaction submitted by the dashboard form
// and answers with HTMX triggers.
func (s *Server) handleCreateFromForm(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		ErrorNotification(http.StatusBadRequest, "Invalid request format").Write(w)
		return
	}

	t, err := parser.Transaction(core.DateOf(s.now()))
	if err == nil {
		t, err = s.txs.Create(r.Context(), owner, t)
	}
	if err != nil {
		status := errorStatus(err)
		msg := err.Error()
		if status >= 500 {
			requestLogger(r).ErrorContext(r.Context(), "Failed to save transaction", "error", err, "operation", "create")
			msg = "Error saving transaction"
		}
		ErrorNotification(status, msg).Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.mutations, 1)

	year, month := t.Date.Year(), int(t.Date.Month())
	NewHTMXResponse().
		TriggerTransactionCreated(t.ID, year, month).
		TriggerDashboardRefresh(year, month).
		TriggerFormReset().
		TriggerSuccessNotification("Saved " + string(t.Type) + " " + formatEuros(t.Amount.Cents)).
		BodyHTML(`<div class="success">Saved ` + template.HTMLEscapeString(string(t.Type)) + `: ` +
			template.HTMLEscapeString(t.Category) + ` ` + template.HTMLEscapeString(formatEuros(t.Amount.Cents)) + `</div>`).
		Write(w)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		requestLogger(r).ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
