package http

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/export"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		s.respondError(w, r, "summary", err)
		return
	}
	sum, err := s.reports.Summary(r.Context(), owner, from, to)
	if err != nil {
		s.respondError(w, r, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSummary(sum))
}

// handleCategoryBreakdown defaults to expense categories.
func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	typ, err := parseTypeParam(r)
	if err != nil {
		s.respondError(w, r, "by_category", asQueryError(err))
		return
	}
	if typ == "" {
		typ = core.Expense
	}
	from, to, err := parseRange(r)
	if err != nil {
		s.respondError(w, r, "by_category", err)
		return
	}
	rows, err := s.reports.ByCategory(r.Context(), owner, typ, from, to)
	if err != nil {
		s.respondError(w, r, "by_category", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromCategoryAmounts(rows))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	g, err := core.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		s.respondError(w, r, "series", err)
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		s.respondError(w, r, "series", err)
		return
	}
	pts, err := s.reports.Series(r.Context(), owner, g, from, to)
	if err != nil {
		s.respondError(w, r, "series", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromSeries(pts))
}

func (s *Server) handleStatementPDF(w http.ResponseWriter, r *http.Request) {
	s.writeStatement(w, r, "pdf", export.ContentTypePDF, export.WritePDF)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.writeStatement(w, r, "xlsx", export.ContentTypeXLSX, export.WriteXLSX)
}

// writeStatement renders into a buffer first so a render failure can still
// be answered with a JSON error.
func (s *Server) writeStatement(w http.ResponseWriter, r *http.Request, ext, contentType string, render func(io.Writer, export.Statement) error) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		s.respondError(w, r, "export", err)
		return
	}
	txs, err := s.reports.Transactions(r.Context(), owner, from, to)
	if err != nil {
		s.respondError(w, r, "export", err)
		return
	}

	st := export.NewStatement(owner, from, to, txs)
	var buf bytes.Buffer
	if err := render(&buf, st); err != nil {
		s.respondError(w, r, "export", err)
		return
	}
	atomic.AddInt64(&s.appMetrics.exports, 1)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+st.Filename(ext)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
