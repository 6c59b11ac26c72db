package http

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/mux"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := parseTypeParam(r)
	if err != nil {
		s.respondError(w, r, "categories", asQueryError(err))
		return
	}
	cats, err := s.txs.Categories(r.Context(), typ)
	if err != nil {
		s.respondError(w, r, "categories", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromCategories(cats))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		s.respondError(w, r, "list", asQueryError(err))
		return
	}
	txs, err := s.txs.List(r.Context(), owner, q)
	if err != nil {
		s.respondError(w, r, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromTransactions(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	t, err := s.decodeTransaction(w, r)
	if err != nil {
		s.respondError(w, r, "create", err)
		return
	}
	created, err := s.txs.Create(r.Context(), owner, t)
	if err != nil {
		s.respondError(w, r, "create", err)
		return
	}
	atomic.AddInt64(&s.appMetrics.mutations, 1)
	w.Header().Set("Location", "/api/transactions/"+created.ID)
	writeJSON(w, http.StatusCreated, api.FromTransaction(created))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	t, err := s.txs.Get(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromTransaction(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	t, err := s.decodeTransaction(w, r)
	if err != nil {
		s.respondError(w, r, "update", err)
		return
	}
	if t.ID != "" && t.ID != id {
		s.respondError(w, r, "update", fmt.Errorf("%w: id in body does not match path", errBadJSON))
		return
	}
	t.ID = id
	updated, err := s.txs.Update(r.Context(), owner, t)
	if err != nil {
		s.respondError(w, r, "update", err)
		return
	}
	atomic.AddInt64(&s.appMetrics.mutations, 1)
	writeJSON(w, http.StatusOK, api.FromTransaction(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.txs.Delete(r.Context(), owner, mux.Vars(r)["id"]); err != nil {
		s.respondError(w, r, "delete", err)
		return
	}
	atomic.AddInt64(&s.appMetrics.mutations, 1)
	w.WriteHeader(http.StatusNoContent)
}

// handleTogglePaid settles or reopens a receivable or payable. A missing body
// means {"paid": true, "convert": true}. "category" picks the income or
// expense category a converted record moves into.
func (s *Server) handleTogglePaid(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	req := api.PaidRequest{Paid: true, Convert: true}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.respondError(w, r, "toggle_paid", err)
			return
		}
	}
	updated, err := s.txs.TogglePaid(r.Context(), owner, mux.Vars(r)["id"], req.Paid, req.Convert, sanitizeInput(req.Category))
	if err != nil {
		s.respondError(w, r, "toggle_paid", err)
		return
	}
	atomic.AddInt64(&s.appMetrics.mutations, 1)
	writeJSON(w, http.StatusOK, api.FromTransaction(updated))
}

func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return core.Transaction{}, fmt.Errorf("%w: content type must be application/json", errBadJSON)
	}
	var body api.Transaction
	if err := decodeJSON(w, r, &body); err != nil {
		return core.Transaction{}, err
	}
	body.Description = sanitizeInput(body.Description)
	body.Category = sanitizeInput(body.Category)
	return body.ToCore()
}

// asQueryError turns a type parse failure in the query string into a 400.
func asQueryError(err error) error {
	if errorStatus(err) == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: %v", store.ErrInvalidQuery, err)
	}
	return err
}
