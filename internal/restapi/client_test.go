package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

// fakeAPI is a minimal in-memory implementation of the remote endpoints.
type fakeAPI struct {
	mu       sync.Mutex
	items    map[string]api.Transaction
	lastAuth string
	lastURL  string
	requests []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: map[string]api.Transaction{}}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAuth = r.Header.Get("Authorization")
	f.lastURL = r.URL.String()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	writeJSON := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/transactions/")
	switch {
	case r.URL.Path == "/v1/categories":
		writeJSON(200, []api.Category{{Name: "Salary", Type: "income"}, {Name: "Rent", Type: "expense"}, {Name: "X", Type: "bogus"}})
	case r.URL.Path == "/v1/transactions" && r.Method == http.MethodGet:
		var out []api.Transaction
		for _, t := range f.items {
			if owner := r.URL.Query().Get("owner"); owner == "" || owner == t.Owner {
				out = append(out, t)
			}
		}
		writeJSON(200, out)
	case r.URL.Path == "/v1/transactions" && r.Method == http.MethodPost:
		var t api.Transaction
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeJSON(400, api.Error{Error: "bad json"})
			return
		}
		if t.ID == "" {
			t.ID = "srv-1"
		}
		f.items[t.ID] = t
		writeJSON(201, t)
	case r.Method == http.MethodGet:
		t, ok := f.items[id]
		if !ok {
			writeJSON(404, api.Error{Error: "not found"})
			return
		}
		writeJSON(200, t)
	case r.Method == http.MethodPut:
		if _, ok := f.items[id]; !ok {
			writeJSON(404, api.Error{Error: "not found"})
			return
		}
		var t api.Transaction
		json.NewDecoder(r.Body).Decode(&t)
		f.items[id] = t
		writeJSON(200, t)
	case r.Method == http.MethodDelete:
		if _, ok := f.items[id]; !ok {
			writeJSON(404, api.Error{Error: "not found"})
			return
		}
		delete(f.items, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "boom", http.StatusInternalServerError)
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/v1/", 2*time.Second, WithToken("secret"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func sampleTx() core.Transaction {
	return core.Transaction{
		Owner:    "ada@example.com",
		Type:     core.Income,
		Amount:   core.Money{Cents: 250000},
		Category: "Salary",
		Date:     core.NewDate(2025, 4, 27),
	}
}

func TestClientCRUD(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAPI()
	c := newTestClient(t, fake)

	created, err := c.Create(ctx, sampleTx())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "srv-1" || created.Amount.Cents != 250000 {
		t.Fatalf("unexpected created %+v", created)
	}
	if fake.lastAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", fake.lastAuth)
	}

	got, err := c.Get(ctx, "srv-1")
	if err != nil || got.Date.String() != "2025-04-27" {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	got.Description = "april"
	if _, err := c.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	list, err := c.List(ctx, store.ListQuery{Owner: "ada@example.com", SortField: store.SortAmount, Order: store.Asc})
	if err != nil || len(list) != 1 || list[0].Description != "april" {
		t.Fatalf("list: %+v err=%v", list, err)
	}
	if !strings.Contains(fake.lastURL, "sort=amount") || !strings.Contains(fake.lastURL, "order=asc") {
		t.Fatalf("sort params not forwarded: %s", fake.lastURL)
	}

	if err := c.Delete(ctx, "srv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, "srv-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientCategoriesSkipsUnknownTypes(t *testing.T) {
	c := newTestClient(t, newFakeAPI())
	cats, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %+v", cats)
	}
}

func TestClientErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"amount must be non-negative"}`))
	}))
	_, err := c.Create(context.Background(), sampleTx())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.Status != 422 || apiErr.Message != "amount must be non-negative" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Fatalf("422 must not map to ErrNotFound")
	}
	if !IsStatus(err, 422) {
		t.Fatalf("IsStatus mismatch")
	}
}

func TestClientDoesNotRetry(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	if _, err := c.Get(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one request, got %d", calls)
	}
}

func TestUpsertAndRemove(t *testing.T) {
	ctx := context.Background()
	fake := newFakeAPI()
	c := newTestClient(t, fake)

	tx := sampleTx()
	tx.ID = "local-1"
	if err := c.Upsert(ctx, tx); err != nil {
		t.Fatalf("upsert create: %v", err)
	}
	tx.Amount = core.Money{Cents: 1}
	if err := c.Upsert(ctx, tx); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if fake.items["local-1"].Amount.Cents != 1 {
		t.Fatalf("update not applied: %+v", fake.items["local-1"])
	}
	if err := c.Remove(ctx, "local-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.Remove(ctx, "local-1"); err != nil {
		t.Fatalf("remove of missing id must succeed, got %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("not a url", time.Second); err == nil {
		t.Fatalf("expected error")
	}
}
