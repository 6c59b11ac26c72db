package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "fintrack.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sample(owner string, typ core.TransactionType, cents int64, cat string, day int) core.Transaction {
	return core.Transaction{
		Owner:    owner,
		Type:     typ,
		Amount:   core.Money{Cents: cents},
		Category: cat,
		Date:     core.NewDate(2025, 3, day),
	}
}

func TestSQLiteCategoriesSeeded(t *testing.T) {
	repo := newTestRepo(t)
	cats, err := repo.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("expected %d seeded categories, got %d", len(core.DefaultCategories()), len(cats))
	}
	if cats[0].Type != core.Income {
		t.Fatalf("expected income categories first, got %+v", cats[0])
	}
}

func TestSQLiteCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.Create(ctx, sample("ada@example.com", core.Receivable, 5000, "Invoice", 4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != core.Receivable || got.Amount.Cents != 5000 || got.Date.String() != "2025-03-04" || got.Paid {
		t.Fatalf("unexpected row %+v", got)
	}

	settled, _ := got.MarkPaid()
	updated, err := repo.Update(ctx, settled)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Type != core.Income || !updated.Paid {
		t.Fatalf("update not persisted: %+v", updated)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := repo.Update(ctx, settled); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestSQLiteRejectsUnknownCategory(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Create(context.Background(), sample("ada@example.com", core.Income, 100, "Groceries", 1))
	if !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestSQLiteList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	for _, tx := range []core.Transaction{
		sample("ada@example.com", core.Expense, 500, "Groceries", 5),
		sample("ada@example.com", core.Income, 9000, "Salary", 1),
		sample("ada@example.com", core.Expense, 2000, "Housing", 9),
		sample("bob@example.com", core.Expense, 100, "Leisure", 2),
	} {
		if _, err := repo.Create(ctx, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	tests := []struct {
		name  string
		q     store.ListQuery
		cents []int64
	}{
		{"default date desc", store.ListQuery{Owner: "ada@example.com"}, []int64{2000, 500, 9000}},
		{"amount asc", store.ListQuery{Owner: "ada@example.com", SortField: store.SortAmount, Order: store.Asc}, []int64{500, 2000, 9000}},
		{"category asc", store.ListQuery{Owner: "ada@example.com", SortField: store.SortCategory, Order: store.Asc}, []int64{500, 2000, 9000}},
		{"type filter", store.ListQuery{Owner: "ada@example.com", Type: core.Income}, []int64{9000}},
		{"range", store.ListQuery{From: core.NewDate(2025, 3, 2), To: core.NewDate(2025, 3, 5)}, []int64{500, 100}},
		{"limit", store.ListQuery{Limit: 2}, []int64{2000, 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.q)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.cents) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.cents))
			}
			for i, c := range tt.cents {
				if got[i].Amount.Cents != c {
					t.Fatalf("row %d: got %d want %d", i, got[i].Amount.Cents, c)
				}
			}
		})
	}
}

func TestSQLiteSyncLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.Create(ctx, sample("ada@example.com", core.Expense, 700, "Transport", 3))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pending, err := repo.PendingSync(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].Version != 1 {
		t.Fatalf("expected one pending row at version 1, got %+v err=%v", pending, err)
	}

	// An update after the worker read version 1 must keep the row pending.
	created.Amount = core.Money{Cents: 800}
	if _, err := repo.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.MarkSynced(ctx, created.ID, 1); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ = repo.PendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].Version != 2 {
		t.Fatalf("stale version must not mark synced, got %+v", pending)
	}

	if err := repo.MarkSynced(ctx, created.ID, 2); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if pending, _ = repo.PendingSync(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}

	if err := repo.MarkSyncError(ctx, created.ID); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if pending, _ = repo.PendingSync(ctx, 10); len(pending) != 1 {
		t.Fatalf("rows in error state are retried, got %+v", pending)
	}
}

func TestSQLiteUnpaid(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	open, _ := repo.Create(ctx, sample("ada@example.com", core.Payable, 300, "Bill", 1))
	paid := sample("ada@example.com", core.Receivable, 400, "Invoice", 2)
	paid.Paid = true
	repo.Create(ctx, paid)
	repo.Create(ctx, sample("ada@example.com", core.Receivable, 500, "Invoice", 20))
	repo.Create(ctx, sample("ada@example.com", core.Expense, 600, "Utilities", 1))

	got, err := repo.Unpaid(ctx, core.NewDate(2025, 3, 10))
	if err != nil {
		t.Fatalf("unpaid: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("unexpected unpaid rows %+v", got)
	}
}
