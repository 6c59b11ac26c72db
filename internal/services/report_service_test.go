package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

type countingLister struct {
	inner store.TransactionLister
	calls atomic.Int32
	delay time.Duration
}

func (c *countingLister) List(ctx context.Context, q store.ListQuery) ([]core.Transaction, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.inner.List(ctx, q)
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New(core.DefaultCategories())
	seed := []core.Transaction{
		{Owner: ada, Type: core.Income, Amount: core.Money{Cents: 300000}, Category: "Salary", Date: core.NewDate(2025, 3, 1)},
		{Owner: ada, Type: core.Expense, Amount: core.Money{Cents: 120000}, Category: "Housing", Date: core.NewDate(2025, 3, 2)},
		{Owner: ada, Type: core.Expense, Amount: core.Money{Cents: 8000}, Category: "Groceries", Date: core.NewDate(2025, 3, 9)},
		{Owner: ada, Type: core.Receivable, Amount: core.Money{Cents: 50000}, Category: "Invoice", Date: core.NewDate(2025, 3, 12)},
		{Owner: ada, Type: core.Income, Amount: core.Money{Cents: 20000}, Category: "Freelance", Date: core.NewDate(2025, 4, 2)},
		{Owner: bob, Type: core.Expense, Amount: core.Money{Cents: 999}, Category: "Leisure", Date: core.NewDate(2025, 3, 5)},
	}
	for _, tx := range seed {
		if _, err := st.Create(ctx, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return st
}

func TestReportServiceAggregates(t *testing.T) {
	ctx := context.Background()
	svc := NewReportService(seedStore(t), nil)
	from, to := core.MonthRange(2025, 3)

	sum, err := svc.Summary(ctx, ada, from, to)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Income.Cents != 300000 || sum.Expense.Cents != 128000 || sum.Receivable.Cents != 50000 || sum.Count != 4 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	rows, err := svc.ByCategory(ctx, ada, core.Expense, from, to)
	if err != nil || len(rows) != 2 || rows[0].Name != "Housing" {
		t.Fatalf("unexpected breakdown %+v err=%v", rows, err)
	}

	ov, err := svc.Overview(ctx, ada, 2025, 4)
	if err != nil || ov.Summary.Income.Cents != 20000 || ov.Summary.Count != 1 {
		t.Fatalf("unexpected overview %+v err=%v", ov, err)
	}

	if _, err := svc.ByCategory(ctx, ada, "gift", from, to); err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestReportServiceSeriesOpenRange(t *testing.T) {
	ctx := context.Background()
	svc := NewReportService(seedStore(t), nil)

	pts, err := svc.Series(ctx, ada, core.Monthly, core.Date{}, core.Date{})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(pts) != 2 || pts[0].Label != "2025-03" || pts[1].Income.Cents != 20000 {
		t.Fatalf("unexpected points %+v", pts)
	}

	empty, err := svc.Series(ctx, "nobody@example.com", core.Weekly, core.Date{}, core.Date{})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no points, got %+v err=%v", empty, err)
	}

	if _, err := svc.Series(ctx, ada, "year", core.Date{}, core.Date{}); err == nil {
		t.Fatal("expected granularity error")
	}
}

func TestReportServiceCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	lister := &countingLister{inner: st}
	svc := NewReportService(lister, cache.NewLRUCache[[]core.Transaction](16, time.Minute))
	from, to := core.MonthRange(2025, 3)

	for i := 0; i < 3; i++ {
		if _, err := svc.Summary(ctx, ada, from, to); err != nil {
			t.Fatalf("summary: %v", err)
		}
	}
	if got := lister.calls.Load(); got != 1 {
		t.Fatalf("expected 1 backend call, got %d", got)
	}

	tx := NewTransactionService(st, WithInvalidator(svc))
	if _, err := tx.Create(ctx, ada, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 500}, Category: "Transport", Date: core.NewDate(2025, 3, 15)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	sum, err := svc.Summary(ctx, ada, from, to)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Expense.Cents != 128500 {
		t.Fatalf("stale report after mutation: %+v", sum)
	}
	if got := lister.calls.Load(); got != 2 {
		t.Fatalf("expected reload after invalidation, got %d calls", got)
	}
}

func TestReportServiceCollapsesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	lister := &countingLister{inner: seedStore(t), delay: 50 * time.Millisecond}
	svc := NewReportService(lister, nil)
	from, to := core.MonthRange(2025, 3)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Summary(ctx, ada, from, to); err != nil {
				t.Errorf("summary: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := lister.calls.Load(); got >= 5 {
		t.Fatalf("expected concurrent loads to be shared, got %d calls", got)
	}
}

// gatedLister holds the first List call after it has read from inner until
// release is closed.
type gatedLister struct {
	inner   store.TransactionLister
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLister) List(ctx context.Context, q store.ListQuery) ([]core.Transaction, error) {
	txs, err := g.inner.List(ctx, q)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return txs, err
}

func TestReportServiceDropsLoadFinishedAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	lister := &gatedLister{inner: st, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewReportService(lister, cache.NewLRUCache[[]core.Transaction](16, time.Minute))
	from, to := core.MonthRange(2025, 3)

	done := make(chan core.Summary)
	go func() {
		sum, err := svc.Summary(ctx, ada, from, to)
		if err != nil {
			t.Errorf("summary: %v", err)
		}
		done <- sum
	}()
	<-lister.entered

	tx := NewTransactionService(st, WithInvalidator(svc))
	if _, err := tx.Create(ctx, ada, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 500}, Category: "Transport", Date: core.NewDate(2025, 3, 15)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	close(lister.release)
	if stale := <-done; stale.Expense.Cents != 128000 {
		t.Fatalf("in-flight load should see the old rows, got %+v", stale)
	}

	sum, err := svc.Summary(ctx, ada, from, to)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Expense.Cents != 128500 {
		t.Fatalf("load started before the mutation was cached: %+v", sum)
	}
}

func TestReportServiceReadsPastOnePage(t *testing.T) {
	ctx := context.Background()
	st := memory.New(core.DefaultCategories())
	n := store.MaxLimit + 1
	for i := 0; i < n; i++ {
		tx := core.Transaction{Owner: ada, Type: core.Income, Amount: core.Money{Cents: 100}, Category: "Salary", Date: core.NewDate(2025, 1, 1+i%300)}
		if _, err := st.Create(ctx, tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := NewReportService(st, nil)

	sum, err := svc.Summary(ctx, ada, core.Date{}, core.Date{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Count != n || sum.Income.Cents != int64(n)*100 {
		t.Fatalf("expected every row in the totals, got %+v", sum)
	}
}
