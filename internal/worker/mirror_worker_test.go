package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type fakeMirror struct {
	mu      sync.Mutex
	rows    map[string]core.Transaction
	removed []string
	fail    error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{rows: make(map[string]core.Transaction)}
}

func (m *fakeMirror) Upsert(_ context.Context, t core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rows[t.ID] = t
	return nil
}

func (m *fakeMirror) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.rows, id)
	m.removed = append(m.removed, id)
	return nil
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func expense(cents int64) core.Transaction {
	return core.Transaction{
		Owner:    "ada@example.com",
		Type:     core.Expense,
		Amount:   core.Money{Cents: cents},
		Category: "Groceries",
		Date:     core.NewDate(2025, 3, 3),
	}
}

func TestHandleEventFromSource(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(mirror, repo, repo, 10)

	created, err := repo.Create(ctx, expense(4550))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, created.Owner, amqp.ActionCreated, 1, nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := mirror.rows[created.ID]; got.Amount.Cents != 4550 {
		t.Fatalf("mirror row %+v", got)
	}
	pending, _ := repo.PendingSync(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected row marked synced, still pending: %+v", pending)
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, created.Owner, amqp.ActionDeleted, 0, nil)); err != nil {
		t.Fatalf("handle delete: %v", err)
	}
	if _, ok := mirror.rows[created.ID]; ok {
		t.Fatal("expected row removed from mirror")
	}

	// Rows deleted before the event arrives are skipped, not requeued.
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent("missing", "ada@example.com", amqp.ActionUpdated, 2, nil)); err != nil {
		t.Fatalf("expected nil for vanished row, got %v", err)
	}
}

func TestHandleEventFailureMarksError(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := newFakeMirror()
	mirror.fail = errors.New("mirror unavailable")
	w := NewMirrorWorker(mirror, repo, repo, 10)

	created, _ := repo.Create(ctx, expense(100))
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, created.Owner, amqp.ActionCreated, 1, nil)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}

	// The sweep retries rows in error once the mirror recovers.
	mirror.fail = nil
	res, err := w.SweepPending(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Total != 1 || res.Synced != 1 {
		t.Fatalf("unexpected sweep result %+v", res)
	}
}

func TestHandleEventFromSnapshot(t *testing.T) {
	ctx := context.Background()
	mirror := newFakeMirror()
	w := NewMirrorWorker(mirror, nil, nil, 0)

	tx := expense(999)
	tx.ID = "abc"
	snap := api.FromTransaction(tx)
	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent("abc", tx.Owner, amqp.ActionUpdated, 3, &snap)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := mirror.rows["abc"]; got.Amount.Cents != 999 || got.Category != "Groceries" {
		t.Fatalf("mirror row %+v", got)
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionEvent("nosnap", tx.Owner, amqp.ActionCreated, 1, nil)); err != nil {
		t.Fatalf("events without snapshot are skipped, got %v", err)
	}

	res, err := w.SweepPending(ctx)
	if err != nil || res.Total != 0 {
		t.Fatalf("sweep without tracker must be a no-op, got %+v err=%v", res, err)
	}
}

func TestSweepPending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(mirror, repo, repo, 3)

	for i := 0; i < 5; i++ {
		if _, err := repo.Create(ctx, expense(int64(100+i))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	res, err := w.SweepPending(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Total != 3 || res.Synced != 3 {
		t.Fatalf("first sweep %+v", res)
	}
	res, _ = w.SweepPending(ctx)
	if res.Total != 2 {
		t.Fatalf("second sweep %+v", res)
	}
	if len(mirror.rows) != 5 {
		t.Fatalf("expected 5 mirrored rows, got %d", len(mirror.rows))
	}
}

type stubConsumer struct {
	events []*amqp.TransactionEvent
}

func (c *stubConsumer) ConsumeTransactionEvents(ctx context.Context, h amqp.Handler) error {
	for _, ev := range c.events {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	repo := newRepo(t)
	mirror := newFakeMirror()
	w := NewMirrorWorker(mirror, repo, repo, 10)

	created, _ := repo.Create(context.Background(), expense(100))
	consumer := &stubConsumer{events: []*amqp.TransactionEvent{
		amqp.NewTransactionEvent(created.ID, created.Owner, amqp.ActionUpdated, 1, nil),
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx, consumer, "@every 1h"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}
	if _, ok := mirror.rows[created.ID]; !ok {
		t.Fatal("expected row mirrored during run")
	}

	if err := w.Run(context.Background(), nil, "not a schedule"); err == nil {
		t.Fatal("expected schedule error")
	}
}
