// Package postgres implements the transaction backend on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/store"
)

var sortColumns = map[store.SortField]string{
	store.SortDate:      "date",
	store.SortAmount:    "amount_cents",
	store.SortCategory:  "lower(category)",
	store.SortType:      "type",
	store.SortCreatedAt: "created_at",
}

const selectColumns = `id, owner, type, amount_cents, category, description, date, paid, created_at, updated_at`

type Repository struct {
	Pool *pgxpool.Pool
}

var (
	_ store.Backend      = (*Repository)(nil)
	_ store.SyncTracker  = (*Repository)(nil)
	_ store.UnpaidFinder = (*Repository)(nil)
)

// Open runs migrations and connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewRepository(pool), nil
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) Close() error {
	r.Pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

func (r *Repository) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.Pool.Query(ctx, `SELECT type, name FROM categories ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, core.Category{Name: name, Type: core.TransactionType(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return core.NewCategorySet(cats).All(), nil
}

func (r *Repository) validate(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cats, err := r.Categories(ctx)
	if err != nil {
		return err
	}
	return t.ValidateCategory(core.NewCategorySet(cats))
}

func (r *Repository) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Owner = core.NormalizeOwner(t.Owner)
	if err := r.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	row := r.Pool.QueryRow(ctx, `
INSERT INTO transactions (id, owner, type, amount_cents, category, description, date, paid)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+selectColumns,
		t.ID, t.Owner, string(t.Type), t.Amount.Cents, t.Category, t.Description, t.Date.Time, t.Paid)
	out, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to Postgres",
		flog.FieldComponent, flog.ComponentStorage,
		flog.FieldTransactionID, out.ID,
		flog.FieldType, out.Type,
		flog.FieldAmountCents, out.Amount.Cents)
	return out, nil
}

func (r *Repository) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Owner = core.NormalizeOwner(t.Owner)
	if err := r.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	row := r.Pool.QueryRow(ctx, `
UPDATE transactions
SET owner = $2, type = $3, amount_cents = $4, category = $5, description = $6, date = $7, paid = $8,
    updated_at = now(), sync_status = 'pending', version = version + 1
WHERE id = $1
RETURNING `+selectColumns,
		t.ID, t.Owner, string(t.Type), t.Amount.Cents, t.Category, t.Description, t.Date.Time, t.Paid)
	out, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (core.Transaction, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

func (r *Repository) List(ctx context.Context, q store.ListQuery) ([]core.Transaction, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Owner != "" {
		where = append(where, "owner = "+arg(q.Owner))
	}
	if q.Type != "" {
		where = append(where, "type = "+arg(string(q.Type)))
	}
	if !q.From.IsZero() {
		where = append(where, "date >= "+arg(q.From.Time))
	}
	if !q.To.IsZero() {
		where = append(where, "date <= "+arg(q.To.Time))
	}

	dir := "DESC"
	if q.Order == store.Asc {
		dir = "ASC"
	}
	sql := `SELECT ` + selectColumns + ` FROM transactions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY %s %s, created_at %s, id %s LIMIT %s OFFSET %s", sortColumns[q.SortField], dir, dir, dir, arg(q.Limit), arg(q.Offset))

	return r.query(ctx, sql, args...)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) Unpaid(ctx context.Context, before core.Date) ([]core.Transaction, error) {
	return r.query(ctx, `
SELECT `+selectColumns+`
FROM transactions
WHERE type IN ('receivable', 'payable') AND NOT paid AND date <= $1
ORDER BY owner, date, id`, before.Time)
}

func (r *Repository) PendingSync(ctx context.Context, limit int) ([]store.PendingSync, error) {
	rows, err := r.Pool.Query(ctx, `
SELECT id, owner, version, created_at FROM transactions
WHERE sync_status IN ('pending', 'error')
ORDER BY created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []store.PendingSync
	for rows.Next() {
		var p store.PendingSync
		if err := rows.Scan(&p.ID, &p.Owner, &p.Version, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) Version(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.Pool.QueryRow(ctx, `SELECT version FROM transactions WHERE id = $1`, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get transaction version: %w", err)
	}
	return v, nil
}

func (r *Repository) MarkSynced(ctx context.Context, id string, version int64) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE transactions SET sync_status = 'synced' WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

func (r *Repository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE transactions SET sync_status = 'error' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", flog.FieldTransactionID, id)
	return nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]core.Transaction, error) {
	rows, err := r.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t    core.Transaction
		typ  string
		date time.Time
	)
	err := row.Scan(&t.ID, &t.Owner, &typ, &t.Amount.Cents, &t.Category, &t.Description, &date, &t.Paid, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Date = core.DateOf(date)
	return t, nil
}
