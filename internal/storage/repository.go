package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

// Sync states of a local row relative to the configured mirror.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

const timeLayout = time.RFC3339Nano

// sortColumns maps list sort fields to trusted column names.
var sortColumns = map[store.SortField]string{
	store.SortDate:      "date",
	store.SortAmount:    "amount_cents",
	store.SortCategory:  "category COLLATE NOCASE",
	store.SortType:      "type",
	store.SortCreatedAt: "created_at",
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ store.Backend      = (*SQLiteRepository)(nil)
	_ store.SyncTracker  = (*SQLiteRepository)(nil)
	_ store.UnpaidFinder = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; the mirror sweep and HTTP handlers share it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT type, name FROM categories ORDER BY position, name`)
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

func (r *SQLiteRepository) validate(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cats, err := r.Categories(ctx)
	if err != nil {
		return err
	}
	return t.ValidateCategory(core.NewCategorySet(cats))
}

// Create implements store.TransactionWriter. New rows start pending sync.
func (r *SQLiteRepository) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Owner = core.NormalizeOwner(t.Owner)
	if err := r.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner, type, amount_cents, category, description, date, paid, created_at, updated_at, sync_status, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		t.ID, t.Owner, string(t.Type), t.Amount.Cents, t.Category, t.Description,
		t.Date.String(), t.Paid, now.Format(timeLayout), now.Format(timeLayout), SyncPending)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		flog.FieldComponent, flog.ComponentStorage,
		flog.FieldTransactionID, t.ID,
		flog.FieldType, t.Type,
		flog.FieldAmountCents, t.Amount.Cents,
		flog.FieldDate, t.Date.String())

	return t, nil
}

// Update implements store.TransactionWriter. Every update bumps the version
// and puts the row back into the pending sync state.
func (r *SQLiteRepository) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Owner = core.NormalizeOwner(t.Owner)
	if err := r.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET owner = ?, type = ?, amount_cents = ?, category = ?, description = ?, date = ?, paid = ?,
		    updated_at = ?, sync_status = ?, version = version + 1
		WHERE id = ?`,
		t.Owner, string(t.Type), t.Amount.Cents, t.Category, t.Description, t.Date.String(), t.Paid,
		now.Format(timeLayout), SyncPending, t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, store.ErrNotFound
	}
	return r.Get(ctx, t.ID)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner, type, amount_cents, category, description, date, paid, created_at, updated_at
		FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) List(ctx context.Context, q store.ListQuery) ([]core.Transaction, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if q.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, q.Owner)
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, q.From.String())
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, q.To.String())
	}

	dir := "DESC"
	if q.Order == store.Asc {
		dir = "ASC"
	}
	query := `SELECT id, owner, type, amount_cents, category, description, date, paid, created_at, updated_at FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, created_at %s, id %s LIMIT ? OFFSET ?", sortColumns[q.SortField], dir, dir, dir)
	args = append(args, q.Limit, q.Offset)

	return r.query(ctx, query, args...)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Unpaid returns receivables and payables still open on or before the cutoff,
// across all owners.
func (r *SQLiteRepository) Unpaid(ctx context.Context, before core.Date) ([]core.Transaction, error) {
	return r.query(ctx, `
		SELECT id, owner, type, amount_cents, category, description, date, paid, created_at, updated_at
		FROM transactions
		WHERE type IN ('receivable', 'payable') AND paid = 0 AND date <= ?
		ORDER BY owner, date, id`, before.String())
}

// PendingSync returns rows that still need to reach the mirror.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]store.PendingSync, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner, version, created_at FROM transactions
		WHERE sync_status IN ('pending', 'error')
		ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []store.PendingSync
	for rows.Next() {
		var (
			p       store.PendingSync
			created string
		)
		if err := rows.Scan(&p.ID, &p.Owner, &p.Version, &created); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Version returns the current version of a row.
func (r *SQLiteRepository) Version(ctx context.Context, id string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM transactions WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get transaction version: %w", err)
	}
	return v, nil
}

// MarkSynced marks a row as synced when its version still matches, so an
// update racing the worker keeps the row pending.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ? AND version = ?`, SyncSynced, id, version)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}

	slog.InfoContext(ctx, "Transaction marked as synced", flog.FieldTransactionID, id, flog.FieldVersion, version)
	return nil
}

// MarkSyncError marks a row as having sync errors
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncError, id)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}

	slog.WarnContext(ctx, "Transaction marked with sync error", flog.FieldTransactionID, id)
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                           core.Transaction
		typ, date, created, updated string
	)
	err := s.Scan(&t.ID, &t.Owner, &typ, &t.Amount.Cents, &t.Category, &t.Description, &date, &t.Paid, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	t.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return t, nil
}
