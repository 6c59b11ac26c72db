package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fintrack/internal/core"
)

var (
	// ErrNotFound is returned when a transaction id is unknown to the backend
	// or belongs to another owner.
	ErrNotFound     = errors.New("transaction not found")
	ErrInvalidQuery = errors.New("invalid list query")
)

const (
	SortDate      SortField = "date"
	SortAmount    SortField = "amount"
	SortCategory  SortField = "category"
	SortType      SortField = "type"
	SortCreatedAt SortField = "created_at"

	Asc  Order = "asc"
	Desc Order = "desc"

	DefaultLimit = 500
	MaxLimit     = 1000
)

type (
	SortField string
	Order     string

	// ListQuery selects and orders transactions. Zero values mean "no filter".
	ListQuery struct {
		Owner     string
		SortField SortField
		Order     Order
		Type      core.TransactionType
		From      core.Date
		To        core.Date
		Limit     int
		// Offset skips that many rows of the sorted result.
		Offset int
	}
)

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		Create(ctx context.Context, t core.Transaction) (core.Transaction, error)
		Update(ctx context.Context, t core.Transaction) (core.Transaction, error)
	}

	TransactionReader interface {
		// Get returns ErrNotFound when the id is unknown.
		Get(ctx context.Context, id string) (core.Transaction, error)
	}

	TransactionLister interface {
		List(ctx context.Context, q ListQuery) ([]core.Transaction, error)
	}

	TransactionDeleter interface {
		Delete(ctx context.Context, id string) error
	}

	CategoryReader interface {
		Categories(ctx context.Context) ([]core.Category, error)
	}

	// Backend is the full storage contract implemented by every data backend.
	Backend interface {
		TransactionWriter
		TransactionReader
		TransactionLister
		TransactionDeleter
		CategoryReader
		Close() error
	}

	// SyncTracker is implemented by local backends that record which rows
	// still need to reach the mirror.
	SyncTracker interface {
		PendingSync(ctx context.Context, limit int) ([]PendingSync, error)
		Version(ctx context.Context, id string) (int64, error)
		MarkSynced(ctx context.Context, id string, version int64) error
		MarkSyncError(ctx context.Context, id string) error
	}

	// UnpaidFinder returns open receivables and payables dated on or before
	// the cutoff, across all owners.
	UnpaidFinder interface {
		Unpaid(ctx context.Context, before core.Date) ([]core.Transaction, error)
	}

	// Pinger is implemented by backends with a reachable remote dependency.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// PendingSync represents minimal data needed for sync queue messages
type PendingSync struct {
	ID        string
	Owner     string
	Version   int64
	CreatedAt time.Time
}

// ParseSortField accepts the sortable columns, defaulting to date.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SortDate, nil
	case SortDate, SortAmount, SortCategory, SortType, SortCreatedAt:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, s)
}

// ParseOrder accepts asc or desc, defaulting to desc.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return Desc, nil
	case Asc, Desc:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown order %q", ErrInvalidQuery, s)
}

// Normalize fills defaults and validates the query.
func (q ListQuery) Normalize() (ListQuery, error) {
	var err error
	if q.SortField, err = ParseSortField(string(q.SortField)); err != nil {
		return q, err
	}
	if q.Order, err = ParseOrder(string(q.Order)); err != nil {
		return q, err
	}
	if q.Type != "" && !q.Type.Valid() {
		return q, fmt.Errorf("%w: %v", ErrInvalidQuery, core.ErrInvalidType)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From.Time) {
		return q, fmt.Errorf("%w: from is after to", ErrInvalidQuery)
	}
	switch {
	case q.Limit < 0:
		return q, fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	case q.Offset < 0:
		return q, fmt.Errorf("%w: negative offset", ErrInvalidQuery)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	q.Owner = core.NormalizeOwner(q.Owner)
	return q, nil
}

// Filter converts the query into a report filter.
func (q ListQuery) Filter() core.Filter {
	f := core.Filter{Owner: q.Owner, From: q.From, To: q.To}
	if q.Type != "" {
		f.Types = []core.TransactionType{q.Type}
	}
	return f
}

// Apply filters, sorts and pages txs in memory. Backends that cannot push the
// query down to their engine use it directly.
func (q ListQuery) Apply(txs []core.Transaction) []core.Transaction {
	out := core.FilterTransactions(txs, q.Filter())
	SortTransactions(out, q.SortField, q.Order)
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []core.Transaction{}
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// ListAll pages through lister with MaxLimit-sized pages until a short page
// comes back. Limit and Offset of q are ignored.
func ListAll(ctx context.Context, lister TransactionLister, q ListQuery) ([]core.Transaction, error) {
	q.Limit, q.Offset = MaxLimit, 0
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	var (
		all       []core.Transaction
		prevFirst string
	)
	for {
		page, err := lister.List(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(page) > 0 {
			if q.Offset > 0 && page[0].ID == prevFirst {
				return nil, fmt.Errorf("%w: backend ignored offset %d", ErrInvalidQuery, q.Offset)
			}
			prevFirst = page[0].ID
		}
		all = append(all, page...)
		if len(page) < q.Limit {
			return all, nil
		}
		q.Offset += len(page)
	}
}

// SortTransactions orders txs by field; ties fall back to creation time then id
// so the output is stable across backends.
func SortTransactions(txs []core.Transaction, field SortField, order Order) {
	less := func(a, b core.Transaction) int {
		switch field {
		case SortAmount:
			return cmpInt64(a.Amount.Cents, b.Amount.Cents)
		case SortCategory:
			return strings.Compare(strings.ToLower(a.Category), strings.ToLower(b.Category))
		case SortType:
			return strings.Compare(string(a.Type), string(b.Type))
		case SortCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return a.Date.Compare(b.Date.Time)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool {
		c := less(txs[i], txs[j])
		if c == 0 {
			c = txs[i].CreatedAt.Compare(txs[j].CreatedAt)
		}
		if c == 0 {
			c = strings.Compare(txs[i].ID, txs[j].ID)
		}
		if order == Asc {
			return c < 0
		}
		return c > 0
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
