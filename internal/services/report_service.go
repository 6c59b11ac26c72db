package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/store"
)

// ReportService aggregates an owner's transactions for the dashboard. The
// transaction slice of each (owner, range) is cached; aggregation itself is a
// pure reduction and is recomputed on every call.
//
// Each owner has a generation that Invalidate bumps. A load started under an
// older generation is returned to its callers but never cached, and requests
// arriving after the bump do not join it.
type ReportService struct {
	lister store.TransactionLister
	cache  cache.Cache[[]core.Transaction]
	group  singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewReportService creates a report service. A nil cache disables caching.
func NewReportService(lister store.TransactionLister, c cache.Cache[[]core.Transaction]) *ReportService {
	return &ReportService{lister: lister, cache: c, generations: make(map[string]uint64)}
}

func (s *ReportService) generation(owner string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[core.NormalizeOwner(owner)]
}

func cacheKey(owner string, from, to core.Date) string {
	return ownerPrefix(owner) + from.String() + "|" + to.String()
}

func ownerPrefix(owner string) string {
	return core.NormalizeOwner(owner) + "|"
}

// Transactions returns the owner's records dated within [from, to] in date
// order. Zero dates leave that side open.
func (s *ReportService) Transactions(ctx context.Context, owner string, from, to core.Date) ([]core.Transaction, error) {
	key := cacheKey(owner, from, to)
	if s.cache != nil {
		if txs, ok := s.cache.Get(ctx, key); ok {
			return txs, nil
		}
	}

	gen := s.generation(owner)
	v, err, shared := s.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		txs, err := store.ListAll(ctx, s.lister, store.ListQuery{
			Owner:     owner,
			SortField: store.SortDate,
			Order:     store.Asc,
			From:      from,
			To:        to,
		})
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.mu.Lock()
			if s.generations[core.NormalizeOwner(owner)] == gen {
				s.cache.Set(ctx, key, txs)
			}
			s.mu.Unlock()
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "Report load shared with concurrent request", "key", key)
	}
	return v.([]core.Transaction), nil
}

func (s *ReportService) Summary(ctx context.Context, owner string, from, to core.Date) (core.Summary, error) {
	txs, err := s.Transactions(ctx, owner, from, to)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Totals(txs), nil
}

func (s *ReportService) ByCategory(ctx context.Context, owner string, typ core.TransactionType, from, to core.Date) ([]core.CategoryAmount, error) {
	if !typ.Valid() {
		return nil, core.ErrInvalidType
	}
	txs, err := s.Transactions(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}
	return core.ByCategory(txs, typ), nil
}

// Series buckets income and expense by granularity. When from or to is zero
// the range is taken from the owner's data; no data yields no points.
func (s *ReportService) Series(ctx context.Context, owner string, g core.Granularity, from, to core.Date) ([]core.SeriesPoint, error) {
	if _, err := core.ParseGranularity(string(g)); err != nil {
		return nil, err
	}
	txs, err := s.Transactions(ctx, owner, from, to)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		if len(txs) == 0 {
			return []core.SeriesPoint{}, nil
		}
		if from.IsZero() {
			from = txs[0].Date
		}
		if to.IsZero() {
			to = txs[len(txs)-1].Date
		}
	}
	return core.Series(txs, g, from, to)
}

func (s *ReportService) Overview(ctx context.Context, owner string, year, month int) (core.MonthOverview, error) {
	from, to := core.MonthRange(year, month)
	txs, err := s.Transactions(ctx, owner, from, to)
	if err != nil {
		return core.MonthOverview{}, err
	}
	return core.Overview(txs, year, month), nil
}

// Invalidate drops every cached range of owner.
func (s *ReportService) Invalidate(ctx context.Context, owner string) {
	if s.cache == nil || strings.TrimSpace(owner) == "" {
		return
	}
	s.mu.Lock()
	s.generations[core.NormalizeOwner(owner)]++
	n := s.cache.DeletePrefix(ctx, ownerPrefix(owner))
	s.mu.Unlock()
	slog.DebugContext(ctx, "Invalidated cached reports", flog.FieldOwner, core.NormalizeOwner(owner), "entries", n)
}
