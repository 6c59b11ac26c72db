package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Store is a thread-safe in-process backend. Data is lost on restart.
type Store struct {
	mu    sync.RWMutex
	cats  core.CategorySet
	items map[string]core.Transaction
	now   func() time.Time
}

var _ store.Backend = (*Store)(nil)

func New(cats []core.Category) *Store {
	return &Store{
		cats:  core.NewCategorySet(cats),
		items: make(map[string]core.Transaction),
		now:   time.Now,
	}
}

// NewFromFiles seeds categories from base/seed_categories.txt, one
// "type:name" entry per line. Falls back to the default categories.
func NewFromFiles(base string) *Store {
	cats := readCategories(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = core.DefaultCategories()
	}
	return New(cats)
}

func (s *Store) Create(_ context.Context, t core.Transaction) (core.Transaction, error) {
	t.Owner = core.NormalizeOwner(t.Owner)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := t.ValidateCategory(s.cats); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.items[t.ID]; exists {
		t.ID = uuid.NewString()
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.items[t.ID] = t
	return t, nil
}

func (s *Store) Update(_ context.Context, t core.Transaction) (core.Transaction, error) {
	t.Owner = core.NormalizeOwner(t.Owner)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := t.ValidateCategory(s.cats); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[t.ID]
	if !ok {
		return core.Transaction{}, store.ErrNotFound
	}
	t.CreatedAt = prev.CreatedAt
	t.UpdatedAt = s.now().UTC()
	s.items[t.ID] = t
	return t, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[id]
	if !ok {
		return core.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) List(_ context.Context, q store.ListQuery) ([]core.Transaction, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		all = append(all, t)
	}
	s.mu.RUnlock()
	return q.Apply(all), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Categories(_ context.Context) ([]core.Category, error) {
	return s.cats.All(), nil
}

func (s *Store) Close() error { return nil }

func readCategories(path string) []core.Category {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Category
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		typ, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		t, err := core.ParseType(typ)
		if err != nil {
			continue
		}
		out = append(out, core.Category{Name: strings.TrimSpace(name), Type: t})
	}
	return out
}
