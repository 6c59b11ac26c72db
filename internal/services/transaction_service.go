// Package services orchestrates validation, persistence, event publication
// and report building on top of a storage backend.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/api"
	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/store"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// ReportInvalidator drops cached reports of an owner after a mutation.
type ReportInvalidator interface {
	Invalidate(ctx context.Context, owner string)
}

// TransactionService scopes every operation to the caller's owner email.
// Records of other owners behave as if they did not exist.
type TransactionService struct {
	backend     store.Backend
	publisher   EventPublisher
	invalidator ReportInvalidator
	log         *flog.StructuredLogger
}

type TransactionOption func(*TransactionService)

// WithPublisher enables event publication. A nil publisher is ignored.
func WithPublisher(p EventPublisher) TransactionOption {
	return func(s *TransactionService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithInvalidator(inv ReportInvalidator) TransactionOption {
	return func(s *TransactionService) { s.invalidator = inv }
}

func WithLogger(l *flog.Logger) TransactionOption {
	return func(s *TransactionService) {
		if l != nil {
			s.log = flog.NewStructuredLogger(l.WithComponent(flog.ComponentTransaction))
		}
	}
}

func NewTransactionService(backend store.Backend, opts ...TransactionOption) *TransactionService {
	s := &TransactionService{
		backend: backend,
		log:     flog.NewStructuredLogger(flog.FromContext(context.Background()).WithComponent(flog.ComponentTransaction)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates t, stamps it with owner and stores it.
func (s *TransactionService) Create(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	t.ID = ""
	t.Owner = core.NormalizeOwner(owner)
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	if !t.Type.Settleable() {
		t.Paid = false
	}
	if err := s.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.backend.Create(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.afterMutation(ctx, flog.OpCreate, amqp.ActionCreated, created)
	return created, nil
}

// Update replaces the editable fields of an existing record. The paid flag of
// income and expense records cannot be changed through Update.
func (s *TransactionService) Update(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	current, err := s.Get(ctx, owner, t.ID)
	if err != nil {
		return core.Transaction{}, err
	}

	t.Owner = current.Owner
	t.CreatedAt = current.CreatedAt
	t.Description = strings.TrimSpace(t.Description)
	t.Category = strings.TrimSpace(t.Category)
	if !t.Type.Settleable() {
		t.Paid = current.Paid && !current.Type.Settleable()
	}
	if err := s.validate(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.backend.Update(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	s.afterMutation(ctx, flog.OpUpdate, amqp.ActionUpdated, updated)
	return updated, nil
}

// Get returns store.ErrNotFound for unknown ids and for records of other owners.
func (s *TransactionService) Get(ctx context.Context, owner, id string) (core.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return core.Transaction{}, store.ErrNotFound
	}
	t, err := s.backend.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if core.NormalizeOwner(t.Owner) != core.NormalizeOwner(owner) {
		return core.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

func (s *TransactionService) List(ctx context.Context, owner string, q store.ListQuery) ([]core.Transaction, error) {
	q.Owner = owner
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	return s.backend.List(ctx, q)
}

func (s *TransactionService) Delete(ctx context.Context, owner, id string) error {
	current, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.afterMutation(ctx, flog.OpDelete, amqp.ActionDeleted, current)
	return nil
}

// TogglePaid sets the paid flag of a receivable or payable. With convert the
// record becomes income or expense and can no longer be toggled; category
// names the income or expense category it moves into and may be empty when
// the current name exists for the settled type.
func (s *TransactionService) TogglePaid(ctx context.Context, owner, id string, paid, convert bool, category string) (core.Transaction, error) {
	current, err := s.Get(ctx, owner, id)
	if err != nil {
		return core.Transaction{}, err
	}

	cats, err := s.backend.Categories(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load categories: %w", err)
	}
	next, err := core.Settle(current, core.NewCategorySet(cats), paid, convert, category)
	if err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.backend.Update(ctx, next)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("toggle paid: %w", err)
	}

	s.afterMutation(ctx, flog.OpToggle, amqp.ActionUpdated, updated)
	return updated, nil
}

// Categories returns the categories of typ, or all of them when typ is empty.
func (s *TransactionService) Categories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	if typ != "" && !typ.Valid() {
		return nil, core.ErrInvalidType
	}
	cats, err := s.backend.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	all := core.NewCategorySet(cats).All()
	if typ == "" {
		return all, nil
	}
	out := make([]core.Category, 0, len(all))
	for _, c := range all {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *TransactionService) Close() error {
	return s.backend.Close()
}

func (s *TransactionService) validate(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cats, err := s.backend.Categories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	return t.ValidateCategory(core.NewCategorySet(cats))
}

// afterMutation runs the side effects of a successful write. None of them can
// fail the request: the record is already stored.
func (s *TransactionService) afterMutation(ctx context.Context, op, action string, t core.Transaction) {
	s.log.LogTransactionChanged(ctx, op, t.Owner, t.ID, t.Type.String(), t.Category, t.Date.String(), t.Amount.Cents)

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, t.Owner)
	}

	if s.publisher == nil {
		return
	}
	var snapshot *api.Transaction
	if action != amqp.ActionDeleted {
		wire := api.FromTransaction(t)
		snapshot = &wire
	}
	ev := amqp.NewTransactionEvent(t.ID, t.Owner, action, s.version(ctx, t.ID, action), snapshot)
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			flog.FieldTransactionID, t.ID, "action", action, flog.FieldError, err)
	}
}

func (s *TransactionService) version(ctx context.Context, id, action string) int64 {
	tracker, ok := s.backend.(store.SyncTracker)
	if !ok || action == amqp.ActionDeleted {
		return 0
	}
	v, err := tracker.Version(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "Failed to read sync version", flog.FieldTransactionID, id, flog.FieldError, err)
		}
		return 0
	}
	return v
}
