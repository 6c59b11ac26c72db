package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fintrack/internal/core"
	flog "fintrack/internal/log"
	"fintrack/internal/store"
)

// Sender delivers a plain-text message. notify.SMTPSender implements it.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dueness classifies an open receivable or payable against today.
type Dueness string

const (
	Overdue  Dueness = "overdue"
	DueToday Dueness = "due today"
	DueSoon  Dueness = "due soon"
)

// ClassifyDue returns the dueness of date relative to today. Dates further
// than leadDays ahead are not due.
func ClassifyDue(date, today core.Date, leadDays int) (Dueness, bool) {
	switch {
	case date.Before(today.Time):
		return Overdue, true
	case date.Equal(today.Time):
		return DueToday, true
	case !date.After(today.AddDate(0, 0, leadDays)):
		return DueSoon, true
	}
	return "", false
}

// ReminderResult reports one reminder run.
type ReminderResult struct {
	Owners int
	Items  int
	Failed int
}

// ReminderService emails each owner a digest of open receivables and payables
// dated on or before today plus the lead days.
type ReminderService struct {
	backend  store.TransactionLister
	sender   Sender
	leadDays int
	now      func() time.Time
}

func NewReminderService(backend store.TransactionLister, sender Sender, leadDays int) *ReminderService {
	if leadDays < 0 {
		leadDays = 0
	}
	return &ReminderService{backend: backend, sender: sender, leadDays: leadDays, now: time.Now}
}

// Run sends one digest per owner. Delivery failures are counted and joined
// into the returned error; the remaining owners are still processed.
func (s *ReminderService) Run(ctx context.Context) (ReminderResult, error) {
	today := core.DateOf(s.now())
	cutoff := core.Date{Time: today.AddDate(0, 0, s.leadDays)}

	open, err := s.unpaid(ctx, cutoff)
	if err != nil {
		return ReminderResult{}, fmt.Errorf("find unpaid transactions: %w", err)
	}

	byOwner := make(map[string][]core.Transaction)
	for _, t := range open {
		owner := core.NormalizeOwner(t.Owner)
		byOwner[owner] = append(byOwner[owner], t)
	}
	owners := make([]string, 0, len(byOwner))
	for o := range byOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	var (
		res  ReminderResult
		errs []error
	)
	for _, owner := range owners {
		items := byOwner[owner]
		subject, body := Digest(items, today, s.leadDays)
		if err := s.sender.Send(ctx, owner, subject, body); err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", owner, err))
			slog.ErrorContext(ctx, "Failed to send reminder",
				flog.FieldOwner, owner, flog.FieldComponent, flog.ComponentReminder, flog.FieldError, err)
			continue
		}
		res.Owners++
		res.Items += len(items)
	}

	slog.InfoContext(ctx, "Reminder run completed",
		"owners", res.Owners, "items", res.Items, "failed", res.Failed, flog.FieldComponent, flog.ComponentReminder)
	return res, errors.Join(errs...)
}

func (s *ReminderService) unpaid(ctx context.Context, cutoff core.Date) ([]core.Transaction, error) {
	if finder, ok := s.backend.(store.UnpaidFinder); ok {
		return finder.Unpaid(ctx, cutoff)
	}

	var out []core.Transaction
	for _, typ := range []core.TransactionType{core.Receivable, core.Payable} {
		txs, err := store.ListAll(ctx, s.backend, store.ListQuery{
			Type:      typ,
			To:        cutoff,
			SortField: store.SortDate,
			Order:     store.Asc,
		})
		if err != nil {
			return nil, err
		}
		for _, t := range txs {
			if !t.Paid {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// Digest renders the reminder mail for one owner's open records.
func Digest(items []core.Transaction, today core.Date, leadDays int) (string, string) {
	sorted := append([]core.Transaction(nil), items...)
	store.SortTransactions(sorted, store.SortDate, store.Asc)

	var receivable, payable core.Money
	var b strings.Builder
	fmt.Fprintf(&b, "Open items as of %s:\n\n", today)
	for _, t := range sorted {
		due, ok := ClassifyDue(t.Date, today, leadDays)
		if !ok {
			continue
		}
		if t.Type == core.Receivable {
			receivable = receivable.Add(t.Amount)
		} else {
			payable = payable.Add(t.Amount)
		}
		line := fmt.Sprintf("%s  %-10s  %-10s  %10s  %s", t.Date, t.Type, due, t.Amount, t.Category)
		if t.Description != "" {
			line += " - " + t.Description
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "\nTo collect: %s\nTo pay: %s\n", receivable, payable)

	subject := fmt.Sprintf("%d open item(s) to settle", len(sorted))
	return subject, b.String()
}
