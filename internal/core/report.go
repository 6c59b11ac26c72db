package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	Daily   Granularity = "day"
	Weekly  Granularity = "week"
	Monthly Granularity = "month"
)

// maxSeriesPoints bounds the number of buckets a single series may produce.
const maxSeriesPoints = 1000

var (
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidRange       = errors.New("invalid date range")
)

type (
	Granularity string

	// Filter selects transactions; zero-valued fields do not filter.
	Filter struct {
		Owner    string
		Types    []TransactionType
		Category string
		From     Date // inclusive
		To       Date // inclusive
		Paid     *bool
	}

	// Summary holds per-type totals.
	Summary struct {
		Income      Money
		Expense     Money
		Receivable  Money
		Payable     Money
		Balance     Money // income - expense, may be negative
		Outstanding Money // unpaid receivable - unpaid payable, may be negative
		Count       int
	}

	// CategoryAmount represents an amount aggregated by category name.
	CategoryAmount struct {
		Name   string
		Amount Money
		Count  int
		Share  int // percent of the type total, rounded half-up
	}

	// SeriesPoint is one chart bucket.
	SeriesPoint struct {
		Label   string
		Start   Date
		Income  Money
		Expense Money
		Net     Money
	}

	// MonthOverview is a compact summary for a specific year+month.
	MonthOverview struct {
		Year       int
		Month      int // 1-12
		Summary    Summary
		ByCategory []CategoryAmount // expenses
	}
)

// ParseGranularity accepts day, week or month (plural forms too).
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day", "days", "daily":
		return Daily, nil
	case "week", "weeks", "weekly":
		return Weekly, nil
	case "month", "months", "monthly":
		return Monthly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
}

// Match reports whether t passes the filter.
func (f Filter) Match(t Transaction) bool {
	if f.Owner != "" && !strings.EqualFold(f.Owner, t.Owner) {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, typ := range f.Types {
			if typ == t.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Category != "" && categoryKey(f.Category) != categoryKey(t.Category) {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To.Time) {
		return false
	}
	if f.Paid != nil && *f.Paid != t.Paid {
		return false
	}
	return true
}

// FilterTransactions returns the transactions matching f, preserving order.
func FilterTransactions(txs []Transaction, f Filter) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Totals sums amounts per type.
func Totals(txs []Transaction) Summary {
	var s Summary
	var openRecv, openPay int64
	for _, t := range txs {
		switch t.Type {
		case Income:
			s.Income.Cents += t.Amount.Cents
		case Expense:
			s.Expense.Cents += t.Amount.Cents
		case Receivable:
			s.Receivable.Cents += t.Amount.Cents
			if !t.Paid {
				openRecv += t.Amount.Cents
			}
		case Payable:
			s.Payable.Cents += t.Amount.Cents
			if !t.Paid {
				openPay += t.Amount.Cents
			}
		default:
			continue
		}
		s.Count++
	}
	s.Balance = Money{Cents: s.Income.Cents - s.Expense.Cents}
	s.Outstanding = Money{Cents: openRecv - openPay}
	return s
}

// Total returns the total for a single type.
func (s Summary) Total(t TransactionType) Money {
	switch t {
	case Income:
		return s.Income
	case Expense:
		return s.Expense
	case Receivable:
		return s.Receivable
	case Payable:
		return s.Payable
	}
	return Money{}
}

// ByCategory groups the transactions of type t by category, largest first.
// Category names are grouped case-insensitively; the first spelling wins.
func ByCategory(txs []Transaction, t TransactionType) []CategoryAmount {
	idx := map[string]int{}
	var out []CategoryAmount
	var total int64
	for _, tx := range txs {
		if tx.Type != t {
			continue
		}
		key := categoryKey(tx.Category)
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, CategoryAmount{Name: strings.TrimSpace(tx.Category)})
		}
		out[i].Amount.Cents += tx.Amount.Cents
		out[i].Count++
		total += tx.Amount.Cents
	}
	for i := range out {
		if total > 0 {
			out[i].Share = int((out[i].Amount.Cents*100 + total/2) / total)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BucketStart returns the first day of the bucket containing d.
func BucketStart(d Date, g Granularity) Date {
	switch g {
	case Weekly:
		// ISO weeks start on Monday.
		offset := (int(d.Weekday()) + 6) % 7
		return Date{Time: d.AddDate(0, 0, -offset)}
	case Monthly:
		return NewDate(d.Year(), int(d.Month()), 1)
	default:
		return DateOf(d.Time)
	}
}

func nextBucket(d Date, g Granularity) Date {
	switch g {
	case Weekly:
		return Date{Time: d.AddDate(0, 0, 7)}
	case Monthly:
		return Date{Time: d.AddDate(0, 1, 0)}
	default:
		return Date{Time: d.AddDate(0, 0, 1)}
	}
}

func bucketLabel(d Date, g Granularity) string {
	if g == Monthly {
		return d.Format("2006-01")
	}
	return d.Format(DateLayout)
}

// Series buckets income and expense between from and to (inclusive). Every
// bucket in range is returned, including empty ones.
func Series(txs []Transaction, g Granularity, from, to Date) ([]SeriesPoint, error) {
	switch g {
	case Daily, Weekly, Monthly:
	default:
		return nil, ErrInvalidGranularity
	}
	if from.IsZero() || to.IsZero() || to.Before(from.Time) {
		return nil, ErrInvalidRange
	}

	var points []SeriesPoint
	idx := map[string]int{}
	end := BucketStart(to, g)
	for b := BucketStart(from, g); !b.After(end.Time); b = nextBucket(b, g) {
		if len(points) >= maxSeriesPoints {
			return nil, fmt.Errorf("%w: more than %d buckets", ErrInvalidRange, maxSeriesPoints)
		}
		label := bucketLabel(b, g)
		idx[label] = len(points)
		points = append(points, SeriesPoint{Label: label, Start: b})
	}

	for _, t := range txs {
		if t.Date.Before(from.Time) || t.Date.After(to.Time) {
			continue
		}
		i, ok := idx[bucketLabel(BucketStart(t.Date, g), g)]
		if !ok {
			continue
		}
		switch t.Type {
		case Income:
			points[i].Income.Cents += t.Amount.Cents
		case Expense:
			points[i].Expense.Cents += t.Amount.Cents
		}
	}
	for i := range points {
		points[i].Net = Money{Cents: points[i].Income.Cents - points[i].Expense.Cents}
	}
	return points, nil
}

// MonthRange returns the first and last day of a month.
func MonthRange(year, month int) (Date, Date) {
	first := NewDate(year, month, 1)
	return first, Date{Time: first.AddDate(0, 1, -1)}
}

// Overview builds the dashboard overview of a month.
func Overview(txs []Transaction, year, month int) MonthOverview {
	from, to := MonthRange(year, month)
	inMonth := FilterTransactions(txs, Filter{From: from, To: to})
	return MonthOverview{
		Year:       year,
		Month:      month,
		Summary:    Totals(inMonth),
		ByCategory: ByCategory(inMonth, Expense),
	}
}
