// Package api holds the JSON wire shapes shared by the HTTP server and the
// REST API client.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// Amount is money on the wire: a JSON number in major units. Quoted numbers
// are accepted on input with the same rules as form input, so a decimal comma
// works and exponents do not. Negative values decode so validation can reject
// them with a domain error.
type Amount core.Money

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(core.Money(a).String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" {
		return fmt.Errorf("%w: missing amount", core.ErrInvalidAmount)
	}
	neg := strings.HasPrefix(s, "-")
	m, err := core.ParseAmount(strings.TrimPrefix(s, "-"))
	if err != nil {
		return fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	if neg {
		m.Cents = -m.Cents
	}
	*a = Amount(m)
	return nil
}

type (
	Transaction struct {
		ID          string     `json:"id,omitempty"`
		Owner       string     `json:"owner,omitempty"`
		Type        string     `json:"type"`
		Amount      Amount     `json:"amount"`
		Category    string     `json:"category"`
		Description string     `json:"description,omitempty"`
		Date        string     `json:"date"`
		Paid        bool       `json:"paid"`
		CreatedAt   *time.Time `json:"created_at,omitempty"`
		UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	}

	Category struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	PaidRequest struct {
		Paid     bool   `json:"paid"`
		Convert  bool   `json:"convert"`
		Category string `json:"category,omitempty"`
	}

	Summary struct {
		Income      Amount `json:"income"`
		Expense     Amount `json:"expense"`
		Receivable  Amount `json:"receivable"`
		Payable     Amount `json:"payable"`
		Balance     Amount `json:"balance"`
		Outstanding Amount `json:"outstanding"`
		Count       int    `json:"count"`
	}

	CategoryAmount struct {
		Name   string `json:"name"`
		Amount Amount `json:"amount"`
		Count  int    `json:"count"`
		Share  int    `json:"share"`
	}

	SeriesPoint struct {
		Label   string `json:"label"`
		Start   string `json:"start"`
		Income  Amount `json:"income"`
		Expense Amount `json:"expense"`
		Net     Amount `json:"net"`
	}

	Error struct {
		Error string `json:"error"`
	}
)

// ToCore converts a wire transaction into the domain type. Type and date are
// parsed; everything else is left to Transaction.Validate.
func (t Transaction) ToCore() (core.Transaction, error) {
	typ, err := core.ParseType(t.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(t.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	out := core.Transaction{
		ID:          t.ID,
		Owner:       t.Owner,
		Type:        typ,
		Amount:      core.Money(t.Amount),
		Category:    t.Category,
		Description: t.Description,
		Date:        date,
		Paid:        t.Paid,
	}
	if t.CreatedAt != nil {
		out.CreatedAt = *t.CreatedAt
	}
	if t.UpdatedAt != nil {
		out.UpdatedAt = *t.UpdatedAt
	}
	return out, nil
}

func FromTransaction(t core.Transaction) Transaction {
	out := Transaction{
		ID:          t.ID,
		Owner:       t.Owner,
		Type:        t.Type.String(),
		Amount:      Amount(t.Amount),
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date.String(),
		Paid:        t.Paid,
	}
	if !t.CreatedAt.IsZero() {
		c := t.CreatedAt
		out.CreatedAt = &c
	}
	if !t.UpdatedAt.IsZero() {
		u := t.UpdatedAt
		out.UpdatedAt = &u
	}
	return out
}

func FromTransactions(txs []core.Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	for i, t := range txs {
		out[i] = FromTransaction(t)
	}
	return out
}

func FromCategories(cats []core.Category) []Category {
	out := make([]Category, len(cats))
	for i, c := range cats {
		out[i] = Category{Name: c.Name, Type: c.Type.String()}
	}
	return out
}

func (c Category) ToCore() (core.Category, error) {
	typ, err := core.ParseType(c.Type)
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{Name: c.Name, Type: typ}, nil
}

func FromSummary(s core.Summary) Summary {
	return Summary{
		Income:      Amount(s.Income),
		Expense:     Amount(s.Expense),
		Receivable:  Amount(s.Receivable),
		Payable:     Amount(s.Payable),
		Balance:     Amount(s.Balance),
		Outstanding: Amount(s.Outstanding),
		Count:       s.Count,
	}
}

func FromCategoryAmounts(rows []core.CategoryAmount) []CategoryAmount {
	out := make([]CategoryAmount, len(rows))
	for i, r := range rows {
		out[i] = CategoryAmount{Name: r.Name, Amount: Amount(r.Amount), Count: r.Count, Share: r.Share}
	}
	return out
}

func FromSeries(pts []core.SeriesPoint) []SeriesPoint {
	out := make([]SeriesPoint, len(pts))
	for i, p := range pts {
		out[i] = SeriesPoint{
			Label:   p.Label,
			Start:   p.Start.String(),
			Income:  Amount(p.Income),
			Expense: Amount(p.Expense),
			Net:     Amount(p.Net),
		}
	}
	return out
}

// DecodeTransaction decodes a single transaction body.
func DecodeTransaction(b []byte) (Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(b, &t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
