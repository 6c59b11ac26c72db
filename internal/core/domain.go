package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	Income     TransactionType = "income"
	Expense    TransactionType = "expense"
	Receivable TransactionType = "receivable"
	Payable    TransactionType = "payable"
)

// DateLayout is the wire and form format of a calendar date.
const DateLayout = "2006-01-02"

// MaxDescriptionLen bounds the optional free text of a transaction.
const MaxDescriptionLen = 200

type (
	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          string
		Owner       string // owner email
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
		Date        Date
		Paid        bool
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidOwner    = errors.New("invalid owner email")
	ErrEmptyCategory   = errors.New("empty category")
	ErrUnknownCategory = errors.New("category does not belong to transaction type")
	ErrDescriptionLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLen)
	ErrNotSettleable   = errors.New("only receivable and payable transactions can be marked paid")
)

// Types lists every transaction type in display order.
var Types = []TransactionType{Income, Expense, Receivable, Payable}

// ParseType normalizes and validates a transaction type.
func ParseType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Receivable, Payable:
		return true
	}
	return false
}

// Settleable reports whether the type carries a meaningful paid flag.
func (t TransactionType) Settleable() bool {
	return t == Receivable || t == Payable
}

// SettledType returns the type a paid receivable or payable becomes.
func (t TransactionType) SettledType() TransactionType {
	switch t {
	case Receivable:
		return Income
	case Payable:
		return Expense
	}
	return t
}

func (t TransactionType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the structural invariants of a transaction. Category
// membership is checked separately against a CategorySet.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := ValidateOwner(t.Owner); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > MaxDescriptionLen {
		return ErrDescriptionLong
	}
	return nil
}

// ValidateCategory checks that the category is allowed for the transaction type.
func (t Transaction) ValidateCategory(cs CategorySet) error {
	if !cs.Contains(t.Type, t.Category) {
		return fmt.Errorf("%w: %q is not a %s category", ErrUnknownCategory, t.Category, t.Type)
	}
	return nil
}

// MarkPaid settles a receivable or payable, converting it to income or expense.
func (t Transaction) MarkPaid() (Transaction, error) {
	if !t.Type.Settleable() {
		return t, ErrNotSettleable
	}
	t.Paid = true
	t.Type = t.Type.SettledType()
	return t, nil
}

// MarkUnpaid clears the paid flag on a receivable or payable that was not converted.
func (t Transaction) MarkUnpaid() (Transaction, error) {
	if !t.Type.Settleable() {
		return t, ErrNotSettleable
	}
	t.Paid = false
	return t, nil
}

// TogglePaid sets the paid flag. With convert, a paid receivable or payable is
// turned into income or expense; the conversion never runs backwards.
func TogglePaid(t Transaction, paid, convert bool) (Transaction, error) {
	if !t.Type.Settleable() {
		return t, ErrNotSettleable
	}
	if !paid {
		return t.MarkUnpaid()
	}
	if convert {
		return t.MarkPaid()
	}
	t.Paid = true
	return t, nil
}

// Settle applies TogglePaid and, when the record is converted, moves it into a
// category of the settled type. An explicit category wins; otherwise the
// current name is kept if the settled type has a category of that name.
// The category argument is ignored when the type does not change.
func Settle(t Transaction, cs CategorySet, paid, convert bool, category string) (Transaction, error) {
	next, err := TogglePaid(t, paid, convert)
	if err != nil {
		return t, err
	}
	if next.Type == t.Type {
		return next, nil
	}
	if category = strings.TrimSpace(category); category != "" {
		next.Category = category
	}
	if !cs.Contains(next.Type, next.Category) {
		return t, fmt.Errorf("%w: %q is not a %s category, pick one to convert into",
			ErrUnknownCategory, next.Category, next.Type)
	}
	return next, nil
}

// ValidateOwner checks that owner is a bare email address.
func ValidateOwner(owner string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrInvalidOwner
	}
	addr, err := mail.ParseAddress(owner)
	if err != nil || addr.Address != owner {
		return ErrInvalidOwner
	}
	return nil
}

// NormalizeOwner lowercases and trims an owner email.
func NormalizeOwner(owner string) string {
	return strings.ToLower(strings.TrimSpace(owner))
}
