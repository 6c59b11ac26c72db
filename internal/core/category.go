package core

import (
	"sort"
	"strings"
)

// Category is a user-visible category name scoped to a transaction type.
type Category struct {
	Name string
	Type TransactionType
}

// CategorySet indexes categories by transaction type.
type CategorySet struct {
	byType map[TransactionType][]string
	index  map[TransactionType]map[string]struct{}
}

// NewCategorySet builds a set, dropping blanks, invalid types and duplicates
// while preserving first-seen order.
func NewCategorySet(cats []Category) CategorySet {
	cs := CategorySet{
		byType: make(map[TransactionType][]string),
		index:  make(map[TransactionType]map[string]struct{}),
	}
	for _, c := range cats {
		name := strings.TrimSpace(c.Name)
		if name == "" || !c.Type.Valid() {
			continue
		}
		key := categoryKey(name)
		if cs.index[c.Type] == nil {
			cs.index[c.Type] = make(map[string]struct{})
		}
		if _, ok := cs.index[c.Type][key]; ok {
			continue
		}
		cs.index[c.Type][key] = struct{}{}
		cs.byType[c.Type] = append(cs.byType[c.Type], name)
	}
	return cs
}

// Contains reports whether name is a category of type t.
func (cs CategorySet) Contains(t TransactionType, name string) bool {
	_, ok := cs.index[t][categoryKey(name)]
	return ok
}

// Names returns the category names of type t in insertion order.
func (cs CategorySet) Names(t TransactionType) []string {
	return append([]string(nil), cs.byType[t]...)
}

// All returns every category sorted by type order then name.
func (cs CategorySet) All() []Category {
	var out []Category
	for _, t := range Types {
		names := cs.Names(t)
		sort.Strings(names)
		for _, n := range names {
			out = append(out, Category{Name: n, Type: t})
		}
	}
	return out
}

// Len returns the number of distinct categories.
func (cs CategorySet) Len() int {
	n := 0
	for _, names := range cs.byType {
		n += len(names)
	}
	return n
}

func categoryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DefaultCategories seeds backends that start empty.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Salary", Type: Income},
		{Name: "Freelance", Type: Income},
		{Name: "Investments", Type: Income},
		{Name: "Invoice", Type: Income},
		{Name: "Other", Type: Income},
		{Name: "Housing", Type: Expense},
		{Name: "Groceries", Type: Expense},
		{Name: "Transport", Type: Expense},
		{Name: "Health", Type: Expense},
		{Name: "Leisure", Type: Expense},
		{Name: "Utilities", Type: Expense},
		{Name: "Bill", Type: Expense},
		{Name: "Other", Type: Expense},
		{Name: "Invoice", Type: Receivable},
		{Name: "Loan", Type: Receivable},
		{Name: "Other", Type: Receivable},
		{Name: "Bill", Type: Payable},
		{Name: "Loan", Type: Payable},
		{Name: "Other", Type: Payable},
	}
}
