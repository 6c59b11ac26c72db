package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
	}{
		{"both values provided", url.Values{"year": {"2024"}, "month": {"12"}}, 2024, 12},
		{"defaults to now", url.Values{}, 2025, 3},
		{"invalid values are ignored", url.Values{"year": {"abc"}, "month": {"xyz"}}, 2025, 3},
		{"month out of range", url.Values{"year": {"2024"}, "month": {"13"}}, 2024, 3},
		{"zero month", url.Values{"month": {"0"}}, 2025, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMonthParams(tt.query, now)
			if got.Year != tt.wantYear || got.Month != tt.wantMonth {
				t.Errorf("ParseMonthParams = %d-%d, want %d-%d", got.Year, got.Month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestMonthParamsNavigation(t *testing.T) {
	jan := MonthParams{Year: 2025, Month: 1}
	if p := jan.Prev(); p.Year != 2024 || p.Month != 12 {
		t.Errorf("Prev of January = %+v", p)
	}
	dec := MonthParams{Year: 2024, Month: 12}
	if n := dec.Next(); n.Year != 2025 || n.Month != 1 {
		t.Errorf("Next of December = %+v", n)
	}
	feb := MonthParams{Year: 2024, Month: 2}
	if feb.First() != "2024-02-01" || feb.Last() != "2024-02-29" {
		t.Errorf("February 2024 bounds = %s..%s", feb.First(), feb.Last())
	}
	if feb.Label() != "February 2024" {
		t.Errorf("Label = %q", feb.Label())
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"type": "expense", "category": "Groceries", "amount": 42.5, "paid": true}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if parser.ContentType() != "application/json" {
		t.Errorf("ContentType() = %q", parser.ContentType())
	}
	if got := parser.Get("category"); got != "Groceries" {
		t.Errorf("Get('category') = %q, want 'Groceries'", got)
	}
	if got := parser.Get("amount"); got != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", got)
	}
	if !parser.Bool("paid") {
		t.Error("Bool('paid') = false, want true")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "type=income&description=march+salary%01&paid=on"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if got := parser.Get("description"); got != "march salary" {
		t.Errorf("Get('description') = %q, want control characters stripped", got)
	}
	if !parser.Bool("paid") {
		t.Error("checkbox value 'on' should be true")
	}
	if parser.Bool("missing") {
		t.Error("missing checkbox should be false")
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_TooLarge(t *testing.T) {
	body := "description=" + strings.Repeat("a", maxBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))

	if err := NewRequestBodyParser(req).Parse(); err == nil {
		t.Fatal("expected an error for an oversized body")
	}
}

func TestRequestBodyParser_Transaction(t *testing.T) {
	today := core.NewDate(2025, 3, 14)
	tests := []struct {
		name     string
		body     string
		wantErr  error
		wantDate string
	}{
		{
			name:     "full form",
			body:     "type=payable&amount=12.30&category=Bill&date=2025-03-01&description=power&paid=on",
			wantDate: "2025-03-01",
		},
		{
			name:     "missing date means today",
			body:     "type=expense&amount=3&category=Groceries",
			wantDate: "2025-03-14",
		},
		{name: "bad type", body: "type=gift&amount=3&category=Other", wantErr: core.ErrInvalidType},
		{name: "bad amount", body: "type=expense&amount=abc&category=Other", wantErr: core.ErrInvalidAmount},
		{name: "bad date", body: "type=expense&amount=1&category=Other&date=14/03/2025", wantErr: core.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ui/transactions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			tx, err := p.Transaction(today)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Transaction() error = %v", err)
			}
			if tx.Date.String() != tt.wantDate {
				t.Errorf("date = %s, want %s", tx.Date, tt.wantDate)
			}
		})
	}
}
