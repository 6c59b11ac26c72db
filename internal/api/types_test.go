package api

import (
	"encoding/json"
	"errors"
	"testing"

	"fintrack/internal/core"
)

func TestAmountJSON(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{`12.34`, 1234, true},
		{`"12.34"`, 1234, true},
		{`0`, 0, true},
		{`1.005`, 101, true},
		{`-3.5`, -350, true},
		{`"12,34"`, 1234, true},
		{`" 7 "`, 700, true},
		{`"abc"`, 0, false},
		{`1e2`, 0, false},
		{`"1e2"`, 0, false},
		{`"1.2.3"`, 0, false},
		{`""`, 0, false},
		{`null`, 0, false},
	}
	for _, tc := range cases {
		var a Amount
		err := json.Unmarshal([]byte(tc.in), &a)
		if tc.ok != (err == nil) {
			t.Fatalf("%s: ok=%v err=%v", tc.in, tc.ok, err)
		}
		if tc.ok && a.Cents != tc.cents {
			t.Fatalf("%s: got %d want %d", tc.in, a.Cents, tc.cents)
		}
		if !tc.ok && !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}

	b, _ := json.Marshal(struct {
		A Amount `json:"a"`
	}{Amount(core.Money{Cents: 1230})})
	if string(b) != `{"a":12.30}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	body := `{"type":"Receivable","amount":99.9,"category":"Invoice","date":"2025-06-01","paid":false}`
	wire, err := DecodeTransaction([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tx, err := wire.ToCore()
	if err != nil {
		t.Fatalf("to core: %v", err)
	}
	if tx.Type != core.Receivable || tx.Amount.Cents != 9990 || tx.Date.String() != "2025-06-01" {
		t.Fatalf("unexpected %+v", tx)
	}
	back := FromTransaction(tx)
	if back.Type != "receivable" || back.CreatedAt != nil {
		t.Fatalf("unexpected %+v", back)
	}
}

func TestToCoreErrors(t *testing.T) {
	if _, err := (Transaction{Type: "gift", Date: "2025-01-01"}).ToCore(); !errors.Is(err, core.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
	if _, err := (Transaction{Type: "income", Date: "01/01/2025"}).ToCore(); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
