package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	flog "fintrack/internal/log"
)

// sheetHeader is the column layout of the mirror sheet. Column A holds the
// transaction id and is used to find existing rows.
var sheetHeader = []any{"ID", "Owner", "Date", "Type", "Category", "Description", "Amount", "Paid", "Updated"}

// SheetsMirror keeps one row per transaction in a Google Sheets tab.
type SheetsMirror struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

var _ Mirror = (*SheetsMirror)(nil)

// LoadCredentials returns service account JSON from the inline value or the
// file path, in that order.
func LoadCredentials(inlineJSON, file string) ([]byte, error) {
	if s := strings.TrimSpace(inlineJSON); s != "" {
		return []byte(s), nil
	}
	if file = strings.TrimSpace(file); file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// NewSheetsMirror creates a Sheets service from service account credentials.
// Extra options are appended, which lets tests point the client elsewhere.
func NewSheetsMirror(ctx context.Context, spreadsheetID, sheet string, credentialsJSON []byte, opts ...goption.ClientOption) (*SheetsMirror, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if sheet == "" {
		sheet = "Transactions"
	}

	all := opts
	if len(credentialsJSON) > 0 {
		all = append([]goption.ClientOption{
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, opts...)
	}
	svc, err := gsheet.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets mirror ready", "sheet", sheet, flog.FieldComponent, flog.ComponentMirror)
	return &SheetsMirror{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

func (m *SheetsMirror) rng(a1 string) string {
	return fmt.Sprintf("'%s'!%s", m.sheet, a1)
}

// findRow returns the 1-based row of id, or 0 when absent, and whether the
// header row exists.
func (m *SheetsMirror) findRow(ctx context.Context, id string) (int, bool, error) {
	resp, err := m.svc.Spreadsheets.Values.Get(m.spreadsheetID, m.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, false, fmt.Errorf("read id column: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == id {
			return i + 1, true, nil
		}
	}
	return 0, len(resp.Values) > 0, nil
}

func toRow(t core.Transaction) []any {
	return []any{
		t.ID,
		t.Owner,
		t.Date.String(),
		t.Type.String(),
		t.Category,
		t.Description,
		t.Amount.String(),
		t.Paid,
		t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (m *SheetsMirror) Upsert(ctx context.Context, t core.Transaction) error {
	row, hasHeader, err := m.findRow(ctx, t.ID)
	if err != nil {
		return err
	}

	if row > 0 {
		vr := &gsheet.ValueRange{Values: [][]any{toRow(t)}}
		_, err = m.svc.Spreadsheets.Values.Update(m.spreadsheetID, m.rng(fmt.Sprintf("A%d:I%d", row, row)), vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update row %d: %w", row, err)
		}
		return nil
	}

	values := [][]any{toRow(t)}
	if !hasHeader {
		values = append([][]any{sheetHeader}, values...)
	}
	_, err = m.svc.Spreadsheets.Values.Append(m.spreadsheetID, m.rng("A:I"), &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

// Remove clears the row of id. Unknown ids are not an error.
func (m *SheetsMirror) Remove(ctx context.Context, id string) error {
	row, _, err := m.findRow(ctx, id)
	if err != nil {
		return err
	}
	if row == 0 {
		return nil
	}
	_, err = m.svc.Spreadsheets.Values.Clear(m.spreadsheetID, m.rng(fmt.Sprintf("A%d:I%d", row, row)), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row %d: %w", row, err)
	}
	return nil
}
