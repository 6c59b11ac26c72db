// Package export renders an owner's filtered transactions as a PDF statement
// or an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/xuri/excelize/v2"

	"fintrack/internal/core"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxPDFRows = 500
	sheetName  = "Transactions"
)

// Statement is the input of both renderers.
type Statement struct {
	Owner        string
	From         core.Date
	To           core.Date
	Summary      core.Summary
	Transactions []core.Transaction
	GeneratedAt  time.Time
}

// NewStatement totals txs; the caller has already filtered them.
func NewStatement(owner string, from, to core.Date, txs []core.Transaction) Statement {
	return Statement{
		Owner:        owner,
		From:         from,
		To:           to,
		Summary:      core.Totals(txs),
		Transactions: txs,
		GeneratedAt:  time.Now().UTC(),
	}
}

// Filename returns an attachment name such as fintrack-2025-03-01-to-2025-03-31.pdf.
func (s Statement) Filename(ext string) string {
	from, to := s.From.String(), s.To.String()
	if from == "" {
		from = "start"
	}
	if to == "" {
		to = "today"
	}
	return "fintrack-" + from + "-to-" + to + "." + ext
}

func (s Statement) period() string {
	from, to := s.From.String(), s.To.String()
	switch {
	case from == "" && to == "":
		return "all dates"
	case from == "":
		return "until " + to
	case to == "":
		return "from " + from
	}
	return from + " to " + to
}

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"DATE", 24, "C"},
	{"TYPE", 24, "C"},
	{"CATEGORY", 32, "L"},
	{"DESCRIPTION", 62, "L"},
	{"AMOUNT", 26, "R"},
	{"PAID", 14, "C"},
}

// WritePDF renders the statement as an A4 PDF.
func WritePDF(w io.Writer, s Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.AddPage()

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Statement")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, "Period: "+s.period())
	pdf.Ln(5)
	pdf.Cell(0, 6, "Owner: "+s.Owner)
	pdf.Ln(10)

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetTextColor(20, 20, 20)

	totals := []struct {
		label string
		value core.Money
	}{
		{"Income", s.Summary.Income},
		{"Expense", s.Summary.Expense},
		{"Balance", s.Summary.Balance},
		{"Outstanding", s.Summary.Outstanding},
	}
	pdf.SetFont("Helvetica", "B", 11)
	for i, t := range totals {
		pdf.CellFormat(45.5, 10, t.label, "1", lineBreak(i, len(totals)), "C", true, 0, "")
	}
	pdf.SetFont("Helvetica", "", 11)
	for i, t := range totals {
		pdf.CellFormat(45.5, 10, t.value.String(), "1", lineBreak(i, len(totals)), "C", false, 0, "")
	}
	pdf.Ln(6)

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(245, 245, 245)
		for i, c := range pdfColumns {
			pdf.CellFormat(c.width, 8, c.title, "1", lineBreak(i, len(pdfColumns)), "C", true, 0, "")
		}
		pdf.SetFont("Helvetica", "", 9)
	}
	header()

	pdf.SetTextColor(30, 30, 30)
	for i, t := range s.Transactions {
		if i >= maxPDFRows {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 8, fmt.Sprintf("%d more rows omitted", len(s.Transactions)-maxPDFRows), "1", 1, "C", false, 0, "")
			break
		}
		if pdf.GetY() > 270 {
			pdf.AddPage()
			header()
		}
		cells := []string{
			t.Date.String(),
			strings.ToUpper(t.Type.String()),
			trimTo(t.Category, 18),
			trimTo(t.Description, 40),
			t.Amount.String(),
			paidMark(t),
		}
		for j, c := range pdfColumns {
			pdf.CellFormat(c.width, 7, cells[j], "1", lineBreak(j, len(pdfColumns)), c.align, false, 0, "")
		}
	}

	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 10, "Generated "+s.GeneratedAt.Format(time.RFC3339), "", 0, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf build failed: %w", err)
	}
	return nil
}

// WriteXLSX renders the transactions on one sheet and the totals on another.
func WriteXLSX(w io.Writer, s Statement) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []any{"ID", "Date", "Type", "Category", "Description", "Amount", "Paid"}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, t := range s.Transactions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{t.ID, t.Date.String(), t.Type.String(), t.Category, t.Description, t.Amount.Float(), t.Paid}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	idx, err := f.NewSheet("Summary")
	if err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	summary := [][]any{
		{"Owner", s.Owner},
		{"Period", s.period()},
		{"Income", s.Summary.Income.Float()},
		{"Expense", s.Summary.Expense.Float()},
		{"Receivable", s.Summary.Receivable.Float()},
		{"Payable", s.Summary.Payable.Float()},
		{"Balance", s.Summary.Balance.Float()},
		{"Outstanding", s.Summary.Outstanding.Float()},
		{"Count", s.Summary.Count},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Summary", cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	f.SetActiveSheet(idx)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func lineBreak(i, n int) int {
	if i == n-1 {
		return 1
	}
	return 0
}

func paidMark(t core.Transaction) string {
	if t.Paid {
		return "yes"
	}
	return ""
}

func trimTo(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "..."
}
