/*
Package export renders tasks and their totals as an XLSX workbook.

LAYOUT (single sheet "Export"):
  header row          every task column, in record order
  one row per task    in the order given (already filtered and sorted)
  blank row
  "Grand Totals"
  totals header       the summed columns
  totals row
  blank row
  "Sub-Division Totals"
  header              sub_division, account_code, summed columns
  per sub-division    an "All" row, then one row per account code

Amounts are written as numbers with a two-decimal display format, so the
workbook keeps full precision while showing rounded values.

SEE ALSO:
  - works/columns.go: Column order and kinds
  - api/admin.go:     GET /admin/export
*/
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/rkv/capital-works/works"
)

const (
	SheetName   = "Export"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	GrandTotalsTitle = "Grand Totals"
	SubTotalsTitle   = "Sub-Division Totals"
	AllAccountCodes  = "All"
)

// Filename returns the attachment name for an export taken at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("tasks_export_%s.xlsx", now.Format("20060102_150405"))
}

// Write renders tasks and summary to w.
func Write(w io.Writer, tasks []works.Task, summary works.Summary) error {
	f, err := Build(tasks, summary)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build renders tasks and summary into a new workbook.
func Build(tasks []works.Task, summary works.Summary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	// numFmt 4 is the built-in "#,##0.00"
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create style: %w", err)
	}

	sw := &sheetWriter{f: f, amountStyle: amountStyle, boldStyle: boldStyle}

	header := make([]any, len(works.Columns))
	for i, c := range works.Columns {
		header[i] = c.Name
	}
	sw.heading(header...)

	for _, t := range tasks {
		row := make([]any, len(works.Columns))
		for i, c := range works.Columns {
			row[i] = c.Value(t)
		}
		sw.row(row...)
	}

	summed := works.SummedColumns()
	totalsRow := func(prefix []any, totals works.Totals) []any {
		out := append([]any{}, prefix...)
		for _, c := range summed {
			out = append(out, totals.Value(c.Name))
		}
		return out
	}
	summedHeader := make([]any, len(summed))
	for i, c := range summed {
		summedHeader[i] = c.Name
	}

	sw.blank()
	sw.heading(GrandTotalsTitle)
	sw.heading(summedHeader...)
	sw.row(totalsRow(nil, summary.GrandTotals)...)

	sw.blank()
	sw.heading(SubTotalsTitle)
	sw.heading(append([]any{works.FieldSubDivision, works.FieldAccountCode}, summedHeader...)...)
	for _, sub := range summary.BySubDivision {
		sw.row(totalsRow([]any{sub.SubDivision, AllAccountCodes}, sub.Totals)...)
		for _, acct := range sub.ByAccountCode {
			sw.row(totalsRow([]any{sub.SubDivision, string(acct.AccountCode)}, acct.Totals)...)
		}
	}

	if sw.err != nil {
		f.Close()
		return nil, sw.err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(works.Columns))
	if err := f.SetColWidth(SheetName, "A", lastCol, 18); err != nil {
		f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}
	return f, nil
}

// sheetWriter appends rows to the export sheet, remembering the first error.
type sheetWriter struct {
	f           *excelize.File
	next        int
	amountStyle int
	boldStyle   int
	err         error
}

func (sw *sheetWriter) blank() {
	sw.next++
}

func (sw *sheetWriter) heading(values ...any) {
	rowNum := sw.write(values)
	if rowNum == 0 {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, rowNum)
	last, _ := excelize.CoordinatesToCellName(len(values), rowNum)
	sw.setErr(sw.f.SetCellStyle(SheetName, first, last, sw.boldStyle))
}

func (sw *sheetWriter) row(values ...any) {
	cells := make([]any, len(values))
	for i, v := range values {
		// excelize does not know decimal.Decimal
		if d, ok := v.(decimal.Decimal); ok {
			cells[i] = d.InexactFloat64()
			continue
		}
		cells[i] = v
	}

	rowNum := sw.write(cells)
	if rowNum == 0 {
		return
	}
	for i, v := range values {
		if _, ok := v.(decimal.Decimal); !ok {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, rowNum)
		sw.setErr(sw.f.SetCellStyle(SheetName, cell, cell, sw.amountStyle))
	}
}

// write puts values on the next row and returns its 1-based number, or 0
// after an error.
func (sw *sheetWriter) write(values []any) int {
	if sw.err != nil {
		return 0
	}
	sw.next++
	cell, err := excelize.CoordinatesToCellName(1, sw.next)
	if err != nil {
		sw.setErr(err)
		return 0
	}
	sw.setErr(sw.f.SetSheetRow(SheetName, cell, &values))
	if sw.err != nil {
		return 0
	}
	return sw.next
}

func (sw *sheetWriter) setErr(err error) {
	if err != nil && sw.err == nil {
		sw.err = fmt.Errorf("write sheet: %w", err)
	}
}
