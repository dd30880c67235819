package works

import (
	"cmp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnKind is the value type of a task column.
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindDecimal
	KindText
	KindTime
)

// Column describes one task column: its name, type, and whether it is summed
// in totals.
type Column struct {
	Name   string
	Kind   ColumnKind
	Summed bool

	intOf  func(Task) int64
	decOf  func(Task) decimal.Decimal
	textOf func(Task) string
	timeOf func(Task) time.Time
}

// Value returns the column's value for t: int64, decimal.Decimal, string or
// time.Time depending on Kind.
func (c Column) Value(t Task) any {
	switch c.Kind {
	case KindInt:
		return c.intOf(t)
	case KindDecimal:
		return c.decOf(t)
	case KindTime:
		return c.timeOf(t)
	default:
		return c.textOf(t)
	}
}

// compare orders a and b on this column. Text compares case-insensitively.
func (c Column) compare(a, b Task) int {
	switch c.Kind {
	case KindInt:
		return cmp.Compare(c.intOf(a), c.intOf(b))
	case KindDecimal:
		return c.decOf(a).Cmp(c.decOf(b))
	case KindTime:
		return c.timeOf(a).Compare(c.timeOf(b))
	default:
		return strings.Compare(strings.ToLower(c.textOf(a)), strings.ToLower(c.textOf(b)))
	}
}

func intCol(name string, summed bool, f func(Task) int64) Column {
	return Column{Name: name, Kind: KindInt, Summed: summed, intOf: f}
}

func decCol(name string, f func(Task) decimal.Decimal) Column {
	return Column{Name: name, Kind: KindDecimal, Summed: true, decOf: f}
}

func textCol(name string, f func(Task) string) Column {
	return Column{Name: name, Kind: KindText, textOf: f}
}

// Columns lists every task column in record order.
var Columns = []Column{
	intCol(FieldSNo, false, func(t Task) int64 { return t.SNo }),
	textCol(FieldSubDivision, func(t Task) string { return t.SubDivision }),
	textCol(FieldAccountCode, func(t Task) string { return string(t.AccountCode) }),
	intCol(FieldNumberOfWorks, true, func(t Task) int64 { return t.NumberOfWorks }),
	decCol(FieldEstimateAmount, func(t Task) decimal.Decimal { return t.EstimateAmount }),
	decCol(FieldAgreementAmount, func(t Task) decimal.Decimal { return t.AgreementAmount }),
	decCol(FieldExpUpto31032025, func(t Task) decimal.Decimal { return t.ExpUpto31032025 }),
	decCol(FieldBalanceAmount, func(t Task) decimal.Decimal { return t.BalanceAmount }),
	decCol(FieldExpUptoLastMonth, func(t Task) decimal.Decimal { return t.ExpUptoLastMonth }),
	decCol(FieldExpDuringThisMonth, func(t Task) decimal.Decimal { return t.ExpDuringThisMonth }),
	decCol(FieldTotalExpDuringYear, func(t Task) decimal.Decimal { return t.TotalExpDuringYear }),
	decCol(FieldTotalValueWorkDone, func(t Task) decimal.Decimal { return t.TotalValueWorkDone }),
	intCol(FieldWorksCompleted, true, func(t Task) int64 { return t.WorksCompleted }),
	intCol(FieldBalanceWorks, true, func(t Task) int64 { return t.BalanceWorks }),
	textCol(FieldCreatedBy, func(t Task) string { return t.CreatedBy }),
	{Name: FieldCreatedAt, Kind: KindTime, timeOf: func(t Task) time.Time { return t.CreatedAt }},
}

var columnByName = func() map[string]Column {
	m := make(map[string]Column, len(Columns))
	for _, c := range Columns {
		m[c.Name] = c
	}
	return m
}()

// IsColumn reports whether name is a sortable column.
func IsColumn(name string) bool {
	_, ok := columnByName[name]
	return ok
}

// SummedColumns returns the columns that appear in totals, in record order.
func SummedColumns() []Column {
	var out []Column
	for _, c := range Columns {
		if c.Summed {
			out = append(out, c)
		}
	}
	return out
}

// Value returns the total for a summed column, as int64 or
// decimal.Decimal.
func (s Totals) Value(column string) any {
	switch column {
	case FieldNumberOfWorks:
		return s.NumberOfWorks
	case FieldEstimateAmount:
		return s.EstimateAmount
	case FieldAgreementAmount:
		return s.AgreementAmount
	case FieldExpUpto31032025:
		return s.ExpUpto31032025
	case FieldBalanceAmount:
		return s.BalanceAmount
	case FieldExpUptoLastMonth:
		return s.ExpUptoLastMonth
	case FieldExpDuringThisMonth:
		return s.ExpDuringThisMonth
	case FieldTotalExpDuringYear:
		return s.TotalExpDuringYear
	case FieldTotalValueWorkDone:
		return s.TotalValueWorkDone
	case FieldWorksCompleted:
		return s.WorksCompleted
	case FieldBalanceWorks:
		return s.BalanceWorks
	}
	return nil
}
