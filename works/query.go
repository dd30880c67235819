/*
query.go - Query engine over a snapshot of task records

PURPOSE:
  Implements the two reporting contracts over a fully materialized slice of
  tasks. Nothing here touches storage; the service hands in a snapshot.

CONTRACTS:
  List:      filter -> sort -> paginate
  Summarize: filter -> group by sub_division -> group by account_code -> sum
  Select:    filter -> sort (no paging), used by the export so the workbook
             renders exactly the rows and order the list endpoint shows

FILTER (all optional, AND-combined):
  SubDivision  case-insensitive substring of the task's sub_division
  AccountCode  exact match
  From / To    inclusive bounds on created_at

SORT:
  Any column name (see columns.go), default sno. Unknown names fall back to
  sno. Sorting is stable in both directions: tasks equal on the key keep the
  store's relative order.

PAGINATION:
  page >= 1 (default 1), page_size 1..500 (default 50, larger is clamped).
  total_pages = max(1, ceil(total_items / page_size)). A page past the end
  yields no items rather than an error.

GROUPING:
  Summaries group by exact sub_division string, not by the substring used
  for filtering. Groups with no tasks do not appear.
*/
package works

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// =============================================================================
// FILTER
// =============================================================================

// Filter selects tasks. Zero values match everything.
type Filter struct {
	SubDivision string
	AccountCode AccountCode
	From        *time.Time
	To          *time.Time

	// Owner scopes the filter to tasks created by one user. It is set by the
	// HTTP layer for non-admin callers, never from query parameters.
	Owner string
}

// Match reports whether t passes every set criterion.
func (f Filter) Match(t Task) bool {
	if f.Owner != "" && t.CreatedBy != f.Owner {
		return false
	}
	if f.AccountCode != "" && t.AccountCode != f.AccountCode {
		return false
	}
	if sub := strings.TrimSpace(f.SubDivision); sub != "" && !containsFold(t.SubDivision, sub) {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

// Apply returns the tasks passing f, in their original order.
func (f Filter) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ErrInvalidDate is returned by ParseDateBound for unrecognized input.
var ErrInvalidDate = errors.New("invalid date")

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDateBound parses a filter bound given as a date or a date-time.
// Values without a zone are UTC. A bare date is the start of that day, or
// its last instant when end is true, so an upper bound of 2025-06-30 covers
// the whole of June 30.
func ParseDateBound(value string, end bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if d, err := time.Parse(time.DateOnly, value); err == nil {
		if end {
			return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return d, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// =============================================================================
// LIST
// =============================================================================

// ListQuery is a filter plus sort and page parameters.
type ListQuery struct {
	Filter   Filter
	SortBy   string
	Order    string
	Page     int
	PageSize int
}

// normalize applies defaults and clamps.
func (q ListQuery) normalize() ListQuery {
	if _, ok := columnByName[q.SortBy]; !ok {
		q.SortBy = FieldSNo
	}
	if q.Order != OrderDesc {
		q.Order = OrderAsc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize < 1:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	return q
}

// Page is one page of a listing.
type Page struct {
	Items      []Task
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// List filters, sorts and paginates tasks.
func List(tasks []Task, q ListQuery) Page {
	q = q.normalize()
	rows := Select(tasks, q.Filter, q.SortBy, q.Order)

	total := len(rows)
	pages := (total + q.PageSize - 1) / q.PageSize
	if pages < 1 {
		pages = 1
	}

	items := []Task{}
	if total > 0 && q.Page <= pages {
		start := (q.Page - 1) * q.PageSize
		end := min(start+q.PageSize, total)
		items = rows[start:end]
	}

	return Page{
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalItems: total,
		TotalPages: pages,
	}
}

// Select filters and sorts tasks without paging. The input is not modified.
func Select(tasks []Task, f Filter, sortBy, order string) []Task {
	rows := f.Apply(tasks)
	col, ok := columnByName[sortBy]
	if !ok {
		col = columnByName[FieldSNo]
	}
	desc := order == OrderDesc
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return col.compare(rows[j], rows[i]) < 0
		}
		return col.compare(rows[i], rows[j]) < 0
	})
	return rows
}

// =============================================================================
// SUMMARIZE
// =============================================================================

// Totals are the sums of the numeric columns over a set of tasks.
type Totals struct {
	NumberOfWorks      int64
	EstimateAmount     decimal.Decimal
	AgreementAmount    decimal.Decimal
	ExpUpto31032025    decimal.Decimal
	BalanceAmount      decimal.Decimal
	ExpUptoLastMonth   decimal.Decimal
	ExpDuringThisMonth decimal.Decimal
	TotalExpDuringYear decimal.Decimal
	TotalValueWorkDone decimal.Decimal
	WorksCompleted     int64
	BalanceWorks       int64
}

// Add accumulates t into the totals.
func (s *Totals) Add(t Task) {
	s.NumberOfWorks += t.NumberOfWorks
	s.EstimateAmount = s.EstimateAmount.Add(t.EstimateAmount)
	s.AgreementAmount = s.AgreementAmount.Add(t.AgreementAmount)
	s.ExpUpto31032025 = s.ExpUpto31032025.Add(t.ExpUpto31032025)
	s.BalanceAmount = s.BalanceAmount.Add(t.BalanceAmount)
	s.ExpUptoLastMonth = s.ExpUptoLastMonth.Add(t.ExpUptoLastMonth)
	s.ExpDuringThisMonth = s.ExpDuringThisMonth.Add(t.ExpDuringThisMonth)
	s.TotalExpDuringYear = s.TotalExpDuringYear.Add(t.TotalExpDuringYear)
	s.TotalValueWorkDone = s.TotalValueWorkDone.Add(t.TotalValueWorkDone)
	s.WorksCompleted += t.WorksCompleted
	s.BalanceWorks += t.BalanceWorks
}

// AccountCodeTotals are the totals of one account code within a sub-division.
type AccountCodeTotals struct {
	AccountCode AccountCode
	Totals      Totals
}

// SubDivisionTotals are the totals of one sub-division and its account codes.
type SubDivisionTotals struct {
	SubDivision   string
	Totals        Totals
	ByAccountCode []AccountCodeTotals
}

// Summary is the result of Summarize.
type Summary struct {
	GrandTotals   Totals
	BySubDivision []SubDivisionTotals
}

// Summarize totals the tasks passing f: overall, per sub-division and per
// account code within each sub-division. Sub-divisions are ordered
// case-insensitively; account codes follow AccountCodes.
func Summarize(tasks []Task, f Filter) Summary {
	type group struct {
		totals   Totals
		accounts map[AccountCode]*Totals
	}

	var summary Summary
	groups := make(map[string]*group)
	for _, t := range f.Apply(tasks) {
		summary.GrandTotals.Add(t)

		g, ok := groups[t.SubDivision]
		if !ok {
			g = &group{accounts: make(map[AccountCode]*Totals)}
			groups[t.SubDivision] = g
		}
		g.totals.Add(t)

		acct, ok := g.accounts[t.AccountCode]
		if !ok {
			acct = &Totals{}
			g.accounts[t.AccountCode] = acct
		}
		acct.Add(t)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})

	summary.BySubDivision = make([]SubDivisionTotals, 0, len(names))
	for _, name := range names {
		g := groups[name]
		sub := SubDivisionTotals{
			SubDivision:   name,
			Totals:        g.totals,
			ByAccountCode: []AccountCodeTotals{},
		}
		for _, code := range AccountCodes {
			if acct, ok := g.accounts[code]; ok {
				sub.ByAccountCode = append(sub.ByAccountCode, AccountCodeTotals{
					AccountCode: code,
					Totals:      *acct,
				})
			}
		}
		summary.BySubDivision = append(summary.BySubDivision, sub)
	}
	return summary
}
