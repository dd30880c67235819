package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rkv/capital-works/export"
	"github.com/rkv/capital-works/works"
)

func exportTask(sno int64, sub string, code works.AccountCode, estimate string) works.Task {
	in := works.Inputs{
		SubDivision:        sub,
		AccountCode:        code,
		NumberOfWorks:      10,
		EstimateAmount:     decimal.RequireFromString(estimate),
		AgreementAmount:    decimal.RequireFromString("900"),
		ExpUpto31032025:    decimal.RequireFromString("400"),
		ExpUptoLastMonth:   decimal.RequireFromString("100"),
		ExpDuringThisMonth: decimal.RequireFromString("50"),
		WorksCompleted:     4,
	}
	return works.Task{
		SNo:       sno,
		Inputs:    in,
		Derived:   works.Derive(in),
		CreatedBy: "alice",
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWrite_Layout(t *testing.T) {
	// GIVEN: Two tasks in one sub-division, one in another
	tasks := []works.Task{
		exportTask(2, "North Zone", works.AccountSpill, "1000.5"),
		exportTask(1, "North Zone", works.AccountNew, "2000"),
		exportTask(3, "Alpha", works.AccountNew, "10"),
	}
	summary := works.Summarize(tasks, works.Filter{})

	// WHEN: Rendering the workbook
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, tasks, summary))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.SheetName, excelize.Options{RawCellValue: true})
	require.NoError(t, err)

	// THEN: Header, then task rows in the given order
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, "sno", rows[0][0])
	assert.Equal(t, "created_at", rows[0][len(works.Columns)-1])
	assert.Equal(t, "2", rows[1][0])
	assert.Equal(t, "1000.5", rows[1][4])
	assert.Equal(t, "1", rows[2][0])
	assert.Equal(t, "3", rows[3][0])

	// AND: Grand totals after a blank row
	assert.Empty(t, rows[4])
	assert.Equal(t, []string{export.GrandTotalsTitle}, rows[5])
	assert.Equal(t, works.FieldNumberOfWorks, rows[6][0])
	assert.Equal(t, "30", rows[7][0])
	assert.Equal(t, "3010.5", rows[7][1])

	// AND: Sub-division totals, "All" row first in each group
	assert.Empty(t, rows[8])
	assert.Equal(t, []string{export.SubTotalsTitle}, rows[9])
	assert.Equal(t, []string{"sub_division", "account_code", "number_of_works"}, rows[10][:3])
	assert.Equal(t, []string{"Alpha", "All", "10"}, rows[11][:3])
	assert.Equal(t, []string{"Alpha", "New", "10"}, rows[12][:3])
	assert.Equal(t, []string{"North Zone", "All", "20"}, rows[13][:3])
	assert.Equal(t, []string{"North Zone", "New", "10"}, rows[14][:3])
	assert.Equal(t, []string{"North Zone", "Spill", "10"}, rows[15][:3])
	assert.Len(t, rows, 16)
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, nil, works.Summarize(nil, works.Filter{})))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, "sno", rows[0][0])
	assert.Equal(t, export.GrandTotalsTitle, rows[2][0])
	assert.Equal(t, export.SubTotalsTitle, rows[6][0])
}

func TestFilename(t *testing.T) {
	name := export.Filename(time.Date(2025, 7, 1, 14, 5, 9, 0, time.UTC))
	assert.Equal(t, "tasks_export_20250701_140509.xlsx", name)
}
