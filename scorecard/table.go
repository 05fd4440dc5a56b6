package scorecard

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Table is a sheet with a resolved header row. All cells are text; numeric
// cells carry their raw spreadsheet value.
type Table struct {
	Columns []string
	Rows    [][]string
	// HeaderRow is the index of the header within the source grid.
	HeaderRow int
}

// NewTable builds a Table from grid using grid[header] as column names.
// Blank header cells become "Unnamed: N" and repeated names get ".1", ".2"
// suffixes. Rows are padded to the column count.
func NewTable(grid [][]string, header int) *Table {
	width := 0
	for _, row := range grid[header:] {
		width = max(width, len(row))
	}

	seen := map[string]int{}
	columns := make([]string, width)
	for i := range columns {
		name := ""
		if i < len(grid[header]) {
			name = strings.TrimSpace(grid[header][i])
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		columns[i] = name
	}

	rows := make([][]string, 0, len(grid)-header-1)
	for _, row := range grid[header+1:] {
		padded := make([]string, width)
		copy(padded, row)
		rows = append(rows, padded)
	}
	return &Table{Columns: columns, Rows: rows, HeaderRow: header}
}

// Column returns the index of the named column or -1.
func (t *Table) Column(name string) int {
	return lo.IndexOf(t.Columns, name)
}

// Value returns the cell at row, col or "" when out of range.
func (t *Table) Value(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// AddColumn appends a column, replacing an existing one of the same name.
func (t *Table) AddColumn(name string, values []string) {
	if idx := t.Column(name); idx >= 0 {
		for i := range t.Rows {
			t.Rows[i][idx] = values[i]
		}
		return
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], values[i])
	}
}

// ColumnValues returns every value of the named column.
func (t *Table) ColumnValues(name string) []string {
	idx := t.Column(name)
	if idx < 0 {
		return nil
	}
	return lo.Map(t.Rows, func(row []string, _ int) string { return row[idx] })
}

// SheetRow is the 1-based spreadsheet row number of data row idx.
func (t *Table) SheetRow(idx int) int {
	return t.HeaderRow + idx + 2
}
