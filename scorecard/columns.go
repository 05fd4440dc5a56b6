package scorecard

import (
	"errors"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrTargetColumnNotFound = errors.New("target column not found: expected a header containing 目标值 or 全年目标值 within the first 3 rows")
	ErrRuleColumnNotFound   = errors.New("scoring rule column not found: expected a header containing 计分规则 or 全年计分规则 within the first 3 rows")
	ErrEmptySheet           = errors.New("sheet has no rows")
)

// Keyword lists are in priority order: full-year columns win over generic
// ones.
var (
	TargetKeywords = []string{
		"全年目标值",
		"年度目标值", "2026目标值", "26年度目标值",
		"目标值", "考核目标值", "kpi目标值", "指标值", "目标",
	}
	RuleKeywords = []string{
		"全年计分规则",
		"计分规则", "年度计分规则",
		"评分规则", "考核规则", "计分标准",
	}
	SemiTargetKeywords = []string{"半年度目标值", "半年目标值", "中期目标值", "半期目标值"}
	SemiRuleKeywords   = []string{"半年度计分规则", "半年计分规则", "中期计分规则", "半期计分规则"}

	halfYearKeywords = []string{"半年度", "半年", "半期", "中期"}
)

// headerScanRows is how many rows below the first one may hold the header.
const headerScanRows = 3

// Columns names the columns a sheet is processed from. The semi-annual
// columns are optional.
type Columns struct {
	Target     string
	Rule       string
	SemiTarget string
	SemiRule   string
}

// HasSemiAnnual reports whether both semi-annual columns were found.
func (c Columns) HasSemiAnnual() bool {
	return c.SemiTarget != "" && c.SemiRule != ""
}

func containsAny(s string, keywords []string) bool {
	return lo.SomeBy(keywords, func(kw string) bool { return strings.Contains(s, kw) })
}

func isHalfYear(s string) bool {
	return containsAny(s, halfYearKeywords)
}

func fullYearMatch(keywords []string) func(string) bool {
	return func(cell string) bool {
		return containsAny(cell, keywords) && !isHalfYear(cell)
	}
}

// DetectHeaderRow finds the grid row holding the column names. The first row
// is the header whenever it names a target or a rule column. Otherwise the
// next three rows are scanned for one naming both, or failing that the first
// naming either.
func DetectHeaderRow(grid [][]string) int {
	if len(grid) == 0 {
		return 0
	}
	first := grid[0]
	if lo.SomeBy(first, fullYearMatch(TargetKeywords)) || lo.SomeBy(first, fullYearMatch(RuleKeywords)) {
		return 0
	}

	header := -1
	foundTarget, foundRule := false, false
	for i := 1; i <= headerScanRows && i < len(grid); i++ {
		hasTarget := lo.SomeBy(grid[i], func(cell string) bool { return containsAny(cell, TargetKeywords) })
		hasRule := lo.SomeBy(grid[i], func(cell string) bool { return containsAny(cell, RuleKeywords) })

		if hasTarget && hasRule {
			header = i
			break
		}
		if hasTarget && !foundTarget {
			header = i
			foundTarget = true
		}
		if hasRule && !foundRule {
			if header < 0 {
				header = i
			}
			foundRule = true
		}
	}
	return max(header, 0)
}

func findColumn(columns []string, keywords []string, excludeHalfYear bool) (string, string) {
	for _, kw := range keywords {
		for _, col := range columns {
			if strings.Contains(col, kw) && !(excludeHalfYear && isHalfYear(col)) {
				return col, kw
			}
		}
	}
	return "", ""
}

// IdentifyColumns resolves the header row of grid and picks the target and
// rule columns by keyword priority, ignoring half-year columns. Semi-annual
// columns are looked up separately and may be empty.
func IdentifyColumns(grid [][]string) (*Table, Columns, error) {
	table, cols, _, err := identifyColumns(grid)
	return table, cols, err
}

func identifyColumns(grid [][]string) (*Table, Columns, []string, error) {
	if len(grid) == 0 {
		return nil, Columns{}, nil, ErrEmptySheet
	}
	var notes []string

	header := DetectHeaderRow(grid)
	if header > 0 {
		notes = append(notes, "Header detected on row "+strconv.Itoa(header+1))
	}
	table := NewTable(grid, header)
	notes = append(notes, "Columns: "+strings.Join(table.Columns, ", "))

	var cols Columns
	var kw string
	if cols.Target, kw = findColumn(table.Columns, TargetKeywords, true); cols.Target == "" {
		return table, cols, notes, ErrTargetColumnNotFound
	}
	notes = append(notes, "Target column: "+cols.Target+" (keyword "+kw+")")

	if cols.Rule, kw = findColumn(table.Columns, RuleKeywords, true); cols.Rule == "" {
		return table, cols, notes, ErrRuleColumnNotFound
	}
	notes = append(notes, "Rule column: "+cols.Rule+" (keyword "+kw+")")

	if cols.SemiTarget, kw = findColumn(table.Columns, SemiTargetKeywords, false); cols.SemiTarget != "" {
		notes = append(notes, "Semi-annual target column: "+cols.SemiTarget+" (keyword "+kw+")")
	} else {
		notes = append(notes, "No semi-annual target column, skipping semi-annual processing")
	}
	if cols.SemiRule, kw = findColumn(table.Columns, SemiRuleKeywords, false); cols.SemiRule != "" {
		notes = append(notes, "Semi-annual rule column: "+cols.SemiRule+" (keyword "+kw+")")
	} else {
		notes = append(notes, "No semi-annual rule column, skipping semi-annual processing")
	}
	return table, cols, notes, nil
}
