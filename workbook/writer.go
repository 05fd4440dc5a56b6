package workbook

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/tomyedwab/scorecard/scorecard"
)

const maxSheetNameLen = 31

var columnWidths = map[string]float64{
	scorecard.ColBaseline:     15,
	scorecard.ColStandardRule: 60,
	scorecard.ColStatus:       20,
	scorecard.ColDirection:    12,
}

var sheetNameReplacer = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "[", "_", "]", "_", ":", "_", "?", "_",
)

// SanitizeSheetName replaces characters Excel forbids in sheet names and
// truncates the name to 31 characters.
func SanitizeSheetName(name string) string {
	name = sheetNameReplacer.Replace(name)
	if utf8.RuneCountInString(name) > maxSheetNameLen {
		name = string([]rune(name)[:maxSheetNameLen])
	}
	return name
}

// OutputSheet is a processed table under the sheet name it is written with.
type OutputSheet struct {
	Name  string
	Table *scorecard.Table
}

func multiSheets(results []SheetResult) []OutputSheet {
	return uniqueNames(lo.Map(results, func(r SheetResult, _ int) OutputSheet {
		return OutputSheet{Name: SanitizeSheetName(r.Name), Table: r.Output.Table}
	}))
}

func batchSheets(results []FileResult) []OutputSheet {
	var sheets []OutputSheet
	for _, fr := range results {
		if !fr.Succeeded() {
			continue
		}
		for _, sr := range fr.Sheet.Results {
			sheets = append(sheets, OutputSheet{
				Name:  SanitizeSheetName(fr.File.BaseName() + "_" + sr.Name),
				Table: sr.Output.Table,
			})
		}
	}
	return uniqueNames(sheets)
}

// Layout names the output sheets of a run over inputs workbooks. A lone
// workbook with a single sheet becomes Sheet1, a lone workbook keeps its sheet
// names and several workbooks get "<file>_<sheet>".
func Layout(results []FileResult, inputs int) []OutputSheet {
	succeeded := lo.Filter(results, func(r FileResult, _ int) bool { return r.Succeeded() })
	switch {
	case len(succeeded) == 0:
		return nil
	case inputs == 1 && len(succeeded[0].File.SheetNames()) == 1:
		return []OutputSheet{{Name: "Sheet1", Table: succeeded[0].Sheet.Results[0].Output.Table}}
	case inputs == 1:
		return multiSheets(succeeded[0].Sheet.Results)
	default:
		return batchSheets(succeeded)
	}
}

// uniqueNames suffixes repeated sheet names with _2, _3, ... Excel compares
// sheet names case-insensitively.
func uniqueNames(sheets []OutputSheet) []OutputSheet {
	seen := map[string]bool{}
	for i, s := range sheets {
		name := s.Name
		for n := 2; seen[strings.ToLower(name)]; n++ {
			suffix := "_" + strconv.Itoa(n)
			base := []rune(s.Name)
			if len(base)+len(suffix) > maxSheetNameLen {
				base = base[:maxSheetNameLen-len(suffix)]
			}
			name = string(base) + suffix
		}
		seen[strings.ToLower(name)] = true
		sheets[i].Name = name
	}
	return sheets
}

func widthOf(column string) (float64, bool) {
	w, ok := columnWidths[strings.TrimPrefix(column, scorecard.SemiPrefix)]
	return w, ok
}

func isRuleColumn(column string) bool {
	return strings.TrimPrefix(column, scorecard.SemiPrefix) == scorecard.ColStandardRule
}

func isResultColumn(column string) bool {
	_, ok := widthOf(column)
	return ok
}

// WriteSheets writes sheets, in order, as the worksheets of one workbook.
func WriteSheets(w io.Writer, sheets []OutputSheet) error {
	if len(sheets) == 0 {
		return ErrNothingProcessed
	}
	xl := excelize.NewFile()
	defer xl.Close()

	wrap, err := xl.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := xl.SetSheetName("Sheet1", s.Name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", s.Name, err)
			}
		} else if _, err := xl.NewSheet(s.Name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", s.Name, err)
		}
		if err := writeTable(xl, s.Name, s.Table, wrap); err != nil {
			return err
		}
	}

	if err := xl.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeTable(xl *excelize.File, sheet string, table *scorecard.Table, wrap int) error {
	table = DisplayColumns(table)

	header := lo.Map(table.Columns, func(c string, _ int) any { return c })
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", sheet, err)
	}

	for r, row := range table.Rows {
		values := make([]any, len(row))
		for c, v := range row {
			values[c] = cellValue(table.Columns[c], v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := xl.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", r+2, sheet, err)
		}
	}

	for c, column := range table.Columns {
		width, ok := widthOf(column)
		if !ok {
			continue
		}
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := xl.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s of %s: %w", column, sheet, err)
		}
		if isRuleColumn(column) {
			if err := xl.SetColStyle(sheet, col, wrap); err != nil {
				return fmt.Errorf("failed to wrap column %s of %s: %w", column, sheet, err)
			}
		}
	}
	return nil
}

// cellValue writes source numbers back as numbers. Derived columns are
// display text and stay strings.
func cellValue(column, v string) any {
	if isResultColumn(column) || v == "" {
		return v
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// DisplayColumns returns table without its internal columns, those whose
// names start with an underscore.
func DisplayColumns(table *scorecard.Table) *scorecard.Table {
	keep := lo.FilterMap(table.Columns, func(c string, i int) (int, bool) {
		return i, !strings.HasPrefix(c, "_")
	})
	if len(keep) == len(table.Columns) {
		return table
	}
	out := &scorecard.Table{
		Columns:   lo.Map(keep, func(i int, _ int) string { return table.Columns[i] }),
		HeaderRow: table.HeaderRow,
	}
	for _, row := range table.Rows {
		out.Rows = append(out.Rows, lo.Map(keep, func(i int, _ int) string { return row[i] }))
	}
	return out
}

// WriteCSV writes the display columns of table as UTF-8 CSV with a byte
// order mark so spreadsheet applications detect the encoding.
func WriteCSV(w io.Writer, table *scorecard.Table) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	table = DisplayColumns(table)
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
