// Package workbook reads KPI spreadsheets into grids for the scorecard
// engine and writes processed tables back out as xlsx or CSV.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format: only .xlsx and .xlsm workbooks can be read")
	ErrNoSheets          = errors.New("workbook has no sheets")
	ErrNothingProcessed  = errors.New("no sheet could be processed")
)

// File is an opened workbook.
type File struct {
	Name string
	xl   *excelize.File
}

// SupportedExtension reports whether name looks like a readable workbook.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Open reads a workbook. Legacy .xls files are rejected up front.
func Open(name string, r io.Reader) (*File, error) {
	if !SupportedExtension(name) {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook %s: %w", name, err)
	}
	return &File{Name: name, xl: xl}, nil
}

func (f *File) Close() error {
	return f.xl.Close()
}

// SheetNames returns the sheets in workbook order.
func (f *File) SheetNames() []string {
	return f.xl.GetSheetList()
}

// BaseName is the file name without directory or extension.
func (f *File) BaseName() string {
	base := filepath.Base(f.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Grid returns the cells of sheet as text. Numeric cells keep their stored
// value rather than the displayed format, so a cell shown as "85%" reads as
// "0.85". Rows with no non-blank cell are dropped.
func (f *File) Grid(sheet string) ([][]string, error) {
	rows, err := f.xl.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return lo.Filter(rows, func(row []string, _ int) bool {
		return lo.SomeBy(row, func(cell string) bool { return strings.TrimSpace(cell) != "" })
	}), nil
}

// HasKPIColumns reports whether any cell of grid names a target and any
// cell names a scoring rule. Sheets failing this check are skipped.
func HasKPIColumns(grid [][]string) bool {
	targetKeywords := []string{"目标值", "年度目标值", "全年目标值", "2026目标值"}
	ruleKeywords := []string{"计分规则", "评分规则", "考核规则", "计分标准"}
	return anyCellContains(grid, targetKeywords) && anyCellContains(grid, ruleKeywords)
}

func anyCellContains(grid [][]string, keywords []string) bool {
	for _, row := range grid {
		for _, cell := range row {
			for _, kw := range keywords {
				if strings.Contains(cell, kw) {
					return true
				}
			}
		}
	}
	return false
}
