package workbook

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	logger "github.com/tomyedwab/scorecard/log"
	"github.com/tomyedwab/scorecard/scorecard"
)

// SheetResult is one successfully processed sheet.
type SheetResult struct {
	Name   string
	Output *scorecard.Output
}

// Summary counts sheet outcomes of a workbook.
type Summary struct {
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	SheetNames    []string `json:"sheet_names"`
	SuccessSheets []string `json:"success_sheets"`
	SkippedSheets []string `json:"skipped_sheets"`
	FailedSheets  []string `json:"failed_sheets"`
}

// MultiSheet processes every sheet of a workbook that carries KPI columns.
type MultiSheet struct {
	file    *File
	logger  *logrus.Entry
	logs    []string
	Results []SheetResult
	Summary Summary
}

func NewMultiSheet(file *File, entry *logrus.Entry) *MultiSheet {
	if entry == nil {
		entry = logger.Component("workbook")
	}
	return &MultiSheet{file: file, logger: entry.WithField("file", file.Name)}
}

func (m *MultiSheet) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.logs = append(m.logs, msg)
	m.logger.Debug(msg)
}

// Logs returns the processing log, including each sheet's own messages.
func (m *MultiSheet) Logs() []string {
	return m.logs
}

// Stats totals the row statistics of all processed sheets.
func (m *MultiSheet) Stats() scorecard.Stats {
	var total scorecard.Stats
	for _, r := range m.Results {
		total.Add(r.Output.Stats)
	}
	return total
}

// Process runs the scorecard processor over each sheet. A sheet is skipped
// when it has no target or rule column anywhere, and failed when column
// detection or reading fails; neither stops the remaining sheets.
func (m *MultiSheet) Process(progress scorecard.ProgressFunc) (Summary, error) {
	names := m.file.SheetNames()
	if len(names) == 0 {
		return Summary{}, ErrNoSheets
	}
	m.Summary = Summary{Total: len(names), SheetNames: names}
	m.logf("Found %d sheets: %s", len(names), strings.Join(names, ", "))

	for i, name := range names {
		if progress != nil {
			progress(i * 100 / len(names))
		}
		m.logf("Processing sheet %s", name)

		grid, err := m.file.Grid(name)
		if err != nil {
			m.logf("  Sheet '%s' could not be read: %v", name, err)
			m.Summary.FailedSheets = append(m.Summary.FailedSheets, name)
			continue
		}
		if !HasKPIColumns(grid) {
			m.logf("  Sheet '%s' has no target or scoring rule column, skipped", name)
			m.Summary.SkippedSheets = append(m.Summary.SkippedSheets, name)
			continue
		}

		proc := scorecard.NewProcessor(m.logger.WithField("sheet", name))
		out, err := proc.Process(grid, nil)
		for _, line := range proc.Logs() {
			m.logf("  %s", line)
		}
		if err != nil {
			m.logf("  Sheet '%s' column detection failed: %v", name, err)
			m.Summary.FailedSheets = append(m.Summary.FailedSheets, name)
			continue
		}

		m.Results = append(m.Results, SheetResult{Name: name, Output: out})
		m.Summary.SuccessSheets = append(m.Summary.SuccessSheets, name)
		m.logf("  Sheet '%s' processed: %d rows (success: %d, manual check: %d, error: %d)",
			name, out.Stats.Total, out.Stats.Success, out.Stats.ManualCheck, out.Stats.Error)
	}
	if progress != nil {
		progress(100)
	}

	m.Summary.Success = len(m.Summary.SuccessSheets)
	m.Summary.Skipped = len(m.Summary.SkippedSheets)
	m.Summary.Failed = len(m.Summary.FailedSheets)

	m.logf("Summary: %d sheets", m.Summary.Total)
	m.logf("  processed: %d %s", m.Summary.Success, strings.Join(m.Summary.SuccessSheets, ", "))
	m.logf("  skipped: %d %s", m.Summary.Skipped, strings.Join(m.Summary.SkippedSheets, ", "))
	m.logf("  failed: %d %s", m.Summary.Failed, strings.Join(m.Summary.FailedSheets, ", "))
	return m.Summary, nil
}

// FileResult is the outcome of one workbook in a batch.
type FileResult struct {
	File  *File
	Sheet *MultiSheet
	Err   error
}

// Succeeded reports whether at least one sheet of the file was processed.
func (r FileResult) Succeeded() bool {
	return r.Err == nil && r.Sheet != nil && len(r.Sheet.Results) > 0
}

// Batch processes several workbooks.
type Batch struct {
	logger  *logrus.Entry
	logs    []string
	Results []FileResult
}

func NewBatch(entry *logrus.Entry) *Batch {
	if entry == nil {
		entry = logger.Component("workbook")
	}
	return &Batch{logger: entry}
}

func (b *Batch) Logs() []string {
	return b.logs
}

// Stats totals the row statistics of every processed sheet in the batch.
func (b *Batch) Stats() scorecard.Stats {
	var total scorecard.Stats
	for _, r := range b.Results {
		if r.Sheet != nil {
			total.Add(r.Sheet.Stats())
		}
	}
	return total
}

// Succeeded returns the files with at least one processed sheet.
func (b *Batch) Succeeded() []FileResult {
	var ok []FileResult
	for _, r := range b.Results {
		if r.Succeeded() {
			ok = append(ok, r)
		}
	}
	return ok
}

// Process runs every file through MultiSheet. Files that yield no processed
// sheet are reported in the returned error; the others are kept in Results.
func (b *Batch) Process(files []*File, progress scorecard.ProgressFunc) error {
	var result *multierror.Error
	b.Results = nil
	for i, f := range files {
		b.logs = append(b.logs, fmt.Sprintf("File %d/%d: %s", i+1, len(files), f.Name))

		ms := NewMultiSheet(f, b.logger)
		var fileProgress scorecard.ProgressFunc
		if progress != nil {
			fileProgress = func(pct int) {
				progress((i*100 + pct) / len(files))
			}
		}
		_, err := ms.Process(fileProgress)
		for _, line := range ms.Logs() {
			b.logs = append(b.logs, "  "+line)
		}

		fr := FileResult{File: f, Sheet: ms, Err: err}
		if err == nil && len(ms.Results) == 0 {
			fr.Err = ErrNothingProcessed
		}
		if fr.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", f.Name, fr.Err))
		}
		b.Results = append(b.Results, fr)
	}
	return result.ErrorOrNil()
}
