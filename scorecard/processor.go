package scorecard

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	logger "github.com/tomyedwab/scorecard/log"
)

// Result columns appended to every processed sheet.
const (
	ColBaseline     = "推导底线值"
	ColStandardRule = "规范版计分规则"
	ColStatus       = "解析状态"
	ColDirection    = "指标方向"

	SemiPrefix = "半年度_"
)

// ResultColumns lists the appended columns in output order.
var ResultColumns = []string{ColBaseline, ColStandardRule, ColStatus, ColDirection}

// SemiResultColumns are the semi-annual twins of ResultColumns.
var SemiResultColumns = lo.Map(ResultColumns, func(c string, _ int) string { return SemiPrefix + c })

// ProgressFunc receives progress updates in percent.
type ProgressFunc func(percent int)

// Output is a processed sheet.
type Output struct {
	Table   *Table
	Columns Columns
	Stats   Stats
}

// Processor derives baselines for every row of a sheet. A Processor keeps the
// log of its most recent run.
type Processor struct {
	logger *logrus.Entry
	logs   []string
}

// NewProcessor returns a Processor logging to entry, or to the shared
// logger when entry is nil.
func NewProcessor(entry *logrus.Entry) *Processor {
	if entry == nil {
		entry = logger.Component("scorecard")
	}
	return &Processor{logger: entry}
}

// Logs returns the messages recorded by the last Process call.
func (p *Processor) Logs() []string {
	return p.logs
}

func (p *Processor) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.logs = append(p.logs, msg)
	p.logger.Debug(msg)
}

type rowResult struct {
	baseline, rule, status, direction string
}

func (r rowResult) values() []string {
	return []string{r.baseline, r.rule, r.status, r.direction}
}

func evaluateRow(rawTarget, rule string) (rowResult, error) {
	res, err := Evaluate(rawTarget, rule)
	if err != nil {
		return rowResult{}, err
	}
	return rowResult{
		baseline:  FormatValue(res.Baseline, res.Percent),
		rule:      StandardRule(res.Target, res.Baseline, res.Direction, res.Percent),
		status:    res.Status,
		direction: string(res.Direction),
	}, nil
}

func failedRow(err error) rowResult {
	return rowResult{
		baseline:  "ERROR",
		rule:      "解析失败: " + err.Error(),
		status:    ErrorStatus(err),
		direction: string(UnknownDirection),
	}
}

// Process identifies the columns of grid and appends the derived baseline,
// standard rule, status and direction to every row. A row that cannot be
// evaluated is marked as an error and does not stop the sheet. When both
// semi-annual columns exist the same columns are added for them with a
// 半年度_ prefix.
func (p *Processor) Process(grid [][]string, progress ProgressFunc) (*Output, error) {
	p.logs = nil
	report := func(pct int) {
		if progress != nil {
			progress(pct)
		}
	}

	p.logf("Read sheet: %d rows", len(grid))
	report(20)

	table, cols, notes, err := identifyColumns(grid)
	for _, note := range notes {
		p.logf("%s", note)
	}
	if err != nil {
		return nil, err
	}
	report(40)

	targetIdx, ruleIdx := table.Column(cols.Target), table.Column(cols.Rule)
	results := make([][]string, len(ResultColumns))
	total := len(table.Rows)
	for i := range table.Rows {
		res, err := evaluateRow(table.Value(i, targetIdx), table.Value(i, ruleIdx))
		if err != nil {
			p.logf("Warning: row %d failed: %v", table.SheetRow(i), err)
			res = failedRow(err)
		}
		for c, v := range res.values() {
			results[c] = append(results[c], v)
		}
		report(40 + (i+1)*50/total)
	}
	for c, name := range ResultColumns {
		table.AddColumn(name, results[c])
	}

	if cols.HasSemiAnnual() {
		p.processSemiAnnual(table, cols)
	}

	stats := ComputeStats(table)
	p.logf("Done: %d rows", stats.Total)
	p.logStatusCounts(table.ColumnValues(ColStatus))
	p.logf("Rows needing manual check: %d", stats.ManualCheck)
	report(100)

	return &Output{Table: table, Columns: cols, Stats: stats}, nil
}

func (p *Processor) processSemiAnnual(table *Table, cols Columns) {
	p.logf("Processing semi-annual targets")
	targetIdx, ruleIdx := table.Column(cols.SemiTarget), table.Column(cols.SemiRule)
	results := make([][]string, len(SemiResultColumns))
	for i := range table.Rows {
		raw := table.Value(i, targetIdx)
		var res rowResult
		if strings.TrimSpace(raw) == "" {
			res = rowResult{status: StatusNoSemiData}
		} else {
			var err error
			if res, err = evaluateRow(raw, table.Value(i, ruleIdx)); err != nil {
				p.logf("Warning: row %d semi-annual failed: %v", table.SheetRow(i), err)
				res = failedRow(err)
			}
		}
		for c, v := range res.values() {
			results[c] = append(results[c], v)
		}
	}
	for c, name := range SemiResultColumns {
		table.AddColumn(name, results[c])
	}
	p.logf("Semi-annual processing done")
	p.logStatusCounts(table.ColumnValues(SemiPrefix + ColStatus))
}

func (p *Processor) logStatusCounts(statuses []string) {
	counts := lo.CountValues(statuses)
	for _, status := range lo.Uniq(statuses) {
		p.logf("  %s: %d rows", status, counts[status])
	}
}
