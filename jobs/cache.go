package jobs

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tomyedwab/scorecard/scorecard"
	"github.com/tomyedwab/scorecard/workbook"
)

// SheetPreview is the display view of one processed sheet.
type SheetPreview struct {
	Sheet   string     `json:"sheet"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Preview holds the display tables of a finished job.
type Preview struct {
	Sheets []SheetPreview `json:"sheets"`
}

func newSheetPreview(name string, table *scorecard.Table) SheetPreview {
	table = workbook.DisplayColumns(table)
	return SheetPreview{Sheet: name, Columns: table.Columns, Rows: table.Rows}
}

// previewFromWorkbook rebuilds a preview from a stored xlsx output.
func previewFromWorkbook(content []byte) (*Preview, error) {
	f, err := workbook.Open("result.xlsx", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	preview := &Preview{}
	for _, name := range f.SheetNames() {
		grid, err := f.Grid(name)
		if err != nil {
			return nil, err
		}
		if len(grid) == 0 {
			continue
		}
		preview.Sheets = append(preview.Sheets, newSheetPreview(name, scorecard.NewTable(grid, 0)))
	}
	return preview, nil
}

// ResultCache keeps the previews of recently finished jobs in memory.
type ResultCache struct {
	cache *lru.Cache[string, *Preview]
}

func NewResultCache(size int) (*ResultCache, error) {
	cache, err := lru.New[string, *Preview](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &ResultCache{cache: cache}, nil
}

func (c *ResultCache) Add(jobID string, preview *Preview) {
	c.cache.Add(jobID, preview)
}

func (c *ResultCache) Get(jobID string) (*Preview, bool) {
	return c.cache.Get(jobID)
}

func (c *ResultCache) Remove(jobID string) {
	c.cache.Remove(jobID)
}

func (c *ResultCache) Len() int {
	return c.cache.Len()
}
