package jobs

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	logger "github.com/tomyedwab/scorecard/log"
)

func buildUpload(t *testing.T, name string, sheets ...string) Upload {
	t.Helper()
	rows := [][]any{
		{"指标名称", "全年目标值", "计分规则"},
		{"产量", 1000, "每少10个扣5分"},
		{"满意度", 90, "由领导评定"},
	}
	xl := excelize.NewFile()
	defer xl.Close()
	for i, sheet := range sheets {
		if i == 0 {
			xl.SetSheetName("Sheet1", sheet)
		} else {
			xl.NewSheet(sheet)
		}
		for r, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+1)
			row := row
			xl.SetSheetRow(sheet, cell, &row)
		}
	}
	buf := &bytes.Buffer{}
	if err := xl.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return Upload{Name: name, Data: buf.Bytes()}
}

func setupTestRunner(t *testing.T) *Runner {
	cache, err := NewResultCache(4)
	if err != nil {
		t.Fatalf("NewResultCache returned error: %v", err)
	}
	return NewRunner(setupTestStore(t), cache, logger.Discard())
}

func TestRunnerProcessesSingleSheet(t *testing.T) {
	runner := setupTestRunner(t)

	job, err := runner.Submit([]Upload{buildUpload(t, "kpi.xlsx", "KPI")})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	runner.Wait()

	got, err := runner.Store().Get(job.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("job status %s (%s)", got.Status, got.Error)
	}
	if got.Stats.Total != 2 || got.Stats.Success != 1 || got.Stats.ManualCheck != 1 {
		t.Errorf("unexpected stats %+v", got.Stats)
	}

	for _, format := range []string{FormatXLSX, FormatCSV} {
		content, err := runner.Store().GetOutput(job.ID, format)
		if err != nil || len(content) == 0 {
			t.Errorf("missing %s output: %v", format, err)
		}
	}

	preview, err := runner.Preview(job.ID)
	if err != nil {
		t.Fatalf("Preview returned error: %v", err)
	}
	if len(preview.Sheets) != 1 || len(preview.Sheets[0].Rows) != 2 {
		t.Errorf("unexpected preview %+v", preview)
	}

	logs := runner.Logs(job.ID).GetEntriesFromID(0)
	var text []string
	for _, e := range logs {
		text = append(text, e.Message)
	}
	if !strings.Contains(strings.Join(text, "\n"), "Done: 2 rows") {
		t.Errorf("unexpected logs:\n%s", strings.Join(text, "\n"))
	}
}

func TestRunnerPreviewFallsBackToStoredWorkbook(t *testing.T) {
	runner := setupTestRunner(t)
	job, _ := runner.Submit([]Upload{
		buildUpload(t, "a.xlsx", "KPI", "Second"),
		buildUpload(t, "b.xlsx", "KPI"),
	})
	runner.Wait()

	runner.cache.Remove(job.ID)
	preview, err := runner.Preview(job.ID)
	if err != nil {
		t.Fatalf("Preview returned error: %v", err)
	}
	var names []string
	for _, s := range preview.Sheets {
		names = append(names, s.Sheet)
	}
	if strings.Join(names, ",") != "a_KPI,a_Second,b_KPI" {
		t.Errorf("unexpected sheets %v", names)
	}

	if csv, _ := runner.Store().GetOutput(job.ID, FormatCSV); csv != nil {
		t.Error("csv output is only produced for a single sheet")
	}
	if runner.cache.Len() != 1 {
		t.Error("rebuilt preview should be cached")
	}
}

func TestRunnerFailsUnreadableUpload(t *testing.T) {
	runner := setupTestRunner(t)
	job, err := runner.Submit([]Upload{{Name: "old.xls", Data: []byte("x")}})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	runner.Wait()

	got, _ := runner.Store().Get(job.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed job, got %s", got.Status)
	}
	if _, err := runner.Preview(job.ID); err != ErrNoPreview {
		t.Errorf("expected ErrNoPreview, got %v", err)
	}
	if _, err := runner.Preview("missing"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRunnerRejectsAfterShutdown(t *testing.T) {
	runner := setupTestRunner(t)
	if _, err := runner.Submit(nil); err != ErrNoFiles {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if _, err := runner.Submit([]Upload{buildUpload(t, "kpi.xlsx", "KPI")}); err != ErrShuttingDown {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestRunnerPruneDropsLogsAndPreviews(t *testing.T) {
	runner := setupTestRunner(t)
	job, err := runner.Submit([]Upload{buildUpload(t, "kpi.xlsx", "KPI")})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	runner.Wait()
	if runner.Logs(job.ID) == nil || runner.cache.Len() != 1 {
		t.Fatal("finished job should have logs and a cached preview")
	}

	n, err := runner.Prune(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if n != 0 || runner.Logs(job.ID) == nil {
		t.Errorf("recent job should be kept, pruned %d", n)
	}

	n, err = runner.Prune(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned job, got %d", n)
	}
	if runner.Logs(job.ID) != nil {
		t.Error("log buffer of pruned job still held")
	}
	if runner.cache.Len() != 0 {
		t.Error("preview of pruned job still cached")
	}
	if got, _ := runner.Store().Get(job.ID); got != nil {
		t.Error("pruned job still stored")
	}
}

func TestLogBuffer(t *testing.T) {
	lb := NewLogBuffer(3)
	var seen []string
	lb.AddCallback(func(e LogEntry) { seen = append(seen, e.Message) })

	for _, msg := range []string{"a", "b", "c", "d"} {
		lb.AddEntry("info", msg)
	}

	if lb.GetLatestID() != 4 {
		t.Errorf("GetLatestID = %d, want 4", lb.GetLatestID())
	}
	entries := lb.GetEntriesFromID(0)
	if len(entries) != 3 || entries[0].Message != "b" {
		t.Errorf("oldest entry should have been dropped: %+v", entries)
	}
	if got := lb.GetEntriesFromID(3); len(got) != 1 || got[0].Message != "d" {
		t.Errorf("GetEntriesFromID(3) = %+v", got)
	}
	if got := lb.GetLatestEntries(2); len(got) != 2 || got[1].Message != "d" {
		t.Errorf("GetLatestEntries(2) = %+v", got)
	}
	if len(lb.GetLatestEntries(0)) != 0 {
		t.Error("GetLatestEntries(0) should be empty")
	}
	if strings.Join(seen, "") != "abcd" {
		t.Errorf("callbacks saw %v", seen)
	}
}
