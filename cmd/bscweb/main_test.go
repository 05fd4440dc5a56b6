package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tomyedwab/scorecard/workbook"
)

func writeKPIWorkbook(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	xl := excelize.NewFile()
	defer xl.Close()
	rows := [][]any{
		{"指标名称", "全年目标值", "计分规则"},
		{"产量", 1000, "每少10个扣5分"},
		{"满意度", 90, "由领导评定"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, xl.SetSheetRow("Sheet1", cell, &row))
	}
	buf := &bytes.Buffer{}
	require.NoError(t, xl.Write(buf))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func TestProcessCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeKPIWorkbook(t, fs, "/in/kpi.xlsx")
	out := &bytes.Buffer{}

	_, err := newApp(fs, out).Parse([]string{"process", "/in/kpi.xlsx", "--csv", "/in/kpi.csv"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Results saved to: /in/processed_scorecard.xlsx")
	assert.Contains(t, out.String(), "Done: 2 rows, 1 parsed, 1 need manual check, 0 errors")

	data, err := afero.ReadFile(fs, "/in/processed_scorecard.xlsx")
	require.NoError(t, err)
	f, err := workbook.Open("processed_scorecard.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Sheet1"}, f.SheetNames())
	grid, err := f.Grid("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, "920", grid[1][3])

	csv, err := afero.ReadFile(fs, "/in/kpi.csv")
	require.NoError(t, err)
	assert.Contains(t, string(csv), "人工校验")
}

func TestProcessCommandBatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeKPIWorkbook(t, fs, "/in/a.xlsx")
	writeKPIWorkbook(t, fs, "/in/b.xlsx")
	out := &bytes.Buffer{}

	_, err := newApp(fs, out).Parse([]string{"process", "/in/a.xlsx", "/in/b.xlsx", "-o", "/out/all.xlsx", "--csv", "/out/all.csv"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Skipping CSV: 2 sheets were processed")

	data, err := afero.ReadFile(fs, "/out/all.xlsx")
	require.NoError(t, err)
	f, err := workbook.Open("all.xlsx", bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"a_Sheet1", "b_Sheet1"}, f.SheetNames())
}

func TestProcessCommandErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := newApp(fs, &bytes.Buffer{}).Parse([]string{"process"})
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = newApp(fs, &bytes.Buffer{}).Parse([]string{"process", "/missing.xlsx"})
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/old.xls", []byte("x"), 0644))
	_, err = newApp(fs, &bytes.Buffer{}).Parse([]string{"process", "/old.xls"})
	assert.ErrorIs(t, err, workbook.ErrUnsupportedFormat)
}

func TestStatusCommand(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/status", r.URL.Path)
		w.Write([]byte(`{"status":"ok","version":"v9","title":"看板"}`))
	}))
	defer healthy.Close()

	out := &bytes.Buffer{}
	_, err := newApp(afero.NewMemMapFs(), out).Parse([]string{"status", "--url", healthy.URL})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "is ok (看板 v9)")

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	_, err = newApp(afero.NewMemMapFs(), out).Parse([]string{"status", "--url", broken.URL})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	_, err := newApp(afero.NewMemMapFs(), out).Parse([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "bscweb dev\n", out.String())
}

func TestRunLoadConfigAppliesFlags(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/bsc_web.yaml", []byte("server:\n  port: 9000\n"), 0644))

	appFile, port, address := "/srv/bsc_web.yaml", 9100, "0.0.0.0"
	c := &runCmd{fs: fs, appFile: &appFile, port: &port, address: &address, portSet: true}
	conf, err := c.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9100, conf.Server.Port)
	assert.Equal(t, "localhost", conf.Server.Address)
	assert.Equal(t, "/srv/bsc_jobs.db", conf.Storage.Path)

	port = 0
	_, err = c.loadConfig()
	assert.Error(t, err)
}
