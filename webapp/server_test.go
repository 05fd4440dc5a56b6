package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tomyedwab/scorecard/config"
	"github.com/tomyedwab/scorecard/jobs"
	logger "github.com/tomyedwab/scorecard/log"
	"github.com/tomyedwab/scorecard/tokens"
)

func kpiWorkbook(t *testing.T) []byte {
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
	return buf.Bytes()
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func setupTestServer(t *testing.T, modify func(*config.Config)) (*Server, *jobs.Runner) {
	t.Helper()
	conf := config.Default()
	if modify != nil {
		modify(&conf)
	}

	store, err := jobs.OpenStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cache, err := jobs.NewResultCache(conf.Storage.CacheSize)
	require.NoError(t, err)
	runner := jobs.NewRunner(store, cache, logger.Discard())

	srv, err := New(&conf, runner, tokens.NewIssuer([]byte("test-secret"), time.Minute), "v1.2.3")
	require.NoError(t, err)
	srv.log = logger.Discard()
	return srv, runner
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusAndIndex(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	h := srv.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "平衡计分卡 KPI 数据处理器")
	assert.Contains(t, rec.Body.String(), "每少X个扣Y分")
	assert.Contains(t, rec.Body.String(), "欢迎使用")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), jobs.ErrJobNotFound.Error())
}

func TestJobLifecycle(t *testing.T) {
	srv, runner := setupTestServer(t, nil)
	srv.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }
	h := srv.Handler()

	body, contentType := multipartBody(t, map[string][]byte{"考核表.xlsx": kpiWorkbook(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, h, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[jobs.Job](t, rec)
	require.NotEmpty(t, job.ID)
	runner.Wait()

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	job = decode[jobs.Job](t, rec)
	assert.Equal(t, jobs.StatusDone, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Stats)
	assert.Equal(t, 2, job.Stats.Total)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	list := decode[[]jobs.Job](t, rec)
	require.Len(t, list, 1)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/logs?after=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[logsResponse](t, rec)
	require.NotEmpty(t, logs.Entries)
	assert.Equal(t, logs.Entries[len(logs.Entries)-1].ID, logs.LatestID)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/logs?tail=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	tail := decode[logsResponse](t, rec)
	require.Len(t, tail.Entries, 2)
	assert.Equal(t, logs.Entries[len(logs.Entries)-1], tail.Entries[1])
	assert.Equal(t, logs.LatestID, tail.LatestID)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/logs?after=999", nil))
	caughtUp := decode[logsResponse](t, rec)
	assert.Empty(t, caughtUp.Entries)
	assert.Equal(t, logs.LatestID, caughtUp.LatestID)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/logs?tail=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/logs?after=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/preview", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[previewResponse](t, rec)
	require.Len(t, preview.Sheets, 1)
	require.Len(t, preview.Sheets[0].Rows, 2)
	assert.Equal(t, "", preview.Sheets[0].Rows[0].Highlight)
	assert.Equal(t, "manual", preview.Sheets[0].Rows[1].Highlight)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/downloads?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/downloads?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	link := decode[downloadResponse](t, rec)
	require.True(t, strings.HasPrefix(link.URL, "/download/"))

	rec = do(t, h, httptest.NewRequest(http.MethodGet, link.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="bsc_result_20260304_050607.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeff"))
	assert.Contains(t, rec.Body.String(), "人工校验")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/download/not-a-token", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "考核表.xlsx")
}

func TestSubmitRejectsBadUploads(t *testing.T) {
	srv, _ := setupTestServer(t, func(c *config.Config) { c.Upload.MaxBytes = 1 << 10 })
	h := srv.Handler()

	body, contentType := multipartBody(t, map[string][]byte{"notes.txt": []byte("hello")})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes.txt")

	body, contentType = multipartBody(t, map[string][]byte{})
	req = httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec = do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), jobs.ErrNoFiles.Error())

	body, contentType = multipartBody(t, map[string][]byte{"big.xlsx": bytes.Repeat([]byte("x"), 4<<10)})
	req = httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec = do(t, h, req)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, rec.Code)
}

func TestPreviewAndDownloadOfFailedJob(t *testing.T) {
	srv, runner := setupTestServer(t, nil)
	h := srv.Handler()

	job, err := runner.Submit([]jobs.Upload{{Name: "old.xls", Data: []byte("x")}})
	require.NoError(t, err)
	runner.Wait()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/preview", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/downloads", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/jobs/missing/preview", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t, func(c *config.Config) {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	})
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := do(t, h, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = do(t, h, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthChecker(t *testing.T) {
	srv, _ := setupTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	checker := NewHealthChecker(time.Second)
	status, err := checker.Check(context.Background(), ts.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", status.Version)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer broken.Close()
	_, err = checker.Check(context.Background(), broken.URL)
	assert.Error(t, err)
}

func TestHighlight(t *testing.T) {
	assert.Equal(t, "", highlight([]string{"成功", "无半年度数据"}))
	assert.Equal(t, "manual", highlight([]string{"成功", "人工校验"}))
	assert.Equal(t, "error", highlight([]string{"人工校验", "ERROR: bad"}))
}
