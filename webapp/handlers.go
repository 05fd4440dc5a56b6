package webapp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/tomyedwab/scorecard/jobs"
	"github.com/tomyedwab/scorecard/scorecard"
	"github.com/tomyedwab/scorecard/tokens"
)

var (
	ErrUnsupportedUpload = errors.New("only .xlsx, .xlsm and .xls files are accepted")
	ErrUnknownFormat     = errors.New("format must be xlsx or csv")
	ErrOutputMissing     = errors.New("job has no output in this format")
)

var acceptedExtensions = []string{".xlsx", ".xlsm", ".xls"}

var contentTypes = map[string]string{
	jobs.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	jobs.FormatCSV:  "text/csv; charset=utf-8",
}

type indexData struct {
	Title        string
	Version      string
	Features     []string
	Steps        []string
	RuleKinds    []string
	Requirements []string
	Accept       []string
	MaxUploadMB  int64
	Recent       []jobs.Job
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	recent, err := s.runner.Store().List(recentJobs)
	if err != nil {
		s.log.WithError(err).Warn("Failed to list recent jobs")
	}
	data := indexData{
		Title:   s.conf.Title,
		Version: s.version,
		Features: []string{
			"自动识别目标值列和计分规则列",
			"数据清洗（百分比格式统一）",
			"底线值智能推导",
			"指标方向判定",
			"规范化计分规则生成",
			"多工作表与批量文件处理",
		},
		Steps: []string{
			"上传包含KPI数据的Excel文件",
			"等待自动处理完成",
			"预览处理结果",
			"下载处理后的文件",
		},
		RuleKinds: []string{
			"📉 每低X%扣Y分",
			"🔢 每少X个扣Y分",
			"📊 实际/目标×100",
			"⚠️ 显式阈值声明",
			"🚨 每发生一起扣Y分",
		},
		Requirements: []string{
			"Excel文件需包含 目标值列（列名包含\"目标值\"关键字）",
			"Excel文件需包含 计分规则列（列名包含\"计分规则\"关键字）",
			"可选：半年度目标值列与半年度计分规则列",
		},
		Accept:      acceptedExtensions,
		MaxUploadMB: s.conf.Upload.MaxBytes >> 20,
		Recent:      recent,
	}

	buf := &bytes.Buffer{}
	if err := s.page.Execute(buf, data); err != nil {
		s.log.WithError(err).Error("Failed to render index page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	HandleAPIResponse(w, r, s.log, StatusResponse{
		Status:  "ok",
		Version: s.version,
		Title:   s.conf.Title,
	}, nil, http.StatusOK)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.runner.Store().List(recentJobs)
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	HandleAPIResponse(w, r, s.log, list, nil, http.StatusOK)
}

func acceptedUpload(name string) bool {
	return lo.Contains(acceptedExtensions, strings.ToLower(filepath.Ext(name)))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.conf.Upload.MaxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAPIResponse(w, r, s.log, nil, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		HandleAPIResponse(w, r, s.log, nil, fmt.Errorf("invalid upload: %w", err), http.StatusBadRequest)
		return
	}

	var uploads []jobs.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		if !acceptedUpload(fh.Filename) {
			HandleAPIResponse(w, r, s.log, nil, fmt.Errorf("%s: %w", fh.Filename, ErrUnsupportedUpload), http.StatusBadRequest)
			return
		}
		f, err := fh.Open()
		if err != nil {
			HandleAPIResponse(w, r, s.log, nil, err, http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			HandleAPIResponse(w, r, s.log, nil, err, http.StatusBadRequest)
			return
		}
		uploads = append(uploads, jobs.Upload{Name: fh.Filename, Data: data})
	}

	job, err := s.runner.Submit(uploads)
	switch {
	case errors.Is(err, jobs.ErrNoFiles):
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusBadRequest)
	case errors.Is(err, jobs.ErrShuttingDown):
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusServiceUnavailable)
	case err != nil:
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
	default:
		HandleAPIResponse(w, r, s.log, job, nil, http.StatusAccepted)
	}
}

// lookupJob writes a 404 and returns nil when the job does not exist.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) *jobs.Job {
	job, err := s.runner.Store().Get(mux.Vars(r)["id"])
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
		return nil
	}
	if job == nil {
		HandleAPIResponse(w, r, s.log, nil, jobs.ErrJobNotFound, http.StatusNotFound)
		return nil
	}
	return job
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if job := s.lookupJob(w, r); job != nil {
		HandleAPIResponse(w, r, s.log, job, nil, http.StatusOK)
	}
}

type logsResponse struct {
	Entries  []jobs.LogEntry `json:"entries"`
	LatestID int64           `json:"latest_id"`
}

func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter %q", name, v)
	}
	return n, nil
}

// handleLogs returns the entries after the given ID, or the last tail
// entries when tail is set.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after")
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusBadRequest)
		return
	}
	tail, err := queryInt(r, "tail")
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusBadRequest)
		return
	}
	job := s.lookupJob(w, r)
	if job == nil {
		return
	}

	// Jobs from an earlier run of the server have no buffered logs.
	resp := logsResponse{Entries: []jobs.LogEntry{}, LatestID: after}
	if buf := s.runner.Logs(job.ID); buf != nil {
		if tail > 0 {
			resp.Entries = buf.GetLatestEntries(int(tail))
		} else {
			resp.Entries = buf.GetEntriesFromID(after)
		}
		resp.LatestID = buf.GetLatestID()
	}
	HandleAPIResponse(w, r, s.log, resp, nil, http.StatusOK)
}

type previewRow struct {
	Values    []string `json:"values"`
	Highlight string   `json:"highlight"`
}

type previewSheet struct {
	Sheet   string       `json:"sheet"`
	Columns []string     `json:"columns"`
	Rows    []previewRow `json:"rows"`
}

type previewResponse struct {
	Sheets []previewSheet `json:"sheets"`
}

// highlight marks rows that failed to parse or need a manual check in either
// the full-year or the semi-annual status column.
func highlight(statuses []string) string {
	switch {
	case lo.SomeBy(statuses, scorecard.IsErrorStatus):
		return "error"
	case lo.Contains(statuses, scorecard.StatusManualCheck):
		return "manual"
	default:
		return ""
	}
}

func newPreviewSheet(sp jobs.SheetPreview) previewSheet {
	statusCols := lo.FilterMap(sp.Columns, func(c string, i int) (int, bool) {
		return i, c == scorecard.ColStatus || c == scorecard.SemiPrefix+scorecard.ColStatus
	})
	rows := lo.Map(sp.Rows, func(row []string, _ int) previewRow {
		statuses := lo.FilterMap(statusCols, func(i int, _ int) (string, bool) {
			if i >= len(row) {
				return "", false
			}
			return row[i], true
		})
		return previewRow{Values: row, Highlight: highlight(statuses)}
	})
	return previewSheet{Sheet: sp.Sheet, Columns: sp.Columns, Rows: rows}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.runner.Preview(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusNotFound)
		return
	case errors.Is(err, jobs.ErrNotFinished), errors.Is(err, jobs.ErrNoPreview):
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusConflict)
		return
	case err != nil:
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
		return
	}
	HandleAPIResponse(w, r, s.log, previewResponse{
		Sheets: lo.Map(preview.Sheets, func(sp jobs.SheetPreview, _ int) previewSheet {
			return newPreviewSheet(sp)
		}),
	}, nil, http.StatusOK)
}

type downloadResponse struct {
	URL       string `json:"url"`
	Format    string `json:"format"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *Server) handleCreateDownload(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = jobs.FormatXLSX
	}
	if _, ok := contentTypes[format]; !ok {
		HandleAPIResponse(w, r, s.log, nil, ErrUnknownFormat, http.StatusBadRequest)
		return
	}
	job := s.lookupJob(w, r)
	if job == nil {
		return
	}
	if job.Status != jobs.StatusDone {
		HandleAPIResponse(w, r, s.log, nil, jobs.ErrNotFinished, http.StatusConflict)
		return
	}
	content, err := s.runner.Store().GetOutput(job.ID, format)
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
		return
	}
	if content == nil {
		HandleAPIResponse(w, r, s.log, nil, ErrOutputMissing, http.StatusNotFound)
		return
	}

	token, expires, err := s.issuer.Issue(job.ID, format)
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
		return
	}
	HandleAPIResponse(w, r, s.log, downloadResponse{
		URL:       "/download/" + token,
		Format:    format,
		ExpiresAt: expires.UnixMilli(),
	}, nil, http.StatusOK)
}

// resultFileName names a download after the time it was requested.
func (s *Server) resultFileName(format string) string {
	return fmt.Sprintf("bsc_result_%s.%s", s.now().Format("20060102_150405"), format)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	claims, err := s.issuer.Verify(mux.Vars(r)["token"])
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, tokens.ErrInvalidToken, http.StatusForbidden)
		return
	}
	contentType, ok := contentTypes[claims.Format]
	if !ok {
		HandleAPIResponse(w, r, s.log, nil, ErrUnknownFormat, http.StatusBadRequest)
		return
	}
	content, err := s.runner.Store().GetOutput(claims.JobID, claims.Format)
	if err != nil {
		HandleAPIResponse(w, r, s.log, nil, err, http.StatusInternalServerError)
		return
	}
	if content == nil {
		HandleAPIResponse(w, r, s.log, nil, ErrOutputMissing, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.resultFileName(claims.Format)))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.Write(content)
}
