package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	logger "github.com/tomyedwab/scorecard/log"
	"github.com/tomyedwab/scorecard/workbook"
)

const logBufferSize = 2000

var (
	ErrNoFiles      = errors.New("no files uploaded")
	ErrShuttingDown = errors.New("runner is shutting down")
	ErrNotFinished  = errors.New("job has not finished")
	ErrNoPreview    = errors.New("job has no preview")
)

// Upload is one uploaded workbook.
type Upload struct {
	Name string
	Data []byte
}

// Runner processes submitted jobs in background goroutines.
type Runner struct {
	store  *Store
	cache  *ResultCache
	logger *logrus.Entry

	mu       sync.Mutex
	logs     map[string]*LogBuffer
	wg       sync.WaitGroup
	closing  bool
	shutdown chan struct{}
}

func NewRunner(store *Store, cache *ResultCache, entry *logrus.Entry) *Runner {
	if entry == nil {
		entry = logger.Component("jobs")
	}
	return &Runner{
		store:    store,
		cache:    cache,
		logger:   entry,
		logs:     map[string]*LogBuffer{},
		shutdown: make(chan struct{}),
	}
}

func (r *Runner) Store() *Store {
	return r.store
}

// Submit records a job for uploads and starts processing it.
func (r *Runner) Submit(uploads []Upload) (*Job, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	names := make([]string, len(uploads))
	for i, u := range uploads {
		names[i] = u.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil, ErrShuttingDown
	}

	job, err := r.store.Create(names)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	buf := NewLogBuffer(logBufferSize)
	jobLogger := r.logger.WithField("job", job.ID)
	buf.AddCallback(func(e LogEntry) {
		jobLogger.Debug(e.Message)
	})
	r.logs[job.ID] = buf

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job.ID, uploads, buf)
	}()
	jobLogger.WithField("files", len(uploads)).Info("Job submitted")
	return job, nil
}

// Logs returns the log buffer of a job started by this runner.
func (r *Runner) Logs(id string) *LogBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[id]
}

// Prune deletes jobs created before cutoff from the store and drops their
// log buffers and cached previews.
func (r *Runner) Prune(cutoff time.Time) (int, error) {
	ids, err := r.store.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	for _, id := range ids {
		delete(r.logs, id)
	}
	r.mu.Unlock()
	if r.cache != nil {
		for _, id := range ids {
			r.cache.Remove(id)
		}
	}
	return len(ids), nil
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones or ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closing {
		r.closing = true
		close(r.shutdown)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) fail(id string, buf *LogBuffer, err error) {
	buf.AddEntry("error", "Processing failed: "+err.Error())
	if serr := r.store.Fail(id, err.Error()); serr != nil {
		r.logger.WithError(serr).WithField("job", id).Error("Failed to record job failure")
	}
}

func (r *Runner) run(id string, uploads []Upload, buf *LogBuffer) {
	lastProgress := -1
	progress := func(pct int) {
		if pct == lastProgress {
			return
		}
		lastProgress = pct
		if err := r.store.UpdateProgress(id, pct); err != nil {
			r.logger.WithError(err).WithField("job", id).Warn("Failed to record progress")
		}
	}
	progress(0)

	var files []*workbook.File
	for _, u := range uploads {
		f, err := workbook.Open(u.Name, bytes.NewReader(u.Data))
		if err != nil {
			buf.AddEntry("error", err.Error())
			continue
		}
		defer f.Close()
		files = append(files, f)
	}
	if len(files) == 0 {
		r.fail(id, buf, workbook.ErrNothingProcessed)
		return
	}

	select {
	case <-r.shutdown:
		r.fail(id, buf, ErrShuttingDown)
		return
	default:
	}

	batch := workbook.NewBatch(r.logger.WithField("job", id))
	err := batch.Process(files, func(pct int) { progress(pct * 90 / 100) })
	buf.AddLines(batch.Logs())
	succeeded := batch.Succeeded()
	if len(succeeded) == 0 {
		if err == nil {
			err = workbook.ErrNothingProcessed
		}
		r.fail(id, buf, err)
		return
	}
	if err != nil {
		buf.AddEntry("warn", err.Error())
	}

	sheets := workbook.Layout(succeeded, len(uploads))
	xlsx := &bytes.Buffer{}
	if err := workbook.WriteSheets(xlsx, sheets); err != nil {
		r.fail(id, buf, err)
		return
	}
	preview := &Preview{}
	for _, sheet := range sheets {
		preview.Sheets = append(preview.Sheets, newSheetPreview(sheet.Name, sheet.Table))
	}
	var csvOut *bytes.Buffer
	if len(sheets) == 1 {
		csvOut = &bytes.Buffer{}
		if err := workbook.WriteCSV(csvOut, sheets[0].Table); err != nil {
			r.fail(id, buf, err)
			return
		}
	}
	progress(95)

	if err := r.store.PutOutput(id, FormatXLSX, xlsx.Bytes()); err != nil {
		r.fail(id, buf, err)
		return
	}
	if csvOut != nil {
		if err := r.store.PutOutput(id, FormatCSV, csvOut.Bytes()); err != nil {
			r.fail(id, buf, err)
			return
		}
	}

	summary := map[string]workbook.Summary{}
	for _, fr := range batch.Results {
		if fr.Sheet != nil {
			summary[fr.File.Name] = fr.Sheet.Summary
		}
	}
	stats := batch.Stats()
	if err := r.store.Complete(id, stats, summary); err != nil {
		r.fail(id, buf, err)
		return
	}
	if r.cache != nil {
		r.cache.Add(id, preview)
	}
	buf.AddEntry("info", fmt.Sprintf("Done: %d rows, %d parsed, %d need manual check, %d errors",
		stats.Total, stats.Success, stats.ManualCheck, stats.Error))
}

// Preview returns the display tables of a finished job, rebuilding them from
// the stored workbook when they are no longer cached.
func (r *Runner) Preview(id string) (*Preview, error) {
	if r.cache != nil {
		if p, ok := r.cache.Get(id); ok {
			return p, nil
		}
	}
	job, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !job.Finished() {
		return nil, ErrNotFinished
	}
	if job.Status == StatusFailed {
		return nil, ErrNoPreview
	}
	content, err := r.store.GetOutput(id, FormatXLSX)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, ErrNoPreview
	}
	preview, err := previewFromWorkbook(content)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(id, preview)
	}
	return preview, nil
}
