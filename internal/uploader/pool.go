// Package uploader pushes staged files into durable storage with a bounded
// worker pool. Uploads are idempotent: a worker probes for the object first
// and skips work that already landed on a previous run.
package uploader

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flowvault/pkg/errors"
	"flowvault/pkg/logger"
	"flowvault/pkg/models"
	"flowvault/pkg/retry"
	"flowvault/pkg/storage"
)

// UploadResult is the outcome of one staged file.
type UploadResult struct {
	File     models.StagedFile
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
	Size     int64
}

// BatchResult summarizes one batch upload.
type BatchResult struct {
	Results []UploadResult
}

// Failed returns the results that did not succeed.
func (b *BatchResult) Failed() []UploadResult {
	var failed []UploadResult
	for _, r := range b.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// Succeeded returns how many files were durably stored or already present.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Skipped returns how many files already existed in storage.
func (b *BatchResult) Skipped() int {
	n := 0
	for _, r := range b.Results {
		if r.Skipped {
			n++
		}
	}
	return n
}

// FatalError returns the first storage-fatal error in the batch, if any.
func (b *BatchResult) FatalError() error {
	for _, r := range b.Results {
		if r.Error != nil && errors.IsFatal(r.Error) {
			return r.Error
		}
	}
	return nil
}

// Pool uploads staged files with bounded concurrency.
type Pool struct {
	numWorkers  int
	store       storage.ObjectStore
	maxAttempts int
	logger      logger.Logger
}

// NewPool creates an upload pool. numWorkers bounds in-flight uploads.
func NewPool(numWorkers int, store storage.ObjectStore, maxAttempts int, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers:  numWorkers,
		store:       store,
		maxAttempts: maxAttempts,
		logger:      log,
	}
}

// UploadBatch uploads a flow's staged files and blocks until every file has
// been attempted or ctx is cancelled. Every input file appears in the
// results, cancelled ones carrying the context error. Failures are
// collected, not fatal to the batch; the caller decides what a partial
// batch means.
func (p *Pool) UploadBatch(ctx context.Context, files []models.StagedFile, scrapedAt time.Time) *BatchResult {
	jobs := make(chan models.StagedFile)
	results := make(chan UploadResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for file := range jobs {
				results <- p.uploadOne(ctx, id, file, scrapedAt)
			}
		}(i)
	}

	submitted := 0
feed:
	for _, file := range files {
		select {
		case jobs <- file:
			submitted++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	batch := &BatchResult{Results: make([]UploadResult, 0, len(files))}
	for r := range results {
		batch.Results = append(batch.Results, r)
	}
	// Files never handed to a worker still get a result; a batch with
	// missing entries would read as fully uploaded.
	for _, file := range files[submitted:] {
		batch.Results = append(batch.Results, UploadResult{File: file, Error: ctx.Err()})
	}
	return batch
}

func (p *Pool) uploadOne(ctx context.Context, workerID int, file models.StagedFile, scrapedAt time.Time) UploadResult {
	start := time.Now()
	result := UploadResult{File: file}

	if err := ctx.Err(); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	exists, err := p.store.Exists(ctx, file.Key)
	if err != nil && errors.IsFatal(err) {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	// A failed probe falls through to the upload: overwriting an existing
	// object is harmless, skipping a missing one is not.
	if err == nil && exists {
		p.logger.DebugWithFields("object already uploaded", map[string]interface{}{
			"worker_id": workerID,
			"key":       file.Key,
		})
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	metadata := map[string]string{
		"app_id":     file.AppID,
		"flow_id":    file.FlowID,
		"kind":       string(file.Kind),
		"scraped_at": scrapedAt.UTC().Format(time.RFC3339),
	}
	contentType := contentTypeFor(file)

	uploadErr := retry.Do(ctx, func() error {
		f, err := os.Open(file.LocalPath)
		if err != nil {
			return errors.TerminalApp(err, "failed to open staged file")
		}
		defer f.Close()

		if info, err := f.Stat(); err == nil {
			result.Size = info.Size()
		}
		return p.store.Put(ctx, file.Key, f, contentType, metadata)
	}, &retry.Config{
		MaxAttempts: p.maxAttempts,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Logger:      p.logger,
	})

	result.Duration = time.Since(start)
	if uploadErr != nil {
		result.Error = fmt.Errorf("upload of %s failed: %w", file.Key, uploadErr)
		logger.LogUpload(file.AppID, file.Key, false, uploadErr)
		return result
	}

	result.Success = true
	logger.LogUpload(file.AppID, file.Key, true, nil)
	return result
}

// contentTypeFor picks a MIME type from the file kind, falling back to the
// extension for screenshots.
func contentTypeFor(file models.StagedFile) string {
	switch file.Kind {
	case models.KindMetadata:
		return "application/json"
	case models.KindArchive:
		return "application/zip"
	default:
		if ct := mime.TypeByExtension(filepath.Ext(file.LocalPath)); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}
