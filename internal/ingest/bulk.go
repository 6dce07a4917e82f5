package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gdx/internal/shared"
	"golang.org/x/time/rate"
)

// BulkResult is the outcome of one file in a bulk run.
type BulkResult struct {
	File      string
	SessionID string
	Status    Status
	Result    string
	Err       error
}

// BulkIngestor runs one session per file through a bounded worker pool. A
// shared rate limiter spaces out uploads so a directory of guidelines does
// not hammer the backend.
type BulkIngestor struct {
	uploader Uploader
	opener   StreamOpener
	limiter  *rate.Limiter
	workers  int
	logger   *log.Logger
}

// NewBulkIngestor creates a bulk runner issuing at most uploadsPerSec uploads
// across the given number of workers.
func NewBulkIngestor(uploader Uploader, opener StreamOpener, uploadsPerSec float64, workers int, logger *log.Logger) *BulkIngestor {
	if uploadsPerSec <= 0 {
		uploadsPerSec = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &BulkIngestor{
		uploader: uploader,
		opener:   opener,
		limiter:  rate.NewLimiter(rate.Limit(uploadsPerSec), 1),
		workers:  workers,
		logger:   logger,
	}
}

// Run ingests every path under the given label and returns one result per
// file, in completion order. Non-PDF paths fail validation without touching
// the backend. Cancelling ctx stops the pool after in-flight sessions settle.
func (b *BulkIngestor) Run(ctx context.Context, label string, paths []string) []BulkResult {
	jobs := make(chan string)
	results := make(chan BulkResult)

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- b.ingestOne(ctx, label, path)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []BulkResult
	for res := range results {
		out = append(out, res)
	}
	return out
}

func (b *BulkIngestor) ingestOne(ctx context.Context, label, path string) BulkResult {
	res := BulkResult{File: path}

	if err := b.limiter.Wait(ctx); err != nil {
		res.Status = StatusCancelled
		res.Err = err
		return res
	}

	sess := NewSession(b.uploader, b.opener, b.logger)
	defer sess.Dispose()

	sess.SetLabel(label)
	if rejected := sess.AddFiles(path); len(rejected) > 0 {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s is not a PDF", shared.ErrValidation, path)
		return res
	}

	if err := sess.Start(ctx); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	snap, err := sess.Wait(ctx)
	if err != nil {
		sess.Discard()
		snap = sess.Snapshot()
	}

	res.SessionID = snap.SessionID
	res.Status = snap.Status
	res.Result = snap.Result
	res.Err = snap.Err

	b.logger.Debug("bulk file finished", "file", path, "status", snap.Status.String())

	return res
}
