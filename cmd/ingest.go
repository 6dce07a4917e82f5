package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/desertthunder/gdx/internal/formatter"
	"github.com/desertthunder/gdx/internal/ingest"
	"github.com/desertthunder/gdx/internal/shared"
	"github.com/desertthunder/gdx/internal/store"
	"github.com/urfave/cli/v3"
)

// IngestRun uploads one PDF and follows its progress to the final result.
func (r *Runner) IngestRun(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	label := cmd.String("label")

	if path == "" {
		return fmt.Errorf("%w: a PDF path is required", shared.ErrMissingArgument)
	}

	sess := ingest.NewSession(r.client, r.opener, r.logger)
	defer sess.Dispose()

	sess.SetLabel(label)
	if rejected := sess.AddFiles(path); len(rejected) > 0 {
		return fmt.Errorf("%w: %s is not a PDF", shared.ErrValidation, path)
	}

	record := r.recordUpload(label, path)

	r.writePlain("Uploading %s…\n", filepath.Base(path))
	if err := sess.Start(ctx); err != nil {
		r.updateUpload(record, sess.Snapshot())
		return err
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for snap := range sess.Updates() {
			if snap.Status == ingest.StatusProcessing {
				r.writePlain("\r%3d%% %-40s", snap.Progress, snap.Message)
			}
		}
	}()

	snap, err := sess.Wait(ctx)
	if err != nil {
		sess.Discard()
		snap = sess.Snapshot()
	}
	sess.Dispose()
	<-progressDone
	r.writePlain("\n")

	r.updateUpload(record, snap)

	switch snap.Status {
	case ingest.StatusSucceeded:
		r.writePlain("✓ Processing complete (session %s)\n\n", snap.SessionID)
		return r.emitResult(cmd, snap.Result, label)
	case ingest.StatusCancelled:
		return fmt.Errorf("upload cancelled")
	default:
		if snap.Err != nil {
			return snap.Err
		}
		return fmt.Errorf("ingestion failed: %s", snap.Message)
	}
}

// IngestBulk uploads every PDF in a directory through a worker pool.
func (r *Runner) IngestBulk(ctx context.Context, cmd *cli.Command) error {
	dir := cmd.StringArg("dir")
	label := cmd.String("label")
	if dir == "" {
		dir = "."
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no PDFs found in %s", shared.ErrInvalidArgument, dir)
	}
	sort.Strings(paths)

	workers := int(cmd.Int("workers"))
	if workers <= 0 {
		workers = r.config.Ingest.Workers
	}
	uploadsPerSec := cmd.Float("rate")
	if uploadsPerSec <= 0 {
		uploadsPerSec = r.config.Ingest.RateLimit
	}

	r.writePlainHeader(fmt.Sprintf("Bulk ingestion: %d files, %d workers", len(paths), workers))

	bulk := ingest.NewBulkIngestor(r.client, r.opener, uploadsPerSec, workers, r.logger)
	results := bulk.Run(ctx, label, paths)

	outputDir := cmd.String("output")
	if outputDir == "" {
		outputDir = r.config.Ingest.OutputDir
	}

	succeeded, failed := 0, 0
	for _, res := range results {
		record := r.recordUpload(label, res.File)
		r.updateUploadBulk(record, res)

		switch res.Status {
		case ingest.StatusSucceeded:
			succeeded++
			r.writePlain("✓ %s (session %s)\n", filepath.Base(res.File), res.SessionID)
			if outputDir != "" {
				name := label + " " + filepath.Base(res.File)
				if path, err := formatter.WriteResult(res.Result, outputDir, name); err != nil {
					r.logger.Warn("failed to save result", "file", res.File, "error", err)
				} else {
					r.writePlain("  saved to %s\n", path)
				}
			}
		default:
			failed++
			r.writePlain("✗ %s: %v\n", filepath.Base(res.File), res.Err)
		}
	}

	r.writePlainln("%d succeeded, %d failed", succeeded, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// IngestResult fetches the result payload for a completed session.
func (r *Runner) IngestResult(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.StringArg("session")
	if sessionID == "" {
		return fmt.Errorf("%w: a session id is required", shared.ErrMissingArgument)
	}

	r.logger.Info("fetching result", "session_id", sessionID)

	payload, err := r.client.FetchResult(ctx, sessionID)
	if err != nil {
		return err
	}

	return r.emitResult(cmd, payload, sessionID)
}

// IngestHistory lists recorded uploads, newest first.
func (r *Runner) IngestHistory(ctx context.Context, cmd *cli.Command) error {
	if r.uploads == nil {
		return fmt.Errorf("%w: history requires a database, run 'gdx setup database'", shared.ErrServiceUnavailable)
	}

	rows, err := r.uploads.List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	if len(rows) == 0 {
		return r.writePlain("No uploads recorded yet\n")
	}

	for _, row := range rows {
		session := row.SessionID
		if session == "" {
			session = "-"
		}
		r.writePlain("%s  %-12s %-24s %s (session %s)\n",
			row.CreatedAt.Format(time.DateTime), row.Status, row.Label, row.FileName, session)
	}
	return nil
}

// emitResult renders or saves a result payload per the command's flags.
func (r *Runner) emitResult(cmd *cli.Command, payload, label string) error {
	outputDir := cmd.String("output")
	save := cmd.Bool("save") || outputDir != ""
	if outputDir == "" {
		outputDir = r.config.Ingest.OutputDir
	}

	if save {
		path, err := formatter.WriteResult(payload, outputDir, label)
		if err != nil {
			return err
		}
		r.writePlain("✓ Result saved to %s\n", path)
	}

	if cmd.Bool("json") {
		return r.writePlain("%s\n", payload)
	}

	rendered, err := formatter.Pretty(payload)
	if err != nil {
		r.logger.Warn("failed to render payload, printing raw", "error", err)
		rendered = payload
	}
	return r.writePlain("%s", rendered)
}

// recordUpload inserts a history row when the database is available.
func (r *Runner) recordUpload(label, path string) *store.Upload {
	if r.uploads == nil {
		return nil
	}

	record := &store.Upload{
		Label:    label,
		FileName: filepath.Base(path),
		Status:   ingest.StatusUploading.String(),
	}
	if err := r.uploads.Create(record); err != nil {
		r.logger.Warn("failed to record upload", "error", err)
		return nil
	}
	return record
}

func (r *Runner) updateUpload(record *store.Upload, snap ingest.Snapshot) {
	if record == nil {
		return
	}

	record.SessionID = snap.SessionID
	record.Status = snap.Status.String()
	record.Message = snap.Message
	if err := r.uploads.Update(record); err != nil {
		r.logger.Warn("failed to update upload record", "error", err)
	}
}

func (r *Runner) updateUploadBulk(record *store.Upload, res ingest.BulkResult) {
	if record == nil {
		return
	}

	record.SessionID = res.SessionID
	record.Status = res.Status.String()
	if res.Err != nil {
		record.Message = res.Err.Error()
	}
	if err := r.uploads.Update(record); err != nil {
		r.logger.Warn("failed to update upload record", "error", err)
	}
}
