package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gdx/internal/progress"
	"github.com/desertthunder/gdx/internal/shared"
)

// Uploader is the backend surface a session drives: submit the file, then
// retrieve the processed output. Satisfied by the API client.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
	FetchResult(ctx context.Context, sessionID string) (string, error)
}

// Stream is one open progress connection.
type Stream interface {
	Events() <-chan progress.Event
	Close()
	Err() error
}

// StreamOpener dials the progress stream for a session id.
type StreamOpener interface {
	Open(ctx context.Context, sessionID string) (Stream, error)
}

type channelOpener struct {
	opener *progress.Opener
}

func (c channelOpener) Open(ctx context.Context, sessionID string) (Stream, error) {
	ch, err := c.opener.Open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// NewStreamOpener adapts a [progress.Opener] to the [StreamOpener] interface.
func NewStreamOpener(o *progress.Opener) StreamOpener {
	return channelOpener{opener: o}
}

// Snapshot is an immutable copy of session state at one point in time.
type Snapshot struct {
	Status    Status
	Label     string
	Files     []string
	SessionID string
	Progress  int
	Message   string
	Result    string
	Err       error
}

// Session is the upload state machine. All methods are safe for concurrent
// use; asynchronous results are checked against a generation counter so a
// discarded run can never mutate a newer one.
type Session struct {
	uploader Uploader
	opener   StreamOpener
	logger   *log.Logger

	mu        sync.Mutex
	gen       uint64
	status    Status
	label     string
	files     []string
	sessionID string
	progress  int
	message   string
	result    string
	err       error
	stream    Stream
	cancel    context.CancelFunc
	runDone   chan struct{}
	disposed  bool

	updates     chan Snapshot
	disposeOnce sync.Once
}

// NewSession creates an idle session.
func NewSession(uploader Uploader, opener StreamOpener, logger *log.Logger) *Session {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Session{
		uploader: uploader,
		opener:   opener,
		logger:   logger,
		status:   StatusIdle,
		updates:  make(chan Snapshot, 16),
	}
}

// Updates returns a channel of state snapshots. Sends never block: when the
// consumer lags, intermediate snapshots are dropped. Use [Session.Wait] to
// observe the terminal state reliably.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	files := make([]string, len(s.files))
	copy(files, s.files)

	return Snapshot{
		Status:    s.status,
		Label:     s.label,
		Files:     files,
		SessionID: s.sessionID,
		Progress:  s.progress,
		Message:   s.message,
		Result:    s.result,
		Err:       s.err,
	}
}

func (s *Session) publishLocked() {
	if s.disposed {
		return
	}
	select {
	case s.updates <- s.snapshotLocked():
	default:
	}
}

// SetLabel sets the guideline label. Only effective while idle.
func (s *Session) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return
	}
	s.label = label
	s.publishLocked()
}

// IsPDF reports whether path names a PDF by extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// AddFiles appends PDF paths to the selection while idle. Non-PDF paths are
// returned in rejected and never enter the selection.
func (s *Session) AddFiles(paths ...string) (rejected []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return paths
	}

	changed := false
	for _, path := range paths {
		if !IsPDF(path) {
			rejected = append(rejected, path)
			continue
		}
		if s.hasFileLocked(path) {
			continue
		}
		s.files = append(s.files, path)
		changed = true
	}

	if changed {
		s.publishLocked()
	}
	return rejected
}

func (s *Session) hasFileLocked(path string) bool {
	for _, f := range s.files {
		if f == path {
			return true
		}
	}
	return false
}

// RemoveFile drops path from the selection while idle.
func (s *Session) RemoveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return
	}
	for i, f := range s.files {
		if f == path {
			s.files = append(s.files[:i], s.files[i+1:]...)
			s.publishLocked()
			return
		}
	}
}

// CanUpload reports whether a submit would be accepted: a label, at least one
// file, and an idle session. Always derived, never cached.
func (s *Session) CanUpload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusIdle && s.label != "" && len(s.files) > 0
}

// Start validates the selection and launches the upload run. The session id,
// progress events, and the final result arrive asynchronously; watch
// [Session.Updates] or block on [Session.Wait].
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()

	if s.status != StatusIdle {
		defer s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", shared.ErrInvalidInput, s.status)
	}

	s.status = StatusValidating
	s.publishLocked()

	if s.label == "" {
		s.rejectLocked("a guideline label is required")
		s.mu.Unlock()
		return fmt.Errorf("%w: missing label", shared.ErrValidation)
	}
	if len(s.files) == 0 {
		s.rejectLocked("select at least one PDF")
		s.mu.Unlock()
		return fmt.Errorf("%w: no files selected", shared.ErrValidation)
	}
	for _, f := range s.files {
		if !IsPDF(f) {
			s.rejectLocked(fmt.Sprintf("%s is not a PDF", filepath.Base(f)))
			s.mu.Unlock()
			return fmt.Errorf("%w: %s is not a PDF", shared.ErrValidation, filepath.Base(f))
		}
	}

	s.gen++
	gen := s.gen

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.runDone = done

	// Only the first selected file is submitted; the rest stay listed for
	// follow-up sessions.
	path := s.files[0]
	label := s.label

	s.status = StatusUploading
	s.message = "uploading " + filepath.Base(path)
	s.err = nil
	s.publishLocked()
	s.mu.Unlock()

	s.logger.Debug("upload started", "file", path, "label", label)

	go s.run(runCtx, gen, path, done)

	return nil
}

// rejectLocked returns a failed validation to idle with a user-visible message.
func (s *Session) rejectLocked(msg string) {
	s.status = StatusIdle
	s.message = msg
	s.publishLocked()
}

// run is the session's single in-flight goroutine: upload, stream, fetch.
func (s *Session) run(ctx context.Context, gen uint64, path string, done chan struct{}) {
	defer close(done)

	id, err := s.uploader.Upload(ctx, path)
	if err != nil {
		if errors.Is(err, shared.ErrSessionIDMissing) {
			s.fail(gen, fmt.Errorf("%w: %v", shared.ErrUpload, err), "upload response carried no session id")
		} else {
			s.fail(gen, fmt.Errorf("%w: %v", shared.ErrUpload, err), "upload failed")
		}
		return
	}
	if !s.acceptSessionID(gen, id) {
		return
	}

	stream, err := s.opener.Open(ctx, id)
	if err != nil {
		s.fail(gen, fmt.Errorf("%w: %v", shared.ErrConnectionLost, err), "could not open progress stream")
		return
	}
	if !s.adoptStream(gen, stream) {
		stream.Close()
		return
	}

	completed := false
	for evt := range stream.Events() {
		finished, ok := s.applyEvent(gen, evt)
		if !ok {
			stream.Close()
			return
		}
		if finished {
			completed = true
			break
		}
	}

	// The stream is retired before the result fetch begins.
	stream.Close()
	s.dropStream(gen)

	if !completed {
		if err := stream.Err(); err != nil {
			s.fail(gen, err, "connection lost during processing")
		} else {
			s.fail(gen, fmt.Errorf("%w: stream ended before completion", shared.ErrConnectionLost), "connection lost during processing")
		}
		return
	}

	if !s.transition(gen, StatusFetchingResult, "retrieving result") {
		return
	}

	result, err := s.uploader.FetchResult(ctx, id)
	if err != nil {
		s.fail(gen, err, "processing succeeded but result retrieval failed")
		return
	}

	s.succeed(gen, result)
}

// staleLocked reports whether the callback belongs to a retired run.
func (s *Session) staleLocked(gen uint64) bool {
	return s.gen != gen || s.status.Terminal()
}

func (s *Session) acceptSessionID(gen uint64, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) || s.sessionID != "" {
		return false
	}
	s.sessionID = id
	s.status = StatusAwaitingProgress
	s.message = "waiting for the server to start processing"
	s.publishLocked()
	return true
}

func (s *Session) adoptStream(gen uint64, stream Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) {
		return false
	}
	s.stream = stream
	return true
}

func (s *Session) dropStream(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.stream = nil
}

// applyEvent folds one progress event into the watermark. Decreasing values
// are ignored. Returns finished when the event first reports completion, and
// ok=false when the run is stale.
func (s *Session) applyEvent(gen uint64, evt progress.Event) (finished, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staleLocked(gen) {
		return false, false
	}

	if s.status == StatusAwaitingProgress {
		s.status = StatusProcessing
	}
	if s.status != StatusProcessing {
		return false, false
	}

	if evt.Progress < s.progress {
		return false, true
	}

	s.progress = evt.Progress
	if s.progress > 100 {
		s.progress = 100
	}
	if evt.Message != "" {
		s.message = evt.Message
	}
	s.publishLocked()

	return s.progress >= 100, true
}

func (s *Session) transition(gen uint64, status Status, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) {
		return false
	}
	s.status = status
	s.message = msg
	s.publishLocked()
	return true
}

func (s *Session) succeed(gen uint64, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) {
		return
	}
	s.status = StatusSucceeded
	s.result = result
	s.message = "done"
	s.publishLocked()
	s.logger.Debug("session succeeded", "session_id", s.sessionID)
}

func (s *Session) fail(gen uint64, err error, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleLocked(gen) {
		return
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.status = StatusFailed
	s.err = err
	s.message = msg
	s.publishLocked()
	s.logger.Debug("session failed", "session_id", s.sessionID, "error", err)
}

// Discard cancels the active run. Safe from any state and idempotent: an
// already terminal session keeps its state, an idle one drops its label and
// file selection, and anything in flight moves to cancelled with its channel
// closed and its request aborted.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}

	switch {
	case s.status.Terminal():
		// Nothing further; the terminal state stands.
	case s.status == StatusIdle:
		s.label = ""
		s.files = nil
		s.message = ""
		s.publishLocked()
	default:
		s.status = StatusCancelled
		s.message = "cancelled"
		s.publishLocked()
	}
}

// Reset returns the session to idle for the next upload, clearing all state
// from the previous run. Any active run is discarded first.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}

	s.status = StatusIdle
	s.label = ""
	s.files = nil
	s.sessionID = ""
	s.progress = 0
	s.message = ""
	s.result = ""
	s.err = nil
	s.runDone = nil
	s.publishLocked()
}

// Dispose tears the session down for good: the run is discarded and the
// updates channel is closed. Idempotent; meant for view unmount.
func (s *Session) Dispose() {
	s.Discard()
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()
		close(s.updates)
	})
}

// Wait blocks until the current run reaches a terminal state, then returns
// the final snapshot. Returns immediately when no run is active.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()

	if done == nil {
		return s.Snapshot(), nil
	}

	select {
	case <-done:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}
