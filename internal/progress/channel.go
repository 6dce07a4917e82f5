// Package progress streams server-sent progress events for processing sessions.
//
// The backend exposes GET /progress/{session_id} as a text/event-stream
// endpoint; each data frame is a JSON object carrying a progress percentage
// and a human-readable message. A [Channel] wraps one open stream: events
// arrive on [Channel.Events] until the stream ends or [Channel.Close] is
// called, and [Channel.Err] reports whether the stream ended cleanly.
package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gdx/internal/shared"
)

// Event is one progress frame from the stream.
type Event struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Opener dials progress streams. The authorize hook attaches the current
// bearer token to each dial, matching the API client's credential handling.
type Opener struct {
	baseURL    string
	httpClient *http.Client
	authorize  func(*http.Request)
	logger     *log.Logger
}

// NewOpener creates an [Opener]. A nil httpClient falls back to
// [http.DefaultClient]; a nil authorize hook dials unauthenticated.
func NewOpener(baseURL string, httpClient *http.Client, authorize func(*http.Request), logger *log.Logger) *Opener {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if authorize == nil {
		authorize = func(*http.Request) {}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Opener{
		baseURL:    baseURL,
		httpClient: httpClient,
		authorize:  authorize,
		logger:     logger,
	}
}

// Open dials the progress stream for sessionID. The returned [Channel] owns
// the response body; close it to release the connection.
func (o *Opener) Open(ctx context.Context, sessionID string) (*Channel, error) {
	if sessionID == "" {
		return nil, shared.ErrSessionIDMissing
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/progress/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	o.authorize(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: progress stream returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	ch := &Channel{
		events: make(chan Event, 8),
		done:   make(chan struct{}),
		body:   resp.Body,
		ctx:    ctx,
		logger: o.logger,
	}
	go ch.read()

	o.logger.Debug("progress stream opened", "session_id", sessionID)

	return ch, nil
}

// Channel delivers progress events from one open stream.
type Channel struct {
	events chan Event
	done   chan struct{}
	body   io.ReadCloser
	ctx    context.Context
	logger *log.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	mu  sync.Mutex
	err error
}

// Events returns the event stream. The channel is closed when the stream
// ends, errors, or [Channel.Close] is called.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Close tears down the stream. Safe to call more than once and after the
// stream has already ended.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.body.Close()
	})
}

// Err reports why the stream ended. It is valid once [Channel.Events] is
// closed: nil for a clean end of stream or an explicit Close, non-nil when
// the connection was lost mid-stream.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// read scans SSE frames off the response body and forwards decoded events
// until the body ends or the channel is closed.
func (c *Channel) read() {
	defer close(c.events)
	defer c.body.Close()

	scanner := bufio.NewScanner(c.body)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				if !c.dispatch(data.String()) {
					return
				}
				data.Reset()
			}
			continue
		}

		if value, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(value, " "))
		}
		// Comment lines and other SSE fields (event, id, retry) are ignored.
	}

	if data.Len() > 0 {
		c.dispatch(data.String())
	}

	if err := scanner.Err(); err != nil && !c.closed.Load() && c.ctx.Err() == nil {
		c.mu.Lock()
		c.err = fmt.Errorf("%w: %v", shared.ErrConnectionLost, err)
		c.mu.Unlock()
	}
}

// dispatch decodes one data frame and forwards it. Malformed frames are
// dropped. Returns false when the channel was closed while sending.
func (c *Channel) dispatch(data string) bool {
	var evt Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		c.logger.Debug("skipping malformed progress frame", "data", data)
		return true
	}

	select {
	case c.events <- evt:
		return true
	case <-c.done:
		return false
	}
}
