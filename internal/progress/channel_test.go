package progress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/gdx/internal/shared"
)

func writeFrame(t *testing.T, w http.ResponseWriter, progress int, message string) {
	t.Helper()
	fmt.Fprintf(w, "data: {\"progress\":%d,\"message\":%q}\n\n", progress, message)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func collect(t *testing.T, ch *Channel) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-ch.Events():
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-timeout:
			t.Fatal("Timed out waiting for stream to close")
		}
	}
}

func TestChannel(t *testing.T) {
	t.Run("delivers events in order until end of stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "text/event-stream" {
				t.Errorf("Expected event-stream accept header, got %s", r.Header.Get("Accept"))
			}
			w.Header().Set("Content-Type", "text/event-stream")
			writeFrame(t, w, 10, "OCR")
			writeFrame(t, w, 50, "Chunking")
			writeFrame(t, w, 100, "Done")
		}))
		defer server.Close()

		opener := NewOpener(server.URL, nil, nil, nil)
		ch, err := opener.Open(context.Background(), "sess-1")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer ch.Close()

		events := collect(t, ch)
		want := []Event{{10, "OCR"}, {50, "Chunking"}, {100, "Done"}}
		if len(events) != len(want) {
			t.Fatalf("Expected %d events, got %d: %v", len(want), len(events), events)
		}
		for i, evt := range events {
			if evt != want[i] {
				t.Errorf("Event %d: expected %v, got %v", i, want[i], evt)
			}
		}
		if err := ch.Err(); err != nil {
			t.Errorf("Expected clean end of stream, got %v", err)
		}
	})

	t.Run("skips comments and malformed frames", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": keepalive\n\n")
			fmt.Fprint(w, "data: not json\n\n")
			writeFrame(t, w, 25, "Parsing")
		}))
		defer server.Close()

		opener := NewOpener(server.URL, nil, nil, nil)
		ch, err := opener.Open(context.Background(), "sess-2")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer ch.Close()

		events := collect(t, ch)
		if len(events) != 1 || events[0] != (Event{25, "Parsing"}) {
			t.Errorf("Expected single Parsing event, got %v", events)
		}
	})

	t.Run("close stops delivery and is idempotent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			for i := 0; ; i++ {
				select {
				case <-r.Context().Done():
					return
				default:
				}
				writeFrame(t, w, i, "tick")
				time.Sleep(5 * time.Millisecond)
			}
		}))
		defer server.Close()

		opener := NewOpener(server.URL, nil, nil, nil)
		ch, err := opener.Open(context.Background(), "sess-3")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}

		select {
		case <-ch.Events():
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for first event")
		}

		ch.Close()
		ch.Close()

		collect(t, ch)
		if err := ch.Err(); err != nil {
			t.Errorf("Expected no error after explicit close, got %v", err)
		}
	})

	t.Run("reports a lost connection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("Server does not support hijacking")
			}
			conn, buf, err := hj.Hijack()
			if err != nil {
				t.Fatalf("Hijack failed: %v", err)
			}
			defer conn.Close()

			fmt.Fprint(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: 1000\r\n\r\n")
			fmt.Fprint(buf, "data: {\"progress\":10,\"message\":\"OCR\"}\n\n")
			buf.Flush()
		}))
		defer server.Close()

		opener := NewOpener(server.URL, nil, nil, nil)
		ch, err := opener.Open(context.Background(), "sess-4")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer ch.Close()

		events := collect(t, ch)
		if len(events) != 1 {
			t.Errorf("Expected one event before the drop, got %v", events)
		}
		if err := ch.Err(); !errors.Is(err, shared.ErrConnectionLost) {
			t.Errorf("Expected connection lost error, got %v", err)
		}
	})
}

func TestOpener(t *testing.T) {
	t.Run("attaches credentials through the authorize hook", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "text/event-stream")
		}))
		defer server.Close()

		authorize := func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer token-1")
		}
		opener := NewOpener(server.URL, nil, authorize, nil)
		ch, err := opener.Open(context.Background(), "sess-5")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		ch.Close()
		collect(t, ch)

		if gotAuth != "Bearer token-1" {
			t.Errorf("Expected bearer header, got %q", gotAuth)
		}
	})

	t.Run("rejects non-200 responses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		opener := NewOpener(server.URL, nil, nil, nil)
		if _, err := opener.Open(context.Background(), "sess-6"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("Expected API request error, got %v", err)
		}
	})

	t.Run("requires a session id", func(t *testing.T) {
		opener := NewOpener("http://localhost:0", nil, nil, nil)
		if _, err := opener.Open(context.Background(), ""); !errors.Is(err, shared.ErrSessionIDMissing) {
			t.Errorf("Expected missing session id error, got %v", err)
		}
	})
}
