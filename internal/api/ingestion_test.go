package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/gdx/internal/shared"
	"github.com/desertthunder/gdx/internal/store"
	tu "github.com/desertthunder/gdx/internal/testing"
)

func TestUpload(t *testing.T) {
	readUpload := func(t *testing.T, r *http.Request) (string, []byte) {
		t.Helper()
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Missing multipart file field: %v", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			t.Fatalf("Failed to read upload: %v", err)
		}
		return header.Filename, data
	}

	t.Run("submits the file and returns the session id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/process-guideline" || r.Method != http.MethodPost {
				http.NotFound(w, r)
				return
			}

			name, data := readUpload(t, r)
			if name != "guideline.pdf" {
				t.Errorf("Expected guideline.pdf, got %s", name)
			}
			if string(data) != "%PDF-1.4\n%%EOF\n" {
				t.Errorf("Unexpected upload contents: %q", data)
			}

			json.NewEncoder(w).Encode(uploadResponse{SessionID: "sess-42"})
		}))
		defer server.Close()

		path := tu.WritePDF(t, t.TempDir(), "guideline.pdf")
		client := NewClient(server.URL, nil, nil, nil)

		id, err := client.Upload(context.Background(), path)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if id != "sess-42" {
			t.Errorf("Expected sess-42, got %s", id)
		}
	})

	t.Run("rebuilds the body when retried after a refresh", func(t *testing.T) {
		tokens := store.NewMemoryTokenStore()
		seedTokens(t, tokens, "stale", "refresh-1")

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/auth/refresh":
				json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
			case "/process-guideline":
				if r.Header.Get("Authorization") != "Bearer fresh" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}

				name, data := readUpload(t, r)
				if name != "guideline.pdf" || len(data) == 0 {
					t.Errorf("Retried upload lost its body: %s (%d bytes)", name, len(data))
				}

				json.NewEncoder(w).Encode(uploadResponse{SessionID: "sess-43"})
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		path := tu.WritePDF(t, t.TempDir(), "guideline.pdf")
		client := NewClient(server.URL, nil, tokens, nil)

		id, err := client.Upload(context.Background(), path)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if id != "sess-43" {
			t.Errorf("Expected sess-43, got %s", id)
		}
	})

	t.Run("rejects a response without a session id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		path := tu.WritePDF(t, t.TempDir(), "guideline.pdf")
		client := NewClient(server.URL, nil, nil, nil)

		_, err := client.Upload(context.Background(), path)
		if !errors.Is(err, shared.ErrSessionIDMissing) {
			t.Errorf("Expected missing session id error, got %v", err)
		}
	})

	t.Run("surfaces server rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
		}))
		defer server.Close()

		path := tu.WritePDF(t, t.TempDir(), "guideline.pdf")
		client := NewClient(server.URL, nil, nil, nil)

		_, err := client.Upload(context.Background(), path)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("Expected API request error, got %v", err)
		}
	})
}

func TestFetchResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/result/sess-42":
			json.NewEncoder(w).Encode(resultResponse{OutputFile: "title: Example\nsteps:\n  - one\n"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil, nil)

	t.Run("returns the output payload", func(t *testing.T) {
		out, err := client.FetchResult(context.Background(), "sess-42")
		if err != nil {
			t.Fatalf("FetchResult failed: %v", err)
		}
		if out != "title: Example\nsteps:\n  - one\n" {
			t.Errorf("Unexpected payload: %q", out)
		}
	})

	t.Run("requires a session id", func(t *testing.T) {
		_, err := client.FetchResult(context.Background(), "")
		if !errors.Is(err, shared.ErrSessionIDMissing) {
			t.Errorf("Expected missing session id error, got %v", err)
		}
	})

	t.Run("wraps fetch failures", func(t *testing.T) {
		_, err := client.FetchResult(context.Background(), "sess-unknown")
		if !errors.Is(err, shared.ErrResultFetch) {
			t.Errorf("Expected result fetch error, got %v", err)
		}
	})
}
