package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/gdx/internal/shared"
	"github.com/desertthunder/gdx/internal/store"
	"golang.org/x/oauth2"
)

// newAuthServer returns a backend stub that rejects the stale token, accepts
// the fresh one, and counts refresh round trips.
func newAuthServer(t *testing.T, refreshCount *atomic.Int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCount.Add(1)
			if r.Header.Get("Authorization") != "" {
				t.Error("refresh request must not carry a bearer header")
			}

			var body struct {
				RefreshToken string `json:"refresh_token"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken != "refresh-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
		case "/auth/me":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(User{ID: "u1", Username: "alice", Email: "alice@example.com"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func seedTokens(t *testing.T, tokens store.TokenStore, access, refresh string) {
	t.Helper()
	if err := tokens.Save(&oauth2.Token{AccessToken: access, RefreshToken: refresh}); err != nil {
		t.Fatalf("Failed to seed tokens: %v", err)
	}
}

func TestClientRefresh(t *testing.T) {
	t.Run("retries once after refreshing", func(t *testing.T) {
		var refreshCount atomic.Int64
		server := newAuthServer(t, &refreshCount)
		defer server.Close()

		tokens := store.NewMemoryTokenStore()
		seedTokens(t, tokens, "stale", "refresh-1")
		client := NewClient(server.URL, nil, tokens, nil)

		user, err := client.Me(context.Background())
		if err != nil {
			t.Fatalf("Me failed: %v", err)
		}
		if user.Email != "alice@example.com" {
			t.Errorf("Expected alice@example.com, got %s", user.Email)
		}
		if got := refreshCount.Load(); got != 1 {
			t.Errorf("Expected 1 refresh, got %d", got)
		}

		tok, err := tokens.Token()
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok.AccessToken != "fresh" {
			t.Errorf("Expected fresh access token persisted, got %s", tok.AccessToken)
		}
		if tok.RefreshToken != "refresh-1" {
			t.Errorf("Expected refresh token preserved, got %s", tok.RefreshToken)
		}
	})

	t.Run("concurrent rejections share one refresh", func(t *testing.T) {
		var refreshCount atomic.Int64
		server := newAuthServer(t, &refreshCount)
		defer server.Close()

		tokens := store.NewMemoryTokenStore()
		seedTokens(t, tokens, "stale", "refresh-1")
		client := NewClient(server.URL, nil, tokens, nil)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = client.Me(context.Background())
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("Request %d failed: %v", i, err)
			}
		}
		if got := refreshCount.Load(); got != 1 {
			t.Errorf("Expected exactly 1 refresh, got %d", got)
		}
	})

	t.Run("refresh failure clears credentials", func(t *testing.T) {
		var refreshCount atomic.Int64
		server := newAuthServer(t, &refreshCount)
		defer server.Close()

		tokens := store.NewMemoryTokenStore()
		seedTokens(t, tokens, "stale", "wrong-refresh")
		client := NewClient(server.URL, nil, tokens, nil)

		_, err := client.Me(context.Background())
		if !IsSessionExpired(err) {
			t.Fatalf("Expected session expired error, got %v", err)
		}
		if _, err := tokens.Token(); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("Expected cleared store, got %v", err)
		}
	})

	t.Run("missing refresh token expires the session", func(t *testing.T) {
		var refreshCount atomic.Int64
		server := newAuthServer(t, &refreshCount)
		defer server.Close()

		tokens := store.NewMemoryTokenStore()
		seedTokens(t, tokens, "stale", "")
		client := NewClient(server.URL, nil, tokens, nil)

		_, err := client.Me(context.Background())
		if !IsSessionExpired(err) {
			t.Fatalf("Expected session expired error, got %v", err)
		}
		if got := refreshCount.Load(); got != 0 {
			t.Errorf("Expected no refresh attempt, got %d", got)
		}
	})
}

func TestClientRaw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/echo":
			if r.Header.Get("Content-Type") != "application/json" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte("created"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil, nil)

	t.Run("get decodes json responses", func(t *testing.T) {
		resp, err := client.Get(context.Background(), "/status")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !resp.IsJSON {
			t.Error("Expected JSON response")
		}
		data, ok := resp.JSONData.(map[string]any)
		if !ok || data["status"] != "ok" {
			t.Errorf("Unexpected payload: %v", resp.JSONData)
		}
	})

	t.Run("post passes through non-json bodies", func(t *testing.T) {
		resp, err := client.Post(context.Background(), "/echo", []byte(`{"a":1}`))
		if err != nil {
			t.Fatalf("Post failed: %v", err)
		}
		if resp.StatusCode != http.StatusCreated {
			t.Errorf("Expected 201, got %d", resp.StatusCode)
		}
		if resp.IsJSON {
			t.Error("Expected non-JSON response")
		}
		if string(resp.Body) != "created" {
			t.Errorf("Unexpected body: %s", resp.Body)
		}
	})

	t.Run("non-2xx statuses are returned, not errors", func(t *testing.T) {
		resp, err := client.Get(context.Background(), "/missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			http.NotFound(w, r)
			return
		}

		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		if body.Email != "alice@example.com" || body.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			User:         User{ID: "u1", Username: "alice", Email: body.Email},
		})
	}))
	defer server.Close()

	t.Run("persists tokens on success", func(t *testing.T) {
		tokens := store.NewMemoryTokenStore()
		client := NewClient(server.URL, nil, tokens, nil)

		user, err := client.Login(context.Background(), "alice@example.com", "hunter2")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if user.Username != "alice" {
			t.Errorf("Expected alice, got %s", user.Username)
		}

		tok, err := tokens.Token()
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" {
			t.Errorf("Unexpected tokens: %+v", tok)
		}
	})

	t.Run("rejects bad credentials", func(t *testing.T) {
		client := NewClient(server.URL, nil, nil, nil)

		_, err := client.Login(context.Background(), "alice@example.com", "wrong")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("Expected auth failure, got %v", err)
		}
	})

	t.Run("requires email and password", func(t *testing.T) {
		client := NewClient(server.URL, nil, nil, nil)

		_, err := client.Login(context.Background(), "", "")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("Expected missing credentials error, got %v", err)
		}
	})
}
