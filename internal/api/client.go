package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gdx/internal/shared"
	"github.com/desertthunder/gdx/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Client sends authenticated requests to the ingestion backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     store.TokenStore
	logger     *log.Logger

	// Collapses concurrent refresh attempts into one round trip.
	refreshGroup singleflight.Group
}

// NewClient creates a new backend client. A nil httpClient falls back to
// [http.DefaultClient]; a nil tokens store falls back to an in-memory one.
func NewClient(baseURL string, httpClient *http.Client, tokens store.TokenStore, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tokens == nil {
		tokens = store.NewMemoryTokenStore()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// BaseURL returns the backend base URL the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authorize attaches the current access token to req as a bearer header.
// A missing token is not an error; the request is sent unauthenticated.
func (c *Client) Authorize(req *http.Request) {
	tok, err := c.tokens.Token()
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
}

// bodyFunc produces a fresh request body and its content type.
// Called again when a request is resubmitted after a token refresh.
type bodyFunc func() (io.Reader, string, error)

func jsonBody(v any) bodyFunc {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// do sends an authenticated request, retrying once after a refresh on 401,
// and decodes a 2xx JSON response into out (when out is non-nil).
func (c *Client) do(ctx context.Context, method, path string, body bodyFunc, out any) error {
	resp, err := c.send(ctx, method, path, body, true, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// send performs one request attempt. On a 401 with allowRetry set it refreshes
// the access token and resubmits exactly once.
func (c *Client) send(ctx context.Context, method, path string, body bodyFunc, authorize, allowRetry bool) (*http.Response, error) {
	var reader io.Reader
	contentType := ""

	if body != nil {
		r, ct, err := body()
		if err != nil {
			return nil, err
		}
		reader = r
		contentType = ct
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-ID", shared.GenerateID())

	attached := ""
	if authorize {
		if tok, err := c.tokens.Token(); err == nil {
			req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
			attached = tok.AccessToken
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && authorize && allowRetry {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := c.refresh(ctx, attached); err != nil {
			return nil, err
		}

		return c.send(ctx, method, path, body, authorize, false)
	}

	return resp, nil
}

// refresh exchanges the stored refresh token for a new access token and
// persists it. Concurrent callers share one in-flight exchange, and a caller
// whose rejected token has already been replaced skips the round trip
// entirely. On failure the store is cleared and [shared.ErrSessionExpired] is
// returned.
func (c *Client) refresh(ctx context.Context, stale string) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		tok, err := c.tokens.Token()
		if err != nil || tok.RefreshToken == "" {
			c.tokens.Clear()
			return nil, fmt.Errorf("%w: %v", shared.ErrSessionExpired, shared.ErrNoRefreshToken)
		}

		if stale != "" && tok.AccessToken != stale {
			return nil, nil
		}

		c.logger.Debug("access token rejected, refreshing")

		body := jsonBody(map[string]string{"refresh_token": tok.RefreshToken})
		resp, err := c.send(ctx, http.MethodPost, "/auth/refresh", body, false, false)
		if err != nil {
			c.tokens.Clear()
			return nil, fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.tokens.Clear()
			return nil, fmt.Errorf("%w: refresh returned status %d", shared.ErrSessionExpired, resp.StatusCode)
		}

		var refreshed struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil || refreshed.AccessToken == "" {
			c.tokens.Clear()
			return nil, fmt.Errorf("%w: malformed refresh response", shared.ErrSessionExpired)
		}

		saved := &oauth2.Token{AccessToken: refreshed.AccessToken, RefreshToken: tok.RefreshToken}
		if err := c.tokens.Save(saved); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
		}

		return nil, nil
	})

	return err
}

// Response represents a raw API response with status and body.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

func (c *Client) raw(ctx context.Context, method, path string, body bodyFunc) (*Response, error) {
	resp, err := c.send(ctx, method, path, body, true, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs an authenticated GET request to the specified path and returns the raw response.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.raw(ctx, http.MethodGet, path, nil)
}

// Post performs an authenticated POST request with the given JSON data and returns the raw response.
func (c *Client) Post(ctx context.Context, path string, data []byte) (*Response, error) {
	body := func() (io.Reader, string, error) {
		return bytes.NewReader(data), "application/json", nil
	}
	return c.raw(ctx, http.MethodPost, path, body)
}

// IsSessionExpired reports whether err indicates an irrecoverable auth failure
// requiring a fresh login.
func IsSessionExpired(err error) bool {
	return errors.Is(err, shared.ErrSessionExpired)
}
