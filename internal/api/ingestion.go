package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/desertthunder/gdx/internal/shared"
)

type uploadResponse struct {
	SessionID string `json:"session_id"`
}

type resultResponse struct {
	OutputFile string `json:"output_file"`
}

// Upload submits the PDF at path as a multipart form (field "file") to the
// processing endpoint and returns the server-issued session id. The body is
// rebuilt from disk if the request is resubmitted after a token refresh.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	body := func() (io.Reader, string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		part, err := w.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return nil, "", fmt.Errorf("failed to build multipart body: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
		}

		return &buf, w.FormDataContentType(), nil
	}

	var out uploadResponse
	if err := c.do(ctx, http.MethodPost, "/process-guideline", body, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", shared.ErrSessionIDMissing
	}

	c.logger.Debug("upload accepted", "session_id", out.SessionID, "file", filepath.Base(path))

	return out.SessionID, nil
}

// FetchResult returns the processed output for a completed session.
func (c *Client) FetchResult(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", shared.ErrSessionIDMissing
	}

	var out resultResponse
	if err := c.do(ctx, http.MethodGet, "/result/"+sessionID, nil, &out); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrResultFetch, err)
	}

	return out.OutputFile, nil
}

func decodeJSON(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
