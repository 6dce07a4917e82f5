// package formatter renders and exports processed guideline payloads (YAML or JSON)
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the structure of a result payload.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	}
	return "unknown"
}

// Extension returns the file extension for the format, ".txt" for unknown.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	}
	return ".txt"
}

// Detect classifies a result payload. JSON wins over YAML since any JSON
// document is also valid YAML.
func Detect(payload string) Format {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return FormatUnknown
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return FormatJSON
	}
	if err := yaml.Unmarshal([]byte(trimmed), &v); err == nil {
		if _, ok := v.(string); ok {
			// A bare scalar is not structured data.
			return FormatUnknown
		}
		return FormatYAML
	}

	return FormatUnknown
}

// Pretty re-renders a structured payload as indented YAML for display.
// Unstructured payloads are returned unchanged.
func Pretty(payload string) (string, error) {
	format := Detect(payload)
	if format == FormatUnknown {
		return payload, nil
	}

	var v any
	if err := yaml.Unmarshal([]byte(payload), &v); err != nil {
		return "", fmt.Errorf("failed to parse %s payload: %w", format, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to render payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render payload: %w", err)
	}

	return buf.String(), nil
}

// WriteResult saves a result payload under dir, deriving the filename from the
// guideline label and the detected format. Returns the written path.
func WriteResult(payload, dir, label string) (string, error) {
	if label == "" {
		label = "result"
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	name := Slugify(label) + Detect(payload).Extension()
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}

	return path, nil
}

// Slugify converts a label into a safe lowercase filename stem.
func Slugify(label string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
