// Package store persists client session state: the current token pair and the upload history.
//
// The token store is the process-wide credential state described in the auth
// contract: every component reads it through the API client's attach-credential
// step, and only the client's refresh path and the logout command write it.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/gdx/internal/shared"
	"golang.org/x/oauth2"
)

// TokenStore holds the access/refresh token pair for the current session.
type TokenStore interface {
	// Token returns the stored token pair, or [shared.ErrNotAuthenticated] when none is stored.
	Token() (*oauth2.Token, error)

	// Save replaces the stored token pair.
	Save(tok *oauth2.Token) error

	// Clear removes the stored token pair. Clearing an empty store is not an error.
	Clear() error
}

// SQLiteTokenStore persists the token pair in the credentials table (single row).
type SQLiteTokenStore struct {
	db *sql.DB
}

// NewSQLiteTokenStore creates a token store backed by the given database connection.
func NewSQLiteTokenStore(db *sql.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db}
}

func (s *SQLiteTokenStore) Token() (*oauth2.Token, error) {
	var access, refresh string

	query := `SELECT access_token, refresh_token FROM credentials WHERE id = 1`
	err := s.db.QueryRow(query).Scan(&access, &refresh)
	if err == sql.ErrNoRows {
		return nil, shared.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}

	return &oauth2.Token{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *SQLiteTokenStore) Save(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrMissingCredentials)
	}

	query := `
		INSERT INTO credentials (id, access_token, refresh_token, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token, updated_at = excluded.updated_at
	`

	if _, err := s.db.Exec(query, tok.AccessToken, tok.RefreshToken, time.Now()); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

func (s *SQLiteTokenStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// MemoryTokenStore is an in-memory [TokenStore] for tests and ephemeral sessions.
type MemoryTokenStore struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return nil, shared.ErrNotAuthenticated
	}
	copied := *s.tok
	return &copied, nil
}

func (s *MemoryTokenStore) Save(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrMissingCredentials)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *tok
	s.tok = &copied
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}
