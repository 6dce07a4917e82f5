package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/gdx/internal/shared"
)

// Upload records one ingestion attempt in the uploads table.
type Upload struct {
	ID        string
	SessionID string
	Label     string
	FileName  string
	Status    string
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UploadRepository persists [Upload] rows.
type UploadRepository struct {
	db *sql.DB
}

// NewUploadRepository creates a new [UploadRepository] with the given database connection
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a new upload record with a generated ID.
func (r *UploadRepository) Create(u *Upload) error {
	if u.Label == "" || u.FileName == "" {
		return fmt.Errorf("%w: label and file name are required", shared.ErrInvalidInput)
	}

	u.ID = shared.GenerateID()
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
		INSERT INTO uploads (id, session_id, label, file_name, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, u.ID, u.SessionID, u.Label, u.FileName, u.Status, u.Message, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}

	return nil
}

// Update modifies the session id, status, and message of an existing record.
func (r *UploadRepository) Update(u *Upload) error {
	now := time.Now()
	u.UpdatedAt = now

	query := `
		UPDATE uploads
		SET session_id = ?, status = ?, message = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, u.SessionID, u.Status, u.Message, now, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("upload not found: %s", u.ID)
	}

	return nil
}

// List retrieves the most recent uploads, newest first. A limit <= 0 returns all rows.
func (r *UploadRepository) List(limit int) ([]Upload, error) {
	query := `
		SELECT id, session_id, label, file_name, status, message, created_at, updated_at
		FROM uploads
		ORDER BY created_at DESC
	`

	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		var sessionID, message sql.NullString

		err := rows.Scan(&u.ID, &sessionID, &u.Label, &u.FileName, &u.Status, &message, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}

		u.SessionID = sessionID.String
		u.Message = message.String
		uploads = append(uploads, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return uploads, nil
}
