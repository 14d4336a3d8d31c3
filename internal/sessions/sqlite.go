package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avetisov/docpilot/internal/dbx"
)

// Repository is the Upload Progress Store: durable, keyed persistence of
// in-flight multipart sessions surviving process restart.
type Repository interface {
	// Save upserts the session, overwriting prior state for the same id.
	Save(ctx context.Context, s *Session) error

	// Load returns the session, or nil when absent or expired. Expired
	// rows are evicted on the way out.
	Load(ctx context.Context, id string) (*Session, error)

	// ListPending returns all non-expired sessions, newest first. Finished
	// uploads are deleted on success, so every surviving row is resumable —
	// including one with every part uploaded whose completion call failed.
	ListPending(ctx context.Context) ([]*Session, error)

	// FindByIdentity returns the session matching (filename, size,
	// destination folder), or nil. Supports resume without requiring the
	// caller to remember a session id.
	FindByIdentity(ctx context.Context, fileName string, fileSize int64, folderID string) (*Session, error)

	// ClearExpired evicts every row past its expiry.
	ClearExpired(ctx context.Context) error

	// Delete removes the session unconditionally.
	Delete(ctx context.Context, id string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sessionColumns = `id, file_name, file_size, content_hash, content_type, folder_id,
	document_id, upload_id, storage_key, part_size, parts, progress, created_at, expires_at`

func (r *SQLiteRepository) Save(ctx context.Context, s *Session) error {
	parts, err := json.Marshal(s.Parts)
	if err != nil {
		return fmt.Errorf("encoding parts: %w", err)
	}

	// Sweep and upsert in one transaction so every write doubles as
	// garbage collection.
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := clearExpired(ctx, tx, time.Now().UTC()); err != nil {
			return err
		}

		query := `INSERT INTO upload_sessions (` + sessionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				file_name = excluded.file_name,
				file_size = excluded.file_size,
				content_hash = excluded.content_hash,
				content_type = excluded.content_type,
				folder_id = excluded.folder_id,
				document_id = excluded.document_id,
				upload_id = excluded.upload_id,
				storage_key = excluded.storage_key,
				part_size = excluded.part_size,
				parts = excluded.parts,
				progress = excluded.progress,
				created_at = excluded.created_at,
				expires_at = excluded.expires_at`
		_, err := tx.ExecContext(ctx, query,
			s.ID, s.FileName, s.FileSize, s.Hash, s.ContentType, s.FolderID,
			s.DocumentID, s.UploadID, s.StorageKey, s.PartSize, string(parts),
			s.Progress, s.CreatedAt.UnixNano(), s.ExpiresAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) Load(ctx context.Context, id string) (*Session, error) {
	if err := r.ClearExpired(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE id = ?`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]*Session, error) {
	if err := r.ClearExpired(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + ` FROM upload_sessions
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error selecting sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) FindByIdentity(ctx context.Context, fileName string, fileSize int64, folderID string) (*Session, error) {
	if err := r.ClearExpired(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionColumns + ` FROM upload_sessions
		WHERE file_name = ? AND file_size = ? AND folder_id = ?
		ORDER BY created_at DESC LIMIT 1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, fileName, fileSize, folderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ClearExpired(ctx context.Context) error {
	return clearExpired(ctx, r.db, time.Now().UTC())
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func clearExpired(ctx context.Context, db dbx.DBTX, now time.Time) error {
	_, err := db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to evict expired sessions: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	s := &Session{}
	var parts string
	var createdAt, expiresAt int64

	err := row.Scan(&s.ID, &s.FileName, &s.FileSize, &s.Hash, &s.ContentType,
		&s.FolderID, &s.DocumentID, &s.UploadID, &s.StorageKey, &s.PartSize,
		&parts, &s.Progress, &createdAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(parts), &s.Parts); err != nil {
		return nil, fmt.Errorf("decoding parts: %w", err)
	}
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	s.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return s, nil
}
