package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wsx4588588/canlog-frontend/internal/models"
)

//go:embed schema.sql
var schemaFS embed.FS

// Fixed-width so that text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB is the upload journal: one row per image submitted for analysis.
// Canned-food records themselves live in the backend and are never stored here.
type DB interface {
	SaveScan(ctx context.Context, scan *models.UploadScan) error
	UpdateScanStatus(ctx context.Context, id, status, errMsg string, resultID int64) error
	GetScan(ctx context.Context, id string) (*models.UploadScan, error)
	GetRecentScans(ctx context.Context, limit int) ([]*models.UploadScan, error)
	Close() error
}

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDB opens (and if needed creates) the journal at dbPath
func NewSQLiteDB(dbPath string, logger *zap.Logger) (*SQLiteDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// WAL lets the journal be read while an upload is being recorded
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	logger.Named("database").Info("Upload journal ready", zap.String("path", dbPath))
	return &SQLiteDB{db: db, logger: logger.Named("database")}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// SaveScan inserts or replaces a journal entry
func (s *SQLiteDB) SaveScan(ctx context.Context, scan *models.UploadScan) error {
	query := `
		INSERT INTO upload_scans (
			id, file_name, content_type, size, status, error, result_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			content_type = excluded.content_type,
			size = excluded.size,
			status = excluded.status,
			error = excluded.error,
			result_id = excluded.result_id,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		scan.ID, scan.FileName, scan.ContentType, scan.Size,
		scan.Status, scan.Error, scan.ResultID,
		formatTime(scan.CreatedAt), formatTime(scan.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error saving scan: %w", err)
	}
	return nil
}

// UpdateScanStatus moves a scan to a new status
func (s *SQLiteDB) UpdateScanStatus(ctx context.Context, id, status, errMsg string, resultID int64) error {
	query := `
		UPDATE upload_scans
		SET status = ?, error = ?, result_id = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, status, errMsg, resultID, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("error updating scan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("scan %s not found", id)
	}
	return nil
}

// GetScan returns a journal entry, or nil when there is none
func (s *SQLiteDB) GetScan(ctx context.Context, id string) (*models.UploadScan, error) {
	query := `
		SELECT id, file_name, content_type, size, status, error, result_id, created_at, updated_at
		FROM upload_scans WHERE id = ?
	`

	scan, err := scanRow(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return scan, nil
}

// GetRecentScans returns the most recent journal entries, newest first
func (s *SQLiteDB) GetRecentScans(ctx context.Context, limit int) ([]*models.UploadScan, error) {
	query := `
		SELECT id, file_name, content_type, size, status, error, result_id, created_at, updated_at
		FROM upload_scans
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.UploadScan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, scan)
	}
	return results, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*models.UploadScan, error) {
	var scan models.UploadScan
	var createdAt, updatedAt string

	err := row.Scan(
		&scan.ID, &scan.FileName, &scan.ContentType, &scan.Size,
		&scan.Status, &scan.Error, &scan.ResultID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	scan.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	scan.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &scan, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
