package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
)

// LedgerRepository records which source files have been loaded
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetAll returns every ledger entry keyed by filename
func (r *LedgerRepository) GetAll(ctx context.Context) (map[string]models.IngestedFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT filename, mtime, ingested_at, content_hash
		FROM ingested_files
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingested files: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	result := make(map[string]models.IngestedFile)
	for rows.Next() {
		var f models.IngestedFile
		if err := rows.Scan(&f.Filename, &f.MTime, &f.IngestedAt, &f.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan ingested file: %w", err)
		}
		result[f.Filename] = f
	}
	return result, rows.Err()
}

// List returns ledger entries, most recently ingested first
func (r *LedgerRepository) List(ctx context.Context, limit int) ([]models.IngestedFile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT filename, mtime, ingested_at, content_hash
		FROM ingested_files
		ORDER BY ingested_at DESC, filename DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingested files: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	result := []models.IngestedFile{}
	for rows.Next() {
		var f models.IngestedFile
		if err := rows.Scan(&f.Filename, &f.MTime, &f.IngestedAt, &f.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan ingested file: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// Get returns the ledger entry for filename, or nil if it was never ingested.
// q lets a writer look the entry up inside its own transaction.
func (r *LedgerRepository) Get(ctx context.Context, q database.DBTX, filename string) (*models.IngestedFile, error) {
	f := &models.IngestedFile{}
	err := q.QueryRowContext(ctx, `
		SELECT filename, mtime, ingested_at, content_hash
		FROM ingested_files
		WHERE filename = ?
	`, filename).Scan(&f.Filename, &f.MTime, &f.IngestedAt, &f.ContentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingested file: %w", database.WrapBusy(err))
	}
	return f, nil
}

// MarkIngested records or refreshes a file's ledger entry
func (r *LedgerRepository) MarkIngested(ctx context.Context, tx database.DBTX, f models.IngestedFile) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO ingested_files (filename, mtime, ingested_at, content_hash)
		VALUES (?, ?, ?, ?)
	`, f.Filename, f.MTime, f.IngestedAt, f.ContentHash)
	if err != nil {
		return fmt.Errorf("failed to mark %s ingested: %w", f.Filename, database.WrapBusy(err))
	}
	return nil
}
