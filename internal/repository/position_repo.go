package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
)

// PositionRepository handles database operations for position changes
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository creates a new PositionRepository
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `isin, investor_id, date_today, date_yesterday,
	holding_today, holding_yesterday, price_today, price_yesterday,
	change_qty, abs_change_qty, change_percent,
	flag_new_source, flag_exit_source, rank, source_file`

func scanPosition(row interface{ Scan(...any) error }, p *models.PositionChange) error {
	return row.Scan(
		&p.ISIN, &p.InvestorID, &p.DateToday, &p.DateYesterday,
		&p.HoldingToday, &p.HoldingYesterday, &p.PriceToday, &p.PriceYesterday,
		&p.ChangeQty, &p.AbsChangeQty, &p.ChangePercent,
		&p.FlagNewSource, &p.FlagExitSource, &p.Rank, &p.SourceFile,
	)
}

// ReplacePositions writes facts keyed by (isin, investor_id, date_today).
// A fact already stored under the same key is replaced wholesale.
func (r *PositionRepository) ReplacePositions(ctx context.Context, tx database.DBTX, facts []models.PositionChange) error {
	if len(facts) == 0 {
		return nil
	}

	query := `INSERT OR REPLACE INTO position_change (` + positionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare position insert: %w", database.WrapBusy(err))
	}
	defer stmt.Close()

	for _, p := range facts {
		_, err := stmt.ExecContext(ctx,
			p.ISIN, p.InvestorID, p.DateToday, p.DateYesterday,
			p.HoldingToday, p.HoldingYesterday, p.PriceToday, p.PriceYesterday,
			p.ChangeQty, p.AbsChangeQty, p.ChangePercent,
			p.FlagNewSource, p.FlagExitSource, p.Rank, p.SourceFile,
		)
		if err != nil {
			return fmt.Errorf("failed to insert position %s/%s/%s: %w",
				p.ISIN, p.InvestorID, p.DateToday, database.WrapBusy(err))
		}
	}
	return nil
}

// GetByKey retrieves one fact, or nil when none is stored under key
func (r *PositionRepository) GetByKey(ctx context.Context, key models.PositionKey) (*models.PositionChange, error) {
	query := `SELECT ` + positionColumns + ` FROM position_change
		WHERE isin = ? AND investor_id = ? AND date_today = ?`
	p := &models.PositionChange{}
	err := scanPosition(r.db.QueryRowContext(ctx, query, key.ISIN, key.InvestorID, key.DateToday), p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", database.WrapBusy(err))
	}
	return p, nil
}

// Count returns the number of facts in the store
func (r *PositionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM position_change`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", database.WrapBusy(err))
	}
	return n, nil
}

// DateRange returns the earliest and latest date_today in the store. Both
// are empty when the store holds no facts.
func (r *PositionRepository) DateRange(ctx context.Context) (string, string, error) {
	var minDate, maxDate sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT MIN(date_today), MAX(date_today) FROM position_change`).Scan(&minDate, &maxDate)
	if err != nil {
		return "", "", fmt.Errorf("failed to read date range: %w", database.WrapBusy(err))
	}
	return minDate.String, maxDate.String, nil
}

// Each streams every fact in key order to fn, stopping at the first error
// fn returns.
func (r *PositionRepository) Each(ctx context.Context, fn func(models.PositionChange) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM position_change
		ORDER BY date_today, isin, investor_id`)
	if err != nil {
		return fmt.Errorf("failed to query positions: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	for rows.Next() {
		var p models.PositionChange
		if err := scanPosition(rows, &p); err != nil {
			return fmt.Errorf("failed to scan position: %w", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}
