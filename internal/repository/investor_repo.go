package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
)

var ErrInvestorNotFound = errors.New("investor not found")

// InvestorRepository handles database operations for investors
type InvestorRepository struct {
	db *sql.DB
}

// NewInvestorRepository creates a new InvestorRepository
func NewInvestorRepository(db *sql.DB) *InvestorRepository {
	return &InvestorRepository{db: db}
}

// UpsertInvestors inserts new investors and merges attributes into existing
// ones. A NULL attribute in the incoming row never erases a stored value.
func (r *InvestorRepository) UpsertInvestors(ctx context.Context, tx database.DBTX, investors []models.Investor) error {
	if len(investors) == 0 {
		return nil
	}

	query := `
		INSERT INTO investor (investor_id, investor_type, first_name, last_name, country_code, raw_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(investor_id) DO UPDATE SET
			investor_type = COALESCE(excluded.investor_type, investor.investor_type),
			first_name    = COALESCE(excluded.first_name,    investor.first_name),
			last_name     = COALESCE(excluded.last_name,     investor.last_name),
			country_code  = COALESCE(excluded.country_code,  investor.country_code),
			raw_id        = COALESCE(excluded.raw_id,        investor.raw_id)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare investor upsert: %w", database.WrapBusy(err))
	}
	defer stmt.Close()

	for _, inv := range investors {
		if _, err := stmt.ExecContext(ctx, inv.InvestorID, inv.InvestorType, inv.FirstName, inv.LastName, inv.CountryCode, inv.RawID); err != nil {
			return fmt.Errorf("failed to upsert investor %s: %w", inv.InvestorID, database.WrapBusy(err))
		}
	}
	return nil
}

// GetByID retrieves an investor by id
func (r *InvestorRepository) GetByID(ctx context.Context, id string) (*models.Investor, error) {
	query := `
		SELECT investor_id, investor_type, first_name, last_name, country_code, raw_id
		FROM investor
		WHERE investor_id = ?
	`
	inv := &models.Investor{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&inv.InvestorID, &inv.InvestorType, &inv.FirstName, &inv.LastName, &inv.CountryCode, &inv.RawID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvestorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investor: %w", database.WrapBusy(err))
	}
	return inv, nil
}

// GetAll returns every investor, by id
func (r *InvestorRepository) GetAll(ctx context.Context) ([]models.Investor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT investor_id, investor_type, first_name, last_name, country_code, raw_id
		FROM investor
		ORDER BY investor_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query investors: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	var result []models.Investor
	for rows.Next() {
		var inv models.Investor
		if err := rows.Scan(&inv.InvestorID, &inv.InvestorType, &inv.FirstName, &inv.LastName, &inv.CountryCode, &inv.RawID); err != nil {
			return nil, fmt.Errorf("failed to scan investor: %w", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// Count returns the number of investors in the store
func (r *InvestorRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM investor`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count investors: %w", database.WrapBusy(err))
	}
	return n, nil
}

// Match finds investors whose id or name contains pattern, case-insensitively.
// Names are tried as "first last" and "last first" so a watchlist can list
// owners either way round.
func (r *InvestorRepository) Match(ctx context.Context, pattern string, limit int) ([]models.InvestorMatch, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT investor_id, COALESCE(investor_type, ''), COALESCE(first_name, ''), COALESCE(last_name, '')
		FROM investor
		WHERE investor_id LIKE ?1
		   OR first_name LIKE ?1
		   OR last_name LIKE ?1
		   OR (COALESCE(first_name, '') || ' ' || COALESCE(last_name, '')) LIKE ?1
		   OR (COALESCE(last_name, '') || ' ' || COALESCE(first_name, '')) LIKE ?1
		ORDER BY last_name, first_name, investor_id
		LIMIT ?2
	`
	rows, err := r.db.QueryContext(ctx, query, "%"+pattern+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to match investors: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	var result []models.InvestorMatch
	for rows.Next() {
		var m models.InvestorMatch
		var first, last string
		if err := rows.Scan(&m.InvestorID, &m.InvestorType, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan investor match: %w", err)
		}
		m.Name = models.DisplayName(first, last, m.InvestorID)
		m.MatchedPattern = pattern
		result = append(result, m)
	}
	return result, rows.Err()
}

// Search is the investor picker: id or name containing q, at most limit hits.
func (r *InvestorRepository) Search(ctx context.Context, q string, limit int) ([]models.InvestorMatch, error) {
	if len(strings.TrimSpace(q)) < MinSearchLength {
		return []models.InvestorMatch{}, nil
	}
	return r.Match(ctx, q, limit)
}
