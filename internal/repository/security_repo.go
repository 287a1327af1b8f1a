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

var ErrSecurityNotFound = errors.New("security not found")

// MinSearchLength is the shortest query the pickers answer.
const MinSearchLength = 2

const securityColumns = `isin, ticker, isin_name, paper_group, issuer_orgnr, issuer_name,
	registered_country, market, sector, gics_sector, ask_paper, issued_shares, last_price`

// SecurityRepository handles database operations for securities
type SecurityRepository struct {
	db *sql.DB
}

// NewSecurityRepository creates a new SecurityRepository
func NewSecurityRepository(db *sql.DB) *SecurityRepository {
	return &SecurityRepository{db: db}
}

func scanSecurity(row interface{ Scan(...any) error }, s *models.Security) error {
	return row.Scan(
		&s.ISIN, &s.Ticker, &s.ISINName, &s.PaperGroup, &s.IssuerOrgnr, &s.IssuerName,
		&s.RegisteredCountry, &s.Market, &s.Sector, &s.GICSSector, &s.AskPaper, &s.IssuedShares, &s.LastPrice,
	)
}

// UpsertSecurities inserts new securities and merges attributes into existing
// ones with the same never-erase rule as investors. last_price is owned by
// the backfill and is not touched here.
func (r *SecurityRepository) UpsertSecurities(ctx context.Context, tx database.DBTX, securities []models.Security) error {
	if len(securities) == 0 {
		return nil
	}

	query := `
		INSERT INTO security (isin, ticker, isin_name, paper_group, issuer_orgnr, issuer_name,
			registered_country, market, sector, gics_sector, ask_paper, issued_shares)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(isin) DO UPDATE SET
			ticker             = COALESCE(excluded.ticker,             security.ticker),
			isin_name          = COALESCE(excluded.isin_name,          security.isin_name),
			paper_group        = COALESCE(excluded.paper_group,        security.paper_group),
			issuer_orgnr       = COALESCE(excluded.issuer_orgnr,       security.issuer_orgnr),
			issuer_name        = COALESCE(excluded.issuer_name,        security.issuer_name),
			registered_country = COALESCE(excluded.registered_country, security.registered_country),
			market             = COALESCE(excluded.market,             security.market),
			sector             = COALESCE(excluded.sector,             security.sector),
			gics_sector        = COALESCE(excluded.gics_sector,        security.gics_sector),
			ask_paper          = COALESCE(excluded.ask_paper,          security.ask_paper),
			issued_shares      = COALESCE(excluded.issued_shares,      security.issued_shares)
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare security upsert: %w", database.WrapBusy(err))
	}
	defer stmt.Close()

	for _, s := range securities {
		_, err := stmt.ExecContext(ctx,
			s.ISIN, s.Ticker, s.ISINName, s.PaperGroup, s.IssuerOrgnr, s.IssuerName,
			s.RegisteredCountry, s.Market, s.Sector, s.GICSSector, s.AskPaper, s.IssuedShares,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert security %s: %w", s.ISIN, database.WrapBusy(err))
		}
	}
	return nil
}

// UpdateLastPriceHints writes a per-file price estimate into last_price.
// The authoritative value comes from the backfill at the end of a run.
func (r *SecurityRepository) UpdateLastPriceHints(ctx context.Context, tx database.DBTX, hints map[string]float64) error {
	if len(hints) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `UPDATE security SET last_price = ? WHERE isin = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare last price update: %w", database.WrapBusy(err))
	}
	defer stmt.Close()

	for isin, price := range hints {
		if _, err := stmt.ExecContext(ctx, price, isin); err != nil {
			return fmt.Errorf("failed to update last price for %s: %w", isin, database.WrapBusy(err))
		}
	}
	return nil
}

// GetByISIN retrieves a security by ISIN
func (r *SecurityRepository) GetByISIN(ctx context.Context, isin string) (*models.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM security WHERE isin = ?`
	s := &models.Security{}
	err := scanSecurity(r.db.QueryRowContext(ctx, query, isin), s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSecurityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security: %w", database.WrapBusy(err))
	}
	return s, nil
}

// GetAll returns every security, by ISIN
func (r *SecurityRepository) GetAll(ctx context.Context) ([]models.Security, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+securityColumns+` FROM security ORDER BY isin`)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	var result []models.Security
	for rows.Next() {
		var s models.Security
		if err := scanSecurity(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Search suggests securities whose ticker, name or ISIN contains q. Prefix
// matches sort first. Queries shorter than MinSearchLength return nothing.
func (r *SecurityRepository) Search(ctx context.Context, q string, limit int) ([]models.SecuritySuggestion, error) {
	q = strings.TrimSpace(q)
	if len(q) < MinSearchLength {
		return []models.SecuritySuggestion{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT isin, COALESCE(ticker, ''), COALESCE(isin_name, '')
		FROM security
		WHERE ticker LIKE ?1 OR isin_name LIKE ?1 OR isin LIKE ?1
		ORDER BY
			CASE
				WHEN ticker LIKE ?2 THEN 0
				WHEN isin_name LIKE ?2 THEN 1
				WHEN isin LIKE ?2 THEN 2
				ELSE 3
			END,
			ticker, isin_name
		LIMIT ?3
	`
	rows, err := r.db.QueryContext(ctx, query, "%"+q+"%", q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search securities: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	result := []models.SecuritySuggestion{}
	for rows.Next() {
		var s models.SecuritySuggestion
		if err := rows.Scan(&s.ISIN, &s.Ticker, &s.ISINName); err != nil {
			return nil, fmt.Errorf("failed to scan security suggestion: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// LastPrices returns every positive last price keyed by ISIN
func (r *SecurityRepository) LastPrices(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT isin, last_price FROM security WHERE last_price > 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query last prices: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	result := make(map[string]float64)
	for rows.Next() {
		var isin string
		var p float64
		if err := rows.Scan(&isin, &p); err != nil {
			return nil, fmt.Errorf("failed to scan last price: %w", err)
		}
		result[isin] = p
	}
	return result, rows.Err()
}

// Count returns the number of securities in the store
func (r *SecurityRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count securities: %w", database.WrapBusy(err))
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
