package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/epeers/topchanges/internal/database"
)

// PriceRepository derives prices from the recorded position changes. There
// is no price feed: every price comes from the extracts themselves.
type PriceRepository struct {
	db *sql.DB
}

// NewPriceRepository creates a new PriceRepository
func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// pricesCTE is the best recorded price per security and day. Bound to a
// date window ([from, to+1 day]) so the aggregate stays small.
const pricesCTE = `
	prices AS (
		SELECT isin, date(date_today) AS d, MAX(price_yesterday) AS p
		FROM position_change
		WHERE price_yesterday > 0
		  AND date_today >= ? AND date_today <= date(?, '+1 day')
		GROUP BY isin, date(date_today)
	)`

// tradePriceExpr is a row's own recorded price when positive, otherwise the
// security's best recorded price on the next calendar day. pc is the
// position_change alias and p2 the next-day join on prices.
const tradePriceExpr = `CASE WHEN pc.price_yesterday > 0 THEN pc.price_yesterday ELSE p2.p END`

// TradeFilter narrows the trades query. Empty slices and strings mean no
// restriction on that dimension; From and To are inclusive ISO dates.
type TradeFilter struct {
	From         string
	To           string
	ISINs        []string
	InvestorIDs  []string
	InvestorType string
	Countries    []string
}

// TradeRow is one position change joined to its resolved trade price and to
// the dimension attributes analyses report. TradePrice is nil when neither
// the row nor the next day carries a positive price.
type TradeRow struct {
	Date         string
	ISIN         string
	InvestorID   string
	ChangeQty    float64
	TradePrice   *float64
	Ticker       string
	ISINName     string
	FirstName    string
	LastName     string
	InvestorType string
	CountryCode  string
}

// Trades returns every position change in the filter window with its trade
// price, oldest first. Rows without a price are included so callers can
// account for what they exclude.
func (r *PriceRepository) Trades(ctx context.Context, f TradeFilter) ([]TradeRow, error) {
	var (
		where []string
		args  = []any{f.From, f.To}
	)
	where = append(where, "pc.date_today BETWEEN ? AND ?")
	args = append(args, f.From, f.To)

	if len(f.ISINs) > 0 {
		where = append(where, "pc.isin IN ("+placeholders(len(f.ISINs))+")")
		args = append(args, stringArgs(f.ISINs)...)
	}
	if len(f.InvestorIDs) > 0 {
		where = append(where, "pc.investor_id IN ("+placeholders(len(f.InvestorIDs))+")")
		args = append(args, stringArgs(f.InvestorIDs)...)
	}
	if f.InvestorType != "" {
		where = append(where, "i.investor_type = ?")
		args = append(args, f.InvestorType)
	}
	if len(f.Countries) > 0 {
		where = append(where, "i.country_code IN ("+placeholders(len(f.Countries))+")")
		args = append(args, stringArgs(f.Countries)...)
	}

	query := `WITH ` + pricesCTE + `
		SELECT pc.date_today, pc.isin, pc.investor_id, COALESCE(pc.change_qty, 0),
			` + tradePriceExpr + `,
			COALESCE(s.ticker, ''), COALESCE(s.isin_name, ''),
			COALESCE(i.first_name, ''), COALESCE(i.last_name, ''),
			COALESCE(i.investor_type, ''), COALESCE(i.country_code, '')
		FROM position_change pc
		LEFT JOIN prices p2 ON p2.isin = pc.isin AND p2.d = date(pc.date_today, '+1 day')
		LEFT JOIN security s ON s.isin = pc.isin
		LEFT JOIN investor i ON i.investor_id = pc.investor_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY pc.date_today, pc.isin, pc.investor_id
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", database.WrapBusy(err))
	}
	defer rows.Close()

	var result []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(
			&t.Date, &t.ISIN, &t.InvestorID, &t.ChangeQty, &t.TradePrice,
			&t.Ticker, &t.ISINName,
			&t.FirstName, &t.LastName, &t.InvestorType, &t.CountryCode,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ErrPositionNotFound means no fact is stored under an (isin, investor, date) key
var ErrPositionNotFound = errors.New("position change not found")

// ResolveTradePrice returns the trade price of one fact, resolved exactly as
// Trades resolves it. Nil means neither the row nor the next day carries a
// positive price.
func (r *PriceRepository) ResolveTradePrice(ctx context.Context, isin, investorID, date string) (*float64, error) {
	query := `WITH ` + pricesCTE + `
		SELECT ` + tradePriceExpr + `
		FROM position_change pc
		LEFT JOIN prices p2 ON p2.isin = pc.isin AND p2.d = date(pc.date_today, '+1 day')
		WHERE pc.isin = ? AND pc.investor_id = ? AND date(pc.date_today) = date(?)
	`
	var price sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, date, date, isin, investorID, date).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s %s", ErrPositionNotFound, isin, investorID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trade price for %s on %s: %w", isin, date, database.WrapBusy(err))
	}
	if !price.Valid {
		return nil, nil
	}
	return &price.Float64, nil
}

// BackfillLastPrice sets every security's last_price to the largest positive
// effective price on the latest day it has one. A row's effective price is
// price_today when positive, else price_yesterday when positive. Securities
// with no positive price are set to NULL, overwriting any per-file estimate.
// A non-empty since limits the scan to facts on or after that date.
func (r *PriceRepository) BackfillLastPrice(ctx context.Context, tx database.DBTX, since string) (int64, error) {
	query := `
		WITH candidates AS (
			SELECT isin, date_today,
				CASE
					WHEN price_today > 0 THEN price_today
					WHEN price_yesterday > 0 THEN price_yesterday
				END AS eff_price
			FROM position_change
			WHERE date_today >= ?
		),
		last_dates AS (
			SELECT isin, MAX(date_today) AS last_date
			FROM candidates
			WHERE eff_price > 0
			GROUP BY isin
		),
		last_prices AS (
			SELECT c.isin, MAX(c.eff_price) AS last_price
			FROM candidates c
			JOIN last_dates ld ON ld.isin = c.isin AND ld.last_date = c.date_today
			WHERE c.eff_price > 0
			GROUP BY c.isin
		)
		UPDATE security
		SET last_price = (SELECT lp.last_price FROM last_prices lp WHERE lp.isin = security.isin)
	`
	res, err := tx.ExecContext(ctx, query, since)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill last prices: %w", database.WrapBusy(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read backfill row count: %w", err)
	}
	return n, nil
}
