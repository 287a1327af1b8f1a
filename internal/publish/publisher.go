// Package publish mirrors the canonical store into Postgres for consumers
// that read SQL over the network.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
)

// ChunkSize is how many statements one pgx batch carries.
const ChunkSize = 5000

const mirrorDDL = `
CREATE TABLE IF NOT EXISTS investor (
	investor_id   TEXT PRIMARY KEY,
	investor_type TEXT,
	first_name    TEXT,
	last_name     TEXT,
	country_code  TEXT,
	raw_id        TEXT
);
CREATE TABLE IF NOT EXISTS security (
	isin               TEXT PRIMARY KEY,
	ticker             TEXT,
	isin_name          TEXT,
	paper_group        TEXT,
	issuer_orgnr       TEXT,
	issuer_name        TEXT,
	registered_country TEXT,
	market             TEXT,
	sector             TEXT,
	gics_sector        TEXT,
	ask_paper          TEXT,
	issued_shares      DOUBLE PRECISION,
	last_price         DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS position_change (
	isin              TEXT NOT NULL,
	investor_id       TEXT NOT NULL,
	date_today        DATE NOT NULL,
	date_yesterday    DATE,
	holding_today     DOUBLE PRECISION,
	holding_yesterday DOUBLE PRECISION,
	price_today       DOUBLE PRECISION,
	price_yesterday   DOUBLE PRECISION,
	change_qty        DOUBLE PRECISION,
	abs_change_qty    DOUBLE PRECISION,
	change_percent    DOUBLE PRECISION,
	flag_new_source   BIGINT,
	flag_exit_source  BIGINT,
	rank              BIGINT,
	source_file       TEXT,
	PRIMARY KEY (isin, investor_id, date_today)
);
CREATE INDEX IF NOT EXISTS idx_pc_date ON position_change (date_today);
CREATE INDEX IF NOT EXISTS idx_pc_investor ON position_change (investor_id);
CREATE TABLE IF NOT EXISTS ingested_files (
	filename     TEXT PRIMARY KEY,
	mtime        DOUBLE PRECISION,
	ingested_at  TEXT,
	content_hash TEXT
);`

const (
	upsertInvestor = `
		INSERT INTO investor (investor_id, investor_type, first_name, last_name, country_code, raw_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (investor_id) DO UPDATE SET
			investor_type = EXCLUDED.investor_type,
			first_name    = EXCLUDED.first_name,
			last_name     = EXCLUDED.last_name,
			country_code  = EXCLUDED.country_code,
			raw_id        = EXCLUDED.raw_id`

	upsertSecurity = `
		INSERT INTO security (isin, ticker, isin_name, paper_group, issuer_orgnr, issuer_name,
			registered_country, market, sector, gics_sector, ask_paper, issued_shares, last_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (isin) DO UPDATE SET
			ticker             = EXCLUDED.ticker,
			isin_name          = EXCLUDED.isin_name,
			paper_group        = EXCLUDED.paper_group,
			issuer_orgnr       = EXCLUDED.issuer_orgnr,
			issuer_name        = EXCLUDED.issuer_name,
			registered_country = EXCLUDED.registered_country,
			market             = EXCLUDED.market,
			sector             = EXCLUDED.sector,
			gics_sector        = EXCLUDED.gics_sector,
			ask_paper          = EXCLUDED.ask_paper,
			issued_shares      = EXCLUDED.issued_shares,
			last_price         = EXCLUDED.last_price`

	upsertPosition = `
		INSERT INTO position_change (isin, investor_id, date_today, date_yesterday,
			holding_today, holding_yesterday, price_today, price_yesterday,
			change_qty, abs_change_qty, change_percent,
			flag_new_source, flag_exit_source, rank, source_file)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (isin, investor_id, date_today) DO UPDATE SET
			date_yesterday    = EXCLUDED.date_yesterday,
			holding_today     = EXCLUDED.holding_today,
			holding_yesterday = EXCLUDED.holding_yesterday,
			price_today       = EXCLUDED.price_today,
			price_yesterday   = EXCLUDED.price_yesterday,
			change_qty        = EXCLUDED.change_qty,
			abs_change_qty    = EXCLUDED.abs_change_qty,
			change_percent    = EXCLUDED.change_percent,
			flag_new_source   = EXCLUDED.flag_new_source,
			flag_exit_source  = EXCLUDED.flag_exit_source,
			rank              = EXCLUDED.rank,
			source_file       = EXCLUDED.source_file`

	upsertFile = `
		INSERT INTO ingested_files (filename, mtime, ingested_at, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (filename) DO UPDATE SET
			mtime        = EXCLUDED.mtime,
			ingested_at  = EXCLUDED.ingested_at,
			content_hash = EXCLUDED.content_hash`
)

// Result counts the rows a publish sent
type Result struct {
	Investors  int           `json:"investors"`
	Securities int           `json:"securities"`
	Facts      int           `json:"facts"`
	Files      int           `json:"files"`
	Duration   time.Duration `json:"duration"`
}

// Publisher upserts store contents into a Postgres database
type Publisher struct {
	pool *pgxpool.Pool
}

// New connects to the Postgres database at url
func New(ctx context.Context, url string) (*Publisher, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Publisher{pool: pool}, nil
}

// Close closes the connection pool
func (p *Publisher) Close() {
	p.pool.Close()
}

// batcher queues statements and sends them in chunks of ChunkSize
type batcher struct {
	ctx   context.Context
	tx    pgx.Tx
	batch *pgx.Batch
	what  string
	sent  int
}

func (b *batcher) queue(query string, args ...any) error {
	b.batch.Queue(query, args...)
	if b.batch.Len() >= ChunkSize {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	n := b.batch.Len()
	if n == 0 {
		return nil
	}
	br := b.tx.SendBatch(b.ctx, b.batch)
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to upsert %s row %d: %w", b.what, b.sent+i+1, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close %s batch: %w", b.what, err)
	}
	b.sent += n
	b.batch = &pgx.Batch{}
	return nil
}

func (p *Publisher) newBatcher(ctx context.Context, tx pgx.Tx, what string) *batcher {
	return &batcher{ctx: ctx, tx: tx, batch: &pgx.Batch{}, what: what}
}

// Publish creates the mirror tables when absent and upserts every investor,
// security, fact and ledger entry of store in one transaction. Rows removed
// from the store are not removed from the mirror.
func (p *Publisher) Publish(ctx context.Context, store *database.DB) (*Result, error) {
	start := time.Now()
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin publish: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mirrorDDL); err != nil {
		return nil, fmt.Errorf("failed to create mirror tables: %w", err)
	}

	result := &Result{}

	investors, err := repository.NewInvestorRepository(store.Conn).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	b := p.newBatcher(ctx, tx, "investor")
	for _, inv := range investors {
		if err := b.queue(upsertInvestor, inv.InvestorID, inv.InvestorType, inv.FirstName, inv.LastName, inv.CountryCode, inv.RawID); err != nil {
			return nil, err
		}
	}
	if err := b.flush(); err != nil {
		return nil, err
	}
	result.Investors = b.sent

	securities, err := repository.NewSecurityRepository(store.Conn).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	b = p.newBatcher(ctx, tx, "security")
	for _, s := range securities {
		err := b.queue(upsertSecurity, s.ISIN, s.Ticker, s.ISINName, s.PaperGroup, s.IssuerOrgnr, s.IssuerName,
			s.RegisteredCountry, s.Market, s.Sector, s.GICSSector, s.AskPaper, s.IssuedShares, s.LastPrice)
		if err != nil {
			return nil, err
		}
	}
	if err := b.flush(); err != nil {
		return nil, err
	}
	result.Securities = b.sent

	b = p.newBatcher(ctx, tx, "position_change")
	err = repository.NewPositionRepository(store.Conn).Each(ctx, func(pc models.PositionChange) error {
		return b.queue(upsertPosition,
			pc.ISIN, pc.InvestorID, pc.DateToday, pc.DateYesterday,
			pc.HoldingToday, pc.HoldingYesterday, pc.PriceToday, pc.PriceYesterday,
			pc.ChangeQty, pc.AbsChangeQty, pc.ChangePercent,
			pc.FlagNewSource, pc.FlagExitSource, pc.Rank, pc.SourceFile)
	})
	if err != nil {
		return nil, err
	}
	if err := b.flush(); err != nil {
		return nil, err
	}
	result.Facts = b.sent

	files, err := repository.NewLedgerRepository(store.Conn).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	b = p.newBatcher(ctx, tx, "ingested_files")
	for _, f := range files {
		if err := b.queue(upsertFile, f.Filename, f.MTime, f.IngestedAt, f.ContentHash); err != nil {
			return nil, err
		}
	}
	if err := b.flush(); err != nil {
		return nil, err
	}
	result.Files = b.sent

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit publish: %w", err)
	}
	result.Duration = time.Since(start)
	log.Infof("published %d investors, %d securities, %d facts, %d ledger entries in %s",
		result.Investors, result.Securities, result.Facts, result.Files, result.Duration)
	return result, nil
}
