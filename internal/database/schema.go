package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ingested_files (
	filename TEXT PRIMARY KEY,
	mtime REAL NOT NULL,
	ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS investor (
	investor_id TEXT PRIMARY KEY,
	investor_type TEXT,
	first_name TEXT,
	last_name TEXT,
	country_code TEXT,
	raw_id TEXT
);

CREATE TABLE IF NOT EXISTS security (
	isin TEXT PRIMARY KEY,
	ticker TEXT,
	isin_name TEXT,
	paper_group TEXT,
	issuer_orgnr TEXT,
	issuer_name TEXT,
	registered_country TEXT,
	market TEXT,
	sector TEXT,
	gics_sector TEXT,
	ask_paper TEXT,
	issued_shares REAL,
	last_price REAL
);

CREATE TABLE IF NOT EXISTS position_change (
	isin TEXT NOT NULL,
	investor_id TEXT NOT NULL,
	date_today TEXT NOT NULL,
	date_yesterday TEXT,
	holding_today REAL,
	holding_yesterday REAL,
	price_today REAL,
	price_yesterday REAL,
	change_qty REAL,
	abs_change_qty REAL,
	change_percent REAL,
	flag_new_source INTEGER,
	flag_exit_source INTEGER,
	rank INTEGER,
	source_file TEXT NOT NULL,

	PRIMARY KEY (isin, investor_id, date_today),
	FOREIGN KEY (isin) REFERENCES security(isin),
	FOREIGN KEY (investor_id) REFERENCES investor(investor_id)
);

CREATE INDEX IF NOT EXISTS idx_position_date_today ON position_change(date_today);
CREATE INDEX IF NOT EXISTS idx_position_investor ON position_change(investor_id);
CREATE INDEX IF NOT EXISTS idx_position_isin ON position_change(isin);
`

// content_hash is only populated when content-hash change detection is on.
const ledgerHashColumn = "content_hash"

// Columns added after the first stores were created in the field.
var additiveColumns = []struct {
	table  string
	column string
	ddl    string
}{
	{"security", "last_price", "ALTER TABLE security ADD COLUMN last_price REAL"},
	{"position_change", "price_today", "ALTER TABLE position_change ADD COLUMN price_today REAL"},
	{"ingested_files", ledgerHashColumn, "ALTER TABLE ingested_files ADD COLUMN content_hash TEXT"},
}

const perfIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_pc_isin_date_today ON position_change(isin, date_today);
CREATE INDEX IF NOT EXISTS idx_pc_isin_price_yest ON position_change(isin, price_yesterday);
CREATE INDEX IF NOT EXISTS idx_pc_isin_price_today ON position_change(isin, price_today);
CREATE INDEX IF NOT EXISTS idx_pc_date_isin ON position_change(date_today, isin);
CREATE INDEX IF NOT EXISTS idx_pc_date_investor ON position_change(date_today, investor_id);
`

// EnsureSchema creates every table and index that is missing and adds columns
// that older stores lack. It is safe to call on every open.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", WrapBusy(err))
	}

	for _, c := range additiveColumns {
		exists, err := ColumnExists(ctx, db, c.table, c.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.ExecContext(ctx, c.ddl); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", c.table, c.column, WrapBusy(err))
		}
	}

	if _, err := db.ExecContext(ctx, perfIndexesSQL); err != nil {
		return fmt.Errorf("failed to create indexes: %w", WrapBusy(err))
	}
	return nil
}

// ColumnExists reports whether table has a column with the given name.
// table may be schema-qualified ("src.security") to inspect an attached store.
func ColumnExists(ctx context.Context, db DBTX, table, column string) (bool, error) {
	pragma := fmt.Sprintf("PRAGMA table_info(%s)", table)
	if schema, name, ok := strings.Cut(table, "."); ok {
		pragma = fmt.Sprintf("PRAGMA %s.table_info(%s)", schema, name)
	}
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return false, fmt.Errorf("failed to read columns of %s: %w", table, WrapBusy(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
