package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/util"
)

// SnapshotResult describes a built bounded store
type SnapshotResult struct {
	Path          string        `json:"path"`
	Cutoff        string        `json:"cutoff"`
	Investors     int           `json:"investors"`
	Securities    int           `json:"securities"`
	Facts         int           `json:"facts"`
	PricesUpdated int64         `json:"prices_updated"`
	Duration      time.Duration `json:"duration"`
}

// SnapshotService builds time-bounded copies of the canonical store
type SnapshotService struct {
	busyTimeoutMS int
}

// NewSnapshotService creates a new SnapshotService
func NewSnapshotService(busyTimeoutMS int) *SnapshotService {
	return &SnapshotService{busyTimeoutMS: busyTimeoutMS}
}

// copyTable describes how one table moves from the source into the snapshot.
// Columns the source lacks are filled with NULL.
type copyTable struct {
	name    string
	columns []string
	where   string
}

var snapshotTables = []copyTable{
	{
		name:    "investor",
		columns: []string{"investor_id", "investor_type", "first_name", "last_name", "country_code", "raw_id"},
	},
	{
		name: "security",
		columns: []string{"isin", "ticker", "isin_name", "paper_group", "issuer_orgnr", "issuer_name",
			"registered_country", "market", "sector", "gics_sector", "ask_paper", "issued_shares"},
	},
	{
		name: "position_change",
		columns: []string{"isin", "investor_id", "date_today", "date_yesterday",
			"holding_today", "holding_yesterday", "price_today", "price_yesterday",
			"change_qty", "abs_change_qty", "change_percent",
			"flag_new_source", "flag_exit_source", "rank", "source_file"},
		where: "date_today >= ?",
	},
	{
		name:    "ingested_files",
		columns: []string{"filename", "mtime", "ingested_at", "content_hash"},
	},
}

// BuildBoundedSnapshot writes a new store at targetPath holding every
// dimension row of sourcePath but only the facts dated on or after cutoff,
// with last prices derived from those facts alone. The store is built under
// a temporary name and only replaces targetPath once its integrity check
// passes; on any failure targetPath is left as it was.
func (s *SnapshotService) BuildBoundedSnapshot(ctx context.Context, sourcePath, targetPath, cutoff string) (*SnapshotResult, error) {
	start := time.Now()
	defer TrackTime("SnapshotService.BuildBoundedSnapshot", start)

	if _, err := util.ParseISODate(cutoff); err != nil {
		return nil, fmt.Errorf("invalid cutoff %q: %w", cutoff, err)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("source store %s: %w", sourcePath, err)
	}

	tmp := fmt.Sprintf("%s.%s.building", targetPath, uuid.NewString())
	result, err := s.build(ctx, sourcePath, tmp, cutoff)
	if err != nil {
		if rmErr := database.RemoveFiles(tmp); rmErr != nil {
			log.Errorf("failed to clean up %s: %v", tmp, rmErr)
		}
		return nil, err
	}

	if err := database.IntegrityCheck(ctx, tmp, s.busyTimeoutMS); err != nil {
		if rmErr := database.RemoveFiles(tmp); rmErr != nil {
			log.Errorf("failed to clean up %s: %v", tmp, rmErr)
		}
		return nil, err
	}

	for _, ext := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Remove(targetPath + ext); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove %s (locked?): %w", targetPath+ext, err)
		}
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		return nil, fmt.Errorf("failed to move snapshot into place at %s: %w", targetPath, err)
	}
	for _, ext := range []string{"-wal", "-shm"} {
		_ = os.Remove(tmp + ext)
	}

	result.Path = targetPath
	result.Duration = time.Since(start)
	log.Infof("snapshot %s built from %s (cutoff %s): %d investors, %d securities, %d facts",
		targetPath, sourcePath, cutoff, result.Investors, result.Securities, result.Facts)
	return result, nil
}

// BuildRecent builds the bounded store covering the last days calendar days.
func (s *SnapshotService) BuildRecent(ctx context.Context, sourcePath, targetPath string, days int) (*SnapshotResult, error) {
	return s.BuildBoundedSnapshot(ctx, sourcePath, targetPath, util.RecentCutoff(time.Now(), days))
}

func (s *SnapshotService) build(ctx context.Context, sourcePath, tmp, cutoff string) (*SnapshotResult, error) {
	db, err := database.New(ctx, tmp, s.busyTimeoutMS)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Conn.ExecContext(ctx, `ATTACH DATABASE ? AS src`, sourcePath); err != nil {
		return nil, fmt.Errorf("failed to attach %s: %w", sourcePath, database.WrapBusy(err))
	}

	if err := s.copyAll(ctx, db.Conn, cutoff); err != nil {
		return nil, err
	}

	if _, err := db.Conn.ExecContext(ctx, `DETACH DATABASE src`); err != nil {
		return nil, fmt.Errorf("failed to detach %s: %w", sourcePath, database.WrapBusy(err))
	}

	prices := repository.NewPriceRepository(db.Conn)
	updated, err := prices.BackfillLastPrice(ctx, db.Conn, cutoff)
	if err != nil {
		return nil, err
	}

	result := &SnapshotResult{Cutoff: cutoff, PricesUpdated: updated}
	if result.Investors, err = repository.NewInvestorRepository(db.Conn).Count(ctx); err != nil {
		return nil, err
	}
	if result.Securities, err = repository.NewSecurityRepository(db.Conn).Count(ctx); err != nil {
		return nil, err
	}
	if result.Facts, err = repository.NewPositionRepository(db.Conn).Count(ctx); err != nil {
		return nil, err
	}

	if err := db.Checkpoint(ctx); err != nil {
		return nil, err
	}
	// The snapshot ships as one self-contained file.
	if _, err := db.Conn.ExecContext(ctx, `PRAGMA journal_mode=DELETE`); err != nil {
		return nil, fmt.Errorf("failed to leave WAL mode on %s: %w", tmp, database.WrapBusy(err))
	}
	return result, nil
}

// copyAll copies every table from the attached source in one transaction.
// Columns are named explicitly: migrated stores carry added columns at the
// end, so positional SELECT * would misalign.
func (s *SnapshotService) copyAll(ctx context.Context, conn *sql.DB, cutoff string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot copy: %w", database.WrapBusy(err))
	}
	defer tx.Rollback()

	for _, t := range snapshotTables {
		selects := make([]string, len(t.columns))
		for i, col := range t.columns {
			exists, err := database.ColumnExists(ctx, tx, "src."+t.name, col)
			if err != nil {
				return err
			}
			if exists {
				selects[i] = col
			} else {
				selects[i] = "NULL"
			}
		}

		query := fmt.Sprintf("INSERT INTO main.%s (%s) SELECT %s FROM src.%s",
			t.name, strings.Join(t.columns, ", "), strings.Join(selects, ", "), t.name)
		var args []any
		if t.where != "" {
			query += " WHERE " + t.where
			args = append(args, cutoff)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to copy %s into snapshot: %w", t.name, database.WrapBusy(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot copy: %w", database.WrapBusy(err))
	}
	return nil
}
