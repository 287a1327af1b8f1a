package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/extract"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/util"
)

// IngestOptions configures where extracts are found and how they are loaded
type IngestOptions struct {
	CatalogDir    string
	FilePrefix    string
	FilePattern   string
	Window        util.DateWindow
	BatchSize     int
	ParseWorkers  int
	BusyTimeoutMS int
	LedgerHash    bool
}

// IngestResult summarizes one batch run
type IngestResult struct {
	FilesSelected  int                        `json:"files_selected"`
	FilesIngested  int                        `json:"files_ingested"`
	FilesUnchanged int                        `json:"files_unchanged"`
	FactsWritten   int                        `json:"facts_written"`
	PricesUpdated  int64                      `json:"prices_updated"`
	CellWarnings   map[models.WarningCode]int `json:"cell_warnings"`
	Duration       time.Duration              `json:"duration"`
}

// IngestService loads extract files into the canonical store
type IngestService struct {
	db           *database.DB
	opts         IngestOptions
	aliases      extract.Aliases
	investorRepo *repository.InvestorRepository
	securityRepo *repository.SecurityRepository
	positionRepo *repository.PositionRepository
	ledgerRepo   *repository.LedgerRepository
	pricingSvc   *PricingService
}

// NewIngestService creates a new IngestService
func NewIngestService(
	db *database.DB,
	opts IngestOptions,
	aliases extract.Aliases,
	investorRepo *repository.InvestorRepository,
	securityRepo *repository.SecurityRepository,
	positionRepo *repository.PositionRepository,
	ledgerRepo *repository.LedgerRepository,
	pricingSvc *PricingService,
) *IngestService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	if opts.ParseWorkers <= 0 {
		opts.ParseWorkers = 1
	}
	if opts.FilePattern == "" {
		opts.FilePattern = opts.FilePrefix + "*"
	}
	return &IngestService{
		db:           db,
		opts:         opts,
		aliases:      aliases,
		investorRepo: investorRepo,
		securityRepo: securityRepo,
		positionRepo: positionRepo,
		ledgerRepo:   ledgerRepo,
		pricingSvc:   pricingSvc,
	}
}

// FileDate extracts the as-of date a filename carries as YYMMDD right after
// prefix. ok is false when the name does not follow that convention.
func FileDate(name, prefix string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, false
	}
	rest := name[len(prefix):]
	if len(rest) < 6 {
		return time.Time{}, false
	}
	t, err := time.Parse("060102", rest[:6])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ModTime returns a file's modification time in float seconds, the unit the
// ledger records. It is computed as seconds plus scaled nanoseconds so that
// it equals, bit for bit, the st_mtime other ledger writers record.
func ModTime(info os.FileInfo) float64 {
	t := info.ModTime()
	// The conversion keeps the multiply from fusing into the add.
	return float64(t.Unix()) + float64(float64(t.Nanosecond())*1e-9)
}

// FilesToIngest lists catalog files that follow the naming convention, carry
// a date inside the window, and are either absent from the ledger or have a
// modification time different from the one recorded. Names are returned
// sorted, which for this convention is chronological.
func (s *IngestService) FilesToIngest(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.opts.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog %s: %w", s.opts.CatalogDir, err)
	}

	ledger, err := s.ledgerRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		matched, err := doublestar.Match(s.opts.FilePattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", s.opts.FilePattern, err)
		}
		if !matched {
			continue
		}
		d, ok := FileDate(name, s.opts.FilePrefix)
		if !ok || !s.opts.Window.Contains(d) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if prev, seen := ledger[name]; seen && prev.MTime == ModTime(info) {
			continue
		}
		names = append(names, name)
	}

	sort.Strings(names)
	return names, nil
}

// preparedFile is an extract read and normalized, waiting to be written
type preparedFile struct {
	name  string
	mtime float64
	hash  *string
	batch *extract.Batch
}

func (s *IngestService) prepareFile(name string) (*preparedFile, error) {
	path := filepath.Join(s.opts.CatalogDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ex, err := extract.Parse(bytes.NewReader(data), name)
	if err != nil {
		return nil, err
	}
	batch, err := extract.Normalize(ex, s.aliases)
	if err != nil {
		return nil, err
	}

	p := &preparedFile{name: name, mtime: ModTime(info), batch: batch}
	if s.opts.LedgerHash {
		sum := sha256.Sum256(data)
		h := hex.EncodeToString(sum[:])
		p.hash = &h
	}
	return p, nil
}

// IngestOneFile reads, normalizes and loads a single catalog file inside tx,
// then records it in the ledger. It returns the number of facts written.
func (s *IngestService) IngestOneFile(ctx context.Context, tx database.DBTX, name string) (int, error) {
	p, err := s.prepareFile(name)
	if err != nil {
		return 0, err
	}
	n, _, err := s.writeFile(ctx, tx, p)
	return n, err
}

// writeFile loads a prepared file. unchanged is true when content hashing
// found the bytes identical to the ledger's and only the ledger was touched.
func (s *IngestService) writeFile(ctx context.Context, tx database.DBTX, p *preparedFile) (written int, unchanged bool, err error) {
	ingestedAt := time.Now().UTC().Format(time.RFC3339)

	if p.hash != nil {
		prev, err := s.ledgerRepo.Get(ctx, tx, p.name)
		if err != nil {
			return 0, false, err
		}
		if prev != nil && prev.ContentHash != nil && *prev.ContentHash == *p.hash {
			log.Infof("%s: content unchanged, refreshing ledger only", p.name)
			return 0, true, s.ledgerRepo.MarkIngested(ctx, tx, models.IngestedFile{
				Filename: p.name, MTime: p.mtime, IngestedAt: ingestedAt, ContentHash: p.hash,
			})
		}
	}

	b := p.batch
	if err := s.investorRepo.UpsertInvestors(ctx, tx, b.Investors); err != nil {
		return 0, false, fmt.Errorf("%s: %w", p.name, err)
	}
	if err := s.securityRepo.UpsertSecurities(ctx, tx, b.Securities); err != nil {
		return 0, false, fmt.Errorf("%s: %w", p.name, err)
	}
	if err := s.positionRepo.ReplacePositions(ctx, tx, b.Facts); err != nil {
		return 0, false, fmt.Errorf("%s: %w", p.name, err)
	}
	if err := s.securityRepo.UpdateLastPriceHints(ctx, tx, b.LastPriceHints); err != nil {
		return 0, false, fmt.Errorf("%s: %w", p.name, err)
	}
	if err := s.ledgerRepo.MarkIngested(ctx, tx, models.IngestedFile{
		Filename: p.name, MTime: p.mtime, IngestedAt: ingestedAt, ContentHash: p.hash,
	}); err != nil {
		return 0, false, err
	}

	if len(b.CellWarnings) > 0 {
		log.Debugf("%s: cell warnings %v", p.name, b.CellWarnings)
	}
	log.Infof("ingested %s: %d rows, %d investors, %d securities, %d facts",
		p.name, b.Rows, len(b.Investors), len(b.Securities), len(b.Facts))
	return len(b.Facts), false, nil
}

type parsed struct {
	file *preparedFile
	err  error
}

// Run ingests every selected file in filename order, committing every
// BatchSize files. Files are parsed ahead on ParseWorkers goroutines but
// written one at a time on the store's single connection. The first error
// stops the run; files committed before it stay ingested and are not
// selected again. After the files, last prices are backfilled, the WAL is
// checkpointed and the store's integrity is verified.
func (s *IngestService) Run(ctx context.Context) (*IngestResult, error) {
	start := time.Now()
	defer TrackTime("IngestService.Run", start)

	result := &IngestResult{CellWarnings: make(map[models.WarningCode]int)}

	names, err := s.FilesToIngest(ctx)
	if err != nil {
		return result, err
	}
	result.FilesSelected = len(names)
	log.Infof("%d file(s) to ingest from %s", len(names), s.opts.CatalogDir)

	if len(names) > 0 {
		if err := s.ingestAll(ctx, names, result); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
	}

	updated, err := s.pricingSvc.Backfill(ctx, s.db.Conn, "")
	if err != nil {
		return result, err
	}
	result.PricesUpdated = updated

	if err := s.db.Checkpoint(ctx); err != nil {
		return result, err
	}
	if err := database.IntegrityCheck(ctx, s.db.Path, s.opts.BusyTimeoutMS); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	log.Infof("ingest done: %d/%d file(s), %d facts in %s",
		result.FilesIngested, result.FilesSelected, result.FactsWritten, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (s *IngestService) ingestAll(ctx context.Context, names []string, result *IngestResult) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan parsed, len(names))
	for i := range results {
		results[i] = make(chan parsed, 1)
	}

	// ahead bounds how many parsed files may wait for the writer.
	ahead := make(chan struct{}, 2*s.opts.ParseWorkers)
	g := new(errgroup.Group)
	g.SetLimit(s.opts.ParseWorkers)
	launched := make(chan struct{})

	go func() {
		defer close(launched)
		for i, name := range names {
			select {
			case ahead <- struct{}{}:
			case <-ctx.Done():
				return
			}
			i, name := i, name
			g.Go(func() error {
				f, err := s.prepareFile(name)
				results[i] <- parsed{file: f, err: err}
				return nil
			})
		}
	}()

	err := s.writeInOrder(ctx, names, results, ahead, result)
	cancel()
	<-launched
	_ = g.Wait()
	return err
}

func (s *IngestService) writeInOrder(ctx context.Context, names []string, results []chan parsed, ahead chan struct{}, result *IngestResult) error {
	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", database.WrapBusy(err))
	}
	rollback := func(tx *sql.Tx) {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Errorf("rollback failed: %v", rbErr)
		}
	}

	inBatch := 0
	for i, name := range names {
		var p parsed
		select {
		case p = <-results[i]:
		case <-ctx.Done():
			rollback(tx)
			return ctx.Err()
		}
		<-ahead

		if p.err != nil {
			rollback(tx)
			return fmt.Errorf("failed to ingest %s: %w", name, p.err)
		}

		n, unchanged, err := s.writeFile(ctx, tx, p.file)
		if err != nil {
			rollback(tx)
			return fmt.Errorf("failed to ingest %s: %w", name, err)
		}
		result.FactsWritten += n
		if unchanged {
			result.FilesUnchanged++
		} else {
			result.FilesIngested++
		}
		for code, c := range p.file.batch.CellWarnings {
			result.CellWarnings[code] += c
		}

		inBatch++
		if inBatch >= s.opts.BatchSize {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit after %s: %w", name, database.WrapBusy(err))
			}
			log.Infof("committed %d file(s), through %s", inBatch, name)
			inBatch = 0
			if tx, err = s.db.Conn.BeginTx(ctx, nil); err != nil {
				return fmt.Errorf("failed to begin transaction: %w", database.WrapBusy(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit final batch: %w", database.WrapBusy(err))
	}
	return nil
}
