package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/topchanges/internal/cache"
	"github.com/epeers/topchanges/internal/extract"
	"github.com/epeers/topchanges/internal/models"
	"github.com/epeers/topchanges/internal/repository"
)

var ErrWatchlistNotFound = errors.New("watchlist not found")

// MaxHitsPerPattern caps how many investors one watchlist pattern resolves to.
const MaxHitsPerPattern = 50

// WatchlistService resolves owner watchlists kept as CSV files in a directory
type WatchlistService struct {
	listDir     string
	dbPath      string
	invRepo     *repository.InvestorRepository
	activitySvc *ActivityService
	cache       *cache.MemoryCache
}

// NewWatchlistService creates a new WatchlistService
func NewWatchlistService(
	listDir string,
	dbPath string,
	invRepo *repository.InvestorRepository,
	activitySvc *ActivityService,
	memCache *cache.MemoryCache,
) *WatchlistService {
	return &WatchlistService{
		listDir:     listDir,
		dbPath:      dbPath,
		invRepo:     invRepo,
		activitySvc: activitySvc,
		cache:       memCache,
	}
}

// List returns the watchlists in the list directory, by name.
// An unset directory has none.
func (s *WatchlistService) List() ([]models.Watchlist, error) {
	if s.listDir == "" {
		return []models.Watchlist{}, nil
	}
	entries, err := os.ReadDir(s.listDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlists in %s: %w", s.listDir, err)
	}

	lists := []models.Watchlist{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat watchlist %s: %w", e.Name(), err)
		}
		lists = append(lists, models.Watchlist{
			Name:     strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			File:     e.Name(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(lists, func(i, j int) bool {
		return strings.ToLower(lists[i].Name) < strings.ToLower(lists[j].Name)
	})
	return lists, nil
}

// find looks a watchlist up by name, ignoring case. Only files the listing
// returns can be found, so a name never reaches outside the directory.
func (s *WatchlistService) find(name string) (*models.Watchlist, error) {
	lists, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if strings.EqualFold(lists[i].Name, name) {
			return &lists[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrWatchlistNotFound, name)
}

// Resolve matches every pattern of a watchlist against the investors in the
// store. Investors matched by several patterns are reported once, under the
// first pattern that found them. Patterns matching nobody yield a warning.
func (s *WatchlistService) Resolve(ctx context.Context, name string) ([]models.InvestorMatch, []models.Warning, error) {
	defer TrackTime("WatchlistService.Resolve", time.Now())
	wl, err := s.find(name)
	if err != nil {
		return nil, nil, err
	}

	version := fmt.Sprintf("%s|%d", StoreVersion(s.dbPath), wl.Modified.UnixNano())
	if s.cache != nil {
		if matches, warnings, ok := s.cache.GetWatchlist(wl.Name, version); ok {
			return matches, warnings, nil
		}
	}

	path := filepath.Join(s.listDir, wl.File)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open watchlist %s: %w", path, err)
	}
	patterns, err := extract.ParseWatchlist(f, wl.File)
	f.Close()
	if err != nil {
		return nil, nil, err
	}

	matches := []models.InvestorMatch{}
	var warnings []models.Warning
	seen := make(map[string]bool)
	for _, p := range patterns {
		hits, err := s.invRepo.Match(ctx, p, MaxHitsPerPattern)
		if err != nil {
			return nil, nil, err
		}
		if len(hits) == 0 {
			warnings = append(warnings, models.Warning{
				Code:    models.WarnPatternNoMatch,
				Message: fmt.Sprintf("%s: %q matched no investor", wl.Name, p),
			})
			continue
		}
		for _, h := range hits {
			if seen[h.InvestorID] {
				continue
			}
			seen[h.InvestorID] = true
			matches = append(matches, h)
		}
	}
	log.Debugf("watchlist %s: %d patterns resolved to %d investors", wl.Name, len(patterns), len(matches))

	if s.cache != nil {
		s.cache.SetWatchlist(wl.Name, version, matches, warnings)
	}
	return matches, warnings, nil
}

// Activity summarizes per security what a watchlist's investors traded
func (s *WatchlistService) Activity(ctx context.Context, name, from, to string) (*models.WatchlistActivityResponse, error) {
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	matches, warnings, err := s.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.InvestorID
	}
	rows, err := s.activitySvc.TopSecurities(ctx, ids, from, to)
	if err != nil {
		return nil, err
	}
	return &models.WatchlistActivityResponse{
		Name:     name,
		From:     from,
		To:       to,
		Matches:  matches,
		Rows:     rows,
		Warnings: warnings,
	}, nil
}
