package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/cache"
	"github.com/epeers/topchanges/internal/models"
)

func newWatchlistService(t *testing.T, f *fixture, memCache *cache.MemoryCache) (*WatchlistService, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Favoritter.csv"), []byte("Selskap;Eier\nEquinor;Nordmann\nEquinor;Ukjent Holding\nDNB;nordmann\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "andre.CSV"), []byte("Fond AS\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a list"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old.csv"), 0o755))

	activity := newActivityService(f)
	return NewWatchlistService(dir, f.db.Path, f.investors, activity, memCache), dir
}

func TestWatchlistList(t *testing.T) {
	f := newFixture(t)
	svc, _ := newWatchlistService(t, f, nil)

	lists, err := svc.List()
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "andre", lists[0].Name)
	assert.Equal(t, "Favoritter", lists[1].Name)
	assert.Equal(t, "Favoritter.csv", lists[1].File)

	empty := NewWatchlistService("", f.db.Path, f.investors, nil, nil)
	lists, err = empty.List()
	require.NoError(t, err)
	assert.Empty(t, lists)
}

func TestWatchlistResolve(t *testing.T) {
	f := newFixture(t)
	f.seedTrading(t)
	svc, _ := newWatchlistService(t, f, nil)
	ctx := context.Background()

	matches, warnings, err := svc.Resolve(ctx, "favoritter")
	require.NoError(t, err)
	require.Len(t, matches, 1, "the repeated pattern is only matched once")
	assert.Equal(t, "I1", matches[0].InvestorID)
	assert.Equal(t, "Nordmann", matches[0].MatchedPattern)

	require.Len(t, warnings, 1)
	assert.Equal(t, models.WarnPatternNoMatch, warnings[0].Code)
	assert.Contains(t, warnings[0].Message, "Ukjent Holding")

	// A list without a header reads its first line as a pattern.
	matches, warnings, err = svc.Resolve(ctx, "andre")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "I2", matches[0].InvestorID)
	assert.Empty(t, warnings)

	_, _, err = svc.Resolve(ctx, "../helpers")
	assert.ErrorIs(t, err, ErrWatchlistNotFound)
	_, _, err = svc.Resolve(ctx, "old")
	assert.ErrorIs(t, err, ErrWatchlistNotFound)
}

func TestWatchlistResolveUsesCacheUntilFileChanges(t *testing.T) {
	f := newFixture(t)
	f.seedTrading(t)
	memCache := cache.NewMemoryCache(time.Hour)
	svc, dir := newWatchlistService(t, f, memCache)
	ctx := context.Background()

	first, _, err := svc.Resolve(ctx, "andre")
	require.NoError(t, err)
	require.Len(t, first, 1)

	path := filepath.Join(dir, "andre.CSV")
	info, err := os.Stat(path)
	require.NoError(t, err)

	// Same mtime: the cached resolution is served even though the file changed.
	require.NoError(t, os.WriteFile(path, []byte("Nordmann\n"), 0o644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
	cached, _, err := svc.Resolve(ctx, "andre")
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	later := info.ModTime().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	fresh, _, err := svc.Resolve(ctx, "andre")
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "I1", fresh[0].InvestorID)
}

func TestWatchlistActivity(t *testing.T) {
	f := newFixture(t)
	f.seedTrading(t)
	svc, _ := newWatchlistService(t, f, nil)
	ctx := context.Background()

	resp, err := svc.Activity(ctx, "Favoritter", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, "Favoritter", resp.Name)
	require.Len(t, resp.Matches, 1)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "NO0001", resp.Rows[0].Key)
	assert.Equal(t, "1050", resp.Rows[0].NetAmount.String())
	require.Len(t, resp.Warnings, 1)

	_, err = svc.Activity(ctx, "Favoritter", "2024-01-31", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidParams)
}
