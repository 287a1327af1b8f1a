package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/repository"
)

func TestEnsureLocal(t *testing.T) {
	ctx := context.Background()
	remoteDir, localDir := t.TempDir(), t.TempDir()
	remote := filepath.Join(remoteDir, "store.db")
	local := filepath.Join(localDir, "sub", "store.db")
	require.NoError(t, os.WriteFile(remote, []byte("version one"), 0o644))
	require.NoError(t, os.WriteFile(remote+"-wal", []byte("wal"), 0o644))
	svc := NewStagingService(testBusyTimeout)

	var fractions []float64
	res, err := svc.EnsureLocal(ctx, remote, local, false, func(f float64, _ string) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)
	assert.True(t, res.Copied)
	assert.Equal(t, "missing locally", res.Reason)
	assert.Equal(t, []string{"store.db-wal"}, res.Sidecars)
	require.NotEmpty(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "version one", string(data))

	rInfo, _ := os.Stat(remote)
	lInfo, _ := os.Stat(local)
	assert.True(t, rInfo.ModTime().Equal(lInfo.ModTime()), "copy keeps the remote modification time")

	res, err = svc.EnsureLocal(ctx, remote, local, false, nil)
	require.NoError(t, err)
	assert.False(t, res.Copied)

	res, err = svc.EnsureLocal(ctx, remote, local, true, nil)
	require.NoError(t, err)
	assert.True(t, res.Copied)
	assert.Equal(t, "forced", res.Reason)

	// A newer remote without a sidecar removes the stale local one.
	require.NoError(t, os.WriteFile(remote, []byte("version two!"), 0o644))
	require.NoError(t, os.Remove(remote+"-wal"))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(remote, later, later))

	res, err = svc.EnsureLocal(ctx, remote, local, false, nil)
	require.NoError(t, err)
	assert.True(t, res.Copied)
	assert.Empty(t, res.Sidecars)
	_, err = os.Stat(local + "-wal")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEnsureLocalRemoteMissing(t *testing.T) {
	svc := NewStagingService(testBusyTimeout)
	_, err := svc.EnsureLocal(context.Background(), filepath.Join(t.TempDir(), "nope.db"), filepath.Join(t.TempDir(), "x.db"), false, nil)
	assert.ErrorIs(t, err, ErrRemoteMissing)
}

func TestBackupCopy(t *testing.T) {
	f := newFixture(t)
	f.seedTrading(t)
	ctx := context.Background()
	dst := filepath.Join(t.TempDir(), "copy", "store.db")

	require.NoError(t, NewStagingService(testBusyTimeout).BackupCopy(ctx, f.db.Path, dst, nil))
	require.NoError(t, database.IntegrityCheck(ctx, dst, testBusyTimeout))

	copied, err := database.OpenReadOnly(ctx, dst, testBusyTimeout)
	require.NoError(t, err)
	defer copied.Close()
	n, err := repository.NewPositionRepository(copied.Conn).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "uncheckpointed writes are part of the backup")
}

func TestEnsureWorkingStore(t *testing.T) {
	ctx := context.Background()
	svc := NewStagingService(testBusyTimeout)

	t.Run("creates an empty store", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "store.db")
		origin, err := svc.EnsureWorkingStore(ctx, local, "", true, nil)
		require.NoError(t, err)
		assert.Equal(t, StoreCreated, origin)
		assert.NoError(t, database.IntegrityCheck(ctx, local, testBusyTimeout))
	})

	t.Run("reuses a healthy local store", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "store.db")
		db, err := database.New(ctx, local, testBusyTimeout)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		origin, err := svc.EnsureWorkingStore(ctx, local, "", true, nil)
		require.NoError(t, err)
		assert.Equal(t, StoreFromLocal, origin)
	})

	t.Run("replaces a corrupt local store from remote", func(t *testing.T) {
		f := newFixture(t)
		f.seedTrading(t)
		local := filepath.Join(t.TempDir(), "store.db")
		require.NoError(t, os.WriteFile(local, []byte("not a database"), 0o644))

		origin, err := svc.EnsureWorkingStore(ctx, local, f.db.Path, true, nil)
		require.NoError(t, err)
		assert.Equal(t, StoreFromRemote, origin)
	})

	t.Run("ignores remote when not allowed", func(t *testing.T) {
		f := newFixture(t)
		local := filepath.Join(t.TempDir(), "store.db")
		origin, err := svc.EnsureWorkingStore(ctx, local, f.db.Path, false, nil)
		require.NoError(t, err)
		assert.Equal(t, StoreCreated, origin)
	})
}
