package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/epeers/topchanges/internal/database"
)

var ErrRemoteMissing = errors.New("remote store not found")

// copyChunkSize is the read size for plain file copies.
const copyChunkSize = 8 * 1024 * 1024

// backupPagesPerStep is how many pages one online-backup step copies.
const backupPagesPerStep = 1024

// ProgressFunc receives the fraction of a copy completed, from 0 to 1.
type ProgressFunc func(fraction float64, message string)

// StageResult reports what a staging call did
type StageResult struct {
	Copied     bool     `json:"copied"`
	Reason     string   `json:"reason"`
	LocalPath  string   `json:"local_path"`
	RemotePath string   `json:"remote_path"`
	Sidecars   []string `json:"sidecars,omitempty"`
}

// Working-store origins reported by EnsureWorkingStore.
const (
	StoreFromLocal  = "local"
	StoreFromRemote = "remote"
	StoreCreated    = "created"
)

// StagingService moves store files between a remote share and local disk
type StagingService struct {
	busyTimeoutMS int
}

// NewStagingService creates a new StagingService
func NewStagingService(busyTimeoutMS int) *StagingService {
	return &StagingService{busyTimeoutMS: busyTimeoutMS}
}

func report(progress ProgressFunc, fraction float64, message string) {
	if progress != nil {
		progress(fraction, message)
	}
}

// BackupCopy copies src to dst with SQLite's online backup, which yields a
// consistent image even while another process writes to src. Both
// connections are held for the whole copy and released on every path.
func (s *StagingService) BackupCopy(ctx context.Context, src, dst string, progress ProgressFunc) error {
	defer TrackTime("StagingService.BackupCopy", time.Now())

	srcDB, err := database.OpenReadOnly(ctx, src, s.busyTimeoutMS)
	if err != nil {
		return fmt.Errorf("failed to open backup source: %w", err)
	}
	defer srcDB.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := database.RemoveFiles(dst); err != nil {
		return err
	}

	dstDB, err := sql.Open(database.DriverName, database.DSN(dst, fmt.Sprintf("mode=rwc&_busy_timeout=%d", s.busyTimeoutMS)))
	if err != nil {
		return fmt.Errorf("failed to open backup destination %s: %w", dst, err)
	}
	defer dstDB.Close()

	srcConn, err := srcDB.Conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection to %s: %w", src, database.WrapBusy(err))
	}
	defer srcConn.Close()

	dstConn, err := dstDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection to %s: %w", dst, database.WrapBusy(err))
	}
	defer dstConn.Close()

	report(progress, 0, fmt.Sprintf("backing up %s", src))
	err = dstConn.Raw(func(dc any) error {
		return srcConn.Raw(func(sc any) error {
			d, ok := dc.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", dc)
			}
			sConn, ok := sc.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", sc)
			}
			return runBackup(ctx, d, sConn, progress)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to back up %s to %s: %w", src, dst, database.WrapBusy(err))
	}
	report(progress, 1, fmt.Sprintf("backup of %s complete", src))
	return nil
}

func runBackup(ctx context.Context, dst, src *sqlite3.SQLiteConn, progress ProgressFunc) error {
	b, err := dst.Backup("main", src, "main")
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			b.Finish()
			return err
		}
		done, err := b.Step(backupPagesPerStep)
		if err != nil {
			b.Finish()
			return err
		}
		if total := b.PageCount(); total > 0 {
			report(progress, float64(total-b.Remaining())/float64(total), "backing up")
		}
		if done {
			break
		}
	}
	return b.Finish()
}

// EnsureLocal makes sure local holds a copy of remote. It copies when local
// is missing, when remote is more than a second newer or differs in size,
// or when force is set. The copy keeps remote's modification time, and
// -wal/-shm sidecars next to remote are copied along.
func (s *StagingService) EnsureLocal(ctx context.Context, remote, local string, force bool, progress ProgressFunc) (*StageResult, error) {
	result := &StageResult{LocalPath: local, RemotePath: remote}

	rInfo, err := os.Stat(remote)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRemoteMissing, remote)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", remote, err)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(local), err)
	}

	lInfo, err := os.Stat(local)
	switch {
	case force:
		result.Reason = "forced"
	case errors.Is(err, os.ErrNotExist):
		result.Reason = "missing locally"
	case err != nil:
		return nil, fmt.Errorf("failed to stat %s: %w", local, err)
	case rInfo.ModTime().After(lInfo.ModTime().Add(time.Second)) || rInfo.Size() != lInfo.Size():
		result.Reason = "remote is newer or differs"
	default:
		result.Reason = "local is up to date"
		return result, nil
	}

	report(progress, 0, fmt.Sprintf("copying %s (%s)", remote, result.Reason))
	if err := copyFile(ctx, remote, local, rInfo, progress); err != nil {
		return nil, err
	}

	for _, ext := range []string{"-wal", "-shm"} {
		side := remote + ext
		info, err := os.Stat(side)
		if err != nil {
			if rmErr := os.Remove(local + ext); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove stale %s (locked?): %w", local+ext, rmErr)
			}
			continue
		}
		if err := copyFile(ctx, side, local+ext, info, nil); err != nil {
			return nil, err
		}
		result.Sidecars = append(result.Sidecars, filepath.Base(side))
	}

	result.Copied = true
	report(progress, 1, "local store is ready")
	log.Infof("staged %s -> %s (%s)", remote, local, result.Reason)
	return result, nil
}

func copyFile(ctx context.Context, src, dst string, info os.FileInfo, progress ProgressFunc) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", part, err)
	}

	total := info.Size()
	var copied int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			os.Remove(part)
			return err
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				os.Remove(part)
				return fmt.Errorf("failed to write %s: %w", part, err)
			}
			copied += int64(n)
			if total > 0 {
				report(progress, min(float64(copied)/float64(total), 1), fmt.Sprintf("copying %d%%", copied*100/total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(part)
			return fmt.Errorf("failed to read %s: %w", src, readErr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to close %s: %w", part, err)
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return fmt.Errorf("failed to replace %s (locked?): %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set times on %s: %w", dst, err)
	}
	return nil
}

// EnsureWorkingStore prepares the local canonical store for a writer. A
// local store that passes its integrity check is used as is. Otherwise the
// remote store is backed up to local when allowed, and failing that an empty
// store is created. It returns which of these happened.
func (s *StagingService) EnsureWorkingStore(ctx context.Context, local, remote string, allowRemote bool, progress ProgressFunc) (string, error) {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(local), err)
	}

	if _, err := os.Stat(local); err == nil {
		err := database.IntegrityCheck(ctx, local, s.busyTimeoutMS)
		if err == nil {
			log.Infof("using local store %s", local)
			return StoreFromLocal, nil
		}
		log.Warnf("local store %s is unusable, discarding: %v", local, err)
		if err := database.RemoveFiles(local); err != nil {
			return "", err
		}
	}

	if allowRemote && remote != "" {
		_, err := os.Stat(remote)
		if err == nil {
			if err := s.BackupCopy(ctx, remote, local, progress); err != nil {
				return "", err
			}
			if err := database.IntegrityCheck(ctx, local, s.busyTimeoutMS); err != nil {
				return "", err
			}
			log.Infof("restored local store %s from %s", local, remote)
			return StoreFromRemote, nil
		}
		log.Warnf("remote store %s not available: %v", remote, err)
	}

	db, err := database.New(ctx, local, s.busyTimeoutMS)
	if err != nil {
		return "", err
	}
	if err := db.Close(); err != nil {
		return "", fmt.Errorf("failed to close new store %s: %w", local, err)
	}
	log.Infof("created empty store %s", local)
	return StoreCreated, nil
}
