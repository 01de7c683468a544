package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	cherr "github.com/chordex/chordex/internal/errors"
	"github.com/chordex/chordex/internal/voicing"
)

// lockRetryDelay is the poll interval while waiting on the cross-process
// cache lock.
const lockRetryDelay = 50 * time.Millisecond

// defaultLockTimeout bounds the wait for the cache lock when the caller's
// context carries no deadline.
const defaultLockTimeout = 10 * time.Second

// lockPath derives the sibling lock file for a cache path.
func lockPath(path string) string {
	return path + ".lock"
}

// acquire takes the cross-process lock, waiting until the context expires.
func acquire(ctx context.Context, path string) (*flock.Flock, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultLockTimeout)
		defer cancel()
	}

	fl := flock.New(lockPath(path))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return nil, cherr.New(cherr.ErrCodeCacheLocked, "cache lock held by another process", err).
			WithDetail("path", path)
	}
	return fl, nil
}

func release(fl *flock.Flock, path string) {
	if err := fl.Unlock(); err != nil {
		slog.Warn("cache_lock_release_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// Save writes the document set atomically: encode to a temp file in the
// target directory, fsync, then rename over the destination. Guarded by
// a cross-process file lock so concurrent writers serialize.
func Save(ctx context.Context, path string, docs []voicing.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}

	fl, err := acquire(ctx, path)
	if err != nil {
		return err
	}
	defer release(fl, path)

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}
	tmpPath := tmp.Name()

	if err := Encode(tmp, docs); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return cherr.Wrap(cherr.ErrCodeIndexWriteFailed, err)
	}

	slog.Info("cache_saved",
		slog.String("path", path),
		slog.Int("documents", len(docs)),
		slog.Uint64("version", uint64(FormatVersion)))
	return nil
}

// Load reads the document set. A missing file is ErrCodeCacheNotFound;
// corrupt or version-mismatched files are hard errors so callers rebuild
// instead of serving partial data.
func Load(ctx context.Context, path string) ([]voicing.Document, error) {
	fl, err := acquire(ctx, path)
	if err != nil {
		return nil, err
	}
	defer release(fl, path)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cherr.New(cherr.ErrCodeCacheNotFound, "cache file does not exist", err).
				WithDetail("path", path)
		}
		return nil, cherr.Wrap(cherr.ErrCodeCacheCorrupt, err)
	}
	defer f.Close()

	docs, err := Decode(f)
	if err != nil {
		return nil, err
	}

	slog.Info("cache_loaded",
		slog.String("path", path),
		slog.Int("documents", len(docs)))
	return docs, nil
}
