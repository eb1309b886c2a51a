package skeleton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
	"github.com/tidwall/pretty"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// saveBackoff is the single retry policy every skeleton write goes
// through: 200ms, 400ms, 800ms, three attempts total. Centralizing it
// here means no other component retries a save on its own.
func saveBackoff() retry.Backoff {
	b := retry.NewExponential(200 * time.Millisecond)
	b = retry.WithMaxRetries(2, b)
	return retry.WithCappedDuration(800*time.Millisecond, b)
}

// SaveAtomic writes sk as pretty-printed JSON to path, atomically: the
// payload lands in a sibling temp file first, then is renamed into place,
// so a reader never observes a partial write. A lock file alongside path
// serializes concurrent writers across processes.
func SaveAtomic(ctx context.Context, fs afero.Fs, path string, sk *Skeleton) error {
	raw, err := json.Marshal(sk)
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}
	formatted := pretty.Pretty(raw)

	// flock only makes sense against a real path on a real filesystem; an
	// in-memory or other virtual afero backend has no cross-process
	// writers to serialize against.
	var fl *flock.Flock
	if _, isOS := fs.(*afero.OsFs); isOS {
		fl = flock.New(path + ".lock")
	}

	return retry.Do(ctx, saveBackoff(), func(ctx context.Context) error {
		if fl != nil {
			locked, err := fl.TryLockContext(ctx, 20*time.Millisecond)
			if err != nil || !locked {
				return retry.RetryableError(fmt.Errorf("lock %s: %w", fl.Path(), err))
			}
			defer fl.Unlock()
		}

		dir := filepath.Dir(path)
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		tmp := path + ".tmp"
		if err := afero.WriteFile(fs, tmp, formatted, 0o644); err != nil {
			return retry.RetryableError(fmt.Errorf("write temp %s: %w", tmp, err))
		}
		if err := fs.Rename(tmp, path); err != nil {
			return retry.RetryableError(fmt.Errorf("rename %s -> %s: %w", tmp, path, err))
		}
		return nil
	})
}

// ReadSkeleton reads and unmarshals a skeleton file, tolerating a leading
// UTF-8 BOM that some editors or older writers may have left behind.
func ReadSkeleton(fs afero.Fs, path string) (*Skeleton, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	var sk Skeleton
	if err := json.Unmarshal(raw, &sk); err != nil {
		return nil, fmt.Errorf("unmarshal skeleton %s: %w", path, err)
	}
	return &sk, nil
}
