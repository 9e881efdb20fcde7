// Package verify re-hashes every file entry of a persisted Manifest and
// reports how many no longer match their stored hash.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/hashing"
	"github.com/desertwitch/flashbackup/internal/manifest"
	"github.com/desertwitch/flashbackup/internal/workerpool"
)

const snapshotWorkers = 4

// Verifier re-hashes copied files through an injected afero.Fs.
type Verifier struct {
	fsys afero.Fs
	log  *slog.Logger
}

// New returns a Verifier bound to fsys, logging to log.
func New(fsys afero.Fs, log *slog.Logger) *Verifier {
	return &Verifier{fsys: fsys, log: log}
}

// Verify re-hashes every file entry across m.Snapshots, comparing against
// its stored hash. Mismatches and read errors both count as corruption.
// Directories are skipped. Verification never returns a fatal error for a
// corrupted file — it is reported, not discarded — matching the teacher's
// own stance that --verify surfaces a problem without aborting the run.
func (v *Verifier) Verify(ctx context.Context, m *manifest.Manifest) (int64, error) {
	var corrupted atomic.Int64

	err := workerpool.Run(ctx, len(m.Snapshots), snapshotWorkers, func(ctx context.Context, i int) error {
		for _, e := range m.Snapshots[i].Entries {
			if !e.IsFile {
				continue
			}

			if err := ctx.Err(); err != nil {
				return fmt.Errorf("verify: context cancelled: %w", err)
			}

			got, err := hashing.Hash(v.fsys, e.OutputPath)
			if err != nil {
				corrupted.Add(1)
				v.log.Warn("verification failed", "path", e.OutputPath, "error", err)

				continue
			}

			if got != e.Hash {
				corrupted.Add(1)
				v.log.Warn("verification mismatch",
					"path", e.OutputPath, "want", e.Hash, "got", got,
				)
			}
		}

		return nil
	})
	if err != nil {
		return corrupted.Load(), err
	}

	return corrupted.Load(), nil
}
