// Package copier implements the parallel per-root copy executor (C7): it
// streams selected entries from their InputPath to their OutputPath, leaving
// the source untouched, and hash-verifies each copy in flight.
package copier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/apperrors"
	"github.com/desertwitch/flashbackup/internal/hashing"
	"github.com/desertwitch/flashbackup/internal/snapshot"
	"github.com/desertwitch/flashbackup/internal/workerpool"
)

const (
	dirBasePerm = 0o755
	rootWorkers = 2
	bufSize     = 64 * 1024
)

// Executor copies snapshot entries through an injected afero.Fs.
type Executor struct {
	fsys afero.Fs
	log  *slog.Logger
}

// NewExecutor returns an Executor bound to fsys, logging to log.
func NewExecutor(fsys afero.Fs, log *slog.Logger) *Executor {
	return &Executor{fsys: fsys, log: log}
}

// CopyAll copies every entry of each given DirSnapshot from InputPath to
// OutputPath, one worker per snapshot (fixed cap of 2, protecting disk
// throughput as the teacher's own disk-facing operations deliberately do).
// It returns new DirSnapshots containing only the entries that were copied
// successfully; a failure copying one entry is logged and the entry is
// dropped, never aborting the run.
// dryRun skips every MkdirAll/copyFile and instead logs what would have
// happened, while still returning a result reflecting the full selection —
// so a preview run reports the same counts a real run would, matching the
// teacher's own "compute, then guard the write" discipline for --dry-run.
func (x *Executor) CopyAll(ctx context.Context, snaps []*snapshot.DirSnapshot, dryRun bool) ([]*snapshot.DirSnapshot, error) {
	out := make([]*snapshot.DirSnapshot, len(snaps))

	err := workerpool.Run(ctx, len(snaps), rootWorkers, func(ctx context.Context, i int) error {
		result, err := x.copyOne(ctx, snaps[i], dryRun)
		if err != nil {
			return err
		}

		out[i] = result

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (x *Executor) copyOne(ctx context.Context, s *snapshot.DirSnapshot, dryRun bool) (*snapshot.DirSnapshot, error) {
	if !dryRun {
		if err := x.fsys.MkdirAll(s.RootOutput, dirBasePerm); err != nil {
			return nil, fmt.Errorf("copier: failed to create: %q (%w)", s.RootOutput, err)
		}
	}

	result := &snapshot.DirSnapshot{RootInput: s.RootInput, RootOutput: s.RootOutput}

	for _, e := range s.Entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("copier: context cancelled: %w", err)
		}

		if !e.IsFile {
			if !dryRun {
				if err := x.fsys.MkdirAll(e.OutputPath, dirBasePerm); err != nil {
					x.log.Warn("directory not created",
						"path", e.OutputPath, "error", err,
					)

					continue
				}
			}

			result.Entries = append(result.Entries, e)

			continue
		}

		if !dryRun {
			if err := x.fsys.MkdirAll(filepath.Dir(e.OutputPath), dirBasePerm); err != nil {
				x.log.Warn("file skipped",
					"path", e.OutputPath, "reason", "parent_dir_failed", "error", err,
				)

				continue
			}

			if err := x.copyFile(ctx, e.InputPath, e.OutputPath, e.Hash); err != nil {
				x.log.Warn("file skipped",
					"src", e.InputPath, "dst", e.OutputPath,
					"error", fmt.Errorf("%w: %q -x-> %q (%w)", apperrors.ErrCopyFailed, e.InputPath, e.OutputPath, err),
				)

				continue
			}
		}

		x.log.Info("file copied", "src", e.InputPath, "dst", e.OutputPath, "hash", e.Hash, "dry-run", dryRun)

		result.Entries = append(result.Entries, e)
	}

	result.Recount()

	return result, nil
}

// copyFile streams src to a ".tmp" sibling of dst, hash-compares against the
// already-known source hash, and renames into place atomically — the same
// stage-verify-rename sequence as the teacher's copyAndRemove, minus the
// final removal of the source: this is a backup, not a move.
func (x *Executor) copyFile(ctx context.Context, src, dst, wantHash string) (retErr error) {
	workingFile := dst + ".tmp"

	in, err := x.fsys.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open: %q (%w)", src, err)
	}
	defer in.Close()

	out, err := x.fsys.Create(workingFile)
	if err != nil {
		return fmt.Errorf("failed to create: %q (%w)", workingFile, err)
	}

	defer func() {
		if retErr != nil {
			if rmErr := x.fsys.Remove(workingFile); rmErr != nil {
				x.log.Warn("incomplete file not removed", "path", workingFile, "error", rmErr)
			}
		}
	}()

	reader := &contextReader{ctx, in}
	buf := make([]byte, bufSize)

	if _, err := io.CopyBuffer(out, reader, buf); err != nil {
		out.Close()

		return fmt.Errorf("failed during copy: %w", err)
	}

	if err := out.Sync(); err != nil {
		out.Close()

		return fmt.Errorf("failed during sync: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close: %q (%w)", workingFile, err)
	}

	gotHash, err := hashing.Hash(x.fsys, workingFile)
	if err != nil {
		return fmt.Errorf("failed to verify: %q (%w)", workingFile, err)
	}

	if gotHash != wantHash {
		return fmt.Errorf("hash mismatch: %q (want) != %q (got)", wantHash, gotHash)
	}

	if err := x.fsys.Rename(workingFile, dst); err != nil {
		return fmt.Errorf("failed to rename: %q -x-> %q (%w)", workingFile, dst, err)
	}

	return nil
}

// contextReader wraps an io.Reader so an in-flight copy notices context
// cancellation between reads, matching the teacher's own contextReader.
type contextReader struct {
	ctx    context.Context //nolint:containedctx
	reader io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, context.Canceled
	default:
		return cr.reader.Read(p)
	}
}
