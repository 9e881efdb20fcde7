package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/apperrors"
	"github.com/desertwitch/flashbackup/internal/hashing"
	"github.com/desertwitch/flashbackup/internal/workerpool"
)

// Builder enumerates and hashes one DirSnapshot per accessible input root,
// one worker per root, bounded by the host's hardware concurrency.
type Builder struct {
	fsys afero.Fs
	log  *slog.Logger
}

// NewBuilder returns a Builder operating against fsys, logging dropped roots
// and entries to log.
func NewBuilder(fsys afero.Fs, log *slog.Logger) *Builder {
	return &Builder{fsys: fsys, log: log}
}

// Build filters roots down to existing, accessible directories (warning and
// dropping the rest), walks each remaining root in parallel, and returns one
// DirSnapshot per root in the same order as the filtered input. It fails
// fatally with apperrors.ErrAllInputsEmpty if no root survives filtering, or
// if every surviving snapshot ends up empty.
func (b *Builder) Build(ctx context.Context, roots []string) ([]*DirSnapshot, error) {
	usable := make([]string, 0, len(roots))

	for _, root := range roots {
		info, statErr := b.fsys.Stat(root)
		if statErr != nil || !info.IsDir() {
			dropErr := fmt.Errorf("%w: %q", apperrors.ErrInputPathMissing, root)
			if statErr != nil {
				dropErr = fmt.Errorf("%w: %w", dropErr, statErr)
			}

			b.log.Warn("input root dropped", "root", root, "error", dropErr)

			continue
		}

		usable = append(usable, root)
	}

	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no usable input roots among %d requested", apperrors.ErrAllInputsEmpty, len(roots))
	}

	snapshots := make([]*DirSnapshot, len(usable))

	err := workerpool.Run(ctx, len(usable), runtime.NumCPU(), func(ctx context.Context, i int) error {
		s, err := b.buildOne(ctx, usable[i])
		if err != nil {
			return fmt.Errorf("failed building snapshot for %q: %w", usable[i], err)
		}

		snapshots[i] = s

		return nil
	})
	if err != nil {
		return nil, err
	}

	allEmpty := true

	for _, s := range snapshots {
		if len(s.Entries) > 0 {
			allEmpty = false

			break
		}
	}

	if allEmpty {
		return nil, fmt.Errorf("%w: every snapshot came back empty", apperrors.ErrAllInputsEmpty)
	}

	return snapshots, nil
}

// buildOne walks a single root in pre-order, recording a directory entry with
// an empty hash for every directory and a hashed file entry for every regular
// file. Unreadable nodes and hash failures are logged and dropped, never
// fatal to the overall build.
func (b *Builder) buildOne(ctx context.Context, root string) (*DirSnapshot, error) {
	s := &DirSnapshot{RootInput: root}

	var mu sync.Mutex

	walkErr := afero.Walk(b.fsys, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("build cancelled: %w", ctxErr)
		}

		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				b.log.Warn("entry skipped", "path", path, "reason", "unreadable", "error", err)

				return nil
			}

			b.log.Warn("entry skipped", "path", path, "reason", "walk_error", "error", err)

			return nil
		}

		if info.IsDir() {
			mu.Lock()
			s.Entries = append(s.Entries, Entry{InputPath: path, IsFile: false})
			mu.Unlock()

			return nil
		}

		if !info.Mode().IsRegular() {
			b.log.Warn("entry skipped", "path", path, "reason", "not_a_regular_file")

			return nil
		}

		sum, err := hashing.Hash(b.fsys, path)
		if err != nil {
			b.log.Warn("entry skipped", "path", path,
				"error", fmt.Errorf("%w: %q (%w)", apperrors.ErrHashFailed, path, err),
			)

			return nil
		}

		mu.Lock()
		s.Entries = append(s.Entries, Entry{InputPath: path, IsFile: true, Hash: sum})
		mu.Unlock()

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	s.Recount()

	return s, nil
}
