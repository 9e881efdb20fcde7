// Package retention implements prior-manifest discovery for both backup
// modes, Snapshot-mode bounded eviction, and creation of the new timestamped
// destination subdirectory.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/apperrors"
	"github.com/desertwitch/flashbackup/internal/manifest"
)

const dirBasePerm = 0o755

// nameLayout matches the teacher's local-time, human-readable naming
// convention (DD-MM-YYYY HH_MM_SS), carried over from the spec's own
// restatement of that format.
const nameLayout = "02-01-2006 15_04_05"

// PriorManifest is a discovered, successfully parsed manifest together with
// the subdirectory it lives in.
type PriorManifest struct {
	Dir string
	M   *manifest.Manifest
}

// Manager discovers, evicts, and creates Snapshot-mode destination
// subdirectories through an injected afero.Fs.
type Manager struct {
	fsys  afero.Fs
	store *manifest.Store
	log   *slog.Logger
}

// NewManager returns a Manager bound to fsys, logging to log.
func NewManager(fsys afero.Fs, log *slog.Logger) *Manager {
	return &Manager{fsys: fsys, store: manifest.NewStore(fsys), log: log}
}

// Discover scans the immediate subdirectories of root for a manifest file.
// Subdirectories without a manifest are silently skipped; subdirectories
// with a manifest that fails to parse are skipped with a warning (per §4.6,
// step 2 — an invalid manifest is not itself fatal).
func (m *Manager) Discover(ctx context.Context, root string) ([]PriorManifest, error) {
	exists, err := afero.DirExists(m.fsys, root)
	if err != nil {
		return nil, fmt.Errorf("retention: failed to stat: %q (%w)", root, err)
	}

	if !exists {
		return nil, nil
	}

	infos, err := afero.ReadDir(m.fsys, root)
	if err != nil {
		return nil, fmt.Errorf("retention: failed to list: %q (%w)", root, err)
	}

	var found []PriorManifest

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("retention: context cancelled while scanning: %w", err)
		}

		if !info.IsDir() {
			continue
		}

		dir := filepath.Join(root, info.Name())

		mf, err := m.store.Load(dir)
		if err != nil {
			if errors.Is(err, apperrors.ErrManifestMissing) {
				continue
			}

			m.log.Warn("prior manifest skipped",
				"dir", dir,
				"reason", "parse_failed",
				"error", err,
			)

			continue
		}

		found = append(found, PriorManifest{Dir: dir, M: mf})
	}

	return found, nil
}

// DiscoverMirror recursively scans root for any file named after the
// manifest filename and returns every one that parses successfully. Unlike
// Discover (which only looks at immediate subdirectories, the Snapshot-mode
// layout), a Mirror destination's manifest lives directly at its root — so a
// second, unexpected one can only appear if the mirrored source tree itself
// happens to contain a same-named file somewhere in its copied subtree. The
// recursive walk (grounded on the teacher's own isEmptyStructure walk) is
// what lets the orchestrator detect and reject that case
// (ErrTooManyPriorManifests) instead of silently picking one.
func (m *Manager) DiscoverMirror(ctx context.Context, root string) ([]PriorManifest, error) {
	exists, err := afero.DirExists(m.fsys, root)
	if err != nil {
		return nil, fmt.Errorf("retention: failed to stat: %q (%w)", root, err)
	}

	if !exists {
		return nil, nil
	}

	var found []PriorManifest

	walkErr := afero.Walk(m.fsys, root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retention: context cancelled while scanning: %w", ctxErr)
		}

		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}

			return fmt.Errorf("retention: failed to walk: %q (%w)", path, err)
		}

		if info.IsDir() || info.Name() != manifest.Filename {
			return nil
		}

		dir := filepath.Dir(path)

		mf, err := m.store.Load(dir)
		if err != nil {
			m.log.Warn("candidate manifest skipped", "dir", dir, "reason", "parse_failed", "error", err)

			return nil
		}

		found = append(found, PriorManifest{Dir: dir, M: mf})

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return found, nil
}

// Evict removes the oldest prior manifests (by Timestamp) until fewer than
// maxBackups remain, deleting each evicted manifest's entire output
// subdirectory. Returns the surviving set.
//
// dryRun skips the actual RemoveAll while still logging which subdirectory
// would have been evicted and returning the set that would survive, matching the teacher's "if !prog.opts.DryRun { ... }" discipline.
func (m *Manager) Evict(_ context.Context, prior []PriorManifest, maxBackups int, dryRun bool) ([]PriorManifest, error) {
	remaining := append([]PriorManifest(nil), prior...)

	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].M.Timestamp < remaining[j].M.Timestamp
	})

	for len(remaining) >= maxBackups {
		oldest := remaining[0]

		if !dryRun {
			if err := m.fsys.RemoveAll(oldest.Dir); err != nil {
				return nil, fmt.Errorf("retention: failed to evict: %q (%w)", oldest.Dir, err)
			}
		}

		m.log.Info("prior snapshot evicted", "dir", oldest.Dir, "timestamp", oldest.M.Timestamp, "dry-run", dryRun)

		remaining = remaining[1:]
	}

	return remaining, nil
}

// NewSnapshotDir computes and creates a fresh, collision-free subdirectory
// of root named after the current local time, formatted as
// "DD-MM-YYYY HH_MM_SS". A name collision within the same second (two runs
// started in the same wall-clock second) is resolved by appending a numeric
// "-N" suffix, retried until a free name is found.
//
// dryRun still computes and returns the would-be destination but skips the
// MkdirAll, so a preview run never materializes anything on disk.
func (m *Manager) NewSnapshotDir(_ context.Context, root string, now time.Time, dryRun bool) (string, error) {
	base := now.Local().Format(nameLayout)
	name := base

	for n := 2; ; n++ {
		dir := filepath.Join(root, name)

		exists, err := afero.DirExists(m.fsys, dir)
		if err != nil {
			return "", fmt.Errorf("retention: failed to stat: %q (%w)", dir, err)
		}

		if !exists {
			if !dryRun {
				if err := m.fsys.MkdirAll(dir, dirBasePerm); err != nil {
					return "", fmt.Errorf("retention: failed to create: %q (%w)", dir, err)
				}
			}

			m.log.Info("snapshot directory created", "dir", dir, "dry-run", dryRun)

			return dir, nil
		}

		name = fmt.Sprintf("%s-%d", base, n)
	}
}
