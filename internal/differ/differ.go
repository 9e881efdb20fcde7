// Package differ computes and executes the Mirror-mode copy-set and
// delete-set between a current and a previous set of snapshots, paired by
// internal/pairing.
package differ

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/pairing"
	"github.com/desertwitch/flashbackup/internal/snapshot"
	"github.com/desertwitch/flashbackup/internal/workerpool"
)

// deletionWorkers bounds deletion fan-out, separate from (and lower than) the
// hardware-concurrency-bounded copy-selection phase, to avoid disk thrashing.
const deletionWorkers = 4

// MovePair links a current entry whose content already exists at a previous
// entry's output location (same hash, different path) to that existing
// location, so it can be relocated with a single rename instead of a
// redundant source re-read.
type MovePair struct {
	From  string
	To    string
	Entry snapshot.Entry
}

// Plan is the result of Diff: which file entries to copy per current
// snapshot index, which current entries can instead be satisfied by
// relocating an existing destination file, and which previous entries
// (files and directories, already resolved to physical output paths) to
// remove per previous snapshot index.
type Plan struct {
	// Copy maps a current snapshot index to the file entries selected for
	// physical copy.
	Copy map[int][]snapshot.Entry
	// Move maps a current snapshot index to entries satisfiable by renaming
	// an existing, identically-hashed destination file into place.
	Move map[int][]MovePair
	// Delete maps a previous snapshot index (of a matched pair) to the
	// previous entries whose content no longer exists in the paired current
	// snapshot.
	Delete map[int][]snapshot.Entry
}

// Diff pairs current against previous (internal/pairing.Match) and computes
// the copy-set, move-set, and delete-set by content-hash equality, never by
// path. Per-pair computation runs in parallel, one worker per pair, bounded
// by hardware concurrency.
//
// For directory entries specifically — whose Hash is always empty and so can
// never be meaningfully compared by content — presence is instead decided by
// InputPath equality against the paired current snapshot's directory
// entries. This resolves an ambiguity in the literal hash-equality wording
// for directories (every directory entry shares the empty-string hash,
// which would make hash equality trivially satisfied and directories never
// eligible for deletion); see DESIGN.md.
//
// A current file entry whose hash matches a previous entry at a *different*
// path (a rename) is excluded from the copy-set and instead placed in the
// move-set, paired with the previous entry currently holding that content —
// relocating it with a single rename is strictly cheaper than re-reading the
// source, and has the same end effect as "delete old location, place content
// at new location"; see DESIGN.md.
//
// Unmatched current snapshots contribute their entire file-entry set to the
// copy-set (fresh root). Unmatched previous snapshots are intentionally
// absent from Delete — see DESIGN.md's "unmatched-previous" policy decision.
func Diff(ctx context.Context, current, previous []*snapshot.DirSnapshot) (Plan, error) {
	matched, unmatchedCurrent := pairing.Match(current, previous)

	plan := Plan{
		Copy:   make(map[int][]snapshot.Entry),
		Move:   make(map[int][]MovePair),
		Delete: make(map[int][]snapshot.Entry),
	}

	var mu sync.Mutex

	err := workerpool.Run(ctx, len(matched), runtime.NumCPU(), func(_ context.Context, i int) error {
		p := matched[i]
		copySet, moveSet := copyAndMoveSetForPair(current[p.CurrentIndex], previous[p.PreviousIndex])
		deleteSet := deleteSetForPair(current[p.CurrentIndex], previous[p.PreviousIndex])

		mu.Lock()
		plan.Copy[p.CurrentIndex] = copySet
		plan.Move[p.CurrentIndex] = moveSet
		plan.Delete[p.PreviousIndex] = deleteSet
		mu.Unlock()

		return nil
	})
	if err != nil {
		return Plan{}, err
	}

	for _, i := range unmatchedCurrent {
		var files []snapshot.Entry

		for _, e := range current[i].Entries {
			if e.IsFile {
				files = append(files, e)
			}
		}

		plan.Copy[i] = files
	}

	return plan, nil
}

func copyAndMoveSetForPair(cur, prev *snapshot.DirSnapshot) ([]snapshot.Entry, []MovePair) {
	prevByHash := make(map[string][]snapshot.Entry, len(prev.Entries))
	for _, e := range prev.Entries {
		if e.IsFile {
			prevByHash[e.Hash] = append(prevByHash[e.Hash], e)
		}
	}

	var (
		copySet []snapshot.Entry
		moveSet []MovePair
	)

	for _, e := range cur.Entries {
		if !e.IsFile {
			continue
		}

		candidates := prevByHash[e.Hash]
		if len(candidates) == 0 {
			copySet = append(copySet, e)

			continue
		}

		claim := candidates[0]
		prevByHash[e.Hash] = candidates[1:]

		if claim.OutputPath != e.OutputPath {
			moveSet = append(moveSet, MovePair{From: claim.OutputPath, To: e.OutputPath, Entry: e})
		}
		// Else: same content, same output location already — nothing to do.
	}

	return copySet, moveSet
}

func deleteSetForPair(cur, prev *snapshot.DirSnapshot) []snapshot.Entry {
	curFileHashes := make(map[string]bool)
	curDirPaths := make(map[string]bool)

	for _, e := range cur.Entries {
		if e.IsFile {
			curFileHashes[e.Hash] = true
		} else {
			curDirPaths[e.InputPath] = true
		}
	}

	var gone []snapshot.Entry

	for _, p := range prev.Entries {
		if p.IsFile {
			if !curFileHashes[p.Hash] {
				gone = append(gone, p)
			}

			continue
		}

		if !curDirPaths[p.InputPath] {
			gone = append(gone, p)
		}
	}

	return gone
}

// DeleteMissing physically removes plan.Delete's entries from fsys, one
// worker per previous snapshot index (bounded by deletionWorkers). Within a
// snapshot, entries are removed deepest-path-first so that files are gone
// before their parent directory's rmdir is attempted; a directory that still
// contains output not recorded in the previous snapshot (i.e. not ours to
// remove) simply fails its rmdir, which is logged and not fatal — this is
// what keeps the deletion "restricted to members of previous[j]" rather than
// a live recursive filesystem removal.
//
// dryRun skips the actual Remove while still logging what would have been
// removed, matching the teacher's own --dry-run discipline.
func DeleteMissing(ctx context.Context, fsys afero.Fs, plan Plan, log *slog.Logger, dryRun bool) error {
	indices := make([]int, 0, len(plan.Delete))
	for idx := range plan.Delete {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	return workerpool.Run(ctx, len(indices), deletionWorkers, func(_ context.Context, i int) error {
		idx := indices[i]
		entries := append([]snapshot.Entry(nil), plan.Delete[idx]...)

		sort.Slice(entries, func(a, b int) bool {
			return strings.Count(entries[a].OutputPath, string(filepath.Separator)) >
				strings.Count(entries[b].OutputPath, string(filepath.Separator))
		})

		for _, e := range entries {
			if e.OutputPath == "" {
				continue
			}

			if !dryRun {
				if err := fsys.Remove(e.OutputPath); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						continue
					}

					log.Warn("deletion skipped",
						"path", e.OutputPath,
						"is_file", e.IsFile,
						"reason", "remove_failed_or_not_empty",
						"error", err,
					)

					continue
				}
			}

			log.Info("removed", "path", e.OutputPath, "is_file", e.IsFile, "dry-run", dryRun)
		}

		return nil
	})
}

// ApplyMoves relocates every plan.Move entry by renaming its From path to
// its To path, creating To's parent directory first. Entries that rename
// successfully are returned keyed by current snapshot index so the caller
// can merge them into the final result without a copier pass; entries whose
// rename fails are returned as a fallback copy-set so the caller can still
// obtain the content by copying from the original source.
//
// dryRun skips the actual MkdirAll/Rename and reports every move as
// satisfied (nothing falls back to a copy) while still logging what would
// have moved, matching the teacher's own --dry-run discipline.
func ApplyMoves(ctx context.Context, fsys afero.Fs, plan Plan, log *slog.Logger, dryRun bool) (satisfied, fallback map[int][]snapshot.Entry, err error) {
	satisfied = make(map[int][]snapshot.Entry)
	fallback = make(map[int][]snapshot.Entry)

	indices := make([]int, 0, len(plan.Move))
	for idx := range plan.Move {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var mu sync.Mutex

	runErr := workerpool.Run(ctx, len(indices), deletionWorkers, func(_ context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("differ: context cancelled: %w", err)
		}

		idx := indices[i]

		var (
			ok   []snapshot.Entry
			fail []snapshot.Entry
		)

		for _, mv := range plan.Move[idx] {
			if !dryRun {
				if err := fsys.MkdirAll(filepath.Dir(mv.To), 0o755); err != nil {
					log.Warn("move skipped", "from", mv.From, "to", mv.To, "reason", "mkdir_failed", "error", err)
					fail = append(fail, mv.Entry)

					continue
				}

				if err := fsys.Rename(mv.From, mv.To); err != nil {
					log.Warn("move skipped", "from", mv.From, "to", mv.To, "reason", "rename_failed", "error", err)
					fail = append(fail, mv.Entry)

					continue
				}
			}

			log.Info("file moved", "from", mv.From, "to", mv.To, "dry-run", dryRun)
			ok = append(ok, mv.Entry)
		}

		mu.Lock()
		satisfied[idx] = ok
		fallback[idx] = fail
		mu.Unlock()

		return nil
	})
	if runErr != nil {
		return nil, nil, runErr
	}

	return satisfied, fallback, nil
}
