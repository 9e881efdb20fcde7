package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/apperrors"
	"github.com/desertwitch/flashbackup/internal/copier"
	"github.com/desertwitch/flashbackup/internal/differ"
	"github.com/desertwitch/flashbackup/internal/filterengine"
	"github.com/desertwitch/flashbackup/internal/manifest"
	"github.com/desertwitch/flashbackup/internal/retention"
	"github.com/desertwitch/flashbackup/internal/snapshot"
	"github.com/desertwitch/flashbackup/internal/verify"
)

const dirBasePerm = 0o755

// Orchestrator wires C1–C9 together into the two mode state machines
// described in SPEC_FULL.md §4.12, generalizing the teacher's own mode
// switch in program.run() ("case init: ...; case move: ...") from two
// file-moving modes into two backup-producing modes sharing a
// build→filter→assign-paths preamble.
type Orchestrator struct {
	fsys      afero.Fs
	log       *slog.Logger
	builder   *snapshot.Builder
	filter    *filterengine.Engine
	copier    *copier.Executor
	store     *manifest.Store
	verifier  *verify.Verifier
	retention *retention.Manager
}

// New returns an Orchestrator with every collaborator wired against fsys,
// logging to log.
func New(fsys afero.Fs, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		fsys:      fsys,
		log:       log,
		builder:   snapshot.NewBuilder(fsys, log),
		filter:    filterengine.New(log),
		copier:    copier.NewExecutor(fsys, log),
		store:     manifest.NewStore(fsys),
		verifier:  verify.New(fsys, log),
		retention: retention.NewManager(fsys, log),
	}
}

// Run dispatches req to the Snapshot or Mirror state machine.
func (o *Orchestrator) Run(ctx context.Context, req BackupRequest) (*Result, error) {
	switch req.Mode {
	case manifest.ModeSnapshot:
		return o.runSnapshot(ctx, req)
	case manifest.ModeMirror:
		return o.runMirror(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", apperrors.ErrConfigInvalid, req.Mode)
	}
}

func (o *Orchestrator) buildAndFilter(ctx context.Context, req BackupRequest) ([]*snapshot.DirSnapshot, error) {
	snaps, err := o.builder.Build(ctx, req.InputPaths)
	if err != nil {
		return nil, err
	}

	if err := o.filter.DropByExtension(ctx, snaps, req.IgnoreExtensions); err != nil {
		return nil, err
	}

	if err := o.filter.DropByFolder(ctx, snaps, req.IgnoreFolders); err != nil {
		return nil, err
	}

	return snaps, nil
}

// runSnapshot implements Init → Retain → Build → Filter → AssignPaths →
// Copy → PruneMissing → Persist → Verify → Done.
func (o *Orchestrator) runSnapshot(ctx context.Context, req BackupRequest) (*Result, error) {
	prior, err := o.retention.Discover(ctx, req.OutputPath)
	if err != nil {
		return nil, err
	}

	if _, err := o.retention.Evict(ctx, prior, req.MaxBackups, req.DryRun); err != nil {
		return nil, err
	}

	runDir, err := o.retention.NewSnapshotDir(ctx, req.OutputPath, time.Now(), req.DryRun)
	if err != nil {
		return nil, err
	}

	snaps, err := o.buildAndFilter(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := assignOutputPaths(snaps, runDir); err != nil {
		return nil, err
	}

	wanted := countFiles(snaps)

	copied, err := o.copier.CopyAll(ctx, snaps, req.DryRun)
	if err != nil {
		return nil, err
	}

	if !req.DryRun {
		copied = pruneMissing(o.fsys, copied)
	}

	m := &manifest.Manifest{
		Mode:             req.Mode,
		MaxBackups:       req.MaxBackups,
		OutputFolder:     runDir,
		InputFolders:     req.InputPaths,
		IgnoreExtensions: req.IgnoreExtensions,
		IgnoreFolders:    req.IgnoreFolders,
		Snapshots:        manifest.FromSnapshots(copied),
	}

	if err := o.store.Save(ctx, m, runDir, req.DryRun); err != nil {
		return nil, err
	}

	var corrupted int64
	if req.Verify && !req.DryRun {
		corrupted, err = o.verifier.Verify(ctx, m)
		if err != nil {
			return nil, err
		}
	}

	return &Result{Manifest: m, Corrupted: corrupted, HasPartialFailures: countFiles(copied) < wanted}, nil
}

// countFiles sums the file (non-directory) entries across every snapshot,
// used to tell a clean run from one where some entries were dropped after a
// per-file failure.
func countFiles(snaps []*snapshot.DirSnapshot) int {
	var n int
	for _, s := range snaps {
		n += s.Files
	}

	return n
}

// runMirror implements Init → (EnsureDest | LoadPrevious) → Build → Filter →
// AssignPaths → DiffCopySelection → DeleteMissing → Copy → PruneMissing →
// Persist → Verify → Done.
func (o *Orchestrator) runMirror(ctx context.Context, req BackupRequest) (*Result, error) {
	prior, err := o.retention.DiscoverMirror(ctx, req.OutputPath)
	if err != nil {
		return nil, err
	}

	if len(prior) > 1 {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrTooManyPriorManifests, req.OutputPath)
	}

	var previous []*snapshot.DirSnapshot

	if len(prior) == 1 {
		if prior[0].M.Mode != manifest.ModeMirror {
			return nil, fmt.Errorf("%w: found %q manifest at mirror destination", apperrors.ErrModeMismatch, prior[0].M.Mode)
		}

		previous = manifest.ToSnapshots(prior[0].M.Snapshots)
	}

	if !req.DryRun {
		if err := o.fsys.MkdirAll(req.OutputPath, dirBasePerm); err != nil {
			return nil, fmt.Errorf("orchestrator: failed to create: %q (%w)", req.OutputPath, err)
		}
	}

	current, err := o.buildAndFilter(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := assignOutputPaths(current, req.OutputPath); err != nil {
		return nil, err
	}

	if len(previous) > 0 {
		if err := assignOutputPaths(previous, req.OutputPath); err != nil {
			return nil, err
		}
	}

	plan, err := differ.Diff(ctx, current, previous)
	if err != nil {
		return nil, err
	}

	_, moveFallback, err := differ.ApplyMoves(ctx, o.fsys, plan, o.log, req.DryRun)
	if err != nil {
		return nil, err
	}

	for i, fb := range moveFallback {
		plan.Copy[i] = append(plan.Copy[i], fb...)
	}

	if err := differ.DeleteMissing(ctx, o.fsys, plan, o.log, req.DryRun); err != nil {
		return nil, err
	}

	wantedFiles := countFiles(current)

	toCopy := copySetSnapshots(current, plan.Copy)

	copiedResults, err := o.copier.CopyAll(ctx, toCopy, req.DryRun)
	if err != nil {
		return nil, err
	}

	final := mergeCopyResults(current, copiedResults, plan.Copy)

	if !req.DryRun {
		final = pruneMissing(o.fsys, final)
	}

	partial := countFiles(final) < wantedFiles

	m := &manifest.Manifest{
		Mode:             req.Mode,
		MaxBackups:       req.MaxBackups,
		OutputFolder:     req.OutputPath,
		InputFolders:     req.InputPaths,
		IgnoreExtensions: req.IgnoreExtensions,
		IgnoreFolders:    req.IgnoreFolders,
		Snapshots:        manifest.FromSnapshots(final),
	}

	if err := o.store.Save(ctx, m, req.OutputPath, req.DryRun); err != nil {
		return nil, err
	}

	var corrupted int64
	if req.Verify && !req.DryRun {
		corrupted, err = o.verifier.Verify(ctx, m)
		if err != nil {
			return nil, err
		}
	}

	return &Result{Manifest: m, Corrupted: corrupted, HasPartialFailures: partial}, nil
}
