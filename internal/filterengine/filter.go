// Package filterengine removes entries matching extension or folder ignore
// patterns from a set of snapshots, in parallel, one worker per snapshot.
package filterengine

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	"github.com/desertwitch/flashbackup/internal/snapshot"
	"github.com/desertwitch/flashbackup/internal/workerpool"
)

// Engine applies extension and folder ignore patterns to snapshots.
type Engine struct {
	log *slog.Logger
}

// New returns an Engine that logs dropped entries to log.
func New(log *slog.Logger) *Engine {
	return &Engine{log: log}
}

// DropByExtension removes every file entry whose InputPath ends with one of
// exts (a literal suffix match; patterns are expected to start with "."). An
// empty exts is a no-op. Runs one worker per snapshot, bounded by hardware
// concurrency.
func (e *Engine) DropByExtension(ctx context.Context, snapshots []*snapshot.DirSnapshot, exts []string) error {
	if len(exts) == 0 {
		return nil
	}

	return workerpool.Run(ctx, len(snapshots), runtime.NumCPU(), func(_ context.Context, i int) error {
		e.dropExtFromOne(snapshots[i], exts)

		return nil
	})
}

func (e *Engine) dropExtFromOne(s *snapshot.DirSnapshot, exts []string) {
	kept := make([]snapshot.Entry, 0, len(s.Entries))

	for _, entry := range s.Entries {
		if entry.IsFile && matchesAnyExt(entry.InputPath, exts) {
			e.log.Debug("entry dropped", "path", entry.InputPath, "reason", "ignored_extension")

			continue
		}

		kept = append(kept, entry)
	}

	s.Entries = kept
	s.Recount()
}

func matchesAnyExt(path string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	return false
}

// DropByFolder removes every directory entry whose InputPath contains one of
// folders (a literal substring match; patterns are expected to start with the
// platform path separator), along with every entry (file or directory) whose
// InputPath has such a removed directory as a path prefix. An empty folders
// is a no-op. Runs one worker per snapshot, bounded by hardware concurrency.
func (e *Engine) DropByFolder(ctx context.Context, snapshots []*snapshot.DirSnapshot, folders []string) error {
	if len(folders) == 0 {
		return nil
	}

	return workerpool.Run(ctx, len(snapshots), runtime.NumCPU(), func(_ context.Context, i int) error {
		e.dropFolderFromOne(snapshots[i], folders)

		return nil
	})
}

func (e *Engine) dropFolderFromOne(s *snapshot.DirSnapshot, folders []string) {
	var removedDirs []string

	for _, entry := range s.Entries {
		if !entry.IsFile && matchesAnyFolder(entry.InputPath, folders) {
			removedDirs = append(removedDirs, entry.InputPath)
		}
	}

	if len(removedDirs) == 0 {
		return
	}

	kept := make([]snapshot.Entry, 0, len(s.Entries))

	for _, entry := range s.Entries {
		if underAnyPrefix(entry.InputPath, removedDirs) {
			e.log.Debug("entry dropped", "path", entry.InputPath, "reason", "ignored_folder")

			continue
		}

		kept = append(kept, entry)
	}

	s.Entries = kept
	s.Recount()
}

func matchesAnyFolder(path string, folders []string) bool {
	for _, folder := range folders {
		if strings.Contains(path, folder) {
			return true
		}
	}

	return false
}

func underAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+`\`) {
			return true
		}
	}

	return false
}
