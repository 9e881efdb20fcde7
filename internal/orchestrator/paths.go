package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/desertwitch/flashbackup/internal/apperrors"
	"github.com/desertwitch/flashbackup/internal/snapshot"
)

// assignOutputPaths computes RootOutput for each snapshot under destRoot and
// rewrites every entry's OutputPath by replacing the RootInput prefix with
// RootOutput exactly once, anchored at the start of the path (a repeated
// occurrence of RootInput deeper in the path is preserved verbatim).
//
// Before any assignment, it guards against two roots sharing a last path
// component (e.g. "/a/code" and "/b/code"), which would otherwise alias in
// the destination — the REDESIGN FLAG resolution: fail fast with
// ErrConfigInvalid rather than silently overwrite one root's output with
// another's.
func assignOutputPaths(snaps []*snapshot.DirSnapshot, destRoot string) error {
	seen := make(map[string]string, len(snaps))

	for _, s := range snaps {
		last := filepath.Base(s.RootInput)
		if prior, ok := seen[last]; ok {
			return fmt.Errorf("%w: %q and %q both resolve to destination name %q",
				apperrors.ErrConfigInvalid, prior, s.RootInput, last)
		}

		seen[last] = s.RootInput
	}

	for _, s := range snaps {
		s.RootOutput = filepath.Join(destRoot, filepath.Base(s.RootInput))

		for i := range s.Entries {
			s.Entries[i].OutputPath = replacePrefixOnce(s.Entries[i].InputPath, s.RootInput, s.RootOutput)
		}
	}

	return nil
}

func replacePrefixOnce(path, oldPrefix, newPrefix string) string {
	if !strings.HasPrefix(path, oldPrefix) {
		return path
	}

	return newPrefix + path[len(oldPrefix):]
}
