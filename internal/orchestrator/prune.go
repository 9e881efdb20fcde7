package orchestrator

import (
	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/snapshot"
)

// pruneMissing drops any entry whose OutputPath does not exist on disk. This
// is an idempotent safety net against races and partial failures not
// reflected in the copy executor's own return.
func pruneMissing(fsys afero.Fs, snaps []*snapshot.DirSnapshot) []*snapshot.DirSnapshot {
	for _, s := range snaps {
		kept := s.Entries[:0]

		for _, e := range s.Entries {
			if exists, err := afero.Exists(fsys, e.OutputPath); err == nil && exists {
				kept = append(kept, e)
			}
		}

		s.Entries = kept
		s.Recount()
	}

	return snaps
}
