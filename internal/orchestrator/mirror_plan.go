package orchestrator

import "github.com/desertwitch/flashbackup/internal/snapshot"

// copySetSnapshots builds one DirSnapshot per current root containing only
// the file entries selected for physical copy (per differ.Plan.Copy),
// preserving each root's RootInput/RootOutput so the copier can create
// destination directories correctly.
func copySetSnapshots(current []*snapshot.DirSnapshot, copySet map[int][]snapshot.Entry) []*snapshot.DirSnapshot {
	out := make([]*snapshot.DirSnapshot, len(current))

	for i, s := range current {
		cs := &snapshot.DirSnapshot{RootInput: s.RootInput, RootOutput: s.RootOutput}
		cs.Entries = copySet[i]
		cs.Recount()
		out[i] = cs
	}

	return out
}

// mergeCopyResults folds the copy executor's outcome back into current's
// full directory entries, so the final manifest reflects the actual
// destination contents. A current file entry falls into exactly one of
// three buckets: it needed no action at all (already correctly placed,
// neither in the copy-set nor the move-set — the common case on a repeat
// Mirror run), it was selected for copy (wanted holds its InputPath) and
// either succeeded (present in copied) or failed, or it was moved directly
// by differ.ApplyMoves and never touched the copier at all. Every directory
// entry and every file entry that didn't fail a selected copy survives;
// only a file that was selected for copy (including a failed-move
// fallback, already folded into wanted by the caller) and never appears in
// copied is dropped.
func mergeCopyResults(current []*snapshot.DirSnapshot, copied []*snapshot.DirSnapshot, wanted map[int][]snapshot.Entry) []*snapshot.DirSnapshot {
	out := make([]*snapshot.DirSnapshot, len(current))

	for i, s := range current {
		selected := make(map[string]bool, len(wanted[i]))
		for _, e := range wanted[i] {
			selected[e.InputPath] = true
		}

		succeeded := make(map[string]bool, len(copied[i].Entries))
		for _, e := range copied[i].Entries {
			succeeded[e.InputPath] = true
		}

		merged := &snapshot.DirSnapshot{RootInput: s.RootInput, RootOutput: s.RootOutput}

		for _, e := range s.Entries {
			if !e.IsFile || !selected[e.InputPath] || succeeded[e.InputPath] {
				merged.Entries = append(merged.Entries, e)
			}
		}

		merged.Recount()
		out[i] = merged
	}

	return out
}
