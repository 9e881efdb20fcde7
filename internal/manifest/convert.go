package manifest

import "github.com/desertwitch/flashbackup/internal/snapshot"

// FromSnapshots converts in-memory DirSnapshots into their persisted form.
func FromSnapshots(snaps []*snapshot.DirSnapshot) []DirSnapshot {
	out := make([]DirSnapshot, 0, len(snaps))

	for _, s := range snaps {
		entries := make([]Entry, 0, len(s.Entries))
		for _, e := range s.Entries {
			entries = append(entries, Entry{
				InputPath:  e.InputPath,
				OutputPath: e.OutputPath,
				IsFile:     e.IsFile,
				Hash:       e.Hash,
			})
		}

		out = append(out, DirSnapshot{
			RootInput:  s.RootInput,
			RootOutput: s.RootOutput,
			Files:      s.Files,
			Folders:    s.Folders,
			Entries:    entries,
		})
	}

	return out
}

// ToSnapshots converts persisted DirSnapshots back into the in-memory form
// used by the snapshot builder, pairing, and differ packages.
func ToSnapshots(dirs []DirSnapshot) []*snapshot.DirSnapshot {
	out := make([]*snapshot.DirSnapshot, 0, len(dirs))

	for _, d := range dirs {
		entries := make([]snapshot.Entry, 0, len(d.Entries))
		for _, e := range d.Entries {
			entries = append(entries, snapshot.Entry{
				InputPath:  e.InputPath,
				OutputPath: e.OutputPath,
				IsFile:     e.IsFile,
				Hash:       e.Hash,
			})
		}

		out = append(out, &snapshot.DirSnapshot{
			RootInput:  d.RootInput,
			RootOutput: d.RootOutput,
			Files:      d.Files,
			Folders:    d.Folders,
			Entries:    entries,
		})
	}

	return out
}
