// Package manifest defines the persisted backup record and the store that
// serializes and reads it back.
package manifest

// Mode tags which backup strategy produced a Manifest.
type Mode string

const (
	// ModeSnapshot is the Multiple/timestamped-copies strategy.
	ModeSnapshot Mode = "Multiple"
	// ModeMirror is the Cloud/single-incremental-copy strategy.
	ModeMirror Mode = "Cloud"
)

// Entry is the persisted form of a snapshot.Entry.
type Entry struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	IsFile     bool   `json:"is_file"`
	Hash       string `json:"hash"`
}

// DirSnapshot is the persisted form of a snapshot.DirSnapshot.
type DirSnapshot struct {
	RootInput  string  `json:"root_input"`
	RootOutput string  `json:"root_output"`
	Files      int     `json:"files"`
	Folders    int     `json:"folders"`
	Entries    []Entry `json:"backup_entries"`
}

// Manifest is the persisted record of one backup run.
type Manifest struct {
	ID               string        `json:"id"`
	Timestamp        int64         `json:"timestamp"`
	Mode             Mode          `json:"backup_mode"`
	MaxBackups       int           `json:"max_backups"`
	Files            int           `json:"files"`
	Folders          int           `json:"folders"`
	OutputFolder     string        `json:"output_folder"`
	InputFolders     []string      `json:"input_folders"`
	IgnoreExtensions []string      `json:"ignore_extensions"`
	IgnoreFolders    []string      `json:"ignore_folders"`
	Snapshots        []DirSnapshot `json:"backup_dirs"`
}

// Recompute recalculates Files and Folders from Snapshots, matching the
// invariant that a Manifest's totals always equal the sum across its
// DirSnapshots.
func (m *Manifest) Recompute() {
	var files, folders int

	for _, s := range m.Snapshots {
		files += s.Files
		folders += s.Folders
	}

	m.Files = files
	m.Folders = folders
}
