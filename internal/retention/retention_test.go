package retention

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/desertwitch/flashbackup/internal/manifest"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeManifestAt(t *testing.T, fsys afero.Fs, dir string, ts int64) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(dir, 0o755))

	m := &manifest.Manifest{Mode: manifest.ModeSnapshot}
	store := manifest.NewStore(fsys)
	require.NoError(t, store.Save(t.Context(), m, dir, false))

	// Save() stamps the real current time; rewrite with the test's desired
	// timestamp so ordering in tests is deterministic.
	loaded, err := store.Load(dir)
	require.NoError(t, err)
	loaded.Timestamp = ts

	data, err := json.MarshalIndent(loaded, "", "  ")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, dir+"/"+manifest.Filename, data, 0o644))
}

func Test_Unit_Discover_FindsValidManifests_SkipsInvalid(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeManifestAt(t, fsys, "/dst/run1", 100)
	writeManifestAt(t, fsys, "/dst/run2", 200)
	require.NoError(t, fsys.MkdirAll("/dst/broken", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/dst/broken/.map.json", []byte("{not json"), 0o644))
	require.NoError(t, fsys.MkdirAll("/dst/empty", 0o755))

	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.Discover(t.Context(), "/dst")
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func Test_Unit_Discover_MissingRoot_EmptyNoError(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.Discover(t.Context(), "/dst")
	require.NoError(t, err)
	require.Empty(t, found)
}

func Test_Unit_DiscoverMirror_FindsFlatManifest_NoSubdirNesting(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeManifestAt(t, fsys, "/dst", 100)

	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.DiscoverMirror(t.Context(), "/dst")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "/dst", found[0].Dir)
}

func Test_Unit_DiscoverMirror_SecondManifestDeepInTree_BothFound(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeManifestAt(t, fsys, "/dst", 100)
	// A same-named file nested inside the mirrored source content: this is
	// the only realistic way a Mirror destination ends up with more than one
	// candidate, since the real manifest always lives at the root.
	writeManifestAt(t, fsys, "/dst/website/.map.json-looking-dir", 200)

	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.DiscoverMirror(t.Context(), "/dst")
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func Test_Unit_DiscoverMirror_MissingRoot_EmptyNoError(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.DiscoverMirror(t.Context(), "/dst")
	require.NoError(t, err)
	require.Empty(t, found)
}

func Test_Unit_Evict_RemovesOldestUntilBelowBudget(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeManifestAt(t, fsys, "/dst/run1", 100)
	writeManifestAt(t, fsys, "/dst/run2", 200)
	writeManifestAt(t, fsys, "/dst/run3", 300)

	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.Discover(t.Context(), "/dst")
	require.NoError(t, err)
	require.Len(t, found, 3)

	remaining, err := mgr.Evict(t.Context(), found, 3, false)
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	for _, r := range remaining {
		require.NotEqual(t, int64(100), r.M.Timestamp)
	}

	exists, err := afero.DirExists(fsys, "/dst/run1")
	require.NoError(t, err)
	require.False(t, exists)
}

func Test_Unit_Evict_UnderBudget_NoOp(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeManifestAt(t, fsys, "/dst/run1", 100)

	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.Discover(t.Context(), "/dst")
	require.NoError(t, err)

	remaining, err := mgr.Evict(t.Context(), found, 5, false)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func Test_Unit_Evict_DryRun_ComputesWithoutDeleting(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeManifestAt(t, fsys, "/dst/run1", 100)
	writeManifestAt(t, fsys, "/dst/run2", 200)

	mgr := NewManager(fsys, newTestLogger())

	found, err := mgr.Discover(t.Context(), "/dst")
	require.NoError(t, err)

	remaining, err := mgr.Evict(t.Context(), found, 2, true)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "dry-run should still report what would survive")

	exists, err := afero.DirExists(fsys, "/dst/run1")
	require.NoError(t, err)
	require.True(t, exists, "dry-run must not actually delete anything")
}

func Test_Unit_NewSnapshotDir_DryRun_ComputesWithoutCreating(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	mgr := NewManager(fsys, newTestLogger())

	now := time.Date(2026, 3, 5, 14, 30, 0, 0, time.Local)
	dir, err := mgr.NewSnapshotDir(t.Context(), "/dst", now, true)
	require.NoError(t, err)
	require.Contains(t, dir, "05-03-2026 14_30_00")

	exists, err := afero.DirExists(fsys, dir)
	require.NoError(t, err)
	require.False(t, exists, "dry-run must not actually create the directory")
}

func Test_Unit_NewSnapshotDir_CreatesNamedSubdir(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	mgr := NewManager(fsys, newTestLogger())

	now := time.Date(2026, 3, 5, 14, 30, 0, 0, time.Local)
	dir, err := mgr.NewSnapshotDir(t.Context(), "/dst", now, false)
	require.NoError(t, err)
	require.Contains(t, dir, "05-03-2026 14_30_00")

	exists, err := afero.DirExists(fsys, dir)
	require.NoError(t, err)
	require.True(t, exists)
}

func Test_Unit_NewSnapshotDir_CollisionAppendsNumericSuffix(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	mgr := NewManager(fsys, newTestLogger())

	now := time.Date(2026, 3, 5, 14, 30, 0, 0, time.Local)

	first, err := mgr.NewSnapshotDir(t.Context(), "/dst", now, false)
	require.NoError(t, err)

	second, err := mgr.NewSnapshotDir(t.Context(), "/dst", now, false)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Contains(t, second, "05-03-2026 14_30_00-2")
}
