package copier

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/desertwitch/flashbackup/internal/hashing"
	"github.com/desertwitch/flashbackup/internal/snapshot"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_Unit_CopyAll_CopiesFileAndKeepsSource_Success(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/a/f.txt", []byte("hello"), 0o644))

	hash, err := hashing.Hash(fsys, "/src/a/f.txt")
	require.NoError(t, err)

	in := []*snapshot.DirSnapshot{{
		RootInput:  "/src/a",
		RootOutput: "/dst/a",
		Entries: []snapshot.Entry{
			{InputPath: "/src/a", OutputPath: "/dst/a", IsFile: false},
			{InputPath: "/src/a/f.txt", OutputPath: "/dst/a/f.txt", IsFile: true, Hash: hash},
		},
	}}

	x := NewExecutor(fsys, newTestLogger())
	out, err := x.CopyAll(t.Context(), in, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, out[0].Files)
	require.Equal(t, 1, out[0].Folders)

	data, err := afero.ReadFile(fsys, "/dst/a/f.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, statErr := fsys.Stat("/src/a/f.txt")
	require.NoError(t, statErr, "source must survive a backup copy")
}

func Test_Unit_CopyAll_FileFailureIsolated_OtherFilesStillCopied(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/a/good.txt", []byte("ok"), 0o644))

	goodHash, err := hashing.Hash(fsys, "/src/a/good.txt")
	require.NoError(t, err)

	in := []*snapshot.DirSnapshot{{
		RootInput:  "/src/a",
		RootOutput: "/dst/a",
		Entries: []snapshot.Entry{
			{InputPath: "/src/a", OutputPath: "/dst/a", IsFile: false},
			{InputPath: "/src/a/missing.txt", OutputPath: "/dst/a/missing.txt", IsFile: true, Hash: "doesnotmatter"},
			{InputPath: "/src/a/good.txt", OutputPath: "/dst/a/good.txt", IsFile: true, Hash: goodHash},
		},
	}}

	x := NewExecutor(fsys, newTestLogger())
	out, err := x.CopyAll(t.Context(), in, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, out[0].Files)

	data, err := afero.ReadFile(fsys, "/dst/a/good.txt")
	require.NoError(t, err)
	require.Equal(t, "ok", string(data))

	_, statErr := fsys.Stat("/dst/a/missing.txt")
	require.Error(t, statErr)
}

func Test_Unit_CopyAll_HashMismatch_EntryDropped(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/a/f.txt", []byte("hello"), 0o644))

	in := []*snapshot.DirSnapshot{{
		RootInput:  "/src/a",
		RootOutput: "/dst/a",
		Entries: []snapshot.Entry{
			{InputPath: "/src/a", OutputPath: "/dst/a", IsFile: false},
			{InputPath: "/src/a/f.txt", OutputPath: "/dst/a/f.txt", IsFile: true, Hash: "wronghash"},
		},
	}}

	x := NewExecutor(fsys, newTestLogger())
	out, err := x.CopyAll(t.Context(), in, false)
	require.NoError(t, err)
	require.Equal(t, 0, out[0].Files)

	_, statErr := fsys.Stat("/dst/a/f.txt")
	require.Error(t, statErr, "a failed copy must never leave a verified-looking file in place")

	_, statErr = fsys.Stat("/dst/a/f.txt.tmp")
	require.Error(t, statErr, "staging file must be cleaned up on failure")
}

func Test_Unit_CopyAll_DryRun_ReportsWithoutWriting(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/src/a/f.txt", []byte("hello"), 0o644))

	hash, err := hashing.Hash(fsys, "/src/a/f.txt")
	require.NoError(t, err)

	in := []*snapshot.DirSnapshot{{
		RootInput:  "/src/a",
		RootOutput: "/dst/a",
		Entries: []snapshot.Entry{
			{InputPath: "/src/a", OutputPath: "/dst/a", IsFile: false},
			{InputPath: "/src/a/f.txt", OutputPath: "/dst/a/f.txt", IsFile: true, Hash: hash},
		},
	}}

	x := NewExecutor(fsys, newTestLogger())
	out, err := x.CopyAll(t.Context(), in, true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, out[0].Files, "dry-run should still report what would have been copied")

	_, statErr := fsys.Stat("/dst/a/f.txt")
	require.Error(t, statErr, "dry-run must not actually write anything")

	_, statErr = fsys.Stat("/dst/a")
	require.Error(t, statErr, "dry-run must not actually create any directory")
}
