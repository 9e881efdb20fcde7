package hashing

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func Test_Unit_Hash_RegularFile_Success(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a.txt", []byte("hello"), 0o644))

	sum, err := Hash(fsys, "/a.txt")
	require.NoError(t, err)
	require.Len(t, sum, 64)
}

func Test_Unit_Hash_Deterministic_Success(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a.txt", []byte("same bytes"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/b.txt", []byte("same bytes"), 0o644))

	sumA, err := Hash(fsys, "/a.txt")
	require.NoError(t, err)
	sumB, err := Hash(fsys, "/b.txt")
	require.NoError(t, err)

	require.Equal(t, sumA, sumB)
}

func Test_Unit_Hash_DifferentContent_Mismatch(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a.txt", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/b.txt", []byte("beta"), 0o644))

	sumA, err := Hash(fsys, "/a.txt")
	require.NoError(t, err)
	sumB, err := Hash(fsys, "/b.txt")
	require.NoError(t, err)

	require.NotEqual(t, sumA, sumB)
}

func Test_Unit_Hash_Directory_Error(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/dir", 0o777))

	_, err := Hash(fsys, "/dir")
	require.ErrorIs(t, err, ErrNotAFile)
}

func Test_Unit_Hash_Missing_Error(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()

	_, err := Hash(fsys, "/nope.txt")
	require.Error(t, err)
}
