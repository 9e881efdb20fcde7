// Package hashing provides the content digest used for snapshot identity and
// post-copy verification.
package hashing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// ErrNotAFile is returned when hashing is attempted against a directory.
var ErrNotAFile = errors.New("hashing: target is not a regular file")

const streamBufSize = 64 * 1024

// Hash streams path's content through a BLAKE3 digest and returns the lowercase
// hex encoding of the sum. The algorithm is fixed per build: callers must not
// rely on mixing digests produced by different versions of this function.
func Hash(fsys afero.Fs, path string) (string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return "", fmt.Errorf("hashing: failed to stat: %q (%w)", path, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("%w: %q", ErrNotAFile, path)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing: failed to open: %q (%w)", path, err)
	}
	defer f.Close()

	h := blake3.New()

	buf := make([]byte, streamBufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing: failed to read: %q (%w)", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
