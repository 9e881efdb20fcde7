// Package ignorefile parses the fixed-format pattern file that seeds
// IgnoreExtensions/IgnoreFolders alongside (or instead of) CLI --exclude
// flags, reading through an injected afero.Fs the same way the teacher reads
// every config-shaped file.
package ignorefile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// Patterns is the parsed, classified content of an ignore file.
type Patterns struct {
	Extensions []string
	Folders    []string
}

// Parse reads path line by line, classifying each non-blank line as an
// extension pattern (leading ".") or a folder pattern (leading path
// separator); any other non-blank line is skipped with a warning, matching
// the teacher's general habit of warning on malformed lines without
// treating them as fatal.
func Parse(fsys afero.Fs, log *slog.Logger, path string) (Patterns, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return Patterns{}, fmt.Errorf("ignorefile: failed to open: %q (%w)", path, err)
	}
	defer f.Close()

	var p Patterns

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "."):
			p.Extensions = append(p.Extensions, line)
		case strings.HasPrefix(line, string(os.PathSeparator)):
			p.Folders = append(p.Folders, line)
		default:
			log.Warn("ignore line skipped", "path", path, "line", line, "reason", "unrecognized_pattern")
		}
	}

	if err := scanner.Err(); err != nil {
		return Patterns{}, fmt.Errorf("ignorefile: failed to read: %q (%w)", path, err)
	}

	return p, nil
}
