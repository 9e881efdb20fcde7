package main

import (
	"flag"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/config"
	"github.com/desertwitch/flashbackup/internal/manifest"
)

// patternArg is a repeatable flag.Value collecting --exclude occurrences,
// identical in shape to the teacher's excludeArg.
type patternArg []string

func (p *patternArg) String() string {
	return fmt.Sprint(*p)
}

func (p *patternArg) Set(value string) error {
	*p = append(*p, strings.TrimSpace(value))

	return nil
}

// pathArg is a repeatable flag.Value collecting --input occurrences.
type pathArg []string

func (p *pathArg) String() string {
	return fmt.Sprint(*p)
}

func (p *pathArg) Set(value string) error {
	*p = append(*p, filepath.Clean(strings.TrimSpace(value)))

	return nil
}

func (prog *program) parseArgs(cliArgs []string) error {
	var (
		mode       string
		inputs     pathArg
		output     string
		maxBackups int
		excludes   patternArg
		configPath string
		ignorePath string
		dryRun     bool
		skipFailed bool
		logLevel   string
		jsonLogs   bool
	)

	prog.flags = flag.NewFlagSet("backup", flag.ExitOnError)
	prog.flags.SetOutput(prog.stderr)
	prog.flags.Usage = func() {
		fmt.Fprintf(prog.stderr, "usage: %q --mode=snapshot|mirror --input=ABSPATH --output=ABSPATH\n", cliArgs[0])
		fmt.Fprintf(prog.stderr, "\t[--input=ABSPATH ...] [--max-backups=N] [--exclude=PATTERN]\n")
		fmt.Fprintf(prog.stderr, "\t[--config=PATH] [--ignore=PATH] [--dry-run] [--skip-failed]\n")
		fmt.Fprintf(prog.stderr, "\t[--log-level=debug|info|warn|error] [--json]\n\n")
		prog.flags.PrintDefaults()
	}

	prog.flags.StringVar(&mode, "mode", "", "backup mode: 'snapshot' or 'mirror'")
	prog.flags.Var(&inputs, "input", "absolute path to back up; can be repeated multiple times")
	prog.flags.StringVar(&output, "output", "", "absolute path to the backup destination")
	prog.flags.IntVar(&maxBackups, "max-backups", 0, "maximum retained snapshots in --mode=snapshot")
	prog.flags.Var(&excludes, "exclude", "extension (.ext) or folder (/path) pattern to ignore; can be repeated")
	prog.flags.StringVar(&configPath, "config", "", "path to a yaml configuration file; used together with flags")
	prog.flags.StringVar(&ignorePath, "ignore", "", "path to an ignore-pattern file")
	prog.flags.BoolVar(&dryRun, "dry-run", false, "preview only; no changes are written to disk")
	prog.flags.BoolVar(&skipFailed, "skip-failed", false, "exit with success instead of the partial-failure code when per-file failures occur")
	prog.flags.StringVar(&logLevel, "log-level", "info", "decides the verbosity of emitted logs; debug, info, warn, error")
	prog.flags.BoolVar(&jsonLogs, "json", false, "output all emitted logs in the JSON format")

	if err := prog.flags.Parse(cliArgs[1:]); err != nil {
		return fmt.Errorf("failed parsing flags: %w", err)
	}

	setFlags := make(map[string]bool)
	prog.flags.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	// Without --config or --ignore, the fixed filenames in the working
	// directory are used when such a file exists there.
	if configPath == "" {
		if ok, _ := afero.Exists(prog.fsys, config.Filename); ok {
			configPath = config.Filename
		}
	}

	if ignorePath == "" {
		if ok, _ := afero.Exists(prog.fsys, ".ignore"); ok {
			ignorePath = ".ignore"
		}
	}

	var base *config.File
	if configPath != "" {
		cfg, err := config.Load(prog.fsys, configPath)
		if err != nil {
			return err
		}

		base = cfg
	}

	over := config.Overrides{
		InputPaths:       inputs,
		InputPathsSet:    setFlags["input"],
		OutputPath:       output,
		OutputPathSet:    setFlags["output"],
		MaxBackups:       maxBackups,
		MaxBackupsSet:    setFlags["max-backups"],
		Mode:             resolveMode(mode),
		ModeSet:          setFlags["mode"],
		LogLevel:         logLevel,
		LogLevelSet:      setFlags["log-level"],
		JSONLogs:         jsonLogs,
		JSONLogsSet:      setFlags["json"],
		DryRun:           dryRun,
		DryRunSet:        setFlags["dry-run"],
		SkipFailed:       skipFailed,
		SkipFailedSet:    setFlags["skip-failed"],
	}

	exts, folders := splitPatterns(excludes)
	if len(excludes) > 0 {
		over.IgnoreExtensions = exts
		over.IgnoreExtsSet = true
		over.IgnoreFolders = folders
		over.IgnoreFoldersSet = true
	}

	prog.cfg = config.Merge(base, over)
	if prog.cfg.LogLevel == "" {
		prog.cfg.LogLevel = logLevel
	}

	if ignorePath != "" {
		prog.ignorePath = ignorePath
	}

	return nil
}

// resolveMode translates the CLI's short mode names onto the persisted
// manifest.Mode vocabulary, so --mode=snapshot|mirror reads naturally while
// the rest of the system still speaks in terms of "Multiple"/"Cloud".
func resolveMode(short string) manifest.Mode {
	switch strings.ToLower(strings.TrimSpace(short)) {
	case "snapshot":
		return manifest.ModeSnapshot
	case "mirror":
		return manifest.ModeMirror
	default:
		return manifest.Mode(short)
	}
}

// splitPatterns classifies --exclude occurrences the same way the ignore
// file does: leading "." is an extension, leading path separator is a
// folder.
func splitPatterns(patterns []string) (exts []string, folders []string) {
	for _, p := range patterns {
		switch {
		case strings.HasPrefix(p, "."):
			exts = append(exts, p)
		case strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`):
			folders = append(folders, p)
		}
	}

	return exts, folders
}

func (prog *program) validateConfig() error {
	return config.Validate(prog.cfg)
}

func (prog *program) printConfig() {
	fmt.Fprintf(prog.stdout, "configuration for '--mode=%s':\n", prog.cfg.Mode)
	fmt.Fprintf(prog.stdout, "\tinput_paths: %v\n", prog.cfg.InputPaths)
	fmt.Fprintf(prog.stdout, "\toutput_path: %s\n", prog.cfg.OutputPath)
	fmt.Fprintf(prog.stdout, "\tmax_backups: %d\n", prog.cfg.MaxBackups)
	fmt.Fprintf(prog.stdout, "\tdry_run: %t\n", prog.cfg.DryRun)
	fmt.Fprintln(prog.stdout)
}

func (prog *program) logHandler() slog.Handler {
	logLevel, _ := parseLogLevel(prog.cfg.LogLevel)

	if prog.cfg.JSONLogs {
		return slog.NewJSONHandler(prog.stderr, &slog.HandlerOptions{Level: logLevel})
	}

	return tint.NewHandler(prog.stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: time.TimeOnly,
	})
}

func parseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errInvalidLogLevel
	}
}
