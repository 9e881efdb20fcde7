// Package config loads, validates, and merges the YAML configuration file
// with CLI flag overrides, grounded on the teacher's parseArgs/printOpts
// discipline in cmd/mirrorshuttle/config.go.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/apperrors"
	"github.com/desertwitch/flashbackup/internal/manifest"
)

// Filename is the fixed configuration filename read from the working
// directory unless a different path is passed on the command line.
const Filename = ".config.yaml"

// File is the on-disk (YAML) shape of a configuration file.
type File struct {
	InputPaths       []string      `yaml:"input_paths"`
	OutputPath       string        `yaml:"output_path"`
	MaxBackups       int           `yaml:"max_backups"`
	Mode             manifest.Mode `yaml:"mode"`
	IgnoreExtensions []string      `yaml:"ignore_extensions"`
	IgnoreFolders    []string      `yaml:"ignore_folders"`
	LogLevel         string        `yaml:"log_level"`
	JSONLogs         bool          `yaml:"json_logs"`
	DryRun           bool          `yaml:"dry_run"`
	SkipFailed       bool          `yaml:"skip_failed"`
}

// Load reads and strictly decodes path as YAML, rejecting unknown fields the
// same way the teacher's parseArgs does via yaml.Decoder.KnownFields(true).
func Load(fsys afero.Fs, path string) (*File, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (%w)", apperrors.ErrConfigMissing, path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg File
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %q (%w)", apperrors.ErrConfigInvalid, path, err)
	}

	return &cfg, nil
}

// Save writes cfg as YAML to path, mirroring the teacher's printOpts
// (rendered for a human reader rather than machine round-tripping only).
func Save(fsys afero.Fs, path string, cfg *File) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to serialize: %w", err)
	}

	if err := afero.WriteFile(fsys, path, out, 0o644); err != nil {
		return fmt.Errorf("config: failed to write: %q (%w)", path, err)
	}

	return nil
}

// Overrides carries every flag value together with whether it was explicitly
// set on the command line (via flag.FlagSet.Visit), so Merge can apply the
// teacher's "flags win over YAML" precedence field by field.
type Overrides struct {
	InputPaths       []string
	InputPathsSet    bool
	OutputPath       string
	OutputPathSet    bool
	MaxBackups       int
	MaxBackupsSet    bool
	Mode             manifest.Mode
	ModeSet          bool
	IgnoreExtensions []string
	IgnoreFoldersSet bool
	IgnoreFolders    []string
	IgnoreExtsSet    bool
	LogLevel         string
	LogLevelSet      bool
	JSONLogs         bool
	JSONLogsSet      bool
	DryRun           bool
	DryRunSet        bool
	SkipFailed       bool
	SkipFailedSet    bool
}

// Merge folds base (possibly nil, meaning "no config file was given") and
// over into a resolved File, with every field individually set on the
// command line winning over the corresponding YAML field — the same
// per-field precedence the teacher's parseArgs implements with its
// setFlags["..."] lookups, generalized from a fixed field list to this
// tool's own option set.
func Merge(base *File, over Overrides) *File {
	resolved := &File{}
	if base != nil {
		resolved = &File{
			InputPaths:       base.InputPaths,
			OutputPath:       base.OutputPath,
			MaxBackups:       base.MaxBackups,
			Mode:             base.Mode,
			IgnoreExtensions: base.IgnoreExtensions,
			IgnoreFolders:    base.IgnoreFolders,
			LogLevel:         base.LogLevel,
			JSONLogs:         base.JSONLogs,
			DryRun:           base.DryRun,
			SkipFailed:       base.SkipFailed,
		}
	}

	if over.InputPathsSet {
		resolved.InputPaths = over.InputPaths
	}
	if over.OutputPathSet {
		resolved.OutputPath = over.OutputPath
	}
	if over.MaxBackupsSet {
		resolved.MaxBackups = over.MaxBackups
	}
	if over.ModeSet {
		resolved.Mode = over.Mode
	}
	if over.IgnoreExtsSet {
		resolved.IgnoreExtensions = over.IgnoreExtensions
	}
	if over.IgnoreFoldersSet {
		resolved.IgnoreFolders = over.IgnoreFolders
	}
	if over.LogLevelSet {
		resolved.LogLevel = over.LogLevel
	}
	if over.JSONLogsSet {
		resolved.JSONLogs = over.JSONLogs
	}
	if over.DryRunSet {
		resolved.DryRun = over.DryRun
	}
	if over.SkipFailedSet {
		resolved.SkipFailed = over.SkipFailed
	}

	return resolved
}

// Validate applies the structural checks the teacher's validateOpts performs
// (absolute paths, non-empty required fields, recognized mode/log-level),
// generalized to this tool's own option set.
func Validate(cfg *File) error {
	if len(cfg.InputPaths) == 0 {
		return fmt.Errorf("%w: at least one input path is required", apperrors.ErrConfigInvalid)
	}

	for _, p := range cfg.InputPaths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%w: input path %q must be absolute", apperrors.ErrConfigInvalid, p)
		}
	}

	if cfg.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", apperrors.ErrConfigInvalid)
	}
	if !filepath.IsAbs(cfg.OutputPath) {
		return fmt.Errorf("%w: output path %q must be absolute", apperrors.ErrConfigInvalid, cfg.OutputPath)
	}

	if cfg.Mode != manifest.ModeSnapshot && cfg.Mode != manifest.ModeMirror {
		return fmt.Errorf("%w: mode must be %q or %q, got %q", apperrors.ErrConfigInvalid, manifest.ModeSnapshot, manifest.ModeMirror, cfg.Mode)
	}

	if cfg.Mode == manifest.ModeSnapshot && cfg.MaxBackups <= 0 {
		return fmt.Errorf("%w: max_backups must be positive in %q mode", apperrors.ErrConfigInvalid, manifest.ModeSnapshot)
	}

	if cfg.LogLevel != "" {
		switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("%w: unrecognized log level %q", apperrors.ErrConfigInvalid, cfg.LogLevel)
		}
	}

	return nil
}
