// Package orchestrator sequences the snapshot engine's components (C1–C9)
// into the two backup mode state machines (C10): Snapshot (Multiple) and
// Mirror (Cloud).
package orchestrator

import "github.com/desertwitch/flashbackup/internal/manifest"

// BackupRequest is the fully-resolved input to a backup run, built by the
// (out-of-scope) CLI/config layer before the orchestrator ever runs.
type BackupRequest struct {
	Mode             manifest.Mode
	InputPaths       []string
	OutputPath       string
	MaxBackups       int
	IgnoreExtensions []string
	IgnoreFolders    []string
	Verify           bool
	DryRun           bool
	SkipFailed       bool
}

// Result is the outcome of a single orchestrator run.
type Result struct {
	Manifest           *manifest.Manifest
	Corrupted          int64
	HasPartialFailures bool
}
