// Package apperrors collects the sentinel errors shared across the snapshot
// engine's components, in the style of the teacher's package-level err*/errArg*
// vars (desertwitch-mirrorshuttle's main.go).
package apperrors

import "errors"

var (
	// ErrAllInputsEmpty is fatal: every requested source root was dropped or
	// enumerated as empty, so the run cannot proceed.
	ErrAllInputsEmpty = errors.New("snapshot: all input roots are empty or inaccessible")

	// ErrConfigInvalid is fatal: the resolved BackupRequest is structurally
	// unsound (e.g. colliding root names) independent of filesystem state.
	ErrConfigInvalid = errors.New("config: request is invalid")

	// ErrConfigMissing is fatal: a named configuration file does not exist
	// or cannot be opened.
	ErrConfigMissing = errors.New("config: file does not exist")

	// ErrInputPathMissing marks a single dropped root (non-fatal unless it
	// empties the whole input set).
	ErrInputPathMissing = errors.New("snapshot: input root does not exist or is inaccessible")

	// ErrManifestParse marks a manifest file that exists but failed to parse.
	ErrManifestParse = errors.New("manifest: failed to parse")

	// ErrManifestMissing marks the absence of a manifest file, distinct from
	// a parse failure.
	ErrManifestMissing = errors.New("manifest: not found")

	// ErrTooManyPriorManifests is fatal in Mirror mode: more than one valid
	// prior manifest was found under a single mirror destination.
	ErrTooManyPriorManifests = errors.New("mirror: more than one prior manifest found at destination")

	// ErrModeMismatch is fatal: an orchestrator was given a manifest produced
	// by the other mode.
	ErrModeMismatch = errors.New("orchestrator: manifest mode does not match requested mode")

	// ErrHashFailed marks a single file's hash failure (non-fatal; entry is
	// dropped with a warning).
	ErrHashFailed = errors.New("snapshot: failed to hash file")

	// ErrCopyFailed marks a single file's copy failure (non-fatal; entry is
	// dropped with a warning).
	ErrCopyFailed = errors.New("copier: failed to copy file")
)
