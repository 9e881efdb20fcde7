// Command backup enumerates, hashes, and copies one or more source trees
// into a destination in either Snapshot (independent, retained timestamped
// copies) or Mirror (single incrementally-updated copy) mode, persisting a
// manifest of what it did and re-verifying every copy afterward (except
// under --dry-run, which writes nothing).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/desertwitch/flashbackup/internal/config"
	"github.com/desertwitch/flashbackup/internal/ignorefile"
	"github.com/desertwitch/flashbackup/internal/manifest"
	"github.com/desertwitch/flashbackup/internal/orchestrator"
)

const (
	exitCodeSuccess        = 0
	exitCodeFailure        = 1
	exitCodePartialFailure = 2
	exitCodeCorruption     = 3
	exitCodeConfigFailure  = 5

	exitTimeout = 10 * time.Second
)

var errInvalidLogLevel = errors.New("--log-level has a not recognized value")

type program struct {
	fsys   afero.Fs
	stdout io.Writer
	stderr io.Writer

	cfg        *config.File
	ignorePath string
	flags      *flag.FlagSet
	log        *slog.Logger
}

func main() {
	var prog *program
	var exitCode int

	defer func() {
		if prog != nil {
			prog.log.Info("program exited", "code", exitCode)
		}
		os.Exit(exitCode)
	}()

	fmt.Fprintln(os.Stdout, "backup - content-hash-based incremental tree backup")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	doneChan := make(chan int, 1)

	prog, err := newProgram(os.Args, afero.NewOsFs(), os.Stdout, os.Stderr)
	if prog == nil || err != nil {
		exitCode = exitCodeConfigFailure

		return
	}

	go func() {
		code, _ := prog.run(ctx)
		doneChan <- code
	}()

	select {
	case code := <-doneChan:
		exitCode = code

		return

	case <-sigChan:
		prog.log.Warn("received interrupt signal; shutting down (waiting up to 10s)...")
		cancel()

		select {
		case code := <-doneChan:
			exitCode = code

			return

		case <-time.After(exitTimeout):
			prog.log.Error("timed out while waiting for program exit; killing...", "error-type", "fatal")
			exitCode = exitCodeFailure

			return
		}
	}
}

func newProgram(cliArgs []string, fsys afero.Fs, stdout io.Writer, stderr io.Writer) (*program, error) {
	prog := &program{
		fsys:   fsys,
		stdout: stdout,
		stderr: stderr,
	}

	if err := prog.parseArgs(cliArgs); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to parse configuration: %v\n\n", err)
		if prog.flags != nil {
			prog.flags.Usage()
		}

		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := prog.validateConfig(); err != nil {
		fmt.Fprintf(prog.stderr, "fatal: failed to validate configuration: %v\n\n", err)
		prog.flags.Usage()

		return nil, fmt.Errorf("failed to validate configuration: %w", err)
	}

	prog.printConfig()

	prog.log = slog.New(prog.logHandler())

	return prog, nil
}

func (prog *program) run(ctx context.Context) (retExitCode int, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			prog.log.Error("internal panic recovered", "error", r, "error-type", "fatal")
			debug.PrintStack()
			retExitCode = exitCodeFailure
		}
	}()

	if prog.cfg.DryRun {
		prog.log.Warn("running in dry mode - no changes will be made")
	}

	var exts, folders []string
	if prog.ignorePath != "" {
		patterns, err := ignorefile.Parse(prog.fsys, prog.log, prog.ignorePath)
		if err != nil {
			prog.log.Error("failed reading ignore file", "path", prog.ignorePath, "error", err, "error-type", "fatal")

			return exitCodeFailure, fmt.Errorf("failed reading ignore file: %w", err)
		}

		exts = patterns.Extensions
		folders = patterns.Folders
	}

	req := orchestrator.BackupRequest{
		Mode:             prog.cfg.Mode,
		InputPaths:       prog.cfg.InputPaths,
		OutputPath:       prog.cfg.OutputPath,
		MaxBackups:       prog.cfg.MaxBackups,
		IgnoreExtensions: append(append([]string{}, prog.cfg.IgnoreExtensions...), exts...),
		IgnoreFolders:    append(append([]string{}, prog.cfg.IgnoreFolders...), folders...),
		Verify:           true,
		DryRun:           prog.cfg.DryRun,
		SkipFailed:       prog.cfg.SkipFailed,
	}

	orch := orchestrator.New(prog.fsys, prog.log)

	prog.log.Info("starting backup run", "mode", req.Mode, "inputs", req.InputPaths, "output", req.OutputPath)

	result, err := orch.Run(ctx, req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			prog.log.Error("backup run failed", "error", err, "error-type", "fatal")
		}

		return exitCodeFailure, fmt.Errorf("backup run failed: %w", err)
	}

	totalBytes := sumEntrySizes(prog.fsys, result.Manifest)

	prog.log.Info("backup run completed",
		"files", result.Manifest.Files,
		"folders", result.Manifest.Folders,
		"bytes", humanize.Bytes(totalBytes),
		"corrupted", result.Corrupted,
	)

	if result.Corrupted > 0 {
		prog.log.Warn("corruption detected during verification", "corrupted", result.Corrupted)

		return exitCodeCorruption, nil
	}

	if result.HasPartialFailures {
		if prog.cfg.SkipFailed {
			prog.log.Warn("run completed with partial failures (ignored: --skip-failed)")

			return exitCodeSuccess, nil
		}

		prog.log.Warn("run completed with partial failures")

		return exitCodePartialFailure, nil
	}

	return exitCodeSuccess, nil
}

func sumEntrySizes(fsys afero.Fs, m *manifest.Manifest) uint64 {
	var total uint64

	for _, s := range m.Snapshots {
		for _, e := range s.Entries {
			if !e.IsFile {
				continue
			}

			info, err := fsys.Stat(e.OutputPath)
			if err != nil {
				continue
			}

			total += uint64(info.Size())
		}
	}

	return total
}
