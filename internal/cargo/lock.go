package cargo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is the file cargo locks while it writes to a target directory
const LockFileName = ".cargo-lock"

// LockFile is one cargo build lock found under a project's target directory
type LockFile struct {
	Path string
	// Held is true when a live process holds the lock
	Held bool
}

// FindLocks lists every .cargo-lock under dir/target
func FindLocks(dir string) ([]string, error) {
	target := filepath.Join(dir, "target")
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var locks []string
	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped
			if d != nil && d.IsDir() && path != target {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == LockFileName {
			locks = append(locks, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", target, err)
	}
	sort.Strings(locks)
	return locks, nil
}

// ProbeLock reports whether a lock file is currently held by another
// process. A lock that can be taken is released again immediately.
func ProbeLock(path string) (bool, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", path, err)
	}
	if !locked {
		return true, nil
	}
	_ = lock.Unlock()
	return false, nil
}

// Canceller cancels every active operation in a working directory
type Canceller interface {
	CancelByWorkingDirectory(dir string) []string
}

// RemediationOptions selects what Remediate may do
type RemediationOptions struct {
	// DeleteLockFiles removes stale .cargo-lock files
	DeleteLockFiles bool
	// Force also removes locks that are still held
	Force bool
	// CargoClean runs cargo clean afterwards
	CargoClean bool
}

// RemediationReport describes what Remediate did
type RemediationReport struct {
	Directory           string
	CancelledOperations []string
	Locks               []LockFile
	Removed             []string
	Kept                []string
	CleanOutput         string
	CleanError          string
}

// Remediate recovers a project whose build is blocked on a cargo lock. It
// cancels the project's active operations, then removes stale lock files
// and optionally runs cargo clean.
func Remediate(ctx context.Context, dir string, ops Canceller, runner *Runner, opts RemediationOptions, logger *slog.Logger) (RemediationReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	report := RemediationReport{Directory: dir}

	if ops != nil {
		report.CancelledOperations = ops.CancelByWorkingDirectory(dir)
	}

	paths, err := FindLocks(dir)
	if err != nil {
		return report, err
	}
	for _, path := range paths {
		held, err := ProbeLock(path)
		if err != nil {
			logger.Warn("Could not probe cargo lock", "path", path, "error", err)
			held = true
		}
		report.Locks = append(report.Locks, LockFile{Path: path, Held: held})

		if !opts.DeleteLockFiles || (held && !opts.Force) {
			report.Kept = append(report.Kept, path)
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Could not remove cargo lock", "path", path, "error", err)
			report.Kept = append(report.Kept, path)
			continue
		}
		report.Removed = append(report.Removed, path)
	}

	if opts.CargoClean && runner != nil {
		out, err := runner.Run(ctx, "", dir, []string{"cargo", "clean"}, 2*time.Minute, nil)
		report.CleanOutput = out.Text()
		if err != nil {
			report.CleanError = err.Error()
		}
	}

	logger.Info("Cargo lock remediation finished",
		"working_dir", dir,
		"cancelled", len(report.CancelledOperations),
		"locks", len(report.Locks),
		"removed", len(report.Removed),
	)
	return report, nil
}

// String renders the report for a remote caller
func (r RemediationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cargo lock remediation for %s\n", r.Directory)

	if len(r.CancelledOperations) == 0 {
		b.WriteString("No active operations were running in this directory.\n")
	} else {
		fmt.Fprintf(&b, "Cancelled %d active operation(s): %s\n",
			len(r.CancelledOperations), strings.Join(r.CancelledOperations, ", "))
	}

	if len(r.Locks) == 0 {
		b.WriteString("No .cargo-lock files found under target/.\n")
	}
	for _, l := range r.Locks {
		state := "stale"
		if l.Held {
			state = "held by a running process"
		}
		fmt.Fprintf(&b, "- %s (%s)\n", l.Path, state)
	}
	if len(r.Removed) > 0 {
		fmt.Fprintf(&b, "Removed %d lock file(s).\n", len(r.Removed))
	}
	if len(r.Kept) > 0 {
		fmt.Fprintf(&b, "Kept %d lock file(s). Pass delete_target_lock_files (and force for held locks) to remove them.\n", len(r.Kept))
	}

	if r.CleanError != "" {
		fmt.Fprintf(&b, "cargo clean failed: %s\n", r.CleanError)
	} else if r.CleanOutput != "" {
		fmt.Fprintf(&b, "cargo clean: %s\n", r.CleanOutput)
	}
	return strings.TrimRight(b.String(), "\n")
}
