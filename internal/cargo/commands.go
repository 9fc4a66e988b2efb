// Package cargo translates tool calls into cargo invocations and runs them,
// through a pooled shell when one is available.
package cargo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AltairaLabs/async-cargo-mcp/internal/config"
)

// ParamKind is the JSON type of a tool parameter
type ParamKind string

const (
	KindString  ParamKind = "string"
	KindBool    ParamKind = "boolean"
	KindNumber  ParamKind = "number"
	KindStrings ParamKind = "array"
)

// Param describes one tool parameter
type Param struct {
	Name        string
	Kind        ParamKind
	Description string
	Required    bool
}

// Command is one entry of the tool catalog
type Command struct {
	Name        string
	Description string
	Params      []Param
	// Argv builds the process argv. Nil for commands handled in-process.
	Argv func(Args) ([]string, error)
	// Internal runs commands that need no subprocess
	Internal func(ctx context.Context, args Args) (string, error)
}

// Shared parameters
var (
	paramPackage           = Param{Name: "package", Kind: KindString, Description: "Package to operate on (-p)"}
	paramFeatures          = Param{Name: "features", Kind: KindStrings, Description: "Features to activate"}
	paramAllFeatures       = Param{Name: "all_features", Kind: KindBool, Description: "Activate all available features"}
	paramNoDefaultFeatures = Param{Name: "no_default_features", Kind: KindBool, Description: "Do not activate the default feature"}
	paramRelease           = Param{Name: "release", Kind: KindBool, Description: "Use the release profile"}
	paramArgs              = Param{Name: "args", Kind: KindStrings, Description: "Additional arguments passed through to cargo"}
)

var compileParams = []Param{paramPackage, paramFeatures, paramAllFeatures, paramNoDefaultFeatures, paramRelease, paramArgs}

// compileFlags appends the flags shared by compiling subcommands
func compileFlags(argv []string, a Args) []string {
	if p := a.String("package"); p != "" {
		argv = append(argv, "-p", p)
	}
	if features := a.Strings("features"); len(features) > 0 {
		argv = append(argv, "--features", strings.Join(features, ","))
	}
	if a.Bool("all_features") {
		argv = append(argv, "--all-features")
	}
	if a.Bool("no_default_features") {
		argv = append(argv, "--no-default-features")
	}
	if a.Bool("release") {
		argv = append(argv, "--release")
	}
	return argv
}

func requireString(a Args, key string) (string, error) {
	v := a.String(key)
	if v == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return v, nil
}

// simple builds an argv function for a compiling subcommand
func simple(sub ...string) func(Args) ([]string, error) {
	return func(a Args) ([]string, error) {
		argv := compileFlags(append([]string{"cargo"}, sub...), a)
		return append(argv, a.Strings("args")...), nil
	}
}

var catalog = map[string]Command{
	config.ToolBuild: {
		Name:        config.ToolBuild,
		Description: "Build the Rust project with cargo build",
		Params:      compileParams,
		Argv:        simple("build"),
	},
	config.ToolCheck: {
		Name:        config.ToolCheck,
		Description: "Check the Rust project for errors with cargo check",
		Params:      compileParams,
		Argv:        simple("check"),
	},
	config.ToolTest: {
		Name:        config.ToolTest,
		Description: "Run tests with cargo test",
		Params: append([]Param{
			{Name: "test_name", Kind: KindString, Description: "Only run tests whose name contains this string"},
			{Name: "nocapture", Kind: KindBool, Description: "Show test output (--nocapture)"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "test"}, a)
			argv = append(argv, a.Strings("args")...)
			if name := a.String("test_name"); name != "" {
				argv = append(argv, name)
			}
			if a.Bool("nocapture") {
				argv = append(argv, "--", "--nocapture")
			}
			return argv, nil
		},
	},
	config.ToolRun: {
		Name:        config.ToolRun,
		Description: "Run a binary of the Rust project with cargo run",
		Params: append([]Param{
			{Name: "bin", Kind: KindString, Description: "Name of the binary to run"},
			{Name: "program_args", Kind: KindStrings, Description: "Arguments passed to the program after --"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "run"}, a)
			if bin := a.String("bin"); bin != "" {
				argv = append(argv, "--bin", bin)
			}
			argv = append(argv, a.Strings("args")...)
			if prog := a.Strings("program_args"); len(prog) > 0 {
				argv = append(append(argv, "--"), prog...)
			}
			return argv, nil
		},
	},
	config.ToolDoc: {
		Name:        config.ToolDoc,
		Description: "Build documentation with cargo doc",
		Params: append([]Param{
			{Name: "no_deps", Kind: KindBool, Description: "Do not build documentation for dependencies"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "doc"}, a)
			if a.Bool("no_deps") {
				argv = append(argv, "--no-deps")
			}
			return append(argv, a.Strings("args")...), nil
		},
	},
	config.ToolClippy: {
		Name:        config.ToolClippy,
		Description: "Lint the Rust project with cargo clippy",
		Params: append([]Param{
			{Name: "fix", Kind: KindBool, Description: "Apply suggestions automatically (--fix --allow-dirty)"},
			{Name: "deny_warnings", Kind: KindBool, Description: "Treat warnings as errors (-D warnings)"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "clippy"}, a)
			if a.Bool("fix") {
				argv = append(argv, "--fix", "--allow-dirty")
			}
			argv = append(argv, a.Strings("args")...)
			if a.Bool("deny_warnings") {
				argv = append(argv, "--", "-D", "warnings")
			}
			return argv, nil
		},
	},
	config.ToolFmt: {
		Name:        config.ToolFmt,
		Description: "Format the code with cargo fmt",
		Params: []Param{
			{Name: "check", Kind: KindBool, Description: "Only check formatting (--check)"},
			paramPackage,
			paramArgs,
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "fmt"}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			if a.Bool("check") {
				argv = append(argv, "--check")
			}
			return append(argv, a.Strings("args")...), nil
		},
	},
	config.ToolClean: {
		Name:        config.ToolClean,
		Description: "Remove build artifacts with cargo clean",
		Params: []Param{
			paramPackage,
			paramRelease,
			{Name: "doc", Kind: KindBool, Description: "Only clean documentation"},
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "clean"}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			if a.Bool("release") {
				argv = append(argv, "--release")
			}
			if a.Bool("doc") {
				argv = append(argv, "--doc")
			}
			return argv, nil
		},
	},
	config.ToolUpdate: {
		Name:        config.ToolUpdate,
		Description: "Update dependencies in Cargo.lock with cargo update",
		Params: []Param{
			paramPackage,
			{Name: "dry_run", Kind: KindBool, Description: "Do not write the lockfile"},
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "update"}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			if a.Bool("dry_run") {
				argv = append(argv, "--dry-run")
			}
			return argv, nil
		},
	},
	config.ToolAdd: {
		Name:        config.ToolAdd,
		Description: "Add a dependency with cargo add",
		Params: []Param{
			{Name: "dependency", Kind: KindString, Description: "Crate to add, optionally with @version", Required: true},
			{Name: "version", Kind: KindString, Description: "Version requirement"},
			paramFeatures,
			{Name: "dev", Kind: KindBool, Description: "Add as a dev-dependency"},
			{Name: "optional", Kind: KindBool, Description: "Mark the dependency optional"},
			paramPackage,
		},
		Argv: func(a Args) ([]string, error) {
			dep, err := requireString(a, "dependency")
			if err != nil {
				return nil, err
			}
			if v := a.String("version"); v != "" {
				dep += "@" + v
			}
			argv := []string{"cargo", "add", dep}
			if features := a.Strings("features"); len(features) > 0 {
				argv = append(argv, "--features", strings.Join(features, ","))
			}
			if a.Bool("dev") {
				argv = append(argv, "--dev")
			}
			if a.Bool("optional") {
				argv = append(argv, "--optional")
			}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			return argv, nil
		},
	},
	config.ToolRemove: {
		Name:        config.ToolRemove,
		Description: "Remove a dependency with cargo remove",
		Params: []Param{
			{Name: "dependency", Kind: KindString, Description: "Crate to remove", Required: true},
			{Name: "dev", Kind: KindBool, Description: "Remove from dev-dependencies"},
			paramPackage,
		},
		Argv: func(a Args) ([]string, error) {
			dep, err := requireString(a, "dependency")
			if err != nil {
				return nil, err
			}
			argv := []string{"cargo", "remove", dep}
			if a.Bool("dev") {
				argv = append(argv, "--dev")
			}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			return argv, nil
		},
	},
	config.ToolTree: {
		Name:        config.ToolTree,
		Description: "Display the dependency tree with cargo tree",
		Params: []Param{
			paramPackage,
			{Name: "depth", Kind: KindNumber, Description: "Maximum display depth"},
			{Name: "invert", Kind: KindString, Description: "Invert the tree for this package"},
			{Name: "duplicates", Kind: KindBool, Description: "Show only duplicated dependencies"},
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "tree"}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			if depth, ok := a.Int("depth"); ok {
				argv = append(argv, "--depth", strconv.Itoa(depth))
			}
			if inv := a.String("invert"); inv != "" {
				argv = append(argv, "--invert", inv)
			}
			if a.Bool("duplicates") {
				argv = append(argv, "--duplicates")
			}
			return argv, nil
		},
	},
	config.ToolFix: {
		Name:        config.ToolFix,
		Description: "Apply compiler suggestions with cargo fix",
		Params: append([]Param{
			{Name: "allow_dirty", Kind: KindBool, Description: "Fix even with uncommitted changes"},
			{Name: "edition", Kind: KindBool, Description: "Apply edition migration fixes"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "fix"}, a)
			if a.Bool("allow_dirty") {
				argv = append(argv, "--allow-dirty")
			}
			if a.Bool("edition") {
				argv = append(argv, "--edition")
			}
			return append(argv, a.Strings("args")...), nil
		},
	},
	config.ToolBench: {
		Name:        config.ToolBench,
		Description: "Run benchmarks with cargo bench",
		Params: append([]Param{
			{Name: "bench_name", Kind: KindString, Description: "Only run benchmarks matching this name"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "bench"}, a)
			argv = append(argv, a.Strings("args")...)
			if name := a.String("bench_name"); name != "" {
				argv = append(argv, name)
			}
			return argv, nil
		},
	},
	config.ToolNextest: {
		Name:        config.ToolNextest,
		Description: "Run tests with cargo nextest (requires cargo-nextest)",
		Params: append([]Param{
			{Name: "filter", Kind: KindString, Description: "Test name filter"},
		}, compileParams...),
		Argv: func(a Args) ([]string, error) {
			argv := compileFlags([]string{"cargo", "nextest", "run"}, a)
			argv = append(argv, a.Strings("args")...)
			if f := a.String("filter"); f != "" {
				argv = append(argv, f)
			}
			return argv, nil
		},
	},
	config.ToolAudit: {
		Name:        config.ToolAudit,
		Description: "Audit Cargo.lock for vulnerable crates (requires cargo-audit)",
		Params: []Param{
			{Name: "ignore", Kind: KindStrings, Description: "Advisory ids to ignore"},
			{Name: "deny_warnings", Kind: KindBool, Description: "Exit with an error on warnings"},
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "audit"}
			for _, id := range a.Strings("ignore") {
				argv = append(argv, "--ignore", id)
			}
			if a.Bool("deny_warnings") {
				argv = append(argv, "--deny", "warnings")
			}
			return argv, nil
		},
	},
	config.ToolVersion: {
		Name:        config.ToolVersion,
		Description: "Show the installed cargo version",
		Argv: func(Args) ([]string, error) {
			return []string{"cargo", "--version", "--verbose"}, nil
		},
	},
	config.ToolMetadata: {
		Name:        config.ToolMetadata,
		Description: "Output workspace metadata as JSON with cargo metadata",
		Params: []Param{
			{Name: "no_deps", Kind: KindBool, Description: "Only include workspace members"},
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "metadata", "--format-version", "1"}
			if a.Bool("no_deps") {
				argv = append(argv, "--no-deps")
			}
			return argv, nil
		},
	},
	config.ToolInstall: {
		Name:        config.ToolInstall,
		Description: "Install a Rust binary with cargo install",
		Params: []Param{
			{Name: "crate_name", Kind: KindString, Description: "Crate to install", Required: true},
			{Name: "version", Kind: KindString, Description: "Version to install"},
			{Name: "force", Kind: KindBool, Description: "Reinstall even if already installed"},
		},
		Argv: func(a Args) ([]string, error) {
			name, err := requireString(a, "crate_name")
			if err != nil {
				return nil, err
			}
			argv := []string{"cargo", "install", name}
			if v := a.String("version"); v != "" {
				argv = append(argv, "--version", v)
			}
			if a.Bool("force") {
				argv = append(argv, "--force")
			}
			return argv, nil
		},
	},
	config.ToolUpgrade: {
		Name:        config.ToolUpgrade,
		Description: "Upgrade dependency requirements in Cargo.toml (requires cargo-edit)",
		Params: []Param{
			paramPackage,
			{Name: "incompatible", Kind: KindBool, Description: "Allow incompatible upgrades"},
			{Name: "dry_run", Kind: KindBool, Description: "Print changes without writing"},
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "upgrade"}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			if a.Bool("incompatible") {
				argv = append(argv, "--incompatible")
			}
			if a.Bool("dry_run") {
				argv = append(argv, "--dry-run")
			}
			return argv, nil
		},
	},
	config.ToolBumpVersion: {
		Name:        config.ToolBumpVersion,
		Description: "Bump the crate version with cargo set-version (requires cargo-edit)",
		Params: []Param{
			{Name: "bump", Kind: KindString, Description: "One of major, minor, patch, release, rc, beta, alpha"},
			{Name: "version", Kind: KindString, Description: "Exact version to set instead of bumping"},
			paramPackage,
		},
		Argv: func(a Args) ([]string, error) {
			argv := []string{"cargo", "set-version"}
			switch bump, exact := a.String("bump"), a.String("version"); {
			case exact != "":
				argv = append(argv, exact)
			case bump != "":
				if !validBump[bump] {
					return nil, fmt.Errorf("invalid bump level %q", bump)
				}
				argv = append(argv, "--bump", bump)
			default:
				return nil, fmt.Errorf("either %q or %q is required", "bump", "version")
			}
			if p := a.String("package"); p != "" {
				argv = append(argv, "-p", p)
			}
			return argv, nil
		},
	},
	config.ToolSearch: {
		Name:        config.ToolSearch,
		Description: "Search crates.io with cargo search",
		Params: []Param{
			{Name: "query", Kind: KindString, Description: "Search terms", Required: true},
			{Name: "limit", Kind: KindNumber, Description: "Maximum number of results"},
		},
		Argv: func(a Args) ([]string, error) {
			q, err := requireString(a, "query")
			if err != nil {
				return nil, err
			}
			argv := []string{"cargo", "search", q}
			if limit, ok := a.Int("limit"); ok && limit > 0 {
				argv = append(argv, "--limit", strconv.Itoa(limit))
			}
			return argv, nil
		},
	},
	config.ToolSleep: {
		Name:        config.ToolSleep,
		Description: "Sleep for a number of seconds; used to exercise timeouts, cancellation and waits",
		Params: []Param{
			{Name: "duration_secs", Kind: KindNumber, Description: "Seconds to sleep (default 1)"},
		},
		Internal: sleep,
	},
}

var validBump = map[string]bool{
	"major": true, "minor": true, "patch": true, "release": true, "rc": true, "beta": true, "alpha": true,
}

func sleep(ctx context.Context, a Args) (string, error) {
	secs, ok := a.Int("duration_secs")
	if !ok || secs < 0 {
		secs = 1
	}
	d := time.Duration(secs) * time.Second

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return fmt.Sprintf("Slept for %d seconds", secs), nil
	case <-ctx.Done():
		return "", fmt.Errorf("sleep interrupted: %w", ctx.Err())
	}
}

// Lookup returns the catalog entry for a tool name
func Lookup(name string) (Command, bool) {
	cmd, ok := catalog[name]
	return cmd, ok
}

// Commands returns the whole catalog ordered by name
func Commands() []Command {
	out := make([]Command, 0, len(catalog))
	for _, cmd := range catalog {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
