package ludus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Tool verbs.
const (
	VerbInstanceCreate = "instance-create"
	VerbInstanceRun    = "instance-run"
	VerbInstanceClear  = "instance-clear"
	VerbConfigSet      = "config-set"
	VerbConfigGet      = "config-get"
)

// Verbs lists every verb the controller invokes.
var Verbs = []string{
	VerbInstanceCreate,
	VerbInstanceRun,
	VerbInstanceClear,
	VerbConfigSet,
	VerbConfigGet,
}

// Command is one invocation of the tool: a verb and its ordered arguments.
type Command struct {
	Verb string
	Args []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Verb}, c.Args...), " ")
}

// Result is what a Runner observed once the process exited.
type Result struct {
	Stderr   string // captured error stream
	ExitCode int
}

// Runner executes tool commands.
// Run blocks until the process exits and streams its stdout to the provided
// writer. A non-zero exit status is reported in Result and is not itself an
// error; the error return is reserved for process-level failures such as an
// unresolvable program or a finished context.
type Runner interface {
	Run(ctx context.Context, cmd Command, stdout io.Writer) (Result, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	root       string
	executable string
	searchDirs []string
	env        []string
	grace      time.Duration
}

// NewExecRunner builds an ExecRunner for cfg. The dotenv file named by
// cfg.EnvFile is read once here.
func NewExecRunner(cfg Config) (*ExecRunner, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	extra, err := cfg.Environment()
	if err != nil {
		return nil, err
	}

	searchDirs := make([]string, 0, len(cfg.ExtraPaths)+1)
	searchDirs = append(searchDirs, cfg.ScriptPath())
	for _, p := range cfg.ExtraPaths {
		searchDirs = append(searchDirs, cfg.resolve(p))
	}

	return &ExecRunner{
		root:       cfg.Root,
		executable: cfg.Executable,
		searchDirs: searchDirs,
		env:        buildEnv(os.Environ(), searchDirs, extra),
		grace:      cfg.GracePeriod,
	}, nil
}

// buildEnv prefixes PATH with dirs and appends extra. exec.Cmd keeps the
// last value of a duplicated key, so extra overrides base.
func buildEnv(base []string, dirs []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra)+1)
	path := ""
	for _, kv := range base {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
			continue
		}
		env = append(env, kv)
	}
	parts := append([]string{}, dirs...)
	if path != "" {
		parts = append(parts, path)
	}
	env = append(env, "PATH="+strings.Join(parts, string(os.PathListSeparator)))

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// Preflight checks that every verb resolves to an executable.
// Returns ErrToolUnavailable otherwise.
func (r *ExecRunner) Preflight(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.executable != "" {
		if _, err := r.lookPath(r.executable); err != nil {
			return fmt.Errorf("%w: %w", ErrToolUnavailable, err)
		}
		return nil
	}
	for _, verb := range Verbs {
		if _, err := r.lookPath(verb); err != nil {
			return fmt.Errorf("%w: %w", ErrToolUnavailable, err)
		}
	}
	return nil
}

// lookPath searches the configured directories before the inherited PATH.
func (r *ExecRunner) lookPath(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(r.root, name)
		}
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s: not an executable file", name)
	}
	for _, dir := range r.searchDirs {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	return path, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

// commandLine resolves the program and full argument list for c.
func (r *ExecRunner) commandLine(c Command) (string, []string, error) {
	if r.executable != "" {
		path, err := r.lookPath(r.executable)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrToolUnavailable, err)
		}
		return path, append([]string{c.Verb}, c.Args...), nil
	}
	path, err := r.lookPath(c.Verb)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrToolUnavailable, err)
	}
	return path, c.Args, nil
}

// Run executes c with the tool root as working directory. When ctx ends
// the process receives SIGTERM and, after the grace period, SIGKILL.
func (r *ExecRunner) Run(ctx context.Context, c Command, stdout io.Writer) (Result, error) {
	name, args, err := r.commandLine(c)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	if stdout == nil {
		stdout = io.Discard
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.root
	cmd.Env = r.env
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	err = cmd.Run()
	if err == nil {
		return Result{Stderr: stderr.String()}, nil
	}

	// A finished context takes precedence over the exit status it caused.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{ExitCode: -1, Stderr: stderr.String()}, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}, nil
	}
	return Result{ExitCode: -1, Stderr: stderr.String()}, fmt.Errorf("%s: %w", c.Verb, err)
}

// createCmd returns the instance-create command.
func createCmd(cfg Config, name, archetype string, opts CreateOptions) Command {
	args := []string{archetype, name}
	if opts.Overwrite {
		args = append(args, "--overwrite")
	}
	if opts.Force {
		args = append(args, "--force")
	}
	args = append(args, "--instances-dir", cfg.InstancesPath())
	return Command{Verb: VerbInstanceCreate, Args: args}
}

// runCmd returns the instance-run command.
func runCmd(cfg Config, name string, opts RunOptions) Command {
	args := append([]string{name}, opts.Commands...)
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, "--instances-dir", cfg.InstancesPath(), "--codebase", cfg.CodebasePath())
	return Command{Verb: VerbInstanceRun, Args: args}
}

// clearCmd returns the instance-clear command. --yes skips the tool's
// interactive confirmation.
func clearCmd(cfg Config, name string) Command {
	return Command{
		Verb: VerbInstanceClear,
		Args: []string{name, "--yes", "--instances-dir", cfg.InstancesPath()},
	}
}

// setConfigCmd returns the config-set command.
func setConfigCmd(cfg Config, name string, key KeyPath, value Value, opts SetOptions) Command {
	args := append([]string{name}, key...)
	args = append(args, value.String(), "--type", string(value.Type()))
	if opts.WriteBack {
		args = append(args, "--write-back")
	}
	args = append(args, "--instances-dir", cfg.InstancesPath())
	return Command{Verb: VerbConfigSet, Args: args}
}

// getConfigCmd returns the config-get command. Each key path is a single
// space-joined argument.
func getConfigCmd(cfg Config, name string, keys []KeyPath) Command {
	args := append([]string{name}, keyPathStrings(keys)...)
	args = append(args, "--instances-dir", cfg.InstancesPath())
	return Command{Verb: VerbConfigGet, Args: args}
}
