package ludus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// CreateOptions configures CreateInstance.
type CreateOptions struct {
	Overwrite bool // replace an existing instance
	Force     bool // passed through as --force
}

// RunOptions configures RunInstance and StartInstance.
type RunOptions struct {
	Stdout   io.Writer // receives instance stdout as it is produced; may be nil
	Commands []string  // commands run inside the instance, in order
	Verbose  bool
	DryRun   bool
}

// SetOptions configures SetConfig.
type SetOptions struct {
	// WriteBack persists the change to the instance's backing storage
	// instead of only its session copy.
	WriteBack bool
}

// Controller translates typed calls into tool invocations and tool results
// into typed values or errors. It holds no mutable state and is safe for
// concurrent use. Use NewController to create one.
type Controller struct {
	runner     Runner
	classifier *Classifier
	logger     *log.Logger
	metrics    *Metrics
	cfg        Config
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records every invocation in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController returns a Controller for cfg that executes commands via
// runner. A nil runner selects an ExecRunner built from cfg.
func NewController(cfg Config, runner Runner, opts ...Option) (*Controller, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	classifier, err := NewClassifier(cfg.Patterns)
	if err != nil {
		return nil, err
	}

	if runner == nil {
		r, err := NewExecRunner(cfg)
		if err != nil {
			return nil, err
		}
		runner = r
	}

	c := &Controller{
		cfg:        cfg,
		runner:     runner,
		classifier: classifier,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() Config {
	return c.cfg
}

// Preflight checks that the tool can be executed. It is a no-op for
// runners that have no such check.
func (c *Controller) Preflight(ctx context.Context) error {
	p, ok := c.runner.(interface{ Preflight(context.Context) error })
	if !ok {
		return nil
	}
	return p.Preflight(ctx)
}

// CreateInstance creates instance name from archetype.
// Returns ErrInstanceExists if name exists and opts.Overwrite is false.
func (c *Controller) CreateInstance(ctx context.Context, name, archetype string, opts CreateOptions) error {
	if err := validateName("instance", name); err != nil {
		return err
	}
	if err := validateName("archetype", archetype); err != nil {
		return err
	}
	_, err := c.invoke(ctx, name, createCmd(c.cfg, name, archetype, opts), nil, nil, nil)
	return err
}

// RunInstance runs instance name and blocks until it exits. Stdout is
// streamed to opts.Stdout when set.
// Returns ErrInstanceNotFound if the instance does not exist and
// ErrInstanceExecution, carrying exit code and stderr, for any other failure.
func (c *Controller) RunInstance(ctx context.Context, name string, opts RunOptions) error {
	if err := validateName("instance", name); err != nil {
		return err
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	_, err := c.invoke(ctx, name, runCmd(c.cfg, name, opts), nil, stdout, nil)
	return err
}

// StartInstance starts instance name and returns immediately with a Session
// streaming its stdout as events. Session.Wait returns the error RunInstance
// would have returned. Validation errors are returned here, before any
// process is spawned.
func (c *Controller) StartInstance(ctx context.Context, name string, opts RunOptions) (*Session, error) {
	if err := validateName("instance", name); err != nil {
		return nil, err
	}
	cmd := runCmd(c.cfg, name, opts)
	runCtx, cancel := context.WithCancel(ctx)

	runFn := func(pw io.Writer) (int, error) {
		w := pw
		if opts.Stdout != nil {
			w = io.MultiWriter(pw, opts.Stdout)
		}
		inv, err := c.invoke(runCtx, name, cmd, nil, w, nil)
		return inv.ExitCode, err
	}
	preamble := []Event{{Type: EventStarted, Data: cmd.String(), Time: time.Now()}}

	return newSession(uuid.NewString(), name, cancel, runFn, preamble), nil
}

// ClearInstance removes instance name without prompting.
// Returns ErrInstanceNotFound if it does not exist.
func (c *Controller) ClearInstance(ctx context.Context, name string) error {
	if err := validateName("instance", name); err != nil {
		return err
	}
	_, err := c.invoke(ctx, name, clearCmd(c.cfg, name), nil, nil, nil)
	return err
}

// SetConfig writes value at key for instance name, tagged with the value's type.
// Returns ErrConfigKey if key is not valid for the instance's schema.
func (c *Controller) SetConfig(ctx context.Context, name string, key KeyPath, value Value, opts SetOptions) error {
	if err := validateName("instance", name); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if value == nil {
		return invalidArg("value is nil")
	}
	if err := value.validate(); err != nil {
		return err
	}
	_, err := c.invoke(ctx, name, setConfigCmd(c.cfg, name, key, value, opts), []KeyPath{key}, nil, nil)
	return err
}

// GetConfig reads the values at keys for instance name. The result holds
// one string per key path, in request order.
// Returns ErrConfigKey naming the offending key path when one is unresolvable.
func (c *Controller) GetConfig(ctx context.Context, name string, keys ...KeyPath) ([]string, error) {
	if err := validateName("instance", name); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, invalidArg("no key paths requested")
	}
	for _, k := range keys {
		if err := k.Validate(); err != nil {
			return nil, err
		}
	}

	var values []string
	_, err := c.invoke(ctx, name, getConfigCmd(c.cfg, name, keys), keys, nil, func(inv Invocation) error {
		values = splitLines(inv.Stdout)
		if len(values) != len(keys) {
			return fmt.Errorf("%w: %s %s: %d key paths requested, %d lines returned",
				ErrMalformedOutput, VerbConfigGet, name, len(keys), len(values))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Instance returns the instance directory for name without invoking the tool.
func (c *Controller) Instance(name string) (Instance, error) {
	return DiscoverInstance(c.cfg.InstancesPath(), name)
}

// Instances lists the instance directories without invoking the tool.
func (c *Controller) Instances() ([]Instance, error) {
	return DiscoverInstances(c.cfg.InstancesPath())
}

// Archetypes lists the archetype directories without invoking the tool.
func (c *Controller) Archetypes() ([]Archetype, error) {
	return DiscoverArchetypes(c.cfg.ArchetypesPath())
}

// invoke runs cmd once and classifies the outcome. When stdout is nil the
// tool's stdout is captured into the returned Invocation; otherwise it is
// streamed to stdout only. check, if set, inspects a zero-exit invocation.
func (c *Controller) invoke(
	ctx context.Context,
	instance string,
	cmd Command,
	keys []KeyPath,
	stdout io.Writer,
	check func(Invocation) error,
) (Invocation, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var captured bytes.Buffer
	w := stdout
	if w == nil {
		w = &captured
	}

	c.logger.Debug("invoking tool", "verb", cmd.Verb, "instance", instance, "args", cmd.Args)
	start := time.Now()
	res, runErr := c.runner.Run(ctx, cmd, w)
	inv := Invocation{
		Command:  cmd,
		Stdout:   captured.String(),
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Duration: time.Since(start),
	}

	err := c.result(instance, inv, keys, runErr)
	if err == nil && check != nil {
		if err = check(inv); err != nil {
			c.logger.Warn("unexpected tool output", "verb", cmd.Verb, "instance", instance, "err", err)
		}
	}
	c.metrics.observe(cmd.Verb, err, inv.Duration)
	return inv, err
}

// result maps a finished invocation to the error the caller sees.
func (c *Controller) result(instance string, inv Invocation, keys []KeyPath, runErr error) error {
	verb := inv.Command.Verb
	switch {
	case runErr != nil && errors.Is(runErr, context.DeadlineExceeded):
		c.logger.Warn("tool invocation timed out", "verb", verb, "instance", instance, "duration", inv.Duration)
		return fmt.Errorf("%s %s: %w: %w", verb, instance, ErrTimeout, runErr)
	case runErr != nil && errors.Is(runErr, context.Canceled):
		c.logger.Warn("tool invocation canceled", "verb", verb, "instance", instance)
		return fmt.Errorf("%s %s: %w", verb, instance, runErr)
	case runErr != nil:
		c.logger.Error("tool invocation failed", "verb", verb, "instance", instance, "err", runErr)
		return fmt.Errorf("%s %s: %w", verb, instance, runErr)
	case !inv.Succeeded():
		cerr := c.classifier.Classify(verb, instance, Result{ExitCode: inv.ExitCode, Stderr: inv.Stderr}, keys)
		c.logger.Warn("tool exited with error", "verb", verb, "instance", instance, "code", inv.ExitCode, "kind", cerr.kind)
		return cerr
	default:
		c.logger.Debug("tool finished", "verb", verb, "instance", instance, "duration", inv.Duration)
		return nil
	}
}

// validateName rejects identifiers the tool would misread: empty, padded
// with whitespace, starting with '-' (a flag) or containing a line break.
func validateName(kind, name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return invalidArg("%s name is empty", kind)
	case strings.TrimSpace(name) != name:
		return invalidArg("%s name %q has surrounding whitespace", kind, name)
	case strings.HasPrefix(name, "-"):
		return invalidArg("%s name %q starts with '-'", kind, name)
	case strings.ContainsAny(name, "\r\n"):
		return invalidArg("%s name contains a line break", kind)
	}
	return nil
}

// splitLines splits line-oriented stdout. A single trailing newline ends
// the last line; carriage returns before newlines are dropped.
func splitLines(out string) []string {
	if out == "" {
		return []string{}
	}
	out = strings.TrimSuffix(out, "\n")
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
