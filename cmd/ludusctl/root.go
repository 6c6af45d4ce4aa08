package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/zoobzio/ludus"
)

// Version is the ludusctl release.
const Version = "0.3.0"

// app carries the global flags and the streams commands write to.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	runner     ludus.Runner // nil selects ludus.ExecRunner
	root       string
	configPath string
	executable string
	logLevel   string
	timeout    time.Duration
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ludusctl",
		Short:         "ludusctl manages ludus instances and their configuration",
		Long:          `ludusctl creates, runs and clears ludus instances and reads and writes their configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	defaultRoot := os.Getenv("LUDUS_ROOT")
	if defaultRoot == "" {
		defaultRoot = "."
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.root, "root", defaultRoot, "ludus root directory")
	pf.StringVar(&a.configPath, "config", "", "YAML or TOML configuration file")
	pf.StringVar(&a.executable, "executable", "", "single executable taking the verb as first argument")
	pf.StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.DurationVar(&a.timeout, "timeout", 0, "timeout for each tool invocation (0 disables)")

	cmd.AddCommand(
		newInstanceCmd(a),
		newArchetypeCmd(a),
		newConfigCmd(a),
		newCheckCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// config resolves the effective configuration. Flags set on the command
// line override the configuration file.
func (a *app) config(cmd *cobra.Command) (ludus.Config, error) {
	cfg := ludus.NewConfig(a.root)
	if a.configPath != "" {
		loaded, err := ludus.LoadConfig(a.configPath)
		if err != nil {
			return ludus.Config{}, err
		}
		cfg = loaded
		if cmd.Flags().Changed("root") {
			cfg.Root = a.root
		}
	}
	if cmd.Flags().Changed("executable") {
		cfg.Executable = a.executable
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = a.timeout
	}
	return cfg, nil
}

func (a *app) logger() (*log.Logger, error) {
	level, err := log.ParseLevel(strings.ToLower(a.logLevel))
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		Prefix:          "ludusctl",
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}), nil
}

func (a *app) controller(cmd *cobra.Command) (*ludus.Controller, error) {
	cfg, err := a.config(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := a.logger()
	if err != nil {
		return nil, err
	}
	return ludus.NewController(cfg, a.runner, ludus.WithLogger(logger))
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every tool verb can be executed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			if err := c.Preflight(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ludusctl",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ludusctl version %s\n", Version)
		},
	}
}
