package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zoobzio/ludus"
)

func newInstanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Create, run, clear and list instances",
	}
	cmd.AddCommand(
		newInstanceCreateCmd(a),
		newInstanceRunCmd(a),
		newInstanceClearCmd(a),
		newInstanceLsCmd(a),
	)
	return cmd
}

func newInstanceCreateCmd(a *app) *cobra.Command {
	var opts ludus.CreateOptions
	cmd := &cobra.Command{
		Use:   "create <archetype> <name>",
		Short: "Create an instance from an archetype",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			return c.CreateInstance(cmd.Context(), args[1], args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace the instance if it exists")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "pass --force to instance-create")
	return cmd
}

func newInstanceRunCmd(a *app) *cobra.Command {
	var opts ludus.RunOptions
	cmd := &cobra.Command{
		Use:   "run <name> [command...]",
		Short: "Run an instance and stream its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			opts.Commands = args[1:]
			opts.Stdout = cmd.OutOrStdout()
			session, err := c.StartInstance(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			_, err = consumeSession(cmd.Context(), session)
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "pass --verbose to instance-run")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "pass --dry-run to instance-run")
	return cmd
}

// consumeSession drains the session's events until it ends. Output reaches
// stdout through RunOptions.Stdout, so dropped output events lose nothing.
// On ctx cancellation it stops the session. It returns the session's result.
func consumeSession(ctx context.Context, session *ludus.Session) (int, error) {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop(context.Background())
		case <-stopped:
		}
	}()

	for range session.Events() {
	}
	return session.Wait()
}

func newInstanceClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <name>",
		Short: "Remove an instance without prompting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			return c.ClearInstance(cmd.Context(), args[0])
		},
	}
}

func newInstanceLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			instances, err := c.Instances()
			if err != nil {
				return err
			}
			for _, inst := range instances {
				fmt.Fprintln(cmd.OutOrStdout(), inst.Name)
			}
			return nil
		},
	}
}

func newArchetypeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archetype",
		Short: "Inspect archetypes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List archetypes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			archetypes, err := c.Archetypes()
			if err != nil {
				return err
			}
			for _, arch := range archetypes {
				fmt.Fprintln(cmd.OutOrStdout(), arch.Name)
			}
			return nil
		},
	})
	return cmd
}
