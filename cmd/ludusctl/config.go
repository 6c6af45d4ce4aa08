package main

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/zoobzio/ludus"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write instance configuration",
	}
	cmd.AddCommand(newConfigSetCmd(a), newConfigGetCmd(a))
	return cmd
}

func newConfigSetCmd(a *app) *cobra.Command {
	var (
		typeName string
		opts     ludus.SetOptions
	)
	cmd := &cobra.Command{
		Use:   "set <name> <key>... <value>",
		Short: "Set a configuration value",
		Long: `Set the value at a key path. Key segments are separate arguments:

  ludusctl config set a config key 3 --type int

Put -- before the arguments when the value starts with a dash:

  ludusctl config set --type int -- a config key -3`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ludus.ParseValueType(typeName)
			if err != nil {
				return err
			}
			value, err := ludus.ParseValue(t, args[len(args)-1])
			if err != nil {
				return err
			}
			key := ludus.Key(args[1 : len(args)-1]...)

			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			return c.SetConfig(cmd.Context(), args[0], key, value, opts)
		},
	}
	cmd.Flags().StringVar(&typeName, "type", string(ludus.TypeStr), "value type (int, float, str, bool)")
	cmd.Flags().BoolVar(&opts.WriteBack, "write-back", false, "persist the change to backing storage")
	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> <key path>...",
		Short: "Print configuration values, one line per key path",
		Long: `Print the value at each key path, in order. A key path with more than
one segment is quoted:

  ludusctl config get a "config key" "config other"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := lo.Map(args[1:], func(s string, _ int) ludus.KeyPath {
				return ludus.ParseKeyPath(s)
			})

			c, err := a.controller(cmd)
			if err != nil {
				return err
			}
			values, err := c.GetConfig(cmd.Context(), args[0], keys...)
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}
