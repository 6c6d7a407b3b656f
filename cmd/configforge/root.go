package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"configforge/internal/app"
	"configforge/internal/config"
)

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	configPath string
	jsonOut    bool
	app        *app.App
	appOpts    []app.Option
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{appOpts: opts}
	root := &cobra.Command{
		Use:           "configforge",
		Short:         "Hierarchical industrial configuration with live calculations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsApp(cmd) {
				return nil
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, append([]app.Option{app.WithLogOutput(cmd.ErrOrStderr())}, c.appOpts...)...)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default configforge.yaml or $CONFIGFORGE_CONFIG)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		c.stateCmd(),
		c.optionsCmd(),
		c.selectCmd(),
		c.setCmd(),
		c.resetCmd(),
		c.recalcCmd(),
		c.stepCmd(),
		c.calcCmd(),
		c.patchCmd(),
		c.askCmd(),
		c.reviewCmd(),
		c.exportCmd(),
		c.serveCmd(),
		c.wizardCmd(),
	)
	return root
}

// skipsApp is true for help and shell completion, which need no store.
func skipsApp(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		switch cmd.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
