package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/linnemanlabs-seed/internal/cfg"
)

func newRootCmd() *cobra.Command {
	var conf cfg.App

	root := &cobra.Command{
		Use:   "seedctl",
		Short: "Seed static storage from a CMS by rendering pages through its own web server",
		Long: `seedctl renders every item, route and asset listed in a manifest through the
site's loopback web server and hands the results to the configured sinks.

Every flag can also be set from the environment: --local-server reads
SEED_LOCAL_SERVER. Flags passed on the command line win.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg.FillFromEnv(cmd.Flags(), cfg.EnvPrefix, func(format string, args ...any) {
				fmt.Fprintf(os.Stderr, format+"\n", args...)
			})
		},
	}
	cfg.Register(root.PersistentFlags(), &conf)

	root.AddCommand(
		newSeedCmd(&conf),
		newServeCmd(&conf),
		newTokenCmd(&conf),
		newMigrateCmd(&conf),
		newVersionCmd(),
	)
	return root
}
