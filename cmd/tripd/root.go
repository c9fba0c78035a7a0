package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	envFile   string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	var sf serveFlags

	root := &cobra.Command{
		Use:           "tripd",
		Short:         "Trip tracker API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running tripd with no subcommand serves.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, rf, sf)
		},
	}
	root.PersistentFlags().StringVar(&rf.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (missing file is ignored)")
	root.PersistentFlags().StringVar(&rf.logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&rf.logFormat, "log-format", "", "log format override (json|console)")
	addServeFlags(root, &sf)

	root.AddCommand(newServeCmd(&rf), newMigrateCmd(&rf))
	return root
}
