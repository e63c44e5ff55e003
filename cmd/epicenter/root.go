package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/epicenter-detector/internal/observability"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel  string
	logFormat string
	tuning    string
}

func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	return observability.NewLoggerTo(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
}

func newRootCommand() *cobra.Command {
	globals := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "epicenter",
		Short:         "Locate energetic epicenters in video with dense optical flow",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&globals.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&globals.logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&globals.tuning, "tuning", "", "TOML tuning file")

	rootCmd.AddCommand(newAnalyzeCommand(globals))
	rootCmd.AddCommand(newBatchCommand(globals))
	rootCmd.AddCommand(newServeCommand(globals))
	rootCmd.AddCommand(newHistoryCommand(globals))
	rootCmd.AddCommand(newSynthCommand())

	return rootCmd
}
