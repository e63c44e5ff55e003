package main

import (
	"errors"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/epicenter-detector/internal/adapter/sqlite"
)

func newHistoryCommand(globals *globalFlags) *cobra.Command {
	var (
		storePath string
		limit     int
		format    string
		id        string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List analysis results from the result store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if storePath == "" {
				storePath = sharedcfg.EnvOrDefault("RESULT_STORE_PATH", "")
			}
			if storePath == "" {
				return errors.New("no result store: pass --store or set RESULT_STORE_PATH")
			}
			resolved, err := resolveFormat(cmd, format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := sqlite.Open(ctx, storePath, globals.logger(cmd))
			if err != nil {
				return err
			}
			defer store.Close()

			if id != "" {
				result, err := store.Get(ctx, id)
				if err != nil {
					return err
				}
				return printResult(cmd, resolved, result)
			}

			results, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			return printResults(cmd, resolved, results)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "SQLite result store (default $RESULT_STORE_PATH)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results, newest first")
	cmd.Flags().StringVar(&format, "format", formatAuto, "Output format (auto, json, table, text)")
	cmd.Flags().StringVar(&id, "id", "", "Show a single result by ID")
	return cmd
}
