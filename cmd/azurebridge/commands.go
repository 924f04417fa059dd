package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/config"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/mcp"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/server"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/storage"
	"github.com/clodoaldo29/AzureBridge-sub001/internal/syncer"
)

type rootOptions struct {
	configPath string
	project    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "azurebridge",
		Short:         "Azure DevOps sync, effort reconciliation and hybrid search for monthly reports",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("AzureBridge {{.Version}}\n")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the TOML config file (default "+config.DefaultPath+" when present)")
	root.PersistentFlags().StringVar(&opts.project, "project", "", "Azure DevOps project (defaults to azure.project)")

	root.AddCommand(
		newServeCommand(opts),
		newMCPCommand(opts),
		newSyncCommand(opts),
		newBackfillCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(),
	)
	return root
}

func (o *rootOptions) projectID(a *app) string {
	if o.project != "" {
		return o.project
	}
	return a.cfg.Azure.Project
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.configPath, os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			syncs, err := a.newSyncer()
			if err != nil {
				return err
			}
			search := a.newSearchService()
			preparer := a.newPreparer(search)
			srv := server.New(search, preparer, syncs, a.metrics, a.serverOptions(), a.logger.Named("http"))

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			a.logger.Info("shutdown requested")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.logger.Error("HTTP shutdown incomplete", zap.Error(err))
			}
			a.waitPreparations(preparer, shutdownTimeout)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to http.addr)")
	return cmd
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			a, err := openApp(opts.configPath, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			search := a.newSearchService()
			preparer := a.newPreparer(search)
			srv := mcp.NewServer(search, preparer, opts.projectID(a), a.logger.Named("mcp"))

			err = srv.Serve(cmd.Context())
			a.waitPreparations(preparer, shutdownTimeout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize work items, revisions and sprints from Azure DevOps",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "full",
			Short: "Sync every work item of the project",
			RunE: runSync(opts, func(ctx context.Context, s *syncer.Syncer, projectID string, _ []string) (*syncer.Result, error) {
				return s.FullSync(ctx, projectID)
			}),
		},
		&cobra.Command{
			Use:   "incremental",
			Short: "Sync work items changed since the last successful sync",
			Long: `Syncs work items whose System.ChangedDate is on or after the last sync
watermark. Falls back to a full sync when the project was never synced.`,
			RunE: runSync(opts, func(ctx context.Context, s *syncer.Syncer, projectID string, _ []string) (*syncer.Result, error) {
				return s.IncrementalSync(ctx, projectID)
			}),
		},
		&cobra.Command{
			Use:   "item <id>",
			Short: "Sync a single work item",
			Args:  cobra.ExactArgs(1),
			RunE: runSync(opts, func(ctx context.Context, s *syncer.Syncer, projectID string, args []string) (*syncer.Result, error) {
				id, err := strconv.Atoi(args[0])
				if err != nil || id <= 0 {
					return nil, fmt.Errorf("invalid work item id %q", args[0])
				}
				return s.SyncItem(ctx, projectID, id)
			}),
		},
		&cobra.Command{
			Use:   "iteration <path>",
			Short: "Sync the work items under an iteration path",
			Args:  cobra.ExactArgs(1),
			RunE: runSync(opts, func(ctx context.Context, s *syncer.Syncer, projectID string, args []string) (*syncer.Result, error) {
				return s.SyncIteration(ctx, projectID, args[0])
			}),
		},
	)
	return cmd
}

func newBackfillCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Recompute derived fields from stored data",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "effort",
		Short: "Recompute initial, last and done remaining work from stored revisions",
		RunE: runSync(opts, func(ctx context.Context, s *syncer.Syncer, projectID string, _ []string) (*syncer.Result, error) {
			return s.BackfillEffort(ctx, projectID)
		}),
	})
	return cmd
}

type syncFunc func(ctx context.Context, s *syncer.Syncer, projectID string, args []string) (*syncer.Result, error)

// runSync runs one sync entrypoint and prints its result as JSON
func runSync(opts *rootOptions, fn syncFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(opts.configPath, os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.newSyncer()
		if err != nil {
			return err
		}

		res, err := fn(cmd.Context(), s, opts.projectID(a), args)
		if res != nil {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
		}
		return err
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var rollback bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only the database section is needed here
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStorage(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if rollback {
				if err := storage.RollbackMigration(cmd.Context(), store.DB()); err != nil {
					return err
				}
			}
			v, err := storage.SchemaVersion(cmd.Context(), store.DB())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"database":      cfg.Database.Path,
				"schemaVersion": v,
			})
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the latest migration after applying all")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "AzureBridge\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
