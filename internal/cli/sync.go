// Package cli implements the invsync command line.
//
// This file holds the `sync` and `status` commands. Both print JSON.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/repo"
	"github.com/tbourn/go-inventory-sync/internal/syncer"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Probe the remote API and drain the mutation queue once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return opts.withApp(ctx, func(app *App) error {
				if err := app.requireStore(); err != nil {
					return err
				}
				st, err := app.Sync.ForceSync(ctx)
				if perr := printJSON(cmd.OutOrStdout(), st); perr != nil {
					return perr
				}
				if errors.Is(err, syncer.ErrOffline) {
					return fmt.Errorf("%w: %s", err, app.Remote.BaseURL())
				}
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}

// statusReport is the output of `invsync status`.
type statusReport struct {
	DBPath string                    `json:"db_path"`
	Queue  repo.QueueStats           `json:"queue"`
	Failed []domain.PendingOperation `json:"failed"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and operations that failed for good",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(app *App) error {
				if err := app.requireStore(); err != nil {
					return err
				}
				rep, err := buildStatus(ctx, app.Store, app.Cfg.DBPath)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

func buildStatus(ctx context.Context, s *repo.Store, path string) (statusReport, error) {
	qs, err := s.QueueStats(ctx)
	if err != nil {
		return statusReport{}, fmt.Errorf("queue stats: %w", err)
	}
	failed, err := s.ListFailed(ctx)
	if err != nil {
		return statusReport{}, fmt.Errorf("list failed: %w", err)
	}
	if failed == nil {
		failed = []domain.PendingOperation{}
	}
	return statusReport{DBPath: path, Queue: qs, Failed: failed}, nil
}
