// Package cli implements the invsync command line.
//
// This file holds the `purge` maintenance command.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-inventory-sync/internal/repo"
)

type purgeResult struct {
	ExpiredRows         int64 `json:"expired_rows"`
	CompletedOperations int64 `json:"completed_operations"`
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop expired cache entries, idempotency keys and old completed operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(app *App) error {
				if err := app.requireStore(); err != nil {
					return err
				}
				age := olderThan
				if !cmd.Flags().Changed("older-than") {
					age = app.Cfg.Sync.CompletedRetention
				}
				res, err := purge(ctx, app.Store, age)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age of completed operations to delete (default SYNC_COMPLETED_RETENTION)")
	return cmd
}

func purge(ctx context.Context, s *repo.Store, olderThan time.Duration) (purgeResult, error) {
	var res purgeResult
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		return res, fmt.Errorf("purge expired: %w", err)
	}
	res.ExpiredRows = n
	if n, err = s.PurgeCompleted(ctx, s.Now().Add(-olderThan)); err != nil {
		return res, fmt.Errorf("purge completed: %w", err)
	}
	res.CompletedOperations = n
	return res, nil
}
