// Package cli implements the invsync command line.
//
// This file builds the cobra command tree and the shared helpers:
// configuration loading (.env via godotenv, then the environment) and
// bootstrapping the components around one-shot commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-inventory-sync/internal/config"
)

type rootOptions struct {
	envFile string
	version string
}

// NewRootCmd builds the invsync command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{version: version}
	root := &cobra.Command{
		Use:   "invsync",
		Short: "Offline-first inventory sync engine",
		Long: `invsync keeps a local copy of the inventory (items, boxes, stock history),
queues writes made while the remote API is unreachable and replays them in
order once it is back.

Configuration comes from the environment; a .env file is loaded first.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newStatusCmd(opts),
		newPurgeCmd(opts),
	)
	return root
}

// Execute runs the root command and returns its error for main to report.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// loadConfig reads the dotenv file (a missing file is fine) and the
// environment. Variables already set win over the file.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.envFile != "" {
		_ = godotenv.Load(o.envFile)
	}
	return config.Load()
}

// withApp bootstraps the components for a one-shot command and tears them
// down afterwards.
func (o *rootOptions) withApp(ctx context.Context, fn func(*App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	app, err := Bootstrap(ctx, cfg, o.version)
	if err != nil {
		return err
	}
	runErr := fn(app)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
