// Command mapping-builder maintains the retailer catalogs and regenerates
// the product mapping table offline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pricematch/backend/config"
	"github.com/pricematch/backend/internal/infrastructure/storage"
	"github.com/pricematch/backend/internal/logger"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mapping-builder",
		Short: "Build and maintain the Tesco/Sainsbury's product mapping table",
		Long: `mapping-builder pairs every Tesco product with its best Sainsbury's match
and swaps the result into the mapping table read by the API server.

It also imports scraped catalogs, reports duplicate catalog entries and
clears a run lock left behind by a crashed build.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newBuildCmd(),
		newImportCmd(),
		newDuplicatesCmd(),
		newUnlockCmd(),
	)
	return root
}

// env is what every subcommand needs
type env struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *storage.Store
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{
		Level:       level,
		Format:      "console",
		Environment: cfg.Server.Environment,
		Output:      os.Stderr,
	})

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}
