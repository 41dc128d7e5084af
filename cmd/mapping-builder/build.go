package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/infrastructure/rules"
	"github.com/pricematch/backend/internal/usecase"
)

func newBuildCmd() *cobra.Command {
	var (
		threshold    float64
		tolerance    float64
		fatTolerance float64
		workers      int
		dryRun       bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Regenerate the mapping table from both catalogs",
		Long: `Build scores every Tesco product against every Sainsbury's product and keeps
the best pair per product when its score exceeds the threshold.

The new table replaces the old one atomically. A failed build leaves the
previous table in place. Only one build can run at a time; use "unlock"
if a crashed build left the lock behind.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.store.Close()

			normalizerRules, err := rules.Load(e.cfg.Normalizer.RulesFile)
			if err != nil {
				return err
			}
			normalizers := usecase.NewNormalizerHolder(usecase.NewNormalizer(normalizerRules))

			opts := usecase.BuildOptions{
				Threshold:         pick(cmd, "threshold", threshold, e.cfg.Matching.BuildThreshold),
				QuantityTolerance: pick(cmd, "tolerance", tolerance, e.cfg.Matching.BuildQuantityTolerance),
				FatTolerance:      pick(cmd, "fat-tolerance", fatTolerance, e.cfg.Matching.FatTolerance),
				TokenWeight:       e.cfg.Matching.TokenWeight,
				FuzzyWeight:       e.cfg.Matching.FuzzyWeight,
				Workers:           workers,
			}
			if !quiet {
				progress := newBuildProgress()
				defer progress.finish()
				opts.Progress = progress.update
			}

			builder := usecase.NewMappingBuilder(e.store, e.store, normalizers, e.log)
			result, err := builder.Run(ctx, opts, dryRun)
			if errors.Is(err, domain.ErrBuildInProgress) {
				return fmt.Errorf("%w: wait for it to finish or run \"mapping-builder unlock\"", err)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scored %d Tesco x %d Sainsbury's products in %s\n",
				result.Tesco, result.Sainsburys, result.Duration.Round(time.Millisecond))
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %d mappings would be written\n", len(result.Mappings))
				current, err := e.store.LatestSuccessfulBuild(ctx)
				if err != nil {
					return err
				}
				if current != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Current table: run %s with %d mappings\n", current.ID, current.Rows)
				}
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s wrote %d mappings\n", result.RunID, len(result.Mappings))
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", usecase.DefaultBuildThreshold, "minimum pair score (exclusive)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", usecase.DefaultBuildQtyTolerance, "relative quantity tolerance")
	cmd.Flags().Float64Var(&fatTolerance, "fat-tolerance", usecase.DefaultFatTolerance, "allowed fat percentage difference, in points")
	cmd.Flags().IntVar(&workers, "workers", 0, "scoring goroutines (default GOMAXPROCS)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "score without writing the mapping table")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")

	return cmd
}

// pick prefers an explicitly set flag over configuration
func pick(cmd *cobra.Command, name string, flagValue, configValue float64) float64 {
	if cmd.Flags().Changed(name) {
		return flagValue
	}
	return configValue
}

// buildProgress renders builder progress. The total is only known once the
// catalogs are loaded, so the bar is created on the first update.
type buildProgress struct {
	once sync.Once
	bar  *progressbar.ProgressBar
}

func newBuildProgress() *buildProgress {
	return &buildProgress{}
}

func (p *buildProgress) update(done, total int) {
	p.once.Do(func() {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("pairing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("products"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
	})
	_ = p.bar.Set(done)
}

func (p *buildProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
