package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/validation"
)

func newImportCmd() *cobra.Command {
	var (
		store       string
		skipInvalid bool
	)

	cmd := &cobra.Command{
		Use:   "import --store tesco products.json",
		Short: "Append scraped products to a catalog",
		Long: `Import reads a JSON array of scraped products and appends them to one
retailer's catalog. Every product needs name, price, imageUrl and category.
A product without a supermarket field is assigned to --store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			products, err := loadProducts(args[0], store, validation.New(), skipInvalid)
			if err != nil {
				return err
			}

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.store.Close()

			n, err := e.store.InsertProducts(ctx, products)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s products\n", n, store)
			return nil
		},
	}

	cmd.Flags().StringVar(&store, "store", "", "retailer: tesco or sainsburys")
	cmd.Flags().BoolVar(&skipInvalid, "skip-invalid", false, "skip invalid products instead of aborting")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

// loadProducts reads and validates a scraped catalog file
func loadProducts(path, store string, v *validation.Validator, skipInvalid bool) ([]domain.RawProduct, error) {
	store = domain.StoreKey(store)
	if !domain.IsKnownStore(store) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStore, store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []domain.RawProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	products := make([]domain.RawProduct, 0, len(raw))
	var problems []error
	for i, p := range raw {
		if p.Supermarket == "" {
			p.Supermarket = store
		}
		p.Supermarket = domain.StoreKey(p.Supermarket)

		err := v.Validate(p)
		if err == nil && p.Supermarket != store {
			err = fmt.Errorf("%w: supermarket %q in a %s import", domain.ErrInvalidRequest, p.Supermarket, store)
		}
		if err != nil {
			problems = append(problems, fmt.Errorf("product %d (%q): %w", i, p.Name, err))
			continue
		}
		p.ID = 0
		products = append(products, p)
	}

	if len(problems) > 0 && !skipInvalid {
		return nil, errors.Join(problems...)
	}
	return products, nil
}

func newDuplicatesCmd() *cobra.Command {
	var store string

	cmd := &cobra.Command{
		Use:   "duplicates --store tesco",
		Short: "List catalog products that appear more than once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store = domain.StoreKey(store)
			if !domain.IsKnownStore(store) {
				return fmt.Errorf("%w: %q", domain.ErrUnknownStore, store)
			}

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.store.Close()

			groups, err := e.store.FindDuplicates(ctx, store)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No duplicate names in the %s catalog\n", store)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COUNT\tNAME\tCATEGORIES")
			for _, g := range groups {
				fmt.Fprintf(w, "%d\t%s\t%s\n", g.Count, g.Name, strings.Join(g.Categories, ", "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&store, "store", "", "retailer: tesco or sainsburys")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear the run lock left by a crashed build",
		Long: `Unlock marks every build still recorded as running as failed, which
releases the run lock. Only use it when no build is actually running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.store.Close()

			n, err := e.store.ReleaseBuildLock(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No build was holding the lock")
				return nil
			}
			e.log.Warn().Int("runs", n).Msg("released build lock")
			fmt.Fprintf(cmd.OutOrStdout(), "Released %d stale build(s)\n", n)
			return nil
		},
	}
}
