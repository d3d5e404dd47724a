package main

import (
	"github.com/spf13/cobra"

	"github.com/rohankatakam/cigraph/internal/config"
	"github.com/rohankatakam/cigraph/internal/deps"
	"github.com/rohankatakam/cigraph/internal/storage"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Inspect declared versus observed dependencies",
}

var depsMismatchesCmd = &cobra.Command{
	Use:   "mismatches",
	Short: "List the stored dependency mismatches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := scope()
		if err != nil {
			return err
		}
		return withStore(config.ValidationContextQuery, func(store storage.Store) error {
			ms, err := store.ListDependencyMismatches(cmd.Context(), s)
			if err != nil {
				return err
			}
			return render(ms)
		})
	},
}

var depsRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute dependency mismatches from the stored facts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := scope()
		if err != nil {
			return err
		}
		return withStore(config.ValidationContextQuery, func(store storage.Store) error {
			ms, err := deps.NewAnalyzer(store, logger).Recompute(cmd.Context(), s)
			if err != nil {
				return err
			}
			return render(ms)
		})
	},
}

func init() {
	depsCmd.AddCommand(depsMismatchesCmd)
	depsCmd.AddCommand(depsRecomputeCmd)
}
