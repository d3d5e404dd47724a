package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/cigraph/internal/config"
	"github.com/rohankatakam/cigraph/internal/graph"
	"github.com/rohankatakam/cigraph/internal/storage"
	"github.com/rohankatakam/cigraph/internal/validation"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Mirror a scope into Neo4j for graph exploration",
}

var exportNeo4jCmd = &cobra.Command{
	Use:   "neo4j",
	Short: "Replace the Neo4j mirror of the scope with the store contents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := scope()
		if err != nil {
			return err
		}
		return withMirror(cmd.Context(), func(store storage.Store, mirror *graph.Mirror) error {
			result, err := mirror.ExportScope(cmd.Context(), store, s)
			if err != nil {
				return err
			}
			return render(result)
		})
	},
}

var exportVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare store and Neo4j mirror counts for the scope",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := scope()
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		record, _ := cmd.Flags().GetBool("record")

		return withMirror(cmd.Context(), func(store storage.Store, mirror *graph.Mirror) error {
			v := validation.NewConsistencyValidator(store, mirror, logger)
			v.SetThreshold(threshold)

			results, err := v.ValidateScope(cmd.Context(), s)
			if err != nil {
				return err
			}
			v.LogResults(s, results)

			if record {
				if err := v.RecordDiagnostic(cmd.Context(), s, uuid.NewString(), results); err != nil {
					return err
				}
			}
			return render(results)
		})
	},
}

func init() {
	exportVerifyCmd.Flags().Float64("threshold", validation.DefaultSyncThreshold, "minimum sync percentage")
	exportVerifyCmd.Flags().Bool("record", false, "append the result to the scope's index diagnostics")

	exportCmd.AddCommand(exportNeo4jCmd)
	exportCmd.AddCommand(exportVerifyCmd)
}

func withMirror(ctx context.Context, fn func(storage.Store, *graph.Mirror) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return withStore(config.ValidationContextExport, func(store storage.Store) error {
		mirror, err := graph.NewMirror(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database, logger)
		if err != nil {
			return err
		}
		defer mirror.Close(ctx)

		if cfg.Neo4j.BatchSize > 0 {
			mirror.SetBatchConfig(graph.BatchConfig{
				NodeBatchSize: cfg.Neo4j.BatchSize,
				EdgeBatchSize: cfg.Neo4j.BatchSize * 5,
			})
		}
		return fn(store, mirror)
	})
}
