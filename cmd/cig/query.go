package main

import (
	"github.com/spf13/cobra"

	"github.com/rohankatakam/cigraph/internal/config"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/query"
	"github.com/rohankatakam/cigraph/internal/storage"
)

var blastRadiusCmd = &cobra.Command{
	Use:   "blast-radius <symbol-uid>",
	Short: "List symbols reachable from a symbol within a bounded depth",
	Long: `List every symbol reachable from the seed within --depth hops (at most 5),
in breadth-first discovery order. --direction out follows callees, in follows
callers, both follows either.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		direction, err := directionFlag(cmd)
		if err != nil {
			return err
		}
		return withEngine(func(engine *query.Engine, s models.Scope) error {
			uids, err := engine.BlastRadius(cmd.Context(), s, query.BlastRadiusParams{
				SymbolUID: args[0],
				Depth:     depth,
				Direction: direction,
			})
			if err != nil {
				return err
			}
			return render(uids)
		})
	},
}

var neighborhoodCmd = &cobra.Command{
	Use:   "neighborhood <symbol-uid>",
	Short: "Show the one-hop subgraph around a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		edgeTypes, _ := cmd.Flags().GetStringSlice("edge-type")
		limit, _ := cmd.Flags().GetInt("limit")
		direction, err := directionFlag(cmd)
		if err != nil {
			return err
		}
		return withEngine(func(engine *query.Engine, s models.Scope) error {
			n, err := engine.Neighborhood(cmd.Context(), s, query.NeighborhoodParams{
				SymbolUID:  args[0],
				Direction:  direction,
				EdgeTypes:  edgeTypes,
				LimitEdges: limit,
			})
			if err != nil {
				return err
			}
			return render(n)
		})
	},
}

var traceFlowCmd = &cobra.Command{
	Use:   "trace-flow <entrypoint-key>",
	Short: "Trace execution edges from a flow entrypoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		edgeTypes, _ := cmd.Flags().GetStringSlice("edge-type")
		return withEngine(func(engine *query.Engine, s models.Scope) error {
			trace, err := engine.TraceFlow(cmd.Context(), s, query.TraceFlowParams{
				EntrypointKey: args[0],
				Depth:         depth,
				EdgeTypes:     edgeTypes,
			})
			if err != nil {
				return err
			}
			return render(trace)
		})
	},
}

var materializeFlowCmd = &cobra.Command{
	Use:   "materialize-flow <entrypoint-key>",
	Short: "Store the shape of a flow trace for a commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		sha, _ := cmd.Flags().GetString("sha")
		return withEngine(func(engine *query.Engine, s models.Scope) error {
			fg, err := engine.MaterializeFlowGraph(cmd.Context(), s, query.MaterializeParams{
				EntrypointKey: args[0],
				Sha:           sha,
				Depth:         depth,
			})
			if err != nil {
				return err
			}
			return render(fg)
		})
	},
}

func init() {
	blastRadiusCmd.Flags().Int("depth", 2, "maximum hops (0-5)")
	blastRadiusCmd.Flags().String("direction", "out", "in, out or both")

	neighborhoodCmd.Flags().String("direction", "both", "in, out or both")
	neighborhoodCmd.Flags().StringSlice("edge-type", nil, "restrict to these edge types (repeatable)")
	neighborhoodCmd.Flags().Int("limit", 0, "maximum edges returned (default 200, at most 5000)")

	traceFlowCmd.Flags().Int("depth", 6, "maximum hops (clamped to 0-10)")
	traceFlowCmd.Flags().StringSlice("edge-type", nil, "edge types to follow (default Calls, ControlFlow)")

	materializeFlowCmd.Flags().Int("depth", 6, "maximum hops (0-10)")
	materializeFlowCmd.Flags().String("sha", "", "commit the flow graph belongs to (required)")
	materializeFlowCmd.MarkFlagRequired("sha")
}

func directionFlag(cmd *cobra.Command) (models.Direction, error) {
	raw, _ := cmd.Flags().GetString("direction")
	return models.ParseDirection(raw)
}

// withEngine opens the store and runs fn with a query engine bound to the scope flags
func withEngine(fn func(*query.Engine, models.Scope) error) error {
	s, err := scope()
	if err != nil {
		return err
	}
	return withStore(config.ValidationContextQuery, func(store storage.Store) error {
		engine := query.NewEngine(store, query.Options{
			MaxFlowDepth:      cfg.Query.MaxFlowDepth,
			DefaultLimitEdges: cfg.Query.DefaultLimitEdges,
			Logger:            logger,
		})
		return fn(engine, s)
	})
}
