// Package query answers impact and flow questions over a graph store.
package query

import (
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

// Query bounds
const (
	MaxBlastDepth     = 5
	MaxFlowDepth      = 10
	DefaultLimitEdges = 200
	MaxLimitEdges     = 5000
)

// DefaultFlowEdgeTypes are the execution-relevant edges a flow trace follows
var DefaultFlowEdgeTypes = []string{models.EdgeTypeCalls, models.EdgeTypeControlFlow}

// Options tunes an Engine. Zero values take the package defaults.
type Options struct {
	MaxFlowDepth      int
	DefaultLimitEdges int
	Logger            *logrus.Logger
}

// Engine runs read-only traversals against a store
type Engine struct {
	store  storage.Store
	opts   Options
	logger *logrus.Logger
}

// NewEngine creates an engine over store
func NewEngine(store storage.Store, opts Options) *Engine {
	if opts.MaxFlowDepth <= 0 || opts.MaxFlowDepth > MaxFlowDepth {
		opts.MaxFlowDepth = MaxFlowDepth
	}
	if opts.DefaultLimitEdges <= 0 || opts.DefaultLimitEdges > MaxLimitEdges {
		opts.DefaultLimitEdges = DefaultLimitEdges
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Engine{store: store, opts: opts, logger: opts.Logger}
}

func checkScope(scope models.Scope) error {
	if !scope.Valid() {
		return errors.InvalidArgument("tenant and repo ids are required")
	}
	return nil
}

// step returns the uids reached from uid across e in the given direction
func step(e *models.Edge, uid string, direction models.Direction) []string {
	var out []string
	if (direction == models.DirectionOut || direction == models.DirectionBoth) && e.SourceSymbolUID == uid {
		out = append(out, e.TargetSymbolUID)
	}
	if (direction == models.DirectionIn || direction == models.DirectionBoth) && e.TargetSymbolUID == uid {
		out = append(out, e.SourceSymbolUID)
	}
	return out
}
