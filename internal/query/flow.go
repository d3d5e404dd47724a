package query

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
	"github.com/rohankatakam/cigraph/internal/validation"
)

// FlowTrace is the subgraph reachable from an entrypoint along execution edges
type FlowTrace struct {
	Entrypoint *models.FlowEntrypoint `json:"entrypoint" yaml:"entrypoint"`
	Nodes      []*models.Node         `json:"nodes" yaml:"nodes"`
	Edges      []*models.Edge         `json:"edges" yaml:"edges"`
	Depth      int                    `json:"depth" yaml:"depth"`

	nodeUIDs []string
}

// TraceFlowParams are the arguments of TraceFlow. Depth is clamped rather than
// rejected; empty EdgeTypes selects DefaultFlowEdgeTypes.
type TraceFlowParams struct {
	EntrypointKey string `validate:"required"`
	Depth         int
	EdgeTypes     []string `validate:"dive,required"`
}

// TraceFlow walks outgoing execution edges from the entrypoint's bound symbol
func (e *Engine) TraceFlow(ctx context.Context, scope models.Scope, p TraceFlowParams) (*FlowTrace, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	return e.trace(ctx, scope, p.EntrypointKey, e.clampFlowDepth(p.Depth), p.EdgeTypes)
}

func (e *Engine) clampFlowDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	if depth > e.opts.MaxFlowDepth {
		return e.opts.MaxFlowDepth
	}
	return depth
}

func (e *Engine) trace(ctx context.Context, scope models.Scope, entrypointKey string, depth int, edgeTypes []string) (*FlowTrace, error) {
	ep, err := e.store.GetFlowEntrypoint(ctx, scope, entrypointKey)
	if err != nil {
		return nil, err
	}
	if len(edgeTypes) == 0 {
		edgeTypes = DefaultFlowEdgeTypes
	}

	uids, edges, err := e.expand(ctx, scope, ep.SymbolUID, depth, models.DirectionOut,
		storage.EdgeFilter{EdgeTypes: edgeTypes})
	if err != nil {
		return nil, err
	}
	nodes, err := e.resolveNodes(ctx, scope, uids)
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []*models.Edge{}
	}

	e.logger.WithFields(logrus.Fields{
		"scope":      scope.String(),
		"entrypoint": entrypointKey,
		"depth":      depth,
		"nodes":      len(uids),
		"edges":      len(edges),
	}).Debug("flow traced")

	return &FlowTrace{Entrypoint: ep, Nodes: nodes, Edges: edges, Depth: depth, nodeUIDs: uids}, nil
}

// MaterializeParams are the arguments of MaterializeFlowGraph
type MaterializeParams struct {
	EntrypointKey string `validate:"required"`
	Sha           string `validate:"required"`
	Depth         int    `validate:"min=0,max=10"`
}

// MaterializeFlowGraph traces the entrypoint and stores only the shape of the
// result, sorted node uids and edge keys, under entrypointKey::sha::depth.
// The depth is never clamped: a depth above the configured maximum is rejected
// so the key always names the depth that was traced.
func (e *Engine) MaterializeFlowGraph(ctx context.Context, scope models.Scope, p MaterializeParams) (*models.FlowGraph, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if p.Depth > e.opts.MaxFlowDepth {
		return nil, errors.InvalidArgument("depth %d exceeds max flow depth %d", p.Depth, e.opts.MaxFlowDepth)
	}

	tr, err := e.trace(ctx, scope, p.EntrypointKey, p.Depth, nil)
	if err != nil {
		return nil, err
	}

	nodeUIDs := append([]string(nil), tr.nodeUIDs...)
	sort.Strings(nodeUIDs)
	edgeKeys := make([]string, len(tr.Edges))
	for i, edge := range tr.Edges {
		edgeKeys[i] = edge.Key().String()
	}
	sort.Strings(edgeKeys)

	fg := &models.FlowGraph{
		FlowGraphKey:  models.FlowGraphKey(p.EntrypointKey, p.Sha, p.Depth),
		EntrypointKey: p.EntrypointKey,
		Sha:           p.Sha,
		Depth:         p.Depth,
		NodeUIDs:      nodeUIDs,
		EdgeKeys:      edgeKeys,
	}
	if err := e.store.UpsertFlowGraph(ctx, scope, fg); err != nil {
		return nil, err
	}
	return fg, nil
}
