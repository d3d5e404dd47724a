package query

import (
	"context"
	stderrors "errors"

	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
	"github.com/rohankatakam/cigraph/internal/validation"
)

// occurrence counts run with this many store calls in flight
const countConcurrency = 4

// NeighborhoodParams are the arguments of Neighborhood. LimitEdges 0 selects the
// engine default.
type NeighborhoodParams struct {
	SymbolUID  string           `validate:"required"`
	Direction  models.Direction `validate:"direction"`
	EdgeTypes  []string         `validate:"dive,required"`
	LimitEdges int              `validate:"min=0,max=5000"`
}

// EdgeOccurrenceCount is the number of evidence rows behind one edge
type EdgeOccurrenceCount struct {
	EdgeKey     string `json:"edgeKey" yaml:"edgeKey"`
	Occurrences int    `json:"occurrences" yaml:"occurrences"`
}

// Neighborhood is the one-hop subgraph around a symbol
type Neighborhood struct {
	Nodes                []*models.Node        `json:"nodes" yaml:"nodes"`
	Edges                []*models.Edge        `json:"edges" yaml:"edges"`
	EdgeOccurrenceCounts []EdgeOccurrenceCount `json:"edgeOccurrenceCounts" yaml:"edgeOccurrenceCounts"`
}

// Neighborhood returns the edges touching a symbol (capped at LimitEdges), every
// endpoint node that exists, and the occurrence count of each returned edge
func (e *Engine) Neighborhood(ctx context.Context, scope models.Scope, p NeighborhoodParams) (*Neighborhood, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	limit := p.LimitEdges
	if limit == 0 {
		limit = e.opts.DefaultLimitEdges
	}

	edges, err := e.store.ListEdgesByNode(ctx, scope, p.SymbolUID, p.Direction,
		storage.EdgeFilter{EdgeTypes: p.EdgeTypes, Limit: limit})
	if err != nil {
		return nil, err
	}

	uids := []string{p.SymbolUID}
	seen := map[string]bool{p.SymbolUID: true}
	for _, edge := range edges {
		for _, uid := range []string{edge.SourceSymbolUID, edge.TargetSymbolUID} {
			if !seen[uid] {
				seen[uid] = true
				uids = append(uids, uid)
			}
		}
	}
	nodes, err := e.resolveNodes(ctx, scope, uids)
	if err != nil {
		return nil, err
	}

	counts := make([]EdgeOccurrenceCount, len(edges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, edge := range edges {
		i, key := i, edge.Key()
		g.Go(func() error {
			n, err := e.store.CountEdgeOccurrences(gctx, scope, key)
			if err != nil {
				return err
			}
			counts[i] = EdgeOccurrenceCount{EdgeKey: key.String(), Occurrences: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if edges == nil {
		edges = []*models.Edge{}
	}
	return &Neighborhood{Nodes: nodes, Edges: edges, EdgeOccurrenceCounts: counts}, nil
}

// resolveNodes fetches each uid once, skipping uids with no stored node
func (e *Engine) resolveNodes(ctx context.Context, scope models.Scope, uids []string) ([]*models.Node, error) {
	nodes := make([]*models.Node, 0, len(uids))
	for _, uid := range uids {
		n, err := e.store.GetNodeBySymbolUID(ctx, scope, uid)
		if stderrors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
