package query

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
	"github.com/rohankatakam/cigraph/internal/validation"
)

// BlastRadiusParams are the arguments of BlastRadius
type BlastRadiusParams struct {
	SymbolUID string           `validate:"required"`
	Depth     int              `validate:"min=0,max=5"`
	Direction models.Direction `validate:"direction"`
}

// BlastRadius returns every symbol reachable from the seed within depth hops,
// seed first, then in discovery order. Each round expands only the nodes first
// reached in the previous round, so cycles terminate.
func (e *Engine) BlastRadius(ctx context.Context, scope models.Scope, p BlastRadiusParams) ([]string, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := validation.Struct(p); err != nil {
		return nil, err
	}

	visited, _, err := e.expand(ctx, scope, p.SymbolUID, p.Depth, p.Direction, storage.EdgeFilter{})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"scope":     scope.String(),
		"seed":      p.SymbolUID,
		"depth":     p.Depth,
		"direction": p.Direction,
		"reached":   len(visited),
	}).Debug("blast radius computed")
	return visited, nil
}

// expand is the breadth-first walk shared by blast radius and flow tracing.
// It returns visited uids in discovery order and the edges crossed while
// expanding, deduplicated by key in first-seen order.
func (e *Engine) expand(ctx context.Context, scope models.Scope, seed string, depth int, direction models.Direction, filter storage.EdgeFilter) ([]string, []*models.Edge, error) {
	visited := map[string]bool{seed: true}
	order := []string{seed}
	seenEdges := make(map[models.EdgeKey]bool)
	var edges []*models.Edge

	frontier := []string{seed}
	for round := 0; round < depth && len(frontier) > 0; round++ {
		var next []string
		for _, uid := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			touching, err := e.store.ListEdgesByNode(ctx, scope, uid, direction, filter)
			if err != nil {
				return nil, nil, err
			}
			for _, edge := range touching {
				reached := step(edge, uid, direction)
				if len(reached) == 0 {
					continue
				}
				if k := edge.Key(); !seenEdges[k] {
					seenEdges[k] = true
					edges = append(edges, edge)
				}
				for _, r := range reached {
					if visited[r] {
						continue
					}
					visited[r] = true
					order = append(order, r)
					next = append(next, r)
				}
			}
		}
		frontier = next
	}
	return order, edges, nil
}
