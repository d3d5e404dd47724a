package storage

import (
	"context"
	stderrors "errors"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
)

// Common errors
var (
	ErrNotFound     = stderrors.New("not found")
	ErrInvalidScope = stderrors.New("tenant and repo ids are required")
)

// NodeFilter narrows ListNodes. Zero values mean no filter.
type NodeFilter struct {
	NodeType string
	FilePath string
	Limit    int
}

// EdgeFilter narrows ListEdges and ListEdgesByNode. Zero values mean no filter.
type EdgeFilter struct {
	EdgeTypes []string
	Limit     int
}

// Store is the graph store contract. Every operation is scoped by (tenant, repo)
// and must never observe rows written under another scope. List results are
// ordered deterministically: nodes by symbol uid, edges by (source, type, target),
// append-only rows by insertion order.
type Store interface {
	// Nodes: upsert overwrites every field except the symbol uid
	UpsertNode(ctx context.Context, scope models.Scope, node *models.Node) error
	GetNodeBySymbolUID(ctx context.Context, scope models.Scope, symbolUID string) (*models.Node, error)
	ListNodes(ctx context.Context, scope models.Scope, filter NodeFilter) ([]*models.Node, error)

	// Edges: at most one row per (source, type, target); the latest metadata wins
	UpsertEdge(ctx context.Context, scope models.Scope, edge *models.Edge) error
	ListEdges(ctx context.Context, scope models.Scope, filter EdgeFilter) ([]*models.Edge, error)
	ListEdgesByNode(ctx context.Context, scope models.Scope, symbolUID string, direction models.Direction, filter EdgeFilter) ([]*models.Edge, error)

	// Edge occurrences are append-only
	AddEdgeOccurrence(ctx context.Context, scope models.Scope, occ *models.EdgeOccurrence) error
	ListEdgeOccurrencesForEdge(ctx context.Context, scope models.Scope, key models.EdgeKey) ([]*models.EdgeOccurrence, error)
	CountEdgeOccurrences(ctx context.Context, scope models.Scope, key models.EdgeKey) (int, error)

	// Flow entrypoints and materialized flow graphs, upserted by key
	UpsertFlowEntrypoint(ctx context.Context, scope models.Scope, ep *models.FlowEntrypoint) error
	GetFlowEntrypoint(ctx context.Context, scope models.Scope, entrypointKey string) (*models.FlowEntrypoint, error)
	ListFlowEntrypoints(ctx context.Context, scope models.Scope) ([]*models.FlowEntrypoint, error)
	UpsertFlowGraph(ctx context.Context, scope models.Scope, fg *models.FlowGraph) error
	GetFlowGraph(ctx context.Context, scope models.Scope, flowGraphKey string) (*models.FlowGraph, error)
	ListFlowGraphs(ctx context.Context, scope models.Scope, entrypointKey string) ([]*models.FlowGraph, error)

	// Dependency facts. Adding a manifest replaces it by path and clears the
	// declared dependencies previously recorded for that path.
	AddDependencyManifest(ctx context.Context, scope models.Scope, m *models.DependencyManifest) error
	ListDependencyManifests(ctx context.Context, scope models.Scope) ([]*models.DependencyManifest, error)
	AddDeclaredDependency(ctx context.Context, scope models.Scope, d *models.DeclaredDependency) error
	ListDeclaredDependencies(ctx context.Context, scope models.Scope) ([]*models.DeclaredDependency, error)
	AddObservedDependency(ctx context.Context, scope models.Scope, d *models.ObservedDependency) error
	ListObservedDependencies(ctx context.Context, scope models.Scope) ([]*models.ObservedDependency, error)

	// Mismatches
	AddDependencyMismatch(ctx context.Context, scope models.Scope, m *models.DependencyMismatch) error
	ReplaceDependencyMismatches(ctx context.Context, scope models.Scope, ms []*models.DependencyMismatch) error
	ListDependencyMismatches(ctx context.Context, scope models.Scope) ([]*models.DependencyMismatch, error)

	// Audit trail
	AddIndexDiagnostic(ctx context.Context, scope models.Scope, d *models.IndexDiagnostic) error
	ListIndexDiagnostics(ctx context.Context, scope models.Scope) ([]*models.IndexDiagnostic, error)
	AddUnresolvedImport(ctx context.Context, scope models.Scope, u *models.UnresolvedImport) error
	ListUnresolvedImports(ctx context.Context, scope models.Scope) ([]*models.UnresolvedImport, error)

	// Close releases backend resources
	Close() error
}

// BulkIngester is implemented by stores that accept a batch of records in one
// call. Records are applied in slice order; unrecognized records are ignored.
type BulkIngester interface {
	IngestRecords(ctx context.Context, scope models.Scope, records []models.Record) error
}

// ApplyRecord writes one record through the per-record operations of s
func ApplyRecord(ctx context.Context, s Store, scope models.Scope, rec models.Record) error {
	switch r := rec.(type) {
	case *models.Node:
		return s.UpsertNode(ctx, scope, r)
	case *models.Edge:
		return s.UpsertEdge(ctx, scope, r)
	case *models.EdgeOccurrence:
		return s.AddEdgeOccurrence(ctx, scope, r)
	case *models.FlowEntrypoint:
		return s.UpsertFlowEntrypoint(ctx, scope, r)
	case *models.FlowGraph:
		return s.UpsertFlowGraph(ctx, scope, r)
	case *models.DependencyManifest:
		return s.AddDependencyManifest(ctx, scope, r)
	case *models.DeclaredDependency:
		return s.AddDeclaredDependency(ctx, scope, r)
	case *models.ObservedDependency:
		return s.AddObservedDependency(ctx, scope, r)
	case *models.DependencyMismatch:
		return s.AddDependencyMismatch(ctx, scope, r)
	case *models.IndexDiagnostic:
		return s.AddIndexDiagnostic(ctx, scope, r)
	case *models.UnresolvedImport:
		return s.AddUnresolvedImport(ctx, scope, r)
	case *models.Unrecognized:
		return nil
	}
	return errors.InternalErrorf("unsupported record %T", rec)
}

// checkScope rejects a half-empty scope before any backend access
func checkScope(scope models.Scope) error {
	if !scope.Valid() {
		return ErrInvalidScope
	}
	return nil
}

func edgeTypeSet(types []string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
