package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/models"
)

type declaredKey struct {
	manifestPath string
	packageKey   string
}

type observedKey struct {
	packageKey string
	filePath   string
	lineStart  int
}

// scopeData holds every entity of one (tenant, repo) pair
type scopeData struct {
	nodes       map[string]*models.Node
	edges       map[models.EdgeKey]*models.Edge
	occurrences map[models.EdgeKey][]*models.EdgeOccurrence
	entrypoints map[string]*models.FlowEntrypoint
	flowGraphs  map[string]*models.FlowGraph
	manifests   map[string]*models.DependencyManifest
	declared    map[declaredKey]*models.DeclaredDependency
	observed    map[observedKey]*models.ObservedDependency
	mismatches  []*models.DependencyMismatch
	diagnostics []*models.IndexDiagnostic
	unresolved  []*models.UnresolvedImport
}

func newScopeData() *scopeData {
	return &scopeData{
		nodes:       make(map[string]*models.Node),
		edges:       make(map[models.EdgeKey]*models.Edge),
		occurrences: make(map[models.EdgeKey][]*models.EdgeOccurrence),
		entrypoints: make(map[string]*models.FlowEntrypoint),
		flowGraphs:  make(map[string]*models.FlowGraph),
		manifests:   make(map[string]*models.DependencyManifest),
		declared:    make(map[declaredKey]*models.DeclaredDependency),
		observed:    make(map[observedKey]*models.ObservedDependency),
	}
}

// MemoryStore is the in-memory reference implementation of Store, used for tests
// and local development. One lock guards all scopes, so every write is atomic
// with respect to every other.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[models.Scope]*scopeData
	logger *logrus.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MemoryStore{
		scopes: make(map[models.Scope]*scopeData),
		logger: logger,
	}
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// write returns the scope's data, creating it. Caller holds the write lock.
func (s *MemoryStore) write(scope models.Scope) *scopeData {
	d, ok := s.scopes[scope]
	if !ok {
		d = newScopeData()
		s.scopes[scope] = d
	}
	return d
}

// read returns the scope's data or an empty placeholder. Caller holds the read lock.
func (s *MemoryStore) read(scope models.Scope) *scopeData {
	if d, ok := s.scopes[scope]; ok {
		return d
	}
	return newScopeData()
}

func (s *MemoryStore) update(scope models.Scope, fn func(d *scopeData)) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.write(scope))
	return nil
}

func (s *MemoryStore) view(scope models.Scope, fn func(d *scopeData)) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.read(scope))
	return nil
}

// IngestRecords applies a batch under a single lock acquisition
func (s *MemoryStore) IngestRecords(ctx context.Context, scope models.Scope, records []models.Record) error {
	err := s.update(scope, func(d *scopeData) {
		for _, rec := range records {
			d.apply(rec)
		}
	})
	if err == nil {
		s.logger.WithFields(logrus.Fields{
			"scope":   scope.String(),
			"records": len(records),
		}).Debug("applied record batch")
	}
	return err
}

func (d *scopeData) apply(rec models.Record) {
	switch r := rec.(type) {
	case *models.Node:
		d.nodes[r.SymbolUID] = cloneNode(r)
	case *models.Edge:
		d.edges[r.Key()] = cloneEdge(r)
	case *models.EdgeOccurrence:
		d.occurrences[r.Key()] = append(d.occurrences[r.Key()], cloneOccurrence(r))
	case *models.FlowEntrypoint:
		d.entrypoints[r.EntrypointKey] = cloneEntrypoint(r)
	case *models.FlowGraph:
		d.flowGraphs[r.FlowGraphKey] = cloneFlowGraph(r)
	case *models.DependencyManifest:
		d.manifests[r.ManifestPath] = cloneManifest(r)
		for k := range d.declared {
			if k.manifestPath == r.ManifestPath {
				delete(d.declared, k)
			}
		}
	case *models.DeclaredDependency:
		c := *r
		d.declared[declaredKey{r.ManifestPath, r.PackageKey}] = &c
	case *models.ObservedDependency:
		c := *r
		d.observed[observedKey{r.PackageKey, r.FilePath, r.LineStart}] = &c
	case *models.DependencyMismatch:
		k := r.Key()
		for i, m := range d.mismatches {
			if m.Key() == k {
				d.mismatches[i] = cloneMismatch(r)
				return
			}
		}
		d.mismatches = append(d.mismatches, cloneMismatch(r))
	case *models.IndexDiagnostic:
		c := cloneDiagnostic(r)
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		d.diagnostics = append(d.diagnostics, c)
	case *models.UnresolvedImport:
		c := *r
		d.unresolved = append(d.unresolved, &c)
	}
}

// Node operations

func (s *MemoryStore) UpsertNode(ctx context.Context, scope models.Scope, node *models.Node) error {
	return s.update(scope, func(d *scopeData) { d.apply(node) })
}

func (s *MemoryStore) GetNodeBySymbolUID(ctx context.Context, scope models.Scope, symbolUID string) (*models.Node, error) {
	var found *models.Node
	if err := s.view(scope, func(d *scopeData) {
		if n, ok := d.nodes[symbolUID]; ok {
			found = cloneNode(n)
		}
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListNodes(ctx context.Context, scope models.Scope, filter NodeFilter) ([]*models.Node, error) {
	var out []*models.Node
	err := s.view(scope, func(d *scopeData) {
		for _, n := range d.nodes {
			if filter.NodeType != "" && n.NodeType != filter.NodeType {
				continue
			}
			if filter.FilePath != "" && n.FilePath != filter.FilePath {
				continue
			}
			out = append(out, cloneNode(n))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SymbolUID < out[j].SymbolUID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

// Edge operations

func (s *MemoryStore) UpsertEdge(ctx context.Context, scope models.Scope, edge *models.Edge) error {
	return s.update(scope, func(d *scopeData) { d.apply(edge) })
}

func (s *MemoryStore) ListEdges(ctx context.Context, scope models.Scope, filter EdgeFilter) ([]*models.Edge, error) {
	types := edgeTypeSet(filter.EdgeTypes)
	var out []*models.Edge
	err := s.view(scope, func(d *scopeData) {
		for k, e := range d.edges {
			if types != nil && !types[k.Type] {
				continue
			}
			out = append(out, cloneEdge(e))
		}
	})
	return limitEdges(sortEdges(out), filter.Limit), err
}

func (s *MemoryStore) ListEdgesByNode(ctx context.Context, scope models.Scope, symbolUID string, direction models.Direction, filter EdgeFilter) ([]*models.Edge, error) {
	types := edgeTypeSet(filter.EdgeTypes)
	var out []*models.Edge
	err := s.view(scope, func(d *scopeData) {
		for k, e := range d.edges {
			if types != nil && !types[k.Type] {
				continue
			}
			if touches(k, symbolUID, direction) {
				out = append(out, cloneEdge(e))
			}
		}
	})
	return limitEdges(sortEdges(out), filter.Limit), err
}

// touches reports whether the edge is incident to uid in the given direction
func touches(k models.EdgeKey, uid string, direction models.Direction) bool {
	switch direction {
	case models.DirectionOut:
		return k.Source == uid
	case models.DirectionIn:
		return k.Target == uid
	default:
		return k.Source == uid || k.Target == uid
	}
}

func sortEdges(edges []*models.Edge) []*models.Edge {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key().Less(edges[j].Key()) })
	return edges
}

func limitEdges(edges []*models.Edge, limit int) []*models.Edge {
	if limit > 0 && len(edges) > limit {
		return edges[:limit]
	}
	return edges
}

func (s *MemoryStore) AddEdgeOccurrence(ctx context.Context, scope models.Scope, occ *models.EdgeOccurrence) error {
	return s.update(scope, func(d *scopeData) { d.apply(occ) })
}

func (s *MemoryStore) ListEdgeOccurrencesForEdge(ctx context.Context, scope models.Scope, key models.EdgeKey) ([]*models.EdgeOccurrence, error) {
	var out []*models.EdgeOccurrence
	err := s.view(scope, func(d *scopeData) {
		for _, o := range d.occurrences[key] {
			out = append(out, cloneOccurrence(o))
		}
	})
	return out, err
}

func (s *MemoryStore) CountEdgeOccurrences(ctx context.Context, scope models.Scope, key models.EdgeKey) (int, error) {
	var n int
	err := s.view(scope, func(d *scopeData) { n = len(d.occurrences[key]) })
	return n, err
}

// Flow operations

func (s *MemoryStore) UpsertFlowEntrypoint(ctx context.Context, scope models.Scope, ep *models.FlowEntrypoint) error {
	return s.update(scope, func(d *scopeData) { d.apply(ep) })
}

func (s *MemoryStore) GetFlowEntrypoint(ctx context.Context, scope models.Scope, entrypointKey string) (*models.FlowEntrypoint, error) {
	var found *models.FlowEntrypoint
	if err := s.view(scope, func(d *scopeData) {
		if ep, ok := d.entrypoints[entrypointKey]; ok {
			found = cloneEntrypoint(ep)
		}
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListFlowEntrypoints(ctx context.Context, scope models.Scope) ([]*models.FlowEntrypoint, error) {
	var out []*models.FlowEntrypoint
	err := s.view(scope, func(d *scopeData) {
		for _, ep := range d.entrypoints {
			out = append(out, cloneEntrypoint(ep))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EntrypointKey < out[j].EntrypointKey })
	return out, err
}

func (s *MemoryStore) UpsertFlowGraph(ctx context.Context, scope models.Scope, fg *models.FlowGraph) error {
	return s.update(scope, func(d *scopeData) { d.apply(fg) })
}

func (s *MemoryStore) GetFlowGraph(ctx context.Context, scope models.Scope, flowGraphKey string) (*models.FlowGraph, error) {
	var found *models.FlowGraph
	if err := s.view(scope, func(d *scopeData) {
		if fg, ok := d.flowGraphs[flowGraphKey]; ok {
			found = cloneFlowGraph(fg)
		}
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) ListFlowGraphs(ctx context.Context, scope models.Scope, entrypointKey string) ([]*models.FlowGraph, error) {
	var out []*models.FlowGraph
	err := s.view(scope, func(d *scopeData) {
		for _, fg := range d.flowGraphs {
			if entrypointKey != "" && fg.EntrypointKey != entrypointKey {
				continue
			}
			out = append(out, cloneFlowGraph(fg))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FlowGraphKey < out[j].FlowGraphKey })
	return out, err
}

// Dependency operations

func (s *MemoryStore) AddDependencyManifest(ctx context.Context, scope models.Scope, m *models.DependencyManifest) error {
	return s.update(scope, func(d *scopeData) { d.apply(m) })
}

func (s *MemoryStore) ListDependencyManifests(ctx context.Context, scope models.Scope) ([]*models.DependencyManifest, error) {
	var out []*models.DependencyManifest
	err := s.view(scope, func(d *scopeData) {
		for _, m := range d.manifests {
			out = append(out, cloneManifest(m))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ManifestPath < out[j].ManifestPath })
	return out, err
}

func (s *MemoryStore) AddDeclaredDependency(ctx context.Context, scope models.Scope, dep *models.DeclaredDependency) error {
	return s.update(scope, func(d *scopeData) { d.apply(dep) })
}

func (s *MemoryStore) ListDeclaredDependencies(ctx context.Context, scope models.Scope) ([]*models.DeclaredDependency, error) {
	var out []*models.DeclaredDependency
	err := s.view(scope, func(d *scopeData) {
		for _, dep := range d.declared {
			c := *dep
			out = append(out, &c)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ManifestPath != out[j].ManifestPath {
			return out[i].ManifestPath < out[j].ManifestPath
		}
		return out[i].PackageKey < out[j].PackageKey
	})
	return out, err
}

func (s *MemoryStore) AddObservedDependency(ctx context.Context, scope models.Scope, dep *models.ObservedDependency) error {
	return s.update(scope, func(d *scopeData) { d.apply(dep) })
}

func (s *MemoryStore) ListObservedDependencies(ctx context.Context, scope models.Scope) ([]*models.ObservedDependency, error) {
	var out []*models.ObservedDependency
	err := s.view(scope, func(d *scopeData) {
		for _, dep := range d.observed {
			c := *dep
			out = append(out, &c)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PackageKey != b.PackageKey {
			return a.PackageKey < b.PackageKey
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.LineStart < b.LineStart
	})
	return out, err
}

func (s *MemoryStore) AddDependencyMismatch(ctx context.Context, scope models.Scope, m *models.DependencyMismatch) error {
	return s.update(scope, func(d *scopeData) { d.apply(m) })
}

func (s *MemoryStore) ReplaceDependencyMismatches(ctx context.Context, scope models.Scope, ms []*models.DependencyMismatch) error {
	return s.update(scope, func(d *scopeData) {
		d.mismatches = make([]*models.DependencyMismatch, 0, len(ms))
		for _, m := range ms {
			d.apply(m)
		}
	})
}

func (s *MemoryStore) ListDependencyMismatches(ctx context.Context, scope models.Scope) ([]*models.DependencyMismatch, error) {
	var out []*models.DependencyMismatch
	err := s.view(scope, func(d *scopeData) {
		for _, m := range d.mismatches {
			out = append(out, cloneMismatch(m))
		}
	})
	return out, err
}

// Audit operations

func (s *MemoryStore) AddIndexDiagnostic(ctx context.Context, scope models.Scope, diag *models.IndexDiagnostic) error {
	return s.update(scope, func(d *scopeData) { d.apply(diag) })
}

func (s *MemoryStore) ListIndexDiagnostics(ctx context.Context, scope models.Scope) ([]*models.IndexDiagnostic, error) {
	var out []*models.IndexDiagnostic
	err := s.view(scope, func(d *scopeData) {
		for _, diag := range d.diagnostics {
			out = append(out, cloneDiagnostic(diag))
		}
	})
	return out, err
}

func (s *MemoryStore) AddUnresolvedImport(ctx context.Context, scope models.Scope, u *models.UnresolvedImport) error {
	return s.update(scope, func(d *scopeData) { d.apply(u) })
}

func (s *MemoryStore) ListUnresolvedImports(ctx context.Context, scope models.Scope) ([]*models.UnresolvedImport, error) {
	var out []*models.UnresolvedImport
	err := s.view(scope, func(d *scopeData) {
		for _, u := range d.unresolved {
			c := *u
			out = append(out, &c)
		}
	})
	return out, err
}
