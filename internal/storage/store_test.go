package storage

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
)

var (
	scopeA = models.Scope{TenantID: "tenant-a", RepoID: "repo-1"}
	scopeB = models.Scope{TenantID: "tenant-b", RepoID: "repo-1"}
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// backends returns a fresh instance of every store the suite runs against
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(":memory:", quietLogger())
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(quietLogger()),
		"sqlite": sqlite,
	}

	if dsn := os.Getenv("CIG_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := OpenPostgres(dsn, quietLogger())
		require.NoError(t, err)
		stores["postgres"] = pg
	}

	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

// uniqueScope keeps suites isolated when a shared Postgres database is used
func uniqueScope(t *testing.T, base models.Scope) models.Scope {
	return models.Scope{TenantID: base.TenantID + "-" + t.Name(), RepoID: base.RepoID}
}

func TestStore_NodeUpsertIsIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			node := &models.Node{SymbolUID: "sym1_a", NodeType: models.NodeTypeFunction, QualifiedName: "pkg.A", Docstring: "first"}
			require.NoError(t, s.UpsertNode(ctx, scope, node))

			updated := &models.Node{SymbolUID: "sym1_a", NodeType: models.NodeTypeFunction, QualifiedName: "pkg.A", Docstring: "second",
				Contract: map[string]interface{}{"returns": "int"}, Embedding: []float32{0.5, 0.25}}
			require.NoError(t, s.UpsertNode(ctx, scope, updated))

			nodes, err := s.ListNodes(ctx, scope, NodeFilter{})
			require.NoError(t, err)
			require.Len(t, nodes, 1)
			assert.Equal(t, "second", nodes[0].Docstring)
			assert.Equal(t, map[string]interface{}{"returns": "int"}, nodes[0].Contract)
			assert.Equal(t, []float32{0.5, 0.25}, nodes[0].Embedding)

			got, err := s.GetNodeBySymbolUID(ctx, scope, "sym1_a")
			require.NoError(t, err)
			assert.Equal(t, "pkg.A", got.QualifiedName)

			_, err = s.GetNodeBySymbolUID(ctx, scope, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListNodesFilter(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			require.NoError(t, s.UpsertNode(ctx, scope, &models.Node{SymbolUID: "c", NodeType: models.NodeTypeFile, FilePath: "a.go"}))
			require.NoError(t, s.UpsertNode(ctx, scope, &models.Node{SymbolUID: "b", NodeType: models.NodeTypeFunction, FilePath: "a.go"}))
			require.NoError(t, s.UpsertNode(ctx, scope, &models.Node{SymbolUID: "a", NodeType: models.NodeTypeFunction, FilePath: "b.go"}))

			all, err := s.ListNodes(ctx, scope, NodeFilter{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, nodeUIDs(all))

			funcs, err := s.ListNodes(ctx, scope, NodeFilter{NodeType: models.NodeTypeFunction})
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, nodeUIDs(funcs))

			inFile, err := s.ListNodes(ctx, scope, NodeFilter{FilePath: "a.go", Limit: 1})
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, nodeUIDs(inFile))
		})
	}
}

func TestStore_EdgeDedupLatestWins(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			require.NoError(t, s.UpsertEdge(ctx, scope, &models.Edge{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B"}))
			require.NoError(t, s.UpsertEdge(ctx, scope, &models.Edge{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B",
				Metadata: map[string]interface{}{"x": float64(1)}}))

			edges, err := s.ListEdges(ctx, scope, EdgeFilter{})
			require.NoError(t, err)
			require.Len(t, edges, 1)
			assert.Equal(t, map[string]interface{}{"x": float64(1)}, edges[0].Metadata)
		})
	}
}

func TestStore_ListEdgesByNode(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			for _, e := range []*models.Edge{
				{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B"},
				{SourceSymbolUID: "B", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "C"},
				{SourceSymbolUID: "B", EdgeType: models.EdgeTypeImports, TargetSymbolUID: "D"},
			} {
				require.NoError(t, s.UpsertEdge(ctx, scope, e))
			}

			tests := []struct {
				name      string
				direction models.Direction
				filter    EdgeFilter
				want      []string
			}{
				{"out", models.DirectionOut, EdgeFilter{}, []string{"B::Calls::C", "B::Imports::D"}},
				{"in", models.DirectionIn, EdgeFilter{}, []string{"A::Calls::B"}},
				{"both", models.DirectionBoth, EdgeFilter{}, []string{"A::Calls::B", "B::Calls::C", "B::Imports::D"}},
				{"typed", models.DirectionBoth, EdgeFilter{EdgeTypes: []string{models.EdgeTypeImports}}, []string{"B::Imports::D"}},
				{"limited", models.DirectionBoth, EdgeFilter{Limit: 2}, []string{"A::Calls::B", "B::Calls::C"}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					edges, err := s.ListEdgesByNode(ctx, scope, "B", tt.direction, tt.filter)
					require.NoError(t, err)
					assert.Equal(t, tt.want, edgeKeys(edges))
				})
			}
		})
	}
}

func TestStore_OccurrencesAppendOnly(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			occ := &models.EdgeOccurrence{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B",
				FilePath: "a.go", LineStart: 3, LineEnd: 3}
			require.NoError(t, s.AddEdgeOccurrence(ctx, scope, occ))
			require.NoError(t, s.AddEdgeOccurrence(ctx, scope, occ))

			key := occ.Key()
			n, err := s.CountEdgeOccurrences(ctx, scope, key)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			rows, err := s.ListEdgeOccurrencesForEdge(ctx, scope, key)
			require.NoError(t, err)
			assert.Len(t, rows, 2)

			n, err = s.CountEdgeOccurrences(ctx, scope, models.EdgeKey{Source: "B", Type: models.EdgeTypeCalls, Target: "A"})
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestStore_TenantIsolation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := uniqueScope(t, scopeA)
			b := uniqueScope(t, scopeB)

			require.NoError(t, s.UpsertNode(ctx, a, &models.Node{SymbolUID: "shared", NodeType: models.NodeTypeFile}))
			require.NoError(t, s.UpsertEdge(ctx, a, &models.Edge{SourceSymbolUID: "shared", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "x"}))
			require.NoError(t, s.AddDeclaredDependency(ctx, a, &models.DeclaredDependency{ManifestPath: "go.mod", PackageKey: "go:x"}))

			_, err := s.GetNodeBySymbolUID(ctx, b, "shared")
			assert.ErrorIs(t, err, ErrNotFound)

			edges, err := s.ListEdgesByNode(ctx, b, "shared", models.DirectionBoth, EdgeFilter{})
			require.NoError(t, err)
			assert.Empty(t, edges)

			declared, err := s.ListDeclaredDependencies(ctx, b)
			require.NoError(t, err)
			assert.Empty(t, declared)

			// same tenant, different repo
			otherRepo := models.Scope{TenantID: a.TenantID, RepoID: "repo-2"}
			nodes, err := s.ListNodes(ctx, otherRepo, NodeFilter{})
			require.NoError(t, err)
			assert.Empty(t, nodes)
		})
	}
}

func TestStore_RejectsInvalidScope(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.UpsertNode(ctx, models.Scope{TenantID: "t"}, &models.Node{SymbolUID: "a", NodeType: models.NodeTypeFile})
			assert.ErrorIs(t, err, ErrInvalidScope)

			_, err = s.ListNodes(ctx, models.Scope{RepoID: "r"}, NodeFilter{})
			assert.ErrorIs(t, err, ErrInvalidScope)
		})
	}
}

func TestStore_FlowEntrypointsAndGraphs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			ep := &models.FlowEntrypoint{EntrypointKey: "GET /users", EntrypointType: "http", Method: "GET", Path: "/users", SymbolUID: "A"}
			require.NoError(t, s.UpsertFlowEntrypoint(ctx, scope, ep))
			ep.SymbolUID = "B"
			require.NoError(t, s.UpsertFlowEntrypoint(ctx, scope, ep))

			got, err := s.GetFlowEntrypoint(ctx, scope, "GET /users")
			require.NoError(t, err)
			assert.Equal(t, "B", got.SymbolUID)

			eps, err := s.ListFlowEntrypoints(ctx, scope)
			require.NoError(t, err)
			assert.Len(t, eps, 1)

			_, err = s.GetFlowEntrypoint(ctx, scope, "POST /users")
			assert.ErrorIs(t, err, ErrNotFound)

			fg := &models.FlowGraph{
				FlowGraphKey:  models.FlowGraphKey("GET /users", "abc", 2),
				EntrypointKey: "GET /users",
				Sha:           "abc",
				Depth:         2,
				NodeUIDs:      []string{"A", "B"},
				EdgeKeys:      []string{"A::Calls::B"},
			}
			require.NoError(t, s.UpsertFlowGraph(ctx, scope, fg))

			gotFG, err := s.GetFlowGraph(ctx, scope, "GET /users::abc::2")
			require.NoError(t, err)
			assert.Equal(t, []string{"A", "B"}, gotFG.NodeUIDs)
			assert.Equal(t, []string{"A::Calls::B"}, gotFG.EdgeKeys)

			graphs, err := s.ListFlowGraphs(ctx, scope, "GET /users")
			require.NoError(t, err)
			assert.Len(t, graphs, 1)

			graphs, err = s.ListFlowGraphs(ctx, scope, "other")
			require.NoError(t, err)
			assert.Empty(t, graphs)
		})
	}
}

func TestStore_ManifestResetsDeclaredDependencies(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			require.NoError(t, s.AddDependencyManifest(ctx, scope, &models.DependencyManifest{ManifestPath: "package.json", Ecosystem: "npm"}))
			require.NoError(t, s.AddDeclaredDependency(ctx, scope, &models.DeclaredDependency{ManifestPath: "package.json", PackageKey: "npm:left-pad", VersionSpec: "^1.0.0"}))
			require.NoError(t, s.AddDeclaredDependency(ctx, scope, &models.DeclaredDependency{ManifestPath: "go.mod", PackageKey: "go:x"}))

			// re-indexing the manifest drops what it previously declared
			require.NoError(t, s.AddDependencyManifest(ctx, scope, &models.DependencyManifest{ManifestPath: "package.json", Ecosystem: "npm"}))

			declared, err := s.ListDeclaredDependencies(ctx, scope)
			require.NoError(t, err)
			require.Len(t, declared, 1)
			assert.Equal(t, "go:x", declared[0].PackageKey)

			manifests, err := s.ListDependencyManifests(ctx, scope)
			require.NoError(t, err)
			assert.Len(t, manifests, 1)
		})
	}
}

func TestStore_ObservedDependencyUpsert(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			dep := &models.ObservedDependency{PackageKey: "npm:react", FilePath: "a.ts", LineStart: 1, ImportPath: "react"}
			require.NoError(t, s.AddObservedDependency(ctx, scope, dep))
			dep.Version = "18.2.0"
			require.NoError(t, s.AddObservedDependency(ctx, scope, dep))
			require.NoError(t, s.AddObservedDependency(ctx, scope, &models.ObservedDependency{PackageKey: "npm:react", FilePath: "b.ts", LineStart: 1}))

			observed, err := s.ListObservedDependencies(ctx, scope)
			require.NoError(t, err)
			require.Len(t, observed, 2)
			assert.Equal(t, "18.2.0", observed[0].Version)
		})
	}
}

func TestStore_ReplaceMismatches(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			require.NoError(t, s.AddDependencyMismatch(ctx, scope, &models.DependencyMismatch{PackageKey: "x", Kind: models.MismatchDeclaredNotObserved}))
			require.NoError(t, s.ReplaceDependencyMismatches(ctx, scope, []*models.DependencyMismatch{
				{PackageKey: "y", Kind: models.MismatchObservedNotDeclared},
				{PackageKey: "z", Kind: models.MismatchVersionConflict, Details: map[string]interface{}{"reason": "major"}},
			}))

			ms, err := s.ListDependencyMismatches(ctx, scope)
			require.NoError(t, err)
			require.Len(t, ms, 2)
			assert.Equal(t, "y", ms[0].PackageKey)
			assert.Equal(t, map[string]interface{}{"reason": "major"}, ms[1].Details)

			require.NoError(t, s.ReplaceDependencyMismatches(ctx, scope, nil))
			ms, err = s.ListDependencyMismatches(ctx, scope)
			require.NoError(t, err)
			assert.Empty(t, ms)
		})
	}
}

func TestStore_AddMismatchDedupsByKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			conflict := &models.DependencyMismatch{
				PackageKey:          "npm:x",
				Kind:                models.MismatchVersionConflict,
				ManifestPath:        "package.json",
				DeclaredVersionSpec: "^1.0.0",
				ObservedVersion:     "2.0.0",
				Source:              models.MismatchSourceIndexer,
			}
			require.NoError(t, s.AddDependencyMismatch(ctx, scope, conflict))
			require.NoError(t, s.AddDependencyMismatch(ctx, scope, &models.DependencyMismatch{PackageKey: "npm:y", Kind: models.MismatchObservedNotDeclared}))

			again := *conflict
			again.Details = map[string]interface{}{"files": "a.ts"}
			require.NoError(t, s.AddDependencyMismatch(ctx, scope, &again))

			ms, err := s.ListDependencyMismatches(ctx, scope)
			require.NoError(t, err)
			require.Len(t, ms, 2)
			assert.Equal(t, "npm:x", ms[0].PackageKey)
			assert.Equal(t, models.MismatchSourceIndexer, ms[0].Source)
			assert.Equal(t, map[string]interface{}{"files": "a.ts"}, ms[0].Details)
		})
	}
}

func TestStore_AuditTrail(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			require.NoError(t, s.AddIndexDiagnostic(ctx, scope, &models.IndexDiagnostic{RunID: "r1", Mode: "full", FilesReparsed: 10}))
			require.NoError(t, s.AddIndexDiagnostic(ctx, scope, &models.IndexDiagnostic{RunID: "r2", Mode: "incremental", FilesImpacted: 2}))
			require.NoError(t, s.AddUnresolvedImport(ctx, scope, &models.UnresolvedImport{FilePath: "a.py", LineStart: 1, ImportPath: "nope"}))

			diags, err := s.ListIndexDiagnostics(ctx, scope)
			require.NoError(t, err)
			require.Len(t, diags, 2)
			assert.Equal(t, "r1", diags[0].RunID)
			assert.False(t, diags[0].CreatedAt.IsZero())

			unresolved, err := s.ListUnresolvedImports(ctx, scope)
			require.NoError(t, err)
			require.Len(t, unresolved, 1)
			assert.Equal(t, "nope", unresolved[0].ImportPath)
		})
	}
}

func TestStore_IngestRecordsAppliesInOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scope := uniqueScope(t, scopeA)

			bulk, ok := s.(BulkIngester)
			require.True(t, ok)

			records := []models.Record{
				&models.Node{SymbolUID: "A", NodeType: models.NodeTypeFunction},
				&models.Edge{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B"},
				&models.Edge{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B", Metadata: map[string]interface{}{"v": "2"}},
				&models.EdgeOccurrence{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B", FilePath: "a.go", LineStart: 1, LineEnd: 1},
				&models.Unrecognized{Type: "future_kind"},
			}
			require.NoError(t, bulk.IngestRecords(ctx, scope, records))

			edges, err := s.ListEdges(ctx, scope, EdgeFilter{})
			require.NoError(t, err)
			require.Len(t, edges, 1)
			assert.Equal(t, map[string]interface{}{"v": "2"}, edges[0].Metadata)

			n, err := s.CountEdgeOccurrences(ctx, scope, edges[0].Key())
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestApplyRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(quietLogger())

	require.NoError(t, ApplyRecord(ctx, s, scopeA, &models.Node{SymbolUID: "A", NodeType: models.NodeTypeFile}))
	require.NoError(t, ApplyRecord(ctx, s, scopeA, &models.Unrecognized{Type: "x"}))

	err := ApplyRecord(ctx, s, scopeA, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInternal, errors.GetType(err))
	assert.True(t, errors.IsFatal(err))

	nodes, err := s.ListNodes(ctx, scopeA, NodeFilter{})
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestSchemaFor(t *testing.T) {
	sqlite := schemaFor(DialectSQLite)
	assert.Contains(t, sqlite, "INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.NotContains(t, sqlite, "ROW LEVEL SECURITY")

	pg := schemaFor(DialectPostgres)
	assert.Contains(t, pg, "BIGSERIAL PRIMARY KEY")
	for _, table := range scopedTables {
		assert.Contains(t, pg, "ALTER TABLE "+table+" FORCE ROW LEVEL SECURITY")
	}
}

func nodeUIDs(nodes []*models.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.SymbolUID
	}
	return out
}

func edgeKeys(edges []*models.Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.Key().String()
	}
	return out
}
