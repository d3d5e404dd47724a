package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Function", true},
		{"CONTROL_FLOW", true},
		{"_private", true},
		{"File2", true},
		{"", false},
		{"2File", false},
		{"Api Endpoint", false},
		{"n) DETACH DELETE n //", false},
		{"Calls`", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidIdentifier(tt.input))
		})
	}
}

func TestRelationshipType(t *testing.T) {
	tests := []struct {
		edgeType string
		want     string
	}{
		{models.EdgeTypeCalls, "CALLS"},
		{models.EdgeTypeControlFlow, "CONTROL_FLOW"},
		{models.EdgeTypeUsesDependency, "USES_DEPENDENCY"},
		{"HTTPCall", "HTTP_CALL"},
		{"reads-from", "READS_FROM"},
		{"calls2", "CALLS2"},
	}
	for _, tt := range tests {
		t.Run(tt.edgeType, func(t *testing.T) {
			got, err := RelationshipType(tt.edgeType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := RelationshipType("x]->(y")
	assert.Error(t, err)
	_, err = RelationshipType("")
	assert.Error(t, err)
}

func TestCypherBuilder_MergeNodes(t *testing.T) {
	scope := models.Scope{TenantID: "t1", RepoID: "r1"}
	rows := []map[string]any{{"symbol_uid": "A", "props": map[string]any{"node_type": "Function"}}}

	b := NewCypherBuilder()
	query, err := b.BuildMergeNodes(scope, "Function", rows)
	require.NoError(t, err)

	assert.Contains(t, query, "UNWIND $p0 AS row")
	assert.Contains(t, query, "MERGE (n:Symbol {tenant_id: $p1, repo_id: $p2, symbol_uid: row.symbol_uid})")
	assert.Contains(t, query, "SET n += row.props, n:Function")
	assert.Equal(t, rows, b.Params()["p0"])
	assert.Equal(t, "t1", b.Params()["p1"])
	assert.Equal(t, "r1", b.Params()["p2"])

	_, err = NewCypherBuilder().BuildMergeNodes(scope, "Bad Label", rows)
	assert.Error(t, err)
}

func TestCypherBuilder_MergeNodesWithoutExtraLabel(t *testing.T) {
	query, err := NewCypherBuilder().BuildMergeNodes(models.Scope{TenantID: "t", RepoID: "r"}, SymbolLabel, nil)
	require.NoError(t, err)
	assert.NotContains(t, query, "n:Symbol\n")
	assert.Contains(t, query, "SET n += row.props\n")
}

func TestCypherBuilder_MergeEdges(t *testing.T) {
	scope := models.Scope{TenantID: "t1", RepoID: "r1"}

	b := NewCypherBuilder()
	query, err := b.BuildMergeEdges(scope, "CALLS", nil)
	require.NoError(t, err)

	assert.Contains(t, query, "MERGE (a:Symbol {tenant_id: $p1, repo_id: $p2, symbol_uid: row.source})")
	assert.Contains(t, query, "MERGE (b:Symbol {tenant_id: $p1, repo_id: $p2, symbol_uid: row.target})")
	assert.Contains(t, query, "MERGE (a)-[r:CALLS]->(b)")
	assert.Len(t, b.Params(), 3)

	_, err = NewCypherBuilder().BuildMergeEdges(scope, "CALLS]->(x", nil)
	assert.Error(t, err)
}

func TestCypherBuilder_ScopedReads(t *testing.T) {
	scope := models.Scope{TenantID: "t1", RepoID: "r1"}

	b := NewCypherBuilder()
	assert.Equal(t, "MATCH (n:Symbol {tenant_id: $p0, repo_id: $p1}) DETACH DELETE n", b.BuildPurge(scope))

	b = NewCypherBuilder()
	assert.Contains(t, b.BuildCountNodes(scope), "WHERE n.node_type IS NOT NULL")
	assert.Equal(t, map[string]any{"p0": "t1", "p1": "r1"}, b.Params())

	b = NewCypherBuilder()
	assert.Contains(t, b.BuildCountEdges(scope), "-[r]->(:Symbol)")
}

func TestNodeRow(t *testing.T) {
	row := nodeRow(&models.Node{
		SymbolUID:     "uid-1",
		NodeType:      models.NodeTypeFunction,
		QualifiedName: "pkg.Fn",
		LineStart:     3,
		Contract:      map[string]interface{}{"returns": "int"},
		Embedding:     []float32{0.1, 0.2},
	})

	assert.Equal(t, "uid-1", row["symbol_uid"])
	props := row["props"].(map[string]any)
	assert.Equal(t, "pkg.Fn", props["qualified_name"])
	assert.Equal(t, int64(3), props["line_start"])
	assert.Equal(t, `{"returns":"int"}`, props["contract"])
	assert.Equal(t, true, props["has_embedding"])
	assert.NotContains(t, props, "line_end")
	assert.NotContains(t, props, "docstring")
	assert.NotContains(t, props, "embedding")
}

func TestGroupNodes(t *testing.T) {
	groups := groupNodes([]*models.Node{
		{SymbolUID: "a", NodeType: models.NodeTypeFunction},
		{SymbolUID: "b", NodeType: models.NodeTypeFunction},
		{SymbolUID: "c", NodeType: "weird type"},
	})
	assert.Len(t, groups[models.NodeTypeFunction], 2)
	assert.Len(t, groups[SymbolLabel], 1)
	assert.Equal(t, []string{models.NodeTypeFunction, SymbolLabel}, sortedKeys(groups))
}

func TestChunk(t *testing.T) {
	rows := make([]map[string]any, 5)
	chunks := chunk(rows, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 1)

	assert.Len(t, chunk(rows, 0), 1)
	assert.Empty(t, chunk(nil, 10))
}

func TestBatchConfigFor(t *testing.T) {
	assert.Equal(t, SmallRepoBatchConfig(), BatchConfigFor(10))
	assert.Equal(t, DefaultBatchConfig(), BatchConfigFor(5000))
	assert.Equal(t, LargeRepoBatchConfig(), BatchConfigFor(100000))
	assert.Equal(t, DefaultBatchConfig(), BatchConfig{}.normalized())
	assert.Equal(t, 7, BatchConfig{NodeBatchSize: 7}.normalized().NodeBatchSize)
}

func TestTxConfigFor(t *testing.T) {
	assert.Equal(t, 30*time.Second, txConfigFor(OpCount).Timeout)
	fallback := txConfigFor("unknown")
	assert.Equal(t, time.Minute, fallback.Timeout)
	assert.Equal(t, "unknown", fallback.Metadata["operation"])
	assert.Len(t, fallback.ToNeo4jConfig(), 2)
}

// TestMirror_ExportScope runs against a live Neo4j when CIG_TEST_NEO4J_URI is set
func TestMirror_ExportScope(t *testing.T) {
	uri := os.Getenv("CIG_TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("CIG_TEST_NEO4J_URI not set")
	}
	ctx := context.Background()

	logger := logrus.New()
	mirror, err := NewMirror(ctx, uri, os.Getenv("CIG_TEST_NEO4J_USER"), os.Getenv("CIG_TEST_NEO4J_PASSWORD"), "", logger)
	require.NoError(t, err)
	defer mirror.Close(ctx)

	store := storage.NewMemoryStore(logger)
	scope := models.Scope{TenantID: "t-" + uuid.NewString(), RepoID: "r1"}
	for _, uid := range []string{"A", "B"} {
		require.NoError(t, store.UpsertNode(ctx, scope, &models.Node{SymbolUID: uid, NodeType: models.NodeTypeFunction}))
	}
	require.NoError(t, store.UpsertEdge(ctx, scope, &models.Edge{SourceSymbolUID: "A", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "B"}))
	require.NoError(t, store.UpsertEdge(ctx, scope, &models.Edge{SourceSymbolUID: "B", EdgeType: models.EdgeTypeCalls, TargetSymbolUID: "ext"}))

	result, err := mirror.ExportScope(ctx, store, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Nodes)
	assert.Equal(t, 2, result.Edges)
	assert.Equal(t, 2, result.Relationships["CALLS"])

	nodes, err := mirror.CountNodes(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, nodes)
	edges, err := mirror.CountEdges(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, edges)

	// a second export replaces rather than duplicates
	_, err = mirror.ExportScope(ctx, store, scope)
	require.NoError(t, err)
	nodes, err = mirror.CountNodes(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, nodes)
}
