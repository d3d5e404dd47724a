package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

// ExportResult summarizes one ExportScope call
type ExportResult struct {
	Scope         models.Scope   `json:"scope"`
	Nodes         int            `json:"nodes"`
	Edges         int            `json:"edges"`
	SkippedEdges  int            `json:"skippedEdges"`
	Relationships map[string]int `json:"relationships"`
	Duration      time.Duration  `json:"duration"`
}

// Mirror copies a scope of the graph store into Neo4j for ad-hoc Cypher
// exploration. The relational or memory store stays the source of truth;
// the mirror is rebuilt from it on demand.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	batch    BatchConfig
	logger   *logrus.Logger
}

// NewMirror connects to Neo4j and verifies connectivity
func NewMirror(ctx context.Context, uri, username, password, database string, logger *logrus.Logger) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.ExternalError(err, "failed to create neo4j driver")
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.ExternalError(err, "failed to verify neo4j connectivity")
	}

	if database == "" {
		database = "neo4j"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	logger.WithFields(logrus.Fields{
		"uri":      uri,
		"database": database,
	}).Info("connected to neo4j mirror")

	return &Mirror{
		driver:   driver,
		database: database,
		logger:   logger,
	}, nil
}

// SetBatchConfig overrides the batch sizes; zero sizes fall back to defaults
func (m *Mirror) SetBatchConfig(cfg BatchConfig) {
	m.batch = cfg
}

// Close closes the Neo4j driver
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// ExportScope replaces the mirror of scope with the current store contents.
// Nodes are merged per node type, edges per relationship type.
func (m *Mirror) ExportScope(ctx context.Context, store storage.Store, scope models.Scope) (*ExportResult, error) {
	if !scope.Valid() {
		return nil, errors.InvalidArgument("tenant and repo ids are required")
	}
	start := time.Now()

	nodes, err := store.ListNodes(ctx, scope, storage.NodeFilter{})
	if err != nil {
		return nil, err
	}
	edges, err := store.ListEdges(ctx, scope, storage.EdgeFilter{})
	if err != nil {
		return nil, err
	}

	batch := m.batch
	if batch == (BatchConfig{}) {
		batch = BatchConfigFor(len(nodes))
	}
	batch = batch.normalized()

	if err := m.run(ctx, OpPurge, func(b *CypherBuilder) (string, error) {
		return b.BuildPurge(scope), nil
	}); err != nil {
		return nil, err
	}

	result := &ExportResult{Scope: scope, Relationships: make(map[string]int)}

	nodeGroups := groupNodes(nodes)
	for _, label := range sortedKeys(nodeGroups) {
		for _, rows := range chunk(nodeGroups[label], batch.NodeBatchSize) {
			rows := rows
			if err := m.run(ctx, OpNodeExport, func(b *CypherBuilder) (string, error) {
				return b.BuildMergeNodes(scope, label, rows)
			}); err != nil {
				return nil, err
			}
			result.Nodes += len(rows)
		}
	}

	edgeGroups := make(map[string][]map[string]any)
	for _, e := range edges {
		rel, err := RelationshipType(e.EdgeType)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"edge_type": e.EdgeType,
				"edge_key":  e.Key().String(),
			}).Warn("skipping edge with unmappable type")
			result.SkippedEdges++
			continue
		}
		occurrences, err := store.CountEdgeOccurrences(ctx, scope, e.Key())
		if err != nil {
			return nil, err
		}
		edgeGroups[rel] = append(edgeGroups[rel], edgeRow(e, occurrences))
	}

	for _, rel := range sortedKeys(edgeGroups) {
		for _, rows := range chunk(edgeGroups[rel], batch.EdgeBatchSize) {
			rows := rows
			if err := m.run(ctx, OpEdgeExport, func(b *CypherBuilder) (string, error) {
				return b.BuildMergeEdges(scope, rel, rows)
			}); err != nil {
				return nil, err
			}
			result.Edges += len(rows)
			result.Relationships[rel] += len(rows)
		}
	}

	result.Duration = time.Since(start)
	m.logger.WithFields(logrus.Fields{
		"tenant_id":     scope.TenantID,
		"repo_id":       scope.RepoID,
		"nodes":         result.Nodes,
		"edges":         result.Edges,
		"skipped_edges": result.SkippedEdges,
		"duration":      result.Duration,
	}).Info("exported scope to neo4j")

	return result, nil
}

// CountNodes returns the number of exported nodes in scope
func (m *Mirror) CountNodes(ctx context.Context, scope models.Scope) (int, error) {
	return m.count(ctx, func(b *CypherBuilder) string { return b.BuildCountNodes(scope) })
}

// CountEdges returns the number of relationships in scope
func (m *Mirror) CountEdges(ctx context.Context, scope models.Scope) (int, error) {
	return m.count(ctx, func(b *CypherBuilder) string { return b.BuildCountEdges(scope) })
}

func (m *Mirror) run(ctx context.Context, op string, build func(*CypherBuilder) (string, error)) error {
	b := NewCypherBuilder()
	query, err := build(b)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityHigh, "failed to build cypher")
	}

	_, err = neo4j.ExecuteQuery(ctx, m.driver, query, b.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(m.database),
		neo4j.ExecuteQueryWithWritersRouting(),
		neo4j.ExecuteQueryWithTransactionConfig(txConfigFor(op).ToNeo4jConfig()...))
	if err != nil {
		return errors.ExternalError(err, fmt.Sprintf("neo4j %s failed", op))
	}
	return nil
}

func (m *Mirror) count(ctx context.Context, build func(*CypherBuilder) string) (int, error) {
	b := NewCypherBuilder()
	query := build(b)

	result, err := neo4j.ExecuteQuery(ctx, m.driver, query, b.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(m.database),
		neo4j.ExecuteQueryWithReadersRouting(),
		neo4j.ExecuteQueryWithTransactionConfig(txConfigFor(OpCount).ToNeo4jConfig()...))
	if err != nil {
		return 0, errors.ExternalError(err, "neo4j count failed")
	}

	if len(result.Records) > 0 {
		if count, ok := result.Records[0].Get("count"); ok {
			if n, ok := count.(int64); ok {
				return int(n), nil
			}
		}
	}
	return 0, nil
}

// groupNodes buckets node rows by label. Node types that are not valid
// identifiers fall back to the bare Symbol label.
func groupNodes(nodes []*models.Node) map[string][]map[string]any {
	groups := make(map[string][]map[string]any)
	for _, n := range nodes {
		label := n.NodeType
		if !isValidIdentifier(label) {
			label = SymbolLabel
		}
		groups[label] = append(groups[label], nodeRow(n))
	}
	return groups
}

// nodeRow flattens a node into Neo4j-safe properties. Nested values become
// JSON strings; the embedding vector is not mirrored.
func nodeRow(n *models.Node) map[string]any {
	props := map[string]any{
		"symbol_uid":    n.SymbolUID,
		"node_type":     n.NodeType,
		"has_embedding": len(n.Embedding) > 0,
	}
	setString(props, "qualified_name", n.QualifiedName)
	setString(props, "file_path", n.FilePath)
	setString(props, "language", n.Language)
	setString(props, "visibility", n.Visibility)
	setString(props, "signature", n.Signature)
	setString(props, "signature_hash", n.SignatureHash)
	setString(props, "docstring", n.Docstring)
	if n.LineStart > 0 {
		props["line_start"] = int64(n.LineStart)
	}
	if n.LineEnd > 0 {
		props["line_end"] = int64(n.LineEnd)
	}
	setJSON(props, "contract", n.Contract)
	setJSON(props, "constraints", n.Constraints)
	setJSON(props, "allowable_values", n.AllowableValues)
	setJSON(props, "external_ref", n.ExternalRef)

	return map[string]any{
		"symbol_uid": n.SymbolUID,
		"props":      props,
	}
}

func edgeRow(e *models.Edge, occurrences int) map[string]any {
	props := map[string]any{
		"edge_type":   e.EdgeType,
		"occurrences": int64(occurrences),
	}
	setJSON(props, "metadata", e.Metadata)
	return map[string]any{
		"source": e.SourceSymbolUID,
		"target": e.TargetSymbolUID,
		"props":  props,
	}
}

func setString(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

func setJSON(props map[string]any, key string, value interface{}) {
	if value == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	props[key] = string(data)
}

func sortedKeys(m map[string][]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
