package graph

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/rohankatakam/cigraph/internal/models"
)

// SymbolLabel is carried by every mirrored node
const SymbolLabel = "Symbol"

// CypherBuilder builds parameterized Cypher for the mirror. Every value goes
// through a parameter; labels and relationship types cannot be parameterized,
// so they are checked with isValidIdentifier before being spliced in.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// scopeMatch renders the property map pinning a node to scope
func (b *CypherBuilder) scopeMatch(scope models.Scope, uidExpr string) string {
	tenant := b.AddParam(scope.TenantID)
	repo := b.AddParam(scope.RepoID)
	if uidExpr == "" {
		return fmt.Sprintf("{tenant_id: %s, repo_id: %s}", tenant, repo)
	}
	return fmt.Sprintf("{tenant_id: %s, repo_id: %s, symbol_uid: %s}", tenant, repo, uidExpr)
}

// BuildMergeNodes merges one batch of node rows. Each row carries symbol_uid
// and a props map. A valid label is added next to Symbol.
func (b *CypherBuilder) BuildMergeNodes(scope models.Scope, label string, rows []map[string]any) (string, error) {
	if label != "" && !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	rowsParam := b.AddParam(rows)
	match := b.scopeMatch(scope, "row.symbol_uid")

	var sb strings.Builder
	fmt.Fprintf(&sb, "UNWIND %s AS row\n", rowsParam)
	fmt.Fprintf(&sb, "MERGE (n:%s %s)\n", SymbolLabel, match)
	sb.WriteString("SET n += row.props")
	if label != "" && label != SymbolLabel {
		fmt.Fprintf(&sb, ", n:%s", label)
	}
	sb.WriteString("\nRETURN count(n) AS count")
	return sb.String(), nil
}

// BuildMergeEdges merges one batch of edges sharing relType. Endpoints that
// were never exported are created as bare Symbol nodes without a node_type.
func (b *CypherBuilder) BuildMergeEdges(scope models.Scope, relType string, rows []map[string]any) (string, error) {
	if !isValidIdentifier(relType) {
		return "", fmt.Errorf("invalid relationship type: %s (must be alphanumeric + underscore)", relType)
	}
	rowsParam := b.AddParam(rows)
	tenant := b.AddParam(scope.TenantID)
	repo := b.AddParam(scope.RepoID)

	return fmt.Sprintf(
		"UNWIND %s AS row\n"+
			"MERGE (a:%s {tenant_id: %s, repo_id: %s, symbol_uid: row.source})\n"+
			"MERGE (b:%s {tenant_id: %s, repo_id: %s, symbol_uid: row.target})\n"+
			"MERGE (a)-[r:%s]->(b)\n"+
			"SET r += row.props\n"+
			"RETURN count(r) AS count",
		rowsParam,
		SymbolLabel, tenant, repo,
		SymbolLabel, tenant, repo,
		relType,
	), nil
}

// BuildPurge deletes every mirrored node of scope with its relationships
func (b *CypherBuilder) BuildPurge(scope models.Scope) string {
	return fmt.Sprintf("MATCH (n:%s %s) DETACH DELETE n", SymbolLabel, b.scopeMatch(scope, ""))
}

// BuildCountNodes counts exported nodes of scope, ignoring bare endpoints
func (b *CypherBuilder) BuildCountNodes(scope models.Scope) string {
	return fmt.Sprintf(
		"MATCH (n:%s %s) WHERE n.node_type IS NOT NULL RETURN count(n) AS count",
		SymbolLabel, b.scopeMatch(scope, ""))
}

// BuildCountEdges counts relationships leaving nodes of scope
func (b *CypherBuilder) BuildCountEdges(scope models.Scope) string {
	return fmt.Sprintf(
		"MATCH (a:%s %s)-[r]->(:%s) RETURN count(r) AS count",
		SymbolLabel, b.scopeMatch(scope, ""), SymbolLabel)
}

// isValidIdentifier checks if a string is a safe Cypher identifier
// Only allows: letters, numbers, underscore (must start with a letter or underscore)
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_]*$`, s)
	return matched
}

// RelationshipType maps an edge type to a Cypher relationship type:
// ControlFlow becomes CONTROL_FLOW, Calls becomes CALLS.
func RelationshipType(edgeType string) (string, error) {
	var sb strings.Builder
	runes := []rune(edgeType)
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			sb.WriteRune('_')
			continue
		case unicode.IsUpper(r) && i > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				sb.WriteRune('_')
			}
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	rel := sb.String()
	if !isValidIdentifier(rel) {
		return "", fmt.Errorf("edge type %q has no valid relationship type", edgeType)
	}
	return rel, nil
}
