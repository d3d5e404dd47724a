package models

import (
	"fmt"
	"strings"
)

// Scope identifies the tenant and repository every entity belongs to.
// No store operation may observe data outside the scope it is given.
type Scope struct {
	TenantID string `json:"tenantId"`
	RepoID   string `json:"repoId"`
}

// Valid reports whether both halves of the scope are set
func (s Scope) Valid() bool {
	return s.TenantID != "" && s.RepoID != ""
}

func (s Scope) String() string {
	return s.TenantID + "/" + s.RepoID
}

// Node types emitted by the indexer. The set is open; these are the common ones.
const (
	NodeTypeFile        = "File"
	NodeTypeFunction    = "Function"
	NodeTypePackage     = "Package"
	NodeTypeManifest    = "Manifest"
	NodeTypeAPIEndpoint = "ApiEndpoint"
)

// Edge types emitted by the indexer.
const (
	EdgeTypeImports        = "Imports"
	EdgeTypeCalls          = "Calls"
	EdgeTypeControlFlow    = "ControlFlow"
	EdgeTypeUsesDependency = "UsesDependency"
	EdgeTypeContains       = "Contains"
)

// Node is a symbol in the code intelligence graph.
// SymbolUID is derived from (Language, QualifiedName, SignatureHash).
type Node struct {
	SymbolUID       string      `json:"symbolUid"`
	QualifiedName   string      `json:"qualifiedName,omitempty"`
	NodeType        string      `json:"nodeType"`
	FilePath        string      `json:"filePath,omitempty"`
	LineStart       int         `json:"lineStart,omitempty"`
	LineEnd         int         `json:"lineEnd,omitempty"`
	Language        string      `json:"language,omitempty"`
	Visibility      string      `json:"visibility,omitempty"`
	Signature       string      `json:"signature,omitempty"`
	SignatureHash   string      `json:"signatureHash,omitempty"`
	Docstring       string      `json:"docstring,omitempty"`
	Contract        interface{} `json:"contract,omitempty"`
	Constraints     interface{} `json:"constraints,omitempty"`
	AllowableValues interface{} `json:"allowableValues,omitempty"`
	EmbeddingText   string      `json:"embeddingText,omitempty"`
	Embedding       []float32   `json:"embedding,omitempty"`
	ExternalRef     interface{} `json:"externalRef,omitempty"`
}

// NeedsEmbedding reports whether the node asks for enrichment
func (n *Node) NeedsEmbedding() bool {
	return len(n.Embedding) == 0 && strings.TrimSpace(n.EmbeddingText) != ""
}

// EdgeKey is the deduplication key of an edge
type EdgeKey struct {
	Source string `json:"sourceSymbolUid"`
	Type   string `json:"edgeType"`
	Target string `json:"targetSymbolUid"`
}

// String renders the key as source::type::target
func (k EdgeKey) String() string {
	return k.Source + "::" + k.Type + "::" + k.Target
}

// Less orders keys by source, type, then target
func (k EdgeKey) Less(o EdgeKey) bool {
	if k.Source != o.Source {
		return k.Source < o.Source
	}
	if k.Type != o.Type {
		return k.Type < o.Type
	}
	return k.Target < o.Target
}

// ParseEdgeKey parses the source::type::target form
func ParseEdgeKey(s string) (EdgeKey, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return EdgeKey{}, fmt.Errorf("edge key %q: want source::type::target", s)
	}
	return EdgeKey{Source: parts[0], Type: parts[1], Target: parts[2]}, nil
}

// Edge is a relationship between two symbols. At most one edge exists per key;
// re-ingesting a key replaces Metadata.
type Edge struct {
	SourceSymbolUID string      `json:"sourceSymbolUid"`
	EdgeType        string      `json:"edgeType"`
	TargetSymbolUID string      `json:"targetSymbolUid"`
	Metadata        interface{} `json:"metadata,omitempty"`
}

// Key returns the edge's deduplication key
func (e *Edge) Key() EdgeKey {
	return EdgeKey{Source: e.SourceSymbolUID, Type: e.EdgeType, Target: e.TargetSymbolUID}
}

// EdgeOccurrence is one place in code where an edge was observed. Append-only.
type EdgeOccurrence struct {
	SourceSymbolUID string      `json:"sourceSymbolUid"`
	EdgeType        string      `json:"edgeType"`
	TargetSymbolUID string      `json:"targetSymbolUid"`
	FilePath        string      `json:"filePath"`
	LineStart       int         `json:"lineStart"`
	LineEnd         int         `json:"lineEnd"`
	OccurrenceKind  string      `json:"occurrenceKind,omitempty"`
	Metadata        interface{} `json:"metadata,omitempty"`
}

// Key returns the key of the edge this occurrence backs
func (o *EdgeOccurrence) Key() EdgeKey {
	return EdgeKey{Source: o.SourceSymbolUID, Type: o.EdgeType, Target: o.TargetSymbolUID}
}

// Direction selects which edges of a node a traversal follows
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// ParseDirection accepts in, out or both
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionIn, DirectionOut, DirectionBoth:
		return d, nil
	}
	return "", fmt.Errorf("direction %q: want in, out or both", s)
}
