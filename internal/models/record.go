package models

import "encoding/json"

// RecordType is the wire discriminator of an ingestible record
type RecordType string

const (
	RecordNode               RecordType = "node"
	RecordEdge               RecordType = "edge"
	RecordEdgeOccurrence     RecordType = "edge_occurrence"
	RecordFlowEntrypoint     RecordType = "flow_entrypoint"
	RecordFlowGraph          RecordType = "flow_graph"
	RecordDependencyManifest RecordType = "dependency_manifest"
	RecordDeclaredDependency RecordType = "declared_dependency"
	RecordObservedDependency RecordType = "observed_dependency"
	RecordDependencyMismatch RecordType = "dependency_mismatch"
	RecordIndexDiagnostic    RecordType = "index_diagnostic"
	RecordUnresolvedImport   RecordType = "unresolved_import"
)

// Record is the closed set of ingestible records. Every known kind is one of the
// entity pointers below; anything else decodes to *Unrecognized and is skipped.
type Record interface {
	RecordType() RecordType
	isRecord()
}

// Unrecognized carries a record whose type this build does not know
type Unrecognized struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (*Node) RecordType() RecordType               { return RecordNode }
func (*Edge) RecordType() RecordType               { return RecordEdge }
func (*EdgeOccurrence) RecordType() RecordType     { return RecordEdgeOccurrence }
func (*FlowEntrypoint) RecordType() RecordType     { return RecordFlowEntrypoint }
func (*FlowGraph) RecordType() RecordType          { return RecordFlowGraph }
func (*DependencyManifest) RecordType() RecordType { return RecordDependencyManifest }
func (*DeclaredDependency) RecordType() RecordType { return RecordDeclaredDependency }
func (*ObservedDependency) RecordType() RecordType { return RecordObservedDependency }
func (*DependencyMismatch) RecordType() RecordType { return RecordDependencyMismatch }
func (*IndexDiagnostic) RecordType() RecordType    { return RecordIndexDiagnostic }
func (*UnresolvedImport) RecordType() RecordType   { return RecordUnresolvedImport }
func (u *Unrecognized) RecordType() RecordType     { return RecordType(u.Type) }

func (*Node) isRecord()               {}
func (*Edge) isRecord()               {}
func (*EdgeOccurrence) isRecord()     {}
func (*FlowEntrypoint) isRecord()     {}
func (*FlowGraph) isRecord()          {}
func (*DependencyManifest) isRecord() {}
func (*DeclaredDependency) isRecord() {}
func (*ObservedDependency) isRecord() {}
func (*DependencyMismatch) isRecord() {}
func (*IndexDiagnostic) isRecord()    {}
func (*UnresolvedImport) isRecord()   {}
func (*Unrecognized) isRecord()       {}

// IsDependencyFact reports whether the record type changes declared/observed facts
func (t RecordType) IsDependencyFact() bool {
	switch t {
	case RecordDependencyManifest, RecordDeclaredDependency, RecordObservedDependency:
		return true
	}
	return false
}
