package validation

import (
	"strings"

	"github.com/rohankatakam/cigraph/internal/errors"
	"github.com/rohankatakam/cigraph/internal/models"
)

// Reason codes returned by the record validators
const (
	CodeNodeMissingSymbolUID = "node_missing_symbol_uid"
	CodeNodeMissingNodeType  = "node_missing_node_type"
	CodeEdgeMissingSource    = "edge_missing_source"
	CodeEdgeMissingTarget    = "edge_missing_target"
	CodeEdgeMissingType      = "edge_missing_type"
	CodeOccMissingFilePath   = "occ_missing_file_path"
	CodeOccBadLineStart      = "occ_bad_line_start"
	CodeOccBadLineEnd        = "occ_bad_line_end"
)

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateNode requires a symbol uid and a node type
func ValidateNode(n *models.Node) error {
	if n == nil || blank(n.SymbolUID) {
		return errors.ValidationCode(CodeNodeMissingSymbolUID, "node record has no symbolUid")
	}
	if blank(n.NodeType) {
		return errors.ValidationCode(CodeNodeMissingNodeType, "node %s has no nodeType", n.SymbolUID).
			WithContext("symbol_uid", n.SymbolUID)
	}
	return nil
}

// ValidateEdge requires source, target and edge type
func ValidateEdge(e *models.Edge) error {
	if e == nil {
		return errors.ValidationCode(CodeEdgeMissingSource, "edge record is empty")
	}
	return validateKey(e.Key())
}

func validateKey(k models.EdgeKey) error {
	if blank(k.Source) {
		return errors.ValidationCode(CodeEdgeMissingSource, "edge has no sourceSymbolUid")
	}
	if blank(k.Target) {
		return errors.ValidationCode(CodeEdgeMissingTarget, "edge from %s has no targetSymbolUid", k.Source)
	}
	if blank(k.Type) {
		return errors.ValidationCode(CodeEdgeMissingType, "edge %s -> %s has no edgeType", k.Source, k.Target)
	}
	return nil
}

// ValidateEdgeOccurrence requires a file path, a positive lineStart, lineEnd >= lineStart
// and a valid edge key
func ValidateEdgeOccurrence(o *models.EdgeOccurrence) error {
	if o == nil || blank(o.FilePath) {
		return errors.ValidationCode(CodeOccMissingFilePath, "edge occurrence has no filePath")
	}
	if o.LineStart < 1 {
		return errors.ValidationCode(CodeOccBadLineStart, "edge occurrence in %s has lineStart %d", o.FilePath, o.LineStart).
			WithContext("file_path", o.FilePath)
	}
	if o.LineEnd < o.LineStart {
		return errors.ValidationCode(CodeOccBadLineEnd, "edge occurrence in %s has lineEnd %d before lineStart %d",
			o.FilePath, o.LineEnd, o.LineStart).
			WithContext("file_path", o.FilePath)
	}
	return validateKey(o.Key())
}
