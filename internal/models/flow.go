package models

import (
	"fmt"
	"time"
)

// FlowEntrypoint is an externally reachable trigger bound to a starting symbol
type FlowEntrypoint struct {
	EntrypointKey  string      `json:"entrypointKey"`
	EntrypointType string      `json:"entrypointType,omitempty"` // e.g. http_route
	Method         string      `json:"method,omitempty"`
	Path           string      `json:"path,omitempty"`
	SymbolUID      string      `json:"symbolUid"`
	Metadata       interface{} `json:"metadata,omitempty"`
}

// FlowGraph is the materialized shape of a bounded trace at a specific sha
type FlowGraph struct {
	FlowGraphKey  string   `json:"flowGraphKey"`
	EntrypointKey string   `json:"entrypointKey"`
	Sha           string   `json:"sha"`
	Depth         int      `json:"depth"`
	NodeUIDs      []string `json:"nodeUids"`
	EdgeKeys      []string `json:"edgeKeys"`
}

// FlowGraphKey builds entrypointKey::sha::depth
func FlowGraphKey(entrypointKey, sha string, depth int) string {
	return fmt.Sprintf("%s::%s::%d", entrypointKey, sha, depth)
}

// IndexDiagnostic is per-run indexer metadata. Write-only audit trail.
type IndexDiagnostic struct {
	RunID         string      `json:"runId,omitempty"`
	Mode          string      `json:"mode,omitempty"` // full | incremental
	Sha           string      `json:"sha,omitempty"`
	FilesReparsed int         `json:"filesReparsed"`
	FilesImpacted int         `json:"filesImpacted"`
	Metadata      interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time   `json:"createdAt,omitempty"`
}
