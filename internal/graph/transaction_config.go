package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TransactionConfig defines timeout and metadata for mirror transactions.
// Neo4j logs the metadata in query.log, which tags slow export batches.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// Operation names understood by DefaultTransactionConfigs
const (
	OpPurge      = "mirror_purge"
	OpNodeExport = "mirror_nodes"
	OpEdgeExport = "mirror_edges"
	OpCount      = "mirror_count"
)

// DefaultTransactionConfigs returns the configs per mirror operation
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		OpPurge: {
			Timeout:  2 * time.Minute,
			Metadata: map[string]any{"operation": OpPurge, "type": "write"},
		},
		OpNodeExport: {
			Timeout:  3 * time.Minute,
			Metadata: map[string]any{"operation": OpNodeExport, "type": "write"},
		},
		OpEdgeExport: {
			Timeout:  3 * time.Minute,
			Metadata: map[string]any{"operation": OpEdgeExport, "type": "write"},
		},
		OpCount: {
			Timeout:  30 * time.Second,
			Metadata: map[string]any{"operation": OpCount, "type": "read"},
		},
	}
}

// txConfigFor returns the config for op, falling back to a one minute timeout
func txConfigFor(op string) TransactionConfig {
	if cfg, ok := DefaultTransactionConfigs()[op]; ok {
		return cfg
	}
	return TransactionConfig{
		Timeout:  time.Minute,
		Metadata: map[string]any{"operation": op},
	}
}

// ToNeo4jConfig converts to the driver's transaction config options
func (tc TransactionConfig) ToNeo4jConfig() []func(*neo4j.TransactionConfig) {
	return []func(*neo4j.TransactionConfig){
		neo4j.WithTxTimeout(tc.Timeout),
		neo4j.WithTxMetadata(tc.Metadata),
	}
}
