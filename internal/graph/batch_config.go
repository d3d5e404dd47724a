package graph

// BatchConfig sets how many rows each UNWIND statement carries.
// Nodes carry more properties than edges, so their batches are smaller.
type BatchConfig struct {
	NodeBatchSize int
	EdgeBatchSize int
}

// DefaultBatchConfig suits repositories of a few thousand symbols
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{NodeBatchSize: 1000, EdgeBatchSize: 5000}
}

// SmallRepoBatchConfig uses smaller batches to reduce memory pressure
func SmallRepoBatchConfig() BatchConfig {
	return BatchConfig{NodeBatchSize: 200, EdgeBatchSize: 1000}
}

// LargeRepoBatchConfig uses larger batches for throughput
func LargeRepoBatchConfig() BatchConfig {
	return BatchConfig{NodeBatchSize: 2000, EdgeBatchSize: 10000}
}

// BatchConfigFor picks a config from the number of symbols being exported
func BatchConfigFor(symbols int) BatchConfig {
	switch {
	case symbols < 2000:
		return SmallRepoBatchConfig()
	case symbols > 50000:
		return LargeRepoBatchConfig()
	default:
		return DefaultBatchConfig()
	}
}

// normalized fills zero sizes from the default config
func (c BatchConfig) normalized() BatchConfig {
	d := DefaultBatchConfig()
	if c.NodeBatchSize <= 0 {
		c.NodeBatchSize = d.NodeBatchSize
	}
	if c.EdgeBatchSize <= 0 {
		c.EdgeBatchSize = d.EdgeBatchSize
	}
	return c
}

// chunk splits rows into slices of at most size elements
func chunk(rows []map[string]any, size int) [][]map[string]any {
	if size <= 0 {
		size = len(rows)
	}
	var out [][]map[string]any
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
