package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/cigraph/internal/ingestion"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/query"
	"github.com/rohankatakam/cigraph/internal/validation"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"", FormatText, false},
		{"text", FormatText, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_JSONAndYAMLShareKeys(t *testing.T) {
	fg := &models.FlowGraph{
		FlowGraphKey:  "GET /users::abc::3",
		EntrypointKey: "GET /users",
		Sha:           "abc",
		Depth:         3,
		NodeUIDs:      []string{"A", "B"},
		EdgeKeys:      []string{"A::Calls::B"},
	}

	var jsonBuf bytes.Buffer
	require.NoError(t, Render(&jsonBuf, FormatJSON, fg))
	var fromJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &fromJSON))

	var yamlBuf bytes.Buffer
	require.NoError(t, Render(&yamlBuf, FormatYAML, fg))
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))

	assert.Equal(t, "GET /users::abc::3", fromJSON["flowGraphKey"])
	assert.Equal(t, "GET /users::abc::3", fromYAML["flowGraphKey"])
	assert.Contains(t, yamlBuf.String(), "nodeUids:")
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		contains []string
	}{
		{
			name:     "blast radius",
			value:    []string{"B", "C"},
			contains: []string{"B\nC\n"},
		},
		{
			name:     "empty blast radius",
			value:    []string{},
			contains: []string{"(none)"},
		},
		{
			name: "ingest result",
			value: &ingestion.Result{
				RunID: "run-1", Records: 3, Nodes: 2, Edges: 1,
				DependencySignals: true, Mismatches: 1, Duration: time.Second,
			},
			contains: []string{"run-1", "Mismatches:", "1s"},
		},
		{
			name: "neighborhood",
			value: &query.Neighborhood{
				Nodes: []*models.Node{{SymbolUID: "B", NodeType: "Function", FilePath: "b.go", LineStart: 4}},
				Edges: []*models.Edge{{SourceSymbolUID: "A", EdgeType: "Calls", TargetSymbolUID: "B"}},
				EdgeOccurrenceCounts: []query.EdgeOccurrenceCount{
					{EdgeKey: "A::Calls::B", Occurrences: 2},
				},
			},
			contains: []string{"Nodes (1):", "b.go:4", "A::Calls::B  (2 occurrences)"},
		},
		{
			name: "mismatches",
			value: []*models.DependencyMismatch{
				{Kind: models.MismatchDeclaredNotObserved, PackageKey: "npm:left-pad", ManifestPath: "package.json"},
			},
			contains: []string{"KIND", "declared_not_observed", "npm:left-pad", "-"},
		},
		{
			name:     "no mismatches",
			value:    []*models.DependencyMismatch{},
			contains: []string{"No dependency mismatches"},
		},
		{
			name: "consistency",
			value: []validation.ValidationResult{
				{EntityType: "Nodes", StoreCount: 10, MirrorCount: 5, VariancePercent: 50},
			},
			contains: []string{"Nodes", "50.0%", "needs sync"},
		},
		{
			name:     "fallback",
			value:    map[string]int{"count": 3},
			contains: []string{"count: 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, FormatText, tt.value))
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
