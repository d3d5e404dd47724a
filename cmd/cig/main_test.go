package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/cigraph/internal/errors"
)

const indexOutput = `{"type":"node","data":{"symbolUid":"A","nodeType":"Function","qualifiedName":"pkg.A"}}
{"type":"node","data":{"symbolUid":"B","nodeType":"Function","qualifiedName":"pkg.B"}}
{"type":"node","data":{"symbolUid":"C","nodeType":"Function","qualifiedName":"pkg.C"}}
{"type":"edge","data":{"sourceSymbolUid":"A","edgeType":"Calls","targetSymbolUid":"B"}}
{"type":"edge","data":{"sourceSymbolUid":"B","edgeType":"Calls","targetSymbolUid":"C"}}
{"type":"flow_entrypoint","data":{"entrypointKey":"GET /a","entrypointType":"http_route","symbolUid":"A"}}
{"type":"dependency_manifest","data":{"manifestPath":"package.json","ecosystem":"npm"}}
{"type":"declared_dependency","data":{"manifestPath":"package.json","packageKey":"npm:left-pad","versionSpec":"^1.0.0"}}
`

func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CIG_STORAGE_TYPE", "sqlite")
	t.Setenv("CIG_SQLITE_PATH", filepath.Join(dir, "graph.db"))
	t.Setenv("CIG_LOG_LEVEL", "error")
	t.Setenv("CIG_EMBEDDING_PROVIDER", "none")
	t.Setenv("NEO4J_URI", "")

	input := filepath.Join(dir, "index.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(indexOutput), 0644))
	return input
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_IngestAndQuery(t *testing.T) {
	input := setupCLI(t)
	scopeArgs := []string{"--tenant", "acme", "--repo", "api", "-o", "json"}

	out, err := runCLI(t, "", append([]string{"ingest", input, "--stream=false"}, scopeArgs...)...)
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, float64(3), result["nodes"])
	assert.Equal(t, float64(2), result["edges"])
	assert.Equal(t, float64(1), result["mismatches"])

	out, err = runCLI(t, "", append([]string{"blast-radius", "A", "--depth", "2", "--direction", "out"}, scopeArgs...)...)
	require.NoError(t, err)
	var uids []string
	require.NoError(t, json.Unmarshal([]byte(out), &uids))
	assert.Equal(t, []string{"A", "B", "C"}, uids)

	out, err = runCLI(t, "", append([]string{"trace-flow", "GET /a", "--depth", "6"}, scopeArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"symbolUid": "C"`)

	out, err = runCLI(t, "", append([]string{"materialize-flow", "GET /a", "--sha", "abc123", "--depth", "2"}, scopeArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, out, `"flowGraphKey": "GET /a::abc123::2"`)

	out, err = runCLI(t, "", append([]string{"deps", "mismatches"}, scopeArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "declared_not_observed")
}

func TestCLI_ScopeIsolation(t *testing.T) {
	input := setupCLI(t)

	_, err := runCLI(t, "", "ingest", input, "--stream=false", "--tenant", "acme", "--repo", "api", "-o", "json")
	require.NoError(t, err)

	out, err := runCLI(t, "", "blast-radius", "A", "--depth", "2", "--direction", "out", "--tenant", "other", "--repo", "api", "-o", "json")
	require.NoError(t, err)
	// the seed is always reported; nothing from the acme scope is reachable
	assert.JSONEq(t, `["A"]`, strings.TrimSpace(out))
}

func TestCLI_IngestFromStdinStreaming(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, indexOutput, "ingest", "-", "--stream", "--tenant", "acme", "--repo", "api", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Nodes:")
	assert.Contains(t, out, "Batches:")
}

func TestCLI_RejectsMissingScope(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "blast-radius", "A", "--tenant", "", "--repo", "", "-o", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant and --repo are required")
	assert.Equal(t, exitInput, exitCode(err))
}

func TestCLI_RejectsInvalidRecord(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, `{"type":"node","data":{"nodeType":"Function"}}`+"\n",
		"ingest", "-", "--stream=false", "--tenant", "acme", "--repo", "api", "-o", "json")
	require.Error(t, err)
	assert.Equal(t, exitInput, exitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.ValidationCode("node_missing_symbol_uid", "node has no symbol_uid"), exitInput},
		{"malformed wrapped", fmt.Errorf("ingest: %w", errors.MalformedCode(errors.CodeInvalidJSON, "line 3")), exitInput},
		{"config", errors.ConfigErrorf("unknown storage type %q", "mongo"), exitConfig},
		{"database", errors.DatabaseError(stderrors.New("locked"), "commit transaction"), exitFailure},
		{"plain", stderrors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReportError(t *testing.T) {
	dbErr := errors.DatabaseError(stderrors.New("disk full"), "commit transaction")

	var out bytes.Buffer
	reportError(&out, dbErr, false)
	assert.Equal(t, "Error: commit transaction: disk full\n", out.String())

	out.Reset()
	reportError(&out, dbErr, true)
	assert.Contains(t, out.String(), "[CRITICAL] [DATABASE] commit transaction")
	assert.Contains(t, out.String(), "Stack trace:")

	out.Reset()
	reportError(&out, errors.InvalidArgument("depth must be >= 0"), true)
	assert.Equal(t, "Error: invalid_argument: depth must be >= 0\n", out.String())
}
