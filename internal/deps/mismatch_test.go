package deps

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

func kinds(ms []*models.DependencyMismatch) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Kind + ":" + m.PackageKey
	}
	return out
}

func TestCompute_SetDifferences(t *testing.T) {
	declared := []*models.DeclaredDependency{
		{ManifestPath: "package.json", PackageKey: "npm:x", VersionSpec: "^1.0.0"},
		{ManifestPath: "package.json", PackageKey: "npm:shared"},
	}
	observed := []*models.ObservedDependency{
		{PackageKey: "npm:shared", FilePath: "a.ts", LineStart: 1},
		{PackageKey: "npm:y", FilePath: "b.ts", LineStart: 2},
		{PackageKey: "npm:y", FilePath: "a.ts", LineStart: 5},
	}

	ms := Compute(declared, observed, nil)
	assert.Equal(t, []string{
		"declared_not_observed:npm:x",
		"observed_not_declared:npm:y",
	}, kinds(ms))

	assert.Equal(t, "package.json", ms[0].ManifestPath)
	assert.Equal(t, "^1.0.0", ms[0].DeclaredVersionSpec)
	assert.Equal(t, map[string]interface{}{
		"files":       []interface{}{"a.ts", "b.ts"},
		"occurrences": float64(2),
	}, ms[1].Details)
}

func TestCompute_IsDeterministic(t *testing.T) {
	declared := []*models.DeclaredDependency{
		{ManifestPath: "b/go.mod", PackageKey: "go:z"},
		{ManifestPath: "a/go.mod", PackageKey: "go:z"},
		{ManifestPath: "a/go.mod", PackageKey: "go:a"},
	}
	first := Compute(declared, nil, nil)
	second := Compute(declared, nil, nil)
	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, "go:a", first[0].PackageKey)
	assert.Equal(t, "a/go.mod", first[1].ManifestPath)
	assert.Equal(t, "b/go.mod", first[2].ManifestPath)
}

func TestCompute_VersionConflicts(t *testing.T) {
	declared := []*models.DeclaredDependency{
		{ManifestPath: "package.json", PackageKey: "npm:react", VersionSpec: "^17.0.0"},
		{ManifestPath: "package.json", PackageKey: "npm:lodash", VersionSpec: "^4.17.0"},
	}
	observed := []*models.ObservedDependency{
		{PackageKey: "npm:react", FilePath: "a.tsx", LineStart: 1, Version: "18.2.0"},
		{PackageKey: "npm:react", FilePath: "b.tsx", LineStart: 1, Version: "17.0.2"},
		{PackageKey: "npm:lodash", FilePath: "c.ts", LineStart: 1, Version: "4.17.21"},
	}

	ms := Compute(declared, observed, nil)
	require.Len(t, ms, 1)
	assert.Equal(t, models.MismatchVersionConflict, ms[0].Kind)
	assert.Equal(t, "npm:react", ms[0].PackageKey)
	assert.Equal(t, "18.2.0", ms[0].ObservedVersion)
	assert.Equal(t, "^17.0.0", ms[0].DeclaredVersionSpec)
}

func TestCompute_SuppliedVersionConflicts(t *testing.T) {
	declared := []*models.DeclaredDependency{{ManifestPath: "m", PackageKey: "p", VersionSpec: "^1.0.0"}}
	observed := []*models.ObservedDependency{{PackageKey: "p", FilePath: "f", LineStart: 1, Version: "1.4.0"}}
	supplied := []*models.DependencyMismatch{
		{PackageKey: "p", Kind: models.MismatchVersionConflict, ManifestPath: "m", DeclaredVersionSpec: "^1.0.0",
			ObservedVersion: "1.4.0", Source: models.MismatchSourceIndexer, Details: map[string]interface{}{"peer": "npm:q"}},
		{PackageKey: "p", Kind: models.MismatchVersionConflict, ManifestPath: "m", DeclaredVersionSpec: "^0.9.0",
			ObservedVersion: "1.4.0", Source: models.MismatchSourceIndexer},
		{PackageKey: "p", Kind: models.MismatchVersionConflict, ManifestPath: "m", DeclaredVersionSpec: "^1.0.0",
			ObservedVersion: "2.0.0", Source: models.MismatchSourceAnalyzer},
		{PackageKey: "gone", Kind: models.MismatchVersionConflict, Source: models.MismatchSourceIndexer},
		{PackageKey: "stale", Kind: models.MismatchDeclaredNotObserved, Source: models.MismatchSourceIndexer},
	}

	ms := Compute(declared, observed, supplied)
	require.Len(t, ms, 1)
	assert.Equal(t, "p", ms[0].PackageKey)
	assert.Equal(t, models.MismatchSourceIndexer, ms[0].Source)
	assert.Equal(t, map[string]interface{}{"peer": "npm:q"}, ms[0].Details)
}

func TestAnalyzer_RecomputeDropsFixedVersionConflict(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	store := storage.NewMemoryStore(logger)
	scope := models.Scope{TenantID: "t", RepoID: "r"}
	analyzer := NewAnalyzer(store, logger)

	manifest := &models.DependencyManifest{ManifestPath: "package.json"}
	require.NoError(t, store.AddDependencyManifest(ctx, scope, manifest))
	require.NoError(t, store.AddDeclaredDependency(ctx, scope, &models.DeclaredDependency{ManifestPath: "package.json", PackageKey: "npm:x", VersionSpec: "^1.0.0"}))
	require.NoError(t, store.AddObservedDependency(ctx, scope, &models.ObservedDependency{PackageKey: "npm:x", FilePath: "a.ts", LineStart: 1, Version: "2.0.0"}))

	ms, err := analyzer.Recompute(ctx, scope)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, models.MismatchVersionConflict, ms[0].Kind)
	assert.Equal(t, models.MismatchSourceAnalyzer, ms[0].Source)

	// the manifest now allows 2.x
	require.NoError(t, store.AddDependencyManifest(ctx, scope, manifest))
	require.NoError(t, store.AddDeclaredDependency(ctx, scope, &models.DeclaredDependency{ManifestPath: "package.json", PackageKey: "npm:x", VersionSpec: "^2.0.0"}))

	ms, err = analyzer.Recompute(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, ms)

	stored, err := store.ListDependencyMismatches(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		spec    string
		version string
		want    bool
	}{
		{"^1.2.3", "1.9.0", true},
		{"^1.2.3", "2.0.0", false},
		{"^1.2.3", "1.2.0", false},
		{"^0.2.3", "0.2.9", true},
		{"^0.2.3", "0.3.0", false},
		{"1.2.3", "1.4.0", true},
		{"~1.2.3", "1.2.8", true},
		{"~1.2.3", "1.3.0", false},
		{"=1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{">=1.2.3", "3.0.0", true},
		{">=1.2.3", "1.2.2", false},
		{"v1.5.0", "v1.6.1", true},
		{"*", "9.9.9", true},
		{"", "1.0.0", true},
		{"1.x", "2.0.0", true},
		{">=1.0.0 <2.0.0", "3.0.0", true},
		{"^1.0.0", "", true},
		{"^1.0.0", "not-a-version", true},
		{"workspace:^", "1.0.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec+"/"+tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, Satisfies(tt.spec, tt.version))
		})
	}
}

func TestAnalyzer_RecomputeRemovesResolvedMismatch(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	store := storage.NewMemoryStore(logger)
	scope := models.Scope{TenantID: "t", RepoID: "r"}
	analyzer := NewAnalyzer(store, logger)

	require.NoError(t, store.AddDependencyManifest(ctx, scope, &models.DependencyManifest{ManifestPath: "package.json"}))
	require.NoError(t, store.AddDeclaredDependency(ctx, scope, &models.DeclaredDependency{ManifestPath: "package.json", PackageKey: "npm:x"}))

	ms, err := analyzer.Recompute(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"declared_not_observed:npm:x"}, kinds(ms))

	// idempotent
	again, err := analyzer.Recompute(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, ms, again)

	stored, err := store.ListDependencyMismatches(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// re-indexing the manifest without x removes the cause
	require.NoError(t, store.AddDependencyManifest(ctx, scope, &models.DependencyManifest{ManifestPath: "package.json"}))
	ms, err = analyzer.Recompute(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, ms)

	stored, err = store.ListDependencyMismatches(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
