package models

// Mismatch kinds
const (
	MismatchDeclaredNotObserved = "declared_not_observed"
	MismatchObservedNotDeclared = "observed_not_declared"
	MismatchVersionConflict     = "version_conflict"
)

// Mismatch sources. Analyzer rows are rederived on every recompute; indexer rows
// arrive as dependency_mismatch records.
const (
	MismatchSourceAnalyzer = "analyzer"
	MismatchSourceIndexer  = "indexer"
)

// DependencyManifest describes a package file such as go.mod or package.json
type DependencyManifest struct {
	ManifestPath string      `json:"manifestPath"`
	Ecosystem    string      `json:"ecosystem,omitempty"` // go, npm, pypi, ...
	PackageName  string      `json:"packageName,omitempty"`
	Metadata     interface{} `json:"metadata,omitempty"`
}

// DeclaredDependency comes from manifest parsing
type DeclaredDependency struct {
	ManifestPath    string `json:"manifestPath,omitempty"`
	PackageKey      string `json:"packageKey"`
	VersionSpec     string `json:"versionSpec,omitempty"`
	DependencyScope string `json:"dependencyScope,omitempty"` // prod, dev, peer
}

// ObservedDependency comes from import-site evidence
type ObservedDependency struct {
	PackageKey string `json:"packageKey"`
	FilePath   string `json:"filePath,omitempty"`
	LineStart  int    `json:"lineStart,omitempty"`
	ImportPath string `json:"importPath,omitempty"`
	Version    string `json:"version,omitempty"` // resolved version, when the indexer knows it
}

// DependencyMismatch is a derived divergence between declared and observed facts
type DependencyMismatch struct {
	PackageKey          string      `json:"packageKey"`
	Kind                string      `json:"kind"`
	ManifestPath        string      `json:"manifestPath,omitempty"`
	DeclaredVersionSpec string      `json:"declaredVersionSpec,omitempty"`
	ObservedVersion     string      `json:"observedVersion,omitempty"`
	Details             interface{} `json:"details,omitempty"`
	Source              string      `json:"source,omitempty"`
}

// Key identifies a mismatch within a scope; at most one row is stored per key
func (m *DependencyMismatch) Key() string {
	return m.Kind + "\x00" + m.PackageKey + "\x00" + m.ManifestPath + "\x00" + m.ObservedVersion
}

// UnresolvedImport is an import site the indexer could not map to a package
type UnresolvedImport struct {
	FilePath   string `json:"filePath"`
	LineStart  int    `json:"lineStart,omitempty"`
	ImportPath string `json:"importPath"`
	Reason     string `json:"reason,omitempty"`
}
