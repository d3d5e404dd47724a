// Package deps derives dependency mismatches from declared (manifest) and
// observed (import-site) dependency facts.
package deps

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

// Compute returns the full mismatch set for one scope. supplied carries rows already
// stored. Only indexer-supplied version_conflict rows are carried over, and only
// while a declared dependency with the same spec and an observation of the same
// version still exist; every analyzer row is recomputed from scratch.
// The result is sorted, so identical inputs always produce identical output.
func Compute(declared []*models.DeclaredDependency, observed []*models.ObservedDependency, supplied []*models.DependencyMismatch) []*models.DependencyMismatch {
	declaredBy := make(map[string][]*models.DeclaredDependency)
	for _, d := range declared {
		declaredBy[d.PackageKey] = append(declaredBy[d.PackageKey], d)
	}
	observedBy := make(map[string][]*models.ObservedDependency)
	for _, o := range observed {
		observedBy[o.PackageKey] = append(observedBy[o.PackageKey], o)
	}

	var out []*models.DependencyMismatch
	seen := make(map[string]bool)
	add := func(m *models.DependencyMismatch) {
		k := m.Key()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, m)
	}

	for pkg, decls := range declaredBy {
		if _, ok := observedBy[pkg]; ok {
			continue
		}
		for _, d := range decls {
			add(&models.DependencyMismatch{
				PackageKey:          pkg,
				Kind:                models.MismatchDeclaredNotObserved,
				ManifestPath:        d.ManifestPath,
				DeclaredVersionSpec: d.VersionSpec,
				Source:              models.MismatchSourceAnalyzer,
			})
		}
	}

	for pkg, obs := range observedBy {
		if _, ok := declaredBy[pkg]; ok {
			continue
		}
		add(&models.DependencyMismatch{
			PackageKey:      pkg,
			Kind:            models.MismatchObservedNotDeclared,
			ObservedVersion: firstVersion(obs),
			Details:         evidence(obs),
			Source:          models.MismatchSourceAnalyzer,
		})
	}

	for pkg, decls := range declaredBy {
		obs, ok := observedBy[pkg]
		if !ok {
			continue
		}
		for _, d := range decls {
			for _, v := range distinctVersions(obs) {
				if Satisfies(d.VersionSpec, v) {
					continue
				}
				add(&models.DependencyMismatch{
					PackageKey:          pkg,
					Kind:                models.MismatchVersionConflict,
					ManifestPath:        d.ManifestPath,
					DeclaredVersionSpec: d.VersionSpec,
					ObservedVersion:     v,
					Details:             evidence(withVersion(obs, v)),
					Source:              models.MismatchSourceAnalyzer,
				})
			}
		}
	}

	for _, m := range supplied {
		if m.Kind != models.MismatchVersionConflict || m.Source != models.MismatchSourceIndexer {
			continue
		}
		if stillDeclared(declaredBy[m.PackageKey], m) && stillObserved(observedBy[m.PackageKey], m) {
			c := *m
			add(&c)
		}
	}

	sortMismatches(out)
	return out
}

// stillDeclared reports whether a declared dependency still carries the spec the
// conflict was raised against
func stillDeclared(decls []*models.DeclaredDependency, m *models.DependencyMismatch) bool {
	for _, d := range decls {
		if m.ManifestPath != "" && d.ManifestPath != m.ManifestPath {
			continue
		}
		if d.VersionSpec == m.DeclaredVersionSpec {
			return true
		}
	}
	return false
}

func stillObserved(obs []*models.ObservedDependency, m *models.DependencyMismatch) bool {
	if len(obs) == 0 {
		return false
	}
	if m.ObservedVersion == "" {
		return true
	}
	for _, o := range obs {
		if o.Version == m.ObservedVersion {
			return true
		}
	}
	return false
}

func sortMismatches(ms []*models.DependencyMismatch) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.PackageKey != b.PackageKey {
			return a.PackageKey < b.PackageKey
		}
		if a.ManifestPath != b.ManifestPath {
			return a.ManifestPath < b.ManifestPath
		}
		return a.ObservedVersion < b.ObservedVersion
	})
}

func firstVersion(obs []*models.ObservedDependency) string {
	for _, o := range obs {
		if o.Version != "" {
			return o.Version
		}
	}
	return ""
}

func distinctVersions(obs []*models.ObservedDependency) []string {
	set := make(map[string]bool)
	var out []string
	for _, o := range obs {
		if o.Version != "" && !set[o.Version] {
			set[o.Version] = true
			out = append(out, o.Version)
		}
	}
	sort.Strings(out)
	return out
}

func withVersion(obs []*models.ObservedDependency, v string) []*models.ObservedDependency {
	var out []*models.ObservedDependency
	for _, o := range obs {
		if o.Version == v {
			out = append(out, o)
		}
	}
	return out
}

// evidence summarises where a package was imported
func evidence(obs []*models.ObservedDependency) map[string]interface{} {
	set := make(map[string]bool)
	var files []interface{}
	for _, o := range obs {
		if !set[o.FilePath] {
			set[o.FilePath] = true
			files = append(files, o.FilePath)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].(string) < files[j].(string) })
	return map[string]interface{}{
		"files":       files,
		"occurrences": float64(len(obs)),
	}
}

// Analyzer recomputes and stores the mismatch set of a scope
type Analyzer struct {
	store  storage.Store
	logger *logrus.Logger
}

// NewAnalyzer creates an analyzer over store
func NewAnalyzer(store storage.Store, logger *logrus.Logger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Analyzer{store: store, logger: logger}
}

// Recompute derives mismatches from the current declared and observed sets and
// replaces the stored set with the result. Running it twice on unchanged facts
// leaves the same set in place.
func (a *Analyzer) Recompute(ctx context.Context, scope models.Scope) ([]*models.DependencyMismatch, error) {
	declared, err := a.store.ListDeclaredDependencies(ctx, scope)
	if err != nil {
		return nil, err
	}
	observed, err := a.store.ListObservedDependencies(ctx, scope)
	if err != nil {
		return nil, err
	}
	existing, err := a.store.ListDependencyMismatches(ctx, scope)
	if err != nil {
		return nil, err
	}

	mismatches := Compute(declared, observed, existing)
	if err := a.store.ReplaceDependencyMismatches(ctx, scope, mismatches); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"scope":      scope.String(),
		"declared":   len(declared),
		"observed":   len(observed),
		"mismatches": len(mismatches),
	}).Debug("recomputed dependency mismatches")
	return mismatches, nil
}
