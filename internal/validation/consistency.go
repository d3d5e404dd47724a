package validation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/storage"
)

// DefaultSyncThreshold is the minimum sync percentage a mirror must reach
const DefaultSyncThreshold = 95.0

// MirrorCounter reports entity counts held by a graph mirror
type MirrorCounter interface {
	CountNodes(ctx context.Context, scope models.Scope) (int, error)
	CountEdges(ctx context.Context, scope models.Scope) (int, error)
}

// ValidationResult contains the results of a consistency check
type ValidationResult struct {
	EntityType      string  `json:"entityType"`
	StoreCount      int64   `json:"storeCount"`
	MirrorCount     int64   `json:"mirrorCount"`
	VariancePercent float64 `json:"syncPercent"`
	PassedThreshold bool    `json:"passed"`
}

// ConsistencyValidator compares the graph store with its mirror
type ConsistencyValidator struct {
	store     storage.Store
	mirror    MirrorCounter
	threshold float64
	logger    *logrus.Logger
}

// NewConsistencyValidator creates a new consistency validator
func NewConsistencyValidator(store storage.Store, mirror MirrorCounter, logger *logrus.Logger) *ConsistencyValidator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConsistencyValidator{
		store:     store,
		mirror:    mirror,
		threshold: DefaultSyncThreshold,
		logger:    logger,
	}
}

// SetThreshold overrides the sync percentage required to pass
func (v *ConsistencyValidator) SetThreshold(percent float64) {
	v.threshold = percent
}

// ValidateScope compares node and edge counts for one scope
func (v *ConsistencyValidator) ValidateScope(ctx context.Context, scope models.Scope) ([]ValidationResult, error) {
	nodes, err := v.store.ListNodes(ctx, scope, storage.NodeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count store nodes: %w", err)
	}
	mirrorNodes, err := v.mirror.CountNodes(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count mirror nodes: %w", err)
	}

	edges, err := v.store.ListEdges(ctx, scope, storage.EdgeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count store edges: %w", err)
	}
	mirrorEdges, err := v.mirror.CountEdges(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count mirror edges: %w", err)
	}

	return []ValidationResult{
		v.compare("Nodes", int64(len(nodes)), int64(mirrorNodes)),
		v.compare("Edges", int64(len(edges)), int64(mirrorEdges)),
	}, nil
}

// compare scores the smaller count against the larger, so a mirror holding
// extra rows fails the same way as one missing rows
func (v *ConsistencyValidator) compare(entity string, storeCount, mirrorCount int64) ValidationResult {
	variance := 100.0
	lo, hi := storeCount, mirrorCount
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi > 0 {
		variance = float64(lo) / float64(hi) * 100.0
	}
	return ValidationResult{
		EntityType:      entity,
		StoreCount:      storeCount,
		MirrorCount:     mirrorCount,
		VariancePercent: variance,
		PassedThreshold: variance >= v.threshold,
	}
}

// AllPassed reports whether every result reached the threshold
func AllPassed(results []ValidationResult) bool {
	for _, r := range results {
		if !r.PassedThreshold {
			return false
		}
	}
	return true
}

// LogResults logs validation results
func (v *ConsistencyValidator) LogResults(scope models.Scope, results []ValidationResult) {
	for _, r := range results {
		v.logger.WithFields(logrus.Fields{
			"tenant_id":    scope.TenantID,
			"repo_id":      scope.RepoID,
			"entity":       r.EntityType,
			"store_count":  r.StoreCount,
			"mirror_count": r.MirrorCount,
			"sync_percent": fmt.Sprintf("%.1f", r.VariancePercent),
		}).Info("mirror consistency")
	}

	if AllPassed(results) {
		v.logger.WithField("threshold", v.threshold).Info("mirror within acceptable variance")
	} else {
		v.logger.WithField("threshold", v.threshold).Warn("mirror sync below threshold, re-export required")
	}
}

// RecordDiagnostic appends the results to the scope's audit trail
func (v *ConsistencyValidator) RecordDiagnostic(ctx context.Context, scope models.Scope, runID string, results []ValidationResult) error {
	status := "in_sync"
	if !AllPassed(results) {
		status = "needs_sync"
	}
	return v.store.AddIndexDiagnostic(ctx, scope, &models.IndexDiagnostic{
		RunID: runID,
		Mode:  "mirror_verify",
		Metadata: map[string]interface{}{
			"status":  status,
			"results": results,
		},
	})
}
