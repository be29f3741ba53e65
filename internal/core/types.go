// Package core provides the business logic for record reconciliation:
// importing and validating uploaded files, probing the remote catalog,
// and running batch syncs. This package has no HTTP dependencies and can
// be used by any frontend.
package core

import (
	"time"

	"github.com/mapfolio/placesync/internal/catalog"
	"github.com/mapfolio/placesync/internal/record"
	"github.com/mapfolio/placesync/internal/sync"
	"github.com/mapfolio/placesync/internal/tabular"
)

// Import is a parsed and validated upload, held in memory until it is
// synced or expires.
type Import struct {
	ID        string               `json:"id"`
	FileName  string               `json:"fileName"`
	CreatedAt time.Time            `json:"createdAt"`
	Records   []record.Record      `json:"records"`
	Skipped   []tabular.SkippedRow `json:"skipped,omitempty"`
	Summary   ImportSummary        `json:"summary"`
}

// ImportSummary counts records by classification.
type ImportSummary struct {
	Total       int `json:"total"`
	Valid       int `json:"valid"`
	Warning     int `json:"warning"`
	Invalid     int `json:"invalid"`
	Eligible    int `json:"eligible"`
	SkippedRows int `json:"skippedRows"`
}

// RunPhase indicates the current stage of a sync run.
type RunPhase string

const (
	PhaseStarting  RunPhase = "starting"
	PhaseSyncing   RunPhase = "syncing"
	PhaseComplete  RunPhase = "complete"
	PhaseFailed    RunPhase = "failed"
	PhaseCancelled RunPhase = "cancelled"
)

// RunProgress represents the current state of a sync run.
type RunProgress struct {
	SyncID    string        `json:"syncId"`
	ImportID  string        `json:"importId"`
	Phase     RunPhase      `json:"phase"`
	Fraction  float64       `json:"fraction"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Latest    *sync.Outcome `json:"latest,omitempty"`
	Error     string        `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns the progress as a percentage (0-100).
func (p RunProgress) Percent() int {
	return int(p.Fraction * 100)
}

// RunResult contains the final result of a sync run.
type RunResult struct {
	SyncID    string         `json:"syncId"`
	ImportID  string         `json:"importId"`
	Outcomes  []sync.Outcome `json:"outcomes"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Duration  time.Duration  `json:"duration"`
	Cancelled bool           `json:"cancelled"`
	Error     string         `json:"error,omitempty"` // Non-empty if the run failed before syncing
}

// ReconcileResult pairs a fresh import with the connectivity snapshot
// taken while it was being validated.
type ReconcileResult struct {
	Import *Import        `json:"import"`
	Ready  bool           `json:"ready"`
	Health catalog.Health `json:"health"`
}
