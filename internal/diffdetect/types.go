package diffdetect

// #region imports
import (
	"recordcheck/internal/verdict"
)

// #endregion

// #region diff-type
// DiffType tags how a record changed between two revisions.
type DiffType string

const (
	DiffAdded    DiffType = "added"
	DiffModified DiffType = "modified"
	DiffRemoved  DiffType = "removed"
)

// #endregion diff-type

// #region diff-row
// DiffRow is one row from the versioned-store diff contract: before and
// after field values for a record in one facet. Any revision-addressable
// store exposing this shape satisfies the contract.
type DiffRow struct {
	RecordID string
	DiffType DiffType
	Before   map[string]string
	After    map[string]string
}

// #endregion diff-row

// #region diff-store
// DiffStore is the versioned-store contract consumed by the detector.
type DiffStore interface {
	// Diff returns per-record rows for one facet entity between two
	// revisions.
	Diff(fromRev, toRev, entity string) ([]DiffRow, error)
	// ScoreHistory returns a record's most recent scores, oldest first,
	// bounded to limit values.
	ScoreHistory(recordID string, limit int) ([]float64, error)
}

// Facet entity names queried by the detector.
const (
	FacetScores  = "scores"
	FacetSources = "source_fields"
	FacetContent = "content"
)

// #endregion diff-store

// #region trend
// Trend qualifies a bounded score history.
type Trend string

const (
	TrendNone      Trend = ""
	TrendStable    Trend = "stable"
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendVolatile  Trend = "volatile"
)

// #endregion trend

// #region change-record
// ChangeRecord is the merged per-record view across all three facets.
// Recomputed per diff run, never persisted as an object.
type ChangeRecord struct {
	RecordID       string
	DiffType       DiffType
	OldScore       float64
	NewScore       float64
	Delta          float64
	Severity       verdict.Severity
	Trend          Trend
	SourceChanged  bool
	ChangedFields  []string
	ContentChanged bool

	// Unexplained: the score moved at WARNING/ERROR severity with no
	// source-field change — a scoring-logic bug or undisclosed mutation.
	Unexplained bool
	// Disproportionate: the score moved far beyond the weighted expected
	// impact of the changed fields. Heuristic guard, not a proof.
	Disproportionate bool
}

// #endregion change-record

// #region result
// Summary aggregates a diff run for the batch report.
type Summary struct {
	Added            int `json:"added"`
	Modified         int `json:"modified"`
	Removed          int `json:"removed"`
	Unexplained      int `json:"unexplained"`
	Disproportionate int `json:"disproportionate"`
}

// Result is the output of one diff run. Facets whose query failed are
// listed in DegradedFacets; their absence never aborts the run.
type Result struct {
	Changes        map[string]*ChangeRecord
	Summary        Summary
	DegradedFacets []string
}

// ChangedIDs returns the union of record ids touched by any facet.
func (r Result) ChangedIDs() map[string]bool {
	ids := make(map[string]bool, len(r.Changes))
	for id := range r.Changes {
		ids[id] = true
	}
	return ids
}

// Unexplained returns the unexplained changes, the run's top-priority
// anomalies.
func (r Result) Unexplained() []*ChangeRecord {
	var out []*ChangeRecord
	for _, c := range r.Changes {
		if c.Unexplained {
			out = append(out, c)
		}
	}
	return out
}

// #endregion result
