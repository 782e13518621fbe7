package orchestrator

// #region imports
import (
	"recordcheck/internal/diffdetect"
	"recordcheck/internal/persist"
	"recordcheck/internal/record"
	"recordcheck/internal/verdict"
)

// #endregion

// #region config
// Config holds the orchestrator's batch-level knobs. Sampling, cache,
// and fetch parameters live with their own components.
type Config struct {
	// ErrorFlagThreshold marks a record needs_review when its
	// deduplicated ERROR issue count reaches this value. 0 disables.
	ErrorFlagThreshold int
	// WarningFlagThreshold is the WARNING-count equivalent. 0 disables.
	WarningFlagThreshold int
	// DeterministicWorkers bounds the parallel fan-out of deterministic
	// validators within one record. <=1 runs them inline.
	DeterministicWorkers int
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		ErrorFlagThreshold:   1,
		WarningFlagThreshold: 3,
		DeterministicWorkers: 4,
	}
}

// #endregion config

// #region run-request
// RunRequest describes one batch run. Setting FromRevision enables
// change detection (and regression checking when a sink is wired);
// the current revision's snapshots must already exist in the diff store.
type RunRequest struct {
	Records      []record.Record
	FromRevision string
	RevisionID   string // generated when empty
}

// #endregion run-request

// #region report
// RecordIssue is the report form of one retained issue.
type RecordIssue struct {
	Severity  verdict.Severity `json:"severity"`
	Field     string           `json:"field,omitempty"`
	Message   string           `json:"message"`
	Validator string           `json:"validator"`
	DedupKey  string           `json:"dedup_key,omitempty"`
}

// RecordResult is the report form of one record's aggregated outcome.
type RecordResult struct {
	RecordID     string        `json:"record_id"`
	Passed       bool          `json:"passed"`
	NeedsReview  bool          `json:"needs_review,omitempty"`
	ErrorCount   int           `json:"error_count"`
	WarningCount int           `json:"warning_count"`
	CostUSD      float64       `json:"cost_usd"`
	Issues       []RecordIssue `json:"issues,omitempty"`
	SkippedRuns  []string      `json:"skipped_runs,omitempty"`
}

// UnexplainedChange is the report form of a top-priority diff anomaly.
type UnexplainedChange struct {
	RecordID string           `json:"record_id"`
	Delta    float64          `json:"delta"`
	Severity verdict.Severity `json:"severity"`
	Trend    diffdetect.Trend `json:"trend,omitempty"`
}

// BatchReport is the JSON-serializable output of one batch run. It is
// always returned, even on early cancellation; degradations are recorded
// per item and per facet, never silently dropped.
type BatchReport struct {
	RunID          string                     `json:"run_id"`
	RevisionID     string                     `json:"revision_id,omitempty"`
	Total          int                        `json:"total"`
	Sampled        int                        `json:"sampled"`
	FlaggedCount   int                        `json:"flagged_count"`
	ErrorCount     int                        `json:"error_count"`
	WarningCount   int                        `json:"warning_count"`
	TotalCostUSD   float64                    `json:"total_cost_usd"`
	Results        []RecordResult             `json:"results"`
	DiffSummary    *diffdetect.Summary        `json:"diff_summary,omitempty"`
	DegradedFacets []string                   `json:"degraded_facets,omitempty"`
	Unexplained    []UnexplainedChange        `json:"unexplained_changes,omitempty"`
	Regressions    []persist.RegressionRecord `json:"regressions,omitempty"`
	Cancelled      bool                       `json:"cancelled,omitempty"`
}

// #endregion report

// #region collaborators
// VerdictSink is the persistence collaborator the orchestrator writes
// verdicts through and fetches prior outcome sets from.
type VerdictSink interface {
	SaveVerdict(recordID, revisionID string, v verdict.Verdict) error
	Outcomes(revisionID string) (map[string]bool, error)
}

// RunLogger records run-level provenance.
type RunLogger interface {
	LogRun(entry persist.RunEntry) error
}

// #endregion collaborators
