package verdict

// #region imports
import (
	"sort"
)

// #endregion

// #region aggregated-result
// AggregatedResult combines all verdicts for one record across
// validators and variants.
type AggregatedResult struct {
	RecordID    string
	Passed      bool
	Verdicts    []Verdict
	TotalCost   float64
	NeedsReview bool // set when issue counts reach the configured flag thresholds
}

// Flagged reports whether the record failed aggregation.
func (a AggregatedResult) Flagged() bool {
	return !a.Passed
}

// DeduplicatedIssues returns the union of all issues across verdicts
// with dedup-key groups collapsed (see Deduplicate).
func (a AggregatedResult) DeduplicatedIssues() []Issue {
	var all []Issue
	for _, v := range a.Verdicts {
		all = append(all, v.Issues...)
	}
	return Deduplicate(all)
}

// ErrorCount counts ERROR issues after deduplication.
func (a AggregatedResult) ErrorCount() int {
	n := 0
	for _, is := range a.DeduplicatedIssues() {
		if is.Severity == SeverityError {
			n++
		}
	}
	return n
}

// WarningCount counts WARNING issues after deduplication.
func (a AggregatedResult) WarningCount() int {
	n := 0
	for _, is := range a.DeduplicatedIssues() {
		if is.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// #endregion aggregated-result

// #region aggregate
// Aggregate folds all verdicts for one record into an AggregatedResult.
// The record passes iff every non-skipped verdict passed. Aggregation is
// commutative over the verdict set: ordering never changes the outcome.
func Aggregate(recordID string, verdicts []Verdict) AggregatedResult {
	passed := true
	var cost float64
	for _, v := range verdicts {
		cost += v.Cost
		if !v.Skipped && !v.Passed {
			passed = false
		}
	}
	return AggregatedResult{
		RecordID:  recordID,
		Passed:    passed,
		Verdicts:  verdicts,
		TotalCost: cost,
	}
}

// #endregion aggregate

// #region dedup
// Deduplicate collapses issues sharing a non-empty DedupKey to a single
// retained issue per key: the most severe one (lowest severity rank).
// Ties on severity break by ascending validator name, then field, then
// message, so the result is independent of insertion order. Issues with
// no key always pass through individually. Idempotent.
func Deduplicate(issues []Issue) []Issue {
	var out []Issue
	best := make(map[string]Issue)
	var keyOrder []string

	for _, is := range issues {
		if is.DedupKey == "" {
			out = append(out, is)
			continue
		}
		cur, ok := best[is.DedupKey]
		if !ok {
			best[is.DedupKey] = is
			keyOrder = append(keyOrder, is.DedupKey)
			continue
		}
		if precedes(is, cur) {
			best[is.DedupKey] = is
		}
	}

	sort.Strings(keyOrder)
	for _, k := range keyOrder {
		out = append(out, best[k])
	}
	return out
}

// precedes reports whether a should be retained over b within one
// dedup-key group.
func precedes(a, b Issue) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() < b.Severity.Rank()
	}
	if a.Validator != b.Validator {
		return a.Validator < b.Validator
	}
	if a.Field != b.Field {
		return a.Field < b.Field
	}
	return a.Message < b.Message
}

// #endregion dedup
