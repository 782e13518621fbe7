package checks

// #region imports
import (
	"context"
	"fmt"

	"recordcheck/internal/record"
	"recordcheck/internal/validator"
	"recordcheck/internal/verdict"
)

// #endregion

// #region score-bounds
// ScoreBounds is a deterministic check that the primary score sits
// inside the configured range.
type ScoreBounds struct {
	Min float64
	Max float64
}

// NewScoreBounds returns the check with the standard 0–100 range.
func NewScoreBounds() *ScoreBounds {
	return &ScoreBounds{Min: 0, Max: 100}
}

func (c *ScoreBounds) Name() string                     { return "score_bounds" }
func (c *ScoreBounds) Capability() validator.Capability { return validator.CapDeterministic }
func (c *ScoreBounds) SupportsVariants() bool           { return false }

func (c *ScoreBounds) Validate(_ context.Context, rec record.Record, _ validator.Context) (verdict.Verdict, error) {
	var issues []verdict.Issue
	if rec.Score < c.Min || rec.Score > c.Max {
		issues = append(issues, verdict.Issue{
			Severity: verdict.SeverityError,
			Field:    "score",
			Message:  fmt.Sprintf("score %.2f outside [%.0f, %.0f]", rec.Score, c.Min, c.Max),
			DedupKey: "score-range",
		})
	}
	return verdict.New(c.Name(), issues, 0), nil
}

// #endregion score-bounds

// #region source-consistency
// SourceConsistency is a deterministic cross-reference check: a nonzero
// score with all-zero source fields means the score cannot have come
// from its inputs. Its dedup key is shared with the narrative judge's
// unsupported-score finding so independent flags on the same condition
// collapse during aggregation.
type SourceConsistency struct{}

func (c *SourceConsistency) Name() string                     { return "source_consistency" }
func (c *SourceConsistency) Capability() validator.Capability { return validator.CapDeterministic }
func (c *SourceConsistency) SupportsVariants() bool           { return false }

func (c *SourceConsistency) Validate(_ context.Context, rec record.Record, _ validator.Context) (verdict.Verdict, error) {
	var issues []verdict.Issue

	if rec.Score != 0 && len(rec.SourceFields) > 0 {
		allZero := true
		for _, v := range rec.SourceFields {
			if v != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			issues = append(issues, verdict.Issue{
				Severity: verdict.SeverityError,
				Field:    "score",
				Message:  fmt.Sprintf("score %.2f has no supporting source fields", rec.Score),
				DedupKey: "score-source-mismatch",
			})
		}
	}

	if len(rec.SourceFields) == 0 {
		issues = append(issues, verdict.Issue{
			Severity: verdict.SeverityWarning,
			Field:    "source_fields",
			Message:  "record carries no source fields",
		})
	}

	return verdict.New(c.Name(), issues, 0), nil
}

// #endregion source-consistency
