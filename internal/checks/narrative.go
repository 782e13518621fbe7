package checks

// #region imports
import (
	"context"

	"recordcheck/internal/fetch"
	"recordcheck/internal/record"
	"recordcheck/internal/validator"
	"recordcheck/internal/verdict"
)

// #endregion

// #region judge-contract
// Judge is the injected network client that reviews a narrative against
// its record. Implementations classify failures into the fetch error
// hierarchy; replies are structured JSON per judgeReply.
type Judge interface {
	Judge(ctx context.Context, narrative string, rec record.Record) (raw string, cost float64, err error)
}

// judgeReply is the structured verdict expected from the judge.
type judgeReply struct {
	Consistent bool `json:"consistent"`
	Problems   []struct {
		Field    string `json:"field"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	} `json:"problems"`
}

// #endregion judge-contract

// #region narrative-consistency
// NarrativeConsistency is a networked, variant-aware check that the
// narrative's claims agree with the record's score and source fields.
// Variant narratives are re-checked independently.
type NarrativeConsistency struct {
	judge Judge
}

// NewNarrativeConsistency wires the check over a judge client.
func NewNarrativeConsistency(judge Judge) *NarrativeConsistency {
	return &NarrativeConsistency{judge: judge}
}

func (c *NarrativeConsistency) Name() string                     { return "narrative_consistency" }
func (c *NarrativeConsistency) Capability() validator.Capability { return validator.CapNetworked }
func (c *NarrativeConsistency) SupportsVariants() bool           { return true }

func (c *NarrativeConsistency) Validate(ctx context.Context, rec record.Record, vc validator.Context) (verdict.Verdict, error) {
	narrative := rec.Narrative
	if vc.Variant != nil {
		narrative = vc.Variant.Narrative
	}
	if narrative == "" {
		return verdict.Skip(c.Name(), "no narrative to check"), nil
	}

	raw, cost, err := c.judge.Judge(ctx, narrative, rec)
	if err != nil {
		if fetch.IsNetwork(err) {
			// The judge may be transiently down; flag, don't fail.
			return verdict.New(c.Name(), []verdict.Issue{{
				Severity: verdict.SeverityWarning,
				Field:    "narrative",
				Message:  "narrative check unavailable: judge unreachable",
				Details:  err.Error(),
			}}, cost), nil
		}
		return verdict.Verdict{}, err
	}

	var reply judgeReply
	if err := fetch.ParseReply(raw, &reply); err != nil {
		// Irreparable reply: semantic checks are skipped with a WARNING,
		// never silently dropped.
		return verdict.New(c.Name(), []verdict.Issue{{
			Severity: verdict.SeverityWarning,
			Field:    "narrative",
			Message:  "judge reply malformed, semantic checks skipped",
			Details:  err.Error(),
		}}, cost), nil
	}

	var issues []verdict.Issue
	for _, p := range reply.Problems {
		issues = append(issues, verdict.Issue{
			Severity: parseSeverity(p.Severity),
			Field:    p.Field,
			Message:  p.Message,
			DedupKey: dedupKeyFor(p.Field),
		})
	}
	if !reply.Consistent && len(issues) == 0 {
		issues = append(issues, verdict.Issue{
			Severity: verdict.SeverityError,
			Field:    "narrative",
			Message:  "narrative inconsistent with record",
		})
	}

	return verdict.New(c.Name(), issues, cost), nil
}

func parseSeverity(s string) verdict.Severity {
	switch s {
	case "ERROR":
		return verdict.SeverityError
	case "WARNING":
		return verdict.SeverityWarning
	default:
		return verdict.SeverityInfo
	}
}

// dedupKeyFor maps judge findings onto the dedup keys the deterministic
// checks use for the same underlying conditions.
func dedupKeyFor(field string) string {
	if field == "score" {
		return "score-source-mismatch"
	}
	return ""
}

// #endregion narrative-consistency
