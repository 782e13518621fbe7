package checks

// #region imports
import (
	"context"
	"fmt"
	"net/url"

	"recordcheck/internal/fetch"
	"recordcheck/internal/record"
	"recordcheck/internal/validator"
	"recordcheck/internal/verdict"
)

// #endregion

// #region citation-format
// CitationFormat is a deterministic check that every citation carries a
// parseable http(s) URL and that a non-empty narrative cites something.
type CitationFormat struct{}

func (c *CitationFormat) Name() string                     { return "citation_format" }
func (c *CitationFormat) Capability() validator.Capability { return validator.CapDeterministic }
func (c *CitationFormat) SupportsVariants() bool           { return false }

func (c *CitationFormat) Validate(_ context.Context, rec record.Record, _ validator.Context) (verdict.Verdict, error) {
	var issues []verdict.Issue

	if rec.Narrative != "" && len(rec.Citations) == 0 {
		issues = append(issues, verdict.Issue{
			Severity: verdict.SeverityWarning,
			Field:    "citations",
			Message:  "narrative has no citations",
		})
	}

	for i, cit := range rec.Citations {
		u, err := url.Parse(cit.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, verdict.Issue{
				Severity: verdict.SeverityError,
				Field:    "citations",
				Message:  fmt.Sprintf("citation %d has an invalid URL", i),
				Evidence: cit.URL,
			})
		}
	}

	return verdict.New(c.Name(), issues, 0), nil
}

// #endregion citation-format

// #region citation-reachability
// CitationReachability is a networked check that every cited URL
// resolves. Verification goes through the fetch wrapper, so trusted
// domains skip the network, results are TTL-cached, and failure caching
// keeps dead endpoints from being hammered run after run.
type CitationReachability struct {
	fetcher      *fetch.Client
	costPerFetch float64
}

// NewCitationReachability wires the check over a fetch client.
func NewCitationReachability(fetcher *fetch.Client, costPerFetch float64) *CitationReachability {
	return &CitationReachability{fetcher: fetcher, costPerFetch: costPerFetch}
}

func (c *CitationReachability) Name() string                     { return "citation_reachability" }
func (c *CitationReachability) Capability() validator.Capability { return validator.CapNetworked }
func (c *CitationReachability) SupportsVariants() bool           { return false }

func (c *CitationReachability) Validate(ctx context.Context, rec record.Record, _ validator.Context) (verdict.Verdict, error) {
	if len(rec.Citations) == 0 {
		return verdict.Skip(c.Name(), "no citations to verify"), nil
	}

	var issues []verdict.Issue
	var cost float64

	for i, cit := range rec.Citations {
		res, err := c.fetcher.Verify(ctx, cit.URL)
		if err != nil {
			return verdict.Verdict{}, err
		}
		if res.Trusted {
			continue
		}
		if !res.FromCache {
			cost += c.costPerFetch
		}
		// Cache hits skip the fetch, never the verdict: a cached failure
		// or cached empty payload warns the same as a fresh one.
		if res.Failed {
			// Transient unreachability is a warning, not a failure.
			issues = append(issues, verdict.Issue{
				Severity: verdict.SeverityWarning,
				Field:    "citations",
				Message:  fmt.Sprintf("citation %d unreachable", i),
				Details:  res.FailReason,
				Evidence: cit.URL,
			})
			continue
		}
		if res.Content == "" {
			issues = append(issues, verdict.Issue{
				Severity: verdict.SeverityWarning,
				Field:    "citations",
				Message:  fmt.Sprintf("citation %d resolved to empty content", i),
				Evidence: cit.URL,
			})
		}
	}

	return verdict.New(c.Name(), issues, cost), nil
}

// #endregion citation-reachability
