package orchestrator

// #region imports
import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"recordcheck/internal/diffdetect"
	"recordcheck/internal/persist"
	"recordcheck/internal/record"
	"recordcheck/internal/sampling"
	"recordcheck/internal/validator"
	"recordcheck/internal/verdict"
)

// #endregion

// #region orchestrator-struct

// Orchestrator is the top-level coordinator for change detection,
// sampling, validator execution, verdict aggregation, and regression
// checking.
type Orchestrator struct {
	cfg      Config
	registry *validator.Registry
	sampler  *sampling.Engine
	detector *diffdetect.Detector // nil disables diff-targeted runs
	sink     VerdictSink          // nil disables persistence and regressions
	runlog   RunLogger            // nil disables run provenance
}

// #endregion

// #region constructor

// New creates a fully wired orchestrator. detector, sink, and runlog
// are optional collaborators; passing nil disables the corresponding
// stage without affecting the rest of the batch.
func New(
	cfg Config,
	registry *validator.Registry,
	sampler *sampling.Engine,
	detector *diffdetect.Detector,
	sink VerdictSink,
	runlog RunLogger,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		sampler:  sampler,
		detector: detector,
		sink:     sink,
		runlog:   runlog,
	}
}

// #endregion

// #region run

// Run executes one batch: change detection (when a prior revision is
// given) → sampling → per-record validator execution → aggregation →
// report. It always returns a BatchReport; cooperative cancellation is
// polled between records and yields a partial report.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) *BatchReport {
	runID := uuid.New().String()
	revision := req.RevisionID
	if revision == "" {
		revision = uuid.New().String()
	}

	report := &BatchReport{
		RunID:      runID,
		RevisionID: revision,
		Total:      len(req.Records),
	}

	var diffRes *diffdetect.Result
	if o.detector != nil && req.FromRevision != "" {
		r := o.detector.Detect(req.FromRevision, revision)
		diffRes = &r
		report.DiffSummary = &r.Summary
		report.DegradedFacets = r.DegradedFacets
		report.Unexplained = unexplainedChanges(r)
	}

	var selected []record.Record
	if diffRes != nil {
		selected = o.sampler.DiffTargeted(req.Records, diffRes.ChangedIDs())
	} else {
		selected = o.sampler.Stratified(req.Records)
	}
	report.Sampled = len(selected)

	outcomes := make(map[string]bool, len(selected))
	failedBy := make(map[string][]string)

	for _, rec := range selected {
		if ctx.Err() != nil {
			log.Printf("[ORCH] cancelled after %d of %d records", len(report.Results), len(selected))
			report.Cancelled = true
			break
		}

		verdicts := o.runRecord(ctx, rec)
		agg := verdict.Aggregate(rec.ID, verdicts)
		agg.NeedsReview = o.needsReview(agg)

		o.persistVerdicts(rec.ID, revision, verdicts)

		outcomes[rec.ID] = agg.Passed
		for _, v := range verdicts {
			if !v.Skipped && !v.Passed {
				failedBy[rec.ID] = append(failedBy[rec.ID], v.ValidatorName)
			}
		}

		res := toRecordResult(agg)
		report.Results = append(report.Results, res)
		report.TotalCostUSD += agg.TotalCost
		report.ErrorCount += res.ErrorCount
		report.WarningCount += res.WarningCount
		// A record is flagged when it failed or when any ERROR/WARNING
		// issue survived deduplication; INFO-only records stay clean.
		if !agg.Passed || res.ErrorCount+res.WarningCount > 0 {
			report.FlaggedCount++
		}
	}

	o.checkRegressions(report, req.FromRevision, revision, outcomes, failedBy, diffRes)
	o.logRun(report, runID)

	log.Printf("[ORCH] run %s: total=%d sampled=%d flagged=%d cost=%.4f",
		runID, report.Total, report.Sampled, report.FlaggedCount, report.TotalCostUSD)
	return report
}

// #endregion run

// #region run-record

// runRecord executes every enabled validator against one record.
// Deterministic validators fan out across a bounded worker group (they
// are pure over read-only context); networked validators stay serialized
// to respect upstream rate limits. Aggregation is commutative over the
// verdict set, so completion order does not matter.
func (o *Orchestrator) runRecord(ctx context.Context, rec record.Record) []verdict.Verdict {
	var deterministic, networked []validator.Validator
	for _, v := range o.registry.Enabled() {
		if v.Capability() == validator.CapDeterministic {
			deterministic = append(deterministic, v)
		} else {
			networked = append(networked, v)
		}
	}

	var mu sync.Mutex
	var verdicts []verdict.Verdict

	g, gctx := errgroup.WithContext(ctx)
	workers := o.cfg.DeterministicWorkers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, v := range deterministic {
		v := v
		g.Go(func() error {
			vd := validator.RunSafe(gctx, v, rec, validator.Context{})
			mu.Lock()
			verdicts = append(verdicts, vd)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for _, v := range networked {
		for _, vc := range variantContexts(v, rec) {
			vd := validator.RunSafe(ctx, v, rec, vc)
			if vc.Variant != nil {
				vd.ValidatorName = vc.Variant.Tag + "/" + vd.ValidatorName
			}
			verdicts = append(verdicts, vd)
		}
	}

	return verdicts
}

// variantContexts expands a networked validator's invocations: every
// validator runs against the primary record; variant-aware ones also run
// once per variant, with the variant tag prefixed onto the emitted
// verdict name so aggregation keeps the results distinguishable.
func variantContexts(v validator.Validator, rec record.Record) []validator.Context {
	out := []validator.Context{{}}
	if !v.SupportsVariants() {
		return out
	}
	for i := range rec.Variants {
		out = append(out, validator.Context{Variant: &rec.Variants[i]})
	}
	return out
}

// #endregion run-record

// #region persist

// persistVerdicts writes one record's verdicts through the sink. A write
// failure is logged and never blocks or corrupts the rest of the batch.
func (o *Orchestrator) persistVerdicts(recordID, revision string, verdicts []verdict.Verdict) {
	if o.sink == nil {
		return
	}
	for _, v := range verdicts {
		if err := o.sink.SaveVerdict(recordID, revision, v); err != nil {
			log.Printf("[ORCH] failed to persist verdict %s/%s: %v", recordID, v.ValidatorName, err)
		}
	}
}

// #endregion persist

// #region regressions-stage

// checkRegressions compares this run's outcomes against the prior
// revision's persisted outcomes and attaches unexplained pass→fail
// transitions to the report.
func (o *Orchestrator) checkRegressions(
	report *BatchReport,
	fromRevision, revision string,
	outcomes map[string]bool,
	failedBy map[string][]string,
	diffRes *diffdetect.Result,
) {
	if o.sink == nil || fromRevision == "" {
		return
	}

	prior, err := o.sink.Outcomes(fromRevision)
	if err != nil {
		log.Printf("[ORCH] prior outcomes unavailable for %s: %v", fromRevision, err)
		return
	}

	var changes map[string]*diffdetect.ChangeRecord
	if diffRes != nil {
		changes = diffRes.Changes
	}

	for _, id := range Regressions(prior, outcomes, changes) {
		report.Regressions = append(report.Regressions, persist.RegressionRecord{
			RecordID:         id,
			SinceRevision:    fromRevision,
			ToRevision:       revision,
			FailedValidators: failedBy[id],
		})
	}
}

// #endregion regressions-stage

// #region report-helpers

func (o *Orchestrator) needsReview(agg verdict.AggregatedResult) bool {
	errs, warns := agg.ErrorCount(), agg.WarningCount()
	if o.cfg.ErrorFlagThreshold > 0 && errs >= o.cfg.ErrorFlagThreshold {
		return true
	}
	if o.cfg.WarningFlagThreshold > 0 && warns >= o.cfg.WarningFlagThreshold {
		return true
	}
	return false
}

func toRecordResult(agg verdict.AggregatedResult) RecordResult {
	res := RecordResult{
		RecordID:     agg.RecordID,
		Passed:       agg.Passed,
		NeedsReview:  agg.NeedsReview,
		ErrorCount:   agg.ErrorCount(),
		WarningCount: agg.WarningCount(),
		CostUSD:      agg.TotalCost,
	}
	for _, is := range agg.DeduplicatedIssues() {
		res.Issues = append(res.Issues, RecordIssue{
			Severity:  is.Severity,
			Field:     is.Field,
			Message:   is.Message,
			Validator: is.Validator,
			DedupKey:  is.DedupKey,
		})
	}
	for _, v := range agg.Verdicts {
		if v.Skipped {
			res.SkippedRuns = append(res.SkippedRuns, v.ValidatorName+": "+v.SkipReason)
		}
	}
	return res
}

func unexplainedChanges(r diffdetect.Result) []UnexplainedChange {
	var out []UnexplainedChange
	for _, c := range r.Unexplained() {
		out = append(out, UnexplainedChange{
			RecordID: c.RecordID,
			Delta:    c.Delta,
			Severity: c.Severity,
			Trend:    c.Trend,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

func (o *Orchestrator) logRun(report *BatchReport, runID string) {
	if o.runlog == nil {
		return
	}
	note := ""
	if report.Cancelled {
		note = "cancelled"
	}
	err := o.runlog.LogRun(persist.RunEntry{
		RunID:      runID,
		RevisionID: report.RevisionID,
		Total:      report.Total,
		Sampled:    report.Sampled,
		Flagged:    report.FlaggedCount,
		TotalCost:  report.TotalCostUSD,
		Note:       note,
	})
	if err != nil {
		log.Printf("[ORCH] failed to log run: %v", err)
	}
}

// #endregion report-helpers
