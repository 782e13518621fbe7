package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"recordcheck/internal/cache"
	"recordcheck/internal/checks"
	"recordcheck/internal/diffdetect"
	"recordcheck/internal/fetch"
	"recordcheck/internal/persist"
	"recordcheck/internal/record"
	"recordcheck/internal/sampling"
	"recordcheck/internal/validator"
	"recordcheck/internal/verdict"
)

// #region fakes

type fakeValidator struct {
	name     string
	cap      validator.Capability
	variants bool
	fn       func(rec record.Record, vc validator.Context) (verdict.Verdict, error)
}

func (f *fakeValidator) Name() string                     { return f.name }
func (f *fakeValidator) Capability() validator.Capability { return f.cap }
func (f *fakeValidator) SupportsVariants() bool           { return f.variants }
func (f *fakeValidator) Validate(_ context.Context, rec record.Record, vc validator.Context) (verdict.Verdict, error) {
	return f.fn(rec, vc)
}

func passAll(name string, cap validator.Capability) *fakeValidator {
	return &fakeValidator{name: name, cap: cap, fn: func(rec record.Record, _ validator.Context) (verdict.Verdict, error) {
		return verdict.New(name, nil, 0), nil
	}}
}

type fakeSink struct {
	saved    []string // "record/validator"
	saveErr  error
	outcomes map[string]bool
}

func (f *fakeSink) SaveVerdict(recordID, revisionID string, v verdict.Verdict) error {
	f.saved = append(f.saved, recordID+"/"+v.ValidatorName)
	return f.saveErr
}

func (f *fakeSink) Outcomes(revisionID string) (map[string]bool, error) {
	return f.outcomes, nil
}

type fakeRunLog struct {
	entries []persist.RunEntry
}

func (f *fakeRunLog) LogRun(e persist.RunEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func fullSampler() *sampling.Engine {
	return sampling.NewEngine(sampling.Config{SampleRate: 1.0}, rand.New(rand.NewSource(1)))
}

func newRegistry(t *testing.T, vals ...validator.Validator) *validator.Registry {
	t.Helper()
	reg := validator.NewRegistry()
	for _, v := range vals {
		if err := reg.Register(v); err != nil {
			t.Fatalf("Register(%s): %v", v.Name(), err)
		}
	}
	return reg
}

func resultFor(t *testing.T, report *BatchReport, id string) RecordResult {
	t.Helper()
	for _, r := range report.Results {
		if r.RecordID == id {
			return r
		}
	}
	t.Fatalf("no result for record %s in %+v", id, report.Results)
	return RecordResult{}
}

// #endregion fakes

// #region batch

func TestRunMixedOutcomeBatch(t *testing.T) {
	networked := &fakeValidator{name: "judge", cap: validator.CapNetworked, fn: func(rec record.Record, _ validator.Context) (verdict.Verdict, error) {
		switch rec.ID {
		case "A":
			return verdict.New("judge", []verdict.Issue{
				{Severity: verdict.SeverityWarning, Message: "service unreachable, skipping"},
			}, 0), nil
		case "B":
			return verdict.Verdict{}, errors.New("unexpected judge failure")
		default:
			return verdict.New("judge", nil, 0.002), nil
		}
	}}

	reg := newRegistry(t, passAll("score_bounds", validator.CapDeterministic), networked)
	orch := New(DefaultConfig(), reg, fullSampler(), nil, nil, nil)

	report := orch.Run(context.Background(), RunRequest{Records: []record.Record{
		{ID: "A", Score: 50}, {ID: "B", Score: 50}, {ID: "C", Score: 50},
	}})

	if report.Total != 3 || report.Sampled != 3 {
		t.Fatalf("expected total=3 sampled=3, got %d/%d", report.Total, report.Sampled)
	}
	// A carries a WARNING, B a synthetic ERROR; C is clean.
	if report.FlaggedCount != 2 {
		t.Fatalf("expected flagged_count=2, got %d", report.FlaggedCount)
	}
	if report.ErrorCount != 1 || report.WarningCount != 1 {
		t.Fatalf("expected 1 error and 1 warning, got %d/%d", report.ErrorCount, report.WarningCount)
	}

	a := resultFor(t, report, "A")
	if !a.Passed {
		t.Fatal("warnings alone must not fail a record")
	}
	b := resultFor(t, report, "B")
	if b.Passed {
		t.Fatal("a validator error must fail the record via a synthetic verdict")
	}
	if !b.NeedsReview {
		t.Fatal("one ERROR meets the default review threshold")
	}
	c := resultFor(t, report, "C")
	if !c.Passed || len(c.Issues) != 0 {
		t.Fatalf("expected C clean, got %+v", c)
	}
	if report.TotalCostUSD != 0.002 {
		t.Fatalf("expected cost from C's judge call only, got %v", report.TotalCostUSD)
	}
}

type scriptedDoer struct {
	errs map[string]error
}

func (d *scriptedDoer) Fetch(_ context.Context, rawURL string) (fetch.Response, error) {
	if err, ok := d.errs[rawURL]; ok {
		return fetch.Response{}, err
	}
	return fetch.Response{ContentType: "text/plain", Body: "evidence"}, nil
}

func TestRunMixedOutcomeBatchThroughRealChecks(t *testing.T) {
	// Same scenario as above, but record A's network failure travels the
	// real path: a connection error from the fetch layer classified by
	// the citation reachability check, not a pre-baked verdict.
	deadURL := "https://dead.example/a"
	doer := &scriptedDoer{errs: map[string]error{
		deadURL: &fetch.NetworkError{URL: deadURL, Err: errors.New("connection refused")},
	}}
	urlCache, err := cache.New(t.TempDir(), 30)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	reach := checks.NewCitationReachability(fetch.NewClient(fetch.DefaultConfig(), urlCache, doer), 0.002)

	judge := &fakeValidator{name: "judge", cap: validator.CapNetworked, fn: func(rec record.Record, _ validator.Context) (verdict.Verdict, error) {
		if rec.ID == "B" {
			return verdict.Verdict{}, errors.New("unexpected judge failure")
		}
		return verdict.New("judge", nil, 0), nil
	}}

	reg := newRegistry(t, passAll("score_bounds", validator.CapDeterministic), reach, judge)
	orch := New(DefaultConfig(), reg, fullSampler(), nil, nil, nil)

	report := orch.Run(context.Background(), RunRequest{Records: []record.Record{
		{ID: "A", Score: 50, Citations: []record.Citation{{URL: deadURL}}},
		{ID: "B", Score: 50},
		{ID: "C", Score: 50, Citations: []record.Citation{{URL: "https://live.example/c"}}},
	}})

	if report.Total != 3 || report.Sampled != 3 || report.FlaggedCount != 2 {
		t.Fatalf("expected total=3 sampled=3 flagged=2, got %d/%d/%d",
			report.Total, report.Sampled, report.FlaggedCount)
	}

	a := resultFor(t, report, "A")
	if !a.Passed || len(a.Issues) != 1 || a.Issues[0].Severity != verdict.SeverityWarning {
		t.Fatalf("expected A to pass with one unreachable warning, got %+v", a)
	}
	if a.Issues[0].Validator != "citation_reachability" {
		t.Fatalf("warning must come from the real check, got %q", a.Issues[0].Validator)
	}
	if resultFor(t, report, "B").Passed {
		t.Fatal("B's judge failure must fail the record via a synthetic verdict")
	}
	c := resultFor(t, report, "C")
	if !c.Passed || len(c.Issues) != 0 {
		t.Fatalf("expected C clean, got %+v", c)
	}
	if report.TotalCostUSD != 0.004 {
		t.Fatalf("expected both fetches billed, got %v", report.TotalCostUSD)
	}
}

func TestRunCancellationYieldsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := newRegistry(t, passAll("score_bounds", validator.CapDeterministic))
	orch := New(DefaultConfig(), reg, fullSampler(), nil, nil, nil)

	report := orch.Run(ctx, RunRequest{Records: []record.Record{{ID: "A"}, {ID: "B"}}})
	if report == nil {
		t.Fatal("a report must be returned even when cancelled")
	}
	if !report.Cancelled {
		t.Fatal("expected cancelled flag set")
	}
	if len(report.Results) != 0 {
		t.Fatalf("expected no records processed, got %d", len(report.Results))
	}
	if report.Sampled != 2 {
		t.Fatalf("sampled count reflects selection, got %d", report.Sampled)
	}
}

func TestDisabledValidatorNotRun(t *testing.T) {
	ran := false
	noisy := &fakeValidator{name: "noisy", cap: validator.CapDeterministic, fn: func(rec record.Record, _ validator.Context) (verdict.Verdict, error) {
		ran = true
		return verdict.New("noisy", nil, 0), nil
	}}

	reg := newRegistry(t, passAll("score_bounds", validator.CapDeterministic), noisy)
	reg.SetEnabled("noisy", false)
	orch := New(DefaultConfig(), reg, fullSampler(), nil, nil, nil)

	orch.Run(context.Background(), RunRequest{Records: []record.Record{{ID: "A"}}})
	if ran {
		t.Fatal("disabled validator must not execute")
	}
}

// #endregion batch

// #region variants

func TestVariantAwareValidatorRunsPerVariant(t *testing.T) {
	judge := &fakeValidator{name: "judge", cap: validator.CapNetworked, variants: true, fn: func(rec record.Record, vc validator.Context) (verdict.Verdict, error) {
		return verdict.New("judge", nil, 0), nil
	}}

	rec := record.Record{ID: "A", Variants: []record.Variant{
		{Tag: "short", Narrative: "brief"},
		{Tag: "long", Narrative: "expansive"},
	}}

	sink := &fakeSink{}
	reg := newRegistry(t, judge)
	orch := New(DefaultConfig(), reg, fullSampler(), nil, sink, nil)

	orch.Run(context.Background(), RunRequest{Records: []record.Record{rec}})

	want := []string{"A/judge", "A/short/judge", "A/long/judge"}
	if len(sink.saved) != len(want) {
		t.Fatalf("expected %d verdict rows, got %v", len(want), sink.saved)
	}
	for i, w := range want {
		if sink.saved[i] != w {
			t.Fatalf("expected saves %v, got %v", want, sink.saved)
		}
	}
}

func TestVariantUnawareValidatorRunsOnce(t *testing.T) {
	calls := 0
	judge := &fakeValidator{name: "judge", cap: validator.CapNetworked, fn: func(rec record.Record, vc validator.Context) (verdict.Verdict, error) {
		calls++
		if vc.Variant != nil {
			t.Fatal("variant-unaware validator must never see a variant context")
		}
		return verdict.New("judge", nil, 0), nil
	}}

	rec := record.Record{ID: "A", Variants: []record.Variant{{Tag: "short"}}}
	orch := New(DefaultConfig(), newRegistry(t, judge), fullSampler(), nil, nil, nil)
	orch.Run(context.Background(), RunRequest{Records: []record.Record{rec}})

	if calls != 1 {
		t.Fatalf("expected a single primary run, got %d", calls)
	}
}

// #endregion variants

// #region persistence

func TestSinkFailureDoesNotAbortBatch(t *testing.T) {
	sink := &fakeSink{saveErr: fmt.Errorf("disk full")}
	reg := newRegistry(t, passAll("score_bounds", validator.CapDeterministic))
	orch := New(DefaultConfig(), reg, fullSampler(), nil, sink, nil)

	report := orch.Run(context.Background(), RunRequest{Records: []record.Record{{ID: "A"}, {ID: "B"}}})
	if len(report.Results) != 2 {
		t.Fatalf("persistence failure must not drop records, got %d results", len(report.Results))
	}
}

func TestRunLogged(t *testing.T) {
	rl := &fakeRunLog{}
	reg := newRegistry(t, passAll("score_bounds", validator.CapDeterministic))
	orch := New(DefaultConfig(), reg, fullSampler(), nil, nil, rl)

	report := orch.Run(context.Background(), RunRequest{Records: []record.Record{{ID: "A"}}})

	if len(rl.entries) != 1 {
		t.Fatalf("expected 1 run_log entry, got %d", len(rl.entries))
	}
	e := rl.entries[0]
	if e.RunID != report.RunID || e.Total != 1 || e.Sampled != 1 {
		t.Fatalf("unexpected run entry: %+v", e)
	}
}

// #endregion persistence

// #region regressions

func TestRegressionDetectedAgainstPriorOutcomes(t *testing.T) {
	failing := &fakeValidator{name: "score_bounds", cap: validator.CapDeterministic, fn: func(rec record.Record, _ validator.Context) (verdict.Verdict, error) {
		return verdict.New("score_bounds", []verdict.Issue{
			{Severity: verdict.SeverityError, Message: "score out of range"},
		}, 0), nil
	}}

	sink := &fakeSink{outcomes: map[string]bool{"A": true}}
	orch := New(DefaultConfig(), newRegistry(t, failing), fullSampler(), nil, sink, nil)

	report := orch.Run(context.Background(), RunRequest{
		Records:      []record.Record{{ID: "A"}},
		FromRevision: "rev-prior",
	})

	if len(report.Regressions) != 1 {
		t.Fatalf("expected 1 regression, got %+v", report.Regressions)
	}
	reg := report.Regressions[0]
	if reg.RecordID != "A" || reg.SinceRevision != "rev-prior" {
		t.Fatalf("unexpected regression: %+v", reg)
	}
	if len(reg.FailedValidators) != 1 || reg.FailedValidators[0] != "score_bounds" {
		t.Fatalf("expected failing validator recorded, got %v", reg.FailedValidators)
	}
}

func TestRegressionsPureFunction(t *testing.T) {
	prior := map[string]bool{"a": true, "b": true, "c": false, "d": true}
	current := map[string]bool{"a": false, "b": true, "c": false, "d": false}
	changes := map[string]*diffdetect.ChangeRecord{
		"d": {RecordID: "d", SourceChanged: true},
	}

	got := Regressions(prior, current, changes)

	// a regressed; b still passes; c never passed; d's failure is
	// explained by changed source data.
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected [a], got %v", got)
	}
}

func TestRegressionsSortedAndNilChangesTolerated(t *testing.T) {
	prior := map[string]bool{"z": true, "a": true, "m": true}
	current := map[string]bool{"z": false, "a": false, "m": false}

	got := Regressions(prior, current, nil)
	want := []string{"a", "m", "z"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sorted ids %v, got %v", want, got)
		}
	}
}

// #endregion regressions

// #region review-threshold

func TestNeedsReviewWarningThreshold(t *testing.T) {
	warns := &fakeValidator{name: "citation_format", cap: validator.CapDeterministic, fn: func(rec record.Record, _ validator.Context) (verdict.Verdict, error) {
		return verdict.New("citation_format", []verdict.Issue{
			{Severity: verdict.SeverityWarning, Message: "w1"},
			{Severity: verdict.SeverityWarning, Message: "w2"},
			{Severity: verdict.SeverityWarning, Message: "w3"},
		}, 0), nil
	}}

	orch := New(DefaultConfig(), newRegistry(t, warns), fullSampler(), nil, nil, nil)
	report := orch.Run(context.Background(), RunRequest{Records: []record.Record{{ID: "A"}}})

	res := resultFor(t, report, "A")
	if !res.NeedsReview {
		t.Fatal("three warnings meet the default review threshold")
	}
	if !res.Passed {
		t.Fatal("warnings must not fail the record even when flagged for review")
	}
}

// #endregion review-threshold
