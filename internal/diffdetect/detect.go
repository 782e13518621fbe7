package diffdetect

// #region imports
import (
	"log"
	"math"
	"sort"
	"strconv"

	"recordcheck/internal/verdict"
)

// #endregion

// #region config
// Config holds classification thresholds and the disproportionate-change
// heuristic's tuning constants. The multiplier and field weights are
// arbitrary tuning values, kept in configuration on purpose.
type Config struct {
	InfoMaxDelta float64 `yaml:"info_max_delta"` // |delta| <= this → INFO
	WarnMaxDelta float64 `yaml:"warn_max_delta"` // |delta| <= this → WARNING, beyond → ERROR

	TrendWindow int     `yaml:"trend_window"`
	TrendBand   float64 `yaml:"trend_band"`

	DisproportionMultiplier float64            `yaml:"disproportion_multiplier"`
	FieldWeights            map[string]float64 `yaml:"field_weights"`
	DefaultFieldWeight      float64            `yaml:"default_field_weight"`
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		InfoMaxDelta:            5,
		WarnMaxDelta:            15,
		TrendWindow:             5,
		TrendBand:               5,
		DisproportionMultiplier: 2.0,
		DefaultFieldWeight:      5,
	}
}

// #endregion config

// #region classify-severity
// ClassifySeverity maps an absolute score delta onto severity bands.
// Band boundaries are inclusive on the lower side: |delta| <= info max
// is INFO, |delta| <= warn max is WARNING, beyond is ERROR.
func (c Config) ClassifySeverity(delta float64) verdict.Severity {
	abs := math.Abs(delta)
	switch {
	case abs <= c.InfoMaxDelta:
		return verdict.SeverityInfo
	case abs <= c.WarnMaxDelta:
		return verdict.SeverityWarning
	default:
		return verdict.SeverityError
	}
}

// #endregion classify-severity

// #region classify-trend
// ClassifyTrend qualifies a score history bounded to the trend window.
// With fewer than two values there is no trend. Consecutive swings both
// above +band and below -band mean volatile; otherwise a net change
// within ±band is stable, and the sign of the net change decides
// improving vs declining.
func (c Config) ClassifyTrend(history []float64) Trend {
	if len(history) < 2 {
		return TrendNone
	}
	if c.TrendWindow > 0 && len(history) > c.TrendWindow {
		history = history[len(history)-c.TrendWindow:]
	}

	up, down := false, false
	for i := 1; i < len(history); i++ {
		d := history[i] - history[i-1]
		if d > c.TrendBand {
			up = true
		}
		if d < -c.TrendBand {
			down = true
		}
	}
	if up && down {
		return TrendVolatile
	}

	net := history[len(history)-1] - history[0]
	if math.Abs(net) <= c.TrendBand {
		return TrendStable
	}
	if net > 0 {
		return TrendImproving
	}
	return TrendDeclining
}

// #endregion classify-trend

// #region detector
// Detector computes per-record changes between two dataset revisions
// across three independently queried facets, merged by record identity.
type Detector struct {
	store DiffStore
	cfg   Config
}

// NewDetector wires a detector over a diff store.
func NewDetector(store DiffStore, cfg Config) *Detector {
	return &Detector{store: store, cfg: cfg}
}

// #endregion detector

// #region detect
// Detect runs all three facet queries and merges them. A failing facet
// degrades to unknown for the run: it is recorded in DegradedFacets and
// the remaining facets proceed.
func (d *Detector) Detect(fromRev, toRev string) Result {
	res := Result{Changes: make(map[string]*ChangeRecord)}

	scores, err := d.store.Diff(fromRev, toRev, FacetScores)
	if err != nil {
		log.Printf("[DIFF] facet %s degraded: %v", FacetScores, err)
		res.DegradedFacets = append(res.DegradedFacets, FacetScores)
	} else {
		d.mergeScores(&res, scores)
	}

	sources, err := d.store.Diff(fromRev, toRev, FacetSources)
	if err != nil {
		log.Printf("[DIFF] facet %s degraded: %v", FacetSources, err)
		res.DegradedFacets = append(res.DegradedFacets, FacetSources)
	} else {
		d.mergeSources(&res, sources)
	}

	content, err := d.store.Diff(fromRev, toRev, FacetContent)
	if err != nil {
		log.Printf("[DIFF] facet %s degraded: %v", FacetContent, err)
		res.DegradedFacets = append(res.DegradedFacets, FacetContent)
	} else {
		d.mergeContent(&res, content)
	}

	d.flag(&res)
	d.summarize(&res)
	return res
}

// #endregion detect

// #region merge
func (d *Detector) mergeScores(res *Result, rows []DiffRow) {
	for _, row := range rows {
		c := d.entry(res, row)
		c.OldScore = parseScore(row.Before)
		c.NewScore = parseScore(row.After)
		if row.DiffType == DiffModified {
			c.Delta = c.NewScore - c.OldScore
			c.Severity = d.cfg.ClassifySeverity(c.Delta)
		}

		hist, err := d.store.ScoreHistory(row.RecordID, d.cfg.TrendWindow)
		if err != nil {
			log.Printf("[DIFF] score history unavailable for %s: %v", row.RecordID, err)
			continue
		}
		c.Trend = d.cfg.ClassifyTrend(hist)
	}
}

func (d *Detector) mergeSources(res *Result, rows []DiffRow) {
	for _, row := range rows {
		c := d.entry(res, row)
		c.SourceChanged = true
		c.ChangedFields = changedFields(row.Before, row.After)
	}
}

func (d *Detector) mergeContent(res *Result, rows []DiffRow) {
	for _, row := range rows {
		c := d.entry(res, row)
		c.ContentChanged = true
	}
}

// entry returns the merged ChangeRecord for a row's id, creating it on
// first touch. Added/removed outrank modified when facets disagree.
func (d *Detector) entry(res *Result, row DiffRow) *ChangeRecord {
	c, ok := res.Changes[row.RecordID]
	if !ok {
		c = &ChangeRecord{
			RecordID: row.RecordID,
			DiffType: row.DiffType,
			Severity: verdict.SeverityInfo,
		}
		res.Changes[row.RecordID] = c
	}
	if c.DiffType == DiffModified && row.DiffType != DiffModified {
		c.DiffType = row.DiffType
	}
	return c
}

// #endregion merge

// #region flags
// flag applies the unexplained and disproportionate classifications to
// every modified record.
func (d *Detector) flag(res *Result) {
	for _, c := range res.Changes {
		if c.DiffType != DiffModified {
			continue
		}
		severe := c.Severity == verdict.SeverityWarning || c.Severity == verdict.SeverityError

		if severe && !c.SourceChanged {
			c.Unexplained = true
			continue
		}

		if c.SourceChanged {
			expected := 0.0
			for _, f := range c.ChangedFields {
				w, ok := d.cfg.FieldWeights[f]
				if !ok {
					w = d.cfg.DefaultFieldWeight
				}
				expected += w
			}
			if math.Abs(c.Delta) > d.cfg.DisproportionMultiplier*expected {
				c.Disproportionate = true
			}
		}
	}
}

func (d *Detector) summarize(res *Result) {
	for _, c := range res.Changes {
		switch c.DiffType {
		case DiffAdded:
			res.Summary.Added++
		case DiffRemoved:
			res.Summary.Removed++
		default:
			res.Summary.Modified++
		}
		if c.Unexplained {
			res.Summary.Unexplained++
		}
		if c.Disproportionate {
			res.Summary.Disproportionate++
		}
	}
}

// #endregion flags

// #region helpers
func parseScore(fields map[string]string) float64 {
	v, err := strconv.ParseFloat(fields["score"], 64)
	if err != nil {
		return 0
	}
	return v
}

func changedFields(before, after map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for k, v := range after {
		if before[k] != v {
			seen[k] = true
		}
	}
	for k, v := range before {
		if after[k] != v {
			seen[k] = true
		}
	}
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// #endregion helpers
