package sampling

// #region imports
import (
	"log"
	"math"
	"math/rand"

	"recordcheck/internal/record"
)

// #endregion

// #region config
// TierBucket is one stratum of the configured numeric field.
// A value v falls in the bucket when Min <= v < Max.
type TierBucket struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// Config holds sampling parameters.
type Config struct {
	SampleRate         float64      `yaml:"sample_rate"`
	TierField          string       `yaml:"tier_field"`
	Buckets            []TierBucket `yaml:"buckets"`
	EnsureTierCoverage bool         `yaml:"ensure_tier_coverage"`
}

// #endregion config

// #region engine
// Engine selects the working subset of records for a batch run.
// The random source is injected so runs are reproducible under test.
type Engine struct {
	cfg Config
	rng *rand.Rand
}

// NewEngine creates a sampling engine. A nil rng is seeded from the
// global source.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Engine{cfg: cfg, rng: rng}
}

// #endregion engine

// #region stratified
// Stratified partitions records into tiers by the configured field's
// bucket ranges (plus an "unknown" bucket for missing values), allocates
// each non-empty tier its share of the target rounded to nearest (at
// least one slot when EnsureTierCoverage is set), samples within tiers
// uniformly without replacement, and backfills from the remainder until
// the target is met or the pool is exhausted. A positive sample rate
// over a non-empty batch always selects at least one record; a rate of
// 1.0 or more is a no-op: everything is validated.
func (e *Engine) Stratified(records []record.Record) []record.Record {
	n := len(records)
	if n == 0 {
		return nil
	}
	if e.cfg.SampleRate >= 1.0 {
		return records
	}

	if e.cfg.SampleRate <= 0 {
		return nil
	}
	// A positive rate over a non-empty batch always validates something.
	target := int(math.Round(e.cfg.SampleRate * float64(n)))
	if target < 1 {
		target = 1
	}

	tiers := e.partition(records)

	selected := make(map[int]bool)
	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		frac := float64(len(tier)) / float64(n)
		alloc := int(math.Round(float64(target) * frac))
		if e.cfg.EnsureTierCoverage {
			alloc = max(1, alloc)
		}
		if alloc > len(tier) {
			alloc = len(tier)
		}
		for _, p := range e.rng.Perm(len(tier))[:alloc] {
			selected[tier[p]] = true
		}
	}

	// Backfill from records not yet selected.
	if len(selected) < target {
		var pool []int
		for i := 0; i < n; i++ {
			if !selected[i] {
				pool = append(pool, i)
			}
		}
		need := target - len(selected)
		if need > len(pool) {
			need = len(pool)
		}
		for _, p := range e.rng.Perm(len(pool))[:need] {
			selected[pool[p]] = true
		}
	}

	out := make([]record.Record, 0, len(selected))
	for i := 0; i < n; i++ {
		if selected[i] {
			out = append(out, records[i])
		}
	}
	log.Printf("[SAMPLE] stratified: %d of %d selected (target %d)", len(out), n, target)
	return out
}

// partition groups record indices into bucket tiers, with a trailing
// "unknown" tier for records missing the field.
func (e *Engine) partition(records []record.Record) [][]int {
	tiers := make([][]int, len(e.cfg.Buckets)+1)
	unknown := len(e.cfg.Buckets)

	for i, r := range records {
		v, ok := r.TierValue(e.cfg.TierField)
		if !ok {
			tiers[unknown] = append(tiers[unknown], i)
			continue
		}
		placed := false
		for b, bucket := range e.cfg.Buckets {
			if v >= bucket.Min && v < bucket.Max {
				tiers[b] = append(tiers[b], i)
				placed = true
				break
			}
		}
		if !placed {
			tiers[unknown] = append(tiers[unknown], i)
		}
	}
	return tiers
}

// #endregion stratified

// #region diff-targeted
// DiffTargeted bypasses proportional sampling: every record with a
// detected change is selected for full validation.
func (e *Engine) DiffTargeted(records []record.Record, changed map[string]bool) []record.Record {
	var out []record.Record
	for _, r := range records {
		if changed[r.ID] {
			out = append(out, r)
		}
	}
	log.Printf("[SAMPLE] diff-targeted: %d of %d changed", len(out), len(records))
	return out
}

// #endregion diff-targeted
