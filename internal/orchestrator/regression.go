package orchestrator

// #region imports
import (
	"sort"

	"recordcheck/internal/diffdetect"
)

// #endregion

// #region regressions
// Regressions is the pure comparison over two per-record outcome sets:
// a regression is any record that passed at the prior revision and fails
// at the current one without an explaining source-field change. Fetching
// the prior outcome set is the persistence collaborator's job.
func Regressions(prior, current map[string]bool, changes map[string]*diffdetect.ChangeRecord) []string {
	var out []string
	for id, passedNow := range current {
		if passedNow || !prior[id] {
			continue
		}
		if c, ok := changes[id]; ok && c.SourceChanged {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// #endregion regressions
