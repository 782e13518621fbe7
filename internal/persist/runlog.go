package persist

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region schema
const runLogSchema = `
CREATE TABLE IF NOT EXISTS run_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id        TEXT NOT NULL,
    revision_id   TEXT,
    total         INTEGER NOT NULL,
    sampled       INTEGER NOT NULL,
    flagged       INTEGER NOT NULL,
    total_cost    REAL NOT NULL DEFAULT 0,
    note          TEXT,
    created_at    TEXT NOT NULL
);
`

func initRunLog(db *sql.DB) error {
	if _, err := db.Exec(runLogSchema); err != nil {
		return fmt.Errorf("migrate run_log: %w", err)
	}
	return nil
}

// #endregion schema

// #region run-entry
// RunEntry is one provenance row per completed batch run.
type RunEntry struct {
	RunID      string
	RevisionID string
	Total      int
	Sampled    int
	Flagged    int
	TotalCost  float64
	Note       string
	CreatedAt  time.Time
}

// #endregion run-entry

// #region log-run
// LogRun writes a provenance entry to the run_log table.
func (s *Store) LogRun(entry RunEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO run_log (run_id, revision_id, total, sampled, flagged, total_cost, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		nullIfEmpty(entry.RevisionID),
		entry.Total,
		entry.Sampled,
		entry.Flagged,
		entry.TotalCost,
		nullIfEmpty(entry.Note),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

// #endregion log-run

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
