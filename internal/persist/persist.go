package persist

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"recordcheck/internal/verdict"
)

// #endregion

// #region schema
const verdictsSchema = `
CREATE TABLE IF NOT EXISTS verdicts (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id      TEXT NOT NULL,
    revision_id    TEXT NOT NULL,
    validator_name TEXT NOT NULL,
    passed         INTEGER NOT NULL,
    error_count    INTEGER NOT NULL DEFAULT 0,
    warning_count  INTEGER NOT NULL DEFAULT 0,
    issues_json    TEXT,
    cost           REAL NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL
);
`

const verdictsIndex = `
CREATE INDEX IF NOT EXISTS idx_verdicts_lookup
ON verdicts(revision_id, record_id, validator_name);
`

// #endregion schema

// #region regression-record
// RegressionRecord identifies a record that passed at the prior revision
// and fails at the current one.
type RegressionRecord struct {
	RecordID         string   `json:"record_id"`
	SinceRevision    string   `json:"since_revision"`
	ToRevision       string   `json:"to_revision"`
	FailedValidators []string `json:"failed_validators"`
}

// #endregion regression-record

// #region store
// Store is the SQLite persistence sink for per-validator verdict rows.
type Store struct {
	db *sql.DB
}

// NewStore initializes the verdicts table on an open database.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(verdictsSchema); err != nil {
		return nil, fmt.Errorf("migrate verdicts: %w", err)
	}
	if _, err := db.Exec(verdictsIndex); err != nil {
		return nil, fmt.Errorf("index verdicts: %w", err)
	}
	if err := initRunLog(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// #endregion store

// #region save-verdict
// SaveVerdict persists one verdict row for a record at a revision.
func (s *Store) SaveVerdict(recordID, revisionID string, v verdict.Verdict) error {
	passed := 0
	if v.Passed {
		passed = 1
	}

	var issuesJSON interface{}
	if len(v.Issues) > 0 {
		data, err := json.Marshal(v.Issues)
		if err != nil {
			return fmt.Errorf("marshal issues: %w", err)
		}
		issuesJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO verdicts
		(record_id, revision_id, validator_name, passed, error_count, warning_count, issues_json, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID,
		revisionID,
		v.ValidatorName,
		passed,
		v.ErrorCount(),
		v.WarningCount(),
		issuesJSON,
		v.Cost,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// #endregion save-verdict

// #region outcomes
// Outcomes returns the per-record aggregate pass/fail at a revision:
// a record passed iff every persisted verdict row for it passed.
func (s *Store) Outcomes(revisionID string) (map[string]bool, error) {
	rows, err := s.db.Query(`
		SELECT record_id, MIN(passed)
		FROM verdicts
		WHERE revision_id = ?
		GROUP BY record_id`,
		revisionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		var minPassed int
		if err := rows.Scan(&id, &minPassed); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out[id] = minPassed == 1
	}
	return out, rows.Err()
}

// #endregion outcomes

// #region regressions
// GetRegressions returns records that passed at sinceRevision and fail
// at toRevision, with the validators that now fail them.
func (s *Store) GetRegressions(sinceRevision, toRevision string) ([]RegressionRecord, error) {
	prior, err := s.Outcomes(sinceRevision)
	if err != nil {
		return nil, err
	}
	current, err := s.Outcomes(toRevision)
	if err != nil {
		return nil, err
	}

	var regs []RegressionRecord
	for id, passedNow := range current {
		if passedNow || !prior[id] {
			continue
		}
		failed, err := s.failedValidators(toRevision, id)
		if err != nil {
			return nil, err
		}
		regs = append(regs, RegressionRecord{
			RecordID:         id,
			SinceRevision:    sinceRevision,
			ToRevision:       toRevision,
			FailedValidators: failed,
		})
	}
	return regs, nil
}

func (s *Store) failedValidators(revisionID, recordID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT validator_name FROM verdicts
		WHERE revision_id = ? AND record_id = ? AND passed = 0
		ORDER BY validator_name`,
		revisionID, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query failed validators: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan validator name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// #endregion regressions
