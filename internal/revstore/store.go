package revstore

// #region imports
import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"recordcheck/internal/diffdetect"
	"recordcheck/internal/record"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS revisions (
	revision_id   TEXT PRIMARY KEY,
	parent_id     TEXT,
	created_at    TEXT NOT NULL,
	note          TEXT,
	FOREIGN KEY (parent_id) REFERENCES revisions(revision_id)
);

CREATE TABLE IF NOT EXISTS snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	revision_id   TEXT NOT NULL,
	entity        TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	fields_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (revision_id) REFERENCES revisions(revision_id)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_lookup
ON snapshots(revision_id, entity, record_id);
`

// #endregion schema

// #region store-struct
// Store is a SQLite-backed revision-addressable snapshot store. It
// implements the versioned-store diff contract consumed by the change
// detector; any store exposing the same shape would do.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages
// (e.g. the persistence sink sharing one database file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region begin-revision
// BeginRevision creates a new revision row and returns its id.
func (s *Store) BeginRevision(parentID, note string) (string, error) {
	id := uuid.New().String()

	var parentPtr interface{}
	if parentID != "" {
		parentPtr = parentID
	}
	var notePtr interface{}
	if note != "" {
		notePtr = note
	}

	_, err := s.db.Exec(
		`INSERT INTO revisions (revision_id, parent_id, created_at, note)
		 VALUES (?, ?, ?, ?)`,
		id, parentPtr, time.Now().UTC().Format(time.RFC3339Nano), notePtr,
	)
	if err != nil {
		return "", fmt.Errorf("insert revision: %w", err)
	}
	return id, nil
}

// LatestRevision returns the most recent revision id, or "" when the
// store is empty.
func (s *Store) LatestRevision() (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT revision_id FROM revisions ORDER BY created_at DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest revision: %w", err)
	}
	return id, nil
}

// #endregion begin-revision

// #region snapshot
// SnapshotRecords writes all three facet snapshots for every record
// under one revision in a single transaction, so a revision is never
// partially visible.
func (s *Store) SnapshotRecords(revisionID string, records []record.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range records {
		facets := map[string]map[string]string{
			diffdetect.FacetScores:  {"score": strconv.FormatFloat(r.Score, 'f', -1, 64)},
			diffdetect.FacetSources: sourceFields(r),
			diffdetect.FacetContent: contentFields(r),
		}
		for entity, fields := range facets {
			data, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("marshal %s facet: %w", entity, err)
			}
			_, err = tx.Exec(
				`INSERT INTO snapshots (revision_id, entity, record_id, fields_json, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				revisionID, entity, r.ID, string(data), now,
			)
			if err != nil {
				return fmt.Errorf("insert snapshot: %w", err)
			}
		}
	}

	return tx.Commit()
}

func sourceFields(r record.Record) map[string]string {
	out := make(map[string]string, len(r.SourceFields))
	for k, v := range r.SourceFields {
		out[k] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

func contentFields(r record.Record) map[string]string {
	sum := sha256.Sum256([]byte(r.Narrative))
	return map[string]string{
		"content_hash": hex.EncodeToString(sum[:]),
		"content_len":  strconv.Itoa(len(r.Narrative)),
	}
}

// #endregion snapshot

// #region diff
// Diff returns added/modified/removed rows for one facet entity between
// two revisions.
func (s *Store) Diff(fromRev, toRev, entity string) ([]diffdetect.DiffRow, error) {
	before, err := s.facet(fromRev, entity)
	if err != nil {
		return nil, err
	}
	after, err := s.facet(toRev, entity)
	if err != nil {
		return nil, err
	}

	var rows []diffdetect.DiffRow
	for id, b := range before {
		a, ok := after[id]
		if !ok {
			rows = append(rows, diffdetect.DiffRow{
				RecordID: id, DiffType: diffdetect.DiffRemoved, Before: b,
			})
			continue
		}
		if !sameFields(b, a) {
			rows = append(rows, diffdetect.DiffRow{
				RecordID: id, DiffType: diffdetect.DiffModified, Before: b, After: a,
			})
		}
	}
	for id, a := range after {
		if _, ok := before[id]; !ok {
			rows = append(rows, diffdetect.DiffRow{
				RecordID: id, DiffType: diffdetect.DiffAdded, After: a,
			})
		}
	}
	return rows, nil
}

// facet loads record_id → fields for one (revision, entity) pair.
func (s *Store) facet(revisionID, entity string) (map[string]map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT record_id, fields_json FROM snapshots
		 WHERE revision_id = ? AND entity = ?`,
		revisionID, entity,
	)
	if err != nil {
		return nil, fmt.Errorf("query facet %s@%s: %w", entity, revisionID, err)
	}
	defer rows.Close()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var id, fieldsJSON string
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
		}
		out[id] = fields
	}
	return out, rows.Err()
}

func sameFields(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// #endregion diff

// #region score-history
// ScoreHistory returns a record's most recent snapshot scores in
// revision order, oldest first, bounded to limit values.
func (s *Store) ScoreHistory(recordID string, limit int) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT sn.fields_json
		 FROM snapshots sn
		 JOIN revisions rv ON rv.revision_id = sn.revision_id
		 WHERE sn.record_id = ? AND sn.entity = ?
		 ORDER BY rv.created_at DESC
		 LIMIT ?`,
		recordID, diffdetect.FacetScores, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	var newestFirst []float64
	for rows.Next() {
		var fieldsJSON string
		if err := rows.Scan(&fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			continue
		}
		v, err := strconv.ParseFloat(fields["score"], 64)
		if err != nil {
			continue
		}
		newestFirst = append(newestFirst, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for trend classification.
	out := make([]float64, len(newestFirst))
	for i, v := range newestFirst {
		out[len(newestFirst)-1-i] = v
	}
	return out, nil
}

// #endregion score-history
