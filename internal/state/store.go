package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS calibration_versions (
	version_id       TEXT PRIMARY KEY,
	parent_id        TEXT,
	step             INTEGER NOT NULL,
	config_json      TEXT NOT NULL,
	performance_json TEXT NOT NULL,
	field_vector     BLOB NOT NULL,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES calibration_versions(version_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	step          INTEGER NOT NULL,
	trigger_type  TEXT NOT NULL,
	snapshot_json TEXT,
	decision      TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES calibration_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES calibration_versions(version_id)
);
`

// #endregion schema

const versionColumns = `v.version_id, v.parent_id, v.step, v.config_json, v.performance_json, v.field_vector, v.created_at`

// #region store-struct
// Store manages versioned calibration state in SQLite.
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
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region create-initial
// CreateInitial stores v as a root version and makes it active. A missing
// id or timestamp is filled in.
func (s *Store) CreateInitial(v Version) (Version, error) {
	v.ParentID = ""
	return s.insert(v)
}

// #endregion create-initial

// #region commit
// Commit stores v and moves the active pointer to it. With no ParentID the
// current active version becomes the parent.
func (s *Store) Commit(v Version) (Version, error) {
	if v.ParentID == "" {
		var active string
		err := s.db.QueryRow(`SELECT version_id FROM active_state WHERE id = 1`).Scan(&active)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Version{}, fmt.Errorf("get active: %w", err)
		}
		v.ParentID = active
	}
	return s.insert(v)
}

func (s *Store) insert(v Version) (Version, error) {
	if v.VersionID == "" {
		v.VersionID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	cfgJSON, err := json.Marshal(v.Config)
	if err != nil {
		return Version{}, fmt.Errorf("marshal config: %w", err)
	}
	perfJSON, err := json.Marshal(v.Performance)
	if err != nil {
		return Version{}, fmt.Errorf("marshal performance: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Version{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parentPtr any
	if v.ParentID != "" {
		parentPtr = v.ParentID
	}

	_, err = tx.Exec(
		`INSERT INTO calibration_versions (version_id, parent_id, step, config_json, performance_json, field_vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, parentPtr, v.Step, string(cfgJSON), string(perfJSON),
		encodeVector(v.FieldVector), v.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Version{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_state (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		v.VersionID,
	)
	if err != nil {
		return Version{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// #endregion commit

// #region get
// GetCurrent reads the active version.
func (s *Store) GetCurrent() (Version, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_state WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("get active: %w", ErrUnknownVersion)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// GetVersion retrieves a specific version by id.
func (s *Store) GetVersion(id string) (Version, error) {
	row := s.db.QueryRow(`SELECT `+versionColumns+` FROM calibration_versions v WHERE v.version_id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("get version %s: %w", id, ErrUnknownVersion)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}

// GetVersionWithProvenance retrieves a version and the provenance row that
// created it.
func (s *Store) GetVersionWithProvenance(id string) (VersionWithProvenance, error) {
	row := s.db.QueryRow(provenanceQuery+` WHERE v.version_id = ?`, id)
	vp, err := scanVersionWithProvenance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return VersionWithProvenance{}, fmt.Errorf("get version %s: %w", id, ErrUnknownVersion)
	}
	if err != nil {
		return VersionWithProvenance{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return vp, nil
}

// #endregion get

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM calibration_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("rollback to %s: %w", targetVersionID, ErrUnknownVersion)
	}

	_, err = s.db.Exec(`UPDATE active_state SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list
// ListVersions returns the most recent versions, newest first by insertion
// order. A negative limit returns every version.
func (s *Store) ListVersions(limit int) ([]Version, error) {
	rows, err := s.db.Query(
		`SELECT `+versionColumns+` FROM calibration_versions v
		 ORDER BY v.rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// provenanceQuery joins each version to its first provenance row. Later rows
// (disabled steps) annotate a version without replacing its decision.
const provenanceQuery = `SELECT ` + versionColumns + `,
	COALESCE(p.trigger_type, ''), COALESCE(p.decision, ''), COALESCE(p.reason, ''), COALESCE(p.snapshot_json, '')
	FROM calibration_versions v
	LEFT JOIN provenance_log p ON p.id = (
		SELECT MIN(id) FROM provenance_log WHERE version_id = v.version_id
	)`

// ListWithProvenance returns the most recent versions with their decisions,
// newest first. A negative limit returns every version.
func (s *Store) ListWithProvenance(limit int) ([]VersionWithProvenance, error) {
	rows, err := s.db.Query(provenanceQuery+` ORDER BY v.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionWithProvenance
	for rows.Next() {
		vp, err := scanVersionWithProvenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, vp)
	}
	return out, rows.Err()
}

// #endregion list

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(r scanner) (Version, error) {
	var (
		v   Version
		raw rawVersion
	)
	if err := r.Scan(raw.targets()...); err != nil {
		return Version{}, err
	}
	if err := raw.decode(&v); err != nil {
		return Version{}, err
	}
	return v, nil
}

func scanVersionWithProvenance(r scanner) (VersionWithProvenance, error) {
	var vp VersionWithProvenance
	var raw rawVersion
	targets := append(raw.targets(), &vp.TriggerType, &vp.Decision, &vp.Reason, &vp.SnapshotJSON)
	if err := r.Scan(targets...); err != nil {
		return VersionWithProvenance{}, err
	}
	if err := raw.decode(&vp.Version); err != nil {
		return VersionWithProvenance{}, err
	}
	return vp, nil
}

type rawVersion struct {
	id, cfgJSON, perfJSON, created string
	parent                        sql.NullString
	step                          int
	vec                           []byte
}

func (r *rawVersion) targets() []any {
	return []any{&r.id, &r.parent, &r.step, &r.cfgJSON, &r.perfJSON, &r.vec, &r.created}
}

func (r *rawVersion) decode(v *Version) error {
	v.VersionID = r.id
	if r.parent.Valid {
		v.ParentID = r.parent.String
	}
	v.Step = r.step
	if err := json.Unmarshal([]byte(r.cfgJSON), &v.Config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal([]byte(r.perfJSON), &v.Performance); err != nil {
		return fmt.Errorf("unmarshal performance: %w", err)
	}
	v.FieldVector = decodeVector(r.vec)
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.created)
	return nil
}

// #endregion scan

// #region vector-encoding
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// #endregion vector-encoding
