// Package libsql implements store.Store using libSQL (SQLite-compatible),
// for local files and for remote Turso databases via the tursodatabase
// go-libsql driver, grounded on the teacher's store/libsql package.
package libsql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	masfro "github.com/PolySpade/masfro"

	_ "github.com/tursodatabase/go-libsql"
)

// Store implements store.Store backed by libSQL / Turso.
type Store struct {
	db *sql.DB
}

// New opens a local libSQL file at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("open local libsql database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRemote opens a connection to a remote Turso database using the
// libsql:// URL scheme with an auth token.
func NewRemote(url, token string) (*Store, error) {
	dsn := url
	if token != "" {
		dsn = url + "?authToken=" + token
	}
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open remote libsql database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		source TEXT NOT NULL,
		payload TEXT NOT NULL
	)`)
	if err != nil {
		return masfro.NewDatabaseError("init observations table", err)
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_observations_kind_ts ON observations(kind, timestamp)`)

	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		params TEXT,
		results TEXT,
		created_at INTEGER NOT NULL,
		timeout_deadline INTEGER NOT NULL,
		completed_at INTEGER,
		error TEXT
	)`)
	if err != nil {
		return masfro.NewDatabaseError("init missions table", err)
	}
	return nil
}

func (s *Store) SaveObservation(ctx context.Context, rec masfro.ObservationRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return masfro.NewDatabaseError("save observation", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO observations (kind, timestamp, source, payload) VALUES (?, ?, ?, ?)`,
		string(rec.Kind), rec.Timestamp.UnixNano(), rec.Source, string(payload),
	)
	if err != nil {
		return masfro.NewDatabaseError("save observation", err)
	}
	return nil
}

func (s *Store) RecentObservations(ctx context.Context, kind masfro.ObservationKind, since time.Time, limit int) ([]masfro.ObservationRecord, error) {
	query := `SELECT payload FROM observations WHERE timestamp >= ?`
	args := []any{since.UnixNano()}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, masfro.NewDatabaseError("recent observations", err)
	}
	defer rows.Close()

	var out []masfro.ObservationRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, masfro.NewDatabaseError("scan observation", err)
		}
		var rec masfro.ObservationRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SaveMission(ctx context.Context, m *masfro.Mission) error {
	params, err := json.Marshal(m.Params)
	if err != nil {
		return masfro.NewDatabaseError("save mission", err)
	}
	results, err := json.Marshal(m.Results)
	if err != nil {
		return masfro.NewDatabaseError("save mission", err)
	}

	var completedAt *int64
	if !m.CompletedAt.IsZero() {
		v := m.CompletedAt.UnixNano()
		completedAt = &v
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO missions (id, type, state, params, results, created_at, timeout_deadline, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, results=excluded.results,
			completed_at=excluded.completed_at, error=excluded.error`,
		m.ID, string(m.Type), string(m.State), string(params), string(results),
		m.CreatedAt.UnixNano(), m.TimeoutDeadline.UnixNano(), completedAt, m.Error,
	)
	if err != nil {
		return masfro.NewDatabaseError("save mission", err)
	}
	return nil
}

func (s *Store) GetMission(ctx context.Context, id string) (*masfro.Mission, bool, error) {
	var m masfro.Mission
	var mtype, state, params, results string
	var createdAt, timeoutDeadline int64
	var completedAt sql.NullInt64
	var errText sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT type, state, params, results, created_at, timeout_deadline, completed_at, error
		 FROM missions WHERE id = ?`, id,
	).Scan(&mtype, &state, &params, &results, &createdAt, &timeoutDeadline, &completedAt, &errText)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, masfro.NewDatabaseError("get mission", err)
	}

	m.ID = id
	m.Type = masfro.MissionType(mtype)
	m.State = masfro.MissionState(state)
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	m.TimeoutDeadline = time.Unix(0, timeoutDeadline).UTC()
	if completedAt.Valid {
		m.CompletedAt = time.Unix(0, completedAt.Int64).UTC()
	}
	if errText.Valid {
		m.Error = errText.String
	}
	_ = json.Unmarshal([]byte(params), &m.Params)
	_ = json.Unmarshal([]byte(results), &m.Results)
	return &m, true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
