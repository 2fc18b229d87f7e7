// Package sqlite implements store.Store using pure-Go SQLite. Zero CGO
// required, grounded on the teacher's store/sqlite package which used
// the same driver the same way (single shared connection, structured
// debug logging per operation).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	masfro "github.com/PolySpade/masfro"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, Init
// logs its start (debug) and completion (info); other operations do
// not log. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements store.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection pool with SetMaxOpenConns(1) so that all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")

	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		source TEXT NOT NULL,
		payload TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create observations table: %w", err)
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
		return fmt.Errorf("create missions table: %w", err)
	}

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
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
