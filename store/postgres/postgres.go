// Package postgres implements store.Store using PostgreSQL, grounded on
// the teacher's store/postgres package (externally-owned *pgxpool.Pool
// injected via constructor, caller owns lifecycle).
package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	masfro "github.com/PolySpade/masfro"
)

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store using an existing pgxpool.Pool. The caller owns
// the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS observations (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		source TEXT NOT NULL,
		payload JSONB NOT NULL
	)`)
	if err != nil {
		return masfro.NewDatabaseError("init observations table", err)
	}
	_, _ = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_observations_kind_ts ON observations(kind, timestamp)`)

	_, err = s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS missions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		params JSONB,
		results JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		timeout_deadline TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO observations (kind, timestamp, source, payload) VALUES ($1, $2, $3, $4)`,
		string(rec.Kind), rec.Timestamp, rec.Source, payload,
	)
	if err != nil {
		return masfro.NewDatabaseError("save observation", err)
	}
	return nil
}

func (s *Store) RecentObservations(ctx context.Context, kind masfro.ObservationKind, since time.Time, limit int) ([]masfro.ObservationRecord, error) {
	query := `SELECT payload FROM observations WHERE timestamp >= $1`
	args := []any{since}
	argN := 2
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, string(kind))
		argN = 3
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(argN)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, masfro.NewDatabaseError("recent observations", err)
	}
	defer rows.Close()

	var out []masfro.ObservationRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, masfro.NewDatabaseError("scan observation", err)
		}
		var rec masfro.ObservationRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
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

	var completedAt *time.Time
	if !m.CompletedAt.IsZero() {
		completedAt = &m.CompletedAt
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO missions (id, type, state, params, results, created_at, timeout_deadline, completed_at, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state, results = EXCLUDED.results,
			completed_at = EXCLUDED.completed_at, error = EXCLUDED.error`,
		m.ID, string(m.Type), string(m.State), params, results,
		m.CreatedAt, m.TimeoutDeadline, completedAt, m.Error,
	)
	if err != nil {
		return masfro.NewDatabaseError("save mission", err)
	}
	return nil
}

func (s *Store) GetMission(ctx context.Context, id string) (*masfro.Mission, bool, error) {
	var m masfro.Mission
	var mtype, state string
	var params, results []byte
	var completedAt *time.Time
	var errText *string

	err := s.pool.QueryRow(ctx,
		`SELECT type, state, params, results, created_at, timeout_deadline, completed_at, error
		 FROM missions WHERE id = $1`, id,
	).Scan(&mtype, &state, &params, &results, &m.CreatedAt, &m.TimeoutDeadline, &completedAt, &errText)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, masfro.NewDatabaseError("get mission", err)
	}

	m.ID = id
	m.Type = masfro.MissionType(mtype)
	m.State = masfro.MissionState(state)
	if completedAt != nil {
		m.CompletedAt = *completedAt
	}
	if errText != nil {
		m.Error = *errText
	}
	_ = json.Unmarshal(params, &m.Params)
	_ = json.Unmarshal(results, &m.Results)
	return &m, true, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
