// Package store defines the MAS-FRO persistence contract and its three
// backends (sqlite, postgres, libsql). Persistence is an optional
// collaborator (spec.md §7's DatabaseError is explicitly optional): a
// nil Store is valid everywhere a Store is accepted, and every caller
// must tolerate it.
package store

import (
	"context"
	"time"

	masfro "github.com/PolySpade/masfro"
)

// Store persists historical observations (spec.md §6's "persistence of
// historical observations") and a mission audit trail. Implementations
// must be safe for concurrent use.
type Store interface {
	// Init creates or migrates the schema. Called once at startup.
	Init(ctx context.Context) error

	// SaveObservation appends one normalized reading to history.
	SaveObservation(ctx context.Context, rec masfro.ObservationRecord) error

	// RecentObservations returns up to limit observations of the given
	// kind at or after since, newest first. A zero kind matches every
	// kind.
	RecentObservations(ctx context.Context, kind masfro.ObservationKind, since time.Time, limit int) ([]masfro.ObservationRecord, error)

	// SaveMission upserts a mission's current state for audit/replay.
	SaveMission(ctx context.Context, m *masfro.Mission) error

	// GetMission returns a previously saved mission by ID.
	GetMission(ctx context.Context, id string) (*masfro.Mission, bool, error)

	// Close releases any underlying connection.
	Close() error
}
