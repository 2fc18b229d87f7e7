package masfro

import (
	"sync"
	"time"
)

// MissionType enumerates the four mission kinds the orchestrator drives.
type MissionType string

const (
	MissionAssessRisk           MissionType = "assess_risk"
	MissionCoordinatedEvac      MissionType = "coordinated_evacuation"
	MissionRouteCalculation     MissionType = "route_calculation"
	MissionCascadeRiskUpdate    MissionType = "cascade_risk_update"
)

// MissionState is a node in the orchestrator's per-mission-type finite
// state machine (spec.md §4.11). Terminal states never re-enter a
// non-terminal state.
type MissionState string

const (
	StatePending              MissionState = "PENDING"
	StateAwaitingScout        MissionState = "AWAITING_SCOUT"
	StateAwaitingFlood        MissionState = "AWAITING_FLOOD"
	StateAwaitingHazard       MissionState = "AWAITING_HAZARD"
	StateAwaitingRouting      MissionState = "AWAITING_ROUTING"
	StateAwaitingEvacuation   MissionState = "AWAITING_EVACUATION"
	StateAwaitingRiskQuery    MissionState = "AWAITING_RISK_QUERY"
	StateCompleted            MissionState = "COMPLETED"
	StateFailed               MissionState = "FAILED"
	StateTimedOut             MissionState = "TIMED_OUT"
)

// IsTerminal reports whether s is one of {COMPLETED, FAILED, TIMED_OUT}.
func (s MissionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Mission is a multi-step request tracked by the orchestrator as an FSM.
type Mission struct {
	ID             string
	Type           MissionType
	State          MissionState
	Params         map[string]any
	Results        map[string]any // keyed by responding agent / info_type
	CreatedAt      time.Time
	TimeoutDeadline time.Time
	CompletedAt    time.Time
	Error          string
}

// MissionRegistry holds active missions in a map and completed ones in a
// bounded ring, index-consistent on eviction (spec.md §4.11 "Retention").
type MissionRegistry struct {
	mu        sync.Mutex
	active    map[string]*Mission
	completed []*Mission // ring buffer, oldest at index 0
	maxHistory int
	completedIndex map[string]*Mission
}

// NewMissionRegistry creates a registry retaining up to maxHistory
// completed missions (default 100 per spec.md §6).
func NewMissionRegistry(maxHistory int) *MissionRegistry {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &MissionRegistry{
		active:         make(map[string]*Mission),
		maxHistory:     maxHistory,
		completedIndex: make(map[string]*Mission),
	}
}

// Create registers a new mission in PENDING state.
func (r *MissionRegistry) Create(mtype MissionType, params map[string]any, timeout time.Duration) *Mission {
	m := &Mission{
		ID:              NewID(),
		Type:            mtype,
		State:           StatePending,
		Params:          params,
		Results:         make(map[string]any),
		CreatedAt:       Now(),
		TimeoutDeadline: Now().Add(timeout),
	}
	r.mu.Lock()
	r.active[m.ID] = m
	r.mu.Unlock()
	return m
}

// Get returns a mission by id, active or completed.
func (r *MissionRegistry) Get(id string) (*Mission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.active[id]; ok {
		return m, true
	}
	if m, ok := r.completedIndex[id]; ok {
		return m, true
	}
	return nil, false
}

// Transition moves an active mission to a new state. If the new state is
// terminal, the mission is archived into the completed ring (evicting
// the oldest entry, keeping the index consistent) and removed from
// active.
func (r *MissionRegistry) Transition(id string, state MissionState, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.active[id]
	if !ok {
		return
	}
	m.State = state
	if errText != "" {
		m.Error = errText
	}
	if !state.IsTerminal() {
		return
	}
	m.CompletedAt = Now()
	delete(r.active, id)

	if len(r.completed) >= r.maxHistory {
		evicted := r.completed[0]
		r.completed = r.completed[1:]
		delete(r.completedIndex, evicted.ID)
	}
	r.completed = append(r.completed, m)
	r.completedIndex[m.ID] = m
}

// ActiveSnapshot returns every currently-active mission, for the
// orchestrator's timeout scan.
func (r *MissionRegistry) ActiveSnapshot() []*Mission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Mission, 0, len(r.active))
	for _, m := range r.active {
		out = append(out, m)
	}
	return out
}
