package masfro

import (
	"testing"
	"time"
)

func TestMissionRegistryTransitionToTerminalArchives(t *testing.T) {
	reg := NewMissionRegistry(100)
	m := reg.Create(MissionAssessRisk, nil, time.Minute)

	if _, ok := reg.Get(m.ID); !ok {
		t.Fatal("expected mission to be retrievable while active")
	}

	reg.Transition(m.ID, StateCompleted, "")

	got, ok := reg.Get(m.ID)
	if !ok {
		t.Fatal("expected mission retrievable after completion")
	}
	if got.State != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.State)
	}
	if len(reg.ActiveSnapshot()) != 0 {
		t.Fatal("expected mission removed from active set")
	}
}

func TestMissionRegistryEvictsOldestOnRingFull(t *testing.T) {
	reg := NewMissionRegistry(2)
	m1 := reg.Create(MissionRouteCalculation, nil, time.Minute)
	m2 := reg.Create(MissionRouteCalculation, nil, time.Minute)
	m3 := reg.Create(MissionRouteCalculation, nil, time.Minute)

	reg.Transition(m1.ID, StateCompleted, "")
	reg.Transition(m2.ID, StateCompleted, "")
	reg.Transition(m3.ID, StateCompleted, "")

	if _, ok := reg.Get(m1.ID); ok {
		t.Fatal("expected oldest completed mission evicted")
	}
	if _, ok := reg.Get(m2.ID); !ok {
		t.Fatal("expected m2 retained")
	}
	if _, ok := reg.Get(m3.ID); !ok {
		t.Fatal("expected m3 retained")
	}
}

func TestMissionStateTerminalClassification(t *testing.T) {
	for _, s := range []MissionState{StateCompleted, StateFailed, StateTimedOut} {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []MissionState{StatePending, StateAwaitingScout, StateAwaitingHazard} {
		if s.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}
