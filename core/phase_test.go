package core

import "testing"

/*
	--------------------------------------------------------------------
	Bounded 0->9->0 cycle enforcement
	--------------------------------------------------------------------
*/

func TestPhaseMachine_HappyPathCycle(t *testing.T) {
	t.Parallel()

	pm := NewPhaseMachine()
	if pm.Current() != PhaseIdle {
		t.Fatalf("initial phase = %v, want IDLE", pm.Current())
	}
	if pm.CanMutateState() {
		t.Fatalf("CanMutateState() at IDLE = true, want false")
	}

	order := []Phase{
		PhaseIngest, PhaseParse, PhaseCrystallize, PhaseDiffuse,
		PhaseConverge, PhaseVerify, PhaseCommit, PhaseReflect, PhaseIdle,
	}
	for _, want := range order {
		if err := pm.Advance(); err != nil {
			t.Fatalf("Advance() to %v: %v", want, err)
		}
		if pm.Current() != want {
			t.Fatalf("Current() = %v, want %v", pm.Current(), want)
		}
		if want == PhaseCommit && !pm.CanMutateState() {
			t.Errorf("CanMutateState() at COMMIT = false, want true")
		}
		if want != PhaseCommit && pm.CanMutateState() {
			t.Errorf("CanMutateState() at %v = true, want false", want)
		}
	}
}

func TestPhaseMachine_TransitionTo_RejectsSkip(t *testing.T) {
	t.Parallel()

	pm := NewPhaseMachine()
	err := pm.TransitionTo(PhaseCrystallize)
	if _, ok := err.(*PhaseError); !ok {
		t.Fatalf("TransitionTo(CRYSTALLIZE) from IDLE = %v, want *PhaseError", err)
	}
	if pm.Current() != PhaseIdle {
		t.Fatalf("phase advanced despite illegal skip: %v", pm.Current())
	}
}

func TestPhaseMachine_Reset_ForcesIdleFromAnyPhase(t *testing.T) {
	t.Parallel()

	pm := NewPhaseMachine()
	for i := 0; i < 4; i++ {
		if err := pm.Advance(); err != nil {
			t.Fatalf("Advance(): %v", err)
		}
	}
	if pm.Current() == PhaseIdle {
		t.Fatalf("test setup: expected a non-IDLE phase before Reset")
	}
	pm.Reset()
	if pm.Current() != PhaseIdle {
		t.Fatalf("Reset() left phase at %v, want IDLE", pm.Current())
	}
}

func TestPhaseMachine_OpCounter(t *testing.T) {
	t.Parallel()

	pm := NewPhaseMachine()
	if n := pm.Tick(); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
	if n := pm.Tick(); n != 2 {
		t.Fatalf("Tick() = %d, want 2", n)
	}
	pm.ResetOpCount()
	if n := pm.Tick(); n != 1 {
		t.Fatalf("Tick() after ResetOpCount() = %d, want 1", n)
	}
}

func TestPhaseMachine_AdvancePastIdle_WrapsToIngest(t *testing.T) {
	t.Parallel()

	pm := NewPhaseMachine()
	full := len([]Phase{
		PhaseIngest, PhaseParse, PhaseCrystallize, PhaseDiffuse,
		PhaseConverge, PhaseVerify, PhaseCommit, PhaseReflect, PhaseIdle,
	})
	for i := 0; i < full; i++ {
		if err := pm.Advance(); err != nil {
			t.Fatalf("Advance() step %d: %v", i, err)
		}
	}
	if pm.Current() != PhaseIdle {
		t.Fatalf("after a full cycle, phase = %v, want IDLE", pm.Current())
	}
	if err := pm.Advance(); err != nil {
		t.Fatalf("Advance() from IDLE to start a new cycle: %v", err)
	}
	if pm.Current() != PhaseIngest {
		t.Fatalf("Advance() from IDLE = %v, want INGEST", pm.Current())
	}
}
