package core

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Phase is one stage of the bounded 0->9->0 cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIngest
	PhaseParse
	PhaseCrystallize
	PhaseDiffuse
	PhaseConverge
	PhaseVerify
	PhaseCommit
	PhaseReflect
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseIngest:
		return "INGEST"
	case PhaseParse:
		return "PARSE"
	case PhaseCrystallize:
		return "CRYSTALLIZE"
	case PhaseDiffuse:
		return "DIFFUSE"
	case PhaseConverge:
		return "CONVERGE"
	case PhaseVerify:
		return "VERIFY"
	case PhaseCommit:
		return "COMMIT"
	case PhaseReflect:
		return "REFLECT"
	default:
		return "UNKNOWN"
	}
}

// phaseOrder is the fixed, bounded sequence every forge call traverses.
var phaseOrder = []Phase{
	PhaseIdle, PhaseIngest, PhaseParse, PhaseCrystallize, PhaseDiffuse,
	PhaseConverge, PhaseVerify, PhaseCommit, PhaseReflect, PhaseIdle,
}

// PhaseMachine enforces the bounded cycle and carries the operation counter
// the Forge VM ticks against its execution budget. One machine exists per
// kernel; a single forge call occupies the full cycle.
type PhaseMachine struct {
	mu      sync.Mutex
	current Phase
	opCount int
}

// NewPhaseMachine returns a machine initialised to IDLE.
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{current: PhaseIdle}
}

// Current returns the current phase.
func (pm *PhaseMachine) Current() Phase {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current
}

// CanMutateState is true only during COMMIT, the single phase in which an
// instance's state map is actually swapped for a forge call's result.
func (pm *PhaseMachine) CanMutateState() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current == PhaseCommit
}

// Advance moves the machine to the next phase in phaseOrder. Arbitrary skips
// raise PhaseError; the caller is expected to force IDLE on any fault.
func (pm *PhaseMachine) Advance() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	next, ok := nextPhase(pm.current)
	if !ok {
		return &PhaseError{From: pm.current, To: pm.current}
	}
	log.WithFields(log.Fields{"from": pm.current.String(), "to": next.String()}).Debug("phase advance")
	pm.current = next
	return nil
}

// TransitionTo advances directly to a named phase, validating that it is the
// single legal next step; anything else is a PhaseError.
func (pm *PhaseMachine) TransitionTo(to Phase) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	next, ok := nextPhase(pm.current)
	if !ok || next != to {
		err := &PhaseError{From: pm.current, To: to}
		log.WithError(err).Warn("illegal phase transition")
		return err
	}
	pm.current = to
	return nil
}

func nextPhase(from Phase) (Phase, bool) {
	for i, p := range phaseOrder {
		if p == from && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return PhaseIdle, false
}

// Reset forces the machine back to IDLE unconditionally; used on the exit
// paths of a forge call (illegal transition, finfr, and after REFLECT) so the
// kernel never observes a stuck non-IDLE phase.
func (pm *PhaseMachine) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.current != PhaseIdle {
		log.WithField("from", pm.current.String()).Debug("phase reset to IDLE")
	}
	pm.current = PhaseIdle
}

// Tick increments the bounded-execution operation counter and returns the new
// total. The Forge VM calls this on every interpreted step.
func (pm *PhaseMachine) Tick() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.opCount++
	return pm.opCount
}

// ResetOpCount zeroes the operation counter; called once per forge call scope.
func (pm *PhaseMachine) ResetOpCount() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.opCount = 0
}
