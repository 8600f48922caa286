package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Instance is a live, stateful binding of a Blueprint: one field-state map,
// one Ledger, one PhaseMachine. State and ledger belong to exactly one
// instance; two instances of the same blueprint never share either.
type Instance struct {
	Blueprint *Blueprint
	Config    KernelConfig
	// ID is a process-local correlation id for this instance, echoed
	// alongside each call's own id in kernel.go's structured logs so a
	// multi-instance deployment can tell which instance a log line belongs
	// to without threading the blueprint name through every log call.
	ID     string
	state  map[string]TaggedValue
	ledger *Ledger
	phase  *PhaseMachine
}

// zeroValue returns a field's unset-default payload: dimension-appropriate
// zero, used when a field declares no "default" clause.
func zeroValue(dim Dimension) TaggedValue {
	switch dim {
	case DimText:
		return Text("")
	case DimBool:
		return Bool(false)
	case DimSymbol:
		return Symbol("")
	case DimCount:
		return Count(0)
	default:
		return TaggedValue{Dim: dim, Num: 0}
	}
}

// NewInstance materialises a compiled Blueprint's initial state. Every
// field's default expression is evaluated once against an empty scope, so
// defaults may reference only literals and type constructors, never another
// field.
func NewInstance(bp *Blueprint, cfg KernelConfig) (*Instance, error) {
	state := make(map[string]TaggedValue, len(bp.Fields))
	ctx := &evalCtx{state: map[string]TaggedValue{}, locals: map[string]TaggedValue{}, ratioEpsilon: cfg.RatioEpsilon}
	for _, f := range bp.Fields {
		if f.Default == nil {
			state[f.Name] = zeroValue(f.Dim)
			continue
		}
		v, err := eval(f.Default, ctx)
		if err != nil {
			return nil, fmt.Errorf("field %s default: %w", f.Name, err)
		}
		if v.Dim != f.Dim {
			return nil, NewKernelError(KindDimensionError, "field "+f.Name+" default does not match declared dimension").AtLine(f.Line)
		}
		state[f.Name] = v
	}
	return &Instance{
		Blueprint: bp,
		Config:    cfg,
		ID:        uuid.New().String(),
		state:     state,
		ledger:    NewLedger(cfg),
		phase:     NewPhaseMachine(),
	}, nil
}

// State returns a defensive deep copy of the instance's current field state.
func (inst *Instance) State() map[string]TaggedValue {
	return cloneState(inst.state)
}

// Ledger exposes the instance's append-only ledger.
func (inst *Instance) Ledger() *Ledger { return inst.ledger }

// Phase exposes the current Phase Machine position for diagnostics.
func (inst *Instance) Phase() Phase { return inst.phase.Current() }
