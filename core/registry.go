package core

import (
	"fmt"
	"sync"
)

// Registry hosts one Kernel per blueprint declared in a source text, keyed by
// blueprint name: every boundary operation addresses its blueprint by name,
// so a multi-blueprint load needs a name-indexed surface.
// Each blueprint's Instance, ledger and Phase Machine remain exclusively its
// own; the registry only routes calls.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]*Kernel
	order   []string
}

// LoadAll parses source text, compiles every declared blueprint, and creates
// one fresh Kernel per blueprint. Any parse error rejects the whole source;
// partial blueprints are not admitted.
func LoadAll(source string, override KernelConfig) (*Registry, error) {
	blueprints, errs := Parse(source)
	if len(errs) > 0 {
		return nil, &ParseFailure{Errors: errs}
	}
	if len(blueprints) == 0 {
		return nil, fmt.Errorf("load: source declares no blueprint")
	}

	cfg := DefaultKernelConfig().Merge(override)
	r := &Registry{kernels: make(map[string]*Kernel, len(blueprints))}
	for _, bp := range blueprints {
		if _, dup := r.kernels[bp.Name]; dup {
			return nil, fmt.Errorf("load: duplicate blueprint %q", bp.Name)
		}
		CompileBlueprint(bp)
		inst, err := NewInstance(bp, cfg)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", bp.Name, err)
		}
		r.kernels[bp.Name] = &Kernel{bp: bp, inst: inst}
		r.order = append(r.order, bp.Name)
	}
	return r, nil
}

// Names returns the blueprint names in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Kernel returns the kernel hosting the named blueprint.
func (r *Registry) Kernel(blueprint string) (*Kernel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[blueprint]
	if !ok {
		return nil, fmt.Errorf("unknown blueprint %q", blueprint)
	}
	return k, nil
}

func (r *Registry) first() *Kernel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kernels[r.order[0]]
}

// Run invokes a forge on the named blueprint's instance.
func (r *Registry) Run(blueprint, forge string, args map[string]TaggedValue) (*ForgeResult, error) {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return nil, err
	}
	return k.Run(forge, args)
}

// Verify checks admissibility of the named blueprint's current state.
func (r *Registry) Verify(blueprint, request string) (RunStatus, *Witness, error) {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return "", nil, err
	}
	status, w := k.Verify(request)
	return status, w, nil
}

// State returns the named blueprint's current field state.
func (r *Registry) State(blueprint string) (map[string]TaggedValue, error) {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return nil, err
	}
	return k.State(), nil
}

// Omega lists the named blueprint's laws in declaration order.
func (r *Registry) Omega(blueprint string) ([]LawDescriptor, error) {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return nil, err
	}
	return k.Omega(), nil
}

// Ledger returns the named blueprint's ledger entries.
func (r *Registry) Ledger(blueprint string) ([]LedgerEntry, error) {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return nil, err
	}
	return k.Ledger(), nil
}

// Reset forces the named blueprint's Phase Machine back to IDLE.
func (r *Registry) Reset(blueprint string) error {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return err
	}
	k.Reset()
	return nil
}

// ExportLedger serializes the named blueprint's ledger and state.
func (r *Registry) ExportLedger(blueprint string) ([]byte, error) {
	k, err := r.Kernel(blueprint)
	if err != nil {
		return nil, err
	}
	return k.ExportLedger()
}
