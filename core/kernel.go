package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Kernel is the boundary API's single entry point: load, verify, run,
// run_sequence, state, omega, ledger, reset, export_ledger, replay_ledger.
// One Kernel owns exactly one Instance; concurrent calls that read or replace
// the instance's state serialize through callMu, so at most one forge call is
// in flight per instance.
type Kernel struct {
	bp   *Blueprint
	inst *Instance

	callMu sync.Mutex
	// verifyGroup dedupes concurrent identical verify() calls only.
	verifyGroup singleflight.Group
}

// Load parses source text and returns a Kernel for the first declared
// blueprint. A non-empty ParseFailure means no Instance was created; partial
// blueprints are not admitted. Sources declaring several blueprints are
// hosted by LoadAll's Registry; Load is the single-blueprint convenience
// over it.
func Load(source string, override KernelConfig) (*Kernel, error) {
	reg, err := LoadAll(source, override)
	if err != nil {
		return nil, err
	}
	return reg.first(), nil
}

// Verify runs the read-only admissibility check against current state for a
// given request symbol, without touching the ledger or the Phase Machine.
func (k *Kernel) Verify(request string) (RunStatus, *Witness) {
	callID := uuid.New().String()
	key := request
	v, _, shared := k.verifyGroup.Do(key, func() (interface{}, error) {
		k.callMu.Lock()
		state := k.inst.State()
		k.callMu.Unlock()
		status, w := VerifyState(k.bp, state, request, TStarPre, k.inst.Config.RatioEpsilon)
		return struct {
			status RunStatus
			w      *Witness
		}{status, w}, nil
	})
	pair := v.(struct {
		status RunStatus
		w      *Witness
	})
	log.WithFields(log.Fields{"instance_id": k.inst.ID, "call_id": callID, "request": request, "status": pair.status, "coalesced": shared}).Debug("verify")
	return pair.status, pair.w
}

// Run invokes a named forge with the given arguments and appends exactly one
// ledger entry for the call, fin or finfr. The Phase Machine passes INGEST
// through VERIFY on every call; a fin then passes COMMIT and REFLECT, while a
// finfr returns to IDLE from VERIFY without entering COMMIT or REFLECT.
func (k *Kernel) Run(forgeName string, args map[string]TaggedValue) (*ForgeResult, error) {
	k.callMu.Lock()
	defer k.callMu.Unlock()

	callID := uuid.New().String()

	// Chain-verification failure is terminal: once the ledger
	// is known corrupt, the kernel refuses further commits and must be
	// reloaded from a clean export rather than keep extending a broken chain.
	if chain := k.inst.ledger.VerifyChain(); !chain.Valid {
		return nil, &ChainCorruption{BrokenAt: chain.BrokenAt, Reason: chain.Reason}
	}

	forge, ok := k.bp.ForgeByName(forgeName)
	if !ok {
		return nil, fmt.Errorf("run: unknown forge %q", forgeName)
	}

	pm := k.inst.phase
	pm.Reset()
	pm.ResetOpCount()
	for _, ph := range []Phase{PhaseIngest, PhaseParse, PhaseCrystallize, PhaseDiffuse, PhaseConverge, PhaseVerify} {
		if err := pm.TransitionTo(ph); err != nil {
			pm.Reset()
			return nil, err
		}
	}

	before := k.inst.State()
	result := VerifyForge(k.bp, forge, before, args, k.inst.Config, pm)

	if result.Status == StatusFin {
		if err := pm.TransitionTo(PhaseCommit); err != nil {
			pm.Reset()
			return nil, err
		}
		k.inst.state = result.NewState
		k.inst.ledger.Append(forgeName, args, StatusFin, before, result.NewState, result.Reply, nil)
		if err := pm.TransitionTo(PhaseReflect); err != nil {
			log.WithError(err).Error("phase machine failed to reach REFLECT after commit")
		}
		pm.Reset()
		log.WithFields(log.Fields{"instance_id": k.inst.ID, "call_id": callID, "forge": forgeName, "status": result.Status}).Info("run committed")
		return result, nil
	}

	k.inst.ledger.Append(forgeName, args, StatusFinfr, before, before, nil, result.Witness)
	pm.Reset()
	log.WithFields(log.Fields{"instance_id": k.inst.ID, "call_id": callID, "forge": forgeName, "status": result.Status}).Warn("run rejected")
	return result, nil
}

// ForgeCall is one step of a run_sequence batch.
type ForgeCall struct {
	Forge string
	Args  map[string]TaggedValue
}

// RunSequence executes calls in order, honoring stop_on_finfr: when true, the first finfr halts the
// batch and later calls are not attempted.
func (k *Kernel) RunSequence(calls []ForgeCall, stopOnFinfr bool) ([]*ForgeResult, error) {
	results := make([]*ForgeResult, 0, len(calls))
	for _, c := range calls {
		r, err := k.Run(c.Forge, c.Args)
		if err != nil {
			return results, err
		}
		results = append(results, r)
		if stopOnFinfr && r.Status == StatusFinfr {
			break
		}
	}
	return results, nil
}

// State returns a defensive copy of current field state.
func (k *Kernel) State() map[string]TaggedValue {
	k.callMu.Lock()
	defer k.callMu.Unlock()
	return k.inst.State()
}

// LawDescriptor is one entry of Omega's introspection surface.
type LawDescriptor struct {
	Name    string
	Outcome Outcome
	Clauses []string
}

// Omega returns a description of every law bound to the loaded blueprint, in
// declaration order.
func (k *Kernel) Omega() []LawDescriptor {
	out := make([]LawDescriptor, len(k.bp.Laws))
	for i, law := range k.bp.Laws {
		clauses := make([]string, len(law.Clauses))
		for j, c := range law.Clauses {
			clauses[j] = describeClause(c)
		}
		out[i] = LawDescriptor{Name: law.Name, Outcome: law.Outcome, Clauses: clauses}
	}
	return out
}

// Ledger returns the instance's ledger entries.
func (k *Kernel) Ledger() []LedgerEntry { return k.inst.ledger.Entries() }

// VerifyChain exposes the instance's ledger integrity check.
func (k *Kernel) VerifyChain() ChainResult { return k.inst.ledger.VerifyChain() }

// Reset forces the Phase Machine back to IDLE and zeroes its operation
// counter without touching state or the ledger.
func (k *Kernel) Reset() {
	k.callMu.Lock()
	defer k.callMu.Unlock()
	k.inst.phase.Reset()
	k.inst.phase.ResetOpCount()
}

// Snapshot captures the current ledger index plus a deep copy of state; the
// caller holds it and may Restore later.
func (k *Kernel) Snapshot() Snapshot {
	k.callMu.Lock()
	defer k.callMu.Unlock()
	return k.inst.ledger.MakeSnapshot(k.inst.state)
}

// Restore rewinds the instance's state to a previously captured snapshot.
// The ledger is never truncated: restoration appends a `<restore>` diff entry
// recording the state swap.
func (k *Kernel) Restore(snap Snapshot) error {
	k.callMu.Lock()
	defer k.callMu.Unlock()
	restored, err := k.inst.ledger.Restore(snap, k.inst.state)
	if err != nil {
		return err
	}
	k.inst.state = restored
	log.WithFields(log.Fields{"instance_id": k.inst.ID, "snapshot_index": snap.Index}).Info("state restored from snapshot")
	return nil
}

// RollbackTo performs a logical rollback:
// it replays a fresh Kernel from the genesis-through-index prefix of the
// ledger against the same Blueprint, producing a new kernel with the state
// as of that index. The receiver is left untouched; the caller swaps to the
// returned Kernel, since ledger truncation is never permitted in place.
func (k *Kernel) RollbackTo(index int) (*Kernel, error) {
	k.callMu.Lock()
	defer k.callMu.Unlock()

	prefix, err := k.inst.ledger.PrefixThrough(index)
	if err != nil {
		return nil, fmt.Errorf("rollback_to: %w", err)
	}
	rolled := &Ledger{cfg: k.inst.Config}
	for _, e := range prefix {
		rolled.appendLocked(entryData{
			Forge: e.Forge, Args: e.Args, PreState: e.StateBefore, PostState: e.StateAfter,
			Status: e.Status, Reply: e.Reply, Witness: e.Witness,
		})
	}
	var state map[string]TaggedValue
	if index == 0 {
		fresh, err := NewInstance(k.bp, k.inst.Config)
		if err != nil {
			return nil, fmt.Errorf("rollback_to: rebuilding genesis state: %w", err)
		}
		state = fresh.state
	} else {
		state = cloneState(prefix[len(prefix)-1].StateAfter)
	}
	inst := &Instance{
		Blueprint: k.bp,
		Config:    k.inst.Config,
		ID:        uuid.New().String(),
		state:     state,
		ledger:    rolled,
		phase:     NewPhaseMachine(),
	}
	log.WithFields(log.Fields{"index": index, "instance_id": inst.ID}).Info("rollback_to produced a new kernel instance")
	return &Kernel{bp: k.bp, inst: inst}, nil
}

// ExportLedger serializes the ledger plus the current state snapshot.
func (k *Kernel) ExportLedger() ([]byte, error) {
	k.callMu.Lock()
	defer k.callMu.Unlock()
	return k.inst.ledger.Export(k.inst.state)
}

// ReplayLedger reconstructs a Kernel from exported bytes against the same
// Blueprint. The caller must load the matching blueprint source first;
// replay never reconstructs a Blueprint from ledger data alone, since
// law/forge source is not itself part of the ledger.
func ReplayLedger(bp *Blueprint, data []byte, cfg KernelConfig) (*Kernel, error) {
	ledger, finalState, err := Replay(data, cfg)
	if err != nil {
		return nil, err
	}
	if chain := ledger.VerifyChain(); !chain.Valid {
		return nil, &ChainCorruption{BrokenAt: chain.BrokenAt, Reason: chain.Reason}
	}
	inst := &Instance{
		Blueprint: bp,
		Config:    cfg,
		ID:        uuid.New().String(),
		state:     finalState,
		ledger:    ledger,
		phase:     NewPhaseMachine(),
	}
	return &Kernel{bp: bp, inst: inst}, nil
}
