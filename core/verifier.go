package core

// RunStatus is the admissibility verdict returned across the API boundary.
type RunStatus string

const (
	StatusFin   RunStatus = "fin"
	StatusFinfr RunStatus = "finfr"
)

// VerifyState decides admissibility of state+request against every
// finfr-outcome law on bp. Laws are evaluated in declaration order and
// every firing law is collected; the verifier never short-circuits
// collection at pre-check or post-check.
func VerifyState(bp *Blueprint, state map[string]TaggedValue, request string, tstar TStar, ratioEpsilon float64) (RunStatus, *Witness) {
	var violations []Violation
	for _, law := range bp.Laws {
		if law.Outcome != OutcomeFinfr {
			continue
		}
		fires, err := law.predicate(state, request, ratioEpsilon)
		switch {
		case err != nil:
			violations = append(violations, Violation{
				Law:    "<runtime>",
				Reason: err.Error(),
				Line:   law.Line,
			})
		case fires:
			clauses := make([]string, len(law.Clauses))
			for i, c := range law.Clauses {
				clauses[i] = describeClause(c)
			}
			violations = append(violations, Violation{
				Law:     law.Name,
				Clauses: clauses,
				Reason:  "law fired",
				Line:    law.Line,
			})
		}
	}
	if len(violations) == 0 {
		return StatusFin, nil
	}
	hint := repairHint(violations[0].Reason, violations[0].Law)
	return StatusFinfr, &Witness{
		TStar:      tstar,
		State:      cloneState(state),
		Violations: violations,
		NormalHint: hint,
	}
}

// ForgeResult is the outcome of verify_forge.
type ForgeResult struct {
	Status       RunStatus
	Witness      *Witness
	NewState     map[string]TaggedValue
	Reply        *TaggedValue
	ViolatedLaws []string
}

func violatedNames(w *Witness) []string {
	if w == nil {
		return nil
	}
	names := make([]string, len(w.Violations))
	for i, v := range w.Violations {
		names[i] = v.Law
	}
	return names
}

// VerifyForge implements verify_forge: pre-check, simulate,
// post-check, in that order, never mutating the instance's own state map
// directly (the Forge VM clones on entry and the caller swaps the pointer
// only on a clean `fin`).
func VerifyForge(bp *Blueprint, forge *Forge, state map[string]TaggedValue, args map[string]TaggedValue, cfg KernelConfig, pm *PhaseMachine) *ForgeResult {
	requestSym := ""
	if forge.hasRequest {
		requestSym = forge.requestSymbol
	}

	if status, w := VerifyState(bp, state, requestSym, TStarPre, cfg.RatioEpsilon); status == StatusFinfr {
		return &ForgeResult{Status: StatusFinfr, Witness: w, NewState: state, ViolatedLaws: violatedNames(w)}
	}

	working, reply, execErr := RunForgeVM(forge, state, args, cfg, pm)
	if execErr != nil {
		ke, _ := execErr.(*KernelError)
		reason := execErr.Error()
		line := 0
		if ke != nil {
			line = ke.Line
		}
		w := &Witness{
			TStar: TStarExec,
			State: cloneState(working),
			Violations: []Violation{{
				Law:    "<runtime>",
				Reason: reason,
				Line:   line,
			}},
		}
		w.NormalHint = repairHint(reason, "<runtime>")
		if ke != nil {
			w.NormalHint = repairHint(string(ke.Kind), "<runtime>")
		}
		return &ForgeResult{Status: StatusFinfr, Witness: w, NewState: state, ViolatedLaws: []string{"<runtime>"}}
	}

	if status, w := VerifyState(bp, working, "", TStarPost, cfg.RatioEpsilon); status == StatusFinfr {
		return &ForgeResult{Status: StatusFinfr, Witness: w, NewState: state, ViolatedLaws: violatedNames(w)}
	}

	return &ForgeResult{Status: StatusFin, NewState: working, Reply: reply}
}
