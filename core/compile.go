package core

// CompileLaw compiles a Law's clause list into a pure predicate function
// (state, request) -> bool, true iff every clause holds. A clause evaluation
// fault is surfaced to the caller as an error so the verifier can record it
// as a runtime violation, rather than silently resolving to false.
func CompileLaw(law *Law) {
	clauses := law.Clauses
	law.predicate = func(state map[string]TaggedValue, request string, ratioEpsilon float64) (bool, error) {
		if len(clauses) == 0 {
			// A law with zero clauses always fires; its outcome applies
			// unconditionally.
			return true, nil
		}
		for _, c := range clauses {
			ok, err := evalClause(c, state, request, ratioEpsilon)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

func evalClause(c Clause, state map[string]TaggedValue, request string, ratioEpsilon float64) (bool, error) {
	switch c.Cond.Kind {
	case CondRequestIs:
		// Request-dependent clauses only fire during pre-check, when a
		// request symbol is in scope; during post-check `request` is "" and
		// this always evaluates false.
		return request != "" && request == c.Cond.Symbol, nil
	case CondCompare:
		ctx := &evalCtx{state: state, locals: map[string]TaggedValue{}, ratioEpsilon: ratioEpsilon}
		l, err := eval(c.Cond.L, ctx)
		if err != nil {
			return false, err
		}
		r, err := eval(c.Cond.R, ctx)
		if err != nil {
			return false, err
		}
		result, err := compareByOp(c.Cond.CmpOp, l, r)
		if err != nil {
			return false, err
		}
		if result.IsError() {
			return false, NewKernelError(result.ErrKind(), "clause comparison failed").AtLine(c.Line)
		}
		return result.B, nil
	default:
		return false, NewKernelError(KindRuntime, "unknown clause kind")
	}
}

func compareByOp(op string, l, r TaggedValue) (TaggedValue, error) {
	switch op {
	case "<":
		return Lt(l, r), nil
	case "<=":
		return Le(l, r), nil
	case ">":
		return Gt(l, r), nil
	case ">=":
		return Ge(l, r), nil
	case "==":
		return Eq(l, r), nil
	case "!=":
		eq := Eq(l, r)
		if eq.IsError() {
			return eq, nil
		}
		return Bool(!eq.B), nil
	default:
		return TaggedValue{}, NewKernelError(KindRuntime, "unknown comparison operator "+op)
	}
}

// CompileBlueprint compiles every law on a freshly-parsed Blueprint. Called
// once at load time; laws are immutable once compiled.
func CompileBlueprint(bp *Blueprint) {
	for i := range bp.Laws {
		CompileLaw(&bp.Laws[i])
	}
}
