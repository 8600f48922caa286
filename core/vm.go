package core

import "time"

// RunForgeVM simulates a forge body against a cloned working copy of state.
// It never mutates the caller's state map; the caller swaps the instance's
// state pointer only after a clean post-check, so a runtime fault anywhere
// in the body leaves the instance untouched.
func RunForgeVM(forge *Forge, state map[string]TaggedValue, args map[string]TaggedValue, cfg KernelConfig, pm *PhaseMachine) (map[string]TaggedValue, *TaggedValue, error) {
	working := cloneState(state)
	locals := make(map[string]TaggedValue, len(forge.Params))

	for _, param := range forge.Params {
		v, ok := args[param.Name]
		if !ok {
			return working, nil, NewKernelError(KindRuntime, "missing argument "+param.Name)
		}
		if v.Dim != param.Dim {
			return working, nil, NewKernelError(KindDimensionError, "argument "+param.Name+" expected "+string(param.Dim))
		}
		locals[param.Name] = v
	}

	counter := &budgetCounter{
		maxIter:  cfg.MaxIterations,
		maxDepth: cfg.MaxRecursionDepth,
		maxOps:   cfg.MaxOperations,
		phase:    pm,
	}
	deadline := time.Now().Add(time.Duration(cfg.TimeoutSeconds * float64(time.Second)))

	var reply *TaggedValue
	for _, stmt := range forge.Body {
		if time.Now().After(deadline) {
			return working, reply, NewKernelError(KindBoundExceeded, "wall-time budget exceeded").AtLine(stmt.Line)
		}
		if err := counter.tick(); err != nil {
			return working, reply, err.(*KernelError).AtLine(stmt.Line)
		}

		ctx := &evalCtx{state: working, locals: locals, counter: counter, ratioEpsilon: cfg.RatioEpsilon}
		switch stmt.Kind {
		case StmtFieldAssign:
			v, err := eval(&stmt.Expr, ctx)
			if err != nil {
				return working, reply, err
			}
			if !checkFieldDim(working, stmt.Name, v) {
				return working, reply, NewKernelError(KindDimensionError, "assignment to @"+stmt.Name+" changes dimension").AtLine(stmt.Line)
			}
			working[stmt.Name] = v

		case StmtMemoAssign:
			v, err := eval(&stmt.Expr, ctx)
			if err != nil {
				return working, reply, err
			}
			locals[stmt.Name] = v

		case StmtRequest:
			// Statically captured by the parser for the verifier's
			// pre-check; executing it is a no-op.

		case StmtReply:
			v, err := eval(&stmt.Expr, ctx)
			if err != nil {
				return working, reply, err
			}
			if forge.HasResult && v.Dim != forge.ResultDim {
				// A dimension-mismatched reply is rejected here, at exec
				// time, rather than at parse time: the parser cannot know
				// the runtime dimension of an arbitrary expression.
				return working, reply, NewKernelError(KindDimensionError, "reply dimension does not match forge result type").AtLine(stmt.Line)
			}
			vv := v
			reply = &vv

		case StmtExpr:
			if _, err := eval(&stmt.Expr, ctx); err != nil {
				return working, reply, err
			}
		}
	}

	return working, reply, nil
}

// checkFieldDim reports whether assigning v to an existing field name keeps
// its dimension stable. A field not yet present (first write) is always
// allowed; an existing field must keep the same dimension across writes.
func checkFieldDim(state map[string]TaggedValue, name string, v TaggedValue) bool {
	existing, ok := state[name]
	if !ok {
		return true
	}
	return existing.Dim == v.Dim
}
