package core

import "sync"

// builtinFn is a VM-callable primitive.
type builtinFn func(args []TaggedValue, ctx *evalCtx, line int) (TaggedValue, error)

var (
	builtinsOnce sync.Once
	builtins     map[string]builtinFn
)

// builtinRegistry lazily builds the name->implementation table exactly once
// per process. The table is immutable built-in dispatch rather than mutable
// state, so a process-global registry is safe; nothing here is
// instance-scoped.
func builtinRegistry() map[string]builtinFn {
	builtinsOnce.Do(func() {
		builtins = map[string]builtinFn{
			"abs":     builtinAbs,
			"sqrt":    builtinSqrt,
			"as_real": builtinAsReal,
			"ratio":   builtinRatio,
		}
	})
	return builtins
}

func builtinAbs(args []TaggedValue, _ *evalCtx, line int) (TaggedValue, error) {
	if len(args) != 1 {
		return TaggedValue{}, NewKernelError(KindRuntime, "abs takes 1 argument").AtLine(line)
	}
	out := Abs(args[0])
	if out.IsError() {
		return out, NewKernelError(out.ErrKind(), "abs failed").AtLine(line)
	}
	return out, nil
}

func builtinSqrt(args []TaggedValue, _ *evalCtx, line int) (TaggedValue, error) {
	if len(args) != 1 {
		return TaggedValue{}, NewKernelError(KindRuntime, "sqrt takes 1 argument").AtLine(line)
	}
	out := Sqrt(args[0])
	if out.IsError() {
		return out, NewKernelError(out.ErrKind(), "sqrt of negative").AtLine(line)
	}
	return out, nil
}

func builtinAsReal(args []TaggedValue, _ *evalCtx, line int) (TaggedValue, error) {
	if len(args) != 1 {
		return TaggedValue{}, NewKernelError(KindRuntime, "as_real takes 1 argument").AtLine(line)
	}
	out := AsReal(args[0])
	if out.IsError() {
		return out, NewKernelError(out.ErrKind(), "as_real failed").AtLine(line)
	}
	return out, nil
}

func builtinRatio(args []TaggedValue, ctx *evalCtx, line int) (TaggedValue, error) {
	if len(args) < 2 || len(args) > 3 {
		return TaggedValue{}, NewKernelError(KindRuntime, "ratio takes 2 or 3 arguments").AtLine(line)
	}
	threshold := 1.0
	if len(args) == 3 {
		threshold = args[2].Num
	}
	out, signal := RatioCheck(args[0].Num, args[1].Num, threshold, ctx.epsilon())
	if signal == RatioUndefined {
		return out, NewKernelError(KindDivisionByZero, "ratio undefined").AtLine(line)
	}
	return out, nil
}
