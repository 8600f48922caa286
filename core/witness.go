package core

import "fmt"

// TStar identifies when in the cycle a finfr was decided.
type TStar string

const (
	TStarPre  TStar = "pre"
	TStarExec TStar = "exec"
	TStarPost TStar = "post"
)

// Violation is one firing law recorded in a Witness.
type Violation struct {
	Law     string   `json:"law"`
	Clauses []string `json:"clauses"`
	Reason  string   `json:"reason"`
	Line    int      `json:"line"`
}

// Witness is the structured explanation of a finfr. Never
// mutated once produced.
type Witness struct {
	TStar      TStar                  `json:"t_star"`
	State      map[string]TaggedValue `json:"x_star"`
	Violations []Violation            `json:"violated"`
	NormalHint string                 `json:"normal_hint"`
}

// repairHints maps a normalized failure reason to a repair suggestion, one
// entry per KernelError kind that a forge's execution can raise (parse,
// phase, chain-corruption and law-violation kinds have no entry);
// repairHint falls back to a generic per-law hint for reasons not listed here.
var repairHints = map[string]string{
	string(KindDivisionByZero):  "ensure denominator > 0",
	string(KindDimensionError):  "use matching dimensions or convert explicitly before combining values",
	string(KindBoundExceeded):   "reduce forge complexity or raise the configured execution budget",
	string(KindNaN):             "construct values from finite numeric payloads only",
	string(KindCountNotInteger): "round or adjust the operands so the Count result is a whole number",
	string(KindUnknownIdent):    "bind the identifier with memo or declare the field before use",
	string(KindRuntime):         "inspect the forge body for the failing expression",
}

// repairHint returns the hint for a reason string, falling back to a generic
// per-law hint.
func repairHint(reason, lawName string) string {
	if h, ok := repairHints[reason]; ok {
		return h
	}
	return fmt.Sprintf("satisfy law `%s` before proceeding", lawName)
}

// describeClause renders a clause for the witness's human-readable log.
func describeClause(c Clause) string {
	switch c.Cond.Kind {
	case CondRequestIs:
		return fmt.Sprintf("request is :%s", c.Cond.Symbol)
	case CondCompare:
		return fmt.Sprintf("%s %s %s", describeExpr(c.Cond.L), c.Cond.CmpOp, describeExpr(c.Cond.R))
	default:
		return "<clause>"
	}
}

func describeExpr(e *Expr) string {
	if e == nil {
		return "?"
	}
	switch e.Kind {
	case ExprNumber:
		return fmt.Sprintf("%g", e.Number)
	case ExprString:
		return fmt.Sprintf("%q", e.Str)
	case ExprSymbol:
		return ":" + e.Str
	case ExprFieldRef:
		return "@" + e.Str
	case ExprIdentRef:
		return e.Str
	case ExprTypeConstruct:
		return fmt.Sprintf("%s(%s)", e.Str, describeExpr(e.Arg))
	case ExprBinary:
		return fmt.Sprintf("%s %s %s", describeExpr(e.L), e.Str, describeExpr(e.R))
	case ExprCall:
		return e.Str + "(...)"
	default:
		return "<expr>"
	}
}

func cloneState(state map[string]TaggedValue) map[string]TaggedValue {
	out := make(map[string]TaggedValue, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
