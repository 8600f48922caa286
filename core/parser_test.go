package core

import "testing"

/*
	--------------------------------------------------------------------
	Happy-path blueprint parsing
	--------------------------------------------------------------------
*/

const bankAccountSource = `
blueprint BankAccount
  field @balance: Money default Money(0)

  law no_overdraft
    when @balance < Money(0)
  finfr

  forge deposit(amount: Money) -> Money
    @balance = @balance + amount
    reply @balance
  end
end
`

func TestParse_BankAccount(t *testing.T) {
	t.Parallel()

	bps, errs := Parse(bankAccountSource)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none", errs)
	}
	if len(bps) != 1 {
		t.Fatalf("Parse() blueprints = %d, want 1", len(bps))
	}

	bp := bps[0]
	if bp.Name != "BankAccount" {
		t.Errorf("Name = %q, want BankAccount", bp.Name)
	}
	if len(bp.Fields) != 1 || bp.Fields[0].Name != "balance" || bp.Fields[0].Dim != DimMoney {
		t.Fatalf("Fields = %+v, want one Money field named balance", bp.Fields)
	}
	if len(bp.Laws) != 1 || bp.Laws[0].Outcome != OutcomeFinfr {
		t.Fatalf("Laws = %+v, want one finfr law", bp.Laws)
	}
	if len(bp.Forges) != 1 || bp.Forges[0].Name != "deposit" {
		t.Fatalf("Forges = %+v, want one forge named deposit", bp.Forges)
	}
	if !bp.Forges[0].HasResult || bp.Forges[0].ResultDim != DimMoney {
		t.Errorf("deposit result = %v/%v, want HasResult=true ResultDim=Money", bp.Forges[0].HasResult, bp.Forges[0].ResultDim)
	}
}

/*
	--------------------------------------------------------------------
	Error recovery: a malformed law must not stop the rest of the
	blueprint from being reported, and the failure must surface as a
	parse error rather than a panic.
	--------------------------------------------------------------------
*/

const malformedLawSource = `
blueprint Broken
  field @x: Real default Real(0)

  law bad
    when @x
  finfr

  forge noop()
    reply @x
  end
end
`

func TestParse_RecoversFromMalformedClause(t *testing.T) {
	t.Parallel()

	_, errs := Parse(malformedLawSource)
	if len(errs) == 0 {
		t.Fatalf("Parse() errors = 0, want at least one for the missing comparison operator")
	}
}

/*
	--------------------------------------------------------------------
	Post-parse resolution: unknown fields, identifiers and functions are
	parse errors, not runtime faults.
	--------------------------------------------------------------------
*/

func TestParse_UnknownFieldReferenceIsAParseError(t *testing.T) {
	t.Parallel()

	src := `
blueprint Ghost
  field @x: Real default Real(0)

  law phantom
    when @missing < Real(0)
  finfr
end
`
	_, errs := Parse(src)
	if len(errs) == 0 {
		t.Fatalf("Parse() errors = 0, want an unknown-field error for @missing")
	}
}

func TestParse_UnknownIdentifierInForgeBodyIsAParseError(t *testing.T) {
	t.Parallel()

	src := `
blueprint Ghost
  field @x: Real default Real(0)

  forge bump()
    @x = @x + nowhere
  end
end
`
	_, errs := Parse(src)
	if len(errs) == 0 {
		t.Fatalf("Parse() errors = 0, want an unknown-identifier error for nowhere")
	}
}

func TestParse_MemoBindingsResolveInOrder(t *testing.T) {
	t.Parallel()

	src := `
blueprint Scoped
  field @x: Real default Real(0)

  forge ok(step: Real)
    memo a = step * Real(2)
    @x = @x + a
  end
end
`
	bps, errs := Parse(src)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none (params and memos are in scope)", errs)
	}
	if len(bps) != 1 {
		t.Fatalf("Parse() blueprints = %d, want 1", len(bps))
	}
}

func TestParse_UnknownFunctionIsAParseError(t *testing.T) {
	t.Parallel()

	src := `
blueprint Ghost
  field @x: Real default Real(0)

  forge bad()
    @x = mystery(@x)
  end
end
`
	_, errs := Parse(src)
	if len(errs) == 0 {
		t.Fatalf("Parse() errors = 0, want an unknown-function error for mystery")
	}
}

/*
	--------------------------------------------------------------------
	Lexer edge cases
	--------------------------------------------------------------------
*/

func TestLexer_SymbolsAndFieldRefs(t *testing.T) {
	t.Parallel()

	lx := NewLexer(`@balance :withdraw "hi" 1.5 <= >=`)
	var kinds []TokenKind
	for {
		tok := lx.Next()
		if tok.Kind == TokEOF {
			break
		}
		kinds = append(kinds, tok.Kind)
	}

	want := []TokenKind{TokAt, TokSymbol, TokString, TokNumber, TokPunct, TokPunct}
	if len(kinds) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(kinds), len(want), kinds)
	}
	for i, k := range kinds {
		if k != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, k, want[i])
		}
	}
}
