package core

import "fmt"

// Parser is a hand-written recursive-descent parser over the Blueprint
// grammar. It never panics: a malformed construct is recorded as a
// ParseErrorEntry and the parser recovers at the next statement/keyword
// boundary, so a single syntax error does not prevent reporting the rest.
type Parser struct {
	toks []Token
	pos  int
	errs []ParseErrorEntry
}

// Parse tokenizes and parses src into zero or more Blueprints. A non-empty
// error list means loading must be rejected.
func Parse(src string) ([]*Blueprint, []ParseErrorEntry) {
	lex := NewLexer(src)
	var toks []Token
	for {
		t := lex.Next()
		toks = append(toks, t)
		if t.Kind == TokEOF {
			break
		}
	}
	p := &Parser{toks: toks}

	var out []*Blueprint
	for !p.atEnd() {
		if p.peekIs(TokIdent, "blueprint") {
			bp := p.parseBlueprint()
			if bp != nil {
				p.validateBlueprint(bp)
				out = append(out, bp)
			}
			continue
		}
		p.errorf(p.cur(), "PARSE", "expected 'blueprint', found %q", p.cur().Text)
		p.recoverTo("blueprint")
	}
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	return out, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) atEnd() bool { return p.cur().Kind == TokEOF }

func (p *Parser) peekIs(kind TokenKind, text string) bool {
	t := p.cur()
	return t.Kind == kind && (text == "" || t.Text == text)
}

func (p *Parser) advance() Token {
	t := p.cur()
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) expect(kind TokenKind, text string) (Token, bool) {
	if p.peekIs(kind, text) {
		return p.advance(), true
	}
	want := text
	if want == "" {
		want = tokenKindName(kind)
	}
	p.errorf(p.cur(), "PARSE", "expected %q, found %q", want, p.cur().Text)
	return p.cur(), false
}

func tokenKindName(k TokenKind) string {
	switch k {
	case TokIdent:
		return "identifier"
	case TokNumber:
		return "number"
	case TokString:
		return "string"
	case TokSymbol:
		return "symbol"
	case TokAt:
		return "@field"
	default:
		return "token"
	}
}

func (p *Parser) errorf(t Token, phase, format string, args ...any) {
	p.errs = append(p.errs, ParseErrorEntry{
		Phase: phase, Line: t.Line, Column: t.Column,
		Message: fmt.Sprintf(format, args...),
	})
}

// recoverTo skips tokens until the next occurrence of the given keyword (or
// EOF), re-synchronising the parser after an error.
func (p *Parser) recoverTo(keyword string) {
	for !p.atEnd() && !p.peekIs(TokIdent, keyword) {
		p.advance()
	}
}

// recoverToStatementBoundary skips to the next statement-introducing keyword
// inside a law/forge body, or to "end".
func (p *Parser) recoverToStatementBoundary() {
	for !p.atEnd() {
		t := p.cur()
		if t.Kind == TokIdent && (t.Text == "end" || t.Text == "when" || t.Text == "and" ||
			t.Text == "memo" || t.Text == "request" || t.Text == "reply" || t.Text == "field" ||
			t.Text == "law" || t.Text == "forge") {
			return
		}
		if t.Kind == TokAt {
			return
		}
		p.advance()
	}
}

func (p *Parser) parseBlueprint() *Blueprint {
	p.advance() // 'blueprint'
	nameTok, ok := p.expect(TokIdent, "")
	if !ok {
		p.recoverTo("end")
		if p.peekIs(TokIdent, "end") {
			p.advance()
		}
		return nil
	}
	bp := &Blueprint{Name: nameTok.Text}

	for !p.atEnd() && !p.peekIs(TokIdent, "end") {
		switch {
		case p.peekIs(TokIdent, "field"):
			if f := p.parseField(); f != nil {
				bp.Fields = append(bp.Fields, *f)
			}
		case p.peekIs(TokIdent, "law"):
			if l := p.parseLaw(); l != nil {
				bp.Laws = append(bp.Laws, *l)
			}
		case p.peekIs(TokIdent, "forge"):
			if fg := p.parseForge(); fg != nil {
				bp.Forges = append(bp.Forges, *fg)
			}
		default:
			p.errorf(p.cur(), "CRYSTALLIZE", "unexpected token %q inside blueprint", p.cur().Text)
			p.recoverToStatementBoundary()
			if !p.peekIs(TokIdent, "end") {
				// recoverToStatementBoundary may have landed on 'field'/'law'/'forge';
				// loop will retry those; otherwise force progress.
				if p.peekIs(TokIdent, "") {
					p.advance()
				}
			}
		}
	}
	if p.peekIs(TokIdent, "end") {
		p.advance()
	} else {
		p.errorf(p.cur(), "PARSE", "missing 'end' for blueprint %s", bp.Name)
	}
	return bp
}

func (p *Parser) parseField() *Field {
	line := p.cur().Line
	p.advance() // 'field'
	if _, ok := p.expect(TokAt, ""); !ok {
		p.recoverToStatementBoundary()
		return nil
	}
	nameTok := p.toks[p.pos-1]
	if _, ok := p.expect(TokPunct, ":"); !ok {
		p.recoverToStatementBoundary()
		return nil
	}
	typeTok, ok := p.expect(TokIdent, "")
	if !ok {
		p.recoverToStatementBoundary()
		return nil
	}
	dim, ok := dimensionByName(typeTok.Text)
	if !ok {
		p.errorf(typeTok, "CRYSTALLIZE", "unknown field type %q", typeTok.Text)
	}
	f := &Field{Name: nameTok.Text, Dim: dim, Line: line}
	if p.peekIs(TokIdent, "default") {
		p.advance()
		def := p.parseExpr()
		f.Default = &def
	}
	return f
}

func (p *Parser) parseLaw() *Law {
	line := p.cur().Line
	p.advance() // 'law'
	nameTok, ok := p.expect(TokIdent, "")
	if !ok {
		p.recoverTo("end")
		if p.peekIs(TokIdent, "end") {
			p.advance()
		}
		return nil
	}
	law := &Law{Name: nameTok.Text, Line: line}

	for p.peekIs(TokIdent, "when") || p.peekIs(TokIdent, "and") {
		clauseLine := p.cur().Line
		p.advance()
		cond := p.parseCond()
		law.Clauses = append(law.Clauses, Clause{Cond: cond, Line: clauseLine})
	}

	// The outcome keyword terminates the law; fin/finfr doubles as the
	// law's closing delimiter in the surface syntax.
	switch {
	case p.peekIs(TokIdent, "fin"):
		p.advance()
		law.Outcome = OutcomeFin
	case p.peekIs(TokIdent, "finfr"):
		p.advance()
		law.Outcome = OutcomeFinfr
	default:
		p.errorf(p.cur(), "PARSE", "expected 'fin' or 'finfr', found %q", p.cur().Text)
	}
	return law
}

func (p *Parser) parseCond() Cond {
	if p.peekIs(TokIdent, "request") {
		p.advance()
		if _, ok := p.expect(TokIdent, "is"); !ok {
			return Cond{}
		}
		symTok, ok := p.expect(TokSymbol, "")
		if !ok {
			return Cond{}
		}
		return Cond{Kind: CondRequestIs, Symbol: symTok.Text}
	}
	// Each side is an additive expression; the clause's own comparison
	// operator is the split point, so parseExpr (which would swallow the
	// comparison whole) is not used here.
	l := p.parseAdditive()
	opTok := p.cur()
	if !isCmpOp(opTok) {
		p.errorf(opTok, "PARSE", "expected comparison operator, found %q", opTok.Text)
		return Cond{Kind: CondCompare, L: &l, R: &l, CmpOp: "=="}
	}
	p.advance()
	r := p.parseAdditive()
	return Cond{Kind: CondCompare, CmpOp: opTok.Text, L: &l, R: &r}
}

func isCmpOp(t Token) bool {
	if t.Kind != TokPunct {
		return false
	}
	switch t.Text {
	case "<", "<=", ">", ">=", "==", "!=":
		return true
	default:
		return false
	}
}

func (p *Parser) parseForge() *Forge {
	line := p.cur().Line
	p.advance() // 'forge'
	nameTok, ok := p.expect(TokIdent, "")
	if !ok {
		p.recoverTo("end")
		if p.peekIs(TokIdent, "end") {
			p.advance()
		}
		return nil
	}
	fg := &Forge{Name: nameTok.Text, Line: line}

	if _, ok := p.expect(TokPunct, "("); ok {
		for !p.peekIs(TokPunct, ")") && !p.atEnd() {
			pnTok, ok := p.expect(TokIdent, "")
			if !ok {
				break
			}
			if _, ok := p.expect(TokPunct, ":"); !ok {
				break
			}
			ptTok, ok := p.expect(TokIdent, "")
			if !ok {
				break
			}
			dim, ok := dimensionByName(ptTok.Text)
			if !ok {
				p.errorf(ptTok, "CRYSTALLIZE", "unknown parameter type %q", ptTok.Text)
			}
			fg.Params = append(fg.Params, Param{Name: pnTok.Text, Dim: dim})
			if p.peekIs(TokPunct, ",") {
				p.advance()
			}
		}
		p.expect(TokPunct, ")")
	}

	if p.peekIs(TokPunct, "->") {
		p.advance()
		rtTok, ok := p.expect(TokIdent, "")
		if ok {
			dim, ok := dimensionByName(rtTok.Text)
			if !ok {
				p.errorf(rtTok, "CRYSTALLIZE", "unknown result type %q", rtTok.Text)
			}
			fg.ResultDim = dim
			fg.HasResult = true
		}
	}

	for !p.atEnd() && !p.peekIs(TokIdent, "end") {
		st, ok := p.parseStmt()
		if ok {
			fg.Body = append(fg.Body, st)
		}
	}
	if p.peekIs(TokIdent, "end") {
		p.advance()
	} else {
		p.errorf(p.cur(), "PARSE", "missing 'end' for forge %s", fg.Name)
	}

	for _, st := range fg.Body {
		if st.Kind == StmtRequest {
			fg.requestSymbol = st.Name
			fg.hasRequest = true
			break
		}
	}
	return fg
}

func (p *Parser) parseStmt() (Stmt, bool) {
	line := p.cur().Line
	switch {
	case p.peekIs(TokAt, ""):
		tok := p.advance()
		if _, ok := p.expect(TokPunct, "="); !ok {
			p.recoverToStatementBoundary()
			return Stmt{}, false
		}
		e := p.parseExpr()
		return Stmt{Kind: StmtFieldAssign, Name: tok.Text, Expr: e, Line: line}, true

	case p.peekIs(TokIdent, "memo"):
		p.advance()
		nameTok, ok := p.expect(TokIdent, "")
		if !ok {
			p.recoverToStatementBoundary()
			return Stmt{}, false
		}
		if _, ok := p.expect(TokPunct, "="); !ok {
			p.recoverToStatementBoundary()
			return Stmt{}, false
		}
		e := p.parseExpr()
		return Stmt{Kind: StmtMemoAssign, Name: nameTok.Text, Expr: e, Line: line}, true

	case p.peekIs(TokIdent, "request"):
		p.advance()
		if _, ok := p.expect(TokPunct, "="); !ok {
			p.recoverToStatementBoundary()
			return Stmt{}, false
		}
		symTok, ok := p.expect(TokSymbol, "")
		if !ok {
			p.recoverToStatementBoundary()
			return Stmt{}, false
		}
		return Stmt{Kind: StmtRequest, Name: symTok.Text, Line: line}, true

	case p.peekIs(TokIdent, "reply"):
		p.advance()
		e := p.parseExpr()
		return Stmt{Kind: StmtReply, Expr: e, Line: line}, true

	default:
		e := p.parseExpr()
		return Stmt{Kind: StmtExpr, Expr: e, Line: line}, true
	}
}

// --- expression parsing (precedence climbing) ---------------------------

func (p *Parser) parseExpr() Expr { return p.parseComparison() }

func (p *Parser) parseComparison() Expr {
	l := p.parseAdditive()
	for isCmpOp(p.cur()) {
		op := p.advance()
		r := p.parseAdditive()
		left := l
		l = Expr{Kind: ExprBinary, Str: op.Text, L: &left, R: &r, Line: op.Line}
	}
	return l
}

func (p *Parser) parseAdditive() Expr {
	l := p.parseMultiplicative()
	for p.peekIs(TokPunct, "+") || p.peekIs(TokPunct, "-") {
		op := p.advance()
		r := p.parseMultiplicative()
		left := l
		l = Expr{Kind: ExprBinary, Str: op.Text, L: &left, R: &r, Line: op.Line}
	}
	return l
}

func (p *Parser) parseMultiplicative() Expr {
	l := p.parsePrimary()
	for p.peekIs(TokPunct, "*") || p.peekIs(TokPunct, "/") {
		op := p.advance()
		r := p.parsePrimary()
		left := l
		l = Expr{Kind: ExprBinary, Str: op.Text, L: &left, R: &r, Line: op.Line}
	}
	return l
}

func (p *Parser) parsePrimary() Expr {
	t := p.cur()
	switch {
	case t.Kind == TokNumber:
		p.advance()
		return Expr{Kind: ExprNumber, Number: parseNumberLiteral(t.Text), Line: t.Line}
	case t.Kind == TokString:
		p.advance()
		return Expr{Kind: ExprString, Str: t.Text, Line: t.Line}
	case t.Kind == TokSymbol:
		p.advance()
		return Expr{Kind: ExprSymbol, Str: t.Text, Line: t.Line}
	case t.Kind == TokAt:
		p.advance()
		return Expr{Kind: ExprFieldRef, Str: t.Text, Line: t.Line}
	case t.Kind == TokPunct && t.Text == "(":
		p.advance()
		e := p.parseExpr()
		p.expect(TokPunct, ")")
		return e
	case t.Kind == TokIdent:
		p.advance()
		if p.peekIs(TokPunct, "(") {
			p.advance()
			var args []Expr
			for !p.peekIs(TokPunct, ")") && !p.atEnd() {
				args = append(args, p.parseExpr())
				if p.peekIs(TokPunct, ",") {
					p.advance()
				}
			}
			p.expect(TokPunct, ")")
			if _, ok := dimensionByName(t.Text); ok {
				arg := Expr{Kind: ExprNumber}
				if len(args) > 0 {
					arg = args[0]
				}
				return Expr{Kind: ExprTypeConstruct, Str: t.Text, Arg: &arg, Line: t.Line}
			}
			return Expr{Kind: ExprCall, Str: t.Text, Args: args, Line: t.Line}
		}
		return Expr{Kind: ExprIdentRef, Str: t.Text, Line: t.Line}
	default:
		p.errorf(t, "PARSE", "unexpected token %q in expression", t.Text)
		p.advance()
		return Expr{Kind: ExprNumber, Number: 0, Line: t.Line}
	}
}

// --- post-parse validation ------------------------------------------------

// validateBlueprint resolves every field and identifier reference against the
// blueprint's declarations.
// It runs after the whole blueprint is parsed so that a field declared below
// a law that uses it still resolves.
func (p *Parser) validateBlueprint(bp *Blueprint) {
	fields := make(map[string]bool, len(bp.Fields))
	for _, f := range bp.Fields {
		fields[f.Name] = true
	}
	for _, f := range bp.Fields {
		if f.Default != nil {
			// Defaults evaluate before any field has a value, so they may
			// reference only literals and type constructors.
			p.checkExpr(f.Default, nil, nil)
		}
	}

	for _, law := range bp.Laws {
		for _, c := range law.Clauses {
			if c.Cond.Kind != CondCompare {
				continue
			}
			p.checkExpr(c.Cond.L, fields, nil)
			p.checkExpr(c.Cond.R, fields, nil)
		}
	}

	for _, fg := range bp.Forges {
		locals := make(map[string]bool, len(fg.Params))
		for _, prm := range fg.Params {
			locals[prm.Name] = true
		}
		for _, st := range fg.Body {
			switch st.Kind {
			case StmtFieldAssign:
				if !fields[st.Name] {
					p.errorAt(st.Line, "CRYSTALLIZE", "assignment to undeclared field @%s", st.Name)
				}
				p.checkExpr(&st.Expr, fields, locals)
			case StmtMemoAssign:
				p.checkExpr(&st.Expr, fields, locals)
				locals[st.Name] = true
			case StmtReply, StmtExpr:
				p.checkExpr(&st.Expr, fields, locals)
			}
		}
	}
}

// checkExpr walks one expression. A nil fields map means field references are
// not permitted in this position (field defaults); a nil locals map means no
// local scope exists (law clauses).
func (p *Parser) checkExpr(e *Expr, fields, locals map[string]bool) {
	switch e.Kind {
	case ExprFieldRef:
		switch {
		case fields == nil:
			p.errorAt(e.Line, "CRYSTALLIZE", "@%s: field references are not allowed in defaults", e.Str)
		case !fields[e.Str]:
			p.errorAt(e.Line, "CRYSTALLIZE", "unknown field @%s", e.Str)
		}
	case ExprIdentRef:
		if locals == nil || !locals[e.Str] {
			p.errorAt(e.Line, "CRYSTALLIZE", "unknown identifier %q", e.Str)
		}
	case ExprTypeConstruct:
		p.checkExpr(e.Arg, fields, locals)
	case ExprBinary:
		p.checkExpr(e.L, fields, locals)
		p.checkExpr(e.R, fields, locals)
	case ExprCall:
		if _, ok := builtinRegistry()[e.Str]; !ok {
			p.errorAt(e.Line, "CRYSTALLIZE", "unknown function %q", e.Str)
		}
		for i := range e.Args {
			p.checkExpr(&e.Args[i], fields, locals)
		}
	}
}

func (p *Parser) errorAt(line int, phase, format string, args ...any) {
	p.errs = append(p.errs, ParseErrorEntry{
		Phase: phase, Line: line, Column: 1,
		Message: fmt.Sprintf(format, args...),
	})
}
