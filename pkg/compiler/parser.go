package compiler

import (
	"fmt"
	"strconv"
)

// Parser consumes the token stream and drives the Builder directly; the
// instruction stream is the only program representation.
//
// Grammar:
//
//	program     = (function | prototype | staticVar)* EOF
//	function    = type IDENTIFIER "(" params ")" block
//	prototype   = type IDENTIFIER "(" params ")" ";"
//	staticVar   = ("static"|"const")* type ("<" INTEGER ">")? IDENTIFIER ";"
//	block       = "{" statement* "}"
//	statement   = varDecl | label | assignment | call ";" | if | while
//	            | doWhile | for | switch | "break" ";" | "continue" ";"
//	            | "goto" IDENTIFIER ";" | return | block | ";"
//	expression  = logicalOr
//	logicalOr   = logicalAnd ("||" logicalAnd)*
//	logicalAnd  = equality ("&&" equality)*
//	equality    = relational (("=="|"!=") relational)*
//	relational  = shift (("<"|">"|"<="|">=") shift)*
//	shift       = additive (("<<"|">>") additive)*
//	additive    = multiplicative (("+"|"-") multiplicative)*
//	multiplicative = unary (("*"|"/"|"%") unary)*
//	unary       = ("-"|"!") unary | "&" IDENTIFIER | postfix
//	postfix     = primary ("[" expression "]" | "(" args ")")?
//	primary     = INTEGER | STRING_LIT | "true" | "false" | "null"
//	            | IDENTIFIER | "(" expression ")"
//	            | "cast" "<" type ">" "(" expression ")"
//	            | "alloc" "<" type ">" "(" expression ")"
type Parser struct {
	tokens []Token
	pos    int
	b      *Builder

	fnName string
	fnRet  SymbolType
}

// exprResult is either a plain value or an unmaterialized comparison.
// Comparisons stay symbolic so condition contexts can emit a single
// conditional jump instead of a boolean temp.
type exprResult struct {
	cond bool
	cmp  CompareType
	lhs  Operand
	rhs  Operand
	val  Operand
}

func valueResult(op Operand) exprResult { return exprResult{val: op} }

func condResult(cmp CompareType, lhs, rhs Operand) exprResult {
	return exprResult{cond: true, cmp: cmp, lhs: lhs, rhs: rhs}
}

// Parse lexes src and translates it into an instruction stream. The
// instruction at position 0 is the jump to the entry point; its target
// is resolved after parsing.
func Parse(src string) (*Builder, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens, b: NewBuilder()}
	p.b.AddToStream(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	for p.peek().Type != EOF {
		if err := p.parseTopLevel(); err != nil {
			return nil, err
		}
	}
	return p.b, nil
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.syntaxError(tok, "Expected %s, found %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

func (p *Parser) syntaxError(tok Token, format string, args ...any) *Error {
	return newErrorAt(SourceSyntax, tok.Line, tok.Column, format, args...)
}

func (p *Parser) stmtError(tok Token, format string, args ...any) *Error {
	return newErrorAt(SourceStatement, tok.Line, tok.Column, format, args...)
}

func isTypeToken(tt TokenType) bool {
	switch tt {
	case VOID, BOOL, UINT8, UINT16, UINT32, STRING:
		return true
	}
	return false
}

// parseType consumes a type keyword plus any trailing '*' markers.
func (p *Parser) parseType() (SymbolType, error) {
	tok := p.advance()
	var base BaseSymbolType
	switch tok.Type {
	case VOID:
		base = BaseVoid
	case BOOL:
		base = BaseBool
	case UINT8:
		base = BaseUint8
	case UINT16:
		base = BaseUint16
	case UINT32:
		base = BaseUint32
	case STRING:
		base = BaseString
	default:
		return SymbolType{}, p.syntaxError(tok, "Expected type name, found %s (%q)", tok.Type, tok.Lexeme)
	}
	typ := SymbolType{Base: base}
	for p.peek().Type == STAR {
		p.advance()
		typ.Pointer++
	}
	return typ, nil
}

// constType picks the narrowest integer type holding value.
func constType(value uint64) SymbolType {
	switch {
	case value <= 0xFF:
		return SymbolType{Base: BaseUint8}
	case value <= 0xFFFF:
		return SymbolType{Base: BaseUint16}
	default:
		return SymbolType{Base: BaseUint32}
	}
}

func (p *Parser) parseTopLevel() error {
	readOnly := false
	for p.peek().Type == STATIC || p.peek().Type == CONST {
		if p.advance().Type == CONST {
			readOnly = true
		}
	}

	typ, err := p.parseType()
	if err != nil {
		return err
	}

	// Array form declares a file-scope buffer.
	if p.peek().Type == LESS {
		return p.parseStaticArray(typ, readOnly)
	}

	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return err
	}

	if p.peek().Type == LPAREN {
		return p.parseFunction(typ, name)
	}

	if !typ.IsValidValue() {
		return p.stmtError(name, "Variable \"%s\" cannot have type \"%s\"", name.Lexeme, typ)
	}
	if prev := p.b.Table().FindSymbol(name.Lexeme); prev != nil {
		return newErrorAt(SourceDeclaration, name.Line, name.Column, "Variable \"%s\" is already declared", name.Lexeme)
	}
	sym, err := p.b.Table().AddStaticVariable(typ, SizeOf(typ), name.Lexeme)
	if err != nil {
		return err
	}
	sym.Const = readOnly
	if p.peek().Type == ASSIGN {
		return p.stmtError(p.peek(), "Initializers are not allowed at file scope")
	}
	_, err = p.expect(SEMICOLON)
	return err
}

// parseStaticArray handles "type < N > name ;" at file scope.
func (p *Parser) parseStaticArray(elem SymbolType, readOnly bool) error {
	p.advance()
	count, err := p.parseArrayLength()
	if err != nil {
		return err
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return err
	}
	if prev := p.b.Table().FindSymbol(name.Lexeme); prev != nil {
		return newErrorAt(SourceDeclaration, name.Line, name.Column, "Variable \"%s\" is already declared", name.Lexeme)
	}
	arrType := SymbolType{Base: elem.Base, Pointer: elem.Pointer + 1}
	sym, err := p.b.Table().AddStaticVariable(arrType, count*SizeOf(elem), name.Lexeme)
	if err != nil {
		return err
	}
	sym.Const = readOnly
	_, err = p.expect(SEMICOLON)
	return err
}

func (p *Parser) parseArrayLength() (int, error) {
	tok, err := p.expect(INTEGER)
	if err != nil {
		return 0, err
	}
	count, convErr := strconv.Atoi(tok.Lexeme)
	if convErr != nil || count <= 0 || count > 0xFFFF {
		return 0, newErrorAt(SourceDeclaration, tok.Line, tok.Column, "Invalid array length \"%s\"", tok.Lexeme)
	}
	if _, err := p.expect(GREATER); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *Parser) parseFunction(ret SymbolType, name Token) error {
	p.advance()
	if err := p.parseParameterList(); err != nil {
		return err
	}

	switch p.peek().Type {
	case SEMICOLON:
		p.advance()
		_, err := p.b.Table().AddFunctionPrototype(name.Lexeme, ret, name.Line, name.Column)
		return err
	case LBRACE:
		p.advance()
		p.fnName = name.Lexeme
		p.fnRet = ret
		for p.peek().Type != RBRACE && p.peek().Type != EOF {
			if err := p.parseStatement(); err != nil {
				return err
			}
		}
		if _, err := p.expect(RBRACE); err != nil {
			return err
		}
		if ret.Base == BaseVoid && ret.Pointer == 0 {
			p.b.AddToStream(&Instruction{Type: InstReturn, Return: &ReturnInstruction{}})
		}
		_, err := p.b.Table().AddFunction(name.Lexeme, ret, p.b.NextIP(), name.Line, name.Column)
		p.fnName = ""
		return err
	default:
		return p.syntaxError(p.peek(), "Expected \";\" or \"{\" after function header")
	}
}

func (p *Parser) parseParameterList() error {
	if p.peek().Type == RPAREN {
		p.advance()
		return nil
	}
	for {
		typ, err := p.parseType()
		if err != nil {
			return err
		}
		if !typ.IsValidValue() {
			return p.stmtError(p.peek(), "Parameter cannot have type \"%s\"", typ)
		}
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return err
		}
		if _, err := p.b.Table().ToParameter(typ, name.Lexeme, name.Line, name.Column); err != nil {
			return err
		}
		if p.peek().Type != COMMA {
			break
		}
		p.advance()
	}
	_, err := p.expect(RPAREN)
	return err
}

func (p *Parser) parseStatement() error {
	tok := p.peek()
	switch tok.Type {
	case SEMICOLON:
		p.advance()
		return nil
	case LBRACE:
		p.advance()
		for p.peek().Type != RBRACE && p.peek().Type != EOF {
			if err := p.parseStatement(); err != nil {
				return err
			}
		}
		_, err := p.expect(RBRACE)
		return err
	case CONST:
		p.advance()
		return p.parseLocalDecl(true)
	case STATIC:
		return p.stmtError(tok, "Static variables must be declared at file scope")
	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case DO:
		return p.parseDoWhile()
	case FOR:
		return p.parseFor()
	case SWITCH:
		return p.parseSwitch()
	case BREAK:
		p.advance()
		if !p.b.AddBreak() {
			return p.stmtError(tok, "\"break\" used outside of loop or switch")
		}
		_, err := p.expect(SEMICOLON)
		return err
	case CONTINUE:
		p.advance()
		if !p.b.AddContinue() {
			return p.stmtError(tok, "\"continue\" used outside of loop")
		}
		_, err := p.expect(SEMICOLON)
		return err
	case GOTO:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return err
		}
		p.b.AddToStream(&Instruction{Type: InstGotoLabel, GotoLabel: &GotoLabelInstruction{Label: name.Lexeme}})
		_, err = p.expect(SEMICOLON)
		return err
	case RETURN:
		return p.parseReturn()
	case PLUS_PLUS, MINUS_MINUS:
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return err
		}
		if err := p.emitIncDec(name, tok.Type == PLUS_PLUS); err != nil {
			return err
		}
		_, err = p.expect(SEMICOLON)
		return err
	case IDENTIFIER:
		return p.parseIdentStatement()
	}
	if isTypeToken(tok.Type) {
		return p.parseLocalDecl(false)
	}
	return p.syntaxError(tok, "Unexpected %s (%q)", tok.Type, tok.Lexeme)
}

func (p *Parser) parseLocalDecl(readOnly bool) error {
	typ, err := p.parseType()
	if err != nil {
		return err
	}

	if p.peek().Type == LESS {
		p.advance()
		count, err := p.parseArrayLength()
		if err != nil {
			return err
		}
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return err
		}
		arrType := SymbolType{Base: typ.Base, Pointer: typ.Pointer + 1}
		sym, err := p.b.Table().ToDeclaration(arrType, count*SizeOf(typ), name.Lexeme, ExpVariable, name.Line, name.Column)
		if err != nil {
			return err
		}
		sym.Const = readOnly
		_, err = p.expect(SEMICOLON)
		return err
	}

	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return err
	}
	if !typ.IsValidValue() {
		return p.stmtError(name, "Variable \"%s\" cannot have type \"%s\"", name.Lexeme, typ)
	}
	sym, err := p.b.Table().ToDeclaration(typ, SizeOf(typ), name.Lexeme, ExpVariable, name.Line, name.Column)
	if err != nil {
		return err
	}

	// The declaration initializer is the one permitted write.
	if p.peek().Type == ASSIGN {
		p.advance()
		if err := p.emitAssignmentTo(name, typ, nil); err != nil {
			return err
		}
	}
	sym.Const = readOnly
	_, err = p.expect(SEMICOLON)
	return err
}

func (p *Parser) parseIdentStatement() error {
	name := p.advance()

	switch p.peek().Type {
	case COLON:
		p.advance()
		_, err := p.b.Table().AddLabel(name.Lexeme, p.b.NextIP(), name.Line, name.Column)
		return err
	case LPAREN:
		if _, err := p.parseCall(name); err != nil {
			return err
		}
		_, err := p.expect(SEMICOLON)
		return err
	case PLUS_PLUS, MINUS_MINUS:
		op := p.advance()
		if err := p.emitIncDec(name, op.Type == PLUS_PLUS); err != nil {
			return err
		}
		_, err := p.expect(SEMICOLON)
		return err
	}

	sym := p.b.Table().GetParameter(name.Lexeme)
	if sym == nil {
		return p.stmtError(name, "Variable \"%s\" is not declared in this scope", name.Lexeme)
	}
	if sym.Const {
		return p.stmtError(name, "Cannot assign to constant variable \"%s\"", name.Lexeme)
	}

	var index *Operand
	if p.peek().Type == LBRACKET {
		idx, err := p.parseIndex(name, sym)
		if err != nil {
			return err
		}
		index = idx
	}

	if _, err := p.expect(ASSIGN); err != nil {
		return err
	}
	dstType := sym.Type
	if index != nil {
		dstType = SymbolType{Base: sym.Type.Base, Pointer: sym.Type.Pointer - 1}
	}
	if err := p.emitAssignmentTo(name, dstType, index); err != nil {
		return err
	}
	_, err := p.expect(SEMICOLON)
	return err
}

func (p *Parser) parseIndex(name Token, sym *SymbolEntry) (*Operand, error) {
	if sym.Type.Pointer == 0 {
		return nil, p.stmtError(name, "Variable \"%s\" of type \"%s\" cannot be indexed", name.Lexeme, sym.Type)
	}
	p.advance()
	r, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	idx, err := p.value(r)
	if err != nil {
		return nil, err
	}
	if integerRank(idx.Type.Base) == 0 || idx.Type.Pointer > 0 {
		return nil, p.stmtError(name, "Array index must be an integer value")
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	return &idx, nil
}

// emitAssignmentTo evaluates the right-hand side and stores it into the
// named destination. When the right-hand side just produced a fresh temp
// of the same type, the producing instruction is retargeted instead of
// emitting a copy.
func (p *Parser) emitAssignmentTo(name Token, dstType SymbolType, index *Operand) error {
	r, err := p.parseExpression()
	if err != nil {
		return err
	}
	v, err := p.value(r)
	if err != nil {
		return err
	}
	if !CanImplicitCast(dstType, v.Type, v.Exp) {
		return p.stmtError(name, "Cannot assign \"%s\" value to variable \"%s\" of type \"%s\"", v.Type, name.Lexeme, dstType)
	}
	if !r.cond && v.Type == dstType && p.retargetLastAssign(v, name.Lexeme, index) {
		return nil
	}
	p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
		Op:       AssignNone,
		Dst:      name.Lexeme,
		DstIndex: index,
		Op1:      v,
	}})
	return nil
}

func (p *Parser) retargetLastAssign(v Operand, dst string, index *Operand) bool {
	if v.Exp != ExpVariable || v.Index != nil || len(p.b.stream) == 0 {
		return false
	}
	last := p.b.stream[len(p.b.stream)-1]
	if last.Type != InstAssign || last.Assign.Dst != v.Value {
		return false
	}
	sym := p.b.Table().GetParameter(v.Value)
	if sym == nil || !sym.IsTemp {
		return false
	}
	last.Assign.Dst = dst
	last.Assign.DstIndex = index
	return true
}

func (p *Parser) emitIncDec(name Token, increment bool) error {
	sym := p.b.Table().GetParameter(name.Lexeme)
	if sym == nil {
		return p.stmtError(name, "Variable \"%s\" is not declared in this scope", name.Lexeme)
	}
	if integerRank(sym.Type.Base) == 0 && sym.Type.Pointer == 0 {
		return p.stmtError(name, "Variable \"%s\" of type \"%s\" cannot be incremented", name.Lexeme, sym.Type)
	}
	if sym.Const {
		return p.stmtError(name, "Cannot assign to constant variable \"%s\"", name.Lexeme)
	}
	op := AssignAdd
	if !increment {
		op = AssignSubtract
	}
	p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
		Op:  op,
		Dst: name.Lexeme,
		Op1: Operand{Value: name.Lexeme, Type: sym.Type, Exp: ExpVariable},
		Op2: Operand{Value: "1", Type: SymbolType{Base: BaseUint8}, Exp: ExpConstant},
	}})
	return nil
}

func (p *Parser) parseReturn() error {
	tok := p.advance()
	if p.peek().Type == SEMICOLON {
		p.advance()
		p.b.AddToStream(&Instruction{Type: InstReturn, Return: &ReturnInstruction{}})
		return nil
	}
	r, err := p.parseExpression()
	if err != nil {
		return err
	}
	v, err := p.value(r)
	if err != nil {
		return err
	}
	_ = tok
	p.b.AddToStream(&Instruction{Type: InstReturn, Return: &ReturnInstruction{Op: &v}})
	_, err = p.expect(SEMICOLON)
	return err
}

// parseCondition evaluates a parenthesized condition and returns the
// backpatch list of the jump taken when the condition holds.
func (p *Parser) parseCondition() (*BackpatchList, error) {
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	r, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return p.emitCondJump(r)
}

func (p *Parser) emitCondJump(r exprResult) (*BackpatchList, error) {
	if r.cond {
		return p.b.AddToStreamWithBackpatch(&Instruction{Type: InstIf, If: &IfInstruction{
			Op: r.cmp, Op1: r.lhs, Op2: r.rhs, IP: -1,
		}}), nil
	}
	v := r.val
	if v.Type.Base == BaseString || (integerRank(v.Type.Base) == 0 && v.Type.Pointer == 0) {
		return nil, newError(SourceStatement, "Condition must be a boolean or integer value")
	}
	zero := Operand{Value: "0", Type: SymbolType{Base: BaseUint8}, Exp: ExpConstant}
	return p.b.AddToStreamWithBackpatch(&Instruction{Type: InstIf, If: &IfInstruction{
		Op: CompareNotEqual, Op1: v, Op2: zero, IP: -1,
	}}), nil
}

func (p *Parser) parseIf() error {
	p.advance()
	trueList, err := p.parseCondition()
	if err != nil {
		return err
	}
	elseGoto := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	if err := p.b.BackpatchStream(trueList, p.b.NextIP()); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	if p.peek().Type == ELSE {
		p.advance()
		endGoto := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
		if err := p.b.BackpatchStream(elseGoto, p.b.NextIP()); err != nil {
			return err
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
		return p.b.BackpatchStream(endGoto, p.b.NextIP())
	}
	return p.b.BackpatchStream(elseGoto, p.b.NextIP())
}

func (p *Parser) parseWhile() error {
	p.advance()
	condIP := p.b.NextIP()
	trueList, err := p.parseCondition()
	if err != nil {
		return err
	}
	exitGoto := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	if err := p.b.BackpatchStream(trueList, p.b.NextIP()); err != nil {
		return err
	}
	p.b.EnterLoop()
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.b.AddToStream(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: condIP}})
	if err := p.b.LeaveContinueScope(condIP); err != nil {
		return err
	}
	if err := p.b.BackpatchStream(exitGoto, p.b.NextIP()); err != nil {
		return err
	}
	return p.b.LeaveBreakScope(p.b.NextIP())
}

func (p *Parser) parseDoWhile() error {
	p.advance()
	bodyIP := p.b.NextIP()
	p.b.EnterLoop()
	if err := p.parseStatement(); err != nil {
		return err
	}
	if _, err := p.expect(WHILE); err != nil {
		return err
	}
	condIP := p.b.NextIP()
	trueList, err := p.parseCondition()
	if err != nil {
		return err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return err
	}
	if err := p.b.BackpatchStream(trueList, bodyIP); err != nil {
		return err
	}
	if err := p.b.LeaveContinueScope(condIP); err != nil {
		return err
	}
	return p.b.LeaveBreakScope(p.b.NextIP())
}

func (p *Parser) parseFor() error {
	p.advance()
	if _, err := p.expect(LPAREN); err != nil {
		return err
	}

	if p.peek().Type != SEMICOLON {
		if err := p.parseForClause(); err != nil {
			return err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return err
	}

	condIP := p.b.NextIP()
	var trueList *BackpatchList
	var exitGoto *BackpatchList
	if p.peek().Type != SEMICOLON {
		r, err := p.parseExpression()
		if err != nil {
			return err
		}
		list, err := p.emitCondJump(r)
		if err != nil {
			return err
		}
		trueList = list
		exitGoto = p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return err
	}

	postIP := p.b.NextIP()
	if p.peek().Type != RPAREN {
		if err := p.parseForClause(); err != nil {
			return err
		}
	}
	p.b.AddToStream(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: condIP}})
	if _, err := p.expect(RPAREN); err != nil {
		return err
	}

	if err := p.b.BackpatchStream(trueList, p.b.NextIP()); err != nil {
		return err
	}
	p.b.EnterLoop()
	if err := p.parseStatement(); err != nil {
		return err
	}
	p.b.AddToStream(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: postIP}})
	if err := p.b.LeaveContinueScope(postIP); err != nil {
		return err
	}
	end := p.b.NextIP()
	if err := p.b.BackpatchStream(exitGoto, end); err != nil {
		return err
	}
	return p.b.LeaveBreakScope(end)
}

// parseForClause handles one init or post clause: a declaration, an
// assignment, an increment, or a call.
func (p *Parser) parseForClause() error {
	tok := p.peek()
	if isTypeToken(tok.Type) {
		typ, err := p.parseType()
		if err != nil {
			return err
		}
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return err
		}
		if !typ.IsValidValue() {
			return p.stmtError(name, "Variable \"%s\" cannot have type \"%s\"", name.Lexeme, typ)
		}
		if _, err := p.b.Table().ToDeclaration(typ, SizeOf(typ), name.Lexeme, ExpVariable, name.Line, name.Column); err != nil {
			return err
		}
		if p.peek().Type == ASSIGN {
			p.advance()
			return p.emitAssignmentTo(name, typ, nil)
		}
		return nil
	}
	if tok.Type == PLUS_PLUS || tok.Type == MINUS_MINUS {
		p.advance()
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return err
		}
		return p.emitIncDec(name, tok.Type == PLUS_PLUS)
	}
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return err
	}
	switch p.peek().Type {
	case LPAREN:
		_, err := p.parseCall(name)
		return err
	case PLUS_PLUS, MINUS_MINUS:
		op := p.advance()
		return p.emitIncDec(name, op.Type == PLUS_PLUS)
	}
	sym := p.b.Table().GetParameter(name.Lexeme)
	if sym == nil {
		return p.stmtError(name, "Variable \"%s\" is not declared in this scope", name.Lexeme)
	}
	if sym.Const {
		return p.stmtError(name, "Cannot assign to constant variable \"%s\"", name.Lexeme)
	}
	var index *Operand
	if p.peek().Type == LBRACKET {
		idx, err := p.parseIndex(name, sym)
		if err != nil {
			return err
		}
		index = idx
	}
	if _, err := p.expect(ASSIGN); err != nil {
		return err
	}
	dstType := sym.Type
	if index != nil {
		dstType = SymbolType{Base: sym.Type.Base, Pointer: sym.Type.Pointer - 1}
	}
	return p.emitAssignmentTo(name, dstType, index)
}

func (p *Parser) parseSwitch() error {
	p.advance()
	if _, err := p.expect(LPAREN); err != nil {
		return err
	}
	r, err := p.parseExpression()
	if err != nil {
		return err
	}
	scrutinee, err := p.value(r)
	if err != nil {
		return err
	}
	if integerRank(scrutinee.Type.Base) == 0 {
		return newError(SourceStatement, "Switch value must be an integer value")
	}
	if _, err := p.expect(RPAREN); err != nil {
		return err
	}

	// Guard the scrutinee against mutation inside the body.
	if scrutinee.Exp == ExpVariable {
		tmp := p.b.GetUnusedVariable(scrutinee.Type)
		p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
			Op: AssignNone, Dst: tmp.Name, Op1: scrutinee,
		}})
		scrutinee = Operand{Value: tmp.Name, Type: scrutinee.Type, Exp: ExpVariable}
	}

	dispatchGoto := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	p.b.EnterSwitch()

	if _, err := p.expect(LBRACE); err != nil {
		return err
	}

	type caseTarget struct {
		value string
		ip    int
	}
	var cases []caseTarget
	defaultIP := -1

	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		switch p.peek().Type {
		case CASE:
			caseTok := p.advance()
			valTok := p.advance()
			var value string
			switch valTok.Type {
			case INTEGER:
				value = valTok.Lexeme
			case TRUE:
				value = "1"
			case FALSE:
				value = "0"
			default:
				return p.syntaxError(valTok, "Expected constant case value, found %s (%q)", valTok.Type, valTok.Lexeme)
			}
			for _, c := range cases {
				if c.value == value {
					return p.stmtError(caseTok, "Duplicate case value \"%s\"", value)
				}
			}
			if _, err := p.expect(COLON); err != nil {
				return err
			}
			cases = append(cases, caseTarget{value: value, ip: p.b.NextIP()})
		case DEFAULT:
			defTok := p.advance()
			if defaultIP >= 0 {
				return p.stmtError(defTok, "Duplicate default case")
			}
			if _, err := p.expect(COLON); err != nil {
				return err
			}
			defaultIP = p.b.NextIP()
		default:
			if err := p.parseStatement(); err != nil {
				return err
			}
		}
	}
	if _, err := p.expect(RBRACE); err != nil {
		return err
	}

	endGoto := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	if err := p.b.BackpatchStream(dispatchGoto, p.b.NextIP()); err != nil {
		return err
	}
	for _, c := range cases {
		p.b.AddToStream(&Instruction{Type: InstIf, If: &IfInstruction{
			Op:  CompareEqual,
			Op1: scrutinee,
			Op2: Operand{Value: c.value, Type: scrutinee.Type, Exp: ExpConstant},
			IP:  c.ip,
		}})
	}
	if defaultIP >= 0 {
		p.b.AddToStream(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: defaultIP}})
	}
	end := p.b.NextIP()
	if err := p.b.BackpatchStream(endGoto, end); err != nil {
		return err
	}
	return p.b.LeaveBreakScope(end)
}

// value materializes an expression result as an operand. Comparisons
// become a boolean temp set by a conditional jump pair.
func (p *Parser) value(r exprResult) (Operand, error) {
	if !r.cond {
		if r.val.Exp == ExpNone {
			return Operand{}, newError(SourceStatement, "Expression has no value")
		}
		return r.val, nil
	}
	tmp := p.b.GetUnusedVariable(SymbolType{Base: BaseBool})
	trueList := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstIf, If: &IfInstruction{
		Op: r.cmp, Op1: r.lhs, Op2: r.rhs, IP: -1,
	}})
	p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
		Op: AssignNone, Dst: tmp.Name,
		Op1: Operand{Value: "0", Type: SymbolType{Base: BaseBool}, Exp: ExpConstant},
	}})
	endGoto := p.b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	if err := p.b.BackpatchStream(trueList, p.b.NextIP()); err != nil {
		return Operand{}, err
	}
	p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
		Op: AssignNone, Dst: tmp.Name,
		Op1: Operand{Value: "1", Type: SymbolType{Base: BaseBool}, Exp: ExpConstant},
	}})
	if err := p.b.BackpatchStream(endGoto, p.b.NextIP()); err != nil {
		return Operand{}, err
	}
	return Operand{Value: tmp.Name, Type: SymbolType{Base: BaseBool}, Exp: ExpVariable}, nil
}

func (p *Parser) parseExpression() (exprResult, error) {
	return p.parseLogicalOr()
}

func (p *Parser) parseLogicalOr() (exprResult, error) {
	l, err := p.parseLogicalAnd()
	if err != nil {
		return exprResult{}, err
	}
	for p.peek().Type == OR_LOGICAL {
		tok := p.advance()
		r, err := p.parseLogicalAnd()
		if err != nil {
			return exprResult{}, err
		}
		l, err = p.combineLogical(CompareLogOr, l, r, tok)
		if err != nil {
			return exprResult{}, err
		}
	}
	return l, nil
}

func (p *Parser) parseLogicalAnd() (exprResult, error) {
	l, err := p.parseEquality()
	if err != nil {
		return exprResult{}, err
	}
	for p.peek().Type == AND_LOGICAL {
		tok := p.advance()
		r, err := p.parseEquality()
		if err != nil {
			return exprResult{}, err
		}
		l, err = p.combineLogical(CompareLogAnd, l, r, tok)
		if err != nil {
			return exprResult{}, err
		}
	}
	return l, nil
}

func (p *Parser) combineLogical(cmp CompareType, l, r exprResult, tok Token) (exprResult, error) {
	a, err := p.value(l)
	if err != nil {
		return exprResult{}, err
	}
	b, err := p.value(r)
	if err != nil {
		return exprResult{}, err
	}
	for _, op := range []Operand{a, b} {
		if op.Type.Base == BaseString || (integerRank(op.Type.Base) == 0 && op.Type.Pointer == 0) {
			return exprResult{}, p.stmtError(tok, "Logical operator requires boolean or integer operands")
		}
	}
	return condResult(cmp, a, b), nil
}

func (p *Parser) parseEquality() (exprResult, error) {
	l, err := p.parseRelational()
	if err != nil {
		return exprResult{}, err
	}
	for p.peek().Type == EQUALS || p.peek().Type == NOT_EQ {
		tok := p.advance()
		r, err := p.parseRelational()
		if err != nil {
			return exprResult{}, err
		}
		a, err := p.value(l)
		if err != nil {
			return exprResult{}, err
		}
		b, err := p.value(r)
		if err != nil {
			return exprResult{}, err
		}
		if err := checkComparable(a, b, true, tok); err != nil {
			return exprResult{}, err
		}
		cmp := CompareEqual
		if tok.Type == NOT_EQ {
			cmp = CompareNotEqual
		}
		l = condResult(cmp, a, b)
	}
	return l, nil
}

func (p *Parser) parseRelational() (exprResult, error) {
	l, err := p.parseShift()
	if err != nil {
		return exprResult{}, err
	}
	for {
		var cmp CompareType
		switch p.peek().Type {
		case LESS:
			cmp = CompareLess
		case GREATER:
			cmp = CompareGreater
		case LESS_EQ:
			cmp = CompareLessOrEqual
		case GREATER_EQ:
			cmp = CompareGreaterOrEqual
		default:
			return l, nil
		}
		tok := p.advance()
		r, err := p.parseShift()
		if err != nil {
			return exprResult{}, err
		}
		a, err := p.value(l)
		if err != nil {
			return exprResult{}, err
		}
		b, err := p.value(r)
		if err != nil {
			return exprResult{}, err
		}
		if err := checkComparable(a, b, false, tok); err != nil {
			return exprResult{}, err
		}
		l = condResult(cmp, a, b)
	}
}

func checkComparable(a, b Operand, equality bool, tok Token) error {
	if a.Type.Base == BaseString || b.Type.Base == BaseString {
		if equality && a.Type.Base == BaseString && b.Type.Base == BaseString &&
			a.Type.Pointer == 0 && b.Type.Pointer == 0 {
			return nil
		}
		return newErrorAt(SourceStatement, tok.Line, tok.Column, "Cannot compare \"%s\" and \"%s\" values", a.Type, b.Type)
	}
	if LargestTypeForArithmetic(a.Type, b.Type).Base == BaseUnknown {
		return newErrorAt(SourceStatement, tok.Line, tok.Column, "Cannot compare \"%s\" and \"%s\" values", a.Type, b.Type)
	}
	return nil
}

func (p *Parser) parseShift() (exprResult, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return exprResult{}, err
	}
	for p.peek().Type == SHL_OP || p.peek().Type == SHR_OP {
		tok := p.advance()
		r, err := p.parseAdditive()
		if err != nil {
			return exprResult{}, err
		}
		op := AssignShiftLeft
		if tok.Type == SHR_OP {
			op = AssignShiftRight
		}
		l, err = p.emitArith(op, l, r, tok)
		if err != nil {
			return exprResult{}, err
		}
	}
	return l, nil
}

func (p *Parser) parseAdditive() (exprResult, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return exprResult{}, err
	}
	for p.peek().Type == PLUS || p.peek().Type == MINUS {
		tok := p.advance()
		r, err := p.parseMultiplicative()
		if err != nil {
			return exprResult{}, err
		}
		op := AssignAdd
		if tok.Type == MINUS {
			op = AssignSubtract
		}
		l, err = p.emitArith(op, l, r, tok)
		if err != nil {
			return exprResult{}, err
		}
	}
	return l, nil
}

func (p *Parser) parseMultiplicative() (exprResult, error) {
	l, err := p.parseUnary()
	if err != nil {
		return exprResult{}, err
	}
	for {
		var op AssignType
		switch p.peek().Type {
		case STAR:
			op = AssignMultiply
		case SLASH:
			op = AssignDivide
		case PERCENT:
			op = AssignRemainder
		default:
			return l, nil
		}
		tok := p.advance()
		r, err := p.parseUnary()
		if err != nil {
			return exprResult{}, err
		}
		l, err = p.emitArith(op, l, r, tok)
		if err != nil {
			return exprResult{}, err
		}
	}
}

// emitArith folds constant operands and otherwise emits an arithmetic
// assign into a fresh temp.
func (p *Parser) emitArith(op AssignType, l, r exprResult, tok Token) (exprResult, error) {
	a, err := p.value(l)
	if err != nil {
		return exprResult{}, err
	}
	b, err := p.value(r)
	if err != nil {
		return exprResult{}, err
	}

	if a.Type.Base == BaseString || b.Type.Base == BaseString {
		if op == AssignAdd && a.Exp == ExpConstant && b.Exp == ExpConstant &&
			a.Type.Base == BaseString && b.Type.Base == BaseString {
			return valueResult(Operand{
				Value: a.Value + b.Value,
				Type:  SymbolType{Base: BaseString},
				Exp:   ExpConstant,
			}), nil
		}
		return exprResult{}, p.stmtError(tok, "Cannot use operator %q on \"%s\" and \"%s\" values", tok.Lexeme, a.Type, b.Type)
	}

	resType := LargestTypeForArithmetic(a.Type, b.Type)
	if resType.Base == BaseUnknown {
		return exprResult{}, p.stmtError(tok, "Cannot use operator %q on \"%s\" and \"%s\" values", tok.Lexeme, a.Type, b.Type)
	}

	if a.Exp == ExpConstant && b.Exp == ExpConstant {
		folded, err := foldConstants(op, a.Value, b.Value, tok)
		if err != nil {
			return exprResult{}, err
		}
		return valueResult(Operand{Value: folded, Type: resType, Exp: ExpConstant}), nil
	}

	tmp := p.b.GetUnusedVariable(resType)
	p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
		Op: op, Dst: tmp.Name, Op1: a, Op2: b,
	}})
	return valueResult(Operand{Value: tmp.Name, Type: resType, Exp: ExpVariable}), nil
}

func foldConstants(op AssignType, a, b string, tok Token) (string, error) {
	x, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return "", newErrorAt(SourceStatement, tok.Line, tok.Column, "Invalid constant \"%s\"", a)
	}
	y, err := strconv.ParseUint(b, 10, 64)
	if err != nil {
		return "", newErrorAt(SourceStatement, tok.Line, tok.Column, "Invalid constant \"%s\"", b)
	}
	var v uint64
	switch op {
	case AssignAdd:
		v = x + y
	case AssignSubtract:
		v = x - y
	case AssignMultiply:
		v = x * y
	case AssignDivide:
		if y == 0 {
			return "", newErrorAt(SourceStatement, tok.Line, tok.Column, "Division by zero")
		}
		v = x / y
	case AssignRemainder:
		if y == 0 {
			return "", newErrorAt(SourceStatement, tok.Line, tok.Column, "Division by zero")
		}
		v = x % y
	case AssignShiftLeft:
		v = x << (y & 31)
	case AssignShiftRight:
		v = x >> (y & 31)
	}
	return fmt.Sprintf("%d", v&0xFFFFFFFF), nil
}

func (p *Parser) parseUnary() (exprResult, error) {
	switch p.peek().Type {
	case MINUS:
		tok := p.advance()
		r, err := p.parseUnary()
		if err != nil {
			return exprResult{}, err
		}
		v, err := p.value(r)
		if err != nil {
			return exprResult{}, err
		}
		if integerRank(v.Type.Base) == 0 || v.Type.Pointer > 0 {
			return exprResult{}, p.stmtError(tok, "Cannot negate \"%s\" value", v.Type)
		}
		if v.Exp == ExpConstant {
			x, convErr := strconv.ParseUint(v.Value, 10, 64)
			if convErr != nil {
				return exprResult{}, p.stmtError(tok, "Invalid constant \"%s\"", v.Value)
			}
			neg := (^x + 1) & 0xFFFFFFFF
			return valueResult(Operand{Value: fmt.Sprintf("%d", neg), Type: SymbolType{Base: BaseUint32}, Exp: ExpConstant}), nil
		}
		tmp := p.b.GetUnusedVariable(v.Type)
		p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
			Op: AssignNegation, Dst: tmp.Name, Op1: v,
		}})
		return valueResult(Operand{Value: tmp.Name, Type: v.Type, Exp: ExpVariable}), nil
	case NOT:
		tok := p.advance()
		r, err := p.parseUnary()
		if err != nil {
			return exprResult{}, err
		}
		return p.invert(r, tok)
	case AND:
		tok := p.advance()
		ident := p.peek()
		if ident.Type != IDENTIFIER {
			return exprResult{}, p.syntaxError(ident, "Expected identifier after \"&\"")
		}
		p.advance()
		sym := p.b.Table().GetParameter(ident.Lexeme)
		if sym == nil {
			return exprResult{}, p.stmtError(tok, "Variable \"%s\" is not declared", ident.Lexeme)
		}
		ptrType := SymbolType{Base: sym.Type.Base, Pointer: sym.Type.Pointer + 1}
		tmp := p.b.GetUnusedVariable(ptrType)
		p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
			Op:  AssignAddressOf,
			Dst: tmp.Name,
			Op1: Operand{Value: sym.Name, Type: sym.Type, Exp: ExpVariable},
		}})
		return valueResult(Operand{Value: tmp.Name, Type: ptrType, Exp: ExpVariable}), nil
	}
	return p.parsePostfix()
}

// invert turns a result into its logical negation. Plain comparisons
// flip their operator; everything else compares against zero.
func (p *Parser) invert(r exprResult, tok Token) (exprResult, error) {
	if r.cond {
		switch r.cmp {
		case CompareEqual:
			return condResult(CompareNotEqual, r.lhs, r.rhs), nil
		case CompareNotEqual:
			return condResult(CompareEqual, r.lhs, r.rhs), nil
		case CompareLess:
			return condResult(CompareGreaterOrEqual, r.lhs, r.rhs), nil
		case CompareGreater:
			return condResult(CompareLessOrEqual, r.lhs, r.rhs), nil
		case CompareLessOrEqual:
			return condResult(CompareGreater, r.lhs, r.rhs), nil
		case CompareGreaterOrEqual:
			return condResult(CompareLess, r.lhs, r.rhs), nil
		}
	}
	v, err := p.value(r)
	if err != nil {
		return exprResult{}, err
	}
	if v.Type.Base == BaseString {
		return exprResult{}, p.stmtError(tok, "Cannot negate \"%s\" value", v.Type)
	}
	zero := Operand{Value: "0", Type: SymbolType{Base: BaseUint8}, Exp: ExpConstant}
	return condResult(CompareEqual, v, zero), nil
}

func (p *Parser) parsePostfix() (exprResult, error) {
	tok := p.peek()
	switch tok.Type {
	case INTEGER:
		p.advance()
		v, err := strconv.ParseUint(tok.Lexeme, 10, 64)
		if err != nil || v > 0xFFFFFFFF {
			return exprResult{}, p.syntaxError(tok, "Integer literal \"%s\" is out of range", tok.Lexeme)
		}
		return valueResult(Operand{Value: tok.Lexeme, Type: constType(v), Exp: ExpConstant}), nil
	case STRING_LIT:
		p.advance()
		lit := Operand{Value: tok.Lexeme, Type: SymbolType{Base: BaseString}, Exp: ExpConstant}
		// Adjacent string literals concatenate.
		for p.peek().Type == STRING_LIT {
			lit.Value += p.advance().Lexeme
		}
		return valueResult(lit), nil
	case TRUE:
		p.advance()
		return valueResult(Operand{Value: "1", Type: SymbolType{Base: BaseBool}, Exp: ExpConstant}), nil
	case FALSE:
		p.advance()
		return valueResult(Operand{Value: "0", Type: SymbolType{Base: BaseBool}, Exp: ExpConstant}), nil
	case NULL:
		p.advance()
		return valueResult(Operand{Value: "0", Type: SymbolType{Base: BaseVoid, Pointer: 1}, Exp: ExpConstant}), nil
	case LPAREN:
		p.advance()
		r, err := p.parseExpression()
		if err != nil {
			return exprResult{}, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return exprResult{}, err
		}
		return r, nil
	case CAST:
		return p.parseCast()
	case ALLOC:
		return p.parseAlloc()
	case IDENTIFIER:
		p.advance()
		if p.peek().Type == LPAREN {
			op, err := p.parseCall(tok)
			if err != nil {
				return exprResult{}, err
			}
			return valueResult(op), nil
		}
		sym := p.b.Table().GetParameter(tok.Lexeme)
		if sym == nil {
			return exprResult{}, p.stmtError(tok, "Variable \"%s\" is not declared in this scope", tok.Lexeme)
		}
		if p.peek().Type == LBRACKET {
			idx, err := p.parseIndex(tok, sym)
			if err != nil {
				return exprResult{}, err
			}
			elemType := SymbolType{Base: sym.Type.Base, Pointer: sym.Type.Pointer - 1}
			return valueResult(Operand{Value: tok.Lexeme, Type: elemType, Exp: ExpVariable, Index: idx}), nil
		}
		return valueResult(Operand{Value: tok.Lexeme, Type: sym.Type, Exp: ExpVariable}), nil
	}
	return exprResult{}, p.syntaxError(tok, "Unexpected %s (%q) in expression", tok.Type, tok.Lexeme)
}

func (p *Parser) parseCast() (exprResult, error) {
	tok := p.advance()
	if _, err := p.expect(LESS); err != nil {
		return exprResult{}, err
	}
	target, err := p.parseType()
	if err != nil {
		return exprResult{}, err
	}
	if _, err := p.expect(GREATER); err != nil {
		return exprResult{}, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return exprResult{}, err
	}
	r, err := p.parseExpression()
	if err != nil {
		return exprResult{}, err
	}
	v, err := p.value(r)
	if err != nil {
		return exprResult{}, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return exprResult{}, err
	}
	if !CanExplicitCast(target, v.Type) {
		return exprResult{}, p.stmtError(tok, "Cannot cast \"%s\" value to \"%s\"", v.Type, target)
	}
	if v.Exp == ExpConstant {
		v.Type = target
		return valueResult(v), nil
	}
	tmp := p.b.GetUnusedVariable(target)
	p.b.AddToStream(&Instruction{Type: InstAssign, Assign: &AssignInstruction{
		Op: AssignNone, Dst: tmp.Name, Op1: v,
	}})
	return valueResult(Operand{Value: tmp.Name, Type: target, Exp: ExpVariable}), nil
}

// parseAlloc lowers "alloc<T>(n)" into a heap allocation of n elements.
func (p *Parser) parseAlloc() (exprResult, error) {
	tok := p.advance()
	if _, err := p.expect(LESS); err != nil {
		return exprResult{}, err
	}
	elem, err := p.parseType()
	if err != nil {
		return exprResult{}, err
	}
	if SizeOf(elem) == 0 {
		return exprResult{}, p.stmtError(tok, "Cannot allocate values of type \"%s\"", elem)
	}
	if _, err := p.expect(GREATER); err != nil {
		return exprResult{}, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return exprResult{}, err
	}
	r, err := p.parseExpression()
	if err != nil {
		return exprResult{}, err
	}
	count, err := p.value(r)
	if err != nil {
		return exprResult{}, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return exprResult{}, err
	}
	if integerRank(count.Type.Base) == 0 || count.Type.Pointer > 0 {
		return exprResult{}, p.stmtError(tok, "Allocation count must be an integer value")
	}

	size := Operand{Value: strconv.Itoa(SizeOf(elem)), Type: SymbolType{Base: BaseUint8}, Exp: ExpConstant}
	bytes, err := p.emitArith(AssignMultiply, valueResult(count), valueResult(size), tok)
	if err != nil {
		return exprResult{}, err
	}
	arg, err := p.value(bytes)
	if err != nil {
		return exprResult{}, err
	}
	p.b.PushParameter(arg)
	result, err := p.b.PrepareForCall("#Alloc", 1, tok.Line, tok.Column)
	if err != nil {
		return exprResult{}, err
	}
	result.Type = SymbolType{Base: elem.Base, Pointer: elem.Pointer + 1}
	return valueResult(result), nil
}

// parseCall handles "name(args)"; the opening paren is still pending.
func (p *Parser) parseCall(name Token) (Operand, error) {
	p.advance()
	argc := 0
	if p.peek().Type != RPAREN {
		for {
			r, err := p.parseExpression()
			if err != nil {
				return Operand{}, err
			}
			v, err := p.value(r)
			if err != nil {
				return Operand{}, err
			}
			p.b.PushParameter(v)
			argc++
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return Operand{}, err
	}
	return p.b.PrepareForCall(name.Lexeme, argc, name.Line, name.Column)
}
