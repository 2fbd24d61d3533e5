// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/gomlx/clbench/pkg/support/sets"
	"github.com/pkg/errors"
)

// The parser accepts the subset of OpenCL C used by generated kernels:
//
//   - one `kernel void name(...)` function, parameters `global [const] float *p` or `local float *p`;
//   - `int` declarations, with the 1-D work-item builtins (get_global_id(0), get_local_id(0), ...);
//   - stores `p[i] = e;` and `p[i] += e;`;
//   - `if (cond) {...}`, `for (int v = e; cond; step) {...}` and `barrier(CLK_LOCAL_MEM_FENCE);`.
//
// Expressions follow C precedence. The result is a tree of statements whose expressions are
// already compiled to closures over a lane.

type token struct {
	kind rune // scanner.Ident, scanner.Int, scanner.EOF or scanner.Char for punctuation.
	text string
	pos  scanner.Position
}

var (
	// twoCharOps are the punctuation pairs combined into a single token.
	twoCharOps = sets.MakeWith("==", "!=", "<=", ">=", "+=", "-=", "*=", "++")

	// keywords can't be used as names of kernels, parameters or variables.
	keywords = sets.MakeWith("kernel", "__kernel", "void", "global", "__global", "local", "__local",
		"const", "float", "int", "if", "for", "barrier")
)

func tokenize(name, source string) ([]token, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(source))
	s.Filename = name
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanComments | scanner.SkipComments
	var scanErr error
	s.Error = func(s *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = errors.Errorf("%s: %s", s.Position, msg)
		}
	}
	var tokens []token
	for {
		kind := s.Scan()
		if scanErr != nil {
			return nil, scanErr
		}
		tok := token{kind: kind, text: s.TokenText(), pos: s.Position}
		switch kind {
		case scanner.EOF:
			tokens = append(tokens, tok)
			return tokens, nil
		case scanner.Ident, scanner.Int:
		default:
			if twoCharOps.Has(tok.text + string(s.Peek())) {
				tok.text += string(s.Next())
			}
			tok.kind = scanner.Char
		}
		tokens = append(tokens, tok)
	}
}

// memSpace of a kernel pointer parameter.
type memSpace int

const (
	globalSpace memSpace = iota
	localSpace
)

type param struct {
	name     string
	space    memSpace
	readOnly bool
}

// builtin work-item functions.
type builtin int

const (
	builtinGlobalID builtin = iota
	builtinLocalID
	builtinGroupID
	builtinLocalSize
	builtinGlobalSize
	builtinNumGroups
)

var builtins = map[string]builtin{
	"get_global_id":   builtinGlobalID,
	"get_local_id":    builtinLocalID,
	"get_group_id":    builtinGroupID,
	"get_local_size":  builtinLocalSize,
	"get_global_size": builtinGlobalSize,
	"get_num_groups":  builtinNumGroups,
}

// Statements of the kernel body.
type (
	stmt any

	// declStmt sets the int variable in slot: `int v = value;`, or `v = value;`.
	declStmt struct {
		slot  int
		value intFn
	}

	// storeStmt writes into the pointer parameter param: `p[index] = value;` or `p[index] += value;`.
	storeStmt struct {
		param      int
		index      intFn
		value      floatFn
		accumulate bool
	}

	// barrierStmt synchronizes all lanes of the work-group.
	barrierStmt struct {
		pos scanner.Position
	}

	ifStmt struct {
		cond intFn
		body []stmt
	}

	// forStmt is `for (init; cond; step) { body }`, with init and step setting the loop variable.
	forStmt struct {
		init, step *declStmt
		cond       intFn
		body       []stmt
		pos        scanner.Position
	}
)

// program is a parsed kernel.
type program struct {
	name     string
	params   []param
	numSlots int
	body     []stmt

	// hasBarrier is set if any barrier is used. Only then the lanes scheduler synchronizes the
	// lanes of a group with a barrier.
	hasBarrier bool
}

type parser struct {
	tokens []token
	pos    int

	prog        *program
	paramByName map[string]int
	slotByName  map[string]int
}

// parse the source and return the kernel with the given entry point.
func parse(source, entryPoint string) (*program, error) {
	tokens, err := tokenize(entryPoint+".cl", source)
	if err != nil {
		return nil, err
	}
	p := &parser{
		tokens:      tokens,
		prog:        &program{},
		paramByName: make(map[string]int),
		slotByName:  make(map[string]int),
	}
	if err := p.parseKernel(); err != nil {
		return nil, err
	}
	if p.prog.name != entryPoint {
		return nil, errors.Errorf("kernel %q not found in program, it defines %q", entryPoint, p.prog.name)
	}
	return p.prog, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != scanner.EOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return errors.Errorf("%s: %s", tok.pos, fmt.Sprintf(format, args...))
}

// is checks whether the next token has the given text.
func (p *parser) is(text string) bool {
	tok := p.peek()
	return tok.kind != scanner.EOF && tok.text == text
}

// accept consumes the next token if it has any of the given texts.
func (p *parser) accept(texts ...string) bool {
	for _, text := range texts {
		if p.is(text) {
			p.next()
			return true
		}
	}
	return false
}

func (p *parser) expect(texts ...string) (token, error) {
	tok := p.peek()
	for _, text := range texts {
		if tok.kind != scanner.EOF && tok.text == text {
			return p.next(), nil
		}
	}
	if tok.kind == scanner.EOF {
		return tok, p.errorf(tok, "expected %q, got end of program", texts[0])
	}
	return tok, p.errorf(tok, "expected %q, got %q", texts[0], tok.text)
}

func (p *parser) expectIdent() (token, error) {
	tok := p.next()
	if tok.kind != scanner.Ident {
		return tok, p.errorf(tok, "expected identifier, got %q", tok.text)
	}
	if keywords.Has(tok.text) {
		return tok, p.errorf(tok, "%q is a reserved word", tok.text)
	}
	return tok, nil
}

func (p *parser) parseKernel() error {
	if _, err := p.expect("kernel", "__kernel"); err != nil {
		return err
	}
	if _, err := p.expect("void"); err != nil {
		return err
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	p.prog.name = name.text
	if _, err := p.expect("("); err != nil {
		return err
	}
	for {
		if err := p.parseParam(); err != nil {
			return err
		}
		if p.accept(")") {
			break
		}
		if _, err := p.expect(","); err != nil {
			return err
		}
	}
	p.prog.body, err = p.parseBlock()
	if err != nil {
		return err
	}
	if tok := p.peek(); tok.kind != scanner.EOF {
		return p.errorf(tok, "unexpected %q after the end of kernel %q", tok.text, p.prog.name)
	}
	p.prog.numSlots = len(p.slotByName)
	return nil
}

func (p *parser) parseParam() error {
	var prm param
	switch {
	case p.accept("global", "__global"):
		prm.space = globalSpace
	case p.accept("local", "__local"):
		prm.space = localSpace
	default:
		tok := p.peek()
		return p.errorf(tok, "kernel parameters must be global or local pointers, got %q", tok.text)
	}
	prm.readOnly = p.accept("const")
	if _, err := p.expect("float"); err != nil {
		return err
	}
	if _, err := p.expect("*"); err != nil {
		return err
	}
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	prm.name = name.text
	if _, found := p.paramByName[prm.name]; found {
		return p.errorf(name, "duplicate parameter %q", prm.name)
	}
	p.paramByName[prm.name] = len(p.prog.params)
	p.prog.params = append(p.prog.params, prm)
	return nil
}

func (p *parser) parseBlock() ([]stmt, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	var stmts []stmt
	for !p.accept("}") {
		if p.peek().kind == scanner.EOF {
			return nil, p.errorf(p.peek(), "missing '}'")
		}
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func (p *parser) parseStmt() (stmt, error) {
	tok := p.peek()
	switch tok.text {
	case "int":
		s, err := p.parseIntAssign(true)
		if err != nil {
			return nil, err
		}
		_, err = p.expect(";")
		return s, err
	case "barrier":
		return p.parseBarrier()
	case "if":
		return p.parseIf()
	case "for":
		return p.parseFor()
	}
	if tok.kind != scanner.Ident {
		return nil, p.errorf(tok, "unexpected %q at the start of a statement", tok.text)
	}
	if _, isSlot := p.slotByName[tok.text]; isSlot {
		s, err := p.parseIntAssign(false)
		if err != nil {
			return nil, err
		}
		_, err = p.expect(";")
		return s, err
	}
	return p.parseStore()
}

// parseIntAssign parses `[int] v = e`, `v += e`, `v *= e` or `v++`, without the ending ';'.
func (p *parser) parseIntAssign(declare bool) (*declStmt, error) {
	if declare {
		p.next() // "int"
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	slot, found := p.slotByName[name.text]
	if !found {
		if !declare {
			return nil, p.errorf(name, "undeclared variable %q", name.text)
		}
		if _, isParam := p.paramByName[name.text]; isParam {
			return nil, p.errorf(name, "variable %q shadows a kernel parameter", name.text)
		}
		slot = len(p.slotByName)
		p.slotByName[name.text] = slot
	}
	current := func(l *lane) int { return l.ints[slot] }
	if !declare && p.accept("++") {
		return &declStmt{slot: slot, value: func(l *lane) int { return current(l) + 1 }}, nil
	}
	opTok, err := p.expect("=", "+=", "-=", "*=")
	if err != nil {
		return nil, err
	}
	if declare && opTok.text != "=" {
		return nil, p.errorf(opTok, "declaration of %q requires '='", name.text)
	}
	value, err := p.parseIntExpr()
	if err != nil {
		return nil, err
	}
	switch opTok.text {
	case "+=":
		return &declStmt{slot: slot, value: func(l *lane) int { return current(l) + value(l) }}, nil
	case "-=":
		return &declStmt{slot: slot, value: func(l *lane) int { return current(l) - value(l) }}, nil
	case "*=":
		return &declStmt{slot: slot, value: func(l *lane) int { return current(l) * value(l) }}, nil
	default:
		return &declStmt{slot: slot, value: value}, nil
	}
}

func (p *parser) parseBarrier() (stmt, error) {
	tok := p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	if _, err := p.expect("CLK_LOCAL_MEM_FENCE", "CLK_GLOBAL_MEM_FENCE"); err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	p.prog.hasBarrier = true
	return &barrierStmt{pos: tok.pos}, nil
}

func (p *parser) parseIf() (stmt, error) {
	p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseIntExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ifStmt{cond: cond, body: body}, nil
}

func (p *parser) parseFor() (stmt, error) {
	tok := p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	if !p.is("int") {
		return nil, p.errorf(p.peek(), "for loops must declare their variable, got %q", p.peek().text)
	}
	init, err := p.parseIntAssign(true)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	cond, err := p.parseIntExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	step, err := p.parseIntAssign(false)
	if err != nil {
		return nil, err
	}
	if step.slot != init.slot {
		return nil, p.errorf(tok, "for loop step must update the loop variable")
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &forStmt{init: init, step: step, cond: cond, body: body, pos: tok.pos}, nil
}

func (p *parser) parseStore() (stmt, error) {
	name := p.next()
	paramIdx, found := p.paramByName[name.text]
	if !found {
		return nil, p.errorf(name, "undeclared identifier %q", name.text)
	}
	if p.prog.params[paramIdx].readOnly {
		return nil, p.errorf(name, "cannot assign to %q: it is a pointer to const", name.text)
	}
	if _, err := p.expect("["); err != nil {
		return nil, err
	}
	index, err := p.parseIntExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	opTok, err := p.expect("=", "+=")
	if err != nil {
		return nil, err
	}
	value, err := p.parseFloatExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &storeStmt{param: paramIdx, index: index, value: value, accumulate: opTok.text == "+="}, nil
}

// Expressions are parsed into typedExpr, holding either an int or a float closure.
type (
	intFn   func(l *lane) int
	floatFn func(l *lane) float32
)

type typedExpr struct {
	i intFn
	f floatFn
}

func (e typedExpr) isFloat() bool { return e.f != nil }

func (e typedExpr) asFloat() floatFn {
	if e.f != nil {
		return e.f
	}
	i := e.i
	return func(l *lane) float32 { return float32(i(l)) }
}

func (p *parser) parseIntExpr() (intFn, error) {
	tok := p.peek()
	e, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}
	if e.isFloat() {
		return nil, p.errorf(tok, "expected an int expression, got a float one")
	}
	return e.i, nil
}

func (p *parser) parseFloatExpr() (floatFn, error) {
	e, err := p.parseBitAnd()
	if err != nil {
		return nil, err
	}
	return e.asFloat(), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (p *parser) parseBitAnd() (typedExpr, error) {
	x, err := p.parseEquality()
	if err != nil {
		return x, err
	}
	for p.is("&") {
		tok := p.next()
		y, err := p.parseEquality()
		if err != nil {
			return y, err
		}
		if x.isFloat() || y.isFloat() {
			return x, p.errorf(tok, "invalid operands to '&': float")
		}
		xi, yi := x.i, y.i
		x = typedExpr{i: func(l *lane) int { return xi(l) & yi(l) }}
	}
	return x, nil
}

func (p *parser) parseEquality() (typedExpr, error) {
	x, err := p.parseRelational()
	if err != nil {
		return x, err
	}
	for p.is("==") || p.is("!=") {
		tok := p.next()
		y, err := p.parseRelational()
		if err != nil {
			return y, err
		}
		x = compare(tok.text, x, y)
	}
	return x, nil
}

func (p *parser) parseRelational() (typedExpr, error) {
	x, err := p.parseAdditive()
	if err != nil {
		return x, err
	}
	for p.is("<") || p.is(">") || p.is("<=") || p.is(">=") {
		tok := p.next()
		y, err := p.parseAdditive()
		if err != nil {
			return y, err
		}
		x = compare(tok.text, x, y)
	}
	return x, nil
}

// compare returns an int expression (0 or 1), comparing as floats if any of the operands is float.
func compare(op string, x, y typedExpr) typedExpr {
	var cmp func(a, b float64) bool
	switch op {
	case "==":
		cmp = func(a, b float64) bool { return a == b }
	case "!=":
		cmp = func(a, b float64) bool { return a != b }
	case "<":
		cmp = func(a, b float64) bool { return a < b }
	case ">":
		cmp = func(a, b float64) bool { return a > b }
	case "<=":
		cmp = func(a, b float64) bool { return a <= b }
	default:
		cmp = func(a, b float64) bool { return a >= b }
	}
	if x.isFloat() || y.isFloat() {
		xf, yf := x.asFloat(), y.asFloat()
		return typedExpr{i: func(l *lane) int { return boolToInt(cmp(float64(xf(l)), float64(yf(l)))) }}
	}
	xi, yi := x.i, y.i
	return typedExpr{i: func(l *lane) int { return boolToInt(cmp(float64(xi(l)), float64(yi(l)))) }}
}

func (p *parser) parseAdditive() (typedExpr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return x, err
	}
	for p.is("+") || p.is("-") {
		op := p.next().text
		y, err := p.parseMultiplicative()
		if err != nil {
			return y, err
		}
		x = arithmetic(op, x, y)
	}
	return x, nil
}

func (p *parser) parseMultiplicative() (typedExpr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return x, err
	}
	for p.is("*") || p.is("/") || p.is("%") {
		opTok := p.next()
		y, err := p.parsePrimary()
		if err != nil {
			return y, err
		}
		if opTok.text == "*" {
			x = arithmetic("*", x, y)
			continue
		}
		if x.isFloat() || y.isFloat() {
			return x, p.errorf(opTok, "operator %q only supported for int expressions", opTok.text)
		}
		x = division(opTok.text, x.i, y.i)
	}
	return x, nil
}

// division returns the int quotient ("/") or remainder ("%"). Division by zero fails the lane.
func division(op string, x, y intFn) typedExpr {
	return typedExpr{i: func(l *lane) int {
		divisor := y(l)
		if divisor == 0 {
			l.fail(errors.Errorf("lane %d: integer division by zero", l.globalID))
			return 0
		}
		if op == "%" {
			return x(l) % divisor
		}
		return x(l) / divisor
	}}
}

// arithmetic combines x and y with op ("+", "-" or "*"), promoting to float if either is float.
func arithmetic(op string, x, y typedExpr) typedExpr {
	if x.isFloat() || y.isFloat() {
		xf, yf := x.asFloat(), y.asFloat()
		switch op {
		case "+":
			return typedExpr{f: func(l *lane) float32 { return xf(l) + yf(l) }}
		case "-":
			return typedExpr{f: func(l *lane) float32 { return xf(l) - yf(l) }}
		default:
			return typedExpr{f: func(l *lane) float32 { return xf(l) * yf(l) }}
		}
	}
	xi, yi := x.i, y.i
	switch op {
	case "+":
		return typedExpr{i: func(l *lane) int { return xi(l) + yi(l) }}
	case "-":
		return typedExpr{i: func(l *lane) int { return xi(l) - yi(l) }}
	default:
		return typedExpr{i: func(l *lane) int { return xi(l) * yi(l) }}
	}
}

func (p *parser) parsePrimary() (typedExpr, error) {
	tok := p.next()
	switch {
	case tok.kind == scanner.Int:
		value, err := strconv.Atoi(tok.text)
		if err != nil {
			return typedExpr{}, p.errorf(tok, "invalid integer %q", tok.text)
		}
		return typedExpr{i: func(*lane) int { return value }}, nil

	case tok.text == "(":
		e, err := p.parseBitAnd()
		if err != nil {
			return e, err
		}
		_, err = p.expect(")")
		return e, err

	case tok.kind == scanner.Ident:
		if b, isBuiltin := builtins[tok.text]; isBuiltin {
			return p.parseBuiltinCall(tok, b)
		}
		if slot, isSlot := p.slotByName[tok.text]; isSlot {
			return typedExpr{i: func(l *lane) int { return l.ints[slot] }}, nil
		}
		if paramIdx, isParam := p.paramByName[tok.text]; isParam {
			return p.parseLoad(tok, paramIdx)
		}
		return typedExpr{}, p.errorf(tok, "undeclared identifier %q", tok.text)
	}
	if tok.kind == scanner.EOF {
		return typedExpr{}, p.errorf(tok, "unexpected end of program in expression")
	}
	return typedExpr{}, p.errorf(tok, "unexpected %q in expression", tok.text)
}

func (p *parser) parseBuiltinCall(name token, b builtin) (typedExpr, error) {
	if _, err := p.expect("("); err != nil {
		return typedExpr{}, err
	}
	dim := p.next()
	if dim.kind != scanner.Int || dim.text != "0" {
		return typedExpr{}, p.errorf(dim, "%s: only 1-D launches are supported, dimension must be 0", name.text)
	}
	if _, err := p.expect(")"); err != nil {
		return typedExpr{}, err
	}
	var fn intFn
	switch b {
	case builtinGlobalID:
		fn = func(l *lane) int { return l.globalID }
	case builtinLocalID:
		fn = func(l *lane) int { return l.localID }
	case builtinGroupID:
		fn = func(l *lane) int { return l.group.id }
	case builtinLocalSize:
		fn = func(l *lane) int { return l.group.localSize }
	case builtinGlobalSize:
		fn = func(l *lane) int { return l.group.globalSize }
	case builtinNumGroups:
		fn = func(l *lane) int { return l.group.globalSize / l.group.localSize }
	}
	return typedExpr{i: fn}, nil
}

func (p *parser) parseLoad(name token, paramIdx int) (typedExpr, error) {
	if _, err := p.expect("["); err != nil {
		return typedExpr{}, err
	}
	index, err := p.parseIntExpr()
	if err != nil {
		return typedExpr{}, err
	}
	if _, err := p.expect("]"); err != nil {
		return typedExpr{}, err
	}
	paramName := name.text
	return typedExpr{f: func(l *lane) float32 {
		mem := l.group.mem[paramIdx]
		idx := index(l)
		if idx < 0 || idx >= len(mem) {
			l.fail(errors.Errorf("lane %d: out of bounds read %s[%d], buffer has %d elements", l.globalID, paramName, idx, len(mem)))
			return 0
		}
		return mem[idx]
	}}, nil
}
