// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// LengthExpr is an array length written in the small integer language used by
// the LAPACK documentation: constants, parameter names, + - * /, parentheses
// and MIN/MAX.
type LengthExpr struct {
	root *lengthNode
}

type lengthOp byte

const (
	opConst lengthOp = iota
	opRef
	opNeg
	opAdd
	opSub
	opMul
	opDiv
	opMin
	opMax
)

type lengthNode struct {
	op    lengthOp
	value int64
	name  string
	args  []*lengthNode
}

// ParseLength parses a length expression. Names are folded to lower case.
func ParseLength(text string) (*LengthExpr, error) {
	p := &lengthParser{src: text}
	p.next()
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("length %q: %w", text, err)
	}
	if p.tok != tokEOF {
		return nil, fmt.Errorf("length %q: unexpected %q", text, p.lit)
	}
	return &LengthExpr{root: root}, nil
}

// String renders the canonical form stored in signature files.
func (e *LengthExpr) String() string {
	var b strings.Builder
	w := lengthWriter{b: &b, ref: func(name string) string { return name }}
	w.write(e.root)
	return b.String()
}

// C renders the expression as C source, substituting ref(name) for every
// parameter reference. MIN and MAX are the preamble macros.
func (e *LengthExpr) C(ref func(name string) string) string {
	var b strings.Builder
	w := lengthWriter{b: &b, ref: ref, c: true}
	w.write(e.root)
	return b.String()
}

// Refs returns the referenced parameter names, sorted and deduplicated.
func (e *LengthExpr) Refs() []string {
	seen := make(map[string]struct{})
	var walk func(n *lengthNode)
	walk = func(n *lengthNode) {
		if n.op == opRef {
			seen[n.name] = struct{}{}
		}
		for _, a := range n.args {
			walk(a)
		}
	}
	walk(e.root)
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

func (e *LengthExpr) IsConst() bool {
	return len(e.Refs()) == 0
}

// Eval computes the length with Fortran integer semantics.
func (e *LengthExpr) Eval(env map[string]int64) (int64, error) {
	return evalLength(e.root, env)
}

func evalLength(n *lengthNode, env map[string]int64) (int64, error) {
	switch n.op {
	case opConst:
		return n.value, nil
	case opRef:
		v, ok := env[n.name]
		if !ok {
			return 0, fmt.Errorf("unbound parameter %s", n.name)
		}
		return v, nil
	}
	vals := make([]int64, len(n.args))
	for i, a := range n.args {
		v, err := evalLength(a, env)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	switch n.op {
	case opNeg:
		return -vals[0], nil
	case opAdd:
		return vals[0] + vals[1], nil
	case opSub:
		return vals[0] - vals[1], nil
	case opMul:
		return vals[0] * vals[1], nil
	case opDiv:
		if vals[1] == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return vals[0] / vals[1], nil
	case opMin, opMax:
		r := vals[0]
		for _, v := range vals[1:] {
			if (n.op == opMin && v < r) || (n.op == opMax && v > r) {
				r = v
			}
		}
		return r, nil
	}
	return 0, fmt.Errorf("invalid length node %d", n.op)
}

func precedence(op lengthOp) int {
	switch op {
	case opAdd, opSub:
		return 1
	case opMul, opDiv:
		return 2
	case opNeg:
		return 3
	default:
		return 4
	}
}

type lengthWriter struct {
	b   *strings.Builder
	ref func(string) string
	c   bool
}

func (w lengthWriter) write(n *lengthNode) {
	switch n.op {
	case opConst:
		w.b.WriteString(strconv.FormatInt(n.value, 10))
	case opRef:
		w.b.WriteString(w.ref(n.name))
	case opNeg:
		w.b.WriteByte('-')
		w.operand(n.args[0], precedence(opNeg), false)
	case opMin, opMax:
		w.call(n.op, n.args)
	default:
		prec := precedence(n.op)
		w.operand(n.args[0], prec, false)
		w.b.WriteString(map[lengthOp]string{opAdd: "+", opSub: "-", opMul: "*", opDiv: "/"}[n.op])
		w.operand(n.args[1], prec, true)
	}
}

func (w lengthWriter) call(op lengthOp, args []*lengthNode) {
	name := map[lengthOp]string{opMin: "min", opMax: "max"}[op]
	if !w.c {
		w.b.WriteString(name)
		w.b.WriteByte('(')
		for i, a := range args {
			if i > 0 {
				w.b.WriteByte(',')
			}
			w.write(a)
		}
		w.b.WriteByte(')')
		return
	}
	// The C macros take two operands, so longer lists nest to the right.
	w.b.WriteString(strings.ToUpper(name))
	w.b.WriteByte('(')
	w.write(args[0])
	w.b.WriteString(", ")
	if len(args) == 2 {
		w.write(args[1])
	} else {
		w.call(op, args[1:])
	}
	w.b.WriteByte(')')
}

func (w lengthWriter) operand(n *lengthNode, parent int, right bool) {
	prec := precedence(n.op)
	// a negated operand is always wrapped, so "a-(-b)" never prints as "a--b"
	paren := prec < parent || (right && prec == parent && prec < 4) || n.op == opNeg
	if paren {
		w.b.WriteByte('(')
	}
	w.write(n)
	if paren {
		w.b.WriteByte(')')
	}
}

type lengthToken int

const (
	tokEOF lengthToken = iota
	tokNum
	tokIdent
	tokPunct
)

type lengthParser struct {
	src string
	pos int
	tok lengthToken
	lit string
}

func (p *lengthParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok, p.lit = tokEOF, ""
		return
	}
	start := p.pos
	c := rune(p.src[p.pos])
	switch {
	case unicode.IsDigit(c):
		for p.pos < len(p.src) && unicode.IsDigit(rune(p.src[p.pos])) {
			p.pos++
		}
		p.tok = tokNum
	case unicode.IsLetter(c) || c == '_':
		for p.pos < len(p.src) && (unicode.IsLetter(rune(p.src[p.pos])) || unicode.IsDigit(rune(p.src[p.pos])) || p.src[p.pos] == '_') {
			p.pos++
		}
		p.tok = tokIdent
	default:
		p.pos++
		p.tok = tokPunct
	}
	p.lit = p.src[start:p.pos]
}

func (p *lengthParser) accept(punct string) bool {
	if p.tok == tokPunct && p.lit == punct {
		p.next()
		return true
	}
	return false
}

func (p *lengthParser) parseExpr() (*lengthNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok == tokPunct && (p.lit == "+" || p.lit == "-") {
		op := map[string]lengthOp{"+": opAdd, "-": opSub}[p.lit]
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &lengthNode{op: op, args: []*lengthNode{left, right}}
	}
	return left, nil
}

func (p *lengthParser) parseTerm() (*lengthNode, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.tok == tokPunct && (p.lit == "*" || p.lit == "/") {
		op := map[string]lengthOp{"*": opMul, "/": opDiv}[p.lit]
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &lengthNode{op: op, args: []*lengthNode{left, right}}
	}
	return left, nil
}

func (p *lengthParser) parseFactor() (*lengthNode, error) {
	switch p.tok {
	case tokNum:
		v, err := strconv.ParseInt(p.lit, 10, 64)
		if err != nil {
			return nil, err
		}
		p.next()
		return &lengthNode{op: opConst, value: v}, nil
	case tokIdent:
		name := strings.ToLower(p.lit)
		p.next()
		if name != "min" && name != "max" {
			if p.tok == tokPunct && p.lit == "(" {
				return nil, fmt.Errorf("unsupported function %s", name)
			}
			return &lengthNode{op: opRef, name: name}, nil
		}
		if !p.accept("(") {
			return nil, fmt.Errorf("expected ( after %s", name)
		}
		var args []*lengthNode
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.accept(")") {
				break
			}
			if !p.accept(",") {
				return nil, fmt.Errorf("expected , or ) in %s", name)
			}
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("%s needs at least two operands", name)
		}
		op := opMin
		if name == "max" {
			op = opMax
		}
		return &lengthNode{op: op, args: args}, nil
	case tokPunct:
		switch p.lit {
		case "(":
			p.next()
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if !p.accept(")") {
				return nil, fmt.Errorf("missing )")
			}
			return inner, nil
		case "-":
			p.next()
			inner, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return &lengthNode{op: opNeg, args: []*lengthNode{inner}}, nil
		}
		return nil, fmt.Errorf("unexpected %q", p.lit)
	}
	return nil, fmt.Errorf("unexpected end of expression")
}
