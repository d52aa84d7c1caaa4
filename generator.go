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
	"strings"

	"github.com/samber/lo"
)

// Version is written into the generated file header.
const Version = "0.3.0"

// cTypes are the C spellings of each base kind on the wrapper side (LP64) and
// on the library side (ILP64). Only INTEGER and LOGICAL differ.
var cTypes = map[BaseKind][2]string{
	KindInteger:   {"INT", "SRC_INT"},
	KindLogical:   {"INT", "SRC_INT"},
	KindReal:      {"float", "float"},
	KindDouble:    {"double", "double"},
	KindComplex:   {"c_t", "c_t"},
	KindComplex16: {"z_t", "z_t"},
	KindCharacter: {"char", "char"},
}

var zeroValues = map[BaseKind]string{
	KindInteger:   "0",
	KindLogical:   "0",
	KindReal:      "0",
	KindDouble:    "0",
	KindComplex:   "{0, 0}",
	KindComplex16: "{0, 0}",
}

// reservedCNames are Fortran argument names that are C keywords or collide
// with names used inside the generated wrappers.
var reservedCNames = map[string]string{
	"auto": "auto_", "break": "break_", "case": "case_", "char": "char_",
	"const": "const_", "continue": "continue_", "default": "default_", "do": "do_",
	"double": "double_", "else": "else_", "enum": "enum_", "extern": "extern_",
	"float": "float_", "for": "for_", "goto": "goto_", "if": "if_",
	"inline": "inline_", "int": "int_", "long": "long_", "register": "register_",
	"restrict": "restrict_", "return": "return_", "short": "short_", "signed": "signed_",
	"sizeof": "sizeof_", "static": "static_", "struct": "struct_", "switch": "switch_",
	"typedef": "typedef_", "union": "union_", "unsigned": "unsigned_", "void": "void_",
	"volatile": "volatile_", "while": "while_", "free": "free_", "calloc": "calloc_",
	"cleanup": "cleanup_",
}

// sanitizeCName renames arguments whose names cannot be used as C identifiers
// in the generated code.
func sanitizeCName(name string) string {
	if replacement, ok := reservedCNames[name]; ok {
		return replacement
	}
	return name
}

// wrapperParam is one parameter with everything the emitter needs.
type wrapperParam struct {
	ParameterDescriptor
	cname  string
	length *LengthExpr
}

func (p *wrapperParam) tmp() string { return p.cname + "_tmp" }

func (p *wrapperParam) count() string { return p.cname + "_count" }

func (p *wrapperParam) strlen() string { return p.cname + "_strlen" }

// constLength returns the element count of a constant-length integer array.
func (p *wrapperParam) constLength() (int64, bool) {
	if p.length == nil || !p.length.IsConst() {
		return 0, false
	}
	n, err := p.length.Eval(nil)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// wrapper is the conversion plan for one routine.
type wrapper struct {
	sig       *RoutineSignature
	lp64      string
	ilp64     string
	params    []*wrapperParam
	errorCode *wrapperParam
}

func newWrapper(sig *RoutineSignature, mapping SymbolMapping) (*wrapper, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	w := &wrapper{
		sig:   sig,
		lp64:  mapping.LP64Name(sig.Name),
		ilp64: mapping.ILP64Name(sig.Name),
	}
	for _, param := range sig.Params {
		p := &wrapperParam{ParameterDescriptor: param, cname: sanitizeCName(param.Name)}
		if p.IsInteger() && p.IsArray() {
			expr, err := ParseLength(p.Shape.Length)
			if err != nil {
				return nil, err
			}
			p.length = expr
		}
		if p.Role.Tag == RoleErrorCode {
			w.errorCode = p
		}
		w.params = append(w.params, p)
	}
	return w, nil
}

func (w *wrapper) integers() []*wrapperParam {
	return lo.Filter(w.params, func(p *wrapperParam, _ int) bool { return p.IsInteger() })
}

func (w *wrapper) scalars() []*wrapperParam {
	return lo.Filter(w.integers(), func(p *wrapperParam, _ int) bool { return !p.IsArray() })
}

func (w *wrapper) arrays() []*wrapperParam {
	return lo.Filter(w.integers(), func(p *wrapperParam, _ int) bool { return p.IsArray() })
}

func (w *wrapper) heapArrays() []*wrapperParam {
	return lo.Filter(w.arrays(), func(p *wrapperParam, _ int) bool {
		_, ok := p.constLength()
		return !ok
	})
}

func (w *wrapper) characters() []*wrapperParam {
	return lo.Filter(w.params, func(p *wrapperParam, _ int) bool { return p.Kind == KindCharacter })
}

// returnsWide reports whether the callee returns a 64-bit value.
func (w *wrapper) returnsWide() bool {
	return w.sig.Return != nil && (*w.sig.Return == KindInteger || *w.sig.Return == KindLogical)
}

// checksOverflow reports whether any wide value is narrowed on return.
func (w *wrapper) checksOverflow() bool {
	return (w.sig.Return != nil && *w.sig.Return == KindInteger) || lo.SomeBy(w.integers(), func(p *wrapperParam) bool {
		return p.Direction.Out() && p.Role.Tag != RoleErrorCode
	})
}

// needsReporter reports whether errors must go through xerbla because the
// routine has no INFO argument to carry them.
func (w *wrapper) needsReporter() bool {
	return w.errorCode == nil && (len(w.heapArrays()) > 0 || w.checksOverflow())
}

func (w *wrapper) returnType(side int) string {
	if w.sig.Return == nil {
		return "void"
	}
	return cTypes[*w.sig.Return][side]
}

// writeDeclaration writes the function head shared by prototype and definition.
func (w *wrapper) writeDeclaration(b *strings.Builder, side int) {
	name := w.lp64
	if side == 1 {
		name = w.ilp64
	}
	b.WriteString(w.returnType(side))
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteByte('(')
	var args []string
	for _, p := range w.params {
		args = append(args, fmt.Sprintf("%s *%s", cTypes[p.Kind][side], p.cname))
	}
	for _, p := range w.characters() {
		args = append(args, "size_t "+p.strlen())
	}
	if len(args) == 0 {
		args = []string{"void"}
	}
	b.WriteString(strings.Join(args, ", "))
	b.WriteByte(')')
}

func (w *wrapper) writePrototype(b *strings.Builder) {
	w.writeDeclaration(b, 1)
	b.WriteString(";\n")
}

// reportError writes the statement that delivers code to the caller: through
// the INFO argument when there is one, through xerbla otherwise.
func (w *wrapper) reportError(b *strings.Builder, indent, code string) {
	if w.errorCode != nil {
		fmt.Fprintf(b, "%s%s[0] = %s;\n", indent, w.errorCode.cname, code)
		return
	}
	upper := strings.ToUpper(w.sig.Name)
	fmt.Fprintf(b, "%sLAPACK6432_REPORT(\"%s\", %d, %s);\n", indent, upper, len(upper), code)
}

func (w *wrapper) writeDefinition(b *strings.Builder) {
	w.writeDeclaration(b, 0)
	b.WriteString("\n{\n")
	sections := []func(*strings.Builder){w.writeLocals, w.writeConvertIn, w.writeCall, w.writeConvertOut, w.writeExit}
	first := true
	for _, section := range sections {
		var s strings.Builder
		section(&s)
		if s.Len() == 0 {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(s.String())
		first = false
	}
	b.WriteString("}\n")
}

func (w *wrapper) writeLocals(b *strings.Builder) {
	for _, p := range w.integers() {
		switch n, constant := p.constLength(); {
		case !p.IsArray():
			fmt.Fprintf(b, "    SRC_INT %s[1];\n", p.tmp())
		case constant:
			fmt.Fprintf(b, "    SRC_INT %s[%d];\n", p.tmp(), n)
			fmt.Fprintf(b, "    SRC_INT %s = %d;\n", p.count(), n)
		default:
			fmt.Fprintf(b, "    SRC_INT *%s = NULL;\n", p.tmp())
			fmt.Fprintf(b, "    SRC_INT %s = 0;\n", p.count())
		}
	}
	if len(w.arrays()) > 0 {
		b.WriteString("    SRC_INT lp_idx;\n")
	}
	if w.checksOverflow() {
		b.WriteString("    int lp_overflow = 0;\n")
	}
	if w.sig.Return != nil {
		fmt.Fprintf(b, "    %s lp_ret = %s;\n", w.returnType(0), zeroValues[*w.sig.Return])
		if w.returnsWide() {
			b.WriteString("    SRC_INT lp_ret_tmp;\n")
		}
	}
}

// writeConvertIn widens scalars first, so that array lengths can be computed
// from converted values, then allocates and fills the arrays.
func (w *wrapper) writeConvertIn(b *strings.Builder) {
	for _, p := range w.scalars() {
		if p.Direction.In() {
			fmt.Fprintf(b, "    %s[0] = (SRC_INT)%s[0];\n", p.tmp(), p.cname)
		} else {
			fmt.Fprintf(b, "    %s[0] = 0;\n", p.tmp())
		}
	}
	for _, p := range w.arrays() {
		if _, constant := p.constLength(); !constant {
			fmt.Fprintf(b, "    %s = %s;\n", p.count(), p.length.C(w.scalarRef))
			fmt.Fprintf(b, "    %s = (SRC_INT *)calloc(LEN_ALLOC(%s), sizeof(SRC_INT));\n", p.tmp(), p.count())
			fmt.Fprintf(b, "    if (%s == NULL) {\n", p.tmp())
			w.reportError(b, "        ", "LAPACK6432_INFO_ALLOC")
			b.WriteString("        goto cleanup;\n")
			b.WriteString("    }\n")
		}
		if p.Direction.In() {
			fmt.Fprintf(b, "    for (lp_idx = 0; lp_idx < %s; ++lp_idx) %s[lp_idx] = (SRC_INT)%s[lp_idx];\n", p.count(), p.tmp(), p.cname)
		}
	}
}

// writeCall passes the wide copies of integers, everything else unchanged,
// and the hidden CHARACTER lengths after the explicit arguments.
func (w *wrapper) writeCall(b *strings.Builder) {
	var args []string
	for _, p := range w.params {
		switch p.Kind {
		case KindInteger:
			args = append(args, p.tmp())
		case KindLogical:
			args = append(args, "(SRC_INT *)"+p.cname)
		default:
			args = append(args, p.cname)
		}
	}
	for _, p := range w.characters() {
		args = append(args, p.strlen())
	}
	b.WriteString("    ")
	if w.returnsWide() {
		b.WriteString("lp_ret_tmp = ")
	} else if w.sig.Return != nil {
		b.WriteString("lp_ret = ")
	}
	fmt.Fprintf(b, "%s(%s);\n", w.ilp64, strings.Join(args, ", "))
}

// writeConvertOut narrows results with a range check. A value that does not
// fit is never stored; it raises the overflow code instead. The error code
// is written last so nothing overwrites it.
func (w *wrapper) writeConvertOut(b *strings.Builder) {
	for _, p := range w.arrays() {
		if !p.Direction.Out() {
			continue
		}
		fmt.Fprintf(b, "    for (lp_idx = 0; lp_idx < %s; ++lp_idx) {\n", w.copyOutCount(p))
		fmt.Fprintf(b, "        if (FITS_NARROW(%s[lp_idx])) %s[lp_idx] = (INT)%s[lp_idx];\n", p.tmp(), p.cname, p.tmp())
		b.WriteString("        else lp_overflow = 1;\n")
		b.WriteString("    }\n")
	}
	for _, p := range w.scalars() {
		if !p.Direction.Out() || p.Role.Tag == RoleErrorCode {
			continue
		}
		fmt.Fprintf(b, "    if (FITS_NARROW(%s[0])) %s[0] = (INT)%s[0];\n", p.tmp(), p.cname, p.tmp())
		b.WriteString("    else lp_overflow = 1;\n")
	}
	if w.returnsWide() {
		if *w.sig.Return == KindLogical {
			b.WriteString("    lp_ret = lp_ret_tmp ? 1 : 0;\n")
		} else {
			b.WriteString("    if (FITS_NARROW(lp_ret_tmp)) lp_ret = (INT)lp_ret_tmp;\n")
			b.WriteString("    else lp_overflow = 1;\n")
		}
	}
	if e := w.errorCode; e != nil {
		if w.checksOverflow() {
			fmt.Fprintf(b, "    if (lp_overflow || !FITS_NARROW(%s[0])) %s[0] = LAPACK6432_INFO_OVERFLOW;\n", e.tmp(), e.cname)
		} else {
			fmt.Fprintf(b, "    if (!FITS_NARROW(%s[0])) %s[0] = LAPACK6432_INFO_OVERFLOW;\n", e.tmp(), e.cname)
		}
		fmt.Fprintf(b, "    else %s[0] = (INT)%s[0];\n", e.cname, e.tmp())
	} else if w.checksOverflow() {
		b.WriteString("    if (lp_overflow) {\n")
		w.reportError(b, "        ", "LAPACK6432_INFO_OVERFLOW")
		b.WriteString("    }\n")
	}
}

// writeExit releases every heap buffer; allocation failures jump here too.
func (w *wrapper) writeExit(b *strings.Builder) {
	heap := w.heapArrays()
	if len(heap) > 0 {
		b.WriteString("cleanup:\n")
		for _, p := range heap {
			fmt.Fprintf(b, "    free(%s);\n", p.tmp())
		}
	}
	if w.sig.Return != nil {
		b.WriteString("    return lp_ret;\n")
	}
}

// copyOutCount is the number of elements narrowed back into an output array.
// A length read straight from a workspace query parameter is negative during
// the query, while the callee still answers in the first element.
func (w *wrapper) copyOutCount(p *wrapperParam) string {
	for _, ref := range p.length.Refs() {
		q, ok := lo.Find(w.scalars(), func(s *wrapperParam) bool { return s.Name == ref })
		if ok && q.Role.Tag == RoleWorkspaceQuery {
			return fmt.Sprintf("(SRC_INT)LEN_ALLOC(%s)", p.count())
		}
	}
	return p.count()
}

// scalarRef is how length expressions read an already converted scalar.
func (w *wrapper) scalarRef(name string) string {
	return sanitizeCName(name) + "_tmp[0]"
}

const preamble = `#ifndef LAPACK6432_NO_SYSTEM_HEADERS
#include <stddef.h>
#include <stdlib.h>
#ifdef _MSC_VER
typedef __int64 int64_t;
#else
#include <stdint.h>
#endif
#endif

#define INT int
#define SRC_INT int64_t

#define MIN(a, b) ((a) < (b) ? (a) : (b))
#define MAX(a, b) ((a) > (b) ? (a) : (b))
#define LEN_ALLOC(n) ((size_t)((n) < 1 ? 1 : (n)))
#define FITS_NARROW(v) ((v) >= -2147483647 - 1 && (v) <= 2147483647)

/* Error codes stored in INFO, outside the range LAPACK itself uses. */
#ifndef LAPACK6432_INFO_ALLOC
#define LAPACK6432_INFO_ALLOC (-1001)
#endif
#ifndef LAPACK6432_INFO_OVERFLOW
#define LAPACK6432_INFO_OVERFLOW (-1002)
#endif

typedef struct { float re; float im; } c_t;
typedef struct { double re; double im; } z_t;
`

// Generate renders the C source of every wrapper in db, in routine name
// order. The output depends only on db and mapping.
func Generate(db *Database, mapping SymbolMapping) ([]byte, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	sigs := append([]*RoutineSignature(nil), db.Routines...)
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })

	wrappers := make([]*wrapper, 0, len(sigs))
	for i, sig := range sigs {
		if i > 0 && sigs[i-1].Name == sig.Name {
			return nil, fmt.Errorf("%s: routine appears twice in the resolved database", sig.Name)
		}
		w, err := newWrapper(sig, mapping)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate wrapper code: %w", sig.Name, err)
		}
		wrappers = append(wrappers, w)
	}

	var b strings.Builder
	writeHeader(&b, db, mapping)
	b.WriteString(preamble)
	if lo.SomeBy(wrappers, (*wrapper).needsReporter) {
		writeReporter(&b, mapping)
	}
	for _, w := range wrappers {
		b.WriteString("\n\n")
		w.writePrototype(&b)
		b.WriteByte('\n')
		w.writeDefinition(&b)
	}
	return []byte(b.String()), nil
}

func writeHeader(b *strings.Builder, db *Database, mapping SymbolMapping) {
	b.WriteString("/*\n")
	b.WriteString(" * BLAS and LAPACK wrappers taking 32-bit integers (LP64) and calling\n")
	b.WriteString(" * a 64-bit integer (ILP64) build of the same library.\n")
	b.WriteString(" *\n")
	fmt.Fprintf(b, " * Code generated by lapack6432 %s. DO NOT EDIT.\n", Version)
	fmt.Fprintf(b, " * wrapper symbols: %s\n", mapping.LP64Name("name"))
	fmt.Fprintf(b, " * library symbols: %s\n", mapping.ILP64Name("name"))
	fmt.Fprintf(b, " * routines: %d wrapped, %d excluded\n", len(db.Routines), len(db.Excluded))
	fmt.Fprintf(b, " * database: %s\n", db.Fingerprint)
	b.WriteString(" */\n")
}

// writeReporter writes the helper that hands an error code to the library's
// own xerbla, for routines without an INFO argument.
func writeReporter(b *strings.Builder, mapping SymbolMapping) {
	xerbla := mapping.ILP64Name("xerbla")
	fmt.Fprintf(b, "\nvoid %s(char *srname, SRC_INT *info, size_t srname_strlen);\n", xerbla)
	b.WriteString("\n#ifndef LAPACK6432_REPORT\n")
	b.WriteString("static void lapack6432_report(const char *name, size_t len, SRC_INT code)\n")
	b.WriteString("{\n")
	b.WriteString("    SRC_INT info = code;\n")
	fmt.Fprintf(b, "    %s((char *)name, &info, len);\n", xerbla)
	b.WriteString("}\n")
	b.WriteString("#define LAPACK6432_REPORT lapack6432_report\n")
	b.WriteString("#endif\n")
}
