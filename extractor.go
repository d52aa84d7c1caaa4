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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	headerStmt   = regexp.MustCompile(`^(.*?)\b(SUBROUTINE|FUNCTION)\s+([A-Z][A-Z0-9_]*)\s*(?:\(([^)]*)\))?\s*(?:RESULT\s*\(\s*([A-Z][A-Z0-9_]*)\s*\))?$`)
	endStmt      = regexp.MustCompile(`^END(\s*(SUBROUTINE|FUNCTION)(\s+[A-Z][A-Z0-9_]*)?)?$`)
	typeStmt     = regexp.MustCompile(`^(DOUBLE\s*PRECISION|DOUBLE\s*COMPLEX|COMPLEX|REAL|INTEGER|LOGICAL|CHARACTER)\b`)
	starLength   = regexp.MustCompile(`^\s*\*\s*(\d+|\(\s*\*\s*\)|\(\s*\d+\s*\))`)
	externalStmt = regexp.MustCompile(`^EXTERNAL\b\s*(?:::)?\s*(.*)$`)
	dimStmt      = regexp.MustCompile(`^DIMENSION\s+(.*)$`)
	entityDecl   = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)\s*(\*\s*(?:\d+|\(\s*\*\s*\)))?\s*(?:\((.*)\))?\s*(\*\s*(?:\d+|\(\s*\*\s*\)))?\s*(=.*)?$`)
	prefixWords  = regexp.MustCompile(`\b(RECURSIVE|PURE|ELEMENTAL|IMPURE)\b`)
)

// Extraction is the raw output of the extractor: one best-effort signature
// per routine found in the source tree.
type Extraction struct {
	Signatures map[string]*RoutineSignature `json:"signatures"`
	Files      []string                     `json:"files"`
}

// Names returns the extracted routine names, sorted.
func (e *Extraction) Names() []string {
	names := lo.Keys(e.Signatures)
	sort.Strings(names)
	return names
}

// Extract parses every source file with a registered dialect directly inside
// dirs. Files are parsed concurrently and merged in path order, so the result
// does not depend on scheduling.
func Extract(ctx context.Context, dirs ...string) (*Extraction, error) {
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if _, err := GetDialect(entry.Name()); err == nil {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no Fortran sources (%s) found in %s", strings.Join(ListExtensions(), ", "), strings.Join(dirs, ", "))
	}

	results := make([][]*RoutineSignature, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sigs, err := ExtractFile(file)
			if err != nil {
				return err
			}
			results[i] = sigs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	extraction := &Extraction{Signatures: make(map[string]*RoutineSignature)}
	for i, sigs := range results {
		extraction.Files = append(extraction.Files, filepath.ToSlash(files[i]))
		for _, sig := range sigs {
			if prev, ok := extraction.Signatures[sig.Name]; ok {
				Logger().Debug("duplicate routine, keeping first definition",
					zap.String("routine", sig.Name),
					zap.String("kept", prev.Source),
					zap.String("ignored", sig.Source))
				continue
			}
			extraction.Signatures[sig.Name] = sig
		}
	}
	Logger().Info("extracted signatures",
		zap.Int("files", len(files)),
		zap.Int("routines", len(extraction.Signatures)))
	return extraction, nil
}

// ExtractFile returns the signatures of every routine defined in one file.
func ExtractFile(path string) ([]*RoutineSignature, error) {
	dialect, err := GetDialect(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lines, err := dialect.Scan(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %v: %w", path, err)
	}
	return extractUnits(lines, filepath.Base(path)), nil
}

// header is a parsed SUBROUTINE or FUNCTION statement.
type header struct {
	name     string
	function bool
	typ      string
	args     []string
	result   string
}

func parseHeader(stmt string) (header, bool) {
	m := headerStmt.FindStringSubmatch(stmt)
	if m == nil {
		return header{}, false
	}
	prefix := strings.TrimSpace(prefixWords.ReplaceAllString(m[1], ""))
	if prefix != "" {
		if m[2] != "FUNCTION" {
			return header{}, false
		}
		if _, _, _, ok := parseTypeSpec(prefix, false); !ok {
			return header{}, false
		}
	}
	h := header{
		name:     m[3],
		function: m[2] == "FUNCTION",
		typ:      prefix,
		result:   m[5],
	}
	if strings.TrimSpace(m[4]) != "" {
		h.args = lo.Map(strings.Split(m[4], ","), func(arg string, _ int) string {
			return strings.TrimSpace(arg)
		})
	}
	return h, true
}

// declaration is what the type statements say about one name.
type declaration struct {
	kind   BaseKind
	note   string
	dims   []string
	intent Direction
	typed  bool
}

// unit accumulates one program unit between its header and END.
type unit struct {
	header
	decls     map[string]*declaration
	externals map[string]bool
	comments  []string
	depth     int
}

func (u *unit) decl(name string) *declaration {
	d, ok := u.decls[name]
	if !ok {
		d = &declaration{}
		u.decls[name] = d
	}
	return d
}

// extractUnits walks logical lines and builds one signature per program unit.
// Comments since the end of the previous unit belong to the next one, which
// covers both documentation placed before the header and after it.
func extractUnits(lines []SourceLine, source string) []*RoutineSignature {
	var (
		sigs     []*RoutineSignature
		cur      *unit
		comments []string
	)
	for _, line := range lines {
		if line.Comment {
			if cur != nil {
				cur.comments = append(cur.comments, line.Text)
			} else {
				comments = append(comments, line.Text)
			}
			continue
		}
		stmt := strings.ToUpper(strings.TrimSpace(line.Text))
		if stmt == "" {
			continue
		}
		if h, ok := parseHeader(stmt); ok {
			if cur == nil {
				cur = &unit{
					header:    h,
					decls:     make(map[string]*declaration),
					externals: make(map[string]bool),
					comments:  comments,
				}
				comments = nil
			}
			cur.depth++
			continue
		}
		if cur == nil {
			continue
		}
		if endStmt.MatchString(stmt) {
			cur.depth--
			if cur.depth == 0 {
				sig := cur.signature()
				sig.Source = source
				sigs = append(sigs, sig)
				cur = nil
			}
			continue
		}
		if cur.depth == 1 {
			cur.statement(stmt)
		}
	}
	return sigs
}

// statement records declarations; every other statement is ignored.
func (u *unit) statement(stmt string) {
	if m := externalStmt.FindStringSubmatch(stmt); m != nil {
		for _, name := range splitTopLevel(m[1]) {
			u.externals[strings.TrimSpace(name)] = true
		}
		return
	}
	if m := dimStmt.FindStringSubmatch(stmt); m != nil {
		for _, entity := range splitTopLevel(m[1]) {
			if e := entityDecl.FindStringSubmatch(strings.TrimSpace(entity)); e != nil && e[3] != "" {
				u.decl(e[1]).dims = trimAll(splitTopLevel(e[3]))
			}
		}
		return
	}
	if !typeStmt.MatchString(stmt) {
		return
	}
	var (
		attrs    []string
		entities string
		dcolon   = strings.Contains(stmt, "::")
	)
	typeText := stmt
	if dcolon {
		parts := strings.SplitN(stmt, "::", 2)
		lhs := splitTopLevel(parts[0])
		typeText, attrs, entities = strings.TrimSpace(lhs[0]), trimAll(lhs[1:]), parts[1]
	}
	kind, note, rest, ok := parseTypeSpec(typeText, dcolon)
	if !ok {
		return
	}
	if !dcolon {
		entities = rest
	} else if strings.TrimSpace(rest) != "" {
		return
	}

	var (
		attrDims []string
		intent   = DirUnresolved
	)
	for _, attr := range attrs {
		switch {
		case strings.HasPrefix(attr, "DIMENSION"):
			if open := strings.Index(attr, "("); open >= 0 && strings.HasSuffix(attr, ")") {
				attrDims = trimAll(splitTopLevel(attr[open+1 : len(attr)-1]))
			}
		case strings.HasPrefix(attr, "INTENT"):
			switch strings.ReplaceAll(strings.TrimPrefix(attr, "INTENT"), " ", "") {
			case "(IN)":
				intent = DirIn
			case "(OUT)":
				intent = DirOut
			case "(INOUT)", "(IN,OUT)":
				intent = DirInOut
			}
		case attr == "EXTERNAL":
			for _, entity := range splitTopLevel(entities) {
				u.externals[strings.TrimSpace(entity)] = true
			}
		}
	}

	for _, entity := range splitTopLevel(entities) {
		e := entityDecl.FindStringSubmatch(strings.TrimSpace(entity))
		if e == nil {
			continue
		}
		d := u.decl(e[1])
		d.kind, d.note, d.intent, d.typed = kind, note, intent, true
		if e[3] != "" {
			d.dims = trimAll(splitTopLevel(e[3]))
		} else if attrDims != nil {
			d.dims = attrDims
		}
	}
}

// parseTypeSpec reads a type specifier at the start of text and returns the
// kind and the remaining text. A kind selector in parentheses is only read when
// kindSelector is set (declarations with "::"), because without it
// "REAL A(N)" and "REAL (N)" cannot be told apart. CHARACTER length selectors
// are always accepted.
func parseTypeSpec(text string, kindSelector bool) (kind BaseKind, note string, rest string, ok bool) {
	m := typeStmt.FindStringSubmatchIndex(text)
	if m == nil {
		return "", "", "", false
	}
	keyword := strings.Join(strings.Fields(text[m[2]:m[3]]), " ")
	rest = text[m[1]:]

	var selector string
	if s := starLength.FindStringSubmatchIndex(rest); s != nil {
		selector = strings.Trim(strings.ReplaceAll(rest[s[2]:s[3]], " ", ""), "()")
		rest = rest[s[1]:]
	} else if trimmed := strings.TrimLeft(rest, " "); strings.HasPrefix(trimmed, "(") && (kindSelector || keyword == "CHARACTER") {
		end := matchingParen(trimmed)
		if end < 0 {
			return "", "", "", false
		}
		selector = strings.ReplaceAll(trimmed[1:end], " ", "")
		selector = strings.TrimPrefix(strings.TrimPrefix(selector, "KIND="), "LEN=")
		rest = trimmed[end+1:]
	}

	switch keyword {
	case "DOUBLE PRECISION", "DOUBLEPRECISION":
		kind = KindDouble
	case "DOUBLE COMPLEX", "DOUBLECOMPLEX":
		kind = KindComplex16
	case "REAL":
		switch selector {
		case "", "4":
			kind = KindReal
		case "8":
			kind = KindDouble
		}
	case "COMPLEX":
		switch selector {
		case "", "8", "4":
			kind = KindComplex
		case "16":
			kind = KindComplex16
		}
	case "INTEGER":
		if selector == "" {
			kind = KindInteger
		}
	case "LOGICAL":
		if selector == "" {
			kind = KindLogical
		}
	case "CHARACTER":
		kind = KindCharacter
	}
	if kind == "" {
		kind = KindUnresolved
		note = fmt.Sprintf("unsupported type %s(%s)", keyword, selector)
	}
	return kind, note, rest, true
}

func matchingParen(text string) int {
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(text string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, text[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, text[start:])
}

func trimAll(parts []string) []string {
	return lo.Map(parts, func(s string, _ int) string { return strings.TrimSpace(s) })
}

// signature turns the collected declarations and documentation into a
// RoutineSignature. Every field that cannot be read off the source is left in
// its unresolved variant with a note; nothing is guessed.
func (u *unit) signature() *RoutineSignature {
	docs := parseDocs(u.comments)
	sig := &RoutineSignature{Name: strings.ToLower(u.name)}
	argSet := lo.SliceToMap(u.args, func(arg string) (string, bool) {
		return strings.ToLower(arg), true
	})

	for _, arg := range u.args {
		sig.Params = append(sig.Params, u.parameter(arg, docs[strings.ToLower(arg)], argSet))
	}
	u.assignRoles(sig, docs)

	if u.function {
		kind, note := KindUnresolved, ""
		if u.typ != "" {
			kind, note, _, _ = parseTypeSpec(u.typ, false)
		} else {
			result := u.result
			if result == "" {
				result = u.name
			}
			if d, ok := u.decls[result]; ok && d.typed {
				kind, note = d.kind, d.note
			} else {
				note = "function result has no declared type"
			}
		}
		sig.Return = &kind
		if note != "" {
			sig.Notes = append(sig.Notes, note)
		}
	}
	return sig
}

func (u *unit) parameter(arg string, doc *paramDoc, argSet map[string]bool) ParameterDescriptor {
	p := ParameterDescriptor{
		Name:      strings.ToLower(arg),
		Kind:      KindUnresolved,
		Shape:     Shape{Rank: RankUnresolved},
		Direction: DirUnresolved,
		Role:      Role{Tag: RoleUnresolved},
	}
	d, declared := u.decls[arg]
	switch {
	case arg == "*":
		p.Notes = append(p.Notes, "alternate return")
		return p
	case u.externals[arg]:
		p.Notes = append(p.Notes, "procedure argument")
		return p
	case !declared || !d.typed:
		p.Notes = append(p.Notes, "no type declaration")
		return p
	}

	p.Kind = d.kind
	if d.note != "" {
		p.Notes = append(p.Notes, d.note)
	}
	p.Shape.Rank = RankScalar
	if d.dims != nil {
		p.Shape.Rank = RankArray
	}

	p.Direction = d.intent
	if p.Direction == DirUnresolved && doc != nil {
		p.Direction = doc.Intent
	}
	if p.Direction == DirUnresolved {
		if p.Kind != KindInteger && p.Kind != KindUnresolved {
			// passed through untouched, so the direction never matters
			p.Direction = DirInOut
		} else {
			p.Notes = append(p.Notes, "no documented intent")
		}
	}

	if p.Kind == KindInteger && p.IsArray() {
		length, err := integerArrayLength(p.Name, d.dims, doc, argSet)
		if err != nil {
			p.Shape.Rank = RankUnresolved
			p.Notes = append(p.Notes, err.Error())
		} else {
			p.Shape.Length = length
		}
	}
	return p
}

// integerArrayLength finds the element count of an INTEGER array, first from
// a one-dimensional declared bound and then from the documented dimension.
func integerArrayLength(name string, dims []string, doc *paramDoc, argSet map[string]bool) (string, error) {
	if len(dims) > 1 {
		return "", fmt.Errorf("multi-dimensional integer array")
	}
	text := ""
	if len(dims) == 1 && dims[0] != "*" && !strings.Contains(dims[0], ":") {
		text = dims[0]
	} else if dim, ok := doc.Dimension(); ok {
		text = dim
	} else {
		return "", fmt.Errorf("assumed-size integer array with no documented dimension")
	}
	if len(splitTopLevel(text)) > 1 {
		return "", fmt.Errorf("documented dimension (%s) is multi-dimensional", text)
	}
	expr, err := ParseLength(text)
	if err != nil {
		return "", fmt.Errorf("cannot read dimension: %w", err)
	}
	for _, ref := range expr.Refs() {
		if ref == name || !argSet[ref] {
			return "", fmt.Errorf("dimension (%s) refers to %s, which is not a usable argument", text, ref)
		}
	}
	return expr.String(), nil
}

// assignRoles tags INTEGER scalars. A documented workspace query wins, then
// INFO, then being the length of an integer array. A "-1" convention that is
// not called a workspace query is left unresolved.
func (u *unit) assignRoles(sig *RoutineSignature, docs map[string]*paramDoc) {
	lengthOf := make(map[string]string)
	for _, p := range sig.Params {
		if !p.IsInteger() || !p.IsArray() {
			continue
		}
		expr, err := ParseLength(p.Shape.Length)
		if err != nil {
			continue
		}
		for _, ref := range expr.Refs() {
			if _, ok := lengthOf[ref]; !ok {
				lengthOf[ref] = p.Name
			}
		}
	}

	for i := range sig.Params {
		p := &sig.Params[i]
		if p.Kind == KindUnresolved || p.Shape.Rank == RankUnresolved {
			continue
		}
		if !p.IsInteger() || p.IsArray() {
			p.Role = Role{Tag: RoleNone}
			continue
		}
		doc := docs[p.Name]
		switch {
		case doc.WorkspaceQuery():
			p.Role = Role{Tag: RoleWorkspaceQuery}
			p.Direction = DirInOut
		case p.Name == "info" && p.Direction.Out():
			p.Role = Role{Tag: RoleErrorCode}
		case doc.MentionsMinusOne():
			p.Notes = append(p.Notes, "documents a -1 value that is not a workspace query")
		case lengthOf[p.Name] != "":
			p.Role = Role{Tag: RoleArrayLengthOf, Of: lengthOf[p.Name]}
		default:
			p.Role = Role{Tag: RoleNone}
		}
	}
}

// SaveSignatures writes the extraction as indented JSON. Map keys are sorted by
// encoding/json, so unchanged sources give identical files.
func SaveSignatures(path string, e *Extraction) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(path, append(data, '\n'))
}

func LoadSignatures(path string) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e Extraction
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse signature file %v: %w", path, err)
	}
	if e.Signatures == nil {
		e.Signatures = make(map[string]*RoutineSignature)
	}
	return &e, nil
}
