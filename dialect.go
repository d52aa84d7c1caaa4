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
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// SourceLine is one logical line of Fortran source: either a comment (the
// text after the comment marker) or a complete statement with continuation
// lines joined.
type SourceLine struct {
	Comment bool
	Text    string
	Line    int
}

// SourceDialect splits one source form into logical lines.
type SourceDialect interface {
	// Name returns the dialect name (e.g., "fixed", "free")
	Name() string

	// Extensions returns the file extensions handled by the dialect, with the dot
	Extensions() []string

	// Scan reads the whole source and returns its logical lines in file order
	Scan(r io.Reader) ([]SourceLine, error)
}

// dialects holds the registered source dialects, keyed by extension
var dialects = map[string]SourceDialect{}

// RegisterDialect registers a source dialect for each of its extensions
func RegisterDialect(d SourceDialect) {
	for _, ext := range d.Extensions() {
		dialects[ext] = d
	}
}

// GetDialect returns the dialect for a file name
func GetDialect(path string) (SourceDialect, error) {
	if d, ok := dialects[strings.ToLower(filepath.Ext(path))]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("unsupported source file: %s (available: %s)", path, strings.Join(ListExtensions(), ", "))
}

// ListExtensions returns the registered extensions, sorted
func ListExtensions() []string {
	exts := make([]string, 0, len(dialects))
	for ext := range dialects {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return scanner
}

// stripInlineComment cuts a trailing "!" comment that is not inside a
// character literal.
func stripInlineComment(text string) string {
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '!':
			return text[:i]
		}
	}
	return text
}

// FixedForm is FORTRAN 77 source: statements in columns 7-72, comment marker
// in column 1, continuation marker in column 6.
type FixedForm struct{}

func (FixedForm) Name() string { return "fixed" }

func (FixedForm) Extensions() []string { return []string{".f", ".for"} }

func (FixedForm) Scan(r io.Reader) ([]SourceLine, error) {
	var (
		lines []SourceLine
		last  = -1
		n     int
	)
	scanner := newLineScanner(r)
	for scanner.Scan() {
		n++
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		switch raw[0] {
		case '*', 'C', 'c', '!':
			lines = append(lines, SourceLine{Comment: true, Text: raw[1:], Line: n})
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(raw), "!") {
			lines = append(lines, SourceLine{Comment: true, Text: strings.TrimSpace(raw)[1:], Line: n})
			continue
		}
		var text string
		continuation := false
		if raw[0] == '\t' {
			// tab format: the statement starts right after the tab
			text = raw[1:]
		} else {
			if len(raw) > 72 {
				raw = raw[:72]
			}
			if len(raw) > 6 {
				text = raw[6:]
			}
			continuation = len(raw) > 5 && raw[5] != ' ' && raw[5] != '0' && strings.TrimSpace(raw[:5]) == ""
		}
		text = stripInlineComment(text)
		if continuation && last >= 0 {
			lines[last].Text += text
			continue
		}
		lines = append(lines, SourceLine{Text: text, Line: n})
		last = len(lines) - 1
	}
	return lines, scanner.Err()
}

// FreeForm is Fortran 90 source: "!" comments, trailing "&" continuations.
type FreeForm struct{}

func (FreeForm) Name() string { return "free" }

func (FreeForm) Extensions() []string { return []string{".f90"} }

func (FreeForm) Scan(r io.Reader) ([]SourceLine, error) {
	var (
		lines   []SourceLine
		last    = -1
		pending bool
		n       int
	)
	scanner := newLineScanner(r)
	for scanner.Scan() {
		n++
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "!") {
			lines = append(lines, SourceLine{Comment: true, Text: trimmed[1:], Line: n})
			continue
		}
		text := strings.TrimSpace(stripInlineComment(trimmed))
		more := strings.HasSuffix(text, "&")
		text = strings.TrimSuffix(text, "&")
		if pending && last >= 0 {
			lines[last].Text += " " + strings.TrimPrefix(text, "&")
		} else {
			lines = append(lines, SourceLine{Text: text, Line: n})
			last = len(lines) - 1
		}
		pending = more
	}
	return lines, scanner.Err()
}

func init() {
	RegisterDialect(FixedForm{})
	RegisterDialect(FreeForm{})
}
