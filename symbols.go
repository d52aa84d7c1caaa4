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
	"regexp"
	"strings"
)

var symbolAffix = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// SymbolScheme turns a routine name into a linkage name:
// Prefix + name + "_" + Suffix, the trailing underscore being the Fortran
// compiler convention.
type SymbolScheme struct {
	Prefix     string `json:"prefix"`
	Suffix     string `json:"suffix"`
	Underscore bool   `json:"underscore"`
}

func (s SymbolScheme) Name(routine string) string {
	var b strings.Builder
	b.WriteString(s.Prefix)
	b.WriteString(strings.ToLower(routine))
	if s.Underscore {
		b.WriteByte('_')
	}
	b.WriteString(s.Suffix)
	return b.String()
}

func (s SymbolScheme) Validate() error {
	for _, affix := range []string{s.Prefix, s.Suffix} {
		if !symbolAffix.MatchString(affix) {
			return fmt.Errorf("invalid symbol affix %q: only letters, digits and _ are allowed", affix)
		}
	}
	return nil
}

// SymbolMapping names both sides of a wrapper: the LP64 symbol it exports and
// the ILP64 symbol it calls.
type SymbolMapping struct {
	LP64  SymbolScheme `json:"lp64"`
	ILP64 SymbolScheme `json:"ilp64"`
}

// DefaultSymbolMapping exports dgesv_ and calls dgesv_64_.
func DefaultSymbolMapping() SymbolMapping {
	return SymbolMapping{
		LP64:  SymbolScheme{Underscore: true},
		ILP64: SymbolScheme{Suffix: "64_", Underscore: true},
	}
}

func (m SymbolMapping) LP64Name(routine string) string {
	return m.LP64.Name(routine)
}

func (m SymbolMapping) ILP64Name(routine string) string {
	return m.ILP64.Name(routine)
}

// Validate rejects affixes that are not identifiers and mappings under which
// wrapper and callee would share a symbol.
func (m SymbolMapping) Validate() error {
	if err := m.LP64.Validate(); err != nil {
		return fmt.Errorf("wrapper symbols: %w", err)
	}
	if err := m.ILP64.Validate(); err != nil {
		return fmt.Errorf("library symbols: %w", err)
	}
	// Both schemes wrap the routine name in fixed affixes, so names collide
	// for one routine exactly when they collide for all of them.
	if m.LP64Name("dgesv") == m.ILP64Name("dgesv") {
		return fmt.Errorf("wrapper and library symbols collide: both map dgesv to %s", m.LP64Name("dgesv"))
	}
	return nil
}
