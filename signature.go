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
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// BaseKind is the Fortran base type of a parameter or function result.
type BaseKind string

const (
	KindUnresolved BaseKind = "unresolved"
	KindInteger    BaseKind = "integer"
	KindReal       BaseKind = "real"
	KindDouble     BaseKind = "double"
	KindComplex    BaseKind = "complex"
	KindComplex16  BaseKind = "complex16"
	KindCharacter  BaseKind = "character"
	KindLogical    BaseKind = "logical"
)

// Rank tells scalars from arrays.
type Rank string

const (
	RankUnresolved Rank = "unresolved"
	RankScalar     Rank = "scalar"
	RankArray      Rank = "array"
)

// Shape is the rank of a parameter plus, for arrays, the element count as a
// length expression. Length is only required for INTEGER arrays, which are
// the only arrays that get copied.
type Shape struct {
	Rank   Rank   `json:"rank" mapstructure:"rank"`
	Length string `json:"length,omitempty" mapstructure:"length"`
}

type Direction string

const (
	DirUnresolved Direction = "unresolved"
	DirIn         Direction = "in"
	DirOut        Direction = "out"
	DirInOut      Direction = "inout"
)

// Copied in on entry.
func (d Direction) In() bool { return d == DirIn || d == DirInOut }

// Copied back on return.
func (d Direction) Out() bool { return d == DirOut || d == DirInOut }

type RoleTag string

const (
	RoleUnresolved     RoleTag = "unresolved"
	RoleNone           RoleTag = "none"
	RoleArrayLengthOf  RoleTag = "array-length-of"
	RoleWorkspaceQuery RoleTag = "workspace-size-query"
	RoleErrorCode      RoleTag = "error-code-out"
)

// Role is the special meaning of a parameter. Of names the array a
// RoleArrayLengthOf parameter sizes.
type Role struct {
	Tag RoleTag `json:"tag" mapstructure:"tag"`
	Of  string  `json:"of,omitempty" mapstructure:"of"`
}

// ParameterDescriptor describes one dummy argument. Fields the extractor could
// not determine hold their unresolved variant, and Notes says why.
type ParameterDescriptor struct {
	Name      string    `json:"name" mapstructure:"name"`
	Kind      BaseKind  `json:"kind" mapstructure:"kind"`
	Shape     Shape     `json:"shape" mapstructure:"shape"`
	Direction Direction `json:"direction" mapstructure:"direction"`
	Role      Role      `json:"role" mapstructure:"role"`
	Notes     []string  `json:"notes,omitempty" mapstructure:"notes"`
}

func (p *ParameterDescriptor) IsInteger() bool {
	return p.Kind == KindInteger
}

func (p *ParameterDescriptor) IsArray() bool {
	return p.Shape.Rank == RankArray
}

// UnresolvedFields lists the fields still holding an unresolved variant.
func (p *ParameterDescriptor) UnresolvedFields() []string {
	var fields []string
	if p.Kind == KindUnresolved || p.Kind == "" {
		fields = append(fields, "kind")
	}
	if p.Shape.Rank == RankUnresolved || p.Shape.Rank == "" {
		fields = append(fields, "shape")
	}
	if p.Direction == DirUnresolved || p.Direction == "" {
		fields = append(fields, "direction")
	}
	if p.Role.Tag == RoleUnresolved || p.Role.Tag == "" {
		fields = append(fields, "role")
	}
	return fields
}

// RoutineSignature is the call-order parameter list of one routine. Return is
// nil for subroutines.
type RoutineSignature struct {
	Name   string                `json:"name"`
	Params []ParameterDescriptor `json:"params"`
	Return *BaseKind             `json:"return,omitempty"`
	Source string                `json:"source,omitempty"`
	Notes  []string              `json:"notes,omitempty"`
}

func (s *RoutineSignature) IsFunction() bool {
	return s.Return != nil
}

// Param returns the parameter with the given (case-insensitive) name.
func (s *RoutineSignature) Param(name string) (*ParameterDescriptor, bool) {
	name = strings.ToLower(name)
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i], true
		}
	}
	return nil, false
}

// ErrorCodeParam returns the INFO-style parameter, if the routine has one.
func (s *RoutineSignature) ErrorCodeParam() (*ParameterDescriptor, bool) {
	for i := range s.Params {
		if s.Params[i].Role.Tag == RoleErrorCode {
			return &s.Params[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so that patches never alias extracted data.
func (s *RoutineSignature) Clone() *RoutineSignature {
	c := *s
	c.Params = make([]ParameterDescriptor, len(s.Params))
	for i, p := range s.Params {
		p.Notes = append([]string(nil), p.Notes...)
		c.Params[i] = p
	}
	if s.Return != nil {
		r := *s.Return
		c.Return = &r
	}
	c.Notes = append([]string(nil), s.Notes...)
	return &c
}

var returnKinds = []BaseKind{KindInteger, KindReal, KindDouble, KindComplex, KindComplex16, KindLogical}

// Validate reports every reason the signature cannot be wrapped. A nil result
// means every field is resolved and the parameter list is self-consistent.
func (s *RoutineSignature) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Name == "" {
		fail("routine has no name")
	}
	if s.Return != nil && !lo.Contains(returnKinds, *s.Return) {
		fail("unsupported result kind %q", *s.Return)
	}
	if dups := lo.FindDuplicates(lo.Map(s.Params, func(p ParameterDescriptor, _ int) string { return p.Name })); len(dups) > 0 {
		fail("duplicate parameters %s", strings.Join(dups, ", "))
	}

	errorCodes := 0
	for i := range s.Params {
		p := &s.Params[i]
		if fields := p.UnresolvedFields(); len(fields) > 0 {
			reason := fmt.Sprintf("parameter %s: unresolved %s", p.Name, strings.Join(fields, ", "))
			if len(p.Notes) > 0 {
				reason += " (" + strings.Join(p.Notes, "; ") + ")"
			}
			fail("%s", reason)
			continue
		}
		if p.Kind == KindCharacter && p.IsArray() {
			fail("parameter %s: character arrays cannot be forwarded", p.Name)
		}
		if p.IsInteger() && p.IsArray() {
			if err := s.validateLength(p); err != nil {
				fail("parameter %s: %w", p.Name, err)
			}
		}
		switch p.Role.Tag {
		case RoleWorkspaceQuery:
			if !p.IsInteger() || p.IsArray() || p.Direction != DirInOut {
				fail("parameter %s: workspace size query must be an INTEGER INOUT scalar", p.Name)
			}
		case RoleErrorCode:
			errorCodes++
			if !p.IsInteger() || p.IsArray() || !p.Direction.Out() {
				fail("parameter %s: error code must be an INTEGER OUT scalar", p.Name)
			}
		case RoleArrayLengthOf:
			if !p.IsInteger() || p.IsArray() {
				fail("parameter %s: array length must be an INTEGER scalar", p.Name)
			}
			if of, ok := s.Param(p.Role.Of); !ok || !of.IsArray() {
				fail("parameter %s: %q is not an array parameter", p.Name, p.Role.Of)
			}
		}
	}
	if errorCodes > 1 {
		fail("more than one error code parameter")
	}
	return errors.Join(errs...)
}

// validateLength checks that an INTEGER array's length can be evaluated from
// scalars that hold caller values when the wrapper is entered.
func (s *RoutineSignature) validateLength(p *ParameterDescriptor) error {
	if p.Shape.Length == "" {
		return errors.New("integer array without length")
	}
	expr, err := ParseLength(p.Shape.Length)
	if err != nil {
		return err
	}
	for _, ref := range expr.Refs() {
		q, ok := s.Param(ref)
		if !ok {
			return fmt.Errorf("length refers to unknown parameter %s", ref)
		}
		if !q.IsInteger() || q.IsArray() {
			return fmt.Errorf("length refers to %s, which is not an INTEGER scalar", ref)
		}
		if !q.Direction.In() {
			return fmt.Errorf("length refers to %s, which is output only", ref)
		}
	}
	return nil
}
