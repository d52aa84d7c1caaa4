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
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ParamPatch replaces the fields it sets and leaves the others as extracted.
// Shape and Role are replaced as a whole, never merged.
type ParamPatch struct {
	Kind      *BaseKind  `mapstructure:"kind"`
	Shape     *Shape     `mapstructure:"shape"`
	Direction *Direction `mapstructure:"direction"`
	Role      *Role      `mapstructure:"role"`
}

// Fields names the fields the patch sets.
func (p ParamPatch) Fields() []string {
	var fields []string
	if p.Kind != nil {
		fields = append(fields, "kind")
	}
	if p.Shape != nil {
		fields = append(fields, "shape")
	}
	if p.Direction != nil {
		fields = append(fields, "direction")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	return fields
}

// ReplaceSignature is a complete hand-written signature.
type ReplaceSignature struct {
	Params []ParameterDescriptor `mapstructure:"params"`
	Return *BaseKind             `mapstructure:"return"`
}

// OverridePatch is the hand-maintained correction for one routine: either a
// full replacement or sparse per-parameter patches plus an optional result
// kind.
type OverridePatch struct {
	Routine string                `mapstructure:"-"`
	Comment string                `mapstructure:"comment"`
	Replace *ReplaceSignature     `mapstructure:"replace"`
	Params  map[string]ParamPatch `mapstructure:"params"`
	Return  *BaseKind             `mapstructure:"return"`
}

// Overrides maps lower-case routine names to their patches.
type Overrides map[string]*OverridePatch

func (o Overrides) Names() []string {
	names := lo.Keys(o)
	sort.Strings(names)
	return names
}

func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseOverrides(data, path)
}

// ParseOverrides reads an override file in YAML (or JSON). Every patch is
// decoded strictly, so a misspelled field or an unknown enum value is a
// configuration error instead of a patch that silently does nothing.
func ParseOverrides(data []byte, file string) (Overrides, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{File: file, Reason: err.Error()}
	}
	overrides := make(Overrides, len(raw))
	var errs []error
	names := lo.Keys(raw)
	sort.Strings(names)
	for _, name := range names {
		routine := strings.ToLower(name)
		patch, err := decodePatch(raw[name])
		if err == nil {
			err = patch.normalize()
		}
		if err == nil {
			if _, dup := overrides[routine]; dup {
				err = errors.New("listed more than once")
			}
		}
		if err != nil {
			errs = append(errs, &ConfigError{File: file, Routine: routine, Reason: err.Error()})
			continue
		}
		patch.Routine = routine
		overrides[routine] = patch
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return overrides, nil
}

func decodePatch(raw map[string]any) (*OverridePatch, error) {
	var patch OverridePatch
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &patch,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, err
	}
	return &patch, nil
}

var (
	knownKinds      = []BaseKind{KindUnresolved, KindInteger, KindReal, KindDouble, KindComplex, KindComplex16, KindCharacter, KindLogical}
	knownRanks      = []Rank{RankUnresolved, RankScalar, RankArray}
	knownDirections = []Direction{DirUnresolved, DirIn, DirOut, DirInOut}
	knownRoles      = []RoleTag{RoleUnresolved, RoleNone, RoleArrayLengthOf, RoleWorkspaceQuery, RoleErrorCode}
)

// normalize lower-cases names, canonicalizes length expressions and checks
// enum values.
func (p *OverridePatch) normalize() error {
	if p.Replace != nil && (len(p.Params) > 0 || p.Return != nil) {
		return errors.New("replace cannot be combined with params or return")
	}
	if p.Return != nil && !lo.Contains(knownKinds, *p.Return) {
		return fmt.Errorf("unknown return kind %q", *p.Return)
	}
	if p.Replace != nil {
		if p.Replace.Return != nil && !lo.Contains(knownKinds, *p.Replace.Return) {
			return fmt.Errorf("unknown return kind %q", *p.Replace.Return)
		}
		for i := range p.Replace.Params {
			q := &p.Replace.Params[i]
			q.Name = strings.ToLower(q.Name)
			q.Role.Of = strings.ToLower(q.Role.Of)
			if err := checkPatch(q.Name, ParamPatch{Kind: &q.Kind, Shape: &q.Shape, Direction: &q.Direction, Role: &q.Role}); err != nil {
				return err
			}
		}
		return nil
	}
	params := make(map[string]ParamPatch, len(p.Params))
	for name, patch := range p.Params {
		name = strings.ToLower(name)
		if patch.Role != nil {
			patch.Role.Of = strings.ToLower(patch.Role.Of)
		}
		if err := checkPatch(name, patch); err != nil {
			return err
		}
		if _, dup := params[name]; dup {
			return fmt.Errorf("parameter %s patched more than once", name)
		}
		params[name] = patch
	}
	p.Params = params
	return nil
}

func checkPatch(name string, patch ParamPatch) error {
	if patch.Kind != nil && !lo.Contains(knownKinds, *patch.Kind) {
		return fmt.Errorf("parameter %s: unknown kind %q", name, *patch.Kind)
	}
	if patch.Direction != nil && !lo.Contains(knownDirections, *patch.Direction) {
		return fmt.Errorf("parameter %s: unknown direction %q", name, *patch.Direction)
	}
	if patch.Role != nil && !lo.Contains(knownRoles, patch.Role.Tag) {
		return fmt.Errorf("parameter %s: unknown role %q", name, patch.Role.Tag)
	}
	if patch.Shape != nil {
		if !lo.Contains(knownRanks, patch.Shape.Rank) {
			return fmt.Errorf("parameter %s: unknown rank %q", name, patch.Shape.Rank)
		}
		if patch.Shape.Length != "" {
			expr, err := ParseLength(patch.Shape.Length)
			if err != nil {
				return fmt.Errorf("parameter %s: %w", name, err)
			}
			patch.Shape.Length = expr.String()
		}
	}
	return nil
}

// Apply returns the patched copy of sig; sig itself is not modified. Patching a
// parameter the signature does not have is a configuration error.
func (p *OverridePatch) Apply(sig *RoutineSignature) (*RoutineSignature, error) {
	if p.Replace != nil {
		out := &RoutineSignature{
			Name:   sig.Name,
			Source: sig.Source,
			Notes:  []string{"replaced by override"},
		}
		for _, q := range p.Replace.Params {
			q.Notes = nil
			out.Params = append(out.Params, q)
		}
		if p.Replace.Return != nil {
			r := *p.Replace.Return
			out.Return = &r
		}
		return out, nil
	}

	out := sig.Clone()
	var errs []error
	names := lo.Keys(p.Params)
	sort.Strings(names)
	for _, name := range names {
		param, ok := out.Param(name)
		if !ok {
			errs = append(errs, &ConfigError{Routine: sig.Name, Param: name, Reason: "override patches a parameter the routine does not have"})
			continue
		}
		patch := p.Params[name]
		if patch.Kind != nil {
			param.Kind = *patch.Kind
		}
		if patch.Shape != nil {
			param.Shape = *patch.Shape
		}
		if patch.Direction != nil {
			param.Direction = *patch.Direction
		}
		if patch.Role != nil {
			param.Role = *patch.Role
		}
	}
	if p.Return != nil {
		r := *p.Return
		out.Return = &r
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
