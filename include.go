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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Inclusion is the metadata kept for one routine that should be wrapped.
type Inclusion struct {
	Category string `yaml:"category" json:"category"`
	Note     string `yaml:"note,omitempty" json:"note,omitempty"`
}

// IncludeList maps lower-case routine names to their inclusion metadata.
type IncludeList map[string]Inclusion

func (l IncludeList) Names() []string {
	names := lo.Keys(l)
	sort.Strings(names)
	return names
}

func (l IncludeList) Has(name string) bool {
	_, ok := l[strings.ToLower(name)]
	return ok
}

// includeFamily expands to one routine per precision prefix, e.g.
// precisions [s, d] and name gesv give sgesv and dgesv.
type includeFamily struct {
	Category   string   `yaml:"category"`
	Precisions []string `yaml:"precisions"`
	Names      []string `yaml:"names"`
}

// includeFile is the on-disk layout. Other, SD and CZ accept the older JSON
// layout where "#"-prefixed entries are comments.
type includeFile struct {
	Routines map[string]Inclusion `yaml:"routines"`
	Families []includeFamily      `yaml:"families"`
	Other    []string             `yaml:"other"`
	SD       []string             `yaml:"sd"`
	CZ       []string             `yaml:"cz"`
}

func LoadIncludeList(path string) (IncludeList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseIncludeList(data, path)
}

// ParseIncludeList reads an include list in YAML (or JSON, which YAML accepts).
// A routine listed twice is a configuration error.
func ParseIncludeList(data []byte, file string) (IncludeList, error) {
	var f includeFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{File: file, Reason: err.Error()}
	}

	list := make(IncludeList)
	var errs []error
	add := func(name string, inc Inclusion) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || strings.HasPrefix(name, "#") {
			return
		}
		if _, dup := list[name]; dup {
			errs = append(errs, &ConfigError{File: file, Routine: name, Reason: "listed more than once"})
			return
		}
		list[name] = inc
	}

	routines := lo.Keys(f.Routines)
	sort.Strings(routines)
	for _, name := range routines {
		add(name, f.Routines[name])
	}
	for _, fam := range f.Families {
		if len(fam.Precisions) == 0 {
			errs = append(errs, &ConfigError{File: file, Reason: fmt.Sprintf("family %v has no precisions", fam.Names)})
			continue
		}
		for _, name := range fam.Names {
			if strings.HasPrefix(strings.TrimSpace(name), "#") {
				continue
			}
			for _, prec := range fam.Precisions {
				add(prec+name, Inclusion{Category: fam.Category})
			}
		}
	}
	for _, name := range f.Other {
		add(name, Inclusion{Category: "other"})
	}
	for _, group := range []struct {
		names      []string
		precisions []string
		category   string
	}{{f.SD, []string{"s", "d"}, "sd"}, {f.CZ, []string{"c", "z"}, "cz"}} {
		for _, name := range group.names {
			if strings.HasPrefix(strings.TrimSpace(name), "#") {
				continue
			}
			for _, prec := range group.precisions {
				add(prec+name, Inclusion{Category: group.category})
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return list, nil
}
