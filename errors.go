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
	"strings"
)

// ConfigError is a mistake in the hand-maintained inputs (overrides or include
// list). It always aborts the run.
type ConfigError struct {
	File    string
	Routine string
	Param   string
	Reason  string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	if e.Routine != "" {
		b.WriteString(e.Routine)
		b.WriteString(": ")
	}
	if e.Param != "" {
		b.WriteString("parameter ")
		b.WriteString(e.Param)
		b.WriteString(": ")
	}
	b.WriteString(e.Reason)
	return b.String()
}

// Exclusion records an included routine that is not wrapped, and why.
type Exclusion struct {
	Routine string `json:"routine"`
	Reason  string `json:"reason"`
}
