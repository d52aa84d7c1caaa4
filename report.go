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
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// WriteReport lists every included routine with what happened to it.
func WriteReport(w io.Writer, db *Database, mapping SymbolMapping) {
	excluded := lo.SliceToMap(db.Excluded, func(e Exclusion) (string, string) {
		return e.Routine, e.Reason
	})
	names := db.Inclusions.Names()
	for _, name := range append(db.Names(), lo.Keys(excluded)...) {
		if !db.Inclusions.Has(name) {
			names = append(names, name)
		}
	}
	names = lo.Uniq(names)
	sort.Strings(names)

	var data [][]string
	for _, name := range names {
		category := db.Inclusions[name].Category
		if sig, ok := db.Lookup(name); ok {
			data = append(data, []string{name, category, "wrapped", mapping.LP64Name(name), summarize(sig)})
		} else if reason, ok := excluded[name]; ok {
			data = append(data, []string{name, category, "excluded", "", reason})
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ROUTINE", "CATEGORY", "STATUS", "SYMBOL", "DETAIL"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d wrapped, %d excluded\n", len(db.Routines), len(db.Excluded))
}

// summarize describes the conversions a wrapper performs.
func summarize(sig *RoutineSignature) string {
	var scalars, arrays int
	var parts []string
	for _, p := range sig.Params {
		if !p.IsInteger() {
			continue
		}
		if p.IsArray() {
			arrays++
		} else {
			scalars++
		}
		if p.Role.Tag == RoleWorkspaceQuery {
			parts = append(parts, "query "+p.Name)
		}
	}
	parts = append([]string{fmt.Sprintf("%d int, %d int[]", scalars, arrays)}, parts...)
	if sig.Return != nil {
		parts = append(parts, "returns "+string(*sig.Return))
	}
	return strings.Join(parts, ", ")
}
