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
	"runtime"
	"sort"
	"strings"

	"modernc.org/cc/v4"
)

const generatedSource = "<generated>"

// checkPrologue stands in for the system headers, which the generated file
// skips when LAPACK6432_NO_SYSTEM_HEADERS is defined.
const checkPrologue = `#define LAPACK6432_NO_SYSTEM_HEADERS 1
#define NULL ((void *)0)
typedef long int64_t;
typedef unsigned long size_t;
void *calloc(size_t nmemb, size_t size);
void free(void *ptr);
`

// helperFunctions are definitions the generator emits besides wrappers.
var helperFunctions = map[string]bool{
	"lapack6432_report": true,
}

// CheckGenerated parses the generated C source and verifies that it defines
// every name in want exactly once and no other functions.
func CheckGenerated(src []byte, want []string) error {
	cfg, err := cc.NewConfig(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return fmt.Errorf("failed to configure C parser (use --no-check to skip): %w", err)
	}
	ast, err := cc.Parse(cfg, []cc.Source{
		{Name: "<predefined>", Value: cfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
		{Name: "<prologue>", Value: checkPrologue},
		{Name: generatedSource, Value: string(src)},
	})
	if err != nil {
		return fmt.Errorf("generated source does not parse: %w", err)
	}
	defined := make(map[string]int)
	for tu := ast.TranslationUnit; tu != nil; tu = tu.TranslationUnit {
		externalDeclaration := tu.ExternalDeclaration
		if externalDeclaration.Position().Filename != generatedSource || externalDeclaration.Case != cc.ExternalDeclarationFuncDef {
			continue
		}
		directDeclarator := externalDeclaration.FunctionDefinition.Declarator.DirectDeclarator
		if directDeclarator.Case != cc.DirectDeclaratorFuncParam {
			return fmt.Errorf("unexpected function declarator at %v", directDeclarator.Position())
		}
		defined[directDeclarator.DirectDeclarator.Token.SrcStr()]++
	}

	var errs []error
	wanted := make(map[string]bool, len(want))
	for _, name := range want {
		wanted[name] = true
		switch n := defined[name]; n {
		case 1:
		case 0:
			errs = append(errs, fmt.Errorf("wrapper %s is missing", name))
		default:
			errs = append(errs, fmt.Errorf("wrapper %s is defined %d times", name, n))
		}
	}
	var extra []string
	for name := range defined {
		if !wanted[name] && !helperFunctions[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		errs = append(errs, fmt.Errorf("unexpected functions %s", strings.Join(extra, ", ")))
	}
	return errors.Join(errs...)
}
