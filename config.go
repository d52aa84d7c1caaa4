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
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

// dotEnvFile is read from the working directory before flags get their
// defaults.
const dotEnvFile = "lapack6432.env"

// Environment variables providing flag defaults. The symbol variables share
// their names with the macros of the generated file.
const (
	envPrefix       = "LAPACK6432_PREFIX"
	envSuffix       = "LAPACK6432_SUFFIX"
	envSymbolPrefix = "BLAS_SYMBOL_PREFIX"
	envSymbolSuffix = "BLAS_SYMBOL_SUFFIX"
	envNoUnderscore = "LAPACK6432_NO_UNDERSCORE"
	envDebug        = "LAPACK6432_DEBUG"
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap lists the environment variables read by the command.
func AsMap() map[string]EnvVar {
	def := DefaultSymbolMapping()
	return map[string]EnvVar{
		envPrefix:       {envPrefix, env.Str(envPrefix, def.LP64.Prefix), "Prefix of exported wrapper symbols"},
		envSuffix:       {envSuffix, env.Str(envSuffix, def.LP64.Suffix), "Suffix of exported wrapper symbols"},
		envSymbolPrefix: {envSymbolPrefix, env.Str(envSymbolPrefix, def.ILP64.Prefix), "Prefix of the wrapped ILP64 library symbols"},
		envSymbolSuffix: {envSymbolSuffix, env.Str(envSymbolSuffix, def.ILP64.Suffix), "Suffix of the wrapped ILP64 library symbols (default \"64_\")"},
		envNoUnderscore: {envNoUnderscore, env.Bool(envNoUnderscore), "Do not append the Fortran trailing underscore"},
		envDebug:        {envDebug, env.Bool(envDebug), "Show debug logging"},
	}
}

// addSymbolFlags registers the symbol configuration on cmd, defaulting every
// flag from the environment.
func addSymbolFlags(cmd *cobra.Command) {
	def := DefaultSymbolMapping()
	flags := cmd.PersistentFlags()
	flags.String("prefix", env.Str(envPrefix, def.LP64.Prefix), "prefix of exported wrapper symbols")
	flags.String("suffix", env.Str(envSuffix, def.LP64.Suffix), "suffix of exported wrapper symbols")
	flags.String("symbol-prefix", env.Str(envSymbolPrefix, def.ILP64.Prefix), "prefix of wrapped ILP64 library symbols")
	flags.String("symbol-suffix", env.Str(envSymbolSuffix, def.ILP64.Suffix), "suffix of wrapped ILP64 library symbols")
	flags.Bool("no-underscore", env.Bool(envNoUnderscore), "do not append the Fortran trailing underscore to symbols")
}

// symbolMappingFromFlags reads back the flags registered by addSymbolFlags.
func symbolMappingFromFlags(cmd *cobra.Command) (SymbolMapping, error) {
	flags := cmd.Flags()
	prefix, _ := flags.GetString("prefix")
	suffix, _ := flags.GetString("suffix")
	symbolPrefix, _ := flags.GetString("symbol-prefix")
	symbolSuffix, _ := flags.GetString("symbol-suffix")
	noUnderscore, _ := flags.GetBool("no-underscore")
	m := SymbolMapping{
		LP64:  SymbolScheme{Prefix: prefix, Suffix: suffix, Underscore: !noUnderscore},
		ILP64: SymbolScheme{Prefix: symbolPrefix, Suffix: symbolSuffix, Underscore: !noUnderscore},
	}
	return m, m.Validate()
}

// loadDotEnv loads variables from path. A missing file is not an error, and
// variables already set in the environment are kept.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check if %s exists: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("could not load %s: %w", path, err)
	}
	env.Load()
	return nil
}
