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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
)

var verbose bool

// NewRootCommand builds the lapack6432 command tree.
func NewRootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:           "lapack6432",
		Short:         "Generate LP64 wrappers for an ILP64 BLAS/LAPACK library",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newConsoleLogger(verbose || env.Bool(envDebug))
			if err != nil {
				return err
			}
			SetLogger(l)
			return nil
		},
	}
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
	addSymbolFlags(command)
	command.AddCommand(
		NewExtractCmd(),
		NewResolveCmd(),
		NewGenerateCmd(),
		NewBuildCmd(),
		NewReportCmd(),
		NewEnvCmd(),
	)
	return command
}

func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract DIR... [-o signatures.json]",
		Short: "Extract routine signatures from Fortran reference sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			extraction, err := Extract(cmd.Context(), args...)
			if err != nil {
				return err
			}
			return SaveSignatures(output, extraction)
		},
	}
	cmd.Flags().StringP("output", "o", "signatures.json", "output file of extracted signatures")
	return cmd
}

func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve -s signatures.json -i include.yaml [-p overrides.yaml] [-o resolved.json]",
		Short: "Merge extracted signatures with overrides into the resolved database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signatures, _ := cmd.Flags().GetString("signatures")
			output, _ := cmd.Flags().GetString("output")
			extraction, err := LoadSignatures(signatures)
			if err != nil {
				return err
			}
			db, err := resolve(cmd, extraction)
			if err != nil {
				return err
			}
			return SaveDatabase(output, db)
		},
	}
	cmd.Flags().StringP("signatures", "s", "signatures.json", "extracted signatures")
	cmd.Flags().StringP("output", "o", "resolved.json", "output file of the resolved database")
	addResolveFlags(cmd)
	return cmd
}

func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate -d resolved.json [-o lapack6432.c]",
		Short: "Generate the C wrapper file from a resolved database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _ := cmd.Flags().GetString("database")
			output, _ := cmd.Flags().GetString("output")
			db, err := LoadDatabase(database)
			if err != nil {
				return err
			}
			src, err := generate(cmd, db)
			if err != nil {
				return err
			}
			return writeOutput(output, src)
		},
	}
	cmd.Flags().StringP("database", "d", "resolved.json", "resolved database")
	cmd.Flags().StringP("output", "o", "lapack6432.c", "output C file")
	cmd.Flags().Bool("no-check", false, "do not parse the generated C source")
	return cmd
}

func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build DIR... -i include.yaml [-p overrides.yaml] [-o lapack6432.c]",
		Short: "Extract, resolve and generate in one run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			resolved, _ := cmd.Flags().GetString("resolved")
			extraction, err := Extract(cmd.Context(), args...)
			if err != nil {
				return err
			}
			db, err := resolve(cmd, extraction)
			if err != nil {
				return err
			}
			src, err := generate(cmd, db)
			if err != nil {
				return err
			}
			// Nothing is written unless every stage succeeded.
			if resolved != "" {
				if err := SaveDatabase(resolved, db); err != nil {
					return err
				}
			}
			return writeOutput(output, src)
		},
	}
	cmd.Flags().StringP("output", "o", "lapack6432.c", "output C file")
	cmd.Flags().String("resolved", "", "also write the resolved database to this file")
	cmd.Flags().Bool("no-check", false, "do not parse the generated C source")
	addResolveFlags(cmd)
	return cmd
}

func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report -d resolved.json",
		Short: "List wrapped and excluded routines of a resolved database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _ := cmd.Flags().GetString("database")
			mapping, err := symbolMappingFromFlags(cmd)
			if err != nil {
				return err
			}
			db, err := LoadDatabase(database)
			if err != nil {
				return err
			}
			WriteReport(cmd.OutOrStdout(), db, mapping)
			return nil
		},
	}
	cmd.Flags().StringP("database", "d", "resolved.json", "resolved database")
	return cmd
}

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the environment variables and their effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := AsMap()
			names := lo.Keys(vars)
			sort.Strings(names)
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)
			table.SetBorder(false)
			table.SetHeaderLine(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			for _, name := range names {
				v := vars[name]
				table.Append([]string{v.Name, fmt.Sprint(v.Value), v.Description})
			}
			table.Render()
			return nil
		},
	}
}

func addResolveFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("include", "i", "include.yaml", "list of routines to wrap")
	cmd.Flags().StringP("overrides", "p", "", "signature overrides")
	cmd.Flags().Bool("strict", false, "fail if any included routine is excluded")
}

// resolve loads the configuration named by the resolve flags and merges it
// with the extracted signatures.
func resolve(cmd *cobra.Command, extraction *Extraction) (*Database, error) {
	includePath, _ := cmd.Flags().GetString("include")
	overridesPath, _ := cmd.Flags().GetString("overrides")
	strict, _ := cmd.Flags().GetBool("strict")
	include, err := LoadIncludeList(includePath)
	if err != nil {
		return nil, err
	}
	overrides := Overrides{}
	if overridesPath != "" {
		if overrides, err = LoadOverrides(overridesPath); err != nil {
			return nil, err
		}
	}
	db, err := Merge(extraction, overrides, include)
	if err != nil {
		return nil, err
	}
	if strict && len(db.Excluded) > 0 {
		reasons := lo.Map(db.Excluded, func(e Exclusion, _ int) string {
			return fmt.Sprintf("  %s: %s", e.Routine, e.Reason)
		})
		return nil, fmt.Errorf("%d included routines were excluded:\n%s",
			len(db.Excluded), strings.Join(reasons, "\n"))
	}
	return db, nil
}

// generate renders db and, unless --no-check is set, parses the result.
func generate(cmd *cobra.Command, db *Database) ([]byte, error) {
	noCheck, _ := cmd.Flags().GetBool("no-check")
	mapping, err := symbolMappingFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	src, err := Generate(db, mapping)
	if err != nil {
		return nil, err
	}
	if !noCheck {
		want := lo.Map(db.Names(), func(name string, _ int) string {
			return mapping.LP64Name(name)
		})
		if err := CheckGenerated(src, want); err != nil {
			return nil, err
		}
	}
	Logger().Info("generated wrappers",
		zap.Int("wrapped", len(db.Routines)),
		zap.Int("excluded", len(db.Excluded)),
		zap.String("fingerprint", db.Fingerprint))
	return src, nil
}

// writeOutput replaces path with data through a temporary file, so a failed
// write never leaves a truncated output behind.
func writeOutput(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func main() {
	if err := loadDotEnv(dotEnvFile); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
