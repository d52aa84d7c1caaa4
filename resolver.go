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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Database is the resolved signature database: the final signature of every
// included routine that can be wrapped, plus the reasons the others cannot.
// It is built from scratch by Merge and not modified afterwards.
type Database struct {
	Fingerprint string              `json:"fingerprint"`
	Routines    []*RoutineSignature `json:"routines"`
	Excluded    []Exclusion         `json:"excluded,omitempty"`
	Inclusions  IncludeList         `json:"inclusions"`
}

// Lookup finds a resolved routine by name.
func (db *Database) Lookup(name string) (*RoutineSignature, bool) {
	name = strings.ToLower(name)
	i := sort.Search(len(db.Routines), func(i int) bool { return db.Routines[i].Name >= name })
	if i < len(db.Routines) && db.Routines[i].Name == name {
		return db.Routines[i], true
	}
	return nil, false
}

func (db *Database) Names() []string {
	return lo.Map(db.Routines, func(sig *RoutineSignature, _ int) string { return sig.Name })
}

// Merge applies overrides to the extracted signatures of the included
// routines. Overrides that name a routine which was not extracted or is not
// included, or a parameter the routine does not have, fail the whole merge.
// Included routines that still have unresolved or inconsistent fields are
// excluded and logged.
func Merge(extracted *Extraction, overrides Overrides, include IncludeList) (*Database, error) {
	var errs []error
	for _, name := range overrides.Names() {
		if _, ok := extracted.Signatures[name]; !ok {
			errs = append(errs, &ConfigError{Routine: name, Reason: "override for a routine that was not extracted"})
		}
		if !include.Has(name) {
			errs = append(errs, &ConfigError{Routine: name, Reason: "override for a routine that is not in the include list"})
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	db := &Database{Inclusions: include}
	exclude := func(name, reason string) {
		Logger().Warn("routine excluded", zap.String("routine", name), zap.String("reason", reason))
		db.Excluded = append(db.Excluded, Exclusion{Routine: name, Reason: reason})
	}
	for _, name := range include.Names() {
		sig, ok := extracted.Signatures[name]
		if !ok {
			exclude(name, "no signature extracted")
			continue
		}
		if patch, ok := overrides[name]; ok {
			patched, err := patch.Apply(sig)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			Logger().Debug("override applied", zap.String("routine", name))
			sig = patched
		} else {
			sig = sig.Clone()
		}
		if err := sig.Validate(); err != nil {
			exclude(name, strings.ReplaceAll(err.Error(), "\n", "; "))
			continue
		}
		db.Routines = append(db.Routines, sig)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	fingerprint, err := db.fingerprint()
	if err != nil {
		return nil, err
	}
	db.Fingerprint = fingerprint
	Logger().Info("resolved signatures",
		zap.Int("wrapped", len(db.Routines)),
		zap.Int("excluded", len(db.Excluded)))
	return db, nil
}

// fingerprint hashes the canonical JSON of everything but the fingerprint.
func (db *Database) fingerprint() (string, error) {
	c := *db
	c.Fingerprint = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// SaveDatabase writes the database as indented JSON.
func SaveDatabase(path string, db *Database) error {
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(path, append(data, '\n'))
}

// LoadDatabase reads a database written by SaveDatabase and refuses one whose
// content no longer matches its fingerprint.
func LoadDatabase(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse resolved database %v: %w", path, err)
	}
	fingerprint, err := db.fingerprint()
	if err != nil {
		return nil, err
	}
	if fingerprint != db.Fingerprint {
		return nil, fmt.Errorf("resolved database %v was modified after resolution (fingerprint %s, content %s); run resolve again", path, db.Fingerprint, fingerprint)
	}
	if !sort.SliceIsSorted(db.Routines, func(i, j int) bool { return db.Routines[i].Name < db.Routines[j].Name }) {
		return nil, fmt.Errorf("resolved database %v is not sorted by routine name", path)
	}
	return &db, nil
}
