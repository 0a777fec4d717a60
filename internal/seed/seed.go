// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package seed loads a device state snapshot from YAML into a state.Store.
// Snapshots are validated against an embedded JSON schema before any
// record is touched.
package seed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

//go:embed schema/seed-v1.json
var schemaSource string

//go:embed default.yaml
var defaultSnapshot []byte

// ErrInvalid is returned when a snapshot does not match the schema.
var ErrInvalid = errors.New("seed: invalid snapshot")

// Snapshot is a decoded seed file.
type Snapshot struct {
	Features []string
	Records  map[string]state.Value
}

// Validator checks raw snapshots against the seed schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("seed-v1.json", strings.NewReader(schemaSource)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("seed-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate checks a JSON compatible document.
func (v *Validator) Validate(doc any) error {
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Parse decodes and validates a YAML (or JSON) snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	// Round trip through JSON so the validator and state.FromAny see the
	// same number and map types regardless of the input format.
	doc, err := toJSON(raw)
	if err != nil {
		return nil, err
	}

	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(doc); err != nil {
		return nil, err
	}

	top := doc.(map[string]any)
	snap := &Snapshot{Records: make(map[string]state.Value)}

	if fs, ok := top["features"].([]any); ok {
		for _, f := range fs {
			snap.Features = append(snap.Features, f.(string))
		}
	}

	records, _ := top["records"].(map[string]any)
	for path, rec := range records {
		val, err := state.FromAny(rec)
		if err != nil {
			return nil, fmt.Errorf("seed: record %s: %w", path, err)
		}
		snap.Records[path] = val
	}

	return snap, nil
}

// Load reads and parses the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// Default returns the built-in snapshot of an idle charger with every
// optional subsystem present.
func Default() *Snapshot {
	snap, err := Parse(defaultSnapshot)
	if err != nil {
		panic(fmt.Sprintf("seed: built-in snapshot: %v", err))
	}
	return snap
}

// Paths returns the record paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Records))
	for p := range s.Records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Apply registers every record and then every feature. Records go first
// so a feature never becomes visible before the data backing it.
func (s *Snapshot) Apply(store *state.Store) {
	for _, p := range s.Paths() {
		store.Register(p, s.Records[p])
	}
	for _, f := range s.Features {
		store.AddFeature(f)
	}
}

func toJSON(raw any) (any, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return doc, nil
}
