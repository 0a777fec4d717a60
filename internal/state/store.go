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

// Package state holds the device's runtime state: a set of records
// addressed by slash separated paths ("evse/state") plus a registry of
// the optional subsystems that are present.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrNotFound is returned for unknown record paths.
var ErrNotFound = errors.New("state: record not found")

// Record is a single state record. Values are immutable, so readers get
// a consistent snapshot without holding a lock.
type Record struct {
	path string

	mu      sync.RWMutex
	value   Value
	version uint64
}

// Path returns the record's path.
func (r *Record) Path() string { return r.path }

// Get returns the current value. A nil record reads as null.
func (r *Record) Get() Value {
	if r == nil {
		return Value{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Version returns a counter incremented on every change.
func (r *Record) Version() uint64 {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Set replaces the value and reports whether it changed.
func (r *Record) Set(v Value) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.value.Equal(v) {
		return false
	}
	r.value = v
	r.version++
	return true
}

// Update applies fn to the current value under the record lock and
// stores the result. It reports whether the value changed.
func (r *Record) Update(fn func(Value) (Value, error)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := fn(r.value)
	if err != nil {
		return false, err
	}
	if r.value.Equal(next) {
		return false, nil
	}
	r.value = next
	r.version++
	return true, nil
}

// SetField sets one field of an object record.
func (r *Record) SetField(name string, field Value) bool {
	changed, _ := r.Update(func(v Value) (Value, error) {
		return v.With(name, field), nil
	})
	return changed
}

// Store maps paths to records and tracks present features.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*Record
	features map[string]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]*Record),
		features: make(map[string]struct{}),
	}
}

// Register creates the record at path with an initial value, or sets the
// value of an existing one. It returns the record.
func (s *Store) Register(path string, v Value) *Record {
	path = strings.Trim(path, "/")

	s.mu.Lock()
	r, ok := s.records[path]
	if !ok {
		r = &Record{path: path, value: v}
		s.records[path] = r
	}
	s.mu.Unlock()

	if ok {
		r.Set(v)
	}
	return r
}

// Record returns the record at path or nil.
func (s *Store) Record(path string) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[strings.Trim(path, "/")]
}

// Get returns the value at path. Paths may reach into a record, as in
// "evse/slots/9/max_current"; the longest registered record prefix wins.
func (s *Store) Get(path string) (Value, error) {
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")

	for n := len(parts); n > 0; n-- {
		r := s.Record(strings.Join(parts[:n], "/"))
		if r == nil {
			continue
		}
		v := r.Get()
		for _, p := range parts[n:] {
			switch v.Kind() {
			case KindObject:
				v = v.Get(p)
			case KindArray:
				i, err := strconv.Atoi(p)
				if err != nil {
					return Value{}, fmt.Errorf("%w: %s", ErrNotFound, path)
				}
				v = v.Index(i)
			default:
				return Value{}, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
		}
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Paths returns all record paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// AddFeature marks a subsystem as present.
func (s *Store) AddFeature(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features[name] = struct{}{}
}

// HasFeature reports whether a subsystem is present.
func (s *Store) HasFeature(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.features[name]
	return ok
}

// Features returns the present features in sorted order.
func (s *Store) Features() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.features))
	for f := range s.features {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
