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

package registers

import (
	"fmt"
	"sort"
	"strings"
)

// Table selects the register layout served to clients.
type Table uint8

const (
	TableWARP Table = iota
	TableKEBA
)

func (t Table) String() string {
	switch t {
	case TableWARP:
		return "WARP"
	case TableKEBA:
		return "KEBA"
	default:
		return fmt.Sprintf("Table(%d)", uint8(t))
	}
}

// ParseTable parses a table name, ignoring case.
func ParseTable(s string) (Table, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARP":
		return TableWARP, nil
	case "KEBA":
		return TableKEBA, nil
	}
	return 0, fmt.Errorf("registers: unknown table %q", s)
}

// entry resolves Count consecutive items starting at Offset. Items are
// Stride addresses wide: 2 for register pairs, 1 for bits.
type entry[T any] struct {
	Offset  uint16
	Count   int
	Name    string
	Require []Feature
	Read    func(s *scratch, i int) T
}

func scalar[T any](offset uint16, name string, read func(s *scratch) T, require ...Feature) entry[T] {
	return entry[T]{
		Offset:  offset,
		Count:   1,
		Name:    name,
		Require: require,
		Read:    func(s *scratch, _ int) T { return read(s) },
	}
}

func span[T any](offset uint16, count int, name string, read func(s *scratch, i int) T, require ...Feature) entry[T] {
	return entry[T]{
		Offset:  offset,
		Count:   count,
		Name:    name,
		Require: require,
		Read:    read,
	}
}

// layout is a sorted, non-overlapping set of entries.
type layout[T any] struct {
	stride  int
	entries []entry[T]
}

func newLayout[T any](stride int, entries ...entry[T]) layout[T] {
	l := layout[T]{stride: stride, entries: entries}
	sort.Slice(l.entries, func(i, j int) bool { return l.entries[i].Offset < l.entries[j].Offset })
	for i := 1; i < len(l.entries); i++ {
		prev, cur := l.entries[i-1], l.entries[i]
		if l.end(prev) > int(cur.Offset) {
			panic(fmt.Sprintf("registers: %s overlaps %s", cur.Name, prev.Name))
		}
	}
	return l
}

func (l *layout[T]) end(e entry[T]) int {
	return int(e.Offset) + e.Count*l.stride
}

// find returns the entry covering addr and the item index inside it.
func (l *layout[T]) find(addr uint16) (*entry[T], int, bool) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.end(l.entries[i]) > int(addr)
	})
	if i == len(l.entries) || addr < l.entries[i].Offset {
		return nil, 0, false
	}
	e := &l.entries[i]
	return e, (int(addr) - int(e.Offset)) / l.stride, true
}

// write handles one write to a fixed address.
type write[T any] struct {
	Name    string
	Require []Feature
	Write   func(w *writer, v T) error
}

// tableSet is one complete register table.
type tableSet struct {
	id Table

	coils    layout[bool]
	discrete layout[bool]
	holding  layout[TwoRegs]
	input    layout[TwoRegs]

	coilWrites map[uint16]write[bool]

	// Exactly one of these is set. Pair writes rebuild 32 bit values
	// from the window, register writes take each 16 bit word alone.
	pairWrites     map[uint16]write[uint32]
	registerWrites map[uint16]write[uint16]
}

func tablesFor(t Table) *tableSet {
	if t == TableKEBA {
		return kebaTable()
	}
	return warpTable()
}

// Entry describes one resolvable span of a table.
type Entry struct {
	Space    string   `json:"space"`
	Start    uint16   `json:"start"`
	End      uint16   `json:"end"`
	Name     string   `json:"name"`
	Require  []string `json:"require,omitempty"`
	Writable bool     `json:"writable"`
}

// Layout lists the entries of table t, ordered by space and address.
// End is the last address covered.
func Layout(t Table) []Entry {
	ts := tablesFor(t)

	var out []Entry
	out = appendEntries(out, "coil", &ts.coils, func(a uint16) bool {
		_, ok := ts.coilWrites[a]
		return ok
	})
	out = appendEntries(out, "discrete_input", &ts.discrete, nil)
	out = appendEntries(out, "holding_register", &ts.holding, func(a uint16) bool {
		_, ok := ts.pairWrites[a]
		return ok
	})
	out = appendEntries(out, "input_register", &ts.input, nil)

	// Write-only KEBA registers have no read entry.
	addrs := make([]int, 0, len(ts.registerWrites))
	for a := range ts.registerWrites {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)
	for _, a := range addrs {
		w := ts.registerWrites[uint16(a)]
		out = append(out, Entry{
			Space:    "holding_register",
			Start:    uint16(a),
			End:      uint16(a),
			Name:     w.Name,
			Require:  featureNames(w.Require),
			Writable: true,
		})
	}
	return out
}

func appendEntries[T any](out []Entry, space string, l *layout[T], writable func(uint16) bool) []Entry {
	for _, e := range l.entries {
		out = append(out, Entry{
			Space:    space,
			Start:    e.Offset,
			End:      uint16(l.end(e) - 1),
			Name:     e.Name,
			Require:  featureNames(e.Require),
			Writable: writable != nil && writable(e.Offset),
		})
	}
	return out
}

func featureNames(fs []Feature) []string {
	if len(fs) == 0 {
		return nil
	}
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}
