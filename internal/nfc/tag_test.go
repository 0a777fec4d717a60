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

package nfc

import (
	"testing"

	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

func history(seen, injected Tag) state.Value {
	tags := make([]state.Value, TagListLength)
	for i := range tags {
		tags[i] = Tag{}.Value()
	}
	tags[0] = seen.Value()
	tags[TagListLength-1] = injected.Value()
	return state.Array(tags...)
}

func TestCurrent(t *testing.T) {
	seen := Tag{Type: 2, ID: "04:A2:3B:1C", LastSeen: 10}
	injected := Tag{Type: 1, ID: "DE:AD:BE:EF", LastSeen: 5}

	tests := []struct {
		name     string
		seen     Tag
		injected Tag
		expect   string
	}{
		{"injected more recent", seen, injected, "DE:AD:BE:EF"},
		{"nothing injected", seen, Tag{}, "04:A2:3B:1C"},
		{"nothing seen", Tag{}, injected, "DE:AD:BE:EF"},
		{"seen more recent", Tag{ID: "01", LastSeen: 3}, injected, "01"},
		{"empty history", Tag{}, Tag{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Current(history(tt.seen, tt.injected)).ID; got != tt.expect {
				t.Errorf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestCurrent_ShortHistory(t *testing.T) {
	got := Current(state.Array(Tag{ID: "AA", LastSeen: 1}.Value()))
	if got.ID != "AA" {
		t.Errorf("expected AA, got %q", got.ID)
	}
	if got := Current(state.Null()); got != (Tag{}) {
		t.Errorf("null history: expected zero tag, got %+v", got)
	}
}

func TestIDBytes(t *testing.T) {
	id := IDBytes("04:A2:3B:1C")
	if string(id[:8]) != "04A23B1C" {
		t.Errorf("unexpected prefix %q", id[:8])
	}
	for i := 8; i < TagIDLength; i++ {
		if id[i] != 0 {
			t.Fatalf("byte %d: expected zero padding, got %#x", i, id[i])
		}
	}

	long := IDBytes("00:11:22:33:44:55:66:77:88:99:AA:BB")
	if string(long[:]) != "00112233445566778899" {
		t.Errorf("long id should be cut, got %q", long[:])
	}
}

func TestIDWord(t *testing.T) {
	id := IDBytes("04:A2:3B:1C")
	if got := IDWord(id, 0); got != 0x30344132 { // "04A2"
		t.Errorf("word 0: expected 0x30344132, got %#x", got)
	}
	if got := IDWord(id, 4); got != 0x33423143 { // "3B1C"
		t.Errorf("word 1: expected 0x33423143, got %#x", got)
	}
	if got := IDWord(id, 8); got != 0 {
		t.Errorf("word 2: expected 0, got %#x", got)
	}
	if got := IDWord(id, 18); got != 0 {
		t.Errorf("out of range: expected 0, got %#x", got)
	}
}

func TestExportUint32(t *testing.T) {
	tests := []struct {
		id     string
		expect uint32
	}{
		{"AB:CD:EF:01:23:45:67", 0xABCDEF01},
		{"ab:cd:ef:01", 0xABCDEF01},
		{"04:A2", 0x04A20000},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ExportUint32(tt.id); got != tt.expect {
			t.Errorf("ExportUint32(%q): expected %#x, got %#x", tt.id, tt.expect, got)
		}
	}
}
