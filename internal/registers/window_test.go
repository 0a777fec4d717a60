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
	"reflect"
	"testing"

	modbus "github.com/edgeo-scada/wallbox-modbus"
)

func TestWalk(t *testing.T) {
	type step struct {
		reg uint16
		h   half
	}
	tests := []struct {
		name   string
		start  uint16
		count  int
		expect []step
	}{
		{"aligned pair", 0, 2, []step{{0, bothWords}}},
		{"single high word", 0, 1, []step{{0, highWord}}},
		{"single low word", 1, 1, []step{{0, lowWord}}},
		{"odd start", 1, 4, []step{{0, lowWord}, {2, bothWords}, {4, highWord}}},
		{"odd start even end", 1, 3, []step{{0, lowWord}, {2, bothWords}}},
		{"odd count", 2, 5, []step{{2, bothWords}, {4, bothWords}, {6, highWord}}},
		{"top of address space", 0xFFFF, 1, []step{{0xFFFE, lowWord}}},
		{"last pair", 0xFFFE, 2, []step{{0xFFFE, bothWords}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []step
			for i := 0; i < tt.count; {
				reg, h := walk(tt.start, tt.count, i)
				got = append(got, step{reg, h})
				i += h.width()
			}
			if !reflect.DeepEqual(got, tt.expect) {
				t.Errorf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestTwoRegs(t *testing.T) {
	v := FromWords(0x012E, 0xB007)
	if v.Bits != RebootMagic || v.High() != 0x012E || v.Low() != 0xB007 {
		t.Errorf("unexpected pair %#x", v.Bits)
	}

	f := F(230.5)
	if f.Kind != KindF32 || f.Float32() != 230.5 {
		t.Errorf("F: unexpected %+v", f)
	}
	if !Sentinel.IsSentinel() || U(1).IsSentinel() {
		t.Error("IsSentinel mismatch")
	}
}

// Scenario A: the table version is reported high word first.
func TestReadTableVersion(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	regs := readInput(t, e, 0, 2)
	if !reflect.DeepEqual(regs, []uint16{0, TableVersion}) {
		t.Errorf("expected [0 3], got %v", regs)
	}
	if got := FromWords(regs[0], regs[1]).Bits; got != TableVersion {
		t.Errorf("expected %d, got %d", TableVersion, got)
	}
}

func TestReadWindows(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	tests := []struct {
		name   string
		start  uint16
		count  uint16
		expect []uint16
	}{
		{"odd start count 1", 1, 1, []uint16{TableVersion}},
		{"even start count 1", 0, 1, []uint16{0}},
		{"across fields", 1, 4, []uint16{TableVersion, 0, 2, 0}},
		{"odd count", 0, 3, []uint16{0, TableVersion, 0}},
		{"uid", 10, 2, []uint16{0x00C0, 0xFFEE}},
		{"unix time", 12, 2, []uint16{uint16(1760000000 >> 16), uint16(1760000000 & 0xFFFF)}},
		{"unknown", 20, 3, []uint16{0xAAAA, 0xAAAA, 0xAAAA}},
		{"top of address space", 0xFFFF, 1, []uint16{0xAAAA}},
		{"known then unknown", 12, 4, []uint16{uint16(1760000000 >> 16), uint16(1760000000 & 0xFFFF), 0xAAAA, 0xAAAA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readInput(t, e, tt.start, tt.count)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Errorf("expected %#v, got %#v", tt.expect, got)
			}
		})
	}
}

func TestReadDeterministic(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	first := readInput(t, e, 1000, 40)
	second := readInput(t, e, 1000, 40)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two reads of unchanged state differ:\n%v\n%v", first, second)
	}
}

// A pair read whole must equal its two halves read one by one.
func TestPairRoundTrip(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	for _, addr := range []uint16{0, 10, 1000, 1012, 2002, 2100, 4000} {
		whole := readInput(t, e, addr, 2)
		high := readInput(t, e, addr, 1)
		low := readInput(t, e, addr+1, 1)
		if whole[0] != high[0] || whole[1] != low[0] {
			t.Errorf("addr %d: whole %v, halves [%#x %#x]", addr, whole, high[0], low[0])
		}
	}
}

func TestReadCountZero(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	regs := []uint16{}
	req := &modbus.Request{Function: modbus.FuncReadInputRegisters, Address: 0, Quantity: 0, Registers: regs}
	if err := e.ServeModbus(req); err != nil {
		t.Fatal(err)
	}
	if len(req.Registers) != 0 {
		t.Errorf("expected untouched empty buffer, got %v", req.Registers)
	}

	bits := []byte{0x5A}
	req = &modbus.Request{Function: modbus.FuncReadDiscreteInputs, Address: 0, Quantity: 0, Bits: bits}
	if err := e.ServeModbus(req); err != nil {
		t.Fatal(err)
	}
	if bits[0] != 0x5A {
		t.Errorf("expected untouched bits, got %#x", bits[0])
	}
}

func TestReadBitsPreservesNeighbours(t *testing.T) {
	s := newTestStore()
	e := newTestEngine(s, &recorder{})

	// Bits 0..5 are feature flags, everything else in the byte stays.
	bits := readBits(t, e, modbus.FuncReadDiscreteInputs, 2, 3, []byte{0b1111_1000})
	// meter_phases, meter_all_values, phase_switch are all present.
	if bits[0] != 0b1111_1111 {
		t.Errorf("expected 0xFF, got %#08b", bits[0])
	}

	bits = readBits(t, e, modbus.FuncReadDiscreteInputs, 2100, 6, []byte{0b1100_0000})
	// connected: 1 1 0, active: 1 0 0
	if bits[0] != 0b1100_1011 {
		t.Errorf("expected 0b11001011, got %#08b", bits[0])
	}

	bits = readBits(t, e, modbus.FuncReadDiscreteInputs, 100, 3, []byte{0b0000_0111})
	if bits[0] != 0 {
		t.Errorf("unknown inputs should read false, got %#08b", bits[0])
	}
}

// Scenario C and its split form.
func TestWritePairs_Reboot(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(newTestStore(), rec)

	writeRegisters(t, e, 0, 0x012E, 0xB007)
	rec.expect(t, call{"Reboot", []any{"Modbus TCP"}})

	// Split across two requests each edge is completed from the current
	// value (0), so neither half forms the magic.
	rec.calls = nil
	writeRegisters(t, e, 0, 0x012E)
	writeRegisters(t, e, 1, 0xB007)
	rec.expect(t)

	rec.calls = nil
	writeRegisters(t, e, 0, 0x1234, 0x5678)
	rec.expect(t)
}

func TestWritePairs_EdgesUseCurrentValue(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(newTestStore(), rec)

	// Modbus current slot is 16000 = 0x00003E80. Writing only the low
	// word keeps the high word 0.
	writeRegisters(t, e, 1003, 0x1F40)
	// Writing only the high word keeps the low word 0x3E80.
	writeRegisters(t, e, 1002, 0x0001)

	rec.expect(t,
		call{"SetModbusCurrent", []any{uint32(0x1F40)}},
		call{"SetModbusCurrent", []any{uint32(0x00013E80)}},
	)
}

func TestWriteAcrossPairs(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(newTestStore(), rec)

	// 1001..1003: low word of 1000 then the whole pair at 1002.
	writeRegisters(t, e, 1001, 0x0000, 0x0000, 0x1F40)
	rec.expect(t,
		call{"SetModbusEnabled", []any{false}},
		call{"SetModbusCurrent", []any{uint32(0x1F40)}},
	)

	// 1003..1004: low word of 1002 then the high word of 1004, which is
	// an LED indication without duration.
	rec.calls = nil
	writeRegisters(t, e, 1003, 0x2EE0, 0x0000)
	rec.expect(t, call{"SetModbusCurrent", []any{uint32(0x2EE0)}})
	if n := e.Stats().DroppedLEDWrites.Value(); n != 1 {
		t.Errorf("DroppedLEDWrites: expected 1, got %d", n)
	}
}
