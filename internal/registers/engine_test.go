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
	"errors"
	"testing"

	modbus "github.com/edgeo-scada/wallbox-modbus"
	"github.com/edgeo-scada/wallbox-modbus/internal/evse"
	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

func TestEngine_SingleWritesPanic(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	for _, fc := range []modbus.FunctionCode{modbus.FuncWriteSingleCoil, modbus.FuncWriteSingleRegister} {
		t.Run(fc.String(), func(t *testing.T) {
			defer func() {
				r := recover()
				err, ok := r.(error)
				var cv modbus.ContractViolation
				if !ok || !errors.As(err, &cv) {
					t.Fatalf("expected ContractViolation panic, got %v", r)
				}
				if cv.Function != fc {
					t.Errorf("Function: expected %s, got %s", fc, cv.Function)
				}
			}()
			e.ServeModbus(&modbus.Request{Function: fc, Address: 0, Quantity: 1, Registers: []uint16{0}})
		})
	}
}

func TestEngine_IllegalFunction(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	err := e.ServeModbus(&modbus.Request{Function: modbus.FunctionCode(0x17)})
	if !modbus.IsIllegalFunction(err) {
		t.Errorf("expected illegal function, got %v", err)
	}
}

func TestEngine_LateFeature(t *testing.T) {
	s := state.NewStore()
	e := newTestEngine(s, &recorder{})

	if got := readPair(t, e, modbus.FuncReadInputRegisters, 2000); got != SentinelBits {
		t.Fatalf("meter absent: expected sentinel, got %#x", got)
	}

	// The meter registers itself after the server started.
	s.Register(PathMeterState, state.Object(map[string]state.Value{"type": state.Uint(7)}))
	s.AddFeature(string(FeatureMeter))

	if got := readPair(t, e, modbus.FuncReadInputRegisters, 2000); got != 7 {
		t.Errorf("meter present: expected 7, got %d", got)
	}
	if !e.Features()[string(FeatureMeter)] {
		t.Error("Features should report the meter")
	}
}

// A record created by a command after the engine started is read back.
func TestEngine_LateRecord(t *testing.T) {
	s := state.NewStore()
	s.AddFeature(string(FeatureEVSE))
	slots := make([]state.Value, evse.SlotCount)
	for i := range slots {
		slots[i] = evse.Slot{}.Value()
	}
	slots[evse.SlotModbusTCP] = evse.Slot{Active: true, MaxCurrent: 32000}.Value()
	s.Register(PathEVSESlots, state.Array(slots...))

	e := newTestEngine(s, evse.NewController(s, evse.WithLogger(discardLogger)))

	if s.Record(PathEVSEIndicatorLED) != nil {
		t.Fatal("indicator LED record should not exist yet")
	}
	writeRegisters(t, e, 1004, 0, 1001, 0, 2000)

	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1004); got != 1001 {
		t.Errorf("LED indication: expected 1001, got %d", got)
	}
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1006); got != 2000 {
		t.Errorf("LED duration: expected 2000, got %d", got)
	}
}

// stickySource forgets features on demand.
type stickySource struct {
	*state.Store
	hide bool
}

func (s *stickySource) HasFeature(name string) bool {
	return !s.hide && s.Store.HasFeature(name)
}

func TestFeatureCache_Sticky(t *testing.T) {
	src := &stickySource{Store: newTestStore()}
	c := NewFeatureCache(src)

	if !c.Has(FeatureEVSE) {
		t.Fatal("evse should be present")
	}
	src.hide = true
	c.Refresh()
	if !c.Has(FeatureEVSE) {
		t.Error("a feature once seen must stay present")
	}

	// A new cache starts from scratch.
	if NewFeatureCache(src).Has(FeatureEVSE) {
		t.Error("rebuilt cache should not see hidden features")
	}
}

func TestFeatureCache_Snapshot(t *testing.T) {
	s := state.NewStore()
	s.AddFeature(string(FeatureNFC))
	c := NewFeatureCache(s)

	snap := c.Snapshot()
	if len(snap) != len(Features) {
		t.Errorf("expected %d flags, got %d", len(Features), len(snap))
	}
	if !snap["nfc"] || snap["evse"] {
		t.Errorf("unexpected snapshot %v", snap)
	}
	if !c.HasAll(nil) || c.HasAll([]Feature{FeatureNFC, FeatureEVSE}) {
		t.Error("HasAll mismatch")
	}
}

func TestEngine_SetTable(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	if e.Table() != TableWARP {
		t.Fatalf("expected WARP, got %s", e.Table())
	}
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1016); got != SentinelBits {
		t.Errorf("WARP 1016: expected sentinel, got %d", got)
	}

	e.SetTable(TableKEBA)
	if e.Table() != TableKEBA {
		t.Fatalf("expected KEBA, got %s", e.Table())
	}
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1016); got != 312121 {
		t.Errorf("KEBA 1016: expected 312121, got %d", got)
	}
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(newTestStore(), &recorder{})

	readInput(t, e, 20, 4)
	writeRegisters(t, e, 1000, 0, 1)

	st := e.Stats()
	if st.Reads.Value() != 1 || st.Writes.Value() != 1 {
		t.Errorf("Reads/Writes: expected 1/1, got %d/%d", st.Reads.Value(), st.Writes.Value())
	}
	if st.UnresolvedReads.Value() != 2 {
		t.Errorf("UnresolvedReads: expected 2, got %d", st.UnresolvedReads.Value())
	}
}

// Writes applied through the EVSE controller show up in later reads.
func TestEngine_WriteReadRoundTrip(t *testing.T) {
	s := newTestStore()
	ctl := evse.NewController(s, evse.WithLogger(discardLogger))
	e := newTestEngine(s, ctl)

	writeRegisters(t, e, 1002, 0, 10000)
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1002); got != 10000 {
		t.Errorf("modbus current: expected 10000, got %d", got)
	}

	writeRegisters(t, e, 1004, 0, 1002, 0, 3000)
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1004); got != 1002 {
		t.Errorf("LED indication: expected 1002, got %d", got)
	}
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1006); got != 3000 {
		t.Errorf("LED duration: expected 3000, got %d", got)
	}

	writeCoils(t, e, 1000, false)
	if bits := readBits(t, e, modbus.FuncReadCoils, 1000, 1, nil); bits[0] != 0 {
		t.Errorf("modbus enable coil: expected false, got %#x", bits[0])
	}

	writeRegisters(t, e, 3100, 0, 1)
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 3100); got != 1 {
		t.Errorf("phases wanted: expected 1, got %d", got)
	}

	// Rejected by the controller, logged, the old value stays.
	writeRegisters(t, e, 1004, 0, 4242, 0, 0)
	if got := readPair(t, e, modbus.FuncReadHoldingRegisters, 1004); got != 1002 {
		t.Errorf("invalid LED indication: expected 1002 to remain, got %d", got)
	}
	if n := e.Stats().FailedCommands.Value(); n != 1 {
		t.Errorf("FailedCommands: expected 1, got %d", n)
	}
}

func TestParseTable(t *testing.T) {
	tests := []struct {
		in      string
		expect  Table
		wantErr bool
	}{
		{"WARP", TableWARP, false},
		{"keba", TableKEBA, false},
		{" Warp ", TableWARP, false},
		{"bender", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTable(tt.in)
		if (err != nil) != tt.wantErr || got != tt.expect {
			t.Errorf("ParseTable(%q): expected (%s, err=%v), got (%s, %v)", tt.in, tt.expect, tt.wantErr, got, err)
		}
	}
}

func TestLayout_Overlap(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("overlapping entries should panic")
		}
	}()
	newLayout(2,
		span(100, 4, "a", func(*scratch, int) TwoRegs { return U(0) }),
		scalar(106, "b", func(*scratch) TwoRegs { return U(0) }),
	)
}

func TestLayout_Find(t *testing.T) {
	l := newLayout(2,
		scalar(0, "a", func(*scratch) TwoRegs { return U(0) }),
		span(10, 3, "b", func(*scratch, int) TwoRegs { return U(0) }),
	)

	tests := []struct {
		addr  uint16
		name  string
		index int
		found bool
	}{
		{0, "a", 0, true},
		{1, "a", 0, true},
		{2, "", 0, false},
		{10, "b", 0, true},
		{14, "b", 2, true},
		{15, "b", 2, true},
		{16, "", 0, false},
	}
	for _, tt := range tests {
		e, i, ok := l.find(tt.addr)
		if ok != tt.found {
			t.Errorf("addr %d: found expected %v", tt.addr, tt.found)
			continue
		}
		if ok && (e.Name != tt.name || i != tt.index) {
			t.Errorf("addr %d: expected %s[%d], got %s[%d]", tt.addr, tt.name, tt.index, e.Name, i)
		}
	}
}

func TestLayoutListing(t *testing.T) {
	entries := Layout(TableWARP)

	var slots, allValues, coil Entry
	for _, en := range entries {
		switch {
		case en.Name == "charging_slots":
			slots = en
		case en.Name == "meter_all_values":
			allValues = en
		case en.Space == "coil" && en.Start == 1001:
			coil = en
		}
	}
	if slots.Start != 1012 || slots.End != 1051 {
		t.Errorf("charging_slots: expected 1012..1051, got %d..%d", slots.Start, slots.End)
	}
	if allValues.End != 2269 || len(allValues.Require) != 1 {
		t.Errorf("meter_all_values: unexpected %+v", allValues)
	}
	if !coil.Writable {
		t.Error("coil 1001 should be writable")
	}

	var writeOnly int
	for _, en := range Layout(TableKEBA) {
		if en.Start >= 5000 {
			writeOnly++
		}
	}
	if writeOnly != 9 {
		t.Errorf("KEBA write registers: expected 9, got %d", writeOnly)
	}
}
