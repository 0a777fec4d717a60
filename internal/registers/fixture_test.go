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
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	modbus "github.com/edgeo-scada/wallbox-modbus"
	"github.com/edgeo-scada/wallbox-modbus/internal/evse"
	"github.com/edgeo-scada/wallbox-modbus/internal/meters"
	"github.com/edgeo-scada/wallbox-modbus/internal/nfc"
	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

var testDevice = DeviceInfo{
	UID:            0x00C0FFEE,
	FirmwareMajor:  2,
	FirmwareMinor:  6,
	FirmwarePatch:  1,
	BuildTimestamp: 1730000000,
}

var testNow = time.Unix(1760000000, 0)

func obj(fields map[string]state.Value) state.Value { return state.Object(fields) }

// newTestStore returns a store with every feature present and plausible
// values in all records the tables read.
func newTestStore() *state.Store {
	s := state.NewStore()
	for _, f := range Features {
		s.AddFeature(string(f))
	}

	slots := make([]state.Value, evse.SlotCount)
	for i := range slots {
		slots[i] = evse.Slot{}.Value()
	}
	slots[evse.SlotIncomingCable] = evse.Slot{Active: true, MaxCurrent: 32000}.Value()
	slots[evse.SlotOutgoingCable] = evse.Slot{Active: true, MaxCurrent: 20000}.Value()
	slots[evse.SlotAutostartButton] = evse.Slot{Active: true, MaxCurrent: 0}.Value()
	slots[evse.SlotModbusTCP] = evse.Slot{Active: true, MaxCurrent: 16000}.Value()
	slots[evse.SlotModbusTCPEnable] = evse.Slot{Active: true, MaxCurrent: 32000}.Value()
	s.Register(PathEVSESlots, state.Array(slots...))

	s.Register(PathEVSEState, obj(map[string]state.Value{
		"iec61851_state":           state.Uint(2),
		"charger_state":            state.Uint(3),
		"allowed_charging_current": state.Uint(16000),
	}))
	s.Register(PathEVSELowLevelState, obj(map[string]state.Value{"uptime": state.Uint(5000)}))
	s.Register(PathEVSEIndicatorLED, obj(map[string]state.Value{
		"indication": state.Int(-1),
		"duration":   state.Uint(0),
	}))
	s.Register(PathEVSEHardwareConfig, obj(map[string]state.Value{"jumper_configuration": state.Uint(3)}))

	s.Register(PathCurrentCharge, obj(map[string]state.Value{
		"user_id":            state.Uint(1),
		"meter_start":        state.Float(100.5),
		"evse_uptime_start":  state.Uint(2000),
		"timestamp_minutes":  state.Uint(29333333),
		"authorization_type": state.Uint(2),
		"authorization_info": obj(map[string]state.Value{"tag_id": state.String("04:A2:3B:1C")}),
	}))

	s.Register(PathMeterState, obj(map[string]state.Value{"type": state.Uint(2)}))
	s.Register(PathMeterValues, obj(map[string]state.Value{
		"power":      state.Float(11000),
		"energy_abs": state.Float(123.5),
		"energy_rel": state.Float(10.25),
	}))
	s.Register(PathMeterPhases, obj(map[string]state.Value{
		"phases_connected": state.Array(state.Bool(true), state.Bool(true), state.Bool(false)),
		"phases_active":    state.Array(state.Bool(true), state.Bool(false), state.Bool(false)),
	}))

	all := make([]state.Value, meters.AllValuesCount)
	for i := range all {
		all[i] = state.Float(float64(i))
	}
	all[meters.LineToNeutralVoltsL1] = state.Float(230)
	all[meters.LineToNeutralVoltsL2] = state.Float(231)
	all[meters.LineToNeutralVoltsL3] = state.Float(229.5)
	all[meters.CurrentL1A] = state.Float(16)
	all[meters.CurrentL2A] = state.Float(15.5)
	all[meters.CurrentL3A] = state.Float(0)
	all[meters.TotalSystemPowerFactor] = state.Float(0.5)
	s.Register(PathMeterAllValues, state.Array(all...))

	s.Register(PathPowerManagerState, obj(map[string]state.Value{
		"is_3phase":        state.Bool(true),
		"external_control": state.Uint(0),
	}))
	s.Register(PathPowerManagerExtControl, obj(map[string]state.Value{"phases_wanted": state.Uint(3)}))

	tags := make([]state.Value, nfc.TagListLength)
	for i := range tags {
		tags[i] = nfc.Tag{}.Value()
	}
	tags[0] = nfc.Tag{Type: 2, ID: "04:A2:3B:1C", LastSeen: 42}.Value()
	s.Register(PathNFCSeenTags, state.Array(tags...))

	return s
}

// call is one recorded command.
type call struct {
	Name string
	Args []any
}

// recorder is a Commands implementation that records every call.
type recorder struct {
	calls []call
	err   error
}

func (r *recorder) record(name string, args ...any) error {
	r.calls = append(r.calls, call{Name: name, Args: args})
	return r.err
}

func (r *recorder) SetModbusEnabled(enabled bool) error {
	return r.record("SetModbusEnabled", enabled)
}

func (r *recorder) SetModbusCurrent(current uint32) error {
	return r.record("SetModbusCurrent", current)
}

func (r *recorder) SetIndicatorLED(indication int32, duration uint32) error {
	return r.record("SetIndicatorLED", indication, duration)
}

func (r *recorder) StartCharging() error { return r.record("StartCharging") }

func (r *recorder) StopCharging() error { return r.record("StopCharging") }

func (r *recorder) OverrideEnergy(wh uint32) error {
	return r.record("OverrideEnergy", wh)
}

func (r *recorder) UpdateExternalControl(phases uint32) error {
	return r.record("UpdateExternalControl", phases)
}

func (r *recorder) ResetMeter() error { return r.record("ResetMeter") }

func (r *recorder) Reboot(reason string) { r.record("Reboot", reason) }

func (r *recorder) expect(t *testing.T, want ...call) {
	t.Helper()
	if len(want) == 0 && len(r.calls) == 0 {
		return
	}
	if !reflect.DeepEqual(r.calls, want) {
		t.Errorf("calls: expected %+v, got %+v", want, r.calls)
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestEngine(s *state.Store, cmd Commands, opts ...Option) *Engine {
	opts = append([]Option{
		WithLogger(discardLogger),
		WithDeviceInfo(testDevice),
		WithClock(func() time.Time { return testNow }),
	}, opts...)
	return NewEngine(s, cmd, opts...)
}

func readRegisters(t *testing.T, e *Engine, fc modbus.FunctionCode, addr, qty uint16) []uint16 {
	t.Helper()
	req := &modbus.Request{Function: fc, Address: addr, Quantity: qty, Registers: make([]uint16, qty)}
	if err := e.ServeModbus(req); err != nil {
		t.Fatalf("ServeModbus: %v", err)
	}
	return req.Registers
}

func readInput(t *testing.T, e *Engine, addr, qty uint16) []uint16 {
	t.Helper()
	return readRegisters(t, e, modbus.FuncReadInputRegisters, addr, qty)
}

func readHolding(t *testing.T, e *Engine, addr, qty uint16) []uint16 {
	t.Helper()
	return readRegisters(t, e, modbus.FuncReadHoldingRegisters, addr, qty)
}

// readPair reads the aligned pair at addr as one value.
func readPair(t *testing.T, e *Engine, fc modbus.FunctionCode, addr uint16) uint32 {
	t.Helper()
	regs := readRegisters(t, e, fc, addr, 2)
	return FromWords(regs[0], regs[1]).Bits
}

func readBits(t *testing.T, e *Engine, fc modbus.FunctionCode, addr, qty uint16, bits []byte) []byte {
	t.Helper()
	if bits == nil {
		bits = make([]byte, (qty+7)/8)
	}
	req := &modbus.Request{Function: fc, Address: addr, Quantity: qty, Bits: bits}
	if err := e.ServeModbus(req); err != nil {
		t.Fatalf("ServeModbus: %v", err)
	}
	return req.Bits
}

func writeRegisters(t *testing.T, e *Engine, addr uint16, data ...uint16) {
	t.Helper()
	req := &modbus.Request{
		Function:  modbus.FuncWriteMultipleRegisters,
		Address:   addr,
		Quantity:  uint16(len(data)),
		Registers: data,
	}
	if err := e.ServeModbus(req); err != nil {
		t.Fatalf("ServeModbus: %v", err)
	}
}

func writeCoils(t *testing.T, e *Engine, addr uint16, values ...bool) {
	t.Helper()
	req := &modbus.Request{
		Function: modbus.FuncWriteMultipleCoils,
		Address:  addr,
		Quantity: uint16(len(values)),
		Bits:     make([]byte, (len(values)+7)/8),
	}
	for i, v := range values {
		req.SetBit(i, v)
	}
	if err := e.ServeModbus(req); err != nil {
		t.Fatalf("ServeModbus: %v", err)
	}
}
