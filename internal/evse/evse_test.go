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

package evse

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

func newStore() *state.Store {
	s := state.NewStore()
	slots := make([]state.Value, SlotCount)
	for i := range slots {
		slots[i] = Slot{Active: i == SlotModbusTCP || i == SlotModbusTCPEnable, MaxCurrent: MaxCurrent}.Value()
	}
	s.Register(PathSlots, state.Array(slots...))
	s.Register(PathPowerManager, state.Object(map[string]state.Value{"external_control": state.Uint(0)}))
	s.Register(PathExternalControl, state.Object(map[string]state.Value{"phases_wanted": state.Uint(1)}))
	s.Register(PathMeterValues, state.Object(map[string]state.Value{"energy_rel": state.Float(12.5)}))
	return s
}

func newController(s *state.Store, opts ...ControllerOption) *Controller {
	opts = append([]ControllerOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewController(s, opts...)
}

func slot(t *testing.T, s *state.Store, i int) Slot {
	t.Helper()
	v, err := s.Get(PathSlots)
	if err != nil {
		t.Fatal(err)
	}
	sl, ok := SlotAt(v, i)
	if !ok {
		t.Fatalf("slot %d missing", i)
	}
	return sl
}

func TestSlotAt(t *testing.T) {
	slots := state.Array(Slot{Active: true, MaxCurrent: 16000}.Value(), Slot{}.Value())

	s, ok := SlotAt(slots, 0)
	if !ok || s.Limit() != 16000 || !s.Allows() {
		t.Errorf("slot 0: unexpected %+v ok=%v", s, ok)
	}
	s, _ = SlotAt(slots, 1)
	if s.Limit() != 0xFFFFFFFF || !s.Allows() {
		t.Errorf("inactive slot: unexpected limit %#x", s.Limit())
	}
	if _, ok := SlotAt(slots, 2); ok {
		t.Error("slot beyond the array should not be ok")
	}
	if _, ok := SlotAt(state.Object(nil), 0); ok {
		t.Error("non-array should not be ok")
	}
	if (Slot{Active: true}).Allows() {
		t.Error("active slot at 0 mA should block")
	}
}

func TestValidateLED(t *testing.T) {
	tests := []struct {
		indication int32
		duration   uint32
		valid      bool
	}{
		{LEDAutomatic, 0, true},
		{LEDOff, 1000, true},
		{128, 1000, true},
		{LEDOn, MaxLEDDuration, true},
		{LEDAck, 500, true},
		{LEDNag, 500, true},
		{2005, 500, true},
		{-2, 0, false},
		{256, 0, false},
		{1000, 0, false},
		{2011, 0, false},
		{LEDOn, MaxLEDDuration + 1, false},
	}
	for _, tt := range tests {
		err := ValidateLED(tt.indication, tt.duration)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateLED(%d, %d): valid=%v, got %v", tt.indication, tt.duration, tt.valid, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidLED) {
			t.Errorf("expected ErrInvalidLED, got %v", err)
		}
	}
}

func TestController_Slots(t *testing.T) {
	s := newStore()
	c := newController(s)

	if err := c.SetModbusEnabled(false); err != nil {
		t.Fatal(err)
	}
	if got := slot(t, s, SlotModbusTCPEnable); got.MaxCurrent != 0 {
		t.Errorf("enable slot: expected 0, got %d", got.MaxCurrent)
	}

	if err := c.SetModbusCurrent(16000); err != nil {
		t.Fatal(err)
	}
	if got := slot(t, s, SlotModbusTCP); got.MaxCurrent != 16000 {
		t.Errorf("modbus slot: expected 16000, got %d", got.MaxCurrent)
	}
	if err := c.SetModbusCurrent(100000); err != nil {
		t.Fatal(err)
	}
	if got := slot(t, s, SlotModbusTCP); got.MaxCurrent != MaxCurrent {
		t.Errorf("modbus slot: expected clamp to %d, got %d", MaxCurrent, got.MaxCurrent)
	}

	if err := c.StopCharging(); err != nil {
		t.Fatal(err)
	}
	if got := slot(t, s, SlotAutostartButton); got.MaxCurrent != 0 {
		t.Errorf("autostart slot: expected 0, got %d", got.MaxCurrent)
	}
	if err := c.StartCharging(); err != nil {
		t.Fatal(err)
	}
	if got := slot(t, s, SlotAutostartButton); got.MaxCurrent != MaxCurrent {
		t.Errorf("autostart slot: expected %d, got %d", MaxCurrent, got.MaxCurrent)
	}
}

func TestController_NoSlots(t *testing.T) {
	c := newController(state.NewStore())
	if err := c.StartCharging(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestController_IndicatorLED(t *testing.T) {
	s := newStore()
	c := newController(s)

	if err := c.SetIndicatorLED(LEDAck, 2000); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get(PathIndicatorLED)
	if err != nil {
		t.Fatal(err)
	}
	if v.Get("indication").AsInt() != LEDAck || v.Get("duration").AsUint() != 2000 {
		t.Errorf("unexpected LED state %v", v.Interface())
	}

	if err := c.SetIndicatorLED(4242, 0); err == nil {
		t.Error("invalid indication should fail")
	}
}

func TestController_ExternalControl(t *testing.T) {
	s := newStore()
	c := newController(s)

	if err := c.UpdateExternalControl(3); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get(PathExternalControl + "/phases_wanted"); v.AsUint() != 3 {
		t.Errorf("phases_wanted: expected 3, got %d", v.AsUint())
	}

	if err := c.UpdateExternalControl(2); err == nil {
		t.Error("2 phases should be rejected")
	}

	s.Record(PathPowerManager).SetField("external_control", state.Uint(1))
	if err := c.UpdateExternalControl(1); !errors.Is(err, ErrExternalControl) {
		t.Errorf("expected ErrExternalControl, got %v", err)
	}
}

func TestController_MeterAndEnergy(t *testing.T) {
	s := newStore()
	c := newController(s)

	if err := c.ResetMeter(); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get(PathMeterValues + "/energy_rel"); v.AsFloat() != 0 {
		t.Errorf("energy_rel: expected 0, got %f", v.AsFloat())
	}

	if err := c.OverrideEnergy(12340); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get(PathOverrideEnergy + "/energy_wh"); v.AsUint() != 12340 {
		t.Errorf("energy_wh: expected 12340, got %d", v.AsUint())
	}

	if err := newController(state.NewStore()).ResetMeter(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestController_Reboot(t *testing.T) {
	var reason string
	c := newController(newStore(), WithRebootHook(func(r string) { reason = r }))
	c.Reboot("Modbus TCP")
	if reason != "Modbus TCP" {
		t.Errorf("expected reboot reason, got %q", reason)
	}
}
