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

	"github.com/edgeo-scada/wallbox-modbus/internal/evse"
	"github.com/edgeo-scada/wallbox-modbus/internal/meters"
	"github.com/edgeo-scada/wallbox-modbus/internal/nfc"
)

const (
	// TableVersion is reported at input register 0.
	TableVersion = 3

	// RebootMagic written to holding register 0 reboots the device.
	RebootMagic uint32 = 0x012EB007

	// MeterResetMagic written to holding register 2000 resets the meter.
	MeterResetMagic uint32 = 0x3E12E5E7

	slotNotLimiting uint32 = 0xFFFFFFFF
)

func warpTable() *tableSet {
	return &tableSet{
		id:       TableWARP,
		coils:    newLayout(1, warpCoils()...),
		discrete: newLayout(1, warpDiscreteInputs()...),
		holding:  newLayout(2, warpHoldingRegisters()...),
		input:    newLayout(2, warpInputRegisters()...),

		coilWrites: map[uint16]write[bool]{
			1000: {Name: "modbus_enable", Require: []Feature{FeatureEVSE}, Write: func(w *writer, on bool) error {
				return w.cmd.SetModbusEnabled(on)
			}},
			1001: {Name: "charge_release", Require: []Feature{FeatureEVSE}, Write: func(w *writer, on bool) error {
				if on {
					return w.cmd.StartCharging()
				}
				return w.cmd.StopCharging()
			}},
		},

		pairWrites: map[uint16]write[uint32]{
			0: {Name: "reboot", Write: func(w *writer, v uint32) error {
				if v == RebootMagic {
					w.cmd.Reboot("Modbus TCP")
				}
				return nil
			}},
			1000: {Name: "modbus_enable", Require: []Feature{FeatureEVSE}, Write: func(w *writer, v uint32) error {
				return w.cmd.SetModbusEnabled(v > 0)
			}},
			1002: {Name: "modbus_current", Require: []Feature{FeatureEVSE}, Write: func(w *writer, v uint32) error {
				return w.cmd.SetModbusCurrent(v)
			}},
			1004: {Name: "led_indication", Require: []Feature{FeatureEVSE}, Write: func(w *writer, v uint32) error {
				duration, ok := w.takePair()
				if !ok {
					return errLEDWithoutDuration
				}
				return w.cmd.SetIndicatorLED(int32(v), duration)
			}},
			// 1006 is consumed by 1004.
			2000: {Name: "meter_reset", Require: []Feature{FeatureMeter}, Write: func(w *writer, v uint32) error {
				if v == MeterResetMagic {
					return w.cmd.ResetMeter()
				}
				return nil
			}},
			3100: {Name: "phases_wanted", Require: []Feature{FeaturePhaseSwitch}, Write: func(w *writer, v uint32) error {
				return switchPhases(w, v)
			}},
		},
	}
}

// switchPhases requests phases unless something else controls them.
func switchPhases(w *writer, phases uint32) error {
	if field(w.cache.pmState, "external_control").AsUint() != 0 {
		return nil
	}
	if err := w.cmd.UpdateExternalControl(phases); err != nil {
		return fmt.Errorf("switch phases: %w", err)
	}
	return nil
}

func slot(s *scratch, i int) evse.Slot {
	sl, _ := evse.SlotAt(s.cache.evseSlots.Get(), i)
	return sl
}

func warpInputRegisters() []entry[TwoRegs] {
	return []entry[TwoRegs]{
		scalar(0, "table_version", func(*scratch) TwoRegs { return U(TableVersion) }),
		scalar(2, "firmware_major", func(s *scratch) TwoRegs { return U(s.dev.FirmwareMajor) }),
		scalar(4, "firmware_minor", func(s *scratch) TwoRegs { return U(s.dev.FirmwareMinor) }),
		scalar(6, "firmware_patch", func(s *scratch) TwoRegs { return U(s.dev.FirmwarePatch) }),
		scalar(8, "firmware_build_timestamp", func(s *scratch) TwoRegs { return U(s.dev.BuildTimestamp) }),
		scalar(10, "uid", func(s *scratch) TwoRegs { return U(s.dev.UID) }),
		scalar(12, "unix_time", func(s *scratch) TwoRegs { return U(uint32(s.now.Unix())) }),

		scalar(1000, "iec61851_state", func(s *scratch) TwoRegs {
			return U(field(s.cache.evseState, "iec61851_state").AsUint())
		}, FeatureEVSE),
		scalar(1002, "charger_state", func(s *scratch) TwoRegs {
			return U(field(s.cache.evseState, "charger_state").AsUint())
		}, FeatureEVSE),
		scalar(1004, "charge_user_id", func(s *scratch) TwoRegs {
			return U(field(s.cache.currentCharge, "user_id").AsUint())
		}, FeatureChargeTracker),
		scalar(1006, "charge_start_minutes", func(s *scratch) TwoRegs {
			return U(field(s.cache.currentCharge, "timestamp_minutes").AsUint())
		}, FeatureChargeTracker),
		scalar(1008, "charge_duration", func(s *scratch) TwoRegs {
			now := field(s.cache.evseLowLevel, "uptime").AsUint()
			start := field(s.cache.currentCharge, "evse_uptime_start").AsUint()
			return U(chargeDuration(now, start))
		}, FeatureEVSE, FeatureChargeTracker),
		scalar(1010, "allowed_charging_current", func(s *scratch) TwoRegs {
			return U(field(s.cache.evseState, "allowed_charging_current").AsUint())
		}, FeatureEVSE),
		span(1012, evse.SlotCount, "charging_slots", func(s *scratch, i int) TwoRegs {
			sl, ok := evse.SlotAt(s.cache.evseSlots.Get(), i)
			if !ok {
				return U(slotNotLimiting)
			}
			return U(sl.Limit())
		}, FeatureEVSE),

		scalar(2000, "meter_type", func(s *scratch) TwoRegs {
			return U(field(s.cache.meterState, "type").AsUint())
		}, FeatureMeter),
		scalar(2002, "meter_power", func(s *scratch) TwoRegs {
			return F(field(s.cache.meterValues, "power").AsFloat())
		}, FeatureMeter),
		scalar(2004, "meter_energy_abs", func(s *scratch) TwoRegs {
			return F(s.energyAbsolute())
		}, FeatureMeter),
		scalar(2006, "meter_energy_rel", func(s *scratch) TwoRegs {
			return F(field(s.cache.meterValues, "energy_rel").AsFloat())
		}, FeatureMeter),
		scalar(2008, "charged_energy", func(s *scratch) TwoRegs {
			if !s.charging() {
				return F(0)
			}
			return F(s.chargedEnergy())
		}, FeatureMeter, FeatureChargeTracker),
		span(2100, meters.AllValuesCount, "meter_all_values", func(s *scratch, i int) TwoRegs {
			return F(s.cache.meterAllValues.Get().Index(i).AsFloat())
		}, FeatureMeterAllValues),

		scalar(3100, "phases", func(s *scratch) TwoRegs {
			return U(phaseCount(s))
		}),
		scalar(3102, "external_control", func(s *scratch) TwoRegs {
			return U(field(s.cache.pmState, "external_control").AsUint())
		}, FeaturePhaseSwitch),

		span(4000, nfc.TagIDLength/4, "nfc_tag_id", func(s *scratch, i int) TwoRegs {
			_, id := s.currentTag()
			return U(nfc.IDWord(id, i*4))
		}, FeatureNFC),
		scalar(4010, "nfc_tag_last_seen", func(s *scratch) TwoRegs {
			tag, _ := s.currentTag()
			return U(tag.LastSeen)
		}, FeatureNFC),
	}
}

// chargeDuration returns the seconds since start, surviving one wrap of
// the EVSE uptime counter. A start of 0 means no charge.
func chargeDuration(now, start uint32) uint32 {
	if start == 0 {
		return 0
	}
	return now - start
}

func phaseCount(s *scratch) uint32 {
	if field(s.cache.pmState, "is_3phase").AsBool() {
		return 3
	}
	return 1
}

func warpHoldingRegisters() []entry[TwoRegs] {
	return []entry[TwoRegs]{
		scalar(0, "reboot", func(*scratch) TwoRegs { return U(0) }),
		scalar(1000, "modbus_enable", func(s *scratch) TwoRegs {
			return U(slot(s, evse.SlotModbusTCPEnable).Limit())
		}, FeatureEVSE),
		scalar(1002, "modbus_current", func(s *scratch) TwoRegs {
			return U(slot(s, evse.SlotModbusTCP).Limit())
		}, FeatureEVSE),
		scalar(1004, "led_indication", func(s *scratch) TwoRegs {
			// -1 (EVSE controls the LED) reads as 0xFFFFFFFF.
			return U(uint32(field(s.cache.evseLED, "indication").AsInt()))
		}, FeatureEVSE),
		scalar(1006, "led_duration", func(s *scratch) TwoRegs {
			return U(field(s.cache.evseLED, "duration").AsUint())
		}, FeatureEVSE),
		scalar(2000, "meter_reset", func(*scratch) TwoRegs { return U(0) }, FeatureMeter),
		scalar(3100, "phases_wanted", func(s *scratch) TwoRegs {
			return U(field(s.cache.pmExtControl, "phases_wanted").AsUint())
		}, FeaturePhaseSwitch),
	}
}

func warpDiscreteInputs() []entry[bool] {
	has := func(f Feature) func(*scratch) bool {
		return func(s *scratch) bool { return s.cache.Has(f) }
	}
	return []entry[bool]{
		scalar(0, "feature_evse", has(FeatureEVSE)),
		scalar(1, "feature_meter", has(FeatureMeter)),
		scalar(2, "feature_meter_phases", has(FeatureMeterPhases)),
		scalar(3, "feature_meter_all_values", has(FeatureMeterAllValues)),
		scalar(4, "feature_phase_switch", has(FeaturePhaseSwitch)),
		scalar(5, "feature_nfc", has(FeatureNFC)),
		span(2100, 3, "phases_connected", func(s *scratch, i int) bool {
			return field(s.cache.meterPhases, "phases_connected").Index(i).AsBool()
		}, FeatureMeterPhases),
		span(2103, 3, "phases_active", func(s *scratch, i int) bool {
			return field(s.cache.meterPhases, "phases_active").Index(i).AsBool()
		}, FeatureMeterPhases),
	}
}

func warpCoils() []entry[bool] {
	return []entry[bool]{
		scalar(1000, "modbus_enable", func(s *scratch) bool {
			return slot(s, evse.SlotModbusTCPEnable).Allows()
		}, FeatureEVSE),
		scalar(1001, "charge_release", func(s *scratch) bool {
			return slot(s, evse.SlotAutostartButton).Allows()
		}, FeatureEVSE),
	}
}
