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
	"log/slog"

	"github.com/edgeo-scada/wallbox-modbus/internal/evse"
	"github.com/edgeo-scada/wallbox-modbus/internal/meters"
	"github.com/edgeo-scada/wallbox-modbus/internal/nfc"
	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

// KebaFirmwareVersion is 3.10.27, the last KEBA firmware without the
// failsafe registers.
const KebaFirmwareVersion uint32 = 0x030A1B00

// kebaTable emulates a KEBA KC-P30. It has holding registers only;
// reads are 32 bit pairs, writes are single 16 bit registers.
func kebaTable() *tableSet {
	return &tableSet{
		id:      TableKEBA,
		holding: newLayout(2, kebaHoldingRegisters()...),

		registerWrites: map[uint16]write[uint16]{
			5004: {Name: "set_charging_current", Require: []Feature{FeatureEVSE}, Write: func(w *writer, v uint16) error {
				return w.cmd.SetModbusCurrent(uint32(v))
			}},
			5010: {Name: "set_energy", Require: []Feature{FeatureEVSE}, Write: func(w *writer, v uint16) error {
				// 10 Wh steps
				return w.cmd.OverrideEnergy(uint32(v) * 10)
			}},
			5012: {Name: "unlock_plug", Write: ignoreWord},
			5014: {Name: "enable_station", Require: []Feature{FeatureEVSE}, Write: func(w *writer, v uint16) error {
				return w.cmd.SetModbusEnabled(v > 0)
			}},
			5016: {Name: "failsafe_current", Write: ignoreWord},
			5018: {Name: "failsafe_timeout", Write: ignoreWord},
			5020: {Name: "failsafe_persist", Write: ignoreWord},
			5050: {Name: "phase_switch_source", Write: ignoreWord},
			5052: {Name: "phase_switch", Require: []Feature{FeaturePhaseSwitch}, Write: func(w *writer, v uint16) error {
				phases := uint32(1)
				if v == 1 {
					phases = 3
				}
				return switchPhases(w, phases)
			}},
		},
	}
}

func ignoreWord(*writer, uint16) error { return nil }

// scaled converts a float reading to an unsigned register value.
func scaled(v state.Value, factor float64) TwoRegs {
	return U(state.ClampUint32(float64(v.AsFloat()) * factor))
}

func allValue(s *scratch, i int) state.Value {
	return s.cache.meterAllValues.Get().Index(i)
}

func kebaHoldingRegisters() []entry[TwoRegs] {
	iec := func(s *scratch) uint32 { return field(s.cache.evseState, "iec61851_state").AsUint() }

	return []entry[TwoRegs]{
		scalar(1000, "charging_state", func(s *scratch) TwoRegs {
			enable := slot(s, evse.SlotModbusTCPEnable)
			switch st := iec(s); {
			case enable.Active && enable.MaxCurrent == 0:
				// suspended
				return U(5)
			case st == 4:
				// error
				return U(4)
			default:
				return U(st + 1)
			}
		}, FeatureEVSE),
		scalar(1004, "cable_state", func(s *scratch) TwoRegs {
			switch iec(s) {
			case 1:
				return U(5)
			case 2, 3:
				return U(7)
			default:
				return U(3)
			}
		}, FeatureEVSE),
		scalar(1006, "error_code", func(*scratch) TwoRegs { return U(0) }),
		scalar(1008, "current_l1", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.CurrentL1A), 1000)
		}, FeatureMeterAllValues),
		scalar(1010, "current_l2", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.CurrentL2A), 1000)
		}, FeatureMeterAllValues),
		scalar(1012, "current_l3", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.CurrentL3A), 1000)
		}, FeatureMeterAllValues),
		scalar(1014, "serial_number", func(s *scratch) TwoRegs { return U(s.dev.UID) }),
		scalar(1016, "product_type", func(s *scratch) TwoRegs { return U(kebaFeatures(s)) }),
		scalar(1018, "firmware_version", func(*scratch) TwoRegs { return U(KebaFirmwareVersion) }),
		scalar(1020, "active_power", func(s *scratch) TwoRegs {
			return scaled(field(s.cache.meterValues, "power"), 1000)
		}, FeatureMeter),
		scalar(1036, "total_energy", func(s *scratch) TwoRegs {
			return U(state.ClampUint32(float64(s.energyAbsolute()) * 10000))
		}, FeatureMeter),
		scalar(1040, "voltage_l1", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.LineToNeutralVoltsL1), 1)
		}, FeatureMeterAllValues),
		scalar(1042, "voltage_l2", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.LineToNeutralVoltsL2), 1)
		}, FeatureMeterAllValues),
		scalar(1044, "voltage_l3", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.LineToNeutralVoltsL3), 1)
		}, FeatureMeterAllValues),
		scalar(1046, "power_factor", func(s *scratch) TwoRegs {
			return scaled(allValue(s, meters.TotalSystemPowerFactor), 10)
		}, FeatureMeterAllValues),
		scalar(1100, "max_charging_current", func(s *scratch) TwoRegs {
			return U(field(s.cache.evseState, "allowed_charging_current").AsUint())
		}, FeatureEVSE),
		scalar(1110, "max_supported_current", func(s *scratch) TwoRegs {
			return U(min(slot(s, evse.SlotIncomingCable).MaxCurrent, slot(s, evse.SlotOutgoingCable).MaxCurrent))
		}, FeatureEVSE),
		scalar(1500, "rfid_card", func(s *scratch) TwoRegs {
			switch field(s.cache.currentCharge, "authorization_type").AsUint() {
			case 2, 3:
				id := field(s.cache.currentCharge, "authorization_info").Get("tag_id").AsString()
				return U(nfc.ExportUint32(id))
			}
			return U(0)
		}, FeatureNFC),
		scalar(1502, "charged_energy", func(s *scratch) TwoRegs {
			if !s.charging() {
				return U(0)
			}
			return U(state.ClampUint32(float64(s.chargedEnergy()) * 10000))
		}, FeatureMeter, FeatureChargeTracker),
		scalar(1550, "phase_switch_source", func(s *scratch) TwoRegs {
			if s.cache.Has(FeaturePhaseSwitch) {
				return U(3)
			}
			return U(0)
		}),
		scalar(1552, "phase_switch_state", func(s *scratch) TwoRegs { return U(phaseCount(s)) }),
		scalar(1600, "failsafe_current", func(*scratch) TwoRegs { return U(0) }),
		scalar(1602, "failsafe_timeout", func(*scratch) TwoRegs { return U(0) }),
	}
}

// kebaFeatures encodes the product type as a KC-P30 with cable:
// 3 (KC-P30), 1 (cable), current rating, 1 (c-series), meter, RFID.
func kebaFeatures(s *scratch) uint32 {
	features := uint32(310000)

	if s.cache.Has(FeatureEVSE) {
		switch jumper := field(s.cache.evseHardware, "jumper_configuration").AsUint(); jumper {
		case 2: // 13 A
			features += 1000
		case 3: // 16 A
			features += 2000
		case 4: // 20 A
			features += 3000
		case 6: // 32 A
			features += 4000
		default:
			if !s.warn.kebaCable {
				s.warn.kebaCable = true
				s.logger.Warn("no matching KEBA cable configuration, reporting 0",
					slog.Uint64("jumper_configuration", uint64(jumper)))
			}
		}
	}

	features += 100

	if s.cache.Has(FeatureMeter) {
		features += 20
	} else if !s.warn.kebaMeter {
		s.warn.kebaMeter = true
		s.logger.Warn("wallbox has no meter, KEBA clients will see errors")
	}

	if s.cache.Has(FeatureNFC) {
		features++
	}
	return features
}
