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

// Package evse covers the charge controller side of the register tables:
// charging slot layout, indicator LED validation and the Controller that
// applies Modbus side effects to the state store.
package evse

import "github.com/edgeo-scada/wallbox-modbus/internal/state"

// Charging slot indices into evse/slots.
const (
	SlotIncomingCable = iota
	SlotOutgoingCable
	SlotShutdownInput
	SlotGPInput
	SlotAutostartButton
	SlotGlobal
	SlotUser
	SlotChargeManager
	SlotExternal
	SlotModbusTCP
	SlotModbusTCPEnable
	SlotOCPP
	SlotChargeLimits
	SlotRequireMeter
	SlotAutomation
)

// SlotCount is the number of charging slots the EVSE supports.
const SlotCount = 20

// MaxCurrent is the largest current in mA a slot can allow.
const MaxCurrent = 32000

// Slot is a charging slot. An inactive slot does not limit the current.
type Slot struct {
	Active     bool
	MaxCurrent uint32
}

// SlotAt returns slot i of an evse/slots array. ok is false when the
// array has no element i.
func SlotAt(slots state.Value, i int) (s Slot, ok bool) {
	if i < 0 || i >= slots.Len() || slots.Kind() != state.KindArray {
		return Slot{}, false
	}
	v := slots.Index(i)
	return Slot{
		Active:     v.Get("active").AsBool(),
		MaxCurrent: v.Get("max_current").AsUint(),
	}, true
}

// Limit reports the slot as a register value: the maximum current when
// active, 0xFFFFFFFF when the slot does not limit.
func (s Slot) Limit() uint32 {
	if !s.Active {
		return 0xFFFFFFFF
	}
	return s.MaxCurrent
}

// Allows reports whether the slot lets charging proceed.
func (s Slot) Allows() bool {
	return !s.Active || s.MaxCurrent > 0
}

// Value encodes s as a state object.
func (s Slot) Value() state.Value {
	return state.Object(map[string]state.Value{
		"active":      state.Bool(s.Active),
		"max_current": state.Uint(uint64(s.MaxCurrent)),
	})
}
