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

// Commands are the side effects register and coil writes trigger.
// Errors are logged by the engine and never reach the Modbus client.
type Commands interface {
	SetModbusEnabled(enabled bool) error
	SetModbusCurrent(current uint32) error
	SetIndicatorLED(indication int32, duration uint32) error
	StartCharging() error
	StopCharging() error
	OverrideEnergy(wh uint32) error
	UpdateExternalControl(phases uint32) error
	ResetMeter() error
	Reboot(reason string)
}
