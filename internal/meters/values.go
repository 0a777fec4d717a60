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

// Package meters describes the layout of the "meter/all_values" array,
// which follows the SDM630 register set.
package meters

// Indices into meter/all_values.
const (
	LineToNeutralVoltsL1 = iota
	LineToNeutralVoltsL2
	LineToNeutralVoltsL3
	CurrentL1A
	CurrentL2A
	CurrentL3A
	PowerL1W
	PowerL2W
	PowerL3W
	VoltAmpsL1
	VoltAmpsL2
	VoltAmpsL3
	VoltAmpsReactiveL1
	VoltAmpsReactiveL2
	VoltAmpsReactiveL3
	PowerFactorL1
	PowerFactorL2
	PowerFactorL3
	PhaseAngleL1
	PhaseAngleL2
	PhaseAngleL3
	AverageLineToNeutralVolts
	AverageLineCurrentA
	SumOfLineCurrentsA
	TotalSystemPowerW
	TotalSystemVoltAmps
	TotalSystemVAR
	TotalSystemPowerFactor
	TotalSystemPhaseAngle
	FrequencyHz
	TotalImportKWh
	TotalExportKWh
	TotalImportKVArh
	TotalExportKVArh
	TotalVAh
	Ah
	TotalSystemPowerDemandW
	MaximumTotalSystemPowerDemandW
	TotalSystemVADemand
	MaximumTotalSystemVADemand
	NeutralCurrentDemandA
	MaximumNeutralCurrentA
	LineToLineVoltsL1L2
	LineToLineVoltsL2L3
	LineToLineVoltsL3L1
	AverageLineToLineVolts
	NeutralCurrentA
	LineToNeutralVoltsTHDL1
	LineToNeutralVoltsTHDL2
	LineToNeutralVoltsTHDL3
	CurrentTHDL1
	CurrentTHDL2
	CurrentTHDL3
	AverageLineToNeutralVoltsTHD
	AverageLineCurrentTHD
	CurrentDemandL1
	CurrentDemandL2
	CurrentDemandL3
	MaximumCurrentDemandL1
	MaximumCurrentDemandL2
	MaximumCurrentDemandL3
	LineToLineVoltsTHDL1L2
	LineToLineVoltsTHDL2L3
	LineToLineVoltsTHDL3L1
	AverageLineToLineVoltsTHD
	TotalKWhSum
	TotalKVArhSum
	ImportKWhL1
	ImportKWhL2
	ImportKWhL3
	ExportKWhL1
	ExportKWhL2
	ExportKWhL3
	TotalKWhL1
	TotalKWhL2
	TotalKWhL3
	ImportKVArhL1
	ImportKVArhL2
	ImportKVArhL3
	ExportKVArhL1
	ExportKVArhL2
	ExportKVArhL3
	TotalKVArhL1
	TotalKVArhL2
	TotalKVArhL3

	// AllValuesCount is the length of the all_values array.
	AllValuesCount
)

var valueNames = [AllValuesCount]string{
	"line_to_neutral_volts_l1",
	"line_to_neutral_volts_l2",
	"line_to_neutral_volts_l3",
	"current_l1_a",
	"current_l2_a",
	"current_l3_a",
	"power_l1_w",
	"power_l2_w",
	"power_l3_w",
	"volt_amps_l1",
	"volt_amps_l2",
	"volt_amps_l3",
	"volt_amps_reactive_l1",
	"volt_amps_reactive_l2",
	"volt_amps_reactive_l3",
	"power_factor_l1",
	"power_factor_l2",
	"power_factor_l3",
	"phase_angle_l1",
	"phase_angle_l2",
	"phase_angle_l3",
	"average_line_to_neutral_volts",
	"average_line_current_a",
	"sum_of_line_currents_a",
	"total_system_power_w",
	"total_system_volt_amps",
	"total_system_var",
	"total_system_power_factor",
	"total_system_phase_angle",
	"frequency_hz",
	"total_import_kwh",
	"total_export_kwh",
	"total_import_kvarh",
	"total_export_kvarh",
	"total_vah",
	"ah",
	"total_system_power_demand_w",
	"maximum_total_system_power_demand_w",
	"total_system_va_demand",
	"maximum_total_system_va_demand",
	"neutral_current_demand_a",
	"maximum_neutral_current_a",
	"line_to_line_volts_l1_l2",
	"line_to_line_volts_l2_l3",
	"line_to_line_volts_l3_l1",
	"average_line_to_line_volts",
	"neutral_current_a",
	"line_to_neutral_volts_thd_l1",
	"line_to_neutral_volts_thd_l2",
	"line_to_neutral_volts_thd_l3",
	"current_thd_l1",
	"current_thd_l2",
	"current_thd_l3",
	"average_line_to_neutral_volts_thd",
	"average_line_current_thd",
	"current_demand_l1",
	"current_demand_l2",
	"current_demand_l3",
	"maximum_current_demand_l1",
	"maximum_current_demand_l2",
	"maximum_current_demand_l3",
	"line_to_line_volts_thd_l1_l2",
	"line_to_line_volts_thd_l2_l3",
	"line_to_line_volts_thd_l3_l1",
	"average_line_to_line_volts_thd",
	"total_kwh_sum",
	"total_kvarh_sum",
	"import_kwh_l1",
	"import_kwh_l2",
	"import_kwh_l3",
	"export_kwh_l1",
	"export_kwh_l2",
	"export_kwh_l3",
	"total_kwh_l1",
	"total_kwh_l2",
	"total_kwh_l3",
	"import_kvarh_l1",
	"import_kvarh_l2",
	"import_kvarh_l3",
	"export_kvarh_l1",
	"export_kvarh_l2",
	"export_kvarh_l3",
	"total_kvarh_l1",
	"total_kvarh_l2",
	"total_kvarh_l3",
}

// ValueName returns a snake_case name for an all_values index.
func ValueName(i int) string {
	if i < 0 || i >= AllValuesCount {
		return "unknown"
	}
	return valueNames[i]
}
