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
	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

// Feature names an optional subsystem.
type Feature string

const (
	FeatureEVSE           Feature = "evse"
	FeatureMeter          Feature = "meter"
	FeatureMeterAllValues Feature = "meter_all_values"
	FeatureMeterPhases    Feature = "meter_phases"
	FeatureNFC            Feature = "nfc"
	FeaturePhaseSwitch    Feature = "phase_switch"
	FeatureChargeTracker  Feature = "charge_tracker"
)

// Features lists every feature the tables depend on.
var Features = []Feature{
	FeatureEVSE,
	FeatureMeter,
	FeatureMeterAllValues,
	FeatureMeterPhases,
	FeatureNFC,
	FeaturePhaseSwitch,
	FeatureChargeTracker,
}

// State record paths read by the tables.
const (
	PathEVSEState              = "evse/state"
	PathEVSESlots              = "evse/slots"
	PathEVSELowLevelState      = "evse/low_level_state"
	PathEVSEIndicatorLED       = "evse/indicator_led"
	PathEVSEHardwareConfig     = "evse/hardware_configuration"
	PathCurrentCharge          = "charge_tracker/current_charge"
	PathMeterState             = "meter/state"
	PathMeterValues            = "meter/values"
	PathMeterPhases            = "meter/phases"
	PathMeterAllValues         = "meter/all_values"
	PathPowerManagerState      = "power_manager/state"
	PathPowerManagerExtControl = "power_manager/external_control"
	PathNFCSeenTags            = "nfc/seen_tags"
)

// Source is what the cache needs from the state store.
type Source interface {
	HasFeature(name string) bool
	Record(path string) *state.Record
}

// FeatureCache remembers which features are present and holds the
// records the resolvers read. A feature seen once stays present; absent
// ones are asked again on every refresh.
type FeatureCache struct {
	src Source
	has map[Feature]bool

	evseState      *state.Record
	evseSlots      *state.Record
	evseLowLevel   *state.Record
	evseLED        *state.Record
	evseHardware   *state.Record
	currentCharge  *state.Record
	meterState     *state.Record
	meterValues    *state.Record
	meterPhases    *state.Record
	meterAllValues *state.Record
	pmState        *state.Record
	pmExtControl   *state.Record
	nfcSeenTags    *state.Record
}

// NewFeatureCache builds a cache over src.
func NewFeatureCache(src Source) *FeatureCache {
	c := &FeatureCache{
		src: src,
		has: make(map[Feature]bool, len(Features)),
	}
	c.Refresh()
	return c
}

// Has reports whether f is present.
func (c *FeatureCache) Has(f Feature) bool {
	return c.has[f]
}

// HasAll reports whether every feature in fs is present.
func (c *FeatureCache) HasAll(fs []Feature) bool {
	for _, f := range fs {
		if !c.has[f] {
			return false
		}
	}
	return true
}

// Refresh asks the source for features not yet seen and binds records
// that did not exist on the last refresh. Records keep their identity
// once registered, so bound handles never go stale.
func (c *FeatureCache) Refresh() {
	for _, f := range Features {
		if !c.has[f] && c.src.HasFeature(string(f)) {
			c.has[f] = true
		}
	}
	c.bind()
}

// Snapshot returns the current flags by name.
func (c *FeatureCache) Snapshot() map[string]bool {
	out := make(map[string]bool, len(Features))
	for _, f := range Features {
		out[string(f)] = c.has[f]
	}
	return out
}

func (c *FeatureCache) bind() {
	for _, b := range []struct {
		rec  **state.Record
		path string
	}{
		{&c.evseState, PathEVSEState},
		{&c.evseSlots, PathEVSESlots},
		{&c.evseLowLevel, PathEVSELowLevelState},
		{&c.evseLED, PathEVSEIndicatorLED},
		{&c.evseHardware, PathEVSEHardwareConfig},
		{&c.currentCharge, PathCurrentCharge},
		{&c.meterState, PathMeterState},
		{&c.meterValues, PathMeterValues},
		{&c.meterPhases, PathMeterPhases},
		{&c.meterAllValues, PathMeterAllValues},
		{&c.pmState, PathPowerManagerState},
		{&c.pmExtControl, PathPowerManagerExtControl},
		{&c.nfcSeenTags, PathNFCSeenTags},
	} {
		if *b.rec == nil {
			*b.rec = c.src.Record(b.path)
		}
	}
}

// field reads one field of a record. Missing records read as null.
func field(r *state.Record, name string) state.Value {
	return r.Get().Get(name)
}
