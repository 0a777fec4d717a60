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
	"time"

	"github.com/edgeo-scada/wallbox-modbus/internal/nfc"
)

// DeviceInfo holds the static identity values the tables report.
type DeviceInfo struct {
	UID            uint32
	FirmwareMajor  uint32
	FirmwareMinor  uint32
	FirmwarePatch  uint32
	BuildTimestamp uint32
}

// warnings remembers log lines that are printed once per engine.
type warnings struct {
	kebaCable bool
	kebaMeter bool
}

// scratch is the context of a single request. Values that are costly to
// compute are memoised here and dropped with the request.
type scratch struct {
	cache  *FeatureCache
	dev    DeviceInfo
	cmd    Commands
	logger *slog.Logger
	warn   *warnings
	now    time.Time

	energyAbs    float32
	hasEnergyAbs bool

	tag    nfc.Tag
	tagID  [nfc.TagIDLength]byte
	hasTag bool
}

// energyAbsolute returns meter/values.energy_abs in kWh.
func (s *scratch) energyAbsolute() float32 {
	if !s.hasEnergyAbs {
		s.energyAbs = field(s.cache.meterValues, "energy_abs").AsFloat()
		s.hasEnergyAbs = true
	}
	return s.energyAbs
}

// currentTag returns the reported NFC tag and its normalised id.
func (s *scratch) currentTag() (nfc.Tag, [nfc.TagIDLength]byte) {
	if !s.hasTag {
		s.tag = nfc.Current(s.cache.nfcSeenTags.Get())
		s.tagID = nfc.IDBytes(s.tag.ID)
		s.hasTag = true
	}
	return s.tag, s.tagID
}

// charging reports whether a charge is tracked for some user.
func (s *scratch) charging() bool {
	return field(s.cache.currentCharge, "user_id").AsInt() != -1
}

// chargedEnergy returns the energy of the running charge in kWh.
func (s *scratch) chargedEnergy() float32 {
	return s.energyAbsolute() - field(s.cache.currentCharge, "meter_start").AsFloat()
}
