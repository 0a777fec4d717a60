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
	"fmt"
)

// Indicator LED values.
const (
	LEDAutomatic int32 = -1
	LEDOff       int32 = 0
	LEDOn        int32 = 255
	LEDAck       int32 = 1001
	LEDNack      int32 = 1002
	LEDNag       int32 = 1003

	// Error blink codes 2001 to 2010 blink the LED 1 to 10 times.
	LEDErrorFirst int32 = 2001
	LEDErrorLast  int32 = 2010

	// MaxLEDDuration is the longest indication in ms.
	MaxLEDDuration = 65535
)

// ErrInvalidLED is returned for indications or durations the LED does
// not support.
var ErrInvalidLED = errors.New("evse: invalid indicator LED request")

// ValidateLED checks an indication and its duration in ms.
func ValidateLED(indication int32, duration uint32) error {
	valid := (indication >= LEDAutomatic && indication <= LEDOn) ||
		(indication >= LEDAck && indication <= LEDNag) ||
		(indication >= LEDErrorFirst && indication <= LEDErrorLast)
	if !valid {
		return fmt.Errorf("%w: indication %d", ErrInvalidLED, indication)
	}
	if duration > MaxLEDDuration {
		return fmt.Errorf("%w: duration %d ms exceeds %d", ErrInvalidLED, duration, MaxLEDDuration)
	}
	return nil
}
