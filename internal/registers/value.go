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

// Package registers maps Modbus coil, discrete input, holding register
// and input register windows onto the wallbox state store.
//
// Resolvers work on aligned register pairs holding one 32 bit value,
// the even register carrying the high word. The Engine translates
// arbitrary windows onto those pairs and dispatches writes to Commands.
package registers

import "math"

// Kind tells how the bits of a TwoRegs are to be interpreted.
type Kind uint8

const (
	KindU32 Kind = iota
	KindF32
)

func (k Kind) String() string {
	if k == KindF32 {
		return "float32"
	}
	return "uint32"
}

// SentinelBits is reported for registers nothing resolves.
const SentinelBits uint32 = 0xAAAAAAAA

// TwoRegs is the 32 bit value behind an aligned register pair.
type TwoRegs struct {
	Kind Kind
	Bits uint32
}

// Sentinel is the value of an unresolvable register pair.
var Sentinel = TwoRegs{Kind: KindU32, Bits: SentinelBits}

// U returns an unsigned pair value.
func U(v uint32) TwoRegs { return TwoRegs{Kind: KindU32, Bits: v} }

// F returns a float pair value.
func F(v float32) TwoRegs { return TwoRegs{Kind: KindF32, Bits: math.Float32bits(v)} }

// FromWords joins the high and low register of a pair.
func FromWords(high, low uint16) TwoRegs {
	return U(uint32(high)<<16 | uint32(low))
}

// Uint32 returns the raw bits.
func (t TwoRegs) Uint32() uint32 { return t.Bits }

// Float32 reinterprets the bits as an IEEE 754 float.
func (t TwoRegs) Float32() float32 { return math.Float32frombits(t.Bits) }

// High returns the word carried by the even register.
func (t TwoRegs) High() uint16 { return uint16(t.Bits >> 16) }

// Low returns the word carried by the odd register.
func (t TwoRegs) Low() uint16 { return uint16(t.Bits) }

// IsSentinel reports whether t carries the sentinel pattern.
func (t TwoRegs) IsSentinel() bool { return t.Kind == KindU32 && t.Bits == SentinelBits }
