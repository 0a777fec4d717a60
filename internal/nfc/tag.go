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

// Package nfc models the NFC tag history kept in the "nfc/seen_tags"
// record and the tag id encodings used by the register tables.
package nfc

import (
	"encoding/binary"
	"strings"

	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

const (
	// TagListLength is the number of entries in the seen tag history.
	// Entry 0 is the most recently seen tag, the last entry holds a tag
	// injected over the API.
	TagListLength = 8

	// TagIDLength is the size of a normalised tag id in bytes.
	TagIDLength = 20
)

// Tag is one entry of the tag history.
type Tag struct {
	Type     uint8
	ID       string
	LastSeen uint32
}

// TagFromValue decodes a {tag_type, tag_id, last_seen} object.
func TagFromValue(v state.Value) Tag {
	return Tag{
		Type:     uint8(v.Get("tag_type").AsUint()),
		ID:       v.Get("tag_id").AsString(),
		LastSeen: v.Get("last_seen").AsUint(),
	}
}

// Value encodes t as a state object.
func (t Tag) Value() state.Value {
	return state.Object(map[string]state.Value{
		"tag_type":  state.Uint(uint64(t.Type)),
		"tag_id":    state.String(t.ID),
		"last_seen": state.Uint(uint64(t.LastSeen)),
	})
}

// Current picks the tag the register tables report from a seen_tags
// array. The injected tag wins when it is set and either nothing was
// seen or it is more recent than the seen tag.
func Current(seenTags state.Value) Tag {
	seen := TagFromValue(seenTags.Index(0))
	injected := TagFromValue(seenTags.Index(TagListLength - 1))

	if (seen.LastSeen == 0 || seen.LastSeen > injected.LastSeen) && injected.LastSeen > 0 {
		return injected
	}
	return seen
}

// StripSeparators removes the ':' separators of a tag id such as
// "04:A2:3B:1C".
func StripSeparators(id string) string {
	return strings.ReplaceAll(id, ":", "")
}

// IDBytes returns the tag id without separators, zero padded (or cut)
// to TagIDLength bytes.
func IDBytes(id string) [TagIDLength]byte {
	var out [TagIDLength]byte
	copy(out[:], StripSeparators(id))
	return out
}

// IDWord returns the 4 id bytes starting at offset as a big-endian
// word. Offsets past the end read as 0.
func IDWord(id [TagIDLength]byte, offset int) uint32 {
	if offset < 0 || offset+4 > TagIDLength {
		return 0
	}
	return binary.BigEndian.Uint32(id[offset : offset+4])
}

// ExportUint32 packs the first four hex byte pairs of a tag id into a
// word, first byte most significant. Missing or malformed digits count
// as 0.
func ExportUint32(id string) uint32 {
	hex := StripSeparators(id)
	var out uint32
	for i := 0; i < 4; i++ {
		out = out<<8 | uint32(hexNibble(hex, 2*i))<<4 | uint32(hexNibble(hex, 2*i+1))
	}
	return out
}

func hexNibble(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	c := s[i]
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
