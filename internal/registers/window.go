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
	"context"
	"errors"
	"log/slog"

	modbus "github.com/edgeo-scada/wallbox-modbus"
)

// half tells which words of a pair a window position covers.
type half uint8

const (
	bothWords half = iota
	lowWord
	highWord
)

func (h half) width() int {
	if h == bothWords {
		return 2
	}
	return 1
}

// walk returns the aligned pair under window position i of a window
// of count registers at start, and which of its words the window holds
// from there on. Only the first position can start on a low word and
// only the last can end on a high word.
func walk(start uint16, count, i int) (uint16, half) {
	reg := uint16(int(start)+i) &^ 1
	switch {
	case i == 0 && start%2 == 1:
		return reg, lowWord
	case i == count-1:
		return reg, highWord
	}
	return reg, bothWords
}

// resolvePair resolves the pair at the aligned address addr. found is
// false when no entry covers addr; entries whose features are missing
// are found but read as the sentinel.
func (e *Engine) resolvePair(l *layout[TwoRegs], s *scratch, addr uint16) (v TwoRegs, found bool) {
	ent, i, ok := l.find(addr)
	if !ok {
		return Sentinel, false
	}
	if !s.cache.HasAll(ent.Require) {
		return Sentinel, true
	}
	return ent.Read(s, i), true
}

func (e *Engine) resolveBit(l *layout[bool], s *scratch, addr uint16) (v, found bool) {
	ent, i, ok := l.find(addr)
	if !ok {
		return false, false
	}
	if !s.cache.HasAll(ent.Require) {
		return false, true
	}
	return ent.Read(s, i), true
}

// readRegisters fills dst with the window of len(dst) registers at start.
func (e *Engine) readRegisters(l *layout[TwoRegs], s *scratch, start uint16, dst []uint16) {
	for i := 0; i < len(dst); {
		reg, h := walk(start, len(dst), i)

		v, found := e.resolvePair(l, s, reg)
		if !found {
			e.stats.UnresolvedReads.Add(1)
			e.logger.Log(context.Background(), LevelTrace, "unresolved register",
				slog.Uint64("addr", uint64(reg)))
		}

		switch h {
		case lowWord:
			dst[i] = v.Low()
		case highWord:
			dst[i] = v.High()
		default:
			dst[i] = v.High()
			dst[i+1] = v.Low()
		}
		i += h.width()
	}
}

// readBits fills the request's bit window. Bits outside the window keep
// their value.
func (e *Engine) readBits(l *layout[bool], s *scratch, req *modbus.Request) {
	for i := 0; i < int(req.Quantity); i++ {
		addr := req.Address + uint16(i)
		v, found := e.resolveBit(l, s, addr)
		if !found {
			e.stats.UnresolvedReads.Add(1)
			e.logger.Log(context.Background(), LevelTrace, "unresolved bit",
				slog.Uint64("addr", uint64(addr)))
		}
		req.SetBit(i, v)
	}
}

// errLEDWithoutDuration drops an LED indication whose duration is not
// part of the same request.
var errLEDWithoutDuration = errors.New("LED indication written without duration")

// writer walks the payload of one write request. Write functions may
// consume registers past their own pair through takePair.
type writer struct {
	*scratch
	data []uint16
	next int
}

// takePair consumes the next two payload registers as one value.
func (w *writer) takePair() (uint32, bool) {
	if len(w.data)-w.next < 2 {
		return 0, false
	}
	v := FromWords(w.data[w.next], w.data[w.next+1]).Bits
	w.next += 2
	return v, true
}

// writePairs rebuilds 32 bit values from a register write. Pairs cut by
// the window keep their other word from the current value.
func (e *Engine) writePairs(ts *tableSet, s *scratch, start uint16, data []uint16) {
	w := &writer{scratch: s, data: data}

	for w.next < len(data) {
		i := w.next
		reg, h := walk(start, len(data), i)

		var v uint32
		switch h {
		case lowWord:
			old, _ := e.resolvePair(&ts.holding, s, reg)
			v = FromWords(old.High(), data[i]).Bits
		case highWord:
			old, _ := e.resolvePair(&ts.holding, s, reg)
			v = FromWords(data[i], old.Low()).Bits
		default:
			v = FromWords(data[i], data[i+1]).Bits
		}
		w.next = i + h.width()

		wr, ok := ts.pairWrites[reg]
		if !ok {
			e.logger.Log(context.Background(), LevelTrace, "write to unmapped register",
				slog.Uint64("addr", uint64(reg)))
			continue
		}
		runWrite(e, w, wr, reg, v)
	}
}

// writeWords dispatches every register of a write on its own.
func (e *Engine) writeWords(ts *tableSet, s *scratch, start uint16, data []uint16) {
	w := &writer{scratch: s, data: data}

	for i, v := range data {
		addr := start + uint16(i)
		e.logger.Debug("register write", slog.Uint64("addr", uint64(addr)), slog.Uint64("value", uint64(v)))

		wr, ok := ts.registerWrites[addr]
		if !ok {
			continue
		}
		runWrite(e, w, wr, addr, v)
	}
}

func (e *Engine) writeCoils(ts *tableSet, s *scratch, req *modbus.Request) {
	w := &writer{scratch: s}

	for i := 0; i < int(req.Quantity); i++ {
		addr := req.Address + uint16(i)
		wr, ok := ts.coilWrites[addr]
		if !ok {
			continue
		}
		runWrite(e, w, wr, addr, req.Bit(i))
	}
}

func runWrite[T any](e *Engine, w *writer, wr write[T], addr uint16, v T) {
	if !w.cache.HasAll(wr.Require) {
		return
	}

	err := wr.Write(w, v)
	switch {
	case err == nil:
	case errors.Is(err, errLEDWithoutDuration):
		e.stats.DroppedLEDWrites.Add(1)
		e.logger.Warn("received write to LED indication without duration, write all 4 registers in one request",
			slog.Uint64("addr", uint64(addr)))
	default:
		e.stats.FailedCommands.Add(1)
		e.logger.Warn("write failed",
			slog.String("register", wr.Name),
			slog.Uint64("addr", uint64(addr)),
			slog.String("error", err.Error()))
	}
}
