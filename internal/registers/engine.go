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
	"log/slog"
	"sync"
	"time"

	modbus "github.com/edgeo-scada/wallbox-modbus"
	"github.com/edgeo-scada/wallbox-modbus/internal/evse"
)

// LevelTrace is below debug and reports every unresolved address.
const LevelTrace = slog.LevelDebug - 4

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger *slog.Logger
	table  Table
	device DeviceInfo
	now    func() time.Time
}

func defaultEngineOptions() *engineOptions {
	return &engineOptions{
		logger: slog.Default(),
		table:  TableWARP,
		now:    time.Now,
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithTable selects the initial register table.
func WithTable(t Table) Option {
	return func(o *engineOptions) {
		o.table = t
	}
}

// WithDeviceInfo sets the identity values reported by the tables.
func WithDeviceInfo(d DeviceInfo) Option {
	return func(o *engineOptions) {
		o.device = d
	}
}

// WithClock replaces the clock used for the unix time register.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		o.now = now
	}
}

// Stats counts engine events.
type Stats struct {
	Reads            modbus.Counter
	Writes           modbus.Counter
	RejectedWrites   modbus.Counter
	UnresolvedReads  modbus.Counter
	DroppedLEDWrites modbus.Counter
	FailedCommands   modbus.Counter
}

// Engine serves a register table over the state store. Requests are
// served one at a time.
type Engine struct {
	mu     sync.Mutex
	src    Source
	cmd    Commands
	opts   *engineOptions
	logger *slog.Logger

	table *tableSet
	cache *FeatureCache
	warn  warnings
	stats Stats
}

// NewEngine creates an engine. The feature cache is built right away,
// so src should be populated first.
func NewEngine(src Source, cmd Commands, opts ...Option) *Engine {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Engine{
		src:    src,
		cmd:    cmd,
		opts:   o,
		logger: o.logger,
		table:  tablesFor(o.table),
		cache:  NewFeatureCache(src),
	}
}

// Table returns the active table.
func (e *Engine) Table() Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.id
}

// SetTable switches the active table and rebuilds the feature cache,
// forgetting features that are gone.
func (e *Engine) SetTable(t Table) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table.id == t {
		return
	}
	e.table = tablesFor(t)
	e.cache = NewFeatureCache(e.src)
	e.logger.Info("register table switched", slog.String("table", t.String()))
}

// Features returns the feature flags as the engine sees them.
func (e *Engine) Features() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Refresh()
	return e.cache.Snapshot()
}

// Stats returns the engine counters.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// ServeModbus implements modbus.Handler.
//
// Single writes must have been rewritten into multiple writes by the
// transport; receiving one panics with a modbus.ContractViolation.
func (e *Engine) ServeModbus(req *modbus.Request) error {
	switch req.Function {
	case modbus.FuncWriteSingleCoil, modbus.FuncWriteSingleRegister:
		panic(modbus.ContractViolation{
			Function: req.Function,
			Reason:   "single writes must arrive as multiple writes of quantity 1",
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Refresh()
	s := e.newScratch()
	ts := e.table

	e.logger.Log(context.Background(), LevelTrace, "request",
		slog.String("table", ts.id.String()),
		slog.String("func", req.Function.String()),
		slog.Uint64("addr", uint64(req.Address)),
		slog.Uint64("qty", uint64(req.Quantity)))

	switch req.Function {
	case modbus.FuncReadCoils:
		e.stats.Reads.Add(1)
		e.readBits(&ts.coils, s, req)
	case modbus.FuncReadDiscreteInputs:
		e.stats.Reads.Add(1)
		e.readBits(&ts.discrete, s, req)
	case modbus.FuncReadHoldingRegisters:
		e.stats.Reads.Add(1)
		e.readRegisters(&ts.holding, s, req.Address, req.Registers)
	case modbus.FuncReadInputRegisters:
		e.stats.Reads.Add(1)
		e.readRegisters(&ts.input, s, req.Address, req.Registers)
	case modbus.FuncWriteMultipleCoils:
		e.stats.Writes.Add(1)
		if e.writeAllowed(req) {
			e.writeCoils(ts, s, req)
		}
	case modbus.FuncWriteMultipleRegisters:
		e.stats.Writes.Add(1)
		if !e.writeAllowed(req) {
			break
		}
		if ts.pairWrites != nil {
			e.writePairs(ts, s, req.Address, req.Registers)
		} else {
			e.writeWords(ts, s, req.Address, req.Registers)
		}
	default:
		return modbus.NewModbusError(req.Function, modbus.ExceptionIllegalFunction)
	}
	return nil
}

func (e *Engine) newScratch() *scratch {
	return &scratch{
		cache:  e.cache,
		dev:    e.opts.device,
		cmd:    e.cmd,
		logger: e.logger,
		warn:   &e.warn,
		now:    e.opts.now(),
	}
}

// writeAllowed gates every write on the Modbus TCP charging slot being
// active.
func (e *Engine) writeAllowed(req *modbus.Request) bool {
	if e.cache.Has(FeatureEVSE) {
		if slot, ok := evse.SlotAt(e.cache.evseSlots.Get(), evse.SlotModbusTCP); ok && slot.Active {
			return true
		}
	}

	e.stats.RejectedWrites.Add(1)
	e.logger.Debug("write ignored, Modbus TCP charging slot not active",
		slog.String("func", req.Function.String()),
		slog.Uint64("addr", uint64(req.Address)),
		slog.Uint64("qty", uint64(req.Quantity)))
	return false
}
