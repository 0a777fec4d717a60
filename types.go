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

// Package modbus provides the Modbus TCP server that exposes a wallbox
// register table to network clients.
package modbus

// UnitID represents the Modbus unit identifier (slave address).
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

// Standard Modbus function codes.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadDiscreteInputs     FunctionCode = 0x02
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
)

// Protocol constants.
const (
	// MaxQuantityCoils is the maximum number of coils that can be read/written.
	MaxQuantityCoils = 2000

	// MaxQuantityDiscreteInputs is the maximum number of discrete inputs that can be read.
	MaxQuantityDiscreteInputs = 2000

	// MaxQuantityRegisters is the maximum number of registers that can be read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers that can be written.
	MaxQuantityWriteRegisters = 123

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus TCP).
	ProtocolID = 0

	// MaxPDUSize is the largest PDU a Modbus TCP frame may carry.
	MaxPDUSize = 253

	// DefaultPort is the default Modbus TCP port.
	DefaultPort = 502
)

// Coil values for write operations.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// Request is a decoded Modbus request handed to a Handler.
//
// Single writes (FC05/FC06) never reach a Handler as such: the server
// rewrites them into FC15/FC16 requests of quantity 1.
type Request struct {
	UnitID   UnitID
	Function FunctionCode
	Address  uint16
	Quantity uint16

	// Registers holds host-order register values. For reads the server
	// allocates Quantity entries and the handler fills them; for writes it
	// carries the payload.
	Registers []uint16

	// Bits holds bit-packed coil or input values, bit i at
	// Bits[i/8] & (1 << (i%8)). Reads are allocated zeroed by the server.
	Bits []byte
}

// Bit reports the value of bit i of the request's bit buffer.
func (r *Request) Bit(i int) bool {
	return r.Bits[i/8]&(1<<(i%8)) != 0
}

// SetBit sets or clears bit i of the request's bit buffer, leaving the
// other bits of the same byte untouched.
func (r *Request) SetBit(i int, v bool) {
	if v {
		r.Bits[i/8] |= 1 << (i % 8)
	} else {
		r.Bits[i/8] &^= 1 << (i % 8)
	}
}

// Handler serves decoded Modbus requests. It is called synchronously from
// the connection goroutine; returning a *ModbusError produces the matching
// exception response.
type Handler interface {
	ServeModbus(req *Request) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(req *Request) error

// ServeModbus calls f(req).
func (f HandlerFunc) ServeModbus(req *Request) error {
	return f(req)
}
