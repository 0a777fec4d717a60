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

package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Server is a Modbus TCP server.
type Server struct {
	handler Handler
	opts    *serverOptions

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   int32
	wg       sync.WaitGroup
	metrics  *ServerMetrics
}

// NewServer creates a new Modbus TCP server.
func NewServer(handler Handler, opts ...ServerOption) *Server {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Server{
		handler: handler,
		opts:    options,
		conns:   make(map[net.Conn]struct{}),
		metrics: &ServerMetrics{},
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *ServerMetrics {
	return s.metrics
}

// ListenAndServeContext starts the server and closes it when ctx is done.
func (s *Server) ListenAndServeContext(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s.Serve(listener)
}

// Serve starts serving connections on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.opts.logger.Info("server started", slog.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			s.opts.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.opts.maxConns {
			s.mu.Unlock()
			s.metrics.RejectedConns.Add(1)
			s.opts.logger.Warn("max connections reached, rejecting",
				slog.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.metrics.ActiveConns.Add(1)
		s.metrics.TotalConns.Add(1)
		s.mu.Unlock()

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(s.opts.keepAlive)
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go s.handleConn(conn, uuid.NewString())
	}
}

// Close shuts down the server gracefully.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.opts.logger.Info("server stopped")
	return err
}

// Addr returns the server's address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ActiveConnections returns the number of active connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleConn(conn net.Conn, connID string) {
	logger := s.opts.logger.With(
		slog.String("conn", connID),
		slog.String("remote", conn.RemoteAddr().String()))

	defer func() {
		if r := recover(); r != nil {
			var cv ContractViolation
			if err, ok := r.(error); ok && errors.As(err, &cv) {
				logger.Error("handler contract violated, aborting",
					slog.String("func", cv.Function.String()),
					slog.String("reason", cv.Reason))
				panic(r)
			}
			logger.Error("panic in connection handler",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}

		s.wg.Done()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.metrics.ActiveConns.Add(-1)
		s.mu.Unlock()
		logger.Info("client disconnected")
	}()

	logger.Info("client connected")

	for {
		if atomic.LoadInt32(&s.closed) == 1 {
			return
		}

		if s.opts.readTimeout > 0 {
			conn.SetReadDeadline(timeNow().Add(s.opts.readTimeout))
		}

		frame, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF && atomic.LoadInt32(&s.closed) == 0 {
				// Idle timeouts are expected.
				if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
					logger.Debug("read error", slog.String("error", err.Error()))
				}
			}
			return
		}

		s.metrics.RequestsTotal.Add(1)
		response := s.processRequest(logger, frame)

		if s.opts.readTimeout > 0 {
			conn.SetWriteDeadline(timeNow().Add(s.opts.readTimeout))
		}

		if _, err := conn.Write(response.Encode()); err != nil {
			s.metrics.RequestsErrors.Add(1)
			logger.Debug("write error", slog.String("error", err.Error()))
			return
		}

		s.metrics.RequestsSuccess.Add(1)
	}
}

func (s *Server) processRequest(logger *slog.Logger, req *Frame) *Frame {
	resp := &Frame{
		Header: MBAPHeader{
			TransactionID: req.Header.TransactionID,
			ProtocolID:    ProtocolID,
			UnitID:        req.Header.UnitID,
		},
	}

	if len(req.PDU) < 1 {
		resp.PDU = s.buildException(0, ExceptionIllegalFunction)
		s.metrics.Exceptions.Add(1)
		return resp
	}

	fc := FunctionCode(req.PDU[0])
	unitID := req.Header.UnitID
	start := timeNow()

	logger.Debug("processing request",
		slog.Uint64("tx_id", uint64(req.Header.TransactionID)),
		slog.Uint64("unit_id", uint64(unitID)),
		slog.String("func", fc.String()))

	var pdu []byte
	var err error

	switch fc {
	case FuncReadCoils:
		pdu, err = s.handleReadBits(unitID, fc, req.PDU, MaxQuantityCoils)
	case FuncReadDiscreteInputs:
		pdu, err = s.handleReadBits(unitID, fc, req.PDU, MaxQuantityDiscreteInputs)
	case FuncReadHoldingRegisters, FuncReadInputRegisters:
		pdu, err = s.handleReadRegisters(unitID, fc, req.PDU)
	case FuncWriteSingleCoil:
		pdu, err = s.handleWriteSingleCoil(unitID, req.PDU)
	case FuncWriteSingleRegister:
		pdu, err = s.handleWriteSingleRegister(unitID, req.PDU)
	case FuncWriteMultipleCoils:
		pdu, err = s.handleWriteMultipleCoils(unitID, req.PDU)
	case FuncWriteMultipleRegisters:
		pdu, err = s.handleWriteMultipleRegisters(unitID, req.PDU)
	default:
		pdu = s.buildException(fc, ExceptionIllegalFunction)
	}

	if err != nil {
		pdu = s.handleError(logger, fc, err)
	}

	fm := s.metrics.ForFunction(fc)
	fm.Requests.Add(1)
	fm.Latency.Observe(timeNow().Sub(start))
	if IsExceptionResponse(pdu) {
		fm.Exceptions.Add(1)
		s.metrics.Exceptions.Add(1)
	}

	resp.PDU = pdu
	return resp
}

func (s *Server) buildException(fc FunctionCode, ec ExceptionCode) []byte {
	return []byte{byte(fc) | 0x80, byte(ec)}
}

func (s *Server) handleError(logger *slog.Logger, fc FunctionCode, err error) []byte {
	var modbusErr *ModbusError
	if errors.As(err, &modbusErr) {
		return s.buildException(fc, modbusErr.ExceptionCode)
	}
	logger.Error("handler error",
		slog.String("func", fc.String()),
		slog.String("error", err.Error()))
	return s.buildException(fc, ExceptionServerDeviceFailure)
}

// decodeWindow validates the address/quantity pair shared by all multi-item requests.
func decodeWindow(pdu []byte, max uint16) (addr, qty uint16, ec ExceptionCode) {
	if len(pdu) < 5 {
		return 0, 0, ExceptionIllegalDataValue
	}
	addr = binary.BigEndian.Uint16(pdu[1:3])
	qty = binary.BigEndian.Uint16(pdu[3:5])

	if qty < 1 || qty > max {
		return 0, 0, ExceptionIllegalDataValue
	}
	if uint32(addr)+uint32(qty) > 65536 {
		return 0, 0, ExceptionIllegalDataAddress
	}
	return addr, qty, 0
}

func (s *Server) handleReadBits(unitID UnitID, fc FunctionCode, pdu []byte, max uint16) ([]byte, error) {
	addr, qty, ec := decodeWindow(pdu, max)
	if ec != 0 {
		return s.buildException(fc, ec), nil
	}

	byteCount := int(qty+7) / 8
	req := &Request{
		UnitID:   unitID,
		Function: fc,
		Address:  addr,
		Quantity: qty,
		Bits:     make([]byte, byteCount),
	}
	if err := s.handler.ServeModbus(req); err != nil {
		return nil, err
	}

	if len(req.Bits) != byteCount {
		return s.buildException(fc, ExceptionServerDeviceFailure), nil
	}

	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	copy(resp[2:], req.Bits)
	// Padding bits of the last byte go out as zero.
	if rem := qty % 8; rem != 0 {
		resp[len(resp)-1] &= byte(1<<rem) - 1
	}
	return resp, nil
}

func (s *Server) handleReadRegisters(unitID UnitID, fc FunctionCode, pdu []byte) ([]byte, error) {
	addr, qty, ec := decodeWindow(pdu, MaxQuantityRegisters)
	if ec != 0 {
		return s.buildException(fc, ec), nil
	}

	req := &Request{
		UnitID:    unitID,
		Function:  fc,
		Address:   addr,
		Quantity:  qty,
		Registers: make([]uint16, qty),
	}
	if err := s.handler.ServeModbus(req); err != nil {
		return nil, err
	}

	if len(req.Registers) != int(qty) {
		return s.buildException(fc, ExceptionServerDeviceFailure), nil
	}

	byteCount := int(qty) * 2
	resp := make([]byte, 2+byteCount)
	resp[0] = byte(fc)
	resp[1] = byte(byteCount)
	for i, v := range req.Registers {
		binary.BigEndian.PutUint16(resp[2+i*2:], v)
	}
	return resp, nil
}

// handleWriteSingleCoil forwards FC05 as a one-coil FC15 request.
func (s *Server) handleWriteSingleCoil(unitID UnitID, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return s.buildException(FuncWriteSingleCoil, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])

	var bit byte
	if value == CoilOn {
		bit = 1
	} else if value != CoilOff {
		return s.buildException(FuncWriteSingleCoil, ExceptionIllegalDataValue), nil
	}

	req := &Request{
		UnitID:   unitID,
		Function: FuncWriteMultipleCoils,
		Address:  addr,
		Quantity: 1,
		Bits:     []byte{bit},
	}
	if err := s.handler.ServeModbus(req); err != nil {
		return nil, err
	}

	// Echo request as response (copy to avoid sharing slice)
	resp := make([]byte, 5)
	copy(resp, pdu[:5])
	return resp, nil
}

// handleWriteSingleRegister forwards FC06 as a one-register FC16 request.
func (s *Server) handleWriteSingleRegister(unitID UnitID, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return s.buildException(FuncWriteSingleRegister, ExceptionIllegalDataValue), nil
	}
	addr := binary.BigEndian.Uint16(pdu[1:3])
	value := binary.BigEndian.Uint16(pdu[3:5])

	req := &Request{
		UnitID:    unitID,
		Function:  FuncWriteMultipleRegisters,
		Address:   addr,
		Quantity:  1,
		Registers: []uint16{value},
	}
	if err := s.handler.ServeModbus(req); err != nil {
		return nil, err
	}

	resp := make([]byte, 5)
	copy(resp, pdu[:5])
	return resp, nil
}

func (s *Server) handleWriteMultipleCoils(unitID UnitID, pdu []byte) ([]byte, error) {
	if len(pdu) < 6 {
		return s.buildException(FuncWriteMultipleCoils, ExceptionIllegalDataValue), nil
	}
	addr, qty, ec := decodeWindow(pdu, MaxQuantityCoils)
	if ec != 0 {
		return s.buildException(FuncWriteMultipleCoils, ec), nil
	}

	byteCount := int(pdu[5])
	expectedBytes := int(qty+7) / 8
	if byteCount != expectedBytes || len(pdu) < 6+byteCount {
		return s.buildException(FuncWriteMultipleCoils, ExceptionIllegalDataValue), nil
	}

	bits := make([]byte, byteCount)
	copy(bits, pdu[6:6+byteCount])

	req := &Request{
		UnitID:   unitID,
		Function: FuncWriteMultipleCoils,
		Address:  addr,
		Quantity: qty,
		Bits:     bits,
	}
	if err := s.handler.ServeModbus(req); err != nil {
		return nil, err
	}

	resp := make([]byte, 5)
	resp[0] = byte(FuncWriteMultipleCoils)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp, nil
}

func (s *Server) handleWriteMultipleRegisters(unitID UnitID, pdu []byte) ([]byte, error) {
	if len(pdu) < 6 {
		return s.buildException(FuncWriteMultipleRegisters, ExceptionIllegalDataValue), nil
	}
	addr, qty, ec := decodeWindow(pdu, MaxQuantityWriteRegisters)
	if ec != 0 {
		return s.buildException(FuncWriteMultipleRegisters, ec), nil
	}

	byteCount := int(pdu[5])
	expectedBytes := int(qty) * 2
	if byteCount != expectedBytes || len(pdu) < 6+byteCount {
		return s.buildException(FuncWriteMultipleRegisters, ExceptionIllegalDataValue), nil
	}

	values := make([]uint16, qty)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(pdu[6+i*2:])
	}

	req := &Request{
		UnitID:    unitID,
		Function:  FuncWriteMultipleRegisters,
		Address:   addr,
		Quantity:  qty,
		Registers: values,
	}
	if err := s.handler.ServeModbus(req); err != nil {
		return nil, err
	}

	resp := make([]byte, 5)
	resp[0] = byte(FuncWriteMultipleRegisters)
	binary.BigEndian.PutUint16(resp[1:3], addr)
	binary.BigEndian.PutUint16(resp[3:5], qty)
	return resp, nil
}

// timeNow is a variable for testing
var timeNow = time.Now
