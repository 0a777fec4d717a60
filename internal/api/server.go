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

// Package api serves a read-only HTTP view of the device state, the
// register tables and the Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgeo-scada/wallbox-modbus/internal/config"
	"github.com/edgeo-scada/wallbox-modbus/internal/registers"
	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithModbusConfig supplies the current Modbus TCP settings.
func WithModbusConfig(fn func() config.ModbusTCPConfig) Option {
	return func(s *Server) {
		s.modbusConfig = fn
	}
}

type Server struct {
	router       *gin.Engine
	store        *state.Store
	engine       *registers.Engine
	logger       *slog.Logger
	gatherer     prometheus.Gatherer
	modbusConfig func() config.ModbusTCPConfig
	server       *http.Server
}

// NewServer builds the router. engine may be nil when the Modbus server
// is disabled.
func NewServer(addr string, store *state.Store, engine *registers.Engine, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:   gin.New(),
		store:    store,
		engine:   engine,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done and then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP API", slog.String("addr", s.server.Addr))
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down HTTP API")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(loggerMiddleware(s.logger))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	{
		api.GET("/features", s.getFeatures)
		// "/api/state" redirects here; an empty path lists every record
		api.GET("/state/*path", s.getState)

		mb := api.Group("/modbus_tcp")
		{
			mb.GET("/config", s.getModbusConfig)
			mb.GET("/table/:name", s.getTable)
		}
	}
}

func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

// GET /health
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GET /api/features
func (s *Server) getFeatures(c *gin.Context) {
	present := s.store.Features()
	resp := gin.H{"present": present}
	if s.engine != nil {
		resp["registers"] = s.engine.Features()
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/state/*path
func (s *Server) getState(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	if path == "" {
		records := make(map[string]state.Value)
		for _, p := range s.store.Paths() {
			records[p] = s.store.Record(p).Get()
		}
		c.JSON(http.StatusOK, records)
		return
	}

	v, err := s.store.Get(path)
	if errors.Is(err, state.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

// GET /api/modbus_tcp/config
func (s *Server) getModbusConfig(c *gin.Context) {
	if s.modbusConfig == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "modbus tcp not configured"})
		return
	}
	cfg := s.modbusConfig()
	resp := gin.H{"config": cfg}
	if s.engine != nil {
		resp["active_table"] = s.engine.Table().String()
		st := s.engine.Stats()
		resp["stats"] = gin.H{
			"reads":              st.Reads.Value(),
			"writes":             st.Writes.Value(),
			"rejected_writes":    st.RejectedWrites.Value(),
			"unresolved_reads":   st.UnresolvedReads.Value(),
			"dropped_led_writes": st.DroppedLEDWrites.Value(),
			"failed_commands":    st.FailedCommands.Value(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/modbus_tcp/table/:name
func (s *Server) getTable(c *gin.Context) {
	t, err := registers.ParseTable(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table":   t.String(),
		"entries": registers.Layout(t),
	})
}
