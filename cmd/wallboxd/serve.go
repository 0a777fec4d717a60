package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	modbus "github.com/edgeo-scada/wallbox-modbus"
	"github.com/edgeo-scada/wallbox-modbus/internal/api"
	"github.com/edgeo-scada/wallbox-modbus/internal/config"
	"github.com/edgeo-scada/wallbox-modbus/internal/evse"
	"github.com/edgeo-scada/wallbox-modbus/internal/metrics"
	"github.com/edgeo-scada/wallbox-modbus/internal/registers"
	"github.com/edgeo-scada/wallbox-modbus/internal/seed"
	"github.com/edgeo-scada/wallbox-modbus/internal/state"
)

var (
	serveTable string
	serveSeed  string
	serveWatch bool
)

var errReboot = errors.New("reboot requested")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Modbus TCP server and the HTTP API",
	Long: `Load the configuration and the state snapshot, then serve the register
table over Modbus TCP and the state over HTTP until interrupted.

A reboot request written over Modbus stops the process; a supervisor is
expected to restart it.`,
	Example: `  wallboxd serve --config configs/wallbox.yaml
  wallboxd serve --table keba --seed configs/seed.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTable, "table", "", "Register table: WARP or KEBA (overrides config)")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "State snapshot (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload the register table when the config file changes")

	v.BindPFlag("modbus_tcp.table", serveCmd.Flags().Lookup("table"))
	v.BindPFlag("state.seed", serveCmd.Flags().Lookup("seed"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	store := state.NewStore()
	snap := seed.Default()
	if cfg.State.Seed != "" {
		if snap, err = seed.Load(cfg.State.Seed); err != nil {
			return err
		}
	}
	snap.Apply(store)
	logger.Info("state loaded",
		slog.Int("records", len(snap.Records)),
		slog.Any("features", store.Features()))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	ctrl := evse.NewController(store,
		evse.WithLogger(logger.With(slog.String("component", "evse"))),
		evse.WithRebootHook(func(string) { cancel(errReboot) }))

	engine := registers.NewEngine(store, ctrl,
		registers.WithLogger(logger.With(slog.String("component", "registers"))),
		registers.WithTable(cfg.ModbusTCP.RegisterTable()),
		registers.WithDeviceInfo(cfg.Device.Info()))

	var mbConfig atomic.Pointer[config.ModbusTCPConfig]
	mbConfig.Store(&cfg.ModbusTCP)

	if cfgFile != "" && serveWatch {
		config.Watch(v, logger, func(c *config.Config) {
			mbConfig.Store(&c.ModbusTCP)
			engine.SetTable(c.ModbusTCP.RegisterTable())
		})
	}

	var (
		server        *modbus.Server
		serverMetrics *modbus.ServerMetrics
	)
	if cfg.ModbusTCP.Enable {
		server = modbus.NewServer(engine,
			modbus.WithServerLogger(logger.With(slog.String("component", "modbus"))),
			modbus.WithMaxConnections(cfg.ModbusTCP.MaxConnections),
			modbus.WithReadTimeout(cfg.ModbusTCP.ReadTimeout),
			modbus.WithKeepAlive(cfg.ModbusTCP.KeepAlive))
		serverMetrics = server.Metrics()
	} else {
		logger.Info("Modbus TCP server disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(serverMetrics, engine),
	)

	g, gctx := errgroup.WithContext(ctx)

	if server != nil {
		addr := cfg.ModbusTCP.Addr()
		g.Go(func() error {
			return server.ListenAndServeContext(gctx, addr)
		})
	}

	if cfg.HTTP.Enable {
		httpServer := api.NewServer(cfg.HTTP.Addr, store, engine,
			api.WithLogger(logger.With(slog.String("component", "http"))),
			api.WithGatherer(reg),
			api.WithModbusConfig(func() config.ModbusTCPConfig { return *mbConfig.Load() }))
		g.Go(func() error {
			return httpServer.ListenAndServe(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(context.Cause(ctx), errReboot) {
		logger.Info("stopping for reboot")
		return nil
	}
	return err
}
