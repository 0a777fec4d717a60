package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/wallbox-modbus/internal/config"
)

var (
	cfgFile string

	// Global flags
	verbose   bool
	noColor   bool
	outputFmt string

	// Client flags
	host    string
	port    int
	unitID  uint8
	timeout time.Duration

	v      = config.New()
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wallboxd",
	Short: "Modbus TCP register table server for WARP and KEBA wallboxes",
	Long: `wallboxd serves the live state of a wallbox as a Modbus TCP register table
in either the WARP or the KEBA layout, and probes running servers.

Examples:
  # Serve with a config file
  wallboxd serve --config configs/wallbox.yaml

  # Read the charger state from a running server
  wallboxd read input-registers -a 1004 -c 2 -f uint32

  # Start charging
  wallboxd write coils -a 1000 -V 1

  # Show the KEBA register layout
  wallboxd table keba`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := config.ParseLevel(v.GetString("log.level"))
		if err != nil {
			return err
		}
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, csv, raw")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")

	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "localhost", "Modbus server host")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 502, "Modbus server port")
	rootCmd.PersistentFlags().Uint8VarP(&unitID, "unit", "u", 1, "Modbus unit ID")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Operation timeout")

	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(tableCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
}

// clientAddress returns the URL of the server the client commands talk
// to. Without explicit flags the config file's Modbus settings apply.
func clientAddress(cmd *cobra.Command) string {
	p := port
	if !cmd.Flags().Changed("port") {
		p = v.GetInt("modbus_tcp.port")
	}
	return fmt.Sprintf("tcp://%s:%d", host, p)
}

func clientUnitID(cmd *cobra.Command) uint8 {
	if !cmd.Flags().Changed("unit") {
		return uint8(v.GetUint("modbus_tcp.unit_id"))
	}
	return unitID
}
