package main

import (
	"fmt"
	"log/slog"

	mbclient "github.com/simonvetter/modbus"
	"github.com/spf13/cobra"
)

var (
	readAddr   uint16
	readCount  uint16
	readFormat string
)

var readCmd = &cobra.Command{
	Use:     "read",
	Aliases: []string{"r"},
	Short:   "Read from a running wallbox Modbus server",
	Long:    `Read coils, discrete inputs, holding registers or input registers.`,
}

var readCoilsCmd = &cobra.Command{
	Use:     "coils",
	Aliases: []string{"c", "coil"},
	Short:   "Read coils (FC01)",
	Example: `  wallboxd read coils -a 1000 -c 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadBits(cmd, "Coils", (*mbclient.ModbusClient).ReadCoils)
	},
}

var readDiscreteInputsCmd = &cobra.Command{
	Use:     "discrete-inputs",
	Aliases: []string{"di", "discrete"},
	Short:   "Read discrete inputs (FC02)",
	Example: `  wallboxd read discrete-inputs -a 0 -c 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadBits(cmd, "Discrete Inputs", (*mbclient.ModbusClient).ReadDiscreteInputs)
	},
}

var readHoldingRegistersCmd = &cobra.Command{
	Use:     "holding-registers",
	Aliases: []string{"hr", "holding"},
	Short:   "Read holding registers (FC03)",
	Long: `Read holding registers using function code 03.

Supported formats for -f/--format:
  uint16  - one value per register
  uint32  - one value per register pair, high word first (default)
  float32 - one value per register pair, high word first`,
	Example: `  wallboxd read holding-registers -a 1000 -c 6
  wallboxd r hr -a 1000 -c 1 -f uint16`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadRegisters(cmd, "Holding Registers", mbclient.HOLDING_REGISTER)
	},
}

var readInputRegistersCmd = &cobra.Command{
	Use:     "input-registers",
	Aliases: []string{"ir", "input"},
	Short:   "Read input registers (FC04)",
	Long: `Read input registers using function code 04.

Supported formats for -f/--format:
  uint16  - one value per register
  uint32  - one value per register pair, high word first (default)
  float32 - one value per register pair, high word first`,
	Example: `  wallboxd read input-registers -a 1000 -c 4
  wallboxd r ir -a 2000 -c 2 -f float32`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReadRegisters(cmd, "Input Registers", mbclient.INPUT_REGISTER)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{readCoilsCmd, readDiscreteInputsCmd, readHoldingRegistersCmd, readInputRegistersCmd} {
		cmd.Flags().Uint16VarP(&readAddr, "address", "a", 0, "Starting address")
		cmd.Flags().Uint16VarP(&readCount, "count", "c", 2, "Number of coils or registers")
		readCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{readHoldingRegistersCmd, readInputRegistersCmd} {
		cmd.Flags().StringVarP(&readFormat, "format", "f", "uint32", "Value format: uint16, uint32, float32")
	}
}

// newClient opens a client to the configured server.
func newClient(cmd *cobra.Command) (*mbclient.ModbusClient, error) {
	url := clientAddress(cmd)
	client, err := mbclient.NewClient(&mbclient.ClientConfiguration{
		URL:     url,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if err := client.SetUnitId(clientUnitID(cmd)); err != nil {
		return nil, fmt.Errorf("failed to set unit id: %w", err)
	}
	if err := client.SetEncoding(mbclient.BIG_ENDIAN, mbclient.HIGH_WORD_FIRST); err != nil {
		return nil, fmt.Errorf("failed to set encoding: %w", err)
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	logger.Debug("connected", slog.String("url", url))
	return client, nil
}

type bitReader func(c *mbclient.ModbusClient, addr, quantity uint16) ([]bool, error)

func runReadBits(cmd *cobra.Command, title string, read bitReader) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	values, err := read(client, readAddr, readCount)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return outputBoolValues(title, readAddr, values)
}

func runReadRegisters(cmd *cobra.Command, title string, regType mbclient.RegType) error {
	switch readFormat {
	case "uint16", "uint32", "float32":
	default:
		return fmt.Errorf("unknown format %q", readFormat)
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	values, err := client.ReadRegisters(readAddr, readCount, regType)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return outputRegisterValues(title, readAddr, values, readFormat)
}
