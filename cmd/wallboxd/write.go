package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	writeAddr   uint16
	writeValues []string
	writeFormat string
	writeSingle bool
)

var writeCmd = &cobra.Command{
	Use:     "write",
	Aliases: []string{"w"},
	Short:   "Write to a running wallbox Modbus server",
	Long: `Write coils or holding registers. Writes are only applied while the
Modbus TCP charging slot is active on the server.`,
}

var writeCoilsCmd = &cobra.Command{
	Use:     "coils",
	Aliases: []string{"c", "coil"},
	Short:   "Write coils (FC15, or FC05 with --single)",
	Example: `  wallboxd write coils -a 1000 -V 1
  wallboxd w c -a 1000 -V 1,0 --single`,
	RunE: runWriteCoils,
}

var writeRegistersCmd = &cobra.Command{
	Use:     "holding-registers",
	Aliases: []string{"hr", "holding"},
	Short:   "Write holding registers (FC16, or FC06 with --single)",
	Long: `Write holding registers. Values are encoded with
-f/--format:
  uint16  - one register per value
  uint32  - two registers per value, high word first (default)
  float32 - two registers per value, high word first`,
	Example: `  wallboxd write holding-registers -a 1000 -V 16000
  wallboxd w hr -a 1004 -V 1001,2000
  wallboxd w hr -a 5004 -V 16000 -f uint16`,
	RunE: runWriteRegisters,
}

func init() {
	for _, cmd := range []*cobra.Command{writeCoilsCmd, writeRegistersCmd} {
		cmd.Flags().Uint16VarP(&writeAddr, "address", "a", 0, "Starting address")
		cmd.Flags().StringSliceVarP(&writeValues, "values", "V", nil, "Values to write")
		cmd.Flags().BoolVar(&writeSingle, "single", false, "Send one single-write request per coil or register")
		cmd.MarkFlagRequired("values")
		writeCmd.AddCommand(cmd)
	}
	writeRegistersCmd.Flags().StringVarP(&writeFormat, "format", "f", "uint32", "Value format: uint16, uint32, float32")
}

func parseBools(values []string) ([]bool, error) {
	var out []bool
	for _, f := range values {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "1", "true", "on":
			out = append(out, true)
		case "0", "false", "off":
			out = append(out, false)
		default:
			return nil, fmt.Errorf("invalid coil value %q", f)
		}
	}
	return out, nil
}

// encodeRegisters turns values into registers, high word first for
// 32-bit formats.
func encodeRegisters(values []string, format string) ([]uint16, error) {
	var out []uint16
	for _, f := range values {
		f = strings.TrimSpace(f)
		switch format {
		case "uint16":
			n, err := strconv.ParseUint(f, 0, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid uint16 %q: %w", f, err)
			}
			out = append(out, uint16(n))
		case "uint32":
			n, err := strconv.ParseUint(f, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid uint32 %q: %w", f, err)
			}
			out = append(out, uint16(n>>16), uint16(n))
		case "float32":
			x, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid float32 %q: %w", f, err)
			}
			bits := math.Float32bits(float32(x))
			out = append(out, uint16(bits>>16), uint16(bits))
		default:
			return nil, fmt.Errorf("unknown format %q", format)
		}
	}
	return out, nil
}

func runWriteCoils(cmd *cobra.Command, args []string) error {
	values, err := parseBools(writeValues)
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if writeSingle {
		for i, v := range values {
			if err := client.WriteCoil(writeAddr+uint16(i), v); err != nil {
				return fmt.Errorf("write failed at %d: %w", writeAddr+uint16(i), err)
			}
		}
	} else if err := client.WriteCoils(writeAddr, values); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	outputSuccess("wrote %d coil(s) at %d", len(values), writeAddr)
	return nil
}

func runWriteRegisters(cmd *cobra.Command, args []string) error {
	regs, err := encodeRegisters(writeValues, writeFormat)
	if err != nil {
		return err
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if writeSingle {
		for i, r := range regs {
			if err := client.WriteRegister(writeAddr+uint16(i), r); err != nil {
				return fmt.Errorf("write failed at %d: %w", writeAddr+uint16(i), err)
			}
		}
	} else if err := client.WriteRegisters(writeAddr, regs); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	outputSuccess("wrote %d register(s) at %d", len(regs), writeAddr)
	return nil
}
