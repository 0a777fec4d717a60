package main

import (
	"github.com/spf13/cobra"

	"github.com/edgeo-scada/wallbox-modbus/internal/registers"
)

var tableCmd = &cobra.Command{
	Use:       "table [warp|keba]",
	Short:     "Print the register layout of a table",
	Example:   "  wallboxd table keba -o csv",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"warp", "keba"},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := v.GetString("modbus_tcp.table")
		if len(args) == 1 {
			name = args[0]
		}
		t, err := registers.ParseTable(name)
		if err != nil {
			return err
		}
		return outputLayout(t, registers.Layout(t))
	},
}
