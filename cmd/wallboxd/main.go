// Command wallboxd serves the WARP or KEBA Modbus TCP register table of a
// wallbox and probes running servers.
package main

import (
	"fmt"
	"os"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
