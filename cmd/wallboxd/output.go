package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/edgeo-scada/wallbox-modbus/internal/registers"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var stdout io.Writer = os.Stdout

func color(c, s string) string {
	if noColor {
		return s
	}
	return c + s + colorReset
}

func outputSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stdout, color(colorGreen, "OK")+" "+msg)
}

type BoolResult struct {
	Address uint16 `json:"address"`
	Value   bool   `json:"value"`
}

type RegisterResult struct {
	Address uint16      `json:"address"`
	Raw     []uint16    `json:"raw"`
	Hex     string      `json:"hex"`
	Value   interface{} `json:"value"`
	Format  string      `json:"format"`
}

func outputBoolValues(title string, startAddr uint16, values []bool) error {
	switch outputFmt {
	case "json":
		results := make([]BoolResult, len(values))
		for i, v := range values {
			results[i] = BoolResult{Address: startAddr + uint16(i), Value: v}
		}
		return outputJSON(results)
	case "csv":
		w := csv.NewWriter(stdout)
		w.Write([]string{"address", "value"})
		for i, v := range values {
			w.Write([]string{strconv.Itoa(int(startAddr) + i), boolDigit(v)})
		}
		w.Flush()
		return w.Error()
	case "raw":
		var sb strings.Builder
		for _, v := range values {
			sb.WriteString(boolDigit(v))
		}
		fmt.Fprintln(stdout, sb.String())
		return nil
	}

	fmt.Fprintf(stdout, "\n%s (Address %d-%d, Count: %d)\n",
		color(colorBold, title), startAddr, startAddr+uint16(len(values))-1, len(values))
	fmt.Fprintln(stdout, strings.Repeat("-", 40))

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tVALUE\tSTATUS")
	fmt.Fprintln(w, "-------\t-----\t------")
	for i, v := range values {
		status := color(colorRed, "OFF")
		if v {
			status = color(colorGreen, "ON")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", startAddr+uint16(i), boolDigit(v), status)
	}
	w.Flush()
	fmt.Fprintln(stdout)
	return nil
}

// registerResults groups raw registers by format. 32-bit formats take
// the high word from the lower address.
func registerResults(startAddr uint16, values []uint16, format string) []RegisterResult {
	var results []RegisterResult
	switch format {
	case "uint32", "float32":
		for i := 0; i+1 < len(values); i += 2 {
			t := registers.FromWords(values[i], values[i+1])
			r := RegisterResult{
				Address: startAddr + uint16(i),
				Raw:     values[i : i+2],
				Hex:     fmt.Sprintf("0x%08X", t.Uint32()),
				Value:   t.Uint32(),
				Format:  format,
			}
			if format == "float32" {
				r.Value = jsonFloat(t.Float32())
			}
			results = append(results, r)
		}
	default:
		for i, v := range values {
			results = append(results, RegisterResult{
				Address: startAddr + uint16(i),
				Raw:     values[i : i+1],
				Hex:     fmt.Sprintf("0x%04X", v),
				Value:   v,
				Format:  "uint16",
			})
		}
	}
	return results
}

// jsonFloat keeps non-finite values out of JSON.
func jsonFloat(f float32) interface{} {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return f
}

func outputRegisterValues(title string, startAddr uint16, values []uint16, format string) error {
	results := registerResults(startAddr, values, format)

	switch outputFmt {
	case "json":
		return outputJSON(results)
	case "csv":
		w := csv.NewWriter(stdout)
		w.Write([]string{"address", "hex", "value"})
		for _, r := range results {
			w.Write([]string{strconv.Itoa(int(r.Address)), r.Hex, fmt.Sprint(r.Value)})
		}
		w.Flush()
		return w.Error()
	case "raw":
		for _, r := range results {
			fmt.Fprintln(stdout, r.Value)
		}
		return nil
	}

	fmt.Fprintf(stdout, "\n%s (Address %d-%d, Count: %d)\n",
		color(colorBold, title), startAddr, startAddr+uint16(len(values))-1, len(values))
	fmt.Fprintln(stdout, strings.Repeat("-", 60))

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tVALUE\tHEX\tNOTE")
	fmt.Fprintln(w, "-------\t-----\t---\t----")
	for _, r := range results {
		addr := strconv.Itoa(int(r.Address))
		note := ""
		if len(r.Raw) == 2 {
			addr = fmt.Sprintf("%d-%d", r.Address, r.Address+1)
			if registers.FromWords(r.Raw[0], r.Raw[1]).IsSentinel() {
				note = color(colorYellow, "unavailable")
			}
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", addr, r.Value, r.Hex, note)
	}
	w.Flush()
	fmt.Fprintln(stdout)
	return nil
}

func outputLayout(t registers.Table, entries []registers.Entry) error {
	switch outputFmt {
	case "json":
		return outputJSON(entries)
	case "csv":
		w := csv.NewWriter(stdout)
		w.Write([]string{"space", "start", "end", "name", "require", "writable"})
		for _, e := range entries {
			w.Write([]string{
				e.Space,
				strconv.Itoa(int(e.Start)),
				strconv.Itoa(int(e.End)),
				e.Name,
				strings.Join(e.Require, " "),
				strconv.FormatBool(e.Writable),
			})
		}
		w.Flush()
		return w.Error()
	}

	fmt.Fprintf(stdout, "\n%s register table (%d entries)\n", color(colorBold, t.String()), len(entries))
	fmt.Fprintln(stdout, strings.Repeat("-", 72))

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPACE\tADDRESS\tNAME\tACCESS\tREQUIRES")
	fmt.Fprintln(w, "-----\t-------\t----\t------\t--------")
	for _, e := range entries {
		addr := strconv.Itoa(int(e.Start))
		if e.End != e.Start {
			addr = fmt.Sprintf("%d-%d", e.Start, e.End)
		}
		access := "r"
		if e.Writable {
			access = color(colorCyan, "rw")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Space, addr, e.Name, access, strings.Join(e.Require, ","))
	}
	w.Flush()
	fmt.Fprintln(stdout)
	return nil
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func boolDigit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
