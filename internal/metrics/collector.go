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

// Package metrics exports the Modbus server and register engine counters
// to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	modbus "github.com/edgeo-scada/wallbox-modbus"
	"github.com/edgeo-scada/wallbox-modbus/internal/registers"
)

const namespace = "wallbox"

// Collector reads the counters at scrape time. Either source may be nil.
type Collector struct {
	server *modbus.ServerMetrics
	engine *registers.Engine

	requests        *prometheus.Desc
	requestsSuccess *prometheus.Desc
	requestsErrors  *prometheus.Desc
	exceptions      *prometheus.Desc
	connsActive     *prometheus.Desc
	connsTotal      *prometheus.Desc
	connsRejected   *prometheus.Desc

	funcRequests   *prometheus.Desc
	funcExceptions *prometheus.Desc
	funcDuration   *prometheus.Desc

	reads            *prometheus.Desc
	writes           *prometheus.Desc
	rejectedWrites   *prometheus.Desc
	unresolvedReads  *prometheus.Desc
	droppedLEDWrites *prometheus.Desc
	failedCommands   *prometheus.Desc
	feature          *prometheus.Desc
	table            *prometheus.Desc
}

func desc(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

// NewCollector creates a collector over server and engine.
func NewCollector(server *modbus.ServerMetrics, engine *registers.Engine) *Collector {
	return &Collector{
		server: server,
		engine: engine,

		requests:        desc("modbus", "requests_total", "Modbus requests received."),
		requestsSuccess: desc("modbus", "requests_success_total", "Modbus requests answered normally."),
		requestsErrors:  desc("modbus", "requests_errors_total", "Modbus requests that failed."),
		exceptions:      desc("modbus", "exceptions_total", "Modbus exception responses sent."),
		connsActive:     desc("modbus", "connections_active", "Open client connections."),
		connsTotal:      desc("modbus", "connections_total", "Accepted client connections."),
		connsRejected:   desc("modbus", "connections_rejected_total", "Connections rejected at the connection limit."),

		funcRequests:   desc("modbus", "function_requests_total", "Modbus requests per function code.", "function"),
		funcExceptions: desc("modbus", "function_exceptions_total", "Modbus exceptions per function code.", "function"),
		funcDuration:   desc("modbus", "request_duration_seconds", "Modbus request latency per function code.", "function"),

		reads:            desc("registers", "reads_total", "Read requests served by the register table."),
		writes:           desc("registers", "writes_total", "Write requests received by the register table."),
		rejectedWrites:   desc("registers", "rejected_writes_total", "Write requests dropped because Modbus control is disabled."),
		unresolvedReads:  desc("registers", "unresolved_reads_total", "Addresses read that are not part of the table."),
		droppedLEDWrites: desc("registers", "dropped_led_writes_total", "LED writes dropped for missing the duration register."),
		failedCommands:   desc("registers", "failed_commands_total", "Writes whose command was rejected by the device."),
		feature:          desc("", "feature_present", "Optional subsystems as seen by the register table.", "feature"),
		table:            desc("registers", "table_info", "Active register table.", "table"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requests, c.requestsSuccess, c.requestsErrors, c.exceptions,
		c.connsActive, c.connsTotal, c.connsRejected,
		c.funcRequests, c.funcExceptions, c.funcDuration,
		c.reads, c.writes, c.rejectedWrites, c.unresolvedReads,
		c.droppedLEDWrites, c.failedCommands, c.feature, c.table,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.server != nil {
		c.collectServer(ch)
	}
	if c.engine != nil {
		c.collectEngine(ch)
	}
}

func (c *Collector) collectServer(ch chan<- prometheus.Metric) {
	m := c.server
	counter(ch, c.requests, &m.RequestsTotal)
	counter(ch, c.requestsSuccess, &m.RequestsSuccess)
	counter(ch, c.requestsErrors, &m.RequestsErrors)
	counter(ch, c.exceptions, &m.Exceptions)
	ch <- prometheus.MustNewConstMetric(c.connsActive, prometheus.GaugeValue, float64(m.ActiveConns.Value()))
	counter(ch, c.connsTotal, &m.TotalConns)
	counter(ch, c.connsRejected, &m.RejectedConns)

	m.Functions(func(fc modbus.FunctionCode, fm *modbus.FunctionMetrics) {
		name := fc.String()
		counter(ch, c.funcRequests, &fm.Requests, name)
		counter(ch, c.funcExceptions, &fm.Exceptions, name)

		st := fm.Latency.Stats()
		ch <- prometheus.MustNewConstHistogram(c.funcDuration, st.Count, st.Sum, st.Cumulative, name)
	})
}

func (c *Collector) collectEngine(ch chan<- prometheus.Metric) {
	st := c.engine.Stats()
	counter(ch, c.reads, &st.Reads)
	counter(ch, c.writes, &st.Writes)
	counter(ch, c.rejectedWrites, &st.RejectedWrites)
	counter(ch, c.unresolvedReads, &st.UnresolvedReads)
	counter(ch, c.droppedLEDWrites, &st.DroppedLEDWrites)
	counter(ch, c.failedCommands, &st.FailedCommands)

	for name, present := range c.engine.Features() {
		v := 0.0
		if present {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.feature, prometheus.GaugeValue, v, name)
	}
	ch <- prometheus.MustNewConstMetric(c.table, prometheus.GaugeValue, 1, c.engine.Table().String())
}

func counter(ch chan<- prometheus.Metric, d *prometheus.Desc, v *modbus.Counter, labels ...string) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v.Value()), labels...)
}
