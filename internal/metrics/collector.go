// Package metrics provides a lightweight, Prometheus-compatible counter
// collector for the messaging adapter. It outputs text/plain in Prometheus
// exposition format without requiring the heavy prometheus/client_golang
// dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates named, labeled counters.
type MetricsCollector struct {
	counters  sync.Map // name{labels} -> *Counter
	startTime time.Time
}

// NewCollector creates a new collector.
func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Counter returns or creates a counter with the given name and label set.
// Labels are a preformatted `k="v",k="v"` string.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Handler renders the collector in Prometheus text format.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		fmt.Fprintf(&sb, "# HELP msgbridge_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE msgbridge_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "msgbridge_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		var ctrs []*Counter
		c.counters.Range(func(_, v any) bool {
			ctrs = append(ctrs, v.(*Counter))
			return true
		})
		sort.Slice(ctrs, func(i, j int) bool {
			if ctrs[i].name != ctrs[j].name {
				return ctrs[i].name < ctrs[j].name
			}
			return ctrs[i].labels < ctrs[j].labels
		})

		helpWritten := make(map[string]bool)
		for _, ctr := range ctrs {
			if !helpWritten[ctr.name] {
				fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", ctr.name, ctr.help, ctr.name)
				helpWritten[ctr.name] = true
			}
			if ctr.labels != "" {
				fmt.Fprintf(&sb, "%s{%s} %d\n", ctr.name, ctr.labels, ctr.Value())
			} else {
				fmt.Fprintf(&sb, "%s %d\n", ctr.name, ctr.Value())
			}
		}

		w.Write([]byte(sb.String()))
	}
}
