// Package obslog provides the default contracts.Logger/Monitor: stdlib
// log.Println, with emoji markers reserved for lifecycle-class transitions
// rather than sprinkled on every line.
package obslog

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/fluxforge/workercore/internal/contracts"
)

// lifecycleEvents get an emoji marker; everything else is a plain line.
var lifecycleEvents = map[string]string{
	"instanceBoot":     "🟢",
	"workerReady":      "✅",
	"instanceShutdown": "🛑",
	"exit":             "👋",
}

// Logger is the stdlib-backed contracts.Logger implementation.
type Logger struct {
	prefix string
}

// New returns a Logger that prefixes every line with tag in brackets.
func New(tag string) *Logger {
	return &Logger{prefix: tag}
}

// Log writes one structured line: "[tag] msg key=val key=val ...".
func (l *Logger) Log(msg string, fields map[string]any) {
	log.Println(l.format(msg, fields))
}

// LogEvent writes a lifecycle event line, using its emoji marker if known.
func (l *Logger) LogEvent(eventType string, fields map[string]any) {
	marker, ok := lifecycleEvents[eventType]
	if !ok {
		log.Println(l.format(eventType, fields))
		return
	}
	log.Println(marker + " " + l.format(eventType, fields))
}

func (l *Logger) format(msg string, fields map[string]any) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString("[" + l.prefix + "] ")
	}
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	return b.String()
}

// Monitor is a Logger-backed contracts.Monitor: counts and measurements are
// logged rather than shipped to a metrics backend directly, since
// internal/metrics already owns the prometheus surface; Monitor exists so
// TaskHandler implementations (which only see contracts.Monitor) can emit
// ad-hoc signals without importing internal/metrics themselves.
type Monitor struct {
	log  *Logger
	name string
}

// NewMonitor returns a root Monitor scoped to name.
func NewMonitor(l *Logger, name string) *Monitor {
	return &Monitor{log: l, name: name}
}

func (m *Monitor) Count(name string, n int) {
	m.log.Log("count", map[string]any{"metric": m.qualify(name), "n": n})
}

func (m *Monitor) Measure(name string, value float64) {
	m.log.Log("measure", map[string]any{"metric": m.qualify(name), "value": value})
}

// ChildMonitor returns a Monitor whose metric names are qualified under
// this one's, mirroring contracts.Monitor's scoping contract.
func (m *Monitor) ChildMonitor(name string) contracts.Monitor {
	return &Monitor{log: m.log, name: m.qualify(name)}
}

func (m *Monitor) qualify(name string) string {
	if m.name == "" {
		return name
	}
	return m.name + "." + name
}
