package logging

import (
	"sort"
	"time"
)

type Config struct {
	EnabledSinks     []string
	BufferSize       int
	MinimumSeverity  Severity
	Fields           map[string]any
	JSON             JSONConfig
	Console          ConsoleConfig
	DropWarnInterval time.Duration
}

type JSONConfig struct {
	FilePath      string
	MaxBatch      int
	FlushInterval time.Duration
}

type ConsoleConfig struct {
	UseColor bool
}

func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			MaxBatch:      32,
			FlushInterval: 2 * time.Second,
		},
	}
}

func (c Config) HasSink(name string) bool {
	for _, s := range c.EnabledSinks {
		if s == name {
			return true
		}
	}
	return false
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}

// selectSinks returns the enabled sinks sorted by name. An empty
// EnabledSinks list enables every provided sink.
func (c Config) selectSinks(sinks map[string]Sink) []NamedSink {
	names := make([]string, 0, len(sinks))
	for name, sink := range sinks {
		if sink == nil {
			continue
		}
		if len(c.EnabledSinks) > 0 && !c.HasSink(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	selected := make([]NamedSink, 0, len(names))
	for _, name := range names {
		selected = append(selected, NamedSink{Name: name, Sink: sinks[name]})
	}
	return selected
}
