// Package config loads simulator configuration from TOML. Every field
// has a working default, so an empty file (or no file) is a valid
// configuration.
package config

import (
	"os"
	"time"

	"github.com/naoina/toml"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/kforth"
	"github.com/ehrlich-b/kestrel/services/serialmux"
)

// Config is the top-level simulator configuration.
type Config struct {
	Kernel Kernel `toml:"kernel"`
	Sermux Sermux `toml:"sermux"`
	Forth  Forth  `toml:"forth"`
	Trace  Trace  `toml:"trace"`
}

// Kernel sizes the kernel core.
type Kernel struct {
	MaxDrivers         int `toml:"max_drivers"`
	HeapSizeKB         int `toml:"heap_size_kb"`
	TimerGranularityUS int `toml:"timer_granularity_us"`
	IdleSleepCapMS     int `toml:"idle_sleep_cap_ms"`
}

// Sermux sizes the serial multiplexer.
type Sermux struct {
	MaxPorts int `toml:"max_ports"`
	MaxFrame int `toml:"max_frame"`
}

// Forth sizes the default shell and its children.
type Forth struct {
	StackSize            int `toml:"stack_size"`
	InputBufSize         int `toml:"input_buf_size"`
	OutputBufSize        int `toml:"output_buf_size"`
	DictionarySize       int `toml:"dictionary_size"`
	StdinCapacity        int `toml:"stdin_capacity"`
	StdoutCapacity       int `toml:"stdout_capacity"`
	BagOfHoldingCapacity int `toml:"bag_of_holding_capacity"`
	SpawnTimeoutMS       int `toml:"spawn_timeout_ms"`
}

// Trace configures the serial trace service.
type Trace struct {
	Enabled           bool `toml:"enabled"`
	QueueDepth        int  `toml:"queue_depth"`
	HeartbeatMS       int  `toml:"heartbeat_ms"`
	InitialLevelDebug bool `toml:"initial_level_debug"`
}

// Load reads path, returning defaults when path is empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KernelSettings converts to kernel settings.
func (c *Config) KernelSettings() kestrel.Settings {
	s := kestrel.Settings{
		MaxDrivers: c.Kernel.MaxDrivers,
	}
	if c.Kernel.HeapSizeKB > 0 {
		s.HeapSize = c.Kernel.HeapSizeKB * 1024
	}
	if c.Kernel.TimerGranularityUS > 0 {
		s.TimerGranularity = time.Duration(c.Kernel.TimerGranularityUS) * time.Microsecond
	}
	if c.Kernel.IdleSleepCapMS > 0 {
		s.IdleSleepCap = time.Duration(c.Kernel.IdleSleepCapMS) * time.Millisecond
	}
	return s
}

// SermuxSettings converts to mux settings.
func (c *Config) SermuxSettings() serialmux.Settings {
	return serialmux.Settings{
		MaxPorts: uint16(c.Sermux.MaxPorts),
		MaxFrame: c.Sermux.MaxFrame,
	}
}

// ForthParams converts to Forth task parameters.
func (c *Config) ForthParams() kforth.Params {
	p := kforth.Params{
		StackSize:            c.Forth.StackSize,
		InputBufSize:         c.Forth.InputBufSize,
		OutputBufSize:        c.Forth.OutputBufSize,
		DictionarySize:       c.Forth.DictionarySize,
		StdinCapacity:        c.Forth.StdinCapacity,
		StdoutCapacity:       c.Forth.StdoutCapacity,
		BagOfHoldingCapacity: c.Forth.BagOfHoldingCapacity,
	}
	if c.Forth.SpawnTimeoutMS > 0 {
		p.SpawnulatorTimeout = time.Duration(c.Forth.SpawnTimeoutMS) * time.Millisecond
	}
	return p
}
