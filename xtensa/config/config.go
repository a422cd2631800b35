// Package config loads the JTAG-adapter and target settings the CLI
// harness needs: which probe to open, its identifiers, and the TAP
// chain parameters for the board in use. It is intentionally the only
// package in this module that knows about on-disk configuration; the
// driver layers themselves take everything as explicit constructor
// arguments.
package config

import (
	"strconv"
	"time"

	"github.com/cesanta/errors"
	"github.com/go-ini/ini"
)

// Adapter selects which probe backend xtensa/probe should open.
type Adapter string

const (
	AdapterHID    Adapter = "hid"
	AdapterSerial Adapter = "serial"
)

// Config holds one [adapter] and one [target] section's worth of
// settings, the minimum needed to bring up a TAP transport and attach
// it to a target.Handle.
type Config struct {
	Adapter Adapter

	// HID adapter identification (vendor/product ID, optional serial).
	VID    uint16
	PID    uint16
	Serial string

	// Serial adapter identification.
	Port     string
	BaudRate uint

	// TAP chain parameters; IRWidth is almost always 5 for the ESP108's
	// TAP but is configurable since transport position on a shared chain
	// varies by board.
	IRWidth int

	// ClockHz is the JTAG clock rate requested of the adapter. Most
	// ESP32-DevKitC boards' onboard FTDI adapter is reliable up to a few
	// MHz; boards with a longer or noisier TAP chain need a lower rate.
	ClockHz uint32

	// TRSTWired reports whether the adapter's TRST line is actually
	// connected to the target's reset pin. Many dev boards leave it
	// unwired and rely on SRST alone; AssertReset must not drive TRST
	// when this is false.
	TRSTWired bool

	// StepTimeout bounds how long Step waits for a single-instruction
	// ICOUNT trap to land before giving up. StepPollInterval is how often
	// it polls DSR while waiting.
	StepTimeout      time.Duration
	StepPollInterval time.Duration
}

// defaults mirror what a lone ESP32-DevKitC exposes on its built-in
// FTDI-based JTAG adapter.
func defaults() *Config {
	return &Config{
		Adapter:          AdapterHID,
		VID:              0x303a,
		PID:              0x1001,
		BaudRate:         115200,
		IRWidth:          5,
		ClockHz:          1000000,
		TRSTWired:        false,
		StepTimeout:      500 * time.Millisecond,
		StepPollInterval: 50 * time.Millisecond,
	}
}

// Load reads path as an INI file and overlays it onto the defaults. A
// missing file is not an error -- the defaults alone are a usable
// configuration for the common case of exactly one attached board.
func Load(path string) (*Config, error) {
	cfg := defaults()
	f, err := ini.Load(path)
	if err != nil {
		if path == "" {
			return cfg, nil
		}
		f = ini.Empty()
	}

	adapterSec := f.Section("adapter")
	if v := adapterSec.Key("type").String(); v != "" {
		cfg.Adapter = Adapter(v)
	}
	if cfg.Adapter != AdapterHID && cfg.Adapter != AdapterSerial {
		return nil, errors.Errorf("unknown adapter type %q", cfg.Adapter)
	}

	if v, err := strconv.ParseUint(adapterSec.Key("vid").String(), 0, 16); err == nil {
		cfg.VID = uint16(v)
	}
	if v, err := strconv.ParseUint(adapterSec.Key("pid").String(), 0, 16); err == nil {
		cfg.PID = uint16(v)
	}
	cfg.Serial = adapterSec.Key("serial").String()
	cfg.Port = adapterSec.Key("port").String()
	if v, err := adapterSec.Key("baud_rate").Uint(); err == nil && v != 0 {
		cfg.BaudRate = uint(v)
	}
	if v, err := adapterSec.Key("clock_hz").Uint(); err == nil && v != 0 {
		cfg.ClockHz = uint32(v)
	}

	targetSec := f.Section("target")
	if v, err := targetSec.Key("ir_width").Int(); err == nil && v != 0 {
		cfg.IRWidth = v
	}
	if v, err := targetSec.Key("trst_wired").Bool(); err == nil {
		cfg.TRSTWired = v
	}
	if v, err := targetSec.Key("step_timeout_ms").Int(); err == nil && v != 0 {
		cfg.StepTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := targetSec.Key("step_poll_ms").Int(); err == nil && v != 0 {
		cfg.StepPollInterval = time.Duration(v) * time.Millisecond
	}

	return cfg, nil
}
