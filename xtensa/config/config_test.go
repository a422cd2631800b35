package config

import (
	"io/ioutil"
	"os"
	"testing"
	"time"
)

func writeTempIni(t *testing.T, contents string) string {
	f, err := ioutil.TempFile("", "xtdbg-config-*.ini")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(contents); err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestLoadWithMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %s", err)
	}
	if cfg.Adapter != AdapterHID || cfg.IRWidth != 5 || cfg.ClockHz != 1000000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.TRSTWired {
		t.Error("TRST should default to not wired")
	}
	if cfg.StepTimeout != 500*time.Millisecond || cfg.StepPollInterval != 50*time.Millisecond {
		t.Errorf("unexpected default timeouts: step=%s poll=%s", cfg.StepTimeout, cfg.StepPollInterval)
	}
}

func TestLoadOverlaysAdapterAndTargetSections(t *testing.T) {
	path := writeTempIni(t, `
[adapter]
type = serial
port = /dev/ttyUSB1
baud_rate = 921600
clock_hz = 4000000

[target]
ir_width = 5
trst_wired = true
step_timeout_ms = 2000
step_poll_ms = 25
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if cfg.Adapter != AdapterSerial {
		t.Errorf("Adapter = %q, want serial", cfg.Adapter)
	}
	if cfg.Port != "/dev/ttyUSB1" || cfg.BaudRate != 921600 {
		t.Errorf("serial settings not loaded: port=%q baud=%d", cfg.Port, cfg.BaudRate)
	}
	if cfg.ClockHz != 4000000 {
		t.Errorf("ClockHz = %d, want 4000000", cfg.ClockHz)
	}
	if !cfg.TRSTWired {
		t.Error("expected TRSTWired true")
	}
	if cfg.StepTimeout != 2*time.Second {
		t.Errorf("StepTimeout = %s, want 2s", cfg.StepTimeout)
	}
	if cfg.StepPollInterval != 25*time.Millisecond {
		t.Errorf("StepPollInterval = %s, want 25ms", cfg.StepPollInterval)
	}
}

func TestLoadRejectsUnknownAdapterType(t *testing.T) {
	path := writeTempIni(t, "[adapter]\ntype = bluetooth\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown adapter type")
	}
}
