// Command xtdbgtool is a standalone harness for the ESP108 Xtensa
// debug-target driver: it wires up a target.Handle over either a
// scripted fake transport (for exercising the driver without hardware)
// or a locked, opened physical adapter, and drops into an interactive
// console for issuing debug operations by hand.
package main

import (
	"context"
	"fmt"

	"github.com/cesanta/errors"
	"github.com/fatih/color"
	"github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"github.com/cesanta/esp108jtag/xtensa/config"
	"github.com/cesanta/esp108jtag/xtensa/hostif"
	"github.com/cesanta/esp108jtag/xtensa/probe"
	"github.com/cesanta/esp108jtag/xtensa/tap"
	"github.com/cesanta/esp108jtag/xtensa/tap/faketap"
	"github.com/cesanta/esp108jtag/xtensa/target"
)

var (
	configFile = flag.String("config", "", "Path to an adapter/target .ini config file")
	dryRun     = flag.Bool("dry-run", true, "Use a scripted fake transport instead of opening real hardware")
)

type consoleNotifier struct{}

func (consoleNotifier) Notify(e hostif.Event) {
	color.New(color.FgCyan).Printf("-- event: %s\n", e)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		glog.Exitf("failed to load config: %s", err)
	}

	t, closeFn, err := openTransport(cfg)
	if err != nil {
		glog.Exitf("failed to open transport: %s", err)
	}
	defer closeFn()

	h := target.NewHandle(t, consoleNotifier{})
	h.StepTimeout = cfg.StepTimeout
	h.StepPollInterval = cfg.StepPollInterval
	h.TRSTWired = cfg.TRSTWired
	ctx := context.Background()

	color.New(color.FgGreen).Println("xtdbgtool: examining target...")
	if err := h.Examine(ctx); err != nil {
		color.New(color.FgRed).Printf("examine failed: %s\n", err)
	} else {
		fmt.Printf("target state: %s\n", h.State())
	}

	runConsole(ctx, h)
}

// openTransport returns a tap.Transport to drive, or an error. Real
// adapters are opened and locked via xtensa/probe, but turning the
// resulting device handle into TAP shifts means speaking that adapter's
// own bit-banging protocol, which this driver deliberately does not
// implement (the physical transport is treated as external); the
// practical path for exercising the driver remains the scripted fake.
func openTransport(cfg *config.Config) (tap.Transport, func(), error) {
	if *dryRun {
		color.New(color.FgYellow).Println("xtdbgtool: using scripted fake transport (--dry-run)")
		ft := scriptedDemoTransport()
		return ft, func() {}, nil
	}

	glog.V(1).Infof("configured JTAG clock rate: %d Hz (not yet driven down to hardware, see below)", cfg.ClockHz)
	switch cfg.Adapter {
	case config.AdapterHID:
		lock, err := probe.AcquireDeviceLock(fmt.Sprintf("hid-%04x-%04x", cfg.VID, cfg.PID))
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		d, err := probe.OpenHID(cfg.VID, cfg.PID, cfg.Serial)
		lock.Release()
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		return nil, nil, errors.Errorf(
			"opened HID adapter %04x:%04x, but this build has no adapter-specific "+
				"bit-banging Transport wired up for it (device=%v); run with --dry-run", cfg.VID, cfg.PID, d)
	case config.AdapterSerial:
		lock, err := probe.AcquireDeviceLock(cfg.Port)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		s, err := probe.OpenSerial(cfg.Port, cfg.BaudRate)
		lock.Release()
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		return nil, nil, errors.Errorf(
			"opened serial adapter %s, but this build has no adapter-specific "+
				"bit-banging Transport wired up for it (port=%v); run with --dry-run", cfg.Port, s)
	default:
		return nil, nil, errors.Errorf("unknown adapter %q", cfg.Adapter)
	}
}

// scriptedDemoTransport pre-loads a faketap.Transport with the response
// sequence for "examine a freshly reset, running core": boundary
// scenario: examining a freshly reset, running core.
func scriptedDemoTransport() *faketap.Transport {
	ft := &faketap.Transport{IRWidthVal: 5}
	ft.PushU8Response(0x50) // PWRSTAT: DEBUGWASRESET | COREWASRESET
	ft.PushU32Response(0x1cd2) // OCDID
	ft.PushU32Response(0x00)   // DSR: not stopped
	return ft
}
