package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/mattn/go-shellwords"

	"github.com/cesanta/esp108jtag/xtensa/hostif"
	"github.com/cesanta/esp108jtag/xtensa/regs"
	"github.com/cesanta/esp108jtag/xtensa/target"
)

func runConsole(ctx context.Context, h *target.Handle) {
	parser := shellwords.NewParser()
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("xtdbgtool console -- type 'help' for commands, 'quit' to exit")
	for {
		color.New(color.FgBlue).Printf("xtdbg(%s)> ", h.State())
		if !scanner.Scan() {
			break
		}
		args, err := parser.Parse(scanner.Text())
		if err != nil || len(args) == 0 {
			continue
		}
		if err := dispatch(ctx, h, args); err != nil {
			if err == errQuit {
				return
			}
			color.New(color.FgRed).Printf("error: %s\n", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

func dispatch(ctx context.Context, h *target.Handle, args []string) error {
	switch args[0] {
	case "quit", "exit":
		return errQuit
	case "help":
		printHelp()
	case "examine":
		return h.Examine(ctx)
	case "poll":
		return h.Poll(ctx)
	case "halt":
		return h.Halt(ctx)
	case "resume":
		return cmdResume(ctx, h, args[1:])
	case "step":
		return h.Step(ctx, true, 0)
	case "reset":
		return cmdReset(ctx, h, args[1:])
	case "reg":
		return cmdReg(h, args[1:])
	case "setreg":
		return cmdSetReg(h, args[1:])
	case "bp":
		return cmdBreakpoint(ctx, h, args[1:])
	default:
		return fmt.Errorf("unknown command %q (try 'help')", args[0])
	}
	return nil
}

func printHelp() {
	fmt.Println(`commands:
  examine                       run the one-shot initial poll
  poll                          re-poll target state
  halt                          request a debug interrupt
  resume [addr] [debug]         resume at current PC, or addr if given
  step                          single-step one instruction
  reset [halt]                  assert/deassert reset, optionally halting after
  reg <name>                    print a cached register's value
  setreg <name> <hex-value>     stage a local register write
  bp add <hex-addr>             add a hardware breakpoint
  bp remove <hex-addr>          remove a previously added breakpoint
  quit                          exit`)
}

func cmdResume(ctx context.Context, h *target.Handle, args []string) error {
	current := true
	var addr uint32
	debugExec := false
	for _, a := range args {
		if a == "debug" {
			debugExec = true
			continue
		}
		v, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return fmt.Errorf("bad address %q: %s", a, err)
		}
		addr = uint32(v)
		current = false
	}
	return h.Resume(ctx, current, addr, true, debugExec)
}

func cmdReset(ctx context.Context, h *target.Handle, args []string) error {
	haltAfter := len(args) > 0 && args[0] == "halt"
	if err := h.AssertReset(ctx, false); err != nil {
		return err
	}
	return h.DeassertReset(ctx, haltAfter)
}

func cmdReg(h *target.Handle, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: reg <name>")
	}
	idx := regs.ByName(args[0])
	if idx < 0 {
		return fmt.Errorf("no such register %q", args[0])
	}
	v, err := h.ReadRegister(idx)
	if err != nil {
		return err
	}
	fmt.Printf("%s = 0x%08x\n", args[0], v)
	return nil
}

func cmdSetReg(h *target.Handle, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: setreg <name> <hex-value>")
	}
	idx := regs.ByName(args[0])
	if idx < 0 {
		return fmt.Errorf("no such register %q", args[0])
	}
	v, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad value %q: %s", args[1], err)
	}
	return h.WriteRegister(idx, uint32(v))
}

func cmdBreakpoint(ctx context.Context, h *target.Handle, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bp add|remove <hex-addr>")
	}
	addr, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad address %q: %s", args[1], err)
	}
	bp := &hostif.Breakpoint{Address: uint32(addr), Type: hostif.BreakpointHard}
	switch args[0] {
	case "add":
		return h.Bps.AddBreakpoint(ctx, h.State() == hostif.StateHalted, bp)
	case "remove":
		existing := h.Bps.BreakpointAt(uint32(addr))
		if existing == nil {
			return fmt.Errorf("no breakpoint at 0x%x", addr)
		}
		return h.Bps.RemoveBreakpoint(ctx, h.State() == hostif.StateHalted, existing)
	default:
		return fmt.Errorf("usage: bp add|remove <hex-addr>")
	}
}
