// main.go - CLI entry point: loads a flat binary or bzImage kernel into a
// fresh Emulator and runs it to completion or fault.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"golang.org/x/term"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: emu [-h|--help] [-d|--debug] [-m|--memory N] [binary]")
	fmt.Fprintln(os.Stderr, "  -m, --memory N   memory size in bytes (default 16 MiB, or $EMU_MEMORY_SIZE)")
	fmt.Fprintln(os.Stderr, "  -d, --debug      enable interactive UART bridge and register dump on fault")
	fmt.Fprintln(os.Stderr, "  binary           flat binary loaded at 0x0000:0x0000, or a bzImage kernel")
}

func main() {
	var (
		debug     bool
		memory    int
		showUsage bool
	)

	memDefault := env.Int("EMU_MEMORY_SIZE", 16*1024*1024)

	flag.BoolVar(&debug, "d", false, "enable debug mode")
	flag.BoolVar(&debug, "debug", false, "enable debug mode")
	flag.IntVar(&memory, "m", memDefault, "memory size in bytes")
	flag.IntVar(&memory, "memory", memDefault, "memory size in bytes")
	flag.BoolVar(&showUsage, "h", false, "show usage")
	flag.BoolVar(&showUsage, "help", false, "show usage")
	flag.Usage = usage
	flag.Parse()

	if showUsage {
		usage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "emu: failed to read %s: %v\n", args[0], err)
		os.Exit(1)
	}

	emu := NewEmulator(Config{
		MemorySize:  memory,
		EnableUART:  true,
		DebugMode:   debug,
		DumpOnError: debug,
	})

	if looksLikeBzImage(data) {
		if err := emu.LoadKernel(data, "console=ttyS0", nil); err != nil {
			fmt.Fprintf(os.Stderr, "emu: failed to load kernel: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := emu.LoadBinary(data, 0); err != nil {
			fmt.Fprintf(os.Stderr, "emu: failed to load binary: %v\n", err)
			os.Exit(1)
		}
	}

	var host *TerminalHost
	if debug && term.IsTerminal(int(os.Stdin.Fd())) {
		host = NewTerminalHost(emu.uart)
		host.Start()
		defer host.Stop()
	}

	runErr := emu.Run()

	if host != nil {
		host.PrintOutput()
	} else {
		os.Stdout.Write(emu.GetUARTOutput())
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "emu: %v\n", runErr)
		os.Exit(1)
	}
	os.Exit(0)
}

// looksLikeBzImage reports whether data carries the Linux boot-sector
// signature at offset 0x1FE; anything else is treated as a flat binary.
func looksLikeBzImage(data []byte) bool {
	return len(data) >= 0x200 && data[0x1FE] == 0x55 && data[0x1FF] == 0xAA
}
