// emulator.go - top-level wiring: Memory + IOBus + CPU_X86 + UART + boot
// loader behind a single synchronous, single-threaded Emulator handle.
//
// Grounded on the constructor/options pattern the teacher's sound and video
// chips follow (NewSoundChip(backend), NewVideoChip(backend)) and on
// TerminalHost's interactive stdin bridge (terminal_host.go), now pointed at
// a UART16550 instead of a TerminalMMIO register file.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "fmt"

// Config configures a new Emulator. Zero-value fields take the defaults
// documented per field.
type Config struct {
	MemorySize     int    // default 16 MiB
	EnableUART     bool   // registers a UART at UARTBase when true; off if left zero
	UARTBase       uint16 // default 0x3F8
	EnableKeyboard bool
	DebugMode      bool
	DumpOnError    bool
	InitialCS      uint16
	InitialIP      uint32
}

func (c Config) withDefaults() Config {
	if c.MemorySize == 0 {
		c.MemorySize = 16 * 1024 * 1024
	}
	if c.UARTBase == 0 {
		c.UARTBase = 0x3F8
	}
	return c
}

// CPUState is a point-in-time snapshot of architectural state, returned by
// GetCPUState and printed by the dump_on_error path.
type CPUState struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32
	EIP                uint32
	CS, DS, ES, FS, GS, SS uint16
	Flags              uint32
	CR0                uint32
	Mode               CPUMode
	Halted             bool
}

func (s CPUState) String() string {
	return fmt.Sprintf(
		"EAX=%08X EBX=%08X ECX=%08X EDX=%08X\nESI=%08X EDI=%08X EBP=%08X ESP=%08X\nEIP=%08X CS=%04X DS=%04X ES=%04X FS=%04X GS=%04X SS=%04X\nFLAGS=%08X CR0=%08X mode=%s halted=%v",
		s.EAX, s.EBX, s.ECX, s.EDX, s.ESI, s.EDI, s.EBP, s.ESP,
		s.EIP, s.CS, s.DS, s.ES, s.FS, s.GS, s.SS,
		s.Flags, s.CR0, s.Mode, s.Halted)
}

// Emulator owns the memory, I/O bus, CPU and UART, wiring them together and
// exposing a single synchronous step/run entry point. All mutation happens
// on the caller's goroutine; see SPEC_FULL.md for the concurrency model.
type Emulator struct {
	cfg  Config
	mem  *Memory
	io   *IOBus
	cpu  *CPU_X86
	uart *UART16550
}

// NewEmulator wires a fresh Memory, IOBus, CPU_X86 and (if enabled) UART
// according to cfg, then resets the CPU to its initial entry state.
func NewEmulator(cfg Config) *Emulator {
	cfg = cfg.withDefaults()

	e := &Emulator{
		cfg: cfg,
		mem: NewMemory(cfg.MemorySize),
		io:  NewIOBus(),
	}
	e.cpu = NewCPU_X86(e.mem, e.io)

	if cfg.EnableUART {
		e.uart = NewUART16550()
		e.io.Register(cfg.UARTBase, 8, e.uart)
	}

	e.Reset()
	return e
}

// Reset reinitializes CPU architectural state to the configured entry point
// and clears device state. Memory contents are left untouched.
func (e *Emulator) Reset() {
	e.cpu.Reset(e.cfg.InitialCS, e.cfg.InitialIP)
	if e.uart != nil {
		e.uart.Reset()
	}
}

// Step executes exactly one instruction. If dump_on_error is configured, a
// register dump is printed before the error is returned to the caller.
func (e *Emulator) Step() (cycles int, err error) {
	cycles, err = e.cpu.Step()
	if err != nil && e.cfg.DumpOnError {
		fmt.Println(e.GetCPUState())
	}
	return cycles, err
}

// Run steps until the CPU halts or a step fails.
func (e *Emulator) Run() error {
	for !e.cpu.Halted {
		if _, err := e.Step(); err != nil {
			return err
		}
	}
	return nil
}

// RunCycles steps until halted, a step fails, or max instructions have run,
// whichever comes first. It returns the number of instructions executed.
func (e *Emulator) RunCycles(max int) (int, error) {
	n := 0
	for n < max && !e.cpu.Halted {
		if _, err := e.Step(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// LoadBinary copies data into memory starting at addr and points CS:EIP at
// it (flat real-mode load: CS stays at its current value, EIP = addr).
func (e *Emulator) LoadBinary(data []byte, addr uint32) error {
	e.mem.WriteBytes(addr, data)
	e.cpu.EIP = addr
	return nil
}

// LoadKernel parses and applies a Linux bzImage boot sequence: the kernel,
// command line and optional initrd are laid out in memory and CPU state is
// programmed to resume directly at the kernel's entry point.
func (e *Emulator) LoadKernel(kernel []byte, cmdline string, initrd []byte) error {
	boot, err := NewDirectBoot(kernel, []byte(cmdline), initrd)
	if err != nil {
		return err
	}
	return boot.load(e)
}

// GetCPUState returns a snapshot of architectural state.
func (e *Emulator) GetCPUState() CPUState {
	c := e.cpu
	return CPUState{
		EAX: c.EAX, EBX: c.EBX, ECX: c.ECX, EDX: c.EDX,
		ESI: c.ESI, EDI: c.EDI, EBP: c.EBP, ESP: c.ESP,
		EIP: c.EIP,
		CS:  c.CS, DS: c.DS, ES: c.ES, FS: c.FS, GS: c.GS, SS: c.SS,
		Flags:  c.Flags,
		CR0:    c.CR0,
		Mode:   c.Mode(),
		Halted: c.Halted,
	}
}

// GetUARTOutput drains and returns bytes the guest has written to the UART.
// Returns nil if no UART is configured.
func (e *Emulator) GetUARTOutput() []byte {
	if e.uart == nil {
		return nil
	}
	return e.uart.GetOutputBuffer()
}

// SendUARTInput queues bytes for the guest to read back from the UART.
// Safe to call from another goroutine while Run/Step executes on the
// caller's: UART16550 guards its queues with its own mutex.
func (e *Emulator) SendUARTInput(data []byte) {
	if e.uart == nil {
		return
	}
	e.uart.SendInput(data)
}
