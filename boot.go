// boot.go - Linux x86 boot protocol: bzImage setup-header parsing and the
// direct-boot sequence that hands control straight to a kernel's 32-bit
// entry point without a real BIOS or bootloader in the loop.
//
// Grounded on DirectBoot's role in the emulator's top-level wiring
// (emulator.go) and on Memory's little-endian accessors (memory.go) for
// every field read/write the header and zero page require.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "encoding/binary"

const (
	bootParamsAddr          = 0x10000
	protectedModeKernelAddr = 0x100000
	cmdlineAddr             = 0x20000
	initrdAddr              = 0x7F00000
	gdtAddr                 = 0x1F000

	setupHeaderOffset = 0x1F1

	loadflagLoadedHigh = 0x01
	loadflagCanUseHeap = 0x80
)

// DirectBoot parses a bzImage setup header and lays out kernel, command
// line and initrd bytes in guest memory exactly as a minimal bootloader
// would, then programs CPU state so the first fetched instruction is the
// kernel's protected-mode entry point.
type DirectBoot struct {
	kernel  []byte
	cmdline []byte
	initrd  []byte

	setupSects  byte
	syssize     uint32
	loadflags   byte
	code32Start uint32
	ramdiskSize uint32
}

// NewDirectBoot parses the setup header embedded in kernel and validates it
// against the fields the Linux boot protocol requires loaders to check.
func NewDirectBoot(kernel, cmdline, initrd []byte) (*DirectBoot, error) {
	if len(kernel) < 0x400 {
		return nil, newErr(ErrInvalidKernel, "kernel image is %d bytes, need at least 0x400", len(kernel))
	}

	bootFlag := binary.LittleEndian.Uint16(kernel[0x1FE:])
	if bootFlag != 0xAA55 {
		return nil, newErr(ErrInvalidBootSector, "boot_flag 0x%04X at offset 0x1FE, want 0xAA55", bootFlag)
	}

	header := binary.LittleEndian.Uint32(kernel[0x202:])
	if header != 0x53726448 {
		return nil, newErr(ErrInvalidBootHeader, "header magic 0x%08X at offset 0x202, want 0x53726448 (HdrS)", header)
	}

	version := binary.LittleEndian.Uint16(kernel[0x206:])
	if version < 0x0200 {
		return nil, newErr(ErrUnsupportedBootProtocol, "boot protocol version 0x%04X, need >= 0x0200", version)
	}

	setupSects := kernel[setupHeaderOffset]
	if setupSects == 0 {
		setupSects = 4
	}

	code32Start := binary.LittleEndian.Uint32(kernel[0x214:])
	if code32Start == 0 {
		code32Start = protectedModeKernelAddr
	}

	b := &DirectBoot{
		kernel:      kernel,
		cmdline:     cmdline,
		initrd:      initrd,
		setupSects:  setupSects,
		syssize:     binary.LittleEndian.Uint32(kernel[0x1F4:]),
		loadflags:   kernel[0x211],
		code32Start: code32Start,
	}
	if initrd != nil {
		b.ramdiskSize = uint32(len(initrd))
	}
	return b, nil
}

// load writes the kernel, command line and optional initrd into the
// emulator's memory, builds a zero page, a minimal GDT and E820 map, and
// programs CPU state so execution can resume at the kernel's entry point.
func (b *DirectBoot) load(e *Emulator) error {
	mem := e.mem

	// 1. Zero the zero page.
	mem.Fill(bootParamsAddr, 0x1000, 0)

	// 2. Setup header + boot sector land at BOOT_PARAMS_ADDR.
	setupLen := len(b.kernel)
	if setupLen > 0x400 {
		setupLen = 0x400
	}
	mem.WriteBytes(bootParamsAddr, b.kernel[:setupLen])

	// 3. Protected-mode payload starts after the setup sectors.
	payloadStart := int(b.setupSects+1) * 512
	if payloadStart < len(b.kernel) {
		mem.WriteBytes(protectedModeKernelAddr, b.kernel[payloadStart:])
	}

	// 4. Command line, truncated to 255 bytes and NUL-terminated.
	cmd := b.cmdline
	if len(cmd) > 255 {
		cmd = cmd[:255]
	}
	mem.WriteBytes(cmdlineAddr, cmd)
	mem.WriteU8(cmdlineAddr+uint32(len(cmd)), 0)
	mem.WriteU32(bootParamsAddr+0x228, cmdlineAddr)

	// 5. Optional initrd.
	if b.initrd != nil {
		mem.WriteBytes(initrdAddr, b.initrd)
		mem.WriteU32(bootParamsAddr+0x218, initrdAddr)
		mem.WriteU32(bootParamsAddr+0x21C, b.ramdiskSize)
	}

	// 6. Loader identification and derived header fields.
	mem.WriteU8(bootParamsAddr+0x210, 0xFF)
	loadflags := mem.ReadU8(bootParamsAddr + 0x211)
	mem.WriteU8(bootParamsAddr+0x211, loadflags|loadflagLoadedHigh|loadflagCanUseHeap)
	mem.WriteU16(bootParamsAddr+0x224, 0xDE00)
	mem.WriteU16(bootParamsAddr+0x1FA, 0xFFFF)
	mem.WriteU32(bootParamsAddr+0x214, b.code32Start)

	// 7. A trivial three-region E820 map.
	type e820Entry struct {
		addr, size uint64
		typ        uint32
	}
	entries := []e820Entry{
		{0, 640 * 1024, 1},
		{640 * 1024, 1024*1024 - 640*1024, 2},
		{1024 * 1024, uint64(mem.Size()) - 1024*1024, 1},
	}
	mem.WriteU8(bootParamsAddr+0x1E8, byte(len(entries)))
	for i, ent := range entries {
		off := bootParamsAddr + 0x2D0 + uint32(i)*20
		mem.WriteU32(off, uint32(ent.addr))
		mem.WriteU32(off+4, uint32(ent.addr>>32))
		mem.WriteU32(off+8, uint32(ent.size))
		mem.WriteU32(off+12, uint32(ent.size>>32))
		mem.WriteU32(off+16, ent.typ)
	}

	// 8. Minimal GDT: null, flat code, flat data, flat data (duplicate).
	writeDesc := func(index int, access, flags byte) {
		off := gdtAddr + uint32(index)*8
		mem.WriteU16(off, 0xFFFF)   // limit 0:15
		mem.WriteU16(off+2, 0)      // base 0:15
		mem.WriteU8(off+4, 0)       // base 16:23
		mem.WriteU8(off+5, access)
		mem.WriteU8(off+6, flags<<4|0x0F) // flags | limit 16:19
		mem.WriteU8(off+7, 0)              // base 24:31
	}
	mem.Fill(gdtAddr, 8, 0)
	writeDesc(1, 0x9A, 0xC)
	writeDesc(2, 0x92, 0xC)
	writeDesc(3, 0x92, 0xC)
	e.cpu.GDTR = DTR{Base: gdtAddr, Limit: 31}

	// 9. Architectural state: protected mode if LOADED_HIGH, else real mode.
	if b.loadflags&loadflagLoadedHigh != 0 {
		e.cpu.CR0 |= 1
		e.cpu.loadSeg(x86SegCS, 0x08)
		e.cpu.loadSeg(x86SegDS, 0x10)
		e.cpu.loadSeg(x86SegES, 0x10)
		e.cpu.loadSeg(x86SegFS, 0x10)
		e.cpu.loadSeg(x86SegGS, 0x10)
		e.cpu.loadSeg(x86SegSS, 0x10)
		e.cpu.ESI = bootParamsAddr
		e.cpu.EAX, e.cpu.EBX, e.cpu.ECX, e.cpu.EDX = 0, 0, 0, 0
		e.cpu.EBP, e.cpu.EDI = 0, 0
		e.cpu.ESP = bootParamsAddr - 0x1000
		e.cpu.EIP = b.code32Start
		e.cpu.setFlag(x86FlagIF, false)
		e.cpu.setFlag(x86FlagDF, false)
	} else {
		// CS:IP enters at the boot sector's load address; DS/ES/SS point
		// at the boot params segment instead (base bootParamsAddr, so
		// selector bootParamsAddr/16), where step 1 wrote the zero page.
		e.cpu.loadSeg(x86SegCS, 0x9000)
		e.cpu.loadSeg(x86SegDS, uint16(bootParamsAddr>>4))
		e.cpu.loadSeg(x86SegES, uint16(bootParamsAddr>>4))
		e.cpu.loadSeg(x86SegSS, uint16(bootParamsAddr>>4))
		e.cpu.SetIP(0)
		e.cpu.ESI = 0
	}

	return nil
}
