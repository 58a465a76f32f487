// boot_test.go - Linux boot protocol tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/binary"
	"testing"
)

// newTestKernel builds a minimal bzImage-shaped buffer: a 0x400-byte setup
// region carrying a valid boot sector/header, followed by a handful of
// protected-mode payload bytes so the copy-past-setup-sectors step has
// something to move.
func newTestKernel(loadflags byte) []byte {
	k := make([]byte, 0x400+16)
	binary.LittleEndian.PutUint16(k[0x1FE:], 0xAA55)
	binary.LittleEndian.PutUint32(k[0x202:], 0x53726448) // "HdrS"
	binary.LittleEndian.PutUint16(k[0x206:], 0x0200)
	k[setupHeaderOffset] = 4 // setup_sects
	k[0x211] = loadflags
	binary.LittleEndian.PutUint32(k[0x214:], protectedModeKernelAddr)
	copy(k[0x400:], []byte("PAYLOAD!"))
	return k
}

// TestDirectBoot_ProtectedMode covers spec scenario 6: LOADED_HIGH set, so
// the kernel enters directly in 32-bit protected mode at code32_start.
func TestDirectBoot_ProtectedMode(t *testing.T) {
	e := NewEmulator(Config{MemorySize: 2 * 1024 * 1024})
	kernel := newTestKernel(loadflagLoadedHigh)

	if err := e.LoadKernel(kernel, "console=ttyS0", nil); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}

	st := e.GetCPUState()
	if st.Mode != ModeProtected {
		t.Errorf("Mode: got %v, want protected", st.Mode)
	}
	if st.CR0&1 == 0 {
		t.Errorf("CR0.PE not set")
	}
	if st.CS != 0x08 {
		t.Errorf("CS: got 0x%04X, want 0x08", st.CS)
	}
	if st.DS != 0x10 || st.SS != 0x10 {
		t.Errorf("DS/SS: got 0x%04X/0x%04X, want 0x10/0x10", st.DS, st.SS)
	}
	if st.ESI != bootParamsAddr {
		t.Errorf("ESI: got 0x%08X, want 0x%08X", st.ESI, uint32(bootParamsAddr))
	}
	if st.EIP != protectedModeKernelAddr {
		t.Errorf("EIP: got 0x%08X, want 0x%08X", st.EIP, uint32(protectedModeKernelAddr))
	}
	if e.cpu.GDTR.Base != gdtAddr || e.cpu.GDTR.Limit != 31 {
		t.Errorf("GDTR: got base 0x%X limit %d, want base 0x%X limit 31", e.cpu.GDTR.Base, e.cpu.GDTR.Limit, uint32(gdtAddr))
	}
	got := e.mem.ReadBytes(cmdlineAddr, len("console=ttyS0"))
	if string(got) != "console=ttyS0" {
		t.Errorf("cmdline: got %q, want %q", got, "console=ttyS0")
	}
}

// TestDirectBoot_RealMode covers the non-LOADED_HIGH branch: the kernel
// enters at CS:IP 0x9000:0000 in real mode, with DS/ES/SS pointing at the
// boot-params segment (base bootParamsAddr) rather than the CS segment.
func TestDirectBoot_RealMode(t *testing.T) {
	e := NewEmulator(Config{MemorySize: 2 * 1024 * 1024})
	kernel := newTestKernel(0) // LOADED_HIGH clear

	if err := e.LoadKernel(kernel, "root=/dev/sda1", nil); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}

	st := e.GetCPUState()
	if st.Mode != ModeReal {
		t.Errorf("Mode: got %v, want real", st.Mode)
	}
	if st.CS != 0x9000 {
		t.Errorf("CS: got 0x%04X, want 0x9000", st.CS)
	}
	if st.DS != 0x1000 || st.ES != 0x1000 || st.SS != 0x1000 {
		t.Errorf("DS/ES/SS: got 0x%04X/0x%04X/0x%04X, want 0x1000 each", st.DS, st.ES, st.SS)
	}
	if st.EIP != 0 {
		t.Errorf("EIP: got 0x%08X, want 0", st.EIP)
	}
	if st.ESI != 0 {
		t.Errorf("ESI: got 0x%08X, want 0", st.ESI)
	}

	// DS:ESI-relative linear address must land on the zero page the setup
	// header was written to (step 2 of load), not 16 bytes into CS's segment.
	dsBase := e.cpu.segCache[x86SegDS].Base
	if dsBase != bootParamsAddr {
		t.Errorf("DS base: got 0x%X, want 0x%X (the boot params segment)", dsBase, uint32(bootParamsAddr))
	}
	bootFlag := e.mem.ReadU16(dsBase + 0x1FE)
	if bootFlag != 0xAA55 {
		t.Errorf("zero page at DS base+0x1FE: got 0x%04X, want 0xAA55 (setup header written there, not at CS's segment)", bootFlag)
	}
}
