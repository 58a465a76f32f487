// cpu_x86.go - Intel i686 CPU core: registers, segmentation, flags, decode plumbing.
//
// Implements the 8086/386 integer instruction set with real-mode and
// protected-mode segmentation. Memory and I/O are owned by the caller
// (Emulator) and threaded in at construction time; the CPU holds no
// self-referential back-pointers.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "sync/atomic"

// CPU_X86 represents the x86 CPU architectural state.
type CPU_X86 struct {
	// General purpose registers (32-bit)
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
	ESP uint32

	// Instruction pointer
	EIP uint32

	// Segment selectors (16-bit) and their descriptor caches
	CS, DS, ES, SS, FS, GS uint16
	segCache               [6]SegCache

	// System registers
	CR0, CR2, CR3, CR4 uint32
	GDTR, IDTR         DTR
	LDTR, TR           SegCache

	// Flags register
	Flags uint32

	// Execution state
	Halted  bool
	running atomic.Bool
	Cycles  uint64

	// Interrupt state
	irqLine    bool
	irqPending atomic.Bool
	irqVector  atomic.Uint32

	// Current instruction state
	prefixSeg      int  // Segment override (-1 = none, 0-5 = ES/CS/SS/DS/FS/GS)
	prefixRep      int  // REP prefix (0 = none, 1 = REP/REPE, 2 = REPNE)
	prefixOpSize   bool // Operand size prefix (0x66)
	prefixAddrSize bool // Address size prefix (0x67)
	opcode         byte
	modrm          byte
	modrmLoaded    bool
	sib            byte
	sibLoaded      bool
	lastEASeg      int // segment resolved by the most recent getEffectiveAddress call

	// MSR file, keyed by MSR index. WRMSR stores any index and RDMSR reads
	// it back; an MSR that was never written reads as zero.
	msr map[uint32]uint64

	tsc uint64 // monotonic cycle counter backing RDTSC

	mem *Memory
	io  *IOBus

	baseOps     [256]func(*CPU_X86)
	extendedOps [256]func(*CPU_X86)

	// Register pointer array for O(1) lookup (avoids switch overhead)
	// Order: EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI
	regs32 [8]*uint32
}

// SegCache is the CPU-internal shadow of a loaded segment descriptor.
type SegCache struct {
	Selector    uint16
	Base        uint32
	Limit       uint32
	Granularity bool // true = 4 KiB page granularity
	DPL         byte
	Present     bool
	Executable  bool
	Writable    bool
}

// DTR models GDTR/IDTR: a linear base address plus an inclusive byte limit.
type DTR struct {
	Base  uint32
	Limit uint32
}

// CPUMode is the tagged mode the decoder/executor branch on, derived from CR0.PE.
type CPUMode int

const (
	ModeReal CPUMode = iota
	ModeProtected
)

func (m CPUMode) String() string {
	if m == ModeProtected {
		return "protected"
	}
	return "real"
}

// Mode derives the current CPU mode from CR0.PE, per the spec's "mode as
// tagged state" design note - never stored redundantly, always recomputed.
func (c *CPU_X86) Mode() CPUMode {
	if c.CR0&1 != 0 {
		return ModeProtected
	}
	return ModeReal
}

// Flag bit positions
const (
	x86FlagCF   = 1 << 0  // Carry Flag
	x86FlagPF   = 1 << 2  // Parity Flag
	x86FlagAF   = 1 << 4  // Auxiliary Carry Flag
	x86FlagZF   = 1 << 6  // Zero Flag
	x86FlagSF   = 1 << 7  // Sign Flag
	x86FlagTF   = 1 << 8  // Trap Flag
	x86FlagIF   = 1 << 9  // Interrupt Enable Flag
	x86FlagDF   = 1 << 10 // Direction Flag
	x86FlagOF   = 1 << 11 // Overflow Flag
	x86FlagIOPL = 3 << 12 // I/O Privilege Level (2 bits)
	x86FlagNT   = 1 << 14 // Nested Task
	x86FlagRF   = 1 << 16 // Resume Flag
	x86FlagVM   = 1 << 17 // Virtual-8086 Mode
	x86FlagAC   = 1 << 18 // Alignment Check
	x86FlagVIF  = 1 << 19 // Virtual Interrupt Flag
	x86FlagVIP  = 1 << 20 // Virtual Interrupt Pending
	x86FlagID   = 1 << 21 // ID Flag
)

// Segment register indices
const (
	x86SegES = 0
	x86SegCS = 1
	x86SegSS = 2
	x86SegDS = 3
	x86SegFS = 4
	x86SegGS = 5
)

// IA32 MSR indices the boot path and SYSENTER/SYSEXIT rely on.
const (
	msrSysenterCS  = 0x174
	msrSysenterESP = 0x175
	msrSysenterEIP = 0x176
)

// NewCPU_X86 creates a CPU bound to the given Memory and I/O bus. Neither is
// owned by the CPU; both outlive it as siblings under the top-level Emulator.
func NewCPU_X86(mem *Memory, io *IOBus) *CPU_X86 {
	cpu := &CPU_X86{
		mem: mem,
		io:  io,
		msr: make(map[uint32]uint64),
	}
	cpu.regs32 = [8]*uint32{
		&cpu.EAX, &cpu.ECX, &cpu.EDX, &cpu.EBX,
		&cpu.ESP, &cpu.EBP, &cpu.ESI, &cpu.EDI,
	}
	cpu.initBaseOps()
	cpu.initExtendedOps()
	cpu.Reset(0, 0)
	return cpu
}

// Reset initializes the CPU to real mode with the given CS:IP entry point.
func (c *CPU_X86) Reset(initialCS uint16, initialIP uint32) {
	c.EAX, c.EBX, c.ECX, c.EDX = 0, 0, 0, 0
	c.ESI, c.EDI, c.EBP, c.ESP = 0, 0, 0, 0
	c.EIP = initialIP

	c.CR0, c.CR2, c.CR3, c.CR4 = 0, 0, 0, 0
	c.GDTR, c.IDTR = DTR{}, DTR{}
	c.LDTR, c.TR = SegCache{}, SegCache{}

	c.loadSeg(x86SegCS, initialCS)
	c.loadSeg(x86SegDS, 0)
	c.loadSeg(x86SegES, 0)
	c.loadSeg(x86SegSS, 0)
	c.loadSeg(x86SegFS, 0)
	c.loadSeg(x86SegGS, 0)

	c.Flags = x86FlagIF

	c.prefixSeg = -1
	c.prefixRep = 0
	c.prefixOpSize = false
	c.prefixAddrSize = false
	c.modrmLoaded = false
	c.sibLoaded = false

	c.irqLine = false
	c.irqPending.Store(false)
	c.irqVector.Store(0)

	c.Halted = false
	c.running.Store(true)
	c.Cycles = 0
	c.tsc = 0
}

func (c *CPU_X86) Running() bool       { return c.running.Load() }
func (c *CPU_X86) SetRunning(b bool)   { c.running.Store(b) }

// -----------------------------------------------------------------------------
// Register Access Helpers
// -----------------------------------------------------------------------------

func (c *CPU_X86) AX() uint16    { return uint16(c.EAX & 0xFFFF) }
func (c *CPU_X86) SetAX(v uint16) { c.EAX = (c.EAX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) AL() byte      { return byte(c.EAX & 0xFF) }
func (c *CPU_X86) SetAL(v byte)  { c.EAX = (c.EAX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) AH() byte      { return byte((c.EAX >> 8) & 0xFF) }
func (c *CPU_X86) SetAH(v byte)  { c.EAX = (c.EAX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) BX() uint16    { return uint16(c.EBX & 0xFFFF) }
func (c *CPU_X86) SetBX(v uint16) { c.EBX = (c.EBX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) BL() byte      { return byte(c.EBX & 0xFF) }
func (c *CPU_X86) SetBL(v byte)  { c.EBX = (c.EBX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) BH() byte      { return byte((c.EBX >> 8) & 0xFF) }
func (c *CPU_X86) SetBH(v byte)  { c.EBX = (c.EBX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) CX() uint16    { return uint16(c.ECX & 0xFFFF) }
func (c *CPU_X86) SetCX(v uint16) { c.ECX = (c.ECX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) CL() byte      { return byte(c.ECX & 0xFF) }
func (c *CPU_X86) SetCL(v byte)  { c.ECX = (c.ECX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) CH() byte      { return byte((c.ECX >> 8) & 0xFF) }
func (c *CPU_X86) SetCH(v byte)  { c.ECX = (c.ECX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) DX() uint16    { return uint16(c.EDX & 0xFFFF) }
func (c *CPU_X86) SetDX(v uint16) { c.EDX = (c.EDX & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) DL() byte      { return byte(c.EDX & 0xFF) }
func (c *CPU_X86) SetDL(v byte)  { c.EDX = (c.EDX & 0xFFFFFF00) | uint32(v) }
func (c *CPU_X86) DH() byte      { return byte((c.EDX >> 8) & 0xFF) }
func (c *CPU_X86) SetDH(v byte)  { c.EDX = (c.EDX & 0xFFFF00FF) | (uint32(v) << 8) }

func (c *CPU_X86) SI() uint16    { return uint16(c.ESI & 0xFFFF) }
func (c *CPU_X86) SetSI(v uint16) { c.ESI = (c.ESI & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) DI() uint16    { return uint16(c.EDI & 0xFFFF) }
func (c *CPU_X86) SetDI(v uint16) { c.EDI = (c.EDI & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) BP() uint16    { return uint16(c.EBP & 0xFFFF) }
func (c *CPU_X86) SetBP(v uint16) { c.EBP = (c.EBP & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) SP() uint16    { return uint16(c.ESP & 0xFFFF) }
func (c *CPU_X86) SetSP(v uint16) { c.ESP = (c.ESP & 0xFFFF0000) | uint32(v) }
func (c *CPU_X86) IP() uint16    { return uint16(c.EIP & 0xFFFF) }
func (c *CPU_X86) SetIP(v uint16) { c.EIP = (c.EIP & 0xFFFF0000) | uint32(v) }

// -----------------------------------------------------------------------------
// Register access by index
// -----------------------------------------------------------------------------

func (c *CPU_X86) getReg8(idx byte) byte {
	switch idx & 7 {
	case 0:
		return c.AL()
	case 1:
		return c.CL()
	case 2:
		return c.DL()
	case 3:
		return c.BL()
	case 4:
		return c.AH()
	case 5:
		return c.CH()
	case 6:
		return c.DH()
	case 7:
		return c.BH()
	}
	return 0
}

func (c *CPU_X86) setReg8(idx byte, v byte) {
	switch idx & 7 {
	case 0:
		c.SetAL(v)
	case 1:
		c.SetCL(v)
	case 2:
		c.SetDL(v)
	case 3:
		c.SetBL(v)
	case 4:
		c.SetAH(v)
	case 5:
		c.SetCH(v)
	case 6:
		c.SetDH(v)
	case 7:
		c.SetBH(v)
	}
}

func (c *CPU_X86) getReg16(idx byte) uint16 {
	switch idx & 7 {
	case 0:
		return c.AX()
	case 1:
		return c.CX()
	case 2:
		return c.DX()
	case 3:
		return c.BX()
	case 4:
		return c.SP()
	case 5:
		return c.BP()
	case 6:
		return c.SI()
	case 7:
		return c.DI()
	}
	return 0
}

func (c *CPU_X86) setReg16(idx byte, v uint16) {
	switch idx & 7 {
	case 0:
		c.SetAX(v)
	case 1:
		c.SetCX(v)
	case 2:
		c.SetDX(v)
	case 3:
		c.SetBX(v)
	case 4:
		c.SetSP(v)
	case 5:
		c.SetBP(v)
	case 6:
		c.SetSI(v)
	case 7:
		c.SetDI(v)
	}
}

// getReg32/setReg32 use the pointer array for O(1) lookup instead of a switch.
func (c *CPU_X86) getReg32(idx byte) uint32   { return *c.regs32[idx&7] }
func (c *CPU_X86) setReg32(idx byte, v uint32) { *c.regs32[idx&7] = v }

func (c *CPU_X86) getSeg(idx int) uint16 {
	switch idx {
	case x86SegES:
		return c.ES
	case x86SegCS:
		return c.CS
	case x86SegSS:
		return c.SS
	case x86SegDS:
		return c.DS
	case x86SegFS:
		return c.FS
	case x86SegGS:
		return c.GS
	}
	return 0
}

func (c *CPU_X86) setSegSelector(idx int, v uint16) {
	switch idx {
	case x86SegES:
		c.ES = v
	case x86SegCS:
		c.CS = v
	case x86SegSS:
		c.SS = v
	case x86SegDS:
		c.DS = v
	case x86SegFS:
		c.FS = v
	case x86SegGS:
		c.GS = v
	}
}

// -----------------------------------------------------------------------------
// Segmentation
// -----------------------------------------------------------------------------

// loadSeg loads a selector into a segment register and refreshes its
// descriptor cache per the active mode. Every place that changes CS, DS, ES,
// SS, FS or GS must route through here - raw field assignment would leave
// the cache stale and violate the base/limit invariant on the next access.
func (c *CPU_X86) loadSeg(idx int, selector uint16) {
	c.setSegSelector(idx, selector)

	if c.Mode() == ModeReal {
		c.segCache[idx] = SegCache{
			Selector: selector,
			Base:     uint32(selector) << 4,
			Limit:    0xFFFF,
			Present:  true,
		}
		return
	}

	tableBase, tableLimit := c.GDTR.Base, c.GDTR.Limit
	if selector&4 != 0 {
		tableBase, tableLimit = c.LDTR.Base, c.LDTR.Limit
	}
	index := uint32(selector >> 3)
	descOff := index * 8
	if selector>>3 == 0 {
		// Null selector: valid to load (e.g. unused segment registers),
		// cache stays unusable but is not an access fault by itself.
		c.segCache[idx] = SegCache{Selector: selector}
		return
	}
	if descOff+8 > tableLimit+1 {
		raiseFault(ErrSegmentFault, "selector 0x%04X index %d outside descriptor table limit 0x%X", selector, index, tableLimit)
	}
	addr := tableBase + descOff
	low := c.mem.ReadU32(addr)
	high := c.mem.ReadU32(addr + 4)

	limit := (low & 0xFFFF) | (high & 0x000F0000)
	base := ((low >> 16) & 0xFFFF) | ((high & 0xFF) << 16) | (high & 0xFF000000)
	access := byte((high >> 8) & 0xFF)
	flags := byte((high >> 20) & 0xF)
	present := access&0x80 != 0
	dpl := (access >> 5) & 3
	executable := access&0x08 != 0
	writable := access&0x02 != 0
	granularity := flags&0x8 != 0
	if granularity {
		limit = (limit << 12) | 0xFFF
	}

	if !present {
		raiseFault(ErrSegmentFault, "segment selector 0x%04X not present", selector)
	}

	c.segCache[idx] = SegCache{
		Selector:    selector,
		Base:        base,
		Limit:       limit,
		Granularity: granularity,
		DPL:         dpl,
		Present:     present,
		Executable:  executable,
		Writable:    writable,
	}
}

// setSeg is retained for instructions (MOV Sw,Ew) that load a segment
// register from a general operand; it is a thin alias over loadSeg.
func (c *CPU_X86) setSeg(idx int, v uint16) { c.loadSeg(idx, v) }

// linear translates a segment-relative offset to a linear address, checking
// the segment limit in protected mode. Real mode never faults on limit since
// its cache limit is always the full 64 KiB segment.
func (c *CPU_X86) linear(segIdx int, offset uint32) uint32 {
	cache := &c.segCache[segIdx]
	if c.Mode() == ModeProtected && uint64(offset) > uint64(cache.Limit) {
		raiseFault(ErrSegmentFault, "offset 0x%X exceeds limit 0x%X on segment %d", offset, cache.Limit, segIdx)
	}
	return cache.Base + offset
}

// dsSeg resolves the segment used for general memory operands: the override
// prefix if present, else DS.
func (c *CPU_X86) dsSeg() int {
	if c.prefixSeg >= 0 {
		return c.prefixSeg
	}
	return x86SegDS
}

// -----------------------------------------------------------------------------
// Flag Helpers
// -----------------------------------------------------------------------------

func (c *CPU_X86) getFlag(flag uint32) bool { return (c.Flags & flag) != 0 }

func (c *CPU_X86) setFlag(flag uint32, set bool) {
	if set {
		c.Flags |= flag
	} else {
		c.Flags &^= flag
	}
}

func (c *CPU_X86) CF() bool { return c.getFlag(x86FlagCF) }
func (c *CPU_X86) ZF() bool { return c.getFlag(x86FlagZF) }
func (c *CPU_X86) SF() bool { return c.getFlag(x86FlagSF) }
func (c *CPU_X86) OF() bool { return c.getFlag(x86FlagOF) }
func (c *CPU_X86) PF() bool { return c.getFlag(x86FlagPF) }
func (c *CPU_X86) AF() bool { return c.getFlag(x86FlagAF) }
func (c *CPU_X86) DF() bool { return c.getFlag(x86FlagDF) }
func (c *CPU_X86) IF() bool { return c.getFlag(x86FlagIF) }

// parity returns true (PF set) when the low byte has an even number of set bits.
func parity(v byte) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return (v & 1) == 0
}

func (c *CPU_X86) setFlagsArith8(result uint16, a, b byte, sub bool) {
	r := byte(result)
	c.setFlag(x86FlagCF, result > 0xFF)
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, (r&0x80) != 0)
	c.setFlag(x86FlagPF, parity(r))
	if sub {
		c.setFlag(x86FlagOF, ((a^b)&(a^r)&0x80) != 0)
		c.setFlag(x86FlagAF, (a&0x0F) < (b&0x0F))
	} else {
		c.setFlag(x86FlagOF, ((^(a ^ b))&(a^r)&0x80) != 0)
		c.setFlag(x86FlagAF, ((a&0x0F)+(b&0x0F)) > 0x0F)
	}
}

func (c *CPU_X86) setFlagsArith16(result uint32, a, b uint16, sub bool) {
	r := uint16(result)
	c.setFlag(x86FlagCF, result > 0xFFFF)
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, (r&0x8000) != 0)
	c.setFlag(x86FlagPF, parity(byte(r)))
	if sub {
		c.setFlag(x86FlagOF, ((a^b)&(a^r)&0x8000) != 0)
		c.setFlag(x86FlagAF, (a&0x0F) < (b&0x0F))
	} else {
		c.setFlag(x86FlagOF, ((^(a ^ b))&(a^r)&0x8000) != 0)
		c.setFlag(x86FlagAF, ((a&0x0F)+(b&0x0F)) > 0x0F)
	}
}

func (c *CPU_X86) setFlagsArith32(result uint64, a, b uint32, sub bool) {
	r := uint32(result)
	c.setFlag(x86FlagCF, result > 0xFFFFFFFF)
	c.setFlag(x86FlagZF, r == 0)
	c.setFlag(x86FlagSF, (r&0x80000000) != 0)
	c.setFlag(x86FlagPF, parity(byte(r)))
	if sub {
		c.setFlag(x86FlagOF, ((a^b)&(a^r)&0x80000000) != 0)
		c.setFlag(x86FlagAF, (a&0x0F) < (b&0x0F))
	} else {
		c.setFlag(x86FlagOF, ((^(a ^ b))&(a^r)&0x80000000) != 0)
		c.setFlag(x86FlagAF, ((a&0x0F)+(b&0x0F)) > 0x0F)
	}
}

func (c *CPU_X86) setFlagsLogic8(result byte) {
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	c.setFlag(x86FlagZF, result == 0)
	c.setFlag(x86FlagSF, (result&0x80) != 0)
	c.setFlag(x86FlagPF, parity(result))
}

func (c *CPU_X86) setFlagsLogic16(result uint16) {
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	c.setFlag(x86FlagZF, result == 0)
	c.setFlag(x86FlagSF, (result&0x8000) != 0)
	c.setFlag(x86FlagPF, parity(byte(result)))
}

func (c *CPU_X86) setFlagsLogic32(result uint32) {
	c.setFlag(x86FlagCF, false)
	c.setFlag(x86FlagOF, false)
	c.setFlag(x86FlagZF, result == 0)
	c.setFlag(x86FlagSF, (result&0x80000000) != 0)
	c.setFlag(x86FlagPF, parity(byte(result)))
}

// -----------------------------------------------------------------------------
// Memory Access
// -----------------------------------------------------------------------------

// fetch8 fetches a byte at CS:EIP and increments EIP.
func (c *CPU_X86) fetch8() byte {
	addr := c.linear(x86SegCS, c.EIP)
	v := c.mem.ReadU8(addr)
	c.EIP++
	return v
}

func (c *CPU_X86) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(lo) | (uint16(hi) << 8)
}

func (c *CPU_X86) fetch32() uint32 {
	b0 := c.fetch8()
	b1 := c.fetch8()
	b2 := c.fetch8()
	b3 := c.fetch8()
	return uint32(b0) | (uint32(b1) << 8) | (uint32(b2) << 16) | (uint32(b3) << 24)
}

// readSeg8/16/32 and writeSeg8/16/32 are the segment-aware primitives every
// other accessor in the executor funnels through.
func (c *CPU_X86) readSeg8(seg int, offset uint32) byte {
	return c.mem.ReadU8(c.linear(seg, offset))
}
func (c *CPU_X86) readSeg16(seg int, offset uint32) uint16 {
	return c.mem.ReadU16(c.linear(seg, offset))
}
func (c *CPU_X86) readSeg32(seg int, offset uint32) uint32 {
	return c.mem.ReadU32(c.linear(seg, offset))
}
func (c *CPU_X86) writeSeg8(seg int, offset uint32, v byte) {
	c.mem.WriteU8(c.linear(seg, offset), v)
}
func (c *CPU_X86) writeSeg16(seg int, offset uint32, v uint16) {
	c.mem.WriteU16(c.linear(seg, offset), v)
}
func (c *CPU_X86) writeSeg32(seg int, offset uint32, v uint32) {
	c.mem.WriteU32(c.linear(seg, offset), v)
}

// readData8/16/32 and writeData8/16/32 resolve through DS, or the active
// segment override prefix when one is present (moffs MOV, LODS, OUTS...).
func (c *CPU_X86) readData8(offset uint32) byte     { return c.readSeg8(c.dsSeg(), offset) }
func (c *CPU_X86) readData16(offset uint32) uint16  { return c.readSeg16(c.dsSeg(), offset) }
func (c *CPU_X86) readData32(offset uint32) uint32  { return c.readSeg32(c.dsSeg(), offset) }
func (c *CPU_X86) writeData8(offset uint32, v byte) { c.writeSeg8(c.dsSeg(), offset, v) }
func (c *CPU_X86) writeData16(offset uint32, v uint16) { c.writeSeg16(c.dsSeg(), offset, v) }
func (c *CPU_X86) writeData32(offset uint32, v uint32) { c.writeSeg32(c.dsSeg(), offset, v) }

// readExtra8/16/32 and writeExtra8/16/32 always resolve through ES - the
// fixed segment of the string instructions' ES:DI operand (written by
// MOVS/STOS/INS, read by SCAS/CMPS), which cannot be overridden by a
// segment prefix.
func (c *CPU_X86) readExtra8(offset uint32) byte     { return c.readSeg8(x86SegES, offset) }
func (c *CPU_X86) readExtra16(offset uint32) uint16  { return c.readSeg16(x86SegES, offset) }
func (c *CPU_X86) readExtra32(offset uint32) uint32  { return c.readSeg32(x86SegES, offset) }
func (c *CPU_X86) writeExtra8(offset uint32, v byte) { c.writeSeg8(x86SegES, offset, v) }
func (c *CPU_X86) writeExtra16(offset uint32, v uint16) { c.writeSeg16(x86SegES, offset, v) }
func (c *CPU_X86) writeExtra32(offset uint32, v uint32) { c.writeSeg32(x86SegES, offset, v) }

// -----------------------------------------------------------------------------
// Stack Operations (always through SS)
// -----------------------------------------------------------------------------

func (c *CPU_X86) push16(v uint16) {
	c.ESP -= 2
	c.writeSeg16(x86SegSS, c.ESP, v)
}

func (c *CPU_X86) pop16() uint16 {
	v := c.readSeg16(x86SegSS, c.ESP)
	c.ESP += 2
	return v
}

func (c *CPU_X86) push32(v uint32) {
	c.ESP -= 4
	c.writeSeg32(x86SegSS, c.ESP, v)
}

func (c *CPU_X86) pop32() uint32 {
	v := c.readSeg32(x86SegSS, c.ESP)
	c.ESP += 4
	return v
}

// -----------------------------------------------------------------------------
// ModR/M and SIB Decoding
// -----------------------------------------------------------------------------

func (c *CPU_X86) fetchModRM() byte {
	if !c.modrmLoaded {
		c.modrm = c.fetch8()
		c.modrmLoaded = true
	}
	return c.modrm
}

func (c *CPU_X86) getModRMReg() byte { return (c.fetchModRM() >> 3) & 7 }
func (c *CPU_X86) getModRMRM() byte  { return c.fetchModRM() & 7 }
func (c *CPU_X86) getModRMMod() byte { return (c.fetchModRM() >> 6) & 3 }

func (c *CPU_X86) fetchSIB() byte {
	if !c.sibLoaded {
		c.sib = c.fetch8()
		c.sibLoaded = true
	}
	return c.sib
}

func (c *CPU_X86) getSIBScale() byte { return (c.fetchSIB() >> 6) & 3 }
func (c *CPU_X86) getSIBIndex() byte { return (c.fetchSIB() >> 3) & 7 }
func (c *CPU_X86) getSIBBase() byte  { return c.fetchSIB() & 7 }

// calcEffectiveAddress16 computes the 16-bit-addressing effective offset and
// records the segment it resolves through (SS for BP-based forms, DS
// otherwise, overridden by a segment prefix) in c.lastEASeg.
func (c *CPU_X86) calcEffectiveAddress16() uint32 {
	mod := c.getModRMMod()
	rm := c.getModRMRM()

	var base uint16
	seg := x86SegDS

	switch rm {
	case 0:
		base = c.BX() + c.SI()
	case 1:
		base = c.BX() + c.DI()
	case 2:
		base = c.BP() + c.SI()
		seg = x86SegSS
	case 3:
		base = c.BP() + c.DI()
		seg = x86SegSS
	case 4:
		base = c.SI()
	case 5:
		base = c.DI()
	case 6:
		if mod == 0 {
			base = c.fetch16()
		} else {
			base = c.BP()
			seg = x86SegSS
		}
	case 7:
		base = c.BX()
	}

	switch mod {
	case 1:
		disp := int8(c.fetch8())
		base = uint16(int16(base) + int16(disp))
	case 2:
		disp := c.fetch16()
		base += disp
	}

	if c.prefixSeg >= 0 {
		seg = c.prefixSeg
	}
	c.lastEASeg = seg
	return uint32(base)
}

// calcEffectiveAddress32 is the 32-bit-addressing counterpart, including SIB
// decoding. ESP/EBP-based forms default to SS, per the ABI convention that
// frame-relative accesses are stack accesses.
func (c *CPU_X86) calcEffectiveAddress32() uint32 {
	mod := c.getModRMMod()
	rm := c.getModRMRM()

	var addr uint32
	seg := x86SegDS

	if rm == 4 {
		scale := c.getSIBScale()
		index := c.getSIBIndex()
		base := c.getSIBBase()

		if base == 5 && mod == 0 {
			addr = c.fetch32()
		} else {
			addr = c.getReg32(base)
			if base == 4 || base == 5 {
				seg = x86SegSS
			}
		}

		if index != 4 {
			addr += c.getReg32(index) << scale
		}
	} else if rm == 5 && mod == 0 {
		addr = c.fetch32()
	} else {
		addr = c.getReg32(rm)
		if rm == 4 || rm == 5 {
			seg = x86SegSS
		}
	}

	switch mod {
	case 1:
		disp := int8(c.fetch8())
		addr = uint32(int32(addr) + int32(disp))
	case 2:
		addr += c.fetch32()
	}

	if c.prefixSeg >= 0 {
		seg = c.prefixSeg
	}
	c.lastEASeg = seg
	return addr
}

// getEffectiveAddress returns the effective offset for the current ModR/M
// operand (not a linear address - LEA needs the bare offset) and records the
// resolved segment in c.lastEASeg for readRM/writeRM to translate with.
func (c *CPU_X86) getEffectiveAddress() uint32 {
	if c.prefixAddrSize {
		return c.calcEffectiveAddress16()
	}
	return c.calcEffectiveAddress32()
}

func (c *CPU_X86) readRM8() byte {
	if c.getModRMMod() == 3 {
		return c.getReg8(c.getModRMRM())
	}
	offset := c.getEffectiveAddress()
	return c.readSeg8(c.lastEASeg, offset)
}

func (c *CPU_X86) writeRM8(v byte) {
	if c.getModRMMod() == 3 {
		c.setReg8(c.getModRMRM(), v)
	} else {
		offset := c.getEffectiveAddress()
		c.writeSeg8(c.lastEASeg, offset, v)
	}
}

func (c *CPU_X86) readRM16() uint16 {
	if c.getModRMMod() == 3 {
		return c.getReg16(c.getModRMRM())
	}
	offset := c.getEffectiveAddress()
	return c.readSeg16(c.lastEASeg, offset)
}

func (c *CPU_X86) writeRM16(v uint16) {
	if c.getModRMMod() == 3 {
		c.setReg16(c.getModRMRM(), v)
	} else {
		offset := c.getEffectiveAddress()
		c.writeSeg16(c.lastEASeg, offset, v)
	}
}

func (c *CPU_X86) readRM32() uint32 {
	if c.getModRMMod() == 3 {
		return c.getReg32(c.getModRMRM())
	}
	offset := c.getEffectiveAddress()
	return c.readSeg32(c.lastEASeg, offset)
}

// readEA8/16/32 and writeEA8/16/32 operate on an already-computed effective
// offset (from getEffectiveAddress), routed through the segment that call
// resolved into c.lastEASeg. Used by handlers that need the raw offset
// before the access (e.g. to fetch a trailing immediate in between).
func (c *CPU_X86) readEA8(offset uint32) byte      { return c.readSeg8(c.lastEASeg, offset) }
func (c *CPU_X86) readEA16(offset uint32) uint16   { return c.readSeg16(c.lastEASeg, offset) }
func (c *CPU_X86) readEA32(offset uint32) uint32   { return c.readSeg32(c.lastEASeg, offset) }
func (c *CPU_X86) writeEA8(offset uint32, v byte)  { c.writeSeg8(c.lastEASeg, offset, v) }
func (c *CPU_X86) writeEA16(offset uint32, v uint16) { c.writeSeg16(c.lastEASeg, offset, v) }
func (c *CPU_X86) writeEA32(offset uint32, v uint32) { c.writeSeg32(c.lastEASeg, offset, v) }

func (c *CPU_X86) writeRM32(v uint32) {
	if c.getModRMMod() == 3 {
		c.setReg32(c.getModRMRM(), v)
	} else {
		offset := c.getEffectiveAddress()
		c.writeSeg32(c.lastEASeg, offset, v)
	}
}

// -----------------------------------------------------------------------------
// Instruction Execution
// -----------------------------------------------------------------------------

// Step decodes and executes exactly one instruction, returning the cycle
// count consumed. Faults raised anywhere in the call tree (OutOfBounds,
// SegmentFault, DivideByZero, UndefinedOpcode...) are
// recovered here and returned as a plain error - executor code never
// threads error returns through ~150 opcode handlers.
func (c *CPU_X86) Step() (cycles int, err error) {
	if c.Halted || !c.running.Load() {
		return 0, nil
	}

	defer func() {
		if r := recover(); r != nil {
			fp, ok := r.(faultPanic)
			if !ok {
				panic(r)
			}
			err = fp.err
		}
	}()

	if c.irqPending.Load() && c.IF() {
		c.handleInterrupt(byte(c.irqVector.Load()))
		c.irqPending.Store(false)
	}

	c.prefixSeg = -1
	c.prefixRep = 0
	c.prefixOpSize = false
	c.prefixAddrSize = false
	c.modrmLoaded = false
	c.sibLoaded = false

	startCycles := c.Cycles

	for {
		c.opcode = c.fetch8()

		switch c.opcode {
		case 0x26:
			c.prefixSeg = x86SegES
		case 0x2E:
			c.prefixSeg = x86SegCS
		case 0x36:
			c.prefixSeg = x86SegSS
		case 0x3E:
			c.prefixSeg = x86SegDS
		case 0x64:
			c.prefixSeg = x86SegFS
		case 0x65:
			c.prefixSeg = x86SegGS
		case 0x66:
			c.prefixOpSize = true
		case 0x67:
			c.prefixAddrSize = true
		case 0xF0:
			continue // LOCK: concurrency is out of scope, treated as a no-op prefix
		case 0xF2:
			c.prefixRep = 2
		case 0xF3:
			c.prefixRep = 1
		default:
			if handler := c.baseOps[c.opcode]; handler != nil {
				handler(c)
			} else {
				raiseFault(ErrUndefinedOpcode, "opcode 0x%02X at EIP=0x%08X", c.opcode, c.EIP-1)
			}
			goto done
		}
	}

done:
	cycles = int(c.Cycles - startCycles)
	if cycles == 0 {
		cycles = 1
	}
	c.tsc += uint64(cycles)
	return cycles, nil
}

// handleInterrupt vectors through the real-mode IVT. Protected-mode IDT
// delivery is not implemented; architectural exceptions instead surface as
// engine-level errors from Step, per the spec's default error-reporting policy.
func (c *CPU_X86) handleInterrupt(vector byte) {
	c.push16(uint16(c.Flags))
	c.push16(c.CS)
	c.push16(c.IP())

	c.setFlag(x86FlagIF, false)
	c.setFlag(x86FlagTF, false)

	addr := uint32(vector) * 4
	ivtIP := c.mem.ReadU16(addr)
	ivtCS := c.mem.ReadU16(addr + 2)
	c.SetIP(ivtIP)
	c.loadSeg(x86SegCS, ivtCS)
}

func (c *CPU_X86) ioIn8(port uint16) byte     { return byte(c.io.Read(port, 1)) }
func (c *CPU_X86) ioIn16(port uint16) uint16  { return uint16(c.io.Read(port, 2)) }
func (c *CPU_X86) ioOut8(port uint16, v byte)  { c.io.Write(port, 1, uint32(v)) }
func (c *CPU_X86) ioOut16(port uint16, v uint16) { c.io.Write(port, 2, uint32(v)) }

func (c *CPU_X86) SetIRQ(active bool, vector byte) {
	c.irqLine = active
	if active {
		c.irqPending.Store(true)
		c.irqVector.Store(uint32(vector))
	}
}

// -----------------------------------------------------------------------------
// Opcode Dispatch Tables
// -----------------------------------------------------------------------------

// wireALUBlock wires the six operand forms of one ALU op (Eb,Gb / Ev,Gv /
// Gb,Eb / Gv,Ev / AL,Ib / AX,Iv) into the eight consecutive opcodes each
// ALU op occupies in the base table, e.g. base=0x00 wires 0x00-0x05 to ADD.
func (c *CPU_X86) wireALUBlock(base byte, op aluOp) {
	c.baseOps[base+0] = func(cpu *CPU_X86) { cpu.aluEbGb(op) }
	c.baseOps[base+1] = func(cpu *CPU_X86) { cpu.aluEvGv(op) }
	c.baseOps[base+2] = func(cpu *CPU_X86) { cpu.aluGbEb(op) }
	c.baseOps[base+3] = func(cpu *CPU_X86) { cpu.aluGvEv(op) }
	c.baseOps[base+4] = func(cpu *CPU_X86) { cpu.aluALIb(op) }
	c.baseOps[base+5] = func(cpu *CPU_X86) { cpu.aluAXIv(op) }
}

// initBaseOps populates the one-byte opcode dispatch table.
func (c *CPU_X86) initBaseOps() {
	for i := range c.baseOps {
		c.baseOps[i] = nil
	}

	c.wireALUBlock(0x00, aluADD)

	// 0x06-0x07: PUSH/POP ES
	c.baseOps[0x06] = (*CPU_X86).opPUSH_ES
	c.baseOps[0x07] = (*CPU_X86).opPOP_ES

	c.wireALUBlock(0x08, aluOR)

	// 0x0E: PUSH CS
	c.baseOps[0x0E] = (*CPU_X86).opPUSH_CS

	// 0x0F: Two-byte opcode prefix
	c.baseOps[0x0F] = (*CPU_X86).opTwoBytePrefix

	c.wireALUBlock(0x10, aluADC)

	// 0x16-0x17: PUSH/POP SS
	c.baseOps[0x16] = (*CPU_X86).opPUSH_SS
	c.baseOps[0x17] = (*CPU_X86).opPOP_SS

	c.wireALUBlock(0x18, aluSBB)

	// 0x1E-0x1F: PUSH/POP DS
	c.baseOps[0x1E] = (*CPU_X86).opPUSH_DS
	c.baseOps[0x1F] = (*CPU_X86).opPOP_DS

	c.wireALUBlock(0x20, aluAND)

	// 0x27: DAA
	c.baseOps[0x27] = (*CPU_X86).opDAA

	c.wireALUBlock(0x28, aluSUB)

	// 0x2F: DAS
	c.baseOps[0x2F] = (*CPU_X86).opDAS

	c.wireALUBlock(0x30, aluXOR)

	// 0x37: AAA
	c.baseOps[0x37] = (*CPU_X86).opAAA

	c.wireALUBlock(0x38, aluCMP)

	// 0x3F: AAS
	c.baseOps[0x3F] = (*CPU_X86).opAAS

	// 0x40-0x47: INC r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x40+i] = func(cpu *CPU_X86) { cpu.opINC_reg(byte(idx)) }
	}

	// 0x48-0x4F: DEC r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x48+i] = func(cpu *CPU_X86) { cpu.opDEC_reg(byte(idx)) }
	}

	// 0x50-0x57: PUSH r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x50+i] = func(cpu *CPU_X86) { cpu.opPUSH_reg(byte(idx)) }
	}

	// 0x58-0x5F: POP r16/r32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0x58+i] = func(cpu *CPU_X86) { cpu.opPOP_reg(byte(idx)) }
	}

	// 0x60: PUSHA
	c.baseOps[0x60] = (*CPU_X86).opPUSHA

	// 0x61: POPA
	c.baseOps[0x61] = (*CPU_X86).opPOPA

	// 0x68: PUSH Iv
	c.baseOps[0x68] = (*CPU_X86).opPUSH_Iv

	// 0x69: IMUL Gv,Ev,Iv
	c.baseOps[0x69] = (*CPU_X86).opIMUL_Gv_Ev_Iv

	// 0x6A: PUSH Ib
	c.baseOps[0x6A] = (*CPU_X86).opPUSH_Ib

	// 0x6B: IMUL Gv,Ev,Ib
	c.baseOps[0x6B] = (*CPU_X86).opIMUL_Gv_Ev_Ib

	// 0x6C-0x6F: INS/OUTS
	c.baseOps[0x6C] = (*CPU_X86).opINSB
	c.baseOps[0x6D] = (*CPU_X86).opINSW
	c.baseOps[0x6E] = (*CPU_X86).opOUTSB
	c.baseOps[0x6F] = (*CPU_X86).opOUTSW

	// 0x70-0x7F: Jcc rel8
	c.baseOps[0x70] = (*CPU_X86).opJO_rel8
	c.baseOps[0x71] = (*CPU_X86).opJNO_rel8
	c.baseOps[0x72] = (*CPU_X86).opJB_rel8
	c.baseOps[0x73] = (*CPU_X86).opJNB_rel8
	c.baseOps[0x74] = (*CPU_X86).opJZ_rel8
	c.baseOps[0x75] = (*CPU_X86).opJNZ_rel8
	c.baseOps[0x76] = (*CPU_X86).opJBE_rel8
	c.baseOps[0x77] = (*CPU_X86).opJNBE_rel8
	c.baseOps[0x78] = (*CPU_X86).opJS_rel8
	c.baseOps[0x79] = (*CPU_X86).opJNS_rel8
	c.baseOps[0x7A] = (*CPU_X86).opJP_rel8
	c.baseOps[0x7B] = (*CPU_X86).opJNP_rel8
	c.baseOps[0x7C] = (*CPU_X86).opJL_rel8
	c.baseOps[0x7D] = (*CPU_X86).opJNL_rel8
	c.baseOps[0x7E] = (*CPU_X86).opJLE_rel8
	c.baseOps[0x7F] = (*CPU_X86).opJNLE_rel8

	// 0x80: Grp1 Eb,Ib
	c.baseOps[0x80] = (*CPU_X86).opGrp1_Eb_Ib

	// 0x81: Grp1 Ev,Iv
	c.baseOps[0x81] = (*CPU_X86).opGrp1_Ev_Iv

	// 0x82: Grp1 Eb,Ib (alias)
	c.baseOps[0x82] = (*CPU_X86).opGrp1_Eb_Ib

	// 0x83: Grp1 Ev,Ib
	c.baseOps[0x83] = (*CPU_X86).opGrp1_Ev_Ib

	// 0x84-0x85: TEST
	c.baseOps[0x84] = func(cpu *CPU_X86) { cpu.aluEbGb(aluTEST) }
	c.baseOps[0x85] = func(cpu *CPU_X86) { cpu.aluEvGv(aluTEST) }

	// 0x86-0x87: XCHG
	c.baseOps[0x86] = (*CPU_X86).opXCHG_Eb_Gb
	c.baseOps[0x87] = (*CPU_X86).opXCHG_Ev_Gv

	// 0x88-0x8B: MOV
	c.baseOps[0x88] = (*CPU_X86).opMOV_Eb_Gb
	c.baseOps[0x89] = (*CPU_X86).opMOV_Ev_Gv
	c.baseOps[0x8A] = (*CPU_X86).opMOV_Gb_Eb
	c.baseOps[0x8B] = (*CPU_X86).opMOV_Gv_Ev

	// 0x8C: MOV Ev,Sw
	c.baseOps[0x8C] = (*CPU_X86).opMOV_Ev_Sw

	// 0x8D: LEA
	c.baseOps[0x8D] = (*CPU_X86).opLEA

	// 0x8E: MOV Sw,Ew
	c.baseOps[0x8E] = (*CPU_X86).opMOV_Sw_Ew

	// 0x8F: POP Ev
	c.baseOps[0x8F] = (*CPU_X86).opPOP_Ev

	// 0x90: NOP (XCHG AX,AX)
	c.baseOps[0x90] = (*CPU_X86).opNOP

	// 0x91-0x97: XCHG AX,r16
	for i := 1; i < 8; i++ {
		idx := i
		c.baseOps[0x90+i] = func(cpu *CPU_X86) { cpu.opXCHG_AX_reg(byte(idx)) }
	}

	// 0x98: CBW/CWDE
	c.baseOps[0x98] = (*CPU_X86).opCBW

	// 0x99: CWD/CDQ
	c.baseOps[0x99] = (*CPU_X86).opCWD

	// 0x9A: CALL far
	c.baseOps[0x9A] = (*CPU_X86).opCALL_far

	// 0x9B: WAIT
	c.baseOps[0x9B] = (*CPU_X86).opWAIT

	// 0x9C: PUSHF
	c.baseOps[0x9C] = (*CPU_X86).opPUSHF

	// 0x9D: POPF
	c.baseOps[0x9D] = (*CPU_X86).opPOPF

	// 0x9E: SAHF
	c.baseOps[0x9E] = (*CPU_X86).opSAHF

	// 0x9F: LAHF
	c.baseOps[0x9F] = (*CPU_X86).opLAHF

	// 0xA0-0xA3: MOV AL/AX,moffs
	c.baseOps[0xA0] = (*CPU_X86).opMOV_AL_moffs
	c.baseOps[0xA1] = (*CPU_X86).opMOV_AX_moffs
	c.baseOps[0xA2] = (*CPU_X86).opMOV_moffs_AL
	c.baseOps[0xA3] = (*CPU_X86).opMOV_moffs_AX

	// 0xA4-0xA7: MOVS/CMPS
	c.baseOps[0xA4] = (*CPU_X86).opMOVSB
	c.baseOps[0xA5] = (*CPU_X86).opMOVSW
	c.baseOps[0xA6] = (*CPU_X86).opCMPSB
	c.baseOps[0xA7] = (*CPU_X86).opCMPSW

	// 0xA8-0xA9: TEST AL/AX,imm
	c.baseOps[0xA8] = func(cpu *CPU_X86) { cpu.aluALIb(aluTEST) }
	c.baseOps[0xA9] = func(cpu *CPU_X86) { cpu.aluAXIv(aluTEST) }

	// 0xAA-0xAF: STOS/LODS/SCAS
	c.baseOps[0xAA] = (*CPU_X86).opSTOSB
	c.baseOps[0xAB] = (*CPU_X86).opSTOSW
	c.baseOps[0xAC] = (*CPU_X86).opLODSB
	c.baseOps[0xAD] = (*CPU_X86).opLODSW
	c.baseOps[0xAE] = (*CPU_X86).opSCASB
	c.baseOps[0xAF] = (*CPU_X86).opSCASW

	// 0xB0-0xB7: MOV r8,imm8
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0xB0+i] = func(cpu *CPU_X86) { cpu.opMOV_r8_imm8(byte(idx)) }
	}

	// 0xB8-0xBF: MOV r16/r32,imm16/imm32
	for i := 0; i < 8; i++ {
		idx := i
		c.baseOps[0xB8+i] = func(cpu *CPU_X86) { cpu.opMOV_r_imm(byte(idx)) }
	}

	// 0xC0: Grp2 Eb,Ib
	c.baseOps[0xC0] = (*CPU_X86).opGrp2_Eb_Ib

	// 0xC1: Grp2 Ev,Ib
	c.baseOps[0xC1] = (*CPU_X86).opGrp2_Ev_Ib

	// 0xC2: RET imm16
	c.baseOps[0xC2] = (*CPU_X86).opRET_imm16

	// 0xC3: RET
	c.baseOps[0xC3] = (*CPU_X86).opRET

	// 0xC4: LES
	c.baseOps[0xC4] = (*CPU_X86).opLES

	// 0xC5: LDS
	c.baseOps[0xC5] = (*CPU_X86).opLDS

	// 0xC6: MOV Eb,Ib
	c.baseOps[0xC6] = (*CPU_X86).opMOV_Eb_Ib

	// 0xC7: MOV Ev,Iv
	c.baseOps[0xC7] = (*CPU_X86).opMOV_Ev_Iv

	// 0xC8: ENTER
	c.baseOps[0xC8] = (*CPU_X86).opENTER

	// 0xC9: LEAVE
	c.baseOps[0xC9] = (*CPU_X86).opLEAVE

	// 0xCA: RETF imm16
	c.baseOps[0xCA] = (*CPU_X86).opRETF_imm16

	// 0xCB: RETF
	c.baseOps[0xCB] = (*CPU_X86).opRETF

	// 0xCC: INT 3
	c.baseOps[0xCC] = (*CPU_X86).opINT3

	// 0xCD: INT imm8
	c.baseOps[0xCD] = (*CPU_X86).opINT

	// 0xCE: INTO
	c.baseOps[0xCE] = (*CPU_X86).opINTO

	// 0xCF: IRET
	c.baseOps[0xCF] = (*CPU_X86).opIRET

	// 0xD0-0xD3: Grp2 shift/rotate
	c.baseOps[0xD0] = (*CPU_X86).opGrp2_Eb_1
	c.baseOps[0xD1] = (*CPU_X86).opGrp2_Ev_1
	c.baseOps[0xD2] = (*CPU_X86).opGrp2_Eb_CL
	c.baseOps[0xD3] = (*CPU_X86).opGrp2_Ev_CL

	// 0xD4: AAM
	c.baseOps[0xD4] = (*CPU_X86).opAAM

	// 0xD5: AAD
	c.baseOps[0xD5] = (*CPU_X86).opAAD

	// 0xD6: SALC (undocumented)
	c.baseOps[0xD6] = (*CPU_X86).opSALC

	// 0xD7: XLAT
	c.baseOps[0xD7] = (*CPU_X86).opXLAT

	// 0xD8-0xDF: FPU escape (NOP for now)
	for i := 0xD8; i <= 0xDF; i++ {
		c.baseOps[i] = (*CPU_X86).opFPU_escape
	}

	// 0xE0-0xE3: LOOP/JCXZ
	c.baseOps[0xE0] = (*CPU_X86).opLOOPNE
	c.baseOps[0xE1] = (*CPU_X86).opLOOPE
	c.baseOps[0xE2] = (*CPU_X86).opLOOP
	c.baseOps[0xE3] = (*CPU_X86).opJCXZ

	// 0xE4-0xE7: IN/OUT imm8
	c.baseOps[0xE4] = (*CPU_X86).opIN_AL_imm8
	c.baseOps[0xE5] = (*CPU_X86).opIN_AX_imm8
	c.baseOps[0xE6] = (*CPU_X86).opOUT_imm8_AL
	c.baseOps[0xE7] = (*CPU_X86).opOUT_imm8_AX

	// 0xE8: CALL rel16/rel32
	c.baseOps[0xE8] = (*CPU_X86).opCALL_rel

	// 0xE9: JMP rel16/rel32
	c.baseOps[0xE9] = (*CPU_X86).opJMP_rel

	// 0xEA: JMP far
	c.baseOps[0xEA] = (*CPU_X86).opJMP_far

	// 0xEB: JMP rel8
	c.baseOps[0xEB] = (*CPU_X86).opJMP_rel8

	// 0xEC-0xEF: IN/OUT DX
	c.baseOps[0xEC] = (*CPU_X86).opIN_AL_DX
	c.baseOps[0xED] = (*CPU_X86).opIN_AX_DX
	c.baseOps[0xEE] = (*CPU_X86).opOUT_DX_AL
	c.baseOps[0xEF] = (*CPU_X86).opOUT_DX_AX

	// 0xF4: HLT
	c.baseOps[0xF4] = (*CPU_X86).opHLT

	// 0xF5: CMC
	c.baseOps[0xF5] = (*CPU_X86).opCMC

	// 0xF6: Grp3 Eb
	c.baseOps[0xF6] = (*CPU_X86).opGrp3_Eb

	// 0xF7: Grp3 Ev
	c.baseOps[0xF7] = (*CPU_X86).opGrp3_Ev

	// 0xF8: CLC
	c.baseOps[0xF8] = (*CPU_X86).opCLC

	// 0xF9: STC
	c.baseOps[0xF9] = (*CPU_X86).opSTC

	// 0xFA: CLI
	c.baseOps[0xFA] = (*CPU_X86).opCLI

	// 0xFB: STI
	c.baseOps[0xFB] = (*CPU_X86).opSTI

	// 0xFC: CLD
	c.baseOps[0xFC] = (*CPU_X86).opCLD

	// 0xFD: STD
	c.baseOps[0xFD] = (*CPU_X86).opSTD

	// 0xFE: Grp4 Eb
	c.baseOps[0xFE] = (*CPU_X86).opGrp4_Eb

	// 0xFF: Grp5 Ev
	c.baseOps[0xFF] = (*CPU_X86).opGrp5_Ev
}

// initExtendedOps populates the 0x0F-prefixed two-byte opcode dispatch table.
func (c *CPU_X86) initExtendedOps() {
	for i := range c.extendedOps {
		c.extendedOps[i] = nil
	}

	// 0x00: Grp6 (SLDT/STR/LLDT/LTR/VERR/VERW)
	c.extendedOps[0x00] = (*CPU_X86).opGrp6

	// 0x01: Grp7 (SGDT/SIDT/LGDT/LIDT/SMSW/LMSW)
	c.extendedOps[0x01] = (*CPU_X86).opGrp7

	// 0x80-0x8F: Jcc rel16/rel32
	c.extendedOps[0x80] = (*CPU_X86).opJO_rel16
	c.extendedOps[0x81] = (*CPU_X86).opJNO_rel16
	c.extendedOps[0x82] = (*CPU_X86).opJB_rel16
	c.extendedOps[0x83] = (*CPU_X86).opJNB_rel16
	c.extendedOps[0x84] = (*CPU_X86).opJZ_rel16
	c.extendedOps[0x85] = (*CPU_X86).opJNZ_rel16
	c.extendedOps[0x86] = (*CPU_X86).opJBE_rel16
	c.extendedOps[0x87] = (*CPU_X86).opJNBE_rel16
	c.extendedOps[0x88] = (*CPU_X86).opJS_rel16
	c.extendedOps[0x89] = (*CPU_X86).opJNS_rel16
	c.extendedOps[0x8A] = (*CPU_X86).opJP_rel16
	c.extendedOps[0x8B] = (*CPU_X86).opJNP_rel16
	c.extendedOps[0x8C] = (*CPU_X86).opJL_rel16
	c.extendedOps[0x8D] = (*CPU_X86).opJNL_rel16
	c.extendedOps[0x8E] = (*CPU_X86).opJLE_rel16
	c.extendedOps[0x8F] = (*CPU_X86).opJNLE_rel16

	// 0x90-0x9F: SETcc
	c.extendedOps[0x90] = (*CPU_X86).opSETO
	c.extendedOps[0x91] = (*CPU_X86).opSETNO
	c.extendedOps[0x92] = (*CPU_X86).opSETB
	c.extendedOps[0x93] = (*CPU_X86).opSETNB
	c.extendedOps[0x94] = (*CPU_X86).opSETZ
	c.extendedOps[0x95] = (*CPU_X86).opSETNZ
	c.extendedOps[0x96] = (*CPU_X86).opSETBE
	c.extendedOps[0x97] = (*CPU_X86).opSETNBE
	c.extendedOps[0x98] = (*CPU_X86).opSETS
	c.extendedOps[0x99] = (*CPU_X86).opSETNS
	c.extendedOps[0x9A] = (*CPU_X86).opSETP
	c.extendedOps[0x9B] = (*CPU_X86).opSETNP
	c.extendedOps[0x9C] = (*CPU_X86).opSETL
	c.extendedOps[0x9D] = (*CPU_X86).opSETNL
	c.extendedOps[0x9E] = (*CPU_X86).opSETLE
	c.extendedOps[0x9F] = (*CPU_X86).opSETNLE

	// 0xA0-0xA1: PUSH/POP FS
	c.extendedOps[0xA0] = (*CPU_X86).opPUSH_FS
	c.extendedOps[0xA1] = (*CPU_X86).opPOP_FS

	// 0xA2: CPUID
	c.extendedOps[0xA2] = (*CPU_X86).opCPUID

	// 0xA3: BT
	c.extendedOps[0xA3] = (*CPU_X86).opBT_Ev_Gv

	// 0xA4-0xA5: SHLD
	c.extendedOps[0xA4] = (*CPU_X86).opSHLD_Ev_Gv_Ib
	c.extendedOps[0xA5] = (*CPU_X86).opSHLD_Ev_Gv_CL

	// 0xA8-0xA9: PUSH/POP GS
	c.extendedOps[0xA8] = (*CPU_X86).opPUSH_GS
	c.extendedOps[0xA9] = (*CPU_X86).opPOP_GS

	// 0xAB: BTS
	c.extendedOps[0xAB] = (*CPU_X86).opBTS_Ev_Gv

	// 0xAC-0xAD: SHRD
	c.extendedOps[0xAC] = (*CPU_X86).opSHRD_Ev_Gv_Ib
	c.extendedOps[0xAD] = (*CPU_X86).opSHRD_Ev_Gv_CL

	// 0xAF: IMUL Gv,Ev
	c.extendedOps[0xAF] = (*CPU_X86).opIMUL_Gv_Ev

	// 0xB3: BTR
	c.extendedOps[0xB3] = (*CPU_X86).opBTR_Ev_Gv

	// 0xB6-0xB7: MOVZX
	c.extendedOps[0xB6] = (*CPU_X86).opMOVZX_Gv_Eb
	c.extendedOps[0xB7] = (*CPU_X86).opMOVZX_Gv_Ew

	// 0xBA: Grp8 (BT/BTS/BTR/BTC with immediate)
	c.extendedOps[0xBA] = (*CPU_X86).opGrp8_Ev_Ib

	// 0xBB: BTC
	c.extendedOps[0xBB] = (*CPU_X86).opBTC_Ev_Gv

	// 0xBC-0xBD: BSF/BSR
	c.extendedOps[0xBC] = (*CPU_X86).opBSF_Gv_Ev
	c.extendedOps[0xBD] = (*CPU_X86).opBSR_Gv_Ev

	// 0xBE-0xBF: MOVSX
	c.extendedOps[0xBE] = (*CPU_X86).opMOVSX_Gv_Eb
	c.extendedOps[0xBF] = (*CPU_X86).opMOVSX_Gv_Ew

	// 0x30-0x35: MSR and fast system call instructions
	c.extendedOps[0x30] = (*CPU_X86).opWRMSR
	c.extendedOps[0x31] = (*CPU_X86).opRDTSC
	c.extendedOps[0x32] = (*CPU_X86).opRDMSR
	c.extendedOps[0x34] = (*CPU_X86).opSYSENTER
	c.extendedOps[0x35] = (*CPU_X86).opSYSEXIT
}

// opTwoBytePrefix handles the 0x0F two-byte opcode prefix.
func (c *CPU_X86) opTwoBytePrefix() {
	opcode := c.fetch8()
	if handler := c.extendedOps[opcode]; handler != nil {
		handler(c)
	} else {
		raiseFault(ErrUndefinedOpcode, "extended opcode 0x0F 0x%02X at EIP=0x%08X", opcode, c.EIP-1)
	}
}
