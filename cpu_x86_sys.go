// cpu_x86_sys.go - protected-mode system instructions: descriptor table
// loads, task/LDT register loads, control register access, CPUID, MSR
// access and the fast SYSENTER/SYSEXIT system-call pair.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// =============================================================================
// Group 6 (0F 00): SLDT/STR/LLDT/LTR/VERR/VERW
// =============================================================================

func (c *CPU_X86) opGrp6() {
	c.fetchModRM()
	op := c.getModRMReg()

	switch op {
	case 0: // SLDT Ew
		c.writeRM16(c.LDTR.Selector)
	case 1: // STR Ew
		c.writeRM16(c.TR.Selector)
	case 2: // LLDT Ew
		if c.Mode() != ModeProtected {
			raiseFault(ErrPrivilegedInstruction, "LLDT requires protected mode")
		}
		selector := c.readRM16()
		c.loadDescriptorTableRegister(&c.LDTR, selector)
	case 3: // LTR Ew
		if c.Mode() != ModeProtected {
			raiseFault(ErrPrivilegedInstruction, "LTR requires protected mode")
		}
		selector := c.readRM16()
		c.loadDescriptorTableRegister(&c.TR, selector)
	case 4, 5: // VERR/VERW Ew - segment access validity check
		selector := c.readRM16()
		c.setFlag(x86FlagZF, c.selectorVerifies(selector, op == 5))
	default:
		raiseFault(ErrUndefinedOpcode, "undefined Grp6 extension")
	}
	c.Cycles += 5
}

// loadDescriptorTableRegister loads LDTR/TR from the GDT entry named by
// selector, mirroring loadSeg's descriptor read but into a standalone cache
// rather than one of the six segment registers.
func (c *CPU_X86) loadDescriptorTableRegister(cache *SegCache, selector uint16) {
	index := uint32(selector >> 3)
	if index == 0 {
		*cache = SegCache{Selector: selector}
		return
	}
	descOff := index * 8
	if descOff+8 > c.GDTR.Limit+1 {
		raiseFault(ErrSegmentFault, "selector 0x%04X outside GDT limit 0x%X", selector, c.GDTR.Limit)
	}
	addr := c.GDTR.Base + descOff
	low := c.mem.ReadU32(addr)
	high := c.mem.ReadU32(addr + 4)

	limit := (low & 0xFFFF) | (high & 0x000F0000)
	base := ((low >> 16) & 0xFFFF) | ((high & 0xFF) << 16) | (high & 0xFF000000)
	access := byte((high >> 8) & 0xFF)
	if high&0x00800000 != 0 {
		limit = (limit << 12) | 0xFFF
	}

	*cache = SegCache{
		Selector: selector,
		Base:     base,
		Limit:    limit,
		Present:  access&0x80 != 0,
		DPL:      (access >> 5) & 3,
	}
}

// selectorVerifies reports whether the descriptor named by selector could be
// loaded into a segment register for the given access type, without
// actually loading it. A null selector never verifies.
func (c *CPU_X86) selectorVerifies(selector uint16, forWrite bool) bool {
	if selector>>3 == 0 {
		return false
	}
	tableBase, tableLimit := c.GDTR.Base, c.GDTR.Limit
	if selector&4 != 0 {
		tableBase, tableLimit = c.LDTR.Base, c.LDTR.Limit
	}
	descOff := uint32(selector>>3) * 8
	if descOff+8 > tableLimit+1 {
		return false
	}
	high := c.mem.ReadU32(tableBase + descOff + 4)
	access := byte((high >> 8) & 0xFF)
	if access&0x80 == 0 {
		return false
	}
	writable := access&0x02 != 0
	if forWrite {
		return writable
	}
	return true
}

// =============================================================================
// Group 7 (0F 01): SGDT/SIDT/LGDT/LIDT/SMSW/LMSW (and INVLPG, not modeled)
// =============================================================================

func (c *CPU_X86) opGrp7() {
	c.fetchModRM()
	op := c.getModRMReg()

	switch op {
	case 0: // SGDT Ms
		c.storeDTR(c.GDTR)
	case 1: // SIDT Ms
		c.storeDTR(c.IDTR)
	case 2: // LGDT Ms
		c.GDTR = c.loadDTR()
	case 3: // LIDT Ms
		c.IDTR = c.loadDTR()
	case 4: // SMSW Ew
		c.writeRM16(uint16(c.CR0))
	case 6: // LMSW Ew
		msw := c.readRM16()
		c.CR0 = (c.CR0 &^ 0xF) | uint32(msw&0xF)
	default:
		raiseFault(ErrUndefinedOpcode, "undefined Grp7 extension")
	}
	c.Cycles += 5
}

// storeDTR writes a 6-byte pseudo-descriptor (2-byte limit, 4-byte base) to
// the memory operand addressed by the current ModR/M.
func (c *CPU_X86) storeDTR(d DTR) {
	addr := c.getEffectiveAddress()
	seg := c.lastEASeg
	c.writeSeg16(seg, addr, uint16(d.Limit))
	c.writeSeg32(seg, addr+2, d.Base)
}

// loadDTR reads a 6-byte pseudo-descriptor from the memory operand.
func (c *CPU_X86) loadDTR() DTR {
	addr := c.getEffectiveAddress()
	seg := c.lastEASeg
	limit := c.readSeg16(seg, addr)
	base := c.readSeg32(seg, addr+2)
	return DTR{Base: base, Limit: uint32(limit)}
}

// =============================================================================
// CPUID, RDTSC, RDMSR/WRMSR, SYSENTER/SYSEXIT
// =============================================================================

// opCPUID reports a minimal i686-class feature set: a vendor string and
// family/model/stepping in EAX=1, nothing for any other leaf.
func (c *CPU_X86) opCPUID() {
	switch c.EAX {
	case 0:
		c.EAX = 1
		c.EBX = 0x756E6547 // "Genu"
		c.EDX = 0x49656E69 // "ineI"
		c.ECX = 0x6C65746E // "ntel"
	case 1:
		c.EAX = 0x00000633 // family 6, model 3, stepping 3 (i686-class)
		c.EBX = 0
		c.ECX = 0
		c.EDX = 0x00000001 // FPU present, nothing else
	default:
		c.EAX, c.EBX, c.ECX, c.EDX = 0, 0, 0, 0
	}
	c.Cycles += 10
}

// opRDTSC reads the free-running cycle counter into EDX:EAX.
func (c *CPU_X86) opRDTSC() {
	c.EAX = uint32(c.tsc)
	c.EDX = uint32(c.tsc >> 32)
	c.Cycles += 1
}

func (c *CPU_X86) opRDMSR() {
	v := c.msr[c.ECX]
	c.EAX = uint32(v)
	c.EDX = uint32(v >> 32)
	c.Cycles += 10
}

func (c *CPU_X86) opWRMSR() {
	v := uint64(c.EAX) | (uint64(c.EDX) << 32)
	c.msr[c.ECX] = v
	c.Cycles += 10
}

// opSYSENTER performs the fast system-call entry: CS/ESP/EIP are loaded from
// the IA32_SYSENTER_* MSRs rather than an IDT gate, per the original
// protocol's intent to skip descriptor-table lookups on the hot path.
func (c *CPU_X86) opSYSENTER() {
	c.loadSeg(x86SegCS, uint16(c.msr[msrSysenterCS]))
	c.loadSeg(x86SegSS, uint16(c.msr[msrSysenterCS])+8)
	c.ESP = uint32(c.msr[msrSysenterESP])
	c.EIP = uint32(c.msr[msrSysenterEIP])
	c.Cycles += 10
}

// opSYSEXIT returns from a SYSENTER call to ring 3 using ECX:EDX as the
// user-mode ESP:EIP pair, per the Intel-defined SYSENTER/SYSEXIT contract.
func (c *CPU_X86) opSYSEXIT() {
	c.loadSeg(x86SegCS, uint16(c.msr[msrSysenterCS])+16)
	c.loadSeg(x86SegSS, uint16(c.msr[msrSysenterCS])+24)
	c.ESP = c.ECX
	c.EIP = c.EDX
	c.Cycles += 10
}
