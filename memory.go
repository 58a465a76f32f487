// memory.go - flat physical memory backing the emulated machine.
//
// Grounded on MachineBus's WithFault read/write pattern: every access is
// bounds-checked against addr+width, never against addr alone, which avoids
// the wraparound that a naive "addr > size" check would miss for an access
// that starts in-bounds and runs off the end.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "encoding/binary"

// Memory is flat physical RAM. It has no notion of segmentation or I/O
// ports; those are layered on top by the CPU and IOBus respectively.
type Memory struct {
	bytes []byte
}

// NewMemory allocates a zeroed memory of the given size in bytes.
func NewMemory(size int) *Memory {
	return &Memory{bytes: make([]byte, size)}
}

func (m *Memory) Size() int { return len(m.bytes) }

func (m *Memory) checkBounds(addr uint32, width int) {
	if uint64(addr)+uint64(width) > uint64(len(m.bytes)) {
		raiseFault(ErrOutOfBounds, "address 0x%X width %d exceeds memory size 0x%X", addr, width, len(m.bytes))
	}
}

func (m *Memory) ReadU8(addr uint32) byte {
	m.checkBounds(addr, 1)
	return m.bytes[addr]
}

func (m *Memory) WriteU8(addr uint32, v byte) {
	m.checkBounds(addr, 1)
	m.bytes[addr] = v
}

func (m *Memory) ReadU16(addr uint32) uint16 {
	m.checkBounds(addr, 2)
	return binary.LittleEndian.Uint16(m.bytes[addr : addr+2])
}

func (m *Memory) WriteU16(addr uint32, v uint16) {
	m.checkBounds(addr, 2)
	binary.LittleEndian.PutUint16(m.bytes[addr:addr+2], v)
}

func (m *Memory) ReadU32(addr uint32) uint32 {
	m.checkBounds(addr, 4)
	return binary.LittleEndian.Uint32(m.bytes[addr : addr+4])
}

func (m *Memory) WriteU32(addr uint32, v uint32) {
	m.checkBounds(addr, 4)
	binary.LittleEndian.PutUint32(m.bytes[addr:addr+4], v)
}

// ReadBytes returns a copy of length bytes starting at addr.
func (m *Memory) ReadBytes(addr uint32, length int) []byte {
	m.checkBounds(addr, length)
	out := make([]byte, length)
	copy(out, m.bytes[addr:uint32(length)+addr])
	return out
}

// WriteBytes copies data into memory starting at addr.
func (m *Memory) WriteBytes(addr uint32, data []byte) {
	m.checkBounds(addr, len(data))
	copy(m.bytes[addr:addr+uint32(len(data))], data)
}

// Fill sets length bytes starting at addr to value.
func (m *Memory) Fill(addr uint32, length int, value byte) {
	m.checkBounds(addr, length)
	region := m.bytes[addr : addr+uint32(length)]
	for i := range region {
		region[i] = value
	}
}

// Clear zeroes the entire memory.
func (m *Memory) Clear() {
	for i := range m.bytes {
		m.bytes[i] = 0
	}
}
