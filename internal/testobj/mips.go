package testobj

import "encoding/binary"

// MIPS general purpose registers used by the fixtures.
const (
	Zero = 0
	V0   = 2
	A0   = 4
	SP   = 29
	RA   = 31
)

// Fixed instruction encodings.
const (
	Nop  = 0x00000000
	JrRa = 0x03E00008
)

// Lui encodes lui rt, imm.
func Lui(rt, imm uint32) uint32 {
	return 0x0F<<26 | rt<<16 | imm&0xFFFF
}

// Addiu encodes addiu rt, rs, imm.
func Addiu(rt, rs uint32, imm int16) uint32 {
	return 0x09<<26 | rs<<21 | rt<<16 | uint32(uint16(imm))
}

// Lw encodes lw rt, off(base).
func Lw(rt, base uint32, off int16) uint32 {
	return 0x23<<26 | base<<21 | rt<<16 | uint32(uint16(off))
}

// Addu encodes addu rd, rs, rt.
func Addu(rd, rs, rt uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | 0x21
}

// Jal encodes jal target. Only the low 28 bits of target are kept.
func Jal(target uint32) uint32 {
	return 0x03<<26 | (target>>2)&0x03FFFFFF
}

// Words encodes ws big-endian.
func Words(ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.BigEndian.PutUint32(b[4*i:], w)
	}
	return b
}
