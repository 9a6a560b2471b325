package testobj

import (
	"debug/elf"
	"encoding/binary"
)

// Layout of the example object.
const (
	ExampleSize    = 0x1C
	ExampleHiOff   = 0x04
	ExampleLoOff   = 0x08
	Number0Value   = 1
	Number1Value   = 2
	ExampleSymbols = 8
)

// ExampleText is the .text of example.o before relocation:
//
//	int example(int x) { return x + number0 + 4; }
var ExampleText = []uint32{
	Addiu(SP, SP, -8),
	Lui(V0, 0),
	Lw(V0, V0, 0),
	Addu(V0, A0, V0),
	Addiu(V0, V0, 4),
	JrRa,
	Addiu(SP, SP, 8),
}

// ExampleObject returns example.o: example in .text loading the global
// number0 from .data through a hi16/lo16 pair, and number1 in .rodata.
func ExampleObject() *Object {
	return &Object{
		Sections: []Section{
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: Words(ExampleText...),
				Relocs: []Reloc{
					{Offset: ExampleHiOff, Symbol: 6, Type: elf.R_MIPS_HI16},
					{Offset: ExampleLoOff, Symbol: 6, Type: elf.R_MIPS_LO16},
				}},
			{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: Words(Number0Value)},
			{Name: ".bss", Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE},
			{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Data: Words(Number1Value)},
		},
		Symbols: []Symbol{
			{Name: "example.c", Type: elf.STT_FILE, Bind: elf.STB_LOCAL, Section: elf.SHN_ABS},
			{Type: elf.STT_SECTION, Bind: elf.STB_LOCAL, Section: 1},
			{Type: elf.STT_SECTION, Bind: elf.STB_LOCAL, Section: 2},
			{Type: elf.STT_SECTION, Bind: elf.STB_LOCAL, Section: 3},
			{Type: elf.STT_SECTION, Bind: elf.STB_LOCAL, Section: 4},
			{Name: "number0", Size: 4, Type: elf.STT_OBJECT, Bind: elf.STB_GLOBAL, Section: 2},
			{Name: "number1", Size: 4, Type: elf.STT_OBJECT, Bind: elf.STB_GLOBAL, Section: 4},
			{Name: "example", Size: ExampleSize, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: 1},
		},
	}
}

// LinkExample returns a ROM image of size bytes holding example.o's .text
// at textOff and .data at dataOff, relocated for an image whose offset 0 is
// loaded at headerSize.
func LinkExample(headerSize, textOff, dataOff uint32, size int) []byte {
	rom := make([]byte, size)

	number0 := headerSize + dataOff
	hi := number0 >> 16
	if number0&0x8000 != 0 {
		hi++
	}

	text := append([]uint32(nil), ExampleText...)
	text[ExampleHiOff/4] = Lui(V0, hi)
	text[ExampleLoOff/4] = Lw(V0, V0, int16(number0&0xFFFF))

	copy(rom[textOff:], Words(text...))
	binary.BigEndian.PutUint32(rom[dataOff:], Number0Value)

	return rom
}
