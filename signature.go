package sigmatch

import "debug/elf"

// RelocationKind represents the MIPS relocation type recorded for a
// signature relocation.
type RelocationKind string

// Recognized relocation kinds. Only Targ26, Hi16 and Lo16 are masked and
// resolved; the rest are carried for completeness.
const (
	RelocAddr32    RelocationKind = "addr32"
	RelocAddrRel32 RelocationKind = "addrrel32"
	RelocTarg26    RelocationKind = "targ26"
	RelocHi16      RelocationKind = "hi16"
	RelocLo16      RelocationKind = "lo16"
	RelocGpRel16   RelocationKind = "gprel16"
	RelocLiteral   RelocationKind = "literal"
	RelocGot16     RelocationKind = "got16"
	RelocCall16    RelocationKind = "call16"
	RelocNone      RelocationKind = "none"
)

// RelocationKindFromELF maps an ELF MIPS relocation type to its kind.
// Types outside the recognized set map to RelocNone.
func RelocationKindFromELF(t elf.R_MIPS) RelocationKind {
	switch t {
	case elf.R_MIPS_32:
		return RelocAddr32
	case elf.R_MIPS_REL32:
		return RelocAddrRel32
	case elf.R_MIPS_26:
		return RelocTarg26
	case elf.R_MIPS_HI16:
		return RelocHi16
	case elf.R_MIPS_LO16:
		return RelocLo16
	case elf.R_MIPS_GPREL16:
		return RelocGpRel16
	case elf.R_MIPS_LITERAL:
		return RelocLiteral
	case elf.R_MIPS_GOT16:
		return RelocGot16
	case elf.R_MIPS_CALL16:
		return RelocCall16
	default:
		return RelocNone
	}
}

// Valid reports whether k is one of the recognized kinds.
func (k RelocationKind) Valid() bool {
	switch k {
	case RelocAddr32, RelocAddrRel32, RelocTarg26, RelocHi16, RelocLo16,
		RelocGpRel16, RelocLiteral, RelocGot16, RelocCall16, RelocNone:
		return true
	}
	return false
}

// Masked reports whether relocations of this kind patch instruction bits that
// must be neutralized before checksumming.
func (k RelocationKind) Masked() bool {
	return k == RelocTarg26 || k == RelocHi16 || k == RelocLo16
}

// SigRelocation is a relocation captured in a signature. Offset is relative
// to the start of the owning symbol. Name is the target section name when
// Local is set, the target symbol name otherwise.
type SigRelocation struct {
	Kind   RelocationKind
	Offset uint32
	Addend uint32
	Local  bool
	Name   string
}

// SigSymbol is a symbol signature: its location inside the home section,
// the two-tier checksum of its relocation-neutralized bytes and the
// relocations needed to re-neutralize candidate bytes.
//
// NoData marks a symbol whose bytes were not in the object (.bss, or a
// range past the section data). Its checksums are zero and it is never
// tested against an image.
type SigSymbol struct {
	Name              string
	Offset            uint32
	Size              uint32
	ChecksumShort     uint32
	ChecksumFull      uint32
	DuplicateChecksum bool
	NoData            bool
	Relocations       []SigRelocation
}

// SigSection groups the signature symbols of one object section.
type SigSection struct {
	Name    string
	Size    uint32
	Symbols []SigSymbol
}

// SigObject holds the signatures extracted from one relocatable object.
// File is the object name without extension.
type SigObject struct {
	File     string
	Sections []SigSection
}

// Section returns the section with the given name, or nil.
func (o *SigObject) Section(name string) *SigSection {
	for i := range o.Sections {
		if o.Sections[i].Name == name {
			return &o.Sections[i]
		}
	}
	return nil
}

// Library is the ordered signature library. Once built it is treated as
// read-only input to scanning.
type Library []SigObject

// NumSymbols returns the total number of signature symbols.
func (l Library) NumSymbols() int {
	n := 0
	for _, obj := range l {
		for _, sec := range obj.Sections {
			n += len(sec.Symbols)
		}
	}
	return n
}
