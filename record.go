package sigmatch

import "debug/elf"

// ObjectRecord is one relocatable object as delivered by an object/archive
// reader: its sections with their bytes and relocation tables plus the
// object's symbol table.
type ObjectRecord struct {
	Name     string
	Sections []SectionRecord
	Symbols  []SymbolRecord
}

// SectionRecord is a section of an ObjectRecord. Index is the section's
// header index, the value symbols refer to. NoBits sections (.bss) carry a
// Size but no Data.
type SectionRecord struct {
	Index       int
	Name        string
	NoBits      bool
	Size        uint32
	Data        []byte
	Relocations []RelocationRecord
}

// RelocationRecord is one relocation table entry, in table order. Offset is
// relative to the start of the relocated section and Symbol indexes the
// object's symbol table (-1 when the entry references no symbol).
type RelocationRecord struct {
	Offset uint32
	Kind   RelocationKind
	Symbol int
}

// SymbolRecord is one symbol table entry.
type SymbolRecord struct {
	Name    string
	Section int
	Type    elf.SymType
	Binding elf.SymBind
	Size    uint32
	Value   uint32
}

// section returns the section record with the given header index, or nil.
func (o *ObjectRecord) section(index int) *SectionRecord {
	for i := range o.Sections {
		if o.Sections[i].Index == index {
			return &o.Sections[i]
		}
	}
	return nil
}
