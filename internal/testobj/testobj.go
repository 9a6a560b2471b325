// Package testobj builds the object files, archives and ROM images used as
// fixtures by the package tests. Everything is synthesized in memory.
package testobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

const (
	ehdrSize = 52
	shdrSize = 40
	symSize  = 16
	relSize  = 8
)

// Section is a section of a synthesized object. NoBits sections use Size
// instead of Data.
type Section struct {
	Name   string
	Type   elf.SectionType
	Flags  elf.SectionFlag
	Data   []byte
	Size   uint32
	Relocs []Reloc
}

// Symbol is a symbol table entry. Section is an ELF section index: the
// Sections of an Object are numbered from 1.
type Symbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Type    elf.SymType
	Bind    elf.SymBind
	Section elf.SectionIndex
}

// Reloc is a REL entry. Symbol is an ELF symbol index: the Symbols of an
// Object are numbered from 1.
type Reloc struct {
	Offset uint32
	Symbol uint32
	Type   elf.R_MIPS
}

// Object is a relocatable ELF32 object. Local symbols must come first.
type Object struct {
	Machine  elf.Machine
	Sections []Section
	Symbols  []Symbol
}

type shdr struct {
	name, typ, flags, addr, off, size, link, info, align, entsize uint32
}

type strtab struct {
	bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(s.Len())
	s.WriteString(name)
	s.WriteByte(0)
	return off
}

func align4(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

// Bytes encodes the object as a big-endian ELF32 relocatable file. Section
// headers follow the user sections with one .rel section per relocated
// section, then .symtab, .strtab and .shstrtab.
func (o *Object) Bytes() []byte {
	machine := o.Machine
	if machine == elf.EM_NONE {
		machine = elf.EM_MIPS
	}

	var (
		buf     bytes.Buffer
		headers = []shdr{{}}
		shstr   = newStrtab()
	)
	buf.Write(make([]byte, ehdrSize))

	for _, s := range o.Sections {
		align4(&buf)
		h := shdr{
			name:  shstr.add(s.Name),
			typ:   uint32(s.Type),
			flags: uint32(s.Flags),
			off:   uint32(buf.Len()),
			size:  uint32(len(s.Data)),
			align: 4,
		}
		if s.Type == elf.SHT_NOBITS {
			h.size = s.Size
		} else {
			buf.Write(s.Data)
		}
		headers = append(headers, h)
	}

	nrel := 0
	for _, s := range o.Sections {
		if len(s.Relocs) > 0 {
			nrel++
		}
	}
	symtabIndex := uint32(1 + len(o.Sections) + nrel)

	for i, s := range o.Sections {
		if len(s.Relocs) == 0 {
			continue
		}
		align4(&buf)
		off := buf.Len()
		for _, r := range s.Relocs {
			var e [relSize]byte
			binary.BigEndian.PutUint32(e[0:], r.Offset)
			binary.BigEndian.PutUint32(e[4:], r.Symbol<<8|uint32(r.Type)&0xFF)
			buf.Write(e[:])
		}
		headers = append(headers, shdr{
			name:    shstr.add(".rel" + s.Name),
			typ:     uint32(elf.SHT_REL),
			off:     uint32(off),
			size:    uint32(buf.Len() - off),
			link:    symtabIndex,
			info:    uint32(i + 1),
			align:   4,
			entsize: relSize,
		})
	}

	str := newStrtab()
	firstGlobal := uint32(len(o.Symbols) + 1)
	align4(&buf)
	symOff := buf.Len()
	buf.Write(make([]byte, symSize))
	for i, s := range o.Symbols {
		if s.Bind != elf.STB_LOCAL && firstGlobal > uint32(i+1) {
			firstGlobal = uint32(i + 1)
		}
		var e [symSize]byte
		binary.BigEndian.PutUint32(e[0:], str.add(s.Name))
		binary.BigEndian.PutUint32(e[4:], s.Value)
		binary.BigEndian.PutUint32(e[8:], s.Size)
		e[12] = elf.ST_INFO(s.Bind, s.Type)
		binary.BigEndian.PutUint16(e[14:], uint16(s.Section))
		buf.Write(e[:])
	}
	headers = append(headers, shdr{
		name:    shstr.add(".symtab"),
		typ:     uint32(elf.SHT_SYMTAB),
		off:     uint32(symOff),
		size:    uint32(buf.Len() - symOff),
		link:    symtabIndex + 1,
		info:    firstGlobal,
		align:   4,
		entsize: symSize,
	})

	headers = append(headers, shdr{
		name:  shstr.add(".strtab"),
		typ:   uint32(elf.SHT_STRTAB),
		off:   uint32(buf.Len()),
		size:  uint32(str.Len()),
		align: 1,
	})
	buf.Write(str.Bytes())

	shstrHeader := shdr{
		name:  shstr.add(".shstrtab"),
		typ:   uint32(elf.SHT_STRTAB),
		off:   uint32(buf.Len()),
		size:  uint32(shstr.Len()),
		align: 1,
	}
	headers = append(headers, shstrHeader)
	buf.Write(shstr.Bytes())

	align4(&buf)
	shoff := buf.Len()
	for _, h := range headers {
		var e [shdrSize]byte
		for i, v := range []uint32{h.name, h.typ, h.flags, h.addr, h.off, h.size, h.link, h.info, h.align, h.entsize} {
			binary.BigEndian.PutUint32(e[4*i:], v)
		}
		buf.Write(e[:])
	}

	out := buf.Bytes()
	copy(out, "\x7fELF")
	out[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	out[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	be := binary.BigEndian
	be.PutUint16(out[16:], uint16(elf.ET_REL))
	be.PutUint16(out[18:], uint16(machine))
	be.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	be.PutUint32(out[32:], uint32(shoff))
	be.PutUint16(out[40:], ehdrSize)
	be.PutUint16(out[46:], shdrSize)
	be.PutUint16(out[48:], uint16(len(headers)))
	be.PutUint16(out[50:], uint16(len(headers)-1))

	return out
}

// Member is a file stored in an archive.
type Member struct {
	Name string
	Data []byte
}

// Archive encodes members as a GNU ar archive with an empty symbol table.
// Names longer than 15 bytes go to the long name table.
func Archive(members ...Member) []byte {
	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")

	write := func(name string, data []byte) {
		fmt.Fprintf(&buf, "%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "644", len(data))
		buf.Write(data)
		if len(data)%2 == 1 {
			buf.WriteByte('\n')
		}
	}

	write("/", make([]byte, 4))

	var long bytes.Buffer
	names := make([]string, len(members))
	for i, m := range members {
		if len(m.Name) > 15 {
			names[i] = fmt.Sprintf("/%d", long.Len())
			long.WriteString(m.Name + "/\n")
			continue
		}
		names[i] = m.Name + "/"
	}
	if long.Len() > 0 {
		write("//", long.Bytes())
	}

	for i, m := range members {
		write(names[i], m.Data)
	}

	return buf.Bytes()
}
