// Package elfobj reads big-endian MIPS relocatable objects, bare or stored
// in ar archives, into the record feed consumed by sigmatch.BuildLibrary.
package elfobj

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/maxgio92/sigmatch"
	"github.com/maxgio92/sigmatch/internal/logger"
)

// ErrNotMIPS is returned for ELF files that are not 32-bit big-endian MIPS.
var ErrNotMIPS = errors.New("not a 32-bit big-endian MIPS object")

const (
	relSize  = 8
	relaSize = 12
)

// ReadObject parses a relocatable ELF object. Every allocated section is
// returned with its data and the entries of the SHT_REL (or SHT_RELA) section
// relocating it.
func ReadObject(name string, data []byte) (sigmatch.ObjectRecord, error) {
	rec := sigmatch.ObjectRecord{Name: name}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return rec, fmt.Errorf("failed to parse ELF file %s: %w", name, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2MSB || f.Machine != elf.EM_MIPS {
		return rec, fmt.Errorf("%s: %s %s %s: %w", name, f.Class, f.Data, f.Machine, ErrNotMIPS)
	}

	// debug/elf drops the null symbol, so ELF symbol index i is syms[i-1].
	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return rec, fmt.Errorf("failed to read symbols of %s: %w", name, err)
	}
	for _, s := range syms {
		rec.Symbols = append(rec.Symbols, sigmatch.SymbolRecord{
			Name:    s.Name,
			Section: int(s.Section),
			Type:    elf.ST_TYPE(s.Info),
			Binding: elf.ST_BIND(s.Info),
			Size:    uint32(s.Size),
			Value:   uint32(s.Value),
		})
	}

	index := make(map[int]int)
	for i, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || (s.Type != elf.SHT_PROGBITS && s.Type != elf.SHT_NOBITS) {
			continue
		}
		sec := sigmatch.SectionRecord{
			Index:  i,
			Name:   s.Name,
			NoBits: s.Type == elf.SHT_NOBITS,
			Size:   uint32(s.Size),
		}
		if !sec.NoBits {
			if sec.Data, err = s.Data(); err != nil {
				return rec, fmt.Errorf("failed to read section %s of %s: %w", s.Name, name, err)
			}
		}
		index[i] = len(rec.Sections)
		rec.Sections = append(rec.Sections, sec)
	}

	for _, s := range f.Sections {
		if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
			continue
		}
		target, ok := index[int(s.Info)]
		if !ok {
			continue
		}
		b, err := s.Data()
		if err != nil {
			return rec, fmt.Errorf("failed to read relocations %s of %s: %w", s.Name, name, err)
		}
		rec.Sections[target].Relocations = append(rec.Sections[target].Relocations, decodeRelocations(f, s, b, len(syms))...)
	}

	return rec, nil
}

// decodeRelocations decodes a REL or RELA table. RELA addends are not
// used: the addend is always read back from the relocated word.
func decodeRelocations(f *elf.File, s *elf.Section, b []byte, nsyms int) []sigmatch.RelocationRecord {
	entSize := relSize
	if s.Type == elf.SHT_RELA {
		entSize = relaSize
	}

	var rels []sigmatch.RelocationRecord
	for off := 0; off+entSize <= len(b); off += entSize {
		info := f.ByteOrder.Uint32(b[off+4:])
		typ := elf.R_MIPS(elf.R_TYPE32(info))
		sym := int(elf.R_SYM32(info)) - 1
		if sym >= nsyms {
			logger.Logf("ELF", "%s: relocation at 0x%x references symbol %d of %d", s.Name, f.ByteOrder.Uint32(b[off:]), sym+1, nsyms)
			sym = -1
		}

		kind := sigmatch.RelocationKindFromELF(typ)
		if kind == sigmatch.RelocNone && typ != elf.R_MIPS_NONE {
			logger.Logf("ELF", "%s: unrecognized relocation type %s", s.Name, typ)
		}

		rels = append(rels, sigmatch.RelocationRecord{
			Offset: f.ByteOrder.Uint32(b[off:]),
			Kind:   kind,
			Symbol: sym,
		})
	}
	return rels
}

// Load reads an object file or an archive of object files. Archive members
// that are not MIPS objects are logged and skipped.
func Load(name string, data []byte) ([]sigmatch.ObjectRecord, error) {
	if !IsArchive(data) {
		rec, err := ReadObject(path.Base(name), data)
		if err != nil {
			return nil, err
		}
		return []sigmatch.ObjectRecord{rec}, nil
	}

	members, err := ReadArchive(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", name, err)
	}

	var records []sigmatch.ObjectRecord
	for _, m := range members {
		if path.Ext(m.Name) != ".o" {
			logger.Logf("AR", "%s: skipping member %s", name, m.Name)
			continue
		}
		rec, err := ReadObject(m.Name, m.Data)
		if err != nil {
			logger.Logf("AR", "%s: %v", name, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadFile is Load on the contents of the named file.
func LoadFile(name string) ([]sigmatch.ObjectRecord, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return Load(name, data)
}
