package sigmatch

import (
	"cmp"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/maxgio92/sigmatch/internal/logger"
)

// signatureSections are the sections whose symbols get signatures.
var signatureSections = []string{".text", ".data", ".rodata", ".bss"}

type buildConfig struct {
	workers int
}

// BuildOption configures BuildLibrary.
type BuildOption func(*buildConfig)

// WithWorkers sets the number of objects processed concurrently. Values
// <= 0 select one worker per CPU.
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		c.workers = n
	}
}

// BuildLibrary derives the signature library from a feed of relocatable
// objects. The output keeps the input order. Malformed or unsupported
// relocations are logged and dropped; they never abort an object.
//
// After every object is processed each symbol's DuplicateChecksum flag is
// set when another symbol anywhere in the library has the same full
// checksum.
func BuildLibrary(records []ObjectRecord, opts ...BuildOption) Library {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	lib := make(Library, len(records))

	p := newPool(cfg.workers)
	for i := range records {
		p.Submit(func() {
			lib[i] = buildObject(&records[i])
		})
	}
	p.Wait()

	counts := make(map[uint32]int)
	for _, obj := range lib {
		for _, sec := range obj.Sections {
			for _, sym := range sec.Symbols {
				counts[sym.ChecksumFull]++
			}
		}
	}
	for o := range lib {
		for s := range lib[o].Sections {
			syms := lib[o].Sections[s].Symbols
			for i := range syms {
				syms[i].DuplicateChecksum = counts[syms[i].ChecksumFull] > 1
			}
		}
	}

	return lib
}

// ObjectName strips the directory and extension from an object file name.
func ObjectName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(name, path.Ext(name))
}

func buildObject(rec *ObjectRecord) SigObject {
	obj := SigObject{File: ObjectName(rec.Name)}

	for i := range rec.Sections {
		sec := &rec.Sections[i]
		if !slices.Contains(signatureSections, sec.Name) {
			continue
		}

		sigSec := SigSection{Name: sec.Name, Size: sec.Size}
		for _, sym := range rec.Symbols {
			if !eligible(sym, sec) {
				continue
			}
			sigSec.Symbols = append(sigSec.Symbols, buildSymbol(rec, obj.File, sec, sym))
		}
		obj.Sections = append(obj.Sections, sigSec)
	}

	return obj
}

// eligible reports whether sym gets a signature in sec. The section's own
// symbol is excluded: it spans every relocation in the section and would
// neutralize them all as its own.
func eligible(sym SymbolRecord, sec *SectionRecord) bool {
	if sym.Section != sec.Index {
		return false
	}
	if sym.Type == elf.STT_SECTION || sym.Type == elf.STT_FILE {
		return false
	}
	if sym.Name == "" || sym.Name == sec.Name {
		return false
	}
	// zero-size weak aliases still serve as lookup anchors
	if sym.Size == 0 && sym.Binding != elf.STB_WEAK {
		return false
	}
	return true
}

func buildSymbol(rec *ObjectRecord, file string, sec *SectionRecord, sym SymbolRecord) SigSymbol {
	sigSym := SigSymbol{
		Name:   sym.Name,
		Offset: sym.Value,
		Size:   sym.Size,
	}

	var lastHi16 uint32
	end := uint64(sym.Value) + uint64(sym.Size)

	for i, rel := range sec.Relocations {
		if rel.Offset < sym.Value || uint64(rel.Offset) >= end {
			continue
		}
		if rel.Symbol < 0 || rel.Symbol >= len(rec.Symbols) {
			continue
		}
		target := rec.Symbols[rel.Symbol]

		addend, err := relocationAddend(sec, i, &lastHi16)
		if err != nil {
			logger.Logf("SIG", "%s: %s: %v", file, sym.Name, err)
			continue
		}

		sigRel := SigRelocation{
			Kind:   rel.Kind,
			Offset: rel.Offset - sym.Value,
			Addend: addend,
			Name:   target.Name,
		}
		if target.Binding == elf.STB_LOCAL {
			sigRel.Local = true
			if tsec := rec.section(target.Section); tsec != nil {
				sigRel.Name = tsec.Name
			}
			// named locals are addressed relative to themselves, fold them
			// back onto the section start
			if target.Type != elf.STT_SECTION {
				sigRel.Addend += target.Value
			}
		}
		sigSym.Relocations = append(sigSym.Relocations, sigRel)
	}

	slices.SortStableFunc(sigSym.Relocations, func(a, b SigRelocation) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	switch {
	case sec.NoBits:
		sigSym.NoData = true
	case end > uint64(len(sec.Data)):
		logger.Logf("SIG", "%s: %s: 0x%x bytes at 0x%x run past %s", file, sym.Name, sym.Size, sym.Value, sec.Name)
		sigSym.NoData = true
	default:
		code := sec.Data[sym.Value:end]
		sigSym.ChecksumShort = ShortChecksum(code, sigSym.Relocations)
		sigSym.ChecksumFull = FullChecksum(code, sigSym.Relocations)
	}

	return sigSym
}

// relocationAddend computes the addend encoded by relocation i of sec.
// lastHi16 carries the most recent hi16/lo16 pair between calls so that bare
// lo16 entries following a shared hi16 reuse its address.
func relocationAddend(sec *SectionRecord, i int, lastHi16 *uint32) (uint32, error) {
	rel := sec.Relocations[i]

	switch rel.Kind {
	case RelocHi16:
		w, ok := word(sec.Data, rel.Offset)
		if !ok {
			return 0, fmt.Errorf("hi16 at 0x%x: %w", rel.Offset, ErrOutOfRange)
		}
		if i+1 >= len(sec.Relocations) || sec.Relocations[i+1].Kind != RelocLo16 {
			return 0, fmt.Errorf("hi16 at 0x%x: %w", rel.Offset, errUnpairedHi16)
		}
		next := sec.Relocations[i+1]
		lo, ok := word(sec.Data, next.Offset)
		if !ok {
			return 0, fmt.Errorf("lo16 at 0x%x: %w", next.Offset, ErrOutOfRange)
		}
		*lastHi16 = combineHiLo(w, lo)
		return *lastHi16, nil
	case RelocLo16:
		return *lastHi16, nil
	case RelocTarg26:
		w, ok := word(sec.Data, rel.Offset)
		if !ok {
			return 0, fmt.Errorf("targ26 at 0x%x: %w", rel.Offset, ErrOutOfRange)
		}
		return (w & 0x03FFFFFF) << 2, nil
	default:
		return 0, fmt.Errorf("%s at 0x%x: %w", rel.Kind, rel.Offset, errUnsupportedKind)
	}
}

// word reads the big-endian word at off.
func word(b []byte, off uint32) (uint32, bool) {
	if uint64(off)+4 > uint64(len(b)) {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[off:]), true
}

// combineHiLo joins the immediates of a hi16/lo16 instruction pair into the
// address they load; the low half is sign-extended.
func combineHiLo(hi, lo uint32) uint32 {
	return (hi&0xFFFF)<<16 + uint32(int32(int16(lo&0xFFFF)))
}
