package sigmatch

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/maxgio92/sigmatch/internal/logger"
)

// Classification tells how a SectionGuess was derived.
type Classification int

// Classifications, in consolidation priority order.
const (
	NotRelocation Classification = iota
	LocalRelocation
	GlobalRelocation
)

func (c Classification) String() string {
	switch c {
	case NotRelocation:
		return "not-relocation"
	case LocalRelocation:
		return "local-relocation"
	case GlobalRelocation:
		return "global-relocation"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// SectionGuess is a provisional claim about where a section starts in the
// image, derived from one matched symbol.
type SectionGuess struct {
	ROMOffset      uint32
	SymbolOffset   uint32
	SectionOffset  uint32
	SectionVRAM    uint32
	SectionSize    uint32
	Classification Classification
	SymbolName     string
	SectionName    string
	ObjectName     string
}

// SymbolLocation is where a symbol is defined in the library.
type SymbolLocation struct {
	Object      string
	Section     string
	Offset      uint32
	SectionSize uint32
}

// SymbolTable maps symbol names to their location in a Library. It is built
// once and only read afterwards.
type SymbolTable struct {
	symbols map[string]SymbolLocation
}

// NewSymbolTable indexes every symbol of lib. When a name is defined more
// than once the first definition wins.
func NewSymbolTable(lib Library) *SymbolTable {
	t := &SymbolTable{symbols: make(map[string]SymbolLocation, lib.NumSymbols())}
	for _, obj := range lib {
		for _, sec := range obj.Sections {
			for _, sym := range sec.Symbols {
				if prev, ok := t.symbols[sym.Name]; ok {
					logger.Logf("MATCH", "%s redefined in %s %s, keeping %s %s", sym.Name, obj.File, sec.Name, prev.Object, prev.Section)
					continue
				}
				t.symbols[sym.Name] = SymbolLocation{
					Object:      obj.File,
					Section:     sec.Name,
					Offset:      sym.Offset,
					SectionSize: sec.Size,
				}
			}
		}
	}
	return t
}

// Lookup returns the location of the named symbol.
func (t *SymbolTable) Lookup(name string) (SymbolLocation, bool) {
	loc, ok := t.symbols[name]
	return loc, ok
}

// Len returns the number of indexed symbols.
func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

// relocTarget accumulates the address a group of relocations load.
type relocTarget struct {
	rel    SigRelocation
	hi     uint32
	lo     uint32
	jump   uint32
	hiSet  bool
	loSet  bool
	isJump bool
}

func (t *relocTarget) address() (uint32, bool) {
	switch {
	case t.hiSet:
		return t.hi + t.lo, true
	case t.isJump:
		return t.jump, true
	default:
		return 0, false
	}
}

// LocalKey names the target of a local relocation so that same-named
// sections of different objects stay apart.
func LocalKey(object, section string, addend uint32) string {
	return fmt.Sprintf("%s_%s_%04X", ObjectName(object), strings.TrimPrefix(section, "."), addend)
}

// Resolve derives section guesses from sym matched at romOffset. The
// relocated words are re-read from the image and grouped by target; each
// local target yields a LocalRelocation guess, each global target found in
// table a GlobalRelocation guess. One NotRelocation guess for the symbol's
// own section is always appended last.
func Resolve(img *BinaryImage, table *SymbolTable, obj *SigObject, sec *SigSection, sym *SigSymbol, romOffset uint32) ([]SectionGuess, error) {
	targets := make(map[string]*relocTarget)

	for _, rel := range sym.Relocations {
		if !rel.Kind.Masked() {
			continue
		}

		w, err := img.Word(romOffset + rel.Offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s relocation of %s: %w", rel.Kind, sym.Name, err)
		}

		key := rel.Name
		if rel.Local {
			key = LocalKey(obj.File, rel.Name, rel.Addend)
		}
		t, ok := targets[key]
		if !ok {
			t = &relocTarget{rel: rel}
			targets[key] = t
		}

		// Only the first hi16 and the first lo16 of a target count, later
		// references to the same address would add their halves again.
		switch rel.Kind {
		case RelocHi16:
			if !t.hiSet {
				t.hi = (w & 0xFFFF) << 16
				t.hiSet = true
				t.rel = rel
			}
		case RelocLo16:
			if !t.loSet {
				t.lo = uint32(int32(int16(w & 0xFFFF)))
				t.loSet = true
				t.rel = rel
			}
		case RelocTarg26:
			t.jump = img.HeaderSize&0xF0000000 + (w&0x03FFFFFF)<<2
			t.isJump = true
			t.rel = rel
		}
	}

	var guesses []SectionGuess
	for _, key := range slices.Sorted(maps.Keys(targets)) {
		t := targets[key]
		addr, ok := t.address()
		if !ok {
			logger.Logf("MATCH", "%s: %s: lo16 to %s without hi16", obj.File, sym.Name, key)
			continue
		}

		if t.rel.Local {
			target := obj.Section(t.rel.Name)
			if target == nil {
				logger.Logf("MATCH", "%s: %s: no section %s for %s", obj.File, sym.Name, t.rel.Name, key)
				continue
			}
			guesses = append(guesses, SectionGuess{
				ROMOffset:      romOffset,
				SymbolOffset:   sym.Offset,
				SectionOffset:  addr - t.rel.Addend - img.HeaderSize,
				SectionVRAM:    addr - t.rel.Addend,
				SectionSize:    target.Size,
				Classification: LocalRelocation,
				SymbolName:     sym.Name,
				SectionName:    t.rel.Name,
				ObjectName:     obj.File,
			})
			continue
		}

		// unknown globals are expected to be defined outside the library
		loc, ok := table.Lookup(t.rel.Name)
		if !ok {
			continue
		}
		guesses = append(guesses, SectionGuess{
			ROMOffset:      romOffset,
			SymbolOffset:   loc.Offset,
			SectionOffset:  addr - t.rel.Addend - loc.Offset - img.HeaderSize,
			SectionVRAM:    addr - t.rel.Addend - loc.Offset,
			SectionSize:    loc.SectionSize,
			Classification: GlobalRelocation,
			SymbolName:     t.rel.Name,
			SectionName:    loc.Section,
			ObjectName:     loc.Object,
		})
	}

	guesses = append(guesses, SectionGuess{
		ROMOffset:      romOffset,
		SymbolOffset:   sym.Offset,
		SectionOffset:  romOffset - sym.Offset,
		SectionVRAM:    img.HeaderSize + romOffset - sym.Offset,
		SectionSize:    sec.Size,
		Classification: NotRelocation,
		SymbolName:     sym.Name,
		SectionName:    sec.Name,
		ObjectName:     obj.File,
	})

	return guesses, nil
}
