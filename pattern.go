package sigmatch

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/maxgio92/sigmatch/internal/logger"
)

// SectionPattern is a signature of a whole object section. Relocation
// offsets are relative to the section start.
type SectionPattern struct {
	Object        string
	Section       string
	Size          uint32
	ChecksumShort uint32
	ChecksumFull  uint32
	Relocations   []SigRelocation
}

// signature views the pattern as a symbol spanning the section.
func (p *SectionPattern) signature() SigSymbol {
	return SigSymbol{
		Name:          p.Object + ":" + p.Section,
		Size:          p.Size,
		ChecksumShort: p.ChecksumShort,
		ChecksumFull:  p.ChecksumFull,
		Relocations:   p.Relocations,
	}
}

// BuildPatterns returns one pattern per non-empty .text, .data or .rodata
// section of records, in input order.
func BuildPatterns(records []ObjectRecord) []SectionPattern {
	var patterns []SectionPattern

	for r := range records {
		rec := &records[r]
		object := ObjectName(rec.Name)

		for s := range rec.Sections {
			sec := &rec.Sections[s]
			if !slices.Contains(signatureSections, sec.Name) || sec.NoBits || len(sec.Data) == 0 {
				continue
			}

			p := SectionPattern{
				Object:  object,
				Section: sec.Name,
				Size:    uint32(len(sec.Data)),
			}

			var lastHi16 uint32
			for i, rel := range sec.Relocations {
				addend, err := relocationAddend(sec, i, &lastHi16)
				if err != nil {
					logger.Logf("PATTERN", "%s %s: %v", object, sec.Name, err)
					continue
				}
				p.Relocations = append(p.Relocations, SigRelocation{
					Kind:   rel.Kind,
					Offset: rel.Offset,
					Addend: addend,
				})
			}

			p.ChecksumShort = ShortChecksum(sec.Data, p.Relocations)
			p.ChecksumFull = FullChecksum(sec.Data, p.Relocations)
			patterns = append(patterns, p)
		}
	}

	return patterns
}

// UniquePatterns returns the patterns whose full checksum no other pattern
// shares, ordered by size then checksum. Every member of a shared group is
// dropped.
func UniquePatterns(patterns []SectionPattern) []SectionPattern {
	counts := make(map[uint32]int, len(patterns))
	for _, p := range patterns {
		counts[p.ChecksumFull]++
	}

	var unique []SectionPattern
	for _, p := range patterns {
		if counts[p.ChecksumFull] == 1 {
			unique = append(unique, p)
		}
	}

	slices.SortStableFunc(unique, func(a, b SectionPattern) int {
		return cmp.Or(
			cmp.Compare(a.Size, b.Size),
			cmp.Compare(a.ChecksumFull, b.ChecksumFull),
		)
	})

	return unique
}

// patternKind maps a section name to the segment kind used for it.
func patternKind(section string) string {
	switch section {
	case ".text":
		return "c"
	case ".data", ".rodata":
		return section
	default:
		return FillerKind
	}
}

// ApplyPatterns refines an existing segment list. A segment whose bytes hold
// exactly one of patterns is relabelled after the pattern's object, prefixed
// with prefix, and followed by a filler when the next segment starts past the
// pattern's end. Patterns matching at more than one segment are ignored.
// patterns should come from UniquePatterns.
func ApplyPatterns(segments []Segment, img *BinaryImage, patterns []SectionPattern, prefix string) []Segment {
	var m Matcher

	matched := make([]*SectionPattern, len(segments))
	hits := make(map[uint32]int)
	for i, seg := range segments {
		for p := range patterns {
			pat := &patterns[p]
			if uint64(seg.Start)+uint64(pat.Size) > uint64(len(img.Data)) {
				continue
			}
			sig := pat.signature()
			ok, err := m.Test(&sig, img.Data[seg.Start:seg.Start+pat.Size])
			if err != nil || !ok {
				continue
			}
			matched[i] = pat
			hits[pat.ChecksumFull]++
			break
		}
	}

	out := make([]Segment, 0, len(segments))
	for i, seg := range segments {
		pat := matched[i]
		if pat == nil || hits[pat.ChecksumFull] != 1 {
			out = append(out, seg)
			continue
		}

		out = append(out, Segment{
			Start: seg.Start,
			VRAM:  seg.VRAM,
			Kind:  patternKind(pat.Section),
			Label: prefix + pat.Object,
		})

		end := seg.Start + pat.Size
		filler := Segment{
			Start: end,
			VRAM:  seg.VRAM + pat.Size,
			Kind:  FillerKind,
			Label: fmt.Sprintf("bin_0x%x", end),
		}
		switch {
		case i+1 == len(segments):
			out = append(out, filler)
		case segments[i+1].Start > end:
			out = append(out, filler)
		case segments[i+1].Start < end:
			logger.Logf("PATTERN", "pattern %s %s matched at 0x%x is too large", pat.Object, pat.Section, seg.Start)
		}
	}

	return out
}
