package sigmatch

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/maxgio92/sigmatch/internal/logger"
)

// FillerKind is the kind of segments covering unidentified bytes and
// overlap conflicts.
const FillerKind = "bin"

// Segment is one entry of the consolidated image map. Kind is a section
// name, or FillerKind.
type Segment struct {
	Start uint32
	VRAM  uint32
	Kind  string
	Label string
}

func fillerAt(start, vram uint32) Segment {
	return Segment{
		Start: start,
		VRAM:  vram,
		Kind:  FillerKind,
		Label: fmt.Sprintf("0x%x", start),
	}
}

func segmentOf(g SectionGuess) Segment {
	return Segment{
		Start: g.SectionOffset,
		VRAM:  g.SectionVRAM,
		Kind:  g.SectionName,
		Label: g.ObjectName,
	}
}

// Consolidate merges the section guesses of a scan into an ordered segment
// map. Guesses for the same object section collapse to the one with the
// lowest classification and symbol offset. Gaps between known sections get
// filler segments; a section running into the next one is replaced by a
// filler marker at its start, since its true end is unknown. A trailing
// filler marks the end of the last known section. guesses is not modified.
func Consolidate(guesses []SectionGuess) []Segment {
	if len(guesses) == 0 {
		return nil
	}

	gs := slices.Clone(guesses)
	slices.SortStableFunc(gs, func(a, b SectionGuess) int {
		return cmp.Or(
			cmp.Compare(a.ObjectName, b.ObjectName),
			cmp.Compare(a.SectionName, b.SectionName),
			cmp.Compare(a.Classification, b.Classification),
			cmp.Compare(a.SymbolOffset, b.SymbolOffset),
		)
	})
	gs = slices.CompactFunc(gs, func(a, b SectionGuess) bool {
		return a.ObjectName == b.ObjectName && a.SectionName == b.SectionName
	})
	slices.SortStableFunc(gs, func(a, b SectionGuess) int {
		return cmp.Compare(a.SectionOffset, b.SectionOffset)
	})

	segments := make([]Segment, 0, 2*len(gs))
	for i := 0; i+1 < len(gs); i++ {
		cur, next := gs[i], gs[i+1]
		end := uint64(cur.SectionOffset) + uint64(cur.SectionSize)

		switch {
		case end == uint64(next.SectionOffset):
			segments = append(segments, segmentOf(cur))
		case end < uint64(next.SectionOffset):
			segments = append(segments,
				segmentOf(cur),
				fillerAt(uint32(end), cur.SectionVRAM+cur.SectionSize))
		default:
			logger.Logf("MATCH", "%s %s at 0x%x ends at 0x%x past %s %s at 0x%x",
				cur.ObjectName, cur.SectionName, cur.SectionOffset, end,
				next.ObjectName, next.SectionName, next.SectionOffset)
			segments = append(segments, fillerAt(cur.SectionOffset, cur.SectionVRAM))
		}
	}

	last := gs[len(gs)-1]
	segments = append(segments,
		segmentOf(last),
		fillerAt(last.SectionOffset+last.SectionSize, last.SectionVRAM+last.SectionSize))

	return segments
}
