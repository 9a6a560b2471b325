package sigmatch

import (
	"cmp"
	"errors"
	"slices"

	"github.com/maxgio92/sigmatch/internal/logger"
)

// Scanner matches a signature library against ROM images.
type Scanner struct {
	Library Library

	// Workers is the number of symbols tested concurrently. Values <= 0
	// select one worker per CPU.
	Workers int

	// CallTargets adds the targets of jal instructions to the candidate
	// offsets.
	CallTargets bool
}

// Match is a symbol found at exactly one candidate offset.
type Match struct {
	Object    string
	Section   string
	Symbol    string
	ROMOffset uint32
	VRAM      uint32
}

// Result is the outcome of one scan.
type Result struct {
	Candidates CandidateSet
	Matches    []Match
	Guesses    []SectionGuess
	Segments   []Segment
}

// symbolRef addresses one .text symbol of the library.
type symbolRef struct {
	obj *SigObject
	sec *SigSection
	sym *SigSymbol
}

type symbolResult struct {
	match   *Match
	guesses []SectionGuess
}

// Scan tests every unique .text symbol of the library against the candidate
// offsets of img. A symbol found at no offset is absent from the image; one
// found at several is ambiguous and dropped. Symbols whose checksum is
// shared within the library are never tested. The guesses of the remaining
// matches are consolidated once every test has finished.
func (s *Scanner) Scan(img *BinaryImage) (*Result, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.New("empty image")
	}

	table := NewSymbolTable(s.Library)

	candidates := DetectCandidates(img.Data)
	if s.CallTargets {
		var called []uint32
		for _, c := range DetectCallTargets(img.Data, img.HeaderSize) {
			called = append(called, c.Offset)
		}
		candidates = candidates.Union(NewCandidateSet(called...))
	}
	offsets := candidates.Offsets()
	logger.Logf("SCAN", "%d candidate offsets", len(offsets))

	var refs []symbolRef
	for o := range s.Library {
		obj := &s.Library[o]
		for c := range obj.Sections {
			sec := &obj.Sections[c]
			if sec.Name != ".text" {
				continue
			}
			for y := range sec.Symbols {
				sym := &sec.Symbols[y]
				if sym.DuplicateChecksum || sym.NoData || sym.Size == 0 {
					continue
				}
				refs = append(refs, symbolRef{obj: obj, sec: sec, sym: sym})
			}
		}
	}

	// Each task owns its slot; the join below is the only synchronization.
	results := make([]symbolResult, len(refs))

	p := newPool(s.Workers)
	for i := range refs {
		p.Submit(func() {
			results[i] = testSymbol(img, table, refs[i], offsets)
		})
	}
	p.Wait()

	res := &Result{Candidates: candidates}
	type matchKey struct {
		symbol string
		offset uint32
	}
	seen := make(map[matchKey]bool)
	for _, r := range results {
		if r.match == nil {
			continue
		}
		k := matchKey{r.match.Symbol, r.match.ROMOffset}
		if seen[k] {
			continue
		}
		seen[k] = true
		res.Matches = append(res.Matches, *r.match)
		res.Guesses = append(res.Guesses, r.guesses...)
	}

	slices.SortStableFunc(res.Matches, func(a, b Match) int {
		return cmp.Compare(a.ROMOffset, b.ROMOffset)
	})
	logger.Logf("SCAN", "%d of %d symbols matched", len(res.Matches), len(refs))

	res.Segments = Consolidate(res.Guesses)

	return res, nil
}

func testSymbol(img *BinaryImage, table *SymbolTable, ref symbolRef, offsets []uint32) symbolResult {
	var (
		m     Matcher
		found []uint32
	)

	for _, off := range offsets {
		window, err := img.Window(off)
		if err != nil {
			continue
		}
		ok, err := m.Test(ref.sym, window)
		if err != nil || !ok {
			continue
		}
		found = append(found, off)
		if len(found) > 1 {
			return symbolResult{}
		}
	}
	if len(found) != 1 {
		return symbolResult{}
	}

	off := found[0]
	guesses, err := Resolve(img, table, ref.obj, ref.sec, ref.sym, off)
	if err != nil {
		logger.Logf("MATCH", "%s: %v", ref.obj.File, err)
		guesses = nil
	}

	return symbolResult{
		match: &Match{
			Object:    ref.obj.File,
			Section:   ref.sec.Name,
			Symbol:    ref.sym.Name,
			ROMOffset: off,
			VRAM:      img.VRAM(off),
		},
		guesses: guesses,
	}
}
