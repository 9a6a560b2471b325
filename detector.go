package sigmatch

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	insnJrRa        = 0x03E00008
	insnAddiuSpMask = 0xFFFF0000
	insnAddiuSpSp   = 0x27BD0000
)

// DetectCandidateList scans big-endian MIPS code in 4-byte strides and
// returns every heuristic hit, ordered by offset. An offset flagged by both
// heuristics appears once per heuristic. This function performs no I/O and
// knows nothing about signatures.
func DetectCandidateList(code []byte) []Candidate {
	var result []Candidate

	for off := 0; off+4 <= len(code); off += 4 {
		w := binary.BigEndian.Uint32(code[off:])

		// Pattern 1: jr ra; <delay slot>; <next function>
		// A return followed by padding is not a function tail.
		if w == insnJrRa && off+12 <= len(code) {
			if binary.BigEndian.Uint32(code[off+8:]) != 0 {
				result = append(result, Candidate{
					Offset:      uint32(off + 8),
					Type:        CandidateReturnTail,
					Instruction: "jr ra",
				})
			}
		}

		// Pattern 2: addiu sp, sp, -n
		if w&insnAddiuSpMask == insnAddiuSpSp {
			if imm := int16(w & 0xFFFF); imm < 0 {
				result = append(result, Candidate{
					Offset:      uint32(off),
					Type:        CandidateStackFrame,
					Instruction: fmt.Sprintf("addiu sp, sp, -0x%x", -int32(imm)),
				})
			}
		}
	}

	slices.SortStableFunc(result, func(a, b Candidate) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	return result
}

// DetectCandidates returns the set of likely function entry offsets in code.
func DetectCandidates(code []byte) CandidateSet {
	list := DetectCandidateList(code)
	offsets := make([]uint32, 0, len(list))
	for _, c := range list {
		offsets = append(offsets, c.Offset)
	}
	return NewCandidateSet(offsets...)
}
