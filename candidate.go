package sigmatch

import "slices"

// CandidateType represents the heuristic that flagged a candidate offset.
type CandidateType string

// Recognized candidate heuristics.
const (
	CandidateReturnTail CandidateType = "return-tail"
	CandidateStackFrame CandidateType = "stack-frame"
	CandidateCallTarget CandidateType = "call-target"
)

// Candidate represents an offset believed to be a function entry point.
type Candidate struct {
	Offset      uint32        `json:"offset"`
	Type        CandidateType `json:"type"`
	Instruction string        `json:"instruction,omitempty"`
	CalledFrom  []uint32      `json:"called_from,omitempty"`
}

// CandidateSet is a sorted, duplicate-free set of image offsets. The zero
// value is an empty set.
type CandidateSet struct {
	offsets []uint32
}

// NewCandidateSet returns the set of the given offsets.
func NewCandidateSet(offsets ...uint32) CandidateSet {
	s := slices.Clone(offsets)
	slices.Sort(s)
	return CandidateSet{offsets: slices.Compact(s)}
}

// Offsets returns the offsets in ascending order.
func (s CandidateSet) Offsets() []uint32 {
	return slices.Clone(s.offsets)
}

// Contains reports whether off is in the set.
func (s CandidateSet) Contains(off uint32) bool {
	_, found := slices.BinarySearch(s.offsets, off)
	return found
}

// Len returns the number of offsets in the set.
func (s CandidateSet) Len() int {
	return len(s.offsets)
}

// Union returns the set of offsets in s or o.
func (s CandidateSet) Union(o CandidateSet) CandidateSet {
	return NewCandidateSet(append(slices.Clone(s.offsets), o.offsets...)...)
}
