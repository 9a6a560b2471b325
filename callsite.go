package sigmatch

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
)

// opJal is the primary opcode of the jal instruction.
const opJal = 0x03

// CallSite represents a direct jal call. Source and Target are image
// offsets.
type CallSite struct {
	Source     uint32 `json:"source"`
	Target     uint32 `json:"target"`
	TargetVRAM uint32 `json:"target_vram"`
}

// DetectCallSites returns every jal instruction in code whose target lands
// on a word inside code. headerSize maps image offsets to VRAM addresses,
// as in BinaryImage.
func DetectCallSites(code []byte, headerSize uint32) []CallSite {
	var result []CallSite

	for off := 0; off+4 <= len(code); off += 4 {
		w := binary.BigEndian.Uint32(code[off:])
		if w>>26 != opJal {
			continue
		}

		// The jump region comes from the delay slot's address.
		pc := headerSize + uint32(off)
		vram := (pc+4)&0xF0000000 | (w&0x03FFFFFF)<<2
		if vram < headerSize {
			continue
		}
		target := vram - headerSize
		if uint64(target)+4 > uint64(len(code)) {
			continue
		}

		result = append(result, CallSite{
			Source:     uint32(off),
			Target:     target,
			TargetVRAM: vram,
		})
	}

	return result
}

// DetectCallTargets groups the call sites in code by target, one Candidate
// per called offset, ordered by offset.
func DetectCallTargets(code []byte, headerSize uint32) []Candidate {
	targets := make(map[uint32]*Candidate)
	for _, cs := range DetectCallSites(code, headerSize) {
		c, ok := targets[cs.Target]
		if !ok {
			c = &Candidate{
				Offset:      cs.Target,
				Type:        CandidateCallTarget,
				Instruction: fmt.Sprintf("jal 0x%08x", cs.TargetVRAM),
			}
			targets[cs.Target] = c
		}
		c.CalledFrom = append(c.CalledFrom, cs.Source)
	}

	result := make([]Candidate, 0, len(targets))
	for _, c := range targets {
		result = append(result, *c)
	}

	slices.SortFunc(result, func(a, b Candidate) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	return result
}
