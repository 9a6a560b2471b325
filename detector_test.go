package sigmatch_test

import (
	"encoding/json"
	"testing"

	"github.com/kr/pretty"

	"github.com/maxgio92/sigmatch"
	"github.com/maxgio92/sigmatch/internal/testobj"
)

func TestDetectCandidateList(t *testing.T) {
	tests := []struct {
		name       string
		code       []byte
		wantOffset []uint32
		wantType   []sigmatch.CandidateType
	}{
		{
			// nop; addiu sp, sp, -0x18
			name:       string(sigmatch.CandidateStackFrame),
			code:       testobj.Words(testobj.Nop, testobj.Addiu(testobj.SP, testobj.SP, -0x18)),
			wantOffset: []uint32{4},
			wantType:   []sigmatch.CandidateType{sigmatch.CandidateStackFrame},
		},
		{
			// jr ra; nop; lui v0, 0x8000
			name:       string(sigmatch.CandidateReturnTail),
			code:       testobj.Words(testobj.JrRa, testobj.Nop, testobj.Lui(testobj.V0, 0x8000)),
			wantOffset: []uint32{8},
			wantType:   []sigmatch.CandidateType{sigmatch.CandidateReturnTail},
		},
		{
			// Both heuristics agree on the function after the return.
			name:       "BothAtSameOffset",
			code:       testobj.Words(testobj.JrRa, testobj.Nop, testobj.Addiu(testobj.SP, testobj.SP, -8)),
			wantOffset: []uint32{8, 8},
			wantType: []sigmatch.CandidateType{
				sigmatch.CandidateReturnTail,
				sigmatch.CandidateStackFrame,
			},
		},
		{
			// A return followed by padding is not a function tail.
			name: "ReturnIntoPadding",
			code: testobj.Words(testobj.JrRa, testobj.Nop, testobj.Nop, testobj.Nop),
		},
		{
			// The word after the delay slot is missing.
			name: "ReturnAtEnd",
			code: testobj.Words(testobj.Nop, testobj.JrRa, testobj.Nop),
		},
		{
			// addiu sp, sp, 0x18 releases a frame
			name: "StackRelease",
			code: testobj.Words(testobj.Addiu(testobj.SP, testobj.SP, 0x18)),
		},
		{
			// addiu v0, sp, -8 does not touch sp
			name: "OtherRegister",
			code: testobj.Words(testobj.Addiu(testobj.V0, testobj.SP, -8)),
		},
		{
			// The trailing partial word is never read.
			name:       "TrailingBytes",
			code:       append(testobj.Words(testobj.Addiu(testobj.SP, testobj.SP, -8)), 0x27, 0xBD),
			wantOffset: []uint32{0},
			wantType:   []sigmatch.CandidateType{sigmatch.CandidateStackFrame},
		},
		{
			name: "EmptyNil",
			code: nil,
		},
		{
			name: "EmptySlice",
			code: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := sigmatch.DetectCandidateList(tt.code)

			if len(candidates) != len(tt.wantOffset) {
				t.Fatalf("expected %d candidate(s), got %d: %+v", len(tt.wantOffset), len(candidates), candidates)
			}
			for i, c := range candidates {
				if c.Offset != tt.wantOffset[i] {
					t.Errorf("candidate %d: expected offset 0x%x, got 0x%x", i, tt.wantOffset[i], c.Offset)
				}
				if c.Type != tt.wantType[i] {
					t.Errorf("candidate %d: expected type %s, got %s", i, tt.wantType[i], c.Type)
				}
				if c.Instruction == "" {
					t.Errorf("candidate %d: expected instruction text", i)
				}
			}
		})
	}
}

func TestDetectCandidates(t *testing.T) {
	code := testobj.Words(
		testobj.Addiu(testobj.SP, testobj.SP, -0x20), // 0x00
		testobj.Nop,                                  // 0x04
		testobj.JrRa,                                 // 0x08
		testobj.Addiu(testobj.SP, testobj.SP, 0x20),  // 0x0c
		testobj.Addiu(testobj.SP, testobj.SP, -0x10), // 0x10
		testobj.JrRa,                                 // 0x14
		testobj.Nop,                                  // 0x18
		testobj.Nop,                                  // 0x1c
	)

	set := sigmatch.DetectCandidates(code)
	if diff := pretty.Diff([]uint32{0x00, 0x10}, set.Offsets()); len(diff) > 0 {
		t.Errorf("unexpected offsets: %v", diff)
	}
	if !set.Contains(0x10) || set.Contains(0x14) {
		t.Errorf("unexpected membership in %v", set.Offsets())
	}
}

func TestCandidateSet(t *testing.T) {
	var empty sigmatch.CandidateSet
	if empty.Len() != 0 || empty.Contains(0) {
		t.Fatalf("expected empty zero value, got %v", empty.Offsets())
	}

	a := sigmatch.NewCandidateSet(0x40, 0x10, 0x40, 0x20)
	b := sigmatch.NewCandidateSet(0x30, 0x10)

	if diff := pretty.Diff([]uint32{0x10, 0x20, 0x40}, a.Offsets()); len(diff) > 0 {
		t.Errorf("expected sorted unique offsets: %v", diff)
	}

	u := a.Union(b)
	if diff := pretty.Diff([]uint32{0x10, 0x20, 0x30, 0x40}, u.Offsets()); len(diff) > 0 {
		t.Errorf("unexpected union: %v", diff)
	}
	if a.Len() != 3 {
		t.Errorf("union modified its receiver: %v", a.Offsets())
	}

	offsets := u.Offsets()
	offsets[0] = 0xFFFF
	if !u.Contains(0x10) {
		t.Error("Offsets returned the set's own storage")
	}
}

func TestCandidateJSON(t *testing.T) {
	list := sigmatch.DetectCandidateList(testobj.Words(testobj.Addiu(testobj.SP, testobj.SP, -0x18), testobj.Nop))
	if len(list) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(list))
	}

	b, err := json.Marshal(list[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"offset":0,"type":"stack-frame","instruction":"addiu sp, sp, -0x18"}`
	if string(b) != want {
		t.Errorf("expected %s, got %s", want, b)
	}
}
