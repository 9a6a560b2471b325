package sigmatch_test

import (
	"testing"

	"github.com/kr/pretty"

	"github.com/maxgio92/sigmatch"
	"github.com/maxgio92/sigmatch/elfobj"
	"github.com/maxgio92/sigmatch/internal/testobj"
)

func exampleRecord(t *testing.T, name string) sigmatch.ObjectRecord {
	t.Helper()
	rec, err := elfobj.ReadObject(name, testobj.ExampleObject().Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestBuildPatterns(t *testing.T) {
	patterns := sigmatch.BuildPatterns([]sigmatch.ObjectRecord{exampleRecord(t, "lib/example.o")})

	var got []string
	for _, p := range patterns {
		got = append(got, p.Object+" "+p.Section)
	}
	if diff := pretty.Diff([]string{"example .text", "example .data", "example .rodata"}, got); len(diff) > 0 {
		t.Fatalf("unexpected patterns: %v", diff)
	}

	text := patterns[0]
	want := []sigmatch.SigRelocation{
		{Kind: sigmatch.RelocHi16, Offset: testobj.ExampleHiOff},
		{Kind: sigmatch.RelocLo16, Offset: testobj.ExampleLoOff},
	}
	if diff := pretty.Diff(want, text.Relocations); len(diff) > 0 {
		t.Errorf("unexpected relocations: %v", diff)
	}
	if text.Size != testobj.ExampleSize {
		t.Errorf("expected size 0x%x, got 0x%x", testobj.ExampleSize, text.Size)
	}
	code := testobj.Words(testobj.ExampleText...)
	if text.ChecksumFull != sigmatch.FullChecksum(code, want) {
		t.Errorf("unexpected full checksum 0x%08x", text.ChecksumFull)
	}
}

func TestUniquePatterns(t *testing.T) {
	rec := exampleRecord(t, "example.o")
	patterns := sigmatch.BuildPatterns([]sigmatch.ObjectRecord{rec})

	unique := sigmatch.UniquePatterns(patterns)
	if len(unique) != 3 {
		t.Fatalf("expected 3 unique patterns, got %d", len(unique))
	}
	for i := 1; i < len(unique); i++ {
		a, b := unique[i-1], unique[i]
		if a.Size > b.Size || a.Size == b.Size && a.ChecksumFull > b.ChecksumFull {
			t.Errorf("patterns %d and %d out of order: %+v %+v", i-1, i, a, b)
		}
	}

	// A second copy of the object shares every checksum.
	twice := sigmatch.BuildPatterns([]sigmatch.ObjectRecord{rec, exampleRecord(t, "copy.o")})
	if got := sigmatch.UniquePatterns(twice); len(got) != 0 {
		t.Errorf("expected shared patterns to be dropped, got %+v", got)
	}
}

func TestApplyPatterns(t *testing.T) {
	img := &sigmatch.BinaryImage{
		Data:       testobj.LinkExample(0x7FFFF400, 0x1000, 0x1030, 0x1040),
		HeaderSize: 0x7FFFF400,
	}
	patterns := sigmatch.UniquePatterns(sigmatch.BuildPatterns([]sigmatch.ObjectRecord{exampleRecord(t, "example.o")}))

	tests := []struct {
		name     string
		segments []sigmatch.Segment
		want     []sigmatch.Segment
	}{
		{
			name: "Relabel",
			segments: []sigmatch.Segment{
				{Start: 0x1000, VRAM: 0x80000400, Kind: "bin", Label: "0x1000"},
				{Start: 0x1030, VRAM: 0x80000430, Kind: "bin", Label: "0x1030"},
				{Start: 0x1038, VRAM: 0x80000438, Kind: "bin", Label: "0x1038"},
			},
			want: []sigmatch.Segment{
				{Start: 0x1000, VRAM: 0x80000400, Kind: "c", Label: "lib_example"},
				{Start: 0x101C, VRAM: 0x8000041C, Kind: "bin", Label: "bin_0x101c"},
				{Start: 0x1030, VRAM: 0x80000430, Kind: ".data", Label: "lib_example"},
				{Start: 0x1034, VRAM: 0x80000434, Kind: "bin", Label: "bin_0x1034"},
				{Start: 0x1038, VRAM: 0x80000438, Kind: "bin", Label: "0x1038"},
			},
		},
		{
			// The next segment starts right where the pattern ends.
			name: "Contiguous",
			segments: []sigmatch.Segment{
				{Start: 0x1000, VRAM: 0x80000400, Kind: "bin", Label: "0x1000"},
				{Start: 0x101C, VRAM: 0x8000041C, Kind: "bin", Label: "0x101c"},
			},
			want: []sigmatch.Segment{
				{Start: 0x1000, VRAM: 0x80000400, Kind: "c", Label: "lib_example"},
				{Start: 0x101C, VRAM: 0x8000041C, Kind: "bin", Label: "0x101c"},
			},
		},
		{
			// The next segment starts inside the pattern: no filler.
			name: "TooLarge",
			segments: []sigmatch.Segment{
				{Start: 0x1000, VRAM: 0x80000400, Kind: "bin", Label: "0x1000"},
				{Start: 0x1010, VRAM: 0x80000410, Kind: "bin", Label: "0x1010"},
			},
			want: []sigmatch.Segment{
				{Start: 0x1000, VRAM: 0x80000400, Kind: "c", Label: "lib_example"},
				{Start: 0x1010, VRAM: 0x80000410, Kind: "bin", Label: "0x1010"},
			},
		},
		{
			name: "NoMatch",
			segments: []sigmatch.Segment{
				{Start: 0x1004, VRAM: 0x80000404, Kind: "bin", Label: "0x1004"},
				{Start: 0x103C, VRAM: 0x8000043C, Kind: "bin", Label: "0x103c"},
			},
			want: []sigmatch.Segment{
				{Start: 0x1004, VRAM: 0x80000404, Kind: "bin", Label: "0x1004"},
				{Start: 0x103C, VRAM: 0x8000043C, Kind: "bin", Label: "0x103c"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sigmatch.ApplyPatterns(tt.segments, img, patterns, "lib_")
			if diff := pretty.Diff(tt.want, got); len(diff) > 0 {
				t.Errorf("unexpected segments: %v", diff)
			}
		})
	}
}

func TestApplyPatternsAmbiguous(t *testing.T) {
	img := &sigmatch.BinaryImage{Data: testobj.Words(testobj.Number0Value, 0, testobj.Number0Value)}
	patterns := sigmatch.UniquePatterns(sigmatch.BuildPatterns([]sigmatch.ObjectRecord{exampleRecord(t, "example.o")}))
	segments := []sigmatch.Segment{
		{Start: 0, Kind: "bin", Label: "0x0"},
		{Start: 8, Kind: "bin", Label: "0x8"},
	}

	got := sigmatch.ApplyPatterns(segments, img, patterns, "")
	if diff := pretty.Diff(segments, got); len(diff) > 0 {
		t.Errorf("expected segments to be left alone: %v", diff)
	}
}
