package sigmatch_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/maxgio92/sigmatch"
)

// Trailing boot code bytes that give the zero-filled boot block the
// checksum of each boot chip variant.
var (
	cic6103Tail = []byte{0x87, 0x5e, 0x92, 0x3f}
	cic6106Tail = []byte{0xed, 0x93, 0xdc, 0xb9}
)

// bigEndianROM returns a z64 image with the given entry point whose boot
// code ends in tail.
func bigEndianROM(entry uint32, tail []byte) []byte {
	rom := make([]byte, 0x1040)
	binary.BigEndian.PutUint32(rom[0:], 0x80371240)
	binary.BigEndian.PutUint32(rom[8:], entry)
	copy(rom[0x1000-len(tail):], tail)
	copy(rom[0x1000:], []byte("GAME CODE"))
	return rom
}

func swapped32(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+4 <= len(b); i += 4 {
		binary.LittleEndian.PutUint32(out[i:], binary.BigEndian.Uint32(b[i:]))
	}
	return out
}

func swapped16(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+2 <= len(b); i += 2 {
		binary.LittleEndian.PutUint16(out[i:], binary.BigEndian.Uint16(b[i:]))
	}
	return out
}

func TestLoadImage(t *testing.T) {
	z64 := bigEndianROM(0x80000400, nil)

	tests := []struct {
		name       string
		data       []byte
		opts       sigmatch.ImageOptions
		wantOrder  sigmatch.ByteOrder
		wantHeader uint32
	}{
		{
			name:       "BigEndian",
			data:       z64,
			wantOrder:  sigmatch.OrderBigEndian,
			wantHeader: 0x7FFFF400,
		},
		{
			name:       "LittleEndian",
			data:       swapped32(z64),
			wantOrder:  sigmatch.OrderLittleEndian,
			wantHeader: 0x7FFFF400,
		},
		{
			name:       "ByteSwapped",
			data:       swapped16(z64),
			wantOrder:  sigmatch.OrderByteSwapped,
			wantHeader: 0x7FFFF400,
		},
		{
			name:       "CIC6103",
			data:       bigEndianROM(0x80100400, cic6103Tail),
			wantOrder:  sigmatch.OrderBigEndian,
			wantHeader: 0x7FFFF400,
		},
		{
			name:       "CIC6106",
			data:       bigEndianROM(0x80200400, cic6106Tail),
			wantOrder:  sigmatch.OrderBigEndian,
			wantHeader: 0x7FFFF400,
		},
		{
			name:       "Override",
			data:       z64,
			opts:       sigmatch.ImageOptions{OverrideHeader: true, HeaderSize: 0x80000000},
			wantOrder:  sigmatch.OrderBigEndian,
			wantHeader: 0x80000000,
		},
		{
			// Overriding with zero is still an override.
			name:       "OverrideZero",
			data:       z64,
			opts:       sigmatch.ImageOptions{OverrideHeader: true},
			wantOrder:  sigmatch.OrderBigEndian,
			wantHeader: 0,
		},
		{
			name:       "NoMarker",
			data:       make([]byte, 0x1040),
			wantOrder:  sigmatch.OrderUnknown,
			wantHeader: sigmatch.DefaultHeaderSize,
		},
		{
			// Too small to hold a boot block.
			name:       "Small",
			data:       z64[:0x100],
			wantOrder:  sigmatch.OrderBigEndian,
			wantHeader: sigmatch.DefaultHeaderSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := bytes.Clone(tt.data)

			img, err := sigmatch.LoadImage(tt.data, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if img.Order != tt.wantOrder {
				t.Errorf("expected order %s, got %s", tt.wantOrder, img.Order)
			}
			if img.HeaderSize != tt.wantHeader {
				t.Errorf("expected header 0x%08x, got 0x%08x", tt.wantHeader, img.HeaderSize)
			}
			if !bytes.Equal(tt.data, orig) {
				t.Error("input modified")
			}
		})
	}
}

func TestLoadImageNormalizes(t *testing.T) {
	z64 := bigEndianROM(0x80000400, nil)
	for _, data := range [][]byte{z64, swapped32(z64), swapped16(z64)} {
		img, err := sigmatch.LoadImage(data, sigmatch.ImageOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(img.Data, z64) {
			t.Errorf("%s image not normalized to big-endian", img.Order)
		}
	}
}

func TestLoadImageTooSmall(t *testing.T) {
	if _, err := sigmatch.LoadImage([]byte{0x80, 0x37}, sigmatch.ImageOptions{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestBinaryImageAccess(t *testing.T) {
	img := &sigmatch.BinaryImage{
		Data:       []byte{0x12, 0x34, 0x56, 0x78, 0x9a},
		HeaderSize: 0x80000400,
	}

	if got := img.VRAM(0x10); got != 0x80000410 {
		t.Errorf("expected VRAM 0x80000410, got 0x%08x", got)
	}

	w, err := img.Word(0)
	if err != nil || w != 0x12345678 {
		t.Errorf("expected 0x12345678, got 0x%08x %v", w, err)
	}
	if _, err := img.Word(2); !errors.Is(err, sigmatch.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	win, err := img.Window(4)
	if err != nil || !bytes.Equal(win, []byte{0x9a}) {
		t.Errorf("expected the last byte, got % x %v", win, err)
	}
	if win, err := img.Window(5); err != nil || len(win) != 0 {
		t.Errorf("expected an empty window at the end, got % x %v", win, err)
	}
	if _, err := img.Window(6); !errors.Is(err, sigmatch.ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}
