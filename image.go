package sigmatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/maxgio92/sigmatch/internal/logger"
)

// ByteOrder identifies the on-disk byte order of an N64 ROM image.
type ByteOrder string

// Recognized ROM byte orders.
const (
	OrderBigEndian    ByteOrder = "z64"
	OrderLittleEndian ByteOrder = "n64"
	OrderByteSwapped  ByteOrder = "v64"
	OrderUnknown      ByteOrder = "unknown"
)

const (
	magicBigEndian    = 0x80371240
	magicLittleEndian = 0x40123780
	magicByteSwapped  = 0x37804012

	bootCodeStart = 0x40
	bootCodeEnd   = 0x1000
	entryPointOff = 0x08

	cic6103Checksum = 0x0B050EE0
	cic6106Checksum = 0xACC8580A
	cic6103Offset   = 0x100000
	cic6106Offset   = 0x200000
)

// DefaultHeaderSize is used for images without a recognizable boot block.
const DefaultHeaderSize = 0x80000000

// BinaryImage is a linked ROM image. HeaderSize is the value added to an
// image offset to get its VRAM address. The engine only reads Data.
type BinaryImage struct {
	Data       []byte
	HeaderSize uint32
	Order      ByteOrder
}

// ImageOptions configures LoadImage.
type ImageOptions struct {
	// OverrideHeader makes LoadImage use HeaderSize instead of deriving it
	// from the boot block.
	OverrideHeader bool
	HeaderSize     uint32
}

// LoadImage normalizes a ROM image to big-endian and derives its header size
// from the boot block. data is not modified; the image holds a copy.
func LoadImage(data []byte, opts ImageOptions) (*BinaryImage, error) {
	if len(data) < 4 {
		return nil, errors.New("image too small to carry a byte order marker")
	}

	img := &BinaryImage{Data: make([]byte, len(data))}
	copy(img.Data, data)

	switch binary.BigEndian.Uint32(img.Data) {
	case magicBigEndian:
		img.Order = OrderBigEndian
	case magicLittleEndian:
		img.Order = OrderLittleEndian
		swap32(img.Data)
	case magicByteSwapped:
		img.Order = OrderByteSwapped
		swap16(img.Data)
	default:
		img.Order = OrderUnknown
	}

	switch {
	case opts.OverrideHeader:
		img.HeaderSize = opts.HeaderSize
	case img.Order == OrderUnknown || len(img.Data) < bootCodeEnd:
		img.HeaderSize = DefaultHeaderSize
		logger.Logf("ROM", "no boot block, header defaults to 0x%08x", img.HeaderSize)
	default:
		hs, cic := bootHeaderSize(img.Data)
		img.HeaderSize = hs
		logger.Logf("ROM", "byte order %s, cic %s, header 0x%08x", img.Order, cic, hs)
	}

	return img, nil
}

// bootHeaderSize derives the header size from the entry point, corrected for
// the boot chip variant recognized by the checksum of the boot code.
func bootHeaderSize(data []byte) (uint32, string) {
	entry := binary.BigEndian.Uint32(data[entryPointOff:])

	var adjust uint32
	cic := "610x"
	switch crc32.ChecksumIEEE(data[bootCodeStart:bootCodeEnd]) {
	case cic6103Checksum:
		adjust, cic = cic6103Offset, "6103"
	case cic6106Checksum:
		adjust, cic = cic6106Offset, "6106"
	}

	return entry - adjust - bootCodeEnd, cic
}

func swap32(b []byte) {
	for i := 0; i+4 <= len(b); i += 4 {
		binary.BigEndian.PutUint32(b[i:], binary.LittleEndian.Uint32(b[i:]))
	}
}

func swap16(b []byte) {
	for i := 0; i+2 <= len(b); i += 2 {
		binary.BigEndian.PutUint16(b[i:], binary.LittleEndian.Uint16(b[i:]))
	}
}

// VRAM returns the address the byte at image offset off is loaded to.
func (img *BinaryImage) VRAM(off uint32) uint32 {
	return img.HeaderSize + off
}

// Word returns the big-endian word at off.
func (img *BinaryImage) Word(off uint32) (uint32, error) {
	if uint64(off)+4 > uint64(len(img.Data)) {
		return 0, fmt.Errorf("word at 0x%x: %w", off, ErrOutOfRange)
	}
	return binary.BigEndian.Uint32(img.Data[off:]), nil
}

// Window returns the bytes from off to the end of the image.
func (img *BinaryImage) Window(off uint32) ([]byte, error) {
	if uint64(off) > uint64(len(img.Data)) {
		return nil, fmt.Errorf("window at 0x%x: %w", off, ErrOutOfRange)
	}
	return img.Data[off:], nil
}
