package sigmatch

import "errors"

var (
	// ErrShortWindow is returned when a byte window is shorter than the
	// symbol tested against it.
	ErrShortWindow = errors.New("window shorter than symbol")

	// ErrOutOfRange is returned when a read falls outside the image or
	// section being read.
	ErrOutOfRange = errors.New("offset out of range")

	errUnpairedHi16    = errors.New("hi16 not followed by lo16")
	errUnsupportedKind = errors.New("unsupported relocation kind")
)
