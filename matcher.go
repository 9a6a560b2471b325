package sigmatch

import "fmt"

// fullChecksumHook, when set, runs every time a Matcher computes a full
// checksum.
var fullChecksumHook func()

// Matcher tests signature symbols against image bytes. It keeps one scratch
// buffer for the neutralized copy, so a Matcher must not be shared between
// goroutines. The zero value is ready to use.
type Matcher struct {
	scratch []byte
}

// Test reports whether window, which starts at a candidate offset, holds the
// symbol. The short checksum is compared first; the full checksum is only
// computed when it agrees. window is never modified.
func (m *Matcher) Test(sym *SigSymbol, window []byte) (bool, error) {
	if uint64(len(window)) < uint64(sym.Size) {
		return false, fmt.Errorf("%s needs 0x%x bytes, have 0x%x: %w", sym.Name, sym.Size, len(window), ErrShortWindow)
	}

	m.scratch = NeutralizeInto(m.scratch, window[:sym.Size], sym.Relocations)

	if Checksum(m.scratch[:min(len(m.scratch), shortChecksumLen)]) != sym.ChecksumShort {
		return false, nil
	}

	if fullChecksumHook != nil {
		fullChecksumHook()
	}
	return Checksum(m.scratch) == sym.ChecksumFull, nil
}

// TestSymbol is Test with a throwaway Matcher.
func TestSymbol(sym SigSymbol, window []byte) (bool, error) {
	var m Matcher
	return m.Test(&sym, window)
}
