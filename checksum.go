package sigmatch

import "hash/crc32"

// shortChecksumLen is the prefix length covered by the short checksum.
const shortChecksumLen = 8

// Neutralize returns a copy of b with the field patched by every masked
// relocation zeroed. b itself is never modified.
func Neutralize(b []byte, relocs []SigRelocation) []byte {
	return NeutralizeInto(nil, b, relocs)
}

// NeutralizeInto is like Neutralize but writes into dst, growing it when its
// capacity is too small, and returns the resulting slice. It lets hot loops
// reuse one scratch buffer per worker.
func NeutralizeInto(dst, b []byte, relocs []SigRelocation) []byte {
	if cap(dst) < len(b) {
		dst = make([]byte, len(b))
	}
	dst = dst[:len(b)]
	copy(dst, b)

	for _, r := range relocs {
		maskWord(dst, r.Offset, r.Kind)
	}
	return dst
}

// maskWord clears the relocated field of the big-endian word at off.
// Words that do not fit entirely inside b are left alone.
func maskWord(b []byte, off uint32, kind RelocationKind) {
	if uint64(off)+4 > uint64(len(b)) {
		return
	}
	w := b[off : off+4]
	switch kind {
	case RelocTarg26:
		w[0] &= 0xFC
		w[1] = 0x00
		w[2] = 0x00
		w[3] = 0x00
	case RelocHi16, RelocLo16:
		w[2] = 0x00
		w[3] = 0x00
	}
}

// Checksum is the CRC-32 (IEEE) of b.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// ShortChecksum checksums the first min(len(b), 8) bytes of the neutralized b.
func ShortChecksum(b []byte, relocs []SigRelocation) uint32 {
	n := Neutralize(b, relocs)
	return Checksum(n[:min(len(n), shortChecksumLen)])
}

// FullChecksum checksums the whole neutralized b.
func FullChecksum(b []byte, relocs []SigRelocation) uint32 {
	return Checksum(Neutralize(b, relocs))
}
