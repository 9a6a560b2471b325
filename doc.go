// Package sigmatch recovers symbol names, addresses and section boundaries in
// stripped big-endian MIPS ROM images by matching them against signatures
// derived from the relocatable objects the image was linked from.
//
// # Signatures
//
// [BuildLibrary] walks a feed of [ObjectRecord] values, as produced by the
// elfobj package, and emits one [SigSymbol] per eligible symbol. A signature
// is a two-tier CRC-32 of the symbol's bytes with every R_MIPS_26, HI16 and
// LO16 field cleared ([Neutralize]), plus the relocations needed to clear the
// same fields in a candidate. Symbols sharing a checksum anywhere in the
// library are flagged and never matched.
//
// # Candidate Detection
//
// [DetectCandidates] flags likely function entries using two instruction
// patterns: the word after the delay slot of a jr ra, and addiu sp, sp, -n.
// [DetectCallTargets] adds the targets of jal instructions.
//
// # Matching and Resolution
//
// [Scanner] tests every .text signature against every candidate. The short
// checksum over the first eight bytes rejects most candidates before the full
// checksum is computed. A symbol found at exactly one offset is resolved:
// the relocated words in the image give the addresses of the sections it
// references ([Resolve]), and [Consolidate] turns those guesses into a
// gap-filled [Segment] map.
//
// # Section Patterns
//
// [BuildPatterns] and [ApplyPatterns] refine an existing segment map by
// matching whole object sections against its segments.
package sigmatch
