// Package sigyaml encodes signature libraries, segment maps and section
// patterns as YAML. Offsets, addresses and checksums are written in
// hexadecimal, sizes in decimal. Decoding accepts either base for any
// integer.
package sigyaml

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/maxgio92/sigmatch"
)

// Hex is an integer written as 0x-prefixed hexadecimal.
type Hex uint32

// MarshalYAML implements yaml.Marshaler.
func (h Hex) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: fmt.Sprintf("0x%x", uint32(h)),
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Hex) UnmarshalYAML(n *yaml.Node) error {
	v, err := parseUint(n)
	*h = Hex(v)
	return err
}

// Dec is an integer written in decimal.
type Dec uint32

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Dec) UnmarshalYAML(n *yaml.Node) error {
	v, err := parseUint(n)
	*d = Dec(v)
	return err
}

func parseUint(n *yaml.Node) (uint32, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("line %d: expected integer", n.Line)
	}
	v, err := strconv.ParseUint(n.Value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return uint32(v), nil
}

type relocationDoc struct {
	Type   sigmatch.RelocationKind `yaml:"type"`
	Offset Hex                     `yaml:"offset"`
	Addend Hex                     `yaml:"addend"`
	Local  bool                    `yaml:"local"`
	Name   string                  `yaml:"name"`
}

type symbolDoc struct {
	Symbol       string          `yaml:"symbol"`
	Offset       Hex             `yaml:"offset"`
	Size         Dec             `yaml:"size"`
	Crc8         Hex             `yaml:"crc_8"`
	CrcAll       Hex             `yaml:"crc_all"`
	DuplicateCrc bool            `yaml:"duplicate_crc"`
	NoData       bool            `yaml:"no_data,omitempty"`
	Relocations  []relocationDoc `yaml:"relocations"`
}

type sectionDoc struct {
	Name    string      `yaml:"name"`
	Size    Dec         `yaml:"size"`
	Symbols []symbolDoc `yaml:"symbols"`
}

type objectDoc struct {
	File     string       `yaml:"file"`
	Sections []sectionDoc `yaml:"sections"`
}

func encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func decode(r io.Reader, v any) error {
	if err := yaml.NewDecoder(r).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode YAML: %w", err)
	}
	return nil
}

// EncodeLibrary writes lib to w.
func EncodeLibrary(w io.Writer, lib sigmatch.Library) error {
	docs := make([]objectDoc, 0, len(lib))
	for _, obj := range lib {
		od := objectDoc{File: obj.File, Sections: []sectionDoc{}}
		for _, sec := range obj.Sections {
			sd := sectionDoc{Name: sec.Name, Size: Dec(sec.Size), Symbols: []symbolDoc{}}
			for _, sym := range sec.Symbols {
				yd := symbolDoc{
					Symbol:       sym.Name,
					Offset:       Hex(sym.Offset),
					Size:         Dec(sym.Size),
					Crc8:         Hex(sym.ChecksumShort),
					CrcAll:       Hex(sym.ChecksumFull),
					DuplicateCrc: sym.DuplicateChecksum,
					NoData:       sym.NoData,
					Relocations:  []relocationDoc{},
				}
				for _, rel := range sym.Relocations {
					yd.Relocations = append(yd.Relocations, relocationDoc{
						Type:   rel.Kind,
						Offset: Hex(rel.Offset),
						Addend: Hex(rel.Addend),
						Local:  rel.Local,
						Name:   rel.Name,
					})
				}
				sd.Symbols = append(sd.Symbols, yd)
			}
			od.Sections = append(od.Sections, sd)
		}
		docs = append(docs, od)
	}
	return encode(w, docs)
}

// DecodeLibrary reads a library written by EncodeLibrary.
func DecodeLibrary(r io.Reader) (sigmatch.Library, error) {
	var docs []objectDoc
	if err := decode(r, &docs); err != nil {
		return nil, err
	}

	lib := make(sigmatch.Library, 0, len(docs))
	for _, od := range docs {
		obj := sigmatch.SigObject{File: od.File}
		for _, sd := range od.Sections {
			sec := sigmatch.SigSection{Name: sd.Name, Size: uint32(sd.Size)}
			for _, yd := range sd.Symbols {
				sym := sigmatch.SigSymbol{
					Name:              yd.Symbol,
					Offset:            uint32(yd.Offset),
					Size:              uint32(yd.Size),
					ChecksumShort:     uint32(yd.Crc8),
					ChecksumFull:      uint32(yd.CrcAll),
					DuplicateChecksum: yd.DuplicateCrc,
					NoData:            yd.NoData,
				}
				for _, rd := range yd.Relocations {
					if !rd.Type.Valid() {
						return nil, fmt.Errorf("%s: %s: unknown relocation type %q", od.File, yd.Symbol, rd.Type)
					}
					sym.Relocations = append(sym.Relocations, sigmatch.SigRelocation{
						Kind:   rd.Type,
						Offset: uint32(rd.Offset),
						Addend: uint32(rd.Addend),
						Local:  rd.Local,
						Name:   rd.Name,
					})
				}
				sec.Symbols = append(sec.Symbols, sym)
			}
			obj.Sections = append(obj.Sections, sec)
		}
		lib = append(lib, obj)
	}
	return lib, nil
}

type segmentDoc struct {
	Start Hex    `yaml:"start"`
	VRAM  Hex    `yaml:"vram"`
	Type  string `yaml:"type"`
	Name  string `yaml:"name"`
}

// MarshalYAML writes each segment on a single line.
func (s segmentDoc) MarshalYAML() (any, error) {
	type plain segmentDoc
	var n yaml.Node
	if err := n.Encode(plain(s)); err != nil {
		return nil, err
	}
	n.Style = yaml.FlowStyle
	return &n, nil
}

// EncodeSegments writes segments to w, one flow mapping per line.
func EncodeSegments(w io.Writer, segments []sigmatch.Segment) error {
	docs := make([]segmentDoc, 0, len(segments))
	for _, s := range segments {
		docs = append(docs, segmentDoc{
			Start: Hex(s.Start),
			VRAM:  Hex(s.VRAM),
			Type:  s.Kind,
			Name:  s.Label,
		})
	}
	return encode(w, docs)
}

// DecodeSegments reads a segment list such as the one written by
// EncodeSegments.
func DecodeSegments(r io.Reader) ([]sigmatch.Segment, error) {
	var docs []segmentDoc
	if err := decode(r, &docs); err != nil {
		return nil, err
	}
	segments := make([]sigmatch.Segment, 0, len(docs))
	for _, d := range docs {
		segments = append(segments, sigmatch.Segment{
			Start: uint32(d.Start),
			VRAM:  uint32(d.VRAM),
			Kind:  d.Type,
			Label: d.Name,
		})
	}
	return segments, nil
}

type patternRelocationDoc struct {
	Type   sigmatch.RelocationKind `yaml:"type"`
	Offset Hex                     `yaml:"offset"`
	Addend Hex                     `yaml:"addend"`
}

type patternDoc struct {
	Object      string                 `yaml:"object"`
	Section     string                 `yaml:"section"`
	Size        Hex                    `yaml:"size"`
	Crc8        Hex                    `yaml:"crc_8"`
	CrcAll      Hex                    `yaml:"crc_all"`
	Relocations []patternRelocationDoc `yaml:"relocations,omitempty"`
}

// EncodePatterns writes section patterns to w.
func EncodePatterns(w io.Writer, patterns []sigmatch.SectionPattern) error {
	docs := make([]patternDoc, 0, len(patterns))
	for _, p := range patterns {
		d := patternDoc{
			Object:  p.Object,
			Section: p.Section,
			Size:    Hex(p.Size),
			Crc8:    Hex(p.ChecksumShort),
			CrcAll:  Hex(p.ChecksumFull),
		}
		for _, rel := range p.Relocations {
			d.Relocations = append(d.Relocations, patternRelocationDoc{
				Type:   rel.Kind,
				Offset: Hex(rel.Offset),
				Addend: Hex(rel.Addend),
			})
		}
		docs = append(docs, d)
	}
	return encode(w, docs)
}

// DecodePatterns reads patterns written by EncodePatterns.
func DecodePatterns(r io.Reader) ([]sigmatch.SectionPattern, error) {
	var docs []patternDoc
	if err := decode(r, &docs); err != nil {
		return nil, err
	}
	patterns := make([]sigmatch.SectionPattern, 0, len(docs))
	for _, d := range docs {
		p := sigmatch.SectionPattern{
			Object:        d.Object,
			Section:       d.Section,
			Size:          uint32(d.Size),
			ChecksumShort: uint32(d.Crc8),
			ChecksumFull:  uint32(d.CrcAll),
		}
		for _, rd := range d.Relocations {
			if !rd.Type.Valid() {
				return nil, fmt.Errorf("%s %s: unknown relocation type %q", d.Object, d.Section, rd.Type)
			}
			p.Relocations = append(p.Relocations, sigmatch.SigRelocation{
				Kind:   rd.Type,
				Offset: uint32(rd.Offset),
				Addend: uint32(rd.Addend),
			})
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
