// Package output renders scan results in the formats understood by common
// N64 disassembly and debugging tools.
package output

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/ianlancetaylor/demangle"

	"github.com/maxgio92/sigmatch"
	"github.com/maxgio92/sigmatch/sigyaml"
)

// ErrUnknownFormat is returned by Lookup for unregistered format names.
var ErrUnknownFormat = errors.New("unknown output format")

// DefaultFormat is the format used when none is selected.
const DefaultFormat = "splat"

// Sink writes a scan result in one output format.
type Sink interface {
	Write(w io.Writer, r *sigmatch.Result) error
}

// Options configures the sinks returned by Lookup.
type Options struct {
	// Demangle turns mangled C++ symbol names into readable ones.
	Demangle bool
}

var formats = map[string]func(Options) Sink{
	"splat": func(Options) Sink { return splatSink{} },
	"default": func(o Options) Sink {
		return lineSink{opts: o, line: func(w io.Writer, addr uint32, name string) error {
			_, err := fmt.Fprintf(w, "%08X %s\n", addr, name)
			return err
		}}
	},
	"pj64": func(o Options) Sink {
		return lineSink{opts: o, line: func(w io.Writer, addr uint32, name string) error {
			_, err := fmt.Fprintf(w, "%08X,code,%s\n", addr, name)
			return err
		}}
	},
	"armips": func(o Options) Sink {
		return lineSink{opts: o, line: func(w io.Writer, addr uint32, name string) error {
			_, err := fmt.Fprintf(w, ".definelabel %s, 0x%08X\n", name, addr)
			return err
		}}
	},
	"ld": func(o Options) Sink {
		return lineSink{opts: o, line: func(w io.Writer, addr uint32, name string) error {
			_, err := fmt.Fprintf(w, "%s = 0x%08X;\n", name, addr)
			return err
		}}
	},
	"nemu":     func(o Options) Sink { return nemuSink{opts: o} },
	"n64split": func(o Options) Sink { return n64splitSink{opts: o} },
}

// Formats returns the registered format names, sorted.
func Formats() []string {
	return slices.Sorted(maps.Keys(formats))
}

// Lookup returns the sink registered under name.
func Lookup(name string, opts Options) (Sink, error) {
	f, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownFormat)
	}
	return f(opts), nil
}

func (o Options) label(name string) string {
	if !o.Demangle {
		return name
	}
	pretty, err := demangle.ToString(name)
	if err != nil {
		return name
	}
	return pretty
}

// splatSink writes the consolidated segment map as a splat YAML list.
type splatSink struct{}

func (splatSink) Write(w io.Writer, r *sigmatch.Result) error {
	return sigyaml.EncodeSegments(w, r.Segments)
}

// lineSink writes one line per matched symbol.
type lineSink struct {
	opts Options
	line func(w io.Writer, addr uint32, name string) error
}

func (s lineSink) Write(w io.Writer, r *sigmatch.Result) error {
	for _, m := range r.Matches {
		if err := s.line(w, m.VRAM, s.opts.label(m.Symbol)); err != nil {
			return err
		}
	}
	return nil
}

// nemuSink writes a Nemu64 symbol tree.
type nemuSink struct {
	opts Options
}

func (s nemuSink) Write(w io.Writer, r *sigmatch.Result) error {
	if _, err := io.WriteString(w, "Root\n\tCPU\n"); err != nil {
		return err
	}
	for _, m := range r.Matches {
		if _, err := fmt.Fprintf(w, "\t\tCPU 0x%08X: %s\n", m.VRAM, s.opts.label(m.Symbol)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\tMemory\n\tRSP\n")
	return err
}

// n64splitSink writes an n64split labels list.
type n64splitSink struct {
	opts Options
}

func (s n64splitSink) Write(w io.Writer, r *sigmatch.Result) error {
	if _, err := io.WriteString(w, "labels:\n"); err != nil {
		return err
	}
	for _, m := range r.Matches {
		if _, err := fmt.Fprintf(w, "   - [0x%08X, \"%s\"]\n", m.VRAM, s.opts.label(m.Symbol)); err != nil {
			return err
		}
	}
	return nil
}
