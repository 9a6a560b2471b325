package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/subcmd"
	"github.com/spf13/pflag"

	"github.com/maxgio92/sigmatch"
	"github.com/maxgio92/sigmatch/elfobj"
	"github.com/maxgio92/sigmatch/internal/logger"
	"github.com/maxgio92/sigmatch/output"
	"github.com/maxgio92/sigmatch/sigyaml"
)

func main() {
	cmds := []subcmd.Command{
		{
			Name:        "sig",
			Description: "derive a signature library from object files and archives",
			Do:          func(args []string) { exit(cmdSig(args, os.Stdout)) },
		},
		{
			Name:        "match",
			Description: "find the symbols of a signature library in a ROM image",
			Do:          func(args []string) { exit(cmdMatch(args, os.Stdout)) },
		},
		{
			Name:        "patterns",
			Description: "refine a segment list with whole-section patterns",
			Do:          func(args []string) { exit(cmdPatterns(args, os.Stdout)) },
		},
	}
	subcmd.Run(cmds)
}

// number of diagnostics printed after a failed command
const tailEntries = 10

// echoing is set when diagnostics already go to stderr as they are logged.
var echoing bool

func exit(err error) {
	if report(os.Stderr, err) {
		os.Exit(1)
	}
}

// report prints err followed by the most recent diagnostics, unless they
// were already echoed. It reports whether err is a failure.
func report(w io.Writer, err error) bool {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return false
	}
	fmt.Fprintf(w, "sigmatch: %v\n", err)
	if !echoing && len(logger.Entries()) > 0 {
		fmt.Fprintln(w, "recent diagnostics:")
		logger.Tail(w, tailEntries)
	}
	return true
}

func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sigmatch %s %s\n\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// openOutput returns stdout, or the named file when name is set.
func openOutput(name string, stdout io.Writer) (io.Writer, func() error, error) {
	if name == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, f.Close, nil
}

// startLog starts a fresh diagnostic log for one command.
func startLog(verbose bool) {
	logger.Clear()
	echoing = verbose
	if verbose {
		logger.SetEcho(os.Stderr)
	} else {
		logger.SetEcho(nil)
	}
}

// saveLog writes the whole diagnostic log to the named file, if any.
func saveLog(name string) error {
	if name == "" {
		return nil
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	logger.Write(f)
	return f.Close()
}

func loadRecords(paths []string) ([]sigmatch.ObjectRecord, error) {
	var records []sigmatch.ObjectRecord
	for _, p := range paths {
		recs, err := elfobj.LoadFile(p)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

func loadImage(path string, opts sigmatch.ImageOptions) (*sigmatch.BinaryImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := sigmatch.LoadImage(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

func cmdSig(args []string, stdout io.Writer) error {
	fs := newFlagSet("sig", "[OPTIONS] LIB.a|OBJ.o...")
	out := fs.StringP("out", "o", "", "write the library to `file` instead of stdout")
	workers := fs.Int("workers", 0, "objects processed concurrently (default one per CPU)")
	verbose := fs.BoolP("verbose", "v", false, "print diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("expected at least one object or archive")
	}
	startLog(*verbose)

	records, err := loadRecords(fs.Args())
	if err != nil {
		return err
	}
	lib := sigmatch.BuildLibrary(records, sigmatch.WithWorkers(*workers))

	w, closeOut, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}
	if err := sigyaml.EncodeLibrary(w, lib); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func cmdMatch(args []string, stdout io.Writer) (err error) {
	fs := newFlagSet("match", "--sig FILE [OPTIONS] ROM")
	sigPath := fs.StringP("sig", "s", "", "signature library `file`")
	header := fs.Uint32("header", 0, "header size, overrides the one derived from the boot block")
	format := fs.StringP("format", "f", output.DefaultFormat, fmt.Sprintf("output format, one of %v", output.Formats()))
	demangle := fs.Bool("demangle", false, "demangle C++ symbol names")
	callTargets := fs.Bool("call-targets", false, "also test the targets of jal instructions")
	out := fs.StringP("out", "o", "", "write the result to `file` instead of stdout")
	workers := fs.Int("workers", 0, "symbols tested concurrently (default one per CPU)")
	verbose := fs.BoolP("verbose", "v", false, "print diagnostics to stderr")
	logFile := fs.String("log", "", "write all diagnostics to `file`")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *sigPath == "" {
		fs.Usage()
		return errors.New("expected --sig and exactly one ROM image")
	}
	startLog(*verbose)
	defer func() { err = errors.Join(err, saveLog(*logFile)) }()

	sink, err := output.Lookup(*format, output.Options{Demangle: *demangle})
	if err != nil {
		return err
	}

	f, err := os.Open(*sigPath)
	if err != nil {
		return fmt.Errorf("failed to open signature library: %w", err)
	}
	lib, err := sigyaml.DecodeLibrary(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *sigPath, err)
	}

	img, err := loadImage(fs.Arg(0), sigmatch.ImageOptions{
		OverrideHeader: fs.Changed("header"),
		HeaderSize:     *header,
	})
	if err != nil {
		return err
	}

	scanner := &sigmatch.Scanner{
		Library:     lib,
		Workers:     *workers,
		CallTargets: *callTargets,
	}
	res, err := scanner.Scan(img)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", fs.Arg(0), err)
	}

	w, closeOut, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}
	if err := sink.Write(w, res); err != nil {
		closeOut()
		return fmt.Errorf("failed to write result: %w", err)
	}
	return closeOut()
}

func cmdPatterns(args []string, stdout io.Writer) error {
	fs := newFlagSet("patterns", "--segments FILE [OPTIONS] ROM LIB.a...\n       sigmatch patterns --analyze LIB.a...")
	segPath := fs.String("segments", "", "segment list `file` to refine")
	prefix := fs.String("prefix", "", "prefix for the names of matched segments")
	analyze := fs.Bool("analyze", false, "print the unique section patterns instead of applying them")
	out := fs.StringP("out", "o", "", "write the result to `file` instead of stdout")
	verbose := fs.BoolP("verbose", "v", false, "print diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	startLog(*verbose)

	w, closeOut, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}
	if err := runPatterns(fs, *analyze, *segPath, *prefix, w); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func runPatterns(fs *pflag.FlagSet, analyze bool, segPath, prefix string, w io.Writer) error {
	if analyze {
		if fs.NArg() == 0 {
			fs.Usage()
			return errors.New("expected at least one object or archive")
		}
		records, err := loadRecords(fs.Args())
		if err != nil {
			return err
		}
		return sigyaml.EncodePatterns(w, sigmatch.UniquePatterns(sigmatch.BuildPatterns(records)))
	}

	if fs.NArg() < 2 || segPath == "" {
		fs.Usage()
		return errors.New("expected --segments, a ROM image and at least one object or archive")
	}

	f, err := os.Open(segPath)
	if err != nil {
		return fmt.Errorf("failed to open segment list: %w", err)
	}
	segments, err := sigyaml.DecodeSegments(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", segPath, err)
	}

	img, err := loadImage(fs.Arg(0), sigmatch.ImageOptions{})
	if err != nil {
		return err
	}
	records, err := loadRecords(fs.Args()[1:])
	if err != nil {
		return err
	}

	patterns := sigmatch.UniquePatterns(sigmatch.BuildPatterns(records))
	return sigyaml.EncodeSegments(w, sigmatch.ApplyPatterns(segments, img, patterns, prefix))
}
