package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/maxgio92/sigmatch/internal/logger"
	"github.com/maxgio92/sigmatch/internal/testobj"
)

const (
	testHeader  = 0x7FFFF400
	testTextOff = 0x1000
	testDataOff = 0x1030
	testROMSize = 0x1040
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
	return p
}

func TestSigThenMatch(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "libexample.a", testobj.Archive(testobj.Member{
		Name: "example.o",
		Data: testobj.ExampleObject().Bytes(),
	}))
	rom := writeFile(t, dir, "game.z64", testobj.LinkExample(testHeader, testTextOff, testDataOff, testROMSize))
	sig := filepath.Join(dir, "libexample.yaml")

	if err := cmdSig([]string{"-o", sig, lib}, nil); err != nil {
		t.Fatalf("sig: unexpected error: %v", err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "Default",
			args: []string{"--sig", sig, "--header", "0x7FFFF400", "--format", "default", rom},
			want: "80000400 example\n",
		},
		{
			name: "Splat",
			args: []string{"--sig", sig, "--header", "0x7FFFF400", rom},
			want: "- {start: 0x1000, vram: 0x80000400, type: .text, name: example}\n" +
				"- {start: 0x101c, vram: 0x8000041c, type: bin, name: \"0x101c\"}\n" +
				"- {start: 0x1030, vram: 0x80000430, type: .data, name: example}\n" +
				"- {start: 0x1034, vram: 0x80000434, type: bin, name: \"0x1034\"}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b bytes.Buffer
			if err := cmdMatch(tt.args, &b); err != nil {
				t.Fatalf("match: unexpected error: %v", err)
			}
			if b.String() != tt.want {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.want, b.String())
			}
		})
	}
}

func TestSigStdout(t *testing.T) {
	dir := t.TempDir()
	obj := writeFile(t, dir, "example.o", testobj.ExampleObject().Bytes())

	var b bytes.Buffer
	if err := cmdSig([]string{obj}, &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"file: example", "symbol: example", "type: hi16", "name: number0"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, b.String())
		}
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func([]string) error
		args []string
	}{
		{
			name: "SigNoInput",
			run:  func(args []string) error { return cmdSig(args, nil) },
		},
		{
			name: "MatchNoSig",
			run:  func(args []string) error { return cmdMatch(args, nil) },
			args: []string{"game.z64"},
		},
		{
			name: "MatchUnknownFormat",
			run:  func(args []string) error { return cmdMatch(args, nil) },
			args: []string{"--sig", "lib.yaml", "--format", "csv", "game.z64"},
		},
		{
			name: "PatternsNoSegments",
			run:  func(args []string) error { return cmdPatterns(args, nil) },
			args: []string{"game.z64", "lib.a"},
		},
		{
			name: "UnknownFlag",
			run:  func(args []string) error { return cmdSig(args, nil) },
			args: []string{"--frobnicate", "lib.a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(tt.args); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestPatternsAnalyze(t *testing.T) {
	dir := t.TempDir()
	obj := writeFile(t, dir, "example.o", testobj.ExampleObject().Bytes())

	var b bytes.Buffer
	if err := cmdPatterns([]string{"--analyze", obj}, &b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"object: example", "section: .text", "size: 0x1c"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, b.String())
		}
	}
}

func TestMatchLogFile(t *testing.T) {
	dir := t.TempDir()
	obj := writeFile(t, dir, "example.o", testobj.ExampleObject().Bytes())
	rom := writeFile(t, dir, "game.z64", testobj.LinkExample(testHeader, testTextOff, testDataOff, testROMSize))
	sig := filepath.Join(dir, "example.yaml")
	logFile := filepath.Join(dir, "match.log")

	if err := cmdSig([]string{"-o", sig, obj}, nil); err != nil {
		t.Fatalf("sig: unexpected error: %v", err)
	}
	var b bytes.Buffer
	if err := cmdMatch([]string{"--sig", sig, "--header", "0x7FFFF400", "--log", logFile, rom}, &b); err != nil {
		t.Fatalf("match: unexpected error: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "SCAN: 1 of 1 symbols matched\n"; !strings.Contains(string(data), want) {
		t.Errorf("expected %q in log:\n%s", want, data)
	}
}

func TestReport(t *testing.T) {
	startLog(false)
	defer logger.Clear()

	var b bytes.Buffer
	if report(&b, nil) || report(&b, pflag.ErrHelp) {
		t.Error("expected no failure for nil or help")
	}
	if b.Len() != 0 {
		t.Errorf("unexpected output %q", b.String())
	}

	if !report(&b, errors.New("boom")) || b.String() != "sigmatch: boom\n" {
		t.Errorf("expected the bare error with an empty log, got %q", b.String())
	}

	for i := range tailEntries + 2 {
		logger.Logf("SIG", "entry %d", i)
	}
	b.Reset()
	report(&b, errors.New("boom"))
	want := "sigmatch: boom\nrecent diagnostics:\n"
	for i := 2; i < tailEntries+2; i++ {
		want += fmt.Sprintf("SIG: entry %d\n", i)
	}
	if b.String() != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, b.String())
	}
}
