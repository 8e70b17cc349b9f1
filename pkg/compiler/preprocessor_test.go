package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPreprocessStackDirective(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{"Absolute", "#stack 1024", 1024},
		{"Second Absolute Overwrites", "#stack 1024\n#stack 512", 512},
		{"Raise Only Keeps Larger", "#stack 1024\n#stack ^512", 1024},
		{"Raise Only Raises", "#stack 1024\n#stack ^2048", 2048},
		{"Raise Only From Unset", "#stack ^300", 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Preprocess(tt.src, ".")
			if err != nil {
				t.Fatalf("Preprocess failed: %v", err)
			}
			if res.StackSize != tt.want {
				t.Errorf("StackSize = %d, want %d", res.StackSize, tt.want)
			}
		})
	}
}

func TestPreprocessStackDirectiveInvalid(t *testing.T) {
	for _, src := range []string{"#stack 0", "#stack -5", "#stack 65536", "#stack abc", "#stack ^0"} {
		t.Run(src, func(t *testing.T) {
			if _, err := Preprocess(src, "."); err == nil {
				t.Errorf("Preprocess(%q) succeeded, want error", src)
			} else if !strings.Contains(err.Error(), "Invalid stack size") {
				t.Errorf("Preprocess(%q) error = %q, want invalid stack size", src, err)
			}
		})
	}
}

func TestPreprocessKeepsPlainLines(t *testing.T) {
	res, err := Preprocess("uint8 a;\nuint8 b;", ".")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if res.Source != "uint8 a;\nuint8 b;\n" {
		t.Errorf("Source = %q", res.Source)
	}
}

func TestPreprocessUnknownDirective(t *testing.T) {
	res, err := Preprocess("#frobnicate now\nuint8 a;", ".")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], `unknown directive "#frobnicate"`) {
		t.Errorf("Warnings = %v, want one unknown-directive warning", res.Warnings)
	}
	if strings.Contains(res.Source, "#frobnicate") {
		t.Errorf("unknown directive was not removed: %q", res.Source)
	}
}

func TestPreprocessInclude(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "lib.inc", "uint8 shared;")

	res, err := Preprocess(`#include "lib.inc"`+"\nuint8 own;", dir)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if !strings.Contains(res.Source, "uint8 shared;") {
		t.Errorf("included content missing from %q", res.Source)
	}
	if !strings.Contains(res.Source, "uint8 own;") {
		t.Errorf("own content missing from %q", res.Source)
	}
}

func TestPreprocessIncludeRelativeToIncluder(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSource(t, dir, "main.src", `#include "sub/outer.inc"`)
	writeSource(t, sub, "outer.inc", `#include "inner.inc"`)
	writeSource(t, sub, "inner.inc", "uint16 nested;")

	res, err := PreprocessFile(filepath.Join(dir, "main.src"))
	if err != nil {
		t.Fatalf("PreprocessFile failed: %v", err)
	}
	if !strings.Contains(res.Source, "uint16 nested;") {
		t.Errorf("nested include missing from %q", res.Source)
	}
}

func TestPreprocessIncludeStackDirective(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "lib.inc", "#stack ^4096")

	res, err := Preprocess("#stack 512\n"+`#include "lib.inc"`, dir)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if res.StackSize != 4096 {
		t.Errorf("StackSize = %d, want 4096", res.StackSize)
	}
}

func TestPreprocessIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.inc", `#include "b.inc"`)
	writeSource(t, dir, "b.inc", `#include "a.inc"`)

	_, err := PreprocessFile(filepath.Join(dir, "a.inc"))
	if err == nil {
		t.Fatal("PreprocessFile succeeded, want circular include error")
	}
	if !strings.Contains(err.Error(), "Circular include") {
		t.Errorf("error = %q, want circular include", err)
	}
}

func TestPreprocessIncludeSelf(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "self.inc", `#include "self.inc"`)

	_, err := PreprocessFile(filepath.Join(dir, "self.inc"))
	if err == nil || !strings.Contains(err.Error(), "Circular include") {
		t.Errorf("error = %v, want circular include", err)
	}
}

func TestPreprocessIncludeMissingFile(t *testing.T) {
	_, err := Preprocess(`#include "does_not_exist.inc"`, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "Cannot read included file") {
		t.Errorf("error = %v, want read failure", err)
	}
}

func TestPreprocessIncludeMalformed(t *testing.T) {
	for _, src := range []string{"#include lib.inc", `#include "a" trailing`} {
		t.Run(src, func(t *testing.T) {
			_, err := Preprocess(src, ".")
			if err == nil || !strings.Contains(err.Error(), "Invalid include directive") {
				t.Errorf("Preprocess(%q) error = %v, want invalid include", src, err)
			}
		})
	}
}

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
