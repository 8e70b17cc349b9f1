package compiler

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestCompile(t *testing.T) {
	b, pre, err := Compile(`#stack 1024
uint8 Main()
{
    PrintString("ok");
    return 0;
}
`, ".")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if pre.StackSize != 1024 {
		t.Errorf("StackSize = %d, want 1024", pre.StackSize)
	}
	if len(b.Stream()) == 0 {
		t.Error("empty instruction stream")
	}
	if entry := b.Table().FindSymbol("Main"); entry == nil || entry.Type.Base != BaseEntryPoint {
		t.Errorf("Main = %v, want resolved entry point", entry)
	}
}

func TestCompileErrorFormat(t *testing.T) {
	_, _, err := Compile("uint8 Main()\n{\n    nope = 1;\n    return 0;\n}\n", ".")
	if err == nil {
		t.Fatal("Compile succeeded, want error")
	}
	if !regexp.MustCompile(`^\[\d+:\d+\] `).MatchString(err.Error()) {
		t.Errorf("error = %q, want [line:col] prefix", err)
	}
}

func TestCompilePreprocessFailure(t *testing.T) {
	_, pre, err := Compile("#stack 0\nuint8 Main()\n{\n    return 0;\n}\n", ".")
	if err == nil {
		t.Fatal("Compile succeeded, want stack size error")
	}
	if pre != nil {
		t.Errorf("preprocess result = %v, want nil on preprocess failure", pre)
	}
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "lib.inc", "uint32 shared;")
	writeSource(t, dir, "main.src", `#include "lib.inc"`+`
uint8 Main()
{
    shared = 7;
    return 0;
}
`)

	b, pre, err := CompileFile(filepath.Join(dir, "main.src"))
	if err != nil {
		t.Fatalf("CompileFile failed: %v", err)
	}
	if pre == nil {
		t.Fatal("no preprocess result")
	}
	if sym := b.Table().FindSymbol("shared"); sym == nil {
		t.Error("included declaration missing from symbol table")
	}
}

func TestCompileFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.src")
	if _, err := os.Stat(path); err == nil {
		t.Fatal("file unexpectedly exists")
	}
	_, _, err := CompileFile(path)
	if err == nil || !strings.Contains(err.Error(), "Cannot read source file") {
		t.Errorf("error = %v, want read failure", err)
	}
}
