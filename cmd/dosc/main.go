package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"dosc/pkg/compiler"
	"dosc/pkg/dosexe"
)

const usageText = `usage: dosc [<input>] <output> [/target:dos]

With one positional argument the source is read from standard input
and the argument names the output executable.`

var stderrIsTerminal = term.IsTerminal(int(os.Stderr.Fd()))

func paint(code, s string) string {
	if !stderrIsTerminal {
		return s
	}
	return code + s + "\x1b[0m"
}

func fatalf(format string, args ...any) int {
	fmt.Fprintln(os.Stderr, paint("\x1b[91m", "error:"), fmt.Sprintf(format, args...))
	return 1
}

// printSourceLine echoes the offending source line under a positioned
// diagnostic.
func printSourceLine(err error, pre *compiler.PreprocessResult) {
	var cerr *compiler.Error
	if !errors.As(err, &cerr) || cerr.Line <= 0 || pre == nil {
		return
	}
	lines := strings.Split(pre.Source, "\n")
	if cerr.Line > len(lines) {
		return
	}
	fmt.Fprintln(os.Stderr, paint("\x1b[90m", "|>"), strings.TrimRight(lines[cerr.Line-1], "\r"))
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var positional []string
	target := "dos"
	for _, arg := range args {
		if strings.HasPrefix(arg, "/target:") {
			target = strings.TrimPrefix(arg, "/target:")
			continue
		}
		positional = append(positional, arg)
	}
	if target != "dos" {
		return fatalf("Unsupported compilation target \"%s\"", target)
	}

	var (
		b      *compiler.Builder
		pre    *compiler.PreprocessResult
		err    error
		output string
	)
	switch len(positional) {
	case 1:
		output = positional[0]
		var src []byte
		src, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fatalf("Cannot read standard input: %v", err)
		}
		b, pre, err = compiler.Compile(string(src), ".")
	case 2:
		output = positional[1]
		b, pre, err = compiler.CompileFile(positional[0])
	default:
		fmt.Fprintln(os.Stderr, usageText)
		return 1
	}

	if pre != nil {
		for _, w := range pre.Warnings {
			fmt.Fprintln(os.Stderr, paint("\x1b[93m", "warning:"), w)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printSourceLine(err, pre)
		return 1
	}

	image, err := dosexe.Emit(b, dosexe.Options{StackSize: pre.StackSize})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := os.WriteFile(output, image, 0o644); err != nil {
		return fatalf("Cannot write output file \"%s\": %v", output, err)
	}
	fmt.Printf("%s: %d bytes\n", output, len(image))
	return 0
}
