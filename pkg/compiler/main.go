// Package compiler turns a small C-like language into a three-address
// instruction stream in a single pass.
//
// Pipeline: source → Preprocess → Lex → Parse → PostprocessSymbolTable.
// The parser drives a Builder that appends instructions as it reads
// tokens; forward jump targets are resolved through backpatch lists.
// The resulting Builder feeds the pkg/dosexe emitter, which translates
// the stream into a DOS MZ executable.
package compiler
