package compiler

// Compile runs the source-to-IR half of the pipeline: preprocess the
// source, parse it into a three-address instruction stream and resolve
// the entry point and call graph. The returned builder holds the stream
// and symbol table ready for emission; the preprocess result carries
// the requested stack size and any directive warnings.
func Compile(src string, baseDir string) (*Builder, *PreprocessResult, error) {
	pre, err := Preprocess(src, baseDir)
	if err != nil {
		return nil, nil, err
	}
	b, err := Parse(pre.Source)
	if err != nil {
		return nil, pre, err
	}
	if err := PostprocessSymbolTable(b); err != nil {
		return nil, pre, err
	}
	return b, pre, nil
}

// CompileFile reads path and compiles its contents, resolving includes
// relative to the file's directory.
func CompileFile(path string) (*Builder, *PreprocessResult, error) {
	pre, err := PreprocessFile(path)
	if err != nil {
		return nil, nil, err
	}
	b, err := Parse(pre.Source)
	if err != nil {
		return nil, pre, err
	}
	if err := PostprocessSymbolTable(b); err != nil {
		return nil, pre, err
	}
	return b, pre, nil
}
