package compiler

import "sort"

// PostprocessSymbolTable resolves the entry jump, fixes up function
// start positions and walks the call graph so unreferenced functions
// can be skipped by code generation.
func PostprocessSymbolTable(b *Builder) error {
	table := b.Table()

	entry := table.FindSymbol("Main")
	if entry == nil || entry.Type.Base != BaseEntryPoint {
		return newError(SourceCompilation, "Entry point \"Main\" not found")
	}

	// Position 0 holds the jump over the function bodies into the entry
	// point, so the first parsed function really starts at position 1.
	for _, e := range table.Entries() {
		if (e.Type.Base == BaseFunction || e.Type.Base == BaseEntryPoint) && e.IP == 0 {
			e.IP = 1
		}
	}
	b.Stream()[0].Goto.IP = entry.IP

	type span struct {
		fn         *SymbolEntry
		start, end int
	}
	var spans []span
	for _, e := range table.Entries() {
		if e.Type.Base == BaseFunction || e.Type.Base == BaseEntryPoint {
			spans = append(spans, span{fn: e, start: e.IP})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := range spans {
		if i+1 < len(spans) {
			spans[i].end = spans[i+1].start
		} else {
			spans[i].end = len(b.Stream())
		}
	}
	spanOf := make(map[*SymbolEntry]span, len(spans))
	for _, s := range spans {
		spanOf[s.fn] = s
	}

	entry.RefCount++
	visited := map[*SymbolEntry]bool{entry: true}
	work := []*SymbolEntry{entry}
	for len(work) > 0 {
		fn := work[len(work)-1]
		work = work[:len(work)-1]
		s := spanOf[fn]
		for _, inst := range b.Stream()[s.start:s.end] {
			if inst.Type != InstCall {
				continue
			}
			callee := inst.Call.Target
			if callee.Type.Base == BaseFunctionPrototype {
				return newError(SourceCompilation, "Function \"%s\" is declared but not defined", callee.Name)
			}
			callee.RefCount++
			if callee.Type.Base == BaseFunction && !visited[callee] {
				visited[callee] = true
				work = append(work, callee)
			}
		}
	}
	return nil
}
