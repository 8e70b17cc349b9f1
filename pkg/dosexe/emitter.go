package dosexe

import (
	"fmt"
	"sort"
	"strconv"

	"dosc/pkg/compiler"
)

type fixupKind int

const (
	fixupIP fixupKind = iota // rel16 to an instruction position
	fixupFunction            // rel16 call to a function by name
	fixupStatic              // abs16 address of a static slot
	fixupString              // abs16 address of an interned string
)

// fixup is a 16-bit slot in the output whose value depends on layout
// decisions made after the slot was emitted.
type fixup struct {
	kind   fixupKind
	pos    int
	target int
	name   string
	addend int
}

// Options controls code generation.
type Options struct {
	// StackSize in bytes; 0 selects the default.
	StackSize int
}

// Emitter translates the instruction stream into a DOS MZ executable.
type Emitter struct {
	buf   []byte
	table *compiler.SymbolTable

	strings         *stringPool
	fixups          []fixup
	ipToOffset      map[int]int
	functionOffsets map[string]int
	staticOffsets   map[string]int
	staticVars      map[string]*varState
	staticsSize     int

	vars       map[string]*varState
	regOwner   [4]*varState
	suppressed map[Register]bool
	tick       int

	pushBacklog []compiler.Operand
	current     *compiler.SymbolEntry
	localBytes  int
	paramBytes  int
}

// Emit turns a fully built and postprocessed program into the bytes of
// an MZ executable.
func Emit(b *compiler.Builder, opts Options) ([]byte, error) {
	e := &Emitter{
		table:           b.Table(),
		strings:         newStringPool(),
		ipToOffset:      make(map[int]int),
		functionOffsets: make(map[string]int),
		staticOffsets:   make(map[string]int),
		staticVars:      make(map[string]*varState),
		suppressed:      make(map[Register]bool),
	}

	stackSize := opts.StackSize
	if stackSize < minStackSize || stackSize > maxStackSize {
		stackSize = defaultStackSize
	}

	e.emitMzHeader()
	e.layoutStatics()

	stream := b.Stream()
	if err := e.emitInstructions(stream); err != nil {
		return nil, err
	}
	if err := e.emitSharedFunctions(); err != nil {
		return nil, err
	}

	stringsStart := len(e.buf)
	e.buf = append(e.buf, e.strings.image()...)

	staticsBase := pspSize + (len(e.buf) - mzHeaderSize)
	if err := e.resolveFixups(stringsStart, staticsBase); err != nil {
		return nil, err
	}
	e.fixMzHeader(e.staticsSize, stackSize)
	return e.buf, nil
}

func (e *Emitter) layoutStatics() {
	add := func(name string, size int, sym *compiler.SymbolEntry) {
		e.staticOffsets[name] = e.staticsSize
		e.staticVars[name] = &varState{sym: sym, reg: RegNone}
		e.staticsSize += (size + 1) &^ 1
	}
	for _, s := range e.table.Entries() {
		if s.Parent != "" || s.Type.IsCallable() || s.Type.Base == compiler.BaseLabel {
			continue
		}
		add(s.Name, s.Size, s)
	}
}

func (e *Emitter) lookupVar(name string) (*varState, error) {
	if vs, ok := e.vars[name]; ok {
		return vs, nil
	}
	if vs, ok := e.staticVars[name]; ok {
		return vs, nil
	}
	return nil, newCompileError("Unknown variable \"%s\"", name)
}

func newCompileError(format string, args ...any) *compiler.Error {
	return &compiler.Error{
		Source:  compiler.SourceCompilation,
		Message: fmt.Sprintf(format, args...),
		Line:    -1,
		Column:  -1,
	}
}

func newStatementError(format string, args ...any) *compiler.Error {
	return &compiler.Error{
		Source:  compiler.SourceStatement,
		Message: fmt.Sprintf(format, args...),
		Line:    -1,
		Column:  -1,
	}
}

func parseConst(s string) uint32 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return uint32(v)
}

type funcSpan struct {
	fn         *compiler.SymbolEntry
	start, end int
}

func (e *Emitter) functionSpans(stream []*compiler.Instruction) []funcSpan {
	var spans []funcSpan
	for _, s := range e.table.Entries() {
		if s.Type.Base == compiler.BaseFunction || s.Type.Base == compiler.BaseEntryPoint {
			spans = append(spans, funcSpan{fn: s, start: s.IP})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := range spans {
		if i+1 < len(spans) {
			spans[i].end = spans[i+1].start
		} else {
			spans[i].end = len(stream)
		}
	}
	return spans
}

func (e *Emitter) collectJumpTargets(stream []*compiler.Instruction, spans []funcSpan) map[int]bool {
	targets := make(map[int]bool)
	for _, inst := range stream {
		switch inst.Type {
		case compiler.InstGoto:
			targets[inst.Goto.IP] = true
		case compiler.InstIf:
			targets[inst.If.IP] = true
		}
	}
	for _, s := range e.table.Entries() {
		if s.Type.Base == compiler.BaseLabel {
			targets[s.IP] = true
		}
	}
	for _, sp := range spans {
		targets[sp.start] = true
	}
	return targets
}

func (e *Emitter) emitInstructions(stream []*compiler.Instruction) error {
	spans := e.functionSpans(stream)
	targets := e.collectJumpTargets(stream, spans)

	// Position 0 is the jump over every function body into the entry
	// point.
	e.ipToOffset[0] = len(e.buf)
	e.b(0xE9)
	e.fixups = append(e.fixups, fixup{kind: fixupIP, pos: len(e.buf), target: stream[0].Goto.IP})
	e.w(0)

	for _, sp := range spans {
		if sp.fn.RefCount == 0 {
			continue
		}
		if err := e.emitFunction(sp, stream, targets); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitFunction(sp funcSpan, stream []*compiler.Instruction, targets map[int]bool) error {
	e.beginFunction(sp.fn)
	e.functionOffsets[sp.fn.Name] = len(e.buf)
	e.ipToOffset[sp.start] = len(e.buf)

	e.asmProcEnter()
	if e.localBytes > 0 {
		e.b(0x81, toXRM(3, 5, byte(SP)))
		e.w(uint16(e.localBytes))
	}

	for ip := sp.start; ip < sp.end; ip++ {
		if targets[ip] && ip != sp.start {
			e.flushAll()
			e.ipToOffset[ip] = len(e.buf)
		}
		if err := e.emitOne(ip, stream[ip]); err != nil {
			return err
		}
	}
	return nil
}

// beginFunction computes the frame layout: parameters above the saved
// frame pointer, locals and temps below it.
func (e *Emitter) beginFunction(fn *compiler.SymbolEntry) {
	e.current = fn
	e.vars = make(map[string]*varState)
	e.pushBacklog = nil

	paramOff := 6
	e.paramBytes = 0
	for i := 1; ; i++ {
		p := e.table.FindParameter(fn.Name, i)
		if p == nil {
			break
		}
		slot := compiler.SizeOf(p.Type)
		if slot < 2 {
			slot = 2
		}
		e.vars[p.Name] = &varState{sym: p, reg: RegNone, offset: paramOff, isLocal: true}
		paramOff += slot
		e.paramBytes += slot
	}

	localOff := 0
	for _, s := range e.table.Entries() {
		if s.Parent != fn.Name || s.Parameter > 0 || s.Type.Base == compiler.BaseLabel {
			continue
		}
		localOff -= (s.Size + 1) &^ 1
		e.vars[s.Name] = &varState{sym: s, reg: RegNone, offset: localOff, isLocal: true}
	}
	e.localBytes = -localOff
}

func (e *Emitter) emitOne(ip int, inst *compiler.Instruction) error {
	switch inst.Type {
	case compiler.InstNop:
		return nil
	case compiler.InstAssign:
		return e.emitAssign(inst.Assign)
	case compiler.InstGoto:
		return e.emitGoto(ip, inst.Goto)
	case compiler.InstGotoLabel:
		return e.emitGotoLabel(inst.GotoLabel)
	case compiler.InstIf:
		return e.emitIf(inst.If)
	case compiler.InstPush:
		e.pushBacklog = append(e.pushBacklog, inst.Push.Op)
		return nil
	case compiler.InstCall:
		return e.emitCall(inst.Call)
	case compiler.InstReturn:
		return e.emitReturn(inst.Return)
	}
	return newCompileError("Cannot emit instruction of type \"%s\"", inst.Type)
}

func (e *Emitter) emitGoto(ip int, g *compiler.GotoInstruction) error {
	if g.IP == ip {
		return newCompileError("Jump to itself at position %d", ip)
	}
	if g.IP == ip+1 {
		return nil
	}
	e.flushAll()
	e.b(0xE9)
	e.fixups = append(e.fixups, fixup{kind: fixupIP, pos: len(e.buf), target: g.IP})
	e.w(0)
	return nil
}

func (e *Emitter) emitGotoLabel(g *compiler.GotoLabelInstruction) error {
	label := e.table.FindLabel(g.Label, e.current.Name)
	if label == nil {
		return newStatementError("Label \"%s\" is not declared in function \"%s\"", g.Label, e.current.Name)
	}
	e.flushAll()
	e.b(0xE9)
	e.fixups = append(e.fixups, fixup{kind: fixupIP, pos: len(e.buf), target: label.IP})
	e.w(0)
	return nil
}

// jcc opcodes for the short forms; the rel16 form is 0x0F followed by
// the opcode plus 0x10.
func jccOpcode(cmp compiler.CompareType) byte {
	switch cmp {
	case compiler.CompareEqual:
		return 0x74
	case compiler.CompareNotEqual:
		return 0x75
	case compiler.CompareGreater:
		return 0x77
	case compiler.CompareLess:
		return 0x72
	case compiler.CompareGreaterOrEqual:
		return 0x73
	case compiler.CompareLessOrEqual:
		return 0x76
	}
	return 0
}

func (e *Emitter) emitJcc(short byte, target int) {
	e.b(0x0F, short+0x10)
	e.fixups = append(e.fixups, fixup{kind: fixupIP, pos: len(e.buf), target: target})
	e.w(0)
}

func (e *Emitter) emitIf(f *compiler.IfInstruction) error {
	e.flushAll()

	op1, op2, cmp := f.Op1, f.Op2, f.Op
	if op1.Exp == compiler.ExpConstant && op2.Exp != compiler.ExpConstant {
		op1, op2 = op2, op1
		cmp = compiler.SwappedCompare(cmp)
	}

	if op1.Type.Base == compiler.BaseString && op1.Type.Pointer == 0 {
		return e.emitIfStrings(cmp, op1, op2, f.IP)
	}

	if op1.Exp == compiler.ExpConstant && op2.Exp == compiler.ExpConstant {
		if evalConstCompare(cmp, parseConst(op1.Value), parseConst(op2.Value)) {
			e.b(0xE9)
			e.fixups = append(e.fixups, fixup{kind: fixupIP, pos: len(e.buf), target: f.IP})
			e.w(0)
		}
		return nil
	}

	size := compiler.SizeOf(op1.Type)
	if s2 := compiler.SizeOf(op2.Type); s2 > size {
		size = s2
	}

	switch cmp {
	case compiler.CompareLogOr, compiler.CompareLogAnd:
		r, err := e.loadOperandFresh(op1, size)
		if err != nil {
			return err
		}
		e.suppress(r)
		if op2.Exp == compiler.ExpConstant {
			e.size32(size)
			slash := byte(1) // or
			if cmp == compiler.CompareLogAnd {
				slash = 4 // and
			}
			if size == 1 {
				e.b(0x80, toXRM(3, slash, byte(r)), byte(parseConst(op2.Value)))
			} else {
				e.b(0x81, toXRM(3, slash, byte(r)))
				if size == 4 {
					e.d(parseConst(op2.Value))
				} else {
					e.w(uint16(parseConst(op2.Value)))
				}
			}
		} else {
			r2, err := e.loadOperandFresh(op2, size)
			if err != nil {
				e.unsuppress(r)
				return err
			}
			e.size32(size)
			op := byte(0x0A) // or r8
			if cmp == compiler.CompareLogAnd {
				op = 0x22
			}
			if size > 1 {
				op++
			}
			e.b(op, toXRM(3, byte(r), byte(r2)))
		}
		e.unsuppress(r)
		e.emitJcc(0x75, f.IP)
		return nil
	}

	r, err := e.loadOperandFresh(op1, size)
	if err != nil {
		return err
	}
	e.suppress(r)
	if op2.Exp == compiler.ExpConstant {
		e.size32(size)
		if size == 1 {
			e.b(0x80, toXRM(3, 7, byte(r)), byte(parseConst(op2.Value)))
		} else {
			e.b(0x81, toXRM(3, 7, byte(r)))
			if size == 4 {
				e.d(parseConst(op2.Value))
			} else {
				e.w(uint16(parseConst(op2.Value)))
			}
		}
	} else {
		r2, err := e.loadOperandFresh(op2, size)
		if err != nil {
			e.unsuppress(r)
			return err
		}
		e.size32(size)
		if size == 1 {
			e.b(0x3A, toXRM(3, byte(r), byte(r2)))
		} else {
			e.b(0x3B, toXRM(3, byte(r), byte(r2)))
		}
	}
	e.unsuppress(r)
	e.emitJcc(jccOpcode(cmp), f.IP)
	return nil
}

func evalConstCompare(cmp compiler.CompareType, a, b uint32) bool {
	switch cmp {
	case compiler.CompareLogOr:
		return a|b != 0
	case compiler.CompareLogAnd:
		return a&b != 0
	case compiler.CompareEqual:
		return a == b
	case compiler.CompareNotEqual:
		return a != b
	case compiler.CompareGreater:
		return a > b
	case compiler.CompareLess:
		return a < b
	case compiler.CompareGreaterOrEqual:
		return a >= b
	case compiler.CompareLessOrEqual:
		return a <= b
	}
	return false
}

// emitIfStrings compares two strings by value through the runtime
// helper and branches on its result.
func (e *Emitter) emitIfStrings(cmp compiler.CompareType, op1, op2 compiler.Operand, target int) error {
	if cmp != compiler.CompareEqual && cmp != compiler.CompareNotEqual {
		return newStatementError("Cannot compare \"%s\" and \"%s\" values", op1.Type, op2.Type)
	}
	helper := e.table.GetFunction("#StringsEqual")
	helper.RefCount++

	for _, op := range []compiler.Operand{op2, op1} {
		if op.Exp == compiler.ExpConstant {
			idx := e.strings.intern(op.Value)
			e.b(0x68)
			e.fixups = append(e.fixups, fixup{kind: fixupString, pos: len(e.buf), target: idx})
			e.w(0)
			continue
		}
		if err := e.loadInto(AX, op, 2); err != nil {
			return err
		}
		e.asmPushReg(AX, 2)
	}
	e.b(0xE8)
	e.fixups = append(e.fixups, fixup{kind: fixupFunction, pos: len(e.buf), name: "#StringsEqual"})
	e.w(0)

	e.b(0x08, toXRM(3, byte(AX), byte(AX))) // or al, al
	if cmp == compiler.CompareEqual {
		e.emitJcc(0x75, target)
	} else {
		e.emitJcc(0x74, target)
	}
	return nil
}

func (e *Emitter) emitCall(c *compiler.CallInstruction) error {
	callee := c.Target
	argc := callee.Parameter
	if len(e.pushBacklog) < argc {
		return newCompileError("Missing pushed parameters for call to \"%s\"", callee.Name)
	}
	actuals := e.pushBacklog[len(e.pushBacklog)-argc:]
	e.pushBacklog = e.pushBacklog[:len(e.pushBacklog)-argc]

	e.flushAll()

	for i := argc - 1; i >= 0; i-- {
		formal := e.table.FindParameter(callee.Name, i+1)
		slot := compiler.SizeOf(formal.Type)
		if slot < 2 {
			slot = 2
		}
		actual := actuals[i]
		if actual.Exp == compiler.ExpConstant {
			if actual.Type.Base == compiler.BaseString && actual.Type.Pointer == 0 {
				idx := e.strings.intern(actual.Value)
				e.b(0x68)
				e.fixups = append(e.fixups, fixup{kind: fixupString, pos: len(e.buf), target: idx})
				e.w(0)
				continue
			}
			if slot == 4 {
				e.b(prefixOperand, 0x68)
				e.d(parseConst(actual.Value))
			} else {
				e.b(0x68)
				e.w(uint16(parseConst(actual.Value)))
			}
			continue
		}
		if err := e.loadInto(AX, actual, slot); err != nil {
			return err
		}
		e.asmPushReg(AX, slot)
	}

	e.b(0xE8)
	e.fixups = append(e.fixups, fixup{kind: fixupFunction, pos: len(e.buf), name: callee.Name})
	e.w(0)

	if c.ReturnSymbol != "" {
		vs, err := e.lookupVar(c.ReturnSymbol)
		if err != nil {
			return err
		}
		e.bindReg(AX, vs, true)
	}
	return nil
}

func (e *Emitter) emitReturn(r *compiler.ReturnInstruction) error {
	ret := e.current.ReturnType

	if e.current.Type.Base == compiler.BaseEntryPoint {
		if r.Op == nil {
			return newStatementError("All returns in function \"%s\" must return \"%s\" value, found \"void\" instead", e.current.Name, ret)
		}
		e.flushAll()
		if r.Op.Exp == compiler.ExpConstant {
			e.b(0xB0, byte(parseConst(r.Op.Value)))
		} else {
			if err := e.loadInto(AX, *r.Op, 1); err != nil {
				return err
			}
		}
		e.asmIntWithAH(dosFunctionDispatch, 0x4C)
		return nil
	}

	isVoid := ret.Base == compiler.BaseVoid && ret.Pointer == 0
	if isVoid {
		if r.Op != nil {
			return newStatementError("All returns in function \"%s\" must return \"void\" value, found \"%s\" instead", e.current.Name, r.Op.Type)
		}
		e.flushAll()
		e.asmProcLeave(e.paramBytes, e.localBytes > 0 || e.paramBytes > 0)
		return nil
	}

	if r.Op == nil {
		return newStatementError("All returns in function \"%s\" must return \"%s\" value, found \"void\" instead", e.current.Name, ret)
	}
	if ret != r.Op.Type && compiler.LargestTypeForArithmetic(ret, r.Op.Type).Base == compiler.BaseUnknown &&
		!compiler.CanImplicitCast(ret, r.Op.Type, r.Op.Exp) {
		return newStatementError("All returns in function \"%s\" must return \"%s\" value, found \"%s\" instead", e.current.Name, ret, r.Op.Type)
	}

	e.flushAll()
	if err := e.loadInto(AX, *r.Op, compiler.SizeOf(ret)); err != nil {
		return err
	}
	e.asmProcLeave(e.paramBytes, e.localBytes > 0 || e.paramBytes > 0)
	return nil
}

func (e *Emitter) resolveFixups(stringsStart, staticsBase int) error {
	for _, f := range e.fixups {
		switch f.kind {
		case fixupIP:
			off, ok := e.ipToOffset[f.target]
			if !ok {
				return newCompileError("Jump target %d was never emitted", f.target)
			}
			putWord(e.buf, f.pos, uint16(int16(off-(f.pos+2))))
		case fixupFunction:
			off, ok := e.functionOffsets[f.name]
			if !ok {
				return newCompileError("Function \"%s\" is not defined", f.name)
			}
			putWord(e.buf, f.pos, uint16(int16(off-(f.pos+2))))
		case fixupStatic:
			putWord(e.buf, f.pos, uint16(staticsBase+e.staticOffsets[f.name]+f.addend))
		case fixupString:
			addr := pspSize + (stringsStart - mzHeaderSize) + e.strings.offsetOf(f.target)
			putWord(e.buf, f.pos, uint16(addr))
		}
	}
	return nil
}
