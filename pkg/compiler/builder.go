package compiler

import "fmt"

// Builder accumulates the three-address instruction stream for a whole
// program and resolves jump targets through backpatch lists.
type Builder struct {
	stream []*Instruction
	table  *SymbolTable

	pushed []Operand

	tempCounts [5]int

	breakScopes    []*BackpatchList
	continueScopes []*BackpatchList
	breakIdx       int
	continueIdx    int
}

// NewBuilder returns a builder with an empty stream and a fresh symbol
// table.
func NewBuilder() *Builder {
	return &Builder{
		table:       NewSymbolTable(),
		breakIdx:    -1,
		continueIdx: -1,
	}
}

// Table exposes the symbol table the builder declares into.
func (b *Builder) Table() *SymbolTable { return b.table }

// Stream exposes the emitted instructions in order.
func (b *Builder) Stream() []*Instruction { return b.stream }

// NextIP is the position the next emitted instruction will occupy.
func (b *Builder) NextIP() int { return len(b.stream) }

// AddToStream appends one instruction and returns its position.
func (b *Builder) AddToStream(i *Instruction) int {
	b.stream = append(b.stream, i)
	return len(b.stream) - 1
}

// AddToStreamWithBackpatch appends a jump whose target is not yet known
// and returns a backpatch list holding its position.
func (b *Builder) AddToStreamWithBackpatch(i *Instruction) *BackpatchList {
	ip := b.AddToStream(i)
	return &BackpatchList{items: []int{ip}}
}

// BackpatchStream resolves every position in the list to the given
// target. Only goto and if instructions carry patchable targets.
func (b *Builder) BackpatchStream(list *BackpatchList, target int) error {
	if list == nil {
		return nil
	}
	for _, ip := range list.items {
		i := b.stream[ip]
		switch i.Type {
		case InstGoto:
			i.Goto.IP = target
		case InstIf:
			i.If.IP = target
		default:
			return newError(SourceCompilation, "Cannot backpatch instruction of type \"%s\"", i.Type)
		}
	}
	return nil
}

// GetUnusedVariable declares a fresh temp of the given type and returns
// its entry. Temp names carry a type tag and a counter; uint32 and
// string temps share one counter.
func (b *Builder) GetUnusedVariable(typ SymbolType) *SymbolEntry {
	tag := tempTag(typ)
	idx := 0
	switch tag {
	case "b":
		idx = 0
	case "ui8":
		idx = 1
	case "ui16":
		idx = 2
	case "ui32", "s":
		idx = 3
	default:
		idx = 4
	}
	b.tempCounts[idx]++
	name := fmt.Sprintf("#%s_%d", tag, b.tempCounts[idx])
	return b.table.ToTemporary(typ, name)
}

// EnterLoop opens a break scope and a continue scope for a loop body.
func (b *Builder) EnterLoop() {
	b.breakScopes = append(b.breakScopes, nil)
	b.continueScopes = append(b.continueScopes, nil)
	b.breakIdx++
	b.continueIdx++
}

// EnterSwitch opens a break scope only; continue passes through to the
// enclosing loop.
func (b *Builder) EnterSwitch() {
	b.breakScopes = append(b.breakScopes, nil)
	b.breakIdx++
}

// AddBreak emits a jump out of the innermost break scope. It reports
// false when no scope is open.
func (b *Builder) AddBreak() bool {
	if b.breakIdx < 0 {
		return false
	}
	list := b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	b.breakScopes[b.breakIdx] = MergeLists(b.breakScopes[b.breakIdx], list)
	return true
}

// AddContinue emits a jump to the innermost continue scope. It reports
// false when no loop is open.
func (b *Builder) AddContinue() bool {
	if b.continueIdx < 0 {
		return false
	}
	list := b.AddToStreamWithBackpatch(&Instruction{Type: InstGoto, Goto: &GotoInstruction{IP: -1}})
	b.continueScopes[b.continueIdx] = MergeLists(b.continueScopes[b.continueIdx], list)
	return true
}

// LeaveBreakScope patches every pending break to target and closes the
// scope.
func (b *Builder) LeaveBreakScope(target int) error {
	err := b.BackpatchStream(b.breakScopes[b.breakIdx], target)
	b.breakScopes = b.breakScopes[:b.breakIdx]
	b.breakIdx--
	return err
}

// LeaveContinueScope patches every pending continue to target and closes
// the scope.
func (b *Builder) LeaveContinueScope(target int) error {
	err := b.BackpatchStream(b.continueScopes[b.continueIdx], target)
	b.continueScopes = b.continueScopes[:b.continueIdx]
	b.continueIdx--
	return err
}

// PushParameter stages one actual parameter for the next call.
func (b *Builder) PushParameter(op Operand) {
	b.AddToStream(&Instruction{Type: InstPush, Push: &PushInstruction{Op: op}})
	b.pushed = append(b.pushed, op)
}

// PrepareForCall validates the staged actuals against the callee's
// formals and emits the call. The returned operand carries the call's
// result; for void functions Exp is ExpNone.
func (b *Builder) PrepareForCall(name string, argc int, line, column int) (Operand, error) {
	callee := b.table.GetFunction(name)
	if callee == nil {
		return Operand{}, newErrorAt(SourceStatement, line, column, "Cannot call function \"%s\", because it was not declared", name)
	}
	if callee.Parameter != argc {
		return Operand{}, newErrorAt(SourceStatement, line, column, "Cannot call function \"%s\", because of parameter count mismatch", name)
	}

	actuals := b.pushed[len(b.pushed)-argc:]
	for i, actual := range actuals {
		formal := b.table.FindParameter(name, i+1)
		if formal == nil {
			return Operand{}, newErrorAt(SourceCompilation, line, column, "Missing parameter %d of function \"%s\"", i+1, name)
		}
		if !CanImplicitCast(formal.Type, actual.Type, actual.Exp) {
			return Operand{}, newErrorAt(SourceStatement, line, column, "Cannot call function \"%s\", because of parameter \"%s\" type mismatch", name, formal.Name)
		}
	}
	b.pushed = b.pushed[:len(b.pushed)-argc]

	call := &CallInstruction{Target: callee}
	result := Operand{Type: callee.ReturnType, Exp: ExpNone}
	if callee.ReturnType.Base != BaseVoid || callee.ReturnType.Pointer > 0 {
		ret := b.GetUnusedVariable(callee.ReturnType)
		call.ReturnSymbol = ret.Name
		result.Value = ret.Name
		result.Exp = ExpVariable
	}
	b.AddToStream(&Instruction{Type: InstCall, Call: call})
	return result, nil
}
