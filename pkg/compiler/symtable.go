package compiler

import (
	"fmt"
	"strings"
)

// SymbolEntry is one row of the symbol table. Parameter is 1-based for
// formal parameters and holds the parameter count for callables. IP is
// the instruction position a callable or label resolves to.
type SymbolEntry struct {
	Name       string
	Type       SymbolType
	ReturnType SymbolType
	Exp        ExpressionType
	Size       int
	IP         int
	Parameter  int
	Parent     string
	IsTemp     bool
	Const      bool
	RefCount   int
}

func (e *SymbolEntry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-20s", e.Name, e.Type)
	if e.Type.IsCallable() {
		fmt.Fprintf(&b, " returns %-10s ip=%-4d params=%d", e.ReturnType, e.IP, e.Parameter)
	} else if e.Parent != "" {
		fmt.Fprintf(&b, " in %s", e.Parent)
		if e.Parameter > 0 {
			fmt.Fprintf(&b, " (param %d)", e.Parameter)
		}
	}
	return b.String()
}

// SymbolTable owns every declared symbol plus the declaration queue that
// buffers parameters and locals until the enclosing function is known.
// Parameters are always parsed before locals, so the first paramCount
// queue entries are the formals.
type SymbolTable struct {
	entries []*SymbolEntry
	queue   []*SymbolEntry

	paramCount int
	functionIP int
}

// NewSymbolTable returns a table pre-populated with the runtime library
// functions every program may call.
func NewSymbolTable() *SymbolTable {
	st := &SymbolTable{}
	st.declareSharedFunctions()
	return st
}

func (st *SymbolTable) declareSharedFunctions() {
	shared := func(name string, ret SymbolType, params ...*SymbolEntry) {
		fn := &SymbolEntry{
			Name:       name,
			Type:       SymbolType{Base: BaseSharedFunction},
			ReturnType: ret,
			Parameter:  len(params),
		}
		st.entries = append(st.entries, fn)
		for i, p := range params {
			p.Parent = name
			p.Parameter = i + 1
			p.Exp = ExpVariable
			p.Size = SizeOf(p.Type)
			st.entries = append(st.entries, p)
		}
	}

	shared("PrintUint32", SymbolType{Base: BaseVoid},
		&SymbolEntry{Name: "value", Type: SymbolType{Base: BaseUint32}})
	shared("PrintString", SymbolType{Base: BaseVoid},
		&SymbolEntry{Name: "value", Type: SymbolType{Base: BaseString}})
	shared("PrintNewLine", SymbolType{Base: BaseVoid})
	shared("ReadUint32", SymbolType{Base: BaseUint32})
	shared("GetCommandLine", SymbolType{Base: BaseString})
	shared("#StringsEqual", SymbolType{Base: BaseBool},
		&SymbolEntry{Name: "a", Type: SymbolType{Base: BaseString}},
		&SymbolEntry{Name: "b", Type: SymbolType{Base: BaseString}})
	shared("#Alloc", SymbolType{Base: BaseVoid, Pointer: 1},
		&SymbolEntry{Name: "bytes", Type: SymbolType{Base: BaseUint32}})
	shared("release", SymbolType{Base: BaseVoid},
		&SymbolEntry{Name: "ptr", Type: SymbolType{Base: BaseVoid, Pointer: 1}})
}

// Entries exposes the table rows in declaration order.
func (st *SymbolTable) Entries() []*SymbolEntry { return st.entries }

// FindSymbol returns the first entry with the given name, or nil.
func (st *SymbolTable) FindSymbol(name string) *SymbolEntry {
	for _, e := range st.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// AddSymbol appends a raw entry to the table.
func (st *SymbolTable) AddSymbol(e *SymbolEntry) (*SymbolEntry, error) {
	if e.Name == "" {
		return nil, newError(SourceDeclaration, "Symbol name cannot be empty")
	}
	st.entries = append(st.entries, e)
	return e, nil
}

// AddStaticVariable declares a file-scope variable visible to every
// function.
func (st *SymbolTable) AddStaticVariable(typ SymbolType, size int, name string) (*SymbolEntry, error) {
	return st.AddSymbol(&SymbolEntry{
		Name: name,
		Type: typ,
		Exp:  ExpVariable,
		Size: size,
	})
}

func (st *SymbolTable) queuedName(name string) bool {
	for _, q := range st.queue {
		if q.Name == name {
			return true
		}
	}
	return false
}

// ToDeclaration queues a local variable for the function currently being
// parsed.
func (st *SymbolTable) ToDeclaration(typ SymbolType, size int, name string, exp ExpressionType, line, column int) (*SymbolEntry, error) {
	if st.queuedName(name) {
		return nil, newErrorAt(SourceDeclaration, line, column, "Variable \"%s\" is already declared in this scope", name)
	}
	e := &SymbolEntry{Name: name, Type: typ, Exp: exp, Size: size}
	st.queue = append(st.queue, e)
	return e, nil
}

// ToParameter queues a formal parameter of the function currently being
// parsed.
func (st *SymbolTable) ToParameter(typ SymbolType, name string, line, column int) (*SymbolEntry, error) {
	if st.queuedName(name) {
		return nil, newErrorAt(SourceDeclaration, line, column, "Parameter \"%s\" is already declared in this scope", name)
	}
	e := &SymbolEntry{Name: name, Type: typ, Exp: ExpVariable, Size: SizeOf(typ)}
	st.queue = append(st.queue, e)
	st.paramCount++
	return e, nil
}

// ToTemporary queues a compiler-generated temp. Temp names start with
// '#' so they cannot collide with source identifiers.
func (st *SymbolTable) ToTemporary(typ SymbolType, name string) *SymbolEntry {
	e := &SymbolEntry{Name: name, Type: typ, Exp: ExpVariable, Size: SizeOf(typ), IsTemp: true}
	st.queue = append(st.queue, e)
	return e
}

// AddLabel queues a named jump target inside the current function.
func (st *SymbolTable) AddLabel(name string, ip int, line, column int) (*SymbolEntry, error) {
	if st.queuedName(name) {
		return nil, newErrorAt(SourceDeclaration, line, column, "Label \"%s\" is already declared in this scope", name)
	}
	e := &SymbolEntry{Name: name, Type: SymbolType{Base: BaseLabel}, IP: ip}
	st.queue = append(st.queue, e)
	return e, nil
}

// GetParameter resolves a name as seen from inside the current function:
// the declaration queue first, then file-scope variables.
func (st *SymbolTable) GetParameter(name string) *SymbolEntry {
	for _, q := range st.queue {
		if q.Name == name {
			return q
		}
	}
	for _, e := range st.entries {
		if e.Name == name && e.Parent == "" && !e.Type.IsCallable() && e.Type.Base != BaseLabel {
			return e
		}
	}
	return nil
}

// GetFunction returns the callable with the given name. The entry point
// is not callable from source.
func (st *SymbolTable) GetFunction(name string) *SymbolEntry {
	for _, e := range st.entries {
		if e.Name != name {
			continue
		}
		switch e.Type.Base {
		case BaseFunction, BaseFunctionPrototype, BaseSharedFunction:
			return e
		}
	}
	return nil
}

// FindLabel returns the label entry declared under the given function.
func (st *SymbolTable) FindLabel(name, function string) *SymbolEntry {
	for _, e := range st.entries {
		if e.Name == name && e.Parent == function && e.Type.Base == BaseLabel {
			return e
		}
	}
	return nil
}

// FindParameter returns the formal with the given 1-based index of the
// named function.
func (st *SymbolTable) FindParameter(function string, index int) *SymbolEntry {
	for _, e := range st.entries {
		if e.Parent == function && e.Parameter == index {
			return e
		}
	}
	return nil
}

// releaseDeclarationQueue promotes queued entries into the table under
// the given parent and resets per-function state.
func (st *SymbolTable) releaseDeclarationQueue(parent string) {
	for _, q := range st.queue {
		q.Parent = parent
		st.entries = append(st.entries, q)
	}
	st.queue = nil
	st.paramCount = 0
}

// AddFunction finalizes the function whose body just ended. nextIP is
// the position one past the last emitted instruction; this function's
// own start position was recorded when the previous one ended.
func (st *SymbolTable) AddFunction(name string, ret SymbolType, nextIP int, line, column int) (*SymbolEntry, error) {
	ip := st.functionIP
	st.functionIP = nextIP

	if name == "Main" {
		if st.paramCount != 0 {
			return nil, newErrorAt(SourceDeclaration, line, column, "Entry point must have zero parameters")
		}
		if (ret != SymbolType{Base: BaseUint8}) {
			return nil, newErrorAt(SourceDeclaration, line, column, "Entry point must return \"uint8\" value")
		}
		st.releaseDeclarationQueue("Main")
		return st.AddSymbol(&SymbolEntry{
			Name:       "Main",
			Type:       SymbolType{Base: BaseEntryPoint},
			ReturnType: ret,
			IP:         ip,
		})
	}

	if proto := st.FindSymbol(name); proto != nil && proto.Type.Base == BaseFunctionPrototype {
		if proto.Parameter != st.paramCount {
			return nil, newErrorAt(SourceDeclaration, line, column, "Parameter count does not match for function \"%s\"", name)
		}
		if proto.ReturnType != ret {
			return nil, newErrorAt(SourceDeclaration, line, column, "Return type does not match for function \"%s\"", name)
		}
		for i := 0; i < st.paramCount; i++ {
			formal := st.FindParameter(name, i+1)
			if formal == nil || formal.Type != st.queue[i].Type {
				return nil, newErrorAt(SourceDeclaration, line, column, "Parameter \"%s\" type does not match for function \"%s\"", st.queue[i].Name, name)
			}
		}
		// The prototype already owns the formals; keep only the locals
		// from the queue so the formals are not declared twice.
		st.queue = st.queue[st.paramCount:]
		st.releaseDeclarationQueue(name)
		proto.Type = SymbolType{Base: BaseFunction}
		proto.IP = ip
		return proto, nil
	}

	for i := 0; i < st.paramCount; i++ {
		st.queue[i].Parameter = i + 1
	}
	count := st.paramCount
	st.releaseDeclarationQueue(name)
	return st.AddSymbol(&SymbolEntry{
		Name:       name,
		Type:       SymbolType{Base: BaseFunction},
		ReturnType: ret,
		IP:         ip,
		Parameter:  count,
	})
}

// AddFunctionPrototype records a forward declaration; the queued entries
// are its formal parameters.
func (st *SymbolTable) AddFunctionPrototype(name string, ret SymbolType, line, column int) (*SymbolEntry, error) {
	if name == "Main" {
		return nil, newErrorAt(SourceDeclaration, line, column, "Prototype for entry point is not allowed")
	}
	if prev := st.FindSymbol(name); prev != nil && prev.Type.IsCallable() {
		return nil, newErrorAt(SourceDeclaration, line, column, "Duplicate function definition for \"%s\"", name)
	}
	for i := 0; i < st.paramCount; i++ {
		st.queue[i].Parameter = i + 1
	}
	count := st.paramCount
	st.releaseDeclarationQueue(name)
	return st.AddSymbol(&SymbolEntry{
		Name:       name,
		Type:       SymbolType{Base: BaseFunctionPrototype},
		ReturnType: ret,
		Parameter:  count,
	})
}

// ParameterCount reports how many formals are queued for the function
// currently being parsed.
func (st *SymbolTable) ParameterCount() int { return st.paramCount }

// String dumps the table for debugging output.
func (st *SymbolTable) String() string {
	var b strings.Builder
	b.WriteString("symbol table:\n")
	for _, e := range st.entries {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	return b.String()
}
