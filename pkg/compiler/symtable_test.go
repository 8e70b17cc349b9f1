package compiler

import (
	"strings"
	"testing"
)

func TestSharedFunctionsDeclared(t *testing.T) {
	st := NewSymbolTable()

	tests := []struct {
		name   string
		params int
		ret    SymbolType
	}{
		{"PrintUint32", 1, SymbolType{Base: BaseVoid}},
		{"PrintString", 1, SymbolType{Base: BaseVoid}},
		{"PrintNewLine", 0, SymbolType{Base: BaseVoid}},
		{"ReadUint32", 0, SymbolType{Base: BaseUint32}},
		{"GetCommandLine", 0, SymbolType{Base: BaseString}},
		{"#StringsEqual", 2, SymbolType{Base: BaseBool}},
		{"#Alloc", 1, SymbolType{Base: BaseVoid, Pointer: 1}},
		{"release", 1, SymbolType{Base: BaseVoid}},
	}
	for _, tt := range tests {
		fn := st.GetFunction(tt.name)
		if fn == nil {
			t.Errorf("%s not declared", tt.name)
			continue
		}
		if fn.Type.Base != BaseSharedFunction {
			t.Errorf("%s type = %s, want shared function", tt.name, fn.Type)
		}
		if fn.Parameter != tt.params {
			t.Errorf("%s parameter count = %d, want %d", tt.name, fn.Parameter, tt.params)
		}
		if fn.ReturnType != tt.ret {
			t.Errorf("%s return type = %s, want %s", tt.name, fn.ReturnType, tt.ret)
		}
	}

	formal := st.FindParameter("PrintUint32", 1)
	if formal == nil || formal.Type != (SymbolType{Base: BaseUint32}) {
		t.Errorf("PrintUint32 formal 1 = %v, want uint32", formal)
	}
}

func TestEntryPointNotCallable(t *testing.T) {
	st := NewSymbolTable()
	if _, err := st.AddFunction("Main", SymbolType{Base: BaseUint8}, 3, 1, 1); err != nil {
		t.Fatalf("AddFunction failed: %v", err)
	}
	if fn := st.GetFunction("Main"); fn != nil {
		t.Errorf("GetFunction(Main) = %v, want nil", fn)
	}
	if sym := st.FindSymbol("Main"); sym == nil || sym.Type.Base != BaseEntryPoint {
		t.Errorf("FindSymbol(Main) = %v, want entry point", sym)
	}
}

func TestAddFunctionMainValidations(t *testing.T) {
	st := NewSymbolTable()
	if _, err := st.ToParameter(SymbolType{Base: BaseUint8}, "a", 1, 1); err != nil {
		t.Fatal(err)
	}
	_, err := st.AddFunction("Main", SymbolType{Base: BaseUint8}, 1, 1, 1)
	if err == nil || !strings.Contains(err.Error(), "zero parameters") {
		t.Errorf("error = %v, want zero parameters", err)
	}

	st = NewSymbolTable()
	_, err = st.AddFunction("Main", SymbolType{Base: BaseVoid}, 1, 1, 1)
	if err == nil || !strings.Contains(err.Error(), `must return "uint8"`) {
		t.Errorf("error = %v, want uint8 return", err)
	}
}

func TestPrototypeResolution(t *testing.T) {
	st := NewSymbolTable()
	u8 := SymbolType{Base: BaseUint8}
	void := SymbolType{Base: BaseVoid}

	if _, err := st.ToParameter(u8, "a", 1, 1); err != nil {
		t.Fatal(err)
	}
	proto, err := st.AddFunctionPrototype("F", void, 1, 1)
	if err != nil {
		t.Fatalf("AddFunctionPrototype failed: %v", err)
	}
	if proto.Type.Base != BaseFunctionPrototype || proto.Parameter != 1 {
		t.Fatalf("prototype = %v", proto)
	}

	if _, err := st.ToParameter(u8, "a", 2, 1); err != nil {
		t.Fatal(err)
	}
	fn, err := st.AddFunction("F", void, 9, 2, 1)
	if err != nil {
		t.Fatalf("AddFunction failed: %v", err)
	}
	if fn != proto {
		t.Error("definition did not resolve onto the prototype entry")
	}
	if fn.Type.Base != BaseFunction {
		t.Errorf("resolved type = %s, want function", fn.Type)
	}

	// The prototype's formals must not be declared a second time.
	var formals int
	for _, e := range st.Entries() {
		if e.Parent == "F" && e.Parameter == 1 {
			formals++
		}
	}
	if formals != 1 {
		t.Errorf("%d entries for formal 1, want 1", formals)
	}
}

func TestPrototypeMismatches(t *testing.T) {
	u8 := SymbolType{Base: BaseUint8}
	u16 := SymbolType{Base: BaseUint16}
	void := SymbolType{Base: BaseVoid}

	declare := func(t *testing.T) *SymbolTable {
		t.Helper()
		st := NewSymbolTable()
		if _, err := st.ToParameter(u8, "a", 1, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := st.AddFunctionPrototype("F", void, 1, 1); err != nil {
			t.Fatal(err)
		}
		return st
	}

	t.Run("Parameter Count", func(t *testing.T) {
		st := declare(t)
		_, err := st.AddFunction("F", void, 5, 2, 1)
		if err == nil || !strings.Contains(err.Error(), "Parameter count does not match") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("Return Type", func(t *testing.T) {
		st := declare(t)
		if _, err := st.ToParameter(u8, "a", 2, 1); err != nil {
			t.Fatal(err)
		}
		_, err := st.AddFunction("F", u8, 5, 2, 1)
		if err == nil || !strings.Contains(err.Error(), "Return type does not match") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("Parameter Type", func(t *testing.T) {
		st := declare(t)
		if _, err := st.ToParameter(u16, "a", 2, 1); err != nil {
			t.Fatal(err)
		}
		_, err := st.AddFunction("F", void, 5, 2, 1)
		if err == nil || !strings.Contains(err.Error(), "type does not match") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("Duplicate Prototype", func(t *testing.T) {
		st := declare(t)
		_, err := st.AddFunctionPrototype("F", void, 2, 1)
		if err == nil || !strings.Contains(err.Error(), "Duplicate function definition") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("Main Prototype", func(t *testing.T) {
		st := NewSymbolTable()
		_, err := st.AddFunctionPrototype("Main", u8, 1, 1)
		if err == nil || !strings.Contains(err.Error(), "entry point is not allowed") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestGetParameterScoping(t *testing.T) {
	st := NewSymbolTable()
	u8 := SymbolType{Base: BaseUint8}

	if _, err := st.AddStaticVariable(u8, 1, "g"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.ToDeclaration(u8, 1, "x", ExpVariable, 1, 1); err != nil {
		t.Fatal(err)
	}

	if sym := st.GetParameter("x"); sym == nil || sym.Parent != "" {
		t.Errorf("local x = %v, want the queued entry", sym)
	}
	if sym := st.GetParameter("g"); sym == nil || sym.Size != 1 {
		t.Errorf("global g = %v, want the file-scope entry", sym)
	}
	if sym := st.GetParameter("missing"); sym != nil {
		t.Errorf("missing = %v, want nil", sym)
	}

	_, err := st.ToDeclaration(u8, 1, "x", ExpVariable, 2, 1)
	if err == nil || !strings.Contains(err.Error(), "already declared in this scope") {
		t.Errorf("error = %v, want duplicate declaration", err)
	}
}
