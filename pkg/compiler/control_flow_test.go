package compiler

import (
	"strings"
	"testing"
)

// checkTargets verifies that every jump in the stream points at a real
// instruction position. A leftover -1 means a backpatch list was never
// resolved.
func checkTargets(t *testing.T, b *Builder) {
	t.Helper()
	stream := b.Stream()
	for i, inst := range stream {
		var target int
		switch inst.Type {
		case InstGoto:
			target = inst.Goto.IP
		case InstIf:
			target = inst.If.IP
		default:
			continue
		}
		if target < 0 || target > len(stream) {
			t.Errorf("stream[%d] = %s, target %d out of range [0, %d]", i, inst, target, len(stream))
		}
	}
}

func TestParseIfElse(t *testing.T) {
	b := mustBuild(t, `
uint8 Main()
{
    uint8 v;
    v = 0;
    if (v == 0)
    {
        v = 1;
    }
    else
    {
        v = 2;
    }
    return v;
}
`)
	checkTargets(t, b)

	var ifs, gotos int
	for _, inst := range b.Stream() {
		switch inst.Type {
		case InstIf:
			ifs++
		case InstGoto:
			gotos++
		}
	}
	if ifs != 1 {
		t.Errorf("%d conditional jumps, want 1", ifs)
	}
	// Entry jump, else jump and end-of-then jump.
	if gotos != 3 {
		t.Errorf("%d unconditional jumps, want 3", gotos)
	}
}

func TestParseWhileLoop(t *testing.T) {
	b := mustBuild(t, `
uint8 Main()
{
    uint8 n;
    n = 0;
    while (n < 10)
    {
        ++n;
    }
    return n;
}
`)
	checkTargets(t, b)

	backward := false
	for i, inst := range b.Stream() {
		if inst.Type == InstGoto && inst.Goto.IP <= i && i > 0 {
			backward = true
		}
	}
	if !backward {
		t.Error("no backward jump to the loop condition")
	}
}

func TestParseDoWhileLoop(t *testing.T) {
	b := mustBuild(t, `
uint8 Main()
{
    uint8 n;
    n = 0;
    do
    {
        ++n;
    }
    while (n < 5);
    return n;
}
`)
	checkTargets(t, b)

	// The condition at the bottom jumps back to the body start.
	backward := false
	for i, inst := range b.Stream() {
		if inst.Type == InstIf && inst.If.IP <= i {
			backward = true
		}
	}
	if !backward {
		t.Error("no backward conditional jump to the loop body")
	}
}

func TestParseForLoop(t *testing.T) {
	b := mustBuild(t, `
uint8 Main()
{
    uint8 sum;
    sum = 0;
    for (uint8 i = 0; i < 4; ++i)
    {
        sum = sum + i;
    }
    return sum;
}
`)
	checkTargets(t, b)

	var backward int
	for i, inst := range b.Stream() {
		if inst.Type == InstGoto && inst.Goto.IP <= i && i > 0 {
			backward++
		}
	}
	// One from the post clause back to the condition, one from the body
	// back to the post clause.
	if backward < 2 {
		t.Errorf("%d backward jumps, want at least 2", backward)
	}
}

func TestParseSwitch(t *testing.T) {
	b := mustBuild(t, `
uint8 Main()
{
    uint8 v;
    v = 2;
    switch (v)
    {
    case 1:
        v = 10;
        break;
    case 2:
        v = 20;
        break;
    default:
        v = 30;
    }
    return v;
}
`)
	checkTargets(t, b)

	type dispatch struct {
		index int
		inst  *IfInstruction
	}
	var compares []dispatch
	for i, inst := range b.Stream() {
		if inst.Type == InstIf {
			compares = append(compares, dispatch{index: i, inst: inst.If})
		}
	}
	if len(compares) != 2 {
		t.Fatalf("%d dispatch comparisons, want 2", len(compares))
	}
	for i, want := range []string{"1", "2"} {
		c := compares[i]
		if c.inst.Op != CompareEqual || c.inst.Op2.Value != want {
			t.Errorf("dispatch %d compares against %q with op %d, want equality with %q",
				i, c.inst.Op2.Value, c.inst.Op, want)
		}
		// The dispatch table sits after the case bodies and jumps back
		// into them.
		if c.inst.IP >= c.index {
			t.Errorf("dispatch %d target %d is not before the table at %d", i, c.inst.IP, c.index)
		}
	}
}

func TestParseSwitchErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name: "Duplicate Case",
			src: `
uint8 Main()
{
    uint8 v;
    v = 1;
    switch (v)
    {
    case 1:
        break;
    case 1:
        break;
    }
    return 0;
}
`,
			wantMsg: `Duplicate case value "1"`,
		},
		{
			name: "Duplicate Default",
			src: `
uint8 Main()
{
    uint8 v;
    v = 1;
    switch (v)
    {
    default:
        break;
    default:
        break;
    }
    return 0;
}
`,
			wantMsg: "Duplicate default case",
		},
		{
			name: "String Scrutinee",
			src: `
uint8 Main()
{
    string s;
    s = "x";
    switch (s)
    {
    }
    return 0;
}
`,
			wantMsg: "Switch value must be an integer value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := buildErr(t, tt.src)
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParseBreakContinueOutsideLoop(t *testing.T) {
	err := buildErr(t, `
uint8 Main()
{
    break;
    return 0;
}
`)
	if !strings.Contains(err.Error(), `"break" used outside of loop or switch`) {
		t.Errorf("error = %q", err)
	}

	err = buildErr(t, `
uint8 Main()
{
    continue;
    return 0;
}
`)
	if !strings.Contains(err.Error(), `"continue" used outside of loop`) {
		t.Errorf("error = %q", err)
	}
}

func TestParseContinueInSwitchNeedsLoop(t *testing.T) {
	err := buildErr(t, `
uint8 Main()
{
    uint8 v;
    v = 1;
    switch (v)
    {
    case 1:
        continue;
    }
    return 0;
}
`)
	if !strings.Contains(err.Error(), `"continue" used outside of loop`) {
		t.Errorf("error = %q", err)
	}
}

func TestParseGotoLabel(t *testing.T) {
	b := mustBuild(t, `
uint8 Main()
{
    uint8 n;
    n = 0;
top:
    ++n;
    if (n < 3)
    {
        goto top;
    }
    return n;
}
`)
	checkTargets(t, b)

	var jump *GotoLabelInstruction
	for _, inst := range b.Stream() {
		if inst.Type == InstGotoLabel {
			jump = inst.GotoLabel
		}
	}
	if jump == nil {
		t.Fatal("no goto-label instruction emitted")
	}
	if jump.Label != "top" {
		t.Errorf("jump label = %q, want top", jump.Label)
	}

	label := b.Table().FindLabel("top", "Main")
	if label == nil {
		t.Fatal("label top not recorded under Main")
	}
	if label.IP <= 0 || label.IP >= len(b.Stream()) {
		t.Errorf("label IP = %d, want a position inside the stream", label.IP)
	}
}

func TestParseDuplicateLabel(t *testing.T) {
	err := buildErr(t, `
uint8 Main()
{
top:
top:
    return 0;
}
`)
	if !strings.Contains(err.Error(), `"top" is already declared`) {
		t.Errorf("error = %q", err)
	}
}

func TestDeadFunctionElimination(t *testing.T) {
	b := mustBuild(t, `
void Used()
{
}

void Unused()
{
}

uint8 Main()
{
    Used();
    return 0;
}
`)
	table := b.Table()
	if used := table.GetFunction("Used"); used == nil || used.RefCount != 1 {
		t.Errorf("Used = %v, want reference count 1", used)
	}
	if unused := table.GetFunction("Unused"); unused == nil || unused.RefCount != 0 {
		t.Errorf("Unused = %v, want reference count 0", unused)
	}
}

func TestPrototypeCalledButNotDefined(t *testing.T) {
	err := buildErr(t, `
void Forward(uint8 a);

uint8 Main()
{
    Forward(1);
    return 0;
}
`)
	if !strings.Contains(err.Error(), `"Forward" is declared but not defined`) {
		t.Errorf("error = %q", err)
	}
}

func TestPrototypeDefinedAfterUse(t *testing.T) {
	b := mustBuild(t, `
void Forward(uint8 a);

uint8 Main()
{
    Forward(1);
    return 0;
}

void Forward(uint8 a)
{
    PrintUint32(a);
}
`)
	fn := b.Table().GetFunction("Forward")
	if fn == nil || fn.Type.Base != BaseFunction {
		t.Fatalf("Forward = %v, want a defined function", fn)
	}
	if fn.RefCount != 1 {
		t.Errorf("Forward reference count = %d, want 1", fn.RefCount)
	}
}

func TestUncalledPrototypeIsHarmless(t *testing.T) {
	mustBuild(t, `
void Never(uint8 a);

uint8 Main()
{
    return 0;
}
`)
}
