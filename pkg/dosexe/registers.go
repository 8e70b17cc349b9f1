package dosexe

import (
	"dosc/pkg/compiler"
)

// varState tracks where a variable currently lives: its home memory
// slot and, when loaded, the register holding its value.
type varState struct {
	sym      *compiler.SymbolEntry
	reg      Register
	offset   int  // bp displacement for locals, statics-area offset otherwise
	isLocal  bool // params and locals address through bp
	lastUsed int
	dirty    bool
}

func (e *Emitter) touch(vs *varState) {
	e.tick++
	vs.lastUsed = e.tick
}

func (e *Emitter) suppress(r Register) {
	e.suppressed[r] = true
}

func (e *Emitter) unsuppress(r Register) {
	delete(e.suppressed, r)
}

// acquireReg returns a free allocatable register, evicting the least
// recently used owner when none is free. Suppressed registers are never
// picked.
func (e *Emitter) acquireReg() (Register, error) {
	for _, r := range allocatable {
		if e.regOwner[r] == nil && !e.suppressed[r] {
			return r, nil
		}
	}
	var victim *varState
	for _, r := range allocatable {
		if e.suppressed[r] {
			continue
		}
		own := e.regOwner[r]
		if own != nil && (victim == nil || own.lastUsed < victim.lastUsed) {
			victim = own
		}
	}
	if victim == nil {
		return RegNone, newCompileError("No allocatable register available")
	}
	r := victim.reg
	e.unloadVar(victim)
	return r, nil
}

// claimReg evicts whoever owns r so the caller can use it; it does not
// suppress r. Used by sequences with fixed register operands.
func (e *Emitter) claimReg(r Register) {
	if own := e.regOwner[r]; own != nil {
		e.unloadVar(own)
	}
}

func (e *Emitter) bindReg(r Register, vs *varState, dirty bool) {
	if own := e.regOwner[r]; own != nil && own != vs {
		e.unloadVar(own)
	}
	if vs.reg != RegNone && vs.reg != r {
		e.regOwner[vs.reg] = nil
	}
	vs.reg = r
	vs.dirty = vs.dirty || dirty
	e.regOwner[r] = vs
	e.touch(vs)
}

// flushVar writes a dirty register copy back to its home slot.
func (e *Emitter) flushVar(vs *varState) {
	if vs.reg == RegNone || !vs.dirty {
		return
	}
	e.asmMovMemReg(vs, vs.reg, compiler.SizeOf(vs.sym.Type))
	vs.dirty = false
}

// unloadVar flushes and frees the variable's register.
func (e *Emitter) unloadVar(vs *varState) {
	if vs.reg == RegNone {
		return
	}
	e.flushVar(vs)
	e.regOwner[vs.reg] = nil
	vs.reg = RegNone
}

// flushAll spills every loaded variable. Called at jump targets, before
// jumps and around calls so register state never crosses control edges.
func (e *Emitter) flushAll() {
	for _, r := range allocatable {
		if own := e.regOwner[r]; own != nil {
			e.unloadVar(own)
		}
	}
}

// memModRM emits the ModRM byte and displacement for a variable's home
// slot: [bp+disp16] for locals, a direct address fixup for statics.
func (e *Emitter) memModRM(reg byte, vs *varState) {
	if vs.isLocal {
		e.b(toXRM(2, reg, 6))
		e.w(uint16(int16(vs.offset)))
		return
	}
	e.b(toXRM(0, reg, 6))
	e.fixups = append(e.fixups, fixup{
		kind:   fixupStatic,
		pos:    len(e.buf),
		name:   vs.sym.Name,
		addend: 0,
	})
	e.w(0)
}

// asmMovRegMem loads a register from the variable's home slot.
func (e *Emitter) asmMovRegMem(r Register, vs *varState, size int) {
	e.size32(size)
	if size == 1 {
		e.b(0x8A)
	} else {
		e.b(0x8B)
	}
	e.memModRM(byte(r), vs)
}

// asmMovMemReg stores a register into the variable's home slot.
func (e *Emitter) asmMovMemReg(vs *varState, r Register, size int) {
	e.size32(size)
	if size == 1 {
		e.b(0x88)
	} else {
		e.b(0x89)
	}
	e.memModRM(byte(r), vs)
}

// loadInto places the operand's value into r at the requested size,
// zero-extending narrower memory slots.
func (e *Emitter) loadInto(r Register, op compiler.Operand, size int) error {
	if op.Index != nil {
		return e.loadIndexedInto(r, op, size)
	}
	if op.Exp == compiler.ExpConstant {
		e.loadConstInto(r, op, size)
		return nil
	}

	vs, err := e.lookupVar(op.Value)
	if err != nil {
		return err
	}
	home := compiler.SizeOf(vs.sym.Type)
	if vs.reg == r {
		e.touch(vs)
		if size > home {
			// Zero the high part the register never held.
			e.flushVar(vs)
			e.asmZeroReg(r, size)
			e.asmMovRegMem(r, vs, home)
		}
		return nil
	}
	if vs.reg != RegNone && size <= home {
		e.asmMovRegReg(r, vs.reg, size)
		return nil
	}
	e.flushVar(vs)
	if size > home {
		e.asmZeroReg(r, size)
	}
	e.asmMovRegMem(r, vs, min(size, home))
	return nil
}

func (e *Emitter) loadConstInto(r Register, op compiler.Operand, size int) {
	if op.Type.Base == compiler.BaseString {
		idx := e.strings.intern(op.Value)
		e.b(toOpR(0xB8, r))
		e.fixups = append(e.fixups, fixup{kind: fixupString, pos: len(e.buf), target: idx})
		e.w(0)
		return
	}
	e.asmMovRegImm(r, parseConst(op.Value), size)
}

// loadOperandFresh claims a scratch register and loads the operand.
func (e *Emitter) loadOperandFresh(op compiler.Operand, size int) (Register, error) {
	r, err := e.acquireReg()
	if err != nil {
		return RegNone, err
	}
	e.suppress(r)
	defer e.unsuppress(r)
	if err := e.loadInto(r, op, size); err != nil {
		return RegNone, err
	}
	return r, nil
}

// computeAddressInBX leaves the effective address of op's indexed slot
// in BX. Arrays use their slot address; plain pointers use their value.
func (e *Emitter) computeAddressInBX(op compiler.Operand) error {
	vs, err := e.lookupVar(op.Value)
	if err != nil {
		return err
	}
	elemSize := compiler.SizeOf(op.Type)
	shift := compiler.SizeToShift(elemSize)

	e.claimReg(BX)
	e.suppress(BX)
	defer e.unsuppress(BX)

	if err := e.loadInto(BX, *op.Index, 2); err != nil {
		return err
	}
	if shift > 0 {
		e.b(0xC1, toXRM(3, 4, byte(BX)), byte(shift))
	}

	isArray := vs.sym.Size > compiler.SizeOf(vs.sym.Type)
	if isArray {
		if vs.isLocal {
			// add bx, bp ; add bx, disp
			e.b(0x01, toXRM(3, byte(BP), byte(BX)))
			e.b(0x81, toXRM(3, 0, byte(BX)))
			e.w(uint16(int16(vs.offset)))
		} else {
			e.b(0x81, toXRM(3, 0, byte(BX)))
			e.fixups = append(e.fixups, fixup{kind: fixupStatic, pos: len(e.buf), name: vs.sym.Name})
			e.w(0)
		}
		return nil
	}

	// Pointer variable: add its value to the scaled index, straight
	// from its register copy or home slot so no register is claimed.
	if vs.reg != RegNone {
		e.touch(vs)
		e.b(0x01, toXRM(3, byte(vs.reg), byte(BX)))
		return nil
	}
	e.b(0x03)
	e.memModRM(byte(BX), vs)
	return nil
}

func (e *Emitter) loadIndexedInto(r Register, op compiler.Operand, size int) error {
	if err := e.computeAddressInBX(op); err != nil {
		return err
	}
	elemSize := compiler.SizeOf(op.Type)
	if size > elemSize {
		// movzx widens in one step so BX stays intact until the load.
		e.size32(size)
		e.b(0x0F)
		if elemSize == 1 {
			e.b(0xB6)
		} else {
			e.b(0xB7)
		}
		e.b(toXRM(0, byte(r), 7))
		return nil
	}
	e.size32(size)
	if size == 1 {
		e.b(0x8A, toXRM(0, byte(r), 7))
	} else {
		e.b(0x8B, toXRM(0, byte(r), 7))
	}
	return nil
}

// storeIndexed writes r into the element addressed by the destination
// index expression.
func (e *Emitter) storeIndexed(dst *varState, index *compiler.Operand, r Register, elemType compiler.SymbolType) error {
	e.suppress(r)
	defer e.unsuppress(r)
	elem := compiler.Operand{
		Value: dst.sym.Name,
		Type:  elemType,
		Exp:   compiler.ExpVariable,
		Index: index,
	}
	if err := e.computeAddressInBX(elem); err != nil {
		return err
	}
	size := compiler.SizeOf(elemType)
	e.size32(size)
	if size == 1 {
		e.b(0x88, toXRM(0, byte(r), 7))
	} else {
		e.b(0x89, toXRM(0, byte(r), 7))
	}
	return nil
}
