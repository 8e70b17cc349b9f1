package dosexe

import (
	"dosc/pkg/compiler"
)

// emitAssign lowers dst [index] = op1 <op> op2. Plain copies and adds
// go through the descriptor table; multiply, divide and shifts use the
// fixed registers the instructions demand.
func (e *Emitter) emitAssign(a *compiler.AssignInstruction) error {
	dst, err := e.lookupVar(a.Dst)
	if err != nil {
		return err
	}
	dstType := dst.sym.Type
	if a.DstIndex != nil {
		if dstType.Pointer == 0 {
			return newStatementError("Variable \"%s\" of type \"%s\" cannot be indexed", a.Dst, dstType)
		}
		dstType = compiler.SymbolType{Base: dstType.Base, Pointer: dstType.Pointer - 1}
	}
	size := compiler.SizeOf(dstType)

	switch a.Op {
	case compiler.AssignNone, compiler.AssignNegation:
		r, err := e.loadOperandFresh(a.Op1, size)
		if err != nil {
			return err
		}
		if a.Op == compiler.AssignNegation {
			e.size32(size)
			if size == 1 {
				e.b(0xF6, toXRM(3, 3, byte(r)))
			} else {
				e.b(0xF7, toXRM(3, 3, byte(r)))
			}
		}
		return e.storeResult(dst, a.DstIndex, r, dstType)

	case compiler.AssignAdd, compiler.AssignSubtract:
		return e.emitAddSub(a, dst, dstType, size)

	case compiler.AssignMultiply:
		return e.emitMultiply(a, dst, dstType, size)

	case compiler.AssignDivide, compiler.AssignRemainder:
		return e.emitDivide(a, dst, dstType, size)

	case compiler.AssignShiftLeft, compiler.AssignShiftRight:
		return e.emitShift(a, dst, dstType, size)

	case compiler.AssignAddressOf:
		src, err := e.lookupVar(a.Op1.Value)
		if err != nil {
			return err
		}
		// The home slot must be current once a pointer to it exists.
		e.unloadVar(src)
		r, err := e.acquireReg()
		if err != nil {
			return err
		}
		if src.isLocal {
			e.b(0x8D, toXRM(2, byte(r), 6))
			e.w(uint16(int16(src.offset)))
		} else {
			e.b(toOpR(0xB8, r))
			e.fixups = append(e.fixups, fixup{kind: fixupStatic, pos: len(e.buf), name: src.sym.Name})
			e.w(0)
		}
		return e.storeResult(dst, a.DstIndex, r, dstType)
	}
	return newCompileError("Cannot emit assignment operation %d", a.Op)
}

// storeResult routes the computed value to its destination, keeping the
// register bound for plain variables and writing through for indexed
// slots. BX carries the element address, so a value living there moves
// aside first.
func (e *Emitter) storeResult(dst *varState, index *compiler.Operand, r Register, elemType compiler.SymbolType) error {
	if index == nil {
		e.bindReg(r, dst, true)
		return nil
	}
	if r == BX {
		e.claimReg(DX)
		e.asmMovRegReg(DX, BX, compiler.SizeOf(elemType))
		r = DX
	}
	return e.storeIndexed(dst, index, r, elemType)
}

func (e *Emitter) emitAddSub(a *compiler.AssignInstruction, dst *varState, dstType compiler.SymbolType, size int) error {
	op1, op2 := a.Op1, a.Op2
	negate := false
	if op1.Exp == compiler.ExpConstant && op2.Exp != compiler.ExpConstant {
		op1, op2 = op2, op1
		// a - x computes as -(x - a).
		negate = a.Op == compiler.AssignSubtract
	}

	r, err := e.loadOperandFresh(op1, size)
	if err != nil {
		return err
	}
	e.suppress(r)
	defer e.unsuppress(r)

	if op2.Exp == compiler.ExpConstant {
		slash := byte(0) // add
		if a.Op == compiler.AssignSubtract {
			slash = 5 // sub
		}
		e.size32(size)
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
			return err
		}
		op := byte(0x02) // add r, r/m
		if a.Op == compiler.AssignSubtract {
			op = 0x2A
		}
		if size > 1 {
			op++
		}
		e.size32(size)
		e.b(op, toXRM(3, byte(r), byte(r2)))
	}

	if negate {
		e.size32(size)
		if size == 1 {
			e.b(0xF6, toXRM(3, 3, byte(r)))
		} else {
			e.b(0xF7, toXRM(3, 3, byte(r)))
		}
	}
	return e.storeResult(dst, a.DstIndex, r, dstType)
}

func (e *Emitter) emitMultiply(a *compiler.AssignInstruction, dst *varState, dstType compiler.SymbolType, size int) error {
	e.claimReg(AX)
	e.claimReg(DX)
	e.suppress(AX)
	e.suppress(DX)
	defer e.unsuppress(AX)
	defer e.unsuppress(DX)

	if err := e.loadInto(AX, a.Op1, size); err != nil {
		return err
	}
	r2, err := e.loadOperandFresh(a.Op2, size)
	if err != nil {
		return err
	}
	e.size32(size)
	if size == 1 {
		e.b(0xF6, toXRM(3, 4, byte(r2)))
	} else {
		e.b(0xF7, toXRM(3, 4, byte(r2)))
	}
	return e.storeResult(dst, a.DstIndex, AX, dstType)
}

func (e *Emitter) emitDivide(a *compiler.AssignInstruction, dst *varState, dstType compiler.SymbolType, size int) error {
	e.claimReg(AX)
	e.claimReg(DX)
	e.suppress(AX)
	e.suppress(DX)
	defer e.unsuppress(AX)
	defer e.unsuppress(DX)

	if size == 1 {
		// AH:AL is the dividend; widening the load clears AH.
		if err := e.loadInto(AX, a.Op1, 2); err != nil {
			return err
		}
	} else {
		if err := e.loadInto(AX, a.Op1, size); err != nil {
			return err
		}
	}
	r2, err := e.loadOperandFresh(a.Op2, size)
	if err != nil {
		return err
	}
	if size > 1 {
		e.asmZeroReg(DX, size)
	}
	e.size32(size)
	if size == 1 {
		e.b(0xF6, toXRM(3, 6, byte(r2)))
	} else {
		e.b(0xF7, toXRM(3, 6, byte(r2)))
	}

	if a.Op == compiler.AssignDivide {
		return e.storeResult(dst, a.DstIndex, AX, dstType)
	}
	if size == 1 {
		e.b(0x8A, toXRM(3, byte(AX), 4)) // mov al, ah
		e.b(0xB4, 0)                     // mov ah, 0
		return e.storeResult(dst, a.DstIndex, AX, dstType)
	}
	return e.storeResult(dst, a.DstIndex, DX, dstType)
}

func (e *Emitter) emitShift(a *compiler.AssignInstruction, dst *varState, dstType compiler.SymbolType, size int) error {
	slash := byte(4) // shl
	if a.Op == compiler.AssignShiftRight {
		slash = 5
	}

	if a.Op2.Exp == compiler.ExpConstant {
		r, err := e.loadOperandFresh(a.Op1, size)
		if err != nil {
			return err
		}
		e.size32(size)
		if size == 1 {
			e.b(0xC0, toXRM(3, slash, byte(r)), byte(parseConst(a.Op2.Value)))
		} else {
			e.b(0xC1, toXRM(3, slash, byte(r)), byte(parseConst(a.Op2.Value)))
		}
		return e.storeResult(dst, a.DstIndex, r, dstType)
	}

	e.claimReg(CX)
	e.suppress(CX)
	defer e.unsuppress(CX)
	if err := e.loadInto(CX, a.Op2, 1); err != nil {
		return err
	}
	r, err := e.loadOperandFresh(a.Op1, size)
	if err != nil {
		return err
	}
	e.size32(size)
	if size == 1 {
		e.b(0xD2, toXRM(3, slash, byte(r)))
	} else {
		e.b(0xD3, toXRM(3, slash, byte(r)))
	}
	return e.storeResult(dst, a.DstIndex, r, dstType)
}
