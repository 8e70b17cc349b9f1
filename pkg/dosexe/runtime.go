package dosexe

// Hand-assembled runtime routines backing the shared functions. Every
// routine follows the compiled calling convention: parameters above the
// saved frame pointer, result in AX, callee pops its arguments. The
// caller spills all registers before a call, so the routines clobber
// general registers freely; ES is saved and restored where touched.

// ioBufferSize is the scratch area shared by the console routines. It
// is reserved inline in the image, so its absolute address is known the
// moment it is emitted.
const ioBufferSize = 32

func (e *Emitter) jmpShortTo(target int) {
	e.b(0xEB, byte(int8(target-(len(e.buf)+2))))
}

func (e *Emitter) jccShortTo(op byte, target int) {
	e.b(op, byte(int8(target-(len(e.buf)+2))))
}

// jccShortFwd emits a conditional jump with an unresolved displacement
// and returns the position patchShort fills in later.
func (e *Emitter) jccShortFwd(op byte) int {
	e.b(op, 0)
	return len(e.buf) - 1
}

func (e *Emitter) jmpShortFwd() int {
	e.b(0xEB, 0)
	return len(e.buf) - 1
}

func (e *Emitter) patchShort(pos int) {
	e.buf[pos] = byte(int8(len(e.buf) - (pos + 1)))
}

// absAddr is the run-time address of the current buffer position.
func (e *Emitter) absAddr() int {
	return pspSize + (len(e.buf) - mzHeaderSize)
}

// emitSharedFunctions appends the bodies of every runtime routine the
// program actually references, in declaration order. The console
// routines share one scratch buffer reserved just ahead of them.
func (e *Emitter) emitSharedFunctions() error {
	referenced := func(name string) bool {
		fn := e.table.GetFunction(name)
		return fn != nil && fn.RefCount > 0
	}

	ioBuffer := 0
	if referenced("PrintUint32") || referenced("PrintNewLine") || referenced("ReadUint32") {
		ioBuffer = e.absAddr()
		e.buf = append(e.buf, make([]byte, ioBufferSize)...)
	}

	routines := []struct {
		name string
		emit func(ioBuffer int)
	}{
		{"PrintUint32", e.emitPrintUint32},
		{"PrintString", e.emitPrintString},
		{"PrintNewLine", e.emitPrintNewLine},
		{"ReadUint32", e.emitReadUint32},
		{"GetCommandLine", e.emitGetCommandLine},
		{"#StringsEqual", e.emitStringsEqual},
		{"#Alloc", e.emitAlloc},
		{"release", e.emitRelease},
	}
	for _, r := range routines {
		if !referenced(r.name) {
			continue
		}
		e.functionOffsets[r.name] = len(e.buf)
		r.emit(ioBuffer)
	}
	return nil
}

// emitPrintUint32 divides the value by ten, filling the scratch buffer
// backwards from a '$' terminator, then prints through INT 21h
// function 09h.
func (e *Emitter) emitPrintUint32(ioBuffer int) {
	e.asmProcEnter()
	e.b(0x66, 0x8B, 0x46, 0x06) // mov eax, [bp+6]
	e.b(0x66, 0xB9)             // mov ecx, 10
	e.d(10)
	e.b(0xBF, 0x14, 0x00)   // mov di, 20
	e.b(0xC6, 0x85)         // mov byte [di+buffer], '$'
	e.w(uint16(ioBuffer))
	e.b('$')

	loop := len(e.buf)
	e.b(0x4F)             // dec di
	e.b(0x66, 0x31, 0xD2) // xor edx, edx
	e.b(0x66, 0xF7, 0xF1) // div ecx
	e.b(0x80, 0xC2, 0x30) // add dl, '0'
	e.b(0x88, 0x95)       // mov [di+buffer], dl
	e.w(uint16(ioBuffer))
	e.b(0x66, 0x83, 0xF8, 0x00) // cmp eax, 0
	e.jccShortTo(0x75, loop)

	e.b(0xBA) // mov dx, buffer
	e.w(uint16(ioBuffer))
	e.b(0x03, 0xD7) // add dx, di
	e.asmIntWithAH(dosFunctionDispatch, 0x09)
	e.asmProcLeave(4, false)
}

// emitPrintString finds the NUL terminator, swaps it for the '$' the
// DOS call wants, prints, and puts the NUL back.
func (e *Emitter) emitPrintString(int) {
	e.asmProcEnter()
	e.b(0x8B, 0x56, 0x06) // mov dx, [bp+6]
	e.b(0x8B, 0xF2)       // mov si, dx

	loop := len(e.buf)
	e.b(0x8A, 0x1C) // mov bl, [si]
	e.b(0x46)       // inc si
	e.b(0x08, 0xDB) // or bl, bl
	e.jccShortTo(0x75, loop)

	e.b(0x4E)            // dec si
	e.b(0xC6, 0x04, '$') // mov byte [si], '$'
	e.asmIntWithAH(dosFunctionDispatch, 0x09)
	e.b(0x88, 0x1C) // mov [si], bl
	e.asmProcLeave(2, false)
}

func (e *Emitter) emitPrintNewLine(ioBuffer int) {
	e.b(0x66, 0xC7, 0x06) // mov dword [buffer], '\r\n$\0'
	e.w(uint16(ioBuffer))
	e.d(0x00240A0D)
	e.b(0xBA) // mov dx, buffer
	e.w(uint16(ioBuffer))
	e.asmIntWithAH(dosFunctionDispatch, 0x09)
	e.b(0xC3)
}

// emitReadUint32 reads a line through INT 21h function 0Ah buffered
// input, then accumulates decimal digits until the first non-digit.
func (e *Emitter) emitReadUint32(ioBuffer int) {
	e.b(0xC7, 0x06) // mov word [buffer], <max length, 0>
	e.w(uint16(ioBuffer))
	e.w(ioBufferSize)
	e.b(0xBA) // mov dx, buffer
	e.w(uint16(ioBuffer))
	e.asmIntWithAH(dosFunctionDispatch, 0x0A)

	e.b(0x66, 0x31, 0xC0) // xor eax, eax
	e.b(0x66, 0x31, 0xDB) // xor ebx, ebx
	e.b(0xBE, 0x02, 0x00) // mov si, 2
	e.b(0x66, 0xB9)       // mov ecx, 10
	e.d(10)

	loop := len(e.buf)
	e.b(0x8A, 0x9C) // mov bl, [si+buffer]
	e.w(uint16(ioBuffer))
	e.b(0x80, 0xFB, '9') // cmp bl, '9'
	end1 := e.jccShortFwd(0x77)
	e.b(0x80, 0xEB, '0') // sub bl, '0'
	end2 := e.jccShortFwd(0x72)
	e.b(0x66, 0xF7, 0xE1) // mul ecx
	e.b(0x66, 0x03, 0xC3) // add eax, ebx
	e.b(0x46)             // inc si
	e.jmpShortTo(loop)

	e.patchShort(end1)
	e.patchShort(end2)
	e.b(0xC3)
}

// emitGetCommandLine trims the counted command tail in the program
// segment prefix in place: leading blanks are skipped, trailing blanks
// and the carriage return are replaced by a NUL. Returns the start
// address.
func (e *Emitter) emitGetCommandLine(int) {
	e.b(0xBE, 0x80, 0x00) // mov si, 0x80

	skipLeading := len(e.buf)
	e.b(0x46)            // inc si
	e.b(0x80, 0x3C, ' ') // cmp byte [si], ' '
	e.jccShortTo(0x74, skipLeading)

	e.b(0x8B, 0xC6) // mov ax, si
	e.b(0x4E)       // dec si

	findCR := len(e.buf)
	e.b(0x46)             // inc si
	e.b(0x80, 0x3C, 0x0D) // cmp byte [si], 13
	e.jccShortTo(0x75, findCR)

	trimTrailing := len(e.buf)
	e.b(0x4E)            // dec si
	e.b(0x80, 0x3C, ' ') // cmp byte [si], ' '
	e.jccShortTo(0x74, trimTrailing)

	e.b(0x46)             // inc si
	e.b(0xC6, 0x04, 0x00) // mov byte [si], 0
	e.b(0xC3)
}

// emitStringsEqual compares two NUL-terminated strings byte by byte and
// returns 1 in AL when they match. Identical addresses short-circuit.
func (e *Emitter) emitStringsEqual(int) {
	e.asmProcEnter()
	e.b(0x8B, 0x76, 0x06) // mov si, [bp+6]
	e.b(0x8B, 0x7E, 0x08) // mov di, [bp+8]
	e.b(0x39, 0xFE)       // cmp si, di
	equal := e.jccShortFwd(0x74)
	e.b(0x4F) // dec di

	loop := len(e.buf)
	e.b(0x47)             // inc di
	e.b(0xAC)             // lodsb
	e.b(0x38, 0x05)       // cmp [di], al
	notEqual := e.jccShortFwd(0x75)
	e.b(0x80, 0xF8, 0x00) // cmp al, 0
	e.jccShortTo(0x75, loop)

	e.patchShort(equal)
	e.b(0xB0, 0x01) // mov al, 1
	end := e.jmpShortFwd()
	e.patchShort(notEqual)
	e.b(0x30, 0xC0) // xor al, al
	e.patchShort(end)
	e.asmProcLeave(4, false)
}

// emitAlloc requests memory from DOS with INT 21h function 48h and
// converts the returned segment to an offset reachable from DS. Zero
// and over-64k sizes, allocation failure, and blocks the data segment
// cannot address all yield null; unreachable blocks are handed straight
// back to DOS.
func (e *Emitter) emitAlloc(int) {
	e.asmProcEnter()
	e.b(0x66, 0x8B, 0x5E, 0x06) // mov ebx, [bp+6]
	e.b(0x09, 0xDB)             // or bx, bx
	null1 := e.jccShortFwd(0x74)
	e.b(0x66, 0xF7, 0xC3) // test ebx, 0xFFFF0000
	e.d(0xFFFF0000)
	null2 := e.jccShortFwd(0x75)

	e.b(0x81, 0xC3, 0x0F, 0x00) // add bx, 15
	e.b(0xC1, 0xEB, 0x04)       // shr bx, 4
	e.asmIntWithAH(dosFunctionDispatch, 0x48)
	null3 := e.jccShortFwd(0x72) // jc: nothing was allocated

	e.b(0x8B, 0xC8) // mov cx, ax
	e.b(0x8C, 0xDB) // mov bx, ds
	e.b(0x2B, 0xC3) // sub ax, bx
	below := e.jccShortFwd(0x72)
	e.b(0xF7, 0xC0, 0x00, 0xF0) // test ax, 0xF000
	beyond := e.jccShortFwd(0x75)
	e.b(0xC1, 0xE0, 0x04) // shl ax, 4
	done := e.jmpShortFwd()

	e.patchShort(below)
	e.patchShort(beyond)
	e.b(0x8B, 0xC1) // mov ax, cx
	e.b(0x8C, 0xC1) // mov cx, es
	e.b(0x8E, 0xC0) // mov es, ax
	e.asmIntWithAH(dosFunctionDispatch, 0x49)
	e.b(0x8E, 0xC1) // mov es, cx

	e.patchShort(null1)
	e.patchShort(null2)
	e.patchShort(null3)
	e.b(0x31, 0xC0) // xor ax, ax

	e.patchShort(done)
	e.asmProcLeave(4, false)
}

// emitRelease converts the offset back to the segment DOS handed out
// and frees it with INT 21h function 49h.
func (e *Emitter) emitRelease(int) {
	e.asmProcEnter()
	e.b(0x8B, 0x46, 0x06) // mov ax, [bp+6]
	e.b(0xC1, 0xE8, 0x04) // shr ax, 4
	e.b(0x8C, 0xC1)       // mov cx, es
	e.b(0x8C, 0xDB)       // mov bx, ds
	e.b(0x03, 0xC3)       // add ax, bx
	e.b(0x8E, 0xC0)       // mov es, ax
	e.asmIntWithAH(dosFunctionDispatch, 0x49)
	e.b(0x8E, 0xC1) // mov es, cx
	e.asmProcLeave(2, false)
}
