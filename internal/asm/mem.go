package asm

// This file holds the memory-operand emitters: RBP-relative locals
// (spec.md §3 "Frame") and arbitrary base+disp forms (spec.md §3 "Pool
// variable" via R15, "Linkage pool" via a caller-supplied pointer
// register).

// LoadLocal emits `mov reg, [rbp - offset]`.
func (a *Assembler) LoadLocal(offset int, reg int) {
	a.loadStoreRBP(offset, reg, 0x8B)
}

// StoreLocal emits `mov [rbp - offset], reg`.
func (a *Assembler) StoreLocal(offset int, reg int) {
	a.loadStoreRBP(offset, reg, 0x89)
}

// LeaLocal emits `lea reg, [rbp - offset]`.
func (a *Assembler) LeaLocal(offset int, reg int) {
	a.loadStoreRBP(offset, reg, 0x8D)
}

func (a *Assembler) loadStoreRBP(offset int, reg int, opcode byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4C
	}
	negOff := -offset
	if negOff >= -128 && negOff <= 127 {
		modrm := byte(0x45 | ((reg & 7) << 3))
		a.emitBytes(rex, opcode, modrm, byte(int8(negOff)))
	} else {
		modrm := byte(0x85 | ((reg & 7) << 3))
		a.emitBytes(rex, opcode, modrm)
		a.emitU32(uint32(int32(negOff)))
	}
}

// LoadMem emits `mov reg, [base + disp]` — the pool-base (R15) and
// linkage-pool member-access addressing form (spec.md §3).
func (a *Assembler) LoadMem(base int, disp int32, reg int) {
	a.memOp(base, disp, reg, 0x8B)
}

// StoreMem emits `mov [base + disp], reg`.
func (a *Assembler) StoreMem(base int, disp int32, reg int) {
	a.memOp(base, disp, reg, 0x89)
}

// LeaMem emits `lea reg, [base + disp]`.
func (a *Assembler) LeaMem(base int, disp int32, reg int) {
	a.memOp(base, disp, reg, 0x8D)
}

func (a *Assembler) memOp(base int, disp int32, reg int, opcode byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04
	}
	if base >= 8 {
		rex |= 0x01
	}
	baseField := base & 7
	needsSIB := baseField == 4 // RSP/R12 require a SIB byte

	var mod byte
	useDisp8 := disp >= -128 && disp <= 127
	switch {
	case disp == 0 && baseField != 5: // [rbp]/[r13] with disp0 isn't encodable; forces disp8
		mod = 0x00
	case useDisp8:
		mod = 0x40
	default:
		mod = 0x80
	}

	modrm := mod | byte((reg&7)<<3)
	if needsSIB {
		modrm |= 0x04 // rm=100 -> SIB follows
		a.emitBytes(rex, opcode, modrm, 0x24) // SIB: scale=0, index=none, base=field
	} else {
		modrm |= byte(baseField)
		a.emitBytes(rex, opcode, modrm)
	}

	switch mod {
	case 0x40:
		a.emitByte(byte(int8(disp)))
	case 0x80:
		a.emitU32(uint32(disp))
	}
}

// LoadByteMem / StoreByteMem emit 8-bit `mov` forms (spec.md §4.1: byte
// loads/stores are one of the two explicitly-named narrow-operand uses).
func (a *Assembler) LoadByteMem(base int, disp int32, reg int) {
	a.byteMemOp(base, disp, reg, 0x8A)
}

func (a *Assembler) StoreByteMem(base int, disp int32, reg int) {
	a.byteMemOp(base, disp, reg, 0x88)
}

func (a *Assembler) byteMemOp(base int, disp int32, reg int, opcode byte) {
	rex := byte(0x40)
	if reg >= 8 {
		rex |= 0x04
	}
	if base >= 8 {
		rex |= 0x01
	}
	baseField := base & 7
	needsSIB := baseField == 4
	var mod byte
	useDisp8 := disp >= -128 && disp <= 127
	if useDisp8 {
		mod = 0x40
	} else {
		mod = 0x80
	}
	modrm := mod | byte((reg&7)<<3)
	a.emitByte(rex)
	a.emitByte(opcode)
	if needsSIB {
		modrm |= 0x04
		a.emitBytes(modrm, 0x24)
	} else {
		modrm |= byte(baseField)
		a.emitByte(modrm)
	}
	if mod == 0x40 {
		a.emitByte(byte(int8(disp)))
	} else {
		a.emitU32(uint32(disp))
	}
}
