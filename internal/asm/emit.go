package asm

// This file holds the primitive instruction emitters (spec.md §4.1): one
// function per mnemonic/operand-form the backend needs. Every emitter
// appends exactly the bytes for its operands — no implicit operand-size
// promotion — and the backend works in 64-bit operand size (REX.W=1)
// throughout except where a narrower form is named explicitly (byte
// loads/stores, SETcc). Grounded on the teacher's x64.go encoder.

func rexRR(dst, src int) byte {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x04
	}
	if src >= 8 {
		rex |= 0x01
	}
	return rex
}

func modrmRR(dst, src int) byte {
	return byte(0xC0 | ((dst & 7) << 3) | (src & 7))
}

// MovRI64 emits `movabs reg, imm64`.
func (a *Assembler) MovRI64(reg int, val uint64) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x49
	}
	a.emitByte(rex)
	a.emitByte(byte(0xB8 + (reg & 7)))
	a.emitU64(val)
}

// MovRR emits `mov dst, src`.
func (a *Assembler) MovRR(dst, src int) {
	start := len(a.Code)
	a.emitBytes(rexRR(src, dst), 0x89, modrmRR(src, dst))
	a.marks = append(a.marks, InstrMark{Op: 'm', Reg: dst, Reg2: src, Start: start, Len: len(a.Code) - start})
}

// AddRR / SubRR / AndRR / OrRR / XorRR emit the matching two-operand
// integer op, dst op= src (spec.md §4.1, §2 "Arithmetic/bitwise/compare").
func (a *Assembler) AddRR(dst, src int) { a.emitBytes(rexRR(src, dst), 0x01, modrmRR(src, dst)) }
func (a *Assembler) SubRR(dst, src int) { a.emitBytes(rexRR(src, dst), 0x29, modrmRR(src, dst)) }
func (a *Assembler) AndRR(dst, src int) { a.emitBytes(rexRR(src, dst), 0x21, modrmRR(src, dst)) }
func (a *Assembler) OrRR(dst, src int)  { a.emitBytes(rexRR(src, dst), 0x09, modrmRR(src, dst)) }
func (a *Assembler) XorRR(dst, src int) { a.emitBytes(rexRR(src, dst), 0x31, modrmRR(src, dst)) }
func (a *Assembler) CmpRR(a1, b int)    { a.emitBytes(rexRR(b, a1), 0x39, modrmRR(b, a1)) }
func (a *Assembler) TestRR(a1, b int)   { a.emitBytes(rexRR(b, a1), 0x85, modrmRR(b, a1)) }

// ImulRR emits `imul dst, src` (two-byte opcode 0F AF).
func (a *Assembler) ImulRR(dst, src int) {
	a.emitBytes(rexRR(dst, src), 0x0F, 0xAF, modrmRR(dst, src))
}

// AddRI / SubRI / AndRI / CmpRI emit `OP reg, imm32` (sign-extended to
// 64 bits), opcode /digit forms.
func (a *Assembler) opRI(reg int, val int32, digit byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	a.emitBytes(rex, 0x81, byte(0xC0|(digit<<3)|(reg&7)))
	a.emitU32(uint32(val))
}

func (a *Assembler) AddRI(reg int, val int32) { a.opRI(reg, val, 0) }
func (a *Assembler) SubRI(reg int, val int32) { a.opRI(reg, val, 5) }
func (a *Assembler) AndRI(reg int, val int32) { a.opRI(reg, val, 4) }
func (a *Assembler) OrRI(reg int, val int32)  { a.opRI(reg, val, 1) }
func (a *Assembler) XorRI(reg int, val int32) { a.opRI(reg, val, 6) }
func (a *Assembler) CmpRI(reg int, val int32) { a.opRI(reg, val, 7) }

// NegR / NotR emit single-operand F7 group ops.
func (a *Assembler) unaryF7(reg int, digit byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	a.emitBytes(rex, 0xF7, byte(0xC0|(digit<<3)|(reg&7)))
}

func (a *Assembler) NegR(reg int) { a.unaryF7(reg, 3) }
func (a *Assembler) NotR(reg int) { a.unaryF7(reg, 2) }
func (a *Assembler) MulR(reg int) { a.unaryF7(reg, 4) }  // unsigned rdx:rax = rax*reg
func (a *Assembler) ImulR(reg int) { a.unaryF7(reg, 5) } // signed rdx:rax = rax*reg
func (a *Assembler) IdivR(reg int) { a.unaryF7(reg, 7) } // rax,rdx = rdx:rax /% reg (signed)
func (a *Assembler) DivR(reg int)  { a.unaryF7(reg, 6) } // unsigned

// Cqo emits `cqo` (sign-extend rax into rdx:rax).
func (a *Assembler) Cqo() { a.emitBytes(0x48, 0x99) }

// ShlRI / SarRI / ShrRI emit `OP reg, imm8` shift-by-constant forms.
func (a *Assembler) shiftRI(reg int, n byte, digit byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	a.emitBytes(rex, 0xC1, byte(0xC0|(digit<<3)|(reg&7)), n)
}

func (a *Assembler) ShlRI(reg int, n byte) { a.shiftRI(reg, n, 4) }
func (a *Assembler) ShrRI(reg int, n byte) { a.shiftRI(reg, n, 5) }
func (a *Assembler) SarRI(reg int, n byte) { a.shiftRI(reg, n, 7) }

// ShrRCL / SarRCL emit `OP reg, cl` variable-shift forms (used when the
// shift amount is not a compile-time constant).
func (a *Assembler) shiftRCL(reg int, digit byte) {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x01
	}
	a.emitBytes(rex, 0xD3, byte(0xC0|(digit<<3)|(reg&7)))
}

func (a *Assembler) ShlRCL(reg int) { a.shiftRCL(reg, 4) }
func (a *Assembler) ShrRCL(reg int) { a.shiftRCL(reg, 5) }
func (a *Assembler) SarRCL(reg int) { a.shiftRCL(reg, 7) }

// PushR / PopR handle r8-r15 transparently via the REX.B prefix.
func (a *Assembler) PushR(reg int) {
	start := len(a.Code)
	if reg >= 8 {
		a.emitBytes(0x41, byte(0x50+(reg&7)))
	} else {
		a.emitByte(byte(0x50 + reg))
	}
	a.marks = append(a.marks, InstrMark{Op: 'P', Reg: reg, Start: start, Len: len(a.Code) - start})
}

func (a *Assembler) PopR(reg int) {
	start := len(a.Code)
	if reg >= 8 {
		a.emitBytes(0x41, byte(0x58+(reg&7)))
	} else {
		a.emitByte(byte(0x58 + reg))
	}
	a.marks = append(a.marks, InstrMark{Op: 'p', Reg: reg, Start: start, Len: len(a.Code) - start})
}

// Ret emits `ret`.
func (a *Assembler) Ret() { a.emitByte(0xC3) }

// Syscall emits `syscall`.
func (a *Assembler) Syscall() { a.emitBytes(0x0F, 0x05) }

// CallR emits `call reg` (indirect call through a register — used for
// actor dispatch through the ACB table, spec.md §4.8).
func (a *Assembler) CallR(reg int) {
	rex := byte(0x40)
	if reg >= 8 {
		rex |= 0x01
	}
	if rex != 0x40 {
		a.emitByte(rex)
	}
	a.emitBytes(0xFF, byte(0xD0|(reg&7)))
}

// JmpR emits `jmp reg` (indirect jump, used for the per-function return
// trampoline when its target is resolved through a register).
func (a *Assembler) JmpR(reg int) {
	rex := byte(0x40)
	if reg >= 8 {
		rex |= 0x01
	}
	if rex != 0x40 {
		a.emitByte(rex)
	}
	a.emitBytes(0xFF, byte(0xE0|(reg&7)))
}

// SetccR emits `setcc r8l` zero-extended into reg (byte store; this is
// one of the two places the backend uses an 8-bit operand form, the
// other being mem.go's byte loads/stores, per spec.md §4.1). cc is the
// low byte of the 0F 9x SETcc opcode family, derived from the same
// condition encoding as Jcc plus 0x10.
func (a *Assembler) SetccR(reg int, jk JumpKind) {
	op := ccOpcode[jk] + 0x10 // 0F 8x Jcc -> 0F 9x SETcc
	rex := byte(0x40)
	if reg >= 8 {
		rex = 0x41
	}
	a.emitBytes(rex, 0x0F, op, byte(0xC0|(reg&7)))
	// Zero-extend the byte result into the full register.
	a.zeroExtendByte(reg)
}

func (a *Assembler) zeroExtendByte(reg int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4D
	}
	a.emitBytes(rex, 0x0F, 0xB6, byte(0xC0|((reg&7)<<3)|(reg&7)))
}
