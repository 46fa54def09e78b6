package asm

// SSE2 helpers for MemCompare/MemChr (spec.md §4.10). Only xmm0-xmm7 are
// used by this backend's scalar-op modules, so these emitters skip the
// REX.R extension xmm8-15 would need.

// MovdquLoad loads 16 bytes from [base+disp] into xmmDst (`movdqu xmmDst, [base+disp]`,
// unaligned form since local/heap buffers are not guaranteed 16-byte aligned).
func (a *Assembler) MovdquLoad(base int, disp int32, xmmDst int) {
	a.emitBytes(0xF3)
	a.sse2MemOp(base, disp, xmmDst, 0x0F, 0x6F)
}

// MovdToXmm moves the low 32 bits of a GP register into an xmm register
// (`movd xmm, reg32`).
func (a *Assembler) MovdToXmm(xmmDst int, gpSrc int) {
	a.emitBytes(0x66, 0x0F, 0x6E, byte(0xC0|((xmmDst&7)<<3)|(gpSrc&7)))
}

// PunpcklbwSelf emits `punpcklbw xmm, xmm` (interleave low bytes with
// itself — the first step of broadcasting a byte across the register).
func (a *Assembler) PunpcklbwSelf(xmm int) {
	a.emitBytes(0x66, 0x0F, 0x60, byte(0xC0|((xmm&7)<<3)|(xmm&7)))
}

// PshuflwBroadcast emits `pshuflw xmm, xmm, 0x00` (broadcast word 0 to
// all four low words).
func (a *Assembler) PshuflwBroadcast(xmm int) {
	a.emitBytes(0xF2, 0x0F, 0x70, byte(0xC0|((xmm&7)<<3)|(xmm&7)), 0x00)
}

// PshufdBroadcast emits `pshufd xmm, xmm, 0x00` (broadcast dword 0 to
// all four dwords, completing the byte-broadcast sequence MemChr uses).
func (a *Assembler) PshufdBroadcast(xmm int) {
	a.emitBytes(0x66, 0x0F, 0x70, byte(0xC0|((xmm&7)<<3)|(xmm&7)), 0x00)
}

// PcmpeqbRR emits `pcmpeqb xmmDst, xmmSrc` (byte-wise equality compare).
func (a *Assembler) PcmpeqbRR(xmmDst, xmmSrc int) {
	a.emitBytes(0x66, 0x0F, 0x74, byte(0xC0|((xmmDst&7)<<3)|(xmmSrc&7)))
}

// PmovmskbRX emits `pmovmskb gpDst, xmmSrc` (pack the top bit of each of
// the 16 compared bytes into a 16-bit GP mask).
func (a *Assembler) PmovmskbRX(gpDst, xmmSrc int) {
	a.emitBytes(0x66, 0x0F, 0xD7, byte(0xC0|((gpDst&7)<<3)|(xmmSrc&7)))
}

func (a *Assembler) sse2MemOp(base int, disp int32, xmmReg int, op1, op2 byte) {
	baseField := base & 7
	needsSIB := baseField == 4
	var mod byte
	if disp >= -128 && disp <= 127 {
		mod = 0x40
	} else {
		mod = 0x80
	}
	modrm := mod | byte((xmmReg&7)<<3)
	a.emitBytes(op1, op2)
	if needsSIB {
		a.emitBytes(modrm|0x04, 0x24)
	} else {
		a.emitByte(modrm | byte(baseField))
	}
	if mod == 0x40 {
		a.emitByte(byte(int8(disp)))
	} else {
		a.emitU32(uint32(disp))
	}
}
