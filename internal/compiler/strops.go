package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
)

// This file implements spec.md §4.10's string and memory-comparison
// primitives. Every string value in this backend is a pointer to a
// null-terminated byte sequence allocated with mmap (spec.md §4.10:
// "All string primitives allocate with mmap").

// strScratch offsets reuse the function frame's 128-byte temp region, at
// a byte range past hashtable.go's own hashScratch* reservation so the
// two builtin families never alias when both are used in one function.
const (
	strScratchLenAOff   = 64
	strScratchLenBOff   = 72
	strScratchPtrAOff   = 80
	strScratchPtrBOff   = 88
	strScratchResultOff = 96
)

// emitStrlen computes the null-terminated length of the string at
// ptrReg into dst, leaving ptrReg itself unmodified. Null-safe: a null
// pointer has length 0 (spec.md §4.10 "null-safe: null pointer =>
// length 0"). Clobbers RBX/RCX.
func emitStrlen(a *asm.Assembler, ptrReg int, dst int) {
	a.MovRR(asm.RBX, ptrReg)
	a.XorRR(dst, dst)
	a.CmpRI(asm.RBX, 0)
	done := a.CreateLabel("strlen_done")
	a.EmitJumpToLabel(done, asm.JE)

	a.XorRR(asm.RCX, asm.RCX) // the byte load below only writes CL
	loop := a.CreateLabel("strlen_loop")
	a.MarkLabel(loop)
	a.LoadByteMem(asm.RBX, 0, asm.RCX)
	a.CmpRI(asm.RCX, 0)
	a.EmitJumpToLabel(done, asm.JE)
	a.AddRI(dst, 1)
	a.AddRI(asm.RBX, 1)
	a.EmitJumpToLabel(loop, asm.JMP)
	a.MarkLabel(done)
}

// emitByteCopy copies lenReg bytes from srcReg to dstReg, one byte at a
// time. Byte-copy inner loops restage their operands from the stack
// after every call that could appear in their setup, since a call inside
// argument evaluation has been observed to clobber R13/R14 (spec.md
// §4.10); this loop itself makes no calls, so it only needs to protect
// its three live values (src, dst, remaining) across its own iterations,
// which plain registers already do.
func emitByteCopy(a *asm.Assembler, dstReg, srcReg, lenReg int) {
	loop := a.CreateLabel("strcpy_loop")
	done := a.CreateLabel("strcpy_done")
	a.MarkLabel(loop)
	a.CmpRI(lenReg, 0)
	a.EmitJumpToLabel(done, asm.JE)
	a.LoadByteMem(srcReg, 0, asm.R11)
	a.StoreByteMem(dstReg, 0, asm.R11)
	a.AddRI(srcReg, 1)
	a.AddRI(dstReg, 1)
	a.SubRI(lenReg, 1)
	a.EmitJumpToLabel(loop, asm.JMP)
	a.MarkLabel(done)
}

// compileStringLength lowers `StringLength(s)` into s's byte length.
func compileStringLength(c *CompilationContext, n *ast.Node) {
	compileExpr(c, n.Args[0], 0)
	emitStrlen(c.Asm, asm.RAX, asm.RAX)
}

// compileStringConcat lowers `StringConcat(a, b)` (spec.md §4.10):
// computes both lengths (null-safe), allocates len1+len2+1 bytes, copies
// both strings in, null-terminates, and leaves the new pointer in RAX.
// Lengths and pointers are restaged from the frame's temp region after
// every evaluation that could itself contain a call, per spec.md
// §4.10's byte-copy restaging note.
func compileStringConcat(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "StringConcat used outside a function frame"))
	}
	a := c.Asm
	tmp := c.frame.tempOff

	compileExpr(c, n.Args[0], 0)
	a.StoreLocal(tmp+strScratchPtrAOff, asm.RAX)
	emitStrlen(a, asm.RAX, asm.RAX)
	a.StoreLocal(tmp+strScratchLenAOff, asm.RAX)

	compileExpr(c, n.Args[1], 0)
	a.StoreLocal(tmp+strScratchPtrBOff, asm.RAX)
	emitStrlen(a, asm.RAX, asm.RAX)
	a.StoreLocal(tmp+strScratchLenBOff, asm.RAX)

	a.LoadLocal(tmp+strScratchLenAOff, asm.RAX)
	a.LoadLocal(tmp+strScratchLenBOff, asm.RCX)
	a.AddRR(asm.RAX, asm.RCX)
	a.AddRI(asm.RAX, 1) // null terminator
	emitMmapAnonReg(a, asm.RAX)
	a.StoreLocal(tmp+strScratchResultOff, asm.RAX)

	// Copy A in full, then B, then write the terminator at the cursor
	// B's copy left behind. Every source/length is reloaded from the
	// frame rather than kept live across emitByteCopy's own call-free
	// loop, matching spec.md §4.10's restaging discipline.
	a.LoadLocal(tmp+strScratchResultOff, asm.RBX)
	a.LoadLocal(tmp+strScratchPtrAOff, asm.RCX)
	a.LoadLocal(tmp+strScratchLenAOff, asm.RDX)
	emitByteCopy(a, asm.RBX, asm.RCX, asm.RDX)

	a.LoadLocal(tmp+strScratchResultOff, asm.RAX)
	a.LoadLocal(tmp+strScratchLenAOff, asm.RDX)
	a.AddRR(asm.RAX, asm.RDX) // cursor = result + lenA
	a.MovRR(asm.RBX, asm.RAX)
	a.LoadLocal(tmp+strScratchPtrBOff, asm.RCX)
	a.LoadLocal(tmp+strScratchLenBOff, asm.RDX)
	emitByteCopy(a, asm.RBX, asm.RCX, asm.RDX)

	a.StoreByteMem(asm.RBX, 0, zeroByteReg(a))
	a.LoadLocal(tmp+strScratchResultOff, asm.RAX)
}

// zeroByteReg returns a register already holding zero for a one-off
// byte store (the null terminator), without disturbing any of
// compileStringConcat's live scratch values.
func zeroByteReg(a *asm.Assembler) int {
	a.XorRR(asm.R11, asm.R11)
	return asm.R11
}

// compileMemCompare lowers `MemCompare(a, b, n)` (spec.md §4.10): SSE2
// 16-byte-at-a-time PCMPEQB/PMOVMSKB compare with a byte-wise fallback
// for the residual tail, leaving 0 (equal) or 1 (different) in RAX.
func compileMemCompare(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	compileExpr(c, n.Args[0], 0)
	a.PushR(asm.RAX)
	compileExpr(c, n.Args[1], 0)
	a.PushR(asm.RAX)
	compileExpr(c, n.Args[2], 0)
	a.MovRR(asm.R11, asm.RAX) // remaining count
	a.PopR(asm.RCX)           // ptr b
	a.PopR(asm.RBX)           // ptr a

	diff := a.CreateLabel("memcmp_diff")
	done := a.CreateLabel("memcmp_done")
	same := a.CreateLabel("memcmp_same")
	chunk := a.CreateLabel("memcmp_chunk")
	tailLoop := a.CreateLabel("memcmp_tail")

	a.MarkLabel(chunk)
	a.CmpRI(asm.R11, 16)
	a.EmitJumpToLabel(tailLoop, asm.JL)
	a.MovdquLoad(asm.RBX, 0, 0)
	a.MovdquLoad(asm.RCX, 0, 1)
	a.PcmpeqbRR(0, 1)
	a.PmovmskbRX(asm.RAX, 0)
	a.CmpRI(asm.RAX, 0xFFFF)
	a.EmitJumpToLabel(diff, asm.JNE)
	a.AddRI(asm.RBX, 16)
	a.AddRI(asm.RCX, 16)
	a.SubRI(asm.R11, 16)
	a.EmitJumpToLabel(chunk, asm.JMP)

	a.MarkLabel(tailLoop)
	a.CmpRI(asm.R11, 0)
	a.EmitJumpToLabel(same, asm.JE)
	a.XorRR(asm.RAX, asm.RAX) // byte loads only write the low byte
	a.XorRR(asm.RDX, asm.RDX)
	a.LoadByteMem(asm.RBX, 0, asm.RAX)
	a.LoadByteMem(asm.RCX, 0, asm.RDX)
	a.CmpRR(asm.RAX, asm.RDX)
	a.EmitJumpToLabel(diff, asm.JNE)
	a.AddRI(asm.RBX, 1)
	a.AddRI(asm.RCX, 1)
	a.SubRI(asm.R11, 1)
	a.EmitJumpToLabel(tailLoop, asm.JMP)

	a.MarkLabel(same)
	a.XorRR(asm.RAX, asm.RAX)
	a.EmitJumpToLabel(done, asm.JMP)
	a.MarkLabel(diff)
	a.MovRI64(asm.RAX, 1)
	a.MarkLabel(done)
}

// compileMemChr lowers `MemChr(ptr, byteValue, n)` (spec.md §4.10):
// broadcasts the search byte into an XMM register and scans 16 bytes at
// a time, falling back to a byte-wise scan for the residual tail.
// Leaves the matching absolute pointer in RAX, or 0 if not found.
func compileMemChr(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	compileExpr(c, n.Args[0], 0)
	a.PushR(asm.RAX)
	compileExpr(c, n.Args[1], 0)
	a.MovRR(asm.RCX, asm.RAX) // search byte
	compileExpr(c, n.Args[2], 0)
	a.MovRR(asm.R11, asm.RAX) // remaining count
	a.PopR(asm.RBX)           // ptr

	a.MovdToXmm(0, asm.RCX)
	a.PunpcklbwSelf(0)
	a.PshuflwBroadcast(0)
	a.PshufdBroadcast(0)

	chunk := a.CreateLabel("memchr_chunk")
	tailLoop := a.CreateLabel("memchr_tail")
	tailFound := a.CreateLabel("memchr_tail_found")
	found := a.CreateLabel("memchr_found")
	miss := a.CreateLabel("memchr_miss")
	done := a.CreateLabel("memchr_done")

	a.MarkLabel(chunk)
	a.CmpRI(asm.R11, 16)
	a.EmitJumpToLabel(tailLoop, asm.JL)
	a.MovdquLoad(asm.RBX, 0, 1)
	a.PcmpeqbRR(1, 0)
	a.PmovmskbRX(asm.RDX, 1)
	a.CmpRI(asm.RDX, 0)
	a.EmitJumpToLabel(found, asm.JNE)
	a.AddRI(asm.RBX, 16)
	a.SubRI(asm.R11, 16)
	a.EmitJumpToLabel(chunk, asm.JMP)

	a.MarkLabel(tailLoop)
	a.CmpRI(asm.R11, 0)
	a.EmitJumpToLabel(miss, asm.JE)
	a.XorRR(asm.RDX, asm.RDX) // the byte load only writes DL
	a.LoadByteMem(asm.RBX, 0, asm.RDX)
	a.CmpRR(asm.RDX, asm.RCX)
	a.EmitJumpToLabel(tailFound, asm.JE)
	a.AddRI(asm.RBX, 1)
	a.SubRI(asm.R11, 1)
	a.EmitJumpToLabel(tailLoop, asm.JMP)

	a.MarkLabel(found)
	// Find which of the 16 lanes matched and add its index to rbx.
	emitFirstSetBit(a, asm.RDX, asm.RAX)
	a.AddRR(asm.RBX, asm.RAX)
	a.EmitJumpToLabel(tailFound, asm.JMP)

	a.MarkLabel(miss)
	a.XorRR(asm.RAX, asm.RAX)
	a.EmitJumpToLabel(done, asm.JMP)

	a.MarkLabel(tailFound)
	a.MovRR(asm.RAX, asm.RBX)
	a.MarkLabel(done)
}

// emitFirstSetBit computes the index of the lowest set bit of maskReg
// into dst via BSF (bit-scan-forward).
func emitFirstSetBit(a *asm.Assembler, maskReg, dst int) {
	a.EmitRaw(0x48, 0x0F, 0xBC, byte(0xC0|((dst&7)<<3)|(maskReg&7)))
}
