package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
)

// Hash table layout (spec.md §4.9): header `[capacity, size]` followed
// by capacity 24-byte slots `[hash, key_ptr, value]`. Capacity is the
// next power of two at least 2x the expected entry count. delete is
// intentionally unimplemented.
const (
	hashHeaderSize = 16
	hashSlotSize   = 24

	hashSlotHashOff  = 0
	hashSlotKeyOff   = 8
	hashSlotValueOff = 16
)

// hashScratch offsets are added to the function frame's tempOff
// (memory.go); strops.go's strScratch* and syscalls.go's sockAddrOff
// use higher offsets from the same base.
const (
	hashScratchKeyOff  = 32
	hashScratchHashOff = 40
	hashScratchIdxOff  = 48
	hashScratchSlotOff = 56
)

func nextPow2Capacity(expected int) int {
	cap := 1
	for cap < expected*2 {
		cap *= 2
	}
	if cap < 2 {
		cap = 2
	}
	return cap
}

// emitHashTableInit mmaps a table sized for expected entries and stores
// its pointer at frameOffset (spec.md §4.9 "Header").
func emitHashTableInit(c *CompilationContext, frameOffset int, expected int) {
	a := c.Asm
	capacity := nextPow2Capacity(expected)
	size := hashHeaderSize + capacity*hashSlotSize

	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RSI, uint64(size))
	a.MovRI64(asm.RDX, 3)
	a.MovRI64(asm.R10, 0x22)
	a.MovRI64(asm.R8, ^uint64(0))
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9)
	a.Syscall()
	a.StoreLocal(frameOffset, asm.RAX)

	// rep stosq over the whole block zeroes every slot's hash field too,
	// which is what set/get use to recognize an empty slot.
	a.MovRR(asm.RDI, asm.RAX)
	a.MovRI64(asm.RCX, uint64(size/8))
	a.XorRR(asm.RAX, asm.RAX)
	a.EmitRaw(0xF3, 0x48, 0xAB)

	a.LoadLocal(frameOffset, asm.RDI)
	a.MovRI64(asm.RCX, uint64(capacity))
	a.StoreMem(asm.RDI, 0, asm.RCX)
}

// emitDjb2Hash computes spec.md §4.9's DJB2 hash of the nul-terminated
// string at keyPtrReg into dst: h=5381; h = h*33 + c for each byte.
// Clobbers RAX, RBX, RCX, RDX.
func emitDjb2Hash(c *CompilationContext, keyPtrReg int, dst int) {
	a := c.Asm
	if keyPtrReg != asm.RBX {
		a.MovRR(asm.RBX, keyPtrReg)
	}
	a.MovRI64(asm.RAX, 5381)

	loop := a.CreateLabel("djb2_loop")
	done := a.CreateLabel("djb2_done")
	a.MarkLabel(loop)
	a.XorRR(asm.RDX, asm.RDX)
	a.LoadByteMem(asm.RBX, 0, asm.RDX)
	a.CmpRI(asm.RDX, 0)
	a.EmitJumpToLabel(done, asm.JE)

	a.MovRR(asm.RCX, asm.RAX)
	a.ShlRI(asm.RAX, 5)
	a.AddRR(asm.RAX, asm.RCX)
	a.AddRR(asm.RAX, asm.RDX)
	a.AddRI(asm.RBX, 1)
	a.EmitJumpToLabel(loop, asm.JMP)

	a.MarkLabel(done)
	// DJB2 is defined over unbounded addition; it is never zero for a hit
	// on an actual key, but a real string could coincidentally hash to 0,
	// which a linear-probe table would then misread as "empty". Fold that
	// one case to 1, matching the table's own empty-slot sentinel choice.
	a.CmpRI(asm.RAX, 0)
	nonzero := a.CreateLabel("djb2_nonzero")
	a.EmitJumpToLabel(nonzero, asm.JNE)
	a.MovRI64(asm.RAX, 1)
	a.MarkLabel(nonzero)
	if dst != asm.RAX {
		a.MovRR(dst, asm.RAX)
	}
}

// emitStringEqualsJump compares the nul-terminated strings at ptrA and
// ptrB byte by byte and jumps to equalLabel if they match exactly,
// falling through otherwise. Clobbers ptrA, ptrB, and RDX/R11.
func emitStringEqualsJump(a *asm.Assembler, ptrA, ptrB int, equalLabel string) {
	loop := a.CreateLabel("streq_loop")
	a.MarkLabel(loop)
	a.XorRR(asm.RDX, asm.RDX)
	a.LoadByteMem(ptrA, 0, asm.RDX)
	a.XorRR(asm.R11, asm.R11)
	a.LoadByteMem(ptrB, 0, asm.R11)
	a.CmpRR(asm.RDX, asm.R11)
	mismatch := a.CreateLabel("streq_mismatch")
	a.EmitJumpToLabel(mismatch, asm.JNE)
	a.CmpRI(asm.RDX, 0)
	a.EmitJumpToLabel(equalLabel, asm.JE)
	a.AddRI(ptrA, 1)
	a.AddRI(ptrB, 1)
	a.EmitJumpToLabel(loop, asm.JMP)
	a.MarkLabel(mismatch)
}

// emitHashSet implements spec.md §4.9 `set`: probe linearly from
// hash mod capacity until an empty slot or a matching key is found,
// then write [hash, key_ptr, value] into it. keyPtrReg and valueReg are
// consumed; the result in RAX is unspecified.
func emitHashSet(c *CompilationContext, tableOff int, keyPtrReg int, valueReg int) {
	a := c.Asm
	tmp := c.frame.tempOff

	a.PushR(valueReg) // the hash and probe below clobber RAX-RDX
	a.StoreLocal(tmp+hashScratchKeyOff, keyPtrReg)
	emitDjb2Hash(c, keyPtrReg, asm.RAX)
	a.StoreLocal(tmp+hashScratchHashOff, asm.RAX)

	a.LoadLocal(tableOff, asm.RBX)
	a.LoadMem(asm.RBX, 0, asm.RCX) // capacity
	a.SubRI(asm.RCX, 1)            // capacity is a power of two
	a.MovRR(asm.RDX, asm.RAX)
	a.AndRR(asm.RDX, asm.RCX) // idx = hash & (capacity-1)
	a.StoreLocal(tmp+hashScratchIdxOff, asm.RDX)

	probe := a.CreateLabel("hset_probe")
	empty := a.CreateLabel("hset_empty")
	match := a.CreateLabel("hset_match")
	next := a.CreateLabel("hset_next")
	write := a.CreateLabel("hset_write")

	a.MarkLabel(probe)
	a.LoadLocal(tableOff, asm.RBX)
	a.LoadLocal(tmp+hashScratchIdxOff, asm.RDX)
	a.MovRR(asm.RAX, asm.RDX)
	a.MovRI64(asm.RCX, hashSlotSize)
	a.ImulRR(asm.RAX, asm.RCX)
	a.AddRI(asm.RAX, hashHeaderSize)
	a.AddRR(asm.RAX, asm.RBX) // rax = slot ptr
	a.StoreLocal(tmp+hashScratchSlotOff, asm.RAX)

	a.LoadMem(asm.RAX, hashSlotHashOff, asm.RCX)
	a.CmpRI(asm.RCX, 0)
	a.EmitJumpToLabel(empty, asm.JE)

	a.LoadLocal(tmp+hashScratchHashOff, asm.RDX)
	a.CmpRR(asm.RCX, asm.RDX)
	a.EmitJumpToLabel(next, asm.JNE)

	a.LoadMem(asm.RAX, hashSlotKeyOff, asm.RBX)
	a.LoadLocal(tmp+hashScratchKeyOff, asm.RCX)
	emitStringEqualsJump(a, asm.RBX, asm.RCX, match)
	a.EmitJumpToLabel(next, asm.JMP)

	a.MarkLabel(next)
	a.LoadLocal(tableOff, asm.RBX)
	a.LoadMem(asm.RBX, 0, asm.RCX)
	a.SubRI(asm.RCX, 1) // capacity - 1
	a.LoadLocal(tmp+hashScratchIdxOff, asm.RDX)
	a.AddRI(asm.RDX, 1)
	a.AndRR(asm.RDX, asm.RCX)
	a.StoreLocal(tmp+hashScratchIdxOff, asm.RDX)
	a.EmitJumpToLabel(probe, asm.JMP)

	a.MarkLabel(empty)
	a.LoadLocal(tmp+hashScratchSlotOff, asm.RAX)
	a.LoadLocal(tmp+hashScratchHashOff, asm.RCX)
	a.StoreMem(asm.RAX, hashSlotHashOff, asm.RCX)
	a.LoadLocal(tmp+hashScratchKeyOff, asm.RCX)
	a.StoreMem(asm.RAX, hashSlotKeyOff, asm.RCX)
	a.EmitJumpToLabel(write, asm.JMP)

	a.MarkLabel(match)
	a.LoadLocal(tmp+hashScratchSlotOff, asm.RAX)

	a.MarkLabel(write)
	a.PopR(asm.RBX) // value pushed at entry
	a.StoreMem(asm.RAX, hashSlotValueOff, asm.RBX)
}

// emitHashGet implements spec.md §4.9 `get`: probe symmetrically with
// set, returning the matching slot's value in dst, or 0 if a null-hash
// slot is reached first.
func emitHashGet(c *CompilationContext, tableOff int, keyPtrReg int, dst int) {
	a := c.Asm
	tmp := c.frame.tempOff

	a.StoreLocal(tmp+hashScratchKeyOff, keyPtrReg)
	emitDjb2Hash(c, keyPtrReg, asm.RAX)
	a.StoreLocal(tmp+hashScratchHashOff, asm.RAX)

	a.LoadLocal(tableOff, asm.RBX)
	a.LoadMem(asm.RBX, 0, asm.RCX)
	a.SubRI(asm.RCX, 1)
	a.AndRR(asm.RAX, asm.RCX)
	a.StoreLocal(tmp+hashScratchIdxOff, asm.RAX)

	probe := a.CreateLabel("hget_probe")
	miss := a.CreateLabel("hget_miss")
	match := a.CreateLabel("hget_match")
	next := a.CreateLabel("hget_next")
	done := a.CreateLabel("hget_done")

	a.MarkLabel(probe)
	a.LoadLocal(tableOff, asm.RBX)
	a.LoadLocal(tmp+hashScratchIdxOff, asm.RDX)
	a.MovRR(asm.RAX, asm.RDX)
	a.MovRI64(asm.RCX, hashSlotSize)
	a.ImulRR(asm.RAX, asm.RCX)
	a.AddRI(asm.RAX, hashHeaderSize)
	a.AddRR(asm.RAX, asm.RBX)
	a.StoreLocal(tmp+hashScratchSlotOff, asm.RAX)

	a.LoadMem(asm.RAX, hashSlotHashOff, asm.RCX)
	a.CmpRI(asm.RCX, 0)
	a.EmitJumpToLabel(miss, asm.JE)

	a.LoadLocal(tmp+hashScratchHashOff, asm.RDX)
	a.CmpRR(asm.RCX, asm.RDX)
	a.EmitJumpToLabel(next, asm.JNE)

	a.LoadMem(asm.RAX, hashSlotKeyOff, asm.RBX)
	a.LoadLocal(tmp+hashScratchKeyOff, asm.RCX)
	emitStringEqualsJump(a, asm.RBX, asm.RCX, match)

	a.MarkLabel(next)
	a.LoadLocal(tableOff, asm.RBX)
	a.LoadMem(asm.RBX, 0, asm.RCX)
	a.SubRI(asm.RCX, 1)
	a.LoadLocal(tmp+hashScratchIdxOff, asm.RDX)
	a.AddRI(asm.RDX, 1)
	a.AndRR(asm.RDX, asm.RCX)
	a.StoreLocal(tmp+hashScratchIdxOff, asm.RDX)
	a.EmitJumpToLabel(probe, asm.JMP)

	a.MarkLabel(miss)
	a.XorRR(dst, dst)
	a.EmitJumpToLabel(done, asm.JMP)

	a.MarkLabel(match)
	a.LoadLocal(tmp+hashScratchSlotOff, asm.RAX)
	a.LoadMem(asm.RAX, hashSlotValueOff, dst)

	a.MarkLabel(done)
}
