package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// emitFixedPoolLoad/Store lower access to a `POOLKIND.POOLNAME.MEMBER`
// symbol: eight bytes at `pool_base + pool_index*8`, pool_base being R15
// (spec.md §3 "Pool variable").
func emitFixedPoolLoad(c *CompilationContext, sym *symtab.Symbol, dst int) {
	disp := int32(sym.PoolIndex() * 8)
	c.Asm.LoadMem(asm.R15, disp, dst)
}

func emitFixedPoolStore(c *CompilationContext, sym *symtab.Symbol, src int) {
	disp := int32(sym.PoolIndex() * 8)
	c.Asm.StoreMem(asm.R15, disp, src)
}

// --- Dynamic pools -----------------------------------------------------
//
// A dynamic pool is a heap block mmap'd at program start: header
// `[0..8) capacity, [8..16) size, [16..) members`, with a stack slot
// holding the block pointer (spec.md §3 "Dynamic pool").

const dynPoolHeaderSize = 16

// declareDynamicPoolType registers a dynamic pool's member layout, using
// the same zero-based field indexing as declareLinkagePoolType; the
// 16-byte capacity/size header is accounted for separately by
// emitDynamicPoolMemberLoad/Store, not folded into these offsets.
func declareDynamicPoolType(c *CompilationContext, poolType string, fields []symtab.FieldInfoLike) *symtab.PoolMeta {
	meta := &symtab.PoolMeta{
		Kind:         "Dynamic",
		FieldOffsets: make(map[string]int),
		FieldDirs:    make(map[string]string),
		FieldTypes:   make(map[string]string),
	}
	off := 0
	for _, f := range fields {
		meta.FieldOffsets[f.Name] = off
		meta.FieldDirs[f.Name] = f.Dir
		meta.FieldTypes[f.Name] = f.Type
		off += 8
	}
	meta.TotalSize = off
	c.linkagePools[poolType] = meta
	return meta
}

// emitDynamicPoolInit emits the mmap + header-init sequence for one
// dynamic pool and stores the resulting pointer into the frame slot at
// frameOffset (spec.md §4.3 "Dynamic-pool initialization"). No member
// values are copied in; every member starts at zero from the anonymous
// mapping.
func emitDynamicPoolInit(c *CompilationContext, frameOffset int, memberCount int, capacity int) {
	a := c.Asm
	size := dynPoolHeaderSize + memberCount*8

	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RSI, uint64(size))
	a.MovRI64(asm.RDX, 3)
	a.MovRI64(asm.R10, 0x22)
	a.MovRI64(asm.R8, ^uint64(0))
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9)
	a.Syscall()

	// rax now holds the block pointer (or a negative errno the caller's
	// convention treats as "allocation failed"; the backend does not
	// insert a guard here, matching spec.md §7's IDIV/SIGFPE policy of
	// not inserting runtime guards the source doesn't ask for).
	a.StoreLocal(frameOffset, asm.RAX)

	a.MovRI64(asm.RCX, uint64(capacity))
	a.StoreMem(asm.RAX, 0, asm.RCX)
	a.XorRR(asm.RCX, asm.RCX)
	a.StoreMem(asm.RAX, 8, asm.RCX)
}

// emitDynamicPoolMemberLoad/Store address `[blockPtr + 16 + idx*8]`
// through the pointer held at frameOffset.
func emitDynamicPoolMemberLoad(c *CompilationContext, frameOffset int, memberIdx int, dst int) {
	c.Asm.LoadLocal(frameOffset, asm.RAX)
	c.Asm.LoadMem(asm.RAX, int32(dynPoolHeaderSize+memberIdx*8), dst)
}

func emitDynamicPoolMemberStore(c *CompilationContext, frameOffset int, memberIdx int, src int) {
	if src == asm.RAX {
		c.Asm.MovRR(asm.RBX, src)
		src = asm.RBX
	}
	c.Asm.LoadLocal(frameOffset, asm.RAX)
	c.Asm.StoreMem(asm.RAX, int32(dynPoolHeaderSize+memberIdx*8), src)
}

// --- Linkage pools -------------------------------------------------
//
// A linkage pool is a typed record passed by pointer across a call
// boundary; members are accessed by fixed byte offset through that
// pointer (spec.md §3 "Linkage pool").

// declareLinkagePoolType registers poolType's field layout: integer
// fields default to zero, string fields default to the process-wide
// empty-string address (spec.md §3).
func declareLinkagePoolType(c *CompilationContext, poolType string, fields []symtab.FieldInfoLike) *symtab.PoolMeta {
	meta := &symtab.PoolMeta{
		Kind:         "Linkage",
		FieldOffsets: make(map[string]int),
		FieldDirs:    make(map[string]string),
		FieldTypes:   make(map[string]string),
	}
	off := 0
	for _, f := range fields {
		meta.FieldOffsets[f.Name] = off
		meta.FieldDirs[f.Name] = f.Dir
		meta.FieldTypes[f.Name] = f.Type
		off += 8
	}
	meta.TotalSize = off
	c.linkagePools[poolType] = meta
	return meta
}

// emitLinkagePoolAlloc mmaps a block of meta.TotalSize bytes, defaults
// every member (zero for integer, the interned empty string's address
// for string), and stores the pointer into frameOffset.
func emitLinkagePoolAlloc(c *CompilationContext, frameOffset int, meta *symtab.PoolMeta) {
	a := c.Asm
	size := meta.TotalSize
	if size == 0 {
		size = 8
	}
	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RSI, uint64(size))
	a.MovRI64(asm.RDX, 3)
	a.MovRI64(asm.R10, 0x22)
	a.MovRI64(asm.R8, ^uint64(0))
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9)
	a.Syscall()
	a.StoreLocal(frameOffset, asm.RAX)

	emptyOff := c.emptyString()
	for name, off := range meta.FieldOffsets {
		if meta.FieldTypes[name] == "string" {
			a.LoadLocal(frameOffset, asm.RBX)
			a.LoadDataAddress(asm.RCX, emptyOff)
			a.StoreMem(asm.RBX, int32(off), asm.RCX)
		}
		// integer fields are already zero: the block came straight out
		// of an anonymous mmap, which the kernel zero-fills.
	}
}

// emptyString interns the process-wide empty string once and returns
// its data offset.
func (c *CompilationContext) emptyString() int {
	if !c.emptyStringCached {
		c.emptyStringOff = c.Asm.InternString("")
		c.emptyStringCached = true
	}
	return c.emptyStringOff
}

// emitLinkagePoolMemberLoad/Store dereference the pointer held at
// frameOffset (spec.md §4.7 "Linkage-pool parameters": "Their slot holds
// the pointer itself"). A nil pointer guard on read returns 0, per
// spec.md §4.7.
func emitLinkagePoolMemberLoad(c *CompilationContext, frameOffset int, meta *symtab.PoolMeta, field string, dst int) {
	a := c.Asm
	off, ok := meta.FieldOffsets[field]
	if !ok {
		panic("compiler: unknown linkage pool field " + field)
	}
	a.LoadLocal(frameOffset, asm.RAX)
	a.CmpRI(asm.RAX, 0)
	zeroLabel := a.CreateLabel("lp_null")
	doneLabel := a.CreateLabel("lp_done")
	a.EmitJumpToLabel(zeroLabel, asm.JE)
	a.LoadMem(asm.RAX, int32(off), dst)
	a.EmitJumpToLabel(doneLabel, asm.JMP)
	a.MarkLabel(zeroLabel)
	a.XorRR(dst, dst)
	a.MarkLabel(doneLabel)
}

func emitLinkagePoolMemberStore(c *CompilationContext, frameOffset int, meta *symtab.PoolMeta, field string, src int) {
	a := c.Asm
	off, ok := meta.FieldOffsets[field]
	if !ok {
		panic("compiler: unknown linkage pool field " + field)
	}
	if src == asm.RAX {
		a.MovRR(asm.RBX, src)
		src = asm.RBX
	}
	a.LoadLocal(frameOffset, asm.RAX)
	a.StoreMem(asm.RAX, int32(off), src)
}
