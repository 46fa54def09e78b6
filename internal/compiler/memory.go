package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
)

// frameInfo is the memory manager's per-function state (spec.md §3
// "Frame", §4.3 "Memory manager").
type frameInfo struct {
	locals map[string]int // name -> [rbp - offset]
	next   int             // offset of the most recently reserved slot (multiple of 16)

	scratchBufOff int // 64-byte print-scratch buffer
	tempOff       int // 128-byte temp space
	// red zone is implicit padding at the bottom of the frame; it needs
	// no addressable offset of its own.

	allocateBytes int         // sum of every Allocate() node's frame reservation
	allocOffsets  map[int]int // AST node Pos -> offset within the allocate region
	size          int         // final, 16-byte-aligned SUB RSP operand
}

const (
	bytesPerLocal  = 16
	scratchBufSize = 64
	tempSpaceSize  = 128
	redZoneSize    = 128
	unknownAllocSz = 1024
)

// computeFrameSize lays out a function frame (spec.md §4.3): one 16-byte
// slot per parameter and per distinct assignment target, then the
// 64-byte print-scratch buffer, the 128-byte temp space, the 128-byte
// red zone, and every Allocate reservation (its constant size, or 8
// bytes for a runtime-sized one), rounded up to 16. The actor control
// blocks live in the data segment, not in any frame.
func computeFrameSize(fn *ast.Node) *frameInfo {
	fr := &frameInfo{locals: make(map[string]int), allocOffsets: make(map[int]int)}

	// Parameters take their slots before the scratch buffer is placed,
	// so declareParams finds them here instead of reserving new slots
	// that would land inside the buffer.
	for _, p := range fn.Params {
		fr.next += bytesPerLocal
		fr.locals[p.Name] = fr.next
	}

	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case ast.Assignment:
			if n.Target != nil && n.Target.Kind == ast.Identifier {
				if _, seen := fr.locals[n.Target.Name]; !seen {
					fr.next += bytesPerLocal
					fr.locals[n.Target.Name] = fr.next
				}
			}
			walk(n.Value)
		case ast.Allocate:
			// A fixed-size Allocate reserves its bytes directly in the
			// frame; a dynamic one (size 0, backed by mmap at runtime)
			// only needs 8 bytes here to hold the returned pointer.
			size := int(n.IntValue)
			if size <= 0 {
				size = 8
			}
			fr.allocOffsets[n.Pos] = fr.allocateBytes
			fr.allocateBytes += size
		}
		walk(n.Left)
		walk(n.Right)
		walk(n.Cond)
		walk(n.Then)
		walk(n.Else)
		walk(n.Body)
		walk(n.Value)
		walk(n.Target)
		walk(n.Default)
		walk(n.Finally)
		for _, c := range n.Declarations {
			walk(c)
		}
		for _, c := range n.Args {
			walk(c)
		}
		for _, c := range n.Cases {
			walk(c)
		}
		for _, c := range n.CaseValues {
			walk(c)
		}
		for _, c := range n.Catches {
			walk(c.Body)
		}
	}
	walk(fn.Body)

	fr.scratchBufOff = fr.next + scratchBufSize
	fr.tempOff = fr.scratchBufOff + tempSpaceSize
	raw := fr.tempOff + redZoneSize + fr.allocateBytes
	fr.size = alignUp16(raw)
	return fr
}

func alignUp16(n int) int { return (n + 15) &^ 15 }

// declareLocal reserves the next 16-byte slot for a name the frame-size
// pass didn't already see (the discovery-pass JIT-insert safety net,
// spec.md §3 "Scope").
func (fr *frameInfo) declareLocal(name string) int {
	if off, ok := fr.locals[name]; ok {
		return off
	}
	fr.next += bytesPerLocal
	fr.locals[name] = fr.next
	return fr.next
}

// emitPrologue emits `push rbp; mov rbp, rsp; sub rsp, size` (spec.md
// §4.3 step 5) plus the callee-saved push set spec.md §4.7 specifies for
// user-defined functions. Leaf "top-level" emission (the program entry
// sequence) calls emitPrologue with saveCallee=false since there is no
// caller frame to protect.
func emitPrologue(a *asm.Assembler, size int, saveCallee bool) {
	a.PushR(asm.RBP)
	a.MovRR(asm.RBP, asm.RSP)
	if size > 0 {
		a.SubRI(asm.RSP, int32(size))
	}
	if saveCallee {
		a.PushR(asm.RBX)
		a.PushR(asm.R12)
		a.PushR(asm.R13)
		a.PushR(asm.R14)
	}
}

// emitEpilogue undoes emitPrologue, popping the callee-saved set in
// reverse before restoring rsp/rbp (spec.md §4.3, §4.7 "Return").
func emitEpilogue(a *asm.Assembler, saveCallee bool) {
	if saveCallee {
		a.PopR(asm.R14)
		a.PopR(asm.R13)
		a.PopR(asm.R12)
		a.PopR(asm.RBX)
	}
	a.MovRR(asm.RSP, asm.RBP)
	a.PopR(asm.RBP)
}

// emitPoolTableAlloc emits the program-start sequence that mmaps the
// fixed-pool table and parks its base in R15 (spec.md §4.3 "Pool-table
// allocation"): mmap(NULL, ceil_page(n*8), PROT_READ|PROT_WRITE,
// MAP_PRIVATE|MAP_ANONYMOUS, -1, 0); on failure write a fixed message to
// fd 2 and exit(1); on success REP STOSQ-zero the region and move the
// base into R15, which is never saved across calls for the rest of the
// program (spec.md §9 "Shared R15 across calls").
func emitPoolTableAlloc(c *CompilationContext, numPools int) {
	a := c.Asm
	size := alignUpPage(numPools * 8)
	if size == 0 {
		size = pageSize4k
	}

	// mmap(addr=0, length=size, prot=3, flags=0x22, fd=-1, offset=0)
	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RSI, uint64(size))
	a.MovRI64(asm.RDX, 3)  // PROT_READ|PROT_WRITE
	a.MovRI64(asm.R10, 0x22) // MAP_PRIVATE|MAP_ANONYMOUS
	a.MovRI64(asm.R8, ^uint64(0)) // fd = -1
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9) // SYS_mmap
	a.Syscall()

	a.MovRR(asm.R15, asm.RAX)
	a.CmpRI(asm.R15, 0)
	failLabel := a.CreateLabel("pool_mmap_fail")
	okLabel := a.CreateLabel("pool_mmap_ok")
	a.EmitJumpToLabel(failLabel, asm.JL)
	a.EmitJumpToLabel(okLabel, asm.JMP)

	a.MarkLabel(failLabel)
	msg := "ailang: pool table allocation failed\n"
	msgOff := c.Asm.AddString(msg)
	a.MovRI64(asm.RDI, 2) // fd 2
	a.LoadDataAddress(asm.RSI, msgOff)
	a.MovRI64(asm.RDX, uint64(len(msg)))
	a.MovRI64(asm.RAX, 1) // SYS_write
	a.Syscall()
	a.MovRI64(asm.RDI, 1)
	a.MovRI64(asm.RAX, 60) // SYS_exit
	a.Syscall()

	a.MarkLabel(okLabel)

	// REP STOSQ: rdi=base, rcx=qword count, rax=0
	a.MovRR(asm.RDI, asm.R15)
	a.MovRI64(asm.RCX, uint64(size/8))
	a.XorRR(asm.RAX, asm.RAX)
	a.EmitRaw(0xF3, 0x48, 0xAB) // rep stosq
}

const pageSize4k = 4096

func alignUpPage(n int) int { return (n + pageSize4k - 1) &^ (pageSize4k - 1) }

// emitMmapAnonReg emits `mmap(NULL, sizeReg, PROT_READ|PROT_WRITE,
// MAP_PRIVATE|MAP_ANONYMOUS, -1, 0)` with the requested size already
// loaded into sizeReg, leaving the returned pointer in RAX. StringConcat
// uses it; the pool, dynamic-pool and hash-table allocators emit the
// same call inline with a compile-time-constant size instead.
func emitMmapAnonReg(a *asm.Assembler, sizeReg int) {
	if sizeReg != asm.RSI {
		a.MovRR(asm.RSI, sizeReg)
	}
	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RDX, 3)
	a.MovRI64(asm.R10, 0x22)
	a.MovRI64(asm.R8, ^uint64(0))
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9)
	a.Syscall()
}
