package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
)

// Actor control block layout (spec.md §3 "Actor control block"): a
// fixed 128-byte slot per actor. Slot 0 is reserved for the program's
// own root context so Yield/SendMessage/ReceiveMessage work the same
// way whether called from the top level or from a spawned actor body.
const (
	acbSlotSize    = 128
	acbEntryOff    = 0  // reserved; spawn stages the entry address on the actor's stack instead
	acbRspOff      = 8  // saved stack pointer (the resume point)
	acbStatusOff   = 24 // one of the actorStatus* constants below
	acbMailboxOff  = 120
	actorStackSize = 64 * 1024
)

const (
	actorFree    = 0
	actorReady   = 1
	actorRunning = 2
	actorYielded = 3
)

// countActors walks prog counting Spawn sites, the static upper bound on
// concurrently-live actors this backend sizes the ACB table to (the same
// fixed-capacity philosophy spec.md §3 uses for the pool table).
func countActors(prog *ast.Node) int {
	count := 0
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n == nil {
			return
		}
		if n.Kind == ast.Spawn {
			count++
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
	walk(prog)
	return count
}

// allocateACBTable reserves the table and the scheduler's current-actor
// cell in the data segment. Must run before any Spawn/Yield/SendMessage/
// ReceiveMessage is compiled.
func allocateACBTable(c *CompilationContext, actorCount int) {
	c.actorCount = actorCount
	c.acbTableOffset = c.Asm.ReserveData((actorCount + 1) * acbSlotSize)
	c.currentActorIdxOff = c.Asm.ReserveData(8)
	c.nextActorSlot = 1
}

// emitActorSystemInit marks slot 0 (the program's own root context) as
// the initially-running actor. Emitted once, at the very start of the
// program, before the root body runs.
func emitActorSystemInit(c *CompilationContext) {
	if c.actorCount == 0 {
		return
	}
	a := c.Asm
	a.LoadDataAddress(asm.RAX, c.currentActorIdxOff)
	a.XorRR(asm.RCX, asm.RCX)
	a.StoreMem(asm.RAX, 0, asm.RCX)

	a.LoadDataAddress(asm.RAX, c.acbTableOffset)
	a.MovRI64(asm.RCX, actorRunning)
	a.StoreMem(asm.RAX, acbStatusOff, asm.RCX)

	ensureSchedulerYield(c)
}

// emitSpawn lowers Spawn (spec.md §4.8 "Spawn"): allocate a stack for
// the new actor, stage its entry address as a fake return address at
// the top of that stack, and park the slot in the ready state. Leaves
// the assigned slot index — the actor's handle for SendMessage — in
// RAX, so Spawn also works as an expression.
func emitSpawn(c *CompilationContext, n *ast.Node) {
	sym, ok := c.Syms.Lookup("", n.Name)
	if !ok || sym.Func == nil {
		panic(newDiag(KindUnresolvedRef, 0, 0, "spawn of undefined actor function %q", n.Name))
	}
	idx := c.nextActorSlot
	c.nextActorSlot++
	a := c.Asm

	// mmap(NULL, actorStackSize, PROT_READ|PROT_WRITE, MAP_PRIVATE|MAP_ANONYMOUS, -1, 0)
	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RSI, uint64(actorStackSize))
	a.MovRI64(asm.RDX, 3)
	a.MovRI64(asm.R10, 0x22)
	a.MovRI64(asm.R8, ^uint64(0))
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9)
	a.Syscall()

	a.AddRI(asm.RAX, int32(actorStackSize)) // stack top
	a.SubRI(asm.RAX, 8)                     // reserve the fake-return-address slot
	a.MovRR(asm.RBX, asm.RAX)               // rbx = fake-retaddr slot address

	a.LoadFuncAddress(asm.RCX, sym.Func.Label)
	a.StoreMem(asm.RBX, 0, asm.RCX) // the entry address IS the fake return address

	a.LoadDataAddress(asm.RDX, c.acbTableOffset+idx*acbSlotSize)
	a.StoreMem(asm.RDX, acbRspOff, asm.RBX)
	a.MovRI64(asm.RCX, actorReady)
	a.StoreMem(asm.RDX, acbStatusOff, asm.RCX)
	a.XorRR(asm.RCX, asm.RCX)
	a.StoreMem(asm.RDX, acbMailboxOff, asm.RCX)

	a.MovRI64(asm.RAX, uint64(idx))
}

// emitYield lowers Yield (spec.md §4.8 "Yield") as a call into the
// shared scheduler subroutine.
func emitYield(c *CompilationContext) {
	label := ensureSchedulerYield(c)
	c.Asm.EmitCallToLabel(label)
}

// ensureSchedulerYield emits the round-robin context-switch subroutine
// exactly once, guarded by a jump around its body so it never runs as
// straight-line code at the point it happens to be emitted.
func ensureSchedulerYield(c *CompilationContext) string {
	if c.schedulerYieldLabel != "" {
		return c.schedulerYieldLabel
	}
	a := c.Asm
	label := a.CreateLabel("scheduler_yield")
	skip := a.CreateLabel("scheduler_yield_skip")
	a.EmitJumpToLabel(skip, asm.JMP)

	c.funcOffsets[label] = len(a.Code)
	a.MarkLabel(label)
	emitSchedulerYieldBody(c)

	a.MarkLabel(skip)
	c.schedulerYieldLabel = label
	return label
}

// emitSchedulerYieldBody implements the context switch itself (spec.md
// §3 "Actor control block", §4.8 "cooperative round-robin"): every
// switch happens inside a `call`, so on entry RSP already points at the
// return address the caller's `call` pushed. Saving that RSP and later
// restoring it followed by a plain `ret` resumes exactly where the
// suspended actor left off — the same trick Spawn uses to fake a first
// entry. Register use: RCX is the scan index, R11 the index this call
// started from (the fallback target if nothing else is runnable), RBX
// the current candidate slot's address.
func emitSchedulerYieldBody(c *CompilationContext) {
	a := c.Asm

	a.LoadDataAddress(asm.RAX, c.currentActorIdxOff)
	a.LoadMem(asm.RAX, 0, asm.RCX) // rcx = current idx
	a.MovRR(asm.R11, asm.RCX)

	// slot = table + rcx*128; save this actor's resume point and mark it
	// runnable again.
	a.LoadDataAddress(asm.RBX, c.acbTableOffset)
	a.MovRR(asm.RDX, asm.RCX)
	a.ShlRI(asm.RDX, 7)
	a.AddRR(asm.RBX, asm.RDX)
	a.StoreMem(asm.RBX, acbRspOff, asm.RSP)
	a.MovRI64(asm.RDX, actorYielded)
	a.StoreMem(asm.RBX, acbStatusOff, asm.RDX)

	scanLoop := a.CreateLabel("sched_scan")
	wrapOk := a.CreateLabel("sched_wrap_ok")
	found := a.CreateLabel("sched_found")

	a.MarkLabel(scanLoop)
	a.AddRI(asm.RCX, 1)
	a.CmpRI(asm.RCX, int32(c.actorCount+1))
	a.EmitJumpToLabel(wrapOk, asm.JL)
	a.XorRR(asm.RCX, asm.RCX)
	a.MarkLabel(wrapOk)

	a.LoadDataAddress(asm.RBX, c.acbTableOffset)
	a.MovRR(asm.RDX, asm.RCX)
	a.ShlRI(asm.RDX, 7)
	a.AddRR(asm.RBX, asm.RDX)
	a.LoadMem(asm.RBX, acbStatusOff, asm.RAX)
	a.CmpRI(asm.RAX, actorReady)
	a.EmitJumpToLabel(found, asm.JE)
	a.CmpRI(asm.RAX, actorYielded)
	a.EmitJumpToLabel(found, asm.JE)
	a.CmpRR(asm.RCX, asm.R11)
	a.EmitJumpToLabel(found, asm.JE) // full circle: no one else runnable, resume self
	a.EmitJumpToLabel(scanLoop, asm.JMP)

	a.MarkLabel(found)
	a.LoadDataAddress(asm.RAX, c.currentActorIdxOff)
	a.StoreMem(asm.RAX, 0, asm.RCX)
	a.MovRI64(asm.RDX, actorRunning)
	a.StoreMem(asm.RBX, acbStatusOff, asm.RDX)
	a.LoadMem(asm.RBX, acbRspOff, asm.RSP)
	a.Ret()
}

// emitSendMessage lowers SendMessage (spec.md §4.8 "SendMessage"):
// writes Value into the target actor's single-word mailbox.
func emitSendMessage(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	compileExpr(c, n.Value, 0)
	a.PushR(asm.RAX)          // stash message; compileExpr may clobber R11
	compileExpr(c, n.Left, 0) // target handle (slot index)
	a.PopR(asm.R11)

	a.MovRR(asm.RDX, asm.RAX)
	a.ShlRI(asm.RDX, 7)
	a.LoadDataAddress(asm.RBX, c.acbTableOffset)
	a.AddRR(asm.RBX, asm.RDX)
	a.StoreMem(asm.RBX, acbMailboxOff, asm.R11)
}

// emitReceiveMessage lowers ReceiveMessage (spec.md §4.8
// "ReceiveMessage"): reads the calling actor's own mailbox and clears
// it, leaving the message value in RAX.
func emitReceiveMessage(c *CompilationContext) {
	a := c.Asm
	a.LoadDataAddress(asm.RAX, c.currentActorIdxOff)
	a.LoadMem(asm.RAX, 0, asm.RCX)
	a.MovRR(asm.RDX, asm.RCX)
	a.ShlRI(asm.RDX, 7)
	a.LoadDataAddress(asm.RBX, c.acbTableOffset)
	a.AddRR(asm.RBX, asm.RDX)

	a.LoadMem(asm.RBX, acbMailboxOff, asm.RAX)
	a.XorRR(asm.RCX, asm.RCX)
	a.StoreMem(asm.RBX, acbMailboxOff, asm.RCX)
}
