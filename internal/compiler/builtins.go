package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// builtinTable holds every builtin that behaves like an ordinary
// expression — it leaves its result in RAX and is reachable from any
// position a FunctionCall can appear in. compileCall checks this table
// before falling back to a user-defined-function lookup, so a builtin
// name always shadows a same-named user function.
var builtinTable = map[string]func(*CompilationContext, *ast.Node){
	"StringLength":  compileStringLength,
	"StringConcat":  compileStringConcat,
	"MemCompare":    compileMemCompare,
	"MemChr":        compileMemChr,
	"PrintNumber":   compilePrintNumber,
	"PrintString":   compilePrintString,
	"FileOpen":      compileFileOpen,
	"FileRead":      compileFileRead,
	"FileWrite":     compileFileWrite,
	"FileClose":     compileFileClose,
	"SocketCreate":  compileSocketCreate,
	"SocketBind":    compileSocketBind,
	"SocketListen":  compileSocketListen,
	"SocketAccept":  compileSocketAccept,
	"SocketRead":    compileFileRead,
	"SocketWrite":   compileFileWrite,
	"SocketClose":   compileFileClose,
	"HashSet":       compileHashSetCall,
	"HashGet":       compileHashGetCall,
}

// builtinAssignTable holds the builtins that need their *target's* frame
// slot rather than a value in RAX — HashCreate allocates the table
// directly into the assignment's target, the same way PoolInit does.
// compileAssignment checks this table (keyed by the call's name) ahead
// of the ordinary compileExpr-then-store path.
var builtinAssignTable = map[string]func(*CompilationContext, *ast.Node){
	"HashCreate": compileHashCreate,
}

// defaultHashTableSize is the expected-entry count a bare `HashCreate()`
// (no size argument, or a non-constant one) sizes its table for.
const defaultHashTableSize = 16

// defaultDynamicPoolCapacity is the capacity a `PoolInit` of a Dynamic
// pool uses when the source gives 0 (spec.md §3 "Dynamic pool" — the AST
// comment on ast.PoolInit: "IntValue (Dynamic pool capacity, 0 =
// default)").
const defaultDynamicPoolCapacity = 16

// assignTargetSymbol resolves (declaring via the frame's JIT-insert path
// if necessary) the plain local Assignment.Target refers to. The two
// builtins whose result is written directly into the target's slot use
// it, and so does compileStore for an ordinary assignment.
func assignTargetSymbol(c *CompilationContext, target *ast.Node) *symtab.Symbol {
	if target.Kind != ast.Identifier {
		panic(newDiag(KindShape, 0, 0, "assignment target is not a plain name"))
	}
	if sym, ok := c.Syms.Lookup("", target.Name); ok {
		return sym
	}
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "undefined name %q outside a function frame", target.Name))
	}
	off := c.frame.declareLocal(target.Name)
	return c.Syms.JITDeclare(&symtab.Symbol{Name: target.Name, Kind: symtab.KindVariable, Offset: off, Size: 8})
}

// identFrameOffset resolves an Identifier argument to its frame offset,
// for builtins like HashSet/HashGet that address a table in place rather
// than loading its pointer into a register first.
func identFrameOffset(c *CompilationContext, n *ast.Node) int {
	if n.Kind != ast.Identifier {
		panic(newDiag(KindShape, 0, 0, "expected a plain name here"))
	}
	sym, ok := c.Syms.Lookup("", n.Name)
	if !ok {
		panic(newDiag(KindUnresolvedRef, 0, 0, "undefined name %q", n.Name))
	}
	return sym.Offset
}

// compilePoolInit lowers an Assignment whose Value is a PoolInit node
// (spec.md §3 "Pool variable" initialization): dispatches to the
// Linkage- or Dynamic-pool allocator depending on how the named pool
// type was declared, and records the pool metadata on the target symbol
// so later MemberAccess nodes resolve it the same way a declared
// parameter would (funcs.go's resolvePoolSymbol).
func compilePoolInit(c *CompilationContext, assign *ast.Node) {
	v := assign.Value
	meta, ok := c.linkagePools[v.Name]
	if !ok {
		panic(newDiag(KindUnresolvedRef, 0, 0, "undefined pool type %q", v.Name))
	}
	sym := assignTargetSymbol(c, assign.Target)
	sym.Pool = meta

	switch meta.Kind {
	case "Dynamic":
		capacity := int(v.IntValue)
		if capacity <= 0 {
			capacity = defaultDynamicPoolCapacity
		}
		emitDynamicPoolInit(c, sym.Offset, len(meta.FieldOffsets), capacity)
	default: // "Linkage"
		emitLinkagePoolAlloc(c, sym.Offset, meta)
	}
}

// compileHashCreate lowers `table = HashCreate(expectedSize)` (spec.md
// §4.9): expectedSize must be a compile-time constant since it sizes the
// mmap'd region; a missing or non-constant argument falls back to
// defaultHashTableSize.
func compileHashCreate(c *CompilationContext, assign *ast.Node) {
	v := assign.Value
	expected := defaultHashTableSize
	if len(v.Args) > 0 && v.Args[0].Kind == ast.NumberLit {
		expected = int(v.Args[0].IntValue)
	}
	sym := assignTargetSymbol(c, assign.Target)
	emitHashTableInit(c, sym.Offset, expected)
}

// compileHashSetCall lowers `HashSet(table, key, value)`.
func compileHashSetCall(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "HashSet used outside a function frame"))
	}
	tableOff := identFrameOffset(c, n.Args[0])
	a := c.Asm

	compileExpr(c, n.Args[1], 0)
	a.PushR(asm.RAX) // key
	compileExpr(c, n.Args[2], 0)
	a.MovRR(asm.RBX, asm.RAX) // value
	a.PopR(asm.RCX)           // key

	emitHashSet(c, tableOff, asm.RCX, asm.RBX)
}

// compileHashGetCall lowers `HashGet(table, key)`, leaving the matching
// value (or 0 on a miss) in RAX.
func compileHashGetCall(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "HashGet used outside a function frame"))
	}
	tableOff := identFrameOffset(c, n.Args[0])
	compileExpr(c, n.Args[1], 0)
	emitHashGet(c, tableOff, asm.RAX, asm.RAX)
}

// compilePrintNumber lowers `PrintNumber(n)` (spec.md §8 testable
// property: "PrintNumber(Add(2, Multiply(3, 4))) -> stdout 14\n"):
// converts n to decimal ASCII, right to left, into the frame's
// print-scratch buffer, then writes it plus a trailing newline.
func compilePrintNumber(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "PrintNumber used outside a function frame"))
	}
	a := c.Asm
	base := c.frame.scratchBufOff

	compileExpr(c, n.Args[0], 0)
	a.MovRR(asm.RBX, asm.RAX)

	a.LeaLocal(base-scratchBufSize+1, asm.R9) // fixed end-of-buffer pointer (highest byte)
	a.MovRR(asm.R10, asm.R9)                  // write cursor
	a.MovRI64(asm.RCX, '\n')
	a.StoreByteMem(asm.R10, 0, asm.RCX)
	a.SubRI(asm.R10, 1)

	a.XorRR(asm.R8, asm.R8) // negative flag
	a.CmpRI(asm.RBX, 0)
	notNeg := a.CreateLabel("printnum_notneg")
	a.EmitJumpToLabel(notNeg, asm.JGE)
	a.MovRI64(asm.R8, 1)
	a.NegR(asm.RBX)
	a.MarkLabel(notNeg)

	zeroCase := a.CreateLabel("printnum_zero")
	digitsDone := a.CreateLabel("printnum_digits_done")
	a.CmpRI(asm.RBX, 0)
	a.EmitJumpToLabel(zeroCase, asm.JE)

	loop := a.CreateLabel("printnum_loop")
	a.MarkLabel(loop)
	a.CmpRI(asm.RBX, 0)
	a.EmitJumpToLabel(digitsDone, asm.JE)
	a.MovRR(asm.RAX, asm.RBX)
	a.Cqo()
	a.MovRI64(asm.RCX, 10)
	a.IdivR(asm.RCX)
	a.AddRI(asm.RDX, '0')
	a.StoreByteMem(asm.R10, 0, asm.RDX)
	a.SubRI(asm.R10, 1)
	a.MovRR(asm.RBX, asm.RAX)
	a.EmitJumpToLabel(loop, asm.JMP)

	a.MarkLabel(zeroCase)
	a.MovRI64(asm.RDX, '0')
	a.StoreByteMem(asm.R10, 0, asm.RDX)
	a.SubRI(asm.R10, 1)

	a.MarkLabel(digitsDone)
	negWritten := a.CreateLabel("printnum_neg_written")
	a.CmpRI(asm.R8, 0)
	a.EmitJumpToLabel(negWritten, asm.JE)
	a.MovRI64(asm.RDX, '-')
	a.StoreByteMem(asm.R10, 0, asm.RDX)
	a.SubRI(asm.R10, 1)
	a.MarkLabel(negWritten)

	a.MovRR(asm.RSI, asm.R10)
	a.AddRI(asm.RSI, 1)
	a.MovRR(asm.RDX, asm.R9)
	a.SubRR(asm.RDX, asm.R10)
	a.MovRI64(asm.RDI, 1)
	a.MovRI64(asm.RAX, 1)
	a.Syscall()
}

// compilePrintString lowers `PrintString(s)`: writes s's bytes followed
// by a newline. s's length comes from emitStrlen rather than a stored
// length, matching every other string primitive in this backend (spec.md
// §4.10 "strings are pointers to null-terminated byte sequences").
func compilePrintString(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "PrintString used outside a function frame"))
	}
	a := c.Asm
	compileExpr(c, n.Args[0], 0)
	emitStrlen(a, asm.RAX, asm.RDX) // not RCX: emitStrlen clobbers it

	a.MovRR(asm.RSI, asm.RAX)
	a.MovRI64(asm.RDI, 1)
	a.MovRI64(asm.RAX, 1)
	a.Syscall()

	nlOff := c.frame.scratchBufOff
	a.MovRI64(asm.RCX, '\n')
	a.StoreLocal(nlOff, asm.RCX)
	a.LeaLocal(nlOff, asm.RSI)
	a.MovRI64(asm.RDX, 1)
	a.MovRI64(asm.RDI, 1)
	a.MovRI64(asm.RAX, 1)
	a.Syscall()
}
