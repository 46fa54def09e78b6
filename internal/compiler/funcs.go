package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// sysvArgRegs is the Sys-V integer/pointer argument order (spec.md §4.7
// "Registration").
var sysvArgRegs = [6]int{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}

// registerFunction is the discovery-pass half of spec.md §4.7: it
// creates the function's label and records its parameter shape, without
// emitting any code yet.
func registerFunction(c *CompilationContext, fn *ast.Node) *symtab.Symbol {
	label := c.Asm.CreateLabel("func_" + fn.Name)
	meta := &symtab.FuncMeta{Label: label}
	for _, p := range fn.Params {
		meta.ParamNames = append(meta.ParamNames, p.Name)
		meta.ParamTypes = append(meta.ParamTypes, p.Type)
	}
	return c.Syms.Declare(&symtab.Symbol{Name: fn.Name, Kind: symtab.KindFunction, Func: meta})
}

// emitFunctionBody is the body-emission pass's half (spec.md §4.7): push
// a function scope, spill parameters into the frame, compile the body,
// and emit the shared return trampoline.
func emitFunctionBody(c *CompilationContext, fn *ast.Node, sym *symtab.Symbol) {
	a := c.Asm
	c.Syms.PushScope("function:" + fn.Name)
	defer c.Syms.PopScope()

	fr := computeFrameSize(fn)
	c.frame = fr
	defer func() { c.frame = nil }()

	prevReturn := c.returnLabel
	returnLabel := a.CreateLabel("func_" + fn.Name + "_ret")
	c.returnLabel = returnLabel
	defer func() { c.returnLabel = prevReturn }()

	c.funcOffsets[sym.Func.Label] = len(a.Code)
	a.MarkLabel(sym.Func.Label)
	emitPrologue(a, fr.size, true)

	declareParams(c, fn, fr)
	compileStmt(c, fn.Body)

	a.MarkLabel(returnLabel)
	emitEpilogue(a, true)
	a.Ret()
}

// declareParams spills the first six integer parameters from their
// Sys-V registers and copies the rest from the caller's stack frame
// (spec.md §4.7 "Prologue"). Linkage-pool-typed parameters are declared
// the same way as any other slot — their slot just happens to hold a
// pointer rather than a value (spec.md §4.7 "Linkage-pool parameters").
func declareParams(c *CompilationContext, fn *ast.Node, fr *frameInfo) {
	a := c.Asm
	for i, p := range fn.Params {
		off := fr.declareLocal(p.Name)
		if i < 6 {
			a.StoreLocal(off, sysvArgRegs[i])
		} else {
			// [rbp + 16 + 8*(i-6)]: a positive displacement, unlike every
			// frame-local slot, so this reads through LoadMem rather than
			// LoadLocal (which always addresses [rbp - offset]).
			a.LoadMem(asm.RBP, int32(16+8*(i-6)), asm.RAX)
			a.StoreLocal(off, asm.RAX)
		}
		sym := c.Syms.Declare(&symtab.Symbol{Name: p.Name, Kind: symtab.KindParameter, Offset: off, Size: 8})
		if p.PoolType != "" {
			if meta, ok := c.linkagePools[p.PoolType]; ok {
				sym.Pool = meta
			}
		}
	}
}

// compileCall lowers FunctionCall (spec.md §4.7, §4.11 argument-staging
// pattern): every argument is evaluated and pushed before any is popped
// into its ABI register, so evaluating argument N+1 can never clobber
// argument N's already-computed value.
func compileCall(c *CompilationContext, n *ast.Node) {
	if fn, ok := builtinTable[n.Name]; ok {
		fn(c, n)
		return
	}
	sym, ok := c.Syms.Lookup("", n.Name)
	if !ok || sym.Kind != symtab.KindFunction {
		panic(newDiag(KindUnresolvedRef, 0, 0, "call to undefined function %q", n.Name))
	}
	a := c.Asm
	args := n.Args

	regCount := len(args)
	if regCount > 6 {
		regCount = 6
	}
	stackArgs := args[regCount:]

	// Stack-passed arguments (7th onward) are pushed last-arg-first so
	// the 7th argument ends up nearest the return address, matching the
	// [RBP + 16 + 8*(i-6)] layout the callee's prologue expects.
	for i := len(stackArgs) - 1; i >= 0; i-- {
		compileExpr(c, stackArgs[i], 0)
		a.PushR(asm.RAX)
	}

	for i := 0; i < regCount; i++ {
		compileExpr(c, args[i], 0)
		a.PushR(asm.RAX)
	}
	for i := regCount - 1; i >= 0; i-- {
		a.PopR(sysvArgRegs[i])
	}

	a.EmitCallToLabel(sym.Func.Label)

	if len(stackArgs) > 0 {
		a.AddRI(asm.RSP, int32(8*len(stackArgs)))
	}
}

// compileMemberLoad/compileMemberStore dispatch MemberAccess (spec.md
// §3) to the fixed-pool, dynamic-pool, or linkage-pool accessor
// depending on what Left resolves to.
func compileMemberLoad(c *CompilationContext, n *ast.Node) {
	sym := resolvePoolSymbol(c, n.Left)
	switch {
	case sym.Pool != nil && sym.Pool.Kind == "Linkage":
		emitLinkagePoolMemberLoad(c, sym.Offset, sym.Pool, n.Name, asm.RAX)
	case sym.Pool != nil && sym.Pool.Kind == "Dynamic":
		memberIdx, ok := dynamicPoolMemberIndex(c, sym, n.Name)
		if !ok {
			panic(newDiag(KindShape, 0, 0, "%q has no member %q", n.Left.Name, n.Name))
		}
		emitDynamicPoolMemberLoad(c, sym.Offset, memberIdx, asm.RAX)
	case sym.IsPoolVar():
		emitFixedPoolLoad(c, sym, asm.RAX)
	default:
		panic(newDiag(KindShape, 0, 0, "%q is not a pool", n.Left.Name))
	}
}

func compileMemberStore(c *CompilationContext, n *ast.Node, src int) {
	sym := resolvePoolSymbol(c, n.Left)
	switch {
	case sym.Pool != nil && sym.Pool.Kind == "Linkage":
		emitLinkagePoolMemberStore(c, sym.Offset, sym.Pool, n.Name, src)
	case sym.Pool != nil && sym.Pool.Kind == "Dynamic":
		memberIdx, ok := dynamicPoolMemberIndex(c, sym, n.Name)
		if !ok {
			panic(newDiag(KindShape, 0, 0, "%q has no member %q", n.Left.Name, n.Name))
		}
		emitDynamicPoolMemberStore(c, sym.Offset, memberIdx, src)
	case sym.IsPoolVar():
		emitFixedPoolStore(c, sym, src)
	default:
		panic(newDiag(KindShape, 0, 0, "%q is not a pool", n.Left.Name))
	}
}

func resolvePoolSymbol(c *CompilationContext, target *ast.Node) *symtab.Symbol {
	if target.Kind != ast.Identifier {
		panic("compiler: member access on a non-identifier base")
	}
	sym, ok := c.Syms.Lookup("", target.Name)
	if !ok {
		panic(newDiag(KindUnresolvedRef, 0, 0, "undefined pool %q", target.Name))
	}
	return sym
}

// dynamicPoolMemberIndex resolves a dynamic pool's field name to its
// member index via the PoolMeta recorded at declaration (spec.md §3
// "Dynamic pool").
func dynamicPoolMemberIndex(c *CompilationContext, sym *symtab.Symbol, field string) (int, bool) {
	if sym.Pool == nil {
		return 0, false
	}
	off, ok := sym.Pool.FieldOffsets[field]
	if !ok {
		return 0, false
	}
	return off / 8, true
}

// compileInlineAllocate lowers Allocate (spec.md §4.3 "Allocate"). A
// compile-time-constant size addresses bytes reserved directly in the
// frame's allocate region by computeFrameSize; size 0 instead mmaps a
// heap block and stores the returned pointer in that region's 8-byte
// slot.
func compileInlineAllocate(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "Allocate used outside a function frame"))
	}
	regionOff, ok := c.frame.allocOffsets[n.Pos]
	if !ok {
		panic(newDiag(KindInternal, 0, 0, "Allocate node missing a frame reservation"))
	}
	size := int(n.IntValue)
	if size <= 0 {
		size = 8 // the pointer slot computeFrameSize reserves for size 0
	}
	// [rbp - absOff] is the reservation's lowest address; its bytes run
	// upward from there and end where the next reservation begins.
	absOff := c.frame.tempOff + redZoneSize + regionOff + size

	if n.IntValue > 0 {
		c.Asm.LeaLocal(absOff, asm.RAX)
		return
	}
	emitRawMmapAlloc(c, absOff, unknownAllocSz)
	c.Asm.LoadLocal(absOff, asm.RAX)
}

// emitRawMmapAlloc mmaps size anonymous bytes and stores the returned
// pointer at frameOffset, for an Allocate whose size isn't a compile-time
// constant (spec.md §4.3 "Allocate", size 0 case).
func emitRawMmapAlloc(c *CompilationContext, frameOffset int, size int) {
	a := c.Asm
	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RSI, uint64(size))
	a.MovRI64(asm.RDX, 3)
	a.MovRI64(asm.R10, 0x22)
	a.MovRI64(asm.R8, ^uint64(0))
	a.XorRR(asm.R9, asm.R9)
	a.MovRI64(asm.RAX, 9)
	a.Syscall()
	a.StoreLocal(frameOffset, asm.RAX)
}
