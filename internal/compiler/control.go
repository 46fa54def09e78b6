package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// compileStmt is the statement-level dispatcher (spec.md §4.6 "Control
// flow"); compileExpr handles the value-producing node kinds.
func compileStmt(c *CompilationContext, n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.Program:
		for _, d := range n.Declarations {
			compileStmt(c, d)
		}
	case ast.Assignment:
		compileAssignment(c, n)
	case ast.If:
		compileIf(c, n)
	case ast.While:
		compileWhile(c, n)
	case ast.Break:
		compileBreak(c)
	case ast.Continue:
		compileContinue(c)
	case ast.Branch:
		compileBranch(c, n)
	case ast.Try:
		compileTry(c, n)
	case ast.ReturnStmt:
		compileReturn(c, n)
	case ast.Spawn:
		emitSpawn(c, n)
	case ast.Yield:
		emitYield(c)
	case ast.SendMessage:
		emitSendMessage(c, n)
	default:
		// Every other statement kind is expression-shaped: evaluate for
		// effect and discard the result in RAX.
		compileExpr(c, n, 0)
	}
}

// compileAssignment lowers Assignment (spec.md §4.6). PoolInit values
// have no ordinary expression form — they address the target's own slot
// directly rather than leaving a value in RAX — so they are special-cased
// here ahead of the general compileExpr path.
func compileAssignment(c *CompilationContext, n *ast.Node) {
	if n.Value != nil && n.Value.Kind == ast.PoolInit {
		compilePoolInit(c, n)
		return
	}
	if n.Value != nil && n.Value.Kind == ast.FunctionCall {
		if fn, ok := builtinAssignTable[n.Value.Name]; ok {
			fn(c, n)
			return
		}
	}
	compileExpr(c, n.Value, 0)
	compileStore(c, n.Target, asm.RAX)
}

// storeToSymbol writes src into sym's storage, mirroring
// compileIdentLoad's read-side dispatch (spec.md §4.6 "Assignment").
func storeToSymbol(c *CompilationContext, sym *symtab.Symbol, src int) {
	switch sym.Kind {
	case symtab.KindPool:
		emitFixedPoolStore(c, sym, src)
	case symtab.KindVariable, symtab.KindParameter:
		c.Asm.StoreLocal(sym.Offset, src)
	default:
		panic(newDiag(KindShape, 0, 0, "%q is not assignable", sym.Name))
	}
}

// compileStore addresses the same target shapes compileIdentLoad reads:
// a plain local/pool variable, a dynamic-pool member, or a linkage-pool
// member (spec.md §4.6 "Assignment").
func compileStore(c *CompilationContext, target *ast.Node, src int) {
	switch target.Kind {
	case ast.Identifier:
		// A name first seen here gets its frame slot and a symbol via the
		// same JIT-insert path the assignment builtins use.
		storeToSymbol(c, assignTargetSymbol(c, target), src)
	case ast.MemberAccess:
		compileMemberStore(c, target, src)
	default:
		panic("compiler: assignment target is not an lvalue")
	}
}

// compileIf lowers If (spec.md §4.6): evaluate Cond, jump to else/end on
// false, fall through to Then otherwise.
func compileIf(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	compileExpr(c, n.Cond, 0)
	a.CmpRI(asm.RAX, 0)

	if n.Else == nil {
		endLabel := a.CreateLabel("if_end")
		a.EmitJumpToLabel(endLabel, asm.JE)
		compileStmt(c, n.Then)
		a.MarkLabel(endLabel)
		return
	}
	elseLabel := a.CreateLabel("if_else")
	endLabel := a.CreateLabel("if_end")
	a.EmitJumpToLabel(elseLabel, asm.JE)
	compileStmt(c, n.Then)
	a.EmitJumpToLabel(endLabel, asm.JMP)
	a.MarkLabel(elseLabel)
	compileStmt(c, n.Else)
	a.MarkLabel(endLabel)
}

// compileWhile lowers While as a test-at-top loop and pushes its
// start/end labels for Break/Continue to resolve against (spec.md §4.6
// "Break/continue").
func compileWhile(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	startLabel := a.CreateLabel("while_start")
	endLabel := a.CreateLabel("while_end")

	a.MarkLabel(startLabel)
	compileExpr(c, n.Cond, 0)
	a.CmpRI(asm.RAX, 0)
	a.EmitJumpToLabel(endLabel, asm.JE)

	c.pushLoop(startLabel, endLabel)
	compileStmt(c, n.Body)
	c.popLoop()

	a.EmitJumpToLabel(startLabel, asm.JMP)
	a.MarkLabel(endLabel)
}

func compileBreak(c *CompilationContext) {
	loop, ok := c.innermostLoop()
	if !ok {
		panic(newDiag(KindShape, 0, 0, "break outside a loop"))
	}
	c.Asm.EmitJumpToLabel(loop.end, asm.JMP)
}

func compileContinue(c *CompilationContext) {
	loop, ok := c.innermostLoop()
	if !ok {
		panic(newDiag(KindShape, 0, 0, "continue outside a loop"))
	}
	c.Asm.EmitJumpToLabel(loop.start, asm.JMP)
}

// branchLinearThreshold is the case-count cutoff spec.md §4.6 names for
// switching Branch's lowering from a linear CMP chain to a binary-search
// dispatch over sorted constant case values.
const branchLinearThreshold = 8

// branchArm is one resolved (constant value -> case label) pairing
// compileBranch builds before choosing its dispatch strategy.
type branchArm struct {
	val   int64
	label string
	body  *ast.Node
}

// compileBranch lowers Branch (spec.md §4.6 "Branch"): evaluate Value
// once into R11, then dispatch either by a linear compare chain (few
// cases) or a binary search over the sorted case values (many cases),
// falling through to Default when nothing matches.
func compileBranch(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	compileExpr(c, n.Value, 0)
	a.MovRR(asm.R11, asm.RAX)

	endLabel := a.CreateLabel("branch_end")
	defaultLabel := a.CreateLabel("branch_default")

	arms := make([]branchArm, 0, len(n.Cases))
	for _, caseNode := range n.Cases {
		lbl := a.CreateLabel("branch_case")
		for _, cv := range caseNode.CaseValues {
			arms = append(arms, branchArm{val: cv.IntValue, label: lbl, body: caseNode.Body})
		}
	}

	if len(arms) < branchLinearThreshold {
		for _, ar := range arms {
			a.CmpRI(asm.R11, int32(ar.val))
			a.EmitJumpToLabel(ar.label, asm.JE)
		}
	} else {
		sortArmsByValue(arms)
		emitBranchBinarySearch(a, arms, defaultLabel)
	}
	a.EmitJumpToLabel(defaultLabel, asm.JMP)

	seen := map[string]bool{}
	for _, ar := range arms {
		if seen[ar.label] {
			continue
		}
		seen[ar.label] = true
		a.MarkLabel(ar.label)
		compileStmt(c, ar.body)
		a.EmitJumpToLabel(endLabel, asm.JMP)
	}

	a.MarkLabel(defaultLabel)
	if n.Default != nil {
		compileStmt(c, n.Default)
	}
	a.MarkLabel(endLabel)
}

func sortArmsByValue(arms []branchArm) {
	for i := 1; i < len(arms); i++ {
		for j := i; j > 0 && arms[j-1].val > arms[j].val; j-- {
			arms[j-1], arms[j] = arms[j], arms[j-1]
		}
	}
}

// emitBranchBinarySearch narrows arms (already sorted ascending by
// value) to a single candidate via repeated bisection, then checks
// equality once at the leaf; any miss along the way falls to missLabel.
func emitBranchBinarySearch(a *asm.Assembler, arms []branchArm, missLabel string) {
	var search func(lo, hi int)
	search = func(lo, hi int) {
		if lo > hi {
			a.EmitJumpToLabel(missLabel, asm.JMP)
			return
		}
		if lo == hi {
			a.CmpRI(asm.R11, int32(arms[lo].val))
			a.EmitJumpToLabel(arms[lo].label, asm.JE)
			a.EmitJumpToLabel(missLabel, asm.JMP)
			return
		}
		mid := (lo + hi) / 2
		a.CmpRI(asm.R11, int32(arms[mid].val))
		eqLabel := a.CreateLabel("branch_bs_eq")
		gtLabel := a.CreateLabel("branch_bs_gt")
		a.EmitJumpToLabel(eqLabel, asm.JE)
		a.EmitJumpToLabel(gtLabel, asm.JG)
		search(lo, mid-1)
		a.MarkLabel(gtLabel)
		search(mid+1, hi)
		a.MarkLabel(eqLabel)
		a.EmitJumpToLabel(arms[mid].label, asm.JMP)
	}
	search(0, len(arms)-1)
}

// compileTry lowers Try/catch/finally (spec.md §4.6 "Try-finally"). The
// backend has no unwinding machinery, so catch clauses emit no code at
// all and Finally always runs inline after Body, matching the "no
// exceptions are ever thrown at runtime by generated code" note in
// spec.md §9.
func compileTry(c *CompilationContext, n *ast.Node) {
	compileStmt(c, n.Body)
	if n.Finally != nil {
		compileStmt(c, n.Finally)
	}
}

func compileReturn(c *CompilationContext, n *ast.Node) {
	if n.Value != nil {
		compileExpr(c, n.Value, 0)
	}
	if lbl, ok := c.currentReturnLabel(); ok {
		c.Asm.EmitJumpToLabel(lbl, asm.JMP)
		return
	}
	// Top level: there is no return address to RET to, so end the
	// program with exit(0), as the end of the top-level statements does.
	emitEpilogue(c.Asm, false)
	c.Asm.XorRR(asm.RDI, asm.RDI)
	c.Asm.MovRI64(asm.RAX, 60) // SYS_exit
	c.Asm.Syscall()
}
