package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// compileExpr is the expression compiler's entry point (spec.md §4.4).
// Contract: leaves its result in RAX; may clobber RBX and any
// caller-saved register (RCX, RDX, RSI, RDI, R8-R11); must not clobber
// R12-R15 across the expression as a whole.
func compileExpr(c *CompilationContext, n *ast.Node, depth int) {
	switch n.Kind {
	case ast.NumberLit:
		c.Asm.MovRI64(asm.RAX, uint64(n.IntValue))
	case ast.BoolLit:
		v := uint64(0)
		if n.BoolValue {
			v = 1
		}
		c.Asm.MovRI64(asm.RAX, v)
	case ast.StringLit:
		off := c.Asm.AddString(n.StrValue)
		c.Asm.LoadDataAddress(asm.RAX, off)
	case ast.Identifier:
		compileIdentLoad(c, n.Name)
	case ast.UnaryExpr:
		compileExpr(c, n.Left, depth)
		switch n.Op {
		case "-":
			c.Asm.NegR(asm.RAX)
		case "!", "not":
			c.Asm.CmpRI(asm.RAX, 0)
			c.Asm.SetccR(asm.RAX, asm.JE)
		case "~":
			c.Asm.NotR(asm.RAX)
		default:
			panic("compiler: unknown unary operator " + n.Op)
		}
	case ast.BinaryExpr:
		compileBinaryExpr(c, n, depth)
	case ast.MemberAccess:
		compileMemberLoad(c, n)
	case ast.FunctionCall:
		compileCall(c, n)
	case ast.Allocate:
		compileInlineAllocate(c, n)
	case ast.ReceiveMessage:
		emitReceiveMessage(c)
	case ast.Spawn:
		emitSpawn(c, n)
	default:
		panic("compiler: expression compiler cannot lower node kind")
	}
}

func compileIdentLoad(c *CompilationContext, name string) {
	sym, ok := c.Syms.Lookup("", name)
	if !ok {
		panic(newDiag(KindParseSemantic, 0, 0, "undefined name %q", name))
	}
	switch sym.Kind {
	case symtab.KindPool:
		emitFixedPoolLoad(c, sym, asm.RAX)
	case symtab.KindVariable, symtab.KindParameter:
		c.Asm.LoadLocal(sym.Offset, asm.RAX)
	case symtab.KindConstant:
		c.Asm.MovRI64(asm.RAX, uint64(sym.Offset))
	default:
		panic(newDiag(KindShape, 0, 0, "%q is not a value", name))
	}
}

// isShortCircuit reports whether op must be lowered with jumps instead
// of the depth-register scheme, because it does not evaluate both sides
// unconditionally (spec.md §2 "three logical-short-circuit... operators").
func isShortCircuit(op string) bool { return op == "&&" || op == "||" }

func compileBinaryExpr(c *CompilationContext, n *ast.Node, depth int) {
	if isShortCircuit(n.Op) {
		compileShortCircuit(c, n, depth)
		return
	}
	if n.Op == "/" || n.Op == "%" {
		if compileConstDivMod(c, n, depth) {
			return
		}
	}

	evalOperands(c, n, depth, func() {
		applyBinaryOp(c, n.Op, asm.RAX, asm.RBX)
	})
}

// evalOperands implements the depth-indexed register-allocation scheme
// that is spec.md §4.4's design centerpiece: depth 0 stages the right
// operand in R12, depth 1 in R13, depth >= 2 spills to the stack. In
// every case apply is invoked with the left operand's value in RAX and
// the right operand's in RBX.
func evalOperands(c *CompilationContext, n *ast.Node, depth int, apply func()) {
	a := c.Asm
	switch {
	case depth == 0:
		a.PushR(asm.R12)
		compileExpr(c, n.Right, depth+1)
		a.MovRR(asm.R12, asm.RAX)
		compileExpr(c, n.Left, depth+1)
		a.MovRR(asm.RBX, asm.R12)
		a.PopR(asm.R12)
	case depth == 1:
		a.PushR(asm.R13)
		compileExpr(c, n.Right, depth+1)
		a.MovRR(asm.R13, asm.RAX)
		compileExpr(c, n.Left, depth+1)
		a.MovRR(asm.RBX, asm.R13)
		a.PopR(asm.R13)
	default:
		compileExpr(c, n.Right, depth+1)
		a.PushR(asm.RAX)
		compileExpr(c, n.Left, depth+1)
		a.PopR(asm.RBX)
	}
	apply()
}

func applyBinaryOp(c *CompilationContext, op string, dst, src int) {
	a := c.Asm
	switch op {
	case "+":
		a.AddRR(dst, src)
	case "-":
		a.SubRR(dst, src)
	case "*":
		a.ImulRR(dst, src)
	case "&":
		a.AndRR(dst, src)
	case "|":
		a.OrRR(dst, src)
	case "^":
		a.XorRR(dst, src)
	case "<<":
		compileVarShift(a, dst, src, a.ShlRCL)
	case ">>":
		compileVarShift(a, dst, src, a.SarRCL)
	case "==":
		a.CmpRR(dst, src)
		a.SetccR(dst, asm.JE)
	case "!=":
		a.CmpRR(dst, src)
		a.SetccR(dst, asm.JNE)
	case "<":
		a.CmpRR(dst, src)
		a.SetccR(dst, asm.JL)
	case "<=":
		a.CmpRR(dst, src)
		a.SetccR(dst, asm.JLE)
	case ">":
		a.CmpRR(dst, src)
		a.SetccR(dst, asm.JG)
	case ">=":
		a.CmpRR(dst, src)
		a.SetccR(dst, asm.JGE)
	case "/":
		emitGenericDiv(a, dst, src, false)
	case "%":
		emitGenericDiv(a, dst, src, true)
	default:
		panic("compiler: unknown binary operator " + op)
	}
}

// compileVarShift stages src into RCX since the x86-64 variable-shift
// forms read the count from CL only.
func compileVarShift(a *asm.Assembler, dst, src int, emit func(int)) {
	a.PushR(asm.RCX)
	a.MovRR(asm.RCX, src)
	emit(dst)
	a.PopR(asm.RCX)
}

// compileShortCircuit lowers && / || without evaluating the
// unevaluated side, matching ordinary short-circuit semantics (spec.md
// §2 component table).
func compileShortCircuit(c *CompilationContext, n *ast.Node, depth int) {
	a := c.Asm
	shortLabel := a.CreateLabel("sc_short")
	endLabel := a.CreateLabel("sc_end")

	compileExpr(c, n.Left, depth+1)
	a.CmpRI(asm.RAX, 0)
	if n.Op == "&&" {
		a.EmitJumpToLabel(shortLabel, asm.JE) // false && _ -> false
	} else {
		a.EmitJumpToLabel(shortLabel, asm.JNE) // true || _ -> true
	}
	compileExpr(c, n.Right, depth+1)
	a.CmpRI(asm.RAX, 0)
	a.SetccR(asm.RAX, asm.JNE)
	a.EmitJumpToLabel(endLabel, asm.JMP)
	a.MarkLabel(shortLabel)
	if n.Op == "&&" {
		a.MovRI64(asm.RAX, 0)
	} else {
		a.MovRI64(asm.RAX, 1)
	}
	a.MarkLabel(endLabel)
}
