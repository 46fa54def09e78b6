package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
)

// magicTable is the fixed set of divisors spec.md §4.5 names for the
// magic-multiply tier, keyed by absolute value.
var magicTable = map[int64]bool{3: true, 5: true, 6: true, 7: true, 9: true, 10: true, 100: true, 1000: true, 10000: true}

func isPowerOfTwo(v int64) bool { return v > 0 && v&(v-1) == 0 }

func log2(v int64) uint {
	n := uint(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// compileConstDivMod lowers `left / d` / `left % d` for a compile-time
// constant d, choosing among the four tiers spec.md §4.5 orders:
// identity/negate, power-of-two shift, magic-multiply, generic IDIV. It
// returns false (doing nothing) when the right operand is not a
// constant, so the caller falls back to the runtime evalOperands path.
func compileConstDivMod(c *CompilationContext, n *ast.Node, depth int) bool {
	if n.Right.Kind != ast.NumberLit {
		return false
	}
	d := n.Right.IntValue
	if d == 0 {
		c.addError(newDiag(KindShape, 0, 0, "division by the constant zero"))
		return false
	}
	isMod := n.Op == "%"

	compileExpr(c, n.Left, depth+1)
	a := c.Asm
	a.MovRR(asm.R11, asm.RAX) // stash x; every tier below clobbers RAX

	switch {
	case d == 1:
		if isMod {
			a.XorRR(asm.RAX, asm.RAX)
		}
		// division by 1 is the identity; RAX already holds x.
	case d == -1:
		if isMod {
			a.XorRR(asm.RAX, asm.RAX)
		} else {
			a.NegR(asm.RAX)
		}
	case isPowerOfTwo(absI64(d)):
		emitPow2DivMod(a, d, isMod)
	case magicTable[absI64(d)]:
		emitMagicDivMod(a, d, isMod)
	default:
		a.MovRI64(asm.RCX, uint64(d))
		a.Cqo()
		a.IdivR(asm.RCX)
		if isMod {
			a.MovRR(asm.RAX, asm.RDX)
		}
	}
	return true
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// emitPow2DivMod implements spec.md §4.5 tier 2 exactly as specified:
// `t = x >> 63; x = (x + (t & (d-1))) >> log2(d); x -= t & (d-1)` for
// division, and `((x + bias) & (d-1)) - bias` with the same bias for
// modulo so the remainder takes the dividend's sign (C semantics).
func emitPow2DivMod(a *asm.Assembler, d int64, isMod bool) {
	ad := absI64(d)
	shift := log2(ad)
	mask := ad - 1

	a.MovRR(asm.RAX, asm.R11) // x
	a.MovRR(asm.RCX, asm.RAX)
	a.SarRI(asm.RCX, 63)          // t = x >> 63 (all-ones if negative)
	a.AndRI(asm.RCX, int32(mask)) // bias = t & (d-1)

	if isMod {
		// r = ((x + bias) & mask) - bias
		a.AddRR(asm.RAX, asm.RCX)
		a.AndRI(asm.RAX, int32(mask))
		a.SubRR(asm.RAX, asm.RCX)
		return
	}

	// q = (x + bias) >> shift, negated if d < 0.
	a.AddRR(asm.RAX, asm.RCX)
	a.SarRI(asm.RAX, byte(shift))
	if d < 0 {
		a.NegR(asm.RAX)
	}
}

// emitMagicDivMod implements spec.md §4.5 tier 3: a 64-bit magic-multiply
// division (Hacker's Delight §10), with the same q*d subtraction trick
// for modulo.
func emitMagicDivMod(a *asm.Assembler, d int64, isMod bool) {
	m, shift := magicSigned(absI64(d)) // quotient for |d|, negated below if d < 0

	a.MovRR(asm.RAX, asm.R11) // x
	a.MovRI64(asm.RCX, uint64(m))
	a.ImulR(asm.RCX) // rdx:rax = x * m; rdx = MULSH(x, m)
	if m < 0 {
		a.AddRR(asm.RDX, asm.R11) // q += x
	}
	if shift > 0 {
		a.SarRI(asm.RDX, byte(shift))
	}
	// q += (q >>> 63): add 1 if q is negative.
	a.MovRR(asm.RAX, asm.RDX)
	a.ShrRI(asm.RAX, 63)
	a.AddRR(asm.RDX, asm.RAX)
	if d < 0 {
		a.NegR(asm.RDX)
	}
	a.MovRR(asm.RAX, asm.RDX)
	if isMod {
		a.MovRR(asm.RCX, asm.RAX)  // q
		a.MovRI64(asm.RDX, uint64(d))
		a.ImulRR(asm.RCX, asm.RDX) // q*d
		a.MovRR(asm.RAX, asm.R11)
		a.SubRR(asm.RAX, asm.RCX)
	}
}

// magicSigned computes the magic multiplier and shift for signed
// division by the nonzero constant d, following the classic algorithm
// (Hacker's Delight, 2nd ed., Figure 10-1) generalized to a 64-bit word.
func magicSigned(d int64) (m int64, shift uint) {
	const w = 64
	two63 := uint64(1) << (w - 1)

	ad := uint64(d)
	if d < 0 {
		ad = uint64(-d)
	}
	t := two63 + (uint64(d) >> (w - 1))
	anc := t - 1 - t%ad
	p := uint(w - 1)
	q1 := two63 / anc
	r1 := two63 - q1*anc
	q2 := two63 / ad
	r2 := two63 - q2*ad
	var delta uint64
	for {
		p++
		q1 *= 2
		r1 *= 2
		if r1 >= anc {
			q1++
			r1 -= anc
		}
		q2 *= 2
		r2 *= 2
		if r2 >= ad {
			q2++
			r2 -= ad
		}
		delta = ad - r2
		if !(q1 < delta || (q1 == delta && r1 == 0)) {
			break
		}
	}
	mag := int64(q2 + 1)
	if d < 0 {
		mag = -mag
	}
	return mag, p - w
}

// emitGenericDiv is the opcode-table entry point applyBinaryOp uses for
// `/` and `%` when operands were not specialized by compileConstDivMod
// (i.e. the divisor is itself a runtime value): CQO; IDIV r64 (spec.md
// §4.5 tier 4), with dst already holding the dividend and src the
// divisor.
func emitGenericDiv(a *asm.Assembler, dst, src int, isMod bool) {
	if dst != asm.RAX {
		a.MovRR(asm.RAX, dst)
	}
	if src == asm.RDX || src == asm.RAX {
		a.MovRR(asm.RCX, src)
		src = asm.RCX
	}
	a.Cqo()
	a.IdivR(src)
	if isMod {
		a.MovRR(asm.RAX, asm.RDX)
	}
	if dst != asm.RAX {
		a.MovRR(dst, asm.RAX)
	}
}
