package compiler

import "github.com/ailang-lang/ailangc/internal/asm"

// runPeephole implements the cleanup layer spec.md §4.12 describes: after
// body emission, walk the assembler's recorded InstrMarks and erase two
// specific redundant shapes, in place, via NOP padding rather than a
// byte-shifting rewrite. NOP padding keeps every label position and
// relocation offset already recorded against Code valid, which a
// compacting rewrite would not.
//
// Folding is matched on adjacent marks only (index i, i+1 with no gap in
// between) — anything separated by an intervening instruction is left
// alone, since this pass never reasons about what that instruction does
// to the registers involved.
func runPeephole(a *asm.Assembler) {
	marks := a.Marks()
	for i := 0; i+1 < len(marks); i++ {
		m0, m1 := marks[i], marks[i+1]
		if m0.Op == 'm' && m0.Reg == m0.Reg2 {
			// mov r, r -> no-op. (checked per-mark, not per-pair, so it
			// runs before the adjacency test below)
			a.NopRange(m0.Start, m0.Len)
			continue
		}
		if m1.Start != m0.Start+m0.Len {
			continue // not adjacent; an instruction sits between them
		}
		if m0.Op == 'P' && m1.Op == 'p' && m0.Reg == m1.Reg {
			// push r; pop r -> no-op.
			a.NopRange(m0.Start, m0.Len+m1.Len)
		}
	}
	// A self-mov as the very last mark is never reached by the pair loop
	// above when it isn't followed by anything; catch it here too.
	if len(marks) > 0 {
		last := marks[len(marks)-1]
		if last.Op == 'm' && last.Reg == last.Reg2 {
			a.NopRange(last.Start, last.Len)
		}
	}
}
