package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ailang-lang/ailangc/internal/asm"
)

// TestPeepholeFoldsPushPopPair confirms the push r / pop r -> nop fold
// (spec.md §4.12) leaves the instruction stream the same length, with
// every byte of the pair replaced by 0x90.
func TestPeepholeFoldsPushPopPair(t *testing.T) {
	a := asm.New()
	a.MovRI64(asm.RAX, 7) // unrelated instruction, untouched
	start := len(a.Code)
	a.PushR(asm.RBX)
	a.PopR(asm.RBX)
	end := len(a.Code)

	runPeephole(a)

	for i := start; i < end; i++ {
		require.Equal(t, byte(0x90), a.Code[i], "byte %d of the push/pop pair should be a nop", i)
	}
	require.NotEqual(t, byte(0x90), a.Code[0], "the unrelated movabs must survive untouched")
}

// TestPeepholeFoldsSelfMov confirms `mov r, r` folds to nops.
func TestPeepholeFoldsSelfMov(t *testing.T) {
	a := asm.New()
	start := len(a.Code)
	a.MovRR(asm.RCX, asm.RCX)
	end := len(a.Code)

	runPeephole(a)

	for i := start; i < end; i++ {
		require.Equal(t, byte(0x90), a.Code[i])
	}
}

// TestPeepholeLeavesMismatchedPairAlone confirms a push/pop of different
// registers is never folded, since the pop's destination value differs.
func TestPeepholeLeavesMismatchedPairAlone(t *testing.T) {
	a := asm.New()
	a.PushR(asm.RBX)
	a.PopR(asm.RCX)
	before := append([]byte(nil), a.Code...)

	runPeephole(a)

	require.Equal(t, before, a.Code)
}

// TestPeepholeLeavesGappedPairAlone confirms a push/pop separated by an
// intervening instruction is left alone, since this pass never reasons
// about what that instruction does.
func TestPeepholeLeavesGappedPairAlone(t *testing.T) {
	a := asm.New()
	a.PushR(asm.RBX)
	a.MovRI64(asm.RAX, 1)
	a.PopR(asm.RBX)
	before := append([]byte(nil), a.Code...)

	runPeephole(a)

	require.Equal(t, before, a.Code)
}
