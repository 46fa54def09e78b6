package asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveJumpsComputesCorrectDisplacement(t *testing.T) {
	a := New()
	start := a.CreateLabel("start")
	end := a.CreateLabel("end")
	a.MarkLabel(start)
	a.MovRI64(RAX, 1)
	a.EmitJumpToLabel(end, JMP)
	a.MovRI64(RBX, 2) // dead code the jump skips
	a.MarkLabel(end)
	a.Ret()

	require.NoError(t, a.ResolveJumps())

	// Walk the displacement back out and confirm it lands exactly on `end`.
	jmpOpcodeAt := 10 // movabs rax,1 is 10 bytes (rex+b8+imm64)
	require.EqualValues(t, 0xE9, a.Code[jmpOpcodeAt])
	disp := int32(uint32(a.Code[jmpOpcodeAt+1]) | uint32(a.Code[jmpOpcodeAt+2])<<8 |
		uint32(a.Code[jmpOpcodeAt+3])<<16 | uint32(a.Code[jmpOpcodeAt+4])<<24)
	patchEnd := jmpOpcodeAt + 5
	require.Equal(t, a.labelPos[end], patchEnd+int(disp))
}

func TestResolveJumpsFailsOnPhantomLabel(t *testing.T) {
	a := New()
	a.EmitJumpToLabel("phantom_label_never_marked", JMP)
	err := a.ResolveJumps()
	require.Error(t, err)
	require.Contains(t, err.Error(), "phantom_label_never_marked")
}

func TestResolveCallsReportsUnresolved(t *testing.T) {
	a := New()
	a.EmitCallToLabel("undefined_func")
	unresolved := a.ResolveCalls(map[string]int{"defined_func": 0})
	require.Equal(t, []string{"undefined_func"}, unresolved)
}

func TestResolveCallsPatchesKnownFunction(t *testing.T) {
	a := New()
	a.MovRI64(RAX, 0) // padding before the call
	a.EmitCallToLabel("target")
	unresolved := a.ResolveCalls(map[string]int{"target": 50})
	require.Empty(t, unresolved)
}

func TestAddStringDoesNotDeduplicate(t *testing.T) {
	a := New()
	o1 := a.AddString("hi")
	o2 := a.AddString("hi")
	require.NotEqual(t, o1, o2, "AddString must not dedupe per spec.md §3")
}

func TestInternStringDeduplicates(t *testing.T) {
	a := New()
	o1 := a.InternString("")
	o2 := a.InternString("")
	require.Equal(t, o1, o2)
}

func TestApplyRipRelocsLeavesNoPlaceholder(t *testing.T) {
	a := New()
	dataOff := a.AddString("hello")
	a.LoadDataAddress(RAX, dataOff)
	before := append([]byte(nil), a.Code...)
	a.ApplyRipRelocs(0x401000, 0x403000)
	require.NotEqual(t, before, a.Code, "relocation must patch the placeholder bytes")
	require.Empty(t, a.PendingDataRelocs())
}
