package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ailang-lang/ailangc/internal/ast"
)

func num(v int64) *ast.Node { return &ast.Node{Kind: ast.NumberLit, IntValue: v} }

func call(name string, args ...*ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.FunctionCall, Name: name, Args: args}
}

// TestCompileProducesValidELF exercises spec.md §8's concrete end-to-end
// scenario: PrintNumber(Add(2, Multiply(3, 4))) prints "14\n". This test
// only checks that Compile runs the full pipeline to a well-formed ELF
// header without error — it cannot execute the produced binary.
func TestCompileProducesValidELF(t *testing.T) {
	expr := &ast.Node{Kind: ast.BinaryExpr, Op: "+", Left: num(2),
		Right: &ast.Node{Kind: ast.BinaryExpr, Op: "*", Left: num(3), Right: num(4)}}
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{
		call("PrintNumber", expr),
	}}

	elf, diags, err := Compile("", prog, Options{})
	require.NoError(t, err)
	require.Empty(t, diags)
	require.True(t, len(elf) > 64)
	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, elf[:4])
}

// TestCompileReportsUndefinedFunction confirms that a call to a name the
// discovery pass never registered is reported as an unresolved-reference
// diagnostic. The call sits at top level, so the failure is caught at
// call-resolution time inside the top-level pass, which Compile's
// panic-recovery boundary turns into a reported diagnostic rather than
// a crash.
func TestCompileReportsUndefinedFunction(t *testing.T) {
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{
		call("TotallyUndefinedFunction", num(1)),
	}}

	_, diags, err := Compile("", prog, Options{})
	require.Error(t, err)
	require.NotEmpty(t, diags)
	require.Equal(t, KindUnresolvedRef, diags[0].Kind)
}

// TestCompileEntryPointIsFirstByteOfCode confirms e_entry always points
// at the text segment's first byte (spec.md §6), and is paired with
// TestEmissionOrderPutsProgramEntryFirst below, which checks the part
// that actually matters: that a declared function's body is emitted
// after the program-entry sequence rather than at code offset 0, so
// that first byte really is the program entry and not the middle of a
// function.
func TestCompileEntryPointIsFirstByteOfCode(t *testing.T) {
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{
		call("PrintNumber", num(1)),
	}}

	elf, diags, err := Compile("", prog, Options{})
	require.NoError(t, err)
	require.Empty(t, diags)

	entry := uint64(0)
	for i := 0; i < 8; i++ {
		entry |= uint64(elf[24+i]) << (8 * i)
	}
	require.Equal(t, uint64(0x401000), entry, "e_entry must point at the text segment's first byte")
}

// TestEmissionOrderPutsProgramEntryFirst is the white-box regression
// test for the entry-point bug: it drives the same discovery/emission
// calls Compile does and checks that a declared function's recorded
// code offset is never 0, since the program-entry sequence must occupy
// the first bytes of Asm.Code.
func TestEmissionOrderPutsProgramEntryFirst(t *testing.T) {
	fn := &ast.Node{Kind: ast.FunctionDecl, Name: "helper", Body: &ast.Node{Kind: ast.Program,
		Declarations: []*ast.Node{{Kind: ast.ReturnStmt, Value: num(1)}}}}
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{fn}}

	c := NewContext("", Options{})
	analyze(c, prog)
	require.Empty(t, c.Errors())

	sym, ok := c.Syms.Lookup("", "helper")
	require.True(t, ok)

	emitProgramEntry(c, nil, 0)
	emitFunctionBody(c, fn, sym)

	require.Greater(t, c.funcOffsets[sym.Func.Label], 0,
		"helper's body must be emitted after the program-entry sequence, not at code offset 0")
}

// branchCase builds one Branch arm over a single constant value.
func branchCase(val int64, body *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.BranchCase, CaseValues: []*ast.Node{num(val)}, Body: body}
}

// containsJG reports whether code contains the two-byte JG opcode
// (0F 8F) binary-search dispatch emits and a linear compare chain never
// does.
func containsJG(code []byte) bool {
	for i := 0; i+1 < len(code); i++ {
		if code[i] == 0x0F && code[i+1] == 0x8F {
			return true
		}
	}
	return false
}

// TestBranchUsesBinarySearchAtEightCases confirms spec.md §4.6's
// threshold ("eight or more integer cases" use binary search) and
// testable property 6: a Branch with exactly 8 cases — the §8 scenario's
// own case count — must lower to binary search, not the linear chain.
func TestBranchUsesBinarySearchAtEightCases(t *testing.T) {
	vals := []int64{1, 2, 3, 5, 8, 13, 21, 34}
	cases := make([]*ast.Node, len(vals))
	for i, v := range vals {
		cases[i] = branchCase(v, num(v))
	}
	branch := &ast.Node{Kind: ast.Branch, Value: num(13), Cases: cases}

	c := NewContext("", Options{})
	compileBranch(c, branch)
	require.True(t, containsJG(c.Asm.Code), "an 8-case Branch must dispatch via binary search")
}

// TestBranchUsesLinearChainUnderEightCases confirms a 7-case Branch
// stays on the linear compare chain (below the threshold).
func TestBranchUsesLinearChainUnderEightCases(t *testing.T) {
	vals := []int64{1, 2, 3, 5, 8, 13, 21}
	cases := make([]*ast.Node, len(vals))
	for i, v := range vals {
		cases[i] = branchCase(v, num(v))
	}
	branch := &ast.Node{Kind: ast.Branch, Value: num(13), Cases: cases}

	c := NewContext("", Options{})
	compileBranch(c, branch)
	require.False(t, containsJG(c.Asm.Code), "a 7-case Branch must stay on the linear compare chain")
}

// TestCompileDuplicateFunctionIsReportedAndHalts confirms the analyzer's
// collected-error-list contract (spec.md §4.2): emission never starts
// once a duplicate declaration is found.
func TestCompileDuplicateFunctionIsReportedAndHalts(t *testing.T) {
	fn := &ast.Node{Kind: ast.FunctionDecl, Name: "dup", Body: &ast.Node{Kind: ast.Program}}
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{fn, fn}}

	elf, diags, err := Compile("", prog, Options{})
	require.Error(t, err)
	require.Nil(t, elf)
	require.Len(t, diags, 1)
	require.Equal(t, KindParseSemantic, diags[0].Kind)
}
