package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ailang-lang/ailangc/internal/ast"
)

func ident(name string) *ast.Node { return &ast.Node{Kind: ast.Identifier, Name: name} }

func assign(target, value *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.Assignment, Target: target, Value: value}
}

// TestCompileHashBuiltinsEndToEnd exercises the HashCreate (assignment-
// position builtin) / HashSet / HashGet (expression-position builtins)
// path inside a real function body, guarding against the kind of dead
// dispatch-wiring bug a missing table entry would reintroduce silently.
func TestCompileHashBuiltinsEndToEnd(t *testing.T) {
	body := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{
		assign(ident("t"), call("HashCreate", num(16))),
		call("HashSet", ident("t"), num(1), num(42)),
		assign(ident("v"), call("HashGet", ident("t"), num(1))),
		call("PrintNumber", ident("v")),
	}}
	fn := &ast.Node{Kind: ast.FunctionDecl, Name: "main_like", Body: body}
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{fn}}

	elf, diags, err := Compile("", prog, Options{})
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, elf[:4])
}

// TestCompilePoolInitEndToEnd exercises the PoolInit assignment path for
// a Linkage pool declared at the top level, guarding the same class of
// wiring bug compileAssignment's storeToSymbol fix addressed.
func TestCompilePoolInitEndToEnd(t *testing.T) {
	poolDecl := &ast.Node{Kind: ast.LinkagePoolDecl, Name: "Request", Fields: []*ast.FieldDecl{
		{Name: "id", Type: "integer", Dir: "in"},
	}}
	body := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{
		assign(ident("req"), &ast.Node{Kind: ast.PoolInit, Name: "Request"}),
		assign(&ast.Node{Kind: ast.MemberAccess, Left: ident("req"), Name: "id"}, num(5)),
	}}
	fn := &ast.Node{Kind: ast.FunctionDecl, Name: "uses_pool", Body: body}
	prog := &ast.Node{Kind: ast.Program, Declarations: []*ast.Node{poolDecl, fn}}

	elf, diags, err := Compile("", prog, Options{})
	require.NoError(t, err)
	require.Empty(t, diags)
	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, elf[:4])
}
