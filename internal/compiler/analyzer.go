package compiler

import (
	"github.com/samber/lo"

	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// analyze is the semantic analyzer's single AST walk (spec.md §4.2):
// it pre-registers every globally visible name — functions, subroutines,
// fixed-pool variables, dynamic/linkage pool types — into the symbol
// table so later passes never fail on a forward reference. It emits no
// machine code; every problem it finds is appended to c.errs rather than
// aborting the walk, so the orchestrator can report every declaration
// error at once instead of stopping at the first (spec.md §4.2
// "collected list").
func analyze(c *CompilationContext, prog *ast.Node) {
	declared := map[string]bool{}
	for _, d := range prog.Declarations {
		switch d.Kind {
		case ast.FunctionDecl, ast.SubroutineDecl:
			if declared[d.Name] {
				line, col := c.lineCol(d.Pos)
				c.addError(newDiag(KindParseSemantic, line, col, "duplicate function %q", d.Name))
				continue
			}
			declared[d.Name] = true
			registerFunction(c, d)
		case ast.PoolDecl:
			analyzePoolDecl(c, d)
		case ast.LinkagePoolDecl:
			declareLinkagePoolType(c, d.Name, fieldInfos(d.Fields))
		}
	}
}

// analyzePoolDecl splits on spec.md §3's two pool flavors: Fixed pool
// variables are registered directly as `POOLKIND.POOLNAME.MEMBER` names
// in the global scope (one pool-table slot per member); Dynamic pools
// instead register a field-layout type, the way a linkage pool does,
// since their storage is a heap block allocated per-instance rather than
// a slot in the shared pool table.
func analyzePoolDecl(c *CompilationContext, d *ast.Node) {
	switch d.PoolKind {
	case "Dynamic":
		declareDynamicPoolType(c, d.Name, fieldInfos(d.Fields))
	default: // "Fixed"
		for _, f := range d.Fields {
			c.Syms.DeclarePoolVar("Fixed." + d.Name + "." + f.Name)
		}
	}
}

func fieldInfos(fields []*ast.FieldDecl) []symtab.FieldInfoLike {
	return lo.Map(fields, func(f *ast.FieldDecl, _ int) symtab.FieldInfoLike {
		return symtab.FieldInfoLike{Name: f.Name, Dir: f.Dir, Type: f.Type}
	})
}

// lineCol resolves an AST byte offset to a line/col pair via c.Pos,
// falling back to 0,0 when no position table is attached (spec.md §7
// "when available").
func (c *CompilationContext) lineCol(pos int) (int, int) {
	if c.Pos == nil {
		return 0, 0
	}
	return c.Pos.LineCol(pos)
}
