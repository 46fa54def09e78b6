package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/elfwriter"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// Compile drives the three-pass pipeline spec.md §9 describes end to
// end: discovery (analyze), the top-level pass over every statement that
// is not a declaration (emitted first, as the program entry), then body
// emission (one emitFunctionBody per declared function/subroutine),
// followed by relocation and ELF emission. It never
// lets a panic escape: every pass runs under a recover that turns an
// unexpected panic into a KindInternal diagnostic, so a bug in one
// AST shape degrades to a reported error instead of crashing the CLI
// (spec.md §7 AMBIENT "all errors abort compilation with a single
// diagnostic").
func Compile(src string, prog *ast.Node, opts Options) (elf []byte, diags []*Diagnostic, err error) {
	c := NewContext(src, opts)

	defer func() {
		if r := recover(); r != nil {
			if d, ok := r.(*Diagnostic); ok {
				c.addError(d)
			} else {
				c.addError(newDiag(KindInternal, 0, 0, "%v", r))
			}
			diags = c.Errors()
			err = diags[len(diags)-1]
		}
	}()

	c.timeit("discovery", func() { analyze(c, prog) })
	if len(c.Errors()) > 0 {
		return nil, c.Errors(), c.Errors()[0]
	}

	actorCount := countActors(prog)
	if actorCount > 0 {
		allocateACBTable(c, actorCount)
	}

	var topLevel []*ast.Node
	var funcSyms []funcEmitJob

	for _, d := range prog.Declarations {
		switch d.Kind {
		case ast.FunctionDecl, ast.SubroutineDecl:
			sym, _ := c.Syms.Lookup("", d.Name)
			funcSyms = append(funcSyms, funcEmitJob{decl: d, sym: sym})
		case ast.PoolDecl, ast.LinkagePoolDecl:
			// handled entirely by analyze; nothing to emit.
		default:
			topLevel = append(topLevel, d)
		}
	}

	// The program-entry sequence is emitted first so its first instruction
	// lands at code offset 0 — the ELF entry point is always the first
	// byte of the code segment (spec.md §6), so whatever is emitted first
	// is what the kernel jumps to. Function bodies are emitted afterward;
	// every call into them is resolved through the label/relocation
	// system regardless of emission order, so this ordering costs nothing.
	c.timeit("top level", func() {
		emitProgramEntry(c, topLevel, actorCount)
	})

	c.timeit("body emission", func() {
		for _, job := range funcSyms {
			emitFunctionBody(c, job.decl, job.sym)
		}
	})

	if n := c.Syms.JITInsertCount(); n > 0 {
		c.Log.WithField("count", n).Warn("discovery pass missed top-level declarations")
	}

	a := c.Asm
	runPeephole(a)
	if err := a.ResolveJumps(); err != nil {
		d := wrap(err, "resolving jumps")
		c.addError(d)
		return nil, c.Errors(), d
	}
	if unresolved := a.ResolveCalls(c.funcOffsets); len(unresolved) > 0 {
		d := newDiag(KindUnresolvedRef, 0, 0, "unresolved call targets: %v", unresolved)
		c.addError(d)
		return nil, c.Errors(), d
	}
	if unresolved := a.ResolveFuncAddresses(c.funcOffsets); len(unresolved) > 0 {
		d := newDiag(KindUnresolvedRef, 0, 0, "unresolved function addresses: %v", unresolved)
		c.addError(d)
		return nil, c.Errors(), d
	}

	layout := elfwriter.ComputeLayout(len(a.Code), len(a.Data), elfwriter.DefaultBaseAddr)
	a.ApplyRipRelocs(layout.TextVAddr, layout.DataVAddr)

	elf = elfwriter.Emit(layout, a.Code, a.Data)
	return elf, c.Errors(), nil
}

type funcEmitJob struct {
	decl *ast.Node
	sym  *symtab.Symbol
}

// emitProgramEntry lowers the program's own top-level statements as a
// synthetic frame (spec.md §4.3's five-step algorithm applies just as
// well to the root context as to any user function), bracketed by the
// pool-table and actor-system setup sequences and a plain
// SYS_exit(0) instead of RET.
func emitProgramEntry(c *CompilationContext, topLevel []*ast.Node, actorCount int) {
	a := c.Asm
	body := ast.Block(topLevel...)
	synthetic := &ast.Node{Kind: ast.FunctionDecl, Name: "main", Body: body}

	fr := computeFrameSize(synthetic)
	c.frame = fr
	defer func() { c.frame = nil }()

	emitPrologue(a, fr.size, false)
	emitPoolTableAlloc(c, c.Syms.PoolCount())
	if actorCount > 0 {
		emitActorSystemInit(c)
	}

	compileStmt(c, body)

	emitEpilogue(a, false)
	a.XorRR(asm.RDI, asm.RDI)
	a.MovRI64(asm.RAX, 60) // SYS_exit
	a.Syscall()
}
