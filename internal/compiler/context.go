package compiler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
	"github.com/ailang-lang/ailangc/internal/symtab"
)

// Options configures one compilation (spec.md §6 CLI surface).
type Options struct {
	// Timers (-P) logs each compiler pass's wall-clock time; no timing
	// code is added to the emitted program.
	Timers bool
	// DebugLevel is -D1..-D4; 0 means off.
	DebugLevel int
	// Logger receives structured progress/diagnostic output. If nil, a
	// logger writing to stderr at Warn level is created.
	Logger *logrus.Logger
}

// CompilationContext groups every piece of mutable state one compilation
// owns — the assembler, the symbol table, the position table, the
// collected diagnostics, and the logger — behind a single struct passed
// by reference to every module (spec.md §9 "Global mutable state": "do
// not use process-wide globals").
type CompilationContext struct {
	Asm    *asm.Assembler
	Syms   *symtab.Table
	Pos    *ast.PosTable
	Opts   Options
	Log    *logrus.Logger

	errs []*Diagnostic

	// loopLabels is the break/continue label stack (spec.md §4.6).
	loopLabels []loopLabelPair

	// funcOffsets maps a function's label to its offset in Asm.Code,
	// populated once every body has been emitted (spec.md §4.7).
	funcOffsets map[string]int

	// actorCount is the number of Spawn call sites discovered, i.e. the
	// static upper bound on concurrently-live actors (spec.md §3 "Actor
	// control block"). Slot 0 is always reserved for the program's own
	// root context, so the table holds actorCount+1 slots.
	actorCount     int
	acbTableOffset int // offset into Asm.Data of system_acb_table
	currentActorIdxOff int // offset into Asm.Data of the scheduler's current-index cell
	nextActorSlot       int
	schedulerYieldLabel string

	// linkagePools holds per-pool-type field layouts for both Linkage and
	// Dynamic pools (spec.md §3 "Linkage pool").
	linkagePools map[string]*symtab.PoolMeta

	// frame is the current function's memory-manager state (nil at
	// global scope).
	frame *frameInfo

	// returnLabel is the current function's single return trampoline
	// (spec.md §4.7 "Return"), empty at top level where ReturnStmt runs
	// the program epilogue and exits with status 0.
	returnLabel string

	emptyStringOff    int // process-wide empty string, interned once
	emptyStringCached bool
}

// currentReturnLabel reports the innermost function's return label, if
// any is active.
func (c *CompilationContext) currentReturnLabel() (string, bool) {
	if c.returnLabel == "" {
		return "", false
	}
	return c.returnLabel, true
}

type loopLabelPair struct {
	start string
	end   string
}

// NewContext creates a CompilationContext ready for the discovery pass.
func NewContext(src string, opts Options) *CompilationContext {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetLevel(logrus.WarnLevel)
	}
	if opts.DebugLevel > 0 {
		levels := []logrus.Level{logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel, logrus.TraceLevel, logrus.TraceLevel}
		idx := opts.DebugLevel
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		opts.Logger.SetLevel(levels[idx])
	}
	return &CompilationContext{
		Asm:          asm.New(),
		Syms:         symtab.New(),
		Pos:          ast.NewPosTable(src),
		Opts:         opts,
		Log:          opts.Logger,
		funcOffsets:  make(map[string]int),
		linkagePools: make(map[string]*symtab.PoolMeta),
	}
}

func (c *CompilationContext) addError(d *Diagnostic) { c.errs = append(c.errs, d) }

// Errors returns every diagnostic collected so far.
func (c *CompilationContext) Errors() []*Diagnostic { return c.errs }

func (c *CompilationContext) pushLoop(start, end string) {
	c.loopLabels = append(c.loopLabels, loopLabelPair{start, end})
}

func (c *CompilationContext) popLoop() {
	c.loopLabels = c.loopLabels[:len(c.loopLabels)-1]
}

func (c *CompilationContext) innermostLoop() (loopLabelPair, bool) {
	if len(c.loopLabels) == 0 {
		return loopLabelPair{}, false
	}
	return c.loopLabels[len(c.loopLabels)-1], true
}

// timeit logs a pass's wall-clock duration at Info when -P is set
// (spec.md §6 AMBIENT).
func (c *CompilationContext) timeit(pass string, fn func()) {
	if !c.Opts.Timers {
		fn()
		return
	}
	start := time.Now()
	fn()
	c.Log.WithFields(logrus.Fields{"pass": pass, "elapsed": time.Since(start)}).Info("pass complete")
}
