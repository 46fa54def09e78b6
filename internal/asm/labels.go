package asm

import (
	"fmt"

	"github.com/google/uuid"
)

// CreateLabel returns a fresh, globally-unique synthetic label name.
// Labels are suffixed with 8 characters of a UUID so two Assemblers —
// e.g. the ones spawned per-goroutine by a fuzz harness exercising
// property test 4 — never collide even though they share no state
// (spec.md §8.9).
func (a *Assembler) CreateLabel(prefix string) string {
	a.labelSeq++
	id := uuid.New().String()
	return fmt.Sprintf("%s_L%d_%s", prefix, a.labelSeq, id[:8])
}

// MarkLabel records the current length of Code as label's definition
// site.
func (a *Assembler) MarkLabel(label string) {
	a.labelPos[label] = len(a.Code)
}

// EmitJumpToLabel emits the opcode for kind followed by four
// placeholder zero bytes, and records a pending jump relocation (spec.md
// §4.1). Near jumps always use the 32-bit-displacement form so no
// instruction is ever resized during relocation.
func (a *Assembler) EmitJumpToLabel(label string, kind JumpKind) {
	if kind == JMP {
		a.emitByte(0xE9)
	} else {
		op, ok := ccOpcode[kind]
		if !ok {
			panic(fmt.Sprintf("asm: unknown jump kind %d", kind))
		}
		a.emitBytes(0x0F, op)
	}
	patchPos := len(a.Code)
	a.emitU32(0)
	a.pending = append(a.pending, PendingJump{PatchPos: patchPos, Label: label})
}

// EmitCallToLabel emits `call rel32` to a (possibly not-yet-defined)
// function label, recording a call-fixup relocation (spec.md §4.7
// "Forward references").
func (a *Assembler) EmitCallToLabel(label string) {
	a.emitByte(0xE8)
	patchPos := len(a.Code)
	a.emitU32(0)
	a.relocs = append(a.relocs, Reloc{PatchPos: patchPos, Target: label, Kind: RelocCallDisp})
}

// ResolveJumps patches every pending jump's displacement now that all
// labels in this Assembler's Code have been marked. It returns the name
// of the first label still undefined, if any (spec.md §4.1 "Failure").
func (a *Assembler) ResolveJumps() error {
	for _, p := range a.pending {
		target, ok := a.labelPos[p.Label]
		if !ok {
			return fmt.Errorf("asm: unresolved label %q", p.Label)
		}
		disp := int32(target - (p.PatchPos + 4))
		putU32(a.Code[p.PatchPos:p.PatchPos+4], uint32(disp))
	}
	a.pending = nil
	return nil
}

// ResolveCalls patches every recorded call-fixup against funcOffsets, a
// name→code-offset map the orchestrator builds once every function body
// has been emitted (spec.md §4.7). It returns the names of any calls
// left unresolved.
func (a *Assembler) ResolveCalls(funcOffsets map[string]int) []string {
	var unresolved []string
	remaining := a.relocs[:0]
	for _, r := range a.relocs {
		if r.Kind != RelocCallDisp {
			remaining = append(remaining, r)
			continue
		}
		target, ok := funcOffsets[r.Target]
		if !ok {
			unresolved = append(unresolved, r.Target)
			continue
		}
		disp := int32(target - (r.PatchPos + 4))
		putU32(a.Code[r.PatchPos:r.PatchPos+4], uint32(disp))
	}
	a.relocs = remaining
	return unresolved
}

// ResolveFuncAddresses turns every label-targeted RelocCodeAbs entry
// (from LoadFuncAddress) into an offset-targeted one, by looking up
// funcOffsets the same way ResolveCalls does. It must run before
// ApplyRipRelocs. Returns the names of any labels left unresolved.
func (a *Assembler) ResolveFuncAddresses(funcOffsets map[string]int) []string {
	var unresolved []string
	for i := range a.relocs {
		r := &a.relocs[i]
		if r.Kind != RelocCodeAbs || r.Target == "" {
			continue
		}
		off, ok := funcOffsets[r.Target]
		if !ok {
			unresolved = append(unresolved, r.Target)
			continue
		}
		r.TargetOff = off
		r.Target = ""
	}
	return unresolved
}

// PendingDataRelocs returns every relocation still awaiting the ELF
// writer's virtual-address computation (spec.md §4.1 "Data-address
// relocations... Applied after the ELF writer has computed the code and
// data virtual addresses").
func (a *Assembler) PendingDataRelocs() []Reloc {
	return a.relocs
}

// ApplyRipRelocs patches every RelocDataAbs/RelocCodeAbs entry's
// `LEA reg, [rip+disp32]` placeholder now that the ELF writer knows both
// segments' virtual addresses (spec.md §4.1 "Data-address relocations").
// RIP, for a disp32 that is the last four bytes of the instruction, is
// codeVAddr + patchPos + 4. After this returns, no byte in Code is a
// placeholder (spec.md §4.1 invariant).
func (a *Assembler) ApplyRipRelocs(codeVAddr, dataVAddr uint64) {
	kept := a.relocs[:0]
	for _, r := range a.relocs {
		switch r.Kind {
		case RelocDataAbs:
			target := dataVAddr + uint64(r.TargetOff)
			rip := codeVAddr + uint64(r.PatchPos+4)
			disp := int32(int64(target) - int64(rip))
			putU32(a.Code[r.PatchPos:r.PatchPos+4], uint32(disp))
		case RelocCodeAbs:
			target := codeVAddr + uint64(r.TargetOff)
			rip := codeVAddr + uint64(r.PatchPos+4)
			disp := int32(int64(target) - int64(rip))
			putU32(a.Code[r.PatchPos:r.PatchPos+4], uint32(disp))
		default:
			kept = append(kept, r)
		}
	}
	a.relocs = kept
}
