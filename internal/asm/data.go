package asm

// AddString appends s, null-terminated, to Data and returns the byte
// offset at which it starts. Repeated identical strings are not
// deduplicated (spec.md §3 "String table" — "need not be deduplicated"),
// matching the teacher's StringConcat treatment of every literal as its
// own allocation; callers that want sharing (e.g. the linkage-pool
// empty-string default, spec.md §3) should dedupe themselves via
// InternString.
func (a *Assembler) AddString(s string) int {
	off := len(a.Data)
	a.Data = append(a.Data, s...)
	a.Data = append(a.Data, 0)
	return off
}

// InternString returns the offset of s in Data, adding it once if this
// is the first time this exact content has been seen. Used for values
// that must compare pointer-equal-by-convention, like the process-wide
// empty-string address every linkage-pool string field defaults to
// (spec.md §3 "Linkage pool").
func (a *Assembler) InternString(s string) int {
	if off, ok := a.stringTable[s]; ok {
		return off
	}
	off := a.AddString(s)
	a.stringTable[s] = off
	return off
}

// AddQword appends an 8-byte little-endian value to Data and returns its
// offset, for fixed-size constant pool entries.
func (a *Assembler) AddQword(v uint64) int {
	off := len(a.Data)
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(v >> (8 * i))
	}
	a.Data = append(a.Data, buf[:]...)
	return off
}

// ReserveData appends n zero bytes to Data (for pool tables, ACB tables,
// and other statically-sized regions) and returns their offset.
func (a *Assembler) ReserveData(n int) int {
	off := len(a.Data)
	a.Data = append(a.Data, make([]byte, n)...)
	return off
}

// LoadDataAddress emits `LEA reg, [rip + disp32]` with a zero placeholder
// and records a data-relative relocation targeting offset within Data
// (spec.md §4.1). The placeholder is patched by ApplyRipRelocs once the
// ELF writer has fixed the data segment's virtual address.
func (a *Assembler) LoadDataAddress(reg int, offset int) {
	a.emitLeaRipPlaceholder(reg)
	patchPos := len(a.Code) - 4
	a.relocs = append(a.relocs, Reloc{PatchPos: patchPos, Kind: RelocDataAbs, TargetOff: offset})
}

// LoadCodeAddress is LoadDataAddress's counterpart for taking the
// address of a point in Code itself (used by actor spawn to capture an
// actor function's entry address into its ACB slot without a call).
func (a *Assembler) LoadCodeAddress(reg int, codeOffset int) {
	a.emitLeaRipPlaceholder(reg)
	patchPos := len(a.Code) - 4
	a.relocs = append(a.relocs, Reloc{PatchPos: patchPos, Kind: RelocCodeAbs, TargetOff: codeOffset})
}

// LoadFuncAddress is LoadCodeAddress's forward-reference counterpart: it
// takes a function's entry label rather than an already-known code
// offset, for callers that need a function's address as a value instead
// of calling it directly (spec.md §4.8 "Spawn" stores the actor body's
// entry address into its ACB slot). ResolveFuncAddresses must run before
// ApplyRipRelocs to turn the label into a TargetOff.
func (a *Assembler) LoadFuncAddress(reg int, label string) {
	a.emitLeaRipPlaceholder(reg)
	patchPos := len(a.Code) - 4
	a.relocs = append(a.relocs, Reloc{PatchPos: patchPos, Kind: RelocCodeAbs, Target: label})
}

func (a *Assembler) emitLeaRipPlaceholder(reg int) {
	rex := byte(0x48)
	if reg >= 8 {
		rex = 0x4C
	}
	modrm := byte(0x05 | ((reg & 7) << 3)) // mod=00, rm=101 -> [rip+disp32]
	a.emitBytes(rex, 0x8D, modrm)
	a.emitU32(0)
}
