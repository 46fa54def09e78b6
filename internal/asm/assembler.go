// Package asm implements the x86-64 assembler described in spec.md
// §4.1: two growing byte buffers (code, data), primitive instruction
// emitters, a label/jump manager, and a relocation list. Everything in
// this package is single-threaded state owned by exactly one
// Assembler — the "one mutator" rule from spec.md §5.
package asm

// Register numbers match the x86-64 ModRM/REX encoding (spec.md §4.1,
// grounded in the teacher's x64.go register table).
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15
)

// JumpKind enumerates the conditional/unconditional jump forms the
// label manager can emit (spec.md §4.1 label/jump manager contract).
type JumpKind int

const (
	JMP JumpKind = iota
	JE
	JNE
	JL
	JLE
	JG
	JGE
	JZ
	JNZ
	JS
	JC
	JA
	JB
	JAE
	JBE
)

// ccOpcode is the second byte of the two-byte Jcc opcode (0F 8x) for
// every conditional kind; JMP uses the one-byte E9 form instead.
var ccOpcode = map[JumpKind]byte{
	JE: 0x84, JNE: 0x85, JL: 0x8C, JLE: 0x8E, JG: 0x8F, JGE: 0x8D,
	JZ: 0x84, JNZ: 0x85, JS: 0x88, JC: 0x82, JA: 0x87, JB: 0x82,
	JAE: 0x83, JBE: 0x86,
}

// RelocKind tags what a relocation's 4-byte placeholder means (spec.md
// §3 "Relocation entry"; §9 "model this with a single tagged-union
// relocation record").
type RelocKind int

const (
	RelocJumpDisp  RelocKind = iota // rel32 displacement to a code label
	RelocCallDisp                   // rel32 displacement to a function label
	RelocDataAbs                    // RIP-relative disp32 to a data-segment offset, patched once addresses are known
	RelocCodeAbs                    // RIP-relative disp32 to a code-segment offset, patched once addresses are known
)

// Reloc is the one relocation record shape every forward reference uses
// (spec.md §9 design note: do not split into per-instruction apply
// functions).
type Reloc struct {
	PatchPos int
	Target   string // label name, or "" when TargetOff is used directly
	TargetOff int   // used for RelocDataAbs/RelocCodeAbs when no label exists
	Kind     RelocKind
}

// PendingJump records an emitted jump whose displacement has not yet
// been resolved to a label definition.
type PendingJump struct {
	PatchPos int
	Label    string
}

// Assembler owns the code and data buffers for one compilation unit's
// worth of machine code plus the label/jump/relocation/string-table
// state spec.md §4.1 groups with it.
type Assembler struct {
	Code []byte
	Data []byte

	labelPos    map[string]int
	labelSeq    int
	pending     []PendingJump
	relocs      []Reloc
	stringTable map[string]int // content → data offset of the null-terminated bytes

	marks []InstrMark
}

// InstrMark records the kind, register operand(s), and Code byte-range
// of one PushR/PopR/MovRR call, so a later peephole pass can match
// adjacent instructions by their semantics instead of re-decoding raw
// bytes — decoding blind would risk aliasing into an immediate
// operand's data (spec.md §4.12 peephole layer).
type InstrMark struct {
	Op    byte // 'P' push, 'p' pop, 'm' mov
	Reg   int
	Reg2  int // mov's src register; unused for push/pop
	Start int
	Len   int
}

// Marks returns every InstrMark recorded so far.
func (a *Assembler) Marks() []InstrMark { return a.marks }

// NopRange overwrites Code[start:start+length] with single-byte NOPs
// (0x90). Used by a peephole pass to erase a redundant instruction
// without shifting any later label/relocation offset (spec.md §4.12).
func (a *Assembler) NopRange(start, length int) {
	for i := start; i < start+length; i++ {
		a.Code[i] = 0x90
	}
}

// New returns an empty Assembler.
func New() *Assembler {
	return &Assembler{
		labelPos:    make(map[string]int),
		stringTable: make(map[string]int),
	}
}

func (a *Assembler) emitByte(b byte)      { a.Code = append(a.Code, b) }
func (a *Assembler) emitBytes(bs ...byte) { a.Code = append(a.Code, bs...) }

// EmitRaw appends bs directly to Code. Used for instruction forms with
// no dedicated emitter (e.g. the `rep stosq` prefix+opcode pair the
// memory manager uses to zero the pool table).
func (a *Assembler) EmitRaw(bs ...byte) { a.Code = append(a.Code, bs...) }

func (a *Assembler) emitU32(v uint32) {
	a.Code = append(a.Code, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (a *Assembler) emitU64(v uint64) {
	for i := 0; i < 8; i++ {
		a.Code = append(a.Code, byte(v>>(8*i)))
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
