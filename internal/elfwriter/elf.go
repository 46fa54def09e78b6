// Package elfwriter computes virtual addresses for the text and data
// segments and emits the final ELF64 executable bytes (spec.md §6, §2
// "ELF writer" row). It knows nothing about AILANG semantics — it takes
// two already-assembled byte slices and produces a loadable binary.
package elfwriter

const (
	elfHeaderSize = 64
	phdrSize      = 56
	pageSize      = 0x1000

	// DefaultBaseAddr is the process image base the spec fixes
	// (spec.md §6: "virtual address 0x400000 + 0x1000").
	DefaultBaseAddr = 0x400000
)

// Layout is the result of laying out the code and data segments: their
// file offsets and virtual addresses. The caller patches every
// RIP-relative data/code relocation against these addresses (via
// asm.Assembler.ApplyRipRelocs) before calling Emit.
type Layout struct {
	BaseAddr uint64

	TextFileOffset int
	TextVAddr      uint64
	TextSize       int

	DataFileOffset int
	DataVAddr      uint64
	DataSize       int

	EntryVAddr uint64
}

// ComputeLayout lays out a code segment (R+X) starting at file offset
// 0x1000 and a data segment (R+W) starting at the next page-aligned file
// offset, exactly as spec.md §6 requires.
func ComputeLayout(codeLen, dataLen int, baseAddr uint64) Layout {
	if baseAddr == 0 {
		baseAddr = DefaultBaseAddr
	}
	textOffset := pageSize
	dataOffset := alignUp(textOffset+codeLen, pageSize)

	return Layout{
		BaseAddr:       baseAddr,
		TextFileOffset: textOffset,
		TextVAddr:      baseAddr + uint64(textOffset),
		TextSize:       codeLen,
		DataFileOffset: dataOffset,
		DataVAddr:      baseAddr + uint64(dataOffset),
		DataSize:       dataLen,
		EntryVAddr:     baseAddr + uint64(textOffset),
	}
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

// Emit produces the final ELF64 executable: header, two PT_LOAD program
// headers (code R+X, data R+W), then the code and data payloads at their
// laid-out file offsets. No section headers, no symbol table, no
// dynamic linkage (spec.md §6).
func Emit(layout Layout, code, data []byte) []byte {
	total := layout.DataFileOffset + len(data)
	buf := make([]byte, total)

	writeELFHeader(buf, layout)
	writePhdr(buf[elfHeaderSize:elfHeaderSize+phdrSize], uint32(1 /* PT_LOAD */), 0x5, /* R+X */
		uint64(layout.TextFileOffset), layout.TextVAddr, uint64(len(code)))
	writePhdr(buf[elfHeaderSize+phdrSize:elfHeaderSize+2*phdrSize], uint32(1), 0x6, /* R+W */
		uint64(layout.DataFileOffset), layout.DataVAddr, uint64(len(data)))

	copy(buf[layout.TextFileOffset:], code)
	copy(buf[layout.DataFileOffset:], data)

	return buf
}

func writeELFHeader(buf []byte, layout Layout) {
	copy(buf[0:4], []byte{0x7F, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	buf[7] = 0 // ELFOSABI_SYSV
	// bytes 8-15 (ABI version + padding) stay zero

	putU16(buf[16:], 2)      // e_type = ET_EXEC
	putU16(buf[18:], 0x3E)   // e_machine = EM_X86_64
	putU32(buf[20:], 1)      // e_version
	putU64(buf[24:], layout.EntryVAddr)
	putU64(buf[32:], uint64(elfHeaderSize)) // e_phoff
	putU64(buf[40:], 0)                     // e_shoff
	putU32(buf[48:], 0)                     // e_flags
	putU16(buf[52:], uint16(elfHeaderSize))
	putU16(buf[54:], uint16(phdrSize)) // e_phentsize
	putU16(buf[56:], 2)                // e_phnum
	putU16(buf[58:], 0)                // e_shentsize
	putU16(buf[60:], 0)                // e_shnum
	putU16(buf[62:], 0)                // e_shstrndx
}

func writePhdr(buf []byte, ptype uint32, flags uint32, offset uint64, vaddr uint64, size uint64) {
	putU32(buf[0:], ptype)
	putU32(buf[4:], flags)
	putU64(buf[8:], offset)
	putU64(buf[16:], vaddr) // p_vaddr
	putU64(buf[24:], vaddr) // p_paddr == p_vaddr, no physical-address distinction
	putU64(buf[32:], size)  // p_filesz
	putU64(buf[40:], size)  // p_memsz
	putU64(buf[48:], pageSize)
}

func putU16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
