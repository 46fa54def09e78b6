package compiler

import (
	"github.com/ailang-lang/ailangc/internal/asm"
	"github.com/ailang-lang/ailangc/internal/ast"
)

// This file lowers spec.md §4.11's syscall wrappers: every file and
// network primitive places its arguments in the Sys-V syscall ABI order
// (RAX=number; RDI, RSI, RDX, R10, R8, R9=args 1-6) and returns the raw
// syscall result in RAX. Multi-argument calls evaluate every argument
// and push it before popping any into its ABI register, the same
// cross-clobber-proof staging compileCall uses for ordinary function
// calls (spec.md §4.11 "push the in-register arguments on the stack
// during multi-argument evaluation").

const (
	sysRead    = 0
	sysWrite   = 1
	sysOpen    = 2
	sysClose   = 3
	sysSocket  = 41
	sysAccept  = 43
	sysBind    = 49
	sysListen  = 50
)

// sockAddrOff is the 16-byte sockaddr_in scratch slot SocketBind stages
// its argument in, carved out of the frame's temp region past
// strops.go's own reservation: its bytes run upward from
// [rbp - (tempOff+112)] and end where strScratchResultOff's slot begins
// (strScratchResultOff+16 = 112).
const sockAddrOff = 112

// stageArgs evaluates each of args in order, pushing every result, then
// pops them into dst (in the same order dst lists registers) so arg[i]
// lands in dst[i] without any later argument's evaluation able to
// clobber an earlier one's already-computed value.
func stageArgs(c *CompilationContext, args []*ast.Node, dst []int) {
	a := c.Asm
	for _, arg := range args {
		compileExpr(c, arg, 0)
		a.PushR(asm.RAX)
	}
	for i := len(args) - 1; i >= 0; i-- {
		a.PopR(dst[i])
	}
}

// compileFileOpen lowers `FileOpen(path, flags, mode)`.
func compileFileOpen(c *CompilationContext, n *ast.Node) {
	stageArgs(c, n.Args, []int{asm.RDI, asm.RSI, asm.RDX})
	c.Asm.MovRI64(asm.RAX, sysOpen)
	c.Asm.Syscall()
}

// compileFileRead lowers `FileRead(fd, buf, n)` / `SocketRead(fd, buf, n)`.
func compileFileRead(c *CompilationContext, n *ast.Node) {
	stageArgs(c, n.Args, []int{asm.RDI, asm.RSI, asm.RDX})
	c.Asm.MovRI64(asm.RAX, sysRead)
	c.Asm.Syscall()
}

// compileFileWrite lowers `FileWrite(fd, buf, n)` / `SocketWrite(fd, buf, n)`.
func compileFileWrite(c *CompilationContext, n *ast.Node) {
	stageArgs(c, n.Args, []int{asm.RDI, asm.RSI, asm.RDX})
	c.Asm.MovRI64(asm.RAX, sysWrite)
	c.Asm.Syscall()
}

// compileFileClose lowers `FileClose(fd)` / `SocketClose(fd)`. Every fd
// this backend hands out is closed through this single wrapper, whatever
// exit path the caller takes, per spec.md §4.11 "File descriptors are
// closed on every exit path" — it is the AILANG source's responsibility
// to call it on every path; the wrapper itself is unconditional.
func compileFileClose(c *CompilationContext, n *ast.Node) {
	stageArgs(c, n.Args, []int{asm.RDI})
	c.Asm.MovRI64(asm.RAX, sysClose)
	c.Asm.Syscall()
}

// compileSocketCreate lowers `SocketCreate()`: a TCP/IPv4 stream socket
// (AF_INET=2, SOCK_STREAM=1, protocol=0).
func compileSocketCreate(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	a.MovRI64(asm.RDI, 2)
	a.MovRI64(asm.RSI, 1)
	a.XorRR(asm.RDX, asm.RDX)
	a.MovRI64(asm.RAX, sysSocket)
	a.Syscall()
}

// compileSocketBind lowers `SocketBind(fd, addr, port)`: builds a
// 16-byte sockaddr_in in the frame's temp region (family, big-endian
// port, addr, 8 bytes of padding) and calls bind(fd, &sockaddr, 16).
func compileSocketBind(c *CompilationContext, n *ast.Node) {
	if c.frame == nil {
		panic(newDiag(KindShape, 0, 0, "SocketBind used outside a function frame"))
	}
	a := c.Asm
	tmp := c.frame.tempOff

	compileExpr(c, n.Args[0], 0)
	a.PushR(asm.RAX) // fd
	compileExpr(c, n.Args[1], 0)
	a.PushR(asm.RAX) // addr (host byte order, already 0 for INADDR_ANY in the common case)
	compileExpr(c, n.Args[2], 0)
	a.PushR(asm.RAX) // port (host byte order)

	a.PopR(asm.RCX) // port
	a.PopR(asm.RDX) // addr
	a.PopR(asm.RBX) // fd

	// family (u16) | port (u16, byte-swapped) packed into the low 4 bytes.
	a.MovRR(asm.RAX, asm.RCX)
	emitByteSwap16(a, asm.RAX)
	a.ShlRI(asm.RAX, 16)
	a.OrRI(asm.RAX, 2) // AF_INET
	a.LeaLocal(tmp+sockAddrOff, asm.RDI)
	a.StoreMem(asm.RDI, 0, asm.RAX)
	a.StoreMem(asm.RDI, 4, asm.RDX) // addr
	a.StoreMem(asm.RDI, 8, zeroByteReg8(a))

	a.MovRR(asm.RDI, asm.RBX)
	a.LeaLocal(tmp+sockAddrOff, asm.RSI)
	a.MovRI64(asm.RDX, 16)
	a.MovRI64(asm.RAX, sysBind)
	a.Syscall()
}

// emitByteSwap16 swaps the low two bytes of reg's low 16 bits in place
// (`rol reg16, 8`), converting a host-order port into network order.
func emitByteSwap16(a *asm.Assembler, reg int) {
	a.EmitRaw(0x66, 0xC1, byte(0xC0|(reg&7)), 8)
}

func zeroByteReg8(a *asm.Assembler) int {
	a.XorRR(asm.R11, asm.R11)
	return asm.R11
}

// compileSocketListen lowers `SocketListen(fd, backlog)`.
func compileSocketListen(c *CompilationContext, n *ast.Node) {
	stageArgs(c, n.Args, []int{asm.RDI, asm.RSI})
	c.Asm.MovRI64(asm.RAX, sysListen)
	c.Asm.Syscall()
}

// compileSocketAccept lowers `SocketAccept(fd)`: `accept(fd, NULL, NULL)`.
func compileSocketAccept(c *CompilationContext, n *ast.Node) {
	a := c.Asm
	compileExpr(c, n.Args[0], 0)
	a.MovRR(asm.RDI, asm.RAX)
	a.XorRR(asm.RSI, asm.RSI)
	a.XorRR(asm.RDX, asm.RDX)
	a.MovRI64(asm.RAX, sysAccept)
	a.Syscall()
}
