package compiler

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy spec.md §7 distinguishes.
type Kind int

const (
	KindParseSemantic Kind = iota
	KindShape
	KindResource
	KindUnresolvedRef
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindParseSemantic:
		return "semantic"
	case KindShape:
		return "shape"
	case KindResource:
		return "resource"
	case KindUnresolvedRef:
		return "unresolved-reference"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Diagnostic is the single error shape every pass surfaces (spec.md §7:
// "all errors abort compilation with a single diagnostic including the
// AST node's line and column when available").
type Diagnostic struct {
	Kind    Kind
	Message string
	Line    int
	Col     int
	cause   error
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s error at %d:%d: %s", d.Kind, d.Line, d.Col, d.Message)
	}
	return fmt.Sprintf("%s error: %s", d.Kind, d.Message)
}

// Unwrap exposes the wrapped cause so callers can use errors.Is/As
// against a lower-level failure (e.g. an asm.Assembler error).
func (d *Diagnostic) Unwrap() error { return d.cause }

func newDiag(kind Kind, line, col int, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{Kind: kind, Message: fmt.Sprintf(format, args...), Line: line, Col: col}
}

// wrap turns a lower-level error into an internal Diagnostic, retaining
// its cause chain via github.com/pkg/errors the way the rest of the
// pack's compiler-adjacent tools do (spec.md §3 AMBIENT).
func wrap(err error, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Kind:    KindInternal,
		Message: errors.Wrapf(err, format, args...).Error(),
		cause:   err,
	}
}
