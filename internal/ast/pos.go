package ast

import "strings"

// PosTable maps a byte offset into source text to a 1-based line/column
// pair. The backend needs this only to satisfy spec.md §7's requirement
// that diagnostics carry line/column "when available" — spec.md §3
// leaves the offset-to-line/col mapping itself unspecified.
type PosTable struct {
	lineStarts []int
}

// NewPosTable scans src once and records the byte offset of the start
// of every line.
func NewPosTable(src string) *PosTable {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &PosTable{lineStarts: starts}
}

// LineCol returns the 1-based line and column for a byte offset. A
// negative pos yields line 0, col 0 (the "when available" case); a pos
// past the end of the source is reported on the last line.
func (t *PosTable) LineCol(pos int) (line, col int) {
	if pos < 0 {
		return 0, 0
	}
	// Binary search for the last line start <= pos.
	lo, hi := 0, len(t.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.lineStarts[mid] <= pos {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, pos - t.lineStarts[lo] + 1
}

// String renders "line:col" for use in diagnostic messages.
func (t *PosTable) String(pos int) string {
	line, col := t.LineCol(pos)
	if line == 0 {
		return "?:?"
	}
	var b strings.Builder
	b.WriteString(itoa(line))
	b.WriteByte(':')
	b.WriteString(itoa(col))
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
