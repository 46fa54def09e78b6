package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetsStrictlyIncreasing(t *testing.T) {
	tab := New()
	tab.PushScope("function:main")
	prev := -1
	for i := 0; i < 20; i++ {
		sym := tab.Declare(&Symbol{
			Name:   string(rune('a' + i)),
			Kind:   KindVariable,
			Offset: (i + 1) * 8,
		})
		require.Greater(t, sym.Offset, prev)
		prev = sym.Offset
	}
}

func TestLookupWalksToGlobal(t *testing.T) {
	tab := New()
	tab.Declare(&Symbol{Name: "g", Kind: KindVariable, Offset: 8})
	tab.PushScope("function:f")
	tab.Declare(&Symbol{Name: "x", Kind: KindVariable, Offset: 8})

	sym, ok := tab.Lookup("", "x")
	require.True(t, ok)
	require.Equal(t, 8, sym.Offset)

	sym, ok = tab.Lookup("", "g")
	require.True(t, ok, "lookup must fall through to global scope")
	require.Equal(t, KindVariable, sym.Kind)

	_, ok = tab.Lookup("", "nope")
	require.False(t, ok)
}

func TestPoolIndexStability(t *testing.T) {
	tab := New()
	a := tab.DeclarePoolVar("Fixed.Counters.x")
	b := tab.DeclarePoolVar("Fixed.Counters.y")
	again := tab.DeclarePoolVar("Fixed.Counters.x")

	require.True(t, a.IsPoolVar())
	require.Equal(t, 0, a.PoolIndex())
	require.Equal(t, 1, b.PoolIndex())
	require.Equal(t, a.PoolIndex(), again.PoolIndex(), "re-declaring a pool var must keep its index")
	require.Equal(t, 2, tab.PoolCount())
}

func TestDuplicateDeclarationPanics(t *testing.T) {
	tab := New()
	tab.Declare(&Symbol{Name: "x", Kind: KindVariable, Offset: 8})
	require.Panics(t, func() {
		tab.Declare(&Symbol{Name: "x", Kind: KindVariable, Offset: 16})
	})
}

func TestJITInsertTracksCount(t *testing.T) {
	tab := New()
	require.Equal(t, 0, tab.JITInsertCount())
	tab.JITDeclare(&Symbol{Name: "missed", Kind: KindVariable, Offset: 8})
	require.Equal(t, 1, tab.JITInsertCount())
	_, ok := tab.Lookup("", "missed")
	require.True(t, ok)
}
