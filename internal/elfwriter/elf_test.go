package elfwriter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeLayoutPageAlignsData(t *testing.T) {
	layout := ComputeLayout(100, 50, 0)
	require.Equal(t, DefaultBaseAddr, int(layout.BaseAddr))
	require.Equal(t, 0x1000, layout.TextFileOffset)
	require.Equal(t, DefaultBaseAddr+0x1000, int(layout.TextVAddr))
	require.Equal(t, 0, layout.DataFileOffset%pageSize)
	require.Equal(t, layout.BaseAddr+uint64(layout.DataFileOffset), layout.DataVAddr)
	require.Equal(t, layout.TextVAddr, layout.EntryVAddr)
}

func TestEmitProducesTwoLoadSegmentsAndPreservesPayload(t *testing.T) {
	code := []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0xC3} // mov eax,1; ret
	data := []byte("hello\x00")
	layout := ComputeLayout(len(code), len(data), 0)
	out := Emit(layout, code, data)

	require.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, out[0:4])
	require.Equal(t, byte(2), out[4], "ELFCLASS64")
	require.EqualValues(t, phdrSize, le16(out[54:]), "e_phentsize")
	require.EqualValues(t, 2, le16(out[56:]), "e_phnum")

	gotCode := out[layout.TextFileOffset : layout.TextFileOffset+len(code)]
	require.Equal(t, code, gotCode)
	gotData := out[layout.DataFileOffset : layout.DataFileOffset+len(data)]
	require.Equal(t, data, gotData)
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
