package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLProviderHappyPath(t *testing.T) {
	r := strings.NewReader(`{"launch":{"grid_dim":[1,1,1],"block_dim":[32,1,1]},"instructions":[{"warp_id":0,"pc":16,"opcode":"FFMA"}]}` + "\n")
	p := NewJSONLProvider(r)

	launch, insts, ok, err := p.NextBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [3]int{32, 1, 1}, launch.BlockDim)
	require.Len(t, insts, 1)
	assert.Equal(t, uint64(16), insts[0].PC)
	assert.Equal(t, "FFMA", insts[0].Opcode)

	_, _, ok, err = p.NextBlock()
	assert.NoError(t, err)
	assert.False(t, ok, "exhausted after one record")
}

func TestJSONLProviderSkipsEmptyLines(t *testing.T) {
	r := strings.NewReader("\n\n" + `{"launch":{},"instructions":[]}` + "\n")
	p := NewJSONLProvider(r)
	_, insts, ok, err := p.NextBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, insts)
}

func TestJSONLProviderMalformedLineReturnsError(t *testing.T) {
	r := strings.NewReader(`{not valid json`)
	p := NewJSONLProvider(r)
	_, _, ok, err := p.NextBlock()
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestJSONLProviderEmptyReaderExhaustsImmediately(t *testing.T) {
	p := NewJSONLProvider(strings.NewReader(""))
	_, _, ok, err := p.NextBlock()
	assert.NoError(t, err)
	assert.False(t, ok)
}
