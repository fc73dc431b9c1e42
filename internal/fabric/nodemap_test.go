package fabric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeMapIsABijection(t *testing.T) {
	nm := NewNodeMap(8, 8, nil)
	seen := make(map[int]int)
	for dev := 0; dev < 16; dev++ {
		node := nm.Node(dev)
		seen[node]++
		assert.Equal(t, dev, nm.Device(node), "round trip device->node->device")
	}
	for node, count := range seen {
		assert.Equalf(t, 1, count, "node %d claimed by more than one device", node)
	}
}

func TestNodeMap8x8UsesThePresetMemorySlots(t *testing.T) {
	nm := NewNodeMap(8, 8, nil)
	for memIdx, slot := range preset8x8 {
		assert.Equal(t, 8+memIdx, nm.Device(slot))
	}
}

func TestNodeMapExplicitMemoryNodeMapIsRespected(t *testing.T) {
	explicit := []int{0, 2}
	nm := NewNodeMap(2, 2, explicit)
	assert.Equal(t, 2, nm.Device(0))
	assert.Equal(t, 3, nm.Device(2))
}

func TestNodeMapUnclaimedSlotsFillWithSMsInOrder(t *testing.T) {
	nm := NewNodeMap(3, 1, []int{1})
	require.Equal(t, 4, nm.NumNodes())
	assert.Equal(t, 3, nm.Device(1)) // memory partition 0 is device nShader+0
	// remaining slots 0,2,3 fill with SMs 0,1,2 in order
	assert.Equal(t, 0, nm.Device(0))
	assert.Equal(t, 1, nm.Device(2))
	assert.Equal(t, 2, nm.Device(3))
}

func TestGenerateMeshMemPositionsCoversEveryMemoryPartitionUniquely(t *testing.T) {
	for _, shape := range []struct{ shader, mem int }{{28, 8}, {56, 8}, {110, 11}} {
		positions := generateMeshMemPositions(shape.shader, shape.mem)
		require.Lenf(t, positions, shape.mem, "shape %+v", shape)
		seen := make(map[int]bool)
		for _, p := range positions {
			assert.Falsef(t, seen[p], "duplicate position %d for shape %+v", p, shape)
			seen[p] = true
			assert.GreaterOrEqual(t, p, 0)
			assert.Less(t, p, shape.shader+shape.mem)
		}
	}
}
