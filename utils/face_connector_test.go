package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper building the slots of a chain of K cells: boundary slots at both
// ends plus one shared slot per interior face, owned by the left cell
func buildChainSlots(K int) (slotOwner []int, slotElements [][]int) {
	slotOwner = append(slotOwner, 0)
	slotElements = append(slotElements, []int{0})
	for e := 0; e < K-1; e++ {
		slotOwner = append(slotOwner, e)
		slotElements = append(slotElements, []int{e, e + 1})
	}
	slotOwner = append(slotOwner, K-1)
	slotElements = append(slotElements, []int{K - 1})
	return slotOwner, slotElements
}

func TestFaceConnector_ChainUnpartitioned(t *testing.T) {
	K := 6
	slotOwner, slotElements := buildChainSlots(K)
	EToP := make([]int, K)

	fc, err := NewFaceConnector(K, slotOwner, slotElements, EToP)
	if err != nil {
		t.Fatalf("Failed to create FaceConnector: %v", err)
	}

	if fc.NumPartitions != 1 {
		t.Errorf("Expected 1 partition, got %d", fc.NumPartitions)
	}

	work := fc.GetOwnedWork(0)
	if len(work) != K {
		t.Fatalf("Expected %d elements with work, got %d", K, len(work))
	}

	total := 0
	for i, w := range work {
		assert.Equal(t, i, w.Element, "work list must be ordered by element")
		total += len(w.Slots)
	}
	assert.Equal(t, len(slotOwner), total)
	assert.Equal(t, 0, fc.InterfaceSlotCount())

	if err := fc.Verify(); err != nil {
		t.Errorf("Verification failed: %v", err)
	}
}

func TestFaceConnector_ChainPartitioned(t *testing.T) {
	K := 6
	slotOwner, slotElements := buildChainSlots(K)
	EToP := []int{0, 0, 0, 1, 1, 1}

	fc, err := NewFaceConnector(K, slotOwner, slotElements, EToP)
	require.NoError(t, err)

	for p := 0; p < 2; p++ {
		t.Run(fmt.Sprintf("Partition%d", p), func(t *testing.T) {
			for _, w := range fc.GetOwnedWork(p) {
				assert.Equal(t, p, EToP[w.Element])
			}
			assert.Len(t, fc.GetOwnedWork(p), 3)
		})
	}

	t.Run("CrossPartitionSlots", func(t *testing.T) {
		// The face between cells 2 and 3 is slot 3, owned by cell 2
		assert.Equal(t, []int{3}, fc.SendSlots[0][1].Slots)
		assert.Equal(t, []int{3}, fc.RecvSlots[1][0].Slots)
		assert.Empty(t, fc.SendSlots[1][0].Slots)
		assert.Equal(t, 1, fc.InterfaceSlotCount())
	})

	require.NoError(t, fc.Verify())
}

func TestFaceConnector_BranchingJunction(t *testing.T) {
	// Three cells meeting at one junction, each with its own slot
	slotOwner := []int{0, 1, 2}
	slotElements := [][]int{{0, 1, 2}, {1, 0, 2}, {2, 0, 1}}
	EToP := []int{0, 1, 2}

	fc, err := NewFaceConnector(3, slotOwner, slotElements, EToP)
	require.NoError(t, err)
	require.NoError(t, fc.Verify())

	for p := 0; p < 3; p++ {
		for q := 0; q < 3; q++ {
			if p == q {
				continue
			}
			assert.Equal(t, []int{p}, fc.SendSlots[p][q].Slots, "send[%d][%d]", p, q)
		}
	}
	assert.Equal(t, 6, fc.InterfaceSlotCount())
}

func TestFaceConnector_InvalidInput(t *testing.T) {
	tests := []struct {
		name         string
		K            int
		slotOwner    []int
		slotElements [][]int
		EToP         []int
	}{
		{"ZeroElements", 0, nil, nil, nil},
		{"LengthMismatch", 2, []int{0}, [][]int{{0}, {1}}, []int{0, 0}},
		{"BadEToP", 2, []int{0}, [][]int{{0}}, []int{0}},
		{"NegativePartition", 2, []int{0}, [][]int{{0}}, []int{0, -1}},
		{"OwnerOutOfRange", 2, []int{5}, [][]int{{0}}, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFaceConnector(tt.K, tt.slotOwner, tt.slotElements, tt.EToP)
			assert.Error(t, err)
		})
	}
}

func TestFaceConnector_VerifyDetectsDoubleAssignment(t *testing.T) {
	K := 4
	slotOwner, slotElements := buildChainSlots(K)
	fc, err := NewFaceConnector(K, slotOwner, slotElements, []int{0, 0, 1, 1})
	require.NoError(t, err)

	// Hand the first slot to a second element as well
	fc.OwnedWork[1][0].Slots = append(fc.OwnedWork[1][0].Slots, 0)
	assert.Error(t, fc.Verify())
}
