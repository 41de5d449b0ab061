package partitions

import (
	"fmt"
	"testing"

	"github.com/notargets/FVKernel/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// chainConnectivity builds a 1-D chain of K line elements
func chainConnectivity(K int) *MeshConnectivity {
	mc := &MeshConnectivity{
		NumElements:  K,
		ElementTypes: make([]element.GeometryType, K),
		Centers:      make([]r3.Vec, K),
		Neighbors:    make([][]int, K),
	}
	for e := 0; e < K; e++ {
		mc.ElementTypes[e] = element.Line
		mc.Centers[e] = r3.Vec{X: float64(e) + 0.5}
		if e > 0 {
			mc.Neighbors[e] = append(mc.Neighbors[e], e-1)
		}
		if e < K-1 {
			mc.Neighbors[e] = append(mc.Neighbors[e], e+1)
		}
	}
	return mc
}

func TestBuildPartitions(t *testing.T) {
	tests := []struct {
		name     string
		strategy PartitionStrategy
		expected []int
	}{
		{"Block", BlockPartition, []int{0, 0, 0, 1, 1, 1, 2, 2}},
		{"RoundRobin", RoundRobin, []int{0, 1, 2, 0, 1, 2, 0, 1}},
		{"Morton", SpaceFillingCurve, []int{0, 0, 0, 1, 1, 1, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb := &PartitionBuilder{
				Mesh:                chainConnectivity(8),
				TargetPartitionSize: 3,
				Strategy:            tt.strategy,
			}
			layout, err := pb.BuildPartitions()
			require.NoError(t, err)

			assert.Equal(t, 3, layout.NumPartitions)
			assert.Equal(t, tt.expected, layout.EToP)
			assert.Equal(t, 8, layout.TotalElements)
			assert.Equal(t, 3, layout.KpartMax)
			require.NoError(t, layout.ValidateLayout())

			for _, p := range layout.Partitions {
				require.Len(t, p.TypeGroups, 1)
				assert.Equal(t, element.Line, p.TypeGroups[0].ElementType)
				assert.Equal(t, p.NumElements, p.TypeGroups[0].Count)
			}
		})
	}
}

func TestBuildPartitionsPredefined(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:       chainConnectivity(4),
		Strategy:   Predefined,
		Predefined: []int{1, 0, 1, 0},
	}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)
	assert.Equal(t, 2, layout.NumPartitions)
	assert.Equal(t, []int{1, 3}, layout.Partitions[0].Elements)

	pb.Predefined = []int{0, 0}
	_, err = pb.BuildPartitions()
	assert.Error(t, err)
}

func TestBuildPartitionsImbalance(t *testing.T) {
	pb := &PartitionBuilder{
		Mesh:                chainConnectivity(7),
		TargetPartitionSize: 3,
		MaxImbalance:        1.1,
	}
	// Blocks of 3, 3, 1 give max/avg = 3/(7/3)
	_, err := pb.BuildPartitions()
	assert.Error(t, err)
}

func TestAnalyzeInterfaces(t *testing.T) {
	mc := chainConnectivity(6)
	pb := &PartitionBuilder{Mesh: mc, TargetPartitionSize: 2}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	stats, err := layout.AnalyzeInterfaces(mc)
	require.NoError(t, err)

	// Cuts between 1|2 and 3|4 are seen from both sides
	assert.Equal(t, 4, stats.InterfaceFaces)
	assert.Equal(t, 3, stats.NumPartitions)
	assert.Equal(t, 2, stats.MinElements)
	assert.InDelta(t, 1.0, stats.Imbalance, 1e-12)
	assert.Contains(t, stats.String(), "Interface faces: 4")
}

func TestValidateCommunicationSymmetry(t *testing.T) {
	patterns := map[int][]FaceCommunication{
		0: {{GlobalElement: 0, RemotePartition: 1, RemoteElement: 1}},
		1: {},
	}
	assert.Error(t, validateCommunicationSymmetry(patterns))

	patterns[1] = []FaceCommunication{{GlobalElement: 1, RemotePartition: 0, RemoteElement: 0}}
	assert.NoError(t, validateCommunicationSymmetry(patterns))
}

func TestValidateLayoutDetectsMismatch(t *testing.T) {
	layout := SinglePartition(4)
	require.NoError(t, layout.ValidateLayout())
	assert.Equal(t, 0, layout.GetPartition(3))
	assert.Equal(t, -1, layout.GetPartition(4))

	layout.KpartMax = 5
	err := layout.ValidateLayout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("KpartMax %d", 5))
}

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]PartitionStrategy{
		"":           BlockPartition,
		"block":      BlockPartition,
		"roundrobin": RoundRobin,
		"morton":     SpaceFillingCurve,
		"graph":      GraphPartition,
		"predefined": Predefined,
	} {
		got, err := ParseStrategy(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseStrategy("metis")
	assert.Error(t, err)
}

func TestCSRGraph(t *testing.T) {
	mc := chainConnectivity(3)
	// A repeated neighbor and a self loop are dropped
	mc.Neighbors[1] = append(mc.Neighbors[1], 0, 1)
	xadj, adjncy := mc.csrGraph()
	assert.Equal(t, []int32{0, 1, 3, 4}, xadj)
	assert.Equal(t, []int32{1, 0, 2, 1}, adjncy)
}
