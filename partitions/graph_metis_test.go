//go:build cgo

package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphPartition(t *testing.T) {
	t.Run("Chain", func(t *testing.T) {
		mc := chainConnectivity(8)
		pb := &PartitionBuilder{Mesh: mc, TargetPartitionSize: 4, Strategy: GraphPartition}
		layout, err := pb.BuildPartitions()
		require.NoError(t, err)
		require.NoError(t, layout.ValidateLayout())

		assert.Equal(t, 2, layout.NumPartitions)
		assert.Len(t, layout.EToP, 8)
		for _, p := range layout.Partitions {
			assert.Positive(t, p.NumElements, "partition %d", p.ID)
		}
		stats, err := layout.AnalyzeInterfaces(mc)
		require.NoError(t, err)
		assert.Positive(t, stats.InterfaceFaces)
	})

	t.Run("SinglePartition", func(t *testing.T) {
		pb := &PartitionBuilder{Mesh: chainConnectivity(5), Strategy: GraphPartition}
		layout, err := pb.BuildPartitions()
		require.NoError(t, err)
		assert.Equal(t, []int{0, 0, 0, 0, 0}, layout.EToP)
	})
}
