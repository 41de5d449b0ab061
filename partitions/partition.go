package partitions

import (
	"fmt"
	"strings"

	"github.com/notargets/FVKernel/element"
)

// Partition represents a collection of elements processed by one worker
// during a flux-cache sweep or a residual assembly
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition
	NumElements int   // Actual number of active elements
	MaxElements int   // Largest partition size across the layout

	// Mixed element support
	ElementTypes []element.GeometryType // Type of each element (for heterogeneous meshes)
	TypeGroups   []ElementGroup         // Grouped by element type
}

// ElementGroup represents elements of the same type within a partition
type ElementGroup struct {
	ElementType element.GeometryType
	StartIndex  int   // Starting position in partition's element array
	Count       int   // Number of elements of this type
	LocalIDs    []int // Indices within the partition
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// Methods for PartitionLayout

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	// Verify KpartMax
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		for _, e := range p.Elements {
			if pl.GetPartition(e) != p.ID {
				return fmt.Errorf("element %d listed in partition %d but mapped to %d",
					e, p.ID, pl.GetPartition(e))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, layout expects %d", total, pl.TotalElements)
	}
	return nil
}

// SinglePartition returns a layout with every element in partition 0
func SinglePartition(numElements int) *PartitionLayout {
	elements := make([]int, numElements)
	for i := range elements {
		elements[i] = i
	}
	return &PartitionLayout{
		Partitions: []Partition{{
			ID:          0,
			Elements:    elements,
			NumElements: numElements,
			MaxElements: numElements,
		}},
		KpartMax:      numElements,
		TotalElements: numElements,
		NumPartitions: 1,
		EToP:          make([]int, numElements),
	}
}

// PartitionStats summarizes load balance and interface size
type PartitionStats struct {
	NumPartitions  int
	MinElements    int
	MaxElements    int
	AvgElements    float64
	Imbalance      float64 // MaxElements / AvgElements
	InterfaceFaces int     // Face views whose neighbor lives in another partition
}

func (s PartitionStats) String() string {
	var sb strings.Builder
	sb.WriteString("Partition Statistics\n")
	sb.WriteString("====================\n")
	sb.WriteString(fmt.Sprintf("Partitions: %d\n", s.NumPartitions))
	sb.WriteString(fmt.Sprintf("Elements per partition: min %d, max %d, avg %.1f\n",
		s.MinElements, s.MaxElements, s.AvgElements))
	sb.WriteString(fmt.Sprintf("Imbalance: %.3f\n", s.Imbalance))
	sb.WriteString(fmt.Sprintf("Interface faces: %d\n", s.InterfaceFaces))
	return sb.String()
}
