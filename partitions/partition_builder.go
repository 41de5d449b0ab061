package partitions

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/FVKernel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	// Partitioning parameters
	TargetPartitionSize int     // Desired elements per partition
	MaxImbalance        float64 // Acceptable load imbalance, 0 disables the check
	Strategy            PartitionStrategy

	// Element to partition map used by the Predefined strategy
	Predefined []int
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements  int
	ElementTypes []element.GeometryType
	Centers      []r3.Vec // Element centers, used by SpaceFillingCurve

	// Face connectivity for minimizing communication
	Neighbors [][]int // [elem] every element sharing a face, branching junctions included
}

// csrGraph returns the symmetric, duplicate free face graph in compressed
// row form
func (mc *MeshConnectivity) csrGraph() (xadj, adjncy []int32) {
	xadj = make([]int32, mc.NumElements+1)
	for e := 0; e < mc.NumElements; e++ {
		seen := map[int]bool{e: true}
		for _, n := range mc.Neighbors[e] {
			if seen[n] {
				continue
			}
			seen[n] = true
			adjncy = append(adjncy, int32(n))
		}
		xadj[e+1] = int32(len(adjncy))
	}
	return xadj, adjncy
}

// NewMeshConnectivity extracts partitioning input from a mesh
func NewMeshConnectivity(m element.Mesh) *MeshConnectivity {
	K := m.GetMeshProperties().NumElements
	mc := &MeshConnectivity{
		NumElements:  K,
		ElementTypes: make([]element.GeometryType, K),
		Centers:      make([]r3.Vec, K),
		Neighbors:    make([][]int, K),
	}
	for e := 0; e < K; e++ {
		ent := m.Element(e)
		mc.ElementTypes[e] = ent.Type
		mc.Centers[e] = ent.Center
		for _, is := range m.Intersections(e) {
			mc.Neighbors[e] = append(mc.Neighbors[e], is.Neighbors...)
		}
	}
	return mc
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition    // METIS k-way partitioning of the face graph
	SpaceFillingCurve // Morton curve ordering of element centers

	// Predefined uses an element-to-partition map read with the mesh
	Predefined
)

// ParseStrategy maps a configuration name to a strategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch name {
	case "", "block":
		return BlockPartition, nil
	case "roundrobin", "round-robin":
		return RoundRobin, nil
	case "graph":
		return GraphPartition, nil
	case "morton", "sfc":
		return SpaceFillingCurve, nil
	case "predefined", "file":
		return Predefined, nil
	}
	return BlockPartition, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumElements == 0 {
		return nil, fmt.Errorf("partition builder has no mesh")
	}

	var eToP []int
	var numPartitions int
	if pb.Strategy == Predefined {
		if len(pb.Predefined) != pb.Mesh.NumElements {
			return nil, fmt.Errorf("predefined partition map has %d entries, mesh has %d elements",
				len(pb.Predefined), pb.Mesh.NumElements)
		}
		eToP = append([]int(nil), pb.Predefined...)
		for _, p := range eToP {
			if p < 0 {
				return nil, fmt.Errorf("negative partition id %d", p)
			}
			numPartitions = max(numPartitions, p+1)
		}
	} else {
		// Determine number of partitions needed
		numPartitions = pb.calculateNumPartitions()

		// Partition the elements
		var err error
		if eToP, err = pb.partitionElements(numPartitions); err != nil {
			return nil, err
		}
	}

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := pb.calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	if pb.MaxImbalance > 0 {
		if stats := layout.PartitionStatistics(); stats.Imbalance > pb.MaxImbalance {
			return nil, fmt.Errorf("partition imbalance %.3f exceeds %.3f", stats.Imbalance, pb.MaxImbalance)
		}
	}

	return layout, nil
}

// calculateNumPartitions determines optimal partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	if pb.TargetPartitionSize <= 0 {
		return 1
	}
	numPartitions := int(math.Ceil(float64(pb.Mesh.NumElements) / float64(pb.TargetPartitionSize)))

	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	eToP := make([]int, pb.Mesh.NumElements)

	switch pb.Strategy {
	case BlockPartition:
		elementsPerPartition := int(math.Ceil(float64(pb.Mesh.NumElements) / float64(numPartitions)))
		for i := 0; i < pb.Mesh.NumElements; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}

	case RoundRobin:
		for i := 0; i < pb.Mesh.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	case SpaceFillingCurve:
		if len(pb.Mesh.Centers) != pb.Mesh.NumElements {
			return pb.partitionWithStrategy(BlockPartition, numPartitions)
		}
		order := mortonOrder(pb.Mesh.Centers)
		elementsPerPartition := int(math.Ceil(float64(pb.Mesh.NumElements) / float64(numPartitions)))
		for rank, elem := range order {
			eToP[elem] = min(rank/elementsPerPartition, numPartitions-1)
		}

	case GraphPartition:
		return pb.graphPartition(numPartitions)

	default:
		return nil, fmt.Errorf("strategy %d has no element assignment", pb.Strategy)
	}

	return eToP, nil
}

// partitionWithStrategy recursively applies a different strategy
func (pb *PartitionBuilder) partitionWithStrategy(strategy PartitionStrategy, numPartitions int) ([]int, error) {
	oldStrategy := pb.Strategy
	pb.Strategy = strategy
	result, err := pb.partitionElements(numPartitions)
	pb.Strategy = oldStrategy
	return result, err
}

// mortonOrder sorts elements along a Z-order curve through their centers
func mortonOrder(centers []r3.Vec) []int {
	lo := centers[0]
	hi := centers[0]
	for _, c := range centers[1:] {
		lo = r3.Vec{X: math.Min(lo.X, c.X), Y: math.Min(lo.Y, c.Y), Z: math.Min(lo.Z, c.Z)}
		hi = r3.Vec{X: math.Max(hi.X, c.X), Y: math.Max(hi.Y, c.Y), Z: math.Max(hi.Z, c.Z)}
	}

	const bits = 10
	quantize := func(v, l, h float64) uint64 {
		if h <= l {
			return 0
		}
		return uint64((v - l) / (h - l) * float64(1<<bits-1))
	}

	keys := make([]uint64, len(centers))
	for i, c := range centers {
		x := quantize(c.X, lo.X, hi.X)
		y := quantize(c.Y, lo.Y, hi.Y)
		z := quantize(c.Z, lo.Z, hi.Z)
		var key uint64
		for b := 0; b < bits; b++ {
			key |= (x>>b&1)<<(3*b) | (y>>b&1)<<(3*b+1) | (z>>b&1)<<(3*b+2)
		}
		keys[i] = key
	}

	order := make([]int, len(centers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return keys[order[i]] < keys[order[j]] })
	return order
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:           i,
			Elements:     make([]int, 0),
			ElementTypes: make([]element.GeometryType, 0),
		}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		if pb.Mesh.ElementTypes != nil {
			partitions[part].ElementTypes = append(partitions[part].ElementTypes,
				pb.Mesh.ElementTypes[elem])
		}
		partitions[part].NumElements++
	}

	// Create element groups for mixed meshes
	for i := range partitions {
		partitions[i].TypeGroups = pb.createElementGroups(&partitions[i])
	}

	return partitions
}

// createElementGroups organizes elements by type within a partition
func (pb *PartitionBuilder) createElementGroups(p *Partition) []ElementGroup {
	if len(p.ElementTypes) == 0 {
		return nil
	}

	typeCounts := make(map[element.GeometryType][]int)
	var types []element.GeometryType
	for i, elemType := range p.ElementTypes {
		if _, found := typeCounts[elemType]; !found {
			types = append(types, elemType)
		}
		typeCounts[elemType] = append(typeCounts[elemType], i)
	}

	groups := make([]ElementGroup, 0, len(typeCounts))
	currentIndex := 0
	for _, elemType := range types {
		indices := typeCounts[elemType]
		groups = append(groups, ElementGroup{
			ElementType: elemType,
			StartIndex:  currentIndex,
			Count:       len(indices),
			LocalIDs:    indices,
		})
		currentIndex += len(indices)
	}

	return groups
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// FaceCommunication describes a face whose neighbor lives in another partition
type FaceCommunication struct {
	LocalElement    int // Element index within partition
	GlobalElement   int // Global element index
	RemotePartition int // Partition of the neighbor
	RemoteElement   int // Global element ID in remote partition
}

// analyzePartitionCommunication determines which face views cross partitions
func analyzePartitionCommunication(layout *PartitionLayout, mesh *MeshConnectivity) map[int][]FaceCommunication {
	patterns := make(map[int][]FaceCommunication)

	for partID, partition := range layout.Partitions {
		var faceComm []FaceCommunication

		for localElemIdx := 0; localElemIdx < partition.NumElements; localElemIdx++ {
			globalElem := partition.Elements[localElemIdx]

			for _, neighbor := range mesh.Neighbors[globalElem] {
				neighborPart := layout.GetPartition(neighbor)
				if neighborPart != partID && neighborPart >= 0 {
					faceComm = append(faceComm, FaceCommunication{
						LocalElement:    localElemIdx,
						GlobalElement:   globalElem,
						RemotePartition: neighborPart,
						RemoteElement:   neighbor,
					})
				}
			}
		}
		patterns[partID] = faceComm
	}

	return patterns
}

// validateCommunicationSymmetry verifies that if partition A sees partition
// B across n faces then B sees A across n faces
func validateCommunicationSymmetry(patterns map[int][]FaceCommunication) error {
	sendMap := make(map[string]int) // "sender:receiver" -> count
	for senderID, faces := range patterns {
		for _, fc := range faces {
			sendMap[fmt.Sprintf("%d:%d", senderID, fc.RemotePartition)]++
		}
	}

	for key, count := range sendMap {
		var a, b int
		if _, err := fmt.Sscanf(key, "%d:%d", &a, &b); err != nil {
			return err
		}
		reverse := sendMap[fmt.Sprintf("%d:%d", b, a)]
		if reverse != count {
			return fmt.Errorf("count mismatch: partition %d sees %d faces of %d, but %d sees %d",
				a, count, b, b, reverse)
		}
	}

	return nil
}

// AnalyzeInterfaces computes load balance and interface statistics and
// checks that the interface is symmetric
func (layout *PartitionLayout) AnalyzeInterfaces(mesh *MeshConnectivity) (PartitionStats, error) {
	stats := layout.PartitionStatistics()
	patterns := analyzePartitionCommunication(layout, mesh)
	if err := validateCommunicationSymmetry(patterns); err != nil {
		return stats, fmt.Errorf("asymmetric partition interface: %w", err)
	}
	for _, faces := range patterns {
		stats.InterfaceFaces += len(faces)
	}
	return stats, nil
}

// PartitionStatistics computes load balance metrics
func (layout *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: layout.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(layout.TotalElements) / float64(layout.NumPartitions),
	}

	for _, p := range layout.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements

	return stats
}
