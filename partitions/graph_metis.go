//go:build cgo

package partitions

import (
	"fmt"

	metis "github.com/notargets/go-metis"
)

// defaultGraphImbalance is the load tolerance handed to METIS when the
// builder sets none
const defaultGraphImbalance = 1.05

// graphPartition splits the face graph of the mesh with METIS k-way
// partitioning, minimizing the number of cut faces
func (pb *PartitionBuilder) graphPartition(numPartitions int) ([]int, error) {
	K := pb.Mesh.NumElements
	if numPartitions == 1 {
		return make([]int, K), nil
	}

	xadj, adjncy := pb.Mesh.csrGraph()
	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	opts[metis.OptionObjType] = metis.ObjTypeCut

	ubvec := []float32{defaultGraphImbalance}
	if pb.MaxImbalance > 1 {
		ubvec[0] = float32(pb.MaxImbalance)
	}

	part, _, err := metis.PartGraphKwayWeighted(xadj, adjncy, nil, nil,
		int32(numPartitions), nil, ubvec, opts)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}

	eToP := make([]int, K)
	for i := range eToP {
		eToP[i] = int(part[i])
	}
	return eToP, nil
}
