//go:build !cgo

package partitions

import "errors"

func (pb *PartitionBuilder) graphPartition(int) ([]int, error) {
	return nil, errors.New("graph partitioning needs METIS, build with cgo enabled")
}
