package utils

import (
	"fmt"
	"sort"
)

// FaceConnector assigns flux slots to the partitions that fill them
type FaceConnector struct {
	// Mesh dimensions
	NumPartitions int
	K             int // Total elements
	NumSlots      int // Total flux slots

	// Input connectivity
	SlotOwner    []int   // Slot → element owning the slot
	SlotElements [][]int // Slot → every element whose faces map to the slot
	EToP         []int   // Element → partition mapping

	// Work and interface lists
	OwnedWork [][]ElementWork // [partition] elements with the slots they fill
	SendSlots [][]SlotBuffer  // [ownerPartition][readerPartition]
	RecvSlots [][]SlotBuffer  // [readerPartition][ownerPartition]
}

// ElementWork lists the slots an element fills during a sweep
type ElementWork struct {
	Element int
	Slots   []int
}

// SlotBuffer lists slots crossing a partition interface
type SlotBuffer struct {
	Slots     []int
	Partition int // Partition on the other side
}

// NewFaceConnector creates a face connector from slot ownership
func NewFaceConnector(K int, slotOwner []int, slotElements [][]int, EToP []int) (*FaceConnector, error) {
	if K <= 0 {
		return nil, fmt.Errorf("invalid dimensions: K=%d", K)
	}
	if len(slotOwner) != len(slotElements) {
		return nil, fmt.Errorf("slot owner length %d does not match slot elements length %d",
			len(slotOwner), len(slotElements))
	}
	if len(EToP) != K {
		return nil, fmt.Errorf("EToP length %d does not match K=%d", len(EToP), K)
	}

	numPartitions := 0
	for _, p := range EToP {
		if p < 0 {
			return nil, fmt.Errorf("negative partition id %d in EToP", p)
		}
		if p+1 > numPartitions {
			numPartitions = p + 1
		}
	}

	fc := &FaceConnector{
		NumPartitions: numPartitions,
		K:             K,
		NumSlots:      len(slotOwner),
		SlotOwner:     slotOwner,
		SlotElements:  slotElements,
		EToP:          EToP,
	}

	fc.initializeBuffers()

	if err := fc.BuildIndices(); err != nil {
		return nil, err
	}

	return fc, nil
}

// initializeBuffers creates empty interface buffers
func (fc *FaceConnector) initializeBuffers() {
	fc.OwnedWork = make([][]ElementWork, fc.NumPartitions)
	fc.SendSlots = make([][]SlotBuffer, fc.NumPartitions)
	fc.RecvSlots = make([][]SlotBuffer, fc.NumPartitions)

	for p := 0; p < fc.NumPartitions; p++ {
		fc.SendSlots[p] = make([]SlotBuffer, fc.NumPartitions)
		fc.RecvSlots[p] = make([]SlotBuffer, fc.NumPartitions)
		for q := 0; q < fc.NumPartitions; q++ {
			fc.SendSlots[p][q] = SlotBuffer{Slots: make([]int, 0), Partition: q}
			fc.RecvSlots[p][q] = SlotBuffer{Slots: make([]int, 0), Partition: q}
		}
	}
}

// BuildIndices constructs work lists and interface slots for all partitions
func (fc *FaceConnector) BuildIndices() error {
	workIndex := make([]map[int]int, fc.NumPartitions) // [partition][elem] → position in OwnedWork
	for p := range workIndex {
		workIndex[p] = make(map[int]int)
	}

	for slot := 0; slot < fc.NumSlots; slot++ {
		owner := fc.SlotOwner[slot]
		if owner < 0 || owner >= fc.K {
			return fmt.Errorf("slot %d: owner element %d out of range", slot, owner)
		}
		p := fc.EToP[owner]

		pos, found := workIndex[p][owner]
		if !found {
			pos = len(fc.OwnedWork[p])
			workIndex[p][owner] = pos
			fc.OwnedWork[p] = append(fc.OwnedWork[p], ElementWork{Element: owner})
		}
		fc.OwnedWork[p][pos].Slots = append(fc.OwnedWork[p][pos].Slots, slot)

		// Every other partition reading this slot gets it once
		seen := map[int]bool{p: true}
		for _, elem := range fc.SlotElements[slot] {
			if elem < 0 || elem >= fc.K {
				return fmt.Errorf("slot %d: element %d out of range", slot, elem)
			}
			q := fc.EToP[elem]
			if seen[q] {
				continue
			}
			seen[q] = true
			fc.SendSlots[p][q].Slots = append(fc.SendSlots[p][q].Slots, slot)
			fc.RecvSlots[q][p].Slots = append(fc.RecvSlots[q][p].Slots, slot)
		}
	}

	for p := range fc.OwnedWork {
		sort.Slice(fc.OwnedWork[p], func(i, j int) bool {
			return fc.OwnedWork[p][i].Element < fc.OwnedWork[p][j].Element
		})
	}

	return nil
}

// GetOwnedWork returns the element work list of a partition
func (fc *FaceConnector) GetOwnedWork(partition int) []ElementWork {
	if partition < 0 || partition >= fc.NumPartitions {
		return nil
	}
	return fc.OwnedWork[partition]
}

// Verify checks that every slot is filled by exactly one partition and that
// interface lists agree from both sides
func (fc *FaceConnector) Verify() error {
	// Verify 1: Ownership - each slot appears in exactly one work list
	count := make([]int, fc.NumSlots)
	for p := 0; p < fc.NumPartitions; p++ {
		for _, w := range fc.OwnedWork[p] {
			if fc.EToP[w.Element] != p {
				return fmt.Errorf("element %d listed in partition %d but belongs to %d",
					w.Element, p, fc.EToP[w.Element])
			}
			for _, slot := range w.Slots {
				if slot < 0 || slot >= fc.NumSlots {
					return fmt.Errorf("invalid slot %d in partition %d (max %d)", slot, p, fc.NumSlots-1)
				}
				count[slot]++
			}
		}
	}
	for slot, c := range count {
		if c != 1 {
			return fmt.Errorf("slot %d assigned %d times", slot, c)
		}
	}

	// Verify 2: Correspondence - send and receive lists have the same length
	for p := 0; p < fc.NumPartitions; p++ {
		for q := 0; q < fc.NumPartitions; q++ {
			sendLen := len(fc.SendSlots[p][q].Slots)
			recvLen := len(fc.RecvSlots[q][p].Slots)
			if sendLen != recvLen {
				return fmt.Errorf("length mismatch: send[%d][%d]=%d, recv[%d][%d]=%d",
					p, q, sendLen, q, p, recvLen)
			}
		}
	}

	return nil
}

// InterfaceSlotCount returns the number of slots read across partitions
func (fc *FaceConnector) InterfaceSlotCount() int {
	total := 0
	for p := 0; p < fc.NumPartitions; p++ {
		for q := 0; q < fc.NumPartitions; q++ {
			if p != q {
				total += len(fc.SendSlots[p][q].Slots)
			}
		}
	}
	return total
}
