package geometry

import (
	"fmt"

	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// buildStaggered builds the face staggered grid of tensor-product elements.
// Every mesh face carries one dof and every element splits evenly into one
// scv per face, centered on the face where its dof lives. One scvf per axis
// crosses the element center between the scvs of opposite faces, and each
// boundary face gets a boundary scvf on the face itself.
func (gg *GridGeometry) buildStaggered() error {
	K := gg.props.NumElements
	gg.elementScvs = make([][]int, K)
	gg.elementScvfs = make([][]int, K)
	gg.numDofs = gg.props.NumFaces

	for e := 0; e < K; e++ {
		ent := gg.mesh.Element(e)
		if !ent.Type.IsCube() {
			return fmt.Errorf("element %d: %w: staggered grid on %s elements", e, utils.ErrUnsupported, ent.Type)
		}
		faces := gg.mesh.Intersections(e)

		first := len(gg.scvs)
		for k, is := range faces {
			idx := len(gg.scvs)
			gg.scvs = append(gg.scvs, SubControlVolume{
				Index:          idx,
				IndexInElement: k,
				ElementIndex:   e,
				DofIndex:       is.Face,
				Center:         is.Center,
				Volume:         ent.Volume / float64(len(faces)),
			})
			gg.elementScvs[e] = append(gg.elementScvs[e], idx)
		}

		// Faces 2a and 2a+1 are opposite, the normal points from 2a to 2a+1
		for a := 0; a+1 < len(faces); a += 2 {
			lo, hi := faces[a], faces[a+1]
			gg.appendScvf(e, SubControlVolumeFace{
				FaceIndex:         -1,
				IntersectionIndex: -1,
				Center:            ent.Center,
				UnitOuterNormal:   r3.Unit(r3.Sub(hi.Center, lo.Center)),
				Area:              0.5 * (lo.Area + hi.Area),
				ScvIndices:        []int{first + a, first + a + 1},
			})
		}

		for f, is := range faces {
			if !is.Boundary {
				continue
			}
			gg.appendScvf(e, SubControlVolumeFace{
				FaceIndex:         is.Face,
				IntersectionIndex: f,
				Center:            is.Center,
				UnitOuterNormal:   is.UnitNormal,
				Area:              is.Area,
				Boundary:          true,
				BoundaryMarker:    is.BoundaryMarker,
				ScvIndices:        []int{first + f},
			})
		}
	}
	return nil
}
