package geometry

import (
	"fmt"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// buildBox builds the vertex-centered dual grid. Every corner of an element
// owns one scv, every reference edge carries one scvf between the scvs of its
// two corners, and every corner of a boundary face gets a boundary scvf.
func (gg *GridGeometry) buildBox() error {
	if gg.props.Dimension > element.D2 {
		return fmt.Errorf("%w: box scheme on %d-D elements", utils.ErrUnsupported, gg.props.Dimension)
	}

	K := gg.props.NumElements
	gg.elementScvs = make([][]int, K)
	gg.elementScvfs = make([][]int, K)
	gg.numDofs = gg.props.NumVertices

	for e := 0; e < K; e++ {
		ent := gg.mesh.Element(e)
		ref, err := element.GetReferenceGeometry(ent.Type)
		if err != nil {
			return fmt.Errorf("element %d: %w: %v", e, utils.ErrUnsupported, err)
		}

		// Sub control volumes
		first := len(gg.scvs)
		for k := range ent.Corners {
			center, volume := boxScvMeasure(ent, ref, k)
			idx := len(gg.scvs)
			gg.scvs = append(gg.scvs, SubControlVolume{
				Index:          idx,
				IndexInElement: k,
				ElementIndex:   e,
				DofIndex:       ent.Vertices[k],
				Center:         center,
				Volume:         volume,
			})
			gg.elementScvs[e] = append(gg.elementScvs[e], idx)
		}

		// Interior faces, one per edge
		for _, edge := range ref.Edges {
			ci, cj := ent.Corners[edge[0]], ent.Corners[edge[1]]
			center, normal, area := boxEdgeFace(ent, ci, cj)
			gg.appendScvf(e, SubControlVolumeFace{
				FaceIndex:         -1,
				IntersectionIndex: -1,
				Center:            center,
				UnitOuterNormal:   normal,
				Area:              area,
				ScvIndices:        []int{first + edge[0], first + edge[1]},
			})
		}

		// Boundary faces, one per corner of each boundary intersection
		for f, is := range gg.mesh.Intersections(e) {
			if !is.Boundary {
				continue
			}
			for _, k := range ref.FaceVertices[f] {
				center, area := ent.Corners[k], 1.0
				if ent.Type.Dimension() == element.D2 {
					center = r3.Scale(0.5, r3.Add(ent.Corners[k], is.Center))
					area = 0.5 * is.Area
				}
				gg.appendScvf(e, SubControlVolumeFace{
					FaceIndex:         is.Face,
					IntersectionIndex: f,
					Center:            center,
					UnitOuterNormal:   is.UnitNormal,
					Area:              area,
					Boundary:          true,
					BoundaryMarker:    is.BoundaryMarker,
					ScvIndices:        []int{first + k},
				})
			}
		}
	}
	return nil
}

func (gg *GridGeometry) appendScvf(e int, s SubControlVolumeFace) {
	s.Index = len(gg.scvfs)
	s.IndexInElement = len(gg.elementScvfs[e])
	s.ElementIndex = e
	gg.scvfs = append(gg.scvfs, s)
	gg.elementScvfs[e] = append(gg.elementScvfs[e], s.Index)
}

// boxScvMeasure returns the center and measure of the scv of corner k
func boxScvMeasure(ent element.Entity, ref element.ReferenceGeometry, k int) (r3.Vec, float64) {
	ck := ent.Corners[k]
	if ent.Type.Dimension() == element.D1 {
		return r3.Scale(0.5, r3.Add(ck, ent.Center)), 0.5 * ent.Volume
	}

	// 2-D: quadrilateral (ck, ma, cc, mb) spanned by the two incident edges
	var mids []r3.Vec
	for _, edge := range ref.Edges {
		if edge[0] == k || edge[1] == k {
			mids = append(mids, r3.Scale(0.5, r3.Add(ent.Corners[edge[0]], ent.Corners[edge[1]])))
		}
	}
	utils.Assert(len(mids) == 2, "corner %d of %s has %d edges", k, ent.Type, len(mids))
	ma, mb, cc := mids[0], mids[1], ent.Center

	area := 0.5 * r3.Norm(r3.Cross(r3.Sub(cc, ck), r3.Sub(mb, ma)))
	center := r3.Scale(0.25, r3.Add(r3.Add(ck, ma), r3.Add(cc, mb)))
	return center, area
}

// boxEdgeFace returns the dual face crossing the edge ci-cj. The normal
// points from ci towards cj.
func boxEdgeFace(ent element.Entity, ci, cj r3.Vec) (center, normal r3.Vec, area float64) {
	d := r3.Sub(cj, ci)
	if ent.Type.Dimension() == element.D1 {
		return ent.Center, r3.Unit(d), 1
	}

	m := r3.Scale(0.5, r3.Add(ci, cj))
	t := r3.Sub(ent.Center, m)
	area = r3.Norm(t)
	t = r3.Scale(1/area, t)
	normal = r3.Unit(r3.Sub(d, r3.Scale(r3.Dot(d, t), t)))
	center = r3.Scale(0.5, r3.Add(m, ent.Center))
	return center, normal, area
}
