package geometry

import (
	"fmt"
	"math"

	"github.com/notargets/FVKernel/element"
	"github.com/notargets/FVKernel/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	newtonMaxIter = 25
	newtonTol     = 1e-13
)

// ShapeFunctions evaluates the P1/Q1 basis of an element at a world point.
// Gradients are returned in world coordinates and lie in the element's
// line or plane.
func ShapeFunctions(ent element.Entity, p r3.Vec) (values []float64, grads []r3.Vec, err error) {
	c := ent.Corners
	switch ent.Type {
	case element.Line:
		t := r3.Sub(c[1], c[0])
		l2 := r3.Dot(t, t)
		xi := r3.Dot(r3.Sub(p, c[0]), t) / l2
		g := r3.Scale(1/l2, t)
		return []float64{1 - xi, xi}, []r3.Vec{r3.Scale(-1, g), g}, nil

	case element.Tri:
		fr := newFrame(c[0], c[1], c[2])
		J := mat.NewDense(2, 2, nil)
		x1, x2 := fr.local(c[1]), fr.local(c[2])
		J.Set(0, 0, x1[0])
		J.Set(1, 0, x1[1])
		J.Set(0, 1, x2[0])
		J.Set(1, 1, x2[1])

		var xi mat.VecDense
		if err = xi.SolveVec(J, mat.NewVecDense(2, fr.local(p))); err != nil {
			return nil, nil, fmt.Errorf("%w: triangle %d map: %v", utils.ErrNumericalProblem, ent.Index, err)
		}
		values = []float64{1 - xi.AtVec(0) - xi.AtVec(1), xi.AtVec(0), xi.AtVec(1)}
		grads, err = fr.gradients(J, [][2]float64{{-1, -1}, {1, 0}, {0, 1}})
		if err != nil {
			return nil, nil, fmt.Errorf("triangle %d: %w", ent.Index, err)
		}
		return values, grads, nil

	case element.Rectangle:
		fr := newFrame(c[0], c[1], c[2])
		xl := make([][]float64, 4)
		for i := range xl {
			xl[i] = fr.local(c[i])
		}
		target := fr.local(p)

		xi, eta := 0.5, 0.5
		J := mat.NewDense(2, 2, nil)
		for it := 0; ; it++ {
			if it == newtonMaxIter {
				return nil, nil, fmt.Errorf("%w: quadrilateral %d inverse map did not converge",
					utils.ErrNumericalProblem, ent.Index)
			}
			N, dN := bilinear(xi, eta)
			r := mat.NewVecDense(2, nil)
			J.Zero()
			for i := 0; i < 4; i++ {
				for d := 0; d < 2; d++ {
					r.SetVec(d, r.AtVec(d)+N[i]*xl[i][d])
					J.Set(d, 0, J.At(d, 0)+dN[i][0]*xl[i][d])
					J.Set(d, 1, J.At(d, 1)+dN[i][1]*xl[i][d])
				}
			}
			r.SubVec(r, mat.NewVecDense(2, target))

			var delta mat.VecDense
			if err = delta.SolveVec(J, r); err != nil {
				return nil, nil, fmt.Errorf("%w: quadrilateral %d map: %v", utils.ErrNumericalProblem, ent.Index, err)
			}
			xi -= delta.AtVec(0)
			eta -= delta.AtVec(1)
			if math.Abs(delta.AtVec(0))+math.Abs(delta.AtVec(1)) < newtonTol {
				break
			}
		}

		N, dN := bilinear(xi, eta)
		// J at the converged point
		J.Zero()
		for i := 0; i < 4; i++ {
			for d := 0; d < 2; d++ {
				J.Set(d, 0, J.At(d, 0)+dN[i][0]*xl[i][d])
				J.Set(d, 1, J.At(d, 1)+dN[i][1]*xl[i][d])
			}
		}
		grads, err = fr.gradients(J, dN[:])
		if err != nil {
			return nil, nil, fmt.Errorf("quadrilateral %d: %w", ent.Index, err)
		}
		return N[:], grads, nil
	}
	return nil, nil, fmt.Errorf("%w: shape functions for %s", utils.ErrUnsupported, ent.Type)
}

// bilinear returns the Q1 basis and its reference gradients for the
// lexicographic corner order (0,0), (1,0), (0,1), (1,1)
func bilinear(xi, eta float64) ([4]float64, [4][2]float64) {
	return [4]float64{
			(1 - xi) * (1 - eta), xi * (1 - eta), (1 - xi) * eta, xi * eta,
		}, [4][2]float64{
			{-(1 - eta), -(1 - xi)}, {1 - eta, -xi}, {-eta, 1 - xi}, {eta, xi},
		}
}

// frame is an orthonormal basis of a planar element's plane with origin at
// its first corner
type frame struct {
	origin, e1, e2 r3.Vec
}

func newFrame(c0, c1, c2 r3.Vec) frame {
	e1 := r3.Unit(r3.Sub(c1, c0))
	n := r3.Unit(r3.Cross(r3.Sub(c1, c0), r3.Sub(c2, c0)))
	return frame{origin: c0, e1: e1, e2: r3.Cross(n, e1)}
}

func (fr frame) local(p r3.Vec) []float64 {
	d := r3.Sub(p, fr.origin)
	return []float64{r3.Dot(d, fr.e1), r3.Dot(d, fr.e2)}
}

// gradients maps reference gradients to world gradients by solving
// J^T g = ghat per basis function
func (fr frame) gradients(J *mat.Dense, ref [][2]float64) ([]r3.Vec, error) {
	grads := make([]r3.Vec, len(ref))
	for i, gh := range ref {
		var g mat.VecDense
		if err := g.SolveVec(J.T(), mat.NewVecDense(2, []float64{gh[0], gh[1]})); err != nil {
			return nil, fmt.Errorf("%w: singular jacobian: %v", utils.ErrNumericalProblem, err)
		}
		grads[i] = r3.Add(r3.Scale(g.AtVec(0), fr.e1), r3.Scale(g.AtVec(1), fr.e2))
	}
	return grads, nil
}
