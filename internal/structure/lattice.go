package structure

import (
	"math"
)

// Lattice holds the three cell vectors as rows, in angstroms.
type Lattice [3][3]float64

// Lengths returns the lengths of the three cell vectors.
func (l Lattice) Lengths() [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = math.Sqrt(l[i][0]*l[i][0] + l[i][1]*l[i][1] + l[i][2]*l[i][2])
	}
	return out
}

// Angles returns the cell angles alpha, beta, gamma in degrees.
func (l Lattice) Angles() [3]float64 {
	lengths := l.Lengths()
	var out [3]float64
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		k := (i + 2) % 3
		cos := dot(l[j], l[k]) / (lengths[j] * lengths[k])
		cos = math.Max(-1, math.Min(1, cos))
		out[i] = math.Acos(cos) * 180 / math.Pi
	}
	return out
}

// Volume returns the (unsigned) cell volume.
func (l Lattice) Volume() float64 {
	return math.Abs(dot(l[0], cross(l[1], l[2])))
}

// Reciprocal returns the reciprocal lattice including the 2*pi factor.
func (l Lattice) Reciprocal() Lattice {
	v := dot(l[0], cross(l[1], l[2]))
	var rec Lattice
	for i := 0; i < 3; i++ {
		c := cross(l[(i+1)%3], l[(i+2)%3])
		for j := 0; j < 3; j++ {
			rec[i][j] = 2 * math.Pi * c[j] / v
		}
	}
	return rec
}

// FracToCart converts fractional coordinates to cartesian.
func (l Lattice) FracToCart(f [3]float64) [3]float64 {
	var c [3]float64
	for j := 0; j < 3; j++ {
		c[j] = f[0]*l[0][j] + f[1]*l[1][j] + f[2]*l[2][j]
	}
	return c
}

// CartToFrac converts cartesian coordinates to fractional.
func (l Lattice) CartToFrac(c [3]float64) [3]float64 {
	inv := l.inverse()
	var f [3]float64
	for j := 0; j < 3; j++ {
		f[j] = c[0]*inv[0][j] + c[1]*inv[1][j] + c[2]*inv[2][j]
	}
	return f
}

// IsHexagonal reports whether the cell has hexagonal metric: two equal
// in-plane lengths with a 120 degree angle between them and a
// perpendicular third axis.
func (l Lattice) IsHexagonal() bool {
	const lenTol = 1e-3
	const angTol = 0.5
	lengths := l.Lengths()
	angles := l.Angles()
	return math.Abs(lengths[0]-lengths[1]) < lenTol*lengths[0] &&
		math.Abs(angles[0]-90) < angTol &&
		math.Abs(angles[1]-90) < angTol &&
		math.Abs(angles[2]-120) < angTol
}

// IsCubic reports whether all lengths are equal and all angles are 90
// degrees, within tolerance.
func (l Lattice) IsCubic() bool {
	const lenTol = 1e-3
	const angTol = 0.5
	lengths := l.Lengths()
	angles := l.Angles()
	return math.Abs(lengths[0]-lengths[1]) < lenTol*lengths[0] &&
		math.Abs(lengths[1]-lengths[2]) < lenTol*lengths[1] &&
		math.Abs(angles[0]-90) < angTol &&
		math.Abs(angles[1]-90) < angTol &&
		math.Abs(angles[2]-90) < angTol
}

// inverse returns the matrix inverse of the lattice. Lattices with
// (near-)zero volume have no inverse; callers only hit this with valid
// periodic cells.
func (l Lattice) inverse() Lattice {
	det := dot(l[0], cross(l[1], l[2]))
	var inv Lattice
	for i := 0; i < 3; i++ {
		c := cross(l[(i+1)%3], l[(i+2)%3])
		for j := 0; j < 3; j++ {
			// transpose of the cofactor matrix over the determinant
			inv[j][i] = c[j] / det
		}
	}
	return inv
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func add(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale(a [3]float64, s float64) [3]float64 {
	return [3]float64{a[0] * s, a[1] * s, a[2] * s}
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}

// CubicLattice returns a simple cubic cell with lattice constant a.
func CubicLattice(a float64) Lattice {
	return Lattice{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}
