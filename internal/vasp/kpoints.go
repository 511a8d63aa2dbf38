package vasp

import (
	"fmt"
	"math"

	"vaspflow/internal/structure"
	"vaspflow/pkg/errors"
)

// Kpoints is a resolved k-point sampling: either a regular grid with a
// centering style, or an explicit point list for band-structure lines.
type Kpoints struct {
	Grid  [3]int
	Gamma bool

	// Points holds explicit fractional k-points for line mode. When set,
	// Grid is ignored and Reciprocal is true.
	Points     [][3]float64
	Reciprocal bool
}

// Product returns the total number of grid points.
func (k *Kpoints) Product() int {
	if len(k.Points) > 0 {
		return len(k.Points)
	}
	n := k.Grid[0] * k.Grid[1] * k.Grid[2]
	if n == 0 {
		return 1
	}
	return n
}

// resolveAutoKpts turns an auto_kpts convenience mapping into a Kpoints
// value. Supported schemes: line_density, reciprocal_density,
// grid_density, length_density, max_mixed_density.
func resolveAutoKpts(s *structure.Structure, autoKpts map[string]interface{}, forceGamma bool) (*Kpoints, error) {
	get := Parameters(autoKpts)

	if v, ok := get.Float("line_density"); ok {
		return lineModeKpoints(s, v), nil
	}
	if pair, ok := get.Floats("max_mixed_density"); ok {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: max_mixed_density needs two values", errors.ErrUnknownKpointScheme)
		}
		byVol := automaticDensityByVol(s, pair[0], forceGamma)
		byAtoms := automaticDensity(s, pair[1], forceGamma)
		if byVol.Product() >= byAtoms.Product() {
			return byVol, nil
		}
		return byAtoms, nil
	}
	if v, ok := get.Float("reciprocal_density"); ok {
		return automaticDensityByVol(s, v, forceGamma), nil
	}
	if v, ok := get.Float("grid_density"); ok {
		return automaticDensity(s, v, forceGamma), nil
	}
	if lds, ok := get.Floats("length_density"); ok {
		if len(lds) != 3 {
			return nil, fmt.Errorf("%w: length_density needs three values", errors.ErrUnknownKpointScheme)
		}
		return automaticDensityByLengths(s, [3]float64{lds[0], lds[1], lds[2]}, forceGamma), nil
	}
	return nil, fmt.Errorf("%w: %v", errors.ErrUnknownKpointScheme, autoKpts)
}

// automaticDensity builds a grid from a target of kppa k-points per
// reciprocal atom. Near-perfect cubes are nudged up one percent to avoid
// degenerate floor results.
func automaticDensity(s *structure.Structure, kppa float64, forceGamma bool) *Kpoints {
	if cube := math.Floor(math.Cbrt(kppa) + 0.5); math.Abs(cube*cube*cube-kppa) < 1 {
		kppa += kppa * 0.01
	}
	lengths := s.Lattice.Lengths()
	ngrid := kppa / float64(s.Len())
	mult := math.Cbrt(ngrid * lengths[0] * lengths[1] * lengths[2])

	var grid [3]int
	for i := 0; i < 3; i++ {
		grid[i] = int(math.Floor(math.Max(mult/lengths[i], 1)))
	}
	return &Kpoints{Grid: grid, Gamma: gammaStyle(s.Lattice, grid, forceGamma)}
}

// automaticDensityByVol targets kppvol k-points per cubic angstrom of
// reciprocal space.
func automaticDensityByVol(s *structure.Structure, kppvol float64, forceGamma bool) *Kpoints {
	recVol := s.Lattice.Reciprocal().Volume()
	kppa := kppvol * recVol * float64(s.Len())
	return automaticDensity(s, kppa, forceGamma)
}

// automaticDensityByLengths picks each subdivision from a per-axis
// length density, rounded up. Useful for slabs where the c axis should
// stay at a single k-point.
func automaticDensityByLengths(s *structure.Structure, densities [3]float64, forceGamma bool) *Kpoints {
	lengths := s.Lattice.Lengths()
	var grid [3]int
	for i := 0; i < 3; i++ {
		n := int(math.Ceil(densities[i] / lengths[i]))
		if n < 1 {
			n = 1
		}
		grid[i] = n
	}
	return &Kpoints{Grid: grid, Gamma: gammaStyle(s.Lattice, grid, forceGamma)}
}

// gammaStyle selects gamma centering when any subdivision is odd, the
// cell is hexagonal, or gamma is forced; otherwise Monkhorst-Pack.
func gammaStyle(lat structure.Lattice, grid [3]int, forceGamma bool) bool {
	if forceGamma || lat.IsHexagonal() {
		return true
	}
	for _, n := range grid {
		if n%2 == 1 {
			return true
		}
	}
	return false
}

// highSymmetryPath is a generic set of fractional waypoints covering the
// zone center, face centers and the zone corner. It does not attempt
// full symmetry analysis; band-structure sampling here only needs a
// consistent, reproducible path.
var highSymmetryPath = [][3]float64{
	{0, 0, 0},
	{0.5, 0, 0},
	{0.5, 0.5, 0},
	{0, 0, 0},
	{0.5, 0.5, 0.5},
}

// lineModeKpoints samples the high-symmetry path with a number of points
// per segment proportional to its cartesian reciprocal length.
func lineModeKpoints(s *structure.Structure, lineDensity float64) *Kpoints {
	rec := s.Lattice.Reciprocal()
	var points [][3]float64
	for seg := 0; seg+1 < len(highSymmetryPath); seg++ {
		a := highSymmetryPath[seg]
		b := highSymmetryPath[seg+1]
		ca := rec.FracToCart(a)
		cb := rec.FracToCart(b)
		segLen := math.Sqrt((cb[0]-ca[0])*(cb[0]-ca[0]) +
			(cb[1]-ca[1])*(cb[1]-ca[1]) +
			(cb[2]-ca[2])*(cb[2]-ca[2]))
		n := int(math.Ceil(lineDensity * segLen))
		if n < 2 {
			n = 2
		}
		for i := 0; i < n; i++ {
			// Skip the segment start except on the first segment so
			// shared waypoints are not duplicated.
			if i == 0 && seg > 0 {
				continue
			}
			t := float64(i) / float64(n-1)
			points = append(points, [3]float64{
				a[0] + t*(b[0]-a[0]),
				a[1] + t*(b[1]-a[1]),
				a[2] + t*(b[2]-a[2]),
			})
		}
	}
	return &Kpoints{Points: points, Reciprocal: true}
}
