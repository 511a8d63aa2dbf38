// Package structure provides periodic atomic structures and the geometry
// operations the slab generator and calculator configurator need: deep
// copies across job boundaries, supercell replication, vertical flips,
// minimum-image distances, and a small built-in molecule table.
package structure

import (
	"fmt"
	"math"
	"sort"
)

// Structure is a periodic (or, for molecules, non-periodic) arrangement
// of atoms. Positions are cartesian angstroms. The per-site slices are
// nil when the corresponding property has never been set; a nil Free
// slice means every atom is free to move.
//
// Structures are shared across job boundaries in serialized form, so any
// in-place mutation must happen on a Copy.
type Structure struct {
	Symbols   []string
	Positions [][3]float64
	Lattice   Lattice
	Periodic  bool

	// InitialMagmoms are input magnetic moments for the next calculation.
	InitialMagmoms []float64
	// Magmoms are converged per-atom moments from a finished calculation.
	Magmoms []float64
	// Free marks atoms allowed to move under selective dynamics.
	Free []bool

	// Info carries provenance metadata (slab stats, adsorbate records).
	// Values must stay JSON-serializable.
	Info map[string]interface{}
}

// New creates an empty periodic structure with the given lattice.
func New(lattice Lattice) *Structure {
	return &Structure{
		Lattice:  lattice,
		Periodic: true,
		Info:     make(map[string]interface{}),
	}
}

// Len returns the number of atoms.
func (s *Structure) Len() int {
	return len(s.Symbols)
}

// AddAtom appends one atom at a cartesian position.
func (s *Structure) AddAtom(symbol string, pos [3]float64) {
	s.Symbols = append(s.Symbols, symbol)
	s.Positions = append(s.Positions, pos)
	if s.InitialMagmoms != nil {
		s.InitialMagmoms = append(s.InitialMagmoms, 0)
	}
	if s.Magmoms != nil {
		s.Magmoms = append(s.Magmoms, 0)
	}
	if s.Free != nil {
		s.Free = append(s.Free, true)
	}
}

// Copy returns a deep copy. Info is copied one level deep plus nested
// maps and slices, which covers everything the workflow layer stores.
func (s *Structure) Copy() *Structure {
	c := &Structure{
		Symbols:   append([]string(nil), s.Symbols...),
		Positions: append([][3]float64(nil), s.Positions...),
		Lattice:   s.Lattice,
		Periodic:  s.Periodic,
		Info:      deepCopyMap(s.Info),
	}
	if s.InitialMagmoms != nil {
		c.InitialMagmoms = append([]float64(nil), s.InitialMagmoms...)
	}
	if s.Magmoms != nil {
		c.Magmoms = append([]float64(nil), s.Magmoms...)
	}
	if s.Free != nil {
		c.Free = append([]bool(nil), s.Free...)
	}
	return c
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return make(map[string]interface{})
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// HasInitialMagmoms reports whether initial moments have been set.
func (s *Structure) HasInitialMagmoms() bool {
	return s.InitialMagmoms != nil
}

// SetInitialMagmoms sets the initial moments. Passing nil clears them.
func (s *Structure) SetInitialMagmoms(m []float64) {
	if m == nil {
		s.InitialMagmoms = nil
		return
	}
	s.InitialMagmoms = append([]float64(nil), m...)
}

// AtomicNumbers returns the per-atom atomic numbers.
func (s *Structure) AtomicNumbers() []int {
	out := make([]int, s.Len())
	for i, sym := range s.Symbols {
		out[i] = AtomicNumber(sym)
	}
	return out
}

// MaxAtomicNumber returns the largest atomic number present, 0 if empty.
func (s *Structure) MaxAtomicNumber() int {
	max := 0
	for _, sym := range s.Symbols {
		if z := AtomicNumber(sym); z > max {
			max = z
		}
	}
	return max
}

// ChemicalFormula returns the formula with element counts in Hill order
// (C first, H second, then alphabetical).
func (s *Structure) ChemicalFormula() string {
	counts := make(map[string]int)
	for _, sym := range s.Symbols {
		counts[sym]++
	}
	symbols := make([]string, 0, len(counts))
	for sym := range counts {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool {
		return hillRank(symbols[i]) < hillRank(symbols[j])
	})
	formula := ""
	for _, sym := range symbols {
		if counts[sym] == 1 {
			formula += sym
		} else {
			formula += fmt.Sprintf("%s%d", sym, counts[sym])
		}
	}
	return formula
}

func hillRank(symbol string) string {
	switch symbol {
	case "C":
		return "0"
	case "H":
		return "1"
	default:
		return "2" + symbol
	}
}

// FracCoords returns the fractional coordinates of every atom.
func (s *Structure) FracCoords() [][3]float64 {
	out := make([][3]float64, s.Len())
	for i, p := range s.Positions {
		out[i] = s.Lattice.CartToFrac(p)
	}
	return out
}

// Wrap maps all atoms back into the unit cell along periodic directions.
func (s *Structure) Wrap() {
	if !s.Periodic {
		return
	}
	for i, p := range s.Positions {
		f := s.Lattice.CartToFrac(p)
		for j := 0; j < 3; j++ {
			f[j] -= math.Floor(f[j])
		}
		s.Positions[i] = s.Lattice.FracToCart(f)
	}
}

// Translate shifts all atoms by a cartesian vector.
func (s *Structure) Translate(v [3]float64) {
	for i := range s.Positions {
		s.Positions[i] = add(s.Positions[i], v)
	}
}

// Supercell replicates the cell na x nb x nc times. Per-site properties
// are replicated with the atoms; Info is carried over unchanged.
func (s *Structure) Supercell(na, nb, nc int) *Structure {
	if na < 1 || nb < 1 || nc < 1 {
		na, nb, nc = maxInt(na, 1), maxInt(nb, 1), maxInt(nc, 1)
	}
	out := &Structure{
		Lattice: Lattice{
			scale(s.Lattice[0], float64(na)),
			scale(s.Lattice[1], float64(nb)),
			scale(s.Lattice[2], float64(nc)),
		},
		Periodic: s.Periodic,
		Info:     deepCopyMap(s.Info),
	}
	for ia := 0; ia < na; ia++ {
		for ib := 0; ib < nb; ib++ {
			for ic := 0; ic < nc; ic++ {
				shift := add(add(scale(s.Lattice[0], float64(ia)), scale(s.Lattice[1], float64(ib))), scale(s.Lattice[2], float64(ic)))
				for i := range s.Symbols {
					out.Symbols = append(out.Symbols, s.Symbols[i])
					out.Positions = append(out.Positions, add(s.Positions[i], shift))
					if s.InitialMagmoms != nil {
						out.InitialMagmoms = append(out.InitialMagmoms, s.InitialMagmoms[i])
					}
					if s.Magmoms != nil {
						out.Magmoms = append(out.Magmoms, s.Magmoms[i])
					}
					if s.Free != nil {
						out.Free = append(out.Free, s.Free[i])
					}
				}
			}
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// FlipZ returns a vertically inverted copy: a 180 degree rotation about
// the first in-plane axis expressed in fractional coordinates, wrapped
// back into the cell. Info is preserved on the copy.
func (s *Structure) FlipZ() *Structure {
	out := s.Copy()
	for i, p := range out.Positions {
		f := out.Lattice.CartToFrac(p)
		f[1] = -f[1]
		f[2] = -f[2]
		out.Positions[i] = out.Lattice.FracToCart(f)
	}
	out.Wrap()
	return out
}

// DistanceMIC returns the minimum-image distance between atoms i and j.
func (s *Structure) DistanceMIC(i, j int) float64 {
	return s.distanceMICPoint(s.Positions[i], s.Positions[j])
}

// DistanceMatrixMIC returns all-pairs minimum-image distances.
func (s *Structure) DistanceMatrixMIC() [][]float64 {
	n := s.Len()
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist := s.DistanceMIC(i, j)
			d[i][j] = dist
			d[j][i] = dist
		}
	}
	return d
}

// DistancesToPoint returns minimum-image distances from every atom to a
// cartesian point.
func (s *Structure) DistancesToPoint(p [3]float64) []float64 {
	out := make([]float64, s.Len())
	for i, q := range s.Positions {
		out[i] = s.distanceMICPoint(q, p)
	}
	return out
}

// distanceMICPoint scans the 27 neighbor images, which is exact for cells
// whose shortest perpendicular width exceeds twice the distance of
// interest. Slab and bulk cells used here satisfy that.
func (s *Structure) distanceMICPoint(a, b [3]float64) float64 {
	if !s.Periodic {
		return norm(sub(a, b))
	}
	best := math.Inf(1)
	for ia := -1; ia <= 1; ia++ {
		for ib := -1; ib <= 1; ib++ {
			for ic := -1; ic <= 1; ic++ {
				shift := add(add(scale(s.Lattice[0], float64(ia)), scale(s.Lattice[1], float64(ib))), scale(s.Lattice[2], float64(ic)))
				d := norm(sub(add(b, shift), a))
				if d < best {
					best = d
				}
			}
		}
	}
	return best
}
