// Package surface generates vacuum-padded slabs from bulk crystals and
// places adsorbates on their binding sites. Both generators return nil
// (not an empty slice) when nothing survives filtering, so workflow code
// can branch on "no valid expansion" without inventing an error.
package surface

import (
	"vaspflow/internal/structure"
)

// Slab is a finite-thickness periodic cut of a bulk crystal. The embedded
// structure is oriented with the surface normal along cartesian z.
type Slab struct {
	*structure.Structure

	// MillerIndex identifies the surface orientation.
	MillerIndex [3]int
	// Shift is the fractional termination offset the cut was taken at.
	Shift float64
	// ScaleFactor is the integer transformation from the bulk cell to the
	// oriented slab cell.
	ScaleFactor [3][3]int
}

// SlabOptions control slab enumeration and filtering.
type SlabOptions struct {
	// MaxIndex bounds the absolute value of each Miller index component.
	MaxIndex int
	// MinSlabSize is the minimum slab thickness in angstroms.
	MinSlabSize float64
	// MinLengthWidth is the minimum in-plane cell length in angstroms;
	// slabs are grown laterally until both directions satisfy it.
	MinLengthWidth float64
	// MinVacuumSize is the minimum vacuum gap in angstroms.
	MinVacuumSize float64
	// ZFix marks atoms within this distance of the top surface as free
	// and fixes everything below. Zero disables tagging.
	ZFix float64
	// FlipAsymmetric adds the vertically mirrored counterpart of every
	// asymmetric slab as an extra candidate.
	FlipAsymmetric bool
	// AllowedSurfaceAtoms discards slabs whose surface layer contains
	// none of these species. Empty means no filtering.
	AllowedSurfaceAtoms []string
	// FTol is the fractional tolerance used when clustering atomic
	// layers into terminations. Zero means the 0.1 default.
	FTol float64
}

func (o SlabOptions) withDefaults() SlabOptions {
	if o.MaxIndex == 0 {
		o.MaxIndex = 1
	}
	if o.MinSlabSize == 0 {
		o.MinSlabSize = 10.0
	}
	if o.MinLengthWidth == 0 {
		o.MinLengthWidth = 8.0
	}
	if o.MinVacuumSize == 0 {
		o.MinVacuumSize = 20.0
	}
	if o.FTol == 0 {
		o.FTol = 0.1
	}
	return o
}

// DefaultSlabOptions returns the standard generation settings: first-order
// surfaces, 10 A slabs under 20 A of vacuum, 8 A of lateral extent, the
// top 2 A free to relax, and asymmetric terminations flipped.
func DefaultSlabOptions() SlabOptions {
	return SlabOptions{
		MaxIndex:       1,
		MinSlabSize:    10.0,
		MinLengthWidth: 8.0,
		MinVacuumSize:  20.0,
		ZFix:           2.0,
		FlipAsymmetric: true,
	}
}

// slabStats builds the provenance record stored on emitted slabs.
func slabStats(bulk *structure.Structure, s *Slab) map[string]interface{} {
	scale := make([]interface{}, 3)
	for i := 0; i < 3; i++ {
		row := make([]interface{}, 3)
		for j := 0; j < 3; j++ {
			row[j] = s.ScaleFactor[i][j]
		}
		scale[i] = row
	}
	return map[string]interface{}{
		"bulk":         structure.MustEncode(bulk),
		"miller_index": []interface{}{s.MillerIndex[0], s.MillerIndex[1], s.MillerIndex[2]},
		"shift":        roundTo(s.Shift, 3),
		"scale_factor": scale,
	}
}

func roundTo(v float64, digits int) float64 {
	f := 1.0
	for i := 0; i < digits; i++ {
		f *= 10
	}
	if v >= 0 {
		return float64(int64(v*f+0.5)) / f
	}
	return -float64(int64(-v*f+0.5)) / f
}
