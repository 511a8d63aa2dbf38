package surface

import (
	"fmt"
	"math"
	"sort"

	"vaspflow/internal/structure"
	"vaspflow/pkg/errors"
)

// Adsorption modes.
const (
	ModeOntop  = "ontop"
	ModeBridge = "bridge"
	ModeHollow = "hollow"
)

// AdsorbateOptions controls adsorbate placement on a slab surface.
type AdsorbateOptions struct {
	// MinDistance is the gap between the binding atom and the site in
	// angstroms. Defaults to 2.0.
	MinDistance float64
	// Modes selects the site types to enumerate. Defaults to ontop,
	// bridge and hollow.
	Modes []string
	// AllowedSurfaceSymbols restricts placements to sites whose nearest
	// surface atoms include one of these species.
	AllowedSurfaceSymbols []string
	// AllowedSurfaceIndices restricts placements to sites whose nearest
	// surface atoms include one of these slab indices.
	AllowedSurfaceIndices []int
	// SurfaceHeight is the depth below the topmost atom still counted
	// as surface when locating sites. Defaults to 0.9.
	SurfaceHeight float64
}

func (o AdsorbateOptions) withDefaults() AdsorbateOptions {
	if o.MinDistance == 0 {
		o.MinDistance = 2.0
	}
	if len(o.Modes) == 0 {
		o.Modes = []string{ModeOntop, ModeBridge, ModeHollow}
	}
	if o.SurfaceHeight == 0 {
		o.SurfaceHeight = 0.9
	}
	return o
}

// PlaceAdsorbateByName resolves a built-in molecule and places it on the
// slab in every requested mode.
func PlaceAdsorbateByName(slab *structure.Structure, name string, opts AdsorbateOptions) ([]*structure.Structure, error) {
	mol, err := structure.BuiltinMolecule(name)
	if err != nil {
		return nil, err
	}
	return PlaceAdsorbate(slab, mol, opts)
}

// PlaceAdsorbate returns one slab copy per adsorption site, with the
// molecule's binding atom placed opts.MinDistance above the site in its
// input orientation. Each copy records the placement under the
// "adsorbates" info key. Returns nil when no site survives the filters.
func PlaceAdsorbate(slab *structure.Structure, adsorbate *structure.Structure, opts AdsorbateOptions) ([]*structure.Structure, error) {
	if slab == nil || slab.Len() == 0 {
		return nil, fmt.Errorf("slab structure is empty")
	}
	if adsorbate == nil || adsorbate.Len() == 0 {
		return nil, fmt.Errorf("adsorbate structure is empty")
	}
	opts = opts.withDefaults()

	for _, mode := range opts.Modes {
		switch mode {
		case ModeOntop, ModeBridge, ModeHollow:
		default:
			return nil, fmt.Errorf("%w: %q", errors.ErrUnknownAdsorptionMode, mode)
		}
	}
	for _, idx := range opts.AllowedSurfaceIndices {
		if idx < 0 || idx >= slab.Len() {
			return nil, fmt.Errorf("%w: index %d with %d slab atoms", errors.ErrSurfaceIndexOutside, idx, slab.Len())
		}
	}

	adsorbate = adsorbate.Copy()
	harmonizeMagmoms(slab, adsorbate)

	surfaceIdx := surfaceBand(slab, opts.SurfaceHeight)
	sitesByMode := findAdsorptionSites(slab, surfaceIdx, opts.Modes)
	for _, sites := range sitesByMode {
		sortSites(sites)
	}

	total := 0
	for _, sites := range sitesByMode {
		total += len(sites)
	}
	if total == 0 {
		return nil, nil
	}

	bindIdx := bindingAtom(adsorbate)
	nSlab := slab.Len()

	var out []*structure.Structure
	for _, mode := range opts.Modes {
		for _, site := range sitesByMode[mode] {
			placed := addAdsorbate(slab, adsorbate, bindIdx, site, opts.MinDistance)

			// The coordinating surface atoms are all slab atoms within
			// 0.01 angstroms of the shortest binding-atom distance.
			d := placed.DistancesToPoint(placed.Positions[nSlab+bindIdx])[:nSlab]
			minD := math.Inf(1)
			for _, v := range d {
				if v < minD {
					minD = v
				}
			}
			var nearIdx []int
			var nearSym []string
			for i, v := range d {
				if v >= minD-0.01 && v <= minD+0.01 {
					nearIdx = append(nearIdx, i)
					nearSym = append(nearSym, placed.Symbols[i])
				}
			}

			if len(opts.AllowedSurfaceSymbols) > 0 && !anyStringIn(nearSym, opts.AllowedSurfaceSymbols) {
				continue
			}
			if len(opts.AllowedSurfaceIndices) > 0 && !anyIntIn(nearIdx, opts.AllowedSurfaceIndices) {
				continue
			}

			record := map[string]interface{}{
				"adsorbate":             structure.MustEncode(adsorbate),
				"initial_mode":          mode,
				"surface_atoms_symbols": nearSym,
				"surface_atoms_indices": nearIdx,
			}
			if prev, ok := placed.Info["adsorbates"].([]interface{}); ok {
				placed.Info["adsorbates"] = append(prev, record)
			} else {
				placed.Info["adsorbates"] = []interface{}{record}
			}

			out = append(out, placed)
		}
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// harmonizeMagmoms gives whichever side lacks initial magmoms an explicit
// zero set when the other side carries one, so the combined structure has
// a consistent per-site property.
func harmonizeMagmoms(slab, adsorbate *structure.Structure) {
	if slab.HasInitialMagmoms() && !adsorbate.HasInitialMagmoms() {
		adsorbate.SetInitialMagmoms(make([]float64, adsorbate.Len()))
	}
	if adsorbate.HasInitialMagmoms() && !slab.HasInitialMagmoms() {
		slab.SetInitialMagmoms(make([]float64, slab.Len()))
	}
}

// surfaceBand returns indices of atoms within height of the topmost atom.
func surfaceBand(s *structure.Structure, height float64) []int {
	_, zmax := zRange(s)
	var out []int
	for i, p := range s.Positions {
		if p[2] >= zmax-height-1e-8 {
			out = append(out, i)
		}
	}
	return out
}

// findAdsorptionSites enumerates candidate site positions per mode.
// Ontop sites sit above surface atoms, bridge sites at midpoints of
// bonded surface pairs, hollow sites at centroids of bonded triangles.
// Bonding uses 1.2x the shortest surface neighbor distance as cutoff.
func findAdsorptionSites(s *structure.Structure, surfaceIdx []int, modes []string) map[string][][3]float64 {
	want := make(map[string]bool, len(modes))
	for _, m := range modes {
		want[m] = true
	}
	sites := make(map[string][][3]float64)

	if want[ModeOntop] {
		for _, i := range surfaceIdx {
			sites[ModeOntop] = appendSite(sites[ModeOntop], s, s.Positions[i])
		}
	}
	if !want[ModeBridge] && !want[ModeHollow] {
		return sites
	}

	n := len(surfaceIdx)
	minNN := math.Inf(1)
	dist := make([][]float64, n)
	for a := 0; a < n; a++ {
		dist[a] = make([]float64, n)
		for b := a + 1; b < n; b++ {
			d := s.DistanceMIC(surfaceIdx[a], surfaceIdx[b])
			dist[a][b] = d
			if d < minNN {
				minNN = d
			}
		}
	}
	if math.IsInf(minNN, 1) {
		return sites
	}
	cutoff := 1.2 * minNN

	bonded := func(a, b int) bool { return dist[a][b] <= cutoff }

	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			if !bonded(a, b) {
				continue
			}
			pa := s.Positions[surfaceIdx[a]]
			pb := nearestImage(s, pa, s.Positions[surfaceIdx[b]])
			if want[ModeBridge] {
				mid := [3]float64{(pa[0] + pb[0]) / 2, (pa[1] + pb[1]) / 2, (pa[2] + pb[2]) / 2}
				sites[ModeBridge] = appendSite(sites[ModeBridge], s, mid)
			}
			if want[ModeHollow] {
				for c := b + 1; c < n; c++ {
					if !bonded(a, c) || !bonded(b, c) {
						continue
					}
					pc := nearestImage(s, pa, s.Positions[surfaceIdx[c]])
					cen := [3]float64{
						(pa[0] + pb[0] + pc[0]) / 3,
						(pa[1] + pb[1] + pc[1]) / 3,
						(pa[2] + pb[2] + pc[2]) / 3,
					}
					sites[ModeHollow] = appendSite(sites[ModeHollow], s, cen)
				}
			}
		}
	}
	return sites
}

// appendSite adds a candidate unless an in-plane equivalent is present.
func appendSite(sites [][3]float64, s *structure.Structure, site [3]float64) [][3]float64 {
	const tol = 0.05
	for _, prev := range sites {
		img := nearestImage(s, prev, site)
		dx := img[0] - prev[0]
		dy := img[1] - prev[1]
		if math.Hypot(dx, dy) < tol {
			return sites
		}
	}
	return append(sites, site)
}

// nearestImage returns the periodic image of p closest to ref.
func nearestImage(s *structure.Structure, ref, p [3]float64) [3]float64 {
	best := p
	bestD := math.Inf(1)
	for ia := -1; ia <= 1; ia++ {
		for ib := -1; ib <= 1; ib++ {
			img := [3]float64{
				p[0] + float64(ia)*s.Lattice[0][0] + float64(ib)*s.Lattice[1][0],
				p[1] + float64(ia)*s.Lattice[0][1] + float64(ib)*s.Lattice[1][1],
				p[2] + float64(ia)*s.Lattice[0][2] + float64(ib)*s.Lattice[1][2],
			}
			dx := img[0] - ref[0]
			dy := img[1] - ref[1]
			dz := img[2] - ref[2]
			d := dx*dx + dy*dy + dz*dz
			if d < bestD {
				bestD = d
				best = img
			}
		}
	}
	return best
}

// bindingAtom is the lowest atom of the molecule in its input frame.
func bindingAtom(mol *structure.Structure) int {
	best := 0
	for i, p := range mol.Positions {
		if p[2] < mol.Positions[best][2] {
			best = i
		}
	}
	return best
}

// addAdsorbate returns a slab copy with the molecule translated so its
// binding atom sits distance above the site. Added atoms are left free
// under selective dynamics.
func addAdsorbate(slab, mol *structure.Structure, bindIdx int, site [3]float64, distance float64) *structure.Structure {
	out := slab.Copy()
	anchor := [3]float64{site[0], site[1], site[2] + distance}
	bind := mol.Positions[bindIdx]
	for i := range mol.Symbols {
		pos := [3]float64{
			mol.Positions[i][0] - bind[0] + anchor[0],
			mol.Positions[i][1] - bind[1] + anchor[1],
			mol.Positions[i][2] - bind[2] + anchor[2],
		}
		out.AddAtom(mol.Symbols[i], pos)
		if mol.HasInitialMagmoms() && out.InitialMagmoms != nil {
			out.InitialMagmoms[out.Len()-1] = mol.InitialMagmoms[i]
		}
	}
	return out
}

func anyStringIn(have, allowed []string) bool {
	for _, h := range have {
		for _, a := range allowed {
			if h == a {
				return true
			}
		}
	}
	return false
}

func anyIntIn(have, allowed []int) bool {
	for _, h := range have {
		for _, a := range allowed {
			if h == a {
				return true
			}
		}
	}
	return false
}

// sortSites orders sites lexicographically so repeated generation
// yields a stable sequence.
func sortSites(sites [][3]float64) {
	sort.Slice(sites, func(i, j int) bool {
		if sites[i][0] != sites[j][0] {
			return sites[i][0] < sites[j][0]
		}
		if sites[i][1] != sites[j][1] {
			return sites[i][1] < sites[j][1]
		}
		return sites[i][2] < sites[j][2]
	})
}
