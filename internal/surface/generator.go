package surface

import (
	"fmt"
	"math"
	"sort"

	"vaspflow/internal/structure"
	"vaspflow/pkg/logger"
)

// MakeSlabs enumerates surface terminations of a bulk crystal up to
// opts.MaxIndex. Candidates are grown laterally to opts.MinLengthWidth,
// tagged with selective dynamics from opts.ZFix, and filtered against
// opts.AllowedSurfaceAtoms. Asymmetric terminations additionally yield a
// vertically flipped counterpart. Returns nil when nothing survives.
func MakeSlabs(bulk *structure.Structure, opts SlabOptions) ([]*Slab, error) {
	if bulk == nil || bulk.Len() == 0 {
		return nil, fmt.Errorf("bulk structure is empty")
	}
	opts = opts.withDefaults()

	var candidates []*Slab
	for _, miller := range millerIndices(bulk.Lattice, opts.MaxIndex) {
		oriented, scaleFactor, err := orientedCell(bulk, miller)
		if err != nil {
			return nil, fmt.Errorf("orienting cell for %v: %w", miller, err)
		}
		for _, shift := range terminationShifts(oriented, opts.FTol) {
			slab := buildSlab(oriented, scaleFactor, miller, shift, opts)
			candidates = append(candidates, slab)
		}
	}

	// Asymmetric slabs expose two distinct terminations; mirror them so
	// both ever reach the workflow.
	if opts.FlipAsymmetric {
		var flipped []*Slab
		for _, slab := range candidates {
			if !slab.IsSymmetric() {
				flipped = append(flipped, flipSlab(slab))
			}
		}
		candidates = append(candidates, flipped...)
	}

	var emitted []*Slab
	for _, slab := range candidates {
		slab = growLateral(slab, opts.MinLengthWidth)
		if opts.ZFix > 0 {
			tagSelectiveDynamics(slab, opts.ZFix)

			if len(opts.AllowedSurfaceAtoms) > 0 && !hasAllowedSurfaceAtom(slab, opts.AllowedSurfaceAtoms) {
				continue
			}
		}
		slab.Info = mergeInfo(bulk.Info, map[string]interface{}{
			"slab_stats": slabStats(bulk, slab),
		})
		emitted = append(emitted, slab)
	}

	if len(emitted) == 0 {
		return nil, nil
	}
	return emitted, nil
}

// MakeMaxSlabs generates at most maxSlabs slabs. When over budget it
// first coarsens the termination tolerance from 0.1 to 0.8 in 0.1 steps,
// then falls back to keeping the smallest slabs by atom count, in
// generation order on ties. Every reduction emits a warning.
func MakeMaxSlabs(bulk *structure.Structure, maxSlabs int, opts SlabOptions) ([]*Slab, error) {
	log := logger.WithField("component", "slab-generator")

	slabs, err := MakeSlabs(bulk, opts)
	if err != nil || slabs == nil {
		return slabs, err
	}
	if maxSlabs <= 0 || len(slabs) <= maxSlabs {
		return slabs, nil
	}

	log.Warn("generated more slabs than requested, coarsening termination tolerance",
		"requested", maxSlabs, "generated", len(slabs))
	for ftol := 0.2; ftol < 0.85; ftol += 0.1 {
		retryOpts := opts
		retryOpts.FTol = ftol
		retried, err := MakeSlabs(bulk, retryOpts)
		if err != nil {
			return nil, err
		}
		if retried != nil && len(retried) < len(slabs) {
			slabs = retried
		}
		if len(slabs) <= maxSlabs {
			break
		}
	}

	if len(slabs) > maxSlabs {
		log.Warn("could not reduce slab count by tolerance, keeping the smallest slabs",
			"requested", maxSlabs, "generated", len(slabs))
		sort.SliceStable(slabs, func(i, j int) bool {
			return slabs[i].Len() < slabs[j].Len()
		})
		slabs = slabs[:maxSlabs]
	}

	return slabs, nil
}

// IsSymmetric reports whether the top and bottom terminations are
// equivalent: mirroring every atom through the slab midplane must map the
// site set onto itself with matching species.
func (s *Slab) IsSymmetric() bool {
	const tol = 0.1
	n := s.Len()
	if n == 0 {
		return true
	}
	zmin, zmax := zRange(s.Structure)
	used := make([]bool, n)
	for i := 0; i < n; i++ {
		mirror := zmin + zmax - s.Positions[i][2]
		found := false
		for j := 0; j < n; j++ {
			if used[j] || s.Symbols[j] != s.Symbols[i] {
				continue
			}
			if math.Abs(s.Positions[j][2]-mirror) < tol {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SurfaceAtomIndices returns the indices of atoms tagged free by the
// selective-dynamics pass, which is the surface layer by construction.
func (s *Slab) SurfaceAtomIndices() []int {
	var out []int
	for i, free := range s.Free {
		if free {
			out = append(out, i)
		}
	}
	return out
}

// millerIndices enumerates primitive Miller indices with all components
// bounded by maxIndex, deduplicated by inversion and, for cubic cells,
// by permutation and sign equivalence.
func millerIndices(lat structure.Lattice, maxIndex int) [][3]int {
	cubic := lat.IsCubic()
	seen := make(map[[3]int]bool)
	var out [][3]int
	for h := maxIndex; h >= -maxIndex; h-- {
		for k := maxIndex; k >= -maxIndex; k-- {
			for l := maxIndex; l >= -maxIndex; l-- {
				m := [3]int{h, k, l}
				if m == [3]int{0, 0, 0} {
					continue
				}
				if gcd3(abs(h), abs(k), abs(l)) != 1 {
					continue
				}
				key := canonicalMiller(m, cubic)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		for d := 0; d < 3; d++ {
			if out[i][d] != out[j][d] {
				return out[i][d] > out[j][d]
			}
		}
		return false
	})
	return out
}

func canonicalMiller(m [3]int, cubic bool) [3]int {
	if cubic {
		// All permutations and sign changes are symmetry-equivalent.
		a := []int{abs(m[0]), abs(m[1]), abs(m[2])}
		sort.Sort(sort.Reverse(sort.IntSlice(a)))
		return [3]int{a[0], a[1], a[2]}
	}
	// Opposite faces expose the same terminations once flipping is on.
	for _, v := range m {
		if v > 0 {
			return m
		}
		if v < 0 {
			return [3]int{-m[0], -m[1], -m[2]}
		}
	}
	return m
}

// orientedCell rebuilds the bulk cell with the (h,k,l) plane as the ab
// face. The returned integer matrix M maps bulk lattice vectors to the
// oriented ones and is unimodular, so the site count is preserved.
func orientedCell(bulk *structure.Structure, miller [3]int) (*structure.Structure, [3][3]int, error) {
	h, k, l := miller[0], miller[1], miller[2]

	var u1, u2 [3]int
	if h == 0 && k == 0 {
		u1 = [3]int{1, 0, 0}
		u2 = [3]int{0, 1, 0}
	} else {
		g1 := gcd(abs(h), abs(k))
		u1 = [3]int{k / g1, -h / g1, 0}
		// x*h + y*k = g1, so (-x*l, -y*l, g1) lies in the plane.
		x, y := bezout(h, k, g1)
		u2 = [3]int{-x * l, -y * l, g1}
	}

	w, err := normalVector(h, k, l)
	if err != nil {
		return nil, [3][3]int{}, err
	}

	u1, u2 = gaussReduce(u1, u2, bulk.Lattice)
	w = shortenAgainst(w, u1, bulk.Lattice)
	w = shortenAgainst(w, u2, bulk.Lattice)

	m := [3][3]int{u1, u2, w}
	switch detInt(m) {
	case 1:
	case -1:
		m[0], m[1] = m[1], m[0]
	default:
		return nil, [3][3]int{}, fmt.Errorf("non-unimodular slab transformation for %v", miller)
	}

	inv := intInverse(m)
	oriented := structure.New(standardOrientation(transformLattice(bulk.Lattice, m)))
	for i := range bulk.Symbols {
		f := bulk.Lattice.CartToFrac(bulk.Positions[i])
		var nf [3]float64
		for j := 0; j < 3; j++ {
			nf[j] = f[0]*float64(inv[0][j]) + f[1]*float64(inv[1][j]) + f[2]*float64(inv[2][j])
			nf[j] -= math.Floor(nf[j])
		}
		oriented.AddAtom(bulk.Symbols[i], oriented.Lattice.FracToCart(nf))
	}
	if bulk.HasInitialMagmoms() {
		oriented.SetInitialMagmoms(bulk.InitialMagmoms)
	}
	return oriented, m, nil
}

// normalVector finds an integer lattice direction with w.(h,k,l) = 1.
func normalVector(h, k, l int) ([3]int, error) {
	if gcd3(abs(h), abs(k), abs(l)) != 1 {
		return [3]int{}, fmt.Errorf("miller index (%d,%d,%d) is not primitive", h, k, l)
	}
	if h == 0 && k == 0 {
		if l > 0 {
			return [3]int{0, 0, 1}, nil
		}
		return [3]int{0, 0, -1}, nil
	}
	g1 := gcd(abs(h), abs(k))
	x, y := bezout(h, k, g1)
	s, t := bezout(g1, l, 1)
	return [3]int{s * x, s * y, t}, nil
}

// terminationShifts clusters the fractional heights of the oriented cell
// into layers: a cut is taken in every inter-layer gap wider than ftol.
// When every gap is narrower there is a single termination, cut through
// the widest gap.
func terminationShifts(cell *structure.Structure, ftol float64) []float64 {
	fcs := make([]float64, cell.Len())
	for i, f := range cell.FracCoords() {
		fcs[i] = f[2] - math.Floor(f[2])
	}
	sort.Float64s(fcs)

	n := len(fcs)
	var shifts []float64
	widestGap, widestMid := -1.0, 0.0
	for i := 0; i < n; i++ {
		next := fcs[(i+1)%n]
		gap := next - fcs[i]
		if i == n-1 {
			gap = fcs[0] + 1 - fcs[n-1]
		}
		mid := math.Mod(fcs[i]+gap/2, 1)
		if gap > widestGap {
			widestGap, widestMid = gap, mid
		}
		if gap > ftol {
			shifts = append(shifts, mid)
		}
	}
	if len(shifts) == 0 {
		shifts = []float64{widestMid}
	}
	sort.Float64s(shifts)
	return shifts
}

// buildSlab stacks the oriented cell to the requested thickness, cuts at
// the termination shift, pads with vacuum along c, and centers the slab.
func buildSlab(oriented *structure.Structure, scaleFactor [3][3]int, miller [3]int, shift float64, opts SlabOptions) *Slab {
	cell := oriented.Copy()

	// Cut at the shift so the termination layer becomes the cell boundary.
	for i, p := range cell.Positions {
		f := cell.Lattice.CartToFrac(p)
		f[2] -= shift
		f[2] -= math.Floor(f[2])
		cell.Positions[i] = cell.Lattice.FracToCart(f)
	}

	cProj := cell.Lattice[2][2]
	layers := int(math.Ceil(opts.MinSlabSize / cProj))
	if layers < 1 {
		layers = 1
	}
	slab := cell.Supercell(1, 1, layers)

	// Stretch c so the normal gap above the slab is at least the vacuum
	// size. In-plane vectors and atom positions stay put.
	slabHeight := float64(layers) * cProj
	factor := (slabHeight + opts.MinVacuumSize) / slabHeight
	slab.Lattice[2] = [3]float64{
		slab.Lattice[2][0] * factor,
		slab.Lattice[2][1] * factor,
		slab.Lattice[2][2] * factor,
	}

	centerSlab(slab)

	return &Slab{
		Structure:   slab,
		MillerIndex: miller,
		Shift:       shift,
		ScaleFactor: scaleFactor,
	}
}

func centerSlab(s *structure.Structure) {
	zmin, zmax := zRange(s)
	target := s.Lattice[2][2] / 2
	s.Translate([3]float64{0, 0, target - (zmin+zmax)/2})
}

func flipSlab(s *Slab) *Slab {
	flipped := s.FlipZ()
	centerSlab(flipped)
	return &Slab{
		Structure:   flipped,
		MillerIndex: s.MillerIndex,
		Shift:       -s.Shift,
		ScaleFactor: s.ScaleFactor,
	}
}

func growLateral(s *Slab, minLengthWidth float64) *Slab {
	lengths := s.Lattice.Lengths()
	na := int(math.Ceil(minLengthWidth / lengths[0]))
	nb := int(math.Ceil(minLengthWidth / lengths[1]))
	if na <= 1 && nb <= 1 {
		return s
	}
	return &Slab{
		Structure:   s.Supercell(maxInt(na, 1), maxInt(nb, 1), 1),
		MillerIndex: s.MillerIndex,
		Shift:       s.Shift,
		ScaleFactor: s.ScaleFactor,
	}
}

// tagSelectiveDynamics frees atoms within zFix of the top surface and
// fixes the rest, mimicking a frozen sub-surface region.
func tagSelectiveDynamics(s *Slab, zFix float64) {
	_, zmax := zRange(s.Structure)
	free := make([]bool, s.Len())
	for i, p := range s.Positions {
		free[i] = p[2] >= zmax-zFix-1e-8
	}
	s.Free = free
}

func hasAllowedSurfaceAtom(s *Slab, allowed []string) bool {
	for _, i := range s.SurfaceAtomIndices() {
		for _, sym := range allowed {
			if s.Symbols[i] == sym {
				return true
			}
		}
	}
	return false
}

func zRange(s *structure.Structure) (zmin, zmax float64) {
	zmin, zmax = math.Inf(1), math.Inf(-1)
	for _, p := range s.Positions {
		if p[2] < zmin {
			zmin = p[2]
		}
		if p[2] > zmax {
			zmax = p[2]
		}
	}
	return zmin, zmax
}

func mergeInfo(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// standardOrientation rotates a lattice into the conventional slab frame:
// a along x, b in the xy-plane, c with a positive z component. Lengths
// and angles are preserved.
func standardOrientation(l structure.Lattice) structure.Lattice {
	lengths := l.Lengths()
	angles := l.Angles()
	alpha := angles[0] * math.Pi / 180
	beta := angles[1] * math.Pi / 180
	gamma := angles[2] * math.Pi / 180

	a := lengths[0]
	b := lengths[1]
	c := lengths[2]

	bx := b * math.Cos(gamma)
	by := b * math.Sin(gamma)
	cx := c * math.Cos(beta)
	cy := c * (math.Cos(alpha) - math.Cos(beta)*math.Cos(gamma)) / math.Sin(gamma)
	cz := math.Sqrt(math.Max(c*c-cx*cx-cy*cy, 0))

	return structure.Lattice{
		{a, 0, 0},
		{bx, by, 0},
		{cx, cy, cz},
	}
}

func transformLattice(l structure.Lattice, m [3][3]int) structure.Lattice {
	var out structure.Lattice
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = float64(m[i][0])*l[0][j] + float64(m[i][1])*l[1][j] + float64(m[i][2])*l[2][j]
		}
	}
	return out
}

// gaussReduce shortens a pair of integer lattice directions under the
// cartesian metric of lat, the 2D analog of LLL reduction.
func gaussReduce(u, v [3]int, lat structure.Lattice) ([3]int, [3]int) {
	cart := func(n [3]int) [3]float64 {
		var c [3]float64
		for j := 0; j < 3; j++ {
			c[j] = float64(n[0])*lat[0][j] + float64(n[1])*lat[1][j] + float64(n[2])*lat[2][j]
		}
		return c
	}
	dotf := func(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

	for iter := 0; iter < 16; iter++ {
		cu, cv := cart(u), cart(v)
		if dotf(cu, cu) > dotf(cv, cv) {
			u, v = v, u
			cu, cv = cv, cu
		}
		mu := int(math.Round(dotf(cv, cu) / dotf(cu, cu)))
		if mu == 0 {
			break
		}
		next := v
		for j := 0; j < 3; j++ {
			next[j] -= mu * u[j]
		}
		cn := cart(next)
		if dotf(cn, cn) >= dotf(cv, cv) {
			break
		}
		v = next
	}
	return u, v
}

func shortenAgainst(w, u [3]int, lat structure.Lattice) [3]int {
	cart := func(n [3]int) [3]float64 {
		var c [3]float64
		for j := 0; j < 3; j++ {
			c[j] = float64(n[0])*lat[0][j] + float64(n[1])*lat[1][j] + float64(n[2])*lat[2][j]
		}
		return c
	}
	dotf := func(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

	cw, cu := cart(w), cart(u)
	mu := int(math.Round(dotf(cw, cu) / dotf(cu, cu)))
	if mu == 0 {
		return w
	}
	next := w
	for j := 0; j < 3; j++ {
		next[j] -= mu * u[j]
	}
	cn := cart(next)
	if dotf(cn, cn) >= dotf(cw, cw) {
		return w
	}
	return next
}

func detInt(m [3][3]int) int {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// intInverse inverts a unimodular integer matrix via its adjugate.
func intInverse(m [3][3]int) [3][3]int {
	det := detInt(m)
	adj := [3][3]int{
		{
			m[1][1]*m[2][2] - m[1][2]*m[2][1],
			m[0][2]*m[2][1] - m[0][1]*m[2][2],
			m[0][1]*m[1][2] - m[0][2]*m[1][1],
		},
		{
			m[1][2]*m[2][0] - m[1][0]*m[2][2],
			m[0][0]*m[2][2] - m[0][2]*m[2][0],
			m[0][2]*m[1][0] - m[0][0]*m[1][2],
		},
		{
			m[1][0]*m[2][1] - m[1][1]*m[2][0],
			m[0][1]*m[2][0] - m[0][0]*m[2][1],
			m[0][0]*m[1][1] - m[0][1]*m[1][0],
		},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			adj[i][j] *= det
		}
	}
	return adj
}

// bezout returns x, y with x*a + y*b = g, where g divides gcd(a, b).
func bezout(a, b, g int) (int, int) {
	x, y, gg := egcd(a, b)
	if gg == 0 {
		return 0, 0
	}
	scale := g / gg
	return x * scale, y * scale
}

func egcd(a, b int) (x, y, g int) {
	if b == 0 {
		if a < 0 {
			return -1, 0, -a
		}
		if a == 0 {
			return 0, 0, 0
		}
		return 1, 0, a
	}
	x1, y1, g := egcd(b, a%b)
	return y1, x1 - (a/b)*y1, g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

func gcd3(a, b, c int) int {
	return gcd(gcd(a, b), c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
